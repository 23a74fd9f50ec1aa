// Package resources defines the broadcast resource types, their
// MongoDB collections and the wire event names used on the socket.
package resources

import "time"

// ResourceType identifies one broadcastable dataset
type ResourceType string

const (
	Vehicles   ResourceType = "vehicles"
	Drivers    ResourceType = "drivers"
	Rides      ResourceType = "rides"
	Admins     ResourceType = "admins"
	Complaints ResourceType = "complaints"
	Invoices   ResourceType = "invoices"
	Dashboard  ResourceType = "dashboard"
)

// ReportKind identifies one personalized report stream
type ReportKind string

const (
	Earnings          ReportKind = "earnings"
	DriverPerformance ReportKind = "driverPerformance"
	RidesAnalysis     ReportKind = "ridesAnalysis"
	ReportsSummary    ReportKind = "reportsSummary"
)

// All lists every broadcast resource type. Dashboard is derived from
// the others and has no collection of its own.
func All() []ResourceType {
	return []ResourceType{Vehicles, Drivers, Rides, Admins, Complaints, Invoices, Dashboard}
}

// Watched lists the resource types backed by a collection with a
// change stream.
func Watched() []ResourceType {
	return []ResourceType{Vehicles, Drivers, Rides, Admins, Complaints, Invoices}
}

// Valid reports whether rt names a known resource type
func Valid(rt ResourceType) bool {
	switch rt {
	case Vehicles, Drivers, Rides, Admins, Complaints, Invoices, Dashboard:
		return true
	}
	return false
}

// Collection returns the MongoDB collection name for a resource type,
// or "" for derived resources.
func (rt ResourceType) Collection() string {
	switch rt {
	case Vehicles:
		return "vehicles"
	case Drivers:
		return "drivers"
	case Rides:
		return "rides"
	case Admins:
		return "admins"
	case Complaints:
		return "complaints"
	case Invoices:
		return "invoices"
	}
	return ""
}

// UpdateEvent returns the outbound event name carrying a full dataset
// for this resource, e.g. "vehiclesUpdate".
func (rt ResourceType) UpdateEvent() string {
	return string(rt) + "Update"
}

// ChangeEvent returns the advisory event name for a raw change
// notification, e.g. "vehicles:update".
func (rt ResourceType) ChangeEvent(operation string) string {
	return string(rt) + ":" + operation
}

// DataEvent returns the outbound event carrying a fresh report
// payload, e.g. "earningsData".
func (rk ReportKind) DataEvent() string {
	return string(rk) + "Data"
}

// UpdateEvent returns the outbound event carrying a periodic report
// refresh, e.g. "earningsUpdate".
func (rk ReportKind) UpdateEvent() string {
	return string(rk) + "Update"
}

// RequestEvent returns the inbound event a client sends to request
// this report kind, e.g. "requestEarnings".
func (rk ReportKind) RequestEvent() string {
	switch rk {
	case Earnings:
		return "requestEarnings"
	case DriverPerformance:
		return "requestDriverPerformance"
	case RidesAnalysis:
		return "requestRidesAnalysis"
	case ReportsSummary:
		return "requestReportsSummary"
	}
	return ""
}

// Envelope is the standard outbound message for dataset updates.
// Timestamps go out as ISO strings.
type Envelope struct {
	Event     string      `json:"event"`
	Success   bool        `json:"success"`
	Data      interface{} `json:"data"`
	Timestamp string      `json:"timestamp"`
	Message   string      `json:"message,omitempty"`
}

// Timestamp formats the current time for the wire
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// NewEnvelope builds a successful update envelope for a resource
func NewEnvelope(rt ResourceType, data interface{}) Envelope {
	return Envelope{
		Event:     rt.UpdateEvent(),
		Success:   true,
		Data:      data,
		Timestamp: Timestamp(),
	}
}

// NewEmptyEnvelope builds the zeroed placeholder envelope sent when no
// data can be produced and nothing is cached.
func NewEmptyEnvelope(rt ResourceType, message string) Envelope {
	return Envelope{
		Event:     rt.UpdateEvent(),
		Success:   false,
		Data:      []interface{}{},
		Timestamp: Timestamp(),
		Message:   message,
	}
}
