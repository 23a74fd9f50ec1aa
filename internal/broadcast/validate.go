package broadcast

import (
	"fleetwatch/internal/resources"
	"fleetwatch/pkg/models"
)

// Validate checks a freshly fetched snapshot before it may be
// broadcast. An empty dataset is valid; a nil or wrongly shaped one
// is not and must fall back to the cached payload.
func Validate(rt resources.ResourceType, data interface{}) bool {
	if data == nil {
		return false
	}

	switch rt {
	case resources.Vehicles:
		_, ok := data.([]models.Vehicle)
		return ok
	case resources.Drivers:
		_, ok := data.([]models.Driver)
		return ok
	case resources.Rides:
		_, ok := data.([]models.Ride)
		return ok
	case resources.Admins:
		_, ok := data.([]models.Admin)
		return ok
	case resources.Complaints:
		_, ok := data.([]models.Complaint)
		return ok
	case resources.Invoices:
		_, ok := data.([]models.Invoice)
		return ok
	case resources.Dashboard:
		stats, ok := data.(*models.DashboardStats)
		return ok && stats != nil
	}
	return false
}

// Normalize replaces nil slices with empty ones so outbound dataset
// payloads always carry a JSON array, never null.
func Normalize(rt resources.ResourceType, data interface{}) interface{} {
	switch rt {
	case resources.Vehicles:
		if v, ok := data.([]models.Vehicle); ok && v == nil {
			return []models.Vehicle{}
		}
	case resources.Drivers:
		if v, ok := data.([]models.Driver); ok && v == nil {
			return []models.Driver{}
		}
	case resources.Rides:
		if v, ok := data.([]models.Ride); ok && v == nil {
			return []models.Ride{}
		}
	case resources.Admins:
		if v, ok := data.([]models.Admin); ok && v == nil {
			return []models.Admin{}
		}
	case resources.Complaints:
		if v, ok := data.([]models.Complaint); ok && v == nil {
			return []models.Complaint{}
		}
	case resources.Invoices:
		if v, ok := data.([]models.Invoice); ok && v == nil {
			return []models.Invoice{}
		}
	}
	return data
}

// ValidateReport checks a report payload before it is sent to the
// requesting client.
func ValidateReport(kind resources.ReportKind, payload interface{}) bool {
	if payload == nil {
		return false
	}

	switch kind {
	case resources.Earnings:
		r, ok := payload.(*models.EarningsReport)
		return ok && r != nil && r.ChartData != nil
	case resources.DriverPerformance:
		r, ok := payload.(*models.DriverPerformanceReport)
		return ok && r != nil && r.TableData != nil
	case resources.RidesAnalysis:
		r, ok := payload.(*models.RidesAnalysisReport)
		return ok && r != nil && r.ChartData != nil
	case resources.ReportsSummary:
		r, ok := payload.(*models.SummaryReport)
		return ok && r != nil && r.TotalEarnings != nil && r.TotalRides != nil
	}
	return false
}
