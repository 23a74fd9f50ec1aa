package models

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Vehicle is a fleet vehicle document
type Vehicle struct {
	ID                 bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	RegistrationNumber string        `bson:"registrationNumber" json:"registrationNumber"`
	Model              string        `bson:"model,omitempty" json:"model,omitempty"`
	Type               string        `bson:"type,omitempty" json:"type,omitempty"`
	Status             string        `bson:"status,omitempty" json:"status,omitempty"`
	AssignedDriver     *DriverRef    `bson:"assignedDriver,omitempty" json:"assignedDriver,omitempty"`
	CreatedAt          time.Time     `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt          time.Time     `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// DriverRef is the embedded driver projection attached to vehicles
// and complaints (name, phone and verification state only).
type DriverRef struct {
	ID       bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name     string        `bson:"name,omitempty" json:"name,omitempty"`
	Phone    string        `bson:"phone,omitempty" json:"phone,omitempty"`
	Verified bool          `bson:"verified,omitempty" json:"verified,omitempty"`
}

// Driver is a driver document with live telemetry fields
type Driver struct {
	ID         bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name       string        `bson:"name" json:"name"`
	Email      string        `bson:"email,omitempty" json:"email,omitempty"`
	Phone      string        `bson:"phone,omitempty" json:"phone,omitempty"`
	Status     string        `bson:"status,omitempty" json:"status,omitempty"`
	Verified   bool          `bson:"verified,omitempty" json:"verified,omitempty"`
	Location   *GeoPoint     `bson:"location,omitempty" json:"location,omitempty"`
	Speed      float64       `bson:"speed,omitempty" json:"speed,omitempty"`
	LastUpdate time.Time     `bson:"lastUpdate,omitempty" json:"lastUpdate,omitempty"`
	CreatedAt  time.Time     `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt  time.Time     `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// GeoPoint is a lat/lng coordinate pair
type GeoPoint struct {
	Lat float64 `bson:"lat" json:"lat"`
	Lng float64 `bson:"lng" json:"lng"`
}

// Ride is a completed or in-progress trip document
type Ride struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	RiderName   string        `bson:"riderName,omitempty" json:"riderName,omitempty"`
	DriverID    bson.ObjectID `bson:"driverId,omitempty" json:"driverId,omitempty"`
	VehicleID   bson.ObjectID `bson:"vehicleId,omitempty" json:"vehicleId,omitempty"`
	Pickup      string        `bson:"pickup,omitempty" json:"pickup,omitempty"`
	Dropoff     string        `bson:"dropoff,omitempty" json:"dropoff,omitempty"`
	Status      string        `bson:"status,omitempty" json:"status,omitempty"`
	ServiceType string        `bson:"serviceType,omitempty" json:"serviceType,omitempty"`
	Fare        float64       `bson:"fare,omitempty" json:"fare,omitempty"`
	Distance    float64       `bson:"distance,omitempty" json:"distance,omitempty"`
	Rating      float64       `bson:"rating,omitempty" json:"rating,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt   time.Time     `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Admin is an operations user document
type Admin struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	Name      string        `bson:"name" json:"name"`
	Email     string        `bson:"email,omitempty" json:"email,omitempty"`
	Role      string        `bson:"role,omitempty" json:"role,omitempty"`
	Active    bool          `bson:"active,omitempty" json:"active,omitempty"`
	CreatedAt time.Time     `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt time.Time     `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// Complaint is a customer complaint with vehicle and driver references
type Complaint struct {
	ID          bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	Title       string        `bson:"title,omitempty" json:"title,omitempty"`
	Description string        `bson:"description,omitempty" json:"description,omitempty"`
	Status      string        `bson:"status,omitempty" json:"status,omitempty"`
	Vehicle     *VehicleRef   `bson:"vehicleId,omitempty" json:"vehicleId,omitempty"`
	Driver      *DriverRef    `bson:"driverId,omitempty" json:"driverId,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt   time.Time     `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// VehicleRef is the embedded vehicle projection attached to complaints
type VehicleRef struct {
	ID                 bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	RegistrationNumber string        `bson:"registrationNumber,omitempty" json:"registrationNumber,omitempty"`
}

// Invoice is a billing document
type Invoice struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"_id"`
	Number    string        `bson:"number,omitempty" json:"number,omitempty"`
	RideID    bson.ObjectID `bson:"rideId,omitempty" json:"rideId,omitempty"`
	Amount    float64       `bson:"amount,omitempty" json:"amount,omitempty"`
	Status    string        `bson:"status,omitempty" json:"status,omitempty"`
	CreatedAt time.Time     `bson:"createdAt,omitempty" json:"createdAt,omitempty"`
	UpdatedAt time.Time     `bson:"updatedAt,omitempty" json:"updatedAt,omitempty"`
}

// DashboardStats is the aggregate snapshot for the dashboard resource.
// The change fields compare today's activity against yesterday's.
type DashboardStats struct {
	TotalVehicles     int64   `json:"totalVehicles"`
	ActiveVehicles    int64   `json:"activeVehicles"`
	TotalDrivers      int64   `json:"totalDrivers"`
	VerifiedDrivers   int64   `json:"verifiedDrivers"`
	TotalRides        int64   `json:"totalRides"`
	CompletedRides    int64   `json:"completedRides"`
	OpenComplaints    int64   `json:"openComplaints"`
	TotalEarnings     float64 `json:"totalEarnings"`
	PendingInvoices   int64   `json:"pendingInvoices"`
	TodayRides        int64   `json:"todayRides"`
	YesterdayRides    int64   `json:"yesterdayRides"`
	RidesChange       float64 `json:"ridesChange"`
	TodayEarnings     float64 `json:"todayEarnings"`
	YesterdayEarnings float64 `json:"yesterdayEarnings"`
	EarningsChange    float64 `json:"earningsChange"`
	GeneratedAt       string  `json:"generatedAt"`
}
