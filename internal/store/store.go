// Package store provides read access to the fleet collections. Every
// broadcast cycle fetches a fresh snapshot from here; concurrent
// requests for the same resource are collapsed into one query.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"golang.org/x/sync/singleflight"

	"fleetwatch/internal/resources"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
)

const ridesSnapshotLimit = 50

// Store reads snapshots and report datasets from MongoDB
type Store struct {
	db     *mongo.Database
	logger logging.Logger
	group  singleflight.Group

	queriesTotal  *prometheus.CounterVec
	queryDuration *prometheus.HistogramVec
}

// New creates a Store over the given database
func New(db *mongo.Database, logger logging.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// WithMetrics wires the optional query counters
func (s *Store) WithMetrics(queries *prometheus.CounterVec, duration *prometheus.HistogramVec) *Store {
	s.queriesTotal = queries
	s.queryDuration = duration
	return s
}

// Snapshot fetches the current full dataset for a resource type.
// Concurrent calls for the same resource share a single query.
func (s *Store) Snapshot(ctx context.Context, rt resources.ResourceType) (interface{}, error) {
	v, err, _ := s.group.Do(string(rt), func() (interface{}, error) {
		start := time.Now()
		data, err := s.fetch(ctx, rt)

		if s.queryDuration != nil {
			s.queryDuration.WithLabelValues(string(rt)).Observe(time.Since(start).Seconds())
		}
		if s.queriesTotal != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			s.queriesTotal.WithLabelValues(string(rt), status).Inc()
		}
		return data, err
	})
	return v, err
}

func (s *Store) fetch(ctx context.Context, rt resources.ResourceType) (interface{}, error) {
	switch rt {
	case resources.Vehicles:
		return s.Vehicles(ctx)
	case resources.Drivers:
		return s.Drivers(ctx)
	case resources.Rides:
		return s.Rides(ctx)
	case resources.Admins:
		return s.Admins(ctx)
	case resources.Complaints:
		return s.Complaints(ctx)
	case resources.Invoices:
		return s.Invoices(ctx)
	case resources.Dashboard:
		return s.DashboardStats(ctx)
	}
	return nil, fmt.Errorf("unknown resource type %q", rt)
}

// Vehicles returns all vehicles, most recently updated first, with the
// assigned driver's contact details joined in.
func (s *Store) Vehicles(ctx context.Context) ([]models.Vehicle, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "updatedAt", Value: -1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "drivers"},
			{Key: "localField", Value: "assignedDriver"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "assignedDriver"},
			{Key: "pipeline", Value: mongo.Pipeline{
				{{Key: "$project", Value: bson.D{
					{Key: "name", Value: 1},
					{Key: "phone", Value: 1},
					{Key: "verified", Value: 1},
				}}},
			}},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$assignedDriver"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}

	cursor, err := s.db.Collection("vehicles").Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("vehicles query failed: %w", err)
	}
	var out []models.Vehicle
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("vehicles decode failed: %w", err)
	}
	return out, nil
}

// Drivers returns all drivers ordered by most recent telemetry update
func (s *Store) Drivers(ctx context.Context) ([]models.Driver, error) {
	opts := options.Find().SetSort(bson.D{{Key: "lastUpdate", Value: -1}})
	cursor, err := s.db.Collection("drivers").Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("drivers query failed: %w", err)
	}
	var out []models.Driver
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("drivers decode failed: %w", err)
	}
	return out, nil
}

// Rides returns the most recent rides, capped so broadcast payloads
// stay bounded.
func (s *Store) Rides(ctx context.Context) ([]models.Ride, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(ridesSnapshotLimit)
	cursor, err := s.db.Collection("rides").Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("rides query failed: %w", err)
	}
	var out []models.Ride
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("rides decode failed: %w", err)
	}
	return out, nil
}

// Admins returns all admin users, most recently updated first
func (s *Store) Admins(ctx context.Context) ([]models.Admin, error) {
	opts := options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}})
	cursor, err := s.db.Collection("admins").Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("admins query failed: %w", err)
	}
	var out []models.Admin
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("admins decode failed: %w", err)
	}
	return out, nil
}

// Complaints returns all complaints with the vehicle registration and
// driver contact details joined in.
func (s *Store) Complaints(ctx context.Context) ([]models.Complaint, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: -1}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "vehicles"},
			{Key: "localField", Value: "vehicleId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "vehicleId"},
			{Key: "pipeline", Value: mongo.Pipeline{
				{{Key: "$project", Value: bson.D{{Key: "registrationNumber", Value: 1}}}},
			}},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$vehicleId"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: "drivers"},
			{Key: "localField", Value: "driverId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "driverId"},
			{Key: "pipeline", Value: mongo.Pipeline{
				{{Key: "$project", Value: bson.D{
					{Key: "name", Value: 1},
					{Key: "phone", Value: 1},
				}}},
			}},
		}}},
		{{Key: "$unwind", Value: bson.D{
			{Key: "path", Value: "$driverId"},
			{Key: "preserveNullAndEmptyArrays", Value: true},
		}}},
	}

	cursor, err := s.db.Collection("complaints").Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("complaints query failed: %w", err)
	}
	var out []models.Complaint
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("complaints decode failed: %w", err)
	}
	return out, nil
}

// Invoices returns all invoices, newest first
func (s *Store) Invoices(ctx context.Context) ([]models.Invoice, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := s.db.Collection("invoices").Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("invoices query failed: %w", err)
	}
	var out []models.Invoice
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("invoices decode failed: %w", err)
	}
	return out, nil
}

// DashboardStats derives the aggregate dashboard snapshot from counts
// across the fleet collections, with today's activity compared against
// yesterday's.
func (s *Store) DashboardStats(ctx context.Context) (*models.DashboardStats, error) {
	now := time.Now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	yesterday := today.AddDate(0, 0, -1)

	stats := &models.DashboardStats{GeneratedAt: now.UTC().Format(time.RFC3339)}

	counts := []struct {
		dest   *int64
		coll   string
		filter bson.D
	}{
		{&stats.TotalVehicles, "vehicles", bson.D{}},
		{&stats.ActiveVehicles, "vehicles", bson.D{{Key: "status", Value: "active"}}},
		{&stats.TotalDrivers, "drivers", bson.D{}},
		{&stats.VerifiedDrivers, "drivers", bson.D{{Key: "verified", Value: true}}},
		{&stats.TotalRides, "rides", bson.D{}},
		{&stats.CompletedRides, "rides", bson.D{{Key: "status", Value: "completed"}}},
		{&stats.OpenComplaints, "complaints", bson.D{{Key: "status", Value: bson.D{{Key: "$ne", Value: "resolved"}}}}},
		{&stats.PendingInvoices, "invoices", bson.D{{Key: "status", Value: "pending"}}},
		{&stats.TodayRides, "rides", createdBetween(today, now)},
		{&stats.YesterdayRides, "rides", createdBetween(yesterday, today)},
	}

	for _, c := range counts {
		n, err := s.db.Collection(c.coll).CountDocuments(ctx, c.filter)
		if err != nil {
			return nil, fmt.Errorf("dashboard count on %s failed: %w", c.coll, err)
		}
		*c.dest = n
	}

	earnings, err := s.completedEarnings(ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	stats.TotalEarnings = earnings

	stats.TodayEarnings, err = s.completedEarnings(ctx, createdBetween(today, now))
	if err != nil {
		return nil, err
	}
	stats.YesterdayEarnings, err = s.completedEarnings(ctx, createdBetween(yesterday, today))
	if err != nil {
		return nil, err
	}

	policy := DefaultChangePolicy()
	stats.RidesChange = policy.Change(float64(stats.TodayRides), float64(stats.YesterdayRides))
	stats.EarningsChange = policy.Change(stats.TodayEarnings, stats.YesterdayEarnings)

	return stats, nil
}

// createdBetween filters documents created inside [from, to)
func createdBetween(from, to time.Time) bson.D {
	return bson.D{{Key: "createdAt", Value: bson.D{
		{Key: "$gte", Value: from},
		{Key: "$lt", Value: to},
	}}}
}

// completedEarnings sums fares of completed rides matching the extra
// filter, which may be empty for an all-time total.
func (s *Store) completedEarnings(ctx context.Context, extra bson.D) (float64, error) {
	match := append(bson.D{{Key: "status", Value: "completed"}}, extra...)
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: match}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: nil},
			{Key: "total", Value: bson.D{{Key: "$sum", Value: "$fare"}}},
		}}},
	}

	cursor, err := s.db.Collection("rides").Aggregate(ctx, pipeline)
	if err != nil {
		return 0, fmt.Errorf("earnings aggregation failed: %w", err)
	}
	var rows []struct {
		Total float64 `bson:"total"`
	}
	if err := cursor.All(ctx, &rows); err != nil {
		return 0, fmt.Errorf("earnings decode failed: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return rows[0].Total, nil
}

// LastModified returns the newest timestamp on a watched collection,
// used by the polling fallback to detect changes without a stream.
func (s *Store) LastModified(ctx context.Context, rt resources.ResourceType) (time.Time, error) {
	coll := rt.Collection()
	if coll == "" {
		return time.Time{}, fmt.Errorf("resource %q has no backing collection", rt)
	}

	field := "updatedAt"
	if rt == resources.Drivers {
		field = "lastUpdate"
	}

	opts := options.FindOne().SetSort(bson.D{{Key: field, Value: -1}}).
		SetProjection(bson.D{{Key: field, Value: 1}})

	var doc bson.M
	err := s.db.Collection(coll).FindOne(ctx, bson.D{}, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("last-modified probe on %s failed: %w", coll, err)
	}

	if ts, ok := doc[field].(bson.DateTime); ok {
		return ts.Time(), nil
	}
	return time.Time{}, nil
}
