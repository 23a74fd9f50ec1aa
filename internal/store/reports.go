package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"fleetwatch/pkg/models"
)

// ChangePolicy controls how period-over-period percent changes are
// computed. Extreme swings are clamped to CapPercent, and a zero
// prior period reports ZeroBaseline instead of a division blowup.
type ChangePolicy struct {
	CapPercent   float64
	ZeroBaseline float64
}

// DefaultChangePolicy clamps changes to +-200% and reports a flat
// +100% when the prior period had no activity at all.
func DefaultChangePolicy() ChangePolicy {
	return ChangePolicy{CapPercent: 200, ZeroBaseline: 100}
}

// Change computes the clamped percent change from prior to current
func (p ChangePolicy) Change(current, prior float64) float64 {
	if prior == 0 {
		if current == 0 {
			return 0
		}
		return p.ZeroBaseline
	}
	pct := (current - prior) / prior * 100
	if pct > p.CapPercent {
		return p.CapPercent
	}
	if pct < -p.CapPercent {
		return -p.CapPercent
	}
	return pct
}

// ridesInWindow fetches rides created inside [from, to), optionally
// narrowed to a single driver.
func (s *Store) ridesInWindow(ctx context.Context, from, to time.Time, driverFilter string) ([]models.Ride, error) {
	filter := bson.D{
		{Key: "createdAt", Value: bson.D{
			{Key: "$gte", Value: from},
			{Key: "$lt", Value: to},
		}},
	}
	if driverFilter != "" && driverFilter != "all" {
		driverID, err := bson.ObjectIDFromHex(driverFilter)
		if err != nil {
			return nil, fmt.Errorf("invalid driver filter %q: %w", driverFilter, err)
		}
		filter = append(filter, bson.E{Key: "driverId", Value: driverID})
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.db.Collection("rides").Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("rides window query failed: %w", err)
	}
	var out []models.Ride
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("rides window decode failed: %w", err)
	}
	return out, nil
}

// EarningsReport builds the earnings report for the given filters
func (s *Store) EarningsReport(ctx context.Context, filters models.FilterParams, policy ChangePolicy) (*models.EarningsReport, error) {
	from, to := filters.Window(time.Now())
	current, err := s.ridesInWindow(ctx, from, to, filters.DriverFilter)
	if err != nil {
		return nil, err
	}
	priorFrom := from.Add(-to.Sub(from))
	prior, err := s.ridesInWindow(ctx, priorFrom, from, filters.DriverFilter)
	if err != nil {
		return nil, err
	}

	report := BuildEarningsReport(current, prior, from, to, policy)
	report.Filters = filters
	return report, nil
}

// DriverPerformanceReport builds the per-driver performance table
func (s *Store) DriverPerformanceReport(ctx context.Context, filters models.FilterParams) (*models.DriverPerformanceReport, error) {
	from, to := filters.Window(time.Now())
	rides, err := s.ridesInWindow(ctx, from, to, filters.DriverFilter)
	if err != nil {
		return nil, err
	}
	drivers, err := s.Drivers(ctx)
	if err != nil {
		return nil, err
	}

	report := BuildDriverPerformanceReport(rides, drivers, from, to)
	report.Filters = filters
	return report, nil
}

// RidesAnalysisReport builds the ride volume and status breakdown
func (s *Store) RidesAnalysisReport(ctx context.Context, filters models.FilterParams) (*models.RidesAnalysisReport, error) {
	from, to := filters.Window(time.Now())
	rides, err := s.ridesInWindow(ctx, from, to, filters.DriverFilter)
	if err != nil {
		return nil, err
	}

	report := BuildRidesAnalysisReport(rides, from, to)
	report.Filters = filters
	return report, nil
}

// SummaryReport builds the headline summary with period-over-period
// change figures.
func (s *Store) SummaryReport(ctx context.Context, filters models.FilterParams, policy ChangePolicy) (*models.SummaryReport, error) {
	from, to := filters.Window(time.Now())
	current, err := s.ridesInWindow(ctx, from, to, filters.DriverFilter)
	if err != nil {
		return nil, err
	}
	priorFrom := from.Add(-to.Sub(from))
	prior, err := s.ridesInWindow(ctx, priorFrom, from, filters.DriverFilter)
	if err != nil {
		return nil, err
	}

	activeDrivers, err := s.db.Collection("drivers").CountDocuments(ctx, bson.D{{Key: "status", Value: "active"}})
	if err != nil {
		return nil, fmt.Errorf("active driver count failed: %w", err)
	}

	report := BuildSummaryReport(current, prior, activeDrivers, from, to, policy)
	report.Filters = filters
	return report, nil
}

// bucketLabel formats a ride's chart bucket label. Windows of a day or
// less group by hour, longer windows by day.
func bucketLabel(ts time.Time, hourly bool) string {
	if hourly {
		return ts.Format("15:00")
	}
	return ts.Format("2006-01-02")
}

// BuildEarningsReport aggregates rides into an earnings chart and
// summary. Only completed rides count toward earnings; day windows
// bucket the chart by hour, longer windows by day.
func BuildEarningsReport(current, prior []models.Ride, from, to time.Time, policy ChangePolicy) *models.EarningsReport {
	hourly := to.Sub(from) <= 24*time.Hour
	byBucket := map[string]*models.ChartPoint{}
	var total float64
	var completed, cancelled int64

	for _, r := range current {
		if r.Status == "cancelled" {
			cancelled++
		}
		if r.Status != "completed" {
			continue
		}
		completed++
		total += r.Fare

		label := bucketLabel(r.CreatedAt, hourly)
		point, ok := byBucket[label]
		if !ok {
			point = &models.ChartPoint{Label: label}
			byBucket[label] = point
		}
		point.Value += r.Fare
		point.Count++
	}

	chart := make([]models.ChartPoint, 0, len(byBucket))
	for _, p := range byBucket {
		chart = append(chart, *p)
	}
	sort.Slice(chart, func(i, j int) bool { return chart[i].Label < chart[j].Label })

	var topDay string
	var topValue float64
	for _, p := range chart {
		if p.Value > topValue {
			topValue = p.Value
			topDay = p.Label
		}
	}

	var avgPerRide float64
	if completed > 0 {
		avgPerRide = total / float64(completed)
	}
	var completionRate float64
	if len(current) > 0 {
		completionRate = float64(completed) / float64(len(current)) * 100
	}

	var priorTotal float64
	for _, r := range prior {
		if r.Status == "completed" {
			priorTotal += r.Fare
		}
	}

	return &models.EarningsReport{
		HasData:   len(current) > 0,
		ChartData: chart,
		Summary: models.EarningsSummary{
			TotalEarnings:   total,
			TotalRides:      int64(len(current)),
			CancelledRides:  cancelled,
			AvgPerRide:      avgPerRide,
			CompletionRate:  completionRate,
			TopEarningDay:   topDay,
			ChangeFromPrior: policy.Change(total, priorTotal),
		},
		DateRange: models.NewDateRange(from, to),
	}
}

// BuildDriverPerformanceReport aggregates rides per driver and joins
// the driver roster, sorted by earnings descending. The pie chart
// carries each earning driver's share of the total.
func BuildDriverPerformanceReport(rides []models.Ride, drivers []models.Driver, from, to time.Time) *models.DriverPerformanceReport {
	type agg struct {
		rides     int64
		completed int64
		cancelled int64
		earnings  float64
		ratings   float64
		rated     int64
	}
	byDriver := map[string]*agg{}

	for _, r := range rides {
		id := r.DriverID.Hex()
		a, ok := byDriver[id]
		if !ok {
			a = &agg{}
			byDriver[id] = a
		}
		a.rides++
		switch r.Status {
		case "completed":
			a.completed++
			a.earnings += r.Fare
		case "cancelled":
			a.cancelled++
		}
		if r.Rating > 0 {
			a.ratings += r.Rating
			a.rated++
		}
	}

	rows := make([]models.DriverPerformanceRow, 0, len(drivers))
	for _, d := range drivers {
		id := d.ID.Hex()
		row := models.DriverPerformanceRow{
			DriverID: id,
			Name:     d.Name,
			Verified: d.Verified,
		}
		if a, ok := byDriver[id]; ok {
			row.TotalRides = a.rides
			row.CompletedRides = a.completed
			row.CancelledRides = a.cancelled
			row.TotalEarnings = a.earnings
			if a.rides > 0 {
				row.CompletionRate = float64(a.completed) / float64(a.rides) * 100
				row.CancellationRate = float64(a.cancelled) / float64(a.rides) * 100
			}
			if a.rated > 0 {
				row.AverageRating = a.ratings / float64(a.rated)
			}
		}
		rows = append(rows, row)
	}

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].TotalEarnings != rows[j].TotalEarnings {
			return rows[i].TotalEarnings > rows[j].TotalEarnings
		}
		return rows[i].Name < rows[j].Name
	})

	pie := make([]models.ChartPoint, 0, len(rows))
	for _, row := range rows {
		if row.TotalEarnings > 0 {
			pie = append(pie, models.ChartPoint{Label: row.Name, Value: row.TotalEarnings})
		}
	}

	return &models.DriverPerformanceReport{
		HasData:      len(rides) > 0,
		TableData:    rows,
		PieChartData: pie,
		DateRange:    models.NewDateRange(from, to),
	}
}

// BuildRidesAnalysisReport buckets rides over the window, counts
// statuses and breaks volume down by service type.
func BuildRidesAnalysisReport(rides []models.Ride, from, to time.Time) *models.RidesAnalysisReport {
	hourly := to.Sub(from) <= 24*time.Hour
	byBucket := map[string]*models.ChartPoint{}
	statusCounts := map[string]int64{}
	serviceDistribution := map[string]int64{}
	var distance float64

	for _, r := range rides {
		label := bucketLabel(r.CreatedAt, hourly)
		point, ok := byBucket[label]
		if !ok {
			point = &models.ChartPoint{Label: label}
			byBucket[label] = point
		}
		point.Count++
		point.Value++

		statusCounts[r.Status]++
		service := r.ServiceType
		if service == "" {
			service = "standard"
		}
		serviceDistribution[service]++
		distance += r.Distance
	}

	chart := make([]models.ChartPoint, 0, len(byBucket))
	for _, p := range byBucket {
		chart = append(chart, *p)
	}
	sort.Slice(chart, func(i, j int) bool { return chart[i].Label < chart[j].Label })

	return &models.RidesAnalysisReport{
		HasData:             len(rides) > 0,
		ChartData:           chart,
		StatusCounts:        statusCounts,
		ServiceDistribution: serviceDistribution,
		TotalDistance:       distance,
		DateRange:           models.NewDateRange(from, to),
	}
}

// BuildSummaryReport produces the headline figures. TotalEarnings and
// TotalRides are always set, never nil, so consumers can rely on them.
func BuildSummaryReport(current, prior []models.Ride, activeDrivers int64, from, to time.Time, policy ChangePolicy) *models.SummaryReport {
	earnings, avgPerRide, cancellationRate := summaryFigures(current)
	priorEarnings, priorAvg, priorCancellation := summaryFigures(prior)

	totalRides := int64(len(current))
	priorRides := int64(len(prior))

	return &models.SummaryReport{
		HasData:                totalRides > 0,
		TotalEarnings:          &earnings,
		TotalRides:             &totalRides,
		ActiveDrivers:          activeDrivers,
		AvgPerRide:             avgPerRide,
		CancellationRate:       cancellationRate,
		EarningsChange:         policy.Change(earnings, priorEarnings),
		RidesChange:            policy.Change(float64(totalRides), float64(priorRides)),
		AvgPerRideChange:       policy.Change(avgPerRide, priorAvg),
		CancellationRateChange: policy.Change(cancellationRate, priorCancellation),
		DateRange:              models.NewDateRange(from, to),
	}
}

func summaryFigures(rides []models.Ride) (earnings, avgPerRide, cancellationRate float64) {
	var completed, cancelled int64
	for _, r := range rides {
		switch r.Status {
		case "completed":
			completed++
			earnings += r.Fare
		case "cancelled":
			cancelled++
		}
	}
	if completed > 0 {
		avgPerRide = earnings / float64(completed)
	}
	if len(rides) > 0 {
		cancellationRate = float64(cancelled) / float64(len(rides)) * 100
	}
	return earnings, avgPerRide, cancellationRate
}
