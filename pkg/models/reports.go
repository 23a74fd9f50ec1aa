package models

import (
	"fmt"
	"time"
)

const maxRangeDays = 365

// FilterParams are the per-client report filters recorded at request
// time and replayed on every periodic refresh for that client.
type FilterParams struct {
	StartDate    string `json:"startDate,omitempty"`
	EndDate      string `json:"endDate,omitempty"`
	TimeRange    string `json:"timeRange,omitempty"` // day, week or month
	DriverFilter string `json:"driverFilter,omitempty"`
}

// Validate rejects malformed filters before any computation runs.
// Bad input fails the requesting client only; it never reaches the
// query or broadcast path.
func (f FilterParams) Validate() error {
	switch f.TimeRange {
	case "", "day", "week", "month":
	default:
		return fmt.Errorf("invalid timeRange %q, expected day, week or month", f.TimeRange)
	}

	if f.StartDate == "" && f.EndDate == "" {
		return nil
	}

	from, err := time.Parse("2006-01-02", f.StartDate)
	if err != nil {
		return fmt.Errorf("invalid startDate %q, expected YYYY-MM-DD", f.StartDate)
	}
	to, err := time.Parse("2006-01-02", f.EndDate)
	if err != nil {
		return fmt.Errorf("invalid endDate %q, expected YYYY-MM-DD", f.EndDate)
	}
	if to.Before(from) {
		return fmt.Errorf("startDate %s is after endDate %s", f.StartDate, f.EndDate)
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return fmt.Errorf("date range exceeds %d days", maxRangeDays)
	}
	return nil
}

// WithDefaults fills unset filter fields. The summary view defaults
// to a one day range, everything else to a week.
func (f FilterParams) WithDefaults(defaultRange string) FilterParams {
	if f.TimeRange == "" {
		f.TimeRange = defaultRange
	}
	if f.DriverFilter == "" {
		f.DriverFilter = "all"
	}
	return f
}

// Window resolves the filters into a concrete [from, to) interval.
// Explicit dates win over the named range; the default is one week.
func (f FilterParams) Window(now time.Time) (time.Time, time.Time) {
	if f.StartDate != "" && f.EndDate != "" {
		from, err1 := time.Parse("2006-01-02", f.StartDate)
		to, err2 := time.Parse("2006-01-02", f.EndDate)
		if err1 == nil && err2 == nil {
			return from, to.AddDate(0, 0, 1)
		}
	}

	switch f.TimeRange {
	case "day":
		return now.AddDate(0, 0, -1), now
	case "month":
		return now.AddDate(0, -1, 0), now
	default:
		return now.AddDate(0, 0, -7), now
	}
}

// DateRange marks the resolved window on outbound report payloads
type DateRange struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// NewDateRange formats a resolved window as ISO timestamps
func NewDateRange(from, to time.Time) DateRange {
	return DateRange{
		Start: from.UTC().Format(time.RFC3339),
		End:   to.UTC().Format(time.RFC3339),
	}
}

// ChartPoint is one bucket in a time-series chart
type ChartPoint struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
	Count int64   `json:"count,omitempty"`
}

// EarningsSummary aggregates fare totals for an earnings report
type EarningsSummary struct {
	TotalEarnings   float64 `json:"totalEarnings"`
	TotalRides      int64   `json:"totalRides"`
	CancelledRides  int64   `json:"cancelledRides"`
	AvgPerRide      float64 `json:"avgPerRide"`
	CompletionRate  float64 `json:"completionRate"`
	TopEarningDay   string  `json:"topEarningDay,omitempty"`
	ChangeFromPrior float64 `json:"changeFromPrior"`
}

// EarningsReport is the payload for the earnings report kind. Day
// windows bucket the chart by hour, longer windows by day.
type EarningsReport struct {
	HasData   bool            `json:"hasData"`
	ChartData []ChartPoint    `json:"chartData"`
	Summary   EarningsSummary `json:"summary"`
	DateRange DateRange       `json:"dateRange"`
	Filters   FilterParams    `json:"filters"`
}

// DriverPerformanceRow is one driver's aggregate line in the
// driver performance table
type DriverPerformanceRow struct {
	DriverID         string  `json:"driverId"`
	Name             string  `json:"name"`
	TotalRides       int64   `json:"totalRides"`
	CompletedRides   int64   `json:"completedRides"`
	CancelledRides   int64   `json:"cancelledRides"`
	CompletionRate   float64 `json:"completionRate"`
	CancellationRate float64 `json:"cancellationRate"`
	TotalEarnings    float64 `json:"totalEarnings"`
	AverageRating    float64 `json:"averageRating"`
	Verified         bool    `json:"verified"`
}

// DriverPerformanceReport is the payload for the driverPerformance
// kind. PieChartData carries each driver's share of the earnings.
type DriverPerformanceReport struct {
	HasData      bool                   `json:"hasData"`
	TableData    []DriverPerformanceRow `json:"tableData"`
	PieChartData []ChartPoint           `json:"pieChartData"`
	DateRange    DateRange              `json:"dateRange"`
	Filters      FilterParams           `json:"filters"`
}

// RidesAnalysisReport is the payload for the ridesAnalysis kind
type RidesAnalysisReport struct {
	HasData             bool             `json:"hasData"`
	ChartData           []ChartPoint     `json:"chartData"`
	StatusCounts        map[string]int64 `json:"statusCounts"`
	ServiceDistribution map[string]int64 `json:"serviceDistribution"`
	TotalDistance       float64          `json:"totalDistance"`
	DateRange           DateRange        `json:"dateRange"`
	Filters             FilterParams     `json:"filters"`
}

// SummaryReport is the payload for the reportsSummary kind. The
// change fields carry the percent delta against the prior window.
type SummaryReport struct {
	HasData                bool         `json:"hasData"`
	TotalEarnings          *float64     `json:"totalEarnings"`
	TotalRides             *int64       `json:"totalRides"`
	ActiveDrivers          int64        `json:"activeDrivers"`
	AvgPerRide             float64      `json:"avgPerRide"`
	CancellationRate       float64      `json:"cancellationRate"`
	EarningsChange         float64      `json:"earningsChange"`
	RidesChange            float64      `json:"ridesChange"`
	AvgPerRideChange       float64      `json:"avgPerRideChange"`
	CancellationRateChange float64      `json:"cancellationRateChange"`
	DateRange              DateRange    `json:"dateRange"`
	Filters                FilterParams `json:"filters"`
}
