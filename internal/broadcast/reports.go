package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"fleetwatch/internal/realtime"
	"fleetwatch/internal/resources"
	"fleetwatch/internal/store"
	"fleetwatch/pkg/logging"
	"fleetwatch/pkg/models"
)

// ReportProvider builds report payloads. Satisfied by store.Store.
type ReportProvider interface {
	EarningsReport(ctx context.Context, filters models.FilterParams, policy store.ChangePolicy) (*models.EarningsReport, error)
	DriverPerformanceReport(ctx context.Context, filters models.FilterParams) (*models.DriverPerformanceReport, error)
	RidesAnalysisReport(ctx context.Context, filters models.FilterParams) (*models.RidesAnalysisReport, error)
	SummaryReport(ctx context.Context, filters models.FilterParams, policy store.ChangePolicy) (*models.SummaryReport, error)
}

// ReportEngine serves personalized report streams. Unlike the shared
// dataset broadcasts, every delivery is computed against the filters
// the individual client recorded with its last request.
type ReportEngine struct {
	st     ReportProvider
	hub    *realtime.Hub
	logger logging.Logger
	policy store.ChangePolicy

	summaryInterval  time.Duration
	earningsInterval time.Duration
}

// NewReportEngine creates a report engine with the given refresh
// cadence for the periodic summary and earnings pushes.
func NewReportEngine(st ReportProvider, hub *realtime.Hub, logger logging.Logger, policy store.ChangePolicy, summaryInterval, earningsInterval time.Duration) *ReportEngine {
	return &ReportEngine{
		st:               st,
		hub:              hub,
		logger:           logger,
		policy:           policy,
		summaryInterval:  summaryInterval,
		earningsInterval: earningsInterval,
	}
}

// HandleRequest serves an explicit report request: record the filters
// for future periodic refreshes, build the report and send it back on
// the kind's data event. A failed build falls back to the client's own
// last good report, then to a reportError plus the kind's zeroed
// defaults, so the dashboard is never left waiting.
func (re *ReportEngine) HandleRequest(ctx context.Context, c *realtime.Client, kind resources.ReportKind, filters models.FilterParams) {
	filters = filters.WithDefaults(defaultRange(kind))
	c.SetFilters(kind, filters)

	msg, err := re.compute(ctx, c, kind, filters, kind.DataEvent())
	if err != nil {
		re.logger.WithFields(logging.Fields{
			"client_id": c.ID,
			"kind":      kind,
			"error":     err,
		}).Error("Report request failed")

		if cached, ok := c.LastReport(kind); ok {
			c.Send(cached)
			return
		}
		c.SendEvent("reportError", map[string]string{
			"kind":    string(kind),
			"message": "failed to generate report",
		})
		if zero := zeroReport(kind, filters); zero != nil {
			c.SendEvent(kind.DataEvent(), zero)
		}
		return
	}

	c.Send(msg)
}

// zeroReport returns the explicit zeroed payload for a report kind,
// sent after a reportError when the client has no last good report to
// fall back to.
func zeroReport(kind resources.ReportKind, filters models.FilterParams) interface{} {
	from, to := filters.Window(time.Now())
	dateRange := models.NewDateRange(from, to)

	switch kind {
	case resources.Earnings:
		return &models.EarningsReport{
			ChartData: []models.ChartPoint{},
			DateRange: dateRange,
			Filters:   filters,
		}
	case resources.DriverPerformance:
		return &models.DriverPerformanceReport{
			TableData:    []models.DriverPerformanceRow{},
			PieChartData: []models.ChartPoint{},
			DateRange:    dateRange,
			Filters:      filters,
		}
	case resources.RidesAnalysis:
		return &models.RidesAnalysisReport{
			ChartData:           []models.ChartPoint{},
			StatusCounts:        map[string]int64{},
			ServiceDistribution: map[string]int64{},
			DateRange:           dateRange,
			Filters:             filters,
		}
	case resources.ReportsSummary:
		var earnings float64
		var rides int64
		return &models.SummaryReport{
			TotalEarnings: &earnings,
			TotalRides:    &rides,
			DateRange:     dateRange,
			Filters:       filters,
		}
	}
	return nil
}

// compute builds, validates, marshals and records one report message
// for one client.
func (re *ReportEngine) compute(ctx context.Context, c *realtime.Client, kind resources.ReportKind, filters models.FilterParams, event string) ([]byte, error) {
	payload, err := re.build(ctx, kind, filters)
	if err != nil {
		return nil, err
	}
	if !ValidateReport(kind, payload) {
		return nil, fmt.Errorf("report %s failed validation", kind)
	}

	msg, err := json.Marshal(map[string]interface{}{
		"event":     event,
		"data":      payload,
		"timestamp": resources.Timestamp(),
	})
	if err != nil {
		return nil, err
	}

	c.SetLastReport(kind, msg)
	return msg, nil
}

func defaultRange(kind resources.ReportKind) string {
	if kind == resources.ReportsSummary {
		return "day"
	}
	return "week"
}

// Run drives the periodic report refreshes until the context is
// canceled. Only clients that have recorded filters for a kind get
// that kind's refresh; everyone else is skipped.
func (re *ReportEngine) Run(ctx context.Context) {
	summary := time.NewTicker(re.summaryInterval)
	earnings := time.NewTicker(re.earningsInterval)
	defer summary.Stop()
	defer earnings.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-summary.C:
			re.refresh(ctx, resources.ReportsSummary)
		case <-earnings.C:
			re.refresh(ctx, resources.Earnings)
		}
	}
}

// refresh recomputes one report kind for every subscribed client,
// each against its own recorded filters.
func (re *ReportEngine) refresh(ctx context.Context, kind resources.ReportKind) {
	re.hub.ForEach(realtime.KindReport, func(c *realtime.Client) {
		filters, ok := c.Filters(kind)
		if !ok {
			return
		}

		msg, err := re.compute(ctx, c, kind, filters, kind.UpdateEvent())
		if err != nil {
			re.logger.WithFields(logging.Fields{
				"client_id": c.ID,
				"kind":      kind,
				"error":     err,
			}).Warn("Periodic report refresh failed")
			return
		}

		c.Send(msg)
	})
}

func (re *ReportEngine) build(ctx context.Context, kind resources.ReportKind, filters models.FilterParams) (interface{}, error) {
	switch kind {
	case resources.Earnings:
		return re.st.EarningsReport(ctx, filters, re.policy)
	case resources.DriverPerformance:
		return re.st.DriverPerformanceReport(ctx, filters)
	case resources.RidesAnalysis:
		return re.st.RidesAnalysisReport(ctx, filters)
	case resources.ReportsSummary:
		return re.st.SummaryReport(ctx, filters, re.policy)
	}
	return nil, fmt.Errorf("unknown report kind %q", kind)
}
