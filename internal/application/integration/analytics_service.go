package integration

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synchub/backend/internal/domain/integration"
)

// TimeRange bounds an analytics query. A zero From means "since the
// beginning"; a zero To means "until now".
type TimeRange struct {
	From time.Time
	To   time.Time
}

// DailyTrend is one day of aggregated run outcomes
type DailyTrend struct {
	Date       string  `json:"date"`
	Runs       int     `json:"runs"`
	Successes  int     `json:"successes"`
	Failures   int     `json:"failures"`
	Processed  int     `json:"processed"`
	Errors     int     `json:"errors"`
	AvgMs      float64 `json:"avg_ms"`
	totalMs    int64
	runCounter int
}

// AnalyticsReport is derived entirely from the sync run ledger within the
// requested window
type AnalyticsReport struct {
	IntegrationID uuid.UUID `json:"integration_id"`
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`

	TotalRuns      int     `json:"total_runs"`
	SuccessfulRuns int     `json:"successful_runs"`
	FailedRuns     int     `json:"failed_runs"`
	SuccessRate    float64 `json:"success_rate"`
	AvgDurationMs  float64 `json:"avg_duration_ms"`
	MaxDurationMs  int64   `json:"max_duration_ms"`

	RecordsProcessed int `json:"records_processed"`
	RecordsCreated   int `json:"records_created"`
	RecordsUpdated   int `json:"records_updated"`
	RecordErrors     int `json:"record_errors"`
	Conflicts        int `json:"conflicts"`
	Duplicates       int `json:"duplicates"`

	Trend []DailyTrend `json:"trend"`
}

// AnalyticsService answers read-only questions about sync history. It only
// filters and folds ledger entries; it never mutates anything.
type AnalyticsService struct {
	repo   integration.IntegrationRepository
	runs   integration.SyncRunRepository
	logger *zap.Logger
}

// NewAnalyticsService creates a new AnalyticsService
func NewAnalyticsService(
	repo integration.IntegrationRepository,
	runs integration.SyncRunRepository,
	logger *zap.Logger,
) *AnalyticsService {
	return &AnalyticsService{repo: repo, runs: runs, logger: logger}
}

// Report aggregates the ledger for one integration within the window
func (s *AnalyticsService) Report(ctx context.Context, id uuid.UUID, window TimeRange) (*AnalyticsReport, error) {
	if _, err := s.repo.FindByID(ctx, id); err != nil {
		return nil, err
	}

	if window.To.IsZero() {
		window.To = time.Now()
	}
	filter := integration.SyncRunFilter{To: &window.To}
	if !window.From.IsZero() {
		filter.From = &window.From
	}
	runs, err := s.runs.FindByIntegration(ctx, id, filter)
	if err != nil {
		return nil, err
	}

	report := &AnalyticsReport{
		IntegrationID: id,
		From:          window.From,
		To:            window.To,
	}
	byDay := make(map[string]*DailyTrend)
	var totalMs int64

	for _, run := range runs {
		report.TotalRuns++
		if run.Status == integration.RunStatusSuccess {
			report.SuccessfulRuns++
		} else {
			report.FailedRuns++
		}
		totalMs += run.DurationMs
		if run.DurationMs > report.MaxDurationMs {
			report.MaxDurationMs = run.DurationMs
		}
		report.RecordsProcessed += run.TotalProcessed()
		report.RecordsCreated += run.Inbound.Created + run.Outbound.Created
		report.RecordsUpdated += run.Inbound.Updated + run.Outbound.Updated
		report.RecordErrors += run.TotalErrors()
		report.Conflicts += run.Conflicts
		report.Duplicates += run.Duplicates

		day := run.CompletedAt.Format("2006-01-02")
		trend, ok := byDay[day]
		if !ok {
			trend = &DailyTrend{Date: day}
			byDay[day] = trend
		}
		trend.Runs++
		if run.Status == integration.RunStatusSuccess {
			trend.Successes++
		} else {
			trend.Failures++
		}
		trend.Processed += run.TotalProcessed()
		trend.Errors += run.TotalErrors()
		trend.totalMs += run.DurationMs
		trend.runCounter++
	}

	if report.TotalRuns > 0 {
		report.SuccessRate = float64(report.SuccessfulRuns) / float64(report.TotalRuns)
		report.AvgDurationMs = float64(totalMs) / float64(report.TotalRuns)
	}

	report.Trend = make([]DailyTrend, 0, len(byDay))
	for _, trend := range byDay {
		if trend.runCounter > 0 {
			trend.AvgMs = float64(trend.totalMs) / float64(trend.runCounter)
		}
		report.Trend = append(report.Trend, *trend)
	}
	sort.Slice(report.Trend, func(i, j int) bool {
		return report.Trend[i].Date < report.Trend[j].Date
	})

	return report, nil
}
