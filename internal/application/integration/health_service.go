package integration

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/synchub/backend/internal/domain/integration"
)

// Health check thresholds
const (
	// slowProbeThreshold marks the API responsiveness check degraded
	slowProbeThreshold = 2 * time.Second
	// successRatioThreshold is the minimum healthy run success rate
	successRatioThreshold = 0.8
	// successRatioWindow is how many recent runs the ratio considers
	successRatioWindow = 20
	// headroomThreshold marks the rate-limit check unhealthy when the
	// remaining per-minute budget falls below this fraction
	headroomThreshold = 0.1
	// errorTrendWindow is how far back the error trend looks
	errorTrendWindow = time.Hour
	// errorTrendThreshold is how many recent errors trip the trend check
	errorTrendThreshold = 5
)

// HealthService runs the advisory health sub-checks for an integration and
// caches the derived status on the aggregate. Reports never change the
// integration's lifecycle status.
type HealthService struct {
	repo        integration.IntegrationRepository
	runs        integration.SyncRunRepository
	connections ConnectionSource
	limiter     RateLimiter
	logger      *zap.Logger
}

// NewHealthService creates a new HealthService
func NewHealthService(
	repo integration.IntegrationRepository,
	runs integration.SyncRunRepository,
	connections ConnectionSource,
	limiter RateLimiter,
	logger *zap.Logger,
) *HealthService {
	return &HealthService{
		repo:        repo,
		runs:        runs,
		connections: connections,
		limiter:     limiter,
		logger:      logger,
	}
}

// Check runs all sub-checks and returns the aggregated report. The derived
// status is cached on the aggregate so list views can show it without
// re-probing the provider.
func (s *HealthService) Check(ctx context.Context, id uuid.UUID) (*integration.HealthReport, error) {
	in, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	checks := []integration.CheckResult{
		s.checkConnection(ctx, in),
		s.checkAPIResponse(ctx, in),
		s.checkSyncSuccess(ctx, in),
		s.checkRateLimit(in),
		s.checkErrorTrend(in),
	}

	now := time.Now()
	report := &integration.HealthReport{
		IntegrationID:   id,
		Status:          integration.DeriveHealthStatus(checks),
		Checks:          checks,
		Recommendations: integration.BuildRecommendations(checks),
		CheckedAt:       now,
	}

	in.SetHealth(report.Status, now)
	if err := s.repo.Save(ctx, in); err != nil {
		s.logger.Warn("failed to cache health status",
			zap.String("integration_id", id.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("health check completed",
		zap.String("integration_id", id.String()),
		zap.String("status", string(report.Status)),
		zap.Int("failed_checks", len(report.Recommendations)),
	)
	return report, nil
}

// checkConnection verifies a live session exists for the integration
func (s *HealthService) checkConnection(ctx context.Context, in *integration.Integration) integration.CheckResult {
	result := integration.CheckResult{Name: integration.CheckConnection, Healthy: true}
	if !in.IsActive() {
		result.Healthy = false
		result.Issue = "integration is not active"
		return result
	}
	conn, err := s.connections.Connection(in.ID)
	if err != nil {
		result.Healthy = false
		result.Issue = "no live provider connection"
		return result
	}
	if err := conn.Ping(ctx); err != nil {
		result.Healthy = false
		result.Issue = fmt.Sprintf("connection ping failed: %v", err)
	}
	return result
}

// checkAPIResponse times a probe and flags the provider as slow past the
// threshold
func (s *HealthService) checkAPIResponse(ctx context.Context, in *integration.Integration) integration.CheckResult {
	result := integration.CheckResult{Name: integration.CheckAPIResponse, Healthy: true}
	conn, err := s.connections.Connection(in.ID)
	if err != nil {
		result.Healthy = false
		result.Issue = "no live provider connection"
		return result
	}
	start := time.Now()
	if err := conn.Ping(ctx); err != nil {
		result.Healthy = false
		result.Issue = fmt.Sprintf("probe failed: %v", err)
		return result
	}
	if elapsed := time.Since(start); elapsed > slowProbeThreshold {
		result.Healthy = false
		result.Issue = fmt.Sprintf("probe took %s", elapsed.Round(time.Millisecond))
	}
	return result
}

// checkSyncSuccess computes the success ratio over the recent run window.
// Integrations with no runs yet pass the check.
func (s *HealthService) checkSyncSuccess(ctx context.Context, in *integration.Integration) integration.CheckResult {
	result := integration.CheckResult{Name: integration.CheckSyncSuccess, Healthy: true}
	runs, err := s.runs.FindByIntegration(ctx, in.ID, integration.SyncRunFilter{Limit: successRatioWindow})
	if err != nil {
		result.Healthy = false
		result.Issue = fmt.Sprintf("could not read run history: %v", err)
		return result
	}
	if len(runs) == 0 {
		return result
	}
	succeeded := 0
	for _, r := range runs {
		if r.Status == integration.RunStatusSuccess {
			succeeded++
		}
	}
	ratio := float64(succeeded) / float64(len(runs))
	if ratio < successRatioThreshold {
		result.Healthy = false
		result.Issue = fmt.Sprintf("only %d of last %d runs succeeded", succeeded, len(runs))
	}
	return result
}

// checkRateLimit flags the integration when the remaining per-minute budget
// is nearly exhausted
func (s *HealthService) checkRateLimit(in *integration.Integration) integration.CheckResult {
	result := integration.CheckResult{Name: integration.CheckRateLimit, Healthy: true}
	if !in.IsActive() {
		return result
	}
	minute, hour := s.limiter.Headroom(in.ID)
	if in.RateLimits.PerMinute > 0 {
		if float64(minute)/float64(in.RateLimits.PerMinute) < headroomThreshold {
			result.Healthy = false
			result.Issue = fmt.Sprintf("%d of %d per-minute requests remaining", minute, in.RateLimits.PerMinute)
			return result
		}
	}
	if in.RateLimits.PerHour > 0 {
		if float64(hour)/float64(in.RateLimits.PerHour) < headroomThreshold {
			result.Healthy = false
			result.Issue = fmt.Sprintf("%d of %d per-hour requests remaining", hour, in.RateLimits.PerHour)
		}
	}
	return result
}

// checkErrorTrend counts recent entries in the aggregate's bounded error
// list
func (s *HealthService) checkErrorTrend(in *integration.Integration) integration.CheckResult {
	result := integration.CheckResult{Name: integration.CheckErrorTrend, Healthy: true}
	cutoff := time.Now().Add(-errorTrendWindow)
	recent := 0
	for _, e := range in.Health.Errors {
		if e.OccurredAt.After(cutoff) {
			recent++
		}
	}
	if recent >= errorTrendThreshold {
		result.Healthy = false
		result.Issue = fmt.Sprintf("%d errors in the last %s", recent, errorTrendWindow)
	}
	return result
}
