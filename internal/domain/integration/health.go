package integration

import (
	"time"

	"github.com/google/uuid"
)

// ---------------------------------------------------------------------------
// Health Reporting
// ---------------------------------------------------------------------------

// CheckName identifies one health sub-check
type CheckName string

const (
	CheckConnection  CheckName = "CONNECTION"
	CheckAPIResponse CheckName = "API_RESPONSE"
	CheckSyncSuccess CheckName = "SYNC_SUCCESS"
	CheckRateLimit   CheckName = "RATE_LIMIT"
	CheckErrorTrend  CheckName = "ERROR_TREND"
)

// CheckResult is the outcome of one independent sub-check
type CheckResult struct {
	Name    CheckName
	Healthy bool
	Issue   string
}

// HealthReport is the advisory aggregate of all sub-checks
type HealthReport struct {
	IntegrationID   uuid.UUID
	Status          HealthStatus
	Checks          []CheckResult
	Recommendations []string
	CheckedAt       time.Time
}

// DeriveHealthStatus maps failing sub-check counts onto an overall status:
// 0 failures is healthy, 1-2 degraded, 3 or more unhealthy.
func DeriveHealthStatus(checks []CheckResult) HealthStatus {
	failed := 0
	for _, c := range checks {
		if !c.Healthy {
			failed++
		}
	}
	switch {
	case failed == 0:
		return HealthHealthy
	case failed <= 2:
		return HealthDegraded
	default:
		return HealthUnhealthy
	}
}

// recommendationTable maps failing sub-checks to caller guidance
var recommendationTable = map[CheckName]string{
	CheckConnection:  "Verify provider credentials and network reachability",
	CheckAPIResponse: "Provider API is responding slowly; consider reducing sync frequency",
	CheckSyncSuccess: "Review recent sync errors and the integration's data mapping",
	CheckRateLimit:   "Rate-limit headroom is low; raise limits or space out syncs",
	CheckErrorTrend:  "Error rate is rising; inspect the recent error list",
}

// BuildRecommendations generates guidance from the failing sub-checks
func BuildRecommendations(checks []CheckResult) []string {
	var recs []string
	for _, c := range checks {
		if !c.Healthy {
			if rec, ok := recommendationTable[c.Name]; ok {
				recs = append(recs, rec)
			}
		}
	}
	return recs
}
