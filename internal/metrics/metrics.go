package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptvault_http_requests_total",
		Help: "Total HTTP requests processed, labeled by status code",
	}, []string{"method", "endpoint", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "promptvault_http_request_duration_seconds",
		Help:    "Latency distribution of HTTP requests",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}, []string{"method", "endpoint"})

	TogglesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptvault_toggles_total",
		Help: "Relationship toggles by kind and resulting state",
	}, []string{"kind", "result"})

	ToggleRacesAbsorbed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptvault_toggle_races_absorbed_total",
		Help: "Uniqueness races resolved inside a toggle transaction",
	}, []string{"kind"})

	LedgerOpsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptvault_ledger_operations_total",
		Help: "Credit ledger mutations by type and outcome",
	}, []string{"type", "outcome"})

	DailyClaimsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptvault_daily_claims_total",
		Help: "Daily reward claims by outcome",
	}, []string{"outcome"})

	BonusGrantsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "promptvault_bonus_grants_total",
		Help: "One-time bonus checks by kind and outcome",
	}, []string{"kind", "outcome"})

	NotificationsDeduplicated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptvault_notifications_deduplicated_total",
		Help: "Notification inserts suppressed as near-duplicates",
	})

	ReconcileDuplicatesRemoved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptvault_reconcile_duplicates_removed_total",
		Help: "Duplicate relationship rows removed by the reconciliation sweep",
	})

	ReconcileEntitiesFixed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "promptvault_reconcile_entities_fixed_total",
		Help: "Prompts whose counters were rewritten by the reconciliation sweep",
	})
)

// Outcome labels an operation result for the counters above.
func Outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// GinMiddleware records request count and latency per route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		method := c.Request.Method
		HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(time.Since(start).Seconds())
		HTTPRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
