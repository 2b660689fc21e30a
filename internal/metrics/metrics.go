// Package metrics provides Prometheus instrumentation for ScamShield.
package metrics

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scamshield",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scamshield",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PaymentsScoredTotal counts scored payments by resulting risk level.
	PaymentsScoredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scamshield",
			Name:      "payments_scored_total",
			Help:      "Total payments scored by resulting risk level.",
		},
		[]string{"level"},
	)

	// ScoringDuration observes risk scoring latency by scorer backend.
	ScoringDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scamshield",
			Name:      "scoring_duration_seconds",
			Help:      "Risk scoring duration in seconds by backend.",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"backend"},
	)

	// WorkflowTransitionsTotal counts workflow state transitions.
	WorkflowTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scamshield",
			Name:      "workflow_transitions_total",
			Help:      "Total verification workflow transitions by target state.",
		},
		[]string{"state"},
	)

	// WorkflowDecisionsTotal counts terminal workflow outcomes.
	WorkflowDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scamshield",
			Name:      "workflow_decisions_total",
			Help:      "Total terminal workflow decisions by outcome.",
		},
		[]string{"outcome"},
	)

	// AlertsRaisedTotal counts alerts raised for human review.
	AlertsRaisedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scamshield",
			Name:      "alerts_raised_total",
			Help:      "Total alerts raised for human review.",
		},
	)

	// AlertDecisionsTotal counts reviewer decisions by outcome and whether
	// the decision was applied or lost a race to an earlier one.
	AlertDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scamshield",
			Name:      "alert_decisions_total",
			Help:      "Total reviewer decisions on alerts by decision and result.",
		},
		[]string{"decision", "result"},
	)

	// QuizOutcomesTotal counts quiz scoring outcomes.
	QuizOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scamshield",
			Name:      "quiz_outcomes_total",
			Help:      "Total quiz sessions scored by decision.",
		},
		[]string{"decision"},
	)

	// AIFallbacksTotal counts advisory AI calls that degraded to fallback content.
	AIFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scamshield",
			Name:      "ai_fallbacks_total",
			Help:      "Total advisory AI calls that fell back by operation.",
		},
		[]string{"operation"},
	)

	// ActiveSessions tracks currently live verification sessions.
	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scamshield",
			Name:      "active_sessions",
			Help:      "Number of currently active verification sessions.",
		},
	)

	// ActiveWebSocketClients tracks connected reviewer consoles.
	ActiveWebSocketClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scamshield",
			Name:      "active_websocket_clients",
			Help:      "Number of currently connected WebSocket clients.",
		},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scamshield", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBIdleConnections tracks idle database connections.
	DBIdleConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "scamshield", Name: "db_idle_connections",
		Help: "Number of idle database connections.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PaymentsScoredTotal,
		ScoringDuration,
		WorkflowTransitionsTotal,
		WorkflowDecisionsTotal,
		AlertsRaisedTotal,
		AlertDecisionsTotal,
		QuizOutcomesTotal,
		AIFallbacksTotal,
		ActiveSessions,
		ActiveWebSocketClients,
		DBOpenConnections,
		DBIdleConnections,
	)
}

// Handler returns the /metrics HTTP handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// Middleware instruments HTTP requests with count and latency metrics.
// Uses the gin route pattern (not the raw path) to bound cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		status := c.Writer.Status()

		HTTPRequestsTotal.WithLabelValues(c.Request.Method, path, strconv.Itoa(status)).Inc()
		HTTPRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// CollectDBStats periodically exports sql.DB pool stats until ctx is done.
func CollectDBStats(ctx context.Context, db *sql.DB, interval time.Duration) {
	if db == nil {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBIdleConnections.Set(float64(stats.Idle))
		}
	}
}
