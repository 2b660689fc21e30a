package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.Counter.GetValue()
}

func TestMiddleware_CountsRequests(t *testing.T) {
	HTTPRequestsTotal.Reset()
	HTTPRequestDuration.Reset()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/payments/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/tx_1", nil))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/payments/tx_2", nil))

	// Both requests land on the route pattern, not the raw paths.
	c, err := HTTPRequestsTotal.GetMetricWithLabelValues("GET", "/payments/:id", "200")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	if got := counterValue(t, c); got != 2.0 {
		t.Errorf("expected counter value 2, got %f", got)
	}
}

func TestMiddleware_UnmatchedRoute(t *testing.T) {
	HTTPRequestsTotal.Reset()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/no/such/route", nil))

	c, err := HTTPRequestsTotal.GetMetricWithLabelValues("GET", "unmatched", "404")
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues failed: %v", err)
	}
	if got := counterValue(t, c); got != 1.0 {
		t.Errorf("expected counter value 1, got %f", got)
	}
}

func TestMiddleware_ObservesDuration(t *testing.T) {
	HTTPRequestDuration.Reset()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	ch := make(chan prometheus.Metric, 10)
	HTTPRequestDuration.Collect(ch)
	close(ch)

	found := false
	for metric := range ch {
		m := &dto.Metric{}
		_ = metric.Write(m)
		if m.Histogram != nil && m.Histogram.GetSampleCount() == 1 {
			found = true
		}
	}
	if !found {
		t.Error("expected histogram with 1 sample")
	}
}

func TestHandler_ServesRegisteredMetrics(t *testing.T) {
	PaymentsScoredTotal.WithLabelValues("low").Inc()

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "scamshield_payments_scored_total") {
		t.Error("expected payments_scored_total in exposition output")
	}
}

func TestMetrics_Registered(t *testing.T) {
	names := []string{
		"scamshield_payments_scored_total",
		"scamshield_workflow_transitions_total",
		"scamshield_workflow_decisions_total",
		"scamshield_alerts_raised_total",
		"scamshield_alert_decisions_total",
		"scamshield_quiz_outcomes_total",
	}

	// Touch each so Gather has samples to report.
	PaymentsScoredTotal.WithLabelValues("high").Inc()
	WorkflowTransitionsTotal.WithLabelValues("final_pending").Inc()
	WorkflowDecisionsTotal.WithLabelValues("approve").Inc()
	AlertsRaisedTotal.Inc()
	AlertDecisionsTotal.WithLabelValues("release", "applied").Inc()
	QuizOutcomesTotal.WithLabelValues("pass").Inc()

	gathered, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	found := make(map[string]bool)
	for _, mf := range gathered {
		found[mf.GetName()] = true
	}
	for _, name := range names {
		if !found[name] {
			t.Errorf("metric %s not registered", name)
		}
	}
}
