package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("failed to read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{100, "1xx"},
		{200, "2xx"},
		{301, "3xx"},
		{400, "4xx"},
		{429, "4xx"},
		{500, "5xx"},
	}

	for _, tt := range tests {
		if got := statusBucket(tt.code); got != tt.want {
			t.Errorf("statusBucket(%d) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestTier(t *testing.T) {
	if Tier(domain.RecommendBlock) != "block" || Tier(domain.RecommendProcess) != "process" {
		t.Error("unexpected tier labels")
	}
	if Tier("whatever") != "unknown" {
		t.Error("expected unknown tier")
	}
}

func TestRecorder(t *testing.T) {
	rec := NewRecorder()

	before := counterValue(t, DetectionsTotal.WithLabelValues("true"))
	rec.ObserveDetection(&domain.FraudDetectionResult{
		IsFraudPredicted: true,
		FraudProbability: 0.91,
		Recommendation:   domain.RecommendBlock,
	})
	if got := counterValue(t, DetectionsTotal.WithLabelValues("true")); got != before+1 {
		t.Errorf("expected detections to increase by 1, got %v -> %v", before, got)
	}

	failedBefore := counterValue(t, DetectionFailuresTotal.WithLabelValues("invalid"))
	rec.ObserveFailure(&domain.ValidationError{Field: "hour"})
	if got := counterValue(t, DetectionFailuresTotal.WithLabelValues("invalid")); got != failedBefore+1 {
		t.Errorf("expected invalid failures to increase by 1, got %v", got)
	}

	itemsBefore := counterValue(t, BatchItemFailuresTotal)
	rec.ObserveBatch(&domain.BatchResult{
		BatchSize: 2,
		Results: []domain.BatchItem{
			{TransactionIndex: 0, Result: &domain.FraudDetectionResult{}},
			{TransactionIndex: 1, Error: "Missing required field: hour"},
		},
	})
	if got := counterValue(t, BatchItemFailuresTotal); got != itemsBefore+1 {
		t.Errorf("expected one item failure recorded, got %v", got-itemsBefore)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	r.Handle("/metrics", Handler())

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ping", nil))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	for _, name := range []string{
		"kestrel_loaded_indicators",
		`kestrel_http_requests_total{method="GET",path="/ping",status="4xx"}`,
	} {
		if !strings.Contains(body, name) {
			t.Errorf("expected metrics output to contain %s", name)
		}
	}
}

func TestWatchCache(t *testing.T) {
	reg := prometheus.NewRegistry()
	entries := 3
	if err := watchCache(reg, func() (int, int) { return entries, 10 }); err != nil {
		t.Fatalf("watchCache failed: %v", err)
	}
	entries = 5

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	got := map[string]float64{}
	for _, f := range families {
		got[f.GetName()] = f.GetMetric()[0].GetGauge().GetValue()
	}
	if got["kestrel_cache_entries"] != 5 || got["kestrel_cache_capacity"] != 10 {
		t.Errorf("unexpected cache gauges: %v", got)
	}

	if err := watchCache(reg, func() (int, int) { return 0, 0 }); err == nil {
		t.Error("expected duplicate registration to fail")
	}
}
