// Package metrics provides Prometheus instrumentation for Kestrel.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// DetectionsTotal counts scored transactions by verdict.
	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "detections_total",
			Help:      "Total scored transactions by fraud verdict.",
		},
		[]string{"fraud"},
	)

	// RecommendationsTotal counts issued recommendations by tier.
	RecommendationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "recommendations_total",
			Help:      "Total recommendations issued by tier.",
		},
		[]string{"tier"},
	)

	// FraudProbability observes the distribution of final probabilities.
	FraudProbability = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "fraud_probability",
			Help:      "Distribution of final ensemble fraud probabilities.",
			Buckets:   prometheus.LinearBuckets(0.1, 0.1, 9),
		},
	)

	// DetectionFailuresTotal counts transactions that could not be scored.
	DetectionFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "detection_failures_total",
			Help:      "Total transactions that could not be scored, by reason.",
		},
		[]string{"reason"},
	)

	// BatchSize observes the number of transactions per batch call.
	BatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kestrel",
			Name:      "batch_size",
			Help:      "Transactions per batch detection call.",
			Buckets:   []float64{1, 5, 10, 25, 50, 75, 100},
		},
	)

	// BatchItemFailuresTotal counts failed items inside batches.
	BatchItemFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kestrel",
			Name:      "batch_item_failures_total",
			Help:      "Total batch items converted to error outcomes.",
		},
	)

	// LoadedIndicators tracks the number of active risk indicators.
	LoadedIndicators = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kestrel",
			Name:      "loaded_indicators",
			Help:      "Number of risk indicators currently loaded.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		DetectionsTotal,
		RecommendationsTotal,
		FraudProbability,
		DetectionFailuresTotal,
		BatchSize,
		BatchItemFailuresTotal,
		LoadedIndicators,
	)
}

// WatchCache exports the in-process cache occupancy, sampled at scrape time.
func WatchCache(stats func() (entries, capacity int)) error {
	return watchCache(prometheus.DefaultRegisterer, stats)
}

func watchCache(reg prometheus.Registerer, stats func() (int, int)) error {
	entries := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "kestrel",
		Name:      "cache_entries",
		Help:      "Entries held by the in-process cache.",
	}, func() float64 {
		n, _ := stats()
		return float64(n)
	})
	capacity := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "kestrel",
		Name:      "cache_capacity",
		Help:      "Maximum entries the in-process cache holds.",
	}, func() float64 {
		_, c := stats()
		return float64(c)
	})
	return errors.Join(reg.Register(entries), reg.Register(capacity))
}

// Recorder feeds detection outcomes into the package collectors.
type Recorder struct{}

// NewRecorder returns a Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (*Recorder) ObserveDetection(r *domain.FraudDetectionResult) {
	DetectionsTotal.WithLabelValues(strconv.FormatBool(r.IsFraudPredicted)).Inc()
	RecommendationsTotal.WithLabelValues(Tier(r.Recommendation)).Inc()
	FraudProbability.Observe(r.FraudProbability)
}

func (*Recorder) ObserveFailure(err error) {
	DetectionFailuresTotal.WithLabelValues(failureReason(err)).Inc()
}

func (*Recorder) ObserveBatch(b *domain.BatchResult) {
	BatchSize.Observe(float64(b.BatchSize))
	BatchItemFailuresTotal.Add(float64(b.Failed()))
}

// Tier maps a recommendation to a short label value.
func Tier(recommendation string) string {
	switch recommendation {
	case domain.RecommendBlock:
		return "block"
	case domain.RecommendVerify:
		return "verify"
	case domain.RecommendMonitor:
		return "monitor"
	case domain.RecommendProcess:
		return "process"
	}
	return "unknown"
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidTransaction):
		return "invalid"
	case errors.Is(err, domain.ErrNumeric):
		return "numeric"
	}
	return "internal"
}

// Middleware records request counts and latency by route pattern.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}

		HTTPRequestsTotal.WithLabelValues(r.Method, path, statusBucket(status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.Handler()
}

func statusBucket(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	case code >= 200:
		return "2xx"
	default:
		return "1xx"
	}
}
