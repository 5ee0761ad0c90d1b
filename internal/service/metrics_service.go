package service

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsService encapsulates Prometheus instrumentation for the API
// and the ledger gateway.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	ledgerDuration  *prometheus.HistogramVec
	ledgerTotal     *prometheus.CounterVec
	divergenceTotal *prometheus.CounterVec
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
}

// Ledger write result labels.
const (
	LedgerResultConfirmed = "confirmed"
	LedgerResultDiverged  = "diverged"
)

// NewMetricsService registers core Prometheus collectors.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	ledgerDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ledger_write_duration_seconds",
		Help:    "Time from transaction submission to confirmation",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
	}, []string{"operation"})

	ledgerTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_writes_total",
		Help: "Ledger writes by operation and result",
	}, []string{"operation", "result"})

	divergenceTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_divergences_total",
		Help: "Recorded database/ledger divergences by operation",
	}, []string{"operation"})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, ledgerDuration, ledgerTotal, divergenceTotal, cacheHits, cacheMisses, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		ledgerDuration:  ledgerDuration,
		ledgerTotal:     ledgerTotal,
		divergenceTotal: divergenceTotal,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
	}
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// ObserveLedgerWrite records a ledger write outcome and its duration.
func (m *MetricsService) ObserveLedgerWrite(operation, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.ledgerTotal.WithLabelValues(operation, result).Inc()
	if result == LedgerResultConfirmed {
		m.ledgerDuration.WithLabelValues(operation).Observe(duration.Seconds())
	}
}

// RecordDivergence counts a new divergence row.
func (m *MetricsService) RecordDivergence(operation string) {
	if m == nil {
		return
	}
	m.divergenceTotal.WithLabelValues(operation).Inc()
}

// RecordCacheOperation records a cache hit or miss.
func (m *MetricsService) RecordCacheOperation(hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.cacheHits.Inc()
	} else {
		m.cacheMisses.Inc()
	}
}
