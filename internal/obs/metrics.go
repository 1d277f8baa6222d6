package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Общие HTTP-метрики
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Domain counters. They are safe to use before Init; Init only exposes them.
var (
	AuditWriteFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "casedesk_audit_write_failures_total",
		Help: "Audit entries that could not be persisted.",
	})

	SendGateDenials = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casedesk_send_gate_denials_total",
			Help: "External send attempts rejected by the gate, by error code.",
		},
		[]string{"code"},
	)

	DraftDispositions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casedesk_draft_dispositions_total",
			Help: "Committed draft reviews, by resulting status.",
		},
		[]string{"status"},
	)

	AnomalyFlags = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "casedesk_anomaly_flags_total",
			Help: "Reviewers flagged by anomaly detectors.",
		},
		[]string{"detector"},
	)
)

var initOnce sync.Once

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration,
			AuditWriteFailures, SendGateDenials, DraftDispositions, AnomalyFlags,
		)
	})
}

// Хэндлер Prometheus.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Instrument records in-flight, count and latency per canonical route.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		defer httpInFlight.Dec()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(sw, r)

		status := strconv.Itoa(sw.code)
		httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	})
}

var subResources = map[string]bool{
	"drafts/approve":  true,
	"cases/creditors": true,
	"cases/drafts":    true,
}

// CanonicalPath collapses resource identifiers so label cardinality stays bounded.
func CanonicalPath(raw string) string {
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[:i]
	}
	if raw == "" {
		return "/"
	}
	parts := strings.Split(strings.TrimPrefix(raw, "/"), "/")
	if len(parts) >= 3 && parts[0] == "v1" {
		switch parts[1] {
		case "cases", "drafts":
			if len(parts) == 3 || len(parts) == 4 && subResources[parts[1]+"/"+parts[3]] {
				parts[2] = ":id"
			}
		}
	}
	return "/" + strings.Join(parts, "/")
}

// statusWriter: локальная копия, чтобы знать код ответа.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
