package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"route", "method"},
	)

	AIRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_requests_total",
			Help: "Total number of AI requests by provider, operation and outcome",
		},
		[]string{"provider", "operation", "outcome"},
	)
	AIRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ai_request_duration_seconds",
			Help:    "AI request duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"provider", "operation"},
	)
	AITokensTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ai_tokens_total",
			Help: "Tokens sent to and received from AI providers",
		},
		[]string{"provider", "direction"},
	)
	CircuitBreakerStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open)",
		},
		[]string{"name"},
	)

	InterviewSessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_sessions_started_total",
			Help: "Interview sessions started by role",
		},
		[]string{"role"},
	)
	InterviewSessionsFinished = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_sessions_finished_total",
			Help: "Interview sessions finished by reason (sentinel, max_turns)",
		},
		[]string{"reason"},
	)
	InterviewTurnsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_turns_total",
			Help: "Interview turns by kind (chat, code) and outcome",
		},
		[]string{"kind", "outcome"},
	)
	RetrievalFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "interview_retrieval_failures_total",
			Help: "Question retrievals that failed and were skipped",
		},
	)
	RegistryEvictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_registry_evictions_total",
			Help: "Sessions dropped from the registry by reason (capacity, ttl)",
		},
		[]string{"reason"},
	)
	RegistrySessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "session_registry_sessions",
			Help: "Sessions currently held by the in-memory registry",
		},
	)

	ReportVerdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_report_verdicts_total",
			Help: "Evaluation reports by verdict",
		},
		[]string{"verdict"},
	)
	ReportScoreHistogram = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "interview_report_score",
			Help:    "Distribution of evaluation scores ([0,100])",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
	)
	ReportsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "interview_reports_published_total",
			Help: "Report events published by outcome",
		},
		[]string{"outcome"},
	)
)

var initOnce sync.Once

// InitMetrics registers all collectors with the default registry. Safe to call more than once.
func InitMetrics() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			HTTPRequestsTotal,
			HTTPRequestDuration,
			AIRequestsTotal,
			AIRequestDuration,
			AITokensTotal,
			CircuitBreakerStatus,
			InterviewSessionsStarted,
			InterviewSessionsFinished,
			InterviewTurnsTotal,
			RetrievalFailuresTotal,
			RegistryEvictionsTotal,
			RegistrySessions,
			ReportVerdictsTotal,
			ReportScoreHistogram,
			ReportsPublishedTotal,
		)
	})
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, http.StatusText(status)).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// ObserveAIRequest records one provider call.
func ObserveAIRequest(provider, operation, outcome string, d time.Duration) {
	AIRequestsTotal.WithLabelValues(provider, operation, outcome).Inc()
	AIRequestDuration.WithLabelValues(provider, operation).Observe(d.Seconds())
}

// AddAITokens records prompt and completion token counts.
func AddAITokens(provider string, prompt, completion int) {
	if prompt > 0 {
		AITokensTotal.WithLabelValues(provider, "prompt").Add(float64(prompt))
	}
	if completion > 0 {
		AITokensTotal.WithLabelValues(provider, "completion").Add(float64(completion))
	}
}

// RecordCircuitBreakerStatus publishes the breaker state.
func RecordCircuitBreakerStatus(name string, state int) {
	CircuitBreakerStatus.WithLabelValues(name).Set(float64(state))
}

// SessionStarted counts a new interview.
func SessionStarted(role string) { InterviewSessionsStarted.WithLabelValues(role).Inc() }

// SessionFinished counts a finished interview.
func SessionFinished(reason string) { InterviewSessionsFinished.WithLabelValues(reason).Inc() }

// TurnCompleted counts one submitted turn.
func TurnCompleted(kind, outcome string) { InterviewTurnsTotal.WithLabelValues(kind, outcome).Inc() }

// RetrievalFailed counts a skipped question retrieval.
func RetrievalFailed() { RetrievalFailuresTotal.Inc() }

// RegistryEvicted counts a session dropped from the registry.
func RegistryEvicted(reason string) { RegistryEvictionsTotal.WithLabelValues(reason).Inc() }

// ObserveReport records an evaluation outcome.
func ObserveReport(verdict string, score int) {
	ReportVerdictsTotal.WithLabelValues(verdict).Inc()
	if score >= 0 && score <= 100 {
		ReportScoreHistogram.Observe(float64(score))
	}
}

// ReportPublished counts a report event publish attempt.
func ReportPublished(outcome string) { ReportsPublishedTotal.WithLabelValues(outcome).Inc() }
