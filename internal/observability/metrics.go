package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var routeLabels = []string{"method", "route", "status"}

var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportql_http_requests_total",
			Help: "Total number of HTTP requests by route pattern.",
		},
		routeLabels,
	)
	httpRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "reportql_http_request_duration_seconds",
			Help:    "HTTP request latency by route pattern. Report queries include model calls.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		routeLabels,
	)
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportql_translations_total",
			Help: "Total number of translations by confirmation outcome.",
		},
		[]string{"confirmation"},
	)
	phaseDegradedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportql_translation_phase_degraded_total",
			Help: "Total number of translation phases that fell back to their permissive default.",
		},
		[]string{"phase"},
	)
	executionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportql_executions_total",
			Help: "Total number of execution loops by outcome.",
		},
		[]string{"outcome"},
	)
	executionRetries = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reportql_execution_retries",
			Help:    "Corrections applied per execution loop.",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)
	executionLatencyMs = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "reportql_execution_latency_ms",
			Help:    "Execution loop latency in milliseconds, including corrections.",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000},
		},
	)
	pipelineRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportql_pipeline_requests_total",
			Help: "Total number of pipeline requests by result.",
		},
		[]string{"result"},
	)
	confirmationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reportql_confirmations_total",
			Help: "Total number of confirmation prompts requested and replies applied.",
		},
		[]string{"event"},
	)
	mappingsSkippedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reportql_confirmation_mappings_skipped_total",
			Help: "Total number of confirmation mappings skipped for empty tokens or values.",
		},
	)
	liveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "reportql_sessions_live",
			Help: "Number of pipeline sessions currently held by the session store.",
		},
	)
	sessionsSweptTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reportql_sessions_swept_total",
			Help: "Total number of expired pipeline sessions removed by the sweeper.",
		},
	)
	sessionSweepFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reportql_session_sweep_failures_total",
			Help: "Total number of failed session sweeps.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestsTotal,
		httpRequestDurationSeconds,
		translationsTotal,
		phaseDegradedTotal,
		executionsTotal,
		executionRetries,
		executionLatencyMs,
		pipelineRequestsTotal,
		confirmationsTotal,
		mappingsSkippedTotal,
		liveSessions,
		sessionsSweptTotal,
		sessionSweepFailuresTotal,
	)
}

func ObserveTranslation(requiresConfirmation, populationDegraded, shapeDegraded bool) {
	if requiresConfirmation {
		translationsTotal.WithLabelValues("required").Inc()
	} else {
		translationsTotal.WithLabelValues("skipped").Inc()
	}
	if populationDegraded {
		phaseDegradedTotal.WithLabelValues("population").Inc()
	}
	if shapeDegraded {
		phaseDegradedTotal.WithLabelValues("shape").Inc()
	}
}

func ObserveExecution(success bool, retries int, elapsed time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	executionsTotal.WithLabelValues(outcome).Inc()
	executionRetries.Observe(float64(retries))
	executionLatencyMs.Observe(float64(elapsed.Milliseconds()))
}

// ObservePipelineResult counts one pipeline response. result is one of
// "confirmation", "executed" or an error kind.
func ObservePipelineResult(result string) {
	pipelineRequestsTotal.WithLabelValues(result).Inc()
}

func ObserveSessionSweep(removed int, err error) {
	if err != nil {
		sessionSweepFailuresTotal.Inc()
		return
	}
	if removed > 0 {
		sessionsSweptTotal.Add(float64(removed))
	}
}

func ObserveConfirmationRequested() {
	confirmationsTotal.WithLabelValues("requested").Inc()
}

func ObserveConfirmationApplied(skipped int) {
	confirmationsTotal.WithLabelValues("applied").Inc()
	if skipped > 0 {
		mappingsSkippedTotal.Add(float64(skipped))
	}
}

func SetLiveSessions(count int) {
	if count < 0 {
		count = 0
	}
	liveSessions.Set(float64(count))
}
