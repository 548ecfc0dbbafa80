// Package metrics provides Prometheus instrumentation for the proctor service.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proctor",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "proctor",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// AnomaliesTotal counts recorded anomalies by type.
	AnomaliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proctor",
			Name:      "anomalies_total",
			Help:      "Total anomalies recorded by type.",
		},
		[]string{"type"},
	)

	PhaseTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proctor",
			Name:      "phase_transitions_total",
			Help:      "Session phase transitions by source and target phase.",
		},
		[]string{"from", "to"},
	)

	SubmissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proctor",
			Name:      "submissions_total",
			Help:      "Submission delivery attempts by result.",
		},
		[]string{"result"},
	)

	AnalysesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "proctor",
			Name:      "risk_analyses_total",
			Help:      "Risk analyses by result and risk level.",
		},
		[]string{"result", "level"},
	)

	// FinalAnomalyScore observes the anomaly score of every successful submission.
	FinalAnomalyScore = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "proctor",
		Name:      "final_anomaly_score",
		Help:      "Anomaly score at submission.",
		Buckets:   []float64{0, 10, 20, 30, 40, 50, 60, 80, 100},
	})

	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "proctor",
		Name:      "active_sessions",
		Help:      "Number of sessions held in memory.",
	})

	ActiveWebSocketClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "proctor",
		Name:      "active_websocket_clients",
		Help:      "Number of currently connected session streams.",
	})

	DroppedEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctor",
		Name:      "dropped_events_total",
		Help:      "Events dropped because a bounded buffer was full.",
	}, []string{"buffer"})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		AnomaliesTotal,
		PhaseTransitionsTotal,
		SubmissionsTotal,
		AnalysesTotal,
		FinalAnomalyScore,
		ActiveSessions,
		ActiveWebSocketClients,
		DroppedEventsTotal,
	)
}

// Recorder turns session audit events into metrics. It satisfies
// proctor.EventSink.
type Recorder struct{}

var _ proctor.EventSink = Recorder{}

func (Recorder) AnomalyRecorded(_ string, rec proctor.Recorded) {
	AnomaliesTotal.WithLabelValues(string(rec.Event.Type)).Inc()
}

func (Recorder) PhaseChanged(_ string, from, to model.Phase) {
	PhaseTransitionsTotal.WithLabelValues(phaseLabel(from), phaseLabel(to)).Inc()
}

func (Recorder) SubmissionFinished(_ string, state model.SubmissionState) {
	SubmissionsTotal.WithLabelValues(string(state.Status)).Inc()
}

func (Recorder) AnalysisFinished(_ string, state model.AnalysisState) {
	level := string(state.RiskLevel)
	if level == "" {
		level = "unknown"
	}
	AnalysesTotal.WithLabelValues(string(state.Status), level).Inc()
}

// ObserveSubmittedScore records the anomaly score of a delivered submission.
func ObserveSubmittedScore(score int) {
	FinalAnomalyScore.Observe(float64(score))
}

func phaseLabel(p model.Phase) string {
	if p == "" {
		return "none"
	}
	return string(p)
}

// Middleware records request count and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler exposes the default registry.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
