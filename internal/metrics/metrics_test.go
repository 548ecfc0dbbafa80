package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

func TestStatusBucket(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{101, "1xx"},
		{200, "2xx"},
		{302, "3xx"},
		{422, "4xx"},
		{503, "5xx"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusBucket(tt.code), "code %d", tt.code)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder

	before := testutil.ToFloat64(AnomaliesTotal.WithLabelValues("Copy Attempt"))
	r.AnomalyRecorded("s", proctor.Recorded{Event: model.AnomalyEvent{Type: model.AnomalyCopyAttempt}})
	assert.Equal(t, before+1, testutil.ToFloat64(AnomaliesTotal.WithLabelValues("Copy Attempt")))

	before = testutil.ToFloat64(PhaseTransitionsTotal.WithLabelValues("idle", "active"))
	r.PhaseChanged("s", model.PhaseIdle, model.PhaseActive)
	assert.Equal(t, before+1, testutil.ToFloat64(PhaseTransitionsTotal.WithLabelValues("idle", "active")))

	before = testutil.ToFloat64(AnalysesTotal.WithLabelValues("failed", "unknown"))
	r.AnalysisFinished("s", model.AnalysisState{Status: model.AnalysisFailed})
	assert.Equal(t, before+1, testutil.ToFloat64(AnalysesTotal.WithLabelValues("failed", "unknown")))
}

func TestMetricsEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Middleware())
	r.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "proctor_active_websocket_clients")
	assert.Contains(t, w.Body.String(), "proctor_active_sessions")
}
