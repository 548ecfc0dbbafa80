package router

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/plausibility"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

type nopSink struct{}

func (nopSink) Submit(context.Context, model.SubmissionPayload) error { return nil }

func idleFeed(ctx context.Context) (<-chan string, func()) {
	return make(chan string), func() {}
}

func testRouter(t *testing.T) (http.Handler, *service.AuthService) {
	t.Helper()
	validator.Setup()
	cfg := &config.Config{GinMode: "test", JWTSecret: "test", JWTExpiry: time.Hour}
	auth := service.NewAuthService(cfg)
	svc, err := service.NewSessionService(cfg, []model.Question{
		{ID: 1, Prompt: "Capital of France?", Kind: model.KindSingleChoice, Options: []string{"Paris", "Rome"}},
	}, service.SessionDeps{Checker: plausibility.BypassChecker{}, Sink: nopSink{}}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)

	log := zerolog.Nop()
	handlers := &Handlers{
		Auth:    handler.NewAuthHandler(auth, log),
		Session: handler.NewSessionHandler(svc, auth, log),
		WS:      handler.NewWSHandler(svc, log, nil),
		Monitor: handler.NewMonitorHandler(svc, idleFeed, log),
		System:  handler.NewSystemHandler(nil, svc, log),
		Health: handler.NewHealthHandler(map[string]handler.Pinger{
			"redis": func(context.Context) error { return errors.New("not configured") },
		}),
	}
	return SetupRouter(Deps{Auth: auth, Log: log}, handlers, cfg), auth
}

func do(r http.Handler, method, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_SessionRoutes(t *testing.T) {
	r, _ := testRouter(t)

	w := do(r, http.MethodPost, "/api/v1/sessions", "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var body struct {
		Data struct {
			SessionID string `json:"session_id"`
			Token     string `json:"token"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))

	path := "/api/v1/sessions/" + body.Data.SessionID
	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, path, "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, path, body.Data.Token).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, path+"?token="+body.Data.Token, "").Code)

	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/v1/admin/sessions", body.Data.Token).Code)
}

func TestRouter_AdminRoutesNeedAdminToken(t *testing.T) {
	r, auth := testRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/admin/sessions", "").Code)

	token, err := auth.GenerateSessionToken("x")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/v1/admin/sessions", token).Code)

	// no archive handler is wired in this router
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/admin/submissions", "").Code)
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r, _ := testRouter(t)

	w := do(r, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"degraded"`)

	w = do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
