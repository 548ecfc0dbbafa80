package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

func TestResolveError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		fallback   response.ErrCode
		wantStatus int
		wantCode   response.ErrCode
	}{
		{"field", &proctor.FieldError{Field: "email", Reason: "disposable"}, response.ErrInternal, http.StatusUnprocessableEntity, response.ErrIdentityRejected},
		{"not found", service.ErrSessionNotFound, response.ErrInternal, http.StatusNotFound, response.ErrNotFound},
		{"full", service.ErrTooManySessions, response.ErrInternal, http.StatusServiceUnavailable, response.ErrTooManySessions},
		{"shutdown", service.ErrServiceShutdown, response.ErrInternal, http.StatusServiceUnavailable, response.ErrTooManySessions},
		{"checker down", fmt.Errorf("name: %w", proctor.ErrValidationUnavailable), response.ErrInternal, http.StatusServiceUnavailable, response.ErrValidationUnavailable},
		{"phase", proctor.ErrInvalidPhase, response.ErrInternal, http.StatusConflict, response.ErrInvalidPhase},
		{"twice", proctor.ErrAlreadySubmitted, response.ErrSubmissionFailed, http.StatusConflict, response.ErrAlreadySubmitted},
		{"retry", proctor.ErrNothingToRetry, response.ErrSubmissionFailed, http.StatusConflict, response.ErrNothingToRetry},
		{"question", fmt.Errorf("%w: 7", proctor.ErrUnknownQuestion), response.ErrInternal, http.StatusNotFound, response.ErrUnknownQuestion},
		{"closed", proctor.ErrClosed, response.ErrInternal, http.StatusGone, response.ErrSessionClosed},
		{"delivery", errors.New("503 from sheet"), response.ErrSubmissionFailed, http.StatusBadGateway, response.ErrSubmissionFailed},
		{"other", errors.New("boom"), response.ErrInternal, http.StatusInternalServerError, response.ErrInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := resolveError(tt.err, tt.fallback)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantCode, got.Code)
		})
	}
}

func TestResolveError_Fields(t *testing.T) {
	got := resolveError(&proctor.FieldError{Field: "fullName", Reason: "looks fake"}, response.ErrInternal)
	assert.Equal(t, map[string]string{"fullName": "looks fake"}, got.Fields)

	got = resolveError(fmt.Errorf("%w: too long", proctor.ErrInvalidAnswer), response.ErrInternal)
	assert.Equal(t, http.StatusUnprocessableEntity, got.Status)
	assert.Contains(t, got.Fields["answer"], "too long")
}
