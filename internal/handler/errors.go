package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

// apiError is a domain error resolved to its HTTP shape.
type apiError struct {
	Status int
	Code   response.ErrCode
	Fields map[string]string
}

// resolveError maps session and registry errors. Anything unrecognised is
// reported with fallback, which callers pick per operation.
func resolveError(err error, fallback response.ErrCode) apiError {
	var fe *proctor.FieldError
	switch {
	case errors.As(err, &fe):
		return apiError{
			Status: http.StatusUnprocessableEntity,
			Code:   response.ErrIdentityRejected,
			Fields: map[string]string{fe.Field: fe.Reason},
		}
	case errors.Is(err, service.ErrSessionNotFound):
		return apiError{Status: http.StatusNotFound, Code: response.ErrNotFound}
	case errors.Is(err, service.ErrTooManySessions), errors.Is(err, service.ErrServiceShutdown):
		return apiError{Status: http.StatusServiceUnavailable, Code: response.ErrTooManySessions}
	case errors.Is(err, proctor.ErrValidationUnavailable):
		return apiError{Status: http.StatusServiceUnavailable, Code: response.ErrValidationUnavailable}
	case errors.Is(err, proctor.ErrInvalidPhase):
		return apiError{Status: http.StatusConflict, Code: response.ErrInvalidPhase}
	case errors.Is(err, proctor.ErrAlreadySubmitted):
		return apiError{Status: http.StatusConflict, Code: response.ErrAlreadySubmitted}
	case errors.Is(err, proctor.ErrNothingToRetry):
		return apiError{Status: http.StatusConflict, Code: response.ErrNothingToRetry}
	case errors.Is(err, proctor.ErrUnknownQuestion):
		return apiError{Status: http.StatusNotFound, Code: response.ErrUnknownQuestion}
	case errors.Is(err, proctor.ErrInvalidAnswer):
		return apiError{
			Status: http.StatusUnprocessableEntity,
			Code:   response.ErrInvalidAnswer,
			Fields: map[string]string{"answer": err.Error()},
		}
	case errors.Is(err, proctor.ErrClosed):
		return apiError{Status: http.StatusGone, Code: response.ErrSessionClosed}
	}

	if fallback == response.ErrSubmissionFailed {
		return apiError{Status: http.StatusBadGateway, Code: fallback}
	}
	return apiError{Status: http.StatusInternalServerError, Code: response.ErrInternal}
}

func failWith(c *gin.Context, err error, fallback response.ErrCode) {
	e := resolveError(err, fallback)
	if e.Fields != nil {
		response.FailWithFields(c, e.Status, e.Code, e.Fields)
		return
	}
	response.Fail(c, e.Status, e.Code)
}
