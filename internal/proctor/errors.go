package proctor

import (
	"errors"
	"fmt"
)

var (
	// ErrValidationUnavailable means the plausibility checker could not be
	// reached. Progression is blocked; the user should retry.
	ErrValidationUnavailable = errors.New("validation unavailable")
	ErrInvalidPhase          = errors.New("operation not allowed in current phase")
	ErrAlreadySubmitted      = errors.New("session already submitted")
	ErrInvalidAnswer         = errors.New("invalid answer")
	ErrUnknownQuestion       = errors.New("unknown question")
	ErrNoQuestions           = errors.New("question bank is empty")
	ErrNothingToRetry        = errors.New("no failed submission to retry")
	ErrClosed                = errors.New("session closed")
)

// FieldError is a negative plausibility verdict for one identity field.
type FieldError struct {
	Field  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Field, e.Reason)
}
