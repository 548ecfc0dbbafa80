package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrAdminDisabled      ErrCode = "ADMIN_LOGIN_DISABLED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrSessionAccessOnly ErrCode = "SESSION_ACCESS_ONLY"
	ErrAdminAccessOnly   ErrCode = "ADMIN_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"

	// ─── Session-specific ──────────────────────────────────────────────
	ErrIdentityRejected      ErrCode = "IDENTITY_REJECTED"
	ErrValidationUnavailable ErrCode = "VALIDATION_UNAVAILABLE"
	ErrInvalidPhase          ErrCode = "INVALID_PHASE"
	ErrAlreadySubmitted      ErrCode = "ALREADY_SUBMITTED"
	ErrInvalidAnswer         ErrCode = "INVALID_ANSWER"
	ErrUnknownQuestion       ErrCode = "UNKNOWN_QUESTION"
	ErrNothingToRetry        ErrCode = "NOTHING_TO_RETRY"
	ErrSubmissionFailed      ErrCode = "SUBMISSION_FAILED"
	ErrNavigationDenied      ErrCode = "NAVIGATION_DENIED"
	ErrTooManySessions       ErrCode = "TOO_MANY_SESSIONS"
	ErrSessionClosed         ErrCode = "SESSION_CLOSED"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrAdminDisabled:
		return "Admin login is not configured on this server."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid or expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have access to this resource."
	case ErrSessionAccessOnly:
		return "This resource is restricted to the session owner."
	case ErrAdminAccessOnly:
		return "This resource is restricted to administrators."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."

	// ─── Session-specific ──────────────────────────────────────────────
	case ErrIdentityRejected:
		return "The details you entered do not look valid."
	case ErrValidationUnavailable:
		return "Could not validate your details right now. Please try again."
	case ErrInvalidPhase:
		return "This action is not allowed at this point of the quiz."
	case ErrAlreadySubmitted:
		return "Your answers have already been submitted."
	case ErrInvalidAnswer:
		return "The answer does not fit this question."
	case ErrUnknownQuestion:
		return "No such question in this quiz."
	case ErrNothingToRetry:
		return "There is no failed submission to retry."
	case ErrSubmissionFailed:
		return "Failed to submit your answers. Please try again."
	case ErrNavigationDenied:
		return "You cannot move there from the current question."
	case ErrTooManySessions:
		return "The server is at capacity. Please try again later."
	case ErrSessionClosed:
		return "This session has ended."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please slow down."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."

	default:
		return "An unknown error occurred."
	}
}
