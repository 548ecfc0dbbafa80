package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// SessionHandler serves the quiz REST surface.
type SessionHandler struct {
	sessions *service.SessionService
	auth     *service.AuthService
	log      zerolog.Logger
}

func NewSessionHandler(sessions *service.SessionService, auth *service.AuthService, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		auth:     auth,
		log:      log.With().Str("component", "session_handler").Logger(),
	}
}

type createSessionResponse struct {
	SessionID  string                   `json:"session_id"`
	Token      string                   `json:"token"`
	Questions  []model.Question         `json:"questions"`
	Timing     proctor.TimingPolicy     `json:"timing_policy"`
	Navigation proctor.NavigationPolicy `json:"navigation"`
	Durations  proctor.DurationByKind   `json:"durations,omitempty"`
	SessionSec int                      `json:"session_seconds,omitempty"`
}

type answerRequest struct {
	QuestionID int          `json:"question_id" binding:"required"`
	Answer     model.Answer `json:"answer"`
}

type navigationResponse struct {
	Applied  bool             `json:"applied"`
	Snapshot proctor.Snapshot `json:"snapshot"`
}

// Create godoc
// POST /api/v1/sessions
func (h *SessionHandler) Create(c *gin.Context) {
	sess, err := h.sessions.Create()
	if err != nil {
		failWith(c, err, response.ErrInternal)
		return
	}

	token, err := h.auth.GenerateSessionToken(sess.ID())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to sign session token")
		_ = h.sessions.Remove(sess.ID())
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}

	policy := h.sessions.Policy()
	resp := createSessionResponse{
		SessionID:  sess.ID(),
		Token:      token,
		Questions:  sess.Questions(),
		Timing:     policy.Timing,
		Navigation: policy.Navigation,
	}
	if policy.Timing == proctor.TimingSession {
		resp.SessionSec = policy.SessionSeconds
	} else {
		resp.Durations = policy.Durations
	}
	response.Success(c, http.StatusCreated, resp)
}

// Start godoc
// POST /api/v1/sessions/:id/start
func (h *SessionHandler) Start(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var details model.UserDetails
	if fields := validator.Bind(c, &details); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := sess.Start(c.Request.Context(), details); err != nil {
		if errors.Is(err, proctor.ErrValidationUnavailable) {
			h.log.Warn().Err(err).Str("session_id", sess.ID()).Msg("Identity check unavailable")
		}
		failWith(c, err, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// Get godoc
// GET /api/v1/sessions/:id
func (h *SessionHandler) Get(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// Answer godoc
// POST /api/v1/sessions/:id/answers
func (h *SessionHandler) Answer(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}

	var req answerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	applied, err := sess.Answer(req.QuestionID, req.Answer)
	if err != nil {
		failWith(c, err, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"applied": applied})
}

// Advance godoc
// POST /api/v1/sessions/:id/advance
func (h *SessionHandler) Advance(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Advance(context.WithoutCancel(c.Request.Context())); err != nil {
		h.submissionFailure(c, sess, err)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// Previous godoc
// POST /api/v1/sessions/:id/previous
func (h *SessionHandler) Previous(c *gin.Context) {
	h.navigate(c, func(s *proctor.Session) bool { return s.Previous() })
}

// Review godoc
// POST /api/v1/sessions/:id/review
func (h *SessionHandler) Review(c *gin.Context) {
	h.navigate(c, func(s *proctor.Session) bool { return s.Review() })
}

// Edit godoc
// POST /api/v1/sessions/:id/edit/:index
func (h *SessionHandler) Edit(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}
	h.navigate(c, func(s *proctor.Session) bool { return s.Edit(index) })
}

// Submit godoc
// POST /api/v1/sessions/:id/submit
func (h *SessionHandler) Submit(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Submit(context.WithoutCancel(c.Request.Context())); err != nil {
		h.submissionFailure(c, sess, err)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// RetrySubmission godoc
// POST /api/v1/sessions/:id/submit/retry
func (h *SessionHandler) RetrySubmission(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.RetrySubmission(context.WithoutCancel(c.Request.Context())); err != nil {
		h.submissionFailure(c, sess, err)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// Restart godoc
// POST /api/v1/sessions/:id/restart
func (h *SessionHandler) Restart(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	if err := sess.Restart(); err != nil {
		failWith(c, err, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot())
}

// Analysis godoc
// GET /api/v1/sessions/:id/analysis
func (h *SessionHandler) Analysis(c *gin.Context) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, sess.Snapshot().Analysis)
}

func (h *SessionHandler) navigate(c *gin.Context, op func(*proctor.Session) bool) {
	sess, ok := h.session(c)
	if !ok {
		return
	}
	applied := op(sess)
	response.Success(c, http.StatusOK, navigationResponse{Applied: applied, Snapshot: sess.Snapshot()})
}

// submissionFailure reports a failed delivery with the message the session
// stored for the user. Phase errors keep their own mapping.
func (h *SessionHandler) submissionFailure(c *gin.Context, sess *proctor.Session, err error) {
	e := resolveError(err, response.ErrSubmissionFailed)
	if e.Code != response.ErrSubmissionFailed {
		failWith(c, err, response.ErrSubmissionFailed)
		return
	}
	h.log.Warn().Err(err).Str("session_id", sess.ID()).Msg("Submission delivery failed")
	response.FailWithMessage(c, e.Status, e.Code, sess.Snapshot().Submission.Error)
}

func (h *SessionHandler) session(c *gin.Context) (*proctor.Session, bool) {
	sess, err := h.sessions.Get(c.Param("id"))
	if err != nil {
		failWith(c, err, response.ErrInternal)
		return nil, false
	}
	return sess, true
}
