package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// SubmissionStore reads archived submissions.
type SubmissionStore interface {
	ListRecent(ctx context.Context, limit, offset int) ([]repository.SubmissionRecord, int, error)
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*repository.SubmissionRecord, error)
}

// TrailReader assembles the archived anomaly trail of a session.
type TrailReader interface {
	GetTrail(ctx context.Context, sessionID uuid.UUID) (*service.AnomalyTrail, error)
}

// AdminHandler serves the archive side of the admin API.
type AdminHandler struct {
	submissions SubmissionStore
	trails      TrailReader
	log         zerolog.Logger
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(submissions SubmissionStore, trails TrailReader, log zerolog.Logger) *AdminHandler {
	return &AdminHandler{
		submissions: submissions,
		trails:      trails,
		log:         log.With().Str("component", "admin_handler").Logger(),
	}
}

// ListSubmissions godoc
// GET /api/v1/admin/submissions?page=&per_page=
func (h *AdminHandler) ListSubmissions(c *gin.Context) {
	page := queryInt(c, "page", 1)
	if page < 1 {
		page = 1
	}
	perPage := queryInt(c, "per_page", defaultPerPage)
	if perPage < 1 || perPage > maxPerPage {
		perPage = defaultPerPage
	}

	records, total, err := h.submissions.ListRecent(c.Request.Context(), perPage, (page-1)*perPage)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list submissions")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	if records == nil {
		records = []repository.SubmissionRecord{}
	}
	response.SuccessWithPagination(c, http.StatusOK, records, response.NewPagination(page, perPage, total))
}

// GetSubmission godoc
// GET /api/v1/admin/submissions/:id
func (h *AdminHandler) GetSubmission(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	rec, err := h.submissions.GetBySession(c.Request.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		response.Fail(c, http.StatusNotFound, response.ErrNotFound)
		return
	}
	if err != nil {
		h.log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to load submission")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, rec)
}

// GetSessionAnomalies godoc
// GET /api/v1/admin/sessions/:id/anomalies
func (h *AdminHandler) GetSessionAnomalies(c *gin.Context) {
	id, ok := parseSessionID(c)
	if !ok {
		return
	}
	trail, err := h.trails.GetTrail(c.Request.Context(), id)
	if err != nil {
		h.log.Error().Err(err).Str("session_id", id.String()).Msg("Failed to load anomalies")
		response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
		return
	}
	response.Success(c, http.StatusOK, trail)
}

func parseSessionID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}

func queryInt(c *gin.Context, key string, fallback int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return fallback
	}
	return v
}
