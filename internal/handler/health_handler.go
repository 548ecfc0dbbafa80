package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-proctor/internal/response"
)

const healthTimeout = 2 * time.Second

// Pinger is anything the health check can probe.
type Pinger func(ctx context.Context) error

// HealthHandler reports dependency reachability.
type HealthHandler struct {
	checks map[string]Pinger
}

// NewHealthHandler creates a health handler probing each named dependency.
func NewHealthHandler(checks map[string]Pinger) *HealthHandler {
	return &HealthHandler{checks: checks}
}

// Health godoc
// GET /health
// Always 200 while the process serves; degraded dependencies are listed.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status := "ok"
	deps := make(map[string]string, len(h.checks))
	for name, ping := range h.checks {
		if err := ping(ctx); err != nil {
			deps[name] = err.Error()
			status = "degraded"
			continue
		}
		deps[name] = "ok"
	}
	response.Success(c, http.StatusOK, gin.H{"status": status, "dependencies": deps})
}
