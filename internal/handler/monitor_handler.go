package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/broker"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
)

// FeedFunc subscribes to the monitor feed. The returned channel carries raw
// JSON MonitorEvents and is closed by the returned stop func.
type FeedFunc func(ctx context.Context) (<-chan string, func())

// RedisFeed subscribes to the shared monitor PubSub channel.
func RedisFeed(rdb *redis.Client) FeedFunc {
	return func(ctx context.Context) (<-chan string, func()) {
		pubsub := rdb.Subscribe(ctx, config.CacheKey.MonitorChannel())
		out := make(chan string)
		done := make(chan struct{})
		go func() {
			defer close(out)
			ch := pubsub.Channel()
			for {
				select {
				case <-done:
					return
				case msg, ok := <-ch:
					if !ok {
						return
					}
					select {
					case out <- msg.Payload:
					case <-done:
						return
					}
				}
			}
		}()
		return out, func() {
			close(done)
			_ = pubsub.Close()
		}
	}
}

// SessionLister is the slice of the session registry the monitor reads.
type SessionLister interface {
	Summaries() []service.SessionSummary
}

// MonitorHandler streams live proctoring activity to admins over SSE.
type MonitorHandler struct {
	sessions SessionLister
	feed     FeedFunc
	log      zerolog.Logger
}

func NewMonitorHandler(sessions SessionLister, feed FeedFunc, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		sessions: sessions,
		feed:     feed,
		log:      log.With().Str("component", "monitor_handler").Logger(),
	}
}

// ListSessions godoc
// GET /api/v1/admin/sessions
func (h *MonitorHandler) ListSessions(c *gin.Context) {
	response.Success(c, http.StatusOK, h.sessions.Summaries())
}

// MonitorSSE godoc
// GET /api/v1/admin/monitor?session_id=
// Sends a "snapshot" of live sessions, then every monitor event as it
// happens, with a periodic "refresh" snapshot.
func (h *MonitorHandler) MonitorSSE(c *gin.Context) {
	reqCtx := c.Request.Context()
	filter := c.Query("session_id")

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	feed, stop := h.feed(reqCtx)
	defer stop()

	c.SSEvent("snapshot", h.summaries(filter))
	c.Writer.Flush()

	keepAlive := time.NewTicker(keepAliveInterval)
	defer keepAlive.Stop()
	refresh := time.NewTicker(refreshInterval)
	defer refresh.Stop()

	h.log.Info().Str("filter", filter).Msg("Admin attached to live monitor SSE")

	for {
		select {
		case <-reqCtx.Done():
			h.log.Info().Msg("Admin disconnected from live monitor SSE")
			return

		case payload, ok := <-feed:
			if !ok {
				return
			}
			if filter != "" && !matchesSession(payload, filter) {
				continue
			}
			c.SSEvent("event", json.RawMessage(payload))
			c.Writer.Flush()

		case <-refresh.C:
			c.SSEvent("refresh", h.summaries(filter))
			c.Writer.Flush()

		case <-keepAlive.C:
			c.SSEvent("ping", gin.H{"type": "ping"})
			c.Writer.Flush()
		}
	}
}

func (h *MonitorHandler) summaries(filter string) []service.SessionSummary {
	all := h.sessions.Summaries()
	if filter == "" {
		return all
	}
	out := make([]service.SessionSummary, 0, 1)
	for _, s := range all {
		if s.ID == filter {
			out = append(out, s)
		}
	}
	return out
}

func matchesSession(payload, sessionID string) bool {
	var ev broker.MonitorEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return false
	}
	return ev.SessionID == sessionID
}
