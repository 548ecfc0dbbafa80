package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/proctor"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	ws "github.com/stemsi/exstem-proctor/internal/websocket"
)

const replyBuffer = 32

// buildUpgrader creates a WebSocket upgrader with origin validation.
// allowedOrigins comes from config.Config.AllowedOrigins.
// An empty slice permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams one session over a WebSocket: raw browser signals and
// quiz actions in, directives and updates out.
type WSHandler struct {
	sessions *service.SessionService
	log      zerolog.Logger
	upgrader websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions *service.SessionService, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		sessions: sessions,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
	}
}

// SessionStream godoc
// WS /ws/v1/sessions/:id/stream?token=
func (h *WSHandler) SessionStream(c *gin.Context) {
	sess, updates, unsubscribe, err := h.sessions.Subscribe(c.Param("id"))
	if err != nil {
		failWith(c, err, response.ErrInternal)
		return
	}
	defer unsubscribe()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()
	ws.Prepare(conn)

	metrics.ActiveWebSocketClients.Inc()
	defer metrics.ActiveWebSocketClients.Dec()

	wsLog := h.log.With().Str("session_id", sess.ID()).Logger()
	wsLog.Info().Msg("Client connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	replies := make(chan any, replyBuffer)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ctx, conn, updates, replies, wsLog)
		cancel()
	}()

	reply := func(v any) {
		select {
		case replies <- v:
		case <-ctx.Done():
		}
	}
	reply(ws.SnapshotResponse{Event: ws.EventSnapshot, Snapshot: sess.Snapshot()})

	for {
		var msg ws.Request
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			break
		}
		if ctx.Err() != nil {
			break
		}
		h.dispatch(ctx, sess, &msg, reply, wsLog)
	}

	cancel()
	<-writerDone
	wsLog.Info().Msg("Client disconnected")
}

// writeLoop is the connection's only writer.
func (h *WSHandler) writeLoop(ctx context.Context, conn *websocket.Conn, updates <-chan proctor.Update, replies <-chan any, log zerolog.Logger) {
	ping := time.NewTicker(ws.PingPeriod)
	defer ping.Stop()

	for {
		var err error
		select {
		case <-ctx.Done():
			return
		case u, ok := <-updates:
			if !ok {
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "session ended"),
					time.Now().Add(ws.WriteWait))
				return
			}
			err = ws.WriteTyped(conn, ws.UpdateResponse{Event: ws.EventUpdate, Update: u})
		case v := <-replies:
			err = ws.WriteTyped(conn, v)
		case <-ping.C:
			err = ws.WritePing(conn)
		}
		if err != nil {
			log.Debug().Err(err).Msg("Write failed, closing stream")
			return
		}
	}
}

func (h *WSHandler) dispatch(ctx context.Context, sess *proctor.Session, msg *ws.Request, reply func(any), log zerolog.Logger) {
	ack := func(applied bool) {
		reply(ws.AckResponse{Event: ws.EventAck, Seq: msg.Seq, Action: msg.Action, Applied: applied})
	}
	fail := func(err error, fallback response.ErrCode) {
		e := resolveError(err, fallback)
		reply(ws.ErrorResponse{
			Event:  ws.EventError,
			Seq:    msg.Seq,
			Code:   string(e.Code),
			Error:  response.GetMessage(e.Code),
			Fields: e.Fields,
		})
	}

	switch msg.Action {
	case ws.ActionSignal:
		if msg.Event == nil {
			reply(ws.ErrorResponse{Event: ws.EventError, Seq: msg.Seq, Code: string(response.ErrInvalidPayload), Error: "event is required"})
			return
		}
		if fields := validator.Validate(msg.Event); fields != nil {
			reply(ws.ErrorResponse{Event: ws.EventError, Seq: msg.Seq, Code: string(response.ErrValidation), Error: response.GetMessage(response.ErrValidation), Fields: fields})
			return
		}
		reply(ws.DirectiveResponse{Event: ws.EventDirective, Seq: msg.Seq, Directive: sess.Observe(*msg.Event)})

	case ws.ActionAnswer:
		if msg.Answer == nil {
			reply(ws.ErrorResponse{Event: ws.EventError, Seq: msg.Seq, Code: string(response.ErrInvalidPayload), Error: "answer is required"})
			return
		}
		applied, err := sess.Answer(msg.QuestionID, *msg.Answer)
		if err != nil {
			fail(err, response.ErrInternal)
			return
		}
		ack(applied)

	case ws.ActionAdvance, ws.ActionSubmit, ws.ActionRetry:
		// Delivery outlives the connection.
		deliverCtx := context.WithoutCancel(ctx)
		var err error
		switch msg.Action {
		case ws.ActionAdvance:
			err = sess.Advance(deliverCtx)
		case ws.ActionSubmit:
			err = sess.Submit(deliverCtx)
		default:
			err = sess.RetrySubmission(deliverCtx)
		}
		if err != nil {
			if e := resolveError(err, response.ErrSubmissionFailed); e.Code == response.ErrSubmissionFailed {
				log.Warn().Err(err).Str("action", string(msg.Action)).Msg("Submission delivery failed")
			}
			fail(err, response.ErrSubmissionFailed)
			return
		}
		ack(true)

	case ws.ActionPrevious:
		ack(sess.Previous())
	case ws.ActionReview:
		ack(sess.Review())
	case ws.ActionEdit:
		if msg.Index == nil {
			reply(ws.ErrorResponse{Event: ws.EventError, Seq: msg.Seq, Code: string(response.ErrInvalidPayload), Error: "index is required"})
			return
		}
		ack(sess.Edit(*msg.Index))

	case ws.ActionFullscreenDenied:
		sess.ReportFullscreenDenied(msg.Reason)
		ack(true)

	case ws.ActionSnapshot:
		reply(ws.SnapshotResponse{Event: ws.EventSnapshot, Seq: msg.Seq, Snapshot: sess.Snapshot()})

	case ws.ActionPing:
		reply(ws.PongResponse{Event: ws.EventPong, Seq: msg.Seq})

	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		reply(ws.ErrorResponse{Event: ws.EventError, Seq: msg.Seq, Code: string(response.ErrInvalidPayload), Error: "unknown action: " + string(msg.Action)})
	}
}
