package websocket

import (
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionSignal           Action = "signal"
	ActionAnswer           Action = "answer"
	ActionAdvance          Action = "advance"
	ActionPrevious         Action = "previous"
	ActionReview           Action = "review"
	ActionEdit             Action = "edit"
	ActionSubmit           Action = "submit"
	ActionRetry            Action = "retry"
	ActionFullscreenDenied Action = "fullscreen_denied"
	ActionSnapshot         Action = "snapshot"
	ActionPing             Action = "ping"
)

// Request is one client message. Only the fields relevant to Action are set.
// Seq is echoed back on the direct reply so the client can correlate it.
type Request struct {
	Action     Action              `json:"action"`
	Seq        int64               `json:"seq,omitempty"`
	Event      *model.BrowserEvent `json:"event,omitempty"`
	QuestionID int                 `json:"question_id,omitempty"`
	Answer     *model.Answer       `json:"answer,omitempty"`
	Index      *int                `json:"index,omitempty"`
	Reason     string              `json:"reason,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventDirective Event = "directive"
	EventUpdate    Event = "update"
	EventSnapshot  Event = "snapshot"
	EventAck       Event = "ack"
	EventError     Event = "error"
	EventPong      Event = "pong"
)

// DirectiveResponse answers a forwarded browser signal.
type DirectiveResponse struct {
	Event     Event             `json:"event"`
	Seq       int64             `json:"seq,omitempty"`
	Directive proctor.Directive `json:"directive"`
}

// UpdateResponse pushes one session state change.
type UpdateResponse struct {
	Event  Event          `json:"event"`
	Update proctor.Update `json:"update"`
}

// SnapshotResponse carries the full session view, sent on connect and on request.
type SnapshotResponse struct {
	Event    Event            `json:"event"`
	Seq      int64            `json:"seq,omitempty"`
	Snapshot proctor.Snapshot `json:"snapshot"`
}

// AckResponse confirms a quiz action. Applied is false for navigation that
// the policy turned into a no-op.
type AckResponse struct {
	Event   Event  `json:"event"`
	Seq     int64  `json:"seq,omitempty"`
	Action  Action `json:"action"`
	Applied bool   `json:"applied"`
}

type ErrorResponse struct {
	Event  Event             `json:"event"`
	Seq    int64             `json:"seq,omitempty"`
	Code   string            `json:"code,omitempty"`
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
	Seq   int64 `json:"seq,omitempty"`
}
