// Package broker moves session audit events onto Redis: persistence queues
// for the archive workers and the live monitor PubSub channel.
package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

const (
	DefaultBufferSize = 1024
	maxBatch          = 64
	drainTimeout      = 3 * time.Second
)

// AnomalyMessage is the queue payload consumed by the anomaly worker.
type AnomalyMessage struct {
	SessionID  string `json:"session_id"`
	Type       string `json:"type"`
	Details    string `json:"details,omitempty"`
	Score      int    `json:"score"`
	RecordedAt string `json:"recorded_at"`
}

// MonitorEvent is what the admin monitor receives over SSE.
type MonitorEvent struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	At        time.Time `json:"at"`
	Data      any       `json:"data,omitempty"`
}

type message struct {
	queue   string
	channel string
	data    []byte
}

// backend executes a batch of pushes/publishes.
type backend interface {
	send(ctx context.Context, batch []message) error
}

type redisBackend struct {
	rdb *redis.Client
}

func (b redisBackend) send(ctx context.Context, batch []message) error {
	pipe := b.rdb.Pipeline()
	for _, m := range batch {
		if m.queue != "" {
			pipe.RPush(ctx, m.queue, m.data)
		}
		if m.channel != "" {
			pipe.Publish(ctx, m.channel, m.data)
		}
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Publisher implements proctor.EventSink on top of Redis. Session callbacks
// only enqueue into a bounded buffer; Run ships the buffer.
type Publisher struct {
	backend backend
	out     chan message
	onDrop  func()
	now     func() time.Time
	log     zerolog.Logger
}

var _ proctor.EventSink = (*Publisher)(nil)

// NewPublisher creates a publisher with a buffer of size slots. onDrop is
// called for every event discarded because the buffer is full.
func NewPublisher(rdb *redis.Client, size int, onDrop func(), log zerolog.Logger) *Publisher {
	return newPublisher(redisBackend{rdb: rdb}, size, onDrop, log)
}

func newPublisher(b backend, size int, onDrop func(), log zerolog.Logger) *Publisher {
	if size <= 0 {
		size = DefaultBufferSize
	}
	if onDrop == nil {
		onDrop = func() {}
	}
	return &Publisher{
		backend: b,
		out:     make(chan message, size),
		onDrop:  onDrop,
		now:     time.Now,
		log:     log.With().Str("component", "broker").Logger(),
	}
}

// Run ships buffered events until ctx is cancelled, then drains what is left.
func (p *Publisher) Run(ctx context.Context) {
	p.log.Info().Int("buffer", cap(p.out)).Msg("Publisher started")
	batch := make([]message, 0, maxBatch)
	for {
		select {
		case <-ctx.Done():
			p.drain()
			return
		case m := <-p.out:
			batch = append(batch[:0], m)
			batch = p.fill(batch)
			p.flush(ctx, batch)
		}
	}
}

// fill appends whatever is immediately available, up to maxBatch.
func (p *Publisher) fill(batch []message) []message {
	for len(batch) < maxBatch {
		select {
		case m := <-p.out:
			batch = append(batch, m)
		default:
			return batch
		}
	}
	return batch
}

func (p *Publisher) flush(ctx context.Context, batch []message) {
	if err := p.backend.send(ctx, batch); err != nil && ctx.Err() == nil {
		p.log.Error().Err(err).Int("count", len(batch)).Msg("Failed to publish audit events")
	}
}

func (p *Publisher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	batch := p.fill(make([]message, 0, maxBatch))
	for len(batch) > 0 {
		p.flush(ctx, batch)
		batch = p.fill(batch[:0])
	}
	p.log.Info().Msg("Publisher stopped")
}

func (p *Publisher) enqueue(m message) {
	select {
	case p.out <- m:
	default:
		p.onDrop()
		p.log.Warn().Str("queue", m.queue).Str("channel", m.channel).Msg("Event buffer full, dropping")
	}
}

func (p *Publisher) monitor(sessionID, kind string, data any) {
	raw, err := json.Marshal(MonitorEvent{Type: kind, SessionID: sessionID, At: p.now().UTC(), Data: data})
	if err != nil {
		p.log.Error().Err(err).Str("type", kind).Msg("Failed to marshal monitor event")
		return
	}
	p.enqueue(message{channel: config.CacheKey.MonitorChannel(), data: raw})
}

// ─── proctor.EventSink ──────────────────────────────────────────────

func (p *Publisher) AnomalyRecorded(sessionID string, rec proctor.Recorded) {
	raw, err := json.Marshal(AnomalyMessage{
		SessionID:  sessionID,
		Type:       string(rec.Event.Type),
		Details:    rec.Event.Details,
		Score:      rec.Score,
		RecordedAt: rec.Event.Timestamp,
	})
	if err == nil {
		p.enqueue(message{queue: config.WorkerKey.PersistAnomaliesQueue, data: raw})
	}
	p.monitor(sessionID, "anomaly", rec)
}

func (p *Publisher) PhaseChanged(sessionID string, from, to model.Phase) {
	p.monitor(sessionID, "phase", map[string]model.Phase{"from": from, "to": to})
}

func (p *Publisher) SubmissionFinished(sessionID string, state model.SubmissionState) {
	p.monitor(sessionID, "submission", state)
}

func (p *Publisher) AnalysisFinished(sessionID string, state model.AnalysisState) {
	p.monitor(sessionID, "analysis", state)
}

// ─── submission.Archiver ────────────────────────────────────────────

// ArchiveSubmission queues a delivered payload for the submission worker.
// Unlike audit events it is sent synchronously.
func (p *Publisher) ArchiveSubmission(ctx context.Context, payload model.SubmissionPayload) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal submission: %w", err)
	}
	if err := p.backend.send(ctx, []message{{queue: config.WorkerKey.PersistSubmissionsQueue, data: raw}}); err != nil {
		return fmt.Errorf("queue submission: %w", err)
	}
	return nil
}
