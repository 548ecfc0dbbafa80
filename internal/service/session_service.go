package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

// Session registry errors.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrTooManySessions = errors.New("too many active sessions")
	ErrServiceShutdown = errors.New("session service is shutting down")
)

const (
	defaultSweepEvery   = time.Minute
	defaultMaxSessions  = 1000
	defaultIdleLifetime = 2 * time.Hour
)

// PolicyFromConfig builds the session policy from configuration.
func PolicyFromConfig(cfg *config.Config) proctor.Policy {
	p := proctor.DefaultPolicy()
	if cfg.TimingPolicy != "" {
		p.Timing = proctor.TimingPolicy(cfg.TimingPolicy)
	}
	p.Navigation = proctor.NavigationPolicy{AllowBack: cfg.AllowBack, HasReviewStep: cfg.HasReviewStep}
	p.Durations = proctor.DurationByKind{
		model.KindFreeText:       cfg.FreeTextSeconds,
		model.KindSingleChoice:   cfg.SingleChoiceSeconds,
		model.KindMultipleSelect: cfg.MultiSelectSeconds,
	}
	if cfg.SessionSeconds > 0 {
		p.SessionSeconds = cfg.SessionSeconds
	}
	if cfg.FullscreenRetryDelay > 0 {
		p.FullscreenRetryDelay = cfg.FullscreenRetryDelay
	}
	return p
}

// SessionDeps are the shared collaborators every session is built with.
type SessionDeps struct {
	Checker       proctor.Checker
	Analyzer      proctor.Analyzer
	Sink          proctor.Sink
	Events        proctor.EventSink
	TickerFactory proctor.TickerFactory
}

type sessionEntry struct {
	session  *proctor.Session
	hub      *Hub
	lastSeen atomic.Int64
}

func (e *sessionEntry) touch(now time.Time) { e.lastSeen.Store(now.UnixNano()) }

// SessionService owns every live session in memory.
type SessionService struct {
	questions []model.Question
	policy    proctor.Policy
	deps      SessionDeps
	max       int
	idleTTL   time.Duration
	now       func() time.Time
	log       zerolog.Logger
	sessLog   zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	closed   bool
}

// NewSessionService validates the policy against the bank once so that
// session creation cannot fail on configuration.
func NewSessionService(cfg *config.Config, questions []model.Question, deps SessionDeps, log zerolog.Logger) (*SessionService, error) {
	if len(questions) == 0 {
		return nil, proctor.ErrNoQuestions
	}
	policy := PolicyFromConfig(cfg)
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("session policy: %w", err)
	}
	if deps.Checker == nil || deps.Sink == nil {
		return nil, errors.New("session service requires a checker and a sink")
	}
	deps.Sink = meteredSink{next: deps.Sink}

	limit := cfg.MaxSessions
	if limit <= 0 {
		limit = defaultMaxSessions
	}
	ttl := cfg.SessionIdleTTL
	if ttl <= 0 {
		ttl = defaultIdleLifetime
	}

	return &SessionService{
		questions: append([]model.Question(nil), questions...),
		policy:    policy,
		deps:      deps,
		max:       limit,
		idleTTL:   ttl,
		now:       time.Now,
		log:       log.With().Str("component", "session_service").Logger(),
		sessLog:   log.With().Str("component", "session").Logger(),
		sessions:  make(map[string]*sessionEntry),
	}, nil
}

// Policy returns the policy sessions are created with.
func (s *SessionService) Policy() proctor.Policy { return s.policy }

// Create registers a new Idle session.
func (s *SessionService) Create() (*proctor.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrServiceShutdown
	}
	if len(s.sessions) >= s.max {
		return nil, ErrTooManySessions
	}

	id := uuid.New().String()
	hub := NewHub(0, func() { metrics.DroppedEventsTotal.WithLabelValues("stream").Inc() })
	sess, err := proctor.NewSession(id, s.questions, s.policy, proctor.Deps{
		Checker:       s.deps.Checker,
		Analyzer:      s.deps.Analyzer,
		Sink:          s.deps.Sink,
		Events:        s.deps.Events,
		Notify:        hub.Publish,
		Logger:        &s.sessLog,
		TickerFactory: s.deps.TickerFactory,
	})
	if err != nil {
		return nil, err
	}

	e := &sessionEntry{session: sess, hub: hub}
	e.touch(s.now())
	s.sessions[id] = e
	metrics.ActiveSessions.Set(float64(len(s.sessions)))

	s.log.Info().Str("session_id", id).Int("active", len(s.sessions)).Msg("Session created")
	return sess, nil
}

// Get returns a live session and marks it as recently used.
func (s *SessionService) Get(id string) (*proctor.Session, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	return e.session, nil
}

// Subscribe attaches a stream to the session's updates.
func (s *SessionService) Subscribe(id string) (*proctor.Session, <-chan proctor.Update, func(), error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, nil, nil, err
	}
	ch, cancel := e.hub.Subscribe()
	return e.session, ch, func() {
		cancel()
		e.touch(s.now())
	}, nil
}

func (s *SessionService) entry(id string) (*sessionEntry, error) {
	s.mu.RLock()
	e, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	e.touch(s.now())
	return e, nil
}

// Remove closes and forgets a session.
func (s *SessionService) Remove(id string) error {
	s.mu.Lock()
	e, ok := s.sessions[id]
	if ok {
		delete(s.sessions, id)
		metrics.ActiveSessions.Set(float64(len(s.sessions)))
	}
	s.mu.Unlock()
	if !ok {
		return ErrSessionNotFound
	}
	e.hub.Close()
	e.session.Close()
	return nil
}

// SessionSummary is the monitor's row for one live session.
type SessionSummary struct {
	ID         string                 `json:"session_id"`
	Phase      model.Phase            `json:"phase"`
	FullName   string                 `json:"full_name,omitempty"`
	ClassLevel string                 `json:"class,omitempty"`
	Index      int                    `json:"index"`
	Total      int                    `json:"total"`
	Score      int                    `json:"anomaly_score"`
	Warning    model.WarningLevel     `json:"warning,omitempty"`
	Anomalies  int                    `json:"anomaly_count"`
	Submission model.SubmissionStatus `json:"submission_status,omitempty"`
	Connected  bool                   `json:"connected"`
	LastSeenAt time.Time              `json:"last_seen_at"`
}

// Summaries lists every live session.
func (s *SessionService) Summaries() []SessionSummary {
	s.mu.RLock()
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for _, e := range s.sessions {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	out := make([]SessionSummary, 0, len(entries))
	for _, e := range entries {
		snap := e.session.Snapshot()
		sum := SessionSummary{
			ID:         snap.ID,
			Phase:      snap.Phase,
			Index:      snap.Index,
			Total:      snap.Total,
			Score:      snap.Score,
			Warning:    snap.Warning,
			Anomalies:  len(snap.Log),
			Submission: snap.Submission.Status,
			Connected:  e.hub.Len() > 0,
			LastSeenAt: time.Unix(0, e.lastSeen.Load()),
		}
		if snap.User != nil {
			sum.FullName = snap.User.FullName
			sum.ClassLevel = snap.User.ClassLevel
		}
		out = append(out, sum)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return out
}

// Len returns the number of sessions held.
func (s *SessionService) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// SweepIdle closes sessions with no stream attached that have not been used
// for the idle lifetime. It returns how many were removed.
func (s *SessionService) SweepIdle() int {
	cutoff := s.now().Add(-s.idleTTL).UnixNano()

	s.mu.Lock()
	var expired []*sessionEntry
	for id, e := range s.sessions {
		if e.lastSeen.Load() < cutoff && e.hub.Len() == 0 {
			expired = append(expired, e)
			delete(s.sessions, id)
		}
	}
	metrics.ActiveSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	for _, e := range expired {
		e.hub.Close()
		e.session.Close()
	}
	if len(expired) > 0 {
		s.log.Info().Int("expired", len(expired)).Msg("Swept idle sessions")
	}
	return len(expired)
}

// RunJanitor sweeps idle sessions until ctx is cancelled.
func (s *SessionService) RunJanitor(ctx context.Context) {
	ticker := time.NewTicker(defaultSweepEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle()
		}
	}
}

// Shutdown closes every session and rejects new ones.
func (s *SessionService) Shutdown() {
	s.mu.Lock()
	s.closed = true
	entries := make([]*sessionEntry, 0, len(s.sessions))
	for id, e := range s.sessions {
		entries = append(entries, e)
		delete(s.sessions, id)
	}
	metrics.ActiveSessions.Set(0)
	s.mu.Unlock()

	for _, e := range entries {
		e.hub.Close()
		e.session.Close()
	}
	s.log.Info().Int("closed", len(entries)).Msg("Session service stopped")
}

// meteredSink records the final anomaly score of every accepted submission.
type meteredSink struct {
	next proctor.Sink
}

func (m meteredSink) Submit(ctx context.Context, p model.SubmissionPayload) error {
	if err := m.next.Submit(ctx, p); err != nil {
		return err
	}
	metrics.ObserveSubmittedScore(p.AnomalyScore)
	return nil
}
