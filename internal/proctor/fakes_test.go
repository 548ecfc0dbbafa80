package proctor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ─── Ticker ─────────────────────────────────────────────────────────

type fakeTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func (f *fakeTicker) C() <-chan time.Time { return f.c }
func (f *fakeTicker) Stop()               { f.stopped.Store(true) }

type fakeTickers struct {
	mu      sync.Mutex
	tickers []*fakeTicker
}

func (f *fakeTickers) factory(time.Duration) Ticker {
	f.mu.Lock()
	defer f.mu.Unlock()
	tk := &fakeTicker{c: make(chan time.Time)}
	f.tickers = append(f.tickers, tk)
	return tk
}

func (f *fakeTickers) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tickers)
}

func (f *fakeTickers) latest() *fakeTicker {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.tickers) == 0 {
		return nil
	}
	return f.tickers[len(f.tickers)-1]
}

// fire delivers n ticks to the live countdown goroutine.
func (f *fakeTickers) fire(t *testing.T, n int) {
	t.Helper()
	tk := f.latest()
	if tk == nil {
		t.Fatal("no ticker started")
	}
	for i := 0; i < n; i++ {
		select {
		case tk.c <- time.Now():
		case <-time.After(time.Second):
			t.Fatalf("tick %d not consumed", i+1)
		}
	}
}

// ─── Collaborators ──────────────────────────────────────────────────

type stubChecker struct {
	nameVerdict  model.Verdict
	emailVerdict model.Verdict
	err          error
	calls        atomic.Int32
}

func okChecker() *stubChecker {
	return &stubChecker{
		nameVerdict:  model.Verdict{IsValid: true},
		emailVerdict: model.Verdict{IsValid: true},
	}
}

func (c *stubChecker) CheckName(context.Context, string) (model.Verdict, error) {
	c.calls.Add(1)
	return c.nameVerdict, c.err
}

func (c *stubChecker) CheckEmail(context.Context, string) (model.Verdict, error) {
	c.calls.Add(1)
	return c.emailVerdict, c.err
}

type recordingSink struct {
	mu       sync.Mutex
	payloads []model.SubmissionPayload
	fail     atomic.Int32
}

func (s *recordingSink) Submit(_ context.Context, p model.SubmissionPayload) error {
	if s.fail.Load() > 0 {
		s.fail.Add(-1)
		return errors.New("sheet unreachable")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payloads = append(s.payloads, p)
	return nil
}

func (s *recordingSink) all() []model.SubmissionPayload {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.SubmissionPayload(nil), s.payloads...)
}

type stubAnalyzer struct {
	result model.RiskAnalysis
	err    error
	block  chan struct{}
}

func (a *stubAnalyzer) Analyze(ctx context.Context, _ []model.AnomalyEvent, _ int) (model.RiskAnalysis, error) {
	if a.block != nil {
		select {
		case <-a.block:
		case <-ctx.Done():
			return model.RiskAnalysis{}, ctx.Err()
		}
	}
	return a.result, a.err
}

type updateLog struct {
	mu      sync.Mutex
	updates []Update
}

func (l *updateLog) notify(u Update) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.updates = append(l.updates, u)
}

func (l *updateLog) ofKind(k UpdateKind) []Update {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Update
	for _, u := range l.updates {
		if u.Kind == k {
			out = append(out, u)
		}
	}
	return out
}

// ─── Fixtures ───────────────────────────────────────────────────────

func threeQuestions() []model.Question {
	limit := 50
	return []model.Question{
		{ID: 1, Prompt: "Explain photosynthesis.", Kind: model.KindFreeText, WordLimit: &limit},
		{ID: 2, Prompt: "Capital of France?", Kind: model.KindSingleChoice, Options: []string{"Paris", "Rome", "Madrid"}},
		{ID: 3, Prompt: "Pick the primes.", Kind: model.KindMultipleSelect, Options: []string{"2", "3", "4", "5"}},
	}
}

var alice = model.UserDetails{FullName: "Alice Smith", Email: "alice@example.com", ClassLevel: "9"}

type harness struct {
	session  *Session
	tickers  *fakeTickers
	checker  *stubChecker
	sink     *recordingSink
	analyzer *stubAnalyzer
	updates  *updateLog
}

func newHarness(t *testing.T, policy Policy) *harness {
	t.Helper()
	h := &harness{
		tickers:  &fakeTickers{},
		checker:  okChecker(),
		sink:     &recordingSink{},
		analyzer: &stubAnalyzer{result: model.RiskAnalysis{RiskAssessment: `{"riskLevel":"Low","details":"Clean."}`}},
		updates:  &updateLog{},
	}
	s, err := NewSession("sess-1", threeQuestions(), policy, Deps{
		Checker:       h.checker,
		Analyzer:      h.analyzer,
		Sink:          h.sink,
		Notify:        h.updates.notify,
		TickerFactory: h.tickers.factory,
	})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(s.Close)
	h.session = s
	return h
}
