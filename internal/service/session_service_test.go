package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/plausibility"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

type nopSink struct{}

func (nopSink) Submit(context.Context, model.SubmissionPayload) error { return nil }

var bank = []model.Question{
	{ID: 1, Prompt: "Capital of France?", Kind: model.KindSingleChoice, Options: []string{"Paris", "Rome"}},
	{ID: 2, Prompt: "Why?", Kind: model.KindFreeText},
}

func newService(t *testing.T, cfg *config.Config) *SessionService {
	t.Helper()
	svc, err := NewSessionService(cfg, bank, SessionDeps{
		Checker: plausibility.BypassChecker{},
		Sink:    nopSink{},
	}, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(svc.Shutdown)
	return svc
}

func TestPolicyFromConfig(t *testing.T) {
	p := PolicyFromConfig(&config.Config{
		TimingPolicy:        "session",
		SessionSeconds:      600,
		AllowBack:           true,
		HasReviewStep:       true,
		FreeTextSeconds:     90,
		SingleChoiceSeconds: 45,
	})
	assert.Equal(t, proctor.TimingSession, p.Timing)
	assert.Equal(t, 600, p.SessionSeconds)
	assert.True(t, p.Navigation.AllowBack)
	assert.True(t, p.Navigation.HasReviewStep)
	assert.Equal(t, 90, p.Durations.For(model.KindFreeText))
	assert.Equal(t, 45, p.Durations.For(model.KindSingleChoice))
	assert.Equal(t, 120, p.Durations.For(model.KindMultipleSelect), "unset kinds fall back")
	assert.Equal(t, proctor.DefaultFullscreenRetryDelay, p.FullscreenRetryDelay)
}

func TestNewSessionService_RejectsBadConfig(t *testing.T) {
	_, err := NewSessionService(&config.Config{TimingPolicy: "hourly"}, bank,
		SessionDeps{Checker: plausibility.BypassChecker{}, Sink: nopSink{}}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewSessionService(&config.Config{}, nil,
		SessionDeps{Checker: plausibility.BypassChecker{}, Sink: nopSink{}}, zerolog.Nop())
	assert.ErrorIs(t, err, proctor.ErrNoQuestions)

	_, err = NewSessionService(&config.Config{}, bank, SessionDeps{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestSessionService_CreateGetRemove(t *testing.T) {
	svc := newService(t, &config.Config{})

	sess, err := svc.Create()
	require.NoError(t, err)
	assert.Equal(t, model.PhaseIdle, sess.Phase())

	got, err := svc.Get(sess.ID())
	require.NoError(t, err)
	assert.Same(t, sess, got)

	require.NoError(t, svc.Remove(sess.ID()))
	_, err = svc.Get(sess.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.ErrorIs(t, svc.Remove(sess.ID()), ErrSessionNotFound)
}

func TestSessionService_MaxSessions(t *testing.T) {
	svc := newService(t, &config.Config{MaxSessions: 2})
	_, err := svc.Create()
	require.NoError(t, err)
	_, err = svc.Create()
	require.NoError(t, err)

	_, err = svc.Create()
	assert.ErrorIs(t, err, ErrTooManySessions)
}

func TestSessionService_SubscribeReceivesUpdates(t *testing.T) {
	svc := newService(t, &config.Config{})
	sess, err := svc.Create()
	require.NoError(t, err)

	_, updates, cancel, err := svc.Subscribe(sess.ID())
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, sess.Start(context.Background(), model.UserDetails{
		FullName: "Alice Smith", Email: "alice@example.com", ClassLevel: "9",
	}))

	deadline := time.After(time.Second)
	for {
		select {
		case u := <-updates:
			if u.Kind == proctor.UpdatePhase {
				assert.Equal(t, model.PhaseActive, u.Phase)
				return
			}
		case <-deadline:
			t.Fatal("no phase update received")
		}
	}
}

func TestSessionService_SweepIdle(t *testing.T) {
	svc := newService(t, &config.Config{SessionIdleTTL: time.Minute})
	clock := time.Now()
	svc.now = func() time.Time { return clock }

	idle, err := svc.Create()
	require.NoError(t, err)
	watched, err := svc.Create()
	require.NoError(t, err)
	_, _, cancel, err := svc.Subscribe(watched.ID())
	require.NoError(t, err)
	defer cancel()

	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, 1, svc.SweepIdle())

	_, err = svc.Get(idle.ID())
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.Get(watched.ID())
	assert.NoError(t, err)
}

func TestSessionService_ShutdownRejectsCreate(t *testing.T) {
	svc := newService(t, &config.Config{})
	svc.Shutdown()
	_, err := svc.Create()
	assert.ErrorIs(t, err, ErrServiceShutdown)
}

type failingSink struct{ err error }

func (f failingSink) Submit(context.Context, model.SubmissionPayload) error { return f.err }

func TestMeteredSink_PassesErrorsThrough(t *testing.T) {
	boom := errors.New("rejected")
	err := meteredSink{next: failingSink{err: boom}}.Submit(context.Background(), model.SubmissionPayload{})
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, meteredSink{next: nopSink{}}.Submit(context.Background(), model.SubmissionPayload{AnomalyScore: 30}))
}
