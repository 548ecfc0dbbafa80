package proctor

import (
	"sync"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Ticker is the subset of time.Ticker the countdown needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// RealTicker is the production TickerFactory.
func RealTicker(d time.Duration) Ticker { return realTicker{t: time.NewTicker(d)} }

// Timer is a one-shot countdown in whole seconds. Each start, reset or stop
// begins a new generation; ticks and callbacks from an older generation are
// discarded, so superseding a countdown can never double-fire.
type Timer struct {
	mu        sync.Mutex
	duration  int
	remaining int
	running   bool
	active    bool
	gen       uint64
	done      chan struct{}

	newTicker TickerFactory
	onTimeout func(gen uint64)
	onTick    func(gen uint64, remaining int)
}

// TimerOption configures a Timer.
type TimerOption func(*Timer)

// WithTickerFactory replaces the wall-clock ticker (tests).
func WithTickerFactory(f TickerFactory) TimerOption {
	return func(t *Timer) { t.newTicker = f }
}

// WithTickHandler installs a per-tick callback.
func WithTickHandler(fn func(gen uint64, remaining int)) TimerOption {
	return func(t *Timer) { t.onTick = fn }
}

// NewTimer creates a stopped countdown of durationSeconds. onTimeout fires once
// per generation when the countdown reaches zero.
func NewTimer(durationSeconds int, onTimeout func(gen uint64), opts ...TimerOption) *Timer {
	if durationSeconds < 0 {
		durationSeconds = 0
	}
	t := &Timer{
		duration:  durationSeconds,
		remaining: durationSeconds,
		newTicker: RealTicker,
		onTimeout: onTimeout,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// SetActive gates the countdown. Turning the gate on while not running starts
// a fresh countdown at full duration; turning it off pauses without resetting
// the remaining time.
func (t *Timer) SetActive(active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = active
	if !active {
		t.haltLocked()
		return
	}
	if !t.running {
		t.startLocked()
	}
}

// Reset cancels any pending tick and restores the full duration. It does not
// start the countdown.
func (t *Timer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.haltLocked()
	t.remaining = t.duration
}

// SetDuration changes the configured duration. While the gate is on the
// remaining time jumps to the new duration immediately.
func (t *Timer) SetDuration(seconds int) {
	if seconds < 0 {
		seconds = 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.duration = seconds
	if t.active {
		t.remaining = seconds
	}
}

// Stop halts the countdown and closes the gate.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.active = false
	t.haltLocked()
}

// State returns the current remaining time and running flag.
func (t *Timer) State() model.TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return model.TimerState{RemainingSeconds: t.remaining, Running: t.running}
}

// Duration returns the configured duration in seconds.
func (t *Timer) Duration() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.duration
}

// Generation identifies the current countdown.
func (t *Timer) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.gen
}

func (t *Timer) startLocked() {
	t.gen++
	t.remaining = t.duration
	t.running = true
	done := make(chan struct{})
	t.done = done
	go t.run(t.gen, t.newTicker(time.Second), done)
}

func (t *Timer) haltLocked() {
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	t.running = false
	t.gen++
}

func (t *Timer) run(gen uint64, tk Ticker, done <-chan struct{}) {
	defer tk.Stop()
	for {
		select {
		case <-done:
			return
		case <-tk.C():
			if finished := t.tick(gen); finished {
				return
			}
		}
	}
}

// tick applies one second. It reports whether this generation is finished.
func (t *Timer) tick(gen uint64) bool {
	t.mu.Lock()
	if gen != t.gen || !t.running {
		t.mu.Unlock()
		return true
	}
	if t.remaining <= 1 {
		t.remaining = 0
		t.running = false
		if t.done != nil {
			close(t.done)
			t.done = nil
		}
		cb := t.onTimeout
		t.mu.Unlock()
		if cb != nil {
			cb(gen)
		}
		return true
	}
	t.remaining--
	remaining := t.remaining
	cb := t.onTick
	t.mu.Unlock()
	if cb != nil {
		cb(gen, remaining)
	}
	return false
}
