package proctor

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// DefaultWeights are the point values per anomaly type.
var DefaultWeights = map[model.AnomalyType]int{
	model.AnomalyVisibilityHidden: 10,
	model.AnomalyWindowBlur:       7,
	model.AnomalyFullscreenExit:   10,
	model.AnomalyContextMenu:      7,
	model.AnomalyCopyAttempt:      7,
	model.AnomalyPasteAttempt:     7,
	model.AnomalyProhibitedKey:    7,
}

// DefaultFullscreenRetryDelay is how long after a fullscreen exit the
// detector asks the client to re-enter fullscreen.
const DefaultFullscreenRetryDelay = time.Second

// Directive tells the client how to treat the raw event it just forwarded.
type Directive struct {
	PreventDefault bool                 `json:"prevent_default"`
	Signal         *model.AnomalySignal `json:"signal,omitempty"`
}

// Detector classifies raw browser signals into anomaly signals. It holds no
// score and performs no phase check; the owner decides what to do with the
// emitted signals.
type Detector struct {
	emit       func(model.AnomalySignal)
	recover    func()
	weights    map[model.AnomalyType]int
	retryDelay time.Duration

	mu      sync.Mutex
	closed  bool
	pending map[*time.Timer]struct{}
}

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithWeights overrides individual weights; unspecified types keep their default.
func WithWeights(w map[model.AnomalyType]int) DetectorOption {
	return func(d *Detector) {
		for t, v := range w {
			d.weights[t] = v
		}
	}
}

// WithFullscreenRecovery installs the re-request callback and its delay.
func WithFullscreenRecovery(delay time.Duration, fn func()) DetectorOption {
	return func(d *Detector) {
		if delay > 0 {
			d.retryDelay = delay
		}
		d.recover = fn
	}
}

// NewDetector creates a detector that publishes every classified signal to emit.
func NewDetector(emit func(model.AnomalySignal), opts ...DetectorOption) *Detector {
	d := &Detector{
		emit:       emit,
		weights:    make(map[model.AnomalyType]int, len(DefaultWeights)),
		retryDelay: DefaultFullscreenRetryDelay,
		pending:    make(map[*time.Timer]struct{}),
	}
	for t, v := range DefaultWeights {
		d.weights[t] = v
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Weight returns the configured weight for t.
func (d *Detector) Weight(t model.AnomalyType) int {
	return d.weights[t]
}

// Observe classifies ev, publishes the resulting signal (if any) and returns
// the directive for the client.
func (d *Detector) Observe(ev model.BrowserEvent) Directive {
	d.mu.Lock()
	closed := d.closed
	d.mu.Unlock()
	if closed {
		return Directive{}
	}

	sig, suppress, ok := d.classify(ev)
	if !ok {
		return Directive{}
	}

	if sig.Type == model.AnomalyFullscreenExit {
		d.scheduleRecovery()
	}
	if d.emit != nil {
		d.emit(sig)
	}
	return Directive{PreventDefault: suppress, Signal: &sig}
}

func (d *Detector) classify(ev model.BrowserEvent) (model.AnomalySignal, bool, bool) {
	switch ev.Kind {
	case model.BrowserContextMenu:
		return d.attempt(model.AnomalyContextMenu), true, true
	case model.BrowserCopy:
		return d.attempt(model.AnomalyCopyAttempt), true, true
	case model.BrowserPaste:
		return d.attempt(model.AnomalyPasteAttempt), true, true
	case model.BrowserKeyDown:
		if !ev.CtrlKey && !ev.AltKey && !ev.MetaKey && !isFunctionKey(ev.Key) {
			return model.AnomalySignal{}, false, false
		}
		return d.signal(model.AnomalyProhibitedKey, fmt.Sprintf("User pressed prohibited key %s.", keyCombo(ev))), true, true
	case model.BrowserVisibilityChange:
		if ev.Visibility != "hidden" {
			return model.AnomalySignal{}, false, false
		}
		return d.signal(model.AnomalyVisibilityHidden, "User switched to another tab or window."), false, true
	case model.BrowserBlur:
		return d.signal(model.AnomalyWindowBlur, "The form window lost focus."), false, true
	case model.BrowserFullscreenChange:
		if ev.Fullscreen {
			return model.AnomalySignal{}, false, false
		}
		return d.signal(model.AnomalyFullscreenExit, "User exited fullscreen mode."), false, true
	}
	return model.AnomalySignal{}, false, false
}

func (d *Detector) attempt(t model.AnomalyType) model.AnomalySignal {
	return d.signal(t, fmt.Sprintf("User tried to %s.", strings.ToLower(string(t))))
}

func (d *Detector) signal(t model.AnomalyType, details string) model.AnomalySignal {
	return model.AnomalySignal{Type: t, Details: details, Weight: d.weights[t]}
}

// scheduleRecovery arms a one-shot fullscreen re-request. Failure to re-enter
// is not escalated.
func (d *Detector) scheduleRecovery() {
	if d.recover == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	var t *time.Timer
	t = time.AfterFunc(d.retryDelay, func() {
		d.mu.Lock()
		_, live := d.pending[t]
		delete(d.pending, t)
		closed := d.closed
		d.mu.Unlock()
		if live && !closed {
			d.recover()
		}
	})
	d.pending[t] = struct{}{}
}

// Close detaches the detector. Pending recoveries are cancelled and later
// observations are ignored.
func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	for t := range d.pending {
		t.Stop()
		delete(d.pending, t)
	}
}

// isFunctionKey matches F1 through F12.
func isFunctionKey(key string) bool {
	if len(key) < 2 || key[0] != 'F' || key[1] < '1' || key[1] > '9' {
		return false
	}
	n, err := strconv.Atoi(key[1:])
	return err == nil && n <= 12
}

func keyCombo(ev model.BrowserEvent) string {
	var parts []string
	if ev.CtrlKey {
		parts = append(parts, "Ctrl")
	}
	if ev.AltKey {
		parts = append(parts, "Alt")
	}
	if ev.MetaKey {
		parts = append(parts, "Meta")
	}
	if ev.Key != "" && ev.Key != "Control" && ev.Key != "Alt" && ev.Key != "Meta" {
		parts = append(parts, ev.Key)
	}
	if len(parts) == 0 {
		return "(unknown)"
	}
	return strings.Join(parts, "+")
}
