package proctor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

func collect() (*[]model.AnomalySignal, func(model.AnomalySignal)) {
	var mu sync.Mutex
	var got []model.AnomalySignal
	return &got, func(s model.AnomalySignal) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, s)
	}
}

func TestDetector_Classify(t *testing.T) {
	tests := []struct {
		name     string
		ev       model.BrowserEvent
		want     model.AnomalyType
		details  string
		weight   int
		suppress bool
	}{
		{"context menu", model.BrowserEvent{Kind: model.BrowserContextMenu}, model.AnomalyContextMenu, "User tried to context menu.", 7, true},
		{"copy", model.BrowserEvent{Kind: model.BrowserCopy}, model.AnomalyCopyAttempt, "User tried to copy attempt.", 7, true},
		{"paste", model.BrowserEvent{Kind: model.BrowserPaste}, model.AnomalyPasteAttempt, "User tried to paste attempt.", 7, true},
		{"ctrl+c", model.BrowserEvent{Kind: model.BrowserKeyDown, Key: "c", CtrlKey: true}, model.AnomalyProhibitedKey, "User pressed prohibited key Ctrl+c.", 7, true},
		{"alt+tab", model.BrowserEvent{Kind: model.BrowserKeyDown, Key: "Tab", AltKey: true}, model.AnomalyProhibitedKey, "User pressed prohibited key Alt+Tab.", 7, true},
		{"F12", model.BrowserEvent{Kind: model.BrowserKeyDown, Key: "F12"}, model.AnomalyProhibitedKey, "User pressed prohibited key F12.", 7, true},
		{"hidden", model.BrowserEvent{Kind: model.BrowserVisibilityChange, Visibility: "hidden"}, model.AnomalyVisibilityHidden, "User switched to another tab or window.", 10, false},
		{"blur", model.BrowserEvent{Kind: model.BrowserBlur}, model.AnomalyWindowBlur, "The form window lost focus.", 7, false},
		{"fullscreen exit", model.BrowserEvent{Kind: model.BrowserFullscreenChange, Fullscreen: false}, model.AnomalyFullscreenExit, "User exited fullscreen mode.", 10, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, emit := collect()
			d := NewDetector(emit)
			defer d.Close()

			dir := d.Observe(tt.ev)
			require.NotNil(t, dir.Signal)
			assert.Equal(t, tt.want, dir.Signal.Type)
			assert.Equal(t, tt.details, dir.Signal.Details)
			assert.Equal(t, tt.weight, dir.Signal.Weight)
			assert.Equal(t, tt.suppress, dir.PreventDefault)
			require.Len(t, *got, 1)
			assert.Equal(t, *dir.Signal, (*got)[0])
		})
	}
}

func TestDetector_IgnoresBenignEvents(t *testing.T) {
	events := []model.BrowserEvent{
		{Kind: model.BrowserKeyDown, Key: "a"},
		{Kind: model.BrowserKeyDown, Key: "F13"},
		{Kind: model.BrowserKeyDown, Key: "Fn"},
		{Kind: model.BrowserKeyDown, Key: "F+1"},
		{Kind: model.BrowserKeyDown, Key: "F-1"},
		{Kind: model.BrowserKeyDown, Key: "F01"},
		{Kind: model.BrowserKeyDown, Key: "F0"},
		{Kind: model.BrowserVisibilityChange, Visibility: "visible"},
		{Kind: model.BrowserFullscreenChange, Fullscreen: true},
		{Kind: "scroll"},
	}
	got, emit := collect()
	d := NewDetector(emit)
	defer d.Close()

	for _, ev := range events {
		dir := d.Observe(ev)
		assert.Nil(t, dir.Signal, "kind %s key %q", ev.Kind, ev.Key)
		assert.False(t, dir.PreventDefault)
	}
	assert.Empty(t, *got)
}

func TestDetector_WeightOverride(t *testing.T) {
	d := NewDetector(nil, WithWeights(map[model.AnomalyType]int{model.AnomalyWindowBlur: 3}))
	defer d.Close()

	assert.Equal(t, 3, d.Weight(model.AnomalyWindowBlur))
	assert.Equal(t, 10, d.Weight(model.AnomalyVisibilityHidden))
}

func TestDetector_FullscreenRecovery(t *testing.T) {
	var recovered atomic.Int32
	d := NewDetector(nil, WithFullscreenRecovery(10*time.Millisecond, func() { recovered.Add(1) }))
	defer d.Close()

	d.Observe(model.BrowserEvent{Kind: model.BrowserFullscreenChange})
	require.Eventually(t, func() bool { return recovered.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestDetector_CloseCancelsRecoveryAndIgnoresEvents(t *testing.T) {
	var recovered atomic.Int32
	got, emit := collect()
	d := NewDetector(emit, WithFullscreenRecovery(50*time.Millisecond, func() { recovered.Add(1) }))

	d.Observe(model.BrowserEvent{Kind: model.BrowserFullscreenChange})
	d.Close()
	d.Observe(model.BrowserEvent{Kind: model.BrowserCopy})

	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, recovered.Load())
	assert.Len(t, *got, 1)
}
