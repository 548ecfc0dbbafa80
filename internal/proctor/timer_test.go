package proctor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

const waitFor = time.Second

func TestTimer_CountsDownAndFiresOnce(t *testing.T) {
	tickers := &fakeTickers{}
	var fired atomic.Int32
	var firedGen atomic.Uint64
	timer := NewTimer(3, func(gen uint64) {
		fired.Add(1)
		firedGen.Store(gen)
	}, WithTickerFactory(tickers.factory))
	defer timer.Stop()

	timer.SetActive(true)
	assert.Equal(t, model.TimerState{RemainingSeconds: 3, Running: true}, timer.State())

	tickers.fire(t, 2)
	require.Eventually(t, func() bool { return timer.State().RemainingSeconds == 1 }, waitFor, time.Millisecond)
	assert.Zero(t, fired.Load())

	tickers.fire(t, 1)
	require.Eventually(t, func() bool { return fired.Load() == 1 }, waitFor, time.Millisecond)
	assert.Equal(t, model.TimerState{RemainingSeconds: 0, Running: false}, timer.State())
	assert.Equal(t, timer.Generation(), firedGen.Load())
	require.Eventually(t, func() bool { return tickers.latest().stopped.Load() }, waitFor, time.Millisecond)
}

func TestTimer_TickHandler(t *testing.T) {
	tickers := &fakeTickers{}
	var last atomic.Int64
	timer := NewTimer(5, nil,
		WithTickerFactory(tickers.factory),
		WithTickHandler(func(_ uint64, remaining int) { last.Store(int64(remaining)) }),
	)
	defer timer.Stop()

	timer.SetActive(true)
	tickers.fire(t, 2)
	require.Eventually(t, func() bool { return last.Load() == 3 }, waitFor, time.Millisecond)
}

func TestTimer_ResetPreventsTimeout(t *testing.T) {
	tickers := &fakeTickers{}
	var fired atomic.Int32
	timer := NewTimer(2, func(uint64) { fired.Add(1) }, WithTickerFactory(tickers.factory))
	defer timer.Stop()

	timer.SetActive(true)
	tickers.fire(t, 1)
	require.Eventually(t, func() bool { return timer.State().RemainingSeconds == 1 }, waitFor, time.Millisecond)

	first := tickers.latest()
	timer.Reset()
	assert.Equal(t, model.TimerState{RemainingSeconds: 2, Running: false}, timer.State())
	require.Eventually(t, func() bool { return first.stopped.Load() }, waitFor, time.Millisecond)
	assert.Zero(t, fired.Load())
}

func TestTimer_DeactivateKeepsRemaining(t *testing.T) {
	tickers := &fakeTickers{}
	timer := NewTimer(10, nil, WithTickerFactory(tickers.factory))
	defer timer.Stop()

	timer.SetActive(true)
	tickers.fire(t, 3)
	require.Eventually(t, func() bool { return timer.State().RemainingSeconds == 7 }, waitFor, time.Millisecond)

	timer.SetActive(false)
	assert.Equal(t, model.TimerState{RemainingSeconds: 7, Running: false}, timer.State())

	timer.SetActive(true)
	assert.Equal(t, model.TimerState{RemainingSeconds: 10, Running: true}, timer.State())
	assert.Equal(t, 2, tickers.count())
}

func TestTimer_SetActiveWhileRunningIsNoop(t *testing.T) {
	tickers := &fakeTickers{}
	timer := NewTimer(10, nil, WithTickerFactory(tickers.factory))
	defer timer.Stop()

	timer.SetActive(true)
	gen := timer.Generation()
	timer.SetActive(true)
	assert.Equal(t, gen, timer.Generation())
	assert.Equal(t, 1, tickers.count())
}

func TestTimer_SetDurationWhileActive(t *testing.T) {
	tickers := &fakeTickers{}
	timer := NewTimer(120, nil, WithTickerFactory(tickers.factory))
	defer timer.Stop()

	timer.SetDuration(60)
	assert.Equal(t, 120, timer.State().RemainingSeconds, "inactive timer keeps remaining")

	timer.SetActive(true)
	timer.SetDuration(30)
	assert.Equal(t, 30, timer.State().RemainingSeconds)
	assert.Equal(t, 30, timer.Duration())
}

func TestTimer_StaleTickDiscarded(t *testing.T) {
	timer := NewTimer(5, nil, WithTickerFactory((&fakeTickers{}).factory))
	defer timer.Stop()

	timer.SetActive(true)
	old := timer.Generation()
	timer.Reset()
	timer.SetActive(true)

	assert.True(t, timer.tick(old), "stale generation finishes immediately")
	assert.Equal(t, 5, timer.State().RemainingSeconds)
}
