package proctor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

func TestLedger_RecordAccumulates(t *testing.T) {
	l := NewLedger()
	at := time.Date(2026, 3, 1, 10, 0, 0, 123_000_000, time.FixedZone("WIB", 7*3600))

	rec := l.Record(model.AnomalyContextMenu, "User tried to context menu.", 7, at)
	assert.Equal(t, 7, rec.Score)
	assert.Equal(t, model.WarningNone, rec.Warning)
	assert.Equal(t, "2026-03-01T03:00:00.123Z", rec.Event.Timestamp)

	l.Record(model.AnomalyFullscreenExit, "", 10, at)
	assert.Equal(t, 17, l.Score())
	assert.Equal(t, 2, l.Len())
}

func TestLedger_ScoreSaturates(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	for i := 0; i < 11; i++ {
		l.Record(model.AnomalyVisibilityHidden, "", 10, now)
	}
	assert.Equal(t, MaxScore, l.Score())
	assert.Equal(t, 11, l.Len(), "events are still logged after the cap")
}

func TestLedger_NegativeWeightIgnored(t *testing.T) {
	l := NewLedger()
	l.Record(model.AnomalyCopyAttempt, "", 7, time.Now())
	rec := l.Record(model.AnomalyCopyAttempt, "", -5, time.Now())
	assert.Equal(t, 7, rec.Score)
}

func TestLedger_EventsIsCopy(t *testing.T) {
	l := NewLedger()
	l.Record(model.AnomalyPasteAttempt, "x", 7, time.Now())

	events := l.Events()
	require.Len(t, events, 1)
	events[0].Details = "mutated"
	assert.Equal(t, "x", l.Events()[0].Details)
}

func TestLedger_Counts(t *testing.T) {
	l := NewLedger()
	now := time.Now()
	l.Record(model.AnomalyContextMenu, "", 7, now)
	l.Record(model.AnomalyContextMenu, "", 7, now)
	l.Record(model.AnomalyWindowBlur, "", 7, now)

	assert.Equal(t, map[model.AnomalyType]int{
		model.AnomalyContextMenu: 2,
		model.AnomalyWindowBlur:  1,
	}, l.Counts())
}

func TestWarningFor(t *testing.T) {
	tests := []struct {
		score int
		want  model.WarningLevel
	}{
		{0, model.WarningNone},
		{30, model.WarningNone},
		{31, model.WarningZone},
		{50, model.WarningZone},
		{51, model.WarningDanger},
		{100, model.WarningDanger},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WarningFor(tt.score), "score %d", tt.score)
	}
}

func TestLedger_FinalScoreIndependentOfOrder(t *testing.T) {
	type entry struct {
		typ    model.AnomalyType
		weight int
	}
	mixed := []entry{
		{model.AnomalyCopyAttempt, 7},
		{model.AnomalyVisibilityHidden, 10},
		{model.AnomalyWindowBlur, 7},
		{model.AnomalyFullscreenExit, 10},
		{model.AnomalyProhibitedKey, 7},
	}
	permutations := [][]int{
		{0, 1, 2, 3, 4},
		{4, 3, 2, 1, 0},
		{1, 3, 0, 4, 2},
		{2, 0, 4, 1, 3},
	}

	tests := []struct {
		name    string
		repeats int
		want    int
	}{
		{"below cap", 1, 41},
		{"above cap", 3, MaxScore},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Now()
			var firstTypes []model.AnomalyType
			for i, perm := range permutations {
				l := NewLedger()
				var types []model.AnomalyType
				for r := 0; r < tt.repeats; r++ {
					for _, idx := range perm {
						e := mixed[idx]
						l.Record(e.typ, "", e.weight, now)
						types = append(types, e.typ)
					}
				}
				assert.Equal(t, tt.want, l.Score(), "permutation %v", perm)

				logged := make([]model.AnomalyType, 0, l.Len())
				for _, ev := range l.Events() {
					logged = append(logged, ev.Type)
				}
				assert.Equal(t, types, logged, "log keeps recording order")
				if i == 0 {
					firstTypes = logged
				} else {
					assert.NotEqual(t, firstTypes, logged)
				}
			}
		})
	}
}
