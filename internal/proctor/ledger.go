package proctor

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// MaxScore is the ceiling of the anomaly score.
const MaxScore = 100

const (
	warningThreshold = 30
	dangerThreshold  = 50
)

// Ledger is the append-only anomaly log plus its capped cumulative score.
// It is not safe for concurrent use; the owning Session serializes access.
type Ledger struct {
	events []model.AnomalyEvent
	score  int
}

// NewLedger returns an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{}
}

// Recorded is the outcome of a single Record call.
type Recorded struct {
	Event   model.AnomalyEvent `json:"event"`
	Score   int                `json:"score"`
	Warning model.WarningLevel `json:"warning,omitempty"`
}

// Record appends an event and raises the score by weight, saturating at
// MaxScore. Negative weights count as zero so the score never decreases.
func (l *Ledger) Record(t model.AnomalyType, details string, weight int, at time.Time) Recorded {
	ev := model.AnomalyEvent{
		Timestamp: model.FormatISO(at),
		Type:      t,
		Details:   details,
	}
	l.events = append(l.events, ev)

	if weight > 0 {
		l.score += weight
		if l.score > MaxScore {
			l.score = MaxScore
		}
	}
	return Recorded{Event: ev, Score: l.score, Warning: WarningFor(l.score)}
}

// Score returns the current capped score.
func (l *Ledger) Score() int { return l.score }

// Len returns the number of recorded events.
func (l *Ledger) Len() int { return len(l.events) }

// Events returns a copy of the log in arrival order.
func (l *Ledger) Events() []model.AnomalyEvent {
	out := make([]model.AnomalyEvent, len(l.events))
	copy(out, l.events)
	return out
}

// Counts groups the log by type.
func (l *Ledger) Counts() map[model.AnomalyType]int {
	counts := make(map[model.AnomalyType]int)
	for _, ev := range l.events {
		counts[ev.Type]++
	}
	return counts
}

// WarningFor derives the advisory label for a score.
func WarningFor(score int) model.WarningLevel {
	switch {
	case score > dangerThreshold:
		return model.WarningDanger
	case score > warningThreshold:
		return model.WarningZone
	default:
		return model.WarningNone
	}
}
