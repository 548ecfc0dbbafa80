package proctor

import (
	"fmt"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// TimingPolicy selects the countdown granularity. Only one is live at a time.
type TimingPolicy string

const (
	TimingPerQuestion TimingPolicy = "per-question"
	TimingSession     TimingPolicy = "session"
)

// NavigationPolicy controls backward movement and the review step.
type NavigationPolicy struct {
	AllowBack     bool `json:"allow_back"`
	HasReviewStep bool `json:"has_review_step"`
}

// DurationByKind maps question kind to its countdown in seconds.
type DurationByKind map[model.QuestionKind]int

// DefaultDurations gives text and single-choice questions two minutes and
// multiple-select one minute.
func DefaultDurations() DurationByKind {
	return DurationByKind{
		model.KindFreeText:       120,
		model.KindSingleChoice:   120,
		model.KindMultipleSelect: 60,
	}
}

// For returns the duration for kind, falling back to 120s for unmapped kinds.
func (d DurationByKind) For(kind model.QuestionKind) int {
	if s, ok := d[kind]; ok && s > 0 {
		return s
	}
	return 120
}

// Policy bundles the configurable session behaviour.
type Policy struct {
	Timing               TimingPolicy
	Navigation           NavigationPolicy
	Durations            DurationByKind
	SessionSeconds       int
	Weights              map[model.AnomalyType]int
	FullscreenRetryDelay time.Duration
}

// DefaultPolicy is per-question timing with forward-only navigation and
// direct submission on the last question.
func DefaultPolicy() Policy {
	return Policy{
		Timing:               TimingPerQuestion,
		Durations:            DefaultDurations(),
		SessionSeconds:       3000,
		FullscreenRetryDelay: DefaultFullscreenRetryDelay,
	}
}

// Validate rejects unknown timing modes and non-positive session durations.
func (p Policy) Validate() error {
	switch p.Timing {
	case TimingPerQuestion:
	case TimingSession:
		if p.SessionSeconds <= 0 {
			return fmt.Errorf("session timing requires a positive duration, got %d", p.SessionSeconds)
		}
	default:
		return fmt.Errorf("unknown timing policy %q", p.Timing)
	}
	return nil
}

// initialDuration is the countdown armed when the session starts.
func (p Policy) initialDuration(first model.Question) int {
	if p.Timing == TimingSession {
		return p.SessionSeconds
	}
	return p.Durations.For(first.Kind)
}
