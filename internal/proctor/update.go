package proctor

import (
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// UpdateKind tags a UI update pushed to the client.
type UpdateKind string

const (
	UpdateAnomaly    UpdateKind = "anomaly"
	UpdateTimer      UpdateKind = "timer"
	UpdateQuestion   UpdateKind = "question"
	UpdatePhase      UpdateKind = "phase"
	UpdateDirective  UpdateKind = "directive"
	UpdateNotice     UpdateKind = "notice"
	UpdateSubmission UpdateKind = "submission"
	UpdateAnalysis   UpdateKind = "analysis"
)

// ClientDirective is an instruction the browser must carry out.
type ClientDirective string

const (
	DirectiveRequestFullscreen ClientDirective = "request_fullscreen"
	DirectiveExitFullscreen    ClientDirective = "exit_fullscreen"
)

// Update is a single state change the client should render. Only the fields
// relevant to Kind are set.
type Update struct {
	Kind       UpdateKind             `json:"kind"`
	Phase      model.Phase            `json:"phase,omitempty"`
	Anomaly    *Recorded              `json:"anomaly,omitempty"`
	Message    string                 `json:"message,omitempty"`
	Timer      *model.TimerState      `json:"timer,omitempty"`
	Index      *int                   `json:"index,omitempty"`
	Question   *model.Question        `json:"question,omitempty"`
	Directive  ClientDirective        `json:"directive,omitempty"`
	Submission *model.SubmissionState `json:"submission,omitempty"`
	Analysis   *model.AnalysisState   `json:"analysis,omitempty"`
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID               string                    `json:"id"`
	Phase            model.Phase               `json:"phase"`
	Index            int                       `json:"index"`
	Total            int                       `json:"total"`
	Current          *model.Question           `json:"current,omitempty"`
	Answers          model.AnswerSet           `json:"answers"`
	Score            int                       `json:"anomaly_score"`
	Warning          model.WarningLevel        `json:"warning,omitempty"`
	Log              []model.AnomalyEvent      `json:"anomaly_log"`
	Counts           map[model.AnomalyType]int `json:"anomaly_counts"`
	Timer            model.TimerState          `json:"timer"`
	Timing           TimingPolicy              `json:"timing_policy"`
	Navigation       NavigationPolicy          `json:"navigation"`
	CanGoBack        bool                      `json:"can_go_back"`
	User             *model.UserDetails        `json:"user,omitempty"`
	StartedAt        *time.Time                `json:"started_at,omitempty"`
	Submission       model.SubmissionState     `json:"submission"`
	Analysis         model.AnalysisState       `json:"analysis"`
	FullscreenDenied string                    `json:"fullscreen_denied,omitempty"`
}

// Snapshot captures the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		ID:               s.id,
		Phase:            s.phase,
		Index:            s.index,
		Total:            len(s.questions),
		Answers:          s.answers.Clone(),
		Score:            s.ledger.Score(),
		Warning:          WarningFor(s.ledger.Score()),
		Log:              s.ledger.Events(),
		Counts:           s.ledger.Counts(),
		Timer:            s.timer.State(),
		Timing:           s.policy.Timing,
		Navigation:       s.policy.Navigation,
		CanGoBack:        s.policy.Navigation.AllowBack && s.phase == model.PhaseActive && s.index > 0,
		Submission:       s.submission,
		Analysis:         s.analysis,
		FullscreenDenied: s.fullscreenDenied,
	}
	if s.phase == model.PhaseActive {
		q := s.questions[s.index]
		snap.Current = &q
	}
	if s.user != nil {
		u := *s.user
		snap.User = &u
	}
	if !s.startedAt.IsZero() {
		t := s.startedAt
		snap.StartedAt = &t
	}
	return snap
}
