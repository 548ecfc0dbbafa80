package proctor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Checker judges whether identity fields look human-entered.
type Checker interface {
	CheckName(ctx context.Context, name string) (model.Verdict, error)
	CheckEmail(ctx context.Context, email string) (model.Verdict, error)
}

// Analyzer produces the qualitative risk summary for a finished session.
type Analyzer interface {
	Analyze(ctx context.Context, log []model.AnomalyEvent, score int) (model.RiskAnalysis, error)
}

// Sink persists the final submission.
type Sink interface {
	Submit(ctx context.Context, payload model.SubmissionPayload) error
}

// EventSink receives audit events. Implementations must not block.
type EventSink interface {
	AnomalyRecorded(sessionID string, rec Recorded)
	PhaseChanged(sessionID string, from, to model.Phase)
	SubmissionFinished(sessionID string, state model.SubmissionState)
	AnalysisFinished(sessionID string, state model.AnalysisState)
}

// EventSinks fans audit events out to several sinks in order.
type EventSinks []EventSink

func (s EventSinks) AnomalyRecorded(id string, rec Recorded) {
	for _, sink := range s {
		sink.AnomalyRecorded(id, rec)
	}
}

func (s EventSinks) PhaseChanged(id string, from, to model.Phase) {
	for _, sink := range s {
		sink.PhaseChanged(id, from, to)
	}
}

func (s EventSinks) SubmissionFinished(id string, state model.SubmissionState) {
	for _, sink := range s {
		sink.SubmissionFinished(id, state)
	}
}

func (s EventSinks) AnalysisFinished(id string, state model.AnalysisState) {
	for _, sink := range s {
		sink.AnalysisFinished(id, state)
	}
}

// Deps are the collaborators of a Session. Checker and Sink are required.
type Deps struct {
	Checker  Checker
	Analyzer Analyzer
	Sink     Sink
	Events   EventSink
	// Notify receives every UI update in order. It is called with the
	// session lock held and must not block.
	Notify        func(Update)
	Logger        *zerolog.Logger
	Now           func() time.Time
	TickerFactory TickerFactory
}

// Session is the quiz state machine: Idle → Active (→ Review) → Submitted.
// All mutation is serialized by mu, so events are processed one at a time in
// arrival order.
type Session struct {
	id        string
	questions []model.Question
	policy    Policy

	checker  Checker
	analyzer Analyzer
	sink     Sink
	events   EventSink
	notify   func(Update)
	now      func() time.Time
	log      zerolog.Logger

	detector *Detector
	timer    *Timer

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	mu               sync.Mutex
	phase            model.Phase
	index            int
	answers          model.AnswerSet
	ledger           *Ledger
	user             *model.UserDetails
	startedAt        time.Time
	payload          *model.SubmissionPayload
	submission       model.SubmissionState
	analysis         model.AnalysisState
	analysisCancel   context.CancelFunc
	fullscreenDenied string
	epoch            uint64
	closed           bool
}

// NewSession builds an Idle session over questions.
func NewSession(id string, questions []model.Question, policy Policy, deps Deps) (*Session, error) {
	if len(questions) == 0 {
		return nil, ErrNoQuestions
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if deps.Checker == nil || deps.Sink == nil {
		return nil, errors.New("session requires a checker and a sink")
	}
	if policy.Durations == nil {
		policy.Durations = DefaultDurations()
	}

	log := zerolog.Nop()
	if deps.Logger != nil {
		log = *deps.Logger
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	notify := deps.Notify
	if notify == nil {
		notify = func(Update) {}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:         id,
		questions:  append([]model.Question(nil), questions...),
		policy:     policy,
		checker:    deps.Checker,
		analyzer:   deps.Analyzer,
		sink:       deps.Sink,
		events:     deps.Events,
		notify:     notify,
		now:        now,
		log:        log.With().Str("session_id", id).Logger(),
		baseCtx:    ctx,
		baseCancel: cancel,
		phase:      model.PhaseIdle,
		answers:    model.AnswerSet{},
		ledger:     NewLedger(),
	}

	timerOpts := []TimerOption{WithTickHandler(s.handleTick)}
	if deps.TickerFactory != nil {
		timerOpts = append(timerOpts, WithTickerFactory(deps.TickerFactory))
	}
	s.timer = NewTimer(policy.initialDuration(questions[0]), s.handleTimeout, timerOpts...)
	s.detector = NewDetector(s.forwardSignal,
		WithWeights(policy.Weights),
		WithFullscreenRecovery(policy.FullscreenRetryDelay, s.recoverFullscreen),
	)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Questions returns the bank the session runs over.
func (s *Session) Questions() []model.Question {
	return append([]model.Question(nil), s.questions...)
}

// Phase returns the current phase.
func (s *Session) Phase() model.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// ─── Idle → Active ──────────────────────────────────────────────────

// Start validates the user's identity with the plausibility checker and
// enters the Active phase.
func (s *Session) Start(ctx context.Context, details model.UserDetails) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase != model.PhaseIdle {
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	epoch := s.epoch
	s.mu.Unlock()

	if err := s.checkIdentity(ctx, details); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.phase != model.PhaseIdle || s.epoch != epoch {
		return ErrInvalidPhase
	}

	user := details
	s.user = &user
	s.startedAt = s.now()
	s.ledger = NewLedger()
	s.answers = model.AnswerSet{}
	s.index = 0
	s.payload = nil
	s.submission = model.SubmissionState{}
	s.analysis = model.AnalysisState{}
	s.fullscreenDenied = ""

	s.setPhaseLocked(model.PhaseActive)
	s.notify(Update{Kind: UpdateDirective, Directive: DirectiveRequestFullscreen})

	s.timer.SetDuration(s.policy.initialDuration(s.questions[0]))
	s.timer.Reset()
	s.timer.SetActive(true)
	s.emitQuestionLocked()

	s.log.Info().Str("class", user.ClassLevel).Msg("Session started")
	return nil
}

func (s *Session) checkIdentity(ctx context.Context, details model.UserDetails) error {
	verdict, err := s.checker.CheckName(ctx, details.FullName)
	if err != nil {
		s.log.Warn().Err(err).Msg("Name plausibility check failed")
		return fmt.Errorf("%w: %v", ErrValidationUnavailable, err)
	}
	if !verdict.IsValid {
		reason := verdict.Reason
		if reason == "" {
			reason = "The provided name appears to be invalid."
		}
		return &FieldError{Field: "fullName", Reason: reason}
	}

	verdict, err = s.checker.CheckEmail(ctx, details.Email)
	if err != nil {
		s.log.Warn().Err(err).Msg("Email plausibility check failed")
		return fmt.Errorf("%w: %v", ErrValidationUnavailable, err)
	}
	if !verdict.IsValid {
		reason := verdict.Reason
		if reason == "" {
			reason = "The provided email appears to be invalid."
		}
		return &FieldError{Field: "email", Reason: reason}
	}
	return nil
}

// ─── Within Active ──────────────────────────────────────────────────

// Answer upserts the answer for questionID. Under forward-only navigation,
// answers to any question other than the current one are ignored and
// reported as not applied.
func (s *Session) Answer(questionID int, ans model.Answer) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false, ErrClosed
	}
	if s.phase != model.PhaseActive {
		return false, ErrInvalidPhase
	}

	idx := s.indexOf(questionID)
	if idx < 0 {
		return false, fmt.Errorf("%w: %d", ErrUnknownQuestion, questionID)
	}
	if !s.policy.Navigation.AllowBack && idx != s.index {
		return false, nil
	}
	if err := validateAnswer(s.questions[idx], ans); err != nil {
		return false, err
	}
	if ans.Multi {
		ans.Choices = append([]string(nil), ans.Choices...)
	}
	s.answers[questionID] = ans
	return true, nil
}

// Advance moves to the next question. On the last question it enters review
// when the policy has a review step, and submits otherwise.
func (s *Session) Advance(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.phase != model.PhaseActive {
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	if s.index < len(s.questions)-1 {
		s.index++
		s.questionChangedLocked()
		s.mu.Unlock()
		return nil
	}
	if s.policy.Navigation.HasReviewStep {
		s.enterReviewLocked()
		s.mu.Unlock()
		return nil
	}
	payload, epoch := s.beginSubmitLocked()
	s.mu.Unlock()
	return s.deliver(ctx, payload, epoch)
}

// Previous moves back one question. It is a no-op unless backward navigation
// is allowed.
func (s *Session) Previous() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.policy.Navigation.AllowBack || s.closed || s.phase != model.PhaseActive || s.index == 0 {
		return false
	}
	s.index--
	s.questionChangedLocked()
	return true
}

// Review enters the review step early. No-op without a review step.
func (s *Session) Review() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.policy.Navigation.HasReviewStep || s.closed || s.phase != model.PhaseActive {
		return false
	}
	s.enterReviewLocked()
	return true
}

// Edit leaves review to re-edit the question at index. No-op unless
// backward navigation is allowed and the session is in review.
func (s *Session) Edit(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.policy.Navigation.AllowBack || s.closed || s.phase != model.PhaseReview {
		return false
	}
	if index < 0 || index >= len(s.questions) {
		return false
	}
	s.index = index
	s.setPhaseLocked(model.PhaseActive)
	s.questionChangedLocked()
	return true
}

// ─── Active → Submitted ─────────────────────────────────────────────

// Submit ends the session and hands the payload to the sink. The phase
// transition happens exactly once; a delivery failure is returned but the
// session stays Submitted with the payload retained for RetrySubmission.
func (s *Session) Submit(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	switch s.phase {
	case model.PhaseSubmitted:
		s.mu.Unlock()
		return ErrAlreadySubmitted
	case model.PhaseActive, model.PhaseReview:
	default:
		s.mu.Unlock()
		return ErrInvalidPhase
	}
	payload, epoch := s.beginSubmitLocked()
	s.mu.Unlock()
	return s.deliver(ctx, payload, epoch)
}

// RetrySubmission re-sends the retained payload after a failed delivery.
func (s *Session) RetrySubmission(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != model.PhaseSubmitted || s.payload == nil ||
		s.submission.Status != model.SubmissionFailed {
		s.mu.Unlock()
		return ErrNothingToRetry
	}
	payload := *s.payload
	payload.SubmittedAt = s.now()
	s.payload = &payload
	s.submission.Status = model.SubmissionPending
	s.submission.Error = ""
	s.submission.Attempts++
	epoch := s.epoch
	s.notify(Update{Kind: UpdateSubmission, Submission: s.submissionCopyLocked()})
	s.mu.Unlock()
	return s.deliver(ctx, payload, epoch)
}

// beginSubmitLocked performs the state transition and returns the frozen
// payload to deliver.
func (s *Session) beginSubmitLocked() (model.SubmissionPayload, uint64) {
	s.timer.Stop()
	s.setPhaseLocked(model.PhaseSubmitted)
	s.notify(Update{Kind: UpdateDirective, Directive: DirectiveExitFullscreen})

	payload := model.SubmissionPayload{
		SessionID:    s.id,
		Answers:      s.answers.Clone(),
		Questions:    append([]model.Question(nil), s.questions...),
		AnomalyScore: s.ledger.Score(),
		AnomalyLog:   s.ledger.Events(),
		StartedAt:    s.startedAt,
		SubmittedAt:  s.now(),
	}
	if s.user != nil {
		payload.User = *s.user
	}
	s.payload = &payload
	s.submission = model.SubmissionState{Status: model.SubmissionPending, Attempts: 1}
	s.notify(Update{Kind: UpdateSubmission, Submission: s.submissionCopyLocked()})

	s.startAnalysisLocked()
	return payload, s.epoch
}

func (s *Session) deliver(ctx context.Context, payload model.SubmissionPayload, epoch uint64) error {
	err := s.sink.Submit(ctx, payload)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		return err
	}
	if err != nil {
		s.log.Error().Err(err).Int("attempt", s.submission.Attempts).Msg("Submission failed")
		s.submission.Status = model.SubmissionFailed
		s.submission.Error = "Failed to submit your answers. Please try again."
	} else {
		at := payload.SubmittedAt
		s.submission.Status = model.SubmissionSucceeded
		s.submission.Error = ""
		s.submission.SubmittedAt = &at
		s.log.Info().Int("score", payload.AnomalyScore).Int("answers", len(payload.Answers)).Msg("Submission delivered")
	}
	state := s.submissionCopyLocked()
	s.notify(Update{Kind: UpdateSubmission, Submission: state})
	if s.events != nil {
		s.events.SubmissionFinished(s.id, *state)
	}
	if err != nil {
		return fmt.Errorf("deliver submission: %w", err)
	}
	return nil
}

func (s *Session) startAnalysisLocked() {
	if s.analyzer == nil {
		return
	}
	events := s.ledger.Events()
	score := s.ledger.Score()
	epoch := s.epoch

	ctx, cancel := context.WithCancel(s.baseCtx)
	s.analysisCancel = cancel
	s.analysis = model.AnalysisState{Status: model.AnalysisPending}
	s.notify(Update{Kind: UpdateAnalysis, Analysis: s.analysisCopyLocked()})

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer cancel()
		result, err := s.analyzer.Analyze(ctx, events, score)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.epoch != epoch || s.closed {
			return
		}
		if err != nil {
			s.log.Error().Err(err).Msg("Risk analysis failed")
			s.analysis = model.AnalysisState{
				Status: model.AnalysisFailed,
				Error:  "An error occurred while analyzing the results.",
			}
		} else {
			level, details, _ := model.ParseRiskAssessment(result.RiskAssessment)
			res := result
			s.analysis = model.AnalysisState{
				Status:    model.AnalysisReady,
				Result:    &res,
				RiskLevel: level,
				Details:   details,
			}
		}
		state := s.analysisCopyLocked()
		s.notify(Update{Kind: UpdateAnalysis, Analysis: state})
		if s.events != nil {
			s.events.AnalysisFinished(s.id, *state)
		}
	}()
}

// ─── Submitted → Idle ───────────────────────────────────────────────

// Restart resets a submitted session to Idle defaults.
func (s *Session) Restart() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.phase != model.PhaseSubmitted {
		return ErrInvalidPhase
	}
	s.epoch++
	if s.analysisCancel != nil {
		s.analysisCancel()
		s.analysisCancel = nil
	}
	s.timer.Stop()
	s.timer.SetDuration(s.policy.initialDuration(s.questions[0]))
	s.timer.Reset()

	s.index = 0
	s.answers = model.AnswerSet{}
	s.ledger = NewLedger()
	s.user = nil
	s.startedAt = time.Time{}
	s.payload = nil
	s.submission = model.SubmissionState{}
	s.analysis = model.AnalysisState{}
	s.fullscreenDenied = ""
	s.setPhaseLocked(model.PhaseIdle)
	return nil
}

// ─── Browser signals ────────────────────────────────────────────────

// Observe runs a raw browser event through the detector and returns the
// directive for the client. Suppression applies in every phase; the signal
// reaches the ledger only while the session is Active.
func (s *Session) Observe(ev model.BrowserEvent) Directive {
	return s.detector.Observe(ev)
}

func (s *Session) forwardSignal(sig model.AnomalySignal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != model.PhaseActive {
		s.log.Debug().Str("type", string(sig.Type)).Str("phase", string(s.phase)).Msg("Dropped anomaly outside active phase")
		return
	}

	rec := s.ledger.Record(sig.Type, sig.Details, sig.Weight, s.now())
	msg := fmt.Sprintf("Action: %s. This has been logged.", sig.Type)
	if w := rec.Warning.Message(); w != "" {
		msg += " " + w
	}
	s.notify(Update{Kind: UpdateAnomaly, Anomaly: &rec, Message: msg})
	if s.events != nil {
		s.events.AnomalyRecorded(s.id, rec)
	}
	s.log.Info().
		Str("type", string(sig.Type)).
		Int("weight", sig.Weight).
		Int("score", rec.Score).
		Msg("Anomaly recorded")
}

func (s *Session) recoverFullscreen() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.phase != model.PhaseActive {
		return
	}
	s.notify(Update{Kind: UpdateDirective, Directive: DirectiveRequestFullscreen})
}

// ReportFullscreenDenied records that the browser refused fullscreen. The
// user is told; the session is not blocked.
func (s *Session) ReportFullscreenDenied(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if reason == "" {
		reason = "request denied"
	}
	s.fullscreenDenied = reason
	s.notify(Update{
		Kind:    UpdateNotice,
		Message: fmt.Sprintf("Failed to enter fullscreen mode: %s. Please enable it to continue.", reason),
	})
	s.log.Warn().Str("reason", reason).Msg("Fullscreen denied")
}

// ─── Timer callbacks ────────────────────────────────────────────────

func (s *Session) handleTick(gen uint64, remaining int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || gen != s.timer.Generation() {
		return
	}
	s.notify(Update{Kind: UpdateTimer, Timer: &model.TimerState{RemainingSeconds: remaining, Running: true}})
}

func (s *Session) handleTimeout(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.timer.Generation() {
		s.mu.Unlock()
		return
	}

	nav := s.policy.Navigation
	switch {
	case s.policy.Timing == TimingPerQuestion && s.phase == model.PhaseActive:
		s.notify(Update{Kind: UpdateNotice, Message: "Time's up for this question."})
		if s.index < len(s.questions)-1 {
			s.index++
			s.questionChangedLocked()
			s.mu.Unlock()
			return
		}
		if nav.HasReviewStep {
			s.enterReviewLocked()
			s.mu.Unlock()
			return
		}
	case s.policy.Timing == TimingSession && s.phase == model.PhaseActive && nav.HasReviewStep:
		s.notify(Update{Kind: UpdateNotice, Message: "Time's Up! Please review and submit your answers."})
		s.enterReviewLocked()
		s.mu.Unlock()
		return
	case s.policy.Timing == TimingSession && (s.phase == model.PhaseActive || s.phase == model.PhaseReview):
		s.notify(Update{Kind: UpdateNotice, Message: "Time's Up!"})
	default:
		s.mu.Unlock()
		return
	}

	payload, epoch := s.beginSubmitLocked()
	s.mu.Unlock()
	if err := s.deliver(s.baseCtx, payload, epoch); err != nil {
		s.log.Warn().Err(err).Msg("Auto-submission on timeout was not delivered")
	}
}

// ─── Helpers ────────────────────────────────────────────────────────

func (s *Session) questionChangedLocked() {
	if s.policy.Timing == TimingPerQuestion {
		s.timer.SetDuration(s.policy.Durations.For(s.questions[s.index].Kind))
		s.timer.Reset()
		s.timer.SetActive(true)
	}
	s.emitQuestionLocked()
}

func (s *Session) enterReviewLocked() {
	if s.policy.Timing == TimingPerQuestion {
		s.timer.Stop()
	}
	s.setPhaseLocked(model.PhaseReview)
}

func (s *Session) emitQuestionLocked() {
	q := s.questions[s.index]
	idx := s.index
	ts := s.timer.State()
	s.notify(Update{Kind: UpdateQuestion, Index: &idx, Question: &q, Timer: &ts})
}

func (s *Session) setPhaseLocked(to model.Phase) {
	from := s.phase
	if from == to {
		return
	}
	s.phase = to
	s.notify(Update{Kind: UpdatePhase, Phase: to})
	if s.events != nil {
		s.events.PhaseChanged(s.id, from, to)
	}
	s.log.Debug().Str("from", string(from)).Str("to", string(to)).Msg("Phase changed")
}

func (s *Session) indexOf(questionID int) int {
	for i, q := range s.questions {
		if q.ID == questionID {
			return i
		}
	}
	return -1
}

func (s *Session) submissionCopyLocked() *model.SubmissionState {
	st := s.submission
	return &st
}

func (s *Session) analysisCopyLocked() *model.AnalysisState {
	st := s.analysis
	return &st
}

func validateAnswer(q model.Question, ans model.Answer) error {
	switch q.Kind {
	case model.KindMultipleSelect:
		if !ans.Multi {
			return fmt.Errorf("%w: question %d expects a list of options", ErrInvalidAnswer, q.ID)
		}
		seen := make(map[string]struct{}, len(ans.Choices))
		for _, c := range ans.Choices {
			if !q.HasOption(c) {
				return fmt.Errorf("%w: %q is not an option of question %d", ErrInvalidAnswer, c, q.ID)
			}
			if _, dup := seen[c]; dup {
				return fmt.Errorf("%w: %q selected twice", ErrInvalidAnswer, c)
			}
			seen[c] = struct{}{}
		}
	case model.KindSingleChoice:
		if ans.Multi {
			return fmt.Errorf("%w: question %d expects a single option", ErrInvalidAnswer, q.ID)
		}
		if !q.HasOption(ans.Text) {
			return fmt.Errorf("%w: %q is not an option of question %d", ErrInvalidAnswer, ans.Text, q.ID)
		}
	case model.KindFreeText:
		if ans.Multi {
			return fmt.Errorf("%w: question %d expects text", ErrInvalidAnswer, q.ID)
		}
		if q.WordLimit != nil && len(strings.Fields(ans.Text)) > *q.WordLimit {
			return fmt.Errorf("%w: answer exceeds %d words", ErrInvalidAnswer, *q.WordLimit)
		}
	}
	return nil
}

// Close tears the session down: timer stopped, detector detached, in-flight
// analysis cancelled.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.timer.Stop()
	s.mu.Unlock()

	s.detector.Close()
	s.baseCancel()
	s.wg.Wait()
}
