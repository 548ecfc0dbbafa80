package model

import "time"

// SubmissionPayload is everything handed to the submission sink.
type SubmissionPayload struct {
	SessionID    string         `json:"session_id"`
	User         UserDetails    `json:"user"`
	Answers      AnswerSet      `json:"answers"`
	Questions    []Question     `json:"questions"`
	AnomalyScore int            `json:"anomaly_score"`
	AnomalyLog   []AnomalyEvent `json:"anomaly_log"`
	StartedAt    time.Time      `json:"started_at"`
	SubmittedAt  time.Time      `json:"submitted_at"`
}

// DurationMinutes is the elapsed time rounded to whole minutes.
func (p SubmissionPayload) DurationMinutes() int {
	if p.StartedAt.IsZero() {
		return 0
	}
	d := p.SubmittedAt.Sub(p.StartedAt)
	if d < 0 {
		return 0
	}
	return int((d + 30*time.Second) / time.Minute)
}
