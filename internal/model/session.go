package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// Phase enumerates the quiz session states.
type Phase string

const (
	PhaseIdle      Phase = "idle"
	PhaseActive    Phase = "active"
	PhaseReview    Phase = "review"
	PhaseSubmitted Phase = "submitted"
)

// UserDetails is captured once when the session starts.
type UserDetails struct {
	FullName   string `json:"fullName" binding:"required,notblank,min=2,max=120"`
	Email      string `json:"email" binding:"required,email,max=254"`
	ClassLevel string `json:"class" binding:"required,oneof=7 8 9 10"`
}

// NoAnswerText is what an unanswered question flattens to.
const NoAnswerText = "No answer provided"

// Answer is either a single string (single choice, free text) or an ordered
// list of selections (multiple select). On the wire it is a JSON string or array.
type Answer struct {
	Text    string
	Choices []string
	Multi   bool
}

// TextAnswer builds a single-valued answer.
func TextAnswer(s string) Answer { return Answer{Text: s} }

// ChoicesAnswer builds a multi-valued answer.
func ChoicesAnswer(choices ...string) Answer {
	return Answer{Choices: append([]string(nil), choices...), Multi: true}
}

// Empty reports whether the answer carries no content.
func (a Answer) Empty() bool {
	if a.Multi {
		return len(a.Choices) == 0
	}
	return a.Text == ""
}

// Flatten renders the answer as sheet text.
func (a Answer) Flatten() string {
	if a.Empty() {
		return NoAnswerText
	}
	if a.Multi {
		return strings.Join(a.Choices, ", ")
	}
	return a.Text
}

func (a Answer) MarshalJSON() ([]byte, error) {
	if a.Multi {
		if a.Choices == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(a.Choices)
	}
	return json.Marshal(a.Text)
}

func (a *Answer) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.New("answer must be a string or an array of strings")
	}
	if data[0] == '[' {
		var choices []string
		if err := json.Unmarshal(data, &choices); err != nil {
			return err
		}
		*a = Answer{Choices: choices, Multi: true}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.New("answer must be a string or an array of strings")
	}
	*a = Answer{Text: s}
	return nil
}

// AnswerSet maps question id to its latest answer.
type AnswerSet map[int]Answer

// Clone returns an independent copy.
func (s AnswerSet) Clone() AnswerSet {
	out := make(AnswerSet, len(s))
	for id, a := range s {
		if a.Multi {
			a.Choices = append([]string(nil), a.Choices...)
		}
		out[id] = a
	}
	return out
}

// TimerState describes the countdown bound to the current question.
type TimerState struct {
	RemainingSeconds int  `json:"remaining_seconds"`
	Running          bool `json:"running"`
}

// SubmissionStatus tracks delivery to the submission sink.
type SubmissionStatus string

const (
	SubmissionNone      SubmissionStatus = ""
	SubmissionPending   SubmissionStatus = "pending"
	SubmissionSucceeded SubmissionStatus = "succeeded"
	SubmissionFailed    SubmissionStatus = "failed"
)

// SubmissionState is the outcome of the last delivery attempt.
type SubmissionState struct {
	Status      SubmissionStatus `json:"status,omitempty"`
	Error       string           `json:"error,omitempty"`
	Attempts    int              `json:"attempts"`
	SubmittedAt *time.Time       `json:"submitted_at,omitempty"`
}
