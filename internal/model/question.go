package model

import (
	"errors"
	"fmt"
)

// QuestionKind enumerates how a question is answered.
// Values match the question bank JSON ("type" field).
type QuestionKind string

const (
	KindMultipleSelect QuestionKind = "mcq"
	KindSingleChoice   QuestionKind = "single-choice"
	KindFreeText       QuestionKind = "subjective"
)

// Valid reports whether k is a known kind.
func (k QuestionKind) Valid() bool {
	switch k {
	case KindMultipleSelect, KindSingleChoice, KindFreeText:
		return true
	}
	return false
}

// Question is a single immutable question record supplied by the bank.
type Question struct {
	ID        int          `json:"id"`
	Prompt    string       `json:"question"`
	Kind      QuestionKind `json:"type"`
	Options   []string     `json:"options"`
	WordLimit *int         `json:"wordLimit,omitempty"`
}

// HasOption reports whether opt is one of the question's choices.
func (q Question) HasOption(opt string) bool {
	for _, o := range q.Options {
		if o == opt {
			return true
		}
	}
	return false
}

// ErrInvalidBank is returned when a question bank fails validation.
var ErrInvalidBank = errors.New("invalid question bank")

// ValidateBank checks id positivity and uniqueness and kind/options consistency.
func ValidateBank(questions []Question) error {
	seen := make(map[int]struct{}, len(questions))
	for i, q := range questions {
		if q.ID <= 0 {
			return fmt.Errorf("%w: question at index %d has non-positive id %d", ErrInvalidBank, i, q.ID)
		}
		if _, dup := seen[q.ID]; dup {
			return fmt.Errorf("%w: duplicate id %d", ErrInvalidBank, q.ID)
		}
		seen[q.ID] = struct{}{}

		if !q.Kind.Valid() {
			return fmt.Errorf("%w: question %d (index %d) has unknown type %q", ErrInvalidBank, q.ID, i, q.Kind)
		}
		switch q.Kind {
		case KindFreeText:
			if len(q.Options) > 0 {
				return fmt.Errorf("%w: free text question %d must not have options", ErrInvalidBank, q.ID)
			}
		default:
			if len(q.Options) == 0 {
				return fmt.Errorf("%w: choice question %d has no options", ErrInvalidBank, q.ID)
			}
		}
		if q.WordLimit != nil && *q.WordLimit <= 0 {
			return fmt.Errorf("%w: question %d has non-positive word limit", ErrInvalidBank, q.ID)
		}
	}
	return nil
}
