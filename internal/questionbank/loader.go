// Package questionbank supplies the immutable question list a session runs on.
package questionbank

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// ErrEmptyBank is returned when a source yields no questions.
var ErrEmptyBank = errors.New("question bank is empty")

// Loader returns the question bank in presentation order.
type Loader interface {
	Load(ctx context.Context) ([]model.Question, error)
}

// FileLoader reads a questions.json file. The file is either a bare array
// or an object with a "questions" array. Per-question "answer" keys are
// accepted and ignored.
type FileLoader struct {
	Path string
}

func (l FileLoader) Load(_ context.Context) ([]model.Question, error) {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read question bank: %w", err)
	}
	questions, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", l.Path, err)
	}
	return questions, nil
}

// Parse decodes and validates a question bank document.
func Parse(raw []byte) ([]model.Question, error) {
	raw = bytes.TrimSpace(raw)
	var questions []model.Question
	if len(raw) > 0 && raw[0] == '{' {
		var doc struct {
			Questions []model.Question `json:"questions"`
		}
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode question bank: %w", err)
		}
		questions = doc.Questions
	} else if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("decode question bank: %w", err)
	}
	return checked(questions)
}

// BankStore is the slice of the question repository the loader needs.
type BankStore interface {
	ListBank(ctx context.Context) ([]model.Question, error)
}

// PostgresLoader reads the questions table.
type PostgresLoader struct {
	Store BankStore
}

func (l PostgresLoader) Load(ctx context.Context) ([]model.Question, error) {
	questions, err := l.Store.ListBank(ctx)
	if err != nil {
		return nil, fmt.Errorf("list question bank: %w", err)
	}
	return checked(questions)
}

func checked(questions []model.Question) ([]model.Question, error) {
	if len(questions) == 0 {
		return nil, ErrEmptyBank
	}
	for i := range questions {
		if questions[i].Kind == model.KindFreeText && len(questions[i].Options) == 0 {
			questions[i].Options = nil
		}
	}
	if err := model.ValidateBank(questions); err != nil {
		return nil, err
	}
	return questions, nil
}
