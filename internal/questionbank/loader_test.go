package questionbank

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-proctor/internal/model"
)

const sampleBank = `[
  {"id": 1, "question": "Describe photosynthesis.", "type": "subjective", "options": [], "answer": "", "wordLimit": 100},
  {"id": 2, "question": "Capital of France?", "type": "single-choice", "options": ["Paris", "Rome"], "answer": "Paris"},
  {"id": 3, "question": "Pick the primes.", "type": "mcq", "options": ["2", "3", "4"], "answer": ["2", "3"]}
]`

func TestFileLoader_ReadsArrayAndIgnoresAnswers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "questions.json")
	require.NoError(t, os.WriteFile(path, []byte(sampleBank), 0o600))

	qs, err := FileLoader{Path: path}.Load(context.Background())
	require.NoError(t, err)
	require.Len(t, qs, 3)
	assert.Equal(t, model.KindFreeText, qs[0].Kind)
	assert.Nil(t, qs[0].Options)
	require.NotNil(t, qs[0].WordLimit)
	assert.Equal(t, 100, *qs[0].WordLimit)
	assert.Equal(t, []string{"2", "3", "4"}, qs[2].Options)
}

func TestParse_WrappedDocument(t *testing.T) {
	qs, err := Parse([]byte(`{"questions": ` + sampleBank + `}`))
	require.NoError(t, err)
	assert.Len(t, qs, 3)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"empty", `[]`, ErrEmptyBank},
		{"zero id", `[{"id":0,"question":"a","type":"subjective"}]`, model.ErrInvalidBank},
		{"negative id", `[{"id":-3,"question":"a","type":"subjective"}]`, model.ErrInvalidBank},
		{"duplicate id", `[{"id":1,"question":"a","type":"subjective"},{"id":1,"question":"b","type":"subjective"}]`, model.ErrInvalidBank},
		{"unknown type", `[{"id":1,"question":"a","type":"essay"}]`, model.ErrInvalidBank},
		{"choice without options", `[{"id":1,"question":"a","type":"mcq","options":[]}]`, model.ErrInvalidBank},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}

	_, err := Parse([]byte(`{not json`))
	assert.Error(t, err)
}

func TestFileLoader_MissingFile(t *testing.T) {
	_, err := FileLoader{Path: filepath.Join(t.TempDir(), "nope.json")}.Load(context.Background())
	assert.ErrorIs(t, err, os.ErrNotExist)
}

type stubStore struct {
	qs  []model.Question
	err error
}

func (s stubStore) ListBank(context.Context) ([]model.Question, error) { return s.qs, s.err }

func TestPostgresLoader(t *testing.T) {
	qs, err := PostgresLoader{Store: stubStore{qs: []model.Question{
		{ID: 9, Prompt: "Why?", Kind: model.KindFreeText, Options: []string{}},
	}}}.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, qs[0].ID)

	boom := errors.New("connection reset")
	_, err = PostgresLoader{Store: stubStore{err: boom}}.Load(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = PostgresLoader{Store: stubStore{}}.Load(context.Background())
	assert.ErrorIs(t, err, ErrEmptyBank)
}
