package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type verdict struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason"`
}

type sentRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	GenerationConfig struct {
		ResponseMimeType string          `json:"responseMimeType"`
		ResponseSchema   json.RawMessage `json:"responseSchema"`
		Temperature      *float64        `json:"temperature"`
	} `json:"generationConfig"`
}

func reply(text string) string {
	b, _ := json.Marshal(map[string]any{
		"candidates": []any{map[string]any{
			"content": map[string]any{"role": "model", "parts": []any{map[string]any{"text": text}}},
		}},
	})
	return string(b)
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(context.Background(), Config{BaseURL: srv.URL, Model: "gemini-2.5-flash", APIKey: "secret"}, zerolog.Nop())
	require.NoError(t, err)
	return c
}

func TestGenerateJSON_Success(t *testing.T) {
	var got sentRequest
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/gemini-2.5-flash:generateContent", r.URL.Path)
		assert.Equal(t, "secret", r.Header.Get("x-goog-api-key"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply("```json\n{\"isValid\":false,\"reason\":\"Random characters.\"}\n```")))
	})

	var v verdict
	schema := json.RawMessage(`{"type":"OBJECT","properties":{"isValid":{"type":"BOOLEAN"}},"required":["isValid"]}`)
	require.NoError(t, c.GenerateJSON(context.Background(), "check asdf", schema, &v))

	assert.False(t, v.IsValid)
	assert.Equal(t, "Random characters.", v.Reason)
	require.Len(t, got.Contents, 1)
	require.Len(t, got.Contents[0].Parts, 1)
	assert.Equal(t, "check asdf", got.Contents[0].Parts[0].Text)
	assert.Equal(t, "application/json", got.GenerationConfig.ResponseMimeType)
	assert.Contains(t, string(got.GenerationConfig.ResponseSchema), `"isValid"`)
	require.NotNil(t, got.GenerationConfig.Temperature)
	assert.Zero(t, *got.GenerationConfig.Temperature)
}

func TestGenerateJSON_APIError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"model not found","status":"INVALID_ARGUMENT"}}`))
	})

	err := c.GenerateJSON(context.Background(), "p", nil, &verdict{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model not found")
}

func TestGenerateJSON_EmptyCandidates(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	})

	err := c.GenerateJSON(context.Background(), "p", nil, &verdict{})
	assert.True(t, errors.Is(err, ErrEmptyResponse))
}

func TestGenerateJSON_MalformedOutput(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply("not json at all")))
	})

	err := c.GenerateJSON(context.Background(), "p", nil, &verdict{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode model output")
}

func TestGenerateJSON_BadSchema(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("request must not be sent")
	})

	err := c.GenerateJSON(context.Background(), "p", json.RawMessage(`{not json`), &verdict{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode response schema")
}

func TestStripFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripFences("```\n{\"a\":1}```"))
	assert.Equal(t, `{"a":1}`, stripFences(`  {"a":1} `))
}
