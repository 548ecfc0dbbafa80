// Package llm sends structured-output prompts to Gemini through the genai SDK.
package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// ErrEmptyResponse is returned when the model produced no usable text.
var ErrEmptyResponse = errors.New("llm returned no content")

// Config holds the connection settings. An empty BaseURL uses the SDK default.
type Config struct {
	BaseURL string
	Model   string
	APIKey  string
	Timeout time.Duration
}

// Client wraps a genai client bound to one model.
type Client struct {
	genai *genai.Client
	model string
	log   zerolog.Logger
}

// NewClient creates a client. A zero timeout defaults to 30s.
func NewClient(ctx context.Context, cfg Config, log zerolog.Logger) (*Client, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	cc := &genai.ClientConfig{
		APIKey:     cfg.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: cfg.Timeout},
	}
	if cfg.BaseURL != "" {
		cc.HTTPOptions.BaseURL = strings.TrimRight(cfg.BaseURL, "/") + "/"
	}

	gc, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{
		genai: gc,
		model: cfg.Model,
		log:   log.With().Str("component", "llm").Str("model", cfg.Model).Logger(),
	}, nil
}

// GenerateJSON sends prompt, constraining the output to schema, and decodes the
// model's JSON answer into out.
func (c *Client) GenerateJSON(ctx context.Context, prompt string, schema json.RawMessage, out any) error {
	gcfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}
	if len(schema) > 0 {
		var s genai.Schema
		if err := json.Unmarshal(schema, &s); err != nil {
			return fmt.Errorf("decode response schema: %w", err)
		}
		gcfg.ResponseSchema = &s
	}

	start := time.Now()
	resp, err := c.genai.Models.GenerateContent(ctx, c.model, genai.Text(prompt), gcfg)
	if err != nil {
		return fmt.Errorf("generate content: %w", err)
	}
	c.log.Debug().Dur("took", time.Since(start)).Msg("generateContent")

	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return ErrEmptyResponse
	}
	if err := json.Unmarshal([]byte(stripFences(text)), out); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}
