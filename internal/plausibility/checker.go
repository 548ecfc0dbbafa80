// Package plausibility decides whether identity fields look like something a
// real person typed.
package plausibility

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Generator is the subset of the LLM client the checker needs.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, schema json.RawMessage, out any) error
}

var verdictSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "isValid": {"type": "BOOLEAN"},
    "reason": {"type": "STRING"}
  },
  "required": ["isValid", "reason"]
}`)

const namePrompt = `You are an expert at validating user inputs. Analyze the provided name to determine if it is a real, plausible human name.

The name is: %s

Consider the following a non-exhaustive list of invalid names:
- Random characters (e.g., "aaa", "asdfghjkl", "riy98h3")
- Keyboard mashing (e.g., "qwert", "zxcvb")
- Placeholder text (e.g., "Test User", "John Doe", "User")
- Offensive or inappropriate words
- Single characters (unless it's a common initial)
- Names with random numbers mixed in (e.g., "John123", "abc456")
- Names that are clearly fake or made up

If the name is invalid, provide a concise reason. If it seems valid, just confirm it.`

const emailPrompt = `You are an expert at validating user email addresses. Analyze the provided email to determine if it is a real, plausible email address.

The email is: %s

Consider the following a non-exhaustive list of invalid emails:
- Random characters (e.g., "aaa@test.com", "riy98h3@gmail.com")
- Keyboard mashing (e.g., "qwert@test.com")
- Placeholder text (e.g., "test@test.com", "user@example.com")
- Obviously fake emails (e.g., "fake@fake.com", "dummy@dummy.com")
- Emails with random numbers and letters (e.g., "abc123@test.com", "xyz789@gmail.com")
- Emails that don't follow proper email format

If the email is invalid, provide a concise reason. If it seems valid, just confirm it.`

// LLMChecker asks a language model for a verdict.
type LLMChecker struct {
	gen Generator
}

func NewLLMChecker(gen Generator) *LLMChecker {
	return &LLMChecker{gen: gen}
}

func (c *LLMChecker) CheckName(ctx context.Context, name string) (model.Verdict, error) {
	return c.check(ctx, fmt.Sprintf(namePrompt, quote(name)))
}

func (c *LLMChecker) CheckEmail(ctx context.Context, email string) (model.Verdict, error) {
	return c.check(ctx, fmt.Sprintf(emailPrompt, quote(email)))
}

func (c *LLMChecker) check(ctx context.Context, prompt string) (model.Verdict, error) {
	var v model.Verdict
	if err := c.gen.GenerateJSON(ctx, prompt, verdictSchema, &v); err != nil {
		return model.Verdict{}, fmt.Errorf("plausibility check: %w", err)
	}
	v.Reason = strings.TrimSpace(v.Reason)
	return v, nil
}

// quote keeps user input on one line so it cannot masquerade as instructions.
func quote(s string) string {
	s = strings.NewReplacer("\r", " ", "\n", " ").Replace(strings.TrimSpace(s))
	return `"` + s + `"`
}

// BypassChecker accepts everything. Selected by configuration.
type BypassChecker struct{}

func (BypassChecker) CheckName(context.Context, string) (model.Verdict, error) {
	return model.Verdict{IsValid: true}, nil
}

func (BypassChecker) CheckEmail(context.Context, string) (model.Verdict, error) {
	return model.Verdict{IsValid: true}, nil
}
