// Package riskanalysis asks a language model for a qualitative assessment of a
// finished session's anomaly log.
package riskanalysis

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Generator is the subset of the LLM client the analyzer needs.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, schema json.RawMessage, out any) error
}

const noAnomalies = "No anomalies recorded."

var analysisSchema = json.RawMessage(`{
  "type": "OBJECT",
  "properties": {
    "riskAssessment": {"type": "STRING"},
    "cheatingPatterns": {"type": "STRING"},
    "recommendations": {"type": "STRING"}
  },
  "required": ["riskAssessment", "cheatingPatterns", "recommendations"]
}`)

const analysisPrompt = `You are an expert in analyzing user behavior logs and anomaly scores to detect potential cheating during online tests.

Analyze the following user behavior logs and anomaly score to provide a risk assessment, identify any cheating patterns, and provide recommendations for further investigation.

User Behavior Logs: %s
Anomaly Score: %d

Based on this information, provide a detailed risk assessment, a summary of identified cheating patterns (if any), and recommendations for further actions.
Be brief and concise. The riskAssessment field should be a JSON string with a "riskLevel" ("Low", "Medium", "High") and "details" field.`

// LLMAnalyzer implements the session's Analyzer.
type LLMAnalyzer struct {
	gen Generator
}

func NewLLMAnalyzer(gen Generator) *LLMAnalyzer {
	return &LLMAnalyzer{gen: gen}
}

func (a *LLMAnalyzer) Analyze(ctx context.Context, events []model.AnomalyEvent, score int) (model.RiskAnalysis, error) {
	var out model.RiskAnalysis
	prompt := fmt.Sprintf(analysisPrompt, FormatLog(events), score)
	if err := a.gen.GenerateJSON(ctx, prompt, analysisSchema, &out); err != nil {
		return model.RiskAnalysis{}, fmt.Errorf("risk analysis: %w", err)
	}
	return out, nil
}

// FormatLog renders one "[timestamp] type: details" line per event.
func FormatLog(events []model.AnomalyEvent) string {
	if len(events) == 0 {
		return noAnomalies
	}
	lines := make([]string, len(events))
	for i, ev := range events {
		details := ev.Details
		if details == "" {
			details = "N/A"
		}
		lines[i] = fmt.Sprintf("[%s] %s: %s", ev.Timestamp, ev.Type, details)
	}
	return strings.Join(lines, "\n")
}
