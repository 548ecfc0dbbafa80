package model

import (
	"encoding/json"
	"strings"
)

// RiskAnalysis is the response of the risk-analysis service.
// RiskAssessment is usually a serialized {"riskLevel","details"} object but may
// be plain prose.
type RiskAnalysis struct {
	RiskAssessment   string `json:"riskAssessment"`
	CheatingPatterns string `json:"cheatingPatterns"`
	Recommendations  string `json:"recommendations"`
}

// RiskLevel is the coarse level inside a structured assessment.
type RiskLevel string

const (
	RiskUnknown RiskLevel = ""
	RiskLow     RiskLevel = "Low"
	RiskMedium  RiskLevel = "Medium"
	RiskHigh    RiskLevel = "High"
)

// AnalysisStatus tracks the asynchronous risk-analysis call.
type AnalysisStatus string

const (
	AnalysisNone    AnalysisStatus = ""
	AnalysisPending AnalysisStatus = "pending"
	AnalysisReady   AnalysisStatus = "ready"
	AnalysisFailed  AnalysisStatus = "failed"
)

// AnalysisState is what the results view renders.
type AnalysisState struct {
	Status    AnalysisStatus `json:"status,omitempty"`
	Result    *RiskAnalysis  `json:"result,omitempty"`
	RiskLevel RiskLevel      `json:"risk_level,omitempty"`
	Details   string         `json:"details,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// ParseRiskAssessment decodes a structured assessment. Plain prose is not an
// error: it comes back unstructured with the whole text as details.
func ParseRiskAssessment(raw string) (level RiskLevel, details string, structured bool) {
	var parsed struct {
		RiskLevel RiskLevel `json:"riskLevel"`
		Details   string    `json:"details"`
	}
	trimmed := strings.TrimSpace(raw)
	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	if err := json.Unmarshal([]byte(trimmed), &parsed); err != nil {
		return RiskUnknown, raw, false
	}
	switch parsed.RiskLevel {
	case RiskLow, RiskMedium, RiskHigh:
	default:
		parsed.RiskLevel = RiskUnknown
	}
	return parsed.RiskLevel, parsed.Details, true
}
