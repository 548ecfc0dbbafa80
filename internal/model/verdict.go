package model

// Verdict is the plausibility checker's judgement on one identity field.
type Verdict struct {
	IsValid bool   `json:"isValid"`
	Reason  string `json:"reason"`
}
