package model

import "time"

// AnomalyType is the closed set of browser signals the detector classifies.
// The string values are what ends up in the audit log and the submission sheet.
type AnomalyType string

const (
	AnomalyVisibilityHidden AnomalyType = "Visibility Hidden"
	AnomalyWindowBlur       AnomalyType = "Window Blur"
	AnomalyFullscreenExit   AnomalyType = "Fullscreen Exit"
	AnomalyContextMenu      AnomalyType = "Context Menu"
	AnomalyCopyAttempt      AnomalyType = "Copy Attempt"
	AnomalyPasteAttempt     AnomalyType = "Paste Attempt"
	AnomalyProhibitedKey    AnomalyType = "Prohibited Key"
)

// AnomalyTypes lists every variant in declaration order.
var AnomalyTypes = []AnomalyType{
	AnomalyVisibilityHidden,
	AnomalyWindowBlur,
	AnomalyFullscreenExit,
	AnomalyContextMenu,
	AnomalyCopyAttempt,
	AnomalyPasteAttempt,
	AnomalyProhibitedKey,
}

// ISOTimeLayout renders timestamps the way the browser's toISOString does.
const ISOTimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatISO formats t as UTC ISO-8601 with millisecond precision.
func FormatISO(t time.Time) string {
	return t.UTC().Format(ISOTimeLayout)
}

// AnomalyEvent is one immutable entry of the anomaly ledger.
type AnomalyEvent struct {
	Timestamp string      `json:"timestamp"`
	Type      AnomalyType `json:"type"`
	Details   string      `json:"details,omitempty"`
}

// AnomalySignal is a classified browser signal with its default weight.
type AnomalySignal struct {
	Type    AnomalyType `json:"type"`
	Details string      `json:"details"`
	Weight  int         `json:"weight"`
}

// WarningLevel is the advisory label derived from the anomaly score.
type WarningLevel string

const (
	WarningNone   WarningLevel = ""
	WarningZone   WarningLevel = "warning"
	WarningDanger WarningLevel = "danger"
)

// Message returns the text shown to the test-taker for the level.
func (w WarningLevel) Message() string {
	switch w {
	case WarningDanger:
		return "Danger Zone! Further violations may lead to disqualification."
	case WarningZone:
		return "Warning Zone! Please adhere to the rules."
	default:
		return ""
	}
}
