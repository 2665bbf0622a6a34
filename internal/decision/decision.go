// Package decision fuses the rule-based context-shift assessment with the
// two classifier predictions into one risk code.
//
// Priority order, first match wins:
//
//  1. rule-triggered hijack
//  2. current-event SQL injection (current only; the window does not
//     promote sql)
//  3. window brute force (window only)
//  4. window hijack
//  5. benign
package decision

import (
	"github.com/nbelghith/authwatch/internal/classifier"
	"github.com/nbelghith/authwatch/internal/events"
	"github.com/nbelghith/authwatch/internal/rules"
)

// Verdict is the terminal output of decision fusion.
type Verdict struct {
	Code              events.RiskLabel `json:"code"`
	CurrentLabel      string           `json:"currentLabel,omitempty"`
	HistoryLabel      string           `json:"historyLabel,omitempty"`
	CurrentConfidence float64          `json:"currentConfidence,omitempty"`
	HistoryConfidence float64          `json:"historyConfidence,omitempty"`
	RuleTriggered     bool             `json:"ruleTriggered"`
}

// Decide fuses the rule assessment with the current-event and full-window
// predictions. Pure per-call decision; no persisted state.
func Decide(hijack rules.Assessment, current, history classifier.Prediction) Verdict {
	v := Verdict{
		CurrentLabel:      current.Label,
		HistoryLabel:      history.Label,
		CurrentConfidence: current.Confidence,
		HistoryConfidence: history.Confidence,
		RuleTriggered:     hijack.Triggered,
	}

	switch {
	case hijack.Triggered:
		v.Code = events.LabelHijack
	case current.IsSQLInjection():
		v.Code = events.LabelSQLInjection
	case history.IsBruteForce():
		v.Code = events.LabelBruteForce
	case history.IsHijack():
		v.Code = events.LabelHijack
	default:
		v.Code = events.LabelBenign
	}
	return v
}
