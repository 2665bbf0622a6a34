package decision

import (
	"testing"

	"github.com/nbelghith/authwatch/internal/classifier"
	"github.com/nbelghith/authwatch/internal/events"
	"github.com/nbelghith/authwatch/internal/rules"
)

func TestDecidePriority(t *testing.T) {
	tests := []struct {
		name    string
		rule    rules.Assessment
		current classifier.Prediction
		history classifier.Prediction
		want    events.RiskLabel
	}{
		{
			name:    "all benign",
			current: classifier.Prediction{Label: "benign"},
			history: classifier.Prediction{Label: "benign"},
			want:    events.LabelBenign,
		},
		{
			name:    "rule beats everything",
			rule:    rules.Assessment{Score: 80, Triggered: true},
			current: classifier.Prediction{Label: "sql_injection", Confidence: 0.99},
			history: classifier.Prediction{Label: "brute_force", Confidence: 0.99},
			want:    events.LabelHijack,
		},
		{
			name:    "current sql beats window brute force",
			current: classifier.Prediction{Label: "sql_injection", Confidence: 0.9},
			history: classifier.Prediction{Label: "brute_force", Confidence: 0.9},
			want:    events.LabelSQLInjection,
		},
		{
			name:    "window brute force beats window hijack",
			current: classifier.Prediction{Label: "benign"},
			history: classifier.Prediction{Label: "brute_force and usurpation mix"},
			want:    events.LabelBruteForce,
		},
		{
			name:    "window hijack",
			current: classifier.Prediction{Label: "benign"},
			history: classifier.Prediction{Label: "account_usurpation"},
			want:    events.LabelHijack,
		},
		{
			// Display labels straight off the served model.
			name:    "model display label sql beats brute",
			current: classifier.Prediction{Label: "SQL_Injection_detected", Confidence: 0.93},
			history: classifier.Prediction{Label: "Brute Force", Confidence: 0.88},
			want:    events.LabelSQLInjection,
		},
		{
			name:    "model display label hijack",
			current: classifier.Prediction{Label: "Bénin"},
			history: classifier.Prediction{Label: "Usurpation de Compte", Confidence: 0.91},
			want:    events.LabelHijack,
		},
		{
			name:    "sql only counts on the current event",
			current: classifier.Prediction{Label: "benign"},
			history: classifier.Prediction{Label: "sql_injection"},
			want:    events.LabelBenign,
		},
		{
			name:    "brute force only counts on the window",
			current: classifier.Prediction{Label: "brute_force"},
			history: classifier.Prediction{Label: "benign"},
			want:    events.LabelBenign,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Decide(tt.rule, tt.current, tt.history)
			if v.Code != tt.want {
				t.Errorf("code = %s, want %s", v.Code, tt.want)
			}
		})
	}
}

func TestDecideCarriesInputs(t *testing.T) {
	v := Decide(
		rules.Assessment{Score: 70, Triggered: true},
		classifier.Prediction{Label: "benign", Confidence: 0.6},
		classifier.Prediction{Label: "account_usurpation", Confidence: 0.8},
	)
	if !v.RuleTriggered {
		t.Error("rule trigger not carried")
	}
	if v.CurrentLabel != "benign" || v.HistoryLabel != "account_usurpation" {
		t.Errorf("labels not carried: %+v", v)
	}
	if v.CurrentConfidence != 0.6 || v.HistoryConfidence != 0.8 {
		t.Errorf("confidences not carried: %+v", v)
	}
}
