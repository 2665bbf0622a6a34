// Package rules implements deterministic context-shift scoring for login
// attempts.
//
// The incoming attempt's claimed context is compared against the identity's
// most recent successful login. Three independent signals contribute a
// fixed weight when mismatched: origin address (40), locale (40), device
// class (30). A single plausible change (device only, 30) stays below the
// trigger threshold; any two mismatched signals reach at least 70 and trip
// the rule.
package rules

import "github.com/nbelghith/authwatch/internal/events"

// Signal weights and trigger threshold. These are policy constants, not
// derived values.
const (
	WeightOrigin = 40
	WeightLocale = 40
	WeightDevice = 30

	TriggerThreshold = 60
)

// Context is the claimed context of the incoming attempt.
type Context struct {
	Origin string
	Locale string
	Device string
}

// Assessment is the outcome of rule-based scoring.
type Assessment struct {
	Score     int      `json:"score"`
	Triggered bool     `json:"triggered"`
	Factors   []string `json:"factors"`
}

// Assess compares the incoming context against the prior successful event.
// A nil prior means there is no baseline; the assessment is zero and never
// triggered. Pure function, always returns a value.
func Assess(prior *events.LoginEvent, probe Context) Assessment {
	if prior == nil {
		return Assessment{Factors: []string{}}
	}

	a := Assessment{Factors: []string{}}
	if prior.Origin != probe.Origin {
		a.Score += WeightOrigin
		a.Factors = append(a.Factors, "origin mismatch")
	}
	if prior.Locale != probe.Locale {
		a.Score += WeightLocale
		a.Factors = append(a.Factors, "locale mismatch")
	}
	if prior.Device != probe.Device {
		a.Score += WeightDevice
		a.Factors = append(a.Factors, "device mismatch")
	}
	a.Triggered = a.Score >= TriggerThreshold
	return a
}
