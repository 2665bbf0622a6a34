// Package events defines the login event model and its persistence contract.
//
// Every login attempt, admitted or blocked, produces exactly one
// LoginEvent. Events are immutable once written, except for the risk
// label, which is set once after classification completes. The trailing
// 60-second window of events for an identity or origin is the input to
// the sequence classifier.
package events

import (
	"context"
	"errors"
	"time"
)

// RiskLabel is the categorical verdict attached to a login event.
type RiskLabel string

const (
	LabelPending      RiskLabel = "pending"
	LabelBenign       RiskLabel = "benign"
	LabelBruteForce   RiskLabel = "brute_force"
	LabelHijack       RiskLabel = "hijack"
	LabelSQLInjection RiskLabel = "sql_injection"
)

// Valid reports whether l is a known risk label.
func (l RiskLabel) Valid() bool {
	switch l {
	case LabelPending, LabelBenign, LabelBruteForce, LabelHijack, LabelSQLInjection:
		return true
	}
	return false
}

// WindowDuration is the trailing window used for sequence classification.
const WindowDuration = 60 * time.Second

// LoginEvent is one recorded login attempt.
type LoginEvent struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Origin    string    `json:"origin"` // client IP address
	Timestamp time.Time `json:"timestamp"`
	Succeeded bool      `json:"succeeded"` // credential-match outcome
	Locale    string    `json:"locale"`    // claimed country
	Device    string    `json:"device"`    // claimed device class
	Agent     string    `json:"agent"`     // detected client agent
	RiskLabel RiskLabel `json:"riskLabel"`
}

var (
	// ErrNotFound is returned when no event matches the query.
	ErrNotFound = errors.New("events: event not found")

	// ErrLabelFinal is returned when updating a label that has already
	// been set to a non-pending value.
	ErrLabelFinal = errors.New("events: risk label already final")
)

// Store is the persistence contract for login events.
//
// Window must observe events inserted earlier in the same call chain
// (read-after-write within one evaluation).
type Store interface {
	// Insert appends a new event. The event's ID must be set by the caller.
	Insert(ctx context.Context, ev *LoginEvent) error

	// UpdateRiskLabel sets the risk label of a pending event. The label is
	// write-once: events already carrying a final label return ErrLabelFinal.
	UpdateRiskLabel(ctx context.Context, id string, label RiskLabel) error

	// Window returns events matching identity OR origin with a timestamp at
	// or after since, ordered ascending by timestamp.
	Window(ctx context.Context, identity, origin string, since time.Time) ([]*LoginEvent, error)

	// LastSuccessful returns the most recent event for identity with a
	// successful credential match, or ErrNotFound.
	LastSuccessful(ctx context.Context, identity string) (*LoginEvent, error)

	// Recent returns the newest events across all identities, descending
	// by timestamp, for the ops view.
	Recent(ctx context.Context, limit int) ([]*LoginEvent, error)
}
