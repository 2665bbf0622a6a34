// Package login sequences the risk-decision pipeline for each login
// attempt and exposes the HTTP login surface.
//
// Per attempt: resolve the prior successful event, run the context-shift
// rule (short-circuiting to a hijack block when it trips), persist the
// event, rebuild the 60-second window, call the classifier twice
// (current-only and full-window, concurrently), fuse the verdicts, and
// hand the result to the audit sink. The credential-match outcome is
// computed up front; the risk code can only make the response stricter,
// never admit a bad credential.
package login

import (
	"time"

	"github.com/nbelghith/authwatch/internal/audit"
	"github.com/nbelghith/authwatch/internal/classifier"
	"github.com/nbelghith/authwatch/internal/decision"
	"github.com/nbelghith/authwatch/internal/events"
	"github.com/nbelghith/authwatch/internal/rules"
)

// Attempt is one incoming login attempt.
type Attempt struct {
	Identity  string
	Secret    string
	Origin    string // client IP
	Locale    string // claimed country
	Device    string // claimed device class
	UserAgent string // raw User-Agent header
	Agent     string // explicit agent override (simulation); wins over UserAgent
}

// Disposition is the HTTP-level outcome of an evaluated attempt.
type Disposition string

const (
	// DispositionAdmitted: credentials matched and the risk code is benign.
	DispositionAdmitted Disposition = "admitted"
	// DispositionBadCredentials: benign risk but the credential check failed.
	DispositionBadCredentials Disposition = "bad_credentials"
	// DispositionHijackSuspected: soft reject, identity verification required.
	DispositionHijackSuspected Disposition = "hijack_suspected"
	// DispositionBlocked: hard reject (sql_injection or brute_force).
	DispositionBlocked Disposition = "blocked"
)

// Result is the terminal outcome of one evaluation.
type Result struct {
	Disposition  Disposition
	RiskCode     events.RiskLabel
	CredentialOK bool
	Event        *events.LoginEvent
	Rule         rules.Assessment
	Verdict      *decision.Verdict // nil on the rule short-circuit path
	AuditRecord  *audit.Record
}

// Notifier receives evaluated verdicts for live streaming. Implementations
// must not block.
type Notifier interface {
	VerdictRecorded(ev *events.LoginEvent, result *Result)
}

// Classifier and Prediction are re-exported for wiring convenience.
type (
	Classifier = classifier.Classifier
	Prediction = classifier.Prediction
)

// Orchestrator wires the pipeline components together.
type Orchestrator struct {
	events   events.Store
	creds    CredentialStore
	cls      Classifier
	sink     *audit.Sink
	window   time.Duration
	notifier Notifier
	now      func() time.Time
}

// NewOrchestrator creates the per-request pipeline driver.
func NewOrchestrator(store events.Store, creds CredentialStore, cls Classifier, sink *audit.Sink) *Orchestrator {
	return &Orchestrator{
		events: store,
		creds:  creds,
		cls:    cls,
		sink:   sink,
		window: events.WindowDuration,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithNotifier attaches a verdict notifier.
func (o *Orchestrator) WithNotifier(n Notifier) *Orchestrator {
	o.notifier = n
	return o
}

// WithWindow overrides the classification window (tests).
func (o *Orchestrator) WithWindow(d time.Duration) *Orchestrator {
	o.window = d
	return o
}

// WithClock overrides the time source (tests).
func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	o.now = now
	return o
}
