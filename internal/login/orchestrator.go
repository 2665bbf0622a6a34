package login

import (
	"context"
	"errors"
	"fmt"

	"github.com/nbelghith/authwatch/internal/decision"
	"github.com/nbelghith/authwatch/internal/events"
	"github.com/nbelghith/authwatch/internal/idgen"
	"github.com/nbelghith/authwatch/internal/logging"
	"github.com/nbelghith/authwatch/internal/metrics"
	"github.com/nbelghith/authwatch/internal/rules"
	"github.com/nbelghith/authwatch/internal/sequence"
	"github.com/nbelghith/authwatch/internal/traces"
)

// Evaluate runs the full pipeline for one attempt. It returns an error
// only when local persistence fails; upstream (classifier, ledger)
// failures degrade inside their components and still yield a verdict.
func (o *Orchestrator) Evaluate(ctx context.Context, a Attempt) (*Result, error) {
	log := logging.L(ctx)
	ctx, span := traces.StartSpan(ctx, "login.evaluate",
		traces.Identity(a.Identity),
		traces.Origin(a.Origin),
	)
	defer span.End()

	agent := a.Agent
	if agent == "" {
		agent = DetectAgent(a.UserAgent)
	}

	// Credential outcome first: the verdict can only tighten it. A missing
	// identity is a failed credential, not an error; the attempt is still
	// recorded and classified.
	credentialOK := false
	if a.Identity != "" {
		ok, err := o.creds.Verify(ctx, a.Identity, a.Secret)
		if err != nil {
			return nil, fmt.Errorf("login: verify credentials: %w", err)
		}
		credentialOK = ok
	}

	// Step 1-2: rule-based context-shift check against the last successful
	// login. A read failure here only costs us the baseline: the rule
	// cannot trigger, classification still runs.
	prior, err := o.events.LastSuccessful(ctx, a.Identity)
	if err != nil && !errors.Is(err, events.ErrNotFound) {
		log.Warn("failed to load prior successful event, rule check skipped", "error", err)
		prior = nil
	}

	assessment := rules.Assess(prior, rules.Context{
		Origin: a.Origin,
		Locale: a.Locale,
		Device: a.Device,
	})

	if assessment.Triggered {
		return o.ruleShortCircuit(ctx, a, agent, credentialOK, assessment)
	}

	// Step 3: persist the event pending so the window query sees it.
	ev := &events.LoginEvent{
		ID:        idgen.WithPrefix("evt_"),
		Identity:  a.Identity,
		Origin:    a.Origin,
		Timestamp: o.now(),
		Succeeded: credentialOK,
		Locale:    a.Locale,
		Device:    a.Device,
		Agent:     agent,
		RiskLabel: events.LabelPending,
	}
	if err := o.events.Insert(ctx, ev); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: persist event: %w", err)
	}

	// Step 4: rebuild the window, classify, decide.
	window, err := o.events.Window(ctx, a.Identity, a.Origin, o.now().Add(-o.window))
	if err != nil {
		// Degrade to a single-event window rather than dropping the attempt.
		log.Warn("window query failed, classifying event in isolation", "error", err)
		window = nil
	}
	window = spliceCurrent(window, ev)
	span.SetAttributes(traces.EventID(ev.ID), traces.WindowSize(len(window)))

	full, last := sequence.Build(window)

	current, history := o.classifyBoth(ctx, last, full)
	verdict := decision.Decide(assessment, current, history)
	span.SetAttributes(traces.RiskCode(string(verdict.Code)))

	rec, err := o.sink.Record(ctx, ev, verdict.Code)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	result := &Result{
		Disposition:  disposition(verdict.Code, credentialOK),
		RiskCode:     verdict.Code,
		CredentialOK: credentialOK,
		Event:        ev,
		Rule:         assessment,
		Verdict:      &verdict,
		AuditRecord:  rec,
	}
	o.finish(ctx, ev, result)
	return result, nil
}

// ruleShortCircuit handles a triggered context-shift rule: the event is
// persisted already labeled hijack, audited, and blocked. The classifier
// is deliberately not consulted on this path.
func (o *Orchestrator) ruleShortCircuit(ctx context.Context, a Attempt, agent string, credentialOK bool, assessment rules.Assessment) (*Result, error) {
	log := logging.L(ctx)

	ev := &events.LoginEvent{
		ID:        idgen.WithPrefix("evt_"),
		Identity:  a.Identity,
		Origin:    a.Origin,
		Timestamp: o.now(),
		Succeeded: credentialOK,
		Locale:    a.Locale,
		Device:    a.Device,
		Agent:     agent,
		RiskLabel: events.LabelHijack,
	}
	if err := o.events.Insert(ctx, ev); err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("login: persist hijack event: %w", err)
	}

	rec, err := o.sink.Record(ctx, ev, events.LabelHijack)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return nil, err
	}

	metrics.RuleTriggersTotal.Inc()
	log.Warn("context-shift rule triggered",
		"identity", a.Identity,
		"score", assessment.Score,
		"factors", assessment.Factors,
	)

	result := &Result{
		Disposition:  DispositionHijackSuspected,
		RiskCode:     events.LabelHijack,
		CredentialOK: credentialOK,
		Event:        ev,
		Rule:         assessment,
		AuditRecord:  rec,
	}
	o.finish(ctx, ev, result)
	return result, nil
}

// classifyBoth issues the current-event and full-window predictions
// concurrently and joins both before returning. The classifier client
// already degrades failures to benign, so there is no partial-result path.
func (o *Orchestrator) classifyBoth(ctx context.Context, last, full string) (current, history Prediction) {
	ctx, span := traces.StartSpan(ctx, "login.classify")
	defer span.End()

	done := make(chan struct{})
	go func() {
		defer close(done)
		history = o.cls.Predict(ctx, full)
	}()
	current = o.cls.Predict(ctx, last)
	<-done
	return current, history
}

// finish records metrics and notifies listeners; shared tail of both paths.
func (o *Orchestrator) finish(ctx context.Context, ev *events.LoginEvent, result *Result) {
	metrics.RiskVerdictsTotal.WithLabelValues(string(result.RiskCode)).Inc()
	switch result.Disposition {
	case DispositionAdmitted:
		metrics.LoginAttemptsTotal.WithLabelValues("admitted").Inc()
	case DispositionBadCredentials, DispositionHijackSuspected:
		metrics.LoginAttemptsTotal.WithLabelValues("rejected").Inc()
	case DispositionBlocked:
		metrics.LoginAttemptsTotal.WithLabelValues("blocked").Inc()
	}
	if o.notifier != nil {
		o.notifier.VerdictRecorded(ev, result)
	}
	logging.L(ctx).Info("login attempt evaluated",
		"identity", ev.Identity,
		"origin", ev.Origin,
		"risk_code", result.RiskCode,
		"disposition", result.Disposition,
	)
}

// spliceCurrent makes sure the just-written event appears in the window
// exactly once, using the in-memory copy so the detected agent (and any
// field the store round-trip might lag on) is taken from this request.
func spliceCurrent(window []*events.LoginEvent, ev *events.LoginEvent) []*events.LoginEvent {
	for i, w := range window {
		if w.ID == ev.ID {
			window[i] = ev
			return window
		}
	}
	return append(window, ev)
}

// disposition maps a fused risk code onto the HTTP-level outcome.
func disposition(code events.RiskLabel, credentialOK bool) Disposition {
	switch code {
	case events.LabelSQLInjection, events.LabelBruteForce:
		return DispositionBlocked
	case events.LabelHijack:
		return DispositionHijackSuspected
	}
	if !credentialOK {
		return DispositionBadCredentials
	}
	return DispositionAdmitted
}
