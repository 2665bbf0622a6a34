package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/nbelghith/authwatch/internal/chainlog"
	"github.com/nbelghith/authwatch/internal/events"
	"github.com/nbelghith/authwatch/internal/idgen"
	"github.com/nbelghith/authwatch/internal/logging"
	"github.com/nbelghith/authwatch/internal/metrics"
)

// Sink records the final decision for an event: local label + audit record
// first (mandatory), ledger anchor second (best-effort).
type Sink struct {
	events        events.Store
	records       Store
	ledger        chainlog.Submitter
	ledgerTimeout time.Duration
}

// NewSink creates an audit sink. ledger may be a disabled client; the sink
// then skips submission entirely on every call.
func NewSink(eventStore events.Store, recordStore Store, ledger chainlog.Submitter) *Sink {
	return &Sink{
		events:        eventStore,
		records:       recordStore,
		ledger:        ledger,
		ledgerTimeout: chainlog.DefaultTimeout,
	}
}

// WithLedgerTimeout overrides the per-submission ledger timeout.
func (s *Sink) WithLedgerTimeout(d time.Duration) *Sink {
	s.ledgerTimeout = d
	return s
}

// Record persists the risk code for ev and appends the audit record.
// Returns an error only when local persistence fails; ledger failure is
// logged and surfaced as an empty LedgerTx on the returned record.
func (s *Sink) Record(ctx context.Context, ev *events.LoginEvent, code events.RiskLabel) (*Record, error) {
	log := logging.L(ctx)

	// The label write is mandatory. Events on the rule short-circuit path
	// are inserted already carrying their final label; everything else is
	// still pending here.
	if ev.RiskLabel == events.LabelPending {
		if err := s.events.UpdateRiskLabel(ctx, ev.ID, code); err != nil {
			return nil, fmt.Errorf("audit: persist risk label: %w", err)
		}
		ev.RiskLabel = code
	}

	hash := ContentHash(ev)
	rec := &Record{
		ID:          idgen.WithPrefix("aud_"),
		EventID:     ev.ID,
		ContentHash: HashHex(hash),
		RiskCode:    string(code),
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.records.Insert(ctx, rec); err != nil {
		return nil, fmt.Errorf("audit: persist record: %w", err)
	}

	if !s.ledger.Enabled() {
		metrics.LedgerSubmissionsTotal.WithLabelValues("skipped").Inc()
		return rec, nil
	}

	// Best-effort from here on. The submission gets its own deadline and
	// is never retried inline; the reconciler owns retries.
	subCtx, cancel := context.WithTimeout(ctx, s.ledgerTimeout)
	defer cancel()

	result, err := s.ledger.Submit(subCtx, hash, string(code))
	if err != nil {
		metrics.LedgerSubmissionsTotal.WithLabelValues("error").Inc()
		log.Warn("ledger submission failed, record left unanchored",
			"record_id", rec.ID, "event_id", ev.ID, "error", err)
		return rec, nil
	}

	metrics.LedgerSubmissionsTotal.WithLabelValues("ok").Inc()
	if err := s.records.SetLedgerTx(ctx, rec.ID, result.TxHash); err != nil {
		// The anchor exists on chain; only the local pointer is missing.
		// The reconciler will re-anchor, which is harmless (append-only).
		log.Warn("failed to store ledger tx hash", "record_id", rec.ID, "error", err)
		return rec, nil
	}
	rec.LedgerTx = result.TxHash

	log.Info("decision anchored on ledger",
		"record_id", rec.ID, "event_id", ev.ID, "tx", result.TxHash, "risk_code", code)
	return rec, nil
}
