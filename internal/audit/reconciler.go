package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/nbelghith/authwatch/internal/chainlog"
	"github.com/nbelghith/authwatch/internal/metrics"
	"github.com/nbelghith/authwatch/internal/retry"
)

// Reconciler periodically re-submits audit records that never received a
// ledger transaction. This is the only place ledger submissions are
// retried; the request path abandons a failed submission immediately.
type Reconciler struct {
	records  Store
	ledger   chainlog.Submitter
	interval time.Duration
	backoff  time.Duration
	batch    int
	logger   *slog.Logger
	stop     chan struct{}
}

// NewReconciler creates an audit reconciler.
func NewReconciler(records Store, ledger chainlog.Submitter, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		records:  records,
		ledger:   ledger,
		interval: 5 * time.Minute,
		backoff:  2 * time.Second,
		batch:    50,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

// WithInterval overrides the reconciliation interval.
func (r *Reconciler) WithInterval(d time.Duration) *Reconciler {
	r.interval = d
	return r
}

// WithBackoff overrides the per-record retry backoff.
func (r *Reconciler) WithBackoff(d time.Duration) *Reconciler {
	r.backoff = d
	return r
}

// Start begins the reconciliation loop. Call in a goroutine.
func (r *Reconciler) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			r.reconcile(ctx)
		}
	}
}

// Stop signals the reconciler to stop.
func (r *Reconciler) Stop() {
	select {
	case r.stop <- struct{}{}:
	default:
	}
}

func (r *Reconciler) reconcile(ctx context.Context) {
	if !r.ledger.Enabled() {
		return
	}

	recs, err := r.records.Unanchored(ctx, r.batch)
	if err != nil {
		r.logger.Warn("failed to list unanchored audit records", "error", err)
		return
	}
	if len(recs) == 0 {
		return
	}

	anchored := 0
	for _, rec := range recs {
		hash, err := HashFromHex(rec.ContentHash)
		if err != nil {
			r.logger.Error("skipping audit record with bad content hash",
				"record_id", rec.ID, "error", err)
			continue
		}

		var result *chainlog.SubmitResult
		err = retry.Do(ctx, 3, r.backoff, func() error {
			subCtx, cancel := context.WithTimeout(ctx, chainlog.DefaultTimeout)
			defer cancel()

			res, err := r.ledger.Submit(subCtx, hash, rec.RiskCode)
			if err != nil {
				return err
			}
			result = res
			return nil
		})
		if err != nil {
			metrics.LedgerSubmissionsTotal.WithLabelValues("error").Inc()
			r.logger.Warn("reconciler ledger submission failed",
				"record_id", rec.ID, "error", err)
			continue
		}

		metrics.LedgerSubmissionsTotal.WithLabelValues("ok").Inc()
		if err := r.records.SetLedgerTx(ctx, rec.ID, result.TxHash); err != nil {
			r.logger.Warn("reconciler failed to store ledger tx",
				"record_id", rec.ID, "error", err)
			continue
		}
		anchored++
	}

	if anchored > 0 {
		r.logger.Info("reconciled unanchored audit records",
			"anchored", anchored, "examined", len(recs))
	}
}
