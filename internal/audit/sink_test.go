package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nbelghith/authwatch/internal/chainlog"
	"github.com/nbelghith/authwatch/internal/events"
)

// mockSubmitter records submissions and can be scripted to fail.
type mockSubmitter struct {
	mu       sync.Mutex
	enabled  bool
	err      error
	submits  int
	lastCode string
	lastHash [32]byte
}

func (m *mockSubmitter) Enabled() bool { return m.enabled }

func (m *mockSubmitter) Submit(_ context.Context, hash [32]byte, code string) (*chainlog.SubmitResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submits++
	m.lastHash = hash
	m.lastCode = code
	if m.err != nil {
		return nil, m.err
	}
	return &chainlog.SubmitResult{TxHash: "0xabc", Nonce: 1}, nil
}

func pendingEvent(id string) *events.LoginEvent {
	return &events.LoginEvent{
		ID:        id,
		Identity:  "sara",
		Origin:    "10.0.0.1",
		Timestamp: time.Now().UTC(),
		RiskLabel: events.LabelPending,
	}
}

func TestSinkRecordLabelsAndAnchors(t *testing.T) {
	ctx := context.Background()
	evStore := events.NewMemoryStore()
	recStore := NewMemoryStore()
	ledger := &mockSubmitter{enabled: true}
	sink := NewSink(evStore, recStore, ledger)

	ev := pendingEvent("evt_1")
	if err := evStore.Insert(ctx, ev); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rec, err := sink.Record(ctx, ev, events.LabelBenign)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}

	if ev.RiskLabel != events.LabelBenign {
		t.Errorf("event label = %s, want benign", ev.RiskLabel)
	}
	if rec.EventID != "evt_1" || rec.RiskCode != "benign" {
		t.Errorf("record = %+v", rec)
	}
	if rec.LedgerTx != "0xabc" {
		t.Errorf("ledger tx = %q, want 0xabc", rec.LedgerTx)
	}
	if ledger.lastCode != "benign" {
		t.Errorf("submitted code = %q", ledger.lastCode)
	}
	if ledger.lastHash != ContentHash(ev) {
		t.Error("submitted hash does not match event content hash")
	}
}

func TestSinkRecordPreLabeledEvent(t *testing.T) {
	ctx := context.Background()
	evStore := events.NewMemoryStore()
	recStore := NewMemoryStore()
	sink := NewSink(evStore, recStore, &mockSubmitter{})

	// The rule short-circuit path inserts the event already labeled.
	ev := pendingEvent("evt_rule")
	ev.RiskLabel = events.LabelHijack
	if err := evStore.Insert(ctx, ev); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	rec, err := sink.Record(ctx, ev, events.LabelHijack)
	if err != nil {
		t.Fatalf("Record on pre-labeled event: %v", err)
	}
	if rec.RiskCode != "hijack" {
		t.Errorf("risk code = %q", rec.RiskCode)
	}
}

func TestSinkRecordLabelWriteFailureIsFatal(t *testing.T) {
	ctx := context.Background()
	evStore := events.NewMemoryStore()
	sink := NewSink(evStore, NewMemoryStore(), &mockSubmitter{})

	// Event never inserted: the label update must fail and abort the record.
	ev := pendingEvent("evt_ghost")
	if _, err := sink.Record(ctx, ev, events.LabelBenign); err == nil {
		t.Fatal("expected error when label persistence fails")
	}

	recs, _ := sink.records.Recent(ctx, 10)
	if len(recs) != 0 {
		t.Error("audit record written despite label failure")
	}
}

func TestSinkRecordLedgerDisabledSkips(t *testing.T) {
	ctx := context.Background()
	evStore := events.NewMemoryStore()
	ledger := &mockSubmitter{enabled: false}
	sink := NewSink(evStore, NewMemoryStore(), ledger)

	ev := pendingEvent("evt_2")
	_ = evStore.Insert(ctx, ev)

	rec, err := sink.Record(ctx, ev, events.LabelBenign)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if ledger.submits != 0 {
		t.Error("disabled ledger was called")
	}
	if rec.LedgerTx != "" {
		t.Errorf("ledger tx = %q, want empty", rec.LedgerTx)
	}
}

func TestSinkRecordLedgerFailureIsNotFatal(t *testing.T) {
	ctx := context.Background()
	evStore := events.NewMemoryStore()
	recStore := NewMemoryStore()
	ledger := &mockSubmitter{enabled: true, err: errors.New("rpc down")}
	sink := NewSink(evStore, recStore, ledger)

	ev := pendingEvent("evt_3")
	_ = evStore.Insert(ctx, ev)

	rec, err := sink.Record(ctx, ev, events.LabelHijack)
	if err != nil {
		t.Fatalf("ledger failure must not fail the record: %v", err)
	}
	if rec.LedgerTx != "" {
		t.Errorf("ledger tx = %q, want empty (unanchored)", rec.LedgerTx)
	}

	// The unanchored record is visible to the reconciler.
	unanchored, _ := recStore.Unanchored(ctx, 10)
	if len(unanchored) != 1 || unanchored[0].ID != rec.ID {
		t.Errorf("unanchored = %+v", unanchored)
	}
}
