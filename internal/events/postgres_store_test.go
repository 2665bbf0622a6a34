package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nbelghith/authwatch/internal/testutil"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db)
	now := time.Now().UTC().Truncate(time.Microsecond)

	ev := &LoginEvent{
		ID:        "evt_pg1",
		Identity:  "sara",
		Origin:    "10.0.0.1",
		Timestamp: now,
		Succeeded: true,
		Locale:    "France",
		Device:    "Desktop",
		Agent:     "Firefox",
		RiskLabel: LabelPending,
	}
	if err := s.Insert(ctx, ev); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	got, err := s.LastSuccessful(ctx, "sara")
	if err != nil {
		t.Fatalf("LastSuccessful: %v", err)
	}
	if got.ID != ev.ID || got.Locale != "France" || got.RiskLabel != LabelPending {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestPostgresStoreLabelWriteOnce(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db)

	ev := &LoginEvent{ID: "evt_pg2", Identity: "bob", Origin: "10.0.0.2", Timestamp: time.Now().UTC(), RiskLabel: LabelPending}
	if err := s.Insert(ctx, ev); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	if err := s.UpdateRiskLabel(ctx, ev.ID, LabelBenign); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := s.UpdateRiskLabel(ctx, ev.ID, LabelHijack); !errors.Is(err, ErrLabelFinal) {
		t.Errorf("second update err = %v, want ErrLabelFinal", err)
	}
	if err := s.UpdateRiskLabel(ctx, "evt_missing", LabelBenign); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing id err = %v, want ErrNotFound", err)
	}
}

func TestPostgresStoreWindowUnion(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	ctx := context.Background()
	s := NewPostgresStore(db)
	now := time.Now().UTC()

	seed := []*LoginEvent{
		{ID: "w1", Identity: "sara", Origin: "99.0.0.1", Timestamp: now.Add(-40 * time.Second)},
		{ID: "w2", Identity: "bob", Origin: "10.0.0.1", Timestamp: now.Add(-20 * time.Second)},
		{ID: "w3", Identity: "eve", Origin: "203.0.113.9", Timestamp: now.Add(-10 * time.Second)},
		{ID: "w4", Identity: "sara", Origin: "10.0.0.1", Timestamp: now},
	}
	for _, ev := range seed {
		ev.RiskLabel = LabelPending
		if err := s.Insert(ctx, ev); err != nil {
			t.Fatalf("Insert %s: %v", ev.ID, err)
		}
	}

	window, err := s.Window(ctx, "sara", "10.0.0.1", now.Add(-time.Minute))
	if err != nil {
		t.Fatalf("Window: %v", err)
	}
	wantIDs := []string{"w1", "w2", "w4"}
	if len(window) != len(wantIDs) {
		t.Fatalf("window size = %d, want %d", len(window), len(wantIDs))
	}
	for i, id := range wantIDs {
		if window[i].ID != id {
			t.Errorf("window[%d] = %s, want %s", i, window[i].ID, id)
		}
	}
}
