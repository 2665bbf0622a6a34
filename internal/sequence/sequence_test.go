package sequence

import (
	"strings"
	"testing"
	"time"

	"github.com/nbelghith/authwatch/internal/events"
)

func ev(identity, origin, locale, device, agent string, ok bool) *events.LoginEvent {
	return &events.LoginEvent{
		Identity:  identity,
		Origin:    origin,
		Locale:    locale,
		Device:    device,
		Agent:     agent,
		Succeeded: ok,
		Timestamp: time.Now(),
	}
}

func TestBuildEmptyWindow(t *testing.T) {
	full, last := Build(nil)
	if full != "" || last != "" {
		t.Errorf("Build(nil) = (%q, %q), want empty strings", full, last)
	}
}

func TestBuildSingleEvent(t *testing.T) {
	full, last := Build([]*events.LoginEvent{
		ev("sara", "10.0.0.1", "France", "Desktop", "Firefox", true),
	})

	want := "(STATUS=True USERID=sara IP=10.0.0.1 COUNTRY=Synth_B9 DEVICE=Synth_B9 BROWSER=Firefox CONTEXT_CHANGE=False)"
	if full != want {
		t.Errorf("full = %q, want %q", full, want)
	}
	if last != want {
		t.Errorf("last = %q, want %q", last, want)
	}
}

func TestBuildPlaceholderSubstitution(t *testing.T) {
	tests := []struct {
		name   string
		locale string
		device string
		wantIn string
	}{
		{"benign locale masked", "Tunisia", "Tablet", "COUNTRY=Synth_B9 DEVICE=Tablet"},
		{"benign device masked", "Germany", "Mobile", "COUNTRY=Germany DEVICE=Synth_B9"},
		{"both masked", "USA", "Desktop", "COUNTRY=Synth_B9 DEVICE=Synth_B9"},
		{"neither masked", "Germany", "Tablet", "COUNTRY=Germany DEVICE=Tablet"},
		{"empty fields become Unknown then masked", "", "", "COUNTRY=Synth_B9 DEVICE=Synth_B9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			full, _ := Build([]*events.LoginEvent{
				ev("sara", "10.0.0.1", tt.locale, tt.device, "Chrome", false),
			})
			if !strings.Contains(full, tt.wantIn) {
				t.Errorf("record %q does not contain %q", full, tt.wantIn)
			}
		})
	}
}

func TestBuildIdentitySpaces(t *testing.T) {
	full, _ := Build([]*events.LoginEvent{
		ev("jean pierre", "10.0.0.1", "France", "Desktop", "Firefox", true),
	})
	if !strings.Contains(full, "USERID=jean_pierre") {
		t.Errorf("identity spaces not underscored: %q", full)
	}
}

// Context change must be computed on the raw values, before placeholder
// substitution collapses distinct benign values into the same token.
func TestBuildContextChangeBeforeSubstitution(t *testing.T) {
	window := []*events.LoginEvent{
		ev("sara", "10.0.0.1", "France", "Desktop", "Firefox", true),
		ev("sara", "10.0.0.1", "USA", "Desktop", "Firefox", false),
	}
	full, last := Build(window)

	// Both France and USA render as Synth_B9, yet the change is flagged.
	if !strings.Contains(last, "CONTEXT_CHANGE=True") {
		t.Errorf("locale change not flagged: %q", last)
	}
	if strings.Count(full, "COUNTRY=Synth_B9") != 2 {
		t.Errorf("expected both locales masked: %q", full)
	}
}

func TestBuildContextChangeOrigin(t *testing.T) {
	window := []*events.LoginEvent{
		ev("sara", "10.0.0.1", "France", "Desktop", "Firefox", true),
		ev("sara", "203.0.113.5", "France", "Desktop", "Firefox", true),
		ev("sara", "203.0.113.5", "France", "Desktop", "Firefox", true),
	}
	full, _ := Build(window)

	records := strings.Split(full, ") (")
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d: %q", len(records), full)
	}
	if !strings.Contains(records[0], "CONTEXT_CHANGE=False") {
		t.Errorf("first record must never flag a change: %q", records[0])
	}
	if !strings.Contains(records[1], "CONTEXT_CHANGE=True") {
		t.Errorf("origin change not flagged: %q", records[1])
	}
	if !strings.Contains(records[2], "CONTEXT_CHANGE=False") {
		t.Errorf("stable context wrongly flagged: %q", records[2])
	}
}

func TestBuildLastIsFinalRecord(t *testing.T) {
	window := []*events.LoginEvent{
		ev("a", "1.1.1.1", "France", "Desktop", "Firefox", true),
		ev("b", "2.2.2.2", "France", "Desktop", "Chrome", false),
	}
	full, last := Build(window)

	if !strings.HasSuffix(full, last) {
		t.Errorf("full sequence %q does not end with last record %q", full, last)
	}
	if !strings.Contains(last, "USERID=b") {
		t.Errorf("last record is not the final event: %q", last)
	}
}
