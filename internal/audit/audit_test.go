package audit

import (
	"testing"

	"github.com/nbelghith/authwatch/internal/events"
)

func TestCanonicalString(t *testing.T) {
	ev := &events.LoginEvent{
		Identity:  "sara",
		Origin:    "10.0.0.1",
		Succeeded: true,
		Locale:    "France",
		Device:    "Desktop",
		Agent:     "Firefox",
	}
	want := "(STATUS=True USERID=sara IP=10.0.0.1 COUNTRY=France DEVICE=Desktop BROWSER=Firefox)"
	if got := CanonicalString(ev); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestCanonicalStringEmptyFields(t *testing.T) {
	ev := &events.LoginEvent{Succeeded: false}
	want := "(STATUS=False USERID=Unknown IP=Unknown COUNTRY=Unknown DEVICE=Unknown BROWSER=Unknown)"
	if got := CanonicalString(ev); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestContentHashDeterministic(t *testing.T) {
	ev := &events.LoginEvent{Identity: "sara", Origin: "10.0.0.1", Locale: "France"}
	h1 := ContentHash(ev)
	h2 := ContentHash(ev)
	if h1 != h2 {
		t.Error("hash not deterministic")
	}

	ev.Locale = "USA"
	if ContentHash(ev) == h1 {
		t.Error("hash insensitive to field change")
	}
}

func TestHashHexRoundTrip(t *testing.T) {
	ev := &events.LoginEvent{Identity: "sara"}
	h := ContentHash(ev)
	s := HashHex(h)
	if len(s) != 64 {
		t.Fatalf("hex length = %d, want 64", len(s))
	}
	back, err := HashFromHex(s)
	if err != nil {
		t.Fatalf("HashFromHex: %v", err)
	}
	if back != h {
		t.Error("round trip mismatch")
	}
}

func TestHashFromHexRejectsBadInput(t *testing.T) {
	if _, err := HashFromHex("zz"); err == nil {
		t.Error("non-hex accepted")
	}
	if _, err := HashFromHex("abcd"); err == nil {
		t.Error("short hash accepted")
	}
}
