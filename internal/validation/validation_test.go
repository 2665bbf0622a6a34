package validation

import (
	"testing"
)

func TestSanitizeString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"  hello  ", 10, "hello"},
		{"hello world", 5, "hello"},
		{"with\x00null", 20, "withnull"},
		{"", 10, ""},
		// SQL payloads survive sanitization; they are pipeline signal
		{"admin' OR '1'='1", 50, "admin' OR '1'='1"},
	}

	for _, tc := range tests {
		result := SanitizeString(tc.input, tc.maxLen)
		if result != tc.expected {
			t.Errorf("SanitizeString(%q, %d) = %q, want %q", tc.input, tc.maxLen, result, tc.expected)
		}
	}
}

func TestRequired(t *testing.T) {
	if err := Required("identity", "sara")(); err != nil {
		t.Errorf("Required on non-empty value failed: %+v", err)
	}
	if err := Required("identity", "  ")(); err == nil {
		t.Error("Required on whitespace value should fail")
	} else if err.Field != "identity" {
		t.Errorf("Field = %q, want identity", err.Field)
	}
}

func TestMaxLength(t *testing.T) {
	if err := MaxLength("locale", "France", 50)(); err != nil {
		t.Errorf("MaxLength under cap failed: %+v", err)
	}
	long := make([]byte, 51)
	for i := range long {
		long[i] = 'x'
	}
	if err := MaxLength("locale", string(long), 50)(); err == nil {
		t.Error("MaxLength over cap should fail")
	}
}

func TestValidateCollectsFailures(t *testing.T) {
	errs := Validate(
		Required("identity", ""),
		MaxLength("locale", "France", 50),
		Required("device", ""),
	)
	if len(errs) != 2 {
		t.Fatalf("collected %d errors, want 2", len(errs))
	}
	if errs[0].Field != "identity" || errs[1].Field != "device" {
		t.Errorf("unexpected fields: %+v", errs)
	}
	if errs.Error() == "" {
		t.Error("Error() should describe the first failure")
	}
}

func TestValidateClean(t *testing.T) {
	errs := Validate(
		Required("identity", "sara"),
		MaxLength("locale", "France", 50),
	)
	if len(errs) != 0 {
		t.Errorf("expected no errors, got %+v", errs)
	}
}
