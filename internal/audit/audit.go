// Package audit durably records risk decisions and anchors them on the
// ledger for tamper-evidence.
//
// Ordering matters: the risk label and the local audit record are written
// first and must succeed; the ledger submission runs after, best-effort,
// under its own timeout. A ledger outage therefore never blocks a verdict,
// and an unanchored record can be picked up later by the reconciler.
package audit

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/nbelghith/authwatch/internal/events"
)

// Record is the append-only audit trail entry for one evaluated event.
type Record struct {
	ID          string    `json:"id"`
	EventID     string    `json:"eventId"`
	ContentHash string    `json:"contentHash"` // hex keccak256 of the canonical string
	RiskCode    string    `json:"riskCode"`
	LedgerTx    string    `json:"ledgerTx,omitempty"` // empty until anchored
	CreatedAt   time.Time `json:"createdAt"`
}

// Store persists audit records.
type Store interface {
	Insert(ctx context.Context, rec *Record) error

	// SetLedgerTx attaches the ledger transaction hash to a record.
	SetLedgerTx(ctx context.Context, id, txHash string) error

	// Unanchored returns records without a ledger transaction, oldest first.
	Unanchored(ctx context.Context, limit int) ([]*Record, error)

	// Recent returns the newest records, descending by creation time.
	Recent(ctx context.Context, limit int) ([]*Record, error)
}

// CanonicalString renders the event fields hashed for the ledger. The
// field order is fixed; changing it breaks verification of previously
// anchored records.
func CanonicalString(ev *events.LoginEvent) string {
	return fmt.Sprintf("(STATUS=%s USERID=%s IP=%s COUNTRY=%s DEVICE=%s BROWSER=%s)",
		pyBool(ev.Succeeded), orUnknown(ev.Identity), orUnknown(ev.Origin),
		orUnknown(ev.Locale), orUnknown(ev.Device), orUnknown(ev.Agent))
}

// ContentHash returns the keccak256 hash of the event's canonical string.
func ContentHash(ev *events.LoginEvent) [32]byte {
	var h [32]byte
	copy(h[:], crypto.Keccak256([]byte(CanonicalString(ev))))
	return h
}

// HashHex returns the hex encoding of a content hash.
func HashHex(h [32]byte) string {
	return hex.EncodeToString(h[:])
}

// HashFromHex decodes a stored content hash. Used by the reconciler to
// re-submit unanchored records without re-reading the event.
func HashFromHex(s string) ([32]byte, error) {
	var h [32]byte
	raw, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("audit: malformed content hash: %w", err)
	}
	if len(raw) != 32 {
		return h, fmt.Errorf("audit: content hash has %d bytes, want 32", len(raw))
	}
	copy(h[:], raw)
	return h, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

func pyBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}
