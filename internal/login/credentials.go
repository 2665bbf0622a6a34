package login

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"sync"
)

// CredentialStore answers whether an identity/secret pair matches. The
// risk pipeline only needs the boolean outcome; hashing schemes and
// account management live outside this service.
type CredentialStore interface {
	Verify(ctx context.Context, identity, secret string) (bool, error)
}

// MemoryCredentials is a fixed in-memory credential set for demo mode.
type MemoryCredentials struct {
	mu      sync.RWMutex
	secrets map[string]string
}

// NewMemoryCredentials creates a credential store seeded with the given
// identity→secret pairs.
func NewMemoryCredentials(seed map[string]string) *MemoryCredentials {
	secrets := make(map[string]string, len(seed))
	for k, v := range seed {
		secrets[k] = v
	}
	return &MemoryCredentials{secrets: secrets}
}

// DemoCredentials returns the demo user set.
func DemoCredentials() *MemoryCredentials {
	return NewMemoryCredentials(map[string]string{
		"admin": "password123",
		"sara":  "pass",
	})
}

func (m *MemoryCredentials) Verify(_ context.Context, identity, secret string) (bool, error) {
	m.mu.RLock()
	expected, ok := m.secrets[identity]
	m.mu.RUnlock()
	if !ok {
		// Compare against a dummy value anyway to keep timing flat.
		subtle.ConstantTimeCompare([]byte(secret), []byte("-"))
		return false, nil
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(expected)) == 1, nil
}

// PostgresCredentials reads credentials from the users table.
type PostgresCredentials struct {
	db *sql.DB
}

// NewPostgresCredentials creates a PostgreSQL-backed credential store.
func NewPostgresCredentials(db *sql.DB) *PostgresCredentials {
	return &PostgresCredentials{db: db}
}

func (p *PostgresCredentials) Verify(ctx context.Context, identity, secret string) (bool, error) {
	var stored string
	err := p.db.QueryRowContext(ctx,
		`SELECT secret FROM users WHERE identity = $1`, identity).Scan(&stored)
	if err == sql.ErrNoRows {
		subtle.ConstantTimeCompare([]byte(secret), []byte("-"))
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(stored)) == 1, nil
}

// Migrate creates the users table if it doesn't exist.
func (p *PostgresCredentials) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			identity VARCHAR(255) PRIMARY KEY,
			secret   VARCHAR(255) NOT NULL
		)
	`)
	return err
}
