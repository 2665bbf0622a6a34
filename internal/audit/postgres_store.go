package audit

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists audit records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed audit store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Insert(ctx context.Context, rec *Record) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO audit_records (id, event_id, content_hash, risk_code, ledger_tx, created_at)
		VALUES ($1, $2, $3, $4, NULLIF($5, ''), $6)
	`, rec.ID, rec.EventID, rec.ContentHash, rec.RiskCode, rec.LedgerTx, rec.CreatedAt)
	return err
}

func (p *PostgresStore) SetLedgerTx(ctx context.Context, id, txHash string) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE audit_records SET ledger_tx = $1 WHERE id = $2
	`, txHash, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRecordNotFound
	}
	return nil
}

func (p *PostgresStore) Unanchored(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, event_id, content_hash, risk_code, COALESCE(ledger_tx, ''), created_at
		FROM audit_records
		WHERE ledger_tx IS NULL
		ORDER BY created_at ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

func (p *PostgresStore) Recent(ctx context.Context, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, event_id, content_hash, risk_code, COALESCE(ledger_tx, ''), created_at
		FROM audit_records
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanRecords(rows)
}

// Migrate creates the audit_records table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_records (
			id           VARCHAR(36) PRIMARY KEY,
			event_id     VARCHAR(36) NOT NULL,
			content_hash CHAR(64) NOT NULL,
			risk_code    VARCHAR(20) NOT NULL,
			ledger_tx    VARCHAR(66),
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_audit_records_event ON audit_records(event_id);
		CREATE INDEX IF NOT EXISTS idx_audit_records_unanchored ON audit_records(created_at) WHERE ledger_tx IS NULL;
	`)
	return err
}

func scanRecords(rows *sql.Rows) ([]*Record, error) {
	var result []*Record
	for rows.Next() {
		rec := &Record{}
		if err := rows.Scan(&rec.ID, &rec.EventID, &rec.ContentHash, &rec.RiskCode,
			&rec.LedgerTx, &rec.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, rec)
	}
	return result, rows.Err()
}
