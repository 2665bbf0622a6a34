package events

import (
	"context"
	"database/sql"
	"time"
)

// PostgresStore persists login events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed event store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Insert(ctx context.Context, ev *LoginEvent) error {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if ev.RiskLabel == "" {
		ev.RiskLabel = LabelPending
	}
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO login_events (id, identity, origin, ts, succeeded, locale, device, agent, risk_label)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, ev.ID, ev.Identity, ev.Origin, ev.Timestamp, ev.Succeeded, ev.Locale, ev.Device, ev.Agent, string(ev.RiskLabel))
	return err
}

func (p *PostgresStore) UpdateRiskLabel(ctx context.Context, id string, label RiskLabel) error {
	res, err := p.db.ExecContext(ctx, `
		UPDATE login_events SET risk_label = $1 WHERE id = $2 AND risk_label = $3
	`, string(label), id, string(LabelPending))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a missing row from one whose label is already final.
		var current string
		err := p.db.QueryRowContext(ctx,
			`SELECT risk_label FROM login_events WHERE id = $1`, id).Scan(&current)
		if err == sql.ErrNoRows {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return ErrLabelFinal
	}
	return nil
}

func (p *PostgresStore) Window(ctx context.Context, identity, origin string, since time.Time) ([]*LoginEvent, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, identity, origin, ts, succeeded, locale, device, agent, risk_label
		FROM login_events
		WHERE ts >= $1 AND (identity = $2 OR origin = $3)
		ORDER BY ts ASC
	`, since, identity, origin)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

func (p *PostgresStore) LastSuccessful(ctx context.Context, identity string) (*LoginEvent, error) {
	ev := &LoginEvent{}
	var label string
	err := p.db.QueryRowContext(ctx, `
		SELECT id, identity, origin, ts, succeeded, locale, device, agent, risk_label
		FROM login_events
		WHERE identity = $1 AND succeeded = TRUE
		ORDER BY ts DESC
		LIMIT 1
	`, identity).Scan(&ev.ID, &ev.Identity, &ev.Origin, &ev.Timestamp, &ev.Succeeded,
		&ev.Locale, &ev.Device, &ev.Agent, &label)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	ev.RiskLabel = RiskLabel(label)
	return ev, nil
}

func (p *PostgresStore) Recent(ctx context.Context, limit int) ([]*LoginEvent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, identity, origin, ts, succeeded, locale, device, agent, risk_label
		FROM login_events
		ORDER BY ts DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	return scanEvents(rows)
}

// Migrate creates the login_events table if it doesn't exist.
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS login_events (
			id          VARCHAR(36) PRIMARY KEY,
			identity    VARCHAR(255) NOT NULL,
			origin      VARCHAR(45) NOT NULL,
			ts          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			succeeded   BOOLEAN NOT NULL DEFAULT FALSE,
			locale      VARCHAR(50),
			device      VARCHAR(50),
			agent       VARCHAR(50),
			risk_label  VARCHAR(20) NOT NULL DEFAULT 'pending'
		);
		CREATE INDEX IF NOT EXISTS idx_login_events_identity_ts ON login_events(identity, ts);
		CREATE INDEX IF NOT EXISTS idx_login_events_origin_ts ON login_events(origin, ts);
	`)
	return err
}

func scanEvents(rows *sql.Rows) ([]*LoginEvent, error) {
	var result []*LoginEvent
	for rows.Next() {
		ev := &LoginEvent{}
		var label string
		if err := rows.Scan(&ev.ID, &ev.Identity, &ev.Origin, &ev.Timestamp, &ev.Succeeded,
			&ev.Locale, &ev.Device, &ev.Agent, &label); err != nil {
			return nil, err
		}
		ev.RiskLabel = RiskLabel(label)
		result = append(result, ev)
	}
	return result, rows.Err()
}
