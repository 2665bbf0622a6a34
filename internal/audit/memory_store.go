package audit

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrRecordNotFound is returned when no audit record matches the id.
var ErrRecordNotFound = errors.New("audit: record not found")

// MemoryStore keeps audit records in memory for demo mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
	byID    map[string]*Record
}

// NewMemoryStore creates an empty in-memory audit store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*Record)}
}

func (m *MemoryStore) Insert(_ context.Context, rec *Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *rec
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	m.records = append(m.records, &cp)
	m.byID[cp.ID] = &cp
	rec.CreatedAt = cp.CreatedAt
	return nil
}

func (m *MemoryStore) SetLedgerTx(_ context.Context, id, txHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byID[id]
	if !ok {
		return ErrRecordNotFound
	}
	rec.LedgerTx = txHash
	return nil
}

func (m *MemoryStore) Unanchored(_ context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var result []*Record
	for _, rec := range m.records {
		if rec.LedgerTx != "" {
			continue
		}
		cp := *rec
		result = append(result, &cp)
		if len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	var result []*Record
	for i := len(m.records) - 1; i >= 0 && len(result) < limit; i-- {
		cp := *m.records[i]
		result = append(result, &cp)
	}
	return result, nil
}
