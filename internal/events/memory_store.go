package events

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore keeps login events in memory for demo mode and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	events []*LoginEvent
	byID   map[string]*LoginEvent
}

// NewMemoryStore creates an empty in-memory event store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]*LoginEvent)}
}

func (m *MemoryStore) Insert(_ context.Context, ev *LoginEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *ev
	if cp.Timestamp.IsZero() {
		cp.Timestamp = time.Now().UTC()
	}
	if cp.RiskLabel == "" {
		cp.RiskLabel = LabelPending
	}
	m.events = append(m.events, &cp)
	m.byID[cp.ID] = &cp
	ev.Timestamp = cp.Timestamp
	ev.RiskLabel = cp.RiskLabel
	return nil
}

func (m *MemoryStore) UpdateRiskLabel(_ context.Context, id string, label RiskLabel) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if ev.RiskLabel != LabelPending {
		return ErrLabelFinal
	}
	ev.RiskLabel = label
	return nil
}

func (m *MemoryStore) Window(_ context.Context, identity, origin string, since time.Time) ([]*LoginEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*LoginEvent
	for _, ev := range m.events {
		if ev.Timestamp.Before(since) {
			continue
		}
		if ev.Identity != identity && ev.Origin != origin {
			continue
		}
		cp := *ev
		result = append(result, &cp)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp.Before(result[j].Timestamp)
	})
	return result, nil
}

func (m *MemoryStore) LastSuccessful(_ context.Context, identity string) (*LoginEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var best *LoginEvent
	for _, ev := range m.events {
		if ev.Identity != identity || !ev.Succeeded {
			continue
		}
		if best == nil || ev.Timestamp.After(best.Timestamp) {
			best = ev
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}

func (m *MemoryStore) Recent(_ context.Context, limit int) ([]*LoginEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	sorted := make([]*LoginEvent, len(m.events))
	copy(sorted, m.events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.After(sorted[j].Timestamp)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	result := make([]*LoginEvent, 0, len(sorted))
	for _, ev := range sorted {
		cp := *ev
		result = append(result, &cp)
	}
	return result, nil
}
