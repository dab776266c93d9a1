package db

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
)

// MockDB is a mock database for demo/testing
type MockDB struct {
	mu      sync.RWMutex
	systems map[int64]*SystemRecord
	byPrint map[string]int64
	keys    []RecoveredKey
	nextID  int64
}

// NewMock creates a new mock database
func NewMock() *MockDB {
	return &MockDB{
		systems: make(map[int64]*SystemRecord),
		byPrint: make(map[string]int64),
	}
}

// NewMockWithSampleData creates a mock database with sample data
func NewMockWithSampleData() *MockDB {
	m := NewMock()

	m.systems[1] = &SystemRecord{
		ID:          1,
		Fingerprint: "0x5f9a0e7c1d2b3a4f5e6d7c8b9a0f1e2d3c4b5a6f7e8d9c0b1a2f3e4d5c6b7a8f",
		Name:        "trace",
		Definition:  `{"name":"trace","constraints":[{"expr":"a + b - 50"},{"expr":"a","bounds":["0","100"]}]}`,
		Status:      StatusSolved,
		Values:      []string{"30"},
		Labels:      []string{"a"},
		CreatedAt:   "2026-01-12T10:30:00Z",
		SolvedAt:    "2026-01-12T10:30:01Z",
	}
	m.byPrint[m.systems[1].Fingerprint] = 1
	m.nextID = 1

	m.keys = []RecoveredKey{
		{
			ID:         1,
			Address:    "0x2c7536e3605d9c16a7a3d7b1898e529396a65c23",
			PrivateKey: "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318",
			Method:     "biased-nonce",
			NonceBits:  128,
			RValues:    []string{"0x8a2d4e5f6a7b8c9d0e1f2a3b4c5d6e7f8a9b0c1d2e3f4a5b6c7d8e9f0a1b2c3d"},
			CreatedAt:  "2026-01-12T11:00:00Z",
		},
	}

	return m
}

func (m *MockDB) Close() error { return nil }

func (m *MockDB) Health(ctx context.Context) HealthStatus {
	return HealthStatus{Connected: true, LatencyMs: 1, OpenConnections: 1}
}

func (m *MockDB) SaveSystem(ctx context.Context, rec *SystemRecord) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := strings.ToLower(rec.Fingerprint)
	if id, ok := m.byPrint[key]; ok {
		return id, false, nil
	}
	m.nextID++
	stored := *rec
	stored.ID = m.nextID
	stored.Status = StatusPending
	stored.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	m.systems[stored.ID] = &stored
	m.byPrint[key] = stored.ID
	return stored.ID, true, nil
}

func (m *MockDB) GetSystem(ctx context.Context, id int64) (*SystemRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.systems[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (m *MockDB) ListSystems(ctx context.Context, limit int) ([]SystemRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	systems := make([]SystemRecord, 0, len(m.systems))
	for _, rec := range m.systems {
		systems = append(systems, *rec)
	}
	sort.Slice(systems, func(i, j int) bool { return systems[i].ID > systems[j].ID })
	if len(systems) > limit {
		systems = systems[:limit]
	}
	return systems, nil
}

func (m *MockDB) SaveSolution(ctx context.Context, id int64, sol *Solution) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.systems[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = StatusSolved
	rec.Error = ""
	rec.Values = append([]string(nil), sol.Values...)
	rec.Labels = append([]string(nil), sol.Labels...)
	rec.Warnings = append([]string(nil), sol.Warnings...)
	rec.SolvedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

func (m *MockDB) MarkFailed(ctx context.Context, id int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.systems[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = StatusFailed
	rec.Error = reason
	rec.SolvedAt = time.Now().UTC().Format(time.RFC3339)
	return nil
}

func (m *MockDB) SaveRecoveredKey(ctx context.Context, key *RecoveredKey) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.keys {
		if strings.EqualFold(m.keys[i].Address, key.Address) {
			id := m.keys[i].ID
			m.keys[i] = *key
			m.keys[i].ID = id
			return id, nil
		}
	}
	stored := *key
	stored.ID = int64(len(m.keys) + 1)
	stored.CreatedAt = time.Now().UTC().Format(time.RFC3339)
	m.keys = append(m.keys, stored)
	return stored.ID, nil
}

func (m *MockDB) GetRecoveredKeys(ctx context.Context) ([]RecoveredKey, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]RecoveredKey, len(m.keys))
	copy(result, m.keys)
	return result, nil
}

func (m *MockDB) GetStats(ctx context.Context) (*Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := &Stats{
		TotalSystems:  len(m.systems),
		RecoveredKeys: len(m.keys),
		Healthy:       true,
	}
	for _, rec := range m.systems {
		switch rec.Status {
		case StatusPending:
			stats.PendingSystems++
		case StatusSolved:
			stats.SolvedSystems++
		case StatusFailed:
			stats.FailedSystems++
		}
	}
	return stats, nil
}
