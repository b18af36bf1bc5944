// AngelaMos | 2026
// memory.go

// Package entitlementtest provides an in-process entitlement repository
// for tests in packages that read or write entitlements.
package entitlementtest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/entitlement"
)

type key struct {
	user    string
	feature string
}

// MemoryRepository keeps entitlements in process with the validation rules
// of the Postgres repository.
type MemoryRepository struct {
	mu      sync.RWMutex
	records map[key]entitlement.Record
	writes  int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{records: make(map[key]entitlement.Record)}
}

func (m *MemoryRepository) Get(
	_ context.Context,
	userID, featureKey string,
) (*entitlement.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.records[key{userID, featureKey}]
	if !ok {
		return nil, fmt.Errorf("get entitlement: %w", core.ErrNotFound)
	}
	return &rec, nil
}

func (m *MemoryRepository) ListByUser(
	_ context.Context,
	userID string,
) ([]entitlement.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var recs []entitlement.Record
	for k, rec := range m.records {
		if k.user == userID {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool {
		return recs[i].FeatureKey < recs[j].FeatureKey
	})
	return recs, nil
}

func (m *MemoryRepository) Upsert(_ context.Context, rec *entitlement.Record) error {
	if err := rec.Validate(); err != nil {
		return fmt.Errorf("upsert entitlement: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{rec.UserID, rec.FeatureKey}
	if prev, ok := m.records[k]; ok {
		rec.CreatedAt = prev.CreatedAt
	} else {
		rec.CreatedAt = rec.UpdatedAt
	}
	m.records[k] = *rec
	m.writes++
	return nil
}

// Writes counts successful upserts.
func (m *MemoryRepository) Writes() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.writes
}

// Snapshot captures the repository state so a failed unit of work can be
// rolled back with Restore.
type Snapshot struct {
	records map[key]entitlement.Record
	writes  int
}

func (m *MemoryRepository) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[key]entitlement.Record, len(m.records))
	for k, v := range m.records {
		out[k] = v
	}
	return Snapshot{records: out, writes: m.writes}
}

func (m *MemoryRepository) Restore(snap Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = snap.records
	m.writes = snap.writes
}
