// AngelaMos | 2026
// memory.go

// Package trialtest provides an in-process trial repository for tests.
package trialtest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/carterperez-dev/dreamdiary-backend/internal/core"
	"github.com/carterperez-dev/dreamdiary-backend/internal/trial"
)

// MemoryRepository keeps trial counters in process with the same
// check-and-increment contract as the Postgres repository.
type MemoryRepository struct {
	mu      sync.Mutex
	records map[string]trial.Record
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		records: make(map[string]trial.Record),
		now:     time.Now,
	}
}

func (m *MemoryRepository) Get(_ context.Context, userID string) (*trial.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[userID]
	if !ok {
		return nil, fmt.Errorf("get trial: %w", core.ErrNotFound)
	}
	return &rec, nil
}

func (m *MemoryRepository) GetOrCreate(
	_ context.Context,
	userID string,
	limit int,
) (*trial.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[userID]
	if !ok {
		now := m.now()
		rec = trial.Record{
			UserID:     userID,
			TrialLimit: limit,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		m.records[userID] = rec
	}
	return &rec, nil
}

func (m *MemoryRepository) Consume(
	_ context.Context,
	userID string,
) (trial.ConsumeResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[userID]
	if !ok {
		return trial.ConsumeResult{}, fmt.Errorf("consume trial: %w", core.ErrNotFound)
	}

	if rec.TrialUsed >= rec.TrialLimit {
		return trial.ConsumeResult{TrialUsed: rec.TrialUsed, TrialLimit: rec.TrialLimit}, nil
	}

	rec.TrialUsed++
	rec.UpdatedAt = m.now()
	m.records[userID] = rec

	return trial.ConsumeResult{
		Success:    true,
		TrialUsed:  rec.TrialUsed,
		TrialLimit: rec.TrialLimit,
	}, nil
}
