package testutil

import (
	"context"
	"sort"
	"sync"

	"github.com/opsgrid/opsgrid/internal/domain/planchange"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
)

// InMemoryPlanChangeStore implements planchange.Repository
type InMemoryPlanChangeStore struct {
	mu      sync.RWMutex
	entries []*planchange.Entry
}

// NewInMemoryPlanChangeStore creates a new in-memory plan change log
func NewInMemoryPlanChangeStore() *InMemoryPlanChangeStore {
	return &InMemoryPlanChangeStore{}
}

// Clear resets all stored data
func (m *InMemoryPlanChangeStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
}

// Create appends an entry to the log
func (m *InMemoryPlanChangeStore) Create(ctx context.Context, entry *planchange.Entry) error {
	if entry == nil {
		return ierr.NewError("plan change entry cannot be nil").
			WithHint("Plan change entry cannot be nil").
			Mark(ierr.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *entry
	m.entries = append(m.entries, &copied)
	return nil
}

// ListByTenant returns the tenant's entries, newest first
func (m *InMemoryPlanChangeStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*planchange.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*planchange.Entry
	for _, e := range m.entries {
		if e.TenantID == tenantID {
			copied := *e
			result = append(result, &copied)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}
