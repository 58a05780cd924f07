package testutil

import (
	"context"
	"sync"

	"github.com/opsgrid/opsgrid/internal/types"
)

// InMemoryFeatureFlagStore implements feature.FlagStore
type InMemoryFeatureFlagStore struct {
	mu      sync.RWMutex
	flags   map[string]types.FeatureSet
	failErr error
}

// NewInMemoryFeatureFlagStore creates a new in-memory feature flag store
func NewInMemoryFeatureFlagStore() *InMemoryFeatureFlagStore {
	return &InMemoryFeatureFlagStore{
		flags: make(map[string]types.FeatureSet),
	}
}

// Clear resets all stored data
func (m *InMemoryFeatureFlagStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags = make(map[string]types.FeatureSet)
	m.failErr = nil
}

// SetError makes every write fail with the given error until Clear
func (m *InMemoryFeatureFlagStore) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

// Activate enables a feature for a tenant
func (m *InMemoryFeatureFlagStore) Activate(ctx context.Context, tenantID string, feature types.Feature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	if m.flags[tenantID] == nil {
		m.flags[tenantID] = types.FeatureSet{}
	}
	m.flags[tenantID][feature] = true
	return nil
}

// Deactivate disables a feature for a tenant
func (m *InMemoryFeatureFlagStore) Deactivate(ctx context.Context, tenantID string, feature types.Feature) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	if m.flags[tenantID] == nil {
		m.flags[tenantID] = types.FeatureSet{}
	}
	m.flags[tenantID][feature] = false
	return nil
}

// List returns the tenant's feature set
func (m *InMemoryFeatureFlagStore) List(ctx context.Context, tenantID string) (types.FeatureSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := types.FeatureSet{}
	for f, enabled := range m.flags[tenantID] {
		result[f] = enabled
	}
	return result, nil
}
