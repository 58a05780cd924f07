package testutil

import (
	"context"
	"sync"

	"github.com/opsgrid/opsgrid/internal/domain/tenant"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/types"
)

// InMemoryTenantStore implements tenant.Repository. Active user counts are
// settable per tenant so capacity and seat-billing paths can be exercised.
type InMemoryTenantStore struct {
	mu          sync.RWMutex
	tenants     map[string]*tenant.Tenant
	activeUsers map[string]int
}

// NewInMemoryTenantStore creates a new in-memory tenant repository
func NewInMemoryTenantStore() *InMemoryTenantStore {
	return &InMemoryTenantStore{
		tenants:     make(map[string]*tenant.Tenant),
		activeUsers: make(map[string]int),
	}
}

// Clear resets all stored data
func (m *InMemoryTenantStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenants = make(map[string]*tenant.Tenant)
	m.activeUsers = make(map[string]int)
}

// Add stores a tenant record
func (m *InMemoryTenantStore) Add(t *tenant.Tenant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *t
	if copied.Status == "" {
		copied.Status = types.StatusPublished
	}
	m.tenants[t.ID] = &copied
}

// SetActiveUserCount sets the active user count returned for a tenant
func (m *InMemoryTenantStore) SetActiveUserCount(tenantID string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.activeUsers[tenantID] = count
}

// Get retrieves a tenant by ID
func (m *InMemoryTenantStore) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tenants[id]
	if !ok {
		return nil, ierr.NewError("tenant not found").
			WithHint("Tenant not found").
			WithReportableDetails(map[string]any{"tenant_id": id}).
			Mark(ierr.ErrNotFound)
	}
	copied := *t
	return &copied, nil
}

// GetBySlug retrieves a tenant by slug
func (m *InMemoryTenantStore) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, t := range m.tenants {
		if t.Slug == slug {
			copied := *t
			return &copied, nil
		}
	}
	return nil, ierr.NewError("tenant not found").
		WithHint("Tenant not found").
		WithReportableDetails(map[string]any{"slug": slug}).
		Mark(ierr.ErrNotFound)
}

// List returns all tenants
func (m *InMemoryTenantStore) List(ctx context.Context) ([]*tenant.Tenant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]*tenant.Tenant, 0, len(m.tenants))
	for _, t := range m.tenants {
		copied := *t
		result = append(result, &copied)
	}
	return result, nil
}

// ActiveUserCount returns the configured active user count
func (m *InMemoryTenantStore) ActiveUserCount(ctx context.Context, tenantID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.activeUsers[tenantID], nil
}
