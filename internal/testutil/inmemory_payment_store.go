package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/opsgrid/opsgrid/internal/domain/payment"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/types"
)

// InMemoryPaymentStore implements payment.Repository
type InMemoryPaymentStore struct {
	*InMemoryStore[*payment.Snapshot]
}

// NewInMemoryPaymentStore creates a new in-memory payment snapshot repository
func NewInMemoryPaymentStore() *InMemoryPaymentStore {
	return &InMemoryPaymentStore{
		InMemoryStore: NewInMemoryStore[*payment.Snapshot](),
	}
}

// Create stores a new payment snapshot
func (m *InMemoryPaymentStore) Create(ctx context.Context, snap *payment.Snapshot) error {
	if snap == nil {
		return ierr.NewError("payment snapshot cannot be nil").
			WithHint("Payment snapshot cannot be nil").
			Mark(ierr.ErrValidation)
	}
	return m.InMemoryStore.Create(ctx, snap.ID, copySnapshot(snap))
}

// Get retrieves a payment snapshot by ID
func (m *InMemoryPaymentStore) Get(ctx context.Context, id string) (*payment.Snapshot, error) {
	snap, err := m.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("payment not found").
			WithHint("Payment not found").
			Mark(ierr.ErrNotFound)
	}
	return copySnapshot(snap), nil
}

// GetByPaymentIntentID retrieves the snapshot behind a gateway intent
func (m *InMemoryPaymentStore) GetByPaymentIntentID(ctx context.Context, intentID string) (*payment.Snapshot, error) {
	snaps, _ := m.InMemoryStore.List(ctx, nil, func(ctx context.Context, s *payment.Snapshot, _ interface{}) bool {
		return s.PaymentIntentID == intentID
	}, nil)
	if len(snaps) == 0 {
		return nil, ierr.NewError("payment not found").
			WithHint("No payment exists for the payment intent").
			WithReportableDetails(map[string]any{"payment_intent_id": intentID}).
			Mark(ierr.ErrNotFound)
	}
	return copySnapshot(snaps[0]), nil
}

// Update persists snapshot lifecycle changes
func (m *InMemoryPaymentStore) Update(ctx context.Context, snap *payment.Snapshot) error {
	if snap == nil {
		return ierr.NewError("payment snapshot cannot be nil").
			WithHint("Payment snapshot cannot be nil").
			Mark(ierr.ErrValidation)
	}
	snap.UpdatedAt = time.Now().UTC()
	return m.InMemoryStore.Update(ctx, snap.ID, copySnapshot(snap))
}

// ListByTenant returns the tenant's snapshots, newest first
func (m *InMemoryPaymentStore) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*payment.Snapshot, error) {
	snaps, _ := m.InMemoryStore.List(ctx, nil, func(ctx context.Context, s *payment.Snapshot, _ interface{}) bool {
		return s.TenantID == tenantID
	}, func(i, j *payment.Snapshot) bool {
		return i.CreatedAt.After(j.CreatedAt)
	})

	if limit > 0 && len(snaps) > limit {
		snaps = snaps[:limit]
	}
	result := make([]*payment.Snapshot, len(snaps))
	for i, s := range snaps {
		result[i] = copySnapshot(s)
	}
	return result, nil
}

func copySnapshot(snap *payment.Snapshot) *payment.Snapshot {
	copied := *snap
	copied.Addons = append([]types.Addon(nil), snap.Addons...)
	return &copied
}

// InMemoryPaymentFailureStore implements payment.FailureRepository
type InMemoryPaymentFailureStore struct {
	mu       sync.RWMutex
	failures map[string]*payment.Failure
}

// NewInMemoryPaymentFailureStore creates a new in-memory failure repository
func NewInMemoryPaymentFailureStore() *InMemoryPaymentFailureStore {
	return &InMemoryPaymentFailureStore{
		failures: make(map[string]*payment.Failure),
	}
}

// Clear resets all stored data
func (m *InMemoryPaymentFailureStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures = make(map[string]*payment.Failure)
}

// Create stores a new failure record
func (m *InMemoryPaymentFailureStore) Create(ctx context.Context, failure *payment.Failure) error {
	if failure == nil {
		return ierr.NewError("failure cannot be nil").
			WithHint("Failure cannot be nil").
			Mark(ierr.ErrValidation)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *failure
	m.failures[failure.ID] = &copied
	return nil
}

// ListPending returns the tenant's unresolved failures, oldest first
func (m *InMemoryPaymentFailureStore) ListPending(ctx context.Context, tenantID string) ([]*payment.Failure, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*payment.Failure
	for _, f := range m.failures {
		if f.TenantID == tenantID && !f.Resolved {
			copied := *f
			result = append(result, &copied)
		}
	}
	return result, nil
}

// ResolveAllForTenant marks every pending failure resolved
func (m *InMemoryPaymentFailureStore) ResolveAllForTenant(ctx context.Context, tenantID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	resolved := 0
	for _, f := range m.failures {
		if f.TenantID == tenantID && !f.Resolved {
			f.Resolved = true
			f.ResolvedAt = &now
			resolved++
		}
	}
	return resolved, nil
}
