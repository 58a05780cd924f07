package testutil

import (
	"context"
	"time"

	"github.com/opsgrid/opsgrid/internal/domain/subscription"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository with
// optimistic locking semantics matching the postgres implementation.
type InMemorySubscriptionStore struct {
	*InMemoryStore[*subscription.Subscription]
}

// NewInMemorySubscriptionStore creates a new in-memory subscription repository
func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		InMemoryStore: NewInMemoryStore[*subscription.Subscription](),
	}
}

// Create stores a new subscription
func (m *InMemorySubscriptionStore) Create(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			WithHint("Subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}
	copied := copySubscription(sub)
	return m.InMemoryStore.Create(ctx, sub.ID, copied)
}

// Get retrieves a subscription by ID
func (m *InMemorySubscriptionStore) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	sub, err := m.InMemoryStore.Get(ctx, id)
	if err != nil {
		return nil, ierr.NewError("subscription not found").
			WithHint("Subscription not found").
			Mark(ierr.ErrNotFound)
	}
	return copySubscription(sub), nil
}

// GetByTenant retrieves the subscription of a tenant
func (m *InMemorySubscriptionStore) GetByTenant(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	subs, _ := m.InMemoryStore.List(ctx, nil, func(ctx context.Context, s *subscription.Subscription, _ interface{}) bool {
		return s.TenantID == tenantID && s.Status != types.StatusDeleted
	}, nil)
	if len(subs) == 0 {
		return nil, ierr.NewError("subscription not found").
			WithHint("No subscription exists for the tenant").
			WithReportableDetails(map[string]any{"tenant_id": tenantID}).
			Mark(ierr.ErrNotFound)
	}
	return copySubscription(subs[0]), nil
}

// Update persists subscription changes under optimistic locking
func (m *InMemorySubscriptionStore) Update(ctx context.Context, sub *subscription.Subscription) error {
	if sub == nil {
		return ierr.NewError("subscription cannot be nil").
			WithHint("Subscription cannot be nil").
			Mark(ierr.ErrValidation)
	}

	stored, err := m.InMemoryStore.Get(ctx, sub.ID)
	if err != nil {
		return ierr.NewError("subscription not found").
			WithHint("Subscription not found").
			Mark(ierr.ErrNotFound)
	}
	if stored.Version != sub.Version {
		return ierr.NewError("subscription was modified concurrently").
			WithHint("The subscription was modified by another request, retry").
			Mark(ierr.ErrVersionConflict)
	}

	sub.Version++
	sub.UpdatedAt = time.Now().UTC()
	return m.InMemoryStore.Update(ctx, sub.ID, copySubscription(sub))
}

// Delete soft deletes a subscription
func (m *InMemorySubscriptionStore) Delete(ctx context.Context, id string) error {
	sub, err := m.InMemoryStore.Get(ctx, id)
	if err != nil {
		return ierr.NewError("subscription not found").
			WithHint("Subscription not found").
			Mark(ierr.ErrNotFound)
	}
	sub.Status = types.StatusDeleted
	return m.InMemoryStore.Update(ctx, id, sub)
}

// ListDueForRenewal returns active non-trial subscriptions past their period end
func (m *InMemorySubscriptionStore) ListDueForRenewal(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	return m.list(ctx, func(s *subscription.Subscription) bool {
		return s.DueForRenewal(now)
	})
}

// ListPastDue returns every past_due subscription
func (m *InMemorySubscriptionStore) ListPastDue(ctx context.Context) ([]*subscription.Subscription, error) {
	return m.list(ctx, func(s *subscription.Subscription) bool {
		return s.SubscriptionStatus == types.SubscriptionStatusPastDue
	})
}

// ListExpiredTrials returns trials whose window has closed
func (m *InMemorySubscriptionStore) ListExpiredTrials(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	return m.list(ctx, func(s *subscription.Subscription) bool {
		return s.TrialExpired(now)
	})
}

func (m *InMemorySubscriptionStore) list(ctx context.Context, match func(*subscription.Subscription) bool) ([]*subscription.Subscription, error) {
	subs, _ := m.InMemoryStore.List(ctx, nil, func(ctx context.Context, s *subscription.Subscription, _ interface{}) bool {
		return s.Status != types.StatusDeleted && match(s)
	}, func(i, j *subscription.Subscription) bool {
		return i.CreatedAt.Before(j.CreatedAt)
	})

	result := make([]*subscription.Subscription, len(subs))
	for i, s := range subs {
		result[i] = copySubscription(s)
	}
	return result, nil
}

func copySubscription(sub *subscription.Subscription) *subscription.Subscription {
	copied := *sub
	copied.Addons = append([]types.Addon(nil), sub.Addons...)
	return &copied
}
