package subscription

import (
	"context"
	"time"
)

// Repository provides access to the subscription store. Update must apply
// optimistic locking on the version column and return ErrVersionConflict
// when a concurrent writer got there first.
type Repository interface {
	Create(ctx context.Context, subscription *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	GetByTenant(ctx context.Context, tenantID string) (*Subscription, error)
	Update(ctx context.Context, subscription *Subscription) error
	Delete(ctx context.Context, id string) error

	// ListDueForRenewal returns active non-trial subscriptions whose paid-for
	// window ends at or before now, across all tenants.
	ListDueForRenewal(ctx context.Context, now time.Time) ([]*Subscription, error)

	// ListPastDue returns every past_due subscription across all tenants,
	// both inside and beyond the grace window.
	ListPastDue(ctx context.Context) ([]*Subscription, error)

	// ListExpiredTrials returns trial subscriptions whose trial window has
	// closed at or before now, across all tenants.
	ListExpiredTrials(ctx context.Context, now time.Time) ([]*Subscription, error)
}
