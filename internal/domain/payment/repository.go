package payment

import (
	"context"
)

// Repository provides access to the payment snapshot ledger. Snapshots are
// append-only from the caller's perspective: status transitions update the
// row but rows are never deleted.
type Repository interface {
	Create(ctx context.Context, snapshot *Snapshot) error
	Get(ctx context.Context, id string) (*Snapshot, error)
	GetByPaymentIntentID(ctx context.Context, intentID string) (*Snapshot, error)
	Update(ctx context.Context, snapshot *Snapshot) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Snapshot, error)
}

// FailureRepository tracks failed charge attempts per tenant
type FailureRepository interface {
	Create(ctx context.Context, failure *Failure) error
	ListPending(ctx context.Context, tenantID string) ([]*Failure, error)

	// ResolveAllForTenant marks every pending failure resolved; called when
	// a tenant transitions back into active after a successful charge.
	ResolveAllForTenant(ctx context.Context, tenantID string) (int, error)
}
