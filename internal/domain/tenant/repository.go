package tenant

import (
	"context"
)

// Repository is the tenant directory: it resolves tenant records and exposes
// the currently active user (technician) count used for capacity validation
// and unlimited-seat billing.
type Repository interface {
	Get(ctx context.Context, id string) (*Tenant, error)
	GetBySlug(ctx context.Context, slug string) (*Tenant, error)
	List(ctx context.Context) ([]*Tenant, error)

	// ActiveUserCount returns the number of currently active users of the
	// tenant. Deactivated users do not count.
	ActiveUserCount(ctx context.Context, tenantID string) (int, error)
}
