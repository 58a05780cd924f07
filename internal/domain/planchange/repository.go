package planchange

import (
	"context"
)

// Repository is the append-only plan change log store
type Repository interface {
	Create(ctx context.Context, entry *Entry) error
	ListByTenant(ctx context.Context, tenantID string, limit int) ([]*Entry, error)
}
