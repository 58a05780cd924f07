package feature

import (
	"context"

	"github.com/opsgrid/opsgrid/internal/types"
)

// FlagStore toggles tenant-level feature flags. The plan service is the only
// writer; the rest of the application reads flags to gate functionality.
type FlagStore interface {
	Activate(ctx context.Context, tenantID string, feature types.Feature) error
	Deactivate(ctx context.Context, tenantID string, feature types.Feature) error
	List(ctx context.Context, tenantID string) (types.FeatureSet, error)
}
