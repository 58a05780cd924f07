package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/opsgrid/opsgrid/internal/domain/feature"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/postgres"
	"github.com/opsgrid/opsgrid/internal/types"
)

type featureFlagStore struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewFeatureFlagStore creates the postgres feature flag store
func NewFeatureFlagStore(db postgres.IClient, log *logger.Logger) feature.FlagStore {
	return &featureFlagStore{db: db, logger: log}
}

func (r *featureFlagStore) Activate(ctx context.Context, tenantID string, f types.Feature) error {
	query := `
		INSERT INTO feature_flags (tenant_id, feature, enabled, updated_at)
		VALUES ($1, $2, true, NOW())
		ON CONFLICT (tenant_id, feature) DO UPDATE SET enabled = true, updated_at = NOW()`

	if _, err := r.db.Querier(ctx).ExecContext(ctx, query, tenantID, f.String()); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to activate feature").
			WithReportableDetails(map[string]any{"tenant_id": tenantID, "feature": f}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *featureFlagStore) Deactivate(ctx context.Context, tenantID string, f types.Feature) error {
	query := `
		INSERT INTO feature_flags (tenant_id, feature, enabled, updated_at)
		VALUES ($1, $2, false, NOW())
		ON CONFLICT (tenant_id, feature) DO UPDATE SET enabled = false, updated_at = NOW()`

	if _, err := r.db.Querier(ctx).ExecContext(ctx, query, tenantID, f.String()); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to deactivate feature").
			WithReportableDetails(map[string]any{"tenant_id": tenantID, "feature": f}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *featureFlagStore) List(ctx context.Context, tenantID string) (types.FeatureSet, error) {
	var rows []struct {
		Feature string `db:"feature"`
		Enabled bool   `db:"enabled"`
	}
	query := `SELECT feature, enabled FROM feature_flags WHERE tenant_id = $1`

	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &rows, query, tenantID); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list feature flags").
			Mark(ierr.ErrDatabase)
	}

	set := make(types.FeatureSet, len(rows))
	for _, row := range rows {
		set[types.Feature(row.Feature)] = row.Enabled
	}
	return set, nil
}
