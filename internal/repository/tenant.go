package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/opsgrid/opsgrid/internal/cache"
	"github.com/opsgrid/opsgrid/internal/domain/tenant"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/postgres"
	"github.com/opsgrid/opsgrid/internal/types"
)

type tenantRepository struct {
	db     postgres.IClient
	cache  cache.Cache
	logger *logger.Logger
}

// NewTenantRepository creates the postgres tenant directory. Active user
// counts are cached briefly since capacity checks read them on every plan
// operation.
func NewTenantRepository(db postgres.IClient, c cache.Cache, log *logger.Logger) tenant.Repository {
	return &tenantRepository{db: db, cache: c, logger: log}
}

const tenantColumns = `id, name, slug, status, created_at, updated_at`

func (r *tenantRepository) Get(ctx context.Context, id string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1 AND status != $2`

	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &t, query, id, types.StatusDeleted)
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("tenant not found").
			WithHint("Tenant not found").
			WithReportableDetails(map[string]any{"tenant_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get tenant").
			Mark(ierr.ErrDatabase)
	}
	return &t, nil
}

func (r *tenantRepository) GetBySlug(ctx context.Context, slug string) (*tenant.Tenant, error) {
	var t tenant.Tenant
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1 AND status != $2`

	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &t, query, slug, types.StatusDeleted)
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("tenant not found").
			WithHint("Tenant not found").
			WithReportableDetails(map[string]any{"slug": slug}).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get tenant").
			Mark(ierr.ErrDatabase)
	}
	return &t, nil
}

func (r *tenantRepository) List(ctx context.Context) ([]*tenant.Tenant, error) {
	var tenants []*tenant.Tenant
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE status != $1 ORDER BY created_at`

	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &tenants, query, types.StatusDeleted); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list tenants").
			Mark(ierr.ErrDatabase)
	}
	return tenants, nil
}

func (r *tenantRepository) ActiveUserCount(ctx context.Context, tenantID string) (int, error) {
	key := cache.TenantUserCountKey(tenantID)
	if cached, ok := r.cache.Get(ctx, key); ok {
		if count, ok := cached.(int); ok {
			return count, nil
		}
	}

	var count int
	query := `SELECT COUNT(*) FROM users WHERE tenant_id = $1 AND active = true AND status != $2`
	if err := sqlx.GetContext(ctx, r.db.Querier(ctx), &count, query, tenantID, types.StatusDeleted); err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to count active users").
			WithReportableDetails(map[string]any{"tenant_id": tenantID}).
			Mark(ierr.ErrDatabase)
	}

	r.cache.Set(ctx, key, count, cache.DefaultExpiration)
	return count, nil
}
