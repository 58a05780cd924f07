package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/opsgrid/opsgrid/internal/domain/planchange"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/postgres"
)

type planChangeRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewPlanChangeRepository creates the postgres plan change log repository.
// The log is append-only: there is no update or delete.
func NewPlanChangeRepository(db postgres.IClient, log *logger.Logger) planchange.Repository {
	return &planChangeRepository{db: db, logger: log}
}

const planChangeColumns = `
	id, tenant_id, previous_plan_tier, new_plan_tier, previous_user_limit,
	new_user_limit, actor, reason, status, created_at, updated_at,
	created_by, updated_by`

func (r *planChangeRepository) Create(ctx context.Context, entry *planchange.Entry) error {
	query := `
		INSERT INTO plan_change_history (` + planChangeColumns + `)
		VALUES (
			:id, :tenant_id, :previous_plan_tier, :new_plan_tier, :previous_user_limit,
			:new_user_limit, :actor, :reason, :status, :created_at, :updated_at,
			:created_by, :updated_by
		)`

	if _, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, entry); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to record plan change").
			WithReportableDetails(map[string]any{"tenant_id": entry.TenantID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *planChangeRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*planchange.Entry, error) {
	if limit <= 0 {
		limit = 50
	}

	var entries []*planchange.Entry
	query := `SELECT ` + planChangeColumns + ` FROM plan_change_history
		WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`

	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &entries, query, tenantID, limit); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list plan change history").
			Mark(ierr.ErrDatabase)
	}
	return entries, nil
}
