package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/opsgrid/opsgrid/internal/domain/subscription"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/postgres"
	"github.com/opsgrid/opsgrid/internal/types"
)

type subscriptionRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewSubscriptionRepository creates the postgres subscription repository
func NewSubscriptionRepository(db postgres.IClient, log *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: log}
}

// subscriptionRow adds the array column mapping sqlx cannot derive from the
// domain model
type subscriptionRow struct {
	subscription.Subscription
	AddonsRaw pq.StringArray `db:"addons"`
}

func (r subscriptionRow) toDomain() *subscription.Subscription {
	sub := r.Subscription
	sub.Addons = make([]types.Addon, 0, len(r.AddonsRaw))
	for _, a := range r.AddonsRaw {
		sub.Addons = append(sub.Addons, types.Addon(a))
	}
	return &sub
}

func fromDomain(sub *subscription.Subscription) subscriptionRow {
	row := subscriptionRow{Subscription: *sub}
	row.AddonsRaw = make(pq.StringArray, 0, len(sub.Addons))
	for _, a := range sub.Addons {
		row.AddonsRaw = append(row.AddonsRaw, a.String())
	}
	return row
}

const subscriptionColumns = `
	id, tenant_id, plan_tier, subscription_status, is_trial, trial_ends_at,
	user_limit, addons, billing_period_started_at, billing_period_ends_at,
	next_renewal_at, subscription_start_date, pending_plan_tier,
	pending_user_limit, failed_renewal_attempts, grace_period_until,
	last_renewal_at, last_status_event, status_changed_at,
	version, status, created_at, updated_at, created_by, updated_by`

func (r *subscriptionRepository) Create(ctx context.Context, sub *subscription.Subscription) error {
	row := fromDomain(sub)
	query := `
		INSERT INTO subscriptions (` + subscriptionColumns + `)
		VALUES (
			:id, :tenant_id, :plan_tier, :subscription_status, :is_trial, :trial_ends_at,
			:user_limit, :addons, :billing_period_started_at, :billing_period_ends_at,
			:next_renewal_at, :subscription_start_date, :pending_plan_tier,
			:pending_user_limit, :failed_renewal_attempts, :grace_period_until,
			:last_renewal_at, :last_status_event, :status_changed_at,
			:version, :status, :created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, row); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create subscription").
			WithReportableDetails(map[string]any{"subscription_id": sub.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) Get(ctx context.Context, id string) (*subscription.Subscription, error) {
	var row subscriptionRow
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE id = $1 AND status != $2`

	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &row, query, id, types.StatusDeleted)
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("subscription not found").
			WithHint("Subscription not found").
			WithReportableDetails(map[string]any{"subscription_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription").
			Mark(ierr.ErrDatabase)
	}
	return row.toDomain(), nil
}

func (r *subscriptionRepository) GetByTenant(ctx context.Context, tenantID string) (*subscription.Subscription, error) {
	var row subscriptionRow
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions WHERE tenant_id = $1 AND status != $2`

	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &row, query, tenantID, types.StatusDeleted)
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("subscription not found").
			WithHint("Tenant has no subscription").
			WithReportableDetails(map[string]any{"tenant_id": tenantID}).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription").
			Mark(ierr.ErrDatabase)
	}
	return row.toDomain(), nil
}

// Update persists the subscription with optimistic locking on the version
// column. The in-memory version is bumped on success so the caller can keep
// writing the same instance.
func (r *subscriptionRepository) Update(ctx context.Context, sub *subscription.Subscription) error {
	sub.UpdatedAt = time.Now().UTC()
	row := fromDomain(sub)
	query := `
		UPDATE subscriptions SET
			plan_tier = :plan_tier,
			subscription_status = :subscription_status,
			is_trial = :is_trial,
			trial_ends_at = :trial_ends_at,
			user_limit = :user_limit,
			addons = :addons,
			billing_period_started_at = :billing_period_started_at,
			billing_period_ends_at = :billing_period_ends_at,
			next_renewal_at = :next_renewal_at,
			subscription_start_date = :subscription_start_date,
			pending_plan_tier = :pending_plan_tier,
			pending_user_limit = :pending_user_limit,
			failed_renewal_attempts = :failed_renewal_attempts,
			grace_period_until = :grace_period_until,
			last_renewal_at = :last_renewal_at,
			last_status_event = :last_status_event,
			status_changed_at = :status_changed_at,
			version = version + 1,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id AND version = :version AND status != 'deleted'`

	res, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, row)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update subscription").
			WithReportableDetails(map[string]any{"subscription_id": sub.ID}).
			Mark(ierr.ErrDatabase)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	if affected == 0 {
		return ierr.NewError("subscription was modified concurrently").
			WithHint("The subscription changed while you were editing it, please retry").
			WithReportableDetails(map[string]any{
				"subscription_id": sub.ID,
				"version":         sub.Version,
			}).
			Mark(ierr.ErrVersionConflict)
	}

	sub.Version++
	return nil
}

func (r *subscriptionRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE subscriptions SET status = $1, updated_at = $2 WHERE id = $3`
	if _, err := r.db.Querier(ctx).ExecContext(ctx, query, types.StatusDeleted, time.Now().UTC(), id); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete subscription").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) ListDueForRenewal(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE status != $1
		  AND subscription_status = $2
		  AND is_trial = false
		  AND billing_period_ends_at IS NOT NULL
		  AND billing_period_ends_at <= $3
		ORDER BY billing_period_ends_at`

	return r.list(ctx, query, types.StatusDeleted, types.SubscriptionStatusActive, now)
}

func (r *subscriptionRepository) ListPastDue(ctx context.Context) ([]*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE status != $1 AND subscription_status = $2
		ORDER BY grace_period_until NULLS LAST`

	return r.list(ctx, query, types.StatusDeleted, types.SubscriptionStatusPastDue)
}

func (r *subscriptionRepository) ListExpiredTrials(ctx context.Context, now time.Time) ([]*subscription.Subscription, error) {
	query := `SELECT ` + subscriptionColumns + ` FROM subscriptions
		WHERE status != $1
		  AND is_trial = true
		  AND trial_ends_at IS NOT NULL
		  AND trial_ends_at <= $2
		ORDER BY trial_ends_at`

	return r.list(ctx, query, types.StatusDeleted, now)
}

func (r *subscriptionRepository) list(ctx context.Context, query string, args ...any) ([]*subscription.Subscription, error) {
	var rows []subscriptionRow
	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &rows, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}

	subs := make([]*subscription.Subscription, 0, len(rows))
	for _, row := range rows {
		subs = append(subs, row.toDomain())
	}
	return subs, nil
}
