package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/opsgrid/opsgrid/internal/domain/payment"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/postgres"
	"github.com/opsgrid/opsgrid/internal/types"
)

type paymentRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewPaymentRepository creates the postgres payment snapshot repository
func NewPaymentRepository(db postgres.IClient, log *logger.Logger) payment.Repository {
	return &paymentRepository{db: db, logger: log}
}

type snapshotRow struct {
	payment.Snapshot
	AddonsRaw pq.StringArray `db:"addons"`
}

func (r snapshotRow) toDomain() *payment.Snapshot {
	snap := r.Snapshot
	snap.Addons = make([]types.Addon, 0, len(r.AddonsRaw))
	for _, a := range r.AddonsRaw {
		snap.Addons = append(snap.Addons, types.Addon(a))
	}
	return &snap
}

func snapshotFromDomain(snap *payment.Snapshot) snapshotRow {
	row := snapshotRow{Snapshot: *snap}
	row.AddonsRaw = make(pq.StringArray, 0, len(snap.Addons))
	for _, a := range snap.Addons {
		row.AddonsRaw = append(row.AddonsRaw, a.String())
	}
	return row
}

const snapshotColumns = `
	id, tenant_id, payment_number, plan_tier, user_limit, addons, amount,
	currency, cycle_start, cycle_end, payment_intent_id, payment_status,
	succeeded_at, applied_at, error_message, status, created_at, updated_at,
	created_by, updated_by`

func (r *paymentRepository) Create(ctx context.Context, snap *payment.Snapshot) error {
	row := snapshotFromDomain(snap)
	query := `
		INSERT INTO payment_snapshots (` + snapshotColumns + `)
		VALUES (
			:id, :tenant_id, :payment_number, :plan_tier, :user_limit, :addons, :amount,
			:currency, :cycle_start, :cycle_end, :payment_intent_id, :payment_status,
			:succeeded_at, :applied_at, :error_message, :status, :created_at, :updated_at,
			:created_by, :updated_by
		)`

	if _, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, row); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to create payment snapshot").
			WithReportableDetails(map[string]any{"payment_id": snap.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentRepository) Get(ctx context.Context, id string) (*payment.Snapshot, error) {
	var row snapshotRow
	query := `SELECT ` + snapshotColumns + ` FROM payment_snapshots WHERE id = $1`

	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &row, query, id)
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("payment snapshot not found").
			WithHint("Payment not found").
			WithReportableDetails(map[string]any{"payment_id": id}).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment snapshot").
			Mark(ierr.ErrDatabase)
	}
	return row.toDomain(), nil
}

func (r *paymentRepository) GetByPaymentIntentID(ctx context.Context, intentID string) (*payment.Snapshot, error) {
	var row snapshotRow
	query := `SELECT ` + snapshotColumns + ` FROM payment_snapshots WHERE payment_intent_id = $1`

	err := sqlx.GetContext(ctx, r.db.Querier(ctx), &row, query, intentID)
	if err == sql.ErrNoRows {
		return nil, ierr.NewError("payment snapshot not found").
			WithHint("No payment found for this payment intent").
			WithReportableDetails(map[string]any{"payment_intent_id": intentID}).
			Mark(ierr.ErrNotFound)
	}
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to get payment snapshot").
			Mark(ierr.ErrDatabase)
	}
	return row.toDomain(), nil
}

// Update only transitions lifecycle fields; the captured purchase values
// are immutable once written.
func (r *paymentRepository) Update(ctx context.Context, snap *payment.Snapshot) error {
	snap.UpdatedAt = time.Now().UTC()
	row := snapshotFromDomain(snap)
	query := `
		UPDATE payment_snapshots SET
			payment_status = :payment_status,
			succeeded_at = :succeeded_at,
			applied_at = :applied_at,
			error_message = :error_message,
			updated_at = :updated_at,
			updated_by = :updated_by
		WHERE id = :id`

	if _, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, row); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to update payment snapshot").
			WithReportableDetails(map[string]any{"payment_id": snap.ID}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *paymentRepository) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*payment.Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []snapshotRow
	query := `SELECT ` + snapshotColumns + ` FROM payment_snapshots
		WHERE tenant_id = $1 ORDER BY created_at DESC LIMIT $2`

	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &rows, query, tenantID, limit); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list payment snapshots").
			Mark(ierr.ErrDatabase)
	}

	snaps := make([]*payment.Snapshot, 0, len(rows))
	for _, row := range rows {
		snaps = append(snaps, row.toDomain())
	}
	return snaps, nil
}

type failureRepository struct {
	db     postgres.IClient
	logger *logger.Logger
}

// NewFailureRepository creates the postgres payment failure repository
func NewFailureRepository(db postgres.IClient, log *logger.Logger) payment.FailureRepository {
	return &failureRepository{db: db, logger: log}
}

const failureColumns = `
	id, tenant_id, reason, attempt_number, resolved, resolved_at, status,
	created_at, updated_at, created_by, updated_by`

func (r *failureRepository) Create(ctx context.Context, failure *payment.Failure) error {
	query := `
		INSERT INTO payment_failures (` + failureColumns + `)
		VALUES (
			:id, :tenant_id, :reason, :attempt_number, :resolved, :resolved_at, :status,
			:created_at, :updated_at, :created_by, :updated_by
		)`

	if _, err := sqlx.NamedExecContext(ctx, r.db.Querier(ctx), query, failure); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to record payment failure").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *failureRepository) ListPending(ctx context.Context, tenantID string) ([]*payment.Failure, error) {
	var failures []*payment.Failure
	query := `SELECT ` + failureColumns + ` FROM payment_failures
		WHERE tenant_id = $1 AND resolved = false ORDER BY created_at DESC`

	if err := sqlx.SelectContext(ctx, r.db.Querier(ctx), &failures, query, tenantID); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list payment failures").
			Mark(ierr.ErrDatabase)
	}
	return failures, nil
}

func (r *failureRepository) ResolveAllForTenant(ctx context.Context, tenantID string) (int, error) {
	now := time.Now().UTC()
	query := `UPDATE payment_failures SET resolved = true, resolved_at = $1, updated_at = $1
		WHERE tenant_id = $2 AND resolved = false`

	res, err := r.db.Querier(ctx).ExecContext(ctx, query, now, tenantID)
	if err != nil {
		return 0, ierr.WithError(err).
			WithHint("Failed to resolve payment failures").
			Mark(ierr.ErrDatabase)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return 0, ierr.WithError(err).Mark(ierr.ErrDatabase)
	}
	return int(affected), nil
}
