package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/opsgrid/opsgrid/internal/config"
	ierr "github.com/opsgrid/opsgrid/internal/errors"
	"github.com/opsgrid/opsgrid/internal/logger"
	"github.com/opsgrid/opsgrid/internal/types"
)

// IClient is the database access interface used by repositories and
// services. Querier returns the transaction bound to the context when one
// is active, so repository code is transaction-agnostic.
type IClient interface {
	Querier(ctx context.Context) sqlx.ExtContext
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Client wraps sqlx with context-scoped transactions
type Client struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewClient connects to postgres using the configured DSN
func NewClient(cfg *config.Configuration, log *logger.Logger) (IClient, error) {
	db, err := sqlx.Connect("postgres", cfg.Postgres.DSN())
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to connect to postgres").
			Mark(ierr.ErrDatabase)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	return &Client{db: db, logger: log}, nil
}

// Querier returns the active transaction from the context, or the pool
func (c *Client) Querier(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(types.CtxDBTransaction).(*sqlx.Tx); ok {
		return tx
	}
	return c.db
}

// WithTx runs fn inside a transaction stored on the context. Nested calls
// join the outer transaction.
func (c *Client) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(types.CtxDBTransaction).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := c.db.BeginTxx(ctx, nil)
	if err != nil {
		return ierr.WithError(err).
			WithHint("Failed to begin transaction").
			Mark(ierr.ErrDatabase)
	}

	txCtx := context.WithValue(ctx, types.CtxDBTransaction, tx)
	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Errorw("failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to commit transaction").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
