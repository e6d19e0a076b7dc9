// Package vizierdb persists viztrails in postgres.
//
// Every table lives in the vizier schema.  Modules are stored once per viztrail and referenced by
// position from the workflow_modules table, so workflow versions and forked branches that share a
// module share its row.
package vizierdb

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/vizierdb/vizier/src/internal/errors"
	"github.com/vizierdb/vizier/src/internal/log"
	"go.uber.org/zap"
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections.
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default number of idle connections to keep.
	DefaultMaxIdleConns = 2

	maxTxAttempts = 5
)

// Open connects to the postgres database at dsn and creates the vizier schema if needed.
func Open(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("pgx", dsn)
	if err != nil {
		return nil, errors.EnsureStack(err)
	}
	db.SetMaxOpenConns(DefaultMaxOpenConns)
	// 0 means no idle connections, not the default.
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "ping postgres")
	}
	if err := Setup(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Setup creates the vizier schema and its tables if they do not exist.
func Setup(ctx context.Context, db *sqlx.DB) error {
	_, err := db.ExecContext(ctx, schema)
	return errors.Wrap(err, "create vizier schema")
}

// IsUniqueViolation reports whether err is a postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	pgErr := &pgconn.PgError{}
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}

func isTransactionRollback(err error) bool {
	pgErr := &pgconn.PgError{}
	if errors.As(err, &pgErr) {
		return pgerrcode.IsTransactionRollback(pgErr.Code)
	}
	return false
}

// withTx runs apply in a transaction, committing if it succeeds and rolling back otherwise.
// Transactions that postgres rolled back because of a conflict are retried.
func withTx(ctx context.Context, db *sqlx.DB, apply func(tx *sqlx.Tx) error) error {
	var err error
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		if err = attemptTx(ctx, db, apply); err == nil || !isTransactionRollback(err) {
			return err
		}
		log.Debug(ctx, "retrying transaction", log.RetryAttempt(attempt, maxTxAttempts), zap.Error(err))
		select {
		case <-ctx.Done():
			return errors.EnsureStack(context.Cause(ctx))
		case <-time.After(time.Duration(attempt+1) * 10 * time.Millisecond):
		}
	}
	return errors.Wrapf(err, "transaction failed after %d attempts", maxTxAttempts)
}

func attemptTx(ctx context.Context, db *sqlx.DB, apply func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead})
	if err != nil {
		return errors.EnsureStack(err)
	}
	if err := apply(tx); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			log.Debug(ctx, "rollback failed", zap.Error(rerr))
		}
		return err
	}
	return errors.EnsureStack(tx.Commit())
}
