// Package dbx holds the small database plumbing the repositories share:
// DBTX, satisfied by both *sql.DB and *sql.Tx so a query helper can run
// inside or outside a transaction, and WithTx for the writes that must
// stay atomic (a record write and its aggregate-count refresh commit
// together or not at all).
package dbx

import (
	"context"
	"database/sql"
)

// DBTX is the query surface the repositories are written against.
// Passing a *sql.Tx scopes every call to that transaction; passing the
// *sql.DB runs each call on its own connection.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// WithTx runs fn inside a transaction: commit when fn returns nil,
// rollback when it returns an error or panics. The panic is rethrown
// after the rollback.
//
//	err := dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
//	    _, err := tx.ExecContext(ctx, "UPDATE records SET ...")
//	    return err
//	})
func WithTx(ctx context.Context, db *sql.DB, opts *sql.TxOptions, fn func(ctx context.Context, tx DBTX) error) (err error) {
	tx, err := db.BeginTx(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		err = tx.Commit()
	}()

	err = fn(ctx, tx)
	return err
}
