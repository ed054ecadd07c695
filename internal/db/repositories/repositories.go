// Package repositories implements the data access layer (repository pattern) for
// the PAK.sh web console. Each repository type encapsulates all database queries
// for a domain entity. Handlers and services never issue SQL directly; all
// database access goes through this layer, which makes query logic testable in
// isolation and prevents accidental cross-domain data access.
package repositories

import (
	"context"
	"database/sql"
)

// DBTX is the subset of *sql.DB and *sql.Tx that repositories use. Multi-row
// mutations (failed login + audit row, token create + invalidate prior,
// deployment write + project stats refresh) run all their statements against a
// single *sql.Tx obtained by the calling service.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
