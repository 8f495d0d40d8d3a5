// Package store implements the persistent store (spec §6): tenants,
// users, the workflow-execution analytics mirror, licenses, modules,
// files, security scans, retention, auth tokens, and the audit log, on
// Postgres via sqlx/pgx.
package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	// registers the "pgx" driver with database/sql so sqlx.Connect("pgx", ...)
	// resolves; the same database/sql surface is what lets tests swap in
	// github.com/DATA-DOG/go-sqlmock.
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store wraps a *sqlx.DB with the tenant-scoping and retry discipline
// every sub-repository in this package shares. Individual query
// methods live in tenant.go, user.go, workflow.go, audit.go,
// auth_token.go, file.go, license.go, module.go, retention.go and
// security.go.
type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres using the pgx stdlib driver, which is what
// lets the same *sqlx.DB be exercised by github.com/DATA-DOG/go-sqlmock
// in tests (sqlmock only speaks database/sql, not pgxpool).
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-open *sqlx.DB, the entrypoint tests use to
// inject a sqlmock-backed connection.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// withTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise. Every multi-statement write in this package
// goes through it rather than issuing bare statements, since a
// partially-applied tenant-scoped write is worse than a failed one.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
