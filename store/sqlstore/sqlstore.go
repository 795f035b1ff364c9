/*
Package sqlstore provides a database/sql implementation of membership.TxStore.

PURPOSE:
  Implements every persistence interface (members, payments, institutions,
  approvals) over one relational schema. The same SQL runs on SQLite
  (mattn/go-sqlite3) and PostgreSQL (lib/pq).

PORTABILITY RULES:
  - Placeholders are $1..$n, numbered in order of first appearance. Both
    drivers accept this; SQLite binds "$n" positionally by appearance.
  - Timestamps are TEXT in a fixed-width UTC layout so lexical order is
    chronological order.
  - Money is TEXT holding the decimal string. Never REAL.
  - Upserts use ON CONFLICT(id) DO UPDATE, supported by both.

KEY TABLES:
  members:         Membership records (status + visibility flag)
  member_payments: Dues ledger
  institutions:    Employers, activated by approval
  approvals:       Generic change-request queue

INVARIANTS ENFORCED BY THE SCHEMA:
  - idx_unique_approved_payment: one APPROVED payment per member+period
    (partial unique index; unapproved duplicates allowed)
  - chk_members_registration: registration_number set iff status is
    APPROVED, ACTIVE, RESIGNED or EXPELLED

CONCURRENCY:
  SQLite is limited to one open connection, which serializes units of
  work. PostgreSQL relies on its own row locking.

USAGE:
  store, err := sqlstore.Open("sqlite3", "./data/members.db?_foreign_keys=on")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := membership.NewService(store, generic.SystemClock{})

SEE ALSO:
  - schema.go: DDL
  - membership/store.go: Interface definitions
  - store/memory: In-memory implementation for tests
*/
package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/warp/membership-engine/logger"
	"github.com/warp/membership-engine/membership"
)

const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements membership.Store over a querier.
type queries struct {
	q querier
}

// Store implements membership.TxStore.
type Store struct {
	queries
	db     *sql.DB
	driver string
}

var _ membership.TxStore = (*Store)(nil)

// Open connects, migrates and returns a ready store.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite, DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if driver == DriverSQLite {
		// ":memory:" databases exist per connection.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	store := New(db, driver)
	if err := store.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	logger.Info("database ready", "driver", driver)
	return store, nil
}

// OpenSQLite opens a SQLite database file. Use ":memory:" for an
// in-memory database.
func OpenSQLite(path string) (*Store, error) {
	return Open(DriverSQLite, path+"?_foreign_keys=on&_journal_mode=WAL")
}

// New wraps an existing handle without migrating it.
func New(db *sql.DB, driver string) *Store {
	return &Store{queries: queries{q: db}, db: db, driver: driver}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the driver name the store was opened with.
func (s *Store) Driver() string {
	return s.driver
}

// =============================================================================
// TRANSACTIONAL STORE (membership.TxStore interface)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *Store) WithTx(ctx context.Context, fn func(membership.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&queries{q: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
