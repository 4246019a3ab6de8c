package sqlstore

import (
	"compliancedash/pkg/domain"
	"context"
	"database/sql"
	"strings"
	"time"
)

var _ domain.PersistentStore = (*Store)(nil)

// Store persists the domain state in relational tables. Every
// RunInTransaction call maps onto one database transaction.
type Store struct {
	db      *sql.DB
	dialect Dialect
	nowFn   func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for generated timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.nowFn = now
		}
	}
}

// New wraps db, applying the dialect schema.
func New(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*Store, error) {
	s := &Store{db: db, dialect: dialect, nowFn: func() time.Time { return time.Now().UTC() }}
	for _, opt := range opts {
		opt(s)
	}
	if err := applySchema(ctx, db, dialect.Schema); err != nil {
		return nil, err
	}
	return s, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func applySchema(ctx context.Context, db execer, stmts []string) error {
	for _, stmt := range stmts {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return domain.StorageError{Op: "apply schema", Err: err}
		}
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Dialect returns the configured dialect.
func (s *Store) Dialect() Dialect { return s.dialect }

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// RunInTransaction applies fn within a database transaction, committing
// only when fn succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (res domain.Result, retErr error) {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Result{}, domain.StorageError{Op: "begin", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = sqlTx.Rollback()
		}
	}()
	tx := &transaction{view: view{ctx: ctx, q: sqlTx, d: s.dialect}, now: s.nowFn()}
	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}
	if err := sqlTx.Commit(); err != nil {
		return domain.Result{}, domain.StorageError{Op: "commit", Err: err}
	}
	committed = true
	return domain.Result{Changes: tx.changes}, nil
}

// View executes fn with read access outside of an explicit transaction.
func (s *Store) View(ctx context.Context, fn func(domain.TransactionView) error) error {
	return fn(view{ctx: ctx, q: s.db, d: s.dialect})
}

type queryer interface {
	execer
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func storageErr(op string, err error) error {
	return domain.StorageError{Op: op, Err: err}
}
