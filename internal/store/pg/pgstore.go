// Package pg implements the document-store contracts on PostgreSQL via
// the pgx stdlib driver.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"worklane.io/internal/auth"
)

// Store bundles every persistence surface over one connection pool.
type Store struct {
	db *sql.DB
}

var _ auth.Store = (*Store)(nil)

// Open connects to dsn with tuned pool defaults.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(15 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return &Store{db: db}, nil
}

// New wraps an existing pool (used by tests with sqlmock).
func New(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Principals(context.Context) auth.PrincipalStore { return &principalStore{db: s.db} }
func (s *Store) Roles(context.Context) auth.RoleStore           { return &roleStore{db: s.db} }
func (s *Store) Permissions(context.Context) auth.PermissionStore {
	return &permissionStore{db: s.db}
}

// Tasks returns the work-item store.
func (s *Store) Tasks() *TaskStore { return &TaskStore{db: s.db} }

// Requirements returns the requirement store.
func (s *Store) Requirements() *RequirementStore { return &RequirementStore{db: s.db} }

// isUniqueViolation reports a duplicate-key insert.
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
