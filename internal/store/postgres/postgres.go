// Package postgres implements store.Store on pgx connection pools.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sds-platform/sds-core/internal/store"
	"go.uber.org/zap"
)

// Store is the Postgres-backed store.Store.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// New creates a store over an existing pool.
func New(pool *pgxpool.Pool, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		pool:   pool,
		logger: logger.With(zap.String("component", "postgres_store")),
	}
}

// Connect parses the database URL, applies pool sizing and opens a pool.
func Connect(ctx context.Context, databaseURL string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}
	if minConns > 0 {
		cfg.MinConns = minConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func (s *Store) Users() store.UserStore                      { return &userStore{s} }
func (s *Store) Roles() store.RoleStore                      { return &roleStore{s} }
func (s *Store) Permissions() store.PermissionStore          { return &permissionStore{s} }
func (s *Store) Sessions() store.SessionStore                { return &sessionStore{s} }
func (s *Store) PasswordHistory() store.PasswordHistoryStore { return &passwordHistoryStore{s} }
func (s *Store) Audit() store.AuditStore                     { return &auditStore{s} }
func (s *Store) Signals() store.SignalStore                  { return &signalStore{s} }
func (s *Store) SignalHistory() store.SignalHistoryStore     { return &signalHistoryStore{s} }
func (s *Store) Categories() store.CategoryStore             { return &categoryStore{s} }
func (s *Store) SystemConfig() store.SystemConfigStore       { return &systemConfigStore{s} }

// translateErr maps driver errors onto the store sentinel errors.
func translateErr(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505":
			return store.ErrAlreadyExists
		case "23503":
			return store.ErrConflict
		}
	}
	return err
}
