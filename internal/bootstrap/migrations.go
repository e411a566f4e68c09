package bootstrap

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Migration is one schema step, identified by its filename and ordered by
// the numeric prefix.
type Migration struct {
	Name     string
	Version  int
	Checksum string
	SQL      string
}

// MigrationRunner applies the embedded schema migrations against a pool,
// tracking applied steps (with checksums) in schema_migrations.
type MigrationRunner struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

func NewMigrationRunner(pool *pgxpool.Pool, logger *zap.Logger) *MigrationRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MigrationRunner{pool: pool, logger: logger}
}

func (mr *MigrationRunner) initialize(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name VARCHAR(255) NOT NULL UNIQUE,
			checksum VARCHAR(64) NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT CURRENT_TIMESTAMP,
			execution_time_ms INTEGER NOT NULL
		)
	`
	if _, err := mr.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to initialize schema_migrations table: %w", err)
	}
	return nil
}

// loadMigrations reads the embedded .sql files in lexical order. Filenames
// carry a zero-padded numeric prefix, so lexical order is version order.
func loadMigrations() ([]*Migration, error) {
	entries, err := migrationFiles.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read embedded migrations: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	migrations := make([]*Migration, 0, len(names))
	for i, name := range names {
		content, err := migrationFiles.ReadFile("migrations/" + name)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		migrations = append(migrations, &Migration{
			Name:     name,
			Version:  i + 1,
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
			SQL:      string(content),
		})
	}
	if len(migrations) == 0 {
		return nil, fmt.Errorf("no embedded migrations found")
	}
	return migrations, nil
}

func (mr *MigrationRunner) appliedMigrations(ctx context.Context) (map[string]string, error) {
	rows, err := mr.pool.Query(ctx,
		`SELECT name, checksum FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[string]string)
	for rows.Next() {
		var name, checksum string
		if err := rows.Scan(&name, &checksum); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[name] = checksum
	}
	return applied, rows.Err()
}

// Run applies all pending migrations in order. A previously applied step
// whose checksum no longer matches the embedded content aborts the run.
func (mr *MigrationRunner) Run(ctx context.Context) error {
	if err := mr.initialize(ctx); err != nil {
		return err
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}
	applied, err := mr.appliedMigrations(ctx)
	if err != nil {
		return err
	}

	pending := 0
	for _, m := range migrations {
		if checksum, ok := applied[m.Name]; ok {
			if checksum != m.Checksum {
				return fmt.Errorf("migration %s has different checksum (applied: %s, current: %s) - manual intervention required",
					m.Name, checksum[:8], m.Checksum[:8])
			}
			continue
		}

		mr.logger.Info("Applying migration",
			zap.String("name", m.Name),
			zap.Int("version", m.Version))
		if err := mr.apply(ctx, m); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Name, err)
		}
		pending++
	}

	if pending == 0 {
		mr.logger.Info("No pending migrations, database schema is up to date")
	} else {
		mr.logger.Info("All migrations applied successfully", zap.Int("applied", pending))
	}
	return nil
}

func (mr *MigrationRunner) apply(ctx context.Context, m *Migration) error {
	start := time.Now()

	tx, err := mr.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to execute migration SQL: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO schema_migrations (version, name, checksum, applied_at, execution_time_ms)
		VALUES ($1, $2, $3, $4, $5)`,
		m.Version, m.Name, m.Checksum, time.Now(), time.Since(start).Milliseconds())
	if err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}
	return tx.Commit(ctx)
}
