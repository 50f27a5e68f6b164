// Package migrations owns the clinic schema. SQL files under sql/ are
// embedded into the binary and applied in version order, each exactly once.
package migrations

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/medflow/medflow-clinic/pkg/logger"
)

//go:embed sql/*.sql
var embedded embed.FS

// lockKey is the pg_advisory_lock key held while migrating.
const lockKey int64 = 7_421_019_553

// ErrChecksumMismatch is returned when an applied migration file was edited.
var ErrChecksumMismatch = errors.New("migration checksum mismatch")

// Migration is one versioned SQL file
type Migration struct {
	Version  int
	Name     string
	SQL      string
	Checksum string
}

// Status describes a known migration and whether it has been applied
type Status struct {
	Version   int        `json:"version" db:"version"`
	Name      string     `json:"name" db:"name"`
	Checksum  string     `json:"checksum" db:"checksum"`
	Applied   bool       `json:"applied"`
	AppliedAt *time.Time `json:"applied_at,omitempty" db:"applied_at"`
}

// Runner applies migrations to a Postgres database
type Runner struct {
	db         *sqlx.DB
	logger     *logger.Logger
	migrations []Migration
}

// NewRunner creates a runner over the embedded clinic migrations
func NewRunner(db *sqlx.DB, log *logger.Logger) (*Runner, error) {
	return NewRunnerFromFS(db, log, embedded, "sql")
}

// NewRunnerFromFS creates a runner over the .sql files in dir of fsys.
func NewRunnerFromFS(db *sqlx.DB, log *logger.Logger, fsys fs.FS, dir string) (*Runner, error) {
	migrations, err := Load(fsys, dir)
	if err != nil {
		return nil, err
	}
	return &Runner{db: db, logger: log.WithComponent("migrations"), migrations: migrations}, nil
}

// Migrations returns the known migrations in version order
func (r *Runner) Migrations() []Migration {
	return r.migrations
}

// Embedded returns the clinic migrations shipped with the binary
func Embedded() ([]Migration, error) {
	return Load(embedded, "sql")
}

// Load reads NNNN_name.sql files from dir, sorted by version.
func Load(fsys fs.FS, dir string) ([]Migration, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	seen := make(map[int]string)
	var out []Migration
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, name, err := parseFilename(entry.Name())
		if err != nil {
			return nil, err
		}
		if prev, ok := seen[version]; ok {
			return nil, fmt.Errorf("duplicate migration version %d: %s and %s", version, prev, entry.Name())
		}
		seen[version] = entry.Name()

		body, err := fs.ReadFile(fsys, path.Join(dir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", entry.Name(), err)
		}

		sum := sha256.Sum256(body)
		out = append(out, Migration{
			Version:  version,
			Name:     name,
			SQL:      string(body),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

func parseFilename(filename string) (int, string, error) {
	base := strings.TrimSuffix(filename, ".sql")
	prefix, name, ok := strings.Cut(base, "_")
	if !ok || name == "" {
		return 0, "", fmt.Errorf("migration %s: expected NNNN_name.sql", filename)
	}
	version, err := strconv.Atoi(prefix)
	if err != nil || version <= 0 {
		return 0, "", fmt.Errorf("migration %s: invalid version %q", filename, prefix)
	}
	return version, name, nil
}

const createTableSQL = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INT PRIMARY KEY,
		name VARCHAR(255) NOT NULL,
		checksum CHAR(64) NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// Up applies every pending migration and returns the versions it applied.
// Each file runs in its own transaction. Applied files whose contents
// changed stop the run with ErrChecksumMismatch.
func (r *Runner) Up(ctx context.Context) ([]int, error) {
	conn, err := r.db.Connx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", lockKey); err != nil {
		return nil, fmt.Errorf("failed to acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", lockKey); err != nil {
			r.logger.Error().Err(err).Msg("failed to release migration lock")
		}
	}()

	if _, err := conn.ExecContext(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied, err := r.applied(ctx, conn)
	if err != nil {
		return nil, err
	}

	var done []int
	for _, m := range r.migrations {
		if prev, ok := applied[m.Version]; ok {
			if prev.Checksum != m.Checksum {
				return done, fmt.Errorf("%w: version %d (%s)", ErrChecksumMismatch, m.Version, m.Name)
			}
			continue
		}

		start := time.Now()
		if err := r.apply(ctx, conn, m); err != nil {
			return done, err
		}
		r.logger.Info().
			Int("version", m.Version).
			Str("name", m.Name).
			Dur("duration", time.Since(start)).
			Msg("applied migration")
		done = append(done, m.Version)
	}

	return done, nil
}

func (r *Runner) apply(ctx context.Context, conn *sqlx.Conn, m Migration) error {
	tx, err := conn.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migration %04d_%s: begin: %w", m.Version, m.Name, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("migration %04d_%s.sql failed: %w", m.Version, m.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, checksum) VALUES ($1, $2, $3)`,
		m.Version, m.Name, m.Checksum,
	); err != nil {
		return fmt.Errorf("migration %04d_%s: record: %w", m.Version, m.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migration %04d_%s: commit: %w", m.Version, m.Name, err)
	}
	return nil
}

func (r *Runner) applied(ctx context.Context, q sqlx.QueryerContext) (map[int]Status, error) {
	var rows []Status
	if err := sqlx.SelectContext(ctx, q, &rows,
		`SELECT version, name, checksum, applied_at FROM schema_migrations ORDER BY version`,
	); err != nil {
		return nil, fmt.Errorf("failed to read schema_migrations: %w", err)
	}

	out := make(map[int]Status, len(rows))
	for _, row := range rows {
		row.Applied = true
		out[row.Version] = row
	}
	return out, nil
}

// Status lists every known migration with its applied state. Rows recorded
// in schema_migrations with no matching file are included as applied.
func (r *Runner) Status(ctx context.Context) ([]Status, error) {
	if _, err := r.db.ExecContext(ctx, createTableSQL); err != nil {
		return nil, fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	applied, err := r.applied(ctx, r.db)
	if err != nil {
		return nil, err
	}

	out := make([]Status, 0, len(r.migrations))
	for _, m := range r.migrations {
		s := Status{Version: m.Version, Name: m.Name, Checksum: m.Checksum}
		if prev, ok := applied[m.Version]; ok {
			s.Applied = true
			s.AppliedAt = prev.AppliedAt
			delete(applied, m.Version)
		}
		out = append(out, s)
	}
	for _, orphan := range applied {
		out = append(out, orphan)
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}
