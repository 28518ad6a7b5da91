// Package migrate keeps the archive schema current.
//
// Migrations are embedded files named NNN_description.sql. Each applied
// migration is recorded with a SHA-256 of its text, so a migration edited
// after it ran, or a database written by a newer build, is reported instead
// of being skipped.
package migrate

import (
	"context"
	"crypto/sha256"
	"database/sql"
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
)

//go:embed migrations/*.sql
var embedded embed.FS

const dir = "migrations"

var (
	ErrChecksumMismatch = errors.New("migrate: applied migration has changed")
	ErrUnknownVersion   = errors.New("migrate: database has a migration this build does not know")
)

// Migration describes one schema step and whether the database has it.
type Migration struct {
	Version   int
	Name      string
	Checksum  string
	Applied   bool
	AppliedAt time.Time
}

type step struct {
	Migration
	sql string
}

// Runner applies migrations to a DuckDB database.
type Runner struct {
	db     *sql.DB
	source fs.FS
}

// NewRunner creates a runner over the embedded archive migrations.
func NewRunner(db *sql.DB) *Runner {
	return &Runner{db: db, source: embedded}
}

func (r *Runner) load() ([]step, error) {
	entries, err := fs.ReadDir(r.source, dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: read migrations: %w", err)
	}

	seen := make(map[int]string)
	var steps []step
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		prefix, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, fmt.Errorf("migrate: %s: name must be NNN_description.sql", e.Name())
		}
		ver, err := strconv.Atoi(prefix)
		if err != nil || ver <= 0 {
			return nil, fmt.Errorf("migrate: %s: bad version %q", e.Name(), prefix)
		}
		if other, dup := seen[ver]; dup {
			return nil, fmt.Errorf("migrate: %s and %s share version %d", other, e.Name(), ver)
		}
		seen[ver] = e.Name()

		data, err := fs.ReadFile(r.source, path.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("migrate: read %s: %w", e.Name(), err)
		}
		sum := sha256.Sum256(data)
		steps = append(steps, step{
			Migration: Migration{Version: ver, Name: e.Name(), Checksum: hex.EncodeToString(sum[:])},
			sql:       string(data),
		})
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Version < steps[j].Version })
	return steps, nil
}

func (r *Runner) bootstrap(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		version    INTEGER PRIMARY KEY,
		name       VARCHAR NOT NULL,
		checksum   VARCHAR NOT NULL,
		applied_at TIMESTAMP DEFAULT current_timestamp
	)`)
	if err != nil {
		return fmt.Errorf("migrate: create schema_migrations: %w", err)
	}
	return nil
}

type record struct {
	checksum  string
	appliedAt time.Time
}

func (r *Runner) applied(ctx context.Context) (map[int]record, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT version, checksum, applied_at FROM schema_migrations")
	if err != nil {
		return nil, fmt.Errorf("migrate: read schema_migrations: %w", err)
	}
	defer rows.Close()

	out := make(map[int]record)
	for rows.Next() {
		var (
			ver int
			rec record
			at  sql.NullTime
		)
		if err := rows.Scan(&ver, &rec.checksum, &at); err != nil {
			return nil, fmt.Errorf("migrate: scan schema_migrations: %w", err)
		}
		rec.appliedAt = at.Time
		out[ver] = rec
	}
	return out, rows.Err()
}

// plan matches the known migrations against the database's record of
// applied ones.
func (r *Runner) plan(ctx context.Context) ([]step, error) {
	if err := r.bootstrap(ctx); err != nil {
		return nil, err
	}
	steps, err := r.load()
	if err != nil {
		return nil, err
	}
	done, err := r.applied(ctx)
	if err != nil {
		return nil, err
	}

	for i := range steps {
		rec, ok := done[steps[i].Version]
		if !ok {
			continue
		}
		if rec.checksum != steps[i].Checksum {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, steps[i].Name)
		}
		steps[i].Applied = true
		steps[i].AppliedAt = rec.appliedAt
		delete(done, steps[i].Version)
	}
	for ver := range done {
		return nil, fmt.Errorf("%w: version %d", ErrUnknownVersion, ver)
	}
	return steps, nil
}

// Run applies every pending migration in version order, each in its own
// transaction, and returns the ones it applied.
func (r *Runner) Run(ctx context.Context) ([]Migration, error) {
	steps, err := r.plan(ctx)
	if err != nil {
		return nil, err
	}

	var ran []Migration
	for _, s := range steps {
		if s.Applied {
			continue
		}
		if err := r.apply(ctx, s); err != nil {
			return ran, err
		}
		s.Applied = true
		s.AppliedAt = time.Now()
		ran = append(ran, s.Migration)
	}
	return ran, nil
}

func (r *Runner) apply(ctx context.Context, s step) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("migrate: begin %s: %w", s.Name, err)
	}
	if _, err := tx.ExecContext(ctx, s.sql); err != nil {
		tx.Rollback()
		return fmt.Errorf("migrate: execute %s: %w", s.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, name, checksum) VALUES (?, ?, ?)",
		s.Version, s.Name, s.Checksum); err != nil {
		tx.Rollback()
		return fmt.Errorf("migrate: record %s: %w", s.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("migrate: commit %s: %w", s.Name, err)
	}
	return nil
}

// Status lists every known migration in version order with its applied
// state. It fails the same way Run does on an edited or unknown migration.
func (r *Runner) Status(ctx context.Context) ([]Migration, error) {
	steps, err := r.plan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Migration, len(steps))
	for i, s := range steps {
		out[i] = s.Migration
	}
	return out, nil
}
