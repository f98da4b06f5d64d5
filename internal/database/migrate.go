package database

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migration is one numbered schema file such as 001_schema.sql.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrator applies the embedded migrations in version order and records
// them in the _migrations table.
type Migrator struct {
	db   *sql.DB
	fsys fs.FS
}

// NewMigrator returns a migrator over the embedded schema files.
func NewMigrator(db *sql.DB) *Migrator {
	sub, _ := fs.Sub(migrationFS, "migrations")
	return &Migrator{db: db, fsys: sub}
}

// LoadMigrations parses the version from each file name prefix
// ("001_schema.sql" -> 1) and sorts by it.  Files without a numeric
// prefix are skipped.
func (m *Migrator) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}
	var out []Migration
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".sql") {
			continue
		}
		parts := strings.SplitN(name, "_", 2)
		if len(parts) < 2 {
			continue
		}
		version, err := strconv.Atoi(parts[0])
		if err != nil {
			continue
		}
		content, err := fs.ReadFile(m.fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		out = append(out, Migration{Version: version, Name: name, SQL: string(content)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// Up applies every migration that is not yet recorded and returns how many
// ran.  Each file runs statement by statement because the driver is not
// opened with multiStatements.
func (m *Migrator) Up(ctx context.Context) (int, error) {
	if _, err := m.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS _migrations (
    version INT PRIMARY KEY,
    name VARCHAR(255) NOT NULL,
    applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
)`); err != nil {
		return 0, fmt.Errorf("create _migrations table: %w", err)
	}
	applied := map[int]bool{}
	rows, err := m.db.QueryContext(ctx, `SELECT version FROM _migrations`)
	if err != nil {
		return 0, fmt.Errorf("read applied migrations: %w", err)
	}
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return 0, err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return 0, err
	}
	count := 0
	for _, mig := range migrations {
		if applied[mig.Version] {
			continue
		}
		for _, stmt := range SplitStatements(mig.SQL) {
			if _, err := m.db.ExecContext(ctx, stmt); err != nil {
				return count, fmt.Errorf("migration %s: %w", mig.Name, err)
			}
		}
		if _, err := m.db.ExecContext(ctx, `INSERT INTO _migrations (version, name) VALUES (?, ?)`, mig.Version, mig.Name); err != nil {
			return count, fmt.Errorf("record migration %s: %w", mig.Name, err)
		}
		count++
	}
	return count, nil
}

// SplitStatements splits a schema file on semicolons that end a line and
// drops empty and comment-only chunks.
func SplitStatements(script string) []string {
	var out []string
	for _, chunk := range strings.Split(script, ";\n") {
		body := strings.TrimSpace(chunk)
		body = strings.TrimSuffix(body, ";")
		if body == "" || onlyComments(body) {
			continue
		}
		out = append(out, body)
	}
	return out
}

func onlyComments(s string) bool {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line != "" && !strings.HasPrefix(line, "--") {
			return false
		}
	}
	return true
}
