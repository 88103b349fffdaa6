package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
)

var (
	//go:embed migrations/*.sql
	postgresMigrations embed.FS

	//go:embed migrations/sqlite/*.sql
	sqliteMigrations embed.FS
)

// migrationLockKey is the advisory lock held while migrating so the api and
// worker processes can start together.
const migrationLockKey = 72_410_001

// migrator holds what differs between the Postgres and SQLite schema runs.
type migrator struct {
	fsys      fs.FS
	root      string
	advisory  bool // take the Postgres advisory lock around the run
	tableDDL  string
	appliedQ  string
	recordSQL string
}

var (
	postgresMigrator = migrator{
		fsys:     postgresMigrations,
		root:     "migrations",
		advisory: true,
		tableDDL: `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				name       TEXT PRIMARY KEY,
				applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
			)`,
		appliedQ:  `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = $1)`,
		recordSQL: `INSERT INTO schema_migrations (name) VALUES ($1)`,
	}
	sqliteMigrator = migrator{
		fsys: sqliteMigrations,
		root: "migrations/sqlite",
		tableDDL: `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				name       TEXT PRIMARY KEY,
				applied_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
		appliedQ:  `SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE name = ?)`,
		recordSQL: `INSERT INTO schema_migrations (name) VALUES (?)`,
	}
)

// Migrate applies every embedded migration that has not run yet, in file name order.
func (d *DB) Migrate(ctx context.Context) error {
	m := postgresMigrator
	if d.Dialect == DialectSQLite {
		m = sqliteMigrator
	}
	return m.apply(ctx, d.Client)
}

func (m migrator) apply(ctx context.Context, db *sql.DB) error {
	entries, err := fs.ReadDir(m.fsys, m.root)
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".sql") {
			files = append(files, entry.Name())
		}
	}
	sort.Strings(files)

	conn, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire conn: %w", err)
	}
	defer conn.Close()

	if m.advisory {
		if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("lock migrations: %w", err)
		}
		defer conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock($1)`, migrationLockKey)
	}

	if _, err := conn.ExecContext(ctx, m.tableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	for _, name := range files {
		var applied bool
		if err := conn.QueryRowContext(ctx, m.appliedQ, name).Scan(&applied); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if applied {
			continue
		}

		content, err := fs.ReadFile(m.fsys, m.root+"/"+name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := tx.ExecContext(ctx, m.recordSQL, name); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", name, err)
		}
	}
	return nil
}
