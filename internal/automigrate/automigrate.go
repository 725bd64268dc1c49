// Package automigrate applies pending schema migrations at boot so the
// server never runs against a stale database.
package automigrate

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

type migration struct {
	version int
	name    string
}

// Run applies every unapplied *.up.sql file in migrationsDir, in
// version order. It shares the schema_migrations table with the
// golang-migrate CLI, so a database prepared by either tool works.
func Run(db *sql.DB, migrationsDir string) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TIMESTAMPTZ DEFAULT NOW()
		)
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return fmt.Errorf("scan migration version: %w", err)
		}
		applied[v] = true
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate applied migrations: %w", err)
	}

	pending, err := pendingMigrations(migrationsDir, applied)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		log.Printf("🧵 database up to date (%d migrations applied)", len(applied))
		return nil
	}

	// golang-migrate creates schema_migrations with a NOT NULL dirty
	// column; our inserts have to match whichever shape is present.
	insertStmt := "INSERT INTO schema_migrations (version) VALUES ($1)"
	dirty, err := hasDirtyColumn(db)
	if err != nil {
		return err
	}
	if dirty {
		insertStmt = "INSERT INTO schema_migrations (version, dirty) VALUES ($1, false)"
	}

	log.Printf("🧵 applying %d pending migration(s)", len(pending))
	for _, m := range pending {
		contents, err := os.ReadFile(filepath.Join(migrationsDir, m.name))
		if err != nil {
			return fmt.Errorf("read %s: %w", m.name, err)
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin tx for %s: %w", m.name, err)
		}

		if _, err := tx.Exec(string(contents)); err != nil {
			_ = tx.Rollback()
			if isAlreadyApplied(err) {
				log.Printf("🧵 skipped (already applied): %s", m.name)
				if _, recErr := db.Exec(insertStmt, m.version); recErr != nil {
					return fmt.Errorf("record skipped %s: %w", m.name, recErr)
				}
				continue
			}
			return fmt.Errorf("apply %s: %w", m.name, err)
		}

		if _, err := tx.Exec(insertStmt, m.version); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", m.name, err)
		}

		log.Printf("🧵 applied: %s", m.name)
	}

	log.Printf("🧵 migrations complete (%d new, %d total)", len(pending), len(applied)+len(pending))
	return nil
}

func pendingMigrations(dir string, applied map[int]bool) ([]migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	var pending []migration
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, ok := strings.Cut(name, "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if !applied[version] {
			pending = append(pending, migration{version: version, name: name})
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].version < pending[j].version })
	return pending, nil
}

func hasDirtyColumn(db *sql.DB) (bool, error) {
	var dirty bool
	err := db.QueryRow(`
		SELECT EXISTS (
			SELECT 1 FROM information_schema.columns
			WHERE table_name = 'schema_migrations' AND column_name = 'dirty'
		)`).Scan(&dirty)
	if err != nil {
		return false, fmt.Errorf("inspect schema_migrations: %w", err)
	}
	return dirty, nil
}

func isAlreadyApplied(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "already exists") || strings.Contains(msg, "duplicate key")
}
