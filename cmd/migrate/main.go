package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var namePattern = regexp.MustCompile(`[^a-z0-9_]+`)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "up":
		err = withMigrator(func(m *migrate.Migrate) error { return applySteps(m, args, 1) })
	case "down":
		err = withMigrator(func(m *migrate.Migrate) error { return applySteps(m, args, -1) })
	case "force":
		err = withMigrator(func(m *migrate.Migrate) error { return forceVersion(m, args) })
	case "create":
		err = createMigration(args)
	case "help", "-h", "--help":
		usage()
	default:
		err = fmt.Errorf("unknown command: %s", cmd)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "migrate: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `migrate <command> [args]

Commands:
  up [n]        Apply all pending migrations, or the next n
  down [n]      Roll back all migrations, or the last n
  create <name> Create numbered up/down migration files
  force <ver>   Force the recorded version (clears dirty state)

DATABASE_URL must point at the target PostgreSQL database.`)
}

func withMigrator(fn func(*migrate.Migrate) error) error {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return errors.New("DATABASE_URL is not set")
	}

	dir, err := filepath.Abs("migrations")
	if err != nil {
		return err
	}

	m, err := migrate.New("file://"+dir, databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		sourceErr, dbErr := m.Close()
		if sourceErr != nil {
			fmt.Fprintf(os.Stderr, "migrate: close source: %v\n", sourceErr)
		}
		if dbErr != nil {
			fmt.Fprintf(os.Stderr, "migrate: close database: %v\n", dbErr)
		}
	}()

	return fn(m)
}

func applySteps(m *migrate.Migrate, args []string, direction int) error {
	var err error
	if len(args) == 0 {
		if direction > 0 {
			err = m.Up()
		} else {
			err = m.Down()
		}
	} else {
		steps, parseErr := strconv.Atoi(args[0])
		if parseErr != nil || steps <= 0 {
			return fmt.Errorf("invalid step count: %s", args[0])
		}
		err = m.Steps(direction * steps)
	}
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("nothing to do")
		return nil
	}
	return err
}

func forceVersion(m *migrate.Migrate, args []string) error {
	if len(args) == 0 {
		return errors.New("version number is required")
	}
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version: %s", args[0])
	}
	if err := m.Force(version); err != nil {
		return err
	}
	fmt.Printf("forced version to %d\n", version)
	return nil
}

// createMigration writes the next pair of sequence-numbered migration
// files, e.g. 003_add_indexes.up.sql and 003_add_indexes.down.sql.
func createMigration(args []string) error {
	if len(args) == 0 {
		return errors.New("migration name is required")
	}

	name := sanitizeName(args[0])
	if name == "" {
		return errors.New("migration name must include at least one alphanumeric character")
	}

	dir := "migrations"
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	next, err := nextVersion(dir)
	if err != nil {
		return err
	}

	base := fmt.Sprintf("%03d_%s", next, name)
	for _, suffix := range []string{".up.sql", ".down.sql"} {
		path := filepath.Join(dir, base+suffix)
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err != nil {
			return err
		}
		if _, err := file.WriteString("-- " + base + suffix + "\n"); err != nil {
			file.Close()
			return err
		}
		if err := file.Close(); err != nil {
			return err
		}
		fmt.Printf("created %s\n", path)
	}

	return nil
}

func nextVersion(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	highest := 0
	for _, entry := range entries {
		prefix, _, ok := strings.Cut(entry.Name(), "_")
		if !ok {
			continue
		}
		version, err := strconv.Atoi(prefix)
		if err != nil {
			continue
		}
		if version > highest {
			highest = version
		}
	}
	return highest + 1, nil
}

func sanitizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	name = namePattern.ReplaceAllString(name, "")
	return strings.Trim(name, "_")
}
