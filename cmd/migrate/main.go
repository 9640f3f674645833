package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/spf13/cobra"

	// Loads .env before the flag defaults are read.
	_ "github.com/devpilot-hq/devpilot/internal/config"
)

var (
	databaseURL   string
	migrationsDir string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "migrate",
		Short:         "Manage the DevPilot database schema",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
	root.PersistentFlags().StringVar(&migrationsDir, "dir", "migrations", "directory holding the migration files")

	root.AddCommand(upCmd(), downCmd(), forceCmd(), versionCmd(), createCmd())
	return root
}

func upCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "up [n]",
		Short: "Apply all migrations or the next n migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				if len(args) == 0 {
					return ignoreNoChange(m.Up())
				}
				steps, err := parseSteps(args[0])
				if err != nil {
					return err
				}
				return ignoreNoChange(m.Steps(steps))
			})
		},
	}
}

func downCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "down [n]",
		Short: "Roll back all migrations or the last n migrations",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				if len(args) == 0 {
					return ignoreNoChange(m.Down())
				}
				steps, err := parseSteps(args[0])
				if err != nil {
					return err
				}
				return ignoreNoChange(m.Steps(-steps))
			})
		},
	}
}

func forceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "force <version>",
		Short: "Force set the migration version (fixes dirty state)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid version: %s", args[0])
			}
			return withMigrator(func(m *migrate.Migrate) error {
				if err := m.Force(version); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Forced version to %d\n", version)
				return nil
			})
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the current schema version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrator(func(m *migrate.Migrate) error {
				version, dirty, err := m.Version()
				if errors.Is(err, migrate.ErrNilVersion) {
					fmt.Fprintln(cmd.OutOrStdout(), "No migrations applied")
					return nil
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	}
}

func createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Create new migration files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			upPath, downPath, err := createMigration(migrationsDir, args[0], nextSequence(migrationsDir))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created %s and %s\n", upPath, downPath)
			return nil
		},
	}
}

func withMigrator(fn func(m *migrate.Migrate) error) error {
	m, err := newMigrator()
	if err != nil {
		return err
	}
	defer closeMigrator(m)
	return fn(m)
}

func newMigrator() (*migrate.Migrate, error) {
	url := strings.TrimSpace(databaseURL)
	if url == "" {
		return nil, errors.New("DATABASE_URL is not set")
	}

	dir, err := filepath.Abs(migrationsDir)
	if err != nil {
		return nil, err
	}

	return migrate.New("file://"+dir, url)
}

func ignoreNoChange(err error) error {
	if errors.Is(err, migrate.ErrNoChange) {
		return nil
	}
	return err
}

var sequencePattern = regexp.MustCompile(`^(\d+)_`)

// nextSequence returns the number after the highest prefix in dir, falling
// back to a timestamp when dir holds no numbered files.
func nextSequence(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return time.Now().UTC().Format("20060102150405")
	}
	highest, width := 0, 6
	for _, entry := range entries {
		match := sequencePattern.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		if n, err := strconv.Atoi(match[1]); err == nil && n > highest {
			highest, width = n, len(match[1])
		}
	}
	if highest == 0 {
		return time.Now().UTC().Format("20060102150405")
	}
	return fmt.Sprintf("%0*d", width, highest+1)
}

func createMigration(dir, rawName, sequence string) (string, string, error) {
	name := sanitizeName(rawName)
	if name == "" {
		return "", "", errors.New("migration name must include at least one alphanumeric character")
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", err
	}

	base := fmt.Sprintf("%s_%s", sequence, name)
	upPath := filepath.Join(dir, base+".up.sql")
	downPath := filepath.Join(dir, base+".down.sql")

	if err := writeMigrationFile(upPath, "-- migrate up\n"); err != nil {
		return "", "", err
	}
	if err := writeMigrationFile(downPath, "-- migrate down\n"); err != nil {
		return "", "", err
	}
	return upPath, downPath, nil
}

func parseSteps(value string) (int, error) {
	steps, err := strconv.Atoi(value)
	if err != nil || steps <= 0 {
		return 0, fmt.Errorf("invalid steps: %s", value)
	}
	return steps, nil
}

var nameCleaner = regexp.MustCompile(`[^a-z0-9_]+`)

func sanitizeName(name string) string {
	name = strings.ToLower(name)
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")
	name = nameCleaner.ReplaceAllString(name, "")
	return strings.Trim(name, "_")
}

func writeMigrationFile(path string, contents string) error {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	defer file.Close()

	_, err = file.WriteString(contents)
	return err
}

func closeMigrator(m *migrate.Migrate) {
	sourceErr, dbErr := m.Close()
	if sourceErr != nil {
		fmt.Fprintf(os.Stderr, "source close error: %v\n", sourceErr)
	}
	if dbErr != nil {
		fmt.Fprintf(os.Stderr, "db close error: %v\n", dbErr)
	}
}
