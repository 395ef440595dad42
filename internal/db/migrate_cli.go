package db

import (
	"errors"
	"fmt"
	"io"
)

// ErrUnknownMigrateAction is returned for a migrate action that is not
// supported.
var ErrUnknownMigrateAction = errors.New("unknown migrate action")

// RunMigrateCommand handles the 'migrate' subcommand: up, down, status or
// help. Output goes to w.
func RunMigrateCommand(args []string, dbPath string, w io.Writer) error {
	if len(args) < 1 {
		PrintMigrateHelp(w)
		return fmt.Errorf("%w: none given", ErrUnknownMigrateAction)
	}
	action := args[0]
	if action == "help" {
		PrintMigrateHelp(w)
		return nil
	}
	if dbPath == "" {
		return errors.New("migrate needs a ledger: set -db or db_path")
	}

	database, err := OpenDB(dbPath)
	if err != nil {
		return err
	}
	defer database.Close()

	switch action {
	case "up":
		if err := database.MigrateUp(); err != nil {
			return err
		}
		fmt.Fprintln(w, "All migrations applied")
	case "down":
		if err := database.MigrateDown(); err != nil {
			return err
		}
		fmt.Fprintln(w, "Rolled back one migration")
	case "status":
		// handled below
	default:
		PrintMigrateHelp(w)
		return fmt.Errorf("%w: %s", ErrUnknownMigrateAction, action)
	}

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		return fmt.Errorf("failed to get migration status: %w", err)
	}
	fmt.Fprintf(w, "Current version: %d\n", version)
	fmt.Fprintf(w, "Dirty: %v\n", dirty)
	if dirty {
		fmt.Fprintln(w, "A migration failed part way; inspect the database before retrying.")
	}
	return nil
}

// PrintMigrateHelp writes the migrate usage text.
func PrintMigrateHelp(w io.Writer) {
	fmt.Fprint(w, `Usage: signature [flags] migrate <action>

Actions:
  up       Apply all pending migrations
  down     Roll back the most recent migration
  status   Show the current schema version
  help     Show this help
`)
}
