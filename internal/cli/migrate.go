package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rpattn/tabimport/internal/db"
)

var errNoDatabase = errors.New("migrations need a database; drop --memory")

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the database schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply pending migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		if conn == nil {
			return errNoDatabase
		}
		if err := db.RunMigrations(conn.Pool); err != nil {
			return err
		}
		return printVersion()
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Roll back migrations (default one step)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		if conn == nil {
			return errNoDatabase
		}
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil || n < 1 {
				return fmt.Errorf("invalid step count %q", args[0])
			}
			steps = n
		}
		if err := db.RollbackMigrations(conn.Pool, steps); err != nil {
			return err
		}
		return printVersion()
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the current schema version",
	RunE: func(_ *cobra.Command, _ []string) error {
		if conn == nil {
			return errNoDatabase
		}
		return printVersion()
	},
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}

func printVersion() error {
	st, err := db.CurrentMigration(conn.Pool)
	if err != nil {
		return err
	}
	return printJSON(st)
}
