// Package cli provides the tabimport command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/rpattn/tabimport/internal/config"
	"github.com/rpattn/tabimport/internal/db"
	"github.com/rpattn/tabimport/internal/extract"
	"github.com/rpattn/tabimport/internal/importer"
	"github.com/rpattn/tabimport/internal/repository"
	"github.com/rpattn/tabimport/internal/repository/memstore"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath  string
	verbose     bool
	inMemory    bool
	autoMigrate bool

	cfg      config.Config
	logger   *slog.Logger
	closeLog func() error
	conn     *db.Connection
	store    repository.Store
	service  *importer.Service
)

// commands that never touch the store
var offline = map[string]bool{"help": true, "version": true, "detect": true, "completion": true}

var rootCmd = &cobra.Command{
	Use:   "tabimport",
	Short: "Heuristic importer for spreadsheets and CSV exports",
	Long: `tabimport turns arbitrary CSV, TSV and Excel files into catalog, customer,
vendor, order and purchase records.

It suggests a column mapping from headers and sample values, extracts master
data, imports rows in chunked transactions and can roll a batch back.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if verbose {
			cfg.Log.Level = "debug"
		}
		logger, closeLog = config.SetupLogger(cfg.Log)
		slog.SetDefault(logger)

		if offline[cmd.Name()] {
			return nil
		}
		return openStore(cmd.Context())
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if conn != nil {
			conn.Close()
		}
		if closeLog != nil {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close log file: %v\n", err)
			}
		}
	},
}

func openStore(ctx context.Context) error {
	if inMemory {
		store = memstore.New()
		logger.Debug("using in-memory store")
	} else {
		var err error
		conn, err = db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		if autoMigrate {
			if err := db.RunMigrations(conn.Pool); err != nil {
				return err
			}
		}
		store, err = repository.NewStore(conn.Pool)
		if err != nil {
			return err
		}
	}
	runner := extract.NewRunner(logger, extract.DefaultExtractors()...)
	service = importer.NewService(store, nil, runner, logger, cfg.Import)
	return nil
}

// Execute runs the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file or directory (default ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&inMemory, "memory", false, "use an in-memory store instead of PostgreSQL")
	rootCmd.PersistentFlags().BoolVar(&autoMigrate, "migrate", false, "apply pending migrations before running")

	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(previewCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(detectCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(batchesCmd)
	rootCmd.AddCommand(rollbackCmd)
	rootCmd.AddCommand(mappingsCmd)
	rootCmd.AddCommand(identifyVendorCmd)
	rootCmd.AddCommand(fingerprintCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(serveCmd)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
