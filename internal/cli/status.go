package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/rpattn/tabimport/internal/importer"
)

var statusCmd = &cobra.Command{
	Use:   "status <batch-id>",
	Short: "Show the state of an import batch",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

var batchesCmd = &cobra.Command{
	Use:   "batches",
	Short: "List recent import batches",
	RunE:  runBatches,
}

var rollbackCmd = &cobra.Command{
	Use:   "rollback <batch-id>",
	Short: "Delete what a batch created",
	Long: `Delete every entity a completed or failed batch created, dependents first.
Entities that something outside the batch still references are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: runRollback,
}

var (
	statusErrorsXLSX string
	listLimit        int
	listOffset       int
)

const reportErrorLimit = 10000

func init() {
	statusCmd.Flags().StringVar(&statusErrorsXLSX, "errors-xlsx", "", "write stored errors to this workbook")
	batchesCmd.Flags().IntVar(&listLimit, "limit", 20, "batches to list")
	batchesCmd.Flags().IntVar(&listOffset, "offset", 0, "batches to skip")
}

func parseBatchID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid batch id %q: %w", raw, err)
	}
	return id, nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	id, err := parseBatchID(args[0])
	if err != nil {
		return err
	}
	if err := printResult(service.Status(cmd.Context(), id)); err != nil {
		return err
	}
	if statusErrorsXLSX != "" {
		return writeErrorWorkbook(cmd.Context(), id, statusErrorsXLSX)
	}
	return nil
}

func runBatches(cmd *cobra.Command, _ []string) error {
	batches, err := service.Batches(cmd.Context(), listLimit, listOffset)
	if err != nil {
		return err
	}
	return printJSON(batches)
}

func runRollback(cmd *cobra.Command, args []string) error {
	id, err := parseBatchID(args[0])
	if err != nil {
		return err
	}
	return printResult(service.Rollback(cmd.Context(), id))
}

func writeErrorWorkbook(ctx context.Context, id uuid.UUID, path string) error {
	batch, err := service.Batch(ctx, id)
	if err != nil {
		return err
	}
	errs, err := service.Errors(ctx, id, reportErrorLimit, 0)
	if err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := importer.WriteErrorReport(f, batch, errs); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	logger.Info("error report written", "file", path, "errors", len(errs))
	return nil
}
