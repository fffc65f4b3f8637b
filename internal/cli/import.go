package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/importer"
	"github.com/rpattn/tabimport/internal/mapping"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a CSV, TSV or Excel file",
	Long: `Import a file. Without --mapping or --mapping-name a mapping is suggested
from the headers and the first rows.

Examples:
  tabimport import sales.csv
  tabimport import sales.csv --mapping sales.yaml --batch-size 200
  tabimport import sales.xlsx --mapping-name "POS export" --dry-run
  tabimport import sales.csv --resume-from 4000 --errors-xlsx errors.xlsx`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

var previewCmd = &cobra.Command{
	Use:   "preview <file>",
	Short: "Show how the first rows of a file would be imported",
	Args:  cobra.ExactArgs(1),
	RunE:  runPreview,
}

var (
	mappingFile    string
	mappingName    string
	batchName      string
	dryRun         bool
	batchSize      int
	resumeFrom     int
	skipMasterData bool
	noAccounting   bool
	maxErrorPct    float64
	errorsXLSX     string
	previewRows    int
)

func init() {
	for _, c := range []*cobra.Command{importCmd, previewCmd} {
		c.Flags().StringVarP(&mappingFile, "mapping", "m", "", "mapping template (YAML)")
		c.Flags().StringVar(&mappingName, "mapping-name", "", "saved mapping to use")
		c.Flags().StringVarP(&batchName, "name", "n", "", "batch name (default file name)")
	}
	importCmd.Flags().BoolVar(&dryRun, "dry-run", false, "validate only, write nothing")
	importCmd.Flags().IntVar(&batchSize, "batch-size", 0, "rows per transaction (default from config)")
	importCmd.Flags().IntVar(&resumeFrom, "resume-from", 0, "skip this many data rows")
	importCmd.Flags().BoolVar(&skipMasterData, "skip-master-data", false, "do not extract master data")
	importCmd.Flags().BoolVar(&noAccounting, "no-accounting", false, "do not post journal entries")
	importCmd.Flags().Float64Var(&maxErrorPct, "max-error-percentage", 0, "abort above this share of invalid rows (default from config)")
	importCmd.Flags().StringVar(&errorsXLSX, "errors-xlsx", "", "write stored errors to this workbook")
	previewCmd.Flags().IntVar(&previewRows, "rows", importer.DefaultPreviewRows, "rows to preview")
}

func buildRequest(ctx context.Context, path string) (importer.Request, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return importer.Request{}, nil, fmt.Errorf("open %s: %w", path, err)
	}
	req := importer.Request{Name: batchName, FileName: filepath.Base(path), Data: f}
	closeFn := func() { _ = f.Close() }

	switch {
	case mappingFile != "":
		mf, err := os.Open(mappingFile)
		if err != nil {
			closeFn()
			return importer.Request{}, nil, fmt.Errorf("open mapping: %w", err)
		}
		defer mf.Close()
		if req.Mapping, err = mapping.LoadTemplate(mf); err != nil {
			closeFn()
			return importer.Request{}, nil, err
		}
	case mappingName != "":
		if req.Mapping, err = service.Mapping(ctx, mappingName); err != nil {
			closeFn()
			return importer.Request{}, nil, err
		}
	}
	return req, closeFn, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	req, closeFn, err := buildRequest(ctx, args[0])
	if err != nil {
		return err
	}
	defer closeFn()

	opts := service.Options()
	opts.DryRun = dryRun
	opts.BatchSize = batchSize
	opts.ResumeFromRow = resumeFrom
	opts.SkipMasterData = skipMasterData
	if cmd.Flags().Changed("max-error-percentage") {
		opts.MaxErrorPercentage = maxErrorPct
	}
	if noAccounting {
		opts.GenerateAccounting = false
	}
	if u := os.Getenv("USER"); u != "" {
		opts.CreatedBy = u
	}
	opts.Progress = func(p importer.Progress) {
		logger.Info(p.Message, "phase", p.Phase, "processed", p.Processed, "total", p.Total, "percent", p.Percent)
	}

	res := service.ImportFromFile(ctx, req, opts)
	if err := printJSON(res); err != nil {
		return err
	}
	if errorsXLSX != "" && res.Data.BatchID != nil && !dryRun {
		if err := writeErrorWorkbook(ctx, *res.Data.BatchID, errorsXLSX); err != nil {
			return err
		}
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	return nil
}

func runPreview(cmd *cobra.Command, args []string) error {
	req, closeFn, err := buildRequest(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	defer closeFn()

	return printResult(service.Preview(cmd.Context(), req, previewRows))
}

func printResult(res domain.Result) error {
	if err := printJSON(res); err != nil {
		return err
	}
	if !res.Success {
		return errors.New(res.Message)
	}
	return nil
}
