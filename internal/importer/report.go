package importer

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/rpattn/tabimport/internal/domain"
)

const (
	summarySheet = "Summary"
	errorsSheet  = "Errors"
)

var errorColumns = []string{"Row", "Type", "Severity", "Field", "Message", "Suggested fix", "Row data"}

// WriteErrorReport writes a workbook with a batch summary sheet and one row
// per stored error.
func WriteErrorReport(w io.Writer, batch domain.ImportBatch, errs []domain.ImportError) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return fmt.Errorf("failed to name summary sheet: %w", err)
	}
	if _, err := f.NewSheet(errorsSheet); err != nil {
		return fmt.Errorf("failed to add errors sheet: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	summary := [][]any{
		{"Batch", batch.ID.String()},
		{"Name", batch.Name},
		{"Source file", batch.SourceFile},
		{"Status", string(batch.Status)},
		{"Total rows", batch.TotalRows},
		{"Processed rows", batch.ProcessedRows},
		{"Successful rows", batch.SuccessfulRows},
		{"Failed rows", batch.FailedRows},
	}
	if s := batch.ErrorSummary; s != nil {
		summary = append(summary, []any{"Total errors", s.Total})
		for _, t := range sortedKeysOf(s.ByType) {
			summary = append(summary, []any{"Errors: " + string(t), s.ByType[t]})
		}
		for _, sev := range sortedKeysOf(s.BySeverity) {
			summary = append(summary, []any{"Severity: " + string(sev), s.BySeverity[sev]})
		}
	}
	for i, row := range summary {
		if err := setRow(f, summarySheet, i+1, row); err != nil {
			return err
		}
	}
	if err := f.SetColStyle(summarySheet, "A", bold); err != nil {
		return fmt.Errorf("failed to style summary: %w", err)
	}
	if err := f.SetColWidth(summarySheet, "A", "B", 24); err != nil {
		return fmt.Errorf("failed to size summary: %w", err)
	}

	header := make([]any, len(errorColumns))
	for i, c := range errorColumns {
		header[i] = c
	}
	if err := setRow(f, errorsSheet, 1, header); err != nil {
		return err
	}
	if err := f.SetRowStyle(errorsSheet, 1, 1, bold); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	for i, e := range errs {
		row := []any{e.RowNumber, string(e.ErrorType), string(e.Severity), e.FieldName, e.Message, e.SuggestedFix, formatRowData(e.RowData)}
		if err := setRow(f, errorsSheet, i+2, row); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(errorsSheet, "E", "E", 60); err != nil {
		return fmt.Errorf("failed to size errors sheet: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write error report: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to address row %d: %w", row, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}

func formatRowData(data map[string]string) string {
	parts := make([]string, 0, len(data))
	for _, k := range sortedKeys(data) {
		parts = append(parts, k+"="+data[k])
	}
	return strings.Join(parts, "; ")
}

func sortedKeysOf[K ~string, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return keys
}
