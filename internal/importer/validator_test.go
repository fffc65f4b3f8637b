package importer

import (
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/extract"
)

func orderMapping() *domain.ImportMapping {
	return domain.NewImportMapping("orders", "order_item", []domain.FieldMapping{
		{Column: "Order", TargetField: "order_number"},
		{Column: "Product", TargetField: "sellable"},
		{Column: "Qty", TargetField: "quantity"},
		{Column: "Price", TargetField: "unit_price"},
	})
}

func row(line int, values map[string]string) ParsedRow {
	return ParsedRow{Line: line, Values: extract.Row(values)}
}

func TestValidateRowRequiredAndPositive(t *testing.T) {
	v := NewValidator(orderMapping())

	issues := v.ValidateRow(row(2, map[string]string{"Order": "1", "Product": "", "Qty": "0", "Price": "-1"}))
	fields := map[string]string{}
	for _, i := range issues {
		fields[i.FieldName] = i.Message
		assert.Equal(t, domain.SeverityError, i.Severity)
		assert.Equal(t, 2, i.RowNumber)
	}
	assert.Contains(t, fields["sellable"], "Required")
	assert.Contains(t, fields["quantity"], "greater than zero")
	assert.Contains(t, fields["unit_price"], "negative")

	assert.Empty(t, v.ValidateRow(row(3, map[string]string{"Order": "1", "Product": "Latte", "Qty": "2", "Price": "4.50"})))
}

func TestValidateRowConversionErrorSkipsRequired(t *testing.T) {
	issues := NewValidator(orderMapping()).ValidateRow(row(2, map[string]string{"Product": "Latte", "Qty": "lots"}))
	require.Len(t, issues, 1)
	assert.Equal(t, "quantity", issues[0].FieldName)
	assert.Contains(t, issues[0].Message, "Invalid value")
	assert.Contains(t, issues[0].SuggestedFix, `"Qty"`)
}

func TestValidateRowRules(t *testing.T) {
	m := orderMapping()
	m.ValidationRules = map[string][]domain.ValidationRule{
		"Order":      {{Rule: "pattern", Value: `^SO-\d+$`}},
		"quantity":   {{Rule: "max", Value: "100", Severity: domain.SeverityWarning}},
		"sellable":   {{Rule: "not_in", Values: []string{"test"}, Message: "Test products are not imported"}},
		"unit_price": {{Rule: "min", Value: "1"}},
	}
	v := NewValidator(m)

	issues := v.ValidateRow(row(5, map[string]string{"Order": "42", "Product": "TEST", "Qty": "500", "Price": "0.5"}))
	bySeverity := map[domain.Severity][]string{}
	for _, i := range issues {
		bySeverity[i.Severity] = append(bySeverity[i.Severity], i.FieldName+": "+i.Message)
	}
	require.Len(t, bySeverity[domain.SeverityWarning], 1)
	assert.Contains(t, bySeverity[domain.SeverityWarning][0], "above the maximum")
	assert.Len(t, bySeverity[domain.SeverityError], 3)
	assert.Contains(t, strings.Join(bySeverity[domain.SeverityError], "\n"), "Test products are not imported")

	assert.Empty(t, v.ValidateRow(row(6, map[string]string{"Order": "SO-42", "Product": "Latte", "Qty": "5", "Price": "3"})))
}

func TestValidateRuleOnColumnNamedLikeField(t *testing.T) {
	m := domain.NewImportMapping("items", "item", []domain.FieldMapping{{Column: "name", TargetField: "name"}})
	m.ValidationRules = map[string][]domain.ValidationRule{"name": {{Rule: "max_length", Value: "3"}}}
	issues := NewValidator(m).ValidateRow(row(2, map[string]string{"name": "Espresso"}))
	require.Len(t, issues, 1)
	assert.Contains(t, issues[0].Message, "at most 3")
}

func TestValidateComputesReport(t *testing.T) {
	v := NewValidator(orderMapping())
	rows := []ParsedRow{
		row(2, map[string]string{"Product": "Latte", "Qty": "1"}),
		row(3, map[string]string{"Product": "Mocha", "Qty": "0"}),
		row(4, map[string]string{"Product": "Tea", "Qty": "1"}),
		{Line: 5, Values: extract.Row{"Product": "Chai", "Qty": "1"}, ColumnMismatch: true},
	}
	batchID := uuid.New()
	res := v.Validate(rows, batchID)
	assert.Equal(t, 4, res.Report.TotalRows)
	assert.Equal(t, 1, res.Report.RowsWithErrors)
	assert.Equal(t, 1, res.Report.Warnings)
	assert.Equal(t, 25.0, res.ErrorRate())
	require.Len(t, res.Issues, 2)
	for _, i := range res.Issues {
		assert.Equal(t, batchID, i.BatchID)
	}
}

func TestSanitizeRowBoundsSnapshot(t *testing.T) {
	big := map[string]string{"long": strings.Repeat("é", 500)}
	for i := 0; i < 80; i++ {
		big[strings.Repeat("k", 1)+string(rune('A'+i%26))+strings.Repeat("x", i/26)] = "v"
	}
	got := SanitizeRow(big)
	assert.Len(t, got, maxSnapshotColumns)
	if v, ok := got["long"]; ok {
		assert.Equal(t, maxSnapshotValue, len([]rune(v)))
	}
	assert.Nil(t, SanitizeRow(nil))
}
