package importer

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/rpattn/tabimport/internal/domain"
)

const (
	maxSnapshotValue   = 200
	maxSnapshotColumns = 50
	maxReportedIssues  = 100
)

// requiredByType lists the fields a row must carry when the mapping maps
// them.
var requiredByType = map[string][]string{
	"order":          {"sellable", "quantity"},
	"order_item":     {"sellable", "quantity"},
	"order_line":     {"sellable", "quantity"},
	"purchase":       {"vendor", "item", "quantity"},
	"purchase_item":  {"item", "quantity"},
	"purchase_line":  {"item", "quantity"},
	"item":           {"name"},
	"sellable":       {"name", "price"},
	"customer":       {"name"},
	"vendor":         {"name"},
	"stock_location": {"name"},
}

// Validation is the outcome of validating a whole table.
type Validation struct {
	Report domain.ValidationReport
	// Issues holds every issue found, in row order.
	Issues []domain.ImportError
}

// ErrorRate is the share of rows with at least one error-severity issue.
func (v *Validation) ErrorRate() float64 { return v.Report.ErrorPercentage }

// Validator checks rows against a mapping before anything is written.
type Validator struct {
	mapping     *domain.ImportMapping
	transformer *Transformer
	patterns    map[string]*regexp.Regexp
}

// NewValidator returns a validator for the mapping.
func NewValidator(m *domain.ImportMapping) *Validator {
	return &Validator{mapping: m, transformer: NewTransformer(m), patterns: map[string]*regexp.Regexp{}}
}

// Validate checks every row. batchID is stamped on the issues; it may be
// uuid.Nil for previews.
func (v *Validator) Validate(rows []ParsedRow, batchID uuid.UUID) *Validation {
	out := &Validation{Report: domain.ValidationReport{TotalRows: len(rows)}}
	for _, row := range rows {
		issues := v.ValidateRow(row)
		hasError := false
		for i := range issues {
			issues[i].BatchID = batchID
			if issues[i].Severity == domain.SeverityWarning {
				out.Report.Warnings++
			} else {
				hasError = true
			}
		}
		if hasError {
			out.Report.RowsWithErrors++
		}
		out.Issues = append(out.Issues, issues...)
	}
	if len(rows) > 0 {
		pct := float64(out.Report.RowsWithErrors) / float64(len(rows)) * 100
		out.Report.ErrorPercentage = math.Round(pct*100) / 100
	}
	out.Report.Issues = out.Issues
	if len(out.Report.Issues) > maxReportedIssues {
		out.Report.Issues = out.Issues[:maxReportedIssues]
	}
	return out
}

// ValidateRow returns the issues of one row.
func (v *Validator) ValidateRow(row ParsedRow) []domain.ImportError {
	var issues []domain.ImportError
	add := func(sev domain.Severity, field, msg, fix string) {
		issues = append(issues, domain.ImportError{
			RowNumber:    row.Line,
			ErrorType:    domain.ErrorValidation,
			Severity:     sev,
			FieldName:    field,
			Message:      msg,
			RowData:      SanitizeRow(row.Values),
			SuggestedFix: fix,
		})
	}
	if v.mapping == nil {
		return nil
	}

	if row.ColumnMismatch {
		add(domain.SeverityWarning, "", "Row has a different number of columns than the header", "Check for unquoted delimiters in this row")
	}

	fields, convErrs := v.transformer.Apply(row.Values)
	failed := map[string]bool{}
	for _, e := range convErrs {
		failed[e.Field] = true
		add(domain.SeverityError, e.Field, "Invalid value: "+e.Message, fmt.Sprintf("Correct the value in column %q", e.Column))
	}

	for _, field := range requiredByType[v.mapping.EntityType] {
		if !v.mapping.IsMapped(field) || failed[field] {
			continue
		}
		if !fields.Has(field) {
			add(domain.SeverityError, field, fmt.Sprintf("Required field %q is empty", field), "Provide a value or a default for "+field)
		}
	}

	for _, fm := range v.mapping.FieldMappings {
		field := FieldName(fm.TargetField)
		var rules []domain.ValidationRule
		seen := map[string]bool{}
		for _, key := range []string{fm.Column, fm.TargetField, field} {
			if !seen[key] {
				seen[key] = true
				rules = append(rules, v.mapping.ValidationRules[key]...)
			}
		}
		raw := strings.TrimSpace(row.Values[fm.Column])
		if raw == "" || len(rules) == 0 {
			continue
		}
		for _, rule := range rules {
			if msg, ok := v.checkRule(rule, raw); !ok {
				sev := rule.Severity
				if sev == "" {
					sev = domain.SeverityError
				}
				if rule.Message != "" {
					msg = rule.Message
				}
				add(sev, field, msg, "")
			}
		}
	}

	for _, c := range entityChecks(v.mapping.EntityType, fields, failed) {
		add(domain.SeverityError, c.field, c.message, c.fix)
	}
	return issues
}

func (v *Validator) checkRule(rule domain.ValidationRule, raw string) (string, bool) {
	switch rule.Rule {
	case "min", "max":
		limit, err := strconv.ParseFloat(rule.Value, 64)
		if err != nil {
			return fmt.Sprintf("Invalid %s rule value %q", rule.Rule, rule.Value), false
		}
		n, ok := parseAmount(raw)
		if !ok {
			return "", true
		}
		if rule.Rule == "min" && n < limit {
			return fmt.Sprintf("Value %v is below the minimum %v", n, limit), false
		}
		if rule.Rule == "max" && n > limit {
			return fmt.Sprintf("Value %v is above the maximum %v", n, limit), false
		}
	case "min_length", "max_length":
		limit, err := strconv.Atoi(rule.Value)
		if err != nil {
			return fmt.Sprintf("Invalid %s rule value %q", rule.Rule, rule.Value), false
		}
		n := utf8.RuneCountInString(raw)
		if rule.Rule == "min_length" && n < limit {
			return fmt.Sprintf("Value must be at least %d characters", limit), false
		}
		if rule.Rule == "max_length" && n > limit {
			return fmt.Sprintf("Value must be at most %d characters", limit), false
		}
	case "pattern":
		re, ok := v.patterns[rule.Value]
		if !ok {
			var err error
			re, err = regexp.Compile(rule.Value)
			if err != nil {
				return fmt.Sprintf("Invalid pattern %q", rule.Value), false
			}
			v.patterns[rule.Value] = re
		}
		if !re.MatchString(raw) {
			return fmt.Sprintf("Value %q does not match the expected format", raw), false
		}
	case "in", "not_in":
		found := false
		for _, allowed := range ruleValues(rule) {
			if strings.EqualFold(allowed, raw) {
				found = true
				break
			}
		}
		if rule.Rule == "in" && !found {
			return fmt.Sprintf("Value %q is not one of the allowed values", raw), false
		}
		if rule.Rule == "not_in" && found {
			return fmt.Sprintf("Value %q is not allowed", raw), false
		}
	}
	return "", true
}

func ruleValues(rule domain.ValidationRule) []string {
	if len(rule.Values) > 0 {
		return rule.Values
	}
	var out []string
	for _, v := range strings.Split(rule.Value, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

type entityIssue struct {
	field, message, fix string
}

func entityChecks(entityType string, f Fields, failed map[string]bool) []entityIssue {
	var out []entityIssue
	positive := func(field, label string) {
		if failed[field] || !f.Has(field) {
			return
		}
		if n, ok := f.Float(field); ok && n <= 0 {
			out = append(out, entityIssue{field, label + " must be greater than zero", "Remove the row or correct " + field})
		}
	}
	switch entityType {
	case "order", "order_item", "order_line":
		positive("quantity", "Quantity")
		if f.Has("unit_price") && !failed["unit_price"] {
			if n, ok := f.Float("unit_price"); ok && n < 0 {
				out = append(out, entityIssue{"unit_price", "Unit price cannot be negative", "Use a separate refund import for returns"})
			}
		}
	case "purchase", "purchase_item", "purchase_line":
		positive("quantity", "Quantity")
	case "item":
		if f.Has("name") && utf8.RuneCountInString(f.String("name")) < 2 {
			out = append(out, entityIssue{"name", "Item name must be at least 2 characters", ""})
		}
	case "sellable":
		positive("price", "Price")
	}
	return out
}

// SanitizeRow bounds a row snapshot before it is stored with an error.
func SanitizeRow(row map[string]string) map[string]string {
	if row == nil {
		return nil
	}
	out := make(map[string]string, min(len(row), maxSnapshotColumns))
	for _, k := range sortedKeys(row) {
		if len(out) >= maxSnapshotColumns {
			break
		}
		v := row[k]
		if utf8.RuneCountInString(v) > maxSnapshotValue {
			v = string([]rune(v)[:maxSnapshotValue])
		}
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
