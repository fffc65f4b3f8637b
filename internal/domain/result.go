package domain

import "github.com/google/uuid"

// Result is the uniform outcome of every public import operation. Callers
// branch on Success, never on Go errors.
type Result struct {
	Success bool       `json:"success"`
	Message string     `json:"message"`
	Data    ResultData `json:"data"`
	Errors  []string   `json:"errors,omitempty"`
}

// ResultData carries the structured payload of a Result.
type ResultData struct {
	BatchID         *uuid.UUID         `json:"batch_id,omitempty"`
	Status          BatchStatus        `json:"status,omitempty"`
	TotalRows       int                `json:"total_rows"`
	ProcessedRows   int                `json:"processed_rows"`
	SuccessfulRows  int                `json:"successful_rows"`
	FailedRows      int                `json:"failed_rows"`
	EntityCounts    map[string]int     `json:"entity_counts,omitempty"`
	ErrorSummary    *ErrorSummary      `json:"error_summary,omitempty"`
	Validation      *ValidationReport  `json:"validation,omitempty"`
	ProgressPercent float64            `json:"progress_percent,omitempty"`
	CanRollback     bool               `json:"can_rollback,omitempty"`
	Mapping         *ImportMapping     `json:"mapping,omitempty"`
	Preview         []map[string]any   `json:"preview,omitempty"`
	Deleted         map[EntityKind]int `json:"deleted,omitempty"`
	Failures        []ExtractorFailure `json:"failures,omitempty"`
	Extra           map[string]any     `json:"extra,omitempty"`
}

// ValidationReport summarises the validation pass.
type ValidationReport struct {
	TotalRows       int           `json:"total_rows"`
	RowsWithErrors  int           `json:"rows_with_errors"`
	ErrorPercentage float64       `json:"error_percentage"`
	Warnings        int           `json:"warnings"`
	Issues          []ImportError `json:"issues,omitempty"`
}

// ExtractorFailure names an extractor whose entity creation failed.
type ExtractorFailure struct {
	Extractor string `json:"extractor"`
	Message   string `json:"message"`
}

// Succeeded builds a success Result.
func Succeeded(message string, data ResultData) Result {
	return Result{Success: true, Message: message, Data: data}
}

// Failed builds a failure Result.
func Failed(message string, data ResultData, errs ...string) Result {
	if len(errs) == 0 {
		errs = []string{message}
	}
	return Result{Success: false, Message: message, Data: data, Errors: errs}
}

// BatchData snapshots a batch into ResultData.
func BatchData(b *ImportBatch) ResultData {
	id := b.ID
	return ResultData{
		BatchID:         &id,
		Status:          b.Status,
		TotalRows:       b.TotalRows,
		ProcessedRows:   b.ProcessedRows,
		SuccessfulRows:  b.SuccessfulRows,
		FailedRows:      b.FailedRows,
		EntityCounts:    b.EntityCounts,
		ErrorSummary:    b.ErrorSummary,
		ProgressPercent: b.ProgressPercent(),
		CanRollback:     b.CanRollback(),
	}
}
