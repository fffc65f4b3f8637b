package domain

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// BatchStatus is the lifecycle state of an ImportBatch.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
	BatchRolledBack BatchStatus = "rolled_back"
)

// ErrInvalidTransition is returned when a batch is moved to a state its
// current state does not allow.
var ErrInvalidTransition = errors.New("invalid batch status transition")

var batchTransitions = map[BatchStatus][]BatchStatus{
	BatchPending:    {BatchProcessing, BatchFailed},
	BatchProcessing: {BatchCompleted, BatchFailed},
	BatchCompleted:  {BatchRolledBack},
	BatchFailed:     {BatchRolledBack},
}

// ImportBatch is one tracked execution of an import.
type ImportBatch struct {
	ID             uuid.UUID      `json:"id"`
	Name           string         `json:"name"`
	Status         BatchStatus    `json:"status"`
	MappingID      *uuid.UUID     `json:"mapping_id,omitempty"`
	SourceFile     string         `json:"source_file"`
	TotalRows      int            `json:"total_rows"`
	ProcessedRows  int            `json:"processed_rows"`
	SuccessfulRows int            `json:"successful_rows"`
	FailedRows     int            `json:"failed_rows"`
	EntityCounts   map[string]int `json:"entity_counts,omitempty"`
	ErrorSummary   *ErrorSummary  `json:"error_summary,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CreatedBy      string         `json:"created_by,omitempty"`
	StartedAt      *time.Time     `json:"started_at,omitempty"`
	CompletedAt    *time.Time     `json:"completed_at,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// NewImportBatch creates a pending batch.
func NewImportBatch(name, sourceFile, createdBy string) *ImportBatch {
	now := time.Now()
	return &ImportBatch{
		ID:           uuid.New(),
		Name:         name,
		Status:       BatchPending,
		SourceFile:   sourceFile,
		CreatedBy:    createdBy,
		EntityCounts: map[string]int{},
		Metadata:     map[string]any{},
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CanTransition reports whether the batch may move to the given status.
func (b *ImportBatch) CanTransition(to BatchStatus) bool {
	for _, allowed := range batchTransitions[b.Status] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Transition moves the batch to a new status, stamping start and completion
// times on the way.
func (b *ImportBatch) Transition(to BatchStatus) error {
	if !b.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, b.Status, to)
	}
	now := time.Now()
	b.Status = to
	b.UpdatedAt = now
	switch to {
	case BatchProcessing:
		b.StartedAt = &now
	case BatchCompleted, BatchFailed:
		b.CompletedAt = &now
	}
	return nil
}

// CanRollback is true only for finished batches.
func (b *ImportBatch) CanRollback() bool {
	return b.Status == BatchCompleted || b.Status == BatchFailed
}

// ProgressPercent is processed/total rounded to one decimal.
func (b *ImportBatch) ProgressPercent() float64 {
	if b.TotalRows == 0 {
		return 0
	}
	return math.Round(float64(b.ProcessedRows)/float64(b.TotalRows)*1000) / 10
}

// RecordChunk adds a chunk's outcome to the running counters. Counters only grow.
func (b *ImportBatch) RecordChunk(processed, successful, failed int) {
	if processed > 0 {
		b.ProcessedRows += processed
	}
	if successful > 0 {
		b.SuccessfulRows += successful
	}
	if failed > 0 {
		b.FailedRows += failed
	}
	b.UpdatedAt = time.Now()
}

// AddEntityCounts merges creation tallies into the batch.
func (b *ImportBatch) AddEntityCounts(counts map[string]int) {
	if b.EntityCounts == nil {
		b.EntityCounts = map[string]int{}
	}
	for k, v := range counts {
		b.EntityCounts[k] += v
	}
}
