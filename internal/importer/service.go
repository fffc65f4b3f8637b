// Package importer runs tabular imports end to end: parse, map, validate,
// create master data, import rows in chunked transactions, post accounting
// entries and roll batches back.
package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rpattn/tabimport/internal/config"
	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/extract"
	"github.com/rpattn/tabimport/internal/mapping"
	"github.com/rpattn/tabimport/internal/repository"
)

// Phases reported through Options.Progress.
const (
	PhaseParsing      = "parsing"
	PhaseValidating   = "validating"
	PhaseMasterData   = "master_data"
	PhaseTransactions = "transactions"
	PhaseAccounting   = "accounting"
	PhaseComplete     = "complete"
)

const (
	suggestSampleRows = 100
	maxWarningsKept   = 20
)

// Progress is a snapshot handed to the progress callback.
type Progress struct {
	Phase      string    `json:"phase"`
	BatchID    uuid.UUID `json:"batch_id"`
	Total      int       `json:"total_rows"`
	Processed  int       `json:"processed_rows"`
	Successful int       `json:"successful_rows"`
	Failed     int       `json:"failed_rows"`
	Percent    float64   `json:"percent"`
	Message    string    `json:"message,omitempty"`
}

// Options tune one import run.
type Options struct {
	BatchSize          int
	SkipMasterData     bool
	GenerateAccounting bool
	DryRun             bool
	CreatedBy          string
	Progress           func(Progress)
	// ResumeFromRow skips that many data rows, counting them as already
	// processed by an earlier run.
	ResumeFromRow      int
	MaxErrorPercentage float64
}

// DefaultOptions returns the options used when nothing is configured.
func DefaultOptions() Options {
	return Options{
		BatchSize:          500,
		GenerateAccounting: true,
		MaxErrorPercentage: 10,
	}
}

// Request is one file to import.
type Request struct {
	Name     string
	FileName string
	Data     io.Reader
	// Mapping is used as given when set; otherwise one is suggested.
	Mapping *domain.ImportMapping
}

// Service orchestrates imports.
type Service struct {
	store  repository.Store
	synth  *mapping.Synthesizer
	runner *extract.Runner
	logger *slog.Logger
	cfg    config.ImportConfig
}

// NewService wires the orchestrator. A nil runner means no master-data
// extraction; a nil logger means slog.Default().
func NewService(store repository.Store, synth *mapping.Synthesizer, runner *extract.Runner, logger *slog.Logger, cfg config.ImportConfig) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if synth == nil {
		synth = mapping.NewSynthesizer(nil, store.Learnings()).WithLogger(logger)
	}
	defaults := config.DefaultImportConfig()
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = defaults.BatchSize
	}
	if cfg.MaxErrorPercentage < 0 {
		cfg.MaxErrorPercentage = defaults.MaxErrorPercentage
	}
	if cfg.MaxStoredErrors <= 0 {
		cfg.MaxStoredErrors = defaults.MaxStoredErrors
	}
	return &Service{store: store, synth: synth, runner: runner, logger: logger, cfg: cfg}
}

// Options returns run options seeded from the service configuration.
func (s *Service) Options() Options {
	return Options{
		BatchSize:          s.cfg.BatchSize,
		GenerateAccounting: s.cfg.GenerateAccounting,
		MaxErrorPercentage: s.cfg.MaxErrorPercentage,
	}
}

func (s *Service) withDefaults(opts Options) Options {
	if opts.BatchSize <= 0 {
		opts.BatchSize = s.cfg.BatchSize
	}
	if opts.ResumeFromRow < 0 {
		opts.ResumeFromRow = 0
	}
	return opts
}

// ImportFromFile runs a whole import. Every outcome, including a panic,
// comes back as a Result; a batch that got as far as being stored always
// ends completed or failed. opts.MaxErrorPercentage is used as given, so
// callers start from Options(); 0 tolerates no invalid rows.
func (s *Service) ImportFromFile(ctx context.Context, req Request, opts Options) (res domain.Result) {
	opts = s.withDefaults(opts)
	if opts.MaxErrorPercentage < 0 || opts.MaxErrorPercentage > 100 {
		return domain.Failed("Invalid options", domain.ResultData{},
			fmt.Sprintf("max error percentage must be within 0..100, got %v", opts.MaxErrorPercentage))
	}
	name := req.Name
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(req.FileName), filepath.Ext(req.FileName))
	}
	run := &importRun{
		svc:    s,
		opts:   opts,
		batch:  domain.NewImportBatch(name, req.FileName, opts.CreatedBy),
		logger: s.logger,
	}
	run.logger = s.logger.With("batch_id", run.batch.ID)
	defer func() {
		if p := recover(); p != nil {
			run.logger.Error("import panicked", "panic", p, "stack", string(debug.Stack()))
			res = run.fail(ctx, fmt.Sprintf("Import failed: %v", p))
		}
	}()
	return run.execute(ctx, req)
}

// importRun carries the state of one ImportFromFile call.
type importRun struct {
	svc       *Service
	opts      Options
	batch     *domain.ImportBatch
	logger    *slog.Logger
	persisted bool
	errs      *errorLog
	report    *domain.ValidationReport
	mapping   *domain.ImportMapping
	failures  []domain.ExtractorFailure
}

func (r *importRun) execute(ctx context.Context, req Request) domain.Result {
	s := r.svc
	start := time.Now()
	r.errs = newErrorLog(s.store.Errors(), r.batch.ID, s.cfg.MaxStoredErrors, r.logger)

	if !r.opts.DryRun {
		if err := s.store.Batches().Create(ctx, *r.batch); err != nil {
			r.logger.Error("failed to create batch", "error", err)
			return domain.Failed("Failed to create import batch", domain.ResultData{}, err.Error())
		}
		r.persisted = true
	}

	r.progress(PhaseParsing, "Parsing "+req.FileName)
	if req.Data == nil {
		return r.fail(ctx, "No file data supplied")
	}
	table, err := ParseTable(req.FileName, req.Data)
	if err != nil {
		return r.fail(ctx, "Failed to parse file: "+err.Error())
	}
	if len(table.Rows) == 0 {
		return r.fail(ctx, "File contains no data rows")
	}
	r.batch.TotalRows = len(table.Rows)
	r.batch.Metadata["headers"] = len(table.Headers)
	if table.Delimiter != "" {
		r.batch.Metadata["delimiter"] = table.Delimiter
	}
	if n := table.Mismatched(); n > 0 {
		r.batch.Metadata["column_mismatches"] = n
	}

	m := req.Mapping
	if m == nil {
		sug, err := s.synth.Suggest(ctx, table.Headers, sampleRows(table))
		if err != nil {
			return r.fail(ctx, "Failed to suggest a mapping: "+err.Error())
		}
		m = sug.ToMapping(r.batch.Name)
		r.batch.Metadata["mapping_confidence"] = sug.Confidence
	} else {
		id := m.ID
		r.batch.MappingID = &id
	}
	r.mapping = m
	r.batch.Metadata["entity_type"] = m.EntityType
	if !Supported(m.EntityType) {
		return r.fail(ctx, fmt.Sprintf("Unsupported entity type %q", m.EntityType))
	}

	r.progress(PhaseValidating, fmt.Sprintf("Validating %d rows", len(table.Rows)))
	validation := NewValidator(m).Validate(table.Rows, r.batch.ID)
	r.report = &validation.Report
	if validation.ErrorRate() > r.opts.MaxErrorPercentage {
		if !r.opts.DryRun {
			for _, issue := range validation.Issues {
				r.errs.record(ctx, issue)
			}
		}
		return r.fail(ctx, fmt.Sprintf("Validation failed: %.2f%% of rows have errors, above the %.2f%% limit",
			validation.ErrorRate(), r.opts.MaxErrorPercentage))
	}

	if r.opts.DryRun {
		data := r.data()
		data.Extra = map[string]any{"dry_run": true}
		r.logger.Info("dry run complete", "rows", len(table.Rows), "error_percentage", validation.ErrorRate())
		return domain.Succeeded(fmt.Sprintf("Dry run: %d rows validated, %d with errors",
			len(table.Rows), validation.Report.RowsWithErrors), data)
	}

	for _, issue := range validation.Issues {
		issue.Severity = domain.SeverityWarning
		r.errs.record(ctx, issue)
	}

	rows := table.Rows
	if skip := r.opts.ResumeFromRow; skip > 0 {
		skip = min(skip, len(rows))
		rows = rows[skip:]
		r.batch.ProcessedRows = skip
		r.batch.Metadata["resumed_from_row"] = skip
	}

	if err := r.batch.Transition(domain.BatchProcessing); err != nil {
		return r.fail(ctx, err.Error())
	}
	r.save(ctx)

	emap := extract.NewEntityMap()
	if !r.opts.SkipMasterData && s.runner != nil {
		emap = r.masterData(ctx, table, m)
	}

	if err := r.importRows(ctx, rows, table.Headers, m, emap); err != nil {
		return r.fail(ctx, err.Error())
	}

	if r.opts.GenerateAccounting && transactional(m.EntityType) {
		r.progress(PhaseAccounting, "Posting journal entries")
		counts, err := r.svc.postJournalEntries(ctx, r.batch.ID)
		if err != nil {
			r.logger.Warn("accounting failed", "error", err)
			r.batch.Metadata["accounting_error"] = err.Error()
		}
		r.batch.AddEntityCounts(counts)
	}

	if err := r.batch.Transition(domain.BatchCompleted); err != nil {
		return r.fail(ctx, err.Error())
	}
	r.batch.Metadata["duration_ms"] = time.Since(start).Milliseconds()
	r.batch.ErrorSummary = r.errs.summary
	r.save(ctx)
	r.progress(PhaseComplete, "Import complete")

	if req.Mapping != nil {
		if err := s.synth.ConfirmMapping(ctx, table.Headers, m); err != nil && !errors.Is(err, mapping.ErrNoLearningStore) {
			r.logger.Warn("failed to record mapping feedback", "error", err)
		}
	}

	r.logger.Info("import complete",
		"rows", r.batch.TotalRows,
		"successful", r.batch.SuccessfulRows,
		"failed", r.batch.FailedRows,
		"duration", time.Since(start))
	return domain.Succeeded(fmt.Sprintf("Import completed: %d of %d rows imported, %d failed",
		r.batch.SuccessfulRows, r.batch.TotalRows, r.batch.FailedRows), r.data())
}

// masterData extracts and creates master data outside any transaction so
// one extractor's failure cannot undo another's work.
func (r *importRun) masterData(ctx context.Context, table *Table, m *domain.ImportMapping) *extract.EntityMap {
	r.progress(PhaseMasterData, "Creating master data")
	extraction := r.svc.runner.RunAll(table.Records(), table.Headers, m)
	outcome := r.svc.runner.CreateAll(ctx, extraction, r.batch, r.svc.store.Entities())
	r.batch.AddEntityCounts(outcome.Counts)
	r.failures = outcome.Failures
	if len(extraction.Warnings) > 0 {
		r.batch.Metadata["master_data_warnings"] = truncate(extraction.Warnings, maxWarningsKept)
	}
	if len(outcome.Drift) > 0 {
		drift := make([]string, len(outcome.Drift))
		for i, d := range outcome.Drift {
			drift[i] = d.String()
		}
		r.batch.Metadata["master_data_drift"] = truncate(drift, maxWarningsKept)
		r.logger.Info("existing master data differs from file", "entities", len(outcome.Drift))
	}
	if err := outcome.Err(); err != nil {
		r.logger.Warn("master data created with errors", "error", err)
	}
	r.svc.store.ClearCache()
	r.save(ctx)
	return outcome.Map
}

type rowFailure struct {
	row ParsedRow
	err error
}

// importRows imports rows chunk by chunk. Each chunk is one transaction and
// each row a nested one, so a bad row is dropped alone while a chunk that
// cannot commit loses all of its rows.
func (r *importRun) importRows(ctx context.Context, rows []ParsedRow, headers []string, m *domain.ImportMapping, emap *extract.EntityMap) error {
	s := r.svc
	base := newRowImporter(nil, emap, r.batch.ID, m, headers)
	for start := 0; start < len(rows); start += r.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("import cancelled after %d rows: %w", r.batch.ProcessedRows, err)
		}
		chunk := rows[start:min(start+r.opts.BatchSize, len(rows))]

		var failures []rowFailure
		counts := map[string]int{}
		err := s.store.WithTx(ctx, func(tx repository.Store) error {
			failures = failures[:0]
			clear(counts)
			for _, row := range chunk {
				ri := base.withStore(tx.Entities())
				err := tx.WithTx(ctx, func(rowTx repository.Store) error {
					ri.store = rowTx.Entities()
					return ri.Import(ctx, row)
				})
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return ctxErr
					}
					failures = append(failures, rowFailure{row: row, err: err})
					continue
				}
				for k, v := range ri.counts {
					counts[k] += v
				}
			}
			return nil
		})

		if err != nil {
			r.logger.Error("chunk failed", "first_line", chunk[0].Line, "rows", len(chunk), "error", err)
			for _, row := range chunk {
				r.errs.record(ctx, domain.ImportError{
					RowNumber: row.Line,
					ErrorType: domain.ErrorEntityCreation,
					Severity:  domain.SeverityCritical,
					Message:   "Chunk transaction failed: " + err.Error(),
					RowData:   SanitizeRow(row.Values),
				})
			}
			r.batch.RecordChunk(len(chunk), 0, len(chunk))
		} else {
			for _, f := range failures {
				r.errs.record(ctx, rowError(f))
			}
			r.batch.RecordChunk(len(chunk), len(chunk)-len(failures), len(failures))
			r.batch.AddEntityCounts(counts)
		}

		r.batch.ErrorSummary = r.errs.summary
		s.store.ClearCache()
		emap.DropHandles()
		r.save(ctx)
		r.progress(PhaseTransactions, fmt.Sprintf("Processed %d of %d rows", r.batch.ProcessedRows, r.batch.TotalRows))
	}
	return nil
}

func rowError(f rowFailure) domain.ImportError {
	e := domain.ImportError{
		RowNumber: f.row.Line,
		ErrorType: domain.ErrorEntityCreation,
		Severity:  domain.SeverityError,
		Message:   f.err.Error(),
		RowData:   SanitizeRow(f.row.Values),
	}
	var re *RowError
	if errors.As(f.err, &re) {
		e.FieldName = re.Field
	}
	return e
}

func (r *importRun) data() domain.ResultData {
	data := domain.BatchData(r.batch)
	data.Validation = r.report
	data.Mapping = r.mapping
	data.Failures = r.failures
	return data
}

// fail moves the batch to failed and reports why.
func (r *importRun) fail(ctx context.Context, msg string) domain.Result {
	ctx = context.WithoutCancel(ctx)
	if r.batch.CanTransition(domain.BatchFailed) {
		_ = r.batch.Transition(domain.BatchFailed)
	}
	r.batch.Metadata["failure_reason"] = msg
	if r.errs != nil {
		r.batch.ErrorSummary = r.errs.summary
	}
	r.save(ctx)
	r.logger.Error("import failed", "reason", msg, "status", r.batch.Status)
	return domain.Failed(msg, r.data())
}

func (r *importRun) save(ctx context.Context) {
	if !r.persisted {
		return
	}
	if err := r.svc.store.Batches().Update(ctx, *r.batch); err != nil {
		r.logger.Warn("failed to persist batch", "error", err)
	}
}

func (r *importRun) progress(phase, msg string) {
	if r.opts.Progress == nil {
		return
	}
	r.opts.Progress(Progress{
		Phase:      phase,
		BatchID:    r.batch.ID,
		Total:      r.batch.TotalRows,
		Processed:  r.batch.ProcessedRows,
		Successful: r.batch.SuccessfulRows,
		Failed:     r.batch.FailedRows,
		Percent:    r.batch.ProgressPercent(),
		Message:    msg,
	})
}

func transactional(entityType string) bool {
	switch entityType {
	case "order", "order_item", "order_line", "purchase", "purchase_item", "purchase_line":
		return true
	}
	return false
}

func sampleRows(t *Table) []map[string]string {
	rows := t.Maps()
	if len(rows) > suggestSampleRows {
		rows = rows[:suggestSampleRows]
	}
	return rows
}

func truncate(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}

// errorLog records batch errors up to a storage cap while summarising all
// of them.
type errorLog struct {
	repo    repository.ImportErrorRepository
	batchID uuid.UUID
	limit   int
	stored  int
	summary *domain.ErrorSummary
	logger  *slog.Logger
}

func newErrorLog(repo repository.ImportErrorRepository, batchID uuid.UUID, limit int, logger *slog.Logger) *errorLog {
	return &errorLog{repo: repo, batchID: batchID, limit: limit, summary: domain.NewErrorSummary(), logger: logger}
}

func (l *errorLog) record(ctx context.Context, e domain.ImportError) {
	e.BatchID = l.batchID
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	l.summary.Add(e)
	if l.stored >= l.limit {
		return
	}
	if err := l.repo.Record(ctx, e); err != nil {
		l.logger.Warn("failed to store import error", "row", e.RowNumber, "error", err)
		return
	}
	l.stored++
	if l.stored == l.limit {
		l.logger.Warn("error storage limit reached, further errors are only counted", "limit", l.limit)
	}
}
