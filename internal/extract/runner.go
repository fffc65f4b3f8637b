package extract

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

const (
	// MinRelevance is the detection score an extractor needs to run.
	MinRelevance = 0.4
	detectSample = 100
)

// Detection is a relevant extractor and its score.
type Detection struct {
	Extractor  Extractor `json:"-"`
	Metadata   Metadata  `json:"metadata"`
	Confidence float64   `json:"confidence"`
}

// RunOutcome aggregates entity creation across extractors.
type RunOutcome struct {
	Counts   map[string]int
	Map      *EntityMap
	Drift    []domain.PropertyDrift
	Failures []domain.ExtractorFailure
	err      *multierror.Error
}

// Err returns every extractor failure as one error, or nil.
func (o RunOutcome) Err() error {
	return o.err.ErrorOrNil()
}

// Runner drives an ordered set of extractors.
type Runner struct {
	extractors []Extractor
	logger     *slog.Logger
}

// NewRunner returns a runner over the given extractors. Registration order
// breaks priority ties.
func NewRunner(logger *slog.Logger, extractors ...Extractor) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{extractors: append([]Extractor(nil), extractors...), logger: logger}
}

// DefaultExtractors returns the built-in extractors.
func DefaultExtractors() []Extractor {
	return []Extractor{
		NewLocationExtractor(),
		NewCustomerExtractor(),
		NewVendorExtractor(),
		NewItemExtractor(),
		NewCatalogExtractor(),
	}
}

// Extractors returns the registered extractors.
func (r *Runner) Extractors() []Extractor {
	return append([]Extractor(nil), r.extractors...)
}

// DetectRelevant scores every extractor and keeps those at or above
// MinRelevance, highest confidence first.
func (r *Runner) DetectRelevant(headers []string, sample []Row) []Detection {
	var out []Detection
	for _, e := range r.extractors {
		md := e.Metadata()
		score := e.Detect(headers, sample)
		r.logger.Debug("extractor detection", "extractor", md.Name, "confidence", score, "relevant", score >= MinRelevance)
		if score >= MinRelevance {
			out = append(out, Detection{Extractor: e, Metadata: md, Confidence: score})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out
}

func byPriority(ds []Detection) {
	sort.SliceStable(ds, func(i, j int) bool { return ds[i].Metadata.Priority > ds[j].Metadata.Priority })
}

// RunAll extracts with every relevant extractor in priority order and merges
// the results. An extractor that panics contributes a warning instead.
func (r *Runner) RunAll(rows []Row, headers []string, mapping *domain.ImportMapping) *Result {
	sample := rows
	if len(sample) > detectSample {
		sample = sample[:detectSample]
	}
	relevant := r.DetectRelevant(headers, sample)
	byPriority(relevant)

	names := make([]string, len(relevant))
	for i, d := range relevant {
		names[i] = d.Metadata.Name
	}
	r.logger.Info("running extractors", "registered", len(r.extractors), "relevant", len(relevant), "order", names)

	merged := NewResult()
	for _, d := range relevant {
		start := time.Now()
		res := r.extractOne(d, rows, headers, mapping)
		merged.Merge(res)
		r.logger.Info("extractor complete",
			"extractor", d.Metadata.Name,
			"records", res.Total(),
			"warnings", len(res.Warnings),
			"duration", time.Since(start))
	}
	merged.Diagnostics["extractor_count"] = len(relevant)
	return merged
}

func (r *Runner) extractOne(d Detection, rows []Row, headers []string, mapping *domain.ImportMapping) (res *Result) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("extractor failed", "extractor", d.Metadata.Name, "panic", p)
			res = NewResult()
			res.Warnf("Extraction failed: %v", p)
		}
	}()
	res = d.Extractor.Extract(rows, headers, mapping)
	if res == nil {
		res = NewResult()
	}
	return res
}

// CreateAll runs entity creation for every extractor that has records, in
// priority order. Failures are collected per extractor and never stop the
// remaining extractors.
func (r *Runner) CreateAll(ctx context.Context, result *Result, batch *domain.ImportBatch, store repository.EntityStore) RunOutcome {
	out := RunOutcome{Counts: map[string]int{}, Map: NewEntityMap()}
	if result == nil {
		return out
	}
	ordered := make([]Detection, 0, len(r.extractors))
	for _, e := range r.extractors {
		ordered = append(ordered, Detection{Extractor: e, Metadata: e.Metadata()})
	}
	byPriority(ordered)

	for _, d := range ordered {
		records := result.Subset(d.Metadata.Kinds)
		if len(records) == 0 {
			continue
		}
		r.logger.Info("creating entities", "extractor", d.Metadata.Name, "kinds", d.Metadata.Kinds)

		outcome, err := r.createOne(ctx, d, records, batch, store)
		for k, v := range outcome.Counts {
			out.Counts[k] += v
		}
		out.Map.Merge(outcome.Map)
		out.Drift = append(out.Drift, outcome.Drift...)
		if err != nil {
			r.logger.Warn("entity creation had errors", "extractor", d.Metadata.Name, "error", err)
			out.Failures = append(out.Failures, domain.ExtractorFailure{Extractor: d.Metadata.Name, Message: err.Error()})
			out.err = multierror.Append(out.err, fmt.Errorf("%s: %w", d.Metadata.Label, err))
		}
	}
	return out
}

func (r *Runner) createOne(ctx context.Context, d Detection, records Records, batch *domain.ImportBatch, store repository.EntityStore) (outcome Outcome, err error) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("entity creation panicked", "extractor", d.Metadata.Name, "panic", p)
			err = fmt.Errorf("%s creation failed: %v", d.Metadata.Label, p)
		}
	}()
	return d.Extractor.CreateEntities(ctx, records, batch, store)
}
