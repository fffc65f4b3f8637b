// Package extract pulls master data (locations, customers, vendors, items and
// the sellable catalog) out of tabular rows and turns it into persisted
// entities before transactional rows are imported.
//
// Each domain is served by one Extractor. A Runner holds an ordered set of
// extractors, decides which are relevant for a header set, merges their
// results and coordinates find-or-create so that later rows can resolve
// foreign keys through a shared EntityMap.
package extract

import (
	"context"
	"regexp"
	"strings"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository"
)

// Row is one source row addressed by header name.
type Row map[string]string

// DefaultPriority is used by extractors that do not declare one.
const DefaultPriority = 100

// Metadata describes an extractor.
type Metadata struct {
	Name     string              `json:"name"`
	Label    string              `json:"label"`
	Kinds    []domain.EntityKind `json:"kinds"`
	Priority int                 `json:"priority"`
}

// Produces reports whether the extractor emits records of kind.
func (m Metadata) Produces(kind domain.EntityKind) bool {
	for _, k := range m.Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Records groups extracted records by kind and then natural key.
type Records map[domain.EntityKind]map[string]Record

// Outcome is what an extractor reports after creating entities.
type Outcome struct {
	Counts map[string]int
	Map    *EntityMap
	// Drift lists existing entities the records disagree with.
	Drift []domain.PropertyDrift
}

// Extractor is implemented once per master-data domain.
type Extractor interface {
	Metadata() Metadata
	// Detect scores in [0,1] how relevant the extractor is for the headers.
	Detect(headers []string, sample []Row) float64
	Extract(rows []Row, headers []string, mapping *domain.ImportMapping) *Result
	// CreateEntities finds or creates one entity per record. A returned
	// error does not discard the partial Outcome.
	CreateEntities(ctx context.Context, records Records, batch *domain.ImportBatch, store repository.EntityStore) (Outcome, error)
}

// Profile is the header evidence an extractor is detected by.
type Profile struct {
	// Groups are alternatives; each matched group adds an equal share of 0.4.
	Groups [][]string
	Strong []string
	// Data adds extractor specific evidence from sample rows.
	Data func(headers []string, sample []Row) float64
}

var headerSep = regexp.MustCompile(`[\s\-\.]+`)

// NormalizeHeader lower-cases a header and joins its words with underscores.
func NormalizeHeader(h string) string {
	return headerSep.ReplaceAllString(strings.ToLower(strings.TrimSpace(h)), "_")
}

// Detect scores headers against a profile. No matched group means 0.
func Detect(p Profile, headers []string, sample []Row) float64 {
	norm := normalizedSet(headers)
	if len(p.Groups) == 0 {
		return 0
	}
	matched := 0
	for _, g := range p.Groups {
		if hasAny(norm, g) {
			matched++
		}
	}
	if matched == 0 {
		return 0
	}
	score := 0.4 * float64(matched) / float64(len(p.Groups))

	if len(p.Strong) > 0 {
		strong := 0
		for _, s := range p.Strong {
			if hasHeader(norm, s) {
				strong++
			}
		}
		score += 0.5 * float64(strong) / float64(len(p.Strong))
	}
	if p.Data != nil {
		score += p.Data(headers, sample)
	}
	return min(score, 1)
}

func normalizedSet(headers []string) map[string]string {
	out := make(map[string]string, len(headers))
	for _, h := range headers {
		if n := NormalizeHeader(h); n != "" {
			out[n] = h
		}
	}
	return out
}

func hasAny(norm map[string]string, targets []string) bool {
	for _, t := range targets {
		if hasHeader(norm, t) {
			return true
		}
	}
	return false
}

// hasHeader matches exactly or by containment in either direction.
func hasHeader(norm map[string]string, target string) bool {
	t := NormalizeHeader(target)
	if _, ok := norm[t]; ok {
		return true
	}
	for h := range norm {
		if strings.Contains(h, t) || strings.Contains(t, h) {
			return true
		}
	}
	return false
}
