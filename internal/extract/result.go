package extract

import (
	"fmt"
	"sort"

	"github.com/rpattn/tabimport/internal/domain"
)

// Record is one deduplicated master-data candidate.
type Record struct {
	Key     string             `json:"key"`
	Name    string             `json:"name"`
	Fields  map[string]string  `json:"fields,omitempty"`
	Numbers map[string]float64 `json:"numbers,omitempty"`
	// Rows are zero-based indexes of the source rows the record came from.
	Rows []int `json:"rows,omitempty"`
	// Aliases are source spellings that should resolve to this record.
	Aliases []string `json:"aliases,omitempty"`
}

func newRecord(key, name string) Record {
	return Record{Key: key, Name: name, Fields: map[string]string{}, Numbers: map[string]float64{}}
}

// Field returns a field or "".
func (r Record) Field(name string) string {
	if r.Fields == nil {
		return ""
	}
	return r.Fields[name]
}

// Number returns a numeric attribute.
func (r Record) Number(name string) (float64, bool) {
	if r.Numbers == nil {
		return 0, false
	}
	v, ok := r.Numbers[name]
	return v, ok
}

// Conflict records a natural key seen with disagreeing values.
type Conflict struct {
	Kind       domain.EntityKind `json:"kind"`
	Key        string            `json:"key"`
	Resolution string            `json:"resolution"`
}

// Result is the output of one or more extractors.
type Result struct {
	Records     Records        `json:"records"`
	Diagnostics map[string]int `json:"diagnostics,omitempty"`
	Warnings    []string       `json:"warnings,omitempty"`
	Conflicts   []Conflict     `json:"conflicts,omitempty"`
}

// NewResult returns an empty result.
func NewResult() *Result {
	return &Result{Records: Records{}, Diagnostics: map[string]int{}}
}

// Put stores a record, replacing one with the same key.
func (r *Result) Put(kind domain.EntityKind, rec Record) {
	if r.Records == nil {
		r.Records = Records{}
	}
	if r.Records[kind] == nil {
		r.Records[kind] = map[string]Record{}
	}
	r.Records[kind][rec.Key] = rec
}

// Warnf appends a formatted warning.
func (r *Result) Warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Sorted returns the records of a kind ordered by key.
func (r *Result) Sorted(kind domain.EntityKind) []Record {
	return sortedRecords(r.Records[kind])
}

func sortedRecords(m map[string]Record) []Record {
	out := make([]Record, 0, len(m))
	for _, rec := range m {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Merge folds other into r. On a key collision the record from other wins.
// Diagnostics with the same name are summed.
func (r *Result) Merge(other *Result) *Result {
	if other == nil {
		return r
	}
	for kind, recs := range other.Records {
		for _, rec := range recs {
			r.Put(kind, rec)
		}
	}
	if r.Diagnostics == nil {
		r.Diagnostics = map[string]int{}
	}
	for k, v := range other.Diagnostics {
		r.Diagnostics[k] += v
	}
	r.Warnings = append(r.Warnings, other.Warnings...)
	r.Conflicts = append(r.Conflicts, other.Conflicts...)
	return r
}

// Counts returns the number of records per kind.
func (r *Result) Counts() map[domain.EntityKind]int {
	out := make(map[domain.EntityKind]int, len(r.Records))
	for k, recs := range r.Records {
		out[k] = len(recs)
	}
	return out
}

// Total is the number of records across every kind.
func (r *Result) Total() int {
	n := 0
	for _, recs := range r.Records {
		n += len(recs)
	}
	return n
}

// Subset returns the records of the given kinds.
func (r *Result) Subset(kinds []domain.EntityKind) Records {
	out := Records{}
	for _, k := range kinds {
		if recs, ok := r.Records[k]; ok && len(recs) > 0 {
			out[k] = recs
		}
	}
	return out
}
