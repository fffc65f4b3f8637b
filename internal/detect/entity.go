// Package detect identifies what a dataset or a block of free text describes:
// the entity type behind a header set, and the vendor behind receipt lines.
package detect

import (
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/rpattn/tabimport/internal/signal"
)

const (
	weightRequired  = 0.40
	weightStrong    = 0.35
	weightWeak      = 0.15
	weightComposite = 0.10

	// ConfidenceFloor is the minimum score for a signature to be selected.
	ConfidenceFloor = 0.5
	// CompositeThreshold is the score above which a second signature marks
	// the dataset as composite.
	CompositeThreshold = 0.6

	strongSaturation = 3
	weakSaturation   = 2
)

// Candidate is the scoring breakdown of one signature.
type Candidate struct {
	Type              string   `json:"type"`
	Score             float64  `json:"score"`
	RequiredCoverage  float64  `json:"required_coverage"`
	StrongCoverage    float64  `json:"strong_coverage"`
	WeakCoverage      float64  `json:"weak_coverage"`
	CompositeCoverage float64  `json:"composite_coverage"`
	Matched           []string `json:"matched_headers,omitempty"`
}

// Detection is the outcome of Detector.Detect.
type Detection struct {
	Type       string      `json:"entity_type"`
	Confidence float64     `json:"confidence"`
	Detected   bool        `json:"detected"`
	Composite  bool        `json:"is_composite"`
	Secondary  []string    `json:"secondary_types,omitempty"`
	Candidates []Candidate `json:"candidates"`
}

// Types lists the primary type followed by any composite partners.
func (d Detection) Types() []string {
	if !d.Detected {
		return nil
	}
	return append([]string{d.Type}, d.Secondary...)
}

// Detector scores header sets against entity signatures.
type Detector struct {
	signatures []Signature
}

// NewDetector returns a detector over the built-in signatures.
func NewDetector() *Detector {
	return &Detector{signatures: DefaultSignatures()}
}

// NewDetectorWithSignatures returns a detector over a custom signature set.
func NewDetectorWithSignatures(sigs []Signature) *Detector {
	return &Detector{signatures: sigs}
}

// Signature looks up a signature by type.
func (d *Detector) Signature(entityType string) (Signature, bool) {
	for _, s := range d.signatures {
		if s.Type == entityType {
			return s, true
		}
	}
	return Signature{}, false
}

// Detect scores every signature and selects the best one above the floor.
// Candidates are always returned, best first, for diagnostics.
func (d *Detector) Detect(headers []string) Detection {
	normalized := normalizeAll(headers)

	candidates := make([]Candidate, 0, len(d.signatures))
	for _, sig := range d.signatures {
		candidates = append(candidates, scoreSignature(sig, normalized))
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].Score > candidates[j].Score })

	out := Detection{Candidates: candidates}
	if len(candidates) == 0 || candidates[0].Score < ConfidenceFloor {
		return out
	}
	out.Type = candidates[0].Type
	out.Confidence = candidates[0].Score
	out.Detected = true

	if candidates[0].Score > CompositeThreshold {
		for _, c := range candidates[1:] {
			if c.Score > CompositeThreshold {
				out.Secondary = append(out.Secondary, c.Type)
			}
		}
		out.Composite = len(out.Secondary) > 0
	}
	return out
}

func normalizeAll(headers []string) []string {
	out := make([]string, 0, len(headers))
	for _, h := range headers {
		if n := signal.NormalizeHeader(h); n != "" {
			out = append(out, n)
		}
	}
	return out
}

func scoreSignature(sig Signature, headers []string) Candidate {
	c := Candidate{Type: sig.Type}
	matched := map[string]bool{}

	satisfied := 0
	for _, group := range sig.RequiredAny {
		if hs := matchingHeaders(headers, group); len(hs) > 0 {
			satisfied++
			for _, h := range hs {
				matched[h] = true
			}
		}
	}
	if len(sig.RequiredAny) > 0 {
		c.RequiredCoverage = float64(satisfied) / float64(len(sig.RequiredAny))
	} else {
		c.RequiredCoverage = 1
	}

	strong := matchingHeaders(headers, sig.Strong)
	c.StrongCoverage = saturate(len(strong), len(sig.Strong), strongSaturation)
	weak := matchingHeaders(headers, sig.Weak)
	c.WeakCoverage = saturate(len(weak), len(sig.Weak), weakSaturation)

	if len(sig.Composite) > 0 {
		full := 0
		for _, pattern := range sig.Composite {
			if compositeSatisfied(headers, pattern) {
				full++
			}
		}
		c.CompositeCoverage = float64(full) / float64(len(sig.Composite))
	}

	for _, h := range append(strong, weak...) {
		matched[h] = true
	}
	for h := range matched {
		c.Matched = append(c.Matched, h)
	}
	sort.Strings(c.Matched)

	if c.RequiredCoverage < 1 {
		return c
	}
	c.Score = signal.Round(weightRequired*c.RequiredCoverage+
		weightStrong*c.StrongCoverage+
		weightWeak*c.WeakCoverage+
		weightComposite*c.CompositeCoverage, 4)
	return c
}

// saturate divides distinct matches by min(listLen, cap), capped at 1.
func saturate(matches, listLen, limit int) float64 {
	if listLen == 0 || matches == 0 {
		return 0
	}
	denom := min(listLen, limit)
	return min(1, float64(matches)/float64(denom))
}

func compositeSatisfied(headers, pattern []string) bool {
	for _, p := range pattern {
		if len(matchingHeaders(headers, strings.Split(p, "|"))) == 0 {
			return false
		}
	}
	return true
}

// matchingHeaders returns the distinct headers matching any indicator.
func matchingHeaders(headers, indicators []string) []string {
	var out []string
	for _, h := range headers {
		for _, ind := range indicators {
			if HeadersMatch(h, signal.NormalizeHeader(ind)) {
				out = append(out, h)
				break
			}
		}
	}
	return out
}

// HeadersMatch compares two normalized headers: equal, one containing the
// other (shorter side at least three characters), or within edit distance two
// when both are longer than three characters.
func HeadersMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) >= 3 && strings.Contains(long, short) {
		return true
	}
	if len(a) > 3 && len(b) > 3 && levenshtein.ComputeDistance(a, b) <= 2 {
		return true
	}
	return false
}
