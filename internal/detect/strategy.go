package detect

import (
	"sort"

	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/signal"
)

// Strategy values describe how rows map to entities.
const (
	StrategySingleEntity            = "single_entity"
	StrategyDenormalizedTransaction = "denormalized_transaction"
)

// ExtractionStrategy tells the importer whether each row is one entity or a
// line of a parent grouped by GroupingKey.
type ExtractionStrategy struct {
	Strategy    string   `json:"strategy"`
	Parent      string   `json:"parent,omitempty"`
	Child       string   `json:"child,omitempty"`
	GroupingKey string   `json:"grouping_key,omitempty"`
	Types       []string `json:"entity_types"`
}

// Strategy derives the extraction strategy for a detection.
func (d *Detector) Strategy(det Detection, headers []string) ExtractionStrategy {
	types := OrderByDependency(det.Types())
	out := ExtractionStrategy{Strategy: StrategySingleEntity, Types: types}
	if !det.Composite {
		return out
	}
	for _, t := range types {
		rel := Relationships(t)
		if len(rel.Children) == 0 {
			continue
		}
		for _, child := range rel.Children {
			if !contains(types, child) {
				continue
			}
			sig, _ := d.Signature(t)
			out.Strategy = StrategyDenormalizedTransaction
			out.Parent = t
			out.Child = child
			out.GroupingKey = groupingKey(headers, sig.Identifying)
			return out
		}
	}
	return out
}

func groupingKey(headers, identifying []string) string {
	for _, id := range identifying {
		want := signal.NormalizeHeader(id)
		for _, h := range headers {
			if signal.NormalizeHeader(h) == want {
				return h
			}
		}
	}
	for _, id := range identifying {
		want := signal.NormalizeHeader(id)
		for _, h := range headers {
			if HeadersMatch(signal.NormalizeHeader(h), want) {
				return h
			}
		}
	}
	return ""
}

// OrderByDependency sorts entity types so prerequisites come first.
func OrderByDependency(types []string) []string {
	out := append([]string(nil), types...)
	sort.SliceStable(out, func(i, j int) bool { return typeRank(out[i]) < typeRank(out[j]) })
	return out
}

func typeRank(t string) int {
	if t == "vendor_invoice" {
		return domain.KindPurchase.DependencyRank()
	}
	k, err := domain.ParseEntityKind(t)
	if err != nil {
		return 99
	}
	return k.DependencyRank()
}

// HeaderRole scores how a header relates to an entity type.
type HeaderRole struct {
	Type  string  `json:"entity_type"`
	Role  string  `json:"role"`
	Score float64 `json:"score"`
}

// MapHeadersToEntities assigns each header its strongest role for each of the
// given types: identifying 1.0, required 0.9, strong 0.7, weak 0.4.
func (d *Detector) MapHeadersToEntities(headers, types []string) map[string][]HeaderRole {
	out := make(map[string][]HeaderRole, len(headers))
	for _, h := range headers {
		n := signal.NormalizeHeader(h)
		if n == "" {
			continue
		}
		for _, t := range types {
			sig, ok := d.Signature(t)
			if !ok {
				continue
			}
			if role, score, ok := headerRole(n, sig); ok {
				out[h] = append(out[h], HeaderRole{Type: t, Role: role, Score: score})
			}
		}
		sort.SliceStable(out[h], func(i, j int) bool { return out[h][i].Score > out[h][j].Score })
	}
	return out
}

func headerRole(n string, sig Signature) (string, float64, bool) {
	if anyMatch(n, sig.Identifying) {
		return "identifying", 1.0, true
	}
	for _, g := range sig.RequiredAny {
		if anyMatch(n, g) {
			return "required", 0.9, true
		}
	}
	if anyMatch(n, sig.Strong) {
		return "strong", 0.7, true
	}
	if anyMatch(n, sig.Weak) {
		return "weak", 0.4, true
	}
	return "", 0, false
}

func anyMatch(n string, indicators []string) bool {
	for _, ind := range indicators {
		if HeadersMatch(n, signal.NormalizeHeader(ind)) {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
