package extract

import (
	"regexp"
	"sort"
	"strings"
)

// Size is a recognised size designation.
type Size struct {
	Code  string `json:"code"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

type sizePattern struct {
	token string
	name  string
	order int
}

var sizePatterns = []sizePattern{
	{"extra small", "Extra Small", 1},
	{"extra large", "Extra Large", 6},
	{"extra-small", "Extra Small", 1},
	{"extra-large", "Extra Large", 6},
	{"x-small", "Extra Small", 1},
	{"x-large", "Extra Large", 6},
	{"small", "Small", 2},
	{"medium", "Medium", 3},
	{"large", "Large", 4},
	{"regular", "Regular", 3},
	{"xsm", "Extra Small", 1},
	{"xs", "Extra Small", 1},
	{"sm", "Small", 2},
	{"md", "Medium", 3},
	{"med", "Medium", 3},
	{"rg", "Regular", 3},
	{"reg", "Regular", 3},
	{"lg", "Large", 4},
	{"xl", "Extra Large", 6},
	{"xlg", "Extra Large", 6},
	{"xxl", "2X Large", 7},
	{"s", "Small", 2},
	{"m", "Medium", 3},
	{"l", "Large", 4},
	{"r", "Regular", 3},
}

// Names containing these phrases never carry a size.
var sizeExclusions = []string{
	"wholesale", "resale", "original", "special", "minimal",
	"normal", "formal", "optimal", "regional", "seasonal",
	"small plates", "large format", "medium roast",
}

var (
	sizeDelimiters = []string{" - ", " – ", " — ", " | ", ", "}
	whitespace     = regexp.MustCompile(`\s+`)
)

var portionMultipliers = map[string]float64{
	"Extra Small": 0.5,
	"Small":       0.75,
	"Regular":     1.0,
	"Medium":      1.0,
	"Large":       1.25,
	"Extra Large": 1.5,
	"2X Large":    2.0,
}

// PortionMultiplier scales a recipe for a size name. Unknown sizes are 1.
func PortionMultiplier(sizeName string) float64 {
	if m, ok := portionMultipliers[sizeName]; ok {
		return m
	}
	return 1
}

// VariantInference is the outcome of InferVariant.
type VariantInference struct {
	BaseName   string  `json:"base_name"`
	Size       *Size   `json:"size,omitempty"`
	Original   string  `json:"original_name"`
	Confidence float64 `json:"confidence"`
}

// InferVariant splits a product name such as "Latte - Lg" or "Cold Brew Large"
// into a base name and a size. Names without a recognisable size come back
// whole with confidence 1.
func InferVariant(name string) VariantInference {
	trimmed := strings.TrimSpace(name)
	none := VariantInference{BaseName: trimmed, Original: name, Confidence: 1}
	if excludedFromSizing(trimmed) {
		return none
	}
	for _, d := range sizeDelimiters {
		i := strings.LastIndex(trimmed, d)
		if i <= 0 {
			continue
		}
		last := strings.TrimSpace(trimmed[i+len(d):])
		if sz, ok := matchSize(last); ok {
			return VariantInference{BaseName: strings.TrimSpace(trimmed[:i]), Size: &sz, Original: name, Confidence: 0.9}
		}
	}

	words := whitespace.Split(trimmed, -1)
	if len(words) < 2 {
		return none
	}
	if len(words) >= 3 {
		pair := strings.Join(words[len(words)-2:], " ")
		if sz, ok := matchSize(pair); ok {
			return VariantInference{BaseName: strings.Join(words[:len(words)-2], " "), Size: &sz, Original: name, Confidence: 0.95}
		}
	}
	last := words[len(words)-1]
	sz, ok := matchSize(last)
	if !ok {
		return none
	}
	// A lone letter after a single word ("Combo L") is too weak to be a size.
	if len(last) == 1 && len(words) < 3 {
		return none
	}
	conf := 0.6
	switch {
	case len(last) >= 5:
		conf = 0.95
	case len(last) >= 2:
		conf = 0.85
	}
	return VariantInference{BaseName: strings.Join(words[:len(words)-1], " "), Size: &sz, Original: name, Confidence: conf}
}

func matchSize(token string) (Size, bool) {
	t := strings.ToLower(strings.TrimSpace(token))
	for _, p := range sizePatterns {
		if t == p.token {
			return Size{Code: strings.TrimSpace(token), Name: p.name, Order: p.order}, true
		}
	}
	return Size{}, false
}

func excludedFromSizing(name string) bool {
	lower := strings.ToLower(name)
	for _, e := range sizeExclusions {
		if strings.Contains(lower, e) {
			return true
		}
	}
	return false
}

// GroupedVariant is one product name inside a ProductGroup.
type GroupedVariant struct {
	Name string `json:"name"`
	Size *Size  `json:"size,omitempty"`
}

// ProductGroup collects product names that share a base name.
type ProductGroup struct {
	BaseName string           `json:"base_name"`
	Key      string           `json:"key"`
	Sized    bool             `json:"is_sized"`
	Variants []GroupedVariant `json:"variants"`
}

// Configurable is true when the group has more than one name and at least
// one of them carries a size.
func (g ProductGroup) Configurable() bool {
	return g.Sized && len(g.Variants) > 1
}

// VariantAnalysis summarises size inference over a dataset.
type VariantAnalysis struct {
	Total            int            `json:"total_products"`
	Sized            int            `json:"sized_products"`
	Unsized          int            `json:"unsized_products"`
	SizeDistribution map[string]int `json:"size_distribution"`
	Groups           []ProductGroup `json:"base_products"`
}

// GroupByBase groups names by inferred base name, in order of first
// appearance. Variants are ordered by size, unsized names last.
func GroupByBase(names []string) []ProductGroup {
	var groups []ProductGroup
	index := map[string]int{}
	for _, n := range names {
		inf := InferVariant(n)
		key := Slug(inf.BaseName)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, ProductGroup{BaseName: inf.BaseName, Key: key})
		}
		if inf.Size != nil {
			groups[i].Sized = true
		}
		groups[i].Variants = append(groups[i].Variants, GroupedVariant{Name: inf.Original, Size: inf.Size})
	}
	for i := range groups {
		vs := groups[i].Variants
		sort.SliceStable(vs, func(a, b int) bool { return sizeOrder(vs[a]) < sizeOrder(vs[b]) })
	}
	return groups
}

func sizeOrder(v GroupedVariant) int {
	if v.Size == nil {
		return 999
	}
	return v.Size.Order
}

// AnalyzeVariants groups names and counts sized products per size code.
func AnalyzeVariants(names []string) VariantAnalysis {
	a := VariantAnalysis{Total: len(names), SizeDistribution: map[string]int{}, Groups: GroupByBase(names)}
	for _, g := range a.Groups {
		for _, v := range g.Variants {
			if v.Size == nil {
				a.Unsized++
				continue
			}
			a.Sized++
			a.SizeDistribution[v.Size.Code]++
		}
	}
	return a
}
