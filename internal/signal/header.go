package signal

import (
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

const (
	maxEditDistance   = 3
	ngramThreshold    = 0.6
	substringCap      = 0.7
	suffixExactScore  = 0.9
	alternativesFloor = 0.3
)

var (
	nonAlnumRe   = regexp.MustCompile(`[^a-z0-9]+`)
	leadingWords = []string{"the_", "a_", "an_"}
	fieldSuffix  = regexp.MustCompile(`_(id|name|number|date|amount)$`)
)

// NormalizeHeader folds case and accents, turns punctuation and whitespace into
// underscores, drops a leading article and expands abbreviated tokens.
func NormalizeHeader(header string) string {
	h := strings.ToLower(strings.TrimSpace(FoldAccents(header)))
	h = nonAlnumRe.ReplaceAllString(h, "_")
	h = strings.Trim(h, "_")
	for _, w := range leadingWords {
		if strings.HasPrefix(h, w) && len(h) > len(w) {
			h = h[len(w):]
			break
		}
	}
	if h == "" {
		return ""
	}
	tokens := strings.Split(h, "_")
	for i, t := range tokens {
		if full, ok := abbreviations[t]; ok {
			tokens[i] = full
		}
	}
	return strings.Join(tokens, "_")
}

// StripFieldSuffix removes one trailing _id/_name/_number/_date/_amount.
func StripFieldSuffix(normalized string) string {
	stripped := fieldSuffix.ReplaceAllString(normalized, "")
	if stripped == "" {
		return normalized
	}
	return stripped
}

type scorer struct {
	method MatchMethod
	score  func(h, a headerForm) float64
}

var matchMethods = []scorer{
	{MethodExact, exactScore},
	{MethodLevenshtein, editScore},
	{MethodNGram, ngramScore},
	{MethodSubstring, substringScore},
}

type headerForm struct {
	full     string
	stripped string
}

func formOf(s string) headerForm {
	n := NormalizeHeader(s)
	return headerForm{full: n, stripped: StripFieldSuffix(n)}
}

// ScoreHeader scores a header against every field of an entity type. Methods
// are tried in order exact, levenshtein, ngram, substring; the first that
// yields a positive score decides that field. Fields without a positive score
// are omitted. Order follows the alias table.
func ScoreHeader(header, entityType string) []HeaderMatch {
	h := formOf(header)
	if h.full == "" {
		return nil
	}
	var out []HeaderMatch
	for _, fa := range fieldAliases[entityType] {
		if m, ok := scoreField(h, fa); ok {
			out = append(out, m)
		}
	}
	return out
}

func scoreField(h headerForm, fa FieldAlias) (HeaderMatch, bool) {
	forms := make([]headerForm, len(fa.Aliases))
	for i, a := range fa.Aliases {
		forms[i] = formOf(a)
	}
	for _, m := range matchMethods {
		best, alias := 0.0, ""
		for i, a := range forms {
			if s := m.score(h, a); s > best {
				best, alias = s, fa.Aliases[i]
			}
		}
		if best > 0 {
			return HeaderMatch{Field: fa.Field, Score: Round(best, 4), Method: m.method, Alias: alias}, true
		}
	}
	return HeaderMatch{}, false
}

// MatchHeader returns the best field for a header. Ties go to the field listed
// first for the entity type.
func MatchHeader(header, entityType string) (HeaderMatch, bool) {
	var best HeaderMatch
	found := false
	for _, m := range ScoreHeader(header, entityType) {
		if !found || m.Score > best.Score {
			best, found = m, true
		}
	}
	return best, found
}

// SuggestAlternatives ranks fields by their strongest score across every
// method, keeping those above 0.3.
func SuggestAlternatives(header, entityType string, limit int) []HeaderMatch {
	h := formOf(header)
	if h.full == "" {
		return nil
	}
	var out []HeaderMatch
	for _, fa := range fieldAliases[entityType] {
		best := HeaderMatch{Field: fa.Field}
		for _, alias := range fa.Aliases {
			a := formOf(alias)
			for _, m := range matchMethods {
				if s := m.score(h, a); s > best.Score {
					best.Score, best.Method, best.Alias = s, m.method, alias
				}
			}
		}
		if best.Score > alternativesFloor {
			best.Score = Round(best.Score, 4)
			out = append(out, best)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func exactScore(h, a headerForm) float64 {
	if h.full == a.full {
		return 1
	}
	if h.stripped == a.stripped {
		return suffixExactScore
	}
	return 0
}

func editScore(h, a headerForm) float64 {
	d := levenshtein.ComputeDistance(h.stripped, a.stripped)
	if d > maxEditDistance {
		return 0
	}
	maxLen := max(utf8.RuneCountInString(h.stripped), utf8.RuneCountInString(a.stripped))
	if maxLen == 0 {
		return 0
	}
	s := 1 - float64(d)/float64(maxLen)
	if s < 0 {
		return 0
	}
	return s
}

func ngramScore(h, a headerForm) float64 {
	j := BigramJaccard(h.stripped, a.stripped)
	if j > ngramThreshold {
		return j
	}
	return 0
}

func substringScore(h, a headerForm) float64 {
	short, long := h.stripped, a.stripped
	if len(short) > len(long) {
		short, long = long, short
	}
	if len(short) < 3 || !strings.Contains(long, short) {
		return 0
	}
	return substringCap * float64(len(short)) / float64(len(long))
}

// BigramJaccard is the Jaccard similarity of the character bigram sets.
func BigramJaccard(a, b string) float64 {
	ga, gb := bigrams(a), bigrams(b)
	if len(ga) == 0 || len(gb) == 0 {
		return 0
	}
	inter := 0
	for g := range ga {
		if gb[g] {
			inter++
		}
	}
	union := len(ga) + len(gb) - inter
	return float64(inter) / float64(union)
}

func bigrams(s string) map[string]bool {
	r := []rune(s)
	out := make(map[string]bool, len(r))
	for i := 0; i+1 < len(r); i++ {
		out[string(r[i:i+2])] = true
	}
	return out
}
