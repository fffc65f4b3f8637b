package detect

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
)

// SignalWeights is the evidence weight per signal kind.
var SignalWeights = map[SignalKind]float64{
	SignalTaxID:       7,
	SignalPhone:       6,
	SignalURL:         5,
	SignalEmail:       4,
	SignalAddressHash: 3,
	SignalAlias:       2,
	SignalBrand:       2,
	SignalPostal:      1.5,
	SignalStoreNumber: 1,
}

// FingerprintIndex resolves a signal to the vendors that carry it.
type FingerprintIndex interface {
	Lookup(ctx context.Context, kind SignalKind, value string) ([]string, error)
}

// VendorScore is the accumulated evidence for one vendor.
type VendorScore struct {
	VendorID string   `json:"vendor_id"`
	Score    float64  `json:"score"`
	Evidence []Signal `json:"evidence"`
}

// Identification is the outcome of Identifier.Identify.
type Identification struct {
	Identified bool          `json:"identified"`
	VendorID   string        `json:"vendor_id,omitempty"`
	Confidence float64       `json:"confidence"`
	Signals    []Signal      `json:"signals"`
	Ranking    []VendorScore `json:"ranking,omitempty"`
}

// Identifier ranks known vendors against receipt text.
type Identifier struct {
	index FingerprintIndex
}

// NewIdentifier returns an identifier backed by index.
func NewIdentifier(index FingerprintIndex) *Identifier {
	return &Identifier{index: index}
}

// Identify extracts signals from lines, looks each up in the index and ranks
// vendors by total weight. Confidence grows with the margin between the top
// two scores relative to the top score.
func (i *Identifier) Identify(ctx context.Context, lines []string) (Identification, error) {
	signals := ExtractSignals(lines)
	out := Identification{Signals: signals}

	scores := map[string]*VendorScore{}
	for _, s := range signals {
		kind, value := s.Kind, s.Value
		if kind == SignalEmail {
			// Addresses vary per mailbox; vendors are indexed by domain.
			if at := strings.LastIndex(value, "@"); at >= 0 {
				kind, value = SignalURL, value[at+1:]
			}
		}
		ids, err := i.index.Lookup(ctx, kind, value)
		if err != nil {
			return out, fmt.Errorf("lookup %s: %w", s.Kind, err)
		}
		for _, id := range ids {
			vs, ok := scores[id]
			if !ok {
				vs = &VendorScore{VendorID: id}
				scores[id] = vs
			}
			vs.Score += SignalWeights[s.Kind]
			vs.Evidence = append(vs.Evidence, s)
		}
	}
	if len(scores) == 0 {
		return out, nil
	}

	for _, vs := range scores {
		out.Ranking = append(out.Ranking, *vs)
	}
	sort.Slice(out.Ranking, func(a, b int) bool {
		if out.Ranking[a].Score != out.Ranking[b].Score {
			return out.Ranking[a].Score > out.Ranking[b].Score
		}
		return out.Ranking[a].VendorID < out.Ranking[b].VendorID
	})

	top := out.Ranking[0].Score
	second := 0.0
	if len(out.Ranking) > 1 {
		second = out.Ranking[1].Score
	}
	margin := math.Max(0, top-second)
	out.Confidence = math.Round((1-math.Exp(-margin/math.Max(1, top)))*1000) / 1000
	out.VendorID = out.Ranking[0].VendorID
	out.Identified = true
	return out, nil
}

// StaticIndex is an in-memory FingerprintIndex.
type StaticIndex struct {
	entries map[SignalKind]map[string][]string
}

// NewStaticIndex returns an empty index.
func NewStaticIndex() *StaticIndex {
	return &StaticIndex{entries: map[SignalKind]map[string][]string{}}
}

// Add registers value as a fingerprint of vendorID.
func (s *StaticIndex) Add(vendorID string, kind SignalKind, value string) {
	value = NormalizeFingerprint(kind, value)
	if s.entries[kind] == nil {
		s.entries[kind] = map[string][]string{}
	}
	for _, id := range s.entries[kind][value] {
		if id == vendorID {
			return
		}
	}
	s.entries[kind][value] = append(s.entries[kind][value], vendorID)
}

// Lookup implements FingerprintIndex. Phone numbers match on their last ten
// digits so country prefixes do not matter.
func (s *StaticIndex) Lookup(_ context.Context, kind SignalKind, value string) ([]string, error) {
	value = NormalizeFingerprint(kind, value)
	if kind != SignalPhone {
		return append([]string(nil), s.entries[kind][value]...), nil
	}
	var out []string
	for stored, ids := range s.entries[kind] {
		if phoneSuffix(stored) == phoneSuffix(value) {
			out = append(out, ids...)
		}
	}
	sort.Strings(out)
	return out, nil
}

// NormalizeFingerprint brings a fingerprint value into the form signals use.
func NormalizeFingerprint(kind SignalKind, value string) string {
	value = strings.TrimSpace(value)
	switch kind {
	case SignalPhone:
		return reDigits.ReplaceAllString(value, "")
	case SignalURL:
		v := strings.ToLower(value)
		v = strings.TrimPrefix(v, "https://")
		v = strings.TrimPrefix(v, "http://")
		v = strings.TrimPrefix(v, "www.")
		return strings.TrimSuffix(v, "/")
	case SignalTaxID, SignalStoreNumber, SignalPostal:
		return strings.ToUpper(strings.ReplaceAll(value, " ", ""))
	case SignalAddressHash:
		return value
	default:
		return strings.ToLower(value)
	}
}

func phoneSuffix(digits string) string {
	if len(digits) > 10 {
		return digits[len(digits)-10:]
	}
	return digits
}
