package mapping

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"github.com/rpattn/tabimport/internal/detect"
	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/signal"
)

const (
	weightHeader       = 0.35
	weightType         = 0.25
	weightPattern      = 0.20
	weightDistribution = 0.10
	weightLearned      = 0.10

	headerFloor    = 0.5
	candidateFloor = 0.3

	// MinConfidence is the score below which a mapped column is reported as
	// needing review.
	MinConfidence = 0.6
	// HighConfidence marks mappings that can be applied without review.
	HighConfidence = 0.85

	historyMatch   = 0.9
	historyNeutral = 0.5

	datetimeLayout = "2006-01-02 15:04:05"
)

// Learnings stores confirmed column resolutions.
type Learnings interface {
	FindByColumn(ctx context.Context, column, entityType string) ([]domain.ImportMappingLearning, error)
	FindByFingerprint(ctx context.Context, fingerprint string) ([]domain.ImportMappingLearning, error)
	Save(ctx context.Context, l *domain.ImportMappingLearning) error
}

// LearnedSignal is the accumulated confirmations of one field for a column.
type LearnedSignal struct {
	Field      string  `json:"field"`
	Successes  int     `json:"successes"`
	Confidence float64 `json:"confidence"`
}

// ColumnSignals is the raw evidence gathered for one column.
type ColumnSignals struct {
	Type         signal.TypeSignal         `json:"type"`
	Distribution signal.DistributionSignal `json:"distribution"`
	Pattern      signal.PatternSignal      `json:"pattern"`
	Learned      []LearnedSignal           `json:"learned,omitempty"`
}

// Contribution breaks a candidate score down by signal.
type Contribution struct {
	Header       float64 `json:"header"`
	Type         float64 `json:"data_type"`
	Pattern      float64 `json:"pattern"`
	Distribution float64 `json:"distribution"`
	Learned      float64 `json:"learned"`
}

// Total is the capped sum of all contributions.
func (c Contribution) Total() float64 {
	return signal.Round(math.Min(1, c.Header+c.Type+c.Pattern+c.Distribution+c.Learned), 4)
}

// Winning names the signal that contributed most.
func (c Contribution) Winning() string {
	best, name := 0.0, ""
	for _, s := range []struct {
		name  string
		value float64
	}{
		{"header", c.Header},
		{"data_type", c.Type},
		{"pattern", c.Pattern},
		{"distribution", c.Distribution},
		{"learned", c.Learned},
	} {
		if s.value > best {
			best, name = s.value, s.name
		}
	}
	return name
}

// Candidate is one scored column to field pairing.
type Candidate struct {
	Field        string       `json:"field"`
	EntityType   string       `json:"entity_type"`
	Confidence   float64      `json:"confidence"`
	Contribution Contribution `json:"contribution"`

	transform *signal.Transform
}

// ColumnSuggestion is the chosen field for one column.
type ColumnSuggestion struct {
	Column         string                 `json:"column"`
	Field          string                 `json:"field"`
	EntityType     string                 `json:"entity_type"`
	Confidence     float64                `json:"confidence"`
	Contribution   Contribution           `json:"contribution"`
	Winning        string                 `json:"winning_signal"`
	Transformation *domain.Transformation `json:"transformation,omitempty"`
	Alternatives   []Candidate            `json:"alternatives,omitempty"`
	Signals        ColumnSignals          `json:"signals"`
}

// Suggestion is a proposed mapping for a whole header set.
type Suggestion struct {
	EntityType       string                    `json:"entity_type"`
	EntityConfidence float64                   `json:"entity_confidence"`
	Composite        bool                      `json:"is_composite"`
	Secondary        []string                  `json:"secondary_types,omitempty"`
	Strategy         detect.ExtractionStrategy `json:"strategy"`
	Columns          []ColumnSuggestion        `json:"columns"`
	Unmapped         []string                  `json:"unmapped,omitempty"`
	LowConfidence    []string                  `json:"low_confidence,omitempty"`
	Missing          []string                  `json:"missing_required,omitempty"`
	Completeness     float64                   `json:"completeness"`
	History          bool                      `json:"history_match"`
	Fingerprint      string                    `json:"fingerprint"`
	Confidence       float64                   `json:"confidence"`
	Detection        detect.Detection          `json:"detection"`
}

// Column returns the suggestion for a column.
func (s *Suggestion) Column(name string) (ColumnSuggestion, bool) {
	for _, c := range s.Columns {
		if c.Column == name {
			return c, true
		}
	}
	return ColumnSuggestion{}, false
}

// ToMapping builds an import mapping from the suggestion.
func (s *Suggestion) ToMapping(name string) *domain.ImportMapping {
	fields := make([]domain.FieldMapping, 0, len(s.Columns))
	for _, c := range s.Columns {
		conf := c.Confidence
		fields = append(fields, domain.FieldMapping{
			Column:         c.Column,
			TargetField:    c.Field,
			Transformation: c.Transformation,
			Confidence:     &conf,
			Source:         "suggested",
		})
	}
	m := domain.NewImportMapping(name, s.EntityType, fields)
	m.Description = fmt.Sprintf("suggested for %d columns, confidence %.2f", len(s.Columns), s.Confidence)
	if s.Strategy.GroupingKey != "" {
		m.Options = map[string]string{"grouping_key": s.Strategy.GroupingKey}
	}
	return m
}

// Synthesizer combines column signals into a mapping suggestion.
type Synthesizer struct {
	detector  *detect.Detector
	learnings Learnings
	logger    *slog.Logger
}

// NewSynthesizer returns a synthesizer. learnings may be nil, in which case
// no history is consulted or recorded.
func NewSynthesizer(detector *detect.Detector, learnings Learnings) *Synthesizer {
	if detector == nil {
		detector = detect.NewDetector()
	}
	return &Synthesizer{detector: detector, learnings: learnings, logger: slog.Default()}
}

// WithLogger sets the logger; nil keeps the current one.
func (s *Synthesizer) WithLogger(logger *slog.Logger) *Synthesizer {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Suggest detects the entity type of a dataset and picks a field for every
// column it can.
func (s *Synthesizer) Suggest(ctx context.Context, headers []string, rows []map[string]string) (*Suggestion, error) {
	det := s.detector.Detect(headers)
	out := &Suggestion{
		Detection:    det,
		Fingerprint:  Fingerprint(headers),
		Composite:    det.Composite,
		Secondary:    det.Secondary,
		Completeness: 1,
	}

	types := det.Types()
	if !det.Detected && len(det.Candidates) > 0 && det.Candidates[0].Score > 0 {
		types = []string{det.Candidates[0].Type}
	}
	if len(types) > 0 {
		out.EntityType = types[0]
		out.EntityConfidence = det.Confidence
	}
	out.Strategy = s.detector.Strategy(det, headers)

	history, err := s.history(ctx, out.Fingerprint)
	if err != nil {
		return nil, err
	}
	out.History = len(history) > 0

	fields := catalogFor(types)
	columns := make([]columnEvidence, 0, len(headers))
	for _, h := range headers {
		ev, err := s.scoreColumn(ctx, h, columnValues(rows, h), fields, history)
		if err != nil {
			return nil, err
		}
		columns = append(columns, ev)
	}

	assign(out, columns)
	combineDateTime(out, columns)
	s.finish(out)

	s.logger.Debug("mapping suggested",
		"entity_type", out.EntityType,
		"mapped", len(out.Columns),
		"unmapped", len(out.Unmapped),
		"confidence", out.Confidence)
	return out, nil
}

type columnEvidence struct {
	header     string
	signals    ColumnSignals
	candidates []Candidate
}

func (s *Synthesizer) history(ctx context.Context, fingerprint string) ([]domain.ImportMappingLearning, error) {
	if s.learnings == nil {
		return nil, nil
	}
	hist, err := s.learnings.FindByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, fmt.Errorf("load mapping history: %w", err)
	}
	return hist, nil
}

func (s *Synthesizer) scoreColumn(ctx context.Context, header string, values []string, fields []Field, history []domain.ImportMappingLearning) (columnEvidence, error) {
	ev := columnEvidence{
		header: header,
		signals: ColumnSignals{
			Type:         signal.InferDataType(values),
			Distribution: signal.AnalyzeDistribution(values),
			Pattern:      signal.DetectPattern(values),
		},
	}

	learned, err := s.learnedVotes(ctx, header, fields, history)
	if err != nil {
		return ev, err
	}
	for field, n := range learned {
		ev.signals.Learned = append(ev.signals.Learned, LearnedSignal{Field: field, Successes: n, Confidence: learnedConfidence(n)})
	}
	sort.Slice(ev.signals.Learned, func(i, j int) bool { return ev.signals.Learned[i].Field < ev.signals.Learned[j].Field })

	headerScores := map[string]map[string]float64{}
	for _, f := range fields {
		if _, ok := headerScores[f.EntityType]; ok {
			continue
		}
		scores := map[string]float64{}
		for _, m := range signal.ScoreHeader(header, f.EntityType) {
			scores[m.Field] = m.Score
		}
		headerScores[f.EntityType] = scores
	}

	for _, f := range fields {
		var c Contribution
		if hs := headerScores[f.EntityType][f.Name]; hs > headerFloor {
			c.Header = weightHeader * hs
		}
		if f.acceptsType(ev.signals.Type.Type) {
			c.Type = weightType
		}
		pm := creditedPattern(ev.signals.Pattern, f.Name)
		if pm != nil {
			c.Pattern = weightPattern * pm.Confidence
		}
		if profileMatches(f.Profile, ev.signals.Type, ev.signals.Distribution) {
			c.Distribution = weightDistribution
		}
		if n := learned[f.Name]; n > 0 {
			c.Learned = weightLearned * learnedConfidence(n)
		}

		cand := Candidate{Field: f.Name, EntityType: f.EntityType, Contribution: c, Confidence: c.Total()}
		if pm != nil {
			cand.transform = pm.Transform
		}
		if cand.Confidence >= candidateFloor && (c.Header > 0 || c.Pattern > 0 || c.Learned > 0) {
			ev.candidates = append(ev.candidates, cand)
		}
	}
	sort.SliceStable(ev.candidates, func(i, j int) bool { return ev.candidates[i].Confidence > ev.candidates[j].Confidence })
	return ev, nil
}

// learnedVotes sums confirmations per field for a column, from per-column
// learnings and from learnings stored under the header set fingerprint.
func (s *Synthesizer) learnedVotes(ctx context.Context, header string, fields []Field, history []domain.ImportMappingLearning) (map[string]int, error) {
	votes := map[string]int{}
	if s.learnings == nil {
		return votes, nil
	}
	column := signal.NormalizeHeader(header)
	seenType := map[string]bool{}
	for _, f := range fields {
		if seenType[f.EntityType] {
			continue
		}
		seenType[f.EntityType] = true
		ls, err := s.learnings.FindByColumn(ctx, column, f.EntityType)
		if err != nil {
			return nil, fmt.Errorf("load learnings for %q: %w", header, err)
		}
		for _, l := range ls {
			if l.HeaderFingerprint == "" {
				votes[l.TargetField] += l.SuccessCount
			}
		}
	}
	for _, l := range history {
		if l.ColumnName == column {
			votes[l.TargetField] += l.SuccessCount
		}
	}
	return votes, nil
}

func learnedConfidence(n int) float64 {
	return math.Min(1, float64(n)/10)
}

// creditedPattern returns the most confident pattern whose suggested field is
// the field itself or one of its underscore-separated parts.
func creditedPattern(ps signal.PatternSignal, field string) *signal.PatternMatch {
	for i := range ps.Patterns {
		p := &ps.Patterns[i]
		if p.SuggestedField == "" {
			continue
		}
		if p.SuggestedField == field || strings.Contains("_"+field+"_", "_"+p.SuggestedField+"_") {
			return p
		}
	}
	return nil
}

func profileMatches(p Profile, ts signal.TypeSignal, d signal.DistributionSignal) bool {
	switch p {
	case ProfileTemporal:
		return ts.Type.Temporal()
	case ProfileQuantity:
		return d.Numeric != nil && d.Numeric.Min >= 0 && d.Numeric.Max <= 10000
	case ProfileMoney:
		return d.Numeric != nil && d.Numeric.Min >= 0
	case ProfileIdentifier:
		return d.NonNull > 0 && d.UniquenessRatio >= 0.5
	case ProfileText:
		return d.Length != nil && d.Length.Avg >= 2
	}
	return false
}

// assign gives every field to at most one column, best score first.
func assign(out *Suggestion, columns []columnEvidence) {
	type pick struct {
		col  int
		cand Candidate
	}
	var all []pick
	for i, ev := range columns {
		for _, c := range ev.candidates {
			all = append(all, pick{i, c})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].cand.Confidence > all[j].cand.Confidence })

	chosen := make([]*Candidate, len(columns))
	taken := map[string]bool{}
	for _, p := range all {
		if chosen[p.col] != nil || taken[p.cand.Field] {
			continue
		}
		c := p.cand
		chosen[p.col] = &c
		taken[c.Field] = true
	}

	for i, ev := range columns {
		c := chosen[i]
		if c == nil {
			out.Unmapped = append(out.Unmapped, ev.header)
			continue
		}
		cs := ColumnSuggestion{
			Column:       ev.header,
			Field:        c.Field,
			EntityType:   c.EntityType,
			Confidence:   c.Confidence,
			Contribution: c.Contribution,
			Winning:      c.Contribution.Winning(),
			Signals:      ev.signals,
		}
		if c.transform != nil {
			cs.Transformation = &domain.Transformation{Type: c.transform.Type, Params: copyParams(c.transform.Params)}
		}
		for _, alt := range ev.candidates {
			if alt.Field != c.Field && len(cs.Alternatives) < 3 {
				cs.Alternatives = append(cs.Alternatives, alt)
			}
		}
		out.Columns = append(out.Columns, cs)
	}
}

// combineDateTime folds a time column into the mapped date column.
func combineDateTime(out *Suggestion, columns []columnEvidence) {
	dateIdx := -1
	for i, c := range out.Columns {
		if shapes[c.Field].profile == ProfileTemporal {
			dateIdx = i
			break
		}
	}
	if dateIdx < 0 {
		return
	}
	dateCol := out.Columns[dateIdx].Column

	timeCol := ""
	for _, ev := range columns {
		if ev.header == dateCol {
			continue
		}
		if isTimeHeader(ev.header) || ev.signals.Type.Type == signal.TypeTime {
			timeCol = ev.header
			break
		}
	}
	if timeCol == "" {
		return
	}

	params := map[string]string{"time_column": timeCol, "layout": datetimeLayout}
	if t := out.Columns[dateIdx].Transformation; t != nil && t.Params["layout"] != "" {
		params["date_layout"] = t.Params["layout"]
	}
	out.Columns[dateIdx].Transformation = &domain.Transformation{Type: "combine_datetime", Params: params}

	kept := out.Columns[:0]
	for _, c := range out.Columns {
		if c.Column != timeCol {
			kept = append(kept, c)
		}
	}
	out.Columns = kept
	unmapped := out.Unmapped[:0]
	for _, h := range out.Unmapped {
		if h != timeCol {
			unmapped = append(unmapped, h)
		}
	}
	out.Unmapped = unmapped
}

func isTimeHeader(h string) bool {
	for _, tok := range strings.Split(signal.NormalizeHeader(h), "_") {
		if tok == "time" {
			return true
		}
	}
	return false
}

func (s *Synthesizer) finish(out *Suggestion) {
	required := requiredFields[out.EntityType]
	mapped := map[string]bool{}
	sum := 0.0
	for _, c := range out.Columns {
		mapped[c.Field] = true
		sum += c.Confidence
		if c.Confidence < MinConfidence {
			out.LowConfidence = append(out.LowConfidence, c.Column)
		}
	}
	for _, f := range required {
		if !mapped[f] {
			out.Missing = append(out.Missing, f)
		}
	}
	if len(required) > 0 {
		out.Completeness = signal.Round(float64(len(required)-len(out.Missing))/float64(len(required)), 4)
	}

	mean := 0.0
	if len(out.Columns) > 0 {
		mean = sum / float64(len(out.Columns))
	}
	hist := historyNeutral
	if out.History {
		hist = historyMatch
	}
	overall := 0.3*out.EntityConfidence + 0.3*out.Completeness + 0.2*hist + 0.2*mean
	out.Confidence = signal.Round(math.Max(0, math.Min(1, overall)), 4)
}

// Fingerprint identifies a header set independent of column order and case.
func Fingerprint(headers []string) string {
	norm := make([]string, 0, len(headers))
	for _, h := range headers {
		norm = append(norm, strings.ToLower(strings.TrimSpace(h)))
	}
	sort.Strings(norm)
	sum := md5.Sum([]byte(strings.Join(norm, "|")))
	return hex.EncodeToString(sum[:])
}

func columnValues(rows []map[string]string, header string) []string {
	out := make([]string, 0, len(rows))
	for _, r := range rows {
		out = append(out, r[header])
	}
	return out
}

func copyParams(p map[string]string) map[string]string {
	if p == nil {
		return nil
	}
	out := make(map[string]string, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
