// Package classify applies the pattern rule set to candidate tags.
//
// Rules are evaluated in priority order with exclusions taking
// precedence, then the first consuming rule (match, replace, expand)
// assigns the class. Insert rules synthesize extra tags without
// consuming the candidate. Output is deterministic: the same candidates
// and rule set always produce the same tags.
package classify

import (
	"sort"
	"strconv"
	"strings"

	"github.com/tsawler/tagsight/model"
	"github.com/tsawler/tagsight/patterns"
)

// Config holds classification policy.
type Config struct {
	// MinConfidence discards any classified tag whose source confidence
	// falls below it (0-100). Discards are counted, not errors.
	MinConfidence float64

	// DefaultClass is assigned to candidates no consuming rule matches.
	// Empty means unmatched candidates are dropped (and counted). The
	// policy is explicit either way; there is no silent middle ground.
	DefaultClass string
}

// DefaultConfig returns the standard policy: confidence floor 60,
// unmatched candidates dropped.
func DefaultConfig() Config {
	return Config{
		MinConfidence: 60,
		DefaultClass:  "",
	}
}

// Stats counts classification outcomes for one drawing or batch.
// Per-candidate discards accumulate here as data rather than surfacing
// as errors, so batch statistics stay accurate under partial failure.
type Stats struct {
	Candidates    int // candidates examined
	Excluded      int // dropped by exclude rules
	Unmatched     int // no rule matched and no default class configured
	Defaulted     int // classified with the default class
	LowConfidence int // discarded by the confidence floor
	Synthesized   int // extra tags from insert/expand rules
	Classified    int // tags produced
}

// Add accumulates another stats block into this one.
func (s *Stats) Add(other Stats) {
	s.Candidates += other.Candidates
	s.Excluded += other.Excluded
	s.Unmatched += other.Unmatched
	s.Defaulted += other.Defaulted
	s.LowConfidence += other.LowConfidence
	s.Synthesized += other.Synthesized
	s.Classified += other.Classified
}

// Classifier applies a rule set to candidates. A Classifier is
// immutable and safe for concurrent use; the rule set is shared
// read-only across all drawing pipelines.
type Classifier struct {
	rules *patterns.RuleSet
	cfg   Config
}

// New creates a classifier over a compiled rule set with default policy.
func New(rules *patterns.RuleSet) *Classifier {
	return NewWithConfig(rules, DefaultConfig())
}

// NewWithConfig creates a classifier with custom policy.
func NewWithConfig(rules *patterns.RuleSet, cfg Config) *Classifier {
	return &Classifier{rules: rules, cfg: cfg}
}

// Classify evaluates the rule set over the candidates of one drawing
// and returns the final tags. Tags are unique per ID within the
// drawing: when several candidates or synthesized tags collapse onto
// one ID, the highest-confidence one wins.
func (c *Classifier) Classify(cands []*model.CandidateTag, drawing string) ([]model.ClassifiedTag, Stats) {
	var stats Stats
	var out []model.ClassifiedTag

	for _, cand := range cands {
		stats.Candidates++

		if c.excluded(cand.Text) {
			stats.Excluded++
			continue
		}

		// Insert rules fire independently of classification.
		out = append(out, c.applyInserts(cand, drawing, &stats)...)

		tags, outcome := c.classifyOne(cand, drawing)
		switch outcome {
		case outcomeDefaulted:
			stats.Defaulted++
		case outcomeUnmatched:
			stats.Unmatched++
			continue
		}
		if len(tags) > 1 {
			stats.Synthesized += len(tags) - 1
		}
		out = append(out, tags...)
	}

	out = c.filterConfidence(out, &stats)
	out = dedupeByID(out)
	stats.Classified = len(out)
	return out, stats
}

type outcome int

const (
	outcomeMatched outcome = iota
	outcomeDefaulted
	outcomeUnmatched
)

// classifyOne finds the first consuming rule for a candidate and builds
// its tag(s).
func (c *Classifier) classifyOne(cand *model.CandidateTag, drawing string) ([]model.ClassifiedTag, outcome) {
	for _, rule := range c.rules.Consumers() {
		if !rule.Matches(cand.Text) {
			continue
		}

		switch act := rule.Action.(type) {
		case patterns.MatchAction:
			return []model.ClassifiedTag{newTag(cand.Text, rule.Class, rule.Context, cand, drawing, false)}, outcomeMatched

		case patterns.ReplaceAction:
			id := act.Original.ReplaceAllString(cand.Text, act.Replacement)
			return []model.ClassifiedTag{newTag(id, rule.Class, rule.Context, cand, drawing, false)}, outcomeMatched

		case patterns.ExpandAction:
			return expandTags(cand, rule, act, drawing), outcomeMatched
		}
	}

	if c.cfg.DefaultClass != "" {
		return []model.ClassifiedTag{newTag(cand.Text, c.cfg.DefaultClass, nil, cand, drawing, false)}, outcomeDefaulted
	}
	return nil, outcomeUnmatched
}

// excluded reports whether any exclude rule matches the text.
// Exclusions are evaluated before everything else; a candidate matching
// both an exclude and a match rule yields nothing.
func (c *Classifier) excluded(text string) bool {
	for _, rule := range c.rules.Excludes() {
		if rule.Matches(text) {
			return true
		}
	}
	return false
}

// applyInserts synthesizes tags from every insert rule matching the
// candidate. Synthesized tags inherit the source confidence.
func (c *Classifier) applyInserts(cand *model.CandidateTag, drawing string, stats *Stats) []model.ClassifiedTag {
	var out []model.ClassifiedTag
	for _, rule := range c.rules.Inserts() {
		act := rule.Action.(patterns.InsertAction)

		m := rule.Pattern.FindStringSubmatchIndex(cand.Text)
		if m == nil {
			continue
		}
		id := string(rule.Pattern.ExpandString(nil, act.Template, cand.Text, m))
		if id == "" {
			continue
		}

		class := act.Class
		if class == "" {
			class = rule.Class
		}
		out = append(out, newTag(id, class, rule.Context, cand, drawing, true))
		stats.Synthesized++
	}
	return out
}

// expandTags expands a range designator (e.g. "A-C" or "01-03") into
// one tag per value. A designator that cannot be interpreted leaves the
// candidate classified as-is rather than discarding it.
func expandTags(cand *model.CandidateTag, rule *patterns.Rule, act patterns.ExpandAction, drawing string) []model.ClassifiedTag {
	loc := act.SubPattern.FindStringIndex(cand.Text)
	if loc == nil {
		return []model.ClassifiedTag{newTag(cand.Text, rule.Class, rule.Context, cand, drawing, false)}
	}

	designator := cand.Text[loc[0]:loc[1]]
	values := expandRange(designator, act.Separator, act.Interpolate)
	if len(values) == 0 {
		return []model.ClassifiedTag{newTag(cand.Text, rule.Class, rule.Context, cand, drawing, false)}
	}

	out := make([]model.ClassifiedTag, 0, len(values))
	for i, v := range values {
		id := cand.Text[:loc[0]] + v + cand.Text[loc[1]:]
		out = append(out, newTag(id, rule.Class, rule.Context, cand, drawing, i > 0))
	}
	return out
}

// expandRange interprets a two-endpoint range designator. Letter
// endpoints expand through the alphabet ("A"-"C" -> A B C), numeric
// endpoints through integers preserving zero padding ("01"-"03" -> 01
// 02 03). Without interpolation only the endpoints are produced.
// Returns nil when the designator is not a usable range.
func expandRange(designator, sep string, interpolate bool) []string {
	parts := strings.SplitN(designator, sep, 2)
	if len(parts) != 2 {
		return nil
	}
	lo, hi := parts[0], parts[1]
	if lo == "" || hi == "" {
		return nil
	}

	if !interpolate {
		return []string{lo, hi}
	}

	// Single-letter range.
	if len(lo) == 1 && len(hi) == 1 && isUpperAlpha(lo[0]) && isUpperAlpha(hi[0]) {
		if lo[0] > hi[0] {
			return nil
		}
		var vals []string
		for ch := lo[0]; ch <= hi[0]; ch++ {
			vals = append(vals, string(ch))
		}
		return vals
	}

	// Numeric range, padding preserved from the low endpoint.
	nlo, err1 := strconv.Atoi(lo)
	nhi, err2 := strconv.Atoi(hi)
	if err1 != nil || err2 != nil || nlo > nhi {
		return nil
	}
	width := len(lo)
	var vals []string
	for n := nlo; n <= nhi; n++ {
		s := strconv.Itoa(n)
		for len(s) < width {
			s = "0" + s
		}
		vals = append(vals, s)
	}
	return vals
}

func isUpperAlpha(b byte) bool {
	return b >= 'A' && b <= 'Z'
}

// filterConfidence drops tags below the confidence floor, counting the
// discards.
func (c *Classifier) filterConfidence(tags []model.ClassifiedTag, stats *Stats) []model.ClassifiedTag {
	if c.cfg.MinConfidence <= 0 {
		return tags
	}
	kept := tags[:0]
	for _, tag := range tags {
		if tag.Confidence < c.cfg.MinConfidence {
			stats.LowConfidence++
			continue
		}
		kept = append(kept, tag)
	}
	return kept
}

// dedupeByID keeps one tag per unique ID, preferring the
// highest-confidence instance, and returns the result in a stable
// order.
func dedupeByID(tags []model.ClassifiedTag) []model.ClassifiedTag {
	if len(tags) <= 1 {
		return tags
	}

	byID := make(map[string]int, len(tags))
	var out []model.ClassifiedTag
	for _, tag := range tags {
		if i, seen := byID[tag.ID]; seen {
			if tag.Confidence > out[i].Confidence {
				out[i] = tag
			}
			continue
		}
		byID[tag.ID] = len(out)
		out = append(out, tag)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// newTag builds a classified tag from a candidate. The association to
// the source drawing is attached here so the export model is complete
// without further lookups.
func newTag(id, class string, ctx model.Context, cand *model.CandidateTag, drawing string, synthesized bool) model.ClassifiedTag {
	tag := model.ClassifiedTag{
		ID:            id,
		ClassID:       class,
		Context:       ctx,
		Confidence:    cand.Confidence,
		SourceDrawing: drawing,
		Synthesized:   synthesized,
	}
	if drawing != "" {
		tag.Associations = []model.Association{{Type: model.AssociationReferencedIn, Object: drawing}}
	}
	return tag
}
