// Package patterns loads and indexes the tag classification rules.
//
// Rules come from an XML mapping file (see [Load]) and are compiled
// once at startup. A [RuleSet] is immutable after loading and safe for
// unsynchronized concurrent reads by all pipeline workers.
package patterns

import (
	"fmt"
	"regexp"
	"sort"

	"github.com/tsawler/tagsight/model"
)

// Kind discriminates the rule action variants.
type Kind int

const (
	// KindMatch classifies a candidate without altering its text
	KindMatch Kind = iota
	// KindExclude drops a candidate entirely
	KindExclude
	// KindReplace classifies and rewrites the matched text
	KindReplace
	// KindInsert synthesizes additional tags from captured groups
	// without consuming the candidate
	KindInsert
	// KindExpand classifies and expands a range suffix into one tag
	// per value
	KindExpand
)

// String returns a human-readable representation of the kind
func (k Kind) String() string {
	switch k {
	case KindMatch:
		return "match"
	case KindExclude:
		return "exclude"
	case KindReplace:
		return "replace"
	case KindInsert:
		return "insert"
	case KindExpand:
		return "expand"
	default:
		return "unknown"
	}
}

// Action is the tagged variant attached to a rule. Exactly one concrete
// action type exists per rule kind; consumers dispatch with a type
// switch rather than inspecting flags.
type Action interface {
	Kind() Kind
}

// MatchAction classifies the candidate as the rule's class.
type MatchAction struct{}

// Kind returns KindMatch.
func (MatchAction) Kind() Kind { return KindMatch }

// ExcludeAction drops the candidate. Exclusions always win over
// classification at the same priority tier.
type ExcludeAction struct{}

// Kind returns KindExclude.
func (ExcludeAction) Kind() Kind { return KindExclude }

// ReplaceAction classifies the candidate and rewrites the portion of
// its text matching Original with Replacement before the tag is
// finalized.
type ReplaceAction struct {
	Original    *regexp.Regexp
	Replacement string
}

// Kind returns KindReplace.
func (ReplaceAction) Kind() Kind { return KindReplace }

// InsertAction synthesizes an additional tag from the rule pattern's
// captured groups. Template follows regexp.Expand syntax ($1, ${name}).
// The synthesized tag takes Class, or the rule's class when Class is
// empty, and inherits the source candidate's confidence.
type InsertAction struct {
	Template string
	Class    string
}

// Kind returns KindInsert.
func (InsertAction) Kind() Kind { return KindInsert }

// ExpandAction classifies the candidate and expands a range designator
// into one tag per value. SubPattern locates the designator inside the
// tag text (e.g. "A-C" for units A through C); Separator splits its two
// endpoints. With Interpolate set the values between the endpoints are
// generated as well.
type ExpandAction struct {
	SubPattern  *regexp.Regexp
	Separator   string
	Interpolate bool
}

// Kind returns KindExpand.
func (ExpandAction) Kind() Kind { return KindExpand }

// Rule is one ordered classification rule. Rules are immutable for the
// run and shared read-only across all classification calls.
type Rule struct {
	// Pattern is the compiled regex. Consuming rules (match, replace,
	// expand) must match the entire candidate text; exclude and insert
	// rules match anywhere in it.
	Pattern *regexp.Regexp

	// Source is the regex exactly as written in the mapping file
	Source string

	// Class is the target class ID, e.g. "Equipment"
	Class string

	// Context is an optional hierarchy hint attached to tags this rule
	// classifies; overrides the configured default context
	Context model.Context

	// Priority orders evaluation; lower values are evaluated first
	Priority int

	// Position is the rule's 1-based position in the mapping file,
	// used for stable ordering and error reporting
	Position int

	// Action is the rule's behavior variant
	Action Action

	// anchored is Pattern wrapped in \A(?:...)\z, used for whole-text
	// matching by consuming rules; filled in by NewRuleSet
	anchored *regexp.Regexp
}

// Matches reports whether the rule applies to the given text. Exclude
// and insert rules match anywhere in the text; consuming rules (match,
// replace, expand) must match all of it.
func (r *Rule) Matches(text string) bool {
	switch r.Action.Kind() {
	case KindExclude, KindInsert:
		return r.Pattern.MatchString(text)
	default:
		if r.anchored != nil {
			return r.anchored.MatchString(text)
		}
		return r.Pattern.FindString(text) == text
	}
}

// RuleSet is the ordered, compiled rule collection. The zero value is
// an empty set that classifies nothing.
type RuleSet struct {
	rules []*Rule

	excludes  []*Rule // evaluation order: priority, then file position
	inserts   []*Rule
	consumers []*Rule // match, replace, expand
}

// NewRuleSet builds a rule set from already-compiled rules. Rules are
// indexed by kind and ordered by ascending priority, with file position
// breaking ties, so evaluation is deterministic.
func NewRuleSet(rules []*Rule) *RuleSet {
	rs := &RuleSet{rules: rules}
	for _, r := range rules {
		if r.anchored == nil && r.Pattern != nil {
			// Anchoring a valid pattern cannot fail to compile.
			if re, err := regexp.Compile(`\A(?:` + r.Pattern.String() + `)\z`); err == nil {
				r.anchored = re
			}
		}
		switch r.Action.Kind() {
		case KindExclude:
			rs.excludes = append(rs.excludes, r)
		case KindInsert:
			rs.inserts = append(rs.inserts, r)
		default:
			rs.consumers = append(rs.consumers, r)
		}
	}
	for _, group := range [][]*Rule{rs.excludes, rs.inserts, rs.consumers} {
		sort.SliceStable(group, func(i, j int) bool {
			if group[i].Priority != group[j].Priority {
				return group[i].Priority < group[j].Priority
			}
			return group[i].Position < group[j].Position
		})
	}
	return rs
}

// Len returns the number of rules in the set.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}

// Rules returns all rules in file order.
func (rs *RuleSet) Rules() []*Rule {
	return rs.rules
}

// Excludes returns the exclusion rules in evaluation order.
func (rs *RuleSet) Excludes() []*Rule {
	return rs.excludes
}

// Inserts returns the insert rules in evaluation order.
func (rs *RuleSet) Inserts() []*Rule {
	return rs.inserts
}

// Consumers returns the match/replace/expand rules in evaluation order.
func (rs *RuleSet) Consumers() []*Rule {
	return rs.consumers
}

// ConfigurationError reports an invalid rule in the mapping file,
// identifying the offending rule by position. It is fatal at load time:
// no processing starts with a broken rule set.
type ConfigurationError struct {
	Position int    // 1-based rule position in the file, 0 for file-level errors
	Pattern  string // offending regex source, if any
	Err      error
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Position > 0 {
		return fmt.Sprintf("pattern rule %d (%q): %v", e.Position, e.Pattern, e.Err)
	}
	return fmt.Sprintf("pattern mapping file: %v", e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}
