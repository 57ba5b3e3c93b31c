// Package normalize cleans raw OCR text into canonical tag form.
//
// Normalization is a pure function: the same input always yields the
// same output, and normalizing already-normalized text is a no-op. The
// pipeline drops detections whose normalized text is empty.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CasePolicy controls case canonicalization of tag text.
type CasePolicy int

const (
	// CaseUpper folds tag text to upper case (tag codes are upper case
	// on engineering drawings)
	CaseUpper CasePolicy = iota
	// CaseLower folds tag text to lower case
	CaseLower
	// CasePreserve leaves case untouched
	CasePreserve
)

// DefaultSymbols is the default set of non-alphanumeric runes preserved
// in tag text. Covers the separators and units that appear in equipment,
// valve and pipeline tags (e.g. 013-PL-54149-10"-CS150-HC-001).
const DefaultSymbols = `-_/."'`

// Config holds normalization settings.
type Config struct {
	// Symbols is the set of non-alphanumeric runes to keep. Letters and
	// digits are always kept.
	Symbols string

	// Case is the case canonicalization policy
	Case CasePolicy
}

// DefaultConfig returns the settings used for tag codes: upper case,
// default symbol set.
func DefaultConfig() Config {
	return Config{
		Symbols: DefaultSymbols,
		Case:    CaseUpper,
	}
}

// Normalizer applies text-level cleanup to OCR output.
// A Normalizer is immutable and safe for concurrent use.
type Normalizer struct {
	cfg     Config
	allowed map[rune]struct{}
}

// New creates a normalizer with the default tag-code configuration.
func New() *Normalizer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a normalizer with custom configuration.
func NewWithConfig(cfg Config) *Normalizer {
	allowed := make(map[rune]struct{}, len(cfg.Symbols))
	for _, r := range cfg.Symbols {
		allowed[r] = struct{}{}
	}
	return &Normalizer{cfg: cfg, allowed: allowed}
}

// Normalize cleans one piece of OCR text: Unicode compatibility folding,
// removal of runes outside the allowed set, whitespace collapsing, and
// case canonicalization. Returns "" when nothing survives.
func (n *Normalizer) Normalize(s string) string {
	if s == "" {
		return ""
	}

	// NFKC folds full-width forms and ligatures the OCR backend
	// occasionally emits for stencilled text.
	t := transform.Chain(norm.NFKC, runes.Remove(runes.Predicate(n.drop)))
	cleaned, _, err := transform.String(t, s)
	if err != nil {
		// Transform errors only occur on invalid UTF-8; fall back to the
		// raw input so one bad rune does not discard the detection.
		cleaned = s
	}

	cleaned = collapseSpaces(cleaned)

	switch n.cfg.Case {
	case CaseUpper:
		cleaned = strings.ToUpper(cleaned)
	case CaseLower:
		cleaned = strings.ToLower(cleaned)
	}

	return cleaned
}

// drop reports whether a rune is outside the allowed symbol set.
// Whitespace is kept here and collapsed afterwards.
func (n *Normalizer) drop(r rune) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
		return false
	}
	_, ok := n.allowed[r]
	return !ok
}

// collapseSpaces trims the string and squeezes internal whitespace runs
// to a single space.
func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
