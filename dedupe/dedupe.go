// Package dedupe merges overlapping OCR detections from repeated passes
// into candidate tags.
//
// Multi-pass OCR sees the same physical tag many times, under different
// rotations, resolutions and preprocessing strategies, and rarely agrees
// exactly. The deduplicator clusters detections whose bounding boxes
// overlap and whose normalized texts agree exactly or within a small
// edit distance, keeping the highest-confidence reading as canonical.
package dedupe

import (
	"sort"

	"github.com/agnivade/levenshtein"
	"github.com/tsawler/tagsight/model"
)

// TieBreak is the policy for overlapping detections whose texts differ
// by more than the edit-distance tolerance.
type TieBreak int

const (
	// KeepDistinct treats such detections as distinct candidates. Two
	// genuinely different tags can sit close together on a dense
	// drawing; over-reporting beats silently dropping one of them.
	KeepDistinct TieBreak = iota

	// MergeToStrongest merges them anyway, keeping the
	// highest-confidence text. Useful on very noisy scans where the
	// same tag yields wildly different misreads.
	MergeToStrongest
)

// String returns a human-readable representation of the policy
func (t TieBreak) String() string {
	switch t {
	case KeepDistinct:
		return "keep-distinct"
	case MergeToStrongest:
		return "merge-to-strongest"
	default:
		return "unknown"
	}
}

// Config holds deduplication settings.
type Config struct {
	// OverlapThreshold is the minimum bounding-box overlap ratio
	// (intersection over smaller area) for two detections to be
	// considered the same physical tag. Range (0,1].
	OverlapThreshold float64

	// EditTolerance is the maximum Levenshtein distance between
	// normalized texts for an overlapping pair to merge. 0 requires
	// exact agreement.
	EditTolerance int

	// TieBreak selects the policy for overlapping detections beyond
	// the edit tolerance.
	TieBreak TieBreak
}

// DefaultConfig returns the thresholds used for scanned P&IDs: half
// overlap, one character of slack.
func DefaultConfig() Config {
	return Config{
		OverlapThreshold: 0.5,
		EditTolerance:    1,
		TieBreak:         KeepDistinct,
	}
}

// NormalizedDetection pairs a raw detection with its normalized text.
// Detections whose normalized text is empty must be dropped before
// deduplication.
type NormalizedDetection struct {
	Detection model.RawDetection
	Text      string
}

// Deduplicator clusters raw detections into candidate tags.
// A Deduplicator is immutable and safe for concurrent use.
type Deduplicator struct {
	cfg Config
}

// New creates a deduplicator with default configuration.
func New() *Deduplicator {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a deduplicator with custom configuration.
func NewWithConfig(cfg Config) *Deduplicator {
	if cfg.OverlapThreshold <= 0 {
		cfg.OverlapThreshold = DefaultConfig().OverlapThreshold
	}
	return &Deduplicator{cfg: cfg}
}

// Deduplicate merges the detections of one region into candidate tags.
// The result is deterministic for a given input set regardless of input
// order: detections are considered in descending confidence so the
// strongest reading anchors each cluster, and output is sorted by page
// position.
func (d *Deduplicator) Deduplicate(dets []NormalizedDetection) []*model.CandidateTag {
	if len(dets) == 0 {
		return nil
	}

	ordered := make([]NormalizedDetection, len(dets))
	copy(ordered, dets)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Detection.Confidence != b.Detection.Confidence {
			return a.Detection.Confidence > b.Detection.Confidence
		}
		if a.Text != b.Text {
			return a.Text < b.Text
		}
		if a.Detection.BBox.Y != b.Detection.BBox.Y {
			return a.Detection.BBox.Y < b.Detection.BBox.Y
		}
		return a.Detection.BBox.X < b.Detection.BBox.X
	})

	var clusters []*model.CandidateTag
	for _, nd := range ordered {
		if nd.Text == "" {
			continue
		}

		target, ambiguous := d.place(clusters, nd)
		if target != nil {
			target.Absorb(nd.Text, nd.Detection)
			continue
		}

		c := model.NewCandidateTag(nd.Text, nd.Detection)
		c.Ambiguous = ambiguous
		clusters = append(clusters, c)
	}

	sort.SliceStable(clusters, func(i, j int) bool {
		a, b := clusters[i], clusters[j]
		if a.BBox.Y != b.BBox.Y {
			return a.BBox.Y < b.BBox.Y
		}
		if a.BBox.X != b.BBox.X {
			return a.BBox.X < b.BBox.X
		}
		return a.Text < b.Text
	})
	return clusters
}

// place finds the cluster a detection belongs to. The second return
// marks a detection that overlapped a cluster but fell outside the edit
// tolerance, which is resolved per the configured tie-break policy and
// kept observable on the candidate.
func (d *Deduplicator) place(clusters []*model.CandidateTag, nd NormalizedDetection) (*model.CandidateTag, bool) {
	var overlapped *model.CandidateTag

	for _, c := range clusters {
		if c.BBox.OverlapRatio(nd.Detection.BBox) < d.cfg.OverlapThreshold {
			continue
		}
		if d.textsAgree(c.Text, nd.Text) {
			return c, false
		}
		if overlapped == nil {
			overlapped = c
		}
	}

	if overlapped == nil {
		return nil, false
	}

	// Overlapping but textually incompatible.
	if d.cfg.TieBreak == MergeToStrongest {
		overlapped.Ambiguous = true
		return overlapped, true
	}
	overlapped.Ambiguous = true
	return nil, true
}

// textsAgree reports whether two normalized texts identify the same tag.
// Distances are computed on confusion-folded text so that classic OCR
// glyph swaps (O/0, I/1, S/5) do not count against the tolerance; the
// folded form is only used for comparison, never as output.
func (d *Deduplicator) textsAgree(a, b string) bool {
	if a == b {
		return true
	}
	fa, fb := foldConfusables(a), foldConfusables(b)
	if fa == fb {
		return true
	}
	if d.cfg.EditTolerance <= 0 {
		return false
	}
	return levenshtein.ComputeDistance(fa, fb) <= d.cfg.EditTolerance
}

// confusables maps glyphs Tesseract habitually swaps on stencilled
// drawing text onto a single representative.
var confusables = map[rune]rune{
	'O': '0',
	'Q': '0',
	'I': '1',
	'L': '1',
	'S': '5',
	'B': '8',
	'Z': '2',
	'G': '6',
}

// foldConfusables projects text into confusion-folded form.
func foldConfusables(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if f, ok := confusables[r]; ok {
			r = f
		}
		out = append(out, r)
	}
	return string(out)
}
