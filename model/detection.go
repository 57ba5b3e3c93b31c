package model

import (
	"sort"
	"strings"
)

// Strategy identifies the image preprocessing variant an OCR pass ran under.
type Strategy int

const (
	// StrategyNone performs no preprocessing (the rendered page as-is)
	StrategyNone Strategy = iota
	// StrategyGrayscale converts to 8-bit grayscale
	StrategyGrayscale
	// StrategyContrast boosts contrast for faded prints
	StrategyContrast
	// StrategySharpen sharpens edges for small tag text
	StrategySharpen
	// StrategyThreshold applies a binary threshold
	StrategyThreshold
	// StrategyDenoise applies a median filter to remove scan artifacts
	StrategyDenoise
	// StrategyInvert inverts colors for white-on-dark title blocks
	StrategyInvert
)

// String returns a human-readable representation of the strategy
func (s Strategy) String() string {
	switch s {
	case StrategyNone:
		return "none"
	case StrategyGrayscale:
		return "grayscale"
	case StrategyContrast:
		return "contrast"
	case StrategySharpen:
		return "sharpen"
	case StrategyThreshold:
		return "threshold"
	case StrategyDenoise:
		return "denoise"
	case StrategyInvert:
		return "invert"
	default:
		return "unknown"
	}
}

// Rotation is a page rotation angle in degrees. Only quarter turns are
// meaningful for drawing text.
type Rotation int

// Valid rotation angles
const (
	Rotate0   Rotation = 0
	Rotate90  Rotation = 90
	Rotate180 Rotation = 180
	Rotate270 Rotation = 270
)

// RawDetection is a single OCR hit from one pass over a region.
// Detections are immutable once produced and are discarded after
// deduplication.
type RawDetection struct {
	// Text is the recognized text exactly as the backend returned it
	Text string

	// BBox is the detection's bounding box in page space, already mapped
	// back through any rotation/scaling the pass applied
	BBox BBox

	// Confidence is the backend's recognition confidence, 0-100
	Confidence float64

	// Strategy is the preprocessing variant the pass ran under
	Strategy Strategy

	// Rotation is the angle the page was rotated for this pass
	Rotation Rotation

	// DPI is the render resolution for this pass
	DPI int
}

// CandidateTag is a merged cluster of raw detections believed to
// represent the same physical tag on the drawing.
//
// Invariants: SupportCount >= 1 and Confidence is in [0,100].
type CandidateTag struct {
	// Text is the canonical normalized text for the cluster. When members
	// disagree within edit-distance tolerance, the highest-confidence
	// member's text wins.
	Text string

	// BBox is the union of all member bounding boxes
	BBox BBox

	// Confidence is the maximum single-detection confidence in the
	// cluster. A single clean recognition should not be diluted by noisy
	// low-confidence attempts, so this is not an average.
	Confidence float64

	// SupportCount is the number of raw detections merged into this tag
	SupportCount int

	// Strategies records which preprocessing variants contributed,
	// kept for provenance and debugging
	Strategies map[Strategy]struct{}

	// Ambiguous marks clusters that overlapped another detection whose
	// text fell outside the edit-distance tolerance. Not an error; kept
	// observable for provenance.
	Ambiguous bool
}

// NewCandidateTag creates a singleton candidate from one detection.
func NewCandidateTag(text string, d RawDetection) *CandidateTag {
	return &CandidateTag{
		Text:         text,
		BBox:         d.BBox,
		Confidence:   d.Confidence,
		SupportCount: 1,
		Strategies:   map[Strategy]struct{}{d.Strategy: {}},
	}
}

// Absorb merges a detection into the candidate. If the detection's
// confidence exceeds the current maximum, its text becomes canonical.
func (c *CandidateTag) Absorb(text string, d RawDetection) {
	if d.Confidence > c.Confidence {
		c.Text = text
		c.Confidence = d.Confidence
	}
	c.BBox = c.BBox.Union(d.BBox)
	c.SupportCount++
	if c.Strategies == nil {
		c.Strategies = make(map[Strategy]struct{})
	}
	c.Strategies[d.Strategy] = struct{}{}
}

// StrategyNames returns the contributing strategies as sorted names.
func (c *CandidateTag) StrategyNames() []string {
	names := make([]string, 0, len(c.Strategies))
	for s := range c.Strategies {
		names = append(names, s.String())
	}
	sort.Strings(names)
	return names
}

// Provenance returns a compact debug string for the candidate.
func (c *CandidateTag) Provenance() string {
	return strings.Join(c.StrategyNames(), "+")
}
