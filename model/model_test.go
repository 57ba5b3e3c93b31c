package model

import (
	"math"
	"testing"
)

// ============================================================================
// Point Tests
// ============================================================================

func TestPointDistance(t *testing.T) {
	tests := []struct {
		name     string
		p1, p2   Point
		expected float64
	}{
		{"same point", Point{0, 0}, Point{0, 0}, 0},
		{"horizontal", Point{0, 0}, Point{3, 0}, 3},
		{"vertical", Point{0, 0}, Point{0, 4}, 4},
		{"diagonal 3-4-5", Point{0, 0}, Point{3, 4}, 5},
		{"negative coords", Point{-1, -1}, Point{2, 3}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := tt.p1.Distance(tt.p2)
			if math.Abs(result-tt.expected) > 0.0001 {
				t.Errorf("Distance() = %v, want %v", result, tt.expected)
			}
		})
	}
}

// ============================================================================
// BBox Tests
// ============================================================================

func TestNewBBoxFromCorners(t *testing.T) {
	tests := []struct {
		name   string
		p1, p2 Point
		want   BBox
	}{
		{"normal", Point{10, 20}, Point{50, 70}, BBox{10, 20, 40, 50}},
		{"reversed", Point{50, 70}, Point{10, 20}, BBox{10, 20, 40, 50}},
		{"same point", Point{10, 10}, Point{10, 10}, BBox{10, 10, 0, 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewBBoxFromCorners(tt.p1, tt.p2)
			if got != tt.want {
				t.Errorf("NewBBoxFromCorners() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBBoxEdges(t *testing.T) {
	bbox := NewBBox(10, 20, 100, 50)

	if bbox.Left() != 10 {
		t.Errorf("Left() = %v, want 10", bbox.Left())
	}
	if bbox.Right() != 110 {
		t.Errorf("Right() = %v, want 110", bbox.Right())
	}
	if bbox.Top() != 20 {
		t.Errorf("Top() = %v, want 20", bbox.Top())
	}
	if bbox.Bottom() != 70 {
		t.Errorf("Bottom() = %v, want 70", bbox.Bottom())
	}
}

func TestBBoxIntersects(t *testing.T) {
	tests := []struct {
		name string
		b1   BBox
		b2   BBox
		want bool
	}{
		{"overlapping", BBox{0, 0, 10, 10}, BBox{5, 5, 10, 10}, true},
		{"contained", BBox{0, 0, 100, 100}, BBox{10, 10, 10, 10}, true},
		{"touching edges", BBox{0, 0, 10, 10}, BBox{10, 0, 10, 10}, true},
		{"disjoint horizontal", BBox{0, 0, 10, 10}, BBox{20, 0, 10, 10}, false},
		{"disjoint vertical", BBox{0, 0, 10, 10}, BBox{0, 20, 10, 10}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.b1.Intersects(tt.b2); got != tt.want {
				t.Errorf("Intersects() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestBBoxUnion(t *testing.T) {
	b1 := BBox{0, 0, 10, 10}
	b2 := BBox{20, 20, 10, 10}

	union := b1.Union(b2)
	want := BBox{0, 0, 30, 30}
	if union != want {
		t.Errorf("Union() = %+v, want %+v", union, want)
	}
}

func TestBBoxOverlapRatio(t *testing.T) {
	tests := []struct {
		name string
		b1   BBox
		b2   BBox
		want float64
	}{
		{"identical", BBox{0, 0, 10, 10}, BBox{0, 0, 10, 10}, 1.0},
		{"half overlap", BBox{0, 0, 10, 10}, BBox{5, 0, 10, 10}, 0.5},
		{"small inside large", BBox{0, 0, 100, 100}, BBox{10, 10, 10, 10}, 1.0},
		{"disjoint", BBox{0, 0, 10, 10}, BBox{50, 50, 10, 10}, 0},
		{"zero area", BBox{0, 0, 0, 0}, BBox{0, 0, 10, 10}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.b1.OverlapRatio(tt.b2)
			if math.Abs(got-tt.want) > 0.0001 {
				t.Errorf("OverlapRatio() = %v, want %v", got, tt.want)
			}
		})
	}
}

// ============================================================================
// CandidateTag Tests
// ============================================================================

func TestNewCandidateTag(t *testing.T) {
	d := RawDetection{
		Text:       "013-E-51001",
		BBox:       NewBBox(10, 10, 80, 12),
		Confidence: 85,
		Strategy:   StrategyContrast,
	}

	c := NewCandidateTag("013-E-51001", d)

	if c.Text != "013-E-51001" {
		t.Errorf("Text = %q, want %q", c.Text, "013-E-51001")
	}
	if c.SupportCount != 1 {
		t.Errorf("SupportCount = %d, want 1", c.SupportCount)
	}
	if c.Confidence != 85 {
		t.Errorf("Confidence = %v, want 85", c.Confidence)
	}
}

func TestCandidateTagAbsorb(t *testing.T) {
	c := NewCandidateTag("013-E-51OO1", RawDetection{
		Text:       "013-E-51OO1",
		BBox:       NewBBox(10, 10, 80, 12),
		Confidence: 60,
		Strategy:   StrategyNone,
	})

	// Higher-confidence member takes over the canonical text.
	c.Absorb("013-E-51001", RawDetection{
		Text:       "013-E-51001",
		BBox:       NewBBox(12, 11, 80, 12),
		Confidence: 85,
		Strategy:   StrategyContrast,
	})

	if c.Text != "013-E-51001" {
		t.Errorf("Text = %q, want canonical text from higher-confidence member", c.Text)
	}
	if c.Confidence != 85 {
		t.Errorf("Confidence = %v, want max 85", c.Confidence)
	}
	if c.SupportCount != 2 {
		t.Errorf("SupportCount = %d, want 2", c.SupportCount)
	}
	if len(c.Strategies) != 2 {
		t.Errorf("Strategies = %v, want 2 entries", c.StrategyNames())
	}

	// Lower-confidence member must not dilute anything.
	c.Absorb("013-E-5lO01", RawDetection{
		Text:       "013-E-5lO01",
		Confidence: 40,
		Strategy:   StrategyThreshold,
	})
	if c.Text != "013-E-51001" || c.Confidence != 85 {
		t.Errorf("low-confidence absorb changed canonical text/confidence: %q %v", c.Text, c.Confidence)
	}
}

// ============================================================================
// Context Tests
// ============================================================================

func TestParseContext(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		empty bool
	}{
		{"two levels", "Plant A|Process Area 2", "Plant A|Process Area 2", false},
		{"three levels", "Plant|Area|System", "Plant|Area|System", false},
		{"trims spaces", " Plant A | Area ", "Plant A|Area", false},
		{"drops blanks", "Plant||Area", "Plant|Area", false},
		{"empty string", "", "", true},
		{"only separators", "||", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := ParseContext(tt.input)
			if ctx.IsZero() != tt.empty {
				t.Fatalf("IsZero() = %v, want %v", ctx.IsZero(), tt.empty)
			}
			if !tt.empty && ctx.String() != tt.want {
				t.Errorf("String() = %q, want %q", ctx.String(), tt.want)
			}
		})
	}
}
