package dedupe

import (
	"testing"

	"github.com/tsawler/tagsight/model"
)

func det(text string, conf float64, bbox model.BBox, strategy model.Strategy) NormalizedDetection {
	return NormalizedDetection{
		Detection: model.RawDetection{
			Text:       text,
			BBox:       bbox,
			Confidence: conf,
			Strategy:   strategy,
		},
		Text: text,
	}
}

// Scenario from the dedup contract: a clean and a noisy reading of the
// same tag, overlapping, one character apart. One candidate survives
// with the high-confidence text.
func TestDeduplicateEditDistanceMerge(t *testing.T) {
	d := New()

	box := model.NewBBox(100, 100, 80, 12)
	input := []NormalizedDetection{
		{Detection: model.RawDetection{Text: "013-E-51001", BBox: box, Confidence: 85, Strategy: model.StrategyContrast}, Text: "013-E-51001"},
		{Detection: model.RawDetection{Text: "013-E-51OO1", BBox: model.NewBBox(102, 101, 80, 12), Confidence: 60, Strategy: model.StrategyNone}, Text: "013-E-51OO1"},
	}

	got := d.Deduplicate(input)
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	c := got[0]
	if c.Text != "013-E-51001" {
		t.Errorf("Text = %q, want high-confidence reading %q", c.Text, "013-E-51001")
	}
	if c.Confidence != 85 {
		t.Errorf("Confidence = %v, want max 85", c.Confidence)
	}
	if c.SupportCount != 2 {
		t.Errorf("SupportCount = %d, want 2", c.SupportCount)
	}
}

// Overlapping detections whose texts are genuinely different (beyond
// tolerance even after confusion folding) stay distinct under the
// default tie-break, and both carry the ambiguity marker.
func TestDeduplicateToleranceRejects(t *testing.T) {
	d := NewWithConfig(Config{OverlapThreshold: 0.5, EditTolerance: 1, TieBreak: KeepDistinct})

	box := model.NewBBox(100, 100, 80, 12)
	input := []NormalizedDetection{
		det("013-E-51001", 85, box, model.StrategyContrast),
		det("013-F-62001", 60, box, model.StrategyNone),
	}

	got := d.Deduplicate(input)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2 distinct", len(got))
	}
	for _, c := range got {
		if !c.Ambiguous {
			t.Errorf("candidate %q should carry the ambiguity marker", c.Text)
		}
	}
}

func TestDeduplicateExactTextOverlap(t *testing.T) {
	d := New()

	input := []NormalizedDetection{
		det("013-HV-54149", 70, model.NewBBox(10, 10, 90, 12), model.StrategyNone),
		det("013-HV-54149", 75, model.NewBBox(12, 10, 90, 12), model.StrategyGrayscale),
		det("013-HV-54149", 65, model.NewBBox(11, 11, 90, 12), model.StrategyThreshold),
	}

	got := d.Deduplicate(input)
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].SupportCount != 3 {
		t.Errorf("SupportCount = %d, want 3", got[0].SupportCount)
	}
	if got[0].Confidence != 75 {
		t.Errorf("Confidence = %v, want 75", got[0].Confidence)
	}
	if len(got[0].Strategies) != 3 {
		t.Errorf("Strategies = %v, want 3 contributing strategies", got[0].StrategyNames())
	}
}

func TestDeduplicateDisjointStayDistinct(t *testing.T) {
	d := New()

	input := []NormalizedDetection{
		det("013-E-51001", 80, model.NewBBox(10, 10, 80, 12), model.StrategyNone),
		det("013-E-51001", 80, model.NewBBox(500, 700, 80, 12), model.StrategyNone),
	}

	// Same tag text painted twice in different places: two candidates.
	got := d.Deduplicate(input)
	if len(got) != 2 {
		t.Fatalf("got %d candidates, want 2", len(got))
	}
}

func TestDeduplicateSingleton(t *testing.T) {
	d := New()

	got := d.Deduplicate([]NormalizedDetection{
		det("013-PSV-51001", 90, model.NewBBox(10, 10, 100, 12), model.StrategySharpen),
	})
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1", len(got))
	}
	if got[0].SupportCount != 1 {
		t.Errorf("SupportCount = %d, want 1", got[0].SupportCount)
	}
}

func TestDeduplicateEmptyTextDropped(t *testing.T) {
	d := New()

	got := d.Deduplicate([]NormalizedDetection{
		{Detection: model.RawDetection{Confidence: 90, BBox: model.NewBBox(0, 0, 10, 10)}, Text: ""},
	})
	if len(got) != 0 {
		t.Fatalf("got %d candidates, want 0 for empty text", len(got))
	}
}

func TestDeduplicateMergeToStrongest(t *testing.T) {
	d := NewWithConfig(Config{OverlapThreshold: 0.5, EditTolerance: 1, TieBreak: MergeToStrongest})

	box := model.NewBBox(100, 100, 80, 12)
	input := []NormalizedDetection{
		det("013-E-51001", 85, box, model.StrategyContrast),
		det("TOTALLY-DIFFERENT", 60, box, model.StrategyNone),
	}

	got := d.Deduplicate(input)
	if len(got) != 1 {
		t.Fatalf("got %d candidates, want 1 under MergeToStrongest", len(got))
	}
	if got[0].Text != "013-E-51001" {
		t.Errorf("Text = %q, want strongest reading", got[0].Text)
	}
	if !got[0].Ambiguous {
		t.Error("merged cluster should carry the ambiguity marker")
	}
}

func TestFoldConfusables(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"013-E-51OO1", "013-E-51001"},
		{"O13-I-5IO0L", "013-1-51001"},
		{"013-HV-54149", "013-HV-54149"},
	}

	for _, tt := range tests {
		if got := foldConfusables(tt.input); got != tt.want {
			t.Errorf("foldConfusables(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

// Deduplication must not depend on input order.
func TestDeduplicateDeterministic(t *testing.T) {
	d := New()

	a := det("013-E-51001", 85, model.NewBBox(100, 100, 80, 12), model.StrategyContrast)
	b := det("013-E-51OO1", 60, model.NewBBox(102, 101, 80, 12), model.StrategyNone)
	c := det("013-HV-54149", 75, model.NewBBox(400, 300, 90, 12), model.StrategyGrayscale)

	first := d.Deduplicate([]NormalizedDetection{a, b, c})
	second := d.Deduplicate([]NormalizedDetection{c, b, a})

	if len(first) != len(second) {
		t.Fatalf("candidate counts differ: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Text != second[i].Text || first[i].Confidence != second[i].Confidence {
			t.Errorf("candidate %d differs: %q/%v vs %q/%v",
				i, first[i].Text, first[i].Confidence, second[i].Text, second[i].Confidence)
		}
	}
}
