package multipass

import (
	"context"
	"errors"
	"image"
	"log/slog"
	"testing"

	"github.com/tsawler/tagsight/model"
	"github.com/tsawler/tagsight/preprocess"
)

// fakeRecognizer returns scripted results per call, cycling on the last
// entry when calls outnumber scripts.
type fakeRecognizer struct {
	calls   int
	results [][]model.RawDetection
	errs    []error
}

func (f *fakeRecognizer) Recognize(ctx context.Context, img image.Image) ([]model.RawDetection, error) {
	i := f.calls
	f.calls++
	if i >= len(f.results) {
		i = len(f.results) - 1
	}
	if i < 0 {
		return nil, nil
	}
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	return f.results[i], nil
}

func det(text string, x, y float64) model.RawDetection {
	return model.RawDetection{
		Text:       text,
		BBox:       model.NewBBox(x, y, 50, 10),
		Confidence: 80,
	}
}

func region() image.Image {
	return image.NewGray(image.Rect(0, 0, 200, 100))
}

func quietConfig() Config {
	cfg := DefaultConfig()
	cfg.Strategies = []model.Strategy{model.StrategyNone, model.StrategyGrayscale}
	cfg.AdaptiveDPI = nil
	return cfg
}

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func TestRunCollectsAllPasses(t *testing.T) {
	rec := &fakeRecognizer{results: [][]model.RawDetection{
		{det("013-E-51001", 10, 10)},
		{det("013-HV-54149", 10, 40)},
	}}
	agg := NewWithConfig(rec, quietConfig(), discard())

	out, stats, err := agg.Run(context.Background(), region())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("got %d detections, want 2", len(out))
	}
	if stats.Passes != 2 || stats.Failures != 0 || stats.Detections != 2 {
		t.Errorf("stats = %+v, want 2 passes, 0 failures, 2 detections", stats)
	}

	// Provenance is stamped per pass.
	if out[0].Strategy != model.StrategyNone || out[1].Strategy != model.StrategyGrayscale {
		t.Errorf("strategies = %v, %v", out[0].Strategy, out[1].Strategy)
	}
	if out[0].DPI != 300 {
		t.Errorf("DPI = %d, want base 300", out[0].DPI)
	}
}

// A region where every pass comes back empty is a valid outcome. The run
// reports zero detections without error.
func TestRunAllPassesEmpty(t *testing.T) {
	rec := &fakeRecognizer{results: [][]model.RawDetection{nil}}
	cfg := quietConfig()
	cfg.AdaptiveDPI = []int{400}
	agg := NewWithConfig(rec, cfg, discard())

	out, stats, err := agg.Run(context.Background(), region())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(out) != 0 {
		t.Fatalf("got %d detections, want 0", len(out))
	}
	// Empty yield drives the DPI ladder to its end.
	if stats.Escalations != 1 {
		t.Errorf("stats.Escalations = %d, want 1", stats.Escalations)
	}
	if stats.Detections != 0 {
		t.Errorf("stats.Detections = %d, want 0", stats.Detections)
	}
}

func TestRunToleratesPassFailure(t *testing.T) {
	rec := &fakeRecognizer{
		results: [][]model.RawDetection{nil, {det("013-E-51001", 10, 10)}},
		errs:    []error{errors.New("engine crashed")},
	}
	agg := NewWithConfig(rec, quietConfig(), discard())

	out, stats, err := agg.Run(context.Background(), region())
	if err != nil {
		t.Fatalf("Run() error: %v, pass failures must not fail the run", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d detections, want 1 from the surviving pass", len(out))
	}
	if stats.Failures != 1 {
		t.Errorf("stats.Failures = %d, want 1", stats.Failures)
	}
}

func TestRunSkipsEscalationWhenYieldSufficient(t *testing.T) {
	rec := &fakeRecognizer{results: [][]model.RawDetection{
		{det("A", 0, 0), det("B", 0, 20), det("C", 0, 40)},
	}}
	cfg := quietConfig()
	cfg.Strategies = []model.Strategy{model.StrategyNone}
	cfg.AdaptiveDPI = []int{400, 500}
	cfg.MinDetections = 3
	agg := NewWithConfig(rec, cfg, discard())

	_, stats, err := agg.Run(context.Background(), region())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if stats.Escalations != 0 {
		t.Errorf("stats.Escalations = %d, want 0 when base yield meets the floor", stats.Escalations)
	}
	if stats.Passes != 1 {
		t.Errorf("stats.Passes = %d, want 1", stats.Passes)
	}
}

func TestRunMaxPassesCap(t *testing.T) {
	rec := &fakeRecognizer{results: [][]model.RawDetection{nil}}
	cfg := DefaultConfig()
	cfg.AdaptiveDPI = nil
	cfg.MaxPasses = 3
	agg := NewWithConfig(rec, cfg, discard())

	_, stats, err := agg.Run(context.Background(), region())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if stats.Passes != 3 {
		t.Errorf("stats.Passes = %d, want cap of 3", stats.Passes)
	}
}

func TestRunCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := &fakeRecognizer{results: [][]model.RawDetection{nil}}
	agg := NewWithConfig(rec, quietConfig(), discard())

	_, _, err := agg.Run(ctx, region())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
}

// Detections from a rotated pass must come back in upright page
// coordinates.
func TestRunMapsRotatedCoordinates(t *testing.T) {
	// The region is 200x100. Under a 90 degree clockwise turn it becomes
	// 100x200, and a box at the rotated frame's top-left corner
	// originated at the upright frame's bottom-left.
	rec := &fakeRecognizer{results: [][]model.RawDetection{
		{{Text: "TAG", BBox: model.NewBBox(0, 0, 10, 20), Confidence: 80}},
	}}
	cfg := Config{
		Strategies: []model.Strategy{model.StrategyNone},
		Rotations:  []model.Rotation{model.Rotate90},
		BaseDPI:    300,
	}
	agg := NewWithConfig(rec, cfg, discard())

	out, _, err := agg.Run(context.Background(), region())
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("got %d detections, want 1", len(out))
	}

	want := preprocess.UnrotateBBox(model.NewBBox(0, 0, 10, 20), model.Rotate90, 200, 100)
	if out[0].BBox != want {
		t.Errorf("BBox = %+v, want %+v", out[0].BBox, want)
	}
	if out[0].Rotation != model.Rotate90 {
		t.Errorf("Rotation = %d, want 90", out[0].Rotation)
	}
}
