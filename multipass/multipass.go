// Package multipass runs several OCR passes over the same drawing
// region and collects every raw detection for downstream deduplication.
//
// Each pass renders the region under a different preprocessing strategy,
// rotation, and resolution. Individual pass failures are tolerated and
// counted; only cancellation aborts a run. The aggregator never judges
// detections, it just collects them.
package multipass

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/tsawler/tagsight/model"
	"github.com/tsawler/tagsight/preprocess"
)

// Recognizer runs one OCR invocation over a prepared image. The
// returned detections carry coordinates in the prepared image's frame;
// the aggregator maps them back to page space.
type Recognizer interface {
	Recognize(ctx context.Context, img image.Image) ([]model.RawDetection, error)
}

// Config controls the pass plan.
type Config struct {
	// Strategies lists the preprocessing variants to run
	Strategies []model.Strategy

	// Rotations lists the quarter turns to try
	Rotations []model.Rotation

	// BaseDPI is the resolution the page was rendered at
	BaseDPI int

	// AdaptiveDPI is the escalation ladder tried, in order, while the run
	// has produced fewer than MinDetections. Empty disables escalation.
	AdaptiveDPI []int

	// MinDetections is the yield below which the next AdaptiveDPI step
	// is attempted
	MinDetections int

	// MaxPasses caps the total number of OCR invocations per region.
	// Zero means no cap.
	MaxPasses int

	// PassTimeout bounds a single OCR invocation. Zero means no per-pass
	// deadline beyond the run context.
	PassTimeout time.Duration

	// Preprocess holds the strategy tuning parameters
	Preprocess preprocess.Config
}

// DefaultConfig returns the balanced pass plan: every strategy at the
// upright orientation, 300 DPI base with escalation to 400 and 500 when
// a region yields almost nothing.
func DefaultConfig() Config {
	return Config{
		Strategies: []model.Strategy{
			model.StrategyNone,
			model.StrategyGrayscale,
			model.StrategyContrast,
			model.StrategySharpen,
			model.StrategyThreshold,
			model.StrategyDenoise,
			model.StrategyInvert,
		},
		Rotations:     []model.Rotation{model.Rotate0},
		BaseDPI:       300,
		AdaptiveDPI:   []int{400, 500},
		MinDetections: 3,
		MaxPasses:     0,
		PassTimeout:   30 * time.Second,
		Preprocess:    preprocess.DefaultConfig(),
	}
}

// Stats reports what one aggregation run did. Failed passes accumulate
// here as data rather than surfacing as errors.
type Stats struct {
	Passes      int           // OCR invocations attempted
	Failures    int           // passes that returned an error
	Detections  int           // raw detections collected
	Escalations int           // adaptive DPI steps taken
	Elapsed     time.Duration // wall time for the whole run
}

// Aggregator executes the pass plan. An Aggregator is immutable and safe
// for concurrent use as long as its Recognizer is.
type Aggregator struct {
	rec Recognizer
	cfg Config
	log *slog.Logger
}

// New creates an aggregator with the default pass plan.
func New(rec Recognizer, log *slog.Logger) *Aggregator {
	return NewWithConfig(rec, DefaultConfig(), log)
}

// NewWithConfig creates an aggregator with a custom pass plan.
func NewWithConfig(rec Recognizer, cfg Config, log *slog.Logger) *Aggregator {
	if log == nil {
		log = slog.Default()
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = []model.Strategy{model.StrategyNone}
	}
	if len(cfg.Rotations) == 0 {
		cfg.Rotations = []model.Rotation{model.Rotate0}
	}
	if cfg.BaseDPI <= 0 {
		cfg.BaseDPI = 300
	}
	return &Aggregator{rec: rec, cfg: cfg, log: log}
}

// Run executes the pass plan over one region image and returns every
// detection mapped back to the region's base coordinate frame. A run
// with zero detections is a valid outcome, not an error; only context
// cancellation fails the run.
func (a *Aggregator) Run(ctx context.Context, region image.Image) ([]model.RawDetection, Stats, error) {
	start := time.Now()
	var stats Stats
	var out []model.RawDetection

	dpis := append([]int{a.cfg.BaseDPI}, a.cfg.AdaptiveDPI...)
	for i, dpi := range dpis {
		if i > 0 {
			if len(out) >= a.cfg.MinDetections {
				break
			}
			stats.Escalations++
			a.log.Debug("escalating OCR resolution",
				slog.Int("dpi", dpi),
				slog.Int("detections_so_far", len(out)))
		}

		detections, err := a.runRound(ctx, region, dpi, &stats)
		if err != nil {
			stats.Elapsed = time.Since(start)
			return nil, stats, err
		}
		out = append(out, detections...)
	}

	stats.Detections = len(out)
	stats.Elapsed = time.Since(start)
	return out, stats, nil
}

// runRound executes all rotation/strategy combinations at one
// resolution. Only cancellation returns an error.
func (a *Aggregator) runRound(ctx context.Context, region image.Image, dpi int, stats *Stats) ([]model.RawDetection, error) {
	scaled := preprocess.ScaleToDPI(region, a.cfg.BaseDPI, dpi)

	var out []model.RawDetection
	for _, rot := range a.cfg.Rotations {
		rotated := preprocess.Rotate(scaled, rot)
		pageW := float64(scaled.Bounds().Dx())
		pageH := float64(scaled.Bounds().Dy())

		for _, strategy := range a.cfg.Strategies {
			if a.cfg.MaxPasses > 0 && stats.Passes >= a.cfg.MaxPasses {
				return out, nil
			}
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("multipass run cancelled: %w", err)
			}

			prepared := preprocess.Apply(rotated, strategy, a.cfg.Preprocess)
			detections, err := a.runPass(ctx, prepared)
			stats.Passes++
			if err != nil {
				if ctx.Err() != nil {
					return nil, fmt.Errorf("multipass run cancelled: %w", ctx.Err())
				}
				stats.Failures++
				a.log.Warn("OCR pass failed",
					slog.String("strategy", strategy.String()),
					slog.Int("rotation", int(rot)),
					slog.Int("dpi", dpi),
					slog.String("error", err.Error()))
				continue
			}

			for _, d := range detections {
				d.BBox = preprocess.UnrotateBBox(d.BBox, rot, pageW, pageH)
				d.BBox = preprocess.UnscaleBBox(d.BBox, a.cfg.BaseDPI, dpi)
				d.Strategy = strategy
				d.Rotation = rot
				d.DPI = dpi
				out = append(out, d)
			}
		}
	}
	return out, nil
}

// runPass invokes the recognizer once under the per-pass deadline.
func (a *Aggregator) runPass(ctx context.Context, img image.Image) ([]model.RawDetection, error) {
	if a.cfg.PassTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.PassTimeout)
		defer cancel()
	}
	return a.rec.Recognize(ctx, img)
}
