// Package pipeline orchestrates the per-drawing processing chain:
// region split, multi-pass OCR, normalization, spatial deduplication,
// pattern classification, context resolution, and EIWM export.
//
// Drawings are processed concurrently by a bounded worker pool. A
// drawing that produces no tags is reported unprocessed with a reason
// code; it never fails the batch. Only cancellation stops a run.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tsawler/tagsight/classify"
	"github.com/tsawler/tagsight/config"
	"github.com/tsawler/tagsight/dedupe"
	"github.com/tsawler/tagsight/eiwm"
	"github.com/tsawler/tagsight/model"
	"github.com/tsawler/tagsight/multipass"
	"github.com/tsawler/tagsight/normalize"
	"github.com/tsawler/tagsight/patterns"
)

// Reason codes for unprocessed drawings.
const (
	// ReasonOCREmpty: every OCR pass ran but nothing was detected
	ReasonOCREmpty = "OCR_EMPTY"

	// ReasonOCRCallFailed: the engine itself failed on every pass
	ReasonOCRCallFailed = "OCR_CALL_FAILED"

	// ReasonCancelled: the run context was cancelled mid-drawing
	ReasonCancelled = "CANCELLED"

	// ReasonNoTags: text was detected but no candidate survived
	// classification
	ReasonNoTags = "NO_TAGS"

	// ReasonExportFailed: tags were produced but the export could not be
	// written
	ReasonExportFailed = "EXPORT_FAILED"
)

// Input is one drawing queued for processing. The image is the decoded
// page; container formats (PDF, TIFF stacks) are decoded upstream.
type Input struct {
	Drawing model.Drawing
	Image   image.Image

	// ContextOverride replaces the configured default context for this
	// document when non-empty
	ContextOverride model.Context
}

// DocumentResult is the outcome for one drawing.
type DocumentResult struct {
	Drawing    string          `json:"drawing"`
	SourcePath string          `json:"source_path,omitempty"`
	Processed  bool            `json:"processed"`
	Reason     string          `json:"reason,omitempty"`
	Tags       int             `json:"tags"`
	OutputPath string          `json:"output_path,omitempty"`
	Passes     multipass.Stats `json:"passes"`
	Classify   classify.Stats  `json:"classify"`
	Elapsed    time.Duration   `json:"elapsed"`
}

// Summary is the outcome of one batch run.
type Summary struct {
	RunID       string           `json:"run_id"`
	Started     time.Time        `json:"started"`
	Finished    time.Time        `json:"finished"`
	Processed   int              `json:"processed"`
	Unprocessed int              `json:"unprocessed"`
	TotalTags   int              `json:"total_tags"`
	Documents   []DocumentResult `json:"documents"`
}

// RecognizerFactory builds one recognizer per worker. OCR clients are
// not safe for concurrent use, so each worker owns its own. Returned
// recognizers implementing io.Closer are closed when the worker is done.
type RecognizerFactory func() (multipass.Recognizer, error)

// Pipeline runs drawings through the full processing chain. A Pipeline
// is immutable after construction and safe for concurrent use.
type Pipeline struct {
	cfg        config.Config
	rules      *patterns.RuleSet
	newRec     RecognizerFactory
	normalizer *normalize.Normalizer
	dedup      *dedupe.Deduplicator
	classifier *classify.Classifier
	resolver   *eiwm.Resolver
	log        *slog.Logger
}

// New assembles a pipeline from the project configuration and a
// compiled rule set.
func New(cfg config.Config, rules *patterns.RuleSet, newRec RecognizerFactory, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:        cfg,
		rules:      rules,
		newRec:     newRec,
		normalizer: normalize.New(),
		dedup:      dedupe.NewWithConfig(cfg.DedupeConfig()),
		classifier: classify.NewWithConfig(rules, cfg.ClassifyConfig()),
		resolver:   eiwm.NewResolver(cfg.DefaultContext()),
		log:        log,
	}
}

// Run processes a batch of drawings with a bounded worker pool and
// returns the run summary. Per-drawing failures are recorded in the
// summary; only cancellation returns an error, and then no further
// drawings are started.
func (p *Pipeline) Run(ctx context.Context, inputs []Input) (*Summary, error) {
	summary := &Summary{
		RunID:     uuid.NewString(),
		Started:   time.Now(),
		Documents: make([]DocumentResult, len(inputs)),
	}
	p.log.Info("run started",
		slog.String("run_id", summary.RunID),
		slog.Int("drawings", len(inputs)),
		slog.String("mode", string(p.cfg.Mode)))

	workers := p.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(inputs) {
		workers = len(inputs)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.worker(ctx, jobs, inputs, summary.Documents)
		}()
	}

feed:
	for i := range inputs {
		select {
		case jobs <- i:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()

	summary.Finished = time.Now()

	// Drawings never dequeued after cancellation still get a result row.
	for i := range summary.Documents {
		if summary.Documents[i].Drawing == "" {
			summary.Documents[i] = DocumentResult{
				Drawing:    inputs[i].Drawing.Name,
				SourcePath: inputs[i].Drawing.SourcePath,
				Reason:     ReasonCancelled,
			}
		}
	}

	for _, doc := range summary.Documents {
		if doc.Processed {
			summary.Processed++
			summary.TotalTags += doc.Tags
		} else {
			summary.Unprocessed++
		}
	}

	p.log.Info("run finished",
		slog.String("run_id", summary.RunID),
		slog.Int("processed", summary.Processed),
		slog.Int("unprocessed", summary.Unprocessed),
		slog.Int("tags", summary.TotalTags),
		slog.Duration("elapsed", summary.Finished.Sub(summary.Started)))

	if err := ctx.Err(); err != nil {
		return summary, fmt.Errorf("run cancelled: %w", err)
	}
	return summary, nil
}

// worker drains the job channel with a recognizer of its own.
func (p *Pipeline) worker(ctx context.Context, jobs <-chan int, inputs []Input, results []DocumentResult) {
	rec, err := p.newRec()
	if err != nil {
		// Without a recognizer this worker can only mark its share of
		// drawings failed.
		p.log.Error("recognizer unavailable", slog.String("error", err.Error()))
		for i := range jobs {
			results[i] = DocumentResult{
				Drawing:    inputs[i].Drawing.Name,
				SourcePath: inputs[i].Drawing.SourcePath,
				Reason:     ReasonOCRCallFailed,
			}
		}
		return
	}
	if c, ok := rec.(io.Closer); ok {
		defer c.Close()
	}

	agg := multipass.NewWithConfig(rec, p.cfg.MultipassConfig(), p.log)
	for i := range jobs {
		results[i] = p.Process(ctx, agg, inputs[i])
	}
}

// Process runs one drawing through the chain. The result carries a
// reason code instead of an error for every non-exported outcome.
func (p *Pipeline) Process(ctx context.Context, agg *multipass.Aggregator, in Input) DocumentResult {
	start := time.Now()
	res := DocumentResult{
		Drawing:    in.Drawing.Name,
		SourcePath: in.Drawing.SourcePath,
	}
	log := p.log.With(slog.String("drawing", in.Drawing.Name))

	detections, passStats, err := p.collect(ctx, agg, in.Image)
	res.Passes = passStats
	if err != nil {
		res.Reason = ReasonCancelled
		res.Elapsed = time.Since(start)
		log.Warn("drawing cancelled", slog.String("error", err.Error()))
		return res
	}

	if len(detections) == 0 {
		if passStats.Passes > 0 && passStats.Failures == passStats.Passes {
			res.Reason = ReasonOCRCallFailed
		} else {
			res.Reason = ReasonOCREmpty
		}
		res.Elapsed = time.Since(start)
		log.Warn("no text detected", slog.String("reason", res.Reason),
			slog.Int("passes", passStats.Passes), slog.Int("failures", passStats.Failures))
		return res
	}

	candidates := p.dedup.Deduplicate(p.normalizeAll(detections))
	if p.cfg.SearchFilenames {
		candidates = append(candidates, filenameCandidates(p.normalizer, in.Drawing)...)
	}

	tags, clsStats := p.classifier.Classify(candidates, in.Drawing.Name)
	res.Classify = clsStats
	if len(tags) == 0 {
		res.Reason = ReasonNoTags
		res.Elapsed = time.Since(start)
		log.Warn("no tags classified",
			slog.Int("candidates", clsStats.Candidates),
			slog.Int("excluded", clsStats.Excluded),
			slog.Int("unmatched", clsStats.Unmatched))
		return res
	}

	tags = p.resolver.Resolve(tags, in.ContextOverride)

	outPath := filepath.Join(p.cfg.Folders.Output, in.Drawing.Name+".xml")
	if err := p.export(in.Drawing.Name, tags, outPath); err != nil {
		res.Reason = ReasonExportFailed
		res.Elapsed = time.Since(start)
		log.Error("export failed", slog.String("error", err.Error()))
		return res
	}

	res.Processed = true
	res.Tags = len(tags)
	res.OutputPath = outPath
	res.Elapsed = time.Since(start)
	log.Info("drawing exported",
		slog.Int("tags", len(tags)),
		slog.Int("passes", passStats.Passes),
		slog.Duration("elapsed", res.Elapsed))
	return res
}

// collect runs the multi-pass aggregator over every region and maps
// detections back into page coordinates.
func (p *Pipeline) collect(ctx context.Context, agg *multipass.Aggregator, img image.Image) ([]model.RawDetection, multipass.Stats, error) {
	var all []model.RawDetection
	var total multipass.Stats

	for _, region := range SplitRegions(img.Bounds(), p.cfg.DetectRegions) {
		dets, stats, err := agg.Run(ctx, crop(img, region.Rect))
		total.Passes += stats.Passes
		total.Failures += stats.Failures
		total.Escalations += stats.Escalations
		total.Elapsed += stats.Elapsed
		if err != nil {
			return nil, total, err
		}

		offX := float64(region.Rect.Min.X)
		offY := float64(region.Rect.Min.Y)
		for _, d := range dets {
			d.BBox.X += offX
			d.BBox.Y += offY
			all = append(all, d)
		}
	}
	total.Detections = len(all)
	return all, total, nil
}

// normalizeAll cleans detection texts, dropping detections that
// normalize to nothing.
func (p *Pipeline) normalizeAll(dets []model.RawDetection) []dedupe.NormalizedDetection {
	out := make([]dedupe.NormalizedDetection, 0, len(dets))
	for _, d := range dets {
		text := p.normalizer.Normalize(d.Text)
		if text == "" {
			continue
		}
		out = append(out, dedupe.NormalizedDetection{Detection: d, Text: text})
	}
	return out
}

// filenameCandidates treats tokens of the drawing's file name as
// zero-geometry candidates, so tags encoded in file names are found
// even on drawings OCR reads poorly.
func filenameCandidates(n *normalize.Normalizer, d model.Drawing) []*model.CandidateTag {
	base := filepath.Base(d.SourcePath)
	if base == "." || base == "" {
		base = d.Name
	}
	stem := base[:len(base)-len(filepath.Ext(base))]

	text := n.Normalize(stem)
	if text == "" {
		return nil
	}
	return []*model.CandidateTag{{
		Text:         text,
		Confidence:   100,
		SupportCount: 1,
	}}
}

// export writes the EIWM document and, when configured, the trigger
// file the downstream importer watches for.
func (p *Pipeline) export(drawing string, tags []model.ClassifiedTag, outPath string) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return err
	}
	if err := eiwm.NewExport(drawing, tags).WriteFile(outPath); err != nil {
		return err
	}
	if p.cfg.CreateTriggerFile {
		trigger := filepath.Join(filepath.Dir(outPath), "trigger.start")
		if err := os.WriteFile(trigger, nil, 0o644); err != nil {
			return fmt.Errorf("writing trigger file: %w", err)
		}
	}
	return nil
}
