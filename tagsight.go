// Package tagsight provides a fluent API for extracting classified
// equipment tags from scanned engineering drawings.
//
// Basic usage:
//
//	summary, err := tagsight.Open("PID-001.png").
//	    Patterns("mapping.xml").
//	    Run(context.Background())
//
// Batch processing of a source folder:
//
//	summary, err := tagsight.Batch().
//	    ConfigFile("project.yaml").
//	    Run(context.Background())
//
// For advanced use cases, the lower-level pipeline and scan packages
// are also available.
package tagsight

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/tsawler/tagsight/config"
	"github.com/tsawler/tagsight/model"
	"github.com/tsawler/tagsight/patterns"
	"github.com/tsawler/tagsight/pipeline"
	"github.com/tsawler/tagsight/report"
	"github.com/tsawler/tagsight/scan"
)

// Runner accumulates configuration fluently. Errors from configuration
// steps are deferred until the terminal Run call.
type Runner struct {
	files   []string
	batch   bool
	options runOptions
	err     error
}

// Open prepares a run over one or more drawing image files.
//
// Example:
//
//	summary, err := tagsight.Open("PID-001.png").Patterns("mapping.xml").Run(ctx)
func Open(files ...string) *Runner {
	return &Runner{files: files, options: defaultOptions()}
}

// Batch prepares a run over the configured source folder, discovering
// drawings with the folder scanner.
func Batch() *Runner {
	return &Runner{batch: true, options: defaultOptions()}
}

// Config replaces the whole project configuration.
func (r *Runner) Config(cfg config.Config) *Runner {
	if r.err != nil {
		return r
	}
	r.options.cfg = cfg
	return r
}

// ConfigFile loads the project configuration from a YAML file.
func (r *Runner) ConfigFile(path string) *Runner {
	if r.err != nil {
		return r
	}
	cfg, err := config.Load(path)
	if err != nil {
		r.err = err
		return r
	}
	r.options.cfg = cfg
	return r
}

// Patterns sets the pattern mapping file, overriding the configured one.
func (r *Runner) Patterns(path string) *Runner {
	if r.err != nil {
		return r
	}
	r.options.patternsPath = path
	return r
}

// Context overrides the default context hierarchy for every drawing in
// this run, e.g. "Plant A|Process Area 2".
func (r *Runner) Context(ctx string) *Runner {
	if r.err != nil {
		return r
	}
	r.options.contextOverride = ctx
	return r
}

// Recognizer replaces the Tesseract backend, mainly for tests.
func (r *Runner) Recognizer(f pipeline.RecognizerFactory) *Runner {
	if r.err != nil {
		return r
	}
	r.options.newRec = f
	return r
}

// Logger sets the destination for run logging.
func (r *Runner) Logger(log *slog.Logger) *Runner {
	if r.err != nil {
		return r
	}
	r.options.logger = log
	return r
}

// NoReport skips the HTML/JSON summary files.
func (r *Runner) NoReport() *Runner {
	if r.err != nil {
		return r
	}
	r.options.noReport = true
	return r
}

// Run executes the configured extraction and returns the run summary.
// Unprocessed drawings are reported in the summary with reason codes;
// Run fails only for configuration errors or cancellation.
func (r *Runner) Run(ctx context.Context) (*pipeline.Summary, error) {
	if r.err != nil {
		return nil, r.err
	}
	cfg := r.options.cfg
	log := r.options.logger

	rulesPath := r.options.patternsPath
	if rulesPath == "" {
		rulesPath = cfg.Classification.PatternFile
	}
	if rulesPath == "" {
		return nil, fmt.Errorf("no pattern mapping file configured")
	}
	rules, err := patterns.Load(rulesPath)
	if err != nil {
		return nil, err
	}

	scanner := scan.New(cfg, log)
	inputs, err := r.gather(scanner)
	if err != nil {
		return nil, err
	}
	if override := model.ParseContext(r.options.contextOverride); !override.IsZero() {
		for i := range inputs {
			inputs[i].ContextOverride = override
		}
	}

	p := pipeline.New(cfg, rules, r.options.recognizerFactory(), log)
	summary, runErr := p.Run(ctx, inputs)

	for _, doc := range summary.Documents {
		if err := scanner.Route(doc); err != nil {
			log.Warn("routing failed", slog.String("drawing", doc.Drawing), slog.String("error", err.Error()))
		}
	}

	if !r.options.noReport {
		if _, err := report.Write(summary, cfg.Folders.Output, cfg.Reports); err != nil {
			log.Warn("report not written", slog.String("error", err.Error()))
		}
	}
	return summary, runErr
}

// Monitor runs batch extraction on the configured cron schedule until
// the context is cancelled.
func (r *Runner) Monitor(ctx context.Context) error {
	if r.err != nil {
		return r.err
	}
	schedule := r.options.cfg.MonitorSchedule
	if schedule == "" {
		return fmt.Errorf("no monitor_schedule configured")
	}

	scanner := scan.New(r.options.cfg, r.options.logger)
	return scanner.Monitor(ctx, schedule, func() {
		if _, err := r.Run(ctx); err != nil && ctx.Err() == nil {
			r.options.logger.Error("monitor run failed", slog.String("error", err.Error()))
		}
	})
}

// gather resolves the run's drawings into decoded pipeline inputs.
// Files that cannot be decoded are skipped with a warning rather than
// failing the batch.
func (r *Runner) gather(scanner *scan.Scanner) ([]pipeline.Input, error) {
	var drawings []model.Drawing
	if r.batch {
		var err error
		drawings, err = scanner.Discover()
		if err != nil {
			return nil, err
		}
	} else {
		if len(r.files) == 0 {
			return nil, fmt.Errorf("no drawing files given")
		}
		for _, f := range r.files {
			drawings = append(drawings, model.Drawing{Name: stem(f), SourcePath: f})
		}
	}

	inputs := make([]pipeline.Input, 0, len(drawings))
	for _, d := range drawings {
		in, err := scanner.Load(d)
		if err != nil {
			if !r.batch {
				return nil, err
			}
			r.options.logger.Warn("drawing skipped", slog.String("file", d.SourcePath), slog.String("error", err.Error()))
			continue
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

// stem strips the directory and extension from a file path.
func stem(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// Must is a helper that wraps a call to a function returning (T, error)
// and panics if the error is non-nil. It is intended for use in scripts
// or tests where error handling would be cumbersome.
func Must[T any](val T, err error) T {
	if err != nil {
		panic(err)
	}
	return val
}
