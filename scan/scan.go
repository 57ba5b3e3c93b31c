// Package scan handles the filesystem side of a run: finding
// drawing images in the source folder, decoding them for the pipeline,
// routing finished files to the processed and unprocessed folders, and
// the scheduled monitor mode.
package scan

import (
	"context"
	"fmt"
	"image"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/robfig/cron/v3"

	// Drawing scans arrive as PNG, JPEG, TIFF or BMP.
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"

	"github.com/tsawler/tagsight/config"
	"github.com/tsawler/tagsight/model"
	"github.com/tsawler/tagsight/pipeline"
)

// imageExts are the drawing file types the scanner picks up.
var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".tif":  true,
	".tiff": true,
	".bmp":  true,
}

// Scanner discovers and routes drawing files per the folder layout in
// the project configuration.
type Scanner struct {
	cfg config.Config
	log *slog.Logger
}

// New creates a scanner.
func New(cfg config.Config, log *slog.Logger) *Scanner {
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{cfg: cfg, log: log}
}

// Discover lists drawing images under the source folder in a stable
// order. Subfolders are included only when the configuration says so.
func (s *Scanner) Discover() ([]model.Drawing, error) {
	root := s.cfg.Folders.Source
	var found []model.Drawing

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && !s.cfg.Folders.IncludeSubfolders {
				return filepath.SkipDir
			}
			return nil
		}
		if !imageExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		name := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		found = append(found, model.Drawing{Name: name, SourcePath: path})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}

	sort.Slice(found, func(i, j int) bool { return found[i].SourcePath < found[j].SourcePath })
	s.log.Info("scan complete", slog.String("folder", root), slog.Int("drawings", len(found)))
	return found, nil
}

// Load decodes a drawing image into a pipeline input.
func (s *Scanner) Load(d model.Drawing) (pipeline.Input, error) {
	f, err := os.Open(d.SourcePath)
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("opening %s: %w", d.SourcePath, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return pipeline.Input{}, fmt.Errorf("decoding %s: %w", d.SourcePath, err)
	}

	d.Width = float64(img.Bounds().Dx())
	d.Height = float64(img.Bounds().Dy())
	return pipeline.Input{Drawing: d, Image: img}, nil
}

// Route moves a finished drawing's source file to the processed or
// unprocessed folder. A no-op when move_processed is off.
func (s *Scanner) Route(res pipeline.DocumentResult) error {
	if !s.cfg.MoveProcessed || res.SourcePath == "" {
		return nil
	}

	dest := s.cfg.Folders.Unprocessed
	if res.Processed {
		dest = s.cfg.Folders.Processed
	}
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return err
	}

	target := filepath.Join(dest, filepath.Base(res.SourcePath))
	if err := os.Rename(res.SourcePath, target); err != nil {
		return fmt.Errorf("routing %s: %w", res.SourcePath, err)
	}
	s.log.Debug("file routed",
		slog.String("drawing", res.Drawing),
		slog.String("to", target),
		slog.Bool("processed", res.Processed))
	return nil
}

// Monitor runs the job on the configured cron schedule until the
// context is cancelled. The job also fires once immediately so a fresh
// monitor does not sit idle until the first tick.
func (s *Scanner) Monitor(ctx context.Context, schedule string, job func()) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, job); err != nil {
		return fmt.Errorf("invalid monitor schedule %q: %w", schedule, err)
	}

	s.log.Info("monitor started", slog.String("schedule", schedule))
	job()
	c.Start()

	<-ctx.Done()
	<-c.Stop().Done()
	s.log.Info("monitor stopped")
	return ctx.Err()
}
