// Package config loads and validates the project configuration.
//
// Configuration lives in a YAML project file decoded strictly: unknown
// keys are a load error, not a silent no-op, so a typo in a threshold
// name cannot quietly fall back to a default. Processing-mode presets
// (fast, balanced, high_quality) set the OCR and preprocessing knobs in
// one step; individual keys may still override them.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tsawler/tagsight/classify"
	"github.com/tsawler/tagsight/dedupe"
	"github.com/tsawler/tagsight/model"
	"github.com/tsawler/tagsight/multipass"
	"github.com/tsawler/tagsight/preprocess"
)

// Mode is a processing-mode preset name.
type Mode string

// Processing modes
const (
	ModeFast        Mode = "fast"
	ModeBalanced    Mode = "balanced"
	ModeHighQuality Mode = "high_quality"
)

// OCR holds recognition settings.
type OCR struct {
	// Language is the Tesseract language code ("eng", "eng+fra", ...)
	Language string `yaml:"ocr_language"`

	// DPI is the base render resolution
	DPI int `yaml:"ocr_dpi"`

	// AdaptiveDPI enables resolution escalation for low-yield regions
	AdaptiveDPI bool `yaml:"adaptive_dpi"`

	// DPIMin and DPIMax bound the adaptive ladder
	DPIMin int `yaml:"dpi_min"`
	DPIMax int `yaml:"dpi_max"`

	// MultiPass enables the preprocessing strategy sweep
	MultiPass bool `yaml:"use_multi_pass_ocr"`

	// Rotate adds 90/180/270 degree passes for rotated drawings
	Rotate bool `yaml:"rotate_for_ocr"`

	// VerticalText adds the 90/270 passes even when Rotate is off,
	// for vertical tag stems
	VerticalText bool `yaml:"extract_vertical_text"`

	// MinTextConfidence is the classification confidence floor, 0-100
	MinTextConfidence float64 `yaml:"min_text_confidence"`

	// PassTimeoutSeconds bounds a single OCR invocation
	PassTimeoutSeconds int `yaml:"pass_timeout_seconds"`
}

// Preprocessing holds image enhancement settings.
type Preprocessing struct {
	// Enabled turns the strategy sweep on
	Enabled bool `yaml:"preprocess_images"`

	// Contrast is the contrast enhancement factor
	Contrast float64 `yaml:"enhance_contrast"`

	// Sharpness is the sharpening strength
	Sharpness float64 `yaml:"enhance_sharpness"`

	// Denoise includes the median-filter pass
	Denoise bool `yaml:"denoise"`
}

// Dedup holds spatial deduplication thresholds.
type Dedup struct {
	// OverlapThreshold is the minimum bounding-box overlap ratio for two
	// detections to be merge candidates, 0-1
	OverlapThreshold float64 `yaml:"overlap_threshold"`

	// EditTolerance is the maximum edit distance for texts to be
	// considered the same tag
	EditTolerance int `yaml:"edit_tolerance"`

	// TieBreak is "keep_distinct" or "merge_to_strongest"
	TieBreak string `yaml:"tie_break"`
}

// Classification holds rule evaluation policy.
type Classification struct {
	// PatternFile is the path to the pattern mapping XML
	PatternFile string `yaml:"pattern_mapping_file"`

	// DefaultContext is the fallback hierarchy, "|"-separated
	DefaultContext string `yaml:"default_context"`

	// DefaultClass is assigned to unmatched candidates when set
	DefaultClass string `yaml:"default_class"`

	// DropUnmatched discards unmatched candidates. Mutually exclusive
	// with DefaultClass.
	DropUnmatched bool `yaml:"drop_unmatched"`
}

// Folders holds the scan directory layout.
type Folders struct {
	Source      string `yaml:"source"`
	Staging     string `yaml:"staging"`
	Processed   string `yaml:"processed"`
	Unprocessed string `yaml:"unprocessed"`
	Output      string `yaml:"output"`
	Log         string `yaml:"log"`

	// IncludeSubfolders recurses into the source tree
	IncludeSubfolders bool `yaml:"include_subfolders"`
}

// Reports selects run summary outputs.
type Reports struct {
	HTML bool `yaml:"html"`
	JSON bool `yaml:"json"`
}

// Config is the full project configuration.
type Config struct {
	// Mode applies a preset before the explicit keys; empty keeps them
	Mode Mode `yaml:"mode"`

	OCR            OCR            `yaml:"ocr"`
	Preprocessing  Preprocessing  `yaml:"preprocessing"`
	Dedup          Dedup          `yaml:"dedup"`
	Classification Classification `yaml:"classification"`
	Folders        Folders        `yaml:"folders"`
	Reports        Reports        `yaml:"reports"`

	// DetectRegions splits pages into title-block band plus grid tiles
	DetectRegions bool `yaml:"detect_regions"`

	// Workers bounds concurrent drawing pipelines. Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// MoveProcessed routes finished files to processed/unprocessed
	MoveProcessed bool `yaml:"move_processed"`

	// CreateTriggerFile writes trigger.start next to each export
	CreateTriggerFile bool `yaml:"create_trigger_file"`

	// SearchFilenames also runs classification over drawing file names
	SearchFilenames bool `yaml:"search_filenames_for_tags"`

	// MonitorSchedule is a cron expression for monitor mode; empty
	// disables it
	MonitorSchedule string `yaml:"monitor_schedule"`
}

// Default returns the balanced-mode configuration.
func Default() Config {
	cfg := Config{
		Mode: ModeBalanced,
		OCR: OCR{
			Language:           "eng",
			DPI:                300,
			DPIMin:             300,
			DPIMax:             500,
			MinTextConfidence:  60,
			PassTimeoutSeconds: 30,
		},
		Preprocessing: Preprocessing{
			Contrast:  1.5,
			Sharpness: 1.5,
		},
		Dedup: Dedup{
			OverlapThreshold: 0.5,
			EditTolerance:    1,
			TieBreak:         "keep_distinct",
		},
		Classification: Classification{
			DefaultContext: "Plant|Process Area",
		},
		Folders: Folders{
			Source:      "input",
			Staging:     "staging",
			Processed:   "processed",
			Unprocessed: "unprocessed",
			Output:      "output",
			Log:         "log",
		},
		Reports:       Reports{HTML: true, JSON: true},
		DetectRegions: true,
		MoveProcessed: true,
	}
	cfg.applyMode()
	return cfg
}

// Load reads and validates a YAML project file. Decoding is strict:
// unknown keys fail the load.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("opening config %s: %w", path, err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a YAML project config from a reader. Defaults and the
// mode preset are applied before the file's keys, so an explicit key
// always wins over its preset value.
func Parse(r io.Reader) (Config, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}

	// First pass pulls out the mode so the preset can seed the defaults
	// the strict decode then overlays.
	var head struct {
		Mode Mode `yaml:"mode"`
	}
	if err := yaml.Unmarshal(raw, &head); err != nil {
		return Config{}, fmt.Errorf("decoding: %w", err)
	}

	cfg := Default()
	if head.Mode != "" {
		cfg.Mode = head.Mode
		cfg.applyMode()
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return Config{}, fmt.Errorf("decoding: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyMode sets the knobs a preset controls. Explicit keys decoded
// after the preset win because decoding happens over the preset values.
func (c *Config) applyMode() {
	switch c.Mode {
	case ModeFast:
		c.OCR.MultiPass = false
		c.OCR.AdaptiveDPI = false
		c.OCR.Rotate = false
		c.Preprocessing.Enabled = false
	case ModeBalanced:
		c.OCR.MultiPass = true
		c.OCR.AdaptiveDPI = true
		c.OCR.DPIMax = max(c.OCR.DPIMax, 500)
		c.Preprocessing.Enabled = true
	case ModeHighQuality:
		c.OCR.MultiPass = true
		c.OCR.AdaptiveDPI = true
		c.OCR.DPIMax = max(c.OCR.DPIMax, 600)
		c.OCR.Rotate = true
		c.OCR.VerticalText = true
		c.Preprocessing.Enabled = true
		c.Preprocessing.Denoise = true
	}
}

// ValidationError reports a single invalid configuration value.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Msg)
}

// Validate checks value ranges and cross-field constraints.
func (c *Config) Validate() error {
	switch c.Mode {
	case "", ModeFast, ModeBalanced, ModeHighQuality:
	default:
		return &ValidationError{"mode", fmt.Sprintf("unknown mode %q", c.Mode)}
	}

	if c.OCR.DPI <= 0 {
		return &ValidationError{"ocr.ocr_dpi", "must be positive"}
	}
	if c.OCR.AdaptiveDPI {
		if c.OCR.DPIMin <= 0 || c.OCR.DPIMax < c.OCR.DPIMin {
			return &ValidationError{"ocr.dpi_min/dpi_max", "need 0 < dpi_min <= dpi_max"}
		}
	}
	if c.OCR.MinTextConfidence < 0 || c.OCR.MinTextConfidence > 100 {
		return &ValidationError{"ocr.min_text_confidence", "must be in [0, 100]"}
	}
	if c.OCR.Language == "" {
		return &ValidationError{"ocr.ocr_language", "must not be empty"}
	}

	if c.Dedup.OverlapThreshold < 0 || c.Dedup.OverlapThreshold > 1 {
		return &ValidationError{"dedup.overlap_threshold", "must be in [0, 1]"}
	}
	if c.Dedup.EditTolerance < 0 {
		return &ValidationError{"dedup.edit_tolerance", "must not be negative"}
	}
	if _, err := c.tieBreak(); err != nil {
		return err
	}

	// The unmatched policy must be explicit one way: a default class and
	// drop_unmatched together are contradictory.
	if c.Classification.DefaultClass != "" && c.Classification.DropUnmatched {
		return &ValidationError{"classification", "default_class and drop_unmatched are mutually exclusive"}
	}

	if c.Workers < 0 {
		return &ValidationError{"workers", "must not be negative"}
	}
	return nil
}

func (c *Config) tieBreak() (dedupe.TieBreak, error) {
	switch c.Dedup.TieBreak {
	case "", "keep_distinct":
		return dedupe.KeepDistinct, nil
	case "merge_to_strongest":
		return dedupe.MergeToStrongest, nil
	default:
		return 0, &ValidationError{"dedup.tie_break", fmt.Sprintf("unknown policy %q", c.Dedup.TieBreak)}
	}
}

// MultipassConfig builds the pass plan from the OCR and preprocessing
// settings.
func (c *Config) MultipassConfig() multipass.Config {
	mc := multipass.DefaultConfig()
	mc.BaseDPI = c.OCR.DPI
	mc.PassTimeout = time.Duration(c.OCR.PassTimeoutSeconds) * time.Second
	mc.Preprocess = c.PreprocessConfig()

	if c.OCR.MultiPass && c.Preprocessing.Enabled {
		strategies := []model.Strategy{
			model.StrategyNone,
			model.StrategyGrayscale,
			model.StrategyContrast,
			model.StrategySharpen,
			model.StrategyThreshold,
			model.StrategyInvert,
		}
		if c.Preprocessing.Denoise {
			strategies = append(strategies, model.StrategyDenoise)
		}
		mc.Strategies = strategies
	} else {
		mc.Strategies = []model.Strategy{model.StrategyNone}
	}

	switch {
	case c.OCR.Rotate:
		mc.Rotations = []model.Rotation{model.Rotate0, model.Rotate90, model.Rotate180, model.Rotate270}
	case c.OCR.VerticalText:
		mc.Rotations = []model.Rotation{model.Rotate0, model.Rotate90, model.Rotate270}
	default:
		mc.Rotations = []model.Rotation{model.Rotate0}
	}

	if c.OCR.AdaptiveDPI {
		mc.AdaptiveDPI = dpiLadder(c.OCR.DPI, c.OCR.DPIMin, c.OCR.DPIMax)
	} else {
		mc.AdaptiveDPI = nil
	}
	return mc
}

// dpiLadder builds the escalation steps above the base resolution in
// 100 DPI increments.
func dpiLadder(base, min, max int) []int {
	var ladder []int
	for dpi := base + 100; dpi <= max; dpi += 100 {
		if dpi >= min {
			ladder = append(ladder, dpi)
		}
	}
	return ladder
}

// PreprocessConfig builds the strategy tuning parameters.
func (c *Config) PreprocessConfig() preprocess.Config {
	pc := preprocess.DefaultConfig()
	if c.Preprocessing.Contrast > 0 {
		pc.Contrast = c.Preprocessing.Contrast
	}
	if c.Preprocessing.Sharpness > 0 {
		pc.Sharpness = c.Preprocessing.Sharpness
	}
	return pc
}

// DedupeConfig builds the deduplication thresholds.
func (c *Config) DedupeConfig() dedupe.Config {
	tb, _ := c.tieBreak()
	return dedupe.Config{
		OverlapThreshold: c.Dedup.OverlapThreshold,
		EditTolerance:    c.Dedup.EditTolerance,
		TieBreak:         tb,
	}
}

// ClassifyConfig builds the classification policy.
func (c *Config) ClassifyConfig() classify.Config {
	return classify.Config{
		MinConfidence: c.OCR.MinTextConfidence,
		DefaultClass:  c.Classification.DefaultClass,
	}
}

// DefaultContext parses the configured fallback hierarchy.
func (c *Config) DefaultContext() model.Context {
	return model.ParseContext(c.Classification.DefaultContext)
}
