// Command tagsight extracts classified equipment tags from scanned
// engineering drawings and writes EIWM XML exports.
//
// Process the configured source folder once:
//
//	tagsight -c project.yaml
//
// Process specific files:
//
//	tagsight -c project.yaml -f PID-001.png -f PID-002.png
//
// Watch the source folder on the configured schedule:
//
//	tagsight -c project.yaml -monitor
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tsawler/tagsight"
)

type fileList []string

func (f *fileList) String() string { return fmt.Sprint(*f) }

func (f *fileList) Set(v string) error {
	*f = append(*f, v)
	return nil
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath  string
		patternPath string
		contextStr  string
		files       fileList
		monitor     bool
		silent      bool
		verbose     bool
		noReport    bool
	)
	flag.StringVar(&configPath, "c", "", "project configuration YAML")
	flag.StringVar(&patternPath, "p", "", "pattern mapping XML (overrides the configured one)")
	flag.StringVar(&contextStr, "context", "", `context hierarchy override, e.g. "Plant A|Process Area 2"`)
	flag.Var(&files, "f", "drawing image to process (repeatable); default is the configured source folder")
	flag.BoolVar(&monitor, "monitor", false, "keep watching the source folder on the configured schedule")
	flag.BoolVar(&silent, "s", false, "log errors only")
	flag.BoolVar(&verbose, "v", false, "log per-pass detail")
	flag.BoolVar(&noReport, "noReport", false, "skip the HTML/JSON run summary")
	flag.Parse()

	// Optional .env for folder paths and the like; absence is fine.
	_ = godotenv.Load()

	level := slog.LevelInfo
	switch {
	case silent:
		level = slog.LevelError
	case verbose:
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(log)

	var runner *tagsight.Runner
	if len(files) > 0 {
		runner = tagsight.Open(files...)
	} else {
		runner = tagsight.Batch()
	}
	if configPath != "" {
		runner = runner.ConfigFile(configPath)
	}
	if patternPath != "" {
		runner = runner.Patterns(patternPath)
	}
	if contextStr != "" {
		runner = runner.Context(contextStr)
	}
	if noReport {
		runner = runner.NoReport()
	}
	runner = runner.Logger(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if monitor {
		if err := runner.Monitor(ctx); err != nil && ctx.Err() == nil {
			log.Error("monitor failed", slog.String("error", err.Error()))
			return 1
		}
		return 0
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		log.Error("run failed", slog.String("error", err.Error()))
		return 1
	}
	if summary.Processed == 0 && summary.Unprocessed > 0 {
		return 1
	}
	return 0
}
