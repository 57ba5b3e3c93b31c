package tagsight

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"log/slog"

	"github.com/tsawler/tagsight/config"
	"github.com/tsawler/tagsight/model"
	"github.com/tsawler/tagsight/multipass"
	"github.com/tsawler/tagsight/ocr"
	"github.com/tsawler/tagsight/pipeline"
)

// runOptions holds the accumulated fluent configuration.
type runOptions struct {
	cfg             config.Config
	patternsPath    string
	contextOverride string
	newRec          pipeline.RecognizerFactory
	logger          *slog.Logger
	noReport        bool
}

// defaultOptions returns the balanced-mode defaults with the Tesseract
// recognizer.
func defaultOptions() runOptions {
	return runOptions{
		cfg:    config.Default(),
		newRec: nil, // resolved lazily so the language setting is final
		logger: slog.Default(),
	}
}

// recognizerFactory resolves the configured factory, falling back to
// Tesseract with the configured language.
func (o *runOptions) recognizerFactory() pipeline.RecognizerFactory {
	if o.newRec != nil {
		return o.newRec
	}
	return TesseractFactory(o.cfg.OCR.Language)
}

// TesseractFactory builds Tesseract-backed recognizers. Without the
// "ocr" build tag every recognizer construction fails and drawings are
// reported with the OCR_CALL_FAILED reason.
func TesseractFactory(lang string) pipeline.RecognizerFactory {
	return func() (multipass.Recognizer, error) {
		client, err := ocr.NewWithLanguage(lang)
		if err != nil {
			return nil, err
		}
		return &tesseractRecognizer{client: client}, nil
	}
}

// tesseractRecognizer adapts the OCR client to the aggregator's
// interface: it encodes the prepared image and asks for word boxes.
type tesseractRecognizer struct {
	client *ocr.Client
}

func (t *tesseractRecognizer) Recognize(ctx context.Context, img image.Image) ([]model.RawDetection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return t.client.Words(buf.Bytes())
}

func (t *tesseractRecognizer) Close() error {
	return t.client.Close()
}
