//go:build ocr

// Package ocr recognizes text in rendered drawing regions.
//
// This package wraps the Tesseract OCR engine via gosseract. It requires
// Tesseract to be installed on the system. On macOS, install via:
//
//	brew install tesseract
//
// On Ubuntu/Debian:
//
//	apt-get install tesseract-ocr
package ocr

import (
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/tsawler/tagsight/model"
)

// Client wraps Tesseract for OCR operations. A Client is not safe for
// concurrent use; each worker owns its own.
type Client struct {
	client *gosseract.Client
}

// New creates a new OCR client with the default language (English).
// The client should be closed when no longer needed to release resources.
func New() (*Client, error) {
	return NewWithLanguage("eng")
}

// NewWithLanguage creates an OCR client for the given Tesseract language
// code. Multiple languages can be specified "+" separated (e.g. "eng+fra").
func NewWithLanguage(lang string) (*Client, error) {
	client := gosseract.NewClient()
	if err := client.SetLanguage(lang); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting OCR language %q: %w", lang, err)
	}
	// Drawings carry sparse, scattered text rather than paragraphs.
	if err := client.SetPageSegMode(gosseract.PSM_SPARSE_TEXT); err != nil {
		client.Close()
		return nil, fmt.Errorf("setting page segmentation mode: %w", err)
	}
	return &Client{client: client}, nil
}

// Close releases OCR resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// Words performs OCR on image data (PNG, TIFF, JPEG, etc.) and returns
// one detection per recognized word, with its bounding box in image
// coordinates and the engine's confidence. Empty words are dropped.
func (c *Client) Words(imageData []byte) ([]model.RawDetection, error) {
	if err := c.client.SetImageFromBytes(imageData); err != nil {
		return nil, fmt.Errorf("failed to set image: %w", err)
	}

	boxes, err := c.client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return nil, fmt.Errorf("OCR failed: %w", err)
	}

	out := make([]model.RawDetection, 0, len(boxes))
	for _, b := range boxes {
		text := strings.TrimSpace(b.Word)
		if text == "" {
			continue
		}
		out = append(out, model.RawDetection{
			Text: text,
			BBox: model.NewBBox(
				float64(b.Box.Min.X),
				float64(b.Box.Min.Y),
				float64(b.Box.Dx()),
				float64(b.Box.Dy()),
			),
			Confidence: b.Confidence,
		})
	}
	return out, nil
}

// SetWhitelist restricts recognition to the given characters. Tag text
// is uppercase alphanumerics plus a few separators, and a whitelist
// stops the engine from hallucinating lowercase lookalikes.
func (c *Client) SetWhitelist(chars string) error {
	return c.client.SetWhitelist(chars)
}

// SetPageSegMode sets the page segmentation mode.
// See gosseract.PageSegMode constants for available modes.
func (c *Client) SetPageSegMode(mode gosseract.PageSegMode) error {
	return c.client.SetPageSegMode(mode)
}
