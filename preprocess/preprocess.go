// Package preprocess prepares rendered page images for OCR passes.
//
// Each [model.Strategy] maps to one image transformation tuned for a
// different failure mode of scanned engineering drawings: faded prints,
// small stencilled text, scan noise, inverted title blocks. The
// multi-pass aggregator runs the same region through several strategies
// and lets deduplication reconcile the results.
package preprocess

import (
	"image"
	"image/color"
	"sort"

	"github.com/tsawler/tagsight/model"
)

// Config holds tunable preprocessing parameters.
type Config struct {
	// Contrast is the contrast enhancement factor (1.0 = unchanged)
	Contrast float64

	// Sharpness is the sharpening strength (1.0 = unchanged)
	Sharpness float64

	// Threshold is the binarization cutoff, 0-255
	Threshold uint8
}

// DefaultConfig returns moderate contrast and sharpening with a
// mid-gray threshold.
func DefaultConfig() Config {
	return Config{
		Contrast:  1.5,
		Sharpness: 1.5,
		Threshold: 128,
	}
}

// Apply runs one preprocessing strategy over an image, returning a new
// image. The input is never modified.
func Apply(img image.Image, strategy model.Strategy, cfg Config) image.Image {
	switch strategy {
	case model.StrategyGrayscale:
		return toGray(img)
	case model.StrategyContrast:
		return adjustContrast(toGray(img), cfg.Contrast)
	case model.StrategySharpen:
		return sharpen(toGray(img), cfg.Sharpness)
	case model.StrategyThreshold:
		return threshold(toGray(img), cfg.Threshold)
	case model.StrategyDenoise:
		return medianFilter(toGray(img))
	case model.StrategyInvert:
		return invert(toGray(img))
	default:
		return img
	}
}

// toGray converts any image to 8-bit grayscale.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x, y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return out
}

// adjustContrast scales pixel values away from mid-gray by factor.
func adjustContrast(img *image.Gray, factor float64) *image.Gray {
	if factor == 1.0 {
		return img
	}
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			v := float64(img.GrayAt(x, y).Y)
			v = (v-128)*factor + 128
			out.SetGray(x, y, color.Gray{Y: clamp8(v)})
		}
	}
	return out
}

// sharpen applies an unsharp-mask style 3x3 kernel. Strength 1.0 leaves
// the image unchanged; higher values emphasize edges.
func sharpen(img *image.Gray, strength float64) *image.Gray {
	if strength <= 1.0 {
		return img
	}
	amount := strength - 1.0
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			center := float64(img.GrayAt(x, y).Y)
			blur := neighborhoodMean(img, x, y)
			v := center + amount*(center-blur)
			out.SetGray(x, y, color.Gray{Y: clamp8(v)})
		}
	}
	return out
}

// threshold binarizes the image at the cutoff.
func threshold(img *image.Gray, cutoff uint8) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if img.GrayAt(x, y).Y >= cutoff {
				out.SetGray(x, y, color.Gray{Y: 255})
			} else {
				out.SetGray(x, y, color.Gray{Y: 0})
			}
		}
	}
	return out
}

// medianFilter applies a 3x3 median filter to remove salt-and-pepper
// scan artifacts.
func medianFilter(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	window := make([]uint8, 0, 9)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			window = window[:0]
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
						continue
					}
					window = append(window, img.GrayAt(nx, ny).Y)
				}
			}
			sort.Slice(window, func(i, j int) bool { return window[i] < window[j] })
			out.SetGray(x, y, color.Gray{Y: window[len(window)/2]})
		}
	}
	return out
}

// invert flips pixel values, for white-on-dark title blocks.
func invert(img *image.Gray) *image.Gray {
	b := img.Bounds()
	out := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.SetGray(x, y, color.Gray{Y: 255 - img.GrayAt(x, y).Y})
		}
	}
	return out
}

// neighborhoodMean averages the 3x3 neighborhood around (x, y).
func neighborhoodMean(img *image.Gray, x, y int) float64 {
	b := img.Bounds()
	sum, n := 0.0, 0
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			nx, ny := x+dx, y+dy
			if nx < b.Min.X || nx >= b.Max.X || ny < b.Min.Y || ny >= b.Max.Y {
				continue
			}
			sum += float64(img.GrayAt(nx, ny).Y)
			n++
		}
	}
	return sum / float64(n)
}

func clamp8(v float64) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
