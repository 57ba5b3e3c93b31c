package preprocess

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/tsawler/tagsight/model"
)

// Rotate returns the image rotated clockwise by a quarter-turn amount.
// Rotate0 returns the input unchanged.
func Rotate(img image.Image, rot model.Rotation) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	switch rot {
	case model.Rotate90:
		out := image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(h-1-y, x, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return out
	case model.Rotate180:
		out := image.NewRGBA(image.Rect(0, 0, w, h))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(w-1-x, h-1-y, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return out
	case model.Rotate270:
		out := image.NewRGBA(image.Rect(0, 0, h, w))
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				out.Set(y, w-1-x, img.At(b.Min.X+x, b.Min.Y+y))
			}
		}
		return out
	default:
		return img
	}
}

// ScaleToDPI resamples the image from one nominal density to another
// using Catmull-Rom interpolation. Equal densities return the input
// unchanged.
func ScaleToDPI(img image.Image, fromDPI, toDPI int) image.Image {
	if fromDPI <= 0 || toDPI <= 0 || fromDPI == toDPI {
		return img
	}
	b := img.Bounds()
	factor := float64(toDPI) / float64(fromDPI)
	w := int(float64(b.Dx()) * factor)
	h := int(float64(b.Dy()) * factor)
	if w < 1 || h < 1 {
		return img
	}
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(out, out.Bounds(), img, b, xdraw.Over, nil)
	return out
}

// UnrotateBBox maps a detection box from rotated image coordinates back
// to the original page orientation. pageW and pageH are the dimensions
// of the unrotated page.
func UnrotateBBox(b model.BBox, rot model.Rotation, pageW, pageH float64) model.BBox {
	switch rot {
	case model.Rotate90:
		// Rotated space is pageH wide. Point (x', y') came from
		// (y', pageH - x').
		return model.NewBBoxFromCorners(
			model.Point{X: b.Top(), Y: pageH - b.Right()},
			model.Point{X: b.Bottom(), Y: pageH - b.Left()},
		)
	case model.Rotate180:
		return model.NewBBoxFromCorners(
			model.Point{X: pageW - b.Right(), Y: pageH - b.Bottom()},
			model.Point{X: pageW - b.Left(), Y: pageH - b.Top()},
		)
	case model.Rotate270:
		return model.NewBBoxFromCorners(
			model.Point{X: pageW - b.Bottom(), Y: b.Left()},
			model.Point{X: pageW - b.Top(), Y: b.Right()},
		)
	default:
		return b
	}
}

// UnscaleBBox maps a detection box from a resampled image back to the
// base density.
func UnscaleBBox(b model.BBox, fromDPI, toDPI int) model.BBox {
	if fromDPI <= 0 || toDPI <= 0 || fromDPI == toDPI {
		return b
	}
	factor := float64(fromDPI) / float64(toDPI)
	return model.NewBBoxFromCorners(
		model.Point{X: b.Left() * factor, Y: b.Top() * factor},
		model.Point{X: b.Right() * factor, Y: b.Bottom() * factor},
	)
}
