package pipeline

import (
	"fmt"
	"image"
)

// Region is one OCR unit of a page. Splitting a large drawing into
// regions keeps Tesseract's layout analysis local and lets the title
// block get its own focused pass.
type Region struct {
	// Name identifies the region in logs and pass statistics
	Name string

	// Rect is the region's pixel rectangle in page coordinates
	Rect image.Rectangle
}

// gridTiles is the page split used when region detection is on.
const gridTiles = 2

// titleBlockHeightFrac and titleBlockWidthFrac locate the title block,
// which on standard drawing frames sits in the bottom-right corner.
const (
	titleBlockHeightFrac = 0.25
	titleBlockWidthFrac  = 0.40
)

// tileOverlapFrac overlaps adjacent tiles so tags straddling a tile
// boundary are seen whole by at least one tile.
const tileOverlapFrac = 0.05

// SplitRegions divides a page into OCR regions. With detection off the
// whole page is one region. With detection on, the title block band is
// extracted first and the page is tiled in an overlapping grid.
// The result order is deterministic.
func SplitRegions(bounds image.Rectangle, detect bool) []Region {
	if !detect || bounds.Dx() == 0 || bounds.Dy() == 0 {
		return []Region{{Name: "page", Rect: bounds}}
	}

	w, h := bounds.Dx(), bounds.Dy()

	regions := []Region{{
		Name: "title-block",
		Rect: image.Rect(
			bounds.Min.X+int(float64(w)*(1-titleBlockWidthFrac)),
			bounds.Min.Y+int(float64(h)*(1-titleBlockHeightFrac)),
			bounds.Max.X,
			bounds.Max.Y,
		),
	}}

	tileW := w / gridTiles
	tileH := h / gridTiles
	overlapX := int(float64(w) * tileOverlapFrac)
	overlapY := int(float64(h) * tileOverlapFrac)

	for row := 0; row < gridTiles; row++ {
		for col := 0; col < gridTiles; col++ {
			r := image.Rect(
				bounds.Min.X+col*tileW-overlapX,
				bounds.Min.Y+row*tileH-overlapY,
				bounds.Min.X+(col+1)*tileW+overlapX,
				bounds.Min.Y+(row+1)*tileH+overlapY,
			).Intersect(bounds)
			regions = append(regions, Region{
				Name: fmt.Sprintf("tile-%d-%d", row, col),
				Rect: r,
			})
		}
	}
	return regions
}

// subImager is satisfied by every stdlib image type.
type subImager interface {
	SubImage(image.Rectangle) image.Image
}

// crop extracts a region from the page image without copying when the
// underlying type supports it.
func crop(img image.Image, rect image.Rectangle) image.Image {
	if s, ok := img.(subImager); ok {
		return s.SubImage(rect)
	}
	out := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			out.Set(x-rect.Min.X, y-rect.Min.Y, img.At(x, y))
		}
	}
	return out
}
