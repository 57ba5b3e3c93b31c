package model

import "strings"

// ContextSeparator separates hierarchy levels in a context string,
// e.g. "Plant A|Process Area 2|Bay B".
const ContextSeparator = "|"

// Context is the ordered hierarchy (plant, area, system, ...) a tag
// belongs to. Level order is outermost first.
type Context []string

// ParseContext splits a pipe-separated context string into levels.
// Blank levels are dropped; a blank string yields a nil context.
func ParseContext(s string) Context {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ContextSeparator)
	ctx := make(Context, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			ctx = append(ctx, p)
		}
	}
	if len(ctx) == 0 {
		return nil
	}
	return ctx
}

// String joins the levels back into pipe-separated form.
func (c Context) String() string {
	return strings.Join(c, ContextSeparator)
}

// IsZero reports whether the context has no levels.
func (c Context) IsZero() bool {
	return len(c) == 0
}

// AssociationReferencedIn is the association type linking a tag to the
// drawing it was found on.
const AssociationReferencedIn = "is referenced in"

// Association is a reference relationship from a tag to another object,
// typically the drawing the tag appears on.
type Association struct {
	Type   string // e.g. "is referenced in"
	Object string // the related object's ID, e.g. the drawing name
}

// ClassifiedTag is the final output unit: one unique tag on one drawing.
// Tags are created once and never mutated afterwards; the XML emitter
// consumes them and they are discarded.
type ClassifiedTag struct {
	// ID is the canonical tag text, e.g. "013-HV-54149"
	ID string

	// ClassID is the class assigned by the matched rule, e.g. "Valve"
	ClassID string

	// Context is the resolved hierarchy the tag belongs to
	Context Context

	// Confidence carried over from the source candidate, 0-100
	Confidence float64

	// SourceDrawing identifies the originating document/page
	SourceDrawing string

	// Associations lists reference relationships for the EIWM export
	Associations []Association

	// Synthesized marks tags produced by Insert/Expand rules rather
	// than a direct detection
	Synthesized bool
}

// Drawing scopes one page (or one single-page document) of a scanned
// engineering document. All detections, candidates and tags produced
// from a drawing are owned by its pipeline instance; tags are never
// merged across drawings. A multi-page document is an ordered sequence
// of drawings.
type Drawing struct {
	// Name identifies the drawing, typically the source file name
	// without extension, suffixed with the page number for multi-page
	// documents
	Name string

	// SourcePath is the file the drawing came from
	SourcePath string

	// PageNumber is 1-indexed within the source document
	PageNumber int

	// Width and Height are the rendered page dimensions in pixels at
	// the base DPI
	Width, Height float64
}

// BBox returns the full-page bounding box of the drawing.
func (d *Drawing) BBox() BBox {
	return NewBBox(0, 0, d.Width, d.Height)
}
