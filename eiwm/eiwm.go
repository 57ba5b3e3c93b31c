// Package eiwm produces the canonical tag export consumed by the
// downstream EIWM integration system.
//
// It resolves each tag's hierarchical context (document override over
// rule hint over configured default) and serializes the final tag list
// into the fixed <Objects> XML schema.
package eiwm

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/tsawler/tagsight/model"
)

// Resolver assigns hierarchical context to classified tags.
// A Resolver is immutable and safe for concurrent use.
type Resolver struct {
	defaultContext model.Context
}

// NewResolver creates a resolver with the configured default context,
// e.g. ParseContext("Plant A|Process Area 2").
func NewResolver(defaultContext model.Context) *Resolver {
	return &Resolver{defaultContext: defaultContext}
}

// Resolve fills in each tag's context. Priority: per-document override,
// then the rule hint the classifier attached, then the configured
// default. Tags are returned in the input order; the input slice is
// modified in place.
func (r *Resolver) Resolve(tags []model.ClassifiedTag, docOverride model.Context) []model.ClassifiedTag {
	for i := range tags {
		switch {
		case !docOverride.IsZero():
			tags[i].Context = docOverride
		case !tags[i].Context.IsZero():
			// keep the rule hint
		default:
			tags[i].Context = r.defaultContext
		}
	}
	return tags
}

// Export is the canonical in-memory tag list for one drawing, ready for
// serialization. Tags are held in a stable, ID-sorted order so repeated
// runs emit byte-identical documents.
type Export struct {
	Drawing string
	Tags    []model.ClassifiedTag
}

// NewExport builds the export model for one drawing.
func NewExport(drawing string, tags []model.ClassifiedTag) *Export {
	sorted := make([]model.ClassifiedTag, len(tags))
	copy(sorted, tags)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return &Export{Drawing: drawing, Tags: sorted}
}

// Len returns the number of tags in the export.
func (e *Export) Len() int {
	return len(e.Tags)
}

// xmlObjects mirrors the EIWM schema:
//
//	<Objects>
//	  <Object>
//	    <ID>013-HV-54149</ID>
//	    <Context><ID>Plant A</ID></Context>
//	    <Context><ID>Process Area 2</ID></Context>
//	    <ClassID>Valve</ClassID>
//	    <Association type="is referenced in"><Object><ID>PID-001</ID></Object></Association>
//	  </Object>
//	</Objects>
type xmlObjects struct {
	XMLName xml.Name    `xml:"Objects"`
	Objects []xmlObject `xml:"Object"`
}

type xmlObject struct {
	ID           string           `xml:"ID"`
	Contexts     []xmlContext     `xml:"Context"`
	ClassID      string           `xml:"ClassID"`
	Associations []xmlAssociation `xml:"Association"`
}

type xmlContext struct {
	ID string `xml:"ID"`
}

type xmlAssociation struct {
	Type   string         `xml:"type,attr"`
	Object xmlAssocObject `xml:"Object"`
}

type xmlAssocObject struct {
	ID string `xml:"ID"`
}

// WriteXML serializes the export into the EIWM schema.
func (e *Export) WriteXML(w io.Writer) error {
	doc := xmlObjects{Objects: make([]xmlObject, 0, len(e.Tags))}
	for _, tag := range e.Tags {
		obj := xmlObject{
			ID:      tag.ID,
			ClassID: tag.ClassID,
		}
		for _, level := range tag.Context {
			obj.Contexts = append(obj.Contexts, xmlContext{ID: level})
		}
		for _, assoc := range tag.Associations {
			obj.Associations = append(obj.Associations, xmlAssociation{
				Type:   assoc.Type,
				Object: xmlAssocObject{ID: assoc.Object},
			})
		}
		doc.Objects = append(doc.Objects, obj)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encoding EIWM document: %w", err)
	}
	return enc.Close()
}

// WriteFile writes the export to path, creating or truncating it. No
// file is written for an empty export: a drawing with zero tags is
// reported unprocessed, never given an empty EIWM document.
func (e *Export) WriteFile(path string) error {
	if e.Len() == 0 {
		return fmt.Errorf("refusing to write empty EIWM export for %q", e.Drawing)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := e.WriteXML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
