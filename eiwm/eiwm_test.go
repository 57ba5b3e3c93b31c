package eiwm

import (
	"bytes"
	"strings"
	"testing"

	"github.com/tsawler/tagsight/model"
)

func tag(id, class string, ctx model.Context) model.ClassifiedTag {
	return model.ClassifiedTag{
		ID:            id,
		ClassID:       class,
		Context:       ctx,
		Confidence:    80,
		SourceDrawing: "PID-001",
		Associations:  []model.Association{{Type: model.AssociationReferencedIn, Object: "PID-001"}},
	}
}

// ============================================================================
// Resolver Tests
// ============================================================================

func TestResolvePriority(t *testing.T) {
	def := model.ParseContext("Plant|Default Area")
	r := NewResolver(def)

	tests := []struct {
		name     string
		tagCtx   model.Context
		override model.Context
		want     string
	}{
		{"default applies", nil, nil, "Plant|Default Area"},
		{"rule hint beats default", model.ParseContext("Plant|Valves"), nil, "Plant|Valves"},
		{"override beats rule hint", model.ParseContext("Plant|Valves"), model.ParseContext("Plant B|Area 9"), "Plant B|Area 9"},
		{"override beats default", nil, model.ParseContext("Plant B|Area 9"), "Plant B|Area 9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tags := r.Resolve([]model.ClassifiedTag{tag("013-HV-54149", "Valve", tt.tagCtx)}, tt.override)
			if got := tags[0].Context.String(); got != tt.want {
				t.Errorf("Context = %q, want %q", got, tt.want)
			}
		})
	}
}

// ============================================================================
// Export Tests
// ============================================================================

func TestWriteXML(t *testing.T) {
	export := NewExport("PID-001", []model.ClassifiedTag{
		tag("013-HV-54149", "Valve", model.ParseContext("Plant A|Process Area 2")),
	})

	var buf bytes.Buffer
	if err := export.WriteXML(&buf); err != nil {
		t.Fatalf("WriteXML() error: %v", err)
	}
	out := buf.String()

	for _, want := range []string{
		"<Objects>",
		"<ID>013-HV-54149</ID>",
		"<Context>",
		"<ID>Plant A</ID>",
		"<ID>Process Area 2</ID>",
		"<ClassID>Valve</ClassID>",
		`<Association type="is referenced in">`,
		"<ID>PID-001</ID>",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteXMLSortedAndStable(t *testing.T) {
	tags := []model.ClassifiedTag{
		tag("B-TAG", "Valve", nil),
		tag("A-TAG", "Equipment", nil),
	}

	export := NewExport("PID-001", tags)

	var first bytes.Buffer
	if err := export.WriteXML(&first); err != nil {
		t.Fatalf("WriteXML() error: %v", err)
	}

	if strings.Index(first.String(), "A-TAG") > strings.Index(first.String(), "B-TAG") {
		t.Error("objects not sorted by ID")
	}

	// Byte-identical across repeated serialization.
	var second bytes.Buffer
	if err := NewExport("PID-001", tags).WriteXML(&second); err != nil {
		t.Fatalf("WriteXML() error: %v", err)
	}
	if !bytes.Equal(first.Bytes(), second.Bytes()) {
		t.Error("repeated serialization differs")
	}
}

func TestWriteFileRefusesEmpty(t *testing.T) {
	export := NewExport("PID-001", nil)

	path := t.TempDir() + "/out.xml"
	if err := export.WriteFile(path); err == nil {
		t.Fatal("WriteFile() succeeded for empty export, want error")
	}
}

func TestWriteFile(t *testing.T) {
	export := NewExport("PID-001", []model.ClassifiedTag{
		tag("013-E-51001", "Equipment", model.ParseContext("Plant A")),
	})

	path := t.TempDir() + "/out.xml"
	if err := export.WriteFile(path); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
}
