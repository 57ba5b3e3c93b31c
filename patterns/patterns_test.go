package patterns

import (
	"errors"
	"strings"
	"testing"
)

const sampleMapping = `<?xml version="1.0" encoding="UTF-8"?>
<Patterns version="1.0">
  <Pattern from="\d{3}-[A-Z]-\d{5}" to="Equipment"/>
  <Pattern from="\d{3}-HV-\d{5}" to="Valve"/>
  <Pattern from="^DRAFT" exclude="true"/>
  <Pattern from="[A-Z]V-\d{3}" to="Valve">
    <Replace><Original>^[A-Z]V-</Original><Replacement>HV-</Replacement></Replace>
  </Pattern>
  <Pattern from="(\d{3})-EM-(\d{5}[A-Z])-\d{2}" to="Equipment">
    <Insert to="Motor"><Template>$1-EM-$2</Template></Insert>
  </Pattern>
  <Pattern from="\d{3}-EM-\d{5}[A-Z]-[A-Z]" to="Motor">
    <Expand Interpolate="true"><SubPattern>[A-Z]-[A-Z]$</SubPattern><Char>-</Char></Expand>
  </Pattern>
</Patterns>`

func TestParse(t *testing.T) {
	rs, err := Parse(strings.NewReader(sampleMapping))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	if rs.Len() != 6 {
		t.Fatalf("Len() = %d, want 6", rs.Len())
	}
	if len(rs.Excludes()) != 1 {
		t.Errorf("Excludes() = %d rules, want 1", len(rs.Excludes()))
	}
	if len(rs.Inserts()) != 1 {
		t.Errorf("Inserts() = %d rules, want 1", len(rs.Inserts()))
	}
	if len(rs.Consumers()) != 4 {
		t.Errorf("Consumers() = %d rules, want 4", len(rs.Consumers()))
	}
}

func TestParseActionKinds(t *testing.T) {
	rs, err := Parse(strings.NewReader(sampleMapping))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	wantKinds := []Kind{KindMatch, KindMatch, KindExclude, KindReplace, KindInsert, KindExpand}
	for i, rule := range rs.Rules() {
		if rule.Action.Kind() != wantKinds[i] {
			t.Errorf("rule %d: kind = %v, want %v", i+1, rule.Action.Kind(), wantKinds[i])
		}
	}
}

func TestRuleMatchesAnchoring(t *testing.T) {
	rs, err := Parse(strings.NewReader(sampleMapping))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	valve := rs.Rules()[1]   // \d{3}-HV-\d{5}, consuming: whole-text match
	exclude := rs.Rules()[2] // ^DRAFT, exclude: substring match

	if !valve.Matches("013-HV-54149") {
		t.Error("consuming rule should match the exact tag")
	}
	if valve.Matches("XX-013-HV-54149") {
		t.Error("consuming rule must not match a longer string")
	}
	if !exclude.Matches("DRAFT-013-HV-54149") {
		t.Error("exclude rule should match as substring")
	}
}

func TestParsePriorityOrdering(t *testing.T) {
	doc := `<Patterns version="1.0">
  <Pattern from="B" to="ClassB" priority="20"/>
  <Pattern from="A" to="ClassA" priority="10"/>
  <Pattern from="C" to="ClassC" priority="10"/>
</Patterns>`

	rs, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	got := make([]string, 0, 3)
	for _, r := range rs.Consumers() {
		got = append(got, r.Class)
	}
	// Ascending priority, file position breaking the tie.
	want := []string{"ClassA", "ClassC", "ClassB"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("evaluation order = %v, want %v", got, want)
		}
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name     string
		doc      string
		position int
	}{
		{
			"malformed xml",
			`<Patterns version="1.0"><Pattern from="a" to="X">`,
			0,
		},
		{
			"bad regex reports position",
			`<Patterns version="1.0">
  <Pattern from="\d{3}" to="OK"/>
  <Pattern from="[unclosed" to="Bad"/>
</Patterns>`,
			2,
		},
		{
			"missing from",
			`<Patterns version="1.0"><Pattern to="X"/></Patterns>`,
			1,
		},
		{
			"missing to",
			`<Patterns version="1.0"><Pattern from="\d+"/></Patterns>`,
			1,
		},
		{
			"empty file",
			`<Patterns version="1.0"></Patterns>`,
			0,
		},
		{
			"conflicting actions",
			`<Patterns version="1.0">
  <Pattern from="\d+" to="X" exclude="true">
    <Replace><Original>a</Original><Replacement>b</Replacement></Replace>
  </Pattern>
</Patterns>`,
			1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.doc))
			if err == nil {
				t.Fatal("Parse() succeeded, want ConfigurationError")
			}
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("error type = %T, want *ConfigurationError", err)
			}
			if cfgErr.Position != tt.position {
				t.Errorf("Position = %d, want %d", cfgErr.Position, tt.position)
			}
		})
	}
}

func TestParseContextHint(t *testing.T) {
	doc := `<Patterns version="1.0">
  <Pattern from="\d{3}-HV-\d{5}" to="Valve" context="Plant A|Valves"/>
</Patterns>`

	rs, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}

	rule := rs.Rules()[0]
	if rule.Context.String() != "Plant A|Valves" {
		t.Errorf("Context = %q, want %q", rule.Context.String(), "Plant A|Valves")
	}
}

func TestInsertOnlyClass(t *testing.T) {
	// An insert rule may omit to= on the Pattern if the Insert carries it.
	doc := `<Patterns version="1.0">
  <Pattern from="(\d{3})-EM-(\d{5}[A-Z])-\d{2}">
    <Insert to="Motor"><Template>$1-EM-$2</Template></Insert>
  </Pattern>
</Patterns>`

	rs, err := Parse(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("Parse() error: %v", err)
	}
	ins, ok := rs.Inserts()[0].Action.(InsertAction)
	if !ok {
		t.Fatalf("action = %T, want InsertAction", rs.Inserts()[0].Action)
	}
	if ins.Class != "Motor" {
		t.Errorf("insert class = %q, want Motor", ins.Class)
	}
}
