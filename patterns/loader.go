package patterns

import (
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/tsawler/tagsight/model"
)

// xmlPatterns mirrors the root element of the mapping file:
//
//	<Patterns version="1.0">
//	  <Pattern from="\d{3}-HV-\d{5}" to="Valve"/>
//	  <Pattern from="^DRAFT" exclude="true"/>
//	  <Pattern from="[A-Z]-\d{3}" to="Valve">
//	    <Replace><Original>[A-Z]-</Original><Replacement>HV-</Replacement></Replace>
//	  </Pattern>
//	  <Pattern from="(\d{3})-EM-(\d{5}[A-Z])-\d{2}" to="Equipment">
//	    <Insert to="Motor"><Template>$1-EM-$2</Template></Insert>
//	  </Pattern>
//	  <Pattern from="\d{3}-EM-\d{5}[A-Z]-[A-Z]" to="Motor">
//	    <Expand Interpolate="true"><SubPattern>[A-Z]-[A-Z]</SubPattern><Char>-</Char></Expand>
//	  </Pattern>
//	</Patterns>
type xmlPatterns struct {
	XMLName  xml.Name     `xml:"Patterns"`
	Version  string       `xml:"version,attr"`
	Patterns []xmlPattern `xml:"Pattern"`
}

type xmlPattern struct {
	From     string      `xml:"from,attr"`
	To       string      `xml:"to,attr"`
	Context  string      `xml:"context,attr"`
	Priority int         `xml:"priority,attr"`
	Exclude  string      `xml:"exclude,attr"`
	ExcludeE *struct{}   `xml:"Exclude"`
	Replace  *xmlReplace `xml:"Replace"`
	Insert   *xmlInsert  `xml:"Insert"`
	Expand   *xmlExpand  `xml:"Expand"`
}

type xmlReplace struct {
	Original    string `xml:"Original"`
	Replacement string `xml:"Replacement"`
}

type xmlInsert struct {
	To       string `xml:"to,attr"`
	Template string `xml:"Template"`
}

type xmlExpand struct {
	Interpolate bool   `xml:"Interpolate,attr"`
	SubPattern  string `xml:"SubPattern"`
	Char        string `xml:"Char"`
}

// Load reads and compiles a pattern mapping file. Any malformed rule or
// regex yields a *ConfigurationError identifying the offending rule's
// position; processing must not start in that case.
func Load(path string) (*RuleSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigurationError{Err: err}
	}
	defer f.Close()
	return Parse(f)
}

// Parse reads and compiles a pattern mapping document from r.
func Parse(r io.Reader) (*RuleSet, error) {
	var doc xmlPatterns
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, &ConfigurationError{Err: fmt.Errorf("malformed XML: %w", err)}
	}
	if len(doc.Patterns) == 0 {
		return nil, &ConfigurationError{Err: fmt.Errorf("no <Pattern> entries")}
	}

	rules := make([]*Rule, 0, len(doc.Patterns))
	for i, p := range doc.Patterns {
		rule, err := compileRule(p, i+1)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return NewRuleSet(rules), nil
}

func compileRule(p xmlPattern, pos int) (*Rule, error) {
	if p.From == "" {
		return nil, &ConfigurationError{Position: pos, Err: fmt.Errorf("missing from attribute")}
	}

	re, err := regexp.Compile(p.From)
	if err != nil {
		return nil, &ConfigurationError{Position: pos, Pattern: p.From, Err: err}
	}

	rule := &Rule{
		Pattern:  re,
		Source:   p.From,
		Class:    p.To,
		Context:  model.ParseContext(p.Context),
		Priority: p.Priority,
		Position: pos,
	}

	action, err := compileAction(p, pos)
	if err != nil {
		return nil, err
	}
	rule.Action = action

	if _, excluded := action.(ExcludeAction); !excluded && rule.Class == "" {
		// Insert rules may carry their own target class instead.
		ins, ok := action.(InsertAction)
		if !ok || ins.Class == "" {
			return nil, &ConfigurationError{Position: pos, Pattern: p.From, Err: fmt.Errorf("missing to attribute")}
		}
	}
	return rule, nil
}

func compileAction(p xmlPattern, pos int) (Action, error) {
	excluded := p.ExcludeE != nil || p.Exclude == "true"

	// A rule carries at most one behavior.
	count := 0
	for _, set := range []bool{excluded, p.Replace != nil, p.Insert != nil, p.Expand != nil} {
		if set {
			count++
		}
	}
	if count > 1 {
		return nil, &ConfigurationError{Position: pos, Pattern: p.From,
			Err: fmt.Errorf("conflicting actions: a rule is exclude, replace, insert or expand, not several")}
	}

	switch {
	case excluded:
		return ExcludeAction{}, nil

	case p.Replace != nil:
		if p.Replace.Original == "" {
			return nil, &ConfigurationError{Position: pos, Pattern: p.From, Err: fmt.Errorf("<Replace> missing <Original>")}
		}
		orig, err := regexp.Compile(p.Replace.Original)
		if err != nil {
			return nil, &ConfigurationError{Position: pos, Pattern: p.Replace.Original, Err: err}
		}
		return ReplaceAction{Original: orig, Replacement: p.Replace.Replacement}, nil

	case p.Insert != nil:
		if p.Insert.Template == "" {
			return nil, &ConfigurationError{Position: pos, Pattern: p.From, Err: fmt.Errorf("<Insert> missing <Template>")}
		}
		return InsertAction{Template: p.Insert.Template, Class: p.Insert.To}, nil

	case p.Expand != nil:
		if p.Expand.SubPattern == "" {
			return nil, &ConfigurationError{Position: pos, Pattern: p.From, Err: fmt.Errorf("<Expand> missing <SubPattern>")}
		}
		sub, err := regexp.Compile(p.Expand.SubPattern)
		if err != nil {
			return nil, &ConfigurationError{Position: pos, Pattern: p.Expand.SubPattern, Err: err}
		}
		sep := p.Expand.Char
		if sep == "" {
			sep = "-"
		}
		return ExpandAction{SubPattern: sub, Separator: sep, Interpolate: p.Expand.Interpolate}, nil

	default:
		return MatchAction{}, nil
	}
}
