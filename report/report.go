// Package report renders the run summary written next to the exports:
// an HTML page for operators and a JSON file for tooling.
package report

import (
	"encoding/json"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"time"

	"github.com/tsawler/tagsight/config"
	"github.com/tsawler/tagsight/pipeline"
)

// File names written into the output folder.
const (
	HTMLName = "summary_report.html"
	JSONName = "run_summary.json"
)

// Write renders the enabled report formats into dir and returns the
// paths written.
func Write(summary *pipeline.Summary, dir string, cfg config.Reports) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	var written []string
	if cfg.JSON {
		path := filepath.Join(dir, JSONName)
		if err := writeJSON(summary, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	if cfg.HTML {
		path := filepath.Join(dir, HTMLName)
		if err := writeHTML(summary, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

func writeJSON(summary *pipeline.Summary, path string) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding run summary: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func writeHTML(summary *pipeline.Summary, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := htmlTemplate.Execute(f, summary); err != nil {
		f.Close()
		return fmt.Errorf("rendering run summary: %w", err)
	}
	return f.Close()
}

var htmlTemplate = template.Must(template.New("summary").Funcs(template.FuncMap{
	"stamp": func(t time.Time) string { return t.Format("2006-01-02 15:04:05") },
	"round": func(d time.Duration) string { return d.Round(time.Millisecond).String() },
}).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Tag Extraction Summary</title>
<style>
body { font-family: sans-serif; margin: 2em; color: #222; }
table { border-collapse: collapse; width: 100%; margin-top: 1em; }
th, td { border: 1px solid #ccc; padding: 6px 10px; text-align: left; }
th { background: #f0f0f0; }
.ok { color: #1a7f37; }
.fail { color: #b35900; }
.meta { color: #666; font-size: 0.9em; }
</style>
</head>
<body>
<h1>Tag Extraction Summary</h1>
<p class="meta">Run {{.RunID}} &middot; {{stamp .Started}} to {{stamp .Finished}}</p>
<p>
  <strong>{{.Processed}}</strong> processed,
  <strong>{{.Unprocessed}}</strong> unprocessed,
  <strong>{{.TotalTags}}</strong> tags exported.
</p>
<table>
<tr>
  <th>Drawing</th><th>Status</th><th>Tags</th><th>Passes</th>
  <th>Pass failures</th><th>Elapsed</th>
</tr>
{{range .Documents}}
<tr>
  <td>{{.Drawing}}</td>
  {{if .Processed}}<td class="ok">exported</td>{{else}}<td class="fail">{{.Reason}}</td>{{end}}
  <td>{{.Tags}}</td>
  <td>{{.Passes.Passes}}</td>
  <td>{{.Passes.Failures}}</td>
  <td>{{round .Elapsed}}</td>
</tr>
{{end}}
</table>
</body>
</html>
`))
