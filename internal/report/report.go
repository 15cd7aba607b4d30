package report

import (
	"encoding/json"
	"fmt"
	htmltemplate "html/template"
	"io"
	"text/template"
	"time"

	"github.com/FranksOps/companyfinder/internal/record"
)

// Summary contains aggregated figures about a resolve run.
type Summary struct {
	Total            int           `json:"total"`
	Matched          int           `json:"matched"`
	Missing          int           `json:"missing"`
	MatchRate        float64       `json:"matchRate"` // Matched / Total, 0 when empty
	UniqueCompanies  int           `json:"uniqueCompanies"`
	MissingCompanies []string      `json:"missingCompanies"`
	StartTime        time.Time     `json:"startTime"`
	EndTime          time.Time     `json:"endTime"`
	Duration         time.Duration `json:"duration"`
}

// GenerateSummary aggregates records. Missing companies are listed in input
// order.
func GenerateSummary(records []record.Record) Summary {
	s := Summary{MissingCompanies: []string{}}

	if len(records) == 0 {
		return s
	}

	s.StartTime = records[0].Timestamp()
	s.EndTime = records[0].Timestamp()
	seen := make(map[string]struct{}, len(records))

	for _, r := range records {
		s.Total++
		if r.Matched() {
			s.Matched++
		} else {
			s.Missing++
			s.MissingCompanies = append(s.MissingCompanies, r.CompanyName())
		}
		seen[r.CompanyName()] = struct{}{}

		if ts := r.Timestamp(); ts.Before(s.StartTime) {
			s.StartTime = ts
		} else if ts.After(s.EndTime) {
			s.EndTime = ts
		}
	}

	s.UniqueCompanies = len(seen)
	s.MatchRate = float64(s.Matched) / float64(s.Total)
	s.Duration = s.EndTime.Sub(s.StartTime)
	return s
}

// WriteJSON writes the summary to the provided writer in JSON format.
func WriteJSON(w io.Writer, summary Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(summary); err != nil {
		return fmt.Errorf("report: json: %w", err)
	}
	return nil
}

var funcs = template.FuncMap{
	"percent": func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
}

// WriteText writes a human-readable text summary to the provided writer.
func WriteText(w io.Writer, summary Summary) error {
	const textTmpl = `LinkedIn Company Lookup Summary
-------------------------------
Time:          {{.StartTime.Format "2006-01-02 15:04:05"}} - {{.EndTime.Format "2006-01-02 15:04:05"}}
Duration:      {{.Duration}}
Companies:     {{.Total}} ({{.UniqueCompanies}} unique)
Matched:       {{.Matched}} ({{percent .MatchRate}})
Missing:       {{.Missing}}
{{- range .MissingCompanies}}
  - {{.}}
{{- end}}
`

	t, err := template.New("textReport").Funcs(funcs).Parse(textTmpl)
	if err != nil {
		return fmt.Errorf("report: text: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: text: %w", err)
	}

	return nil
}

// WriteHTML writes a basic HTML report to the provided writer. Company names
// are escaped.
func WriteHTML(w io.Writer, summary Summary) error {
	const htmlTmpl = `<!DOCTYPE html>
<html>
<head>
<title>LinkedIn Company Lookup Report</title>
<style>
  body { font-family: sans-serif; margin: 40px; color: #333; }
  h1 { border-bottom: 2px solid #ccc; padding-bottom: 10px; }
  .stat-card { display: inline-block; padding: 20px; margin: 10px 10px 10px 0; background: #f4f4f4; border-radius: 5px; min-width: 150px; }
  .stat-val { font-size: 24px; font-weight: bold; }
  table { border-collapse: collapse; margin-top: 10px; }
  th, td { padding: 8px 12px; border: 1px solid #ccc; text-align: left; }
  th { background: #eaeaea; }
</style>
</head>
<body>
  <h1>LinkedIn Company Lookup Report</h1>
  <p><strong>Time:</strong> {{.StartTime.Format "2006-01-02 15:04:05"}} to {{.EndTime.Format "2006-01-02 15:04:05"}} ({{.Duration}})</p>

  <div class="stat-card">
    <div>Companies</div>
    <div class="stat-val">{{.Total}}</div>
  </div>
  <div class="stat-card">
    <div>Matched</div>
    <div class="stat-val" style="color: green;">{{.Matched}}</div>
  </div>
  <div class="stat-card">
    <div>Missing</div>
    <div class="stat-val" style="color: {{if gt .Missing 0}}red{{else}}green{{end}};">{{.Missing}}</div>
  </div>
  <div class="stat-card">
    <div>Match Rate</div>
    <div class="stat-val">{{percent .MatchRate}}</div>
  </div>

  <h3>Companies Without a LinkedIn Page</h3>
  <table>
    <tr><th>Company</th></tr>
    {{- range .MissingCompanies}}
    <tr><td>{{.}}</td></tr>
    {{- else}}
    <tr><td>None</td></tr>
    {{- end}}
  </table>
</body>
</html>
`
	t, err := htmltemplate.New("htmlReport").Funcs(htmltemplate.FuncMap(funcs)).Parse(htmlTmpl)
	if err != nil {
		return fmt.Errorf("report: html: %w", err)
	}

	if err := t.Execute(w, summary); err != nil {
		return fmt.Errorf("report: html: %w", err)
	}

	return nil
}

// Write renders summary in format: text, json or html.
func Write(w io.Writer, summary Summary, format string) error {
	switch format {
	case "", "text":
		return WriteText(w, summary)
	case "json":
		return WriteJSON(w, summary)
	case "html":
		return WriteHTML(w, summary)
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}
