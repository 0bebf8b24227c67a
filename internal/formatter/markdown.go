// Package formatter renders audit reports, harden results, skill scans and
// monitor alerts as tables, JSON, JSON Lines and markdown.
package formatter

import (
	"fmt"
	"io"
	"strings"
	"text/template"
	"time"

	"github.com/secureclaw/secureclaw/internal/audit"
)

// WriteMarkdown writes the report as a markdown document suitable for
// attaching to an issue or a change review.
func WriteMarkdown(w io.Writer, stateDir string, r *audit.Report) error {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"code": func(s string) string { return "`" + strings.ReplaceAll(s, "`", "'") + "`" },
		"cell": func(s string) string { return strings.ReplaceAll(clean(s), "|", `\|`) },
		"fix": func(f audit.Finding) string {
			if f.AutoFixable {
				return f.Remediation
			}
			return "manual"
		},
		"date": func(t time.Time) string { return t.UTC().Format(time.RFC3339) },
	}).Parse(markdownTemplate)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	return tmpl.Execute(w, struct {
		StateDir string
		*audit.Report
	}{stateDir, r})
}

const markdownTemplate = `# SecureClaw audit

**State directory:** {{ code .StateDir }}
**Date:** {{ date .Timestamp }}
**Score:** {{ .Score }}/100

| Critical | High | Medium | Low | Auto-fixable |
|----------|------|--------|-----|--------------|
| {{ .Summary.Critical }} | {{ .Summary.High }} | {{ .Summary.Medium }} | {{ .Summary.Low }} | {{ .Summary.AutoFixable }} |

{{- if .Findings }}

## Findings

| Severity | ID | Message | Fix |
|----------|----|---------|-----|
{{- range .Findings }}
| {{ .Severity }} | {{ code .ID }} | {{ cell .Message }} | {{ fix . }} |
{{- end }}
{{- else }}

No findings.
{{- end }}
`
