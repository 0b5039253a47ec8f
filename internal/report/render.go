package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/lexicite/internal/model"
)

// Renderer writes reports as JSON, Markdown and a terminal summary
type Renderer struct {
	includeFooter bool
	out           io.Writer
}

// NewRenderer creates a renderer printing summaries to stdout
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter, out: os.Stdout}
}

// WithOutput redirects the terminal summary
func (r *Renderer) WithOutput(w io.Writer) *Renderer {
	r.out = w
	return r
}

// RenderJSON writes the report as indented JSON
func (r *Renderer) RenderJSON(rep *Report, path string) error {
	data, err := json.MarshalIndent(rep, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// RenderMarkdown writes the report as Markdown
func (r *Renderer) RenderMarkdown(rep *Report, path string) error {
	return os.WriteFile(path, []byte(r.Markdown(rep)), 0o644)
}

// Markdown renders the report body
func (r *Renderer) Markdown(rep *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Citation report: %s\n\n", rep.Title)
	fmt.Fprintf(&b, "- **Analyzed:** %s\n", rep.AnalyzedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "- **Mode:** %s\n", rep.Mode)
	fmt.Fprintf(&b, "- **Status:** %s\n", rep.Status)
	fmt.Fprintf(&b, "- **Citations:** %d total, %d valid, %d issues", rep.Stats.Total, rep.Stats.Valid, rep.Stats.Issues)
	if rep.Stats.Pending > 0 {
		fmt.Fprintf(&b, ", %d pending", rep.Stats.Pending)
	}
	b.WriteString("\n\n")

	if rep.NoCitations {
		b.WriteString("No citations found.\n")
	}

	if len(rep.Findings) > 0 {
		b.WriteString("| Citation | Status | Standing | Case | Confidence |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, f := range rep.Findings {
			conf := "-"
			if f.Confidence != nil {
				conf = fmt.Sprintf("%d", *f.Confidence)
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
				escapeCell(f.Text), f.Status, f.Standing, escapeCell(orDash(f.CaseName)), conf)
		}
		b.WriteString("\n")
	}

	var issues []Finding
	for _, f := range rep.Findings {
		if f.Status == model.StatusFlagged || f.Status == model.StatusError || f.Standing.IsBadLaw() {
			issues = append(issues, f)
		}
	}
	if len(issues) > 0 {
		b.WriteString("## Issues\n\n")
		for _, f := range issues {
			fmt.Fprintf(&b, "### %s\n\n", f.Text)
			if f.Explanation != "" {
				fmt.Fprintf(&b, "%s\n\n", f.Explanation)
			}
			if f.Replacement != nil {
				fmt.Fprintf(&b, "Replace with **%s**, %s", f.Replacement.Name, f.Replacement.Citation)
				if f.Replacement.URI != "" {
					fmt.Fprintf(&b, " (<%s>)", f.Replacement.URI)
				}
				b.WriteString("\n\n")
			}
			for _, src := range f.Evidence {
				fmt.Fprintf(&b, "- <%s>", src.URI)
				if src.Title != "" {
					fmt.Fprintf(&b, " %s", src.Title)
				}
				b.WriteString("\n")
			}
			if len(f.Evidence) > 0 {
				b.WriteString("\n")
			}
		}
	}

	if dead := rep.DeadLinks(); len(dead) > 0 {
		b.WriteString("## Dead evidence links\n\n")
		for _, lc := range dead {
			fmt.Fprintf(&b, "- <%s> (%s)", lc.URI, lc.Authority)
			if lc.StatusCode != 0 {
				fmt.Fprintf(&b, " HTTP %d", lc.StatusCode)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		b.WriteString("---\n\n")
		b.WriteString("_Verdicts come from automated backends and may be wrong. Confirm every authority before relying on it._\n")
	}

	return b.String()
}

// RenderSummary prints a short summary to the terminal
func (r *Renderer) RenderSummary(rep *Report) {
	_, _ = fmt.Fprintf(r.out, "\n%s\n", rep.Title)
	if rep.NoCitations {
		_, _ = fmt.Fprintln(r.out, "  No citations found")
		return
	}
	_, _ = fmt.Fprintf(r.out, "  Citations: %d  Valid: %d  Issues: %d\n", rep.Stats.Total, rep.Stats.Valid, rep.Stats.Issues)
	for _, f := range rep.Findings {
		mark := "✓"
		switch {
		case f.Status == model.StatusError:
			mark = "!"
		case f.Status == model.StatusFlagged || f.Standing.IsBadLaw():
			mark = "✗"
		case f.Status != model.StatusVerified:
			mark = "…"
		}
		name := f.CaseName
		if name == "" {
			name = string(f.Standing)
		}
		_, _ = fmt.Fprintf(r.out, "  %s %s  %s\n", mark, f.Text, name)
	}
	if dead := rep.DeadLinks(); len(dead) > 0 {
		_, _ = fmt.Fprintf(r.out, "  Dead evidence links: %d\n", len(dead))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
