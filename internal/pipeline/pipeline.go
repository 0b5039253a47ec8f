// Package pipeline analyses whole documents: load, verify every citation,
// optionally probe evidence links, and render the report.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/ppiankov/lexicite/internal/logging"
	"github.com/ppiankov/lexicite/internal/orchestrator"
	"github.com/ppiankov/lexicite/internal/report"
	"github.com/ppiankov/lexicite/internal/validate"
)

// Pipeline turns a document source into a report
type Pipeline struct {
	loader   *Loader
	orch     *orchestrator.Orchestrator
	checker  *validate.EvidenceChecker // nil unless link checks are enabled
	renderer *report.Renderer
	opts     orchestrator.Options
	logger   *logging.Logger
	progress io.Writer // nil disables progress lines
	syncer   *report.Syncer
}

// New creates a pipeline. checker and logger may be nil.
func New(loader *Loader, orch *orchestrator.Orchestrator, checker *validate.EvidenceChecker, renderer *report.Renderer, opts orchestrator.Options, logger *logging.Logger) *Pipeline {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Pipeline{
		loader:   loader,
		orch:     orch,
		checker:  checker,
		renderer: renderer,
		opts:     opts,
		logger:   logger.Named("pipeline"),
	}
}

// WithProgress prints one line per finished citation to w
func (p *Pipeline) WithProgress(w io.Writer) *Pipeline {
	p.progress = w
	return p
}

// WithSync posts every finished report through s
func (p *Pipeline) WithSync(s *report.Syncer) *Pipeline {
	p.syncer = s
	return p
}

// AnalyzeDocument loads source and analyses its text
func (p *Pipeline) AnalyzeDocument(ctx context.Context, source string) (*report.Report, error) {
	doc, err := p.loader.Load(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", source, err)
	}
	return p.AnalyzeText(ctx, doc.Title, doc.Source, doc.Text)
}

// AnalyzeText runs one batch over text and builds its report
func (p *Pipeline) AnalyzeText(ctx context.Context, title, source, text string) (*report.Report, error) {
	b, err := p.orch.Run(ctx, text, p.opts, p.observe)
	if err != nil {
		return nil, fmt.Errorf("verify citations: %w", err)
	}

	records := b.Records()
	rep := report.Build(title, source, string(b.Options().Mode), records)

	// Link probing happens after the batch, never inside a pipeline
	if p.checker != nil && len(records) > 0 {
		rep.LinkChecks = p.checker.Check(ctx, records)
		if dead := len(rep.DeadLinks()); dead > 0 {
			p.logger.Warn("dead evidence links", "document", title, "count", dead)
		}
	}

	p.logger.Info("document analysed",
		"document", title,
		"citations", rep.Stats.Total,
		"issues", rep.Stats.Issues,
	)

	// A failed sync never fails the analysis
	if p.syncer != nil {
		if err := p.syncer.Sync(ctx, rep); err != nil {
			p.logger.Warn("report sync failed", "document", title, "url", p.syncer.URL(), "error", err.Error())
		} else {
			p.logger.Debug("report synced", "document", title, "url", p.syncer.URL())
		}
	}
	return rep, nil
}

func (p *Pipeline) observe(t orchestrator.Transition) {
	if p.progress == nil || !t.Record.Status.IsTerminal() {
		return
	}
	_, _ = fmt.Fprintf(p.progress, "  %-8s %s\n", t.Record.Status, t.Record.Span.Text)
}

// RenderReport renders the report to the requested outputs and prints the
// terminal summary.
func (p *Pipeline) RenderReport(rep *report.Report, jsonPath string, mdPath string, verbose bool) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(rep, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		if verbose {
			fmt.Printf("✓ Wrote JSON: %s\n", jsonPath)
		}
	}

	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(rep, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		if verbose {
			fmt.Printf("✓ Wrote Markdown: %s\n", mdPath)
		}
	}

	p.renderer.RenderSummary(rep)
	return nil
}

// OutputPaths derives report file names in dir for a document title
func OutputPaths(dir, title string) (jsonPath, mdPath string) {
	base := slug(title)
	if base == "" {
		base = "report"
	}
	return filepath.Join(dir, base+".json"), filepath.Join(dir, base+".md")
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
