package report

import (
	"cmp"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/lexicite/internal/model"
)

// Overall status of a document
const (
	StatusVerified = "verified"
	StatusIssues   = "issues"
)

// Finding is the journal view of one citation
type Finding struct {
	CitationID   string                `json:"citation_id"`
	Text         string                `json:"text"`
	Status       model.LifecycleStatus `json:"status"`
	CitationType model.CitationType    `json:"citation_type"`
	CaseName     string                `json:"case_name,omitempty"`
	Standing     model.LegalStanding   `json:"legal_standing"`
	AreaOfLaw    string                `json:"area_of_law,omitempty"`
	Confidence   *int                  `json:"confidence,omitempty"`
	Explanation  string                `json:"explanation,omitempty"`
	Replacement  *model.Replacement    `json:"replacement,omitempty"`
	Evidence     []model.Source        `json:"evidence,omitempty"`
}

// Report is the analysis of one document
type Report struct {
	ID          string            `json:"id"`
	Title       string            `json:"title"`
	Source      string            `json:"source,omitempty"`
	AnalyzedAt  time.Time         `json:"analyzed_at"`
	Mode        string            `json:"mode"`
	Status      string            `json:"status"`
	NoCitations bool              `json:"no_citations,omitempty"`
	Stats       Stats             `json:"stats"`
	Findings    []Finding         `json:"findings"`
	LinkChecks  []model.LinkCheck `json:"link_checks,omitempty"`
}

// Build assembles a report from the final records of a batch
func Build(title, source, mode string, records []model.CitationRecord) *Report {
	ordered := slices.Clone(records)
	slices.SortStableFunc(ordered, func(a, b model.CitationRecord) int {
		return cmp.Compare(a.Span.Start, b.Span.Start)
	})

	findings := make([]Finding, 0, len(ordered))
	for _, r := range ordered {
		findings = append(findings, Finding{
			CitationID:   r.ID(),
			Text:         r.Span.Text,
			Status:       r.Status,
			CitationType: r.Span.Type,
			CaseName:     r.CaseName,
			Standing:     r.Standing,
			AreaOfLaw:    r.AreaOfLaw,
			Confidence:   r.Confidence,
			Explanation:  r.Explanation,
			Replacement:  r.Replacement,
			Evidence:     r.Evidence,
		})
	}

	stats := ComputeStats(ordered)
	status := StatusVerified
	if stats.Issues > 0 {
		status = StatusIssues
	}

	return &Report{
		ID:          uuid.NewString(),
		Title:       title,
		Source:      source,
		AnalyzedAt:  time.Now().UTC(),
		Mode:        mode,
		Status:      status,
		NoCitations: len(records) == 0,
		Stats:       stats,
		Findings:    findings,
	}
}

// DeadLinks returns the link checks that found an unreachable source
func (r *Report) DeadLinks() []model.LinkCheck {
	var dead []model.LinkCheck
	for _, lc := range r.LinkChecks {
		if lc.IsDead {
			dead = append(dead, lc)
		}
	}
	return dead
}
