// Package report summarises, filters and renders the citation records of one
// analysed document.
package report

import (
	"cmp"
	"fmt"
	"slices"
	"strings"

	"github.com/ppiankov/lexicite/internal/model"
)

// Stats counts records by outcome
type Stats struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Issues  int `json:"issues"`
	Pending int `json:"pending"`
}

// ComputeStats tallies records. Error records count as issues, never as valid.
func ComputeStats(records []model.CitationRecord) Stats {
	s := Stats{Total: len(records)}
	for _, r := range records {
		switch {
		case r.Status == model.StatusPending || r.Status == model.StatusChecking:
			s.Pending++
		case r.IsIssue():
			s.Issues++
		case isValid(r):
			s.Valid++
		}
	}
	return s
}

// isValid holds for verified records in good or unknown standing. A verified
// record under caution is neither valid nor an issue.
func isValid(r model.CitationRecord) bool {
	return r.Status == model.StatusVerified &&
		(r.Standing == model.StandingGood || r.Standing == model.StandingUnknown)
}

// Filter selects a subset of records for display
type Filter string

const (
	FilterAll        Filter = "all"
	FilterIssues     Filter = "issues"
	FilterValid      Filter = "valid"
	FilterSuperseded Filter = "superseded" // Superseded or overruled
)

// ParseFilter accepts a filter name; empty means all.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterIssues, FilterValid, FilterSuperseded:
		return f, nil
	default:
		return "", fmt.Errorf("unknown filter %q (want all, issues, valid or superseded)", s)
	}
}

// Matches reports whether r passes the filter
func (f Filter) Matches(r model.CitationRecord) bool {
	switch f {
	case FilterIssues:
		return r.IsIssue()
	case FilterValid:
		return isValid(r)
	case FilterSuperseded:
		return r.Standing.IsBadLaw()
	default:
		return true
	}
}

// Apply returns the records matching f, keeping their order
func (f Filter) Apply(records []model.CitationRecord) []model.CitationRecord {
	out := make([]model.CitationRecord, 0, len(records))
	for _, r := range records {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out
}

// SortOrder orders records for display
type SortOrder string

const (
	SortOriginal   SortOrder = "original"   // Position in the document
	SortName       SortOrder = "name"       // Case name, unnamed last
	SortStatus     SortOrder = "status"     // Issues first
	SortConfidence SortOrder = "confidence" // Highest first, unknown last
)

// ParseSortOrder accepts a sort name; empty means original.
func ParseSortOrder(s string) (SortOrder, error) {
	switch o := SortOrder(strings.ToLower(strings.TrimSpace(s))); o {
	case "":
		return SortOriginal, nil
	case SortOriginal, SortName, SortStatus, SortConfidence:
		return o, nil
	default:
		return "", fmt.Errorf("unknown sort order %q (want original, name, status or confidence)", s)
	}
}

var statusRank = map[model.LifecycleStatus]int{
	model.StatusError:    0,
	model.StatusFlagged:  1,
	model.StatusChecking: 2,
	model.StatusPending:  3,
	model.StatusVerified: 4,
}

// Sort returns a sorted copy; ties keep document order.
func Sort(records []model.CitationRecord, order SortOrder) []model.CitationRecord {
	out := slices.Clone(records)
	byStart := func(a, b model.CitationRecord) int { return cmp.Compare(a.Span.Start, b.Span.Start) }
	slices.SortStableFunc(out, byStart)

	switch order {
	case SortName:
		slices.SortStableFunc(out, func(a, b model.CitationRecord) int {
			switch {
			case a.CaseName == "" && b.CaseName == "":
				return 0
			case a.CaseName == "":
				return 1
			case b.CaseName == "":
				return -1
			}
			return cmp.Compare(strings.ToLower(a.CaseName), strings.ToLower(b.CaseName))
		})
	case SortStatus:
		slices.SortStableFunc(out, func(a, b model.CitationRecord) int {
			return cmp.Compare(statusRank[a.Status], statusRank[b.Status])
		})
	case SortConfidence:
		slices.SortStableFunc(out, func(a, b model.CitationRecord) int {
			switch {
			case a.Confidence == nil && b.Confidence == nil:
				return 0
			case a.Confidence == nil:
				return 1
			case b.Confidence == nil:
				return -1
			}
			return cmp.Compare(*b.Confidence, *a.Confidence)
		})
	}
	return out
}
