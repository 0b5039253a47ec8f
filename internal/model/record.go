package model

import "strings"

// LifecycleStatus is the verification state of a citation record
type LifecycleStatus string

const (
	StatusPending  LifecycleStatus = "pending"  // Extracted, pipeline not started
	StatusChecking LifecycleStatus = "checking" // Backend calls in flight
	StatusVerified LifecycleStatus = "verified" // Genuine and still good law
	StatusFlagged  LifecycleStatus = "flagged"  // Fabricated, or no longer good law
	StatusError    LifecycleStatus = "error"    // Verification could not complete
)

// IsTerminal reports whether no further transition is allowed
func (s LifecycleStatus) IsTerminal() bool {
	switch s {
	case StatusVerified, StatusFlagged, StatusError:
		return true
	default:
		return false
	}
}

// CanTransition enforces Pending -> Checking -> {Verified | Flagged | Error}.
func CanTransition(from, to LifecycleStatus) bool {
	switch from {
	case StatusPending:
		return to == StatusChecking
	case StatusChecking:
		return to.IsTerminal()
	default:
		return false
	}
}

// LegalStanding is the current validity of a precedent
type LegalStanding string

const (
	StandingGood       LegalStanding = "good"
	StandingCaution    LegalStanding = "caution"
	StandingSuperseded LegalStanding = "superseded"
	StandingOverruled  LegalStanding = "overruled"
	StandingUnknown    LegalStanding = "unknown"
)

// ParseLegalStanding normalises a free-form standing reported by a backend.
// Unrecognised values map to StandingUnknown.
func ParseLegalStanding(raw string) LegalStanding {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "good", "good_law", "good law", "verified", "valid":
		return StandingGood
	case "caution", "questioned", "criticized", "distinguished":
		return StandingCaution
	case "superseded", "superseded_by_statute", "abrogated":
		return StandingSuperseded
	case "overruled", "reversed", "vacated":
		return StandingOverruled
	default:
		// retracted, not_found and anything else carry no standing judgment
		return StandingUnknown
	}
}

// IsBadLaw reports whether the standing means the authority no longer controls
func (s LegalStanding) IsBadLaw() bool {
	return s == StandingOverruled || s == StandingSuperseded
}

// Source is one piece of evidence backing a verdict
type Source struct {
	URI   string `json:"uri"`
	Title string `json:"title,omitempty"`
}

// Replacement names the authority that currently controls in place of a
// superseded or overruled citation.
type Replacement struct {
	Name     string `json:"name"`
	Citation string `json:"citation"`
	URI      string `json:"uri,omitempty"`
}

// CitationRecord is the verification state of one extracted span
type CitationRecord struct {
	Span         CitationSpan    `json:"span"`
	Status       LifecycleStatus `json:"status"`
	Standing     LegalStanding   `json:"legal_standing"`
	CaseName     string          `json:"case_name,omitempty"`
	Confidence   *int            `json:"confidence,omitempty"`
	AreaOfLaw    string          `json:"area_of_law,omitempty"`
	Explanation  string          `json:"explanation,omitempty"`
	ErrorKind    string          `json:"error_kind,omitempty"` // Set only on StatusError
	Evidence     []Source        `json:"evidence,omitempty"`
	Replacement  *Replacement    `json:"replacement,omitempty"`
	AuthorityRef string          `json:"authority_ref,omitempty"`
}

// NewRecord creates the Pending record owned by span
func NewRecord(span CitationSpan) CitationRecord {
	return CitationRecord{
		Span:     span,
		Status:   StatusPending,
		Standing: StandingUnknown,
	}
}

// ID returns the id of the owned span
func (r CitationRecord) ID() string {
	return r.Span.ID
}

// IsIssue reports whether the record needs the caller's attention.
// Error records always count as issues.
func (r CitationRecord) IsIssue() bool {
	return r.Status == StatusFlagged || r.Status == StatusError || r.Standing.IsBadLaw()
}

// Clone returns a deep copy safe to hand to another goroutine
func (r CitationRecord) Clone() CitationRecord {
	out := r
	if r.Confidence != nil {
		c := *r.Confidence
		out.Confidence = &c
	}
	if r.Evidence != nil {
		out.Evidence = append([]Source(nil), r.Evidence...)
	}
	if r.Replacement != nil {
		rep := *r.Replacement
		out.Replacement = &rep
	}
	return out
}
