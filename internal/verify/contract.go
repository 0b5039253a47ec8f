// Package verify defines the contract between the verification core and its
// two backends: an AI Reasoner and an authoritative case-law AuthorityIndex.
package verify

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/lexicite/internal/model"
)

// Mode selects how much work the Reasoner does per citation
type Mode string

const (
	ModeStandard Mode = "standard" // Single schema-constrained call
	ModeResearch Mode = "research" // Web-grounded call, slower, richer evidence
)

// ParseMode accepts "standard" or "research"; empty means standard.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeStandard:
		return ModeStandard, nil
	case ModeResearch:
		return ModeResearch, nil
	default:
		return "", fmt.Errorf("unknown verification mode %q (want standard or research)", s)
	}
}

// Request asks the Reasoner about one citation
type Request struct {
	CitationText string
	Mode         Mode
}

// Verdict is the Reasoner's judgment of one citation
type Verdict struct {
	IsValid     bool                `json:"isValid"`
	CaseName    string              `json:"caseName,omitempty"`
	Standing    model.LegalStanding `json:"legalStanding"`
	Explanation string              `json:"explanation"`
	Confidence  *int                `json:"confidence,omitempty"` // 0..100
	AreaOfLaw   string              `json:"areaOfLaw,omitempty"`
	Replacement *model.Replacement  `json:"replacement,omitempty"`
	Evidence    []model.Source      `json:"evidence,omitempty"`
}

// Reasoner judges whether a citation is genuine and still good law
type Reasoner interface {
	Name() string
	Verify(ctx context.Context, req Request) (Verdict, error)
}

// AuthorityRequest asks the AuthorityIndex to look a citation up
type AuthorityRequest struct {
	CitationText string
	Credential   string
}

// AuthorityVerdict is the AuthorityIndex's answer. A non-empty Error is a
// backend-reported failure and is treated like a failed call.
type AuthorityVerdict struct {
	Found        bool   `json:"found"`
	CaseName     string `json:"caseName,omitempty"`
	CanonicalURI string `json:"canonicalUri,omitempty"`
	RecordID     string `json:"recordId,omitempty"`
	Error        string `json:"error,omitempty"`
}

// AuthorityIndex looks citations up in a curated case-law database
type AuthorityIndex interface {
	Name() string
	Lookup(ctx context.Context, req AuthorityRequest) (AuthorityVerdict, error)
}

// ClampConfidence bounds a reported confidence to 0..100
func ClampConfidence(c int) int {
	return max(0, min(100, c))
}
