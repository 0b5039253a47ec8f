package model

import "time"

// AuthorityTier represents the classification of source authority
type AuthorityTier int

const (
	TierUnknown   AuthorityTier = 0 // Not yet classified
	TierPrimary   AuthorityTier = 1 // Court opinions, official code publishers, case-law databases
	TierSecondary AuthorityTier = 2 // Legal encyclopedias, commercial case summaries
	TierTertiary  AuthorityTier = 3 // Blogs, news, everything else
)

func (t AuthorityTier) String() string {
	switch t {
	case TierPrimary:
		return "primary"
	case TierSecondary:
		return "secondary"
	case TierTertiary:
		return "tertiary"
	default:
		return "unknown"
	}
}

// MarshalText lets tiers render as words in JSON and YAML
func (t AuthorityTier) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// LinkCheck is the result of probing one evidence URI after a batch completes
type LinkCheck struct {
	CitationID   string        `json:"citation_id"`
	URI          string        `json:"uri"`
	IsAccessible bool          `json:"is_accessible"`
	StatusCode   int           `json:"status_code,omitempty"`
	LastModified *time.Time    `json:"last_modified,omitempty"`
	IsDead       bool          `json:"is_dead"`                // 404, 410, or unreachable
	Disallowed   bool          `json:"disallowed,omitempty"`   // robots.txt forbids probing
	RedirectURL  string        `json:"redirect_url,omitempty"` // If redirected
	Authority    AuthorityTier `json:"authority"`
	Error        string        `json:"error,omitempty"`
}
