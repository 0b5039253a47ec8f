package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// CitationSpan is an immutable, offset-addressed match produced by extraction.
// Offsets are byte offsets into the source text and form a half-open range.
type CitationSpan struct {
	ID    string       `json:"id"`
	Text  string       `json:"text"`
	Start int          `json:"start"`
	End   int          `json:"end"`
	Type  CitationType `json:"type,omitempty"`
}

// CitationType tells which family of citation shapes a span matched
type CitationType string

const (
	CitationTypeCase    CitationType = "case"    // Volume-reporter-page triple
	CitationTypeStatute CitationType = "statute" // Code or section notation
	CitationTypeUnknown CitationType = "unknown" // Matched by a caller-supplied pattern
)

// NewSpan builds a span with its deterministic identity.
func NewSpan(text string, start int, kind CitationType) CitationSpan {
	if kind == "" {
		kind = CitationTypeUnknown
	}
	return CitationSpan{
		ID:    SpanID(start, text),
		Text:  text,
		Start: start,
		End:   start + len(text),
		Type:  kind,
	}
}

// SpanID derives a citation id from the start offset and matched text, so
// re-extracting unchanged text reproduces the same id.
func SpanID(start int, text string) string {
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf("cite-%d-%s", start, hex.EncodeToString(sum[:4]))
}

// Len returns the span length in bytes
func (s CitationSpan) Len() int {
	return s.End - s.Start
}

// Overlaps reports whether two half-open spans share any offset
func (s CitationSpan) Overlaps(other CitationSpan) bool {
	return s.Start < other.End && other.Start < s.End
}
