package extract

import (
	"fmt"
	"regexp"

	"github.com/ppiankov/lexicite/internal/model"
)

// DefaultMinLength discards matches too short to be a real citation, such as
// a bare number caught by a loose custom pattern.
const DefaultMinLength = 4

// Reporter abbreviations recognised in volume-reporter-page citations.
// Go's regexp is leftmost-first, so longer forms sharing a prefix with a
// shorter one still match because the trailing `\s+\d` forces a retry.
const reporters = `U\.\s?S\.` +
	`|S\.\s?Ct\.` +
	`|L\.\s?Ed\.(?:\s?2d)?` +
	`|F\.\s?App'x` +
	`|F\.(?:\s?Supp\.)?(?:\s?(?:2d|3d|4th))?` +
	`|A\.(?:\s?(?:2d|3d))?` +
	`|P\.(?:\s?(?:2d|3d))?` +
	`|N\.E\.(?:\s?(?:2d|3d))?` +
	`|N\.W\.(?:\s?2d)?` +
	`|S\.E\.(?:\s?2d)?` +
	`|S\.W\.(?:\s?(?:2d|3d))?` +
	`|So\.(?:\s?(?:2d|3d))?` +
	`|Cal\.\s?Rptr\.(?:\s?(?:2d|3d))?` +
	`|N\.Y\.S\.(?:\s?(?:2d|3d))?`

const casePattern = `\b\d{1,4}\s+(?:` + reporters + `)\s+\d{1,5}` +
	`(?:,\s?\d{1,5}(?:-\d{1,5})?)?` + // pin cite
	`(?:\s\((?:[^()]{0,40}\s)?\d{4}\))?` // (court year)

const statutePattern = `\b\d{1,3}\s+(?:U\.\s?S\.\s?C\.(?:\s?A\.)?|C\.\s?F\.\s?R\.)\s*` +
	`(?:§§?|Part|Sec\.|Section)?\s*\d+[A-Za-z0-9-]*(?:\.\d+)?(?:\([A-Za-z0-9]+\))*` +
	`|\b(?:(?:[A-Z]\.){1,3}|[A-Z][a-z]{1,5}\.)\s(?:[A-Z][A-Za-z]*\.?\s){0,4}§§?\s?\d+(?:[-.:]\d+)*(?:\([A-Za-z0-9]+\))*`

// DefaultPattern covers common case-reporter triples and statute or section
// notations. The named groups tell the matcher which family matched.
const DefaultPattern = `(?P<case>` + casePattern + `)|(?P<statute>` + statutePattern + `)`

// InvalidPatternError reports a citation pattern that failed to compile.
// Extraction never substitutes another pattern when this is returned.
type InvalidPatternError struct {
	Pattern string
	Err     error
}

func (e *InvalidPatternError) Error() string {
	return fmt.Sprintf("invalid citation pattern %q: %v", e.Pattern, e.Err)
}

func (e *InvalidPatternError) Unwrap() error {
	return e.Err
}

// Matcher is a compiled citation pattern. It is safe for concurrent use.
type Matcher struct {
	re         *regexp.Regexp
	minLength  int
	caseIdx    int
	statuteIdx int
}

// Compile builds a Matcher. An empty pattern selects DefaultPattern and a
// non-positive minLength selects DefaultMinLength.
func Compile(pattern string, minLength int) (*Matcher, error) {
	if pattern == "" {
		pattern = DefaultPattern
	}
	if minLength <= 0 {
		minLength = DefaultMinLength
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, &InvalidPatternError{Pattern: pattern, Err: err}
	}

	return &Matcher{
		re:         re,
		minLength:  minLength,
		caseIdx:    re.SubexpIndex("case"),
		statuteIdx: re.SubexpIndex("statute"),
	}, nil
}

// MustCompile is like Compile but panics on error. Intended for package-level
// matchers built from constant patterns.
func MustCompile(pattern string, minLength int) *Matcher {
	m, err := Compile(pattern, minLength)
	if err != nil {
		panic(err)
	}
	return m
}

// Pattern returns the source of the compiled expression
func (m *Matcher) Pattern() string {
	return m.re.String()
}

// Extract scans text globally and returns spans sorted by start offset with
// no two spans overlapping. Offsets are byte offsets into text.
func (m *Matcher) Extract(text string) []model.CitationSpan {
	matches := m.re.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	spans := make([]model.CitationSpan, 0, len(matches))
	lastEnd := -1
	for _, loc := range matches {
		start, end := loc[0], loc[1]
		if end <= start {
			continue
		}
		if end-start < m.minLength {
			continue
		}
		// FindAll already yields ordered, disjoint matches; this keeps the
		// invariant explicit for one-byte-wide alternations.
		if start < lastEnd {
			continue
		}
		spans = append(spans, model.NewSpan(text[start:end], start, m.classify(loc)))
		lastEnd = end
	}
	return spans
}

func (m *Matcher) classify(loc []int) model.CitationType {
	switch {
	case m.caseIdx > 0 && loc[2*m.caseIdx] >= 0:
		return model.CitationTypeCase
	case m.statuteIdx > 0 && loc[2*m.statuteIdx] >= 0:
		return model.CitationTypeStatute
	default:
		return model.CitationTypeUnknown
	}
}

// Extract compiles pattern and scans text in one step
func Extract(text, pattern string, minLength int) ([]model.CitationSpan, error) {
	m, err := Compile(pattern, minLength)
	if err != nil {
		return nil, err
	}
	return m.Extract(text), nil
}
