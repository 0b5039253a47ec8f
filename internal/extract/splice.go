package extract

import (
	"errors"
	"fmt"

	"github.com/ppiankov/lexicite/internal/model"
)

// ErrStaleOffsets means a span no longer addresses its matched text in the
// buffer it is being applied to.
var ErrStaleOffsets = errors.New("citation offsets no longer match the text")

// Splice replaces the bytes addressed by span with replacement. The span must
// still cover exactly its original text; edits made since extraction are
// never overwritten.
func Splice(text string, span model.CitationSpan, replacement string) (string, error) {
	if span.Start < 0 || span.End > len(text) || span.Start > span.End {
		return "", fmt.Errorf("splice %s [%d,%d) into %d bytes: %w", span.ID, span.Start, span.End, len(text), ErrStaleOffsets)
	}
	if text[span.Start:span.End] != span.Text {
		return "", fmt.Errorf("splice %s: found %q, expected %q: %w", span.ID, text[span.Start:span.End], span.Text, ErrStaleOffsets)
	}
	return text[:span.Start] + replacement + text[span.End:], nil
}
