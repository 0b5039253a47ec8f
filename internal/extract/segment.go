package extract

import (
	"cmp"
	"iter"
	"slices"
	"strings"

	"github.com/ppiankov/lexicite/internal/model"
)

// Segment is one display run of the source text
type Segment struct {
	Text       string `json:"text"`
	IsCitation bool   `json:"isCitation"`
	CitationID string `json:"citationId,omitempty"`
}

// Segments splits text into plain and citation runs. Spans are taken in start
// order; a span outside [0, len(text)] or overlapping an earlier emitted
// citation is ignored and its bytes stay in the surrounding plain run, so the
// concatenated segment text always equals text.
//
// The returned sequence holds no state between iterations and may be ranged
// over any number of times.
func Segments(text string, spans []model.CitationSpan) iter.Seq[Segment] {
	ordered := slices.Clone(spans)
	slices.SortStableFunc(ordered, func(a, b model.CitationSpan) int {
		return cmp.Compare(a.Start, b.Start)
	})

	return func(yield func(Segment) bool) {
		cursor := 0
		for _, span := range ordered {
			if span.Start < cursor || span.Start >= span.End || span.End > len(text) {
				continue
			}
			if span.Start > cursor {
				if !yield(Segment{Text: text[cursor:span.Start]}) {
					return
				}
			}
			if !yield(Segment{Text: text[span.Start:span.End], IsCitation: true, CitationID: span.ID}) {
				return
			}
			cursor = span.End
		}
		if cursor < len(text) {
			yield(Segment{Text: text[cursor:]})
		}
	}
}

// SegmentRecords is Segments over the spans owned by records
func SegmentRecords(text string, records []model.CitationRecord) iter.Seq[Segment] {
	spans := make([]model.CitationSpan, len(records))
	for i, r := range records {
		spans[i] = r.Span
	}
	return Segments(text, spans)
}

// Join concatenates segment text; Join(Segments(text, spans)) == text.
func Join(seq iter.Seq[Segment]) string {
	var b strings.Builder
	for seg := range seq {
		b.WriteString(seg.Text)
	}
	return b.String()
}
