// Package reconcile merges the Reasoner and AuthorityIndex outcomes for one
// citation into its terminal record.
package reconcile

import (
	"errors"
	"strings"

	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/verify"
)

// Reconcile is pure: it never performs I/O and always returns a terminal record.
//
// Priority:
//  1. a failed Reasoner call yields an Error record with no standing judgment
//  2. isValid=false is Flagged whatever the AuthorityIndex said
//  3. for a valid citation the Reasoner's standing governs; the AuthorityIndex
//     only contributes the case name, canonical link and record reference
//  4. overruled or superseded law is Flagged even when genuine
func Reconcile(span model.CitationSpan, reasoner verify.ReasonerOutcome, authority verify.AuthorityOutcome) model.CitationRecord {
	rec := model.NewRecord(span)

	verdict, ok := reasoner.Verdict()
	if !ok {
		return errorRecord(rec, reasoner.Err())
	}

	rec.CaseName = strings.TrimSpace(verdict.CaseName)
	rec.AreaOfLaw = verdict.AreaOfLaw
	rec.Explanation = strings.TrimSpace(verdict.Explanation)
	if verdict.Confidence != nil {
		c := verify.ClampConfidence(*verdict.Confidence)
		rec.Confidence = &c
	}
	if verdict.Replacement != nil && verdict.Replacement.Citation != "" {
		rep := *verdict.Replacement
		rec.Replacement = &rep
	}

	standing := verdict.Standing
	if standing == "" {
		standing = model.StandingUnknown
	}
	rec.Standing = standing

	evidence := verdict.Evidence

	if !verdict.IsValid {
		rec.Status = model.StatusFlagged
		rec.Evidence = dedupe(evidence)
		return rec
	}

	switch av, answered := authority.Verdict(); {
	case answered && av.Found:
		if name := strings.TrimSpace(av.CaseName); name != "" {
			rec.CaseName = name
		}
		rec.AuthorityRef = av.RecordID
		if av.CanonicalURI != "" {
			title := rec.CaseName
			if title == "" {
				title = span.Text
			}
			evidence = append([]model.Source{{URI: av.CanonicalURI, Title: title}}, evidence...)
		}
	case answered:
		rec.Explanation = appendNote(rec.Explanation, "The case-law index has no record of this citation; the verdict above rests on the AI review alone.")
	case authority.Err() != nil:
		rec.Explanation = appendNote(rec.Explanation, "Case-law index lookup failed: "+userMessage(authority.Err()))
	case authority.SkipReason() != "":
		rec.Explanation = appendNote(rec.Explanation, "Case-law index not consulted: "+authority.SkipReason()+".")
	}

	rec.Evidence = dedupe(evidence)

	if rec.Standing.IsBadLaw() {
		rec.Status = model.StatusFlagged
	} else {
		rec.Status = model.StatusVerified
	}
	return rec
}

func errorRecord(rec model.CitationRecord, err error) model.CitationRecord {
	rec.Status = model.StatusError
	rec.Standing = model.StandingUnknown
	rec.ErrorKind = verify.KindOf(err).String()
	rec.Explanation = userMessage(err)
	return rec
}

func userMessage(err error) string {
	var ve *verify.Error
	if errors.As(err, &ve) {
		return ve.UserMessage()
	}
	return verify.Classify("", err).UserMessage()
}

func appendNote(explanation, note string) string {
	if explanation == "" {
		return note
	}
	return explanation + "\n\n" + note
}

// dedupe keeps the first source per URI. Sources without a URI are dropped.
func dedupe(sources []model.Source) []model.Source {
	if len(sources) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(sources))
	out := make([]model.Source, 0, len(sources))
	for _, s := range sources {
		uri := strings.TrimSpace(s.URI)
		if uri == "" || seen[uri] {
			continue
		}
		seen[uri] = true
		s.URI = uri
		out = append(out, s)
	}
	return out
}
