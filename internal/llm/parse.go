package llm

import (
	"encoding/json"
	"errors"
	"math"
	"strings"

	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/verify"
)

// wireVerdict is the loosely-typed JSON a model returns. Pointers tell an
// absent field from a zero value.
type wireVerdict struct {
	IsValid       *bool    `json:"isValid"`
	CaseName      *string  `json:"caseName"`
	LegalStanding string   `json:"legalStanding"`
	Explanation   string   `json:"explanation"`
	Reason        string   `json:"reason"`
	Confidence    *float64 `json:"confidence"`
	AreaOfLaw     string   `json:"areaOfLaw"`
	Replacement   *struct {
		Name     string `json:"name"`
		Citation string `json:"citation"`
		URI      string `json:"uri"`
		URL      string `json:"url"`
	} `json:"replacement"`
	Evidence []struct {
		URI   string `json:"uri"`
		URL   string `json:"url"`
		Title string `json:"title"`
	} `json:"evidence"`
}

var errNoJSON = errors.New("no JSON object in response")

// ParseVerdict decodes a model's reply. Replies without a boolean isValid
// are parse failures, never an implicit "not valid".
func ParseVerdict(backend, raw string) (verify.Verdict, error) {
	body, ok := jsonObject(raw)
	if !ok {
		return verify.Verdict{}, verify.NewParseError(backend, []byte(raw), errNoJSON)
	}

	var w wireVerdict
	if err := json.Unmarshal([]byte(body), &w); err != nil {
		return verify.Verdict{}, verify.NewParseError(backend, []byte(raw), err)
	}
	if w.IsValid == nil {
		return verify.Verdict{}, verify.NewParseError(backend, []byte(raw), errors.New("missing isValid"))
	}

	v := verify.Verdict{
		IsValid:     *w.IsValid,
		Standing:    model.ParseLegalStanding(w.LegalStanding),
		Explanation: strings.TrimSpace(w.Explanation),
		AreaOfLaw:   strings.TrimSpace(w.AreaOfLaw),
	}
	if v.Explanation == "" {
		v.Explanation = strings.TrimSpace(w.Reason)
	}
	if w.CaseName != nil && !isNullish(*w.CaseName) {
		v.CaseName = strings.TrimSpace(*w.CaseName)
	}
	if w.Confidence != nil && !math.IsNaN(*w.Confidence) {
		c := *w.Confidence
		if c > 0 && c < 1 {
			c *= 100 // some models answer on a 0..1 scale
		}
		// Bound before converting; out-of-range float to int is undefined
		conf := int(math.Round(max(0, min(100, c))))
		v.Confidence = &conf
	}
	if r := w.Replacement; r != nil && strings.TrimSpace(r.Citation) != "" {
		uri := r.URI
		if uri == "" {
			uri = r.URL
		}
		v.Replacement = &model.Replacement{
			Name:     strings.TrimSpace(r.Name),
			Citation: strings.TrimSpace(r.Citation),
			URI:      strings.TrimSpace(uri),
		}
	}
	for _, e := range w.Evidence {
		uri := e.URI
		if uri == "" {
			uri = e.URL
		}
		if uri = strings.TrimSpace(uri); uri == "" {
			continue
		}
		v.Evidence = append(v.Evidence, model.Source{URI: uri, Title: strings.TrimSpace(e.Title)})
	}
	return v, nil
}

// jsonObject strips markdown fences and surrounding prose, returning the
// outermost {...} in raw.
func jsonObject(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end < start {
		return "", false
	}
	return s[start : end+1], true
}

func isNullish(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none", "unknown", "n/a":
		return true
	}
	return false
}
