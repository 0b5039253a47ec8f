package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/orchestrator"
	"github.com/ppiankov/lexicite/internal/report"
	"github.com/ppiankov/lexicite/internal/validate"
	"github.com/ppiankov/lexicite/internal/verify"
)

func init() {
	fetchSleepFunc = func(d time.Duration) {}
}

func testLoader() *Loader {
	cfg := model.DefaultConfig().HTTP
	cfg.Timeout = 5 * time.Second
	return NewLoader(cfg)
}

func TestLoader_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brief.txt")
	require.NoError(t, os.WriteFile(path, []byte("See 410 U.S. 113 (1973)."), 0o644))

	doc, err := testLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "brief.txt", doc.Title)
	assert.Equal(t, path, doc.Source)
	assert.Equal(t, "See 410 U.S. 113 (1973).", doc.Text)

	_, err = testLoader().Load(context.Background(), filepath.Join(dir, "missing.txt"))
	assert.Error(t, err)
}

func TestLoader_HTMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "memo.html")
	html := `<html><head><title>x</title><script>var a = "1 U.S. 1";</script></head>
<body><p>First, 410 U.S. 113 (1973).</p><p>Second, 384 U.S. 436 (1966).</p></body></html>`
	require.NoError(t, os.WriteFile(path, []byte(html), 0o644))

	doc, err := testLoader().Load(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, "text/html", doc.ContentType)
	assert.Contains(t, doc.Text, "First, 410 U.S. 113 (1973).")
	assert.NotContains(t, doc.Text, "1 U.S. 1\"")
	assert.NotContains(t, doc.Text, "<p>")
}

func TestLoader_Stdin(t *testing.T) {
	l := testLoader().WithStdin(strings.NewReader("Under 42 U.S.C. § 1983."))
	doc, err := l.Load(context.Background(), "-")
	require.NoError(t, err)
	assert.Equal(t, "stdin", doc.Title)
	assert.Equal(t, "Under 42 U.S.C. § 1983.", doc.Text)
}

func TestLoader_URL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, "<html><body><p>Cites 410 U.S. 113 (1973).</p></body></html>")
	}))
	defer server.Close()

	doc, err := testLoader().Load(context.Background(), server.URL+"/briefs/roe_v_wade-memo.html")
	require.NoError(t, err)
	assert.Equal(t, "roe v wade memo", doc.Title)
	assert.Equal(t, "Cites 410 U.S. 113 (1973).", doc.Text)
}

func TestLoader_URLRetries(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = fmt.Fprint(w, "plain 410 U.S. 113")
	}))
	defer server.Close()

	doc, err := testLoader().Load(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "plain 410 U.S. 113", doc.Text)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestLoader_URLPermanentFailure(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	_, err := testLoader().Load(context.Background(), server.URL)
	require.Error(t, err)
	assert.Equal(t, "unexpected status: 404 Not Found", err.Error())
	assert.Equal(t, int32(1), attempts.Load())
}

func TestIsRetryableFetchError(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
	}{
		{&StatusError{Code: 503}, true},
		{&StatusError{Code: 500}, true},
		{&StatusError{Code: 429}, true},
		{&StatusError{Code: 404}, false},
		{&StatusError{Code: 401}, false},
		{fmt.Errorf("fetch: %w", &StatusError{Code: 502}), true},
		{fmt.Errorf("fetch: connection refused"), true},
		{fmt.Errorf("fetch: connection reset by peer"), true},
		{fmt.Errorf("read body: unexpected EOF"), false},
		{nil, false},
	}
	for _, tt := range tests {
		if got := isRetryableFetchError(tt.err); got != tt.retryable {
			t.Errorf("isRetryableFetchError(%v) = %v, want %v", tt.err, got, tt.retryable)
		}
	}
}

func TestTitleFromURL(t *testing.T) {
	assert.Equal(t, "example.com", titleFromURL("https://example.com/"))
	assert.Equal(t, "Roe v Wade", titleFromURL("https://example.com/wiki/Roe_v-Wade"))
	assert.Equal(t, "memo", titleFromURL("https://example.com/a/memo.pdf"))
}

// stubReasoner verifies every citation as good law, except volume 999
type stubReasoner struct {
	evidenceBase string
}

func (stubReasoner) Name() string { return "stub" }

func (s stubReasoner) Verify(ctx context.Context, req verify.Request) (verify.Verdict, error) {
	if strings.HasPrefix(req.CitationText, "999") {
		return verify.Verdict{IsValid: false, Explanation: "fabricated"}, nil
	}
	return verify.Verdict{
		IsValid:  true,
		CaseName: "Case at " + req.CitationText,
		Standing: model.StandingGood,
		Evidence: []model.Source{{URI: s.evidenceBase + "/" + strings.Fields(req.CitationText)[0]}},
	}, nil
}

func TestPipeline_AnalyzeDocument(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brief.txt")
	require.NoError(t, os.WriteFile(path, []byte("Compare 384 U.S. 436 (1966) with 999 U.S. 999 (2024)."), 0o644))

	orch := orchestrator.New(stubReasoner{}, nil, nil, nil)
	opts := orchestrator.DefaultOptions()

	var progress bytes.Buffer
	p := New(testLoader(), orch, nil, report.NewRenderer(false), opts, nil).WithProgress(&progress)

	rep, err := p.AnalyzeDocument(context.Background(), path)
	require.NoError(t, err)

	assert.Equal(t, "brief.txt", rep.Title)
	assert.Equal(t, report.Stats{Total: 2, Valid: 1, Issues: 1}, rep.Stats)
	assert.Equal(t, report.StatusIssues, rep.Status)
	assert.Empty(t, rep.LinkChecks)
	assert.Contains(t, progress.String(), "verified")
	assert.Contains(t, progress.String(), "flagged")

	_, err = p.AnalyzeDocument(context.Background(), filepath.Join(dir, "nope.txt"))
	assert.Error(t, err)
}

func TestPipeline_InvalidPattern(t *testing.T) {
	orch := orchestrator.New(stubReasoner{}, nil, nil, nil)
	opts := orchestrator.DefaultOptions()
	opts.Pattern = "(("

	p := New(testLoader(), orch, nil, report.NewRenderer(false), opts, nil)
	_, err := p.AnalyzeText(context.Background(), "t", "", "410 U.S. 113")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid citation pattern")
}

func TestPipeline_LinkChecks(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	defer server.Close()

	checker := validate.NewEvidenceChecker(server.Client(), "lexicite/test", 2, nil, nil, nil)
	orch := orchestrator.New(stubReasoner{evidenceBase: server.URL}, nil, nil, nil)
	p := New(testLoader(), orch, checker, report.NewRenderer(false), orchestrator.DefaultOptions(), nil)

	rep, err := p.AnalyzeText(context.Background(), "t", "", "See 384 U.S. 436 (1966).")
	require.NoError(t, err)
	require.Len(t, rep.LinkChecks, 1)
	assert.True(t, rep.LinkChecks[0].IsDead)
	assert.Len(t, rep.DeadLinks(), 1)
}

func TestPipeline_SyncsReport(t *testing.T) {
	var synced atomic.Int32
	var title atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var rep report.Report
		if err := json.NewDecoder(r.Body).Decode(&rep); err == nil {
			title.Store(rep.Title)
		}
		synced.Add(1)
	}))
	defer server.Close()

	orch := orchestrator.New(stubReasoner{}, nil, nil, nil)
	p := New(testLoader(), orch, nil, report.NewRenderer(false), orchestrator.DefaultOptions(), nil).
		WithSync(report.NewSyncer(server.URL, server.Client(), ""))

	_, err := p.AnalyzeText(context.Background(), "Opening Brief", "", "See 384 U.S. 436 (1966).")
	require.NoError(t, err)
	assert.Equal(t, int32(1), synced.Load())
	assert.Equal(t, "Opening Brief", title.Load())
}

func TestPipeline_SyncFailureKeepsReport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	orch := orchestrator.New(stubReasoner{}, nil, nil, nil)
	p := New(testLoader(), orch, nil, report.NewRenderer(false), orchestrator.DefaultOptions(), nil).
		WithSync(report.NewSyncer(server.URL, server.Client(), ""))

	rep, err := p.AnalyzeText(context.Background(), "t", "", "See 384 U.S. 436 (1966).")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Stats.Total)
}

func TestPipeline_RenderReport(t *testing.T) {
	dir := t.TempDir()
	orch := orchestrator.New(stubReasoner{}, nil, nil, nil)
	var out bytes.Buffer
	renderer := report.NewRenderer(true).WithOutput(&out)
	p := New(testLoader(), orch, nil, renderer, orchestrator.DefaultOptions(), nil)

	rep, err := p.AnalyzeText(context.Background(), "Opening Brief", "", "See 384 U.S. 436 (1966).")
	require.NoError(t, err)

	jsonPath, mdPath := OutputPaths(dir, rep.Title)
	assert.Equal(t, filepath.Join(dir, "opening-brief.json"), jsonPath)

	require.NoError(t, p.RenderReport(rep, jsonPath, mdPath, false))
	_, err = os.Stat(jsonPath)
	assert.NoError(t, err)
	_, err = os.Stat(mdPath)
	assert.NoError(t, err)
	assert.Contains(t, out.String(), "Opening Brief")
}

func TestOutputPaths(t *testing.T) {
	j, m := OutputPaths("", "!!!")
	assert.Equal(t, "report.json", j)
	assert.Equal(t, "report.md", m)
}
