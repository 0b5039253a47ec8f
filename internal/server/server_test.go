package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/lexicite/internal/extract"
	"github.com/ppiankov/lexicite/internal/metrics"
	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/orchestrator"
	"github.com/ppiankov/lexicite/internal/verify"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const roeText = "The brief relies on Roe v. Wade, 410 U.S. 113 (1973), and on 999 U.S. 999 (2024)."

// tableReasoner answers from a fixed table; unknown citations are good law
type tableReasoner struct {
	mu    sync.Mutex
	delay time.Duration
}

func (r *tableReasoner) Name() string { return "table" }

func (r *tableReasoner) Verify(ctx context.Context, req verify.Request) (verify.Verdict, error) {
	r.mu.Lock()
	delay := r.delay
	r.mu.Unlock()
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return verify.Verdict{}, ctx.Err()
		}
	}

	switch req.CitationText {
	case "410 U.S. 113 (1973)":
		return verify.Verdict{
			IsValid:  true,
			CaseName: "Roe v. Wade",
			Standing: model.StandingOverruled,
			Replacement: &model.Replacement{
				Name:     "Dobbs v. Jackson Women's Health Organization",
				Citation: "597 U.S. 215",
			},
		}, nil
	case "999 U.S. 999 (2024)":
		return verify.Verdict{IsValid: false, Standing: model.StandingUnknown, Explanation: "No such volume."}, nil
	}
	return verify.Verdict{IsValid: true, Standing: model.StandingGood}, nil
}

func newTestServer(t *testing.T, reasoner verify.Reasoner) *Server {
	t.Helper()
	m := metrics.New()
	orch := orchestrator.New(reasoner, nil, nil, m)
	opts := orchestrator.Options{Mode: verify.ModeStandard, MaxConcurrent: 2, ReasonerTimeout: 5 * time.Second}
	s := New(orch, opts, m, nil)
	t.Cleanup(s.Close)
	return s
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createBatch(t *testing.T, h http.Handler, req CreateBatchRequest) BatchResponse {
	t.Helper()
	w := doJSON(t, h, http.MethodPost, "/v1/batches", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[BatchResponse](t, w)
}

func waitDone(t *testing.T, h http.Handler, id string) BatchResponse {
	t.Helper()
	var resp BatchResponse
	require.Eventually(t, func() bool {
		w := doJSON(t, h, http.MethodGet, "/v1/batches/"+id, nil)
		if w.Code != http.StatusOK {
			return false
		}
		resp = decode[BatchResponse](t, w)
		return resp.Done && resp.Stats.Pending == 0
	}, 5*time.Second, 10*time.Millisecond)
	return resp
}

func citationID(t *testing.T, resp BatchResponse, text string) string {
	t.Helper()
	for _, rec := range resp.Citations {
		if rec.Span.Text == text {
			return rec.ID()
		}
	}
	t.Fatalf("no citation %q in %+v", text, resp.Citations)
	return ""
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, &tableReasoner{})
	w := doJSON(t, s.Handler(), http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ok")
}

func TestCreateBatch_VerifiesEveryCitation(t *testing.T) {
	s := newTestServer(t, &tableReasoner{})
	h := s.Handler()

	created := createBatch(t, h, CreateBatchRequest{Text: roeText})
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.NoCitations)
	require.Len(t, created.Citations, 2)

	done := waitDone(t, h, created.ID)
	assert.Equal(t, roeText, done.Text)
	assert.Equal(t, 2, done.Stats.Total)
	assert.Equal(t, 2, done.Stats.Issues)
	for _, rec := range done.Citations {
		assert.Equal(t, model.StatusFlagged, rec.Status)
	}
	assert.Less(t, done.Citations[0].Span.Start, done.Citations[1].Span.Start)
}

func TestCreateBatch_NoCitations(t *testing.T) {
	s := newTestServer(t, &tableReasoner{})

	w := doJSON(t, s.Handler(), http.MethodPost, "/v1/batches", CreateBatchRequest{Text: "Nothing to cite here."})
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[BatchResponse](t, w)
	assert.True(t, resp.NoCitations)
	assert.True(t, resp.Done)
	assert.Empty(t, resp.Citations)
}

func TestCreateBatch_InvalidInput(t *testing.T) {
	s := newTestServer(t, &tableReasoner{})
	h := s.Handler()

	bad := "(unclosed"
	w := doJSON(t, h, http.MethodPost, "/v1/batches", CreateBatchRequest{Text: roeText, Pattern: &bad})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_PATTERN", decode[ErrorResponse](t, w).Code)

	w = doJSON(t, h, http.MethodPost, "/v1/batches", CreateBatchRequest{Text: roeText, Mode: "psychic"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_MODE", decode[ErrorResponse](t, w).Code)

	req := httptest.NewRequest(http.MethodPost, "/v1/batches", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	w = doJSON(t, h, http.MethodPost, "/v1/batches", CreateBatchRequest{Text: roeText, Replaces: "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetBatch_FilterAndSort(t *testing.T) {
	s := newTestServer(t, &tableReasoner{})
	h := s.Handler()

	text := "See 384 U.S. 436 (1966) and 410 U.S. 113 (1973)."
	created := createBatch(t, h, CreateBatchRequest{Text: text})
	waitDone(t, h, created.ID)

	w := doJSON(t, h, http.MethodGet, "/v1/batches/"+created.ID+"?filter=superseded", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[BatchResponse](t, w)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "410 U.S. 113 (1973)", resp.Citations[0].Span.Text)
	// Stats always cover the whole document
	assert.Equal(t, 2, resp.Stats.Total)

	w = doJSON(t, h, http.MethodGet, "/v1/batches/"+created.ID+"?sort=status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[BatchResponse](t, w)
	require.Len(t, resp.Citations, 2)
	assert.Equal(t, model.StatusFlagged, resp.Citations[0].Status)

	w = doJSON(t, h, http.MethodGet, "/v1/batches/"+created.ID+"?filter=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = doJSON(t, h, http.MethodGet, "/v1/batches/"+created.ID+"?sort=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, h, http.MethodGet, "/v1/batches/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestReplace(t *testing.T) {
	s := newTestServer(t, &tableReasoner{})
	h := s.Handler()

	created := createBatch(t, h, CreateBatchRequest{Text: roeText})
	done := waitDone(t, h, created.ID)
	roe := citationID(t, done, "410 U.S. 113 (1973)")
	fake := citationID(t, done, "999 U.S. 999 (2024)")

	w := doJSON(t, h, http.MethodPost, "/v1/batches/"+created.ID+"/citations/"+fake+"/replace", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NO_REPLACEMENT", decode[ErrorResponse](t, w).Code)

	w = doJSON(t, h, http.MethodPost, "/v1/batches/"+created.ID+"/citations/"+roe+"/replace", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t,
		"The brief relies on Roe v. Wade, 597 U.S. 215, and on 999 U.S. 999 (2024).",
		decode[ReplaceResponse](t, w).Text)

	// The replaced record left the active set
	w = doJSON(t, h, http.MethodPost, "/v1/batches/"+created.ID+"/citations/"+roe+"/replace", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodGet, "/v1/batches/"+created.ID, nil)
	resp := decode[BatchResponse](t, w)
	assert.Len(t, resp.Citations, 1)
	assert.Contains(t, resp.Text, "597 U.S. 215")
}

func TestReplaces_SupersedesEarlierBatch(t *testing.T) {
	reasoner := &tableReasoner{delay: time.Second}
	s := newTestServer(t, reasoner)
	h := s.Handler()

	first := createBatch(t, h, CreateBatchRequest{Text: roeText})
	second := createBatch(t, h, CreateBatchRequest{Text: "Only 384 U.S. 436 (1966) now.", Replaces: first.ID})

	assert.NotEqual(t, first.ID, second.ID)
	assert.Greater(t, second.Generation, first.Generation)

	w := doJSON(t, h, http.MethodGet, "/v1/batches/"+first.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, h, http.MethodGet, "/v1/batches/"+second.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[BatchResponse](t, w)
	require.Len(t, resp.Citations, 1)
	assert.Equal(t, "384 U.S. 436 (1966)", resp.Citations[0].Span.Text)
}

func TestCancelBatch(t *testing.T) {
	s := newTestServer(t, &tableReasoner{delay: 5 * time.Second})
	h := s.Handler()

	created := createBatch(t, h, CreateBatchRequest{Text: roeText})

	w := doJSON(t, h, http.MethodDelete, "/v1/batches/"+created.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[BatchResponse](t, w)
	assert.True(t, resp.Cancelled)
	for _, rec := range resp.Citations {
		assert.False(t, rec.Status.IsTerminal())
	}

	w = doJSON(t, h, http.MethodGet, "/v1/batches/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEvents_StreamEndsWithDone(t *testing.T) {
	s := newTestServer(t, &tableReasoner{delay: 100 * time.Millisecond})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	created := createBatch(t, s.Handler(), CreateBatchRequest{Text: roeText})

	resp, err := http.Get(ts.URL + "/v1/batches/" + created.ID + "/events")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	stream := string(body)

	assert.Contains(t, stream, "event:transition")
	assert.Contains(t, stream, "event:done")
	assert.Less(t, strings.LastIndex(stream, "event:transition"), strings.Index(stream, "event:done"))
	assert.Contains(t, stream, `"status":"flagged"`)
}

func TestEvents_EveryTransitionPrecedesDone(t *testing.T) {
	s := newTestServer(t, &tableReasoner{delay: 100 * time.Millisecond})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	cites := make([]string, 40)
	for i := range cites {
		cites[i] = fmt.Sprintf("%d U.S. %d", 100+i, 300+i)
	}
	created := createBatch(t, s.Handler(), CreateBatchRequest{Text: "See " + strings.Join(cites, "; ") + "."})
	require.Len(t, created.Citations, 40)

	resp, err := http.Get(ts.URL + "/v1/batches/" + created.ID + "/events")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	stream := string(body)

	require.Equal(t, 1, strings.Count(stream, "event:done"))
	doneAt := strings.Index(stream, "event:done")
	assert.Greater(t, doneAt, strings.LastIndex(stream, "event:transition"))

	// No pipeline can finish before the client subscribes, so every terminal
	// transition is streamed ahead of the snapshot
	assert.Equal(t, 40, strings.Count(stream[:doneAt], `"status":"verified"`))
	assert.Equal(t, 40, strings.Count(stream[doneAt:], `"status":"verified"`))
}

func TestEvents_FinishedBatchSendsDoneOnly(t *testing.T) {
	s := newTestServer(t, &tableReasoner{})
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	w := doJSON(t, s.Handler(), http.MethodPost, "/v1/batches", CreateBatchRequest{Text: "no citations"})
	require.Equal(t, http.StatusOK, w.Code)
	id := decode[BatchResponse](t, w).ID

	resp, err := http.Get(ts.URL + "/v1/batches/" + id + "/events")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "event:done")
	assert.NotContains(t, string(body), "event:transition")
}

func TestSegments(t *testing.T) {
	s := newTestServer(t, &tableReasoner{})
	h := s.Handler()

	w := doJSON(t, h, http.MethodPost, "/v1/segments", SegmentsRequest{Text: roeText})
	require.Equal(t, http.StatusOK, w.Code)
	segs := decode[SegmentsResponse](t, w).Segments

	var joined strings.Builder
	cites := 0
	for _, seg := range segs {
		joined.WriteString(seg.Text)
		if seg.IsCitation {
			cites++
		}
	}
	assert.Equal(t, roeText, joined.String())
	assert.Equal(t, 2, cites)

	spans := []model.CitationSpan{{ID: "x", Text: "brief", Start: 4, End: 9}}
	w = doJSON(t, h, http.MethodPost, "/v1/segments", SegmentsRequest{Text: roeText, Citations: spans})
	require.Equal(t, http.StatusOK, w.Code)
	segs = decode[SegmentsResponse](t, w).Segments
	require.Len(t, segs, 3)
	assert.Equal(t, extract.Segment{Text: "brief", IsCitation: true, CitationID: "x"}, segs[1])
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t, &tableReasoner{})
	h := s.Handler()

	createBatch(t, h, CreateBatchRequest{Text: roeText})

	w := doJSON(t, h, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lexicite_batches_started_total 1")
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	s := newTestServer(t, &tableReasoner{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.ListenAndServe(ctx, "127.0.0.1:0") }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
