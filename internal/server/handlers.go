package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/lexicite/internal/extract"
	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/orchestrator"
	"github.com/ppiankov/lexicite/internal/report"
	"github.com/ppiankov/lexicite/internal/verify"
)

// CreateBatchRequest starts a batch. Unset fields fall back to the server's
// configured options. Replaces names the batch of an existing document whose
// analysis this one supersedes.
type CreateBatchRequest struct {
	Text      string  `json:"text"`
	Pattern   *string `json:"pattern,omitempty"`
	MinLength *int    `json:"minLength,omitempty"`
	Mode      string  `json:"mode,omitempty"`
	Authority *bool   `json:"authority,omitempty"`
	Replaces  string  `json:"replaces,omitempty"`
}

// BatchResponse is a snapshot of one document's records
type BatchResponse struct {
	ID          string                 `json:"id"`
	Generation  uint64                 `json:"generation"`
	NoCitations bool                   `json:"noCitations"`
	Done        bool                   `json:"done"`
	Cancelled   bool                   `json:"cancelled"`
	Text        string                 `json:"text,omitempty"`
	Stats       report.Stats           `json:"stats"`
	Citations   []model.CitationRecord `json:"citations"`
}

// ReplaceResponse carries the document text after a replacement
type ReplaceResponse struct {
	Text string `json:"text"`
}

// SegmentsRequest asks for the display runs of text. Without citations the
// text is extracted with the server's pattern first.
type SegmentsRequest struct {
	Text      string               `json:"text"`
	Citations []model.CitationSpan `json:"citations,omitempty"`
}

// SegmentsResponse lists the display runs in document order
type SegmentsResponse struct {
	Segments []extract.Segment `json:"segments"`
}

// ErrorResponse is returned with every non-2xx status
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func (s *Server) registerRoutes(r *gin.Engine) {
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/batches", s.handleCreateBatch)
	v1.GET("/batches/:id", s.handleGetBatch)
	v1.DELETE("/batches/:id", s.handleCancelBatch)
	v1.GET("/batches/:id/events", s.handleEvents)
	v1.POST("/batches/:id/citations/:cid/replace", s.handleReplace)
	v1.POST("/segments", s.handleSegments)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleCreateBatch(c *gin.Context) {
	var req CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	opts, err := s.options(req)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_MODE"})
		return
	}

	var sess *orchestrator.Session
	if req.Replaces != "" {
		existing, ok := s.session(req.Replaces)
		if !ok {
			c.JSON(http.StatusNotFound, ErrorResponse{Error: "batch not found: " + req.Replaces, Code: "NOT_FOUND"})
			return
		}
		sess = existing
	} else {
		sess = orchestrator.NewSession(s.ctx, s.orch, opts, s.logger)
	}

	b, err := sess.Start(s.ctx, req.Text, opts)
	if err != nil {
		if req.Replaces == "" {
			sess.Close()
		}
		var ipe *extract.InvalidPatternError
		if errors.As(err, &ipe) {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_PATTERN"})
			return
		}
		s.logger.Error("batch not started", "error", err.Error())
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "INTERNAL"})
		return
	}

	s.mu.Lock()
	if req.Replaces != "" {
		delete(s.sessions, req.Replaces)
	}
	s.sessions[b.ID()] = sess
	s.mu.Unlock()

	status := http.StatusCreated
	if b.NoCitations() {
		status = http.StatusOK
	}
	c.JSON(status, batchResponse(b, b.Records(), ""))
}

func (s *Server) options(req CreateBatchRequest) (orchestrator.Options, error) {
	opts := s.defaults
	if req.Pattern != nil {
		opts.Pattern = *req.Pattern
	}
	if req.MinLength != nil {
		opts.MinLength = *req.MinLength
	}
	if req.Authority != nil {
		opts.AuthorityEnabled = *req.Authority
	}
	if req.Mode != "" {
		mode, err := verify.ParseMode(req.Mode)
		if err != nil {
			return opts, err
		}
		opts.Mode = mode
	}
	return opts, nil
}

func (s *Server) handleGetBatch(c *gin.Context) {
	sess, b, ok := s.lookup(c)
	if !ok {
		return
	}

	filter, err := report.ParseFilter(c.DefaultQuery("filter", string(report.FilterAll)))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_FILTER"})
		return
	}
	order, err := report.ParseSortOrder(c.DefaultQuery("sort", string(report.SortOriginal)))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_SORT"})
		return
	}

	records := sess.Records()
	resp := batchResponse(b, records, sess.Text())
	resp.Citations = report.Sort(filter.Apply(records), order)
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleCancelBatch(c *gin.Context) {
	sess, b, ok := s.lookup(c)
	if !ok {
		return
	}

	sess.Cancel(b)
	records := sess.Records()
	text := sess.Text()
	sess.Close()

	s.mu.Lock()
	delete(s.sessions, b.ID())
	s.mu.Unlock()

	c.JSON(http.StatusOK, batchResponse(b, records, text))
}

// handleEvents streams the batch's transitions as Server-Sent Events and ends
// with a "done" event carrying the final snapshot once every transition has
// been sent. Transitions published before the client subscribed are only
// visible in that snapshot. A stream whose batch is superseded ends with the
// snapshot taken at supersession.
func (s *Server) handleEvents(c *gin.Context) {
	sess, b, ok := s.lookup(c)
	if !ok {
		return
	}

	events, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	c.Stream(func(w io.Writer) bool {
		select {
		case t, open := <-events:
			if !open {
				// Session closed by DELETE or shutdown
				c.SSEvent("done", batchResponse(b, b.Records(), ""))
				return false
			}
			if t.BatchID != b.ID() {
				if t.Generation > b.Generation() {
					c.SSEvent("done", batchResponse(b, b.Records(), ""))
					return false
				}
				return true
			}
			if t.Final {
				c.SSEvent("done", batchResponse(b, b.Records(), ""))
				return false
			}
			c.SSEvent("transition", t)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

func (s *Server) handleReplace(c *gin.Context) {
	sess, _, ok := s.lookup(c)
	if !ok {
		return
	}

	text, err := sess.ApplyReplacement(c.Param("cid"))
	switch {
	case err == nil:
		c.JSON(http.StatusOK, ReplaceResponse{Text: text})
	case errors.Is(err, orchestrator.ErrUnknownCitation):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error(), Code: "UNKNOWN_CITATION"})
	case errors.Is(err, orchestrator.ErrNoReplacement):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "NO_REPLACEMENT"})
	case errors.Is(err, extract.ErrStaleOffsets):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error(), Code: "STALE_OFFSETS"})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error(), Code: "INTERNAL"})
	}
}

func (s *Server) handleSegments(c *gin.Context) {
	var req SegmentsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_REQUEST"})
		return
	}

	spans := req.Citations
	if spans == nil {
		var err error
		spans, err = extract.Extract(req.Text, s.defaults.Pattern, s.defaults.MinLength)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error(), Code: "INVALID_PATTERN"})
			return
		}
	}

	segments := []extract.Segment{}
	for seg := range extract.Segments(req.Text, spans) {
		segments = append(segments, seg)
	}
	c.JSON(http.StatusOK, SegmentsResponse{Segments: segments})
}

// lookup resolves :id to its session and batch, writing a 404 when the id
// is unknown or no longer the document's latest batch.
func (s *Server) lookup(c *gin.Context) (*orchestrator.Session, *orchestrator.Batch, bool) {
	id := c.Param("id")
	sess, ok := s.session(id)
	if ok {
		if b := sess.Current(); b != nil && b.ID() == id {
			return sess, b, true
		}
	}
	c.JSON(http.StatusNotFound, ErrorResponse{Error: "batch not found: " + id, Code: "NOT_FOUND"})
	return nil, nil, false
}

func batchResponse(b *orchestrator.Batch, records []model.CitationRecord, text string) BatchResponse {
	if records == nil {
		records = []model.CitationRecord{}
	}
	done := false
	select {
	case <-b.Done():
		done = true
	default:
	}
	return BatchResponse{
		ID:          b.ID(),
		Generation:  b.Generation(),
		NoCitations: b.NoCitations(),
		Done:        done,
		Cancelled:   b.Cancelled(),
		Text:        text,
		Stats:       report.ComputeStats(records),
		Citations:   records,
	}
}
