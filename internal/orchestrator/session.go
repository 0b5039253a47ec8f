package orchestrator

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/ppiankov/lexicite/internal/extract"
	"github.com/ppiankov/lexicite/internal/logging"
	"github.com/ppiankov/lexicite/internal/model"
)

var (
	ErrUnknownCitation = errors.New("unknown citation")
	ErrNoReplacement   = errors.New("citation has no replacement")
	ErrSessionClosed   = errors.New("session closed")
)

// Session owns the current text of one document and the records of its
// latest batch. Starting a batch supersedes the previous one: its pipelines
// are cancelled and any transition it still produces is discarded.
type Session struct {
	orch   *Orchestrator
	logger *logging.Logger
	ctx    context.Context

	mu          sync.Mutex
	text        string
	opts        Options
	current     *Batch
	records     map[string]model.CitationRecord
	settled     bool
	subscribers map[int]*subscriber
	nextSub     int
	timer       *time.Timer
	pending     string
	editSeq     uint64
	closed      bool
}

// NewSession creates a session. ctx bounds batches started by Edit.
func NewSession(ctx context.Context, orch *Orchestrator, opts Options, logger *logging.Logger) *Session {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Session{
		orch:        orch,
		logger:      logger.Named("session"),
		ctx:         ctx,
		opts:        opts,
		records:     make(map[string]model.CitationRecord),
		subscribers: make(map[int]*subscriber),
	}
}

// Start supersedes any running batch and analyses text. On an invalid
// pattern the previous records are cleared and the error is returned.
func (s *Session) Start(ctx context.Context, text string, opts Options) (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrSessionClosed
	}
	return s.startLocked(ctx, text, opts)
}

func (s *Session) startLocked(ctx context.Context, text string, opts Options) (*Batch, error) {
	if s.current != nil {
		// Once Cancel returns the old batch publishes nothing more
		s.current.Cancel()
	}

	s.text = text
	s.opts = opts
	s.current = nil
	s.settled = false
	clear(s.records)

	b, err := s.orch.Start(ctx, text, opts)
	if err != nil {
		return nil, err
	}

	s.current = b
	for _, rec := range b.Records() {
		s.records[rec.ID()] = rec
	}
	go s.forward(b)
	return b, nil
}

func (s *Session) forward(b *Batch) {
	for t := range b.Events() {
		s.deliver(b, t)
	}
	s.settle(b)
}

// settle queues the Final marker once every transition of b is queued
func (s *Session) settle(b *Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.current != b {
		return
	}
	s.settled = true
	for _, sub := range s.subscribers {
		sub.push(finalTransition(b))
	}
}

func finalTransition(b *Batch) Transition {
	return Transition{BatchID: b.ID(), Generation: b.Generation(), Final: true}
}

func (s *Session) deliver(b *Batch, t Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Stale generation
	if s.closed || s.current != b || t.Generation != b.Generation() {
		return
	}
	if _, ok := s.records[t.CitationID]; !ok {
		return
	}
	s.records[t.CitationID] = t.Record

	for _, sub := range s.subscribers {
		sub.push(t)
	}
}

// Cancel stops b if it is the session's current batch
func (s *Session) Cancel(b *Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if b != nil && s.current == b {
		b.Cancel()
	}
}

// Subscribe returns a channel of current-generation transitions and a
// function that ends the subscription. Every transition is delivered however
// slowly the channel is read. Each batch that runs to completion without
// being superseded ends with a Final transition; a subscriber joining after
// that point receives the marker at once.
func (s *Session) Subscribe() (<-chan Transition, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := newSubscriber()
	if s.closed {
		sub.end()
		return sub.out, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subscribers[id] = sub
	if s.current != nil && s.settled {
		sub.push(finalTransition(s.current))
	}

	return sub.out, func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
		sub.cancel()
	}
}

// Current returns the latest batch, or nil
func (s *Session) Current() *Batch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Records returns the active record set in document order
func (s *Session) Records() []model.CitationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.CitationRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec.Clone())
	}
	slices.SortFunc(out, func(a, b model.CitationRecord) int {
		return cmp.Compare(a.Span.Start, b.Span.Start)
	})
	return out
}

// Text returns the current document text
func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.text
}

// ApplyReplacement rewrites a citation with its replacement's citation
// string and returns the new text. The record leaves the active set; the
// offsets of the remaining records are not adjusted until the next batch.
func (s *Session) ApplyReplacement(citationID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[citationID]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownCitation, citationID)
	}
	if rec.Replacement == nil || rec.Replacement.Citation == "" {
		return "", fmt.Errorf("%w: %s", ErrNoReplacement, citationID)
	}

	updated, err := extract.Splice(s.text, rec.Span, rec.Replacement.Citation)
	if err != nil {
		return "", err
	}

	s.text = updated
	delete(s.records, citationID)
	s.logger.Info("replacement applied", "citation_id", citationID, "replacement", rec.Replacement.Citation)
	return updated, nil
}

// Edit records a new text in live mode. A batch starts once no further edit
// arrives within the debounce window; every edit restarts the window.
func (s *Session) Edit(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.pending = text
	s.editSeq++
	seq := s.editSeq

	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.opts.Debounce, func() { s.flush(seq) })
}

func (s *Session) flush(seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A later edit owns the window
	if s.closed || seq != s.editSeq || s.ctx.Err() != nil {
		return
	}
	s.timer = nil
	if _, err := s.startLocked(s.ctx, s.pending, s.opts); err != nil {
		s.logger.Warn("live analysis not started", "error", err.Error())
	}
}

// Close cancels the current batch and ends every subscription
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.current != nil {
		s.current.Cancel()
	}
	for id, sub := range s.subscribers {
		delete(s.subscribers, id)
		sub.end()
	}
}
