package orchestrator

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/ppiankov/lexicite/internal/model"
)

// Transition is one published change of a citation record. A Final
// transition carries no record: it marks that every transition of its batch
// has been delivered.
type Transition struct {
	BatchID    string               `json:"batchId"`
	Generation uint64               `json:"generation"`
	CitationID string               `json:"citationId,omitempty"`
	Record     model.CitationRecord `json:"record"`
	Final      bool                 `json:"final,omitempty"`
}

// Batch is the handle of one verification run over a text snapshot.
//
// Every record receives exactly two transitions (Checking, then a terminal
// state) unless the batch is cancelled first. Once Cancel returns no further
// transition is published.
type Batch struct {
	id         string
	generation uint64
	text       string
	opts       Options

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	records   map[string]*model.CitationRecord
	order     []string
	cancelled bool
	finished  bool

	events      chan Transition
	done        chan struct{}
	noCitations bool
}

func newBatch(ctx context.Context, id string, generation uint64, text string, opts Options, spans []model.CitationSpan) *Batch {
	ctx, cancel := context.WithCancel(ctx)
	b := &Batch{
		id:         id,
		generation: generation,
		text:       text,
		opts:       opts,
		ctx:        ctx,
		cancel:     cancel,
		records:    make(map[string]*model.CitationRecord, len(spans)),
		order:      make([]string, 0, len(spans)),
		// Two transitions per record, so publishing never blocks on a slow reader
		events:      make(chan Transition, 2*len(spans)),
		done:        make(chan struct{}),
		noCitations: len(spans) == 0,
	}
	for _, span := range spans {
		rec := model.NewRecord(span)
		b.records[span.ID] = &rec
		b.order = append(b.order, span.ID)
	}
	return b
}

func (b *Batch) ID() string {
	return b.id
}

// Generation increases with every batch started by the same Orchestrator
func (b *Batch) Generation() uint64 {
	return b.generation
}

// Text is the snapshot the batch was extracted from
func (b *Batch) Text() string {
	return b.text
}

func (b *Batch) Options() Options {
	return b.opts
}

// NoCitations reports that extraction found nothing. It is not an error.
func (b *Batch) NoCitations() bool {
	return b.noCitations
}

// Events yields transitions as pipelines progress and is closed when the
// batch finishes or is cancelled.
func (b *Batch) Events() <-chan Transition {
	return b.events
}

// Done is closed once every pipeline has returned
func (b *Batch) Done() <-chan struct{} {
	return b.done
}

// Records returns a snapshot of every record, in document order. It may be
// called while pipelines are still running.
func (b *Batch) Records() []model.CitationRecord {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]model.CitationRecord, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.records[id].Clone())
	}
	slices.SortStableFunc(out, func(a, c model.CitationRecord) int {
		return cmp.Compare(a.Span.Start, c.Span.Start)
	})
	return out
}

// Record returns one record by citation id
func (b *Batch) Record(id string) (model.CitationRecord, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[id]
	if !ok {
		return model.CitationRecord{}, false
	}
	return rec.Clone(), true
}

// Wait blocks until the batch finishes or ctx ends, then returns the records
func (b *Batch) Wait(ctx context.Context) ([]model.CitationRecord, error) {
	select {
	case <-b.done:
		return b.Records(), nil
	case <-ctx.Done():
		return b.Records(), ctx.Err()
	}
}

// Cancel stops outstanding pipelines. Records keep whatever state they had.
func (b *Batch) Cancel() {
	b.cancel()
	b.mu.Lock()
	b.cancelled = true
	b.mu.Unlock()
}

// Cancelled reports whether Cancel was called or the parent context ended
// before the batch finished.
func (b *Batch) Cancelled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cancelled || b.ctx.Err() != nil && !b.finished
}

// publish stores rec and emits its transition. It refuses writes after
// cancellation and any move the lifecycle does not allow.
func (b *Batch) publish(rec model.CitationRecord) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cancelled || b.ctx.Err() != nil {
		return false
	}
	cur, ok := b.records[rec.ID()]
	if !ok || !model.CanTransition(cur.Status, rec.Status) {
		return false
	}

	*cur = rec
	b.events <- Transition{
		BatchID:    b.id,
		Generation: b.generation,
		CitationID: rec.ID(),
		Record:     rec.Clone(),
	}
	return true
}

func (b *Batch) finish() {
	b.mu.Lock()
	if b.ctx.Err() != nil {
		b.cancelled = true
	}
	b.finished = true
	close(b.events)
	b.mu.Unlock()
	close(b.done)
	b.cancel()
}
