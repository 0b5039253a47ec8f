// Package orchestrator runs per-citation verification pipelines for a text
// snapshot and publishes each record's state transitions.
package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ppiankov/lexicite/internal/extract"
	"github.com/ppiankov/lexicite/internal/logging"
	"github.com/ppiankov/lexicite/internal/metrics"
	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/reconcile"
	"github.com/ppiankov/lexicite/internal/verify"
	"github.com/ppiankov/lexicite/internal/worker"
)

var tracer = otel.Tracer("lexicite.orchestrator")

// Reasons an authority lookup was not made
const (
	skipDisabled     = "authority lookups disabled"
	skipNoIndex      = "no case-law index configured"
	skipNoCredential = "no case-law index credential configured"
	skipInvalid      = "citation reported as nonexistent"
	skipStatute      = "statutory citations are not indexed"
)

// Orchestrator starts batches against one Reasoner and an optional
// AuthorityIndex. It is safe for concurrent use.
type Orchestrator struct {
	reasoner   verify.Reasoner
	authority  verify.AuthorityIndex
	logger     *logging.Logger
	metrics    *metrics.Metrics
	generation atomic.Uint64
}

// New creates an orchestrator. authority, logger and m may be nil.
func New(reasoner verify.Reasoner, authority verify.AuthorityIndex, logger *logging.Logger, m *metrics.Metrics) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		reasoner:  reasoner,
		authority: authority,
		logger:    logger.Named("orchestrator"),
		metrics:   m,
	}
}

// Start extracts citations from text and launches one pipeline per citation.
// An invalid pattern fails before any pipeline starts. Zero citations yield a
// finished batch with NoCitations set.
//
// The batch lives until it finishes, Cancel is called, or ctx ends; callers
// that return before the batch does must not pass a request-scoped ctx.
func (o *Orchestrator) Start(ctx context.Context, text string, opts Options) (*Batch, error) {
	matcher, err := extract.Compile(opts.Pattern, opts.MinLength)
	if err != nil {
		return nil, err
	}
	spans := matcher.Extract(text)

	b := newBatch(ctx, uuid.NewString(), o.generation.Add(1), text, opts, spans)
	o.metrics.BatchStarted()

	log := o.logger.With("batch_id", b.id, "generation", b.generation)
	if b.noCitations {
		o.metrics.NoCitations()
		log.Debug("no citations found", "bytes", len(text))
		b.finish()
		return b, nil
	}

	log.Info("batch started", "citations", len(spans), "mode", string(opts.mode()), "workers", opts.workers())

	pool := worker.NewPool(b.ctx, opts.workers(), len(spans))
	pool.Start()
	for _, span := range spans {
		pool.Submit(&pipelineJob{o: o, batch: b, span: span})
	}

	go func() {
		start := time.Now()
		pool.Wait()
		cancelled := b.ctx.Err() != nil
		b.finish()
		if cancelled {
			o.metrics.BatchSuperseded()
			log.Info("batch cancelled", "elapsed", time.Since(start).String())
			return
		}
		log.Info("batch finished", "elapsed", time.Since(start).String())
	}()

	return b, nil
}

// Run starts a batch and blocks until it finishes. observe, if non-nil, is
// called for every transition from the calling goroutine.
func (o *Orchestrator) Run(ctx context.Context, text string, opts Options, observe func(Transition)) (*Batch, error) {
	b, err := o.Start(ctx, text, opts)
	if err != nil {
		return nil, err
	}
	for t := range b.Events() {
		if observe != nil {
			observe(t)
		}
	}
	<-b.Done()
	if err := ctx.Err(); err != nil {
		return b, err
	}
	return b, nil
}

// pipelineJob verifies one citation
type pipelineJob struct {
	o     *Orchestrator
	batch *Batch
	span  model.CitationSpan
}

type pipelineResult struct {
	record model.CitationRecord
	err    error
}

func (r *pipelineResult) GetError() error {
	return r.err
}

func (j *pipelineJob) Execute(ctx context.Context) worker.Result {
	o, b, span := j.o, j.batch, j.span

	ctx, tspan := tracer.Start(ctx, "citation.pipeline",
		trace.WithAttributes(
			attribute.String("citation.id", span.ID),
			attribute.String("citation.type", string(span.Type)),
			attribute.String("batch.id", b.id),
		),
	)
	defer tspan.End()

	checking := model.NewRecord(span)
	checking.Status = model.StatusChecking
	if !b.publish(checking) {
		return &pipelineResult{err: context.Canceled}
	}

	o.metrics.PipelineStarted()
	reasoned := o.callReasoner(ctx, span, b.opts)
	auth := o.callAuthority(ctx, span, b.opts, reasoned)

	// Abandoned work is never written back
	if err := ctx.Err(); err != nil {
		o.metrics.PipelineFinished("cancelled", "")
		tspan.SetStatus(codes.Error, "cancelled")
		return &pipelineResult{err: err}
	}

	rec := reconcile.Reconcile(span, reasoned, auth)
	tspan.SetAttributes(attribute.String("citation.status", string(rec.Status)))
	if rec.Status == model.StatusError {
		tspan.SetStatus(codes.Error, rec.ErrorKind)
	}

	if !b.publish(rec) {
		o.metrics.PipelineFinished("cancelled", "")
		return &pipelineResult{err: context.Canceled}
	}
	o.metrics.PipelineFinished(string(rec.Status), rec.ErrorKind)
	o.logger.Debug("citation reconciled",
		"batch_id", b.id,
		"citation_id", span.ID,
		"status", string(rec.Status),
		"standing", string(rec.Standing),
	)
	return &pipelineResult{record: rec}
}

func (o *Orchestrator) callReasoner(ctx context.Context, span model.CitationSpan, opts Options) verify.ReasonerOutcome {
	name := o.reasoner.Name()
	ctx, tspan := tracer.Start(ctx, "reasoner.verify", trace.WithAttributes(attribute.String("backend", name)))
	defer tspan.End()

	if opts.ReasonerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.ReasonerTimeout)
		defer cancel()
	}

	start := time.Now()
	verdict, err := o.reasoner.Verify(ctx, verify.Request{CitationText: span.Text, Mode: opts.mode()})
	if err != nil {
		verr := verify.Classify(name, err)
		o.metrics.ObserveBackend(name, time.Since(start), verr.Kind.String())
		tspan.RecordError(verr)
		tspan.SetStatus(codes.Error, verr.Kind.String())
		// Cancellation is expected on supersession
		if !errors.Is(ctx.Err(), context.Canceled) {
			o.logger.Warn("reasoner call failed", "citation_id", span.ID, "backend", name, "kind", verr.Kind.String(), "error", verr.Error())
		}
		return verify.ReasonerFailed(verr)
	}
	o.metrics.ObserveBackend(name, time.Since(start), "")
	return verify.ReasonerSucceeded(verdict)
}

func (o *Orchestrator) callAuthority(ctx context.Context, span model.CitationSpan, opts Options, reasoned verify.ReasonerOutcome) verify.AuthorityOutcome {
	verdict, ok := reasoned.Verdict()
	switch {
	case !ok:
		return verify.AuthoritySkipped("reasoner failed")
	case !verdict.IsValid:
		return verify.AuthoritySkipped(skipInvalid)
	case !opts.AuthorityEnabled:
		return verify.AuthoritySkipped(skipDisabled)
	case o.authority == nil:
		return verify.AuthoritySkipped(skipNoIndex)
	case opts.AuthorityCredential == "":
		return verify.AuthoritySkipped(skipNoCredential)
	case span.Type == model.CitationTypeStatute:
		return verify.AuthoritySkipped(skipStatute)
	}
	if ctx.Err() != nil {
		return verify.AuthorityFailed(verify.Classify(o.authority.Name(), ctx.Err()))
	}

	name := o.authority.Name()
	ctx, tspan := tracer.Start(ctx, "authority.lookup", trace.WithAttributes(attribute.String("backend", name)))
	defer tspan.End()

	if opts.AuthorityTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.AuthorityTimeout)
		defer cancel()
	}

	start := time.Now()
	av, err := o.authority.Lookup(ctx, verify.AuthorityRequest{CitationText: span.Text, Credential: opts.AuthorityCredential})
	if err != nil {
		verr := verify.Classify(name, err)
		o.metrics.ObserveBackend(name, time.Since(start), verr.Kind.String())
		tspan.RecordError(verr)
		tspan.SetStatus(codes.Error, verr.Kind.String())
		o.logger.Warn("authority lookup failed", "citation_id", span.ID, "backend", name, "kind", verr.Kind.String())
		return verify.AuthorityFailed(verr)
	}
	o.metrics.ObserveBackend(name, time.Since(start), "")
	tspan.SetAttributes(attribute.Bool("authority.found", av.Found))
	return verify.AuthorityAnswered(av)
}
