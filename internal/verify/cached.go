package verify

import (
	"context"
	"time"

	"github.com/ppiankov/lexicite/internal/cache"
	"github.com/ppiankov/lexicite/internal/metrics"
)

// ModelNamer is implemented by reasoners whose answers depend on a model
// choice, so cached verdicts from different models never mix.
type ModelNamer interface {
	ModelFor(mode Mode) string
}

// CachedReasoner serves repeat citations from a cache. Only successful
// verdicts are stored; failures always reach the backend again.
type CachedReasoner struct {
	next    Reasoner
	cache   cache.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewCachedReasoner wraps next. With a nil cache it returns next unchanged.
func NewCachedReasoner(next Reasoner, c cache.Cache, ttl time.Duration, m *metrics.Metrics) Reasoner {
	if c == nil {
		return next
	}
	return &CachedReasoner{next: next, cache: c, ttl: ttl, metrics: m}
}

func (r *CachedReasoner) Name() string {
	return r.next.Name()
}

func (r *CachedReasoner) Verify(ctx context.Context, req Request) (Verdict, error) {
	modelName := ""
	if mn, ok := r.next.(ModelNamer); ok {
		modelName = mn.ModelFor(req.Mode)
	}
	key := cache.Key("reasoner", r.next.Name(), modelName, string(req.Mode), req.CitationText)

	if v, ok := cache.GetJSON[Verdict](r.cache, key); ok {
		r.metrics.CacheLookup(r.next.Name(), true)
		return v, nil
	}
	r.metrics.CacheLookup(r.next.Name(), false)

	v, err := r.next.Verify(ctx, req)
	if err != nil {
		return v, err
	}
	_ = cache.SetJSON(r.cache, key, v, r.ttl)
	return v, nil
}

// ModelFor keeps the wrapped reasoner's model visible through the wrapper
func (r *CachedReasoner) ModelFor(mode Mode) string {
	if mn, ok := r.next.(ModelNamer); ok {
		return mn.ModelFor(mode)
	}
	return ""
}

// CachedAuthority caches completed lookups, including "not found" answers.
// Entries are keyed per credential, so a revoked token reaches the backend
// and surfaces its auth error instead of replaying answers cached under it.
type CachedAuthority struct {
	next    AuthorityIndex
	cache   cache.Cache
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewCachedAuthority wraps next. With a nil cache it returns next unchanged.
func NewCachedAuthority(next AuthorityIndex, c cache.Cache, ttl time.Duration, m *metrics.Metrics) AuthorityIndex {
	if c == nil {
		return next
	}
	return &CachedAuthority{next: next, cache: c, ttl: ttl, metrics: m}
}

func (a *CachedAuthority) Name() string {
	return a.next.Name()
}

func (a *CachedAuthority) Lookup(ctx context.Context, req AuthorityRequest) (AuthorityVerdict, error) {
	// Key hashes its parts; the credential is never stored in clear
	key := cache.Key("authority", a.next.Name(), req.Credential, req.CitationText)

	if v, ok := cache.GetJSON[AuthorityVerdict](a.cache, key); ok {
		a.metrics.CacheLookup(a.next.Name(), true)
		return v, nil
	}
	a.metrics.CacheLookup(a.next.Name(), false)

	v, err := a.next.Lookup(ctx, req)
	if err != nil || v.Error != "" {
		return v, err
	}
	_ = cache.SetJSON(a.cache, key, v, a.ttl)
	return v, nil
}
