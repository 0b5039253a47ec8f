package verify

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/lexicite/internal/cache"
	"github.com/ppiankov/lexicite/internal/model"
)

type countingReasoner struct {
	calls atomic.Int32
	err   error
	model string
}

func (r *countingReasoner) Name() string { return "fake" }

func (r *countingReasoner) ModelFor(Mode) string { return r.model }

func (r *countingReasoner) Verify(ctx context.Context, req Request) (Verdict, error) {
	r.calls.Add(1)
	if r.err != nil {
		return Verdict{}, r.err
	}
	return Verdict{IsValid: true, CaseName: "Case for " + req.CitationText, Standing: model.StandingGood}, nil
}

func TestCachedReasoner_CachesSuccess(t *testing.T) {
	inner := &countingReasoner{model: "m1"}
	r := NewCachedReasoner(inner, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, nil)

	req := Request{CitationText: "410 U.S. 113", Mode: ModeStandard}
	first, err := r.Verify(context.Background(), req)
	require.NoError(t, err)
	second, err := r.Verify(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.calls.Load())

	// Mode is part of the key
	_, err = r.Verify(context.Background(), Request{CitationText: "410 U.S. 113", Mode: ModeResearch})
	require.NoError(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestCachedReasoner_ModelIsPartOfKey(t *testing.T) {
	c := cache.NewMemoryCache(time.Minute, time.Minute)
	a := &countingReasoner{model: "m1"}
	b := &countingReasoner{model: "m2"}
	req := Request{CitationText: "410 U.S. 113", Mode: ModeStandard}

	_, _ = NewCachedReasoner(a, c, time.Minute, nil).Verify(context.Background(), req)
	_, _ = NewCachedReasoner(b, c, time.Minute, nil).Verify(context.Background(), req)
	assert.Equal(t, int32(1), b.calls.Load())
}

func TestCachedReasoner_NeverCachesErrors(t *testing.T) {
	inner := &countingReasoner{err: ErrNetwork}
	r := NewCachedReasoner(inner, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, nil)

	req := Request{CitationText: "410 U.S. 113"}
	_, err := r.Verify(context.Background(), req)
	assert.Error(t, err)
	_, err = r.Verify(context.Background(), req)
	assert.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
}

func TestNewCachedReasoner_NilCache(t *testing.T) {
	inner := &countingReasoner{}
	assert.Same(t, inner, NewCachedReasoner(inner, nil, time.Minute, nil))
}

type countingAuthority struct {
	calls   atomic.Int32
	verdict AuthorityVerdict
}

func (a *countingAuthority) Name() string { return "fake-index" }

func (a *countingAuthority) Lookup(ctx context.Context, req AuthorityRequest) (AuthorityVerdict, error) {
	a.calls.Add(1)
	return a.verdict, nil
}

func TestCachedAuthority(t *testing.T) {
	inner := &countingAuthority{verdict: AuthorityVerdict{Found: false}}
	idx := NewCachedAuthority(inner, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, nil)

	for i := 0; i < 3; i++ {
		v, err := idx.Lookup(context.Background(), AuthorityRequest{CitationText: "999 U.S. 999", Credential: "t"})
		require.NoError(t, err)
		assert.False(t, v.Found)
	}
	assert.Equal(t, int32(1), inner.calls.Load())

	reported := &countingAuthority{verdict: AuthorityVerdict{Error: "boom"}}
	idx = NewCachedAuthority(reported, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, nil)
	_, _ = idx.Lookup(context.Background(), AuthorityRequest{CitationText: "1 U.S. 1"})
	_, _ = idx.Lookup(context.Background(), AuthorityRequest{CitationText: "1 U.S. 1"})
	assert.Equal(t, int32(2), reported.calls.Load())
}

// tokenAuthority accepts only its current token
type tokenAuthority struct {
	calls atomic.Int32
	token string
}

func (a *tokenAuthority) Name() string { return "token-index" }

func (a *tokenAuthority) Lookup(ctx context.Context, req AuthorityRequest) (AuthorityVerdict, error) {
	a.calls.Add(1)
	if req.Credential != a.token {
		return AuthorityVerdict{}, &Error{Kind: KindAuth, Backend: a.Name(), Message: "invalid token"}
	}
	return AuthorityVerdict{Found: true, CaseName: "Roe v. Wade"}, nil
}

func TestCachedAuthority_CredentialIsPartOfKey(t *testing.T) {
	inner := &tokenAuthority{token: "old"}
	idx := NewCachedAuthority(inner, cache.NewMemoryCache(time.Minute, time.Minute), time.Minute, nil)
	req := AuthorityRequest{CitationText: "410 U.S. 113", Credential: "old"}

	v, err := idx.Lookup(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, v.Found)

	// Token revoked and replaced by one the backend rejects
	inner.token = "new"
	req.Credential = "revoked"
	_, err = idx.Lookup(context.Background(), req)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAuth)
	assert.Equal(t, int32(2), inner.calls.Load())
}
