package util

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ppiankov/lexicite/internal/model"
)

func proxyFor(t *testing.T, fn func(*http.Request) (*url.URL, error), rawURL string) string {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, rawURL, nil)
	require.NoError(t, err)
	u, err := fn(req)
	require.NoError(t, err)
	if u == nil {
		return ""
	}
	return u.String()
}

func TestNewProxyFunc(t *testing.T) {
	fn := NewProxyFunc("http://proxy.internal:3128", "http://secure.internal:3129", "courtlistener.com")

	assert.Equal(t, "http://proxy.internal:3128", proxyFor(t, fn, "http://example.com/x"))
	assert.Equal(t, "http://secure.internal:3129", proxyFor(t, fn, "https://example.com/x"))
	assert.Equal(t, "", proxyFor(t, fn, "https://www.courtlistener.com/api/"))
}

func TestNewProxyFunc_HTTPSFallsBackToHTTPProxy(t *testing.T) {
	fn := NewProxyFunc("http://proxy.internal:3128", "", "")
	assert.Equal(t, "http://proxy.internal:3128", proxyFor(t, fn, "https://api.openai.com/v1"))
}

func TestNewHTTPClient(t *testing.T) {
	cfg := model.HTTPConfig{Timeout: 7 * time.Second}
	assert.Equal(t, 7*time.Second, NewHTTPClient(cfg, 0).Timeout)
	assert.Equal(t, 2*time.Second, NewHTTPClient(cfg, 2*time.Second).Timeout)

	var hops atomic.Int32
	var server *httptest.Server
	server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hops.Add(1)
		http.Redirect(w, r, fmt.Sprintf("%s/hop%d", server.URL, n), http.StatusFound)
	}))
	defer server.Close()

	_, err := NewHTTPClient(cfg, time.Second).Get(server.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stopped after 3 redirects")
}

func TestRobotsChecker(t *testing.T) {
	var fetches atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			fetches.Add(1)
			_, _ = fmt.Fprint(w, "User-agent: lexicite\nDisallow: /private/\nCrawl-delay: 2\n\nUser-agent: *\nDisallow: /\n")
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	rc := NewRobotsChecker("lexicite/0.1 (+https://github.com/ppiankov/lexicite)", server.Client())
	ctx := context.Background()

	allowed, delay, err := rc.CanFetch(ctx, server.URL+"/opinions/1")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 2*time.Second, delay)

	allowed, _, err = rc.CanFetch(ctx, server.URL+"/private/doc")
	require.NoError(t, err)
	assert.False(t, allowed)

	assert.Equal(t, int32(1), fetches.Load(), "robots.txt should be cached per host")

	rc.Clear()
	_, _, _ = rc.CanFetch(ctx, server.URL+"/")
	assert.Equal(t, int32(2), fetches.Load())

	other := NewRobotsChecker("otherbot/1.0", server.Client())
	allowed, _, err = other.CanFetch(ctx, server.URL+"/opinions/1")
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestRobotsChecker_MissingRobotsAllows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	rc := NewRobotsChecker("lexicite", server.Client())
	allowed, _, err := rc.CanFetch(context.Background(), server.URL+"/anything")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRobotsChecker_BadURL(t *testing.T) {
	rc := NewRobotsChecker("lexicite", nil)
	_, _, err := rc.CanFetch(context.Background(), "no-host")
	assert.Error(t, err)
}

func TestNormalizeUserAgent(t *testing.T) {
	assert.Equal(t, "lexicite", NormalizeUserAgent("lexicite/0.1 (+https://github.com/ppiankov/lexicite)"))
	assert.Equal(t, "bot", NormalizeUserAgent("bot"))
	assert.Equal(t, "", NormalizeUserAgent(""))
}
