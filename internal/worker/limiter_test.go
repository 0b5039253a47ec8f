package worker

import (
	"context"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/ppiankov/lexicite/internal/model"
)

func TestLimiter_New(t *testing.T) {
	limiter := NewLimiter(10, 5)
	if limiter.defaultBurst != 5 {
		t.Errorf("expected burst 5, got %d", limiter.defaultBurst)
	}

	l2 := NewLimiter(10, -1)
	if l2.defaultBurst != 5 {
		t.Errorf("expected default burst 5 for negative input, got %d", l2.defaultBurst)
	}

	l3 := NewLimiter(0, 1)
	if l3.defaultRate != rate.Inf {
		t.Errorf("expected unlimited rate for 0 rps, got %v", l3.defaultRate)
	}
}

func TestLimiter_FromConfig(t *testing.T) {
	l := NewLimiterFromConfig(model.RateLimitingConfig{RequestsPerSecond: 3, BurstSize: 2})
	if l.defaultRate != 3 || l.defaultBurst != 2 {
		t.Errorf("unexpected limiter settings: %v/%d", l.defaultRate, l.defaultBurst)
	}
}

func TestLimiter_Wait(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	if err := limiter.Wait(ctx, "https://www.courtlistener.com/api/rest/v4/citation-lookup/"); err != nil {
		t.Errorf("wait failed: %v", err)
	}

	// Different host has its own budget
	if err := limiter.Wait(ctx, "https://api.openai.com/v1/chat/completions"); err != nil {
		t.Errorf("wait failed: %v", err)
	}

	if err := limiter.Wait(ctx, "not a url"); err == nil {
		t.Error("expected error for URL without host")
	}
}

func TestLimiter_PerHost(t *testing.T) {
	limiter := NewLimiter(0.001, 1)

	if !limiter.Allow("https://a.example/x") {
		t.Fatal("expected first request to be allowed")
	}
	if limiter.Allow("https://a.example/y") {
		t.Error("expected second request to the same host to be throttled")
	}
	if !limiter.Allow("https://b.example/x") {
		t.Error("expected another host to be unaffected")
	}
}

func TestLimiter_WaitCancelled(t *testing.T) {
	limiter := NewLimiter(0.001, 1)
	limiter.Allow("https://slow.example/")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := limiter.Wait(ctx, "https://slow.example/"); err == nil {
		t.Error("expected wait to fail once the context expires")
	}
}

func TestLimiter_WaitWithDelay(t *testing.T) {
	limiter := NewLimiter(100, 1)
	ctx := context.Background()

	start := time.Now()
	if err := limiter.WaitWithDelay(ctx, "http://example.com", 50*time.Millisecond); err != nil {
		t.Errorf("wait failed: %v", err)
	}
	if time.Since(start) < 50*time.Millisecond {
		t.Error("expected delay of at least 50ms")
	}

	ctx2, cancel := context.WithCancel(context.Background())
	cancel()
	if err := limiter.WaitWithDelay(ctx2, "http://other.example", time.Second); err == nil {
		t.Error("expected error for cancelled context")
	}
}

func TestLimiter_SetDomainRate(t *testing.T) {
	limiter := NewLimiter(100, 1)
	limiter.SetDomainRate("example.com", 0.001, 1)

	if !limiter.Allow("http://example.com/1") {
		t.Fatal("expected first request allowed")
	}
	if limiter.Allow("http://example.com/2") {
		t.Error("expected override to throttle the second request")
	}
}
