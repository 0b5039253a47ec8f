// Package validate probes the evidence links attached to verified citations
// once a batch is complete.
package validate

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/lexicite/internal/metrics"
	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/util"
	"github.com/ppiankov/lexicite/internal/worker"
)

const checkMaxRetries = 3

// checkSleepFunc is the sleep function used between retries (injectable for tests)
var checkSleepFunc = time.Sleep

// EvidenceChecker HEADs evidence URIs concurrently, honouring robots.txt and
// per-host rate limits. Backends sometimes invent plausible evidence links,
// so dead links are reported alongside the verdicts.
type EvidenceChecker struct {
	httpClient *http.Client
	robots     *util.RobotsChecker
	limiter    *worker.Limiter
	tiers      *TierClassifier
	metrics    *metrics.Metrics
	userAgent  string
	maxWorkers int
}

// NewEvidenceChecker creates a checker. limiter and m may be nil.
func NewEvidenceChecker(client *http.Client, userAgent string, maxWorkers int, tiers *TierClassifier, limiter *worker.Limiter, m *metrics.Metrics) *EvidenceChecker {
	if maxWorkers <= 0 {
		maxWorkers = 8
	}
	if tiers == nil {
		tiers = NewTierClassifier(nil)
	}
	return &EvidenceChecker{
		httpClient: client,
		robots:     util.NewRobotsChecker(userAgent, client),
		limiter:    limiter,
		tiers:      tiers,
		metrics:    m,
		userAgent:  userAgent,
		maxWorkers: maxWorkers,
	}
}

// NewEvidenceCheckerFromConfig wires a checker from the loaded configuration
func NewEvidenceCheckerFromConfig(cfg *model.Config, limiter *worker.Limiter, m *metrics.Metrics) *EvidenceChecker {
	client := util.NewHTTPClient(cfg.HTTP, 10*time.Second)
	return NewEvidenceChecker(client, cfg.HTTP.UserAgent, cfg.Concurrency.LinkChecks, NewTierClassifier(&cfg.Sources), limiter, m)
}

type target struct {
	citationID string
	uri        string
}

// Check probes every evidence URI of records, once per (citation, uri).
// Results keep record order, then evidence order.
func (c *EvidenceChecker) Check(ctx context.Context, records []model.CitationRecord) []model.LinkCheck {
	var targets []target
	for _, rec := range records {
		seen := make(map[string]bool)
		for _, src := range rec.Evidence {
			if src.URI == "" || seen[src.URI] {
				continue
			}
			seen[src.URI] = true
			targets = append(targets, target{citationID: rec.ID(), uri: src.URI})
		}
	}
	if len(targets) == 0 {
		return []model.LinkCheck{}
	}

	// The same URI cited by several records is probed once
	probes := make(map[string]model.LinkCheck)
	var unique []string
	for _, t := range targets {
		if _, ok := probes[t.uri]; !ok {
			probes[t.uri] = model.LinkCheck{}
			unique = append(unique, t.uri)
		}
	}

	results := make([]model.LinkCheck, len(unique))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.maxWorkers)
	for i, uri := range unique {
		g.Go(func() error {
			results[i] = c.checkWithRetry(gctx, uri)
			c.metrics.LinkChecked(outcome(results[i]))
			return nil
		})
	}
	_ = g.Wait()

	for i, uri := range unique {
		probes[uri] = results[i]
	}

	out := make([]model.LinkCheck, 0, len(targets))
	for _, t := range targets {
		lc := probes[t.uri]
		lc.CitationID = t.citationID
		out = append(out, lc)
	}
	return out
}

func outcome(lc model.LinkCheck) string {
	switch {
	case lc.Disallowed:
		return "disallowed"
	case lc.IsDead:
		return "dead"
	case lc.IsAccessible:
		return "ok"
	default:
		return "error"
	}
}

func (c *EvidenceChecker) checkSingle(ctx context.Context, uri string) model.LinkCheck {
	result := model.LinkCheck{
		URI:       uri,
		Authority: c.tiers.Classify(uri),
	}

	if !strings.HasPrefix(uri, "http://") && !strings.HasPrefix(uri, "https://") {
		result.Error = "unsupported scheme"
		result.IsDead = true
		return result
	}

	allowed, crawlDelay, err := c.robots.CanFetch(ctx, uri)
	if err != nil {
		result.Error = err.Error()
		result.IsDead = true
		return result
	}
	if !allowed {
		result.Disallowed = true
		return result
	}

	if c.limiter != nil {
		if err := c.limiter.WaitWithDelay(ctx, uri, crawlDelay); err != nil {
			result.Error = fmt.Sprintf("rate limit: %v", err)
			return result
		}
	}

	resp, err := c.do(ctx, http.MethodHead, uri)
	if err == nil && (resp.StatusCode == http.StatusMethodNotAllowed || resp.StatusCode == http.StatusNotImplemented) {
		_ = resp.Body.Close()
		resp, err = c.do(ctx, http.MethodGet, uri)
	}
	if err != nil {
		result.Error = fmt.Sprintf("request failed: %v", err)
		result.IsDead = true
		return result
	}
	defer func() { _ = resp.Body.Close() }()

	result.StatusCode = resp.StatusCode
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 400:
		result.IsAccessible = true
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		result.IsDead = true
	}

	if final := resp.Request.URL.String(); final != uri {
		result.RedirectURL = final
	}

	if lastModified := resp.Header.Get("Last-Modified"); lastModified != "" {
		if t, err := http.ParseTime(lastModified); err == nil {
			result.LastModified = &t
		}
	}

	return result
}

func (c *EvidenceChecker) do(ctx context.Context, method, uri string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, uri, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)
	if method == http.MethodGet {
		// Only the status matters
		req.Header.Set("Range", "bytes=0-0")
	}
	return c.httpClient.Do(req)
}

// checkWithRetry retries transient failures with exponential backoff
func (c *EvidenceChecker) checkWithRetry(ctx context.Context, uri string) model.LinkCheck {
	var result model.LinkCheck
	for attempt := 0; attempt < checkMaxRetries; attempt++ {
		result = c.checkSingle(ctx, uri)
		if !isRetryable(result) || ctx.Err() != nil {
			return result
		}
		if attempt < checkMaxRetries-1 {
			checkSleepFunc(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}
	return result
}

// isRetryable reports 5xx, 429 and transient network failures
func isRetryable(result model.LinkCheck) bool {
	if result.StatusCode >= 500 && result.StatusCode < 600 {
		return true
	}
	if result.StatusCode == http.StatusTooManyRequests {
		return true
	}
	s := strings.ToLower(result.Error)
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}
