package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Syncer posts finished reports to a remote journal endpoint
type Syncer struct {
	url       string
	client    *http.Client
	userAgent string
}

func NewSyncer(url string, client *http.Client, userAgent string) *Syncer {
	if client == nil {
		client = http.DefaultClient
	}
	return &Syncer{url: url, client: client, userAgent: userAgent}
}

func (s *Syncer) URL() string {
	return s.url
}

// Sync POSTs rep as JSON. Any non-2xx answer is an error.
func (s *Syncer) Sync(ctx context.Context, rep *Report) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sync report: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("sync report: %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
