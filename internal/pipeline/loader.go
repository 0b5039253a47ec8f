package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/lexicite/internal/extract"
	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/util"
)

const fetchMaxRetries = 3

// fetchSleepFunc is the sleep function used between retries (injectable for tests)
var fetchSleepFunc = time.Sleep

// Document is a loaded source ready for extraction
type Document struct {
	Title       string
	Source      string // Path, URL, or "-" for stdin
	ContentType string
	Text        string
}

// StatusError is a non-2xx response while fetching a document
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status: %s", e.Status)
}

// Loader reads documents from files, stdin, or http(s) URLs. HTML is reduced
// to its visible text so offsets refer to what a reader sees.
type Loader struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	stdin      io.Reader
}

// NewLoader creates a loader using the shared HTTP settings
func NewLoader(cfg model.HTTPConfig) *Loader {
	maxBytes := cfg.MaxBodyBytes
	if maxBytes <= 0 {
		maxBytes = 2_000_000
	}
	return &Loader{
		httpClient: util.NewHTTPClient(cfg, 0),
		userAgent:  cfg.UserAgent,
		maxBytes:   maxBytes,
		stdin:      os.Stdin,
	}
}

// WithStdin replaces the reader used for "-"
func (l *Loader) WithStdin(r io.Reader) *Loader {
	l.stdin = r
	return l
}

// Load reads source
func (l *Loader) Load(ctx context.Context, source string) (*Document, error) {
	switch {
	case source == "-":
		body, err := io.ReadAll(io.LimitReader(l.stdin, l.maxBytes))
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		return l.document("stdin", source, sniffType(body), body)
	case strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://"):
		return l.fetchWithRetry(ctx, source)
	default:
		return l.readFile(source)
	}
}

func (l *Loader) readFile(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer func() { _ = f.Close() }()

	body, err := io.ReadAll(io.LimitReader(f, l.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}

	contentType := "text/plain"
	if extract.IsHTML(path) {
		contentType = "text/html"
	}
	return l.document(filepath.Base(path), path, contentType, body)
}

func (l *Loader) document(title, source, contentType string, body []byte) (*Document, error) {
	text := string(body)
	if extract.IsHTML(contentType) {
		visible, err := extract.VisibleText(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("parse html: %w", err)
		}
		text = visible
	}
	return &Document{
		Title:       title,
		Source:      source,
		ContentType: contentType,
		Text:        text,
	}, nil
}

func (l *Loader) fetch(ctx context.Context, rawURL string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", l.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	finalURL := resp.Request.URL.String()
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = sniffType(body)
	}
	return l.document(titleFromURL(finalURL), finalURL, contentType, body)
}

// fetchWithRetry retries 5xx, 429 and transient network failures
func (l *Loader) fetchWithRetry(ctx context.Context, rawURL string) (*Document, error) {
	var lastErr error
	for attempt := 0; attempt < fetchMaxRetries; attempt++ {
		doc, err := l.fetch(ctx, rawURL)
		if err == nil {
			return doc, nil
		}
		lastErr = err
		if !isRetryableFetchError(err) || ctx.Err() != nil {
			return nil, err
		}
		if attempt < fetchMaxRetries-1 {
			fetchSleepFunc(time.Duration(1<<uint(attempt)) * time.Second)
		}
	}
	return nil, lastErr
}

func isRetryableFetchError(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code >= 500 || se.Code == http.StatusTooManyRequests
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset")
}

func sniffType(body []byte) string {
	return http.DetectContentType(body)
}

// titleFromURL derives a human-readable title from the last path segment
func titleFromURL(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}

	path := strings.Trim(parsed.Path, "/")
	if path == "" {
		return parsed.Host
	}

	segments := strings.Split(path, "/")
	last := segments[len(segments)-1]

	last = strings.ReplaceAll(last, "_", " ")
	last = strings.ReplaceAll(last, "-", " ")

	if idx := strings.LastIndex(last, "."); idx > 0 {
		last = last[:idx]
	}

	return last
}
