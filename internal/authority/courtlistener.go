// Package authority implements the AuthorityIndex backend against the
// CourtListener citation lookup API.
package authority

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/util"
	"github.com/ppiankov/lexicite/internal/verify"
	"github.com/ppiankov/lexicite/internal/worker"
)

const lookupPath = "/api/rest/v4/citation-lookup/"

// Config holds CourtListener client settings
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	UserAgent    string
	MaxBodyBytes int64

	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// ConfigFromModel builds a client config from the application config
func ConfigFromModel(ac model.AuthorityConfig, hc model.HTTPConfig) Config {
	return Config{
		BaseURL:      ac.BaseURL,
		Timeout:      time.Duration(ac.Timeout) * time.Second,
		UserAgent:    hc.UserAgent,
		MaxBodyBytes: hc.MaxBodyBytes,
		HTTPProxy:    hc.HTTPProxy,
		HTTPSProxy:   hc.HTTPSProxy,
		NoProxy:      hc.NoProxy,
	}
}

// CourtListener looks citations up in the CourtListener case-law database
type CourtListener struct {
	baseURL    string
	httpClient *http.Client
	limiter    *worker.Limiter
	userAgent  string
	maxBody    int64
}

// lookupEntry is one citation found in the submitted text
type lookupEntry struct {
	Citation     string    `json:"citation"`
	Status       int       `json:"status"`
	ErrorMessage string    `json:"error_message"`
	Clusters     []cluster `json:"clusters"`
}

type cluster struct {
	ID          int64  `json:"id"`
	AbsoluteURL string `json:"absolute_url"`
	CaseName    string `json:"case_name"`
}

// NewCourtListener creates a client. limiter may be nil.
func NewCourtListener(cfg Config, limiter *worker.Limiter) *CourtListener {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://www.courtlistener.com"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 2_000_000
	}

	return &CourtListener{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy),
			},
		},
		limiter:   limiter,
		userAgent: cfg.UserAgent,
		maxBody:   maxBody,
	}
}

func (c *CourtListener) Name() string {
	return "courtlistener"
}

// Lookup submits the citation text and reports the first matching opinion
// cluster. An unmatched citation is a successful "not found" answer.
func (c *CourtListener) Lookup(ctx context.Context, req verify.AuthorityRequest) (verify.AuthorityVerdict, error) {
	endpoint := c.baseURL + lookupPath

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, endpoint); err != nil {
			return verify.AuthorityVerdict{}, verify.Classify(c.Name(), err)
		}
	}

	form := url.Values{"text": {req.CitationText}}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return verify.AuthorityVerdict{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	httpReq.Header.Set("Accept", "application/json")
	if req.Credential != "" {
		httpReq.Header.Set("Authorization", "Token "+req.Credential)
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return verify.AuthorityVerdict{}, verify.Classify(c.Name(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody))
	if err != nil {
		return verify.AuthorityVerdict{}, verify.Classify(c.Name(), fmt.Errorf("read response: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		return verify.AuthorityVerdict{}, verify.FromStatus(c.Name(), resp.StatusCode, body)
	}

	var entries []lookupEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		return verify.AuthorityVerdict{}, verify.NewParseError(c.Name(), body, err)
	}

	for _, e := range entries {
		// 300 means several clusters share the citation; the first is the
		// best-ranked match.
		if (e.Status != http.StatusOK && e.Status != http.StatusMultipleChoices) || len(e.Clusters) == 0 {
			continue
		}
		cl := e.Clusters[0]
		v := verify.AuthorityVerdict{
			Found:    true,
			CaseName: strings.TrimSpace(cl.CaseName),
			RecordID: strconv.FormatInt(cl.ID, 10),
		}
		if cl.AbsoluteURL != "" {
			v.CanonicalURI = c.absolute(cl.AbsoluteURL)
		}
		return v, nil
	}

	return verify.AuthorityVerdict{Found: false}, nil
}

func (c *CourtListener) absolute(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}
