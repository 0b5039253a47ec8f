package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/util"
	"github.com/ppiankov/lexicite/internal/verify"
)

const defaultAnthropicModel = "claude-3-5-haiku-20241022"

// AnthropicProvider verifies citations with Claude models over the Messages
// API. Research mode enables the server-side web search tool.
type AnthropicProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	config     Config
}

// Anthropic API structures
type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicTool struct {
	Type    string `json:"type"`
	Name    string `json:"name"`
	MaxUses int    `json:"max_uses,omitempty"`
}

type anthropicCitation struct {
	Type  string `json:"type"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

type anthropicBlock struct {
	Type      string              `json:"type"`
	Text      string              `json:"text,omitempty"`
	Citations []anthropicCitation `json:"citations,omitempty"`
}

type anthropicResponse struct {
	ID         string           `json:"id"`
	Type       string           `json:"type"`
	Role       string           `json:"role"`
	Content    []anthropicBlock `json:"content"`
	Model      string           `json:"model"`
	StopReason string           `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicError struct {
	Type  string `json:"type"`
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// NewAnthropicProvider creates a new Anthropic provider
func NewAnthropicProvider(config Config) (*AnthropicProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Anthropic API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com"
	}

	return &AnthropicProvider{
		apiKey:  config.APIKey,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeoutOf(config, 60*time.Second),
			Transport: &http.Transport{
				Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
			},
		},
		config: config,
	}, nil
}

// Name returns the provider name
func (p *AnthropicProvider) Name() string {
	return "anthropic"
}

func (p *AnthropicProvider) ModelFor(mode verify.Mode) string {
	return p.config.modelFor(mode, defaultAnthropicModel)
}

// IsAvailable makes a minimal completion call
func (p *AnthropicProvider) IsAvailable(ctx context.Context) bool {
	req := anthropicRequest{
		Model:     p.ModelFor(verify.ModeStandard),
		MaxTokens: 10,
		Messages: []anthropicMessage{
			{Role: "user", Content: "Hi"},
		},
	}

	_, err := p.makeRequest(ctx, req)
	return err == nil
}

// Verify asks Claude for a verdict on one citation
func (p *AnthropicProvider) Verify(ctx context.Context, req verify.Request) (verify.Verdict, error) {
	apiReq := anthropicRequest{
		Model:     p.ModelFor(req.Mode),
		MaxTokens: p.config.maxTokens(),
		System:    systemPrompt,
		Messages: []anthropicMessage{
			{Role: "user", Content: BuildPrompt(req)},
		},
		Temperature: 0.1,
	}
	if req.Mode == verify.ModeResearch {
		apiReq.Tools = []anthropicTool{{Type: "web_search_20250305", Name: "web_search", MaxUses: 3}}
		// Searching burns output budget before the JSON answer is written
		apiReq.MaxTokens = max(apiReq.MaxTokens, 2048)
	}

	resp, err := p.makeRequest(ctx, apiReq)
	if err != nil {
		return verify.Verdict{}, err
	}

	if resp.StopReason == "refusal" {
		return verify.Verdict{}, &verify.Error{
			Kind:    verify.KindSafetyBlock,
			Backend: p.Name(),
			Message: strings.TrimSpace(joinText(resp.Content)),
		}
	}

	text := joinText(resp.Content)
	if strings.TrimSpace(text) == "" {
		return verify.Verdict{}, verify.NewParseError(p.Name(), nil, errors.New("no text content in response"))
	}

	v, err := ParseVerdict(p.Name(), text)
	if err != nil {
		return v, err
	}

	// Pages the search tool actually cited back the verdict too
	for _, block := range resp.Content {
		for _, c := range block.Citations {
			if c.URL != "" {
				v.Evidence = append(v.Evidence, model.Source{URI: c.URL, Title: c.Title})
			}
		}
	}
	return v, nil
}

func joinText(blocks []anthropicBlock) string {
	var b strings.Builder
	for _, block := range blocks {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// makeRequest makes an HTTP request to the Anthropic API
func (p *AnthropicProvider) makeRequest(ctx context.Context, apiReq anthropicRequest) (*anthropicResponse, error) {
	body, err := json.Marshal(apiReq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/messages", p.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", "2023-06-01")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, verify.Classify(p.Name(), err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, verify.Classify(p.Name(), fmt.Errorf("read response: %w", err))
	}

	if httpResp.StatusCode != http.StatusOK {
		e := verify.FromStatus(p.Name(), httpResp.StatusCode, respBody)
		var apiErr anthropicError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			e.Message = fmt.Sprintf("%s: %s", apiErr.Error.Type, apiErr.Error.Message)
			if apiErr.Error.Type == "overloaded_error" || apiErr.Error.Type == "rate_limit_error" {
				e.Kind = verify.KindRateLimit
			}
		}
		return nil, e
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, verify.NewParseError(p.Name(), respBody, err)
	}

	return &resp, nil
}
