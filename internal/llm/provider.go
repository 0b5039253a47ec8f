package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/verify"
)

// Provider is an LLM-backed citation Reasoner
type Provider interface {
	verify.Reasoner

	// ModelFor returns the model used for a verification mode
	ModelFor(mode verify.Mode) string

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "anthropic", "ollama"
	Provider string

	// Model for standard mode (provider-specific)
	Model string

	// ResearchModel for research mode; empty means Model
	ResearchModel string

	// APIKey for OpenAI/Anthropic
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:  "openai",
		Timeout:   30,
		MaxTokens: 800,
	}
}

// ConfigFromModel converts the reasoner and transport sections of the
// application config
func ConfigFromModel(rc model.ReasonerConfig, hc model.HTTPConfig) Config {
	return Config{
		Provider:      rc.Provider,
		Model:         rc.Model,
		ResearchModel: rc.ResearchModel,
		APIKey:        rc.APIKey,
		BaseURL:       rc.BaseURL,
		Timeout:       rc.Timeout,
		MaxTokens:     rc.MaxTokens,
		HTTPProxy:     hc.HTTPProxy,
		HTTPSProxy:    hc.HTTPSProxy,
		NoProxy:       hc.NoProxy,
	}
}

func (c Config) modelFor(mode verify.Mode, fallback string) string {
	if mode == verify.ModeResearch && c.ResearchModel != "" {
		return c.ResearchModel
	}
	if c.Model != "" {
		return c.Model
	}
	return fallback
}

func (c Config) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return 800
}

const systemPrompt = `You are a meticulous legal research assistant that checks citations to United States legal authorities.
You never invent cases, reporters, volumes or URLs. If you are not sure a citation exists, say it is not valid.
Reply with a single JSON object and nothing else.`

// BuildPrompt constructs the verification prompt for one citation
func BuildPrompt(req verify.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Verify this legal citation: %q\n\n", req.CitationText)
	b.WriteString(`Decide whether it refers to a real authority: the reporter must exist, the volume must be within the
reporter's published range, and the page must plausibly start a reported decision. A citation that only looks
well-formed is NOT valid. Then decide whether it is still good law.

Return JSON with exactly these fields:
{
  "isValid": true or false,
  "caseName": "name of the case or statute, or null",
  "legalStanding": one of "good", "caution", "superseded", "overruled", "unknown",
  "explanation": "one or two sentences explaining the judgment",
  "confidence": integer from 0 to 100,
  "areaOfLaw": "short area of law, e.g. Constitutional Law",
  "replacement": {"name": "...", "citation": "...", "uri": "..."} or null,
  "evidence": [{"uri": "...", "title": "..."}]
}

Only fill "replacement" when the authority was overruled or superseded and you can name the authority that now
controls, with its own citation.`)

	if req.Mode == verify.ModeResearch {
		b.WriteString(`

Search the web before answering. Prefer primary sources (court websites, CourtListener, Cornell LII, govinfo.gov)
and list every page you relied on under "evidence". Do not list a URL you did not actually open.`)
	} else {
		b.WriteString(`

Leave "evidence" empty unless you are certain of a stable canonical URL.`)
	}
	return b.String()
}
