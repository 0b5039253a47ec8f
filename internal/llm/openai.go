package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/ppiankov/lexicite/internal/util"
	"github.com/ppiankov/lexicite/internal/verify"
)

// chatClient is the slice of the go-openai client the provider uses
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
	ListModels(ctx context.Context) (openai.ModelsList, error)
}

// OpenAIProvider verifies citations with OpenAI chat models. Standard mode
// constrains the reply with a JSON schema; research mode uses a
// search-enabled model.
type OpenAIProvider struct {
	client chatClient
	config Config
}

// NewOpenAIProvider creates a new OpenAI provider
func NewOpenAIProvider(config Config) (*OpenAIProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	clientConfig.HTTPClient = &http.Client{
		Timeout: timeoutOf(config, 30*time.Second),
		Transport: &http.Transport{
			Proxy: util.NewProxyFunc(config.HTTPProxy, config.HTTPSProxy, config.NoProxy),
		},
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

func (p *OpenAIProvider) ModelFor(mode verify.Mode) string {
	if mode == verify.ModeResearch {
		if p.config.ResearchModel != "" {
			return p.config.ResearchModel
		}
		return "gpt-4o-mini-search-preview"
	}
	return p.config.modelFor(mode, openai.GPT4oMini)
}

// IsAvailable checks if the provider is properly configured
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// verdictSchema mirrors the JSON requested in BuildPrompt
var verdictSchema = jsonschema.Definition{
	Type: jsonschema.Object,
	Properties: map[string]jsonschema.Definition{
		"isValid":  {Type: jsonschema.Boolean, Description: "True only if the citation refers to a real authority"},
		"caseName": {Type: jsonschema.String, Description: "Case or statute name, empty if unknown"},
		"legalStanding": {
			Type: jsonschema.String,
			Enum: []string{"good", "caution", "superseded", "overruled", "unknown"},
		},
		"explanation": {Type: jsonschema.String},
		"confidence":  {Type: jsonschema.Integer, Description: "0 to 100"},
		"areaOfLaw":   {Type: jsonschema.String},
		"replacement": {
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"name":     {Type: jsonschema.String},
				"citation": {Type: jsonschema.String},
				"uri":      {Type: jsonschema.String},
			},
		},
		"evidence": {
			Type: jsonschema.Array,
			Items: &jsonschema.Definition{
				Type: jsonschema.Object,
				Properties: map[string]jsonschema.Definition{
					"uri":   {Type: jsonschema.String},
					"title": {Type: jsonschema.String},
				},
				Required: []string{"uri"},
			},
		},
	},
	Required: []string{"isValid", "caseName", "legalStanding", "explanation", "confidence"},
}

// Verify asks the model for a verdict on one citation
func (p *OpenAIProvider) Verify(ctx context.Context, req verify.Request) (verify.Verdict, error) {
	chatReq := openai.ChatCompletionRequest{
		Model: p.ModelFor(req.Mode),
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(req)},
		},
		MaxTokens: p.config.maxTokens(),
	}
	if req.Mode != verify.ModeResearch {
		// Search models reject both sampling parameters and response schemas
		chatReq.Temperature = 0.1
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   "citation_verdict",
				Schema: &verdictSchema,
			},
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return verify.Verdict{}, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return verify.Verdict{}, verify.NewParseError(p.Name(), nil, errors.New("no choices in response"))
	}

	choice := resp.Choices[0]
	if choice.FinishReason == openai.FinishReasonContentFilter || choice.Message.Refusal != "" {
		msg := choice.Message.Refusal
		if msg == "" {
			msg = "response withheld by content filter"
		}
		return verify.Verdict{}, &verify.Error{Kind: verify.KindSafetyBlock, Backend: p.Name(), Message: msg}
	}

	return ParseVerdict(p.Name(), strings.TrimSpace(choice.Message.Content))
}

// classify maps go-openai errors onto the verification taxonomy
func (p *OpenAIProvider) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := verify.FromStatus(p.Name(), apiErr.HTTPStatusCode, nil)
		e.Message = apiErr.Message
		e.Err = err
		if apiErr.HTTPStatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(apiErr.Message), "safety") {
			e.Kind = verify.KindSafetyBlock
		}
		return e
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		e := verify.FromStatus(p.Name(), reqErr.HTTPStatusCode, nil)
		e.Err = err
		return e
	}

	return verify.Classify(p.Name(), err)
}

func timeoutOf(config Config, fallback time.Duration) time.Duration {
	if config.Timeout > 0 {
		return time.Duration(config.Timeout) * time.Second
	}
	return fallback
}
