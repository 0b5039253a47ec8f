package llm

import (
	"fmt"
	"strings"
)

// NewProvider creates a new LLM provider based on configuration
func NewProvider(config Config) (Provider, error) {
	var (
		p   Provider
		err error
	)

	switch strings.ToLower(config.Provider) {
	case "openai":
		p, err = asProvider(NewOpenAIProvider(config))
	case "anthropic", "claude":
		p, err = asProvider(NewAnthropicProvider(config))
	case "ollama":
		p, err = asProvider(NewOllamaProvider(config))
	case "":
		return nil, fmt.Errorf("no reasoner provider configured (supported: openai, anthropic, ollama)")
	default:
		return nil, fmt.Errorf("unknown LLM provider: %s (supported: openai, anthropic, ollama)", config.Provider)
	}

	if err != nil {
		return nil, err
	}
	return p, nil
}

// asProvider drops the typed-nil pointer a failed constructor returns
func asProvider[P Provider](p P, err error) (Provider, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}
