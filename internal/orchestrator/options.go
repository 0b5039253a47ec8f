package orchestrator

import (
	"time"

	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/verify"
)

// Options configure one batch. A batch copies its Options when it starts;
// later changes by the caller never reach running pipelines.
type Options struct {
	Pattern   string // Empty selects the built-in pattern
	MinLength int

	Mode verify.Mode

	AuthorityEnabled    bool
	AuthorityCredential string

	MaxConcurrent    int
	ReasonerTimeout  time.Duration
	AuthorityTimeout time.Duration

	// Debounce delays a live re-analysis until edits stop
	Debounce time.Duration
}

// DefaultOptions mirrors model.DefaultConfig
func DefaultOptions() Options {
	return OptionsFromConfig(model.DefaultConfig())
}

// OptionsFromConfig derives batch options from the loaded configuration
func OptionsFromConfig(cfg *model.Config) Options {
	mode, err := verify.ParseMode(cfg.Reasoner.Mode)
	if err != nil {
		mode = verify.ModeStandard
	}

	return Options{
		Pattern:             cfg.Extraction.Pattern,
		MinLength:           cfg.Extraction.MinLength,
		Mode:                mode,
		AuthorityEnabled:    cfg.Authority.Enabled,
		AuthorityCredential: cfg.Authority.Token,
		MaxConcurrent:       cfg.Concurrency.MaxPipelines,
		ReasonerTimeout:     seconds(cfg.Reasoner.Timeout),
		AuthorityTimeout:    seconds(cfg.Authority.Timeout),
		Debounce:            cfg.Live.Debounce,
	}
}

func seconds(n int) time.Duration {
	if n <= 0 {
		return 0
	}
	return time.Duration(n) * time.Second
}

func (o Options) workers() int {
	if o.MaxConcurrent <= 0 {
		return 4
	}
	return o.MaxConcurrent
}

func (o Options) mode() verify.Mode {
	if o.Mode == "" {
		return verify.ModeStandard
	}
	return o.Mode
}
