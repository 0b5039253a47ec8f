package cli

import (
	"fmt"
	"io"
	"net/url"

	"github.com/ppiankov/lexicite/internal/authority"
	"github.com/ppiankov/lexicite/internal/cache"
	"github.com/ppiankov/lexicite/internal/llm"
	"github.com/ppiankov/lexicite/internal/logging"
	"github.com/ppiankov/lexicite/internal/metrics"
	"github.com/ppiankov/lexicite/internal/model"
	"github.com/ppiankov/lexicite/internal/orchestrator"
	"github.com/ppiankov/lexicite/internal/pipeline"
	"github.com/ppiankov/lexicite/internal/report"
	"github.com/ppiankov/lexicite/internal/util"
	"github.com/ppiankov/lexicite/internal/validate"
	"github.com/ppiankov/lexicite/internal/verify"
	"github.com/ppiankov/lexicite/internal/worker"
)

// CourtListener throttles citation lookups well below the global default
const (
	authorityRPS   = 1.0
	authorityBurst = 2
)

// app holds the components shared by every command
type app struct {
	cfg     *model.Config
	logger  *logging.Logger
	metrics *metrics.Metrics
	limiter *worker.Limiter
	orch    *orchestrator.Orchestrator
	opts    orchestrator.Options
	closers []io.Closer
}

// newApp wires reasoner, case-law index, verdict cache and orchestrator
// from cfg
func newApp(cfg *model.Config, logger *logging.Logger) (*app, error) {
	a := &app{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics.New(),
		limiter: worker.NewLimiterFromConfig(cfg.RateLimiting),
		opts:    orchestrator.OptionsFromConfig(cfg),
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg.Reasoner, cfg.HTTP))
	if err != nil {
		return nil, fmt.Errorf("configure reasoner: %w", err)
	}

	verdicts, err := cache.New(cfg.Cache)
	if err != nil {
		// Verification works without a cache, just slower
		logger.Warn("verdict cache unavailable", "error", err.Error())
		verdicts = nil
	}
	if c, ok := verdicts.(io.Closer); ok {
		a.closers = append(a.closers, c)
	}

	reasoner := verify.NewCachedReasoner(provider, verdicts, cfg.Cache.DiskTTL, a.metrics)

	var index verify.AuthorityIndex
	if cfg.Authority.Enabled {
		acfg := authority.ConfigFromModel(cfg.Authority, cfg.HTTP)
		if u, err := url.Parse(cfg.Authority.BaseURL); err == nil && u.Host != "" {
			a.limiter.SetDomainRate(u.Host, authorityRPS, authorityBurst)
		}
		index = verify.NewCachedAuthority(authority.NewCourtListener(acfg, a.limiter), verdicts, cfg.Cache.DiskTTL, a.metrics)
	}

	a.orch = orchestrator.New(reasoner, index, logger, a.metrics)

	logger.Debug("components ready",
		"reasoner", provider.Name(),
		"model", provider.ModelFor(a.opts.Mode),
		"authority", cfg.Authority.Enabled,
		"cache", verdicts != nil,
	)
	return a, nil
}

// pipeline builds a document pipeline; checkLinks adds the post-batch
// evidence probe
func (a *app) pipeline(checkLinks bool, progress io.Writer) *pipeline.Pipeline {
	var checker *validate.EvidenceChecker
	if checkLinks {
		checker = validate.NewEvidenceCheckerFromConfig(a.cfg, a.limiter, a.metrics)
	}

	p := pipeline.New(
		pipeline.NewLoader(a.cfg.HTTP),
		a.orch,
		checker,
		report.NewRenderer(a.cfg.Output.IncludeFooter),
		a.opts,
		a.logger,
	)
	if progress != nil {
		p = p.WithProgress(progress)
	}
	if a.cfg.Output.SyncURL != "" {
		p = p.WithSync(report.NewSyncer(a.cfg.Output.SyncURL, util.NewHTTPClient(a.cfg.HTTP, 0), a.cfg.HTTP.UserAgent))
	}
	return p
}

func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn("close", "error", err.Error())
		}
	}
	a.logger.Sync()
}
