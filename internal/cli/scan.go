package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/ppiankov/lexicite/internal/model"
)

var (
	outJSON      string
	outMD        string
	timeout      time.Duration
	checkLinks   bool
	mode         string
	provider     string
	modelName    string
	pattern      string
	noAuthority  bool
	noCache      bool
	noFooter     bool
	maxPipelines int
	httpProxy    string
	httpsProxy   string
	syncURL      string
)

// scanCmd represents the scan command
var scanCmd = &cobra.Command{
	Use:   "scan <file|url|->",
	Short: "Verify every citation in one document",
	Long: `Scan extracts every legal citation from a document and verifies each one:
- Check the citation refers to a real authority
- Check the authority is still good law (not overruled or superseded)
- Cross-check case citations against the CourtListener index
- Suggest the controlling authority for bad law
- Optionally probe every evidence link the verdicts cite

Plain text, Markdown and HTML documents are accepted; "-" reads stdin.

Example:
  lexicite scan brief.txt
  lexicite scan brief.html --json report.json --md report.md
  lexicite scan - --mode research --check-links < memo.txt`,
	Args: cobra.ExactArgs(1),
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)

	// Output flags
	scanCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (optional)")
	scanCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	scanCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	scanCmd.Flags().StringVar(&syncURL, "sync-url", "", "POST the finished report JSON to this URL")

	// Verification flags
	scanCmd.Flags().DurationVar(&timeout, "timeout", 10*time.Minute, "overall scan timeout")
	scanCmd.Flags().BoolVar(&checkLinks, "check-links", false, "probe evidence links after verification")
	addVerificationFlags(scanCmd.Flags())
}

// addVerificationFlags registers the flags shared by every analysing command
func addVerificationFlags(fs *pflag.FlagSet) {
	fs.StringVar(&mode, "mode", "", "verification mode: standard or research")
	fs.StringVar(&provider, "provider", "", "reasoner provider (openai, anthropic, ollama)")
	fs.StringVar(&modelName, "model", "", "reasoner model name")
	fs.StringVar(&pattern, "pattern", "", "custom citation pattern (regular expression)")
	fs.BoolVar(&noAuthority, "no-authority", false, "skip CourtListener lookups")
	fs.BoolVar(&noCache, "no-cache", false, "disable verdict cache")
	fs.IntVar(&maxPipelines, "max-pipelines", 0, "maximum citations verified at once")
	fs.StringVar(&httpProxy, "http-proxy", "", "HTTP proxy URL (overrides HTTP_PROXY env var)")
	fs.StringVar(&httpsProxy, "https-proxy", "", "HTTPS proxy URL (overrides HTTPS_PROXY env var)")
}

// commandConfig loads the configuration and applies the flags the user set
func commandConfig(cmd *cobra.Command) (*model.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("mode") {
		cfg.Reasoner.Mode = mode
	}
	if flags.Changed("provider") {
		cfg.Reasoner.Provider = provider
		if err := providerCredentials(cfg); err != nil {
			return nil, err
		}
	}
	if flags.Changed("model") {
		cfg.Reasoner.Model = modelName
	}
	if flags.Changed("pattern") {
		cfg.Extraction.Pattern = pattern
	}
	if noAuthority {
		cfg.Authority.Enabled = false
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if noFooter {
		cfg.Output.IncludeFooter = false
	}
	if maxPipelines > 0 {
		cfg.Concurrency.MaxPipelines = maxPipelines
	}
	if httpProxy != "" {
		cfg.HTTP.HTTPProxy = httpProxy
	}
	if httpsProxy != "" {
		cfg.HTTP.HTTPSProxy = httpsProxy
	}
	if syncURL != "" {
		cfg.Output.SyncURL = syncURL
	}
	cfg.Output.Verbose = verbose
	return cfg, nil
}

// providerCredentials picks up the environment credential of a provider
// chosen on the command line
func providerCredentials(cfg *model.Config) error {
	switch cfg.Reasoner.Provider {
	case "openai":
		cfg.Reasoner.APIKey = os.Getenv("OPENAI_API_KEY")
		if cfg.Reasoner.APIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	case "anthropic", "claude":
		cfg.Reasoner.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		if cfg.Reasoner.APIKey == "" {
			return fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
		}
	case "ollama":
		// Ollama doesn't need an API key
		cfg.Reasoner.APIKey = ""
		if baseURL := os.Getenv("OLLAMA_BASE_URL"); baseURL != "" {
			cfg.Reasoner.BaseURL = baseURL
		}
	}
	return nil
}

func runScan(cmd *cobra.Command, args []string) error {
	source := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if verbose {
		fmt.Fprintf(os.Stderr, "Scanning: %s\n", source)
		fmt.Fprintf(os.Stderr, "Mode: %s\n", a.opts.Mode)
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintf(os.Stderr, "Cache: %v\n", cfg.Cache.Enabled)
		fmt.Fprintln(os.Stderr)
		fmt.Fprintf(os.Stderr, "⚙️  Verifying citations...\n")
	}

	p := a.pipeline(checkLinks, nil)
	if verbose {
		p = p.WithProgress(os.Stderr)
	}

	rep, err := p.AnalyzeDocument(ctx, source)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if verbose {
		fmt.Fprintf(os.Stderr, "✓ Verified %d citations\n", rep.Stats.Total)
		if checkLinks {
			fmt.Fprintf(os.Stderr, "✓ Probed %d evidence links (%d dead)\n", len(rep.LinkChecks), len(rep.DeadLinks()))
		}
		fmt.Fprintln(os.Stderr)
	}

	// Render outputs
	if err := p.RenderReport(rep, outJSON, outMD, verbose); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	if rep.Stats.Issues > 0 {
		return &IssuesError{Count: rep.Stats.Issues}
	}
	return nil
}

// IssuesError reports that a scan flagged citations; main maps it to a
// distinct exit code
type IssuesError struct {
	Count int
}

func (e *IssuesError) Error() string {
	return fmt.Sprintf("%d citation(s) need attention", e.Count)
}
