package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ppiankov/lexicite/internal/logging"
	"github.com/ppiankov/lexicite/internal/model"
)

// Version is set at build time with -ldflags "-X .../internal/cli.Version=..."
var Version = "v0.1.0"

var (
	cfgFile   string
	verbose   bool
	logLevel  string
	logFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "lexicite",
	Short: "lexicite - legal citation extraction and verification",
	Long: `lexicite finds legal citations in a document and checks each one:
does the cited authority exist, and is it still good law?

Every citation is verified independently by an AI reasoner and, for case
citations, cross-checked against a case-law index. Fabricated citations
and overruled or superseded precedents are flagged, with a replacement
suggested where one is known.

Verdicts are produced by automated systems and may be wrong. Always read
the authority before relying on it.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Display the version number of lexicite.`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("lexicite %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.lexicite/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: console or json (overrides config)")

	// Bind flags to viper
	_ = viper.BindPFlag("output.verbose", rootCmd.PersistentFlags().Lookup("verbose"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	// Every known key gets a default so LEXICITE_* variables reach nested
	// sections during Unmarshal
	if err := setDefaults(model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading defaults: %v\n", err)
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}

		// Search for config in home directory
		viper.AddConfigPath(filepath.Join(home, ".lexicite"))
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match LEXICITE_*, with "." in
	// nested keys written as "_" (LEXICITE_REASONER_MODEL)
	viper.SetEnvPrefix("LEXICITE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	for _, key := range secretKeys {
		_ = viper.BindEnv(key)
	}

	// If a config file is found, read it in
	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// secretKeys are omitted from marshalled defaults, so they need an explicit
// environment binding
var secretKeys = []string{
	"reasoner.api_key",
	"reasoner.base_url",
	"authority.token",
	"cache.redis_addr",
	"http.http_proxy",
	"http.https_proxy",
	"http.no_proxy",
	"output.sync_url",
}

func setDefaults(cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal defaults: %w", err)
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("unmarshal defaults: %w", err)
	}
	for key, value := range flatten("", tree) {
		viper.SetDefault(key, value)
	}
	return nil
}

func flatten(prefix string, tree map[string]any) map[string]any {
	out := make(map[string]any)
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok && len(sub) > 0 {
			for sk, sv := range flatten(key, sub) {
				out[sk] = sv
			}
			continue
		}
		out[key] = v
	}
	return out
}

// loadConfig resolves defaults, config file and environment into a Config.
// Provider credentials fall back to their conventional variables.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.Reasoner.APIKey == "" {
		switch strings.ToLower(cfg.Reasoner.Provider) {
		case "openai":
			cfg.Reasoner.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic", "claude":
			cfg.Reasoner.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
	if cfg.Reasoner.BaseURL == "" && strings.EqualFold(cfg.Reasoner.Provider, "ollama") {
		cfg.Reasoner.BaseURL = os.Getenv("OLLAMA_BASE_URL")
	}
	if cfg.Authority.Token == "" {
		cfg.Authority.Token = os.Getenv("COURTLISTENER_TOKEN")
	}
	return cfg, nil
}

func newLogger(cfg *model.Config) (*logging.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("configure logging: %w", err)
	}
	return logger, nil
}
