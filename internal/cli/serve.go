package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/ppiankov/lexicite/internal/server"
)

var listenAddr string

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the batch API over HTTP",
	Long: `Serve exposes citation verification to editors and other presentation
layers over HTTP:

  POST   /v1/batches                              start (or supersede) a batch
  GET    /v1/batches/:id                          records and stats
  DELETE /v1/batches/:id                          cancel
  GET    /v1/batches/:id/events                   transitions as Server-Sent Events
  POST   /v1/batches/:id/citations/:cid/replace   apply a suggested replacement
  POST   /v1/segments                             split text into display runs
  GET    /healthz, /metrics

Example:
  lexicite serve --addr :8086`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&listenAddr, "addr", "", "listen address (default from config)")
	addVerificationFlags(serveCmd.Flags())
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	if listenAddr != "" {
		cfg.Server.Addr = listenAddr
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

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	srv := server.New(a.orch, a.opts, a.metrics, logger)
	fmt.Fprintf(os.Stderr, "lexicite %s serving on %s\n", Version, cfg.Server.Addr)
	if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
