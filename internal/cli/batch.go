package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/lexicite/internal/pipeline"
	"github.com/ppiankov/lexicite/internal/worker"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Verify the citations of many documents in parallel",
	Long: `Batch verifies several documents concurrently:
- Read document sources from a list file (one path or URL per line)
- Analyse documents in parallel with a configurable document count
- Each document still verifies its citations under the pipeline ceiling
- Write a JSON and a Markdown report per document

Example:
  lexicite batch briefs.txt
  lexicite batch briefs.txt --concurrency 4 --output-dir ./reports
  lexicite batch briefs.txt --check-links --timeout 30m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "documents analysed at once (default from config)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./lexicite-reports", "output directory for reports")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 30*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().BoolVar(&checkLinks, "check-links", false, "probe evidence links after verification")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
	batchCmd.Flags().StringVar(&syncURL, "sync-url", "", "POST each finished report JSON to this URL")
	addVerificationFlags(batchCmd.Flags())
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(cmd.Context(), batchTimeout)
	defer cancel()

	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	if concurrency > 0 {
		cfg.Concurrency.Documents = concurrency
	}
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  lexicite Batch Verification\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Documents:    %d at once\n", cfg.Concurrency.Documents)
	fmt.Fprintf(os.Stderr, "  Pipelines:    %d per document\n", cfg.Concurrency.MaxPipelines)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	// Create output directory
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	p := a.pipeline(checkLinks, nil)
	processor := worker.NewDocumentProcessor(p, cfg.Concurrency.Documents)

	fmt.Fprintf(os.Stderr, "⚙️  Verifying documents...\n\n")
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	successCount := 0
	failureCount := 0
	issueCount := 0

	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Source, result.Error)
			continue
		}

		rep := result.Report
		jsonPath, mdPath := pipeline.OutputPaths(outputDir, fmt.Sprintf("%03d-%s", result.Index+1, rep.Title))
		if err := p.RenderReport(rep, jsonPath, mdPath, verbose); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: render: %v\n", result.Source, err)
			continue
		}

		successCount++
		issueCount += rep.Stats.Issues
		fmt.Fprintf(os.Stderr, "✓ %s: %d citations, %d issues\n", result.Source, rep.Stats.Total, rep.Stats.Issues)
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Summary\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Documents:    %d\n", len(results))
	fmt.Fprintf(os.Stderr, "  Succeeded:    %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failed:       %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Issues:       %d\n", issueCount)
	fmt.Fprintf(os.Stderr, "\n")

	if failureCount > 0 {
		return fmt.Errorf("%d of %d documents failed", failureCount, len(results))
	}
	if issueCount > 0 {
		return &IssuesError{Count: issueCount}
	}
	return nil
}
