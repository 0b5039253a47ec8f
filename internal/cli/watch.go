package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/ppiankov/lexicite/internal/logging"
	"github.com/ppiankov/lexicite/internal/orchestrator"
	"github.com/ppiankov/lexicite/internal/pipeline"
	"github.com/ppiankov/lexicite/internal/report"
)

var debounce time.Duration

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <file>",
	Short: "Re-verify a document every time it is saved",
	Long: `Watch keeps a document under live verification. Each save starts a new
analysis once edits pause for the debounce window; an analysis still running
for an older version of the text is cancelled and its results discarded.

Example:
  lexicite watch brief.md
  lexicite watch brief.md --debounce 3s`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before re-analysis (default from config)")
	addVerificationFlags(watchCmd.Flags())
}

func runWatch(cmd *cobra.Command, args []string) error {
	path, err := filepath.Abs(args[0])
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := commandConfig(cmd)
	if err != nil {
		return err
	}
	if debounce > 0 {
		cfg.Live.Debounce = debounce
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

	loader := pipeline.NewLoader(cfg.HTTP)
	doc, err := loader.Load(ctx, path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	sess := orchestrator.NewSession(ctx, a.orch, a.opts, logger)
	defer sess.Close()
	transitions, unsubscribe := sess.Subscribe()
	defer unsubscribe()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Editors often save by replacing the file, which drops a watch on the
	// file itself
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	fmt.Fprintf(os.Stderr, "Watching %s (debounce %v, Ctrl-C to stop)\n\n", path, cfg.Live.Debounce)

	last := doc.Text
	b, err := sess.Start(ctx, last, a.opts)
	if err != nil {
		return fmt.Errorf("start analysis: %w", err)
	}
	if b.NoCitations() {
		fmt.Fprintf(os.Stderr, "No citations found yet.\n\n")
	}

	w := &liveWatcher{session: sess, loader: loader, path: path, last: last, logger: logger}
	return w.loop(ctx, watcher, transitions)
}

type liveWatcher struct {
	session *orchestrator.Session
	loader  *pipeline.Loader
	path    string
	last    string
	logger  *logging.Logger
}

func (w *liveWatcher) loop(ctx context.Context, watcher *fsnotify.Watcher, transitions <-chan orchestrator.Transition) error {
	for {
		select {
		case <-ctx.Done():
			fmt.Fprintf(os.Stderr, "\nStopped.\n")
			return nil

		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ctx, ev)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err.Error())

		case t, ok := <-transitions:
			if !ok {
				return nil
			}
			w.report(t)
		}
	}
}

func (w *liveWatcher) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.path || !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
		return
	}

	doc, err := w.loader.Load(ctx, w.path)
	if err != nil {
		// Mid-save reads can fail; the next event retries
		w.logger.Debug("reload failed", "path", w.path, "error", err.Error())
		return
	}
	if doc.Text == w.last {
		return
	}
	w.last = doc.Text
	w.session.Edit(doc.Text)
}

func (w *liveWatcher) report(t orchestrator.Transition) {
	if !t.Record.Status.IsTerminal() {
		return
	}
	fmt.Fprintf(os.Stderr, "  %-8s %s", t.Record.Status, t.Record.Span.Text)
	if t.Record.Replacement != nil && t.Record.Replacement.Citation != "" {
		fmt.Fprintf(os.Stderr, "  → %s", t.Record.Replacement.Citation)
	}
	fmt.Fprintln(os.Stderr)

	stats := report.ComputeStats(w.session.Records())
	if stats.Pending == 0 {
		fmt.Fprintf(os.Stderr, "✓ %d citations, %d valid, %d issues\n\n", stats.Total, stats.Valid, stats.Issues)
	}
}
