package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/lexicite/internal/report"
)

// Analyzer verifies every citation in one document
type Analyzer interface {
	AnalyzeDocument(ctx context.Context, source string) (*report.Report, error)
}

// DocumentJob analyses one document source (path, URL or "-")
type DocumentJob struct {
	Index    int
	Source   string
	Analyzer Analyzer
}

// Execute executes the document job
func (j *DocumentJob) Execute(ctx context.Context) Result {
	rep, err := j.Analyzer.AnalyzeDocument(ctx, j.Source)
	return &DocumentResult{
		Index:  j.Index,
		Source: j.Source,
		Report: rep,
		Error:  err,
	}
}

// DocumentResult represents the result of a document job
type DocumentResult struct {
	Index  int
	Source string
	Report *report.Report
	Error  error
}

// GetError returns the error from the document result
func (r *DocumentResult) GetError() error {
	return r.Error
}

// DocumentProcessor analyses several documents concurrently. Each document
// still runs its own bounded set of citation pipelines.
type DocumentProcessor struct {
	analyzer    Analyzer
	concurrency int
}

// NewDocumentProcessor creates a new document processor
func NewDocumentProcessor(analyzer Analyzer, concurrency int) *DocumentProcessor {
	return &DocumentProcessor{
		analyzer:    analyzer,
		concurrency: concurrency,
	}
}

// ProcessSources analyses sources concurrently and returns one result per
// source, in input order. Sources never started because ctx ended carry
// ctx's error.
func (b *DocumentProcessor) ProcessSources(ctx context.Context, sources []string) []*DocumentResult {
	if len(sources) == 0 {
		return []*DocumentResult{}
	}

	pool := NewPool(ctx, b.concurrency, len(sources))
	pool.Start()

	for i, source := range sources {
		pool.Submit(&DocumentJob{
			Index:    i,
			Source:   source,
			Analyzer: b.analyzer,
		})
	}

	results := make([]*DocumentResult, len(sources))
	for _, r := range pool.Wait() {
		dr := r.(*DocumentResult)
		results[dr.Index] = dr
	}

	for i, r := range results {
		if r == nil {
			err := ctx.Err()
			if err == nil {
				err = context.Canceled
			}
			results[i] = &DocumentResult{Index: i, Source: sources[i], Error: err}
		}
	}

	return results
}

// ProcessFile reads sources from a list file and processes them concurrently
func (b *DocumentProcessor) ProcessFile(ctx context.Context, filePath string) ([]*DocumentResult, error) {
	sources, err := ReadSourcesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}

	return b.ProcessSources(ctx, sources), nil
}

// ReadSourcesFromFile reads document sources from a file (one per line).
// Blank lines and # comments are skipped; duplicates are dropped.
func ReadSourcesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var sources []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			sources = append(sources, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return sources, nil
}
