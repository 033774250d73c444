package chunk

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/jmylchreest/tlint/pkg/lint"
)

var chunkLog = log.New(os.Stderr, "[tlint:chunk] ", log.Ltime)

// SmallDocThreshold is the line count below which chunking is bypassed
// regardless of the selected strategy's chunk size.
const SmallDocThreshold = 500

// Run analyzes text under the given strategy. Small documents (or
// strategies without a chunk size) get a single analyze call bounded by
// the strategy timeout. Larger documents are split into contiguous
// line-range chunks analyzed sequentially, each under an even share of the
// strategy timeout; a chunk that times out or fails is skipped and its
// findings omitted. Chunk findings are re-based onto document line numbers
// and returned sorted by line.
//
// Timeouts cancel the chunk's context. An analyze implementation that
// ignores cancellation can overrun its own slice, but never delays the
// decision to move on: the wait itself is bounded.
func Run(ctx context.Context, text string, analyze lint.AnalyzeFunc, strategy Strategy) ([]*lint.Finding, error) {
	lineCount := lint.CountLines(text)

	if strategy.ChunkLines <= 0 || lineCount < SmallDocThreshold {
		return runBounded(ctx, text, analyze, strategy)
	}

	lines := lint.SplitLines(text)
	chunkCount := (len(lines) + strategy.ChunkLines - 1) / strategy.ChunkLines
	perChunk := strategy.Timeout / time.Duration(chunkCount)

	var merged []*lint.Finding
	for i := 0; i < chunkCount; i++ {
		start := i * strategy.ChunkLines
		end := start + strategy.ChunkLines
		if end > len(lines) {
			end = len(lines)
		}

		chunkText := strings.Join(lines[start:end], "\n")
		findings, err := analyzeWithTimeout(ctx, chunkText, analyze, perChunk)
		if err != nil {
			if ctx.Err() != nil {
				// The caller went away; stop, do not just skip.
				return nil, ctx.Err()
			}
			chunkLog.Printf("chunk %d/%d (lines %d-%d) skipped: %v", i+1, chunkCount, start+1, end, err)
			continue
		}

		for _, f := range findings {
			g := *f
			g.Line += start
			if g.EndLine > 0 {
				g.EndLine += start
			}
			merged = append(merged, &g)
		}
	}

	lint.SortFindings(merged)
	return merged, nil
}

func runBounded(ctx context.Context, text string, analyze lint.AnalyzeFunc, strategy Strategy) ([]*lint.Finding, error) {
	findings, err := analyzeWithTimeout(ctx, text, analyze, strategy.Timeout)
	if err != nil {
		return nil, err
	}
	lint.SortFindings(findings)
	return findings, nil
}

// analyzeWithTimeout runs one analyze call under a deadline. Cancellation
// is real, not a race against a timer: the analyze call receives a context
// that is cancelled when the slice elapses. The wait still returns as soon
// as the deadline fires even if the call keeps running, so a
// non-cooperative analyzer cannot stall the chunk loop.
func analyzeWithTimeout(ctx context.Context, text string, analyze lint.AnalyzeFunc, timeout time.Duration) ([]*lint.Finding, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		findings []*lint.Finding
		err      error
	}
	done := make(chan result, 1)

	go func() {
		findings, err := analyze(callCtx, text)
		done <- result{findings, err}
	}()

	select {
	case r := <-done:
		return r.findings, r.err
	case <-callCtx.Done():
		return nil, callCtx.Err()
	}
}
