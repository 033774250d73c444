// Package differ limits re-analysis to the edited neighborhood of a
// document by diffing the previous analyzed snapshot against the new text
// and re-running the analyzer only over the changed line regions.
//
// The carried-over findings keep their original line numbers, which
// assumes lines outside the changed regions did not shift. That holds for
// in-place edits but not for every insertion/deletion pattern across
// multi-region diffs; the majority-change fallback keeps the window where
// this approximation can misplace a finding small. This is a documented
// trade-off, not a line-tracking guarantee.
package differ

import (
	"context"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/jmylchreest/tlint/pkg/lint"
)

var diffLog = log.New(os.Stderr, "[tlint:differ] ", log.Ltime)

const (
	// DefaultContextMargin is the padding, in lines, added around each
	// differing line when forming changed regions.
	DefaultContextMargin = 5

	// MajorityChangeRatio is the changed/total threshold beyond which a
	// full re-analysis is cheaper and safer than region extraction.
	MajorityChangeRatio = 0.5
)

type snapshot struct {
	lines    []string
	findings []*lint.Finding
}

// Analyzer performs differential analysis per document. Safe for
// concurrent use across documents; calls for the same document are
// expected to be serialized by the scheduler.
type Analyzer struct {
	margin int
	debug  bool

	mu    sync.Mutex
	state map[string]*snapshot
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithContextMargin overrides the region context padding.
func WithContextMargin(lines int) Option {
	return func(a *Analyzer) {
		if lines >= 0 {
			a.margin = lines
		}
	}
}

// WithDebugLog enables unified-diff logging of each differential pass.
func WithDebugLog(enabled bool) Option {
	return func(a *Analyzer) {
		a.debug = enabled
	}
}

// New creates a differential analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		margin: DefaultContextMargin,
		state:  make(map[string]*snapshot),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze produces the full finding set for newText. With no prior
// snapshot for docID the analyze call sees the whole text. With one, only
// the changed regions are re-analyzed and merged with carried-over
// findings, unless nothing changed (cached findings returned, analyzer
// not invoked) or a majority of lines changed (full re-analysis).
//
// The stored snapshot always tracks the most recent text processed.
func (a *Analyzer) Analyze(ctx context.Context, docID, newText string, analyze lint.AnalyzeFunc) ([]*lint.Finding, error) {
	a.mu.Lock()
	prev := a.state[docID]
	a.mu.Unlock()

	newLines := lint.SplitLines(newText)

	if prev == nil {
		return a.full(ctx, docID, newText, newLines, analyze)
	}

	regions := changedRegions(prev.lines, newLines, a.margin)
	if len(regions) == 0 {
		return prev.findings, nil
	}

	changed := countChangedLines(prev.lines, newLines)
	total := len(newLines)
	if total == 0 || float64(changed)/float64(total) > MajorityChangeRatio {
		return a.full(ctx, docID, newText, newLines, analyze)
	}

	if a.debug {
		a.logRegions(docID, prev.lines, newLines, regions)
	}

	fresh, err := a.analyzeRegions(ctx, newLines, regions, analyze)
	if err != nil {
		return nil, err
	}

	// Old findings inside any changed region are superseded; the rest
	// carry over with their line numbers untouched. A truncated tail
	// clamps regions to the new bounds, so findings past the end of the
	// new text escape the region check and must be dropped explicitly.
	merged := make([]*lint.Finding, 0, len(prev.findings)+len(fresh))
	for _, f := range prev.findings {
		if f.Line > len(newLines) {
			continue
		}
		if inAnyRegion(regions, f.Line-1) {
			continue
		}
		merged = append(merged, f)
	}
	merged = append(merged, fresh...)
	lint.SortFindings(merged)

	a.store(docID, newLines, merged)
	return merged, nil
}

// Forget drops the stored snapshot for a document (close or cache clear).
func (a *Analyzer) Forget(docID string) {
	a.mu.Lock()
	delete(a.state, docID)
	a.mu.Unlock()
}

// Clear drops every stored snapshot.
func (a *Analyzer) Clear() {
	a.mu.Lock()
	a.state = make(map[string]*snapshot)
	a.mu.Unlock()
}

func (a *Analyzer) full(ctx context.Context, docID, text string, lines []string, analyze lint.AnalyzeFunc) ([]*lint.Finding, error) {
	findings, err := analyze(ctx, text)
	if err != nil {
		return nil, err
	}
	lint.SortFindings(findings)
	a.store(docID, lines, findings)
	return findings, nil
}

// analyzeRegions runs the analyzer over the concatenated region text and
// remaps returned finding lines from extracted positions back to document
// positions using the originating region's offset.
func (a *Analyzer) analyzeRegions(ctx context.Context, newLines []string, regions []Region, analyze lint.AnalyzeFunc) ([]*lint.Finding, error) {
	var parts []string
	for _, r := range regions {
		parts = append(parts, strings.Join(newLines[r.StartLine:r.EndLine+1], "\n"))
	}
	extracted := strings.Join(parts, "\n")

	findings, err := analyze(ctx, extracted)
	if err != nil {
		return nil, err
	}

	var remapped []*lint.Finding
	for _, f := range findings {
		region, offset, ok := locateRegion(regions, f.Line)
		if !ok {
			continue
		}
		g := *f
		span := g.EndLine - g.Line
		g.Line = region.StartLine + offset + 1
		if span > 0 {
			g.EndLine = g.Line + span
		} else {
			g.EndLine = 0
		}
		remapped = append(remapped, &g)
	}
	return remapped, nil
}

// locateRegion maps a 1-based line within the extracted text to its source
// region and the 0-based offset inside it.
func locateRegion(regions []Region, extractedLine int) (Region, int, bool) {
	cursor := 0
	for _, r := range regions {
		if extractedLine <= cursor+r.Lines() {
			return r, extractedLine - cursor - 1, true
		}
		cursor += r.Lines()
	}
	return Region{}, 0, false
}

func (a *Analyzer) store(docID string, lines []string, findings []*lint.Finding) {
	a.mu.Lock()
	a.state[docID] = &snapshot{lines: lines, findings: findings}
	a.mu.Unlock()
}

func (a *Analyzer) logRegions(docID string, oldLines, newLines []string, regions []Region) {
	diffLog.Printf("%s: %d changed region(s)", docID, len(regions))
	for _, r := range regions {
		diff := difflib.UnifiedDiff{
			A:        sliceRegion(oldLines, r),
			B:        sliceRegion(newLines, r),
			FromFile: docID + " (cached)",
			ToFile:   docID,
			Context:  2,
		}
		if s, err := difflib.GetUnifiedDiffString(diff); err == nil && s != "" {
			diffLog.Printf("lines %d-%d:\n%s", r.StartLine+1, r.EndLine+1, s)
		}
	}
}

func sliceRegion(lines []string, r Region) []string {
	start := r.StartLine
	end := r.EndLine + 1
	if start > len(lines) {
		start = len(lines)
	}
	if end > len(lines) {
		end = len(lines)
	}
	out := make([]string, 0, end-start)
	for _, l := range lines[start:end] {
		out = append(out, l+"\n")
	}
	return out
}
