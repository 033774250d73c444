// Package engine wires the analysis pipeline together: content-addressed
// result caching, rule catalog loading, size-adaptive chunking and
// differential re-analysis.
package engine

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/jmylchreest/tlint/pkg/cache"
	"github.com/jmylchreest/tlint/pkg/chunk"
	"github.com/jmylchreest/tlint/pkg/differ"
	"github.com/jmylchreest/tlint/pkg/lint"
	"github.com/jmylchreest/tlint/pkg/rules"
)

var engineLog = log.New(os.Stderr, "[tlint:engine] ", log.Ltime)

// DefaultResultTTL is how long cached lint results stay valid.
const DefaultResultTTL = 30 * time.Minute

// Config holds engine construction parameters.
type Config struct {
	// Settings is the initial rule toggle surface.
	Settings rules.Settings

	// ResultTTL overrides the result cache TTL. Zero uses the default.
	ResultTTL time.Duration

	// Strategies overrides the processing strategy table. Nil uses
	// chunk.DefaultStrategies.
	Strategies []chunk.Strategy
}

// Engine computes the current finding set for document snapshots. It is
// safe for concurrent use across documents; per-document serialization is
// the scheduler's job.
type Engine struct {
	loader     *rules.Loader
	results    *cache.Cache[[]*lint.Finding]
	differ     *differ.Analyzer
	strategies []chunk.Strategy

	mu       sync.Mutex
	settings rules.Settings
}

// New creates an engine over the given rule loader.
func New(cfg Config, loader *rules.Loader) *Engine {
	ttl := cfg.ResultTTL
	if ttl <= 0 {
		ttl = DefaultResultTTL
	}
	strategies := cfg.Strategies
	if strategies == nil {
		strategies = chunk.DefaultStrategies
	}

	return &Engine{
		loader:     loader,
		results:    cache.New[[]*lint.Finding](ttl, cache.DefaultMaxEntries),
		differ:     differ.New(differ.WithDebugLog(cfg.Settings.EnableDebugLog)),
		strategies: strategies,
		settings:   cfg.Settings,
	}
}

// Analyze returns the complete finding set for the snapshot. Unchanged
// content is served from the result cache without invoking any rule; on a
// miss the text flows through the differential analyzer, which routes full
// passes through the size-adaptive chunked runner. Implements
// schedule.RunFunc.
func (e *Engine) Analyze(ctx context.Context, snap *lint.Snapshot) ([]*lint.Finding, error) {
	if e.results.ValidForDigest(snap.Path, snap.Digest) {
		if findings, ok := e.results.Get(snap.Path); ok {
			return findings, nil
		}
	}

	catalog, err := e.loader.LoadRules(ctx, e.currentSettings())
	if err != nil {
		return nil, err
	}

	analyze := e.ruleAnalyzer(catalog, snap.Path)

	findings, err := e.differ.Analyze(ctx, snap.Path, snap.Text, func(ctx context.Context, text string) ([]*lint.Finding, error) {
		strategy := chunk.SelectFrom(e.strategies, lint.CountLines(text))
		return chunk.Run(ctx, text, analyze, strategy)
	})
	if err != nil {
		return nil, err
	}

	e.results.Set(snap.Path, findings, snap.Digest)
	return findings, nil
}

// ruleAnalyzer applies the catalog's rules in order against one text. A
// rule that fails is logged and skipped; position ties in the output are
// broken deterministically because the catalog order is deterministic.
func (e *Engine) ruleAnalyzer(catalog []rules.Entry, path string) lint.AnalyzeFunc {
	return func(ctx context.Context, text string) ([]*lint.Finding, error) {
		var out []*lint.Finding
		for _, entry := range catalog {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			findings, err := entry.Run(ctx, text, entry.Options)
			if err != nil {
				engineLog.Printf("rule %s failed on %s, skipping: %v", entry.RuleID, path, err)
				continue
			}
			for _, f := range findings {
				g := *f
				if g.ID == "" {
					g.ID = ulid.Make().String()
				}
				if g.RuleID == "" {
					g.RuleID = entry.RuleID
				}
				g.DocumentPath = path
				if g.CreatedAt.IsZero() {
					g.CreatedAt = time.Now()
				}
				out = append(out, &g)
			}
		}
		lint.SortFindings(out)
		return out, nil
	}
}

// UpdateSettings swaps the rule toggle surface. The next analysis uses the
// new catalog; the previous one stays memoized under its own fingerprint.
func (e *Engine) UpdateSettings(settings rules.Settings) {
	e.mu.Lock()
	e.settings = settings
	e.mu.Unlock()
}

func (e *Engine) currentSettings() rules.Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.settings
}

// ForgetDocument drops per-document state (cache entry and differential
// snapshot) when a document closes.
func (e *Engine) ForgetDocument(path string) {
	e.results.Remove(path)
	e.differ.Forget(path)
}

// ClearCaches drops all cached results, differential snapshots and
// memoized rule catalogs.
func (e *Engine) ClearCaches() {
	e.results.Clear()
	e.differ.Clear()
	e.loader.ClearCache()
}

// CacheStats reports the result cache contents.
func (e *Engine) CacheStats() cache.Stats {
	return e.results.Stats()
}
