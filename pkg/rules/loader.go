package rules

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jmylchreest/tlint/pkg/cache"
)

// DefaultCatalogTTL is how long a memoized catalog is kept before the next
// LoadRules call reloads it from sources.
const DefaultCatalogTTL = time.Hour

// Loader builds the ordered rule catalog for a Settings value and memoizes
// it by settings fingerprint. One Loader instance is constructed at plugin
// init and injected wherever rules are needed; there is no package-level
// singleton.
type Loader struct {
	sources []Source
	memo    *cache.Cache[[]Entry]
	group   singleflight.Group
}

// NewLoader creates a loader over the given sources. Registration order is
// load order: the catalog lists each source's rules in the same relative
// position on every call, so identical settings yield byte-identical
// ordering. The downstream analyzer is ordering-sensitive in its tie-break
// for overlapping findings, so this determinism is load-bearing.
func NewLoader(sources ...Source) *Loader {
	return &Loader{
		sources: sources,
		memo:    cache.New[[]Entry](DefaultCatalogTTL, cache.DefaultMaxEntries),
	}
}

// LoadRules returns the catalog for settings. On a fingerprint hit the
// memoized list is returned without touching any source; concurrent misses
// for the same fingerprint are collapsed into a single load. The returned
// slice is shared: consumers must not mutate it.
func (l *Loader) LoadRules(ctx context.Context, settings Settings) ([]Entry, error) {
	fp := settings.Fingerprint()

	if entries, ok := l.memo.Get(fp); ok {
		return entries, nil
	}

	v, err, _ := l.group.Do(fp, func() (any, error) {
		// Re-check under the flight: a racing load may have just
		// populated the memo.
		if entries, ok := l.memo.Get(fp); ok {
			return entries, nil
		}
		entries := l.load(ctx, settings)
		l.memo.Set(fp, entries, fp)
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Entry), nil
}

// ClearCache drops every memoized catalog, forcing the next LoadRules call
// to reload all sources.
func (l *Loader) ClearCache() {
	l.memo.Clear()
}

// load fetches all enabled sources in parallel and assembles the catalog
// in registration order. A source that fails is logged and excluded; it
// never aborts the batch.
func (l *Loader) load(ctx context.Context, settings Settings) []Entry {
	modules := make([]any, len(l.sources))

	var wg sync.WaitGroup
	for i, src := range l.sources {
		if !settings.SourceEnabled(src.Name()) {
			continue
		}
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			module, err := src.Load(ctx)
			if err != nil {
				rulesLog.Printf("source %s failed to load, excluding: %v", src.Name(), err)
				return
			}
			modules[i] = module
		}(i, src)
	}
	wg.Wait()

	var entries []Entry
	for i, src := range l.sources {
		if modules[i] == nil {
			continue
		}
		entries = append(entries, extract(src.Name(), modules[i], settings)...)
	}
	return entries
}
