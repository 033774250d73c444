package engine

import (
	"sync"

	"github.com/jmylchreest/tlint/pkg/lint"
)

// Registry holds the current text of every open document. It is the
// scheduler's snapshot source: the digest it reports is always computed
// from the latest pushed text, which is what makes the stale-result guard
// meaningful.
type Registry struct {
	mu   sync.Mutex
	docs map[string]string
}

// NewRegistry creates an empty document registry.
func NewRegistry() *Registry {
	return &Registry{docs: make(map[string]string)}
}

// Open registers a document with its initial text.
func (r *Registry) Open(path, text string) {
	r.mu.Lock()
	r.docs[path] = text
	r.mu.Unlock()
}

// Update replaces a document's text. Unknown paths are registered; an
// editor may push edits before the open event arrives.
func (r *Registry) Update(path, text string) {
	r.Open(path, text)
}

// Close removes a document.
func (r *Registry) Close(path string) {
	r.mu.Lock()
	delete(r.docs, path)
	r.mu.Unlock()
}

// Snapshot returns the current snapshot of an open document. Implements
// schedule.Source.
func (r *Registry) Snapshot(path string) (*lint.Snapshot, bool) {
	r.mu.Lock()
	text, ok := r.docs[path]
	r.mu.Unlock()
	if !ok {
		return nil, false
	}
	return lint.NewSnapshot(path, text), true
}

// List returns the open document paths.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.docs))
	for path := range r.docs {
		out = append(out, path)
	}
	return out
}
