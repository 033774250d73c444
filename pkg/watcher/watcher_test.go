package watcher

import (
	"testing"

	"github.com/fsnotify/fsnotify"
)

func newTestWatcher(t *testing.T, cfg Config) *Watcher {
	t.Helper()
	w, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { w.Stop() })
	return w
}

func TestRelevant_Extensions(t *testing.T) {
	w := newTestWatcher(t, Config{})
	w.roots = []string{"/project"}

	cases := []struct {
		path string
		want bool
	}{
		{"/project/README.md", true},
		{"/project/notes.TXT", true},
		{"/project/doc.rst", true},
		{"/project/main.go", false},
		{"/project/.hidden.md", false},
		{"/project/draft.md~", false},
		{"/project/.draft.md.swp", false},
		{"/project/upload.tmp", false},
	}
	for _, tc := range cases {
		if got := w.relevant(tc.path); got != tc.want {
			t.Errorf("relevant(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestRelevant_ExtraExtensions(t *testing.T) {
	w := newTestWatcher(t, Config{Extensions: []string{"org"}})
	w.roots = []string{"/project"}

	if !w.relevant("/project/todo.org") {
		t.Errorf("expected .org to be watched after config")
	}
}

func TestRelevant_IgnoreGlobs(t *testing.T) {
	w := newTestWatcher(t, Config{IgnoreGlobs: []string{"drafts/**", "**/*.gen.md"}})
	w.roots = []string{"/project"}

	if w.relevant("/project/drafts/idea.md") {
		t.Errorf("expected drafts/** to be ignored")
	}
	if w.relevant("/project/docs/api.gen.md") {
		t.Errorf("expected *.gen.md to be ignored")
	}
	if !w.relevant("/project/docs/api.md") {
		t.Errorf("expected docs/api.md to be watched")
	}
}

func TestIsRemove(t *testing.T) {
	if !IsRemove(fsnotify.Remove) {
		t.Errorf("Remove should count as removal")
	}
	if !IsRemove(fsnotify.Rename) {
		t.Errorf("Rename should count as removal")
	}
	if IsRemove(fsnotify.Write) {
		t.Errorf("Write should not count as removal")
	}
}
