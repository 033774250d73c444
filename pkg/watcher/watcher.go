// Package watcher turns filesystem changes into document events. It
// forwards each relevant change immediately; coalescing rapid edits is
// the scheduler's job, so there is deliberately no second debounce here.
package watcher

import (
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

var watchLog = log.New(os.Stderr, "[tlint:watcher] ", log.Ltime)

// DefaultExtensions lists the document types watched by default.
var DefaultExtensions = map[string]bool{
	".md":       true,
	".markdown": true,
	".txt":      true,
	".rst":      true,
	".adoc":     true,
	".tex":      true,
}

// DefaultSkipDirs contains directories never descended into.
var DefaultSkipDirs = map[string]bool{
	".git":         true,
	".svn":         true,
	".hg":          true,
	".tlint":       true,
	"node_modules": true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
	"_build":       true,
	".idea":        true,
	".vscode":      true,
	".cache":       true,
	".DS_Store":    true,
}

type Config struct {
	Paths       []string
	SkipDirs    []string
	Extensions  []string // Extra extensions beyond the defaults, e.g. ".org"
	IgnoreGlobs []string // doublestar patterns, matched against the path relative to each root
}

// EventHandler receives one call per relevant filesystem change.
type EventHandler interface {
	OnChange(path string, op fsnotify.Op)
}

type EventHandlerFunc func(path string, op fsnotify.Op)

func (f EventHandlerFunc) OnChange(path string, op fsnotify.Op) {
	f(path, op)
}

type Watcher struct {
	fsw      *fsnotify.Watcher
	skipDirs map[string]bool
	exts     map[string]bool
	ignores  []string
	handlers []EventHandler
	started  time.Time
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	mu    sync.Mutex
	roots []string
	dirs  int
}

func New(config Config, handlers ...EventHandler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		fsw:      fsw,
		skipDirs: map[string]bool{},
		exts:     map[string]bool{},
		ignores:  config.IgnoreGlobs,
		handlers: handlers,
		roots:    config.Paths,
		done:     make(chan struct{}),
	}
	for name := range DefaultSkipDirs {
		w.skipDirs[name] = true
	}
	for _, name := range config.SkipDirs {
		w.skipDirs[name] = true
	}
	for ext := range DefaultExtensions {
		w.exts[ext] = true
	}
	for _, ext := range config.Extensions {
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.exts[strings.ToLower(ext)] = true
	}
	return w, nil
}

func (w *Watcher) AddHandler(h EventHandler) {
	w.handlers = append(w.handlers, h)
}

// Start registers every directory under the configured roots and begins
// forwarding events. With no roots configured it watches the current
// directory.
func (w *Watcher) Start() error {
	if len(w.roots) == 0 {
		cwd, err := os.Getwd()
		if err != nil {
			return err
		}
		w.roots = []string{cwd}
	}

	for _, root := range w.roots {
		if err := w.watchTree(root); err != nil {
			return err
		}
	}

	w.started = time.Now()
	w.wg.Add(1)
	go w.run()

	watchLog.Printf("watching %d directories in %v", w.dirs, w.roots)
	return nil
}

// watchTree adds root and every non-skipped subdirectory to fsnotify.
func (w *Watcher) watchTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return nil
		}
		if w.skipDir(d.Name()) && path != root {
			return filepath.SkipDir
		}
		if err := w.fsw.Add(path); err == nil {
			w.dirs++
		}
		return nil
	})
}

func (w *Watcher) skipDir(name string) bool {
	return w.skipDirs[name] || (len(name) > 1 && name[0] == '.')
}

func (w *Watcher) Stop() error {
	w.stopOnce.Do(func() { close(w.done) })
	w.wg.Wait()
	return w.fsw.Close()
}

type Stats struct {
	Enabled     bool
	Paths       []string
	DirsWatched int
	Uptime      time.Duration
}

func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Stats{
		Enabled:     true,
		Paths:       w.roots,
		DirsWatched: w.dirs,
		Uptime:      time.Since(w.started),
	}
}

func (w *Watcher) run() {
	defer w.wg.Done()
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(ev)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			watchLog.Printf("error: %v", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if ev.Op&fsnotify.Create != 0 && w.trackNewDir(ev.Name) {
		return
	}
	if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}
	if !w.relevant(ev.Name) {
		return
	}
	for _, h := range w.handlers {
		h.OnChange(ev.Name, ev.Op)
	}
}

// trackNewDir starts watching a freshly created directory. Returns true
// when the created path was a directory, watched or not.
func (w *Watcher) trackNewDir(path string) bool {
	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		return false
	}
	if w.skipDir(filepath.Base(path)) {
		return true
	}
	if err := w.fsw.Add(path); err == nil {
		w.mu.Lock()
		w.dirs++
		w.mu.Unlock()
		watchLog.Printf("watching new directory: %s", path)
	}
	return true
}

// relevant reports whether a changed path should reach the handlers:
// watched extension, not an editor temp file, not ignore-glob matched.
func (w *Watcher) relevant(path string) bool {
	name := filepath.Base(path)
	switch {
	case strings.HasPrefix(name, "."),
		strings.HasSuffix(name, "~"),
		strings.HasSuffix(name, ".swp"),
		strings.HasSuffix(name, ".tmp"):
		return false
	}
	if !w.exts[strings.ToLower(filepath.Ext(name))] {
		return false
	}
	if len(w.ignores) == 0 {
		return true
	}

	rel := path
	for _, root := range w.roots {
		if r, err := filepath.Rel(root, path); err == nil && !strings.HasPrefix(r, "..") {
			rel = r
			break
		}
	}
	rel = filepath.ToSlash(rel)
	for _, pattern := range w.ignores {
		if ok, err := doublestar.Match(pattern, rel); err == nil && ok {
			return false
		}
	}
	return true
}

// IsRemove reports whether the op indicates the file is gone.
func IsRemove(op fsnotify.Op) bool {
	return op&(fsnotify.Remove|fsnotify.Rename) != 0
}
