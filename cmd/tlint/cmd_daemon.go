package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/jmylchreest/tlint/pkg/config"
	"github.com/jmylchreest/tlint/pkg/engine"
	"github.com/jmylchreest/tlint/pkg/ignorefile"
	"github.com/jmylchreest/tlint/pkg/lint"
	"github.com/jmylchreest/tlint/pkg/rules"
	"github.com/jmylchreest/tlint/pkg/rules/preset"
	"github.com/jmylchreest/tlint/pkg/schedule"
	"github.com/jmylchreest/tlint/pkg/server"
	"github.com/jmylchreest/tlint/pkg/store"
	"github.com/jmylchreest/tlint/pkg/watcher"
)

var daemonLog = log.New(os.Stderr, "[tlint:daemon] ", log.Ltime)

// daemonSink publishes completed analysis cycles: the findings store gets
// the full replacement set, and connected editors get a decoration
// broadcast.
type daemonSink struct {
	findings *store.FindingsStore
	hub      *server.Hub
}

func (s *daemonSink) Publish(snap *lint.Snapshot, findings []*lint.Finding) {
	if err := s.findings.ReplaceFindingsForDocument(snap.Path, findings); err != nil {
		daemonLog.Printf("store publish failed for %s: %v", snap.Path, err)
	}
	s.hub.Broadcast(server.Decoration{
		Path:     snap.Path,
		Digest:   snap.Digest,
		Findings: findings,
	})
}

func (s *daemonSink) AnalysisFailed(docID string, err error) {
	// Prior findings stay on display; nothing to broadcast.
	daemonLog.Printf("analysis failed for %s: %v", docID, err)
}

// cmdDaemon starts the HTTP daemon.
func cmdDaemon(root string, cfg config.Config, args []string) error {
	addr := cfg.Addr
	if v := parseFlag(args, "--addr="); v != "" {
		addr = v
	}
	watch := cfg.Watch || hasFlag(args, "--watch")

	fs, err := store.NewFindingsStore(cfg.ResolveDataDir(root))
	if err != nil {
		return fmt.Errorf("failed to open findings store: %w", err)
	}
	defer fs.Close()

	reg := engine.NewRegistry()
	loader := rules.NewLoader(preset.Sources()...)
	eng := engine.New(engine.Config{Settings: cfg.Rules}, loader)
	hub := server.NewHub()
	sink := &daemonSink{findings: fs, hub: hub}

	sched := schedule.New(schedule.Config{
		Debounce: time.Duration(cfg.DebounceMs) * time.Millisecond,
		Throttle: time.Duration(cfg.ThrottleMs) * time.Millisecond,
	}, reg, eng.Analyze, sink)

	var fsWatcher *watcher.Watcher
	if watch {
		paths := cfg.WatchPaths
		if len(paths) == 0 {
			paths = []string{root}
		}
		ignore, err := ignorefile.Load(root)
		if err != nil {
			return fmt.Errorf("read %s: %w", ignorefile.FileName, err)
		}
		fsWatcher, err = watcher.New(watcher.Config{
			Paths:       paths,
			Extensions:  cfg.Extensions,
			IgnoreGlobs: append(cfg.Ignore, ignore.Patterns()...),
		}, watcher.EventHandlerFunc(func(path string, op fsnotify.Op) {
			handleDiskChange(root, reg, sched, eng, fs, path, op)
		}))
		if err != nil {
			return fmt.Errorf("failed to create watcher: %w", err)
		}
		if err := fsWatcher.Start(); err != nil {
			return fmt.Errorf("failed to start watcher: %w", err)
		}
		defer fsWatcher.Stop()
	}

	srv := server.NewServer(reg, eng, sched, fs, hub, addr)

	// Handle shutdown signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() { errChan <- srv.Start() }()

	daemonLog.Printf("daemon starting on %s (project root: %s)", addr, root)

	select {
	case sig := <-sigChan:
		daemonLog.Printf("received %v, shutting down", sig)
	case err := <-errChan:
		if err != nil {
			sched.Stop()
			hub.Close()
			return err
		}
	}

	sched.Stop()
	hub.Close()
	return nil
}

// handleDiskChange feeds watcher events into the pipeline. A disk write is
// treated as a save: the new content supersedes whatever the registry
// holds, and analysis runs without debounce.
func handleDiskChange(root string, reg *engine.Registry, sched *schedule.Scheduler, eng *engine.Engine, fs *store.FindingsStore, path string, op fsnotify.Op) {
	display := path
	if rel, err := filepath.Rel(root, path); err == nil {
		display = rel
	}

	if watcher.IsRemove(op) {
		sched.CloseDocument(display)
		reg.Close(display)
		eng.ForgetDocument(display)
		if _, err := fs.ClearDocument(display); err != nil {
			daemonLog.Printf("failed to clear findings for %s: %v", display, err)
		}
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		daemonLog.Printf("failed to read %s: %v", path, err)
		return
	}
	reg.Update(display, string(data))
	sched.Trigger(display, schedule.TriggerSave)
}
