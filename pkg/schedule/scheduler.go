// Package schedule drives analysis from editor events. It debounces edit
// bursts, throttles forced runs, keeps at most one analysis in flight per
// document, and discards results that are stale by the time they arrive.
package schedule

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jmylchreest/tlint/pkg/lint"
)

var schedLog = log.New(os.Stderr, "[tlint:schedule] ", log.Ltime)

// Defaults for the event timing policy.
const (
	// DefaultDebounce is how long after the last edit keystroke a run
	// starts.
	DefaultDebounce = 300 * time.Millisecond

	// DefaultThrottle is the minimum spacing between forced
	// (save/open/manual) runs for one document.
	DefaultThrottle = 200 * time.Millisecond

	// DefaultStopTimeout bounds how long Stop waits for in-flight runs.
	DefaultStopTimeout = 5 * time.Second
)

// Trigger classifies the event that requested analysis.
type Trigger int

const (
	// TriggerEdit is a keystroke-level change; debounced.
	TriggerEdit Trigger = iota
	// TriggerOpen is a file-open event; bypasses the debounce.
	TriggerOpen
	// TriggerSave is an explicit save; bypasses the debounce.
	TriggerSave
	// TriggerManual is an explicit run request; bypasses the debounce.
	TriggerManual
)

func (t Trigger) String() string {
	switch t {
	case TriggerEdit:
		return "edit"
	case TriggerOpen:
		return "open"
	case TriggerSave:
		return "save"
	case TriggerManual:
		return "manual"
	default:
		return "unknown"
	}
}

// Source supplies the current snapshot of an open document. A false return
// means the document is no longer open.
type Source interface {
	Snapshot(docID string) (*lint.Snapshot, bool)
}

// Sink consumes completed analysis cycles. Publish always receives the
// complete current finding set for the document (full replacement, no
// incremental diffing). AnalysisFailed is a non-fatal notice; prior
// findings stay on display.
type Sink interface {
	Publish(snap *lint.Snapshot, findings []*lint.Finding)
	AnalysisFailed(docID string, err error)
}

// RunFunc performs the actual analysis of one snapshot.
type RunFunc func(ctx context.Context, snap *lint.Snapshot) ([]*lint.Finding, error)

// Config holds scheduler timing knobs. Zero values fall back to defaults.
type Config struct {
	Debounce time.Duration
	Throttle time.Duration
}

type docState struct {
	timer       *time.Timer // pending debounce timer, nil when none
	forcedTimer *time.Timer // pending throttled forced run, nil when none
	running     bool
	stale       bool // a trigger arrived while running
	closed      bool
	lastStart   time.Time
}

// Scheduler serializes analysis per document. Multiple documents run
// concurrently; one document never has more than one run in flight.
type Scheduler struct {
	cfg    Config
	source Source
	run    RunFunc
	sink   Sink

	mu   sync.Mutex
	docs map[string]*docState

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler wired to a document source, a run function and a
// result sink.
func New(cfg Config, source Source, run RunFunc, sink Sink) *Scheduler {
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if cfg.Throttle <= 0 {
		cfg.Throttle = DefaultThrottle
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:    cfg,
		source: source,
		run:    run,
		sink:   sink,
		docs:   make(map[string]*docState),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Trigger requests analysis of a document. Edit triggers restart the
// debounce timer; only its final expiry starts a run. Forced triggers
// bypass the debounce but respect the minimum spacing. Any trigger landing
// while a run is in flight marks it stale and collapses into the single
// follow-up run scheduled after completion.
func (s *Scheduler) Trigger(docID string, trigger Trigger) {
	s.mu.Lock()
	st := s.ensureLocked(docID)
	if trigger == TriggerOpen {
		st.closed = false
	}
	if st.closed {
		s.mu.Unlock()
		return
	}

	if st.running {
		st.stale = true
		s.mu.Unlock()
		return
	}

	if trigger == TriggerEdit {
		// A pending forced run fires sooner and reads the snapshot at
		// run time, so it absorbs this edit; no second timer.
		if st.forcedTimer != nil {
			s.mu.Unlock()
			return
		}
		if st.timer != nil {
			st.timer.Stop()
		}
		st.timer = time.AfterFunc(s.cfg.Debounce, func() { s.fire(docID) })
		s.mu.Unlock()
		return
	}

	// Forced trigger: run as soon as the throttle allows. Multiple
	// forced triggers inside the spacing window collapse into one.
	if st.forcedTimer != nil {
		s.mu.Unlock()
		return
	}
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	wait := s.cfg.Throttle - time.Since(st.lastStart)
	if wait <= 0 {
		s.mu.Unlock()
		s.fire(docID)
		return
	}
	st.forcedTimer = time.AfterFunc(wait, func() { s.fire(docID) })
	s.mu.Unlock()
}

// CloseDocument cancels any pending run for the document and ensures a
// late in-flight result is dropped rather than published.
func (s *Scheduler) CloseDocument(docID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, ok := s.docs[docID]
	if !ok {
		return
	}
	st.closed = true
	st.stale = false
	if st.timer != nil {
		st.timer.Stop()
		st.timer = nil
	}
	if st.forcedTimer != nil {
		st.forcedTimer.Stop()
		st.forcedTimer = nil
	}
}

// Stop cancels all pending timers and waits (bounded) for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, st := range s.docs {
		st.closed = true
		if st.timer != nil {
			st.timer.Stop()
			st.timer = nil
		}
		if st.forcedTimer != nil {
			st.forcedTimer.Stop()
			st.forcedTimer = nil
		}
	}
	s.mu.Unlock()

	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(DefaultStopTimeout):
		schedLog.Printf("timeout waiting for in-flight analyses to stop")
	}
}

// Status reports the per-document state for operator visibility.
func (s *Scheduler) Status() map[string]string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.docs))
	for id, st := range s.docs {
		switch {
		case st.closed:
			out[id] = "closed"
		case st.running && st.stale:
			out[id] = "running-stale"
		case st.running:
			out[id] = "running"
		case st.timer != nil || st.forcedTimer != nil:
			out[id] = "pending"
		default:
			out[id] = "idle"
		}
	}
	return out
}

func (s *Scheduler) ensureLocked(docID string) *docState {
	st, ok := s.docs[docID]
	if !ok {
		st = &docState{}
		s.docs[docID] = st
	}
	return st
}

// fire transitions a document to Running and launches the analysis
// goroutine. Called from timer expiry or directly for unthrottled forced
// triggers.
func (s *Scheduler) fire(docID string) {
	s.mu.Lock()
	st := s.ensureLocked(docID)
	st.timer = nil
	st.forcedTimer = nil
	if st.closed {
		s.mu.Unlock()
		return
	}
	if st.running {
		st.stale = true
		s.mu.Unlock()
		return
	}
	st.running = true
	st.lastStart = time.Now()
	s.mu.Unlock()

	snap, ok := s.source.Snapshot(docID)
	if !ok {
		s.mu.Lock()
		st.running = false
		s.mu.Unlock()
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		start := time.Now()
		findings, err := s.run(s.ctx, snap)
		duration := time.Since(start)

		s.mu.Lock()
		st.running = false
		followUp := st.stale
		st.stale = false
		closed := st.closed
		s.mu.Unlock()

		if s.ctx.Err() != nil {
			return
		}

		switch {
		case closed:
			// Document went away mid-run; drop silently.
		case err != nil:
			schedLog.Printf("%s: analysis failed in %v: %v (keeping previous findings)", docID, duration, err)
			s.sink.AnalysisFailed(docID, err)
		default:
			s.publish(docID, snap, findings, duration)
		}

		if followUp && !closed {
			s.fire(docID)
		}
	}()
}

// publish applies a completed result unless the document moved on while
// the analysis ran. The superseded-result guard recomputes the current
// digest and drops the result on mismatch; the follow-up run (if any)
// delivers the fresh one.
func (s *Scheduler) publish(docID string, snap *lint.Snapshot, findings []*lint.Finding, duration time.Duration) {
	current, ok := s.source.Snapshot(docID)
	if !ok {
		return
	}
	if current.Digest != snap.Digest {
		schedLog.Printf("%s: discarding stale result (document changed during analysis)", docID)
		return
	}
	schedLog.Printf("%s: %d findings in %v", docID, len(findings), duration)
	s.sink.Publish(snap, findings)
}
