package schedule

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmylchreest/tlint/pkg/lint"
)

// fakeSource is a mutable document registry for tests.
type fakeSource struct {
	mu   sync.Mutex
	docs map[string]string
}

func newFakeSource() *fakeSource {
	return &fakeSource{docs: make(map[string]string)}
}

func (f *fakeSource) set(id, text string) {
	f.mu.Lock()
	f.docs[id] = text
	f.mu.Unlock()
}

func (f *fakeSource) remove(id string) {
	f.mu.Lock()
	delete(f.docs, id)
	f.mu.Unlock()
}

func (f *fakeSource) Snapshot(id string) (*lint.Snapshot, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	text, ok := f.docs[id]
	if !ok {
		return nil, false
	}
	return lint.NewSnapshot(id, text), true
}

// recordingSink captures published cycles and failures.
type recordingSink struct {
	mu        sync.Mutex
	published []*lint.Snapshot
	failures  []error
}

func (r *recordingSink) Publish(snap *lint.Snapshot, findings []*lint.Finding) {
	r.mu.Lock()
	r.published = append(r.published, snap)
	r.mu.Unlock()
}

func (r *recordingSink) AnalysisFailed(docID string, err error) {
	r.mu.Lock()
	r.failures = append(r.failures, err)
	r.mu.Unlock()
}

func (r *recordingSink) publishCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.published)
}

func countingRun(counter *atomic.Int64, delay time.Duration) RunFunc {
	return func(ctx context.Context, snap *lint.Snapshot) ([]*lint.Finding, error) {
		counter.Add(1)
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}
		return nil, nil
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestScheduler_DebounceCollapsesEdits(t *testing.T) {
	source := newFakeSource()
	source.set("doc.md", "hello")
	sink := &recordingSink{}
	var runs atomic.Int64

	s := New(Config{Debounce: 30 * time.Millisecond}, source, countingRun(&runs, 0), sink)
	defer s.Stop()

	s.Trigger("doc.md", TriggerEdit)
	s.Trigger("doc.md", TriggerEdit)
	s.Trigger("doc.md", TriggerEdit)

	waitFor(t, time.Second, func() bool { return sink.publishCount() == 1 })
	// Give a straggler run a chance to show up before asserting.
	time.Sleep(60 * time.Millisecond)

	if got := runs.Load(); got != 1 {
		t.Errorf("3 edits in one debounce window ran %d analyses, want 1", got)
	}
}

func TestScheduler_SingleFlightWithFollowUp(t *testing.T) {
	source := newFakeSource()
	source.set("doc.md", "hello")
	sink := &recordingSink{}
	var runs atomic.Int64

	s := New(Config{Debounce: 10 * time.Millisecond}, source, countingRun(&runs, 80*time.Millisecond), sink)
	defer s.Stop()

	s.Trigger("doc.md", TriggerManual)
	waitFor(t, time.Second, func() bool { return runs.Load() == 1 })

	// Three triggers while running collapse into one follow-up.
	s.Trigger("doc.md", TriggerEdit)
	s.Trigger("doc.md", TriggerSave)
	s.Trigger("doc.md", TriggerEdit)

	waitFor(t, 2*time.Second, func() bool { return sink.publishCount() == 2 })
	time.Sleep(120 * time.Millisecond)

	if got := runs.Load(); got != 2 {
		t.Errorf("ran %d analyses, want 2 (initial + one collapsed follow-up)", got)
	}
}

func TestScheduler_StaleResultDiscarded(t *testing.T) {
	source := newFakeSource()
	source.set("doc.md", "original")
	sink := &recordingSink{}

	release := make(chan struct{})
	run := func(ctx context.Context, snap *lint.Snapshot) ([]*lint.Finding, error) {
		<-release
		return nil, nil
	}

	s := New(Config{Debounce: 10 * time.Millisecond}, source, run, sink)
	defer s.Stop()

	s.Trigger("doc.md", TriggerManual)
	waitFor(t, time.Second, func() bool {
		return s.Status()["doc.md"] == "running"
	})

	// Document changes while the analysis is in flight.
	source.set("doc.md", "edited meanwhile")
	close(release)

	time.Sleep(100 * time.Millisecond)
	if got := sink.publishCount(); got != 0 {
		t.Errorf("published %d results, want 0 (digest changed mid-run)", got)
	}
}

func TestScheduler_ForcedBypassesDebounce(t *testing.T) {
	source := newFakeSource()
	source.set("doc.md", "hello")
	sink := &recordingSink{}
	var runs atomic.Int64

	// Long debounce: only a forced trigger can run quickly.
	s := New(Config{Debounce: 5 * time.Second}, source, countingRun(&runs, 0), sink)
	defer s.Stop()

	s.Trigger("doc.md", TriggerEdit)
	s.Trigger("doc.md", TriggerSave)

	waitFor(t, time.Second, func() bool { return runs.Load() == 1 })
}

func TestScheduler_ForcedThrottled(t *testing.T) {
	source := newFakeSource()
	source.set("doc.md", "hello")
	sink := &recordingSink{}
	var runs atomic.Int64

	s := New(Config{Debounce: 10 * time.Millisecond, Throttle: 100 * time.Millisecond},
		source, countingRun(&runs, 0), sink)
	defer s.Stop()

	s.Trigger("doc.md", TriggerSave)
	waitFor(t, time.Second, func() bool { return runs.Load() == 1 })

	// Back-to-back saves inside the spacing window collapse into one
	// trailing run.
	s.Trigger("doc.md", TriggerSave)
	s.Trigger("doc.md", TriggerSave)
	s.Trigger("doc.md", TriggerSave)

	waitFor(t, time.Second, func() bool { return runs.Load() == 2 })
	time.Sleep(150 * time.Millisecond)
	if got := runs.Load(); got != 2 {
		t.Errorf("ran %d analyses, want 2 (throttle collapses duplicates)", got)
	}
}

func TestScheduler_EditAbsorbedByPendingForcedRun(t *testing.T) {
	source := newFakeSource()
	source.set("doc.md", "hello")
	sink := &recordingSink{}
	var runs atomic.Int64

	s := New(Config{Debounce: 20 * time.Millisecond, Throttle: 100 * time.Millisecond},
		source, countingRun(&runs, 0), sink)
	defer s.Stop()

	s.Trigger("doc.md", TriggerSave)
	waitFor(t, time.Second, func() bool { return runs.Load() == 1 })

	// The second save is throttled and waits; the edit landing behind it
	// must ride along instead of arming its own debounce timer.
	s.Trigger("doc.md", TriggerSave)
	s.Trigger("doc.md", TriggerEdit)

	waitFor(t, time.Second, func() bool { return runs.Load() == 2 })
	time.Sleep(150 * time.Millisecond)
	if got := runs.Load(); got != 2 {
		t.Errorf("ran %d analyses, want 2 (edit behind a pending forced run must not double-fire)", got)
	}
}

func TestScheduler_CloseCancelsPending(t *testing.T) {
	source := newFakeSource()
	source.set("doc.md", "hello")
	sink := &recordingSink{}
	var runs atomic.Int64

	s := New(Config{Debounce: 50 * time.Millisecond}, source, countingRun(&runs, 0), sink)
	defer s.Stop()

	s.Trigger("doc.md", TriggerEdit)
	s.CloseDocument("doc.md")

	time.Sleep(120 * time.Millisecond)
	if got := runs.Load(); got != 0 {
		t.Errorf("ran %d analyses after close, want 0", got)
	}
}

func TestScheduler_CloseDropsInFlightResult(t *testing.T) {
	source := newFakeSource()
	source.set("doc.md", "hello")
	sink := &recordingSink{}

	release := make(chan struct{})
	run := func(ctx context.Context, snap *lint.Snapshot) ([]*lint.Finding, error) {
		<-release
		return nil, nil
	}

	s := New(Config{}, source, run, sink)
	defer s.Stop()

	s.Trigger("doc.md", TriggerManual)
	waitFor(t, time.Second, func() bool { return s.Status()["doc.md"] == "running" })

	s.CloseDocument("doc.md")
	source.remove("doc.md")
	close(release)

	time.Sleep(100 * time.Millisecond)
	if got := sink.publishCount(); got != 0 {
		t.Errorf("published %d results for a closed document, want 0", got)
	}
}

func TestScheduler_FailureSurfacedNonFatal(t *testing.T) {
	source := newFakeSource()
	source.set("doc.md", "hello")
	sink := &recordingSink{}

	run := func(ctx context.Context, snap *lint.Snapshot) ([]*lint.Finding, error) {
		return nil, errors.New("engine exploded")
	}

	s := New(Config{}, source, run, sink)
	defer s.Stop()

	s.Trigger("doc.md", TriggerManual)
	waitFor(t, time.Second, func() bool {
		sink.mu.Lock()
		defer sink.mu.Unlock()
		return len(sink.failures) == 1
	})

	if sink.publishCount() != 0 {
		t.Error("failed analysis must not publish findings")
	}
	if got := s.Status()["doc.md"]; got != "idle" {
		t.Errorf("state after failure = %s, want idle", got)
	}
}

func TestScheduler_IndependentDocuments(t *testing.T) {
	source := newFakeSource()
	source.set("a.md", "one")
	source.set("b.md", "two")
	sink := &recordingSink{}
	var runs atomic.Int64

	s := New(Config{}, source, countingRun(&runs, 20*time.Millisecond), sink)
	defer s.Stop()

	s.Trigger("a.md", TriggerManual)
	s.Trigger("b.md", TriggerManual)

	waitFor(t, time.Second, func() bool { return sink.publishCount() == 2 })
}
