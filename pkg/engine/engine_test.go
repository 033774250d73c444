package engine

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/jmylchreest/tlint/pkg/lint"
	"github.com/jmylchreest/tlint/pkg/rules"
)

// countingSource serves a single rule and counts its invocations.
type countingSource struct {
	calls atomic.Int64
}

func (c *countingSource) Name() string { return "counting" }

func (c *countingSource) Load(ctx context.Context) (any, error) {
	return rules.RuleFunc(func(ctx context.Context, text string, opts map[string]any) ([]*lint.Finding, error) {
		c.calls.Add(1)
		if strings.Contains(text, "flagme") {
			return []*lint.Finding{{Severity: lint.SevWarning, Message: "flagged", Line: 1, Column: 1}}, nil
		}
		return nil, nil
	}), nil
}

func newTestEngine(src rules.Source) *Engine {
	return New(Config{}, rules.NewLoader(src))
}

func TestAnalyze_Idempotent(t *testing.T) {
	src := &countingSource{}
	e := newTestEngine(src)

	snap := lint.NewSnapshot("doc.md", "flagme please\nsecond line")

	first, err := e.Analyze(context.Background(), snap)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	second, err := e.Analyze(context.Background(), snap)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}

	if got := src.calls.Load(); got != 1 {
		t.Errorf("rule invoked %d times, want 1 (second call served from cache)", got)
	}
	if len(first) != 1 || len(second) != 1 {
		t.Fatalf("finding counts = %d, %d, want 1, 1", len(first), len(second))
	}
	if first[0].ID != second[0].ID || first[0].Message != second[0].Message {
		t.Error("cached call must return identical findings")
	}
}

func TestAnalyze_StampsFindings(t *testing.T) {
	e := newTestEngine(&countingSource{})

	snap := lint.NewSnapshot("doc.md", "flagme")
	findings, err := e.Analyze(context.Background(), snap)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Fatalf("got %d findings, want 1", len(findings))
	}

	f := findings[0]
	if f.ID == "" {
		t.Error("finding missing ULID")
	}
	if f.RuleID != "counting" {
		t.Errorf("rule ID = %q, want the catalog entry's ID", f.RuleID)
	}
	if f.DocumentPath != "doc.md" {
		t.Errorf("document path = %q", f.DocumentPath)
	}
	if f.CreatedAt.IsZero() {
		t.Error("finding missing creation timestamp")
	}
}

func TestAnalyze_EditInvalidatesCache(t *testing.T) {
	src := &countingSource{}
	e := newTestEngine(src)

	if _, err := e.Analyze(context.Background(), lint.NewSnapshot("doc.md", "flagme v1")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Analyze(context.Background(), lint.NewSnapshot("doc.md", "flagme v2")); err != nil {
		t.Fatal(err)
	}

	if got := src.calls.Load(); got < 2 {
		t.Errorf("rule invoked %d times, want at least 2 (digest changed)", got)
	}
}

func TestClearCaches_ForcesReanalysis(t *testing.T) {
	src := &countingSource{}
	e := newTestEngine(src)

	snap := lint.NewSnapshot("doc.md", "flagme")
	if _, err := e.Analyze(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	e.ClearCaches()
	if _, err := e.Analyze(context.Background(), snap); err != nil {
		t.Fatal(err)
	}

	if got := src.calls.Load(); got != 2 {
		t.Errorf("rule invoked %d times, want 2 (caches cleared between)", got)
	}
}

func TestCacheStats(t *testing.T) {
	e := newTestEngine(&countingSource{})

	if _, err := e.Analyze(context.Background(), lint.NewSnapshot("a.md", "one")); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Analyze(context.Background(), lint.NewSnapshot("b.md", "two")); err != nil {
		t.Fatal(err)
	}

	stats := e.CacheStats()
	if stats.Size != 2 {
		t.Errorf("cache size = %d, want 2", stats.Size)
	}
}

func TestRegistry_Lifecycle(t *testing.T) {
	r := NewRegistry()

	r.Open("doc.md", "hello")
	snap, ok := r.Snapshot("doc.md")
	if !ok || snap.Text != "hello" {
		t.Fatalf("snapshot = %+v, %v", snap, ok)
	}
	firstDigest := snap.Digest

	r.Update("doc.md", "hello world")
	snap, _ = r.Snapshot("doc.md")
	if snap.Digest == firstDigest {
		t.Error("digest must change with the text")
	}

	r.Close("doc.md")
	if _, ok := r.Snapshot("doc.md"); ok {
		t.Error("closed document still has a snapshot")
	}
	if got := len(r.List()); got != 0 {
		t.Errorf("registry lists %d documents, want 0", got)
	}
}

func TestAnalyze_RuleFailureSkipped(t *testing.T) {
	failing := &failingSource{}
	good := &countingSource{}
	e := New(Config{}, rules.NewLoader(failing, good))

	findings, err := e.Analyze(context.Background(), lint.NewSnapshot("doc.md", "flagme"))
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(findings) != 1 {
		t.Errorf("got %d findings, want 1 (failing rule skipped, not fatal)", len(findings))
	}
}

type failingSource struct{}

func (failingSource) Name() string { return "failing" }

func (failingSource) Load(ctx context.Context) (any, error) {
	return rules.RuleFunc(func(ctx context.Context, text string, opts map[string]any) ([]*lint.Finding, error) {
		return nil, context.DeadlineExceeded
	}), nil
}
