package store

import (
	"testing"

	"github.com/jmylchreest/tlint/pkg/lint"
)

func newTestStore(t *testing.T) *FindingsStore {
	t.Helper()
	s, err := NewFindingsStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFindingsStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func finding(path, rule, sev, msg string, line int) *lint.Finding {
	return &lint.Finding{
		RuleID:       rule,
		Severity:     sev,
		Message:      msg,
		DocumentPath: path,
		Line:         line,
		Column:       1,
	}
}

func TestReplaceAndList(t *testing.T) {
	s := newTestStore(t)

	err := s.ReplaceFindingsForDocument("a.md", []*lint.Finding{
		finding("a.md", "style/long-lines", lint.SevWarning, "line too long", 3),
		finding("a.md", "style/trailing-whitespace", lint.SevInfo, "trailing whitespace", 1),
	})
	if err != nil {
		t.Fatalf("ReplaceFindingsForDocument: %v", err)
	}

	got, err := s.ListFindings(lint.SearchOptions{DocumentPath: "a.md"})
	if err != nil {
		t.Fatalf("ListFindings: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 findings, got %d", len(got))
	}
	if got[0].Line != 1 || got[1].Line != 3 {
		t.Errorf("findings not in line order: %d, %d", got[0].Line, got[1].Line)
	}
	for _, f := range got {
		if f.ID == "" {
			t.Errorf("finding missing generated ID")
		}
		if f.CreatedAt.IsZero() {
			t.Errorf("finding missing CreatedAt")
		}
	}
}

func TestReplaceIsAtomicPerDocument(t *testing.T) {
	s := newTestStore(t)

	seed := func(path string, n int) {
		var fs []*lint.Finding
		for i := 0; i < n; i++ {
			fs = append(fs, finding(path, "prose/long-sentences", lint.SevWarning, "sentence too long", i+1))
		}
		if err := s.ReplaceFindingsForDocument(path, fs); err != nil {
			t.Fatalf("seed %s: %v", path, err)
		}
	}
	seed("a.md", 3)
	seed("b.md", 2)

	// Replacing a.md must not disturb b.md.
	if err := s.ReplaceFindingsForDocument("a.md", []*lint.Finding{
		finding("a.md", "todo/fixme", lint.SevInfo, "unresolved FIXME", 7),
	}); err != nil {
		t.Fatalf("ReplaceFindingsForDocument: %v", err)
	}

	a, _ := s.ListFindings(lint.SearchOptions{DocumentPath: "a.md"})
	b, _ := s.ListFindings(lint.SearchOptions{DocumentPath: "b.md"})
	if len(a) != 1 || a[0].RuleID != "todo/fixme" {
		t.Errorf("a.md findings not replaced: %+v", a)
	}
	if len(b) != 2 {
		t.Errorf("b.md findings disturbed: got %d", len(b))
	}
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)

	if err := s.ReplaceFindingsForDocument("a.md", []*lint.Finding{
		finding("a.md", "style/long-lines", lint.SevWarning, "line too long", 1),
		finding("a.md", "style/long-lines", lint.SevError, "line far too long", 2),
		finding("a.md", "todo/fixme", lint.SevInfo, "unresolved FIXME", 3),
	}); err != nil {
		t.Fatalf("ReplaceFindingsForDocument: %v", err)
	}

	byRule, _ := s.ListFindings(lint.SearchOptions{RuleID: "style/long-lines"})
	if len(byRule) != 2 {
		t.Errorf("rule filter: expected 2, got %d", len(byRule))
	}
	bySev, _ := s.ListFindings(lint.SearchOptions{Severity: lint.SevError})
	if len(bySev) != 1 {
		t.Errorf("severity filter: expected 1, got %d", len(bySev))
	}
	limited, _ := s.ListFindings(lint.SearchOptions{Limit: 1})
	if len(limited) != 1 {
		t.Errorf("limit: expected 1, got %d", len(limited))
	}
}

func TestSearchFindings(t *testing.T) {
	s := newTestStore(t)

	if err := s.ReplaceFindingsForDocument("a.md", []*lint.Finding{
		finding("a.md", "prose/repeated-words", lint.SevWarning, "repeated word detected", 1),
		finding("a.md", "style/tabs", lint.SevInfo, "tab character in indentation", 2),
	}); err != nil {
		t.Fatalf("ReplaceFindingsForDocument: %v", err)
	}

	hits, err := s.SearchFindings("repeated", lint.SearchOptions{})
	if err != nil {
		t.Fatalf("SearchFindings: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Finding.RuleID != "prose/repeated-words" {
		t.Errorf("wrong hit: %s", hits[0].Finding.RuleID)
	}
	if hits[0].Score <= 0 {
		t.Errorf("expected positive score, got %v", hits[0].Score)
	}

	// Filter-only search falls back to a match-all query.
	all, err := s.SearchFindings("", lint.SearchOptions{Severity: lint.SevInfo})
	if err != nil {
		t.Fatalf("SearchFindings: %v", err)
	}
	if len(all) != 1 || all[0].Finding.RuleID != "style/tabs" {
		t.Errorf("severity-filtered search: %+v", all)
	}
}

func TestStats(t *testing.T) {
	s := newTestStore(t)

	if err := s.ReplaceFindingsForDocument("a.md", []*lint.Finding{
		finding("a.md", "style/long-lines", lint.SevWarning, "line too long", 1),
		finding("a.md", "style/long-lines", lint.SevWarning, "line too long", 2),
		finding("a.md", "todo/fixme", lint.SevInfo, "unresolved FIXME", 3),
	}); err != nil {
		t.Fatalf("ReplaceFindingsForDocument: %v", err)
	}

	stats, err := s.Stats(lint.SearchOptions{})
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if stats.Total != 3 {
		t.Errorf("total: expected 3, got %d", stats.Total)
	}
	if stats.ByRule["style/long-lines"] != 2 {
		t.Errorf("byRule: %+v", stats.ByRule)
	}
	if stats.BySeverity[lint.SevInfo] != 1 {
		t.Errorf("bySeverity: %+v", stats.BySeverity)
	}
}

func TestClearDocument(t *testing.T) {
	s := newTestStore(t)

	if err := s.ReplaceFindingsForDocument("a.md", []*lint.Finding{
		finding("a.md", "style/tabs", lint.SevInfo, "tab character", 1),
		finding("a.md", "style/tabs", lint.SevInfo, "tab character", 2),
	}); err != nil {
		t.Fatalf("ReplaceFindingsForDocument: %v", err)
	}
	if err := s.ReplaceFindingsForDocument("b.md", []*lint.Finding{
		finding("b.md", "style/tabs", lint.SevInfo, "tab character", 1),
	}); err != nil {
		t.Fatalf("ReplaceFindingsForDocument: %v", err)
	}

	n, err := s.ClearDocument("a.md")
	if err != nil {
		t.Fatalf("ClearDocument: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 cleared, got %d", n)
	}

	stats, _ := s.Stats(lint.SearchOptions{})
	if stats.Total != 1 {
		t.Errorf("expected 1 remaining, got %d", stats.Total)
	}
}

func TestClearAll(t *testing.T) {
	s := newTestStore(t)

	if err := s.ReplaceFindingsForDocument("a.md", []*lint.Finding{
		finding("a.md", "style/tabs", lint.SevInfo, "tab character", 1),
	}); err != nil {
		t.Fatalf("ReplaceFindingsForDocument: %v", err)
	}

	if err := s.Clear(); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	stats, _ := s.Stats(lint.SearchOptions{})
	if stats.Total != 0 {
		t.Errorf("expected 0 after clear, got %d", stats.Total)
	}
	hits, err := s.SearchFindings("tab", lint.SearchOptions{})
	if err != nil {
		t.Fatalf("search after clear: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("expected no hits after clear, got %d", len(hits))
	}
}

func TestReopenPersists(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFindingsStore(dir)
	if err != nil {
		t.Fatalf("NewFindingsStore: %v", err)
	}
	if err := s.ReplaceFindingsForDocument("a.md", []*lint.Finding{
		finding("a.md", "style/tabs", lint.SevInfo, "tab character", 1),
	}); err != nil {
		t.Fatalf("ReplaceFindingsForDocument: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	s2, err := NewFindingsStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()

	got, err := s2.ListFindings(lint.SearchOptions{})
	if err != nil {
		t.Fatalf("ListFindings: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("expected 1 persisted finding, got %d", len(got))
	}
}
