// Package rules loads and memoizes the ordered rule catalog applied to a
// document during one analysis pass.
//
// A rule source exposes its rules in one of a closed set of module shapes
// (a bare RuleFunc, or a Module carrying a Default, a Linter, or a named
// Rules map). Extraction normalizes every recognized shape into Entry
// values; unrecognized shapes and non-invocable rules are dropped, not
// fatal, because partial rule coverage beats refusing to lint at all.
package rules

import (
	"context"
	"log"
	"os"
	"sort"

	"github.com/jmylchreest/tlint/pkg/lint"
)

var rulesLog = log.New(os.Stderr, "[tlint:rules] ", log.Ltime)

// Built-in source names.
const (
	SourceStyle      = "style"
	SourceProse      = "prose"
	SourceTodo       = "todo"
	SourceMorphology = "morphology"
)

// RuleFunc is one invocable rule: it inspects text and reports findings
// with 1-based positions relative to that text.
type RuleFunc func(ctx context.Context, text string, opts map[string]any) ([]*lint.Finding, error)

// Module is the wrapped-module shape a source may return instead of a bare
// RuleFunc. Exactly one of Default, Linter or Rules is expected to be set;
// when several are, they are probed in that order.
type Module struct {
	Default RuleFunc
	Linter  RuleFunc

	// Rules maps rule IDs to implementations. IDs are namespaced by the
	// source name during extraction ("style/hard-tabs").
	Rules map[string]RuleFunc

	// Enabled optionally restricts Rules to a subset. A rule missing
	// from a non-nil map is excluded.
	Enabled map[string]bool

	// Options is passed through to every rule call from this module.
	Options map[string]any
}

// Entry is one normalized catalog entry. The loader owns the backing
// slice; consumers treat entries as read-only for the duration of one
// analysis call.
type Entry struct {
	RuleID  string
	Run     RuleFunc
	Options map[string]any
}

// Source is a loadable preset or rule module.
type Source interface {
	Name() string

	// Load returns the source's module in one of the recognized shapes.
	// It may be called concurrently with other sources' Load.
	Load(ctx context.Context) (any, error)
}

// extract normalizes whatever a source returned into catalog entries,
// applying per-rule settings toggles. Named rules are emitted in sorted ID
// order so the same module always yields the same entry sequence.
func extract(sourceName string, module any, settings Settings) []Entry {
	switch m := module.(type) {
	case RuleFunc:
		return singleEntry(sourceName, m, nil, settings)

	case func(context.Context, string, map[string]any) ([]*lint.Finding, error):
		return singleEntry(sourceName, RuleFunc(m), nil, settings)

	case *Module:
		if m == nil {
			return nil
		}
		return extractModule(sourceName, m, settings)

	case Module:
		return extractModule(sourceName, &m, settings)

	default:
		rulesLog.Printf("source %s: unrecognized module shape %T, skipping", sourceName, module)
		return nil
	}
}

func extractModule(sourceName string, m *Module, settings Settings) []Entry {
	if m.Default != nil {
		return singleEntry(sourceName, m.Default, m.Options, settings)
	}
	if m.Linter != nil {
		return singleEntry(sourceName, m.Linter, m.Options, settings)
	}

	ids := make([]string, 0, len(m.Rules))
	for id := range m.Rules {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var entries []Entry
	for _, id := range ids {
		fn := m.Rules[id]
		if fn == nil {
			rulesLog.Printf("source %s: rule %s is not invocable, dropping", sourceName, id)
			continue
		}
		if m.Enabled != nil && !m.Enabled[id] {
			continue
		}
		ruleID := sourceName + "/" + id
		if !settings.RuleEnabled(ruleID) {
			continue
		}
		entries = append(entries, Entry{RuleID: ruleID, Run: fn, Options: m.Options})
	}
	return entries
}

func singleEntry(sourceName string, fn RuleFunc, opts map[string]any, settings Settings) []Entry {
	if fn == nil {
		rulesLog.Printf("source %s: rule is not invocable, dropping", sourceName)
		return nil
	}
	if !settings.RuleEnabled(sourceName) {
		return nil
	}
	return []Entry{{RuleID: sourceName, Run: fn, Options: opts}}
}
