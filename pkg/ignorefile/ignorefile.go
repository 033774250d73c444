// Package ignorefile loads exclusion patterns from a project's
// .tlintignore file and matches paths against them. Patterns use
// doublestar glob syntax, one per line:
//
//	# comment
//	drafts/**        ignore a whole subtree
//	**/*.gen.md      ignore by suffix at any depth
//	vendor/          trailing slash is shorthand for vendor/**
//	!docs/KEEP.md    negate earlier patterns
package ignorefile

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// FileName is the ignore file looked up at the project root.
const FileName = ".tlintignore"

// Matcher tests whether a path should be ignored.
type Matcher struct {
	rules []rule
}

type rule struct {
	pattern  string
	negation bool
}

// Load reads the project's ignore file. A missing file yields an empty
// matcher; matching is then always false.
func Load(root string) (*Matcher, error) {
	f, err := os.Open(filepath.Join(root, FileName))
	if err != nil {
		if os.IsNotExist(err) {
			return &Matcher{}, nil
		}
		return nil, err
	}
	defer f.Close()

	m := &Matcher{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		m.Add(line)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// Add appends one pattern, applying the trailing-slash and negation
// shorthands.
func (m *Matcher) Add(pattern string) {
	r := rule{}
	if strings.HasPrefix(pattern, "!") {
		r.negation = true
		pattern = pattern[1:]
	}
	if strings.HasSuffix(pattern, "/") {
		pattern += "**"
	}
	r.pattern = pattern
	m.rules = append(m.rules, r)
}

// Patterns returns the non-negated patterns, for callers that merge them
// into an existing glob list.
func (m *Matcher) Patterns() []string {
	var out []string
	for _, r := range m.rules {
		if !r.negation {
			out = append(out, r.pattern)
		}
	}
	return out
}

// Ignored reports whether a slash-separated relative path matches. Later
// rules win, so a negation can re-include a path an earlier pattern
// excluded.
func (m *Matcher) Ignored(rel string) bool {
	rel = filepath.ToSlash(rel)
	ignored := false
	for _, r := range m.rules {
		ok, err := doublestar.Match(r.pattern, rel)
		if err != nil || !ok {
			continue
		}
		ignored = !r.negation
	}
	return ignored
}
