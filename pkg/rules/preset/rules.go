package preset

import (
	"context"
	"strings"
	"unicode"

	"github.com/jmylchreest/tlint/pkg/lint"
)

// Default thresholds for the built-in rules. Overridable per rule via the
// module Options map.
const (
	DefaultMaxLineLength     = 120
	DefaultMaxSentenceWords  = 40
	DefaultMultiSpaceMinimum = 2
)

func optInt(opts map[string]any, key string, fallback int) int {
	if opts == nil {
		return fallback
	}
	switch v := opts[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	default:
		return fallback
	}
}

func ruleTrailingWhitespace(ctx context.Context, text string, opts map[string]any) ([]*lint.Finding, error) {
	var fs []*lint.Finding
	for i, line := range lint.SplitLines(text) {
		trimmed := strings.TrimRight(line, " \t")
		if len(trimmed) == len(line) {
			continue
		}
		fs = append(fs, &lint.Finding{
			RuleID:   "style/trailing-whitespace",
			Severity: lint.SevWarning,
			Message:  "line has trailing whitespace",
			Line:     i + 1,
			Column:   len(trimmed) + 1,
			Fix:      lineFix(text, i, len(trimmed), len(line), ""),
		})
	}
	return fs, nil
}

func ruleHardTabs(ctx context.Context, text string, opts map[string]any) ([]*lint.Finding, error) {
	var fs []*lint.Finding
	for i, line := range lint.SplitLines(text) {
		col := strings.IndexByte(line, '\t')
		if col < 0 {
			continue
		}
		fs = append(fs, &lint.Finding{
			RuleID:   "style/hard-tabs",
			Severity: lint.SevInfo,
			Message:  "hard tab character",
			Line:     i + 1,
			Column:   col + 1,
		})
	}
	return fs, nil
}

func ruleLongLines(ctx context.Context, text string, opts map[string]any) ([]*lint.Finding, error) {
	maxLen := optInt(opts, "maxLength", DefaultMaxLineLength)

	var fs []*lint.Finding
	for i, line := range lint.SplitLines(text) {
		n := len([]rune(line))
		if n <= maxLen {
			continue
		}
		fs = append(fs, &lint.Finding{
			RuleID:    "style/long-lines",
			Severity:  lint.SevInfo,
			Message:   "line exceeds maximum length",
			Line:      i + 1,
			Column:    maxLen + 1,
			EndLine:   i + 1,
			EndColumn: n + 1,
		})
	}
	return fs, nil
}

func ruleRepeatedWords(ctx context.Context, text string, opts map[string]any) ([]*lint.Finding, error) {
	var fs []*lint.Finding
	for i, line := range lint.SplitLines(text) {
		words := strings.Fields(line)
		col := 1
		var prev string
		for _, w := range words {
			idx := strings.Index(line[col-1:], w)
			wordCol := col + idx
			norm := strings.ToLower(strings.TrimFunc(w, unicode.IsPunct))
			if norm != "" && norm == prev {
				fs = append(fs, &lint.Finding{
					RuleID:   "prose/repeated-words",
					Severity: lint.SevWarning,
					Message:  "repeated word: " + norm,
					Line:     i + 1,
					Column:   wordCol,
				})
			}
			prev = norm
			col = wordCol + len(w)
		}
	}
	return fs, nil
}

func ruleMultipleSpaces(ctx context.Context, text string, opts map[string]any) ([]*lint.Finding, error) {
	var fs []*lint.Finding
	for i, line := range lint.SplitLines(text) {
		trimmed := strings.TrimLeft(line, " \t")
		indent := len(line) - len(trimmed)
		run := 0
		for j := indent; j < len(line); j++ {
			if line[j] == ' ' {
				run++
				continue
			}
			if run >= DefaultMultiSpaceMinimum {
				fs = append(fs, &lint.Finding{
					RuleID:   "prose/multiple-spaces",
					Severity: lint.SevInfo,
					Message:  "consecutive spaces inside a sentence",
					Line:     i + 1,
					Column:   j - run + 1,
					Fix:      lineFix(text, i, j-run, j, " "),
				})
			}
			run = 0
		}
	}
	return fs, nil
}

func ruleLongSentences(ctx context.Context, text string, opts map[string]any) ([]*lint.Finding, error) {
	maxWords := optInt(opts, "maxWords", DefaultMaxSentenceWords)

	var fs []*lint.Finding
	for i, line := range lint.SplitLines(text) {
		for _, sentence := range strings.FieldsFunc(line, isSentenceEnd) {
			words := len(strings.Fields(sentence))
			if words <= maxWords {
				continue
			}
			col := strings.Index(line, sentence) + 1
			fs = append(fs, &lint.Finding{
				RuleID:   "prose/long-sentences",
				Severity: lint.SevInfo,
				Message:  "sentence is hard to follow, consider splitting it",
				Line:     i + 1,
				Column:   col,
			})
		}
	}
	return fs, nil
}

func ruleTodoMarkers(ctx context.Context, text string, opts map[string]any) ([]*lint.Finding, error) {
	markers := []string{"TODO", "FIXME", "XXX"}

	var fs []*lint.Finding
	for i, line := range lint.SplitLines(text) {
		for _, m := range markers {
			col := strings.Index(line, m)
			if col < 0 {
				continue
			}
			fs = append(fs, &lint.Finding{
				RuleID:   "todo",
				Severity: lint.SevInfo,
				Message:  "unresolved " + m + " marker",
				Line:     i + 1,
				Column:   col + 1,
			})
		}
	}
	return fs, nil
}

// ruleDoubledTokens is a lightweight stand-in for a full morphological
// pass: it tokenizes each line and flags immediately repeated tokens that
// survive normalization, which catches doubled particles and stutters the
// word-level rule misses around punctuation.
func ruleDoubledTokens(ctx context.Context, text string, opts map[string]any) ([]*lint.Finding, error) {
	var fs []*lint.Finding
	for i, line := range lint.SplitLines(text) {
		tokens := tokenize(line)
		for j := 1; j < len(tokens); j++ {
			if tokens[j].text != tokens[j-1].text {
				continue
			}
			fs = append(fs, &lint.Finding{
				RuleID:   "morphology/doubled-token",
				Severity: lint.SevWarning,
				Message:  "doubled token: " + tokens[j].text,
				Line:     i + 1,
				Column:   tokens[j].col,
			})
		}
	}
	return fs, nil
}

type token struct {
	text string
	col  int // 1-based
}

func tokenize(line string) []token {
	var out []token
	start := -1
	runes := []rune(line)
	for i, r := range runes {
		if unicode.IsLetter(r) || unicode.IsNumber(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		if start >= 0 {
			out = append(out, token{text: strings.ToLower(string(runes[start:i])), col: start + 1})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, token{text: strings.ToLower(string(runes[start:])), col: start + 1})
	}
	return out
}

func isSentenceEnd(r rune) bool {
	switch r {
	case '.', '!', '?', '。', '！', '？':
		return true
	}
	return false
}

// lineFix builds a byte-range fix for [startCol, endCol) columns of line
// lineIdx (both 0-based) within the full document text.
func lineFix(text string, lineIdx, startCol, endCol int, replacement string) *lint.Fix {
	offset := 0
	for i, line := range lint.SplitLines(text) {
		if i == lineIdx {
			return &lint.Fix{
				Start: offset + startCol,
				End:   offset + endCol,
				Text:  replacement,
			}
		}
		offset += len(line) + 1
	}
	return nil
}
