// Package preset provides the built-in rule sources bundled with tlint.
//
// Each source returns its rules in one of the module shapes the loader
// recognizes, mirroring how externally packaged rule modules present
// themselves.
package preset

import (
	"context"

	"github.com/jmylchreest/tlint/pkg/rules"
)

// Sources returns the built-in rule sources in their canonical order. The
// order is fixed: the loader relies on it for deterministic catalog
// ordering.
func Sources() []rules.Source {
	return []rules.Source{
		styleSource{},
		proseSource{},
		todoSource{},
		morphologySource{},
	}
}

// styleSource exposes whitespace and layout rules as a named-rules module.
type styleSource struct{}

func (styleSource) Name() string { return rules.SourceStyle }

func (styleSource) Load(ctx context.Context) (any, error) {
	return &rules.Module{
		Rules: map[string]rules.RuleFunc{
			"trailing-whitespace": ruleTrailingWhitespace,
			"hard-tabs":           ruleHardTabs,
			"long-lines":          ruleLongLines,
		},
	}, nil
}

// proseSource exposes sentence-level rules as a named-rules module.
type proseSource struct{}

func (proseSource) Name() string { return rules.SourceProse }

func (proseSource) Load(ctx context.Context) (any, error) {
	return &rules.Module{
		Rules: map[string]rules.RuleFunc{
			"repeated-words":  ruleRepeatedWords,
			"multiple-spaces": ruleMultipleSpaces,
			"long-sentences":  ruleLongSentences,
		},
	}, nil
}

// todoSource is a single-rule source shipped as a bare RuleFunc.
type todoSource struct{}

func (todoSource) Name() string { return rules.SourceTodo }

func (todoSource) Load(ctx context.Context) (any, error) {
	return rules.RuleFunc(ruleTodoMarkers), nil
}

// morphologySource wraps the token-level pass in the {linter: fn} shape.
// It only loads when Settings.UseMorphology is set.
type morphologySource struct{}

func (morphologySource) Name() string { return rules.SourceMorphology }

func (morphologySource) Load(ctx context.Context) (any, error) {
	return &rules.Module{Linter: ruleDoubledTokens}, nil
}
