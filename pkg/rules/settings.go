package rules

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Settings is the flat toggle surface the host editor exposes. It is the
// sole input to the catalog fingerprint: two Settings values with the same
// toggles always produce the same fingerprint, regardless of map iteration
// order.
type Settings struct {
	// Presets toggles whole rule sources by name. A source missing from
	// the map is enabled; only an explicit false disables it.
	Presets map[string]bool `koanf:"presets" json:"presets,omitempty"`

	// Rules toggles individual rules by ID. Same default-enabled
	// semantics as Presets.
	Rules map[string]bool `koanf:"rules" json:"rules,omitempty"`

	// UseMorphology gates the token-level morphological rule source,
	// which is off by default because it is the most expensive pass.
	UseMorphology bool `koanf:"useMorphology" json:"useMorphology,omitempty"`

	// EnableDebugLog turns on verbose pipeline logging. It does not
	// affect the catalog and is excluded from the fingerprint.
	EnableDebugLog bool `koanf:"enableDebugLog" json:"enableDebugLog,omitempty"`
}

// SourceEnabled reports whether the named rule source should be loaded.
func (s Settings) SourceEnabled(name string) bool {
	if name == SourceMorphology && !s.UseMorphology {
		return false
	}
	if s.Presets == nil {
		return true
	}
	enabled, ok := s.Presets[name]
	if !ok {
		return true
	}
	return enabled
}

// RuleEnabled reports whether an individual rule ID should be included.
func (s Settings) RuleEnabled(id string) bool {
	if s.Rules == nil {
		return true
	}
	enabled, ok := s.Rules[id]
	if !ok {
		return true
	}
	return enabled
}

// Fingerprint returns a stable hash over the toggles that shape the
// catalog. Composition is order-independent: toggles are serialized as
// sorted key=value lines before hashing.
func (s Settings) Fingerprint() string {
	lines := make([]string, 0, len(s.Presets)+len(s.Rules)+1)
	for name, on := range s.Presets {
		lines = append(lines, fmt.Sprintf("preset:%s=%t", name, on))
	}
	for id, on := range s.Rules {
		lines = append(lines, fmt.Sprintf("rule:%s=%t", id, on))
	}
	lines = append(lines, fmt.Sprintf("morphology=%t", s.UseMorphology))
	sort.Strings(lines)

	sum := sha256.Sum256([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(sum[:])
}
