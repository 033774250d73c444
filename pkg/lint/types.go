// Package lint defines the core types shared by the tlint analysis pipeline.
package lint

import (
	"context"
	"sort"
	"time"
)

// Severity levels for findings.
const (
	SevError   = "error"
	SevWarning = "warning"
	SevInfo    = "info"
)

// SeverityRank returns a numeric rank for the given severity level:
// info=0, warning=1, error=2. Unknown values return -1.
func SeverityRank(sev string) int {
	switch sev {
	case SevInfo:
		return 0
	case SevWarning:
		return 1
	case SevError:
		return 2
	default:
		return -1
	}
}

// Fix is a suggested replacement for the text span [Start, End) of the
// analyzed document, in bytes.
type Fix struct {
	Start int    `json:"start"`
	End   int    `json:"end"`
	Text  string `json:"text"`
}

// Finding represents a single reported lint issue. Findings are value
// records: the analyzer that produced one never mutates it afterwards.
type Finding struct {
	ID           string    `json:"id"`                     // ULID
	RuleID       string    `json:"rule"`                   // Identifying rule name
	Severity     string    `json:"severity"`               // "error", "warning", "info"
	Message      string    `json:"message"`                // Human-readable description
	DocumentPath string    `json:"file,omitempty"`         // Originating document
	Line         int       `json:"line"`                   // Start line (1-indexed)
	Column       int       `json:"column"`                 // Start column (1-indexed)
	EndLine      int       `json:"endLine,omitempty"`      // 0 = single line
	EndColumn    int       `json:"endColumn,omitempty"`    // 0 = unset
	Fix          *Fix      `json:"fix,omitempty"`          // Optional suggested fix
	CreatedAt    time.Time `json:"createdAt,omitempty"`
}

// Snapshot captures the full text of a document at one point in time.
// Snapshots are superseded, never mutated.
type Snapshot struct {
	Path      string
	Text      string
	Digest    string
	CreatedAt time.Time
}

// NewSnapshot builds a snapshot of text, computing its content digest.
func NewSnapshot(path, text string) *Snapshot {
	return &Snapshot{
		Path:      path,
		Text:      text,
		Digest:    Digest(text),
		CreatedAt: time.Now(),
	}
}

// AnalyzeFunc is the black-box analysis contract consumed by the chunking
// and differential layers. Implementations must tolerate being invoked
// repeatedly with overlapping text ranges, and should honor ctx
// cancellation between units of work.
type AnalyzeFunc func(ctx context.Context, text string) ([]*Finding, error)

// SortFindings orders findings by line, then column, then rule ID. The rule
// tie-break keeps output stable when two rules flag the same position.
func SortFindings(fs []*Finding) {
	sort.SliceStable(fs, func(i, j int) bool {
		if fs[i].Line != fs[j].Line {
			return fs[i].Line < fs[j].Line
		}
		if fs[i].Column != fs[j].Column {
			return fs[i].Column < fs[j].Column
		}
		return fs[i].RuleID < fs[j].RuleID
	})
}

// Default result counts for stored-finding queries.
const (
	DefaultListLimit   = 100
	DefaultSearchLimit = 20
)

// SearchOptions for filtering stored findings.
type SearchOptions struct {
	RuleID       string // Filter by rule name
	Severity     string // Filter by severity
	DocumentPath string // Filter by document path (substring)
	Limit        int    // Max results (0 = default)
}

// Stats holds aggregate counts of stored findings.
type Stats struct {
	Total      int            `json:"total"`
	ByRule     map[string]int `json:"byRule"`
	BySeverity map[string]int `json:"bySeverity"`
}

// SearchResult pairs a finding with its search relevance score.
type SearchResult struct {
	Finding *Finding
	Score   float64
}
