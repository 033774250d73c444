// Package chunk bounds analysis latency on large documents by selecting a
// size-adaptive processing strategy and, when needed, splitting the
// document into line-range chunks analyzed under per-chunk timeouts.
package chunk

import "time"

// Strategy is the timeout/chunking policy for one document size class.
type Strategy struct {
	// MaxLines is the exclusive upper bound of the class. 0 marks the
	// catch-all strategy with no upper bound.
	MaxLines int

	// Timeout bounds the whole analysis pass for this class.
	Timeout time.Duration

	// ChunkLines is the chunk size when chunking applies. 0 disables
	// chunking for this class.
	ChunkLines int
}

// DefaultStrategies is the ordered strategy table. The classes form a
// total partition of the line-count domain: exactly one strategy applies
// to any document, and the final entry is unbounded.
var DefaultStrategies = []Strategy{
	{MaxLines: 1000, Timeout: 10 * time.Second},
	{MaxLines: 5000, Timeout: 20 * time.Second, ChunkLines: 1000},
	{MaxLines: 20000, Timeout: 40 * time.Second, ChunkLines: 2000},
	{MaxLines: 0, Timeout: 60 * time.Second, ChunkLines: 4000},
}

// Select returns the strategy for a document of lineCount lines: the first
// table entry whose MaxLines exceeds lineCount, else the catch-all. It
// always returns a value.
func Select(lineCount int) Strategy {
	return SelectFrom(DefaultStrategies, lineCount)
}

// SelectFrom selects against a caller-supplied table. The table must end
// with an unbounded (MaxLines 0) entry; the last entry is returned when
// nothing earlier matches.
func SelectFrom(table []Strategy, lineCount int) Strategy {
	for _, s := range table {
		if s.MaxLines > 0 && lineCount < s.MaxLines {
			return s
		}
	}
	return table[len(table)-1]
}
