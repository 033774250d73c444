package differ

// Region is an inclusive, 0-based range of document lines known to differ
// between two snapshots, padded with context on both sides.
type Region struct {
	StartLine int
	EndLine   int
}

// Lines returns the number of lines the region spans.
func (r Region) Lines() int {
	return r.EndLine - r.StartLine + 1
}

// Contains reports whether the 0-based line falls inside the region.
func (r Region) Contains(line int) bool {
	return line >= r.StartLine && line <= r.EndLine
}

// changedRegions compares two line slices index-aligned and returns the
// maximal disjoint runs of differing lines, each padded by margin lines on
// both sides and clamped to the bounds of the new text. Lines beyond the
// shorter slice count as differing against the empty string. Overlapping
// or adjacent padded runs are merged; the result never contains two
// regions that could be merged further.
func changedRegions(oldLines, newLines []string, margin int) []Region {
	longest := len(oldLines)
	if len(newLines) > longest {
		longest = len(newLines)
	}

	var raw []Region
	for i := 0; i < longest; i++ {
		var oldLine, newLine string
		if i < len(oldLines) {
			oldLine = oldLines[i]
		}
		if i < len(newLines) {
			newLine = newLines[i]
		}
		if oldLine == newLine {
			continue
		}

		start := i - margin
		if start < 0 {
			start = 0
		}
		end := i + margin
		if max := len(newLines) - 1; end > max {
			end = max
		}
		if end < start {
			// The differing line lies entirely beyond the new text
			// (pure deletion at the tail); nothing to re-analyze
			// there, but the tail margin still matters.
			continue
		}

		if n := len(raw); n > 0 && start <= raw[n-1].EndLine+1 {
			if end > raw[n-1].EndLine {
				raw[n-1].EndLine = end
			}
			continue
		}
		raw = append(raw, Region{StartLine: start, EndLine: end})
	}
	return raw
}

// countChangedLines returns how many index positions differ between the
// two slices, counting the tail of the longer one.
func countChangedLines(oldLines, newLines []string) int {
	longest := len(oldLines)
	if len(newLines) > longest {
		longest = len(newLines)
	}

	changed := 0
	for i := 0; i < longest; i++ {
		var oldLine, newLine string
		if i < len(oldLines) {
			oldLine = oldLines[i]
		}
		if i < len(newLines) {
			newLine = newLines[i]
		}
		if oldLine != newLine {
			changed++
		}
	}
	return changed
}

// inAnyRegion reports whether the 0-based line falls inside any region.
func inAnyRegion(regions []Region, line int) bool {
	for _, r := range regions {
		if r.Contains(line) {
			return true
		}
	}
	return false
}
