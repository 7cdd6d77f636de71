package edit

import (
	"fmt"
	"regexp"
	"strings"
)

// MatchLevel identifies which matching strategy located a search block
// inside a file's content, from the strictest (exact) to the loosest
// (elided/wildcard).
type MatchLevel int

const (
	MatchExact MatchLevel = iota
	MatchTrimmedLines
	MatchWhitespaceNormalized
	MatchElided
	MatchFuzzyLines
)

func (l MatchLevel) String() string {
	switch l {
	case MatchExact:
		return "exact"
	case MatchTrimmedLines:
		return "trimmed-lines"
	case MatchWhitespaceNormalized:
		return "whitespace-normalized"
	case MatchElided:
		return "elided"
	case MatchFuzzyLines:
		return "fuzzy-lines"
	default:
		return "unknown"
	}
}

// MatchResult describes where a search block was found inside a file's
// content. Start/End are byte offsets into the original content; Original
// is the exact substring that should be replaced to apply the edit (which
// may differ from the literal search string once whitespace or elision
// normalization kicked in).
type MatchResult struct {
	Level    MatchLevel
	Start    int
	End      int
	Original string
}

// FindMatch locates search inside content, trying progressively looser
// matching strategies. It returns an error only when every strategy fails.
func FindMatch(content, search string) (MatchResult, error) {
	return findMatchInRange(content, search, 0, len(content))
}

// FindMatchWithGuard is like FindMatch but restricts the search to the
// [startLine, endLine] (1-indexed, inclusive) span of content, rejecting
// any match that falls outside it. This lets callers scope an edit to a
// previously-read line range so a stale read can't clobber unrelated code.
func FindMatchWithGuard(content, search string, startLine, endLine int) (MatchResult, error) {
	lo, hi := lineRangeToByteOffsets(content, startLine, endLine)
	return findMatchInRange(content, search, lo, hi)
}

func findMatchInRange(content, search string, lo, hi int) (MatchResult, error) {
	if search == "" {
		return MatchResult{}, fmt.Errorf("search text is empty")
	}
	window := content[lo:hi]

	if strings.Contains(search, "...") {
		return findElidedMatch(content, window, search, lo)
	}

	if idx := strings.Index(window, search); idx != -1 {
		start := lo + idx
		return MatchResult{Level: MatchExact, Start: start, End: start + len(search), Original: search}, nil
	}

	if res, ok := findTrimmedLinesMatch(content, window, search, lo); ok {
		return res, nil
	}

	if res, ok := findWhitespaceNormalizedMatch(content, window, search, lo); ok {
		return res, nil
	}

	if res, ok := findFuzzyLinesMatch(content, window, search, lo); ok {
		return res, nil
	}

	return MatchResult{}, fmt.Errorf("no match found for search text (%d bytes)", len(search))
}

// findTrimmedLinesMatch compares search against content line-by-line with
// each line's leading/trailing whitespace stripped, tolerating indentation
// drift between what the model remembered and the file's actual content.
func findTrimmedLinesMatch(content, window, search string, base int) (MatchResult, bool) {
	searchLines := strings.Split(search, "\n")
	trimmedSearch := make([]string, len(searchLines))
	for i, l := range searchLines {
		trimmedSearch[i] = strings.TrimSpace(l)
	}

	contentLines, offsets := splitLinesWithOffsets(window)
	n := len(trimmedSearch)
	for i := 0; i+n <= len(contentLines); i++ {
		matched := true
		for j := 0; j < n; j++ {
			if strings.TrimSpace(contentLines[i+j]) != trimmedSearch[j] {
				matched = false
				break
			}
		}
		if matched {
			start := base + offsets[i]
			end := base + offsets[i+n-1] + len(contentLines[i+n-1])
			return MatchResult{Level: MatchTrimmedLines, Start: start, End: end, Original: content[start:end]}, true
		}
	}
	return MatchResult{}, false
}

// findWhitespaceNormalizedMatch collapses runs of whitespace to a single
// space on both sides before comparing, tolerating tabs-vs-spaces and
// reflowed line wrapping.
func findWhitespaceNormalizedMatch(content, window, search string, base int) (MatchResult, bool) {
	normSearch := normalizeWhitespace(search)
	if normSearch == "" {
		return MatchResult{}, false
	}

	// Slide a byte window isn't feasible cheaply for arbitrary content, so
	// fall back to a line-count-bounded scan similar to findTrimmedLinesMatch,
	// but comparing whitespace-collapsed text instead of exact trimmed text.
	searchLineCount := strings.Count(search, "\n") + 1
	contentLines, offsets := splitLinesWithOffsets(window)

	for extra := 0; extra <= 2; extra++ {
		n := searchLineCount + extra
		for i := 0; i+n <= len(contentLines); i++ {
			candidate := strings.Join(contentLines[i:i+n], "\n")
			if normalizeWhitespace(candidate) == normSearch {
				start := base + offsets[i]
				end := start + len(candidate)
				return MatchResult{Level: MatchWhitespaceNormalized, Start: start, End: end, Original: content[start:end]}, true
			}
		}
	}
	return MatchResult{}, false
}

// findFuzzyLinesMatch drops blank lines from both sides before comparing,
// tolerating extra/missing blank separators the model introduced.
func findFuzzyLinesMatch(content, window, search string, base int) (MatchResult, bool) {
	searchLines := nonBlankLines(strings.Split(search, "\n"))
	if len(searchLines) == 0 {
		return MatchResult{}, false
	}

	contentLines, offsets := splitLinesWithOffsets(window)
	nonBlankIdx := make([]int, 0, len(contentLines))
	for i, l := range contentLines {
		if strings.TrimSpace(l) != "" {
			nonBlankIdx = append(nonBlankIdx, i)
		}
	}

	n := len(searchLines)
	for i := 0; i+n <= len(nonBlankIdx); i++ {
		matched := true
		for j := 0; j < n; j++ {
			if strings.TrimSpace(contentLines[nonBlankIdx[i+j]]) != strings.TrimSpace(searchLines[j]) {
				matched = false
				break
			}
		}
		if matched {
			firstLine := nonBlankIdx[i]
			lastLine := nonBlankIdx[i+n-1]
			start := base + offsets[firstLine]
			end := base + offsets[lastLine] + len(contentLines[lastLine])
			return MatchResult{Level: MatchFuzzyLines, Start: start, End: end, Original: content[start:end]}, true
		}
	}
	return MatchResult{}, false
}

// findElidedMatch handles search text containing "..." markers, each of
// which matches any run of characters (including newlines). The pieces
// between markers must appear in order within a single contiguous span.
func findElidedMatch(content, window, search string, base int) (MatchResult, error) {
	pieces := strings.Split(search, "...")
	pattern := make([]string, len(pieces))
	for i, p := range pieces {
		pattern[i] = regexp.QuoteMeta(p)
	}
	re, err := regexp.Compile("(?s)" + strings.Join(pattern, ".*?"))
	if err != nil {
		return MatchResult{}, fmt.Errorf("invalid elided pattern: %w", err)
	}

	loc := re.FindStringIndex(window)
	if loc == nil {
		return MatchResult{}, fmt.Errorf("no match found for elided search text")
	}
	start := base + loc[0]
	end := base + loc[1]
	return MatchResult{Level: MatchElided, Start: start, End: end, Original: content[start:end]}, nil
}

// ApplyMatch replaces the matched span in content with replacement.
func ApplyMatch(content string, match MatchResult, replacement string) string {
	return content[:match.Start] + replacement + content[match.End:]
}

func normalizeWhitespace(s string) string {
	fields := strings.Fields(s)
	return strings.Join(fields, " ")
}

func nonBlankLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			out = append(out, l)
		}
	}
	return out
}

// splitLinesWithOffsets splits s into lines (without the trailing
// newline) along with each line's starting byte offset within s.
func splitLinesWithOffsets(s string) ([]string, []int) {
	var lines []string
	var offsets []int
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			lines = append(lines, s[start:i])
			offsets = append(offsets, start)
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	offsets = append(offsets, start)
	return lines, offsets
}

// lineRangeToByteOffsets converts a 1-indexed, inclusive [startLine, endLine]
// span to byte offsets [lo, hi) within content. Out-of-range bounds clamp to
// the start/end of content rather than erroring, since a guard is advisory.
func lineRangeToByteOffsets(content string, startLine, endLine int) (int, int) {
	if startLine < 1 {
		startLine = 1
	}
	lines, offsets := splitLinesWithOffsets(content)
	if startLine > len(lines) {
		return len(content), len(content)
	}
	lo := offsets[startLine-1]

	hi := len(content)
	if endLine >= 1 && endLine < len(lines) {
		hi = offsets[endLine]
	}
	return lo, hi
}
