// Package udiff implements a small unified-diff parser and patcher used by
// the edit tools to apply model-proposed changes against in-memory file
// contents. The accepted format is the familiar unified diff subset:
// "--- a/path" / "+++ b/path" file headers, "@@ ... @@" hunk headers
// (optionally followed by trailing context text), a leading space for
// context lines, "-" for removed lines, "+" for added lines, and a
// bare "-..." line to elide a large unchanged/removed block (the
// elided region's end is located by the next context or removal line).
package udiff

import "strings"

// LineType classifies a single line within a hunk.
type LineType int

const (
	Context LineType = iota
	Remove
	Add
	Elision
)

// Line is a single line within a hunk, tagged with how it applies.
type Line struct {
	Type    LineType
	Content string
}

// Hunk is one contiguous change within a file, anchored by an optional
// context string taken from the "@@ ... @@" header line.
type Hunk struct {
	Context string
	Lines   []Line
}

// FileDiff is the set of hunks proposed for a single file path.
type FileDiff struct {
	Path  string
	Hunks []Hunk
}

// Parse parses a unified diff string into one FileDiff per file header
// encountered. Malformed input is tolerated where possible; Parse only
// returns an error when no file headers could be identified at all.
func Parse(diffText string) ([]FileDiff, error) {
	lines := strings.Split(diffText, "\n")

	var diffs []FileDiff
	var current *FileDiff
	var hunk *Hunk

	flushHunk := func() {
		if current != nil && hunk != nil && len(hunk.Lines) > 0 {
			current.Hunks = append(current.Hunks, *hunk)
		}
		hunk = nil
	}
	flushFile := func() {
		flushHunk()
		if current != nil {
			diffs = append(diffs, *current)
		}
		current = nil
	}

	for _, raw := range lines {
		switch {
		case strings.HasPrefix(raw, "--- "):
			// The source path; the authoritative path comes from the
			// following "+++" line, so just flush any prior file here.
			flushFile()
			current = &FileDiff{}

		case strings.HasPrefix(raw, "+++ "):
			if current == nil {
				current = &FileDiff{}
			}
			current.Path = normalizeDiffPath(strings.TrimSpace(raw[4:]))

		case strings.HasPrefix(raw, "@@"):
			flushHunk()
			if current == nil {
				current = &FileDiff{}
			}
			hunk = &Hunk{Context: extractHunkContext(raw)}

		case raw == "-..." || raw == "-…":
			if hunk == nil {
				hunk = &Hunk{}
			}
			hunk.Lines = append(hunk.Lines, Line{Type: Elision})

		case strings.HasPrefix(raw, "+"):
			if hunk == nil {
				hunk = &Hunk{}
			}
			hunk.Lines = append(hunk.Lines, Line{Type: Add, Content: raw[1:]})

		case strings.HasPrefix(raw, "-"):
			if hunk == nil {
				hunk = &Hunk{}
			}
			hunk.Lines = append(hunk.Lines, Line{Type: Remove, Content: raw[1:]})

		case strings.HasPrefix(raw, " "):
			if hunk == nil {
				hunk = &Hunk{}
			}
			hunk.Lines = append(hunk.Lines, Line{Type: Context, Content: raw[1:]})

		case raw == "":
			if hunk != nil {
				hunk.Lines = append(hunk.Lines, Line{Type: Context, Content: ""})
			}

		default:
			// Stray text between hunks (e.g. commentary) is ignored.
		}
	}
	flushFile()

	if len(diffs) == 0 {
		return nil, errNoFileHeaders
	}
	return diffs, nil
}

var errNoFileHeaders = parseError("no file headers found in diff")

type parseError string

func (e parseError) Error() string { return string(e) }

// normalizeDiffPath strips the conventional "a/"/"b/" prefixes models emit
// for unified diffs, leaving a plain workspace-relative path.
func normalizeDiffPath(path string) string {
	path = strings.TrimSpace(path)
	switch {
	case strings.HasPrefix(path, "b/"):
		return path[2:]
	case strings.HasPrefix(path, "a/"):
		return path[2:]
	default:
		return path
	}
}

// extractHunkContext pulls any trailing free-text after the closing "@@"
// on a hunk header line, e.g. "@@ func main() {" -> "func main() {".
func extractHunkContext(header string) string {
	rest := strings.TrimPrefix(header, "@@")
	if idx := strings.Index(rest, "@@"); idx != -1 {
		rest = rest[idx+2:]
	}
	return strings.TrimSpace(rest)
}
