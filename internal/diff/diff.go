// Package diff holds small shared constants for the diff-preview markers
// that edit/write tools embed in their tool-result text so the UI layer
// can render a rich diff instead of the raw before/after content.
package diff

// MaxDiffSize bounds how large a file's content may be before tools stop
// embedding a "__DIFF__:<base64>" preview marker for it. Past this size the
// UI falls back to the plain text result; computing and encoding a diff for
// a multi-hundred-KB file isn't worth the render cost.
const MaxDiffSize = 200_000
