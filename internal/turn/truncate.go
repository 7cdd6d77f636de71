package turn

import (
	"fmt"
	"strings"

	"github.com/samsaffron/agentkernel/internal/llm"
)

// Truncation boundary constants for tool-result content returned to the
// model, per spec.md §8's boundary behaviors. Grounded on
// original_source/codex-rs/core/src/context_manager/truncate.rs's
// MODEL_FORMAT_* constants: head/tail line budgets are proportional (head
// gets HeadLines/MaxLines of whatever line budget remains), and the byte cap
// is always applied before the line cap.
const (
	TruncateHeadLines = 128
	TruncateTailLines = 500
	TruncateMaxLines  = TruncateHeadLines + TruncateTailLines
	TruncateMaxBytes  = 10 * 1024
)

// TruncateToolOutput applies the global output-size cap to a ToolOutput
// before it is handed back to the model, per spec.md §8. Structured content
// parts are truncated part-by-part (image parts pass through unchanged);
// otherwise the plain-text Content field is truncated directly. stopText, if
// non-empty, marks a point beyond which remaining text items are dropped and
// replaced by a single "[omitted N text items ...]" marker, matching the
// stop-token behavior scenario 5 describes.
func TruncateToolOutput(out llm.ToolOutput, stopText string) llm.ToolOutput {
	if len(out.ContentParts) > 0 {
		out.ContentParts = TruncateContentParts(out.ContentParts, stopText)
		return out
	}
	out.Content, _ = truncateText(out.Content, TruncateMaxBytes, TruncateMaxLines, 0, 0)
	return out
}

// TruncateContentParts implements globally_truncate_function_output_items:
// iterates parts in order, truncating each text part against the running
// byte/line budget, dropping all text parts after stopText is found in one
// of them, and summarizing the dropped count with a trailing marker item.
// Image parts are never truncated or dropped and do not consume the budget.
func TruncateContentParts(parts []llm.ToolContentPart, stopText string) []llm.ToolContentPart {
	out := make([]llm.ToolContentPart, 0, len(parts))
	var totalBytes, totalLines, omitted int
	hitStop := false

	for _, part := range parts {
		if part.Type != llm.ToolContentPartText {
			out = append(out, part)
			continue
		}

		if hitStop {
			omitted++
			continue
		}

		text := part.Text
		if stopText != "" {
			if idx := strings.Index(text, stopText); idx >= 0 {
				pre := text[:idx]
				if pre != "" {
					slice, _ := truncateText(pre, TruncateMaxBytes, TruncateMaxLines, totalBytes, totalLines)
					if slice != "" {
						out = append(out, llm.ToolContentPart{Type: llm.ToolContentPartText, Text: slice})
						totalBytes += len(slice)
						totalLines += len(splitLinesKeepCount(slice))
					}
				}
				hitStop = true
				continue
			}
		}

		if totalBytes >= TruncateMaxBytes || totalLines >= TruncateMaxLines {
			omitted++
			continue
		}

		slice, _ := truncateText(text, TruncateMaxBytes, TruncateMaxLines, totalBytes, totalLines)
		if slice == "" {
			omitted++
			continue
		}
		out = append(out, llm.ToolContentPart{Type: llm.ToolContentPartText, Text: slice})
		totalBytes += len(slice)
		totalLines += len(splitLinesKeepCount(slice))
	}

	if omitted > 0 {
		out = append(out, llm.ToolContentPart{
			Type: llm.ToolContentPartText,
			Text: fmt.Sprintf("[omitted %d text items ...]", omitted),
		})
	}

	return out
}

// truncateText mirrors truncate.rs's truncate_text: it caps text to the
// remaining byte budget first (cutting at a rune boundary), then, only if
// lines still overflow the remaining line budget, re-splits it into a head
// slice and a tail slice sized proportionally to HeadLines:TailLines, with a
// "[... omitted N of M lines ...]" marker in between. Returns the resulting
// slice and whether truncation happened.
func truncateText(text string, maxBytes, maxLines, totalBytes, totalLines int) (string, bool) {
	slice := text
	truncated := false

	if totalBytes+len(slice) > maxBytes {
		allowed := maxBytes - totalBytes
		if allowed < 0 {
			allowed = 0
		}
		slice = takeBytesAtRuneBoundary(slice, allowed)
		truncated = true
	}

	lines := splitLinesKeepCount(slice)
	if totalLines+len(lines) > maxLines {
		allowed := maxLines - totalLines
		if allowed < 0 {
			allowed = 0
		}
		head, tail := splitLineBudget(allowed)
		headTake := head
		if headTake > len(lines) {
			headTake = len(lines)
		}
		tailTake := tail
		if tailTake > len(lines)-headTake {
			tailTake = len(lines) - headTake
		}
		omittedLines := len(lines) - headTake - tailTake

		var b strings.Builder
		b.WriteString(strings.Join(lines[:headTake], "\n"))
		if omittedLines > 0 {
			fmt.Fprintf(&b, "\n[... omitted %d of %d lines ...]\n\n", omittedLines, totalLines+len(lines))
		}
		if tailTake > 0 {
			b.WriteString(strings.Join(lines[len(lines)-tailTake:], "\n"))
		}
		slice = b.String()
		truncated = true
	}

	return slice, truncated
}

// splitLineBudget allocates a head/tail split of limitLines lines
// proportional to TruncateHeadLines:TruncateMaxLines, matching
// split_line_budget's integer-math rounding (head gets at least 1 line when
// the budget is non-zero).
func splitLineBudget(limitLines int) (int, int) {
	if limitLines <= 0 {
		return 0, 0
	}
	head := (limitLines * TruncateHeadLines) / TruncateMaxLines
	if head < 1 {
		head = 1
	}
	if head > limitLines {
		head = limitLines
	}
	tail := limitLines - head
	return head, tail
}

// splitLinesKeepCount splits on "\n" the way Rust's str::lines() does: no
// trailing empty element for a string ending in "\n".
func splitLinesKeepCount(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if len(lines) > 0 && lines[len(lines)-1] == "" && strings.HasSuffix(s, "\n") {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// takeBytesAtRuneBoundary truncates s to at most n bytes without splitting a
// multi-byte rune, matching take_bytes_at_char_boundary.
func takeBytesAtRuneBoundary(s string, n int) string {
	if n >= len(s) {
		return s
	}
	if n <= 0 {
		return ""
	}
	for n > 0 && !isRuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
