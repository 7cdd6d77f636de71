package turn

import (
	"strings"
	"testing"

	"github.com/samsaffron/agentkernel/internal/llm"
)

// TestTruncateContentParts_StopToken is spec.md §8 seed scenario 5 verbatim:
// Items = [InputText("aaa\nSTOP\nbbb"), InputText("ccc")], stop_text="STOP".
func TestTruncateContentParts_StopToken(t *testing.T) {
	parts := []llm.ToolContentPart{
		{Type: llm.ToolContentPartText, Text: "aaa\nSTOP\nbbb"},
		{Type: llm.ToolContentPartText, Text: "ccc"},
	}
	out := TruncateContentParts(parts, "STOP")

	if len(out) != 2 {
		t.Fatalf("expected 2 parts (truncated first item + marker), got %d: %+v", len(out), out)
	}
	if out[0].Text != "aaa\n" {
		t.Errorf("expected first item truncated to %q, got %q", "aaa\n", out[0].Text)
	}
	if out[1].Text != "[omitted 1 text items ...]" {
		t.Errorf("expected omitted-counter marker, got %q", out[1].Text)
	}
}

func TestTruncateContentParts_ImagePartsPassThrough(t *testing.T) {
	parts := []llm.ToolContentPart{
		{Type: llm.ToolContentPartText, Text: "aaa\nSTOP\nbbb"},
		{Type: llm.ToolContentPartImageData, ImageData: &llm.ToolImageData{}},
	}
	out := TruncateContentParts(parts, "STOP")
	foundImage := false
	for _, p := range out {
		if p.Type == llm.ToolContentPartImageData {
			foundImage = true
		}
	}
	if !foundImage {
		t.Errorf("expected image part to pass through untouched: %+v", out)
	}
}

func TestTruncateContentParts_NoStopTextNoOmission(t *testing.T) {
	parts := []llm.ToolContentPart{
		{Type: llm.ToolContentPartText, Text: "hello"},
	}
	out := TruncateContentParts(parts, "")
	if len(out) != 1 || out[0].Text != "hello" {
		t.Errorf("expected passthrough with no truncation, got %+v", out)
	}
}

func TestTruncateText_LinesOnlyOverflow(t *testing.T) {
	// head=128, tail=500, max=628 per spec.md §8's boundary behavior; when
	// only lines overflow, output = first head lines + marker + last tail
	// lines.
	var lines []string
	for i := 0; i < 700; i++ {
		lines = append(lines, "x")
	}
	text := strings.Join(lines, "\n")

	out, truncated := truncateText(text, TruncateMaxBytes*1000, TruncateMaxLines, 0, 0)
	if !truncated {
		t.Fatalf("expected truncation to occur")
	}
	if !strings.Contains(out, "[... omitted") {
		t.Errorf("expected an omitted-lines marker, got: %.200s...", out)
	}
	resultLines := strings.Split(out, "\n")
	headLines := resultLines[:TruncateHeadLines]
	for _, l := range headLines {
		if l != "x" {
			t.Fatalf("expected head lines to be verbatim, got %q", l)
		}
	}
	tail := resultLines[len(resultLines)-TruncateTailLines:]
	for _, l := range tail {
		if l != "x" {
			t.Fatalf("expected tail lines to be verbatim, got %q", l)
		}
	}
}

func TestTruncateText_BytesOnlyOverflow(t *testing.T) {
	// When only bytes overflow, the excess is cut at a character (rune)
	// boundary; no line-count marker should appear since max lines (628)
	// is never reached by a single long line.
	text := strings.Repeat("a", TruncateMaxBytes+500)

	out, truncated := truncateText(text, TruncateMaxBytes, TruncateMaxLines, 0, 0)
	if !truncated {
		t.Fatalf("expected truncation to occur")
	}
	if len(out) != TruncateMaxBytes {
		t.Errorf("expected output capped to %d bytes, got %d", TruncateMaxBytes, len(out))
	}
	if strings.Contains(out, "[... omitted") {
		t.Errorf("byte-only overflow must not add a line-omission marker, got: %.100s...", out)
	}
}

func TestTruncateText_BothOverflowByteCapAppliedFirst(t *testing.T) {
	// When both overflow, the byte cap is applied first (per spec.md §8),
	// so the line split happens on the already-byte-truncated slice.
	var lines []string
	for i := 0; i < 2000; i++ {
		lines = append(lines, strings.Repeat("y", 20))
	}
	text := strings.Join(lines, "\n")
	if len(text) <= TruncateMaxBytes {
		t.Fatalf("test fixture must exceed the byte cap")
	}

	out, truncated := truncateText(text, TruncateMaxBytes, TruncateMaxLines, 0, 0)
	if !truncated {
		t.Fatalf("expected truncation to occur")
	}
	if len(out) > TruncateMaxBytes+len(out) { // sanity: never exceeds original
		t.Fatalf("unexpected expansion")
	}
	// The byte-capped slice has fewer than 2000 lines, so after the byte
	// cap the remaining line count must not exceed what a 10KiB slice of
	// 20-byte lines plus newlines can hold (~488 lines), confirming bytes were
	// cut first.
	maxPossibleLines := TruncateMaxBytes/21 + 1
	resultLineCount := len(strings.Split(out, "\n"))
	if resultLineCount > maxPossibleLines+TruncateTailLines+5 {
		t.Errorf("result has more lines (%d) than a byte-capped-first slice should allow (~%d)", resultLineCount, maxPossibleLines)
	}
}

func TestTruncateText_NoOverflowPassesThrough(t *testing.T) {
	out, truncated := truncateText("short text", TruncateMaxBytes, TruncateMaxLines, 0, 0)
	if truncated {
		t.Errorf("expected no truncation for small input")
	}
	if out != "short text" {
		t.Errorf("expected passthrough, got %q", out)
	}
}

func TestTruncateToolOutput_PlainContent(t *testing.T) {
	out := TruncateToolOutput(llm.ToolOutput{Content: strings.Repeat("z", TruncateMaxBytes+100)}, "")
	if len(out.Content) != TruncateMaxBytes {
		t.Errorf("expected plain Content truncated to %d bytes, got %d", TruncateMaxBytes, len(out.Content))
	}
}

func TestSplitLineBudget_ProportionalHeadTail(t *testing.T) {
	head, tail := splitLineBudget(TruncateMaxLines)
	if head != TruncateHeadLines || tail != TruncateTailLines {
		t.Errorf("full budget should split exactly as head=%d tail=%d, got head=%d tail=%d", TruncateHeadLines, TruncateTailLines, head, tail)
	}

	head, tail = splitLineBudget(0)
	if head != 0 || tail != 0 {
		t.Errorf("zero budget should yield zero head and tail, got head=%d tail=%d", head, tail)
	}

	head, tail = splitLineBudget(1)
	if head != 1 || tail != 0 {
		t.Errorf("a budget of 1 line should go entirely to head, got head=%d tail=%d", head, tail)
	}
}

func TestTakeBytesAtRuneBoundary_NeverSplitsMultiByteRune(t *testing.T) {
	s := "aéb" // 'a', 'é' (2 bytes), 'b'
	// Truncating to 2 bytes would land mid-rune (after 'a' + first byte of
	// 'é'); the boundary-safe cut must back off to 1 byte.
	got := takeBytesAtRuneBoundary(s, 2)
	if got != "a" {
		t.Errorf("expected rune-boundary-safe cut to back off to %q, got %q", "a", got)
	}
}

func TestTakeBytesAtRuneBoundary_ExactOrOverLengthPassesThrough(t *testing.T) {
	if got := takeBytesAtRuneBoundary("hello", 100); got != "hello" {
		t.Errorf("expected passthrough when n exceeds length, got %q", got)
	}
	if got := takeBytesAtRuneBoundary("hello", 0); got != "" {
		t.Errorf("expected empty string when n=0, got %q", got)
	}
}
