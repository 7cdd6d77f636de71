package session

import (
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func writeRolloutLines(t *testing.T, path string, payloads []string) {
	t.Helper()
	var buf []byte
	for _, p := range payloads {
		buf = append(buf, []byte(`{"payload":`+p+`}`+"\n")...)
	}
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}
}

func TestBuildRolloutSummary_HeadAndTailWithinLimits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout.jsonl")
	writeRolloutLines(t, path, []string{`"one"`, `"two"`, `"three"`})

	got := BuildRolloutSummary(path)
	if len(got.HeadRecords) != 3 {
		t.Fatalf("expected 3 head records, got %d", len(got.HeadRecords))
	}
	if len(got.TailRecords) != 3 {
		t.Fatalf("expected 3 tail records, got %d", len(got.TailRecords))
	}
	if string(got.HeadRecords[0]) != `"one"` {
		t.Errorf("expected first head record to be %q, got %q", `"one"`, got.HeadRecords[0])
	}
	if string(got.TailRecords[len(got.TailRecords)-1]) != `"three"` {
		t.Errorf("expected last tail record to be %q, got %q", `"three"`, got.TailRecords[len(got.TailRecords)-1])
	}
}

func TestBuildRolloutSummary_HeadStopsAtLimit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout.jsonl")

	var payloads []string
	for i := 0; i < rolloutSummaryHeadLimit+5; i++ {
		payloads = append(payloads, `"record"`)
	}
	writeRolloutLines(t, path, payloads)

	got := BuildRolloutSummary(path)
	if len(got.HeadRecords) != rolloutSummaryHeadLimit {
		t.Fatalf("expected head capped at %d, got %d", rolloutSummaryHeadLimit, len(got.HeadRecords))
	}
}

func TestBuildRolloutSummary_TailKeepsOnlyLastRecords(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout.jsonl")

	var payloads []string
	for i := 0; i < rolloutSummaryTailLimit+5; i++ {
		payloads = append(payloads, jsonQuoteIndex(i))
	}
	writeRolloutLines(t, path, payloads)

	got := BuildRolloutSummary(path)
	if len(got.TailRecords) != rolloutSummaryTailLimit {
		t.Fatalf("expected tail capped at %d, got %d", rolloutSummaryTailLimit, len(got.TailRecords))
	}
	// The last record written must be the last tail record retained.
	wantLast := jsonQuoteIndex(rolloutSummaryTailLimit + 4)
	if string(got.TailRecords[len(got.TailRecords)-1]) != wantLast {
		t.Errorf("expected last tail record %q, got %q", wantLast, got.TailRecords[len(got.TailRecords)-1])
	}
}

func jsonQuoteIndex(i int) string {
	return `"rec-` + strconv.Itoa(i) + `"`
}

func TestBuildRolloutSummary_MalformedLinesSkipped(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rollout.jsonl")
	content := "{not json}\n{\"payload\":\"good\"}\n\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	got := BuildRolloutSummary(path)
	if len(got.HeadRecords) != 1 || string(got.HeadRecords[0]) != `"good"` {
		t.Fatalf("expected malformed/blank lines skipped, got %+v", got.HeadRecords)
	}
}

func TestBuildRolloutSummary_MissingFileReturnsEmpty(t *testing.T) {
	got := BuildRolloutSummary(filepath.Join(t.TempDir(), "does-not-exist.jsonl"))
	if len(got.HeadRecords) != 0 || len(got.TailRecords) != 0 {
		t.Fatalf("expected empty summary for missing file, got %+v", got)
	}
}

func TestFindRolloutPath_MatchesBySuffix(t *testing.T) {
	dir := t.TempDir()
	threadID := "11111111-1111-1111-1111-111111111111"
	name := "rollout-2026-07-30T10-00-00-" + threadID + ".jsonl"
	if err := os.WriteFile(filepath.Join(dir, name), []byte("{}\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	got := FindRolloutPath(dir, threadID)
	if got != filepath.Join(dir, name) {
		t.Fatalf("expected match %q, got %q", name, got)
	}
}

func TestFindRolloutPath_NoMatchReturnsEmpty(t *testing.T) {
	dir := t.TempDir()
	if got := FindRolloutPath(dir, "no-such-thread"); got != "" {
		t.Fatalf("expected empty path, got %q", got)
	}
}

func TestAttachRolloutSummaries_OnlyAttachesWhenFileExists(t *testing.T) {
	dir := t.TempDir()
	threadID := "22222222-2222-2222-2222-222222222222"
	name := "rollout-2026-07-30T10-00-00-" + threadID + ".jsonl"
	writeRolloutLines(t, filepath.Join(dir, name), []string{`"hi"`})

	summaries := []SessionSummary{
		{ID: threadID},
		{ID: "missing-thread"},
	}
	got := AttachRolloutSummaries(dir, summaries)
	if _, ok := got[threadID]; !ok {
		t.Fatalf("expected summary for %s", threadID)
	}
	if _, ok := got["missing-thread"]; ok {
		t.Fatalf("did not expect a summary for a thread with no rollout file")
	}
}
