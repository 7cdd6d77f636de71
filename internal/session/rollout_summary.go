package session

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
)

// rolloutSummaryHeadLimit and rolloutSummaryTailLimit bound how many raw
// rollout records are read back for a listing's lightweight summary,
// matching HEAD_RECORD_LIMIT/TAIL_RECORD_LIMIT in the grounding source.
const (
	rolloutSummaryHeadLimit = 10
	rolloutSummaryTailLimit = 10
)

// RolloutSummary is a head/tail snapshot of a thread's rollout file, read
// directly off disk rather than replayed through the sqlite message store —
// cheap enough to compute for every row of a list_threads page. Grounded on
// original_source/sdk/native/rust-bindings/reverie/storage.rs's
// conversation_item_to_reverie (the plain head/tail summary it builds, not
// the semantic-search/reranker machinery layered on top of it elsewhere in
// that file, which remains out of scope per spec.md §1's embedding/rerank
// exclusion).
type RolloutSummary struct {
	HeadRecords []json.RawMessage
	TailRecords []json.RawMessage
}

// BuildRolloutSummary reads up to rolloutSummaryHeadLimit records from the
// start and rolloutSummaryTailLimit records from the end of the rollout
// file at path. A record's "payload" field is unwrapped when present (rollout
// lines wrap the underlying response/event payload in an envelope), the
// same unwrap rule read_head_records_fallback/read_tail_records apply.
// Malformed lines are skipped rather than failing the whole read, since a
// listing must tolerate a partially-written trailing line from a crash.
func BuildRolloutSummary(path string) RolloutSummary {
	head := readHeadRecords(path, rolloutSummaryHeadLimit)
	tail := readTailRecords(path, rolloutSummaryTailLimit)
	return RolloutSummary{HeadRecords: head, TailRecords: tail}
}

func readHeadRecords(path string, limit int) []json.RawMessage {
	if limit == 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var out []json.RawMessage
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		rec, ok := unwrapRolloutLine(scanner.Bytes())
		if !ok {
			continue
		}
		out = append(out, rec)
		if len(out) >= limit {
			break
		}
	}
	return out
}

func readTailRecords(path string, limit int) []json.RawMessage {
	if limit == 0 {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	ring := make([]json.RawMessage, 0, limit)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		rec, ok := unwrapRolloutLine(scanner.Bytes())
		if !ok {
			continue
		}
		ring = append(ring, rec)
		if len(ring) > limit {
			ring = ring[1:]
		}
	}
	return ring
}

// unwrapRolloutLine parses one JSONL line and returns its "payload" field
// if present (the rollout writer's envelope field name, equivalent to the
// grounding source's "item"), else the whole decoded value. Blank and
// unparseable lines are reported via ok=false.
func unwrapRolloutLine(line []byte) (json.RawMessage, bool) {
	trimmed := trimSpaceBytes(line)
	if len(trimmed) == 0 {
		return nil, false
	}

	var envelope struct {
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, false
	}
	if len(envelope.Payload) > 0 {
		return envelope.Payload, true
	}

	raw := json.RawMessage(append([]byte(nil), trimmed...))
	return raw, true
}

func trimSpaceBytes(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpaceByte(b[start]) {
		start++
	}
	for end > start && isSpaceByte(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpaceByte(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

// FindRolloutPath locates the rollout file for threadID under rolloutsDir.
// Rollout filenames carry a timestamp prefix the session ID alone doesn't
// encode (see rollout.FileName), so the directory is scanned for the one
// entry whose name ends in this thread's ID rather than constructed
// directly. Returns "" if no match exists, which callers treat as "no
// rollout-backed summary available" rather than an error.
func FindRolloutPath(rolloutsDir, threadID string) string {
	entries, err := os.ReadDir(rolloutsDir)
	if err != nil {
		return ""
	}
	suffix := threadID + ".jsonl"
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasSuffix(e.Name(), suffix) {
			return filepath.Join(rolloutsDir, e.Name())
		}
	}
	return ""
}

// AttachRolloutSummaries finds and reads each summary's rollout file under
// rolloutsDir and returns a thread ID -> RolloutSummary map for whichever
// summaries have a rollout file on disk. Summaries with no matching file
// (rollouts disabled, or the session predates rollout recording) are
// simply absent from the result.
func AttachRolloutSummaries(rolloutsDir string, summaries []SessionSummary) map[string]RolloutSummary {
	out := make(map[string]RolloutSummary, len(summaries))
	for _, s := range summaries {
		path := FindRolloutPath(rolloutsDir, s.ID)
		if path == "" {
			continue
		}
		out[s.ID] = BuildRolloutSummary(path)
	}
	return out
}
