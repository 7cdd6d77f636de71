package rollout

import (
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestWriter_CreateWritesSessionMetaFirst(t *testing.T) {
	dir := t.TempDir()
	threadID := uuid.NewString()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	w, err := Create(dir, threadID, SessionMeta{ThreadID: threadID, CWD: "/work", CreatedAt: now}, now)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	records, err := ReadAll(w.Path())
	if err != nil {
		t.Fatalf("ReadAll returned error: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected exactly 1 record, got %d", len(records))
	}
	if records[0].Type != string(TypeSessionMeta) {
		t.Errorf("expected first record to be session_meta, got %q", records[0].Type)
	}
}

func TestWriter_RoundTripPreservesOrderAndContent(t *testing.T) {
	// "Rollout write then re-read yields semantically identical records
	// (modulo record ordering equal to write ordering)" — spec.md §8.
	dir := t.TempDir()
	threadID := uuid.NewString()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	w, err := Create(dir, threadID, SessionMeta{ThreadID: threadID, CWD: "/work", CreatedAt: now}, now)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	type toolResultPayload struct {
		CallID string `json:"call_id"`
	}
	if err := w.Append(TypeToolResult, toolResultPayload{CallID: "call-1"}, now.Add(time.Second)); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := w.Append(TypeEventMsg, map[string]string{"kind": "turn.started"}, now.Add(2*time.Second)); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	records, err := ReadAll(w.Path())
	if err != nil {
		t.Fatalf("ReadAll returned error: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	wantTypes := []string{string(TypeSessionMeta), string(TypeToolResult), string(TypeEventMsg)}
	for i, want := range wantTypes {
		if records[i].Type != want {
			t.Errorf("record %d: expected type %q, got %q (write order must be preserved)", i, want, records[i].Type)
		}
	}

	var tr toolResultPayload
	if err := json.Unmarshal(records[1].Payload, &tr); err != nil {
		t.Fatalf("decoding tool_result payload: %v", err)
	}
	if tr.CallID != "call-1" {
		t.Errorf("expected call_id=call-1, got %q", tr.CallID)
	}
}

func TestWriter_OpenAppendsToExistingFile(t *testing.T) {
	dir := t.TempDir()
	threadID := uuid.NewString()
	now := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)

	w, err := Create(dir, threadID, SessionMeta{ThreadID: threadID, CWD: "/work", CreatedAt: now}, now)
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	path := w.Path()
	if err := w.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("Open returned error: %v", err)
	}
	if err := reopened.Append(TypeEventMsg, map[string]string{"kind": "resumed"}, now.Add(time.Minute)); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}
	if err := reopened.Close(); err != nil {
		t.Fatalf("Close returned error: %v", err)
	}

	records, err := ReadAll(path)
	if err != nil {
		t.Fatalf("ReadAll returned error: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("expected 2 records after reopen+append, got %d", len(records))
	}
}

func TestThreadIDFromPath(t *testing.T) {
	now := time.Date(2026, 7, 30, 9, 30, 0, 0, time.UTC)
	id := uuid.NewString()
	name := FileName(now, id)

	got, err := ThreadIDFromPath(filepath.Join("/some/dir", name))
	if err != nil {
		t.Fatalf("ThreadIDFromPath returned error: %v", err)
	}
	if got != id {
		t.Errorf("expected thread id %q, got %q", id, got)
	}
}

func TestThreadIDFromPath_RejectsUnrecognizedName(t *testing.T) {
	_, err := ThreadIDFromPath("/some/dir/not-a-rollout-file.jsonl")
	if err == nil {
		t.Fatalf("expected an error for an unrecognized filename")
	}
}
