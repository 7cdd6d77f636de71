// Package rollout implements the rollout writer contract from spec.md §2/§6:
// an append-only, crash-safe JSONL log that is the source of truth for one
// thread's history. Writes for a given thread are serialized through a
// single *Writer instance guarded by a mutex, mirroring the teacher's
// internal/session.LoggingStore's single-mutex-guarded-writer shape rather
// than introducing a goroutine/channel actor this module has no other use
// for.
package rollout

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RecordType discriminates Record.Payload.
type RecordType string

const (
	TypeSessionMeta  RecordType = "session_meta"
	TypeEventMsg     RecordType = "event_msg"
	TypeResponseItem RecordType = "response_item"
	TypeToolResult   RecordType = "tool_result"
)

// Record is one JSONL line. Payload is left as json.RawMessage so that
// readers can pass through record types they don't recognize (spec.md §6:
// "subsequent readers treat records without a recognized type as opaque
// pass-through").
type Record struct {
	Timestamp time.Time       `json:"timestamp"`
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
}

// SessionMeta is the payload of the always-first session_meta record.
type SessionMeta struct {
	ThreadID  string    `json:"thread_id"`
	CWD       string    `json:"cwd"`
	Provider  string    `json:"provider,omitempty"`
	Model     string    `json:"model,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// fsyncEvery bounds how many records may be buffered before a forced fsync,
// so a crash loses at most the trailing record (spec.md §9).
const fsyncEvery = 1

// Writer appends Records to one thread's rollout file.
type Writer struct {
	mu       sync.Mutex
	file     *os.File
	buf      *bufio.Writer
	path     string
	unsynced int
	wroteMeta bool
}

// FileName returns the rollout-<UTC-timestamp>-<uuid>.jsonl filename for a
// thread created at ts.
func FileName(ts time.Time, threadID string) string {
	stamp := ts.UTC().Format("2006-01-02T15-04-05")
	return fmt.Sprintf("rollout-%s-%s.jsonl", stamp, threadID)
}

// Create opens a new rollout file for threadID under dir, writing the
// session_meta record first. threadID must already be a valid UUID string
// (callers mint it via session.NewID, which wraps google/uuid).
func Create(dir string, threadID string, meta SessionMeta, now time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("rollout: create dir: %w", err)
	}
	path := filepath.Join(dir, FileName(now, threadID))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: create file: %w", err)
	}
	w := &Writer{file: f, buf: bufio.NewWriter(f), path: path}
	if err := w.appendLocked(TypeSessionMeta, meta, now); err != nil {
		f.Close()
		return nil, err
	}
	w.wroteMeta = true
	return w, nil
}

// Open reopens an existing rollout file for appending (e.g. resume_from_rollout).
func Open(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("rollout: open file: %w", err)
	}
	return &Writer{file: f, buf: bufio.NewWriter(f), path: path, wroteMeta: true}, nil
}

// Path returns the rollout file's path on disk.
func (w *Writer) Path() string { return w.path }

// Append writes one record of recordType carrying payload, marshaled to
// JSON, at timestamp now.
func (w *Writer) Append(recordType RecordType, payload any, now time.Time) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.appendLocked(recordType, payload, now)
}

func (w *Writer) appendLocked(recordType RecordType, payload any, now time.Time) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("rollout: marshal payload: %w", err)
	}
	rec := Record{Timestamp: now.UTC(), Type: string(recordType), Payload: body}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("rollout: marshal record: %w", err)
	}
	if _, err := w.buf.Write(line); err != nil {
		return fmt.Errorf("rollout: write: %w", err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return fmt.Errorf("rollout: write: %w", err)
	}
	w.unsynced++
	if w.unsynced >= fsyncEvery {
		if err := w.syncLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) syncLocked() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("rollout: flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("rollout: fsync: %w", err)
	}
	w.unsynced = 0
	return nil
}

// Close flushes and closes the underlying file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.syncLocked(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}

// ReadAll reads every record from a rollout file in write order, for
// resume_from_rollout and the "write then re-read round-trips" testable
// property.
func ReadAll(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("rollout: open for read: %w", err)
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, fmt.Errorf("rollout: decode record: %w", err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("rollout: scan: %w", err)
	}
	return records, nil
}

// ThreadIDFromPath derives the conversation id from a rollout filename stem,
// per spec.md §6 ("a conversation id is derivable from the filename stem").
func ThreadIDFromPath(path string) (string, error) {
	base := filepath.Base(path)
	const prefix = "rollout-"
	if len(base) < len(prefix) || base[:len(prefix)] != prefix {
		return "", fmt.Errorf("rollout: unrecognized filename %q", base)
	}
	stem := base[len(prefix):]
	ext := filepath.Ext(stem)
	stem = stem[:len(stem)-len(ext)]
	// stem is "<UTC-timestamp>-<uuid>"; the uuid is the last 36 characters.
	if len(stem) < 36 {
		return "", fmt.Errorf("rollout: unrecognized filename %q", base)
	}
	id := stem[len(stem)-36:]
	if _, err := uuid.Parse(id); err != nil {
		return "", fmt.Errorf("rollout: filename %q does not end in a uuid: %w", base, err)
	}
	return id, nil
}
