package patchapply

import (
	"os"
	"path/filepath"
	"testing"
)

func TestApply_ModifiesFileInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hello.txt")
	if err := os.WriteFile(path, []byte("line one\nline two\nline three\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	patch := "--- a/hello.txt\n" +
		"+++ b/hello.txt\n" +
		"@@ -1,3 +1,3 @@\n" +
		" line one\n" +
		"-line two\n" +
		"+line TWO\n" +
		" line three\n"

	results, err := Apply(dir, patch)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Applied {
		t.Errorf("expected the hunk to be applied, warnings: %v", results[0].Warnings)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading result: %v", err)
	}
	want := "line one\nline TWO\nline three\n"
	if string(got) != want {
		t.Errorf("expected content %q, got %q", want, string(got))
	}
}

func TestApply_MissingFileWarns(t *testing.T) {
	dir := t.TempDir()
	patch := "--- a/missing.txt\n" +
		"+++ b/missing.txt\n" +
		"@@ -1,1 +1,1 @@\n" +
		"-old\n" +
		"+new\n"

	results, err := Apply(dir, patch)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Applied {
		t.Errorf("expected Applied=false for a missing file")
	}
	if len(results[0].Warnings) == 0 {
		t.Errorf("expected a warning for a missing file")
	}
}

func TestApply_NoOpHunkLeavesApplyFalse(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "same.txt")
	if err := os.WriteFile(path, []byte("unchanged\n"), 0o644); err != nil {
		t.Fatalf("setup: %v", err)
	}

	patch := "--- a/same.txt\n" +
		"+++ b/same.txt\n" +
		"@@ -1,1 +1,1 @@\n" +
		" unchanged\n"

	results, err := Apply(dir, patch)
	if err != nil {
		t.Fatalf("Apply returned error: %v", err)
	}
	if results[0].Applied {
		t.Errorf("expected Applied=false when content is unchanged")
	}
}
