package patchapply

import (
	"reflect"
	"testing"
)

// TestBuildInvocation_UserApprovedNoSandboxNeeded is spec.md §8 seed
// scenario 1 verbatim.
func TestBuildInvocation_UserApprovedNoSandboxNeeded(t *testing.T) {
	patch := "*** Begin Patch\n*** End Patch"
	program, argv := BuildInvocation("/usr/local/bin/codex", "cli.cjs", patch)

	if program != "/usr/local/bin/codex" {
		t.Errorf("expected program %q, got %q", "/usr/local/bin/codex", program)
	}
	want := []string{ApplyPatchFlag, patch}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("expected argv %v, got %v (entrypoint must be ignored for a non-node stem)", want, argv)
	}
}

// TestBuildInvocation_NodeEmbedding is spec.md §8 seed scenario 2 verbatim.
func TestBuildInvocation_NodeEmbedding(t *testing.T) {
	patch := "*** Begin Patch\n*** End Patch"
	program, argv := BuildInvocation("/usr/local/bin/node", "/app/cli.cjs", patch)

	if program != "/usr/local/bin/node" {
		t.Errorf("expected program %q, got %q", "/usr/local/bin/node", program)
	}
	want := []string{"/app/cli.cjs", ApplyPatchFlag, patch}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("expected argv %v, got %v", want, argv)
	}
}

func TestBuildInvocation_NodejsStemAlsoTreatedAsEmbedding(t *testing.T) {
	_, argv := BuildInvocation("/usr/bin/nodejs", "/app/cli.cjs", "patch-text")
	want := []string{"/app/cli.cjs", ApplyPatchFlag, "patch-text"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("expected argv %v, got %v", want, argv)
	}
}

func TestBuildInvocation_NodeStemWithoutEntrypointOmitsIt(t *testing.T) {
	_, argv := BuildInvocation("/usr/local/bin/node", "", "patch-text")
	want := []string{ApplyPatchFlag, "patch-text"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("expected argv %v when entrypoint is empty, got %v", want, argv)
	}
}

func TestBuildInvocation_ExtensionStripped(t *testing.T) {
	// filepath.Ext strips a trailing extension so the stem comparison still
	// matches "node" even when the binary is invoked with one.
	_, argv := BuildInvocation("/usr/local/bin/node.exe", "cli.cjs", "patch-text")
	want := []string{"cli.cjs", ApplyPatchFlag, "patch-text"}
	if !reflect.DeepEqual(argv, want) {
		t.Errorf("expected argv %v, got %v", want, argv)
	}
}
