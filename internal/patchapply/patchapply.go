// Package patchapply builds the self-invocation command line the
// patch-apply tool runs through the sandbox runner rather than editing
// files in-process. Running through a real subprocess lets the shell-exec
// sandboxing path apply uniformly to patch application instead of carving
// out a separate code path for it.
package patchapply

import (
	"path/filepath"
	"strings"
)

// ApplyPatchFlag is the sentinel argument the host binary recognizes on
// re-invocation to mean "apply this patch and exit" instead of starting a
// normal session.
const ApplyPatchFlag = "--codex-run-as-apply-patch"

// BuildInvocation constructs the (program, argv) pair for re-invoking the
// host binary to apply patchText.
//
// When hostBinary's basename (stripped of extension) is "node" or
// "nodejs", the binary is a generic JS runtime rather than the packaged
// CLI itself, so the real entrypoint script path must be inserted as
// argv[0] ahead of the sentinel flag; entrypoint is read from the
// CODEX_NODE_CLI_ENTRYPOINT environment knob by the caller and passed in
// here. For every other host binary stem, entrypoint is ignored: the
// binary already knows its own entrypoint.
func BuildInvocation(hostBinary, entrypoint, patchText string) (program string, argv []string) {
	stem := strings.TrimSuffix(filepath.Base(hostBinary), filepath.Ext(hostBinary))

	var out []string
	if (stem == "node" || stem == "nodejs") && entrypoint != "" {
		out = append(out, entrypoint)
	}
	out = append(out, ApplyPatchFlag, patchText)
	return hostBinary, out
}
