package turn

import (
	"context"
	"encoding/json"
	"errors"
	"os"

	"github.com/samsaffron/agentkernel/internal/approval"
	"github.com/samsaffron/agentkernel/internal/llm"
	"github.com/samsaffron/agentkernel/internal/patchapply"
	"github.com/samsaffron/agentkernel/internal/sandbox"
	"github.com/samsaffron/agentkernel/internal/tools"
)

var errDenied = errors.New("denied by approval policy")

// PatchApplyArgs is the function-call payload for the patch-apply tool.
type PatchApplyArgs struct {
	Patch string `json:"patch"`
}

// patchApprovalKey is patch-apply's ApprovalKey: (patch text, cwd), per
// spec.md §4.5 — distinct from shell-exec's (argv, cwd) key since a patch
// has no argv to canonicalize.
type patchApprovalKey struct {
	patch string
	cwd   string
}

// PatchApplyHandler runs patch application as a re-invocation of the host
// binary through the sandbox runner, rather than mutating files in this
// process directly. This gives patch application the same Idle->Building->
// Approving->Attempting->Retrying->Reporting cycle and sandbox-tier
// escalation as shell-exec instead of a separate unsandboxed path.
type PatchApplyHandler struct {
	runner         *sandbox.Runner
	hostBinary     string
	nodeEntrypoint string // from CODEX_NODE_CLI_ENTRYPOINT, only consulted for a node/nodejs host binary
	sandboxPolicy  sandbox.Policy
	sandboxPref    sandbox.Preference
	cwd            string
	approval       *tools.ApprovalManager
	approvalCache  *approval.Cache
}

// NewPatchApplyHandler builds a handler that re-invokes hostBinary (the
// running executable's own path) with ApplyPatchFlag to apply a patch.
// approvalMgr backs approval prompts (nil approves every request, matching
// ApprovalManager's own yolo-mode default); approvalCache is the
// session-scoped sandbox approval cache shared with ShellTool, so an
// ApprovedForSession decision made for one sandboxed tool is never
// downgraded back to a prompt for the other.
func NewPatchApplyHandler(hostBinary, nodeEntrypoint, cwd string, policy sandbox.Policy, pref sandbox.Preference, approvalMgr *tools.ApprovalManager, approvalCache *approval.Cache) *PatchApplyHandler {
	return &PatchApplyHandler{
		runner:         sandbox.NewRunner(),
		hostBinary:     hostBinary,
		nodeEntrypoint: nodeEntrypoint,
		sandboxPolicy:  policy,
		sandboxPref:    pref,
		cwd:            cwd,
		approval:       approvalMgr,
		approvalCache:  approvalCache,
	}
}

func (h *PatchApplyHandler) Kind() PayloadKind { return KindFunction }

func (h *PatchApplyHandler) MatchesKind(p Payload) bool { return p.Kind == KindFunction }

// IsMutating is always true: patch application always writes files.
func (h *PatchApplyHandler) IsMutating(inv *ToolInvocation) bool { return true }

func (h *PatchApplyHandler) Handle(ctx context.Context, inv *ToolInvocation) (llm.ToolOutput, error) {
	var args PatchApplyArgs
	if err := json.Unmarshal(inv.Payload.Arguments, &args); err != nil {
		return llm.TextOutput("invalid patch-apply arguments: " + err.Error()), nil
	}
	if args.Patch == "" {
		return llm.TextOutput("patch is required"), nil
	}

	program, argv := patchapply.BuildInvocation(h.hostBinary, h.nodeEntrypoint, args.Patch)
	spec := sandbox.CommandSpec{
		Program: program,
		Argv:    argv,
		Cwd:     h.cwd,
	}
	key := patchApprovalKey{patch: args.Patch, cwd: h.cwd}

	out, err := h.attempt(ctx, spec, key)
	if err != nil {
		if execErr, ok := err.(*sandbox.ExecError); ok && execErr.Kind == sandbox.SandboxDenied {
			return llm.ToolOutput{}, newCallError(SandboxDenied, "patch apply denied by sandbox: %v", execErr)
		}
		return llm.TextOutput("patch apply failed: " + err.Error()), nil
	}

	if out.ExitCode != 0 {
		return llm.ToolOutput{Content: string(out.Stderr), SuccessForLogging: false, LogPreview: "patch apply exited non-zero"}, nil
	}

	return llm.ToolOutput{Content: string(out.Stdout), SuccessForLogging: true, LogPreview: "patch applied"}, nil
}

// attempt runs spec.md §4.2 rule 3 / testable property 5's two-attempt state
// machine: Building (spec is already built by the caller) -> Approving (only
// if the decision table says so) -> Attempting; on a first-attempt
// SandboxDenied with escalate_on_failure=true and policy != Never, it
// re-consults the decision table with prior=OutcomeSandboxDenied and, if
// granted, Retries at the escalated tier.
func (h *PatchApplyHandler) attempt(ctx context.Context, spec sandbox.CommandSpec, key patchApprovalKey) (sandbox.CommandOutput, error) {
	decision := sandbox.Decide(h.sandboxPolicy, h.sandboxPref, true, sandbox.OutcomeNone, false, false)

	if decision.NeedsApproval && !h.requestApproval(key) {
		return sandbox.CommandOutput{}, &sandbox.ExecError{Kind: sandbox.SandboxDenied, Err: errDenied}
	}

	out, err := h.runner.Execute(ctx, spec, decision.Tier, nil)
	if err == nil {
		return out, nil
	}

	execErr, ok := err.(*sandbox.ExecError)
	if !ok || execErr.Kind != sandbox.SandboxDenied {
		return out, err
	}

	retry := sandbox.Decide(h.sandboxPolicy, h.sandboxPref, true, sandbox.OutcomeSandboxDenied, false, false)
	if retry.Denied {
		return out, err
	}
	if retry.NeedsApproval && !h.requestApproval(key) {
		return out, err
	}

	return h.runner.Execute(ctx, spec, retry.Tier, nil)
}

// requestApproval consults the shared session approval cache for key,
// computing a fresh decision (via the teacher's CheckPathApproval) only on a
// cache miss. A previously recorded ApprovedForSession decision is never
// downgraded back to a prompt.
func (h *PatchApplyHandler) requestApproval(key patchApprovalKey) bool {
	if h.approvalCache == nil {
		return h.promptApproval(key)
	}
	decision := h.approvalCache.WithCachedApproval(key, func() approval.Decision {
		return h.promptApproval(key)
	})
	return decision == approval.Approved || decision == approval.ApprovedForSession
}

// promptApproval adapts the teacher's ApprovalManager (path allowlists,
// yolo mode, interactive TTY prompt) into the spec-level approval.Decision
// vocabulary the cache and dispatcher deal in. Patch-apply has no shell
// command to pattern-match against, so it reuses the write-path approval
// check keyed on the handler's cwd instead.
func (h *PatchApplyHandler) promptApproval(key patchApprovalKey) approval.Decision {
	if h.approval == nil {
		return approval.Approved
	}
	outcome, err := h.approval.CheckPathApproval(PatchApplyToolName, key.cwd, "apply patch", true)
	if err != nil || outcome == tools.Cancel {
		return approval.Denied
	}
	if outcome == tools.ProceedAlways || outcome == tools.ProceedAlwaysAndSave {
		return approval.ApprovedForSession
	}
	return approval.Approved
}

// defaultHostBinary resolves the running executable's own path for
// self-invocation, falling back to argv[0] if the resolution fails.
func defaultHostBinary() string {
	if exe, err := os.Executable(); err == nil {
		return exe
	}
	if len(os.Args) > 0 {
		return os.Args[0]
	}
	return ""
}
