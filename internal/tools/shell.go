package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/samsaffron/agentkernel/internal/approval"
	"github.com/samsaffron/agentkernel/internal/llm"
	"github.com/samsaffron/agentkernel/internal/sandbox"
)

// ShellTool implements the shell tool. Execution itself goes through
// internal/sandbox's CommandSpec/Decide/Runner rather than a direct
// exec.CommandContext call, so shell-exec follows the same Idle->Building->
// Approving->Attempting->Retrying->Reporting cycle and sandbox-tier
// escalation as patch-apply, instead of a separate unsandboxed path gated
// only by path/pattern approval.
type ShellTool struct {
	approval      *ApprovalManager
	config        *ToolConfig
	limits        OutputLimits
	shellPath     string
	runner        *sandbox.Runner
	approvalCache *approval.Cache
	sandboxPolicy sandbox.Policy
	sandboxPref   sandbox.Preference
}

// NewShellTool creates a new ShellTool. approvalCache is the session-scoped
// sandbox approval cache (internal/approval); a nil cache means every
// sandbox-required attempt re-prompts (no ApprovedForSession memo).
func NewShellTool(approvalMgr *ApprovalManager, config *ToolConfig, limits OutputLimits, approvalCache *approval.Cache, policy sandbox.Policy, pref sandbox.Preference) *ShellTool {
	return &ShellTool{
		approval:      approvalMgr,
		config:        config,
		limits:        limits,
		shellPath:     detectShell(),
		runner:        sandbox.NewRunner(),
		approvalCache: approvalCache,
		sandboxPolicy: policy,
		sandboxPref:   pref,
	}
}

// shellApprovalKey is shell-exec's ApprovalKey: (canonicalized argv, cwd),
// per spec.md §4.5.
type shellApprovalKey struct {
	command string
	cwd     string
}

// EnvMap is a string-to-string map that can unmarshal both the standard JSON
// object form ({"KEY":"val"}) used by non-strict providers, and the array
// form ([{"key":"KEY","value":"val"}]) emitted by OpenAI strict-mode schemas
// where additionalProperties must be false.
type EnvMap map[string]string

// UnmarshalJSON implements json.Unmarshaler.
func (e *EnvMap) UnmarshalJSON(data []byte) error {
	// Try array of key/value pairs first (Responses API strict-mode form).
	var pairs []struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(data, &pairs); err == nil {
		m := make(map[string]string, len(pairs))
		for _, p := range pairs {
			if p.Key == "" {
				return fmt.Errorf("env pair has empty key")
			}
			m[p.Key] = p.Value
		}
		*e = m
		return nil
	}
	// Fall back to plain map (Chat Completions / non-strict form).
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return err
	}
	*e = m
	return nil
}

// ShellArgs are the arguments for the shell tool.
type ShellArgs struct {
	Command        string `json:"command"`
	WorkingDir     string `json:"working_dir,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Env            EnvMap `json:"env,omitempty"`
	Description    string `json:"description,omitempty"`
}

// ShellResult contains the result of a shell command.
type ShellResult struct {
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
	TimedOut bool   `json:"timed_out,omitempty"`
}

func (t *ShellTool) Spec() llm.ToolSpec {
	return llm.ToolSpec{
		Name:        ShellToolName,
		Description: "Execute a shell command. Returns stdout, stderr, and exit code.",
		Schema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"command": map[string]interface{}{
					"type":        "string",
					"description": "Shell command to execute",
				},
				"working_dir": map[string]interface{}{
					"type":        "string",
					"description": "Working directory (defaults to current directory)",
				},
				"timeout_seconds": map[string]interface{}{
					"type":        "integer",
					"description": "Command timeout in seconds (default: 30, max: 300)",
					"default":     30,
				},
				"env": map[string]interface{}{
					"type":                 "object",
					"description":          "Environment variables to set for the command",
					"additionalProperties": map[string]interface{}{"type": "string"},
				},
				"description": map[string]interface{}{
					"type":        "string",
					"description": "Optional short human-readable label (â‰¤10 words) describing what this command does",
				},
			},
			"required":             []string{"command"},
			"additionalProperties": false,
		},
	}
}

func (t *ShellTool) Preview(args json.RawMessage) string {
	var a ShellArgs
	if err := json.Unmarshal(args, &a); err != nil || a.Command == "" {
		return ""
	}
	if a.Description != "" {
		desc := a.Description
		runes := []rune(desc)
		if len(runes) > 100 {
			desc = string(runes[:97]) + "..."
		}
		return desc
	}
	cmd := a.Command
	if len(cmd) > 50 {
		cmd = cmd[:47] + "..."
	}
	return cmd
}

func (t *ShellTool) Execute(ctx context.Context, args json.RawMessage) (llm.ToolOutput, error) {
	warning := WarnUnknownParams(args, []string{"command", "working_dir", "timeout_seconds", "description", "env"})
	textOutput := func(message string) llm.ToolOutput {
		return llm.TextOutput(warning + message)
	}

	var a ShellArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return textOutput(formatToolError(NewToolError(ErrInvalidParams, err.Error()))), nil
	}

	if a.Command == "" {
		return textOutput(formatToolError(NewToolError(ErrInvalidParams, "command is required"))), nil
	}

	// Set timeout
	timeout := 30
	if a.TimeoutSeconds > 0 {
		timeout = a.TimeoutSeconds
	}
	if timeout > 300 {
		timeout = 300
	}

	// Set working directory
	workDir := a.WorkingDir
	if workDir == "" {
		var err error
		workDir, err = os.Getwd()
		if err != nil {
			return textOutput(formatToolError(NewToolErrorf(ErrExecutionFailed, "cannot get working directory: %v", err))), nil
		}
	}

	spec := sandbox.CommandSpec{
		Program: t.shellPath,
		Argv:    []string{"-c", a.Command},
		Cwd:     workDir,
		Env:     t.buildEnv(a.Env),
		Timeout: time.Duration(timeout) * time.Second,
	}
	key := shellApprovalKey{command: a.Command, cwd: workDir}

	out, err := t.attempt(ctx, spec, key)
	if err != nil {
		if execErr, ok := err.(*sandbox.ExecError); ok {
			switch execErr.Kind {
			case sandbox.TimedOut:
				result := ShellResult{Stdout: string(out.Stdout), Stderr: string(out.Stderr), TimedOut: true}
				return textOutput(formatShellResult(result, t.limits)), nil
			case sandbox.Cancelled:
				return textOutput(formatToolError(NewToolErrorf(ErrExecutionFailed, "command cancelled: %v", execErr))), nil
			default:
				return textOutput(formatToolError(NewToolErrorf(ErrExecutionFailed, "command error: %v", execErr))), nil
			}
		}
		return textOutput(formatToolError(NewToolErrorf(ErrPermissionDenied, "%v", err))), nil
	}

	result := ShellResult{
		Stdout:   string(out.Stdout),
		Stderr:   string(out.Stderr),
		ExitCode: out.ExitCode,
	}
	return textOutput(formatShellResult(result, t.limits)), nil
}

// attempt runs spec.md §4.5's two-attempt state machine: Building (spec is
// already built by the caller) -> Approving (only if the decision table
// says so) -> Attempting; on a SandboxDenied first attempt, re-consults the
// decision table with prior=OutcomeSandboxDenied and, if escalation is
// permitted, Retries at the escalated tier after a second Approving pass.
func (t *ShellTool) attempt(ctx context.Context, spec sandbox.CommandSpec, key shellApprovalKey) (sandbox.CommandOutput, error) {
	wantsApproval := t.sandboxPolicy == sandbox.PolicyUntrusted
	decision := sandbox.Decide(t.sandboxPolicy, t.sandboxPref, true, sandbox.OutcomeNone, wantsApproval, false)

	if decision.NeedsApproval && !t.requestApproval(key) {
		return sandbox.CommandOutput{}, fmt.Errorf("command denied by approval policy: %s", truncateCommand(key.command))
	}

	out, err := t.runner.Execute(ctx, spec, decision.Tier, nil)
	if err == nil {
		return out, nil
	}

	execErr, ok := err.(*sandbox.ExecError)
	if !ok || execErr.Kind != sandbox.SandboxDenied {
		return out, err
	}

	retry := sandbox.Decide(t.sandboxPolicy, t.sandboxPref, true, sandbox.OutcomeSandboxDenied, false, false)
	if retry.Denied {
		return out, err
	}
	if retry.NeedsApproval && !t.requestApproval(key) {
		return out, err
	}

	return t.runner.Execute(ctx, spec, retry.Tier, nil)
}

// requestApproval consults the session approval cache for key, computing a
// fresh decision (via the teacher's interactive/pattern-based
// CheckShellApproval) only on a cache miss. A previously recorded
// ApprovedForSession decision is never downgraded back to a prompt.
func (t *ShellTool) requestApproval(key shellApprovalKey) bool {
	if t.approvalCache == nil {
		decision := t.promptApproval(key.command)
		return decision == approval.Approved || decision == approval.ApprovedForSession
	}
	decision := t.approvalCache.WithCachedApproval(key, func() approval.Decision {
		return t.promptApproval(key.command)
	})
	return decision == approval.Approved || decision == approval.ApprovedForSession
}

// promptApproval adapts the teacher's ApprovalManager (path/pattern
// allowlists, yolo mode, interactive TTY prompt) into the spec-level
// approval.Decision vocabulary the cache and dispatcher deal in.
func (t *ShellTool) promptApproval(command string) approval.Decision {
	if t.approval == nil {
		return approval.Approved
	}
	outcome, err := t.approval.CheckShellApproval(command)
	if err != nil || outcome == Cancel {
		return approval.Denied
	}
	if outcome == ProceedAlways || outcome == ProceedAlwaysAndSave {
		return approval.ApprovedForSession
	}
	return approval.Approved
}

// buildEnv renders the shell tool's env overrides on top of the process
// environment into the map sandbox.CommandSpec expects, preserving the
// teacher's override semantics (explicit env entries shadow inherited
// ones) now that the spec is built once up front instead of mutated onto
// an exec.Cmd directly.
func (t *ShellTool) buildEnv(overrides EnvMap) map[string]string {
	env := make(map[string]string, len(os.Environ())+len(overrides))
	for _, e := range os.Environ() {
		if k, v, ok := strings.Cut(e, "="); ok {
			env[k] = v
		}
	}
	for k, v := range overrides {
		env[k] = v
	}
	return env
}

// formatShellResult formats the shell result for the LLM.
func formatShellResult(result ShellResult, limits OutputLimits) string {
	var sb strings.Builder

	// Truncate output if needed
	stdout := result.Stdout
	stderr := result.Stderr
	truncated := false

	if int64(len(stdout)) > limits.MaxBytes {
		stdout = stdout[:limits.MaxBytes]
		truncated = true
	}
	if int64(len(stderr)) > limits.MaxBytes {
		stderr = stderr[:limits.MaxBytes]
		truncated = true
	}

	if result.TimedOut {
		sb.WriteString("[Command timed out]\n\n")
	}

	if stdout != "" {
		sb.WriteString("stdout:\n")
		sb.WriteString(stdout)
		if !strings.HasSuffix(stdout, "\n") {
			sb.WriteString("\n")
		}
	}

	if stderr != "" {
		if stdout != "" {
			sb.WriteString("\n")
		}
		sb.WriteString("stderr:\n")
		sb.WriteString(stderr)
		if !strings.HasSuffix(stderr, "\n") {
			sb.WriteString("\n")
		}
	}

	sb.WriteString(fmt.Sprintf("\nexit_code: %d", result.ExitCode))

	if truncated {
		sb.WriteString("\n\n[Output truncated due to size limit]")
	}

	return sb.String()
}

// detectShell returns the user's shell.
func detectShell() string {
	shell := os.Getenv("SHELL")
	if shell == "" {
		return "bash"
	}
	// Use full path for execution
	return shell
}

// truncateCommand truncates a command for error messages.
func truncateCommand(cmd string) string {
	if len(cmd) > 50 {
		return cmd[:47] + "..."
	}
	return cmd
}
