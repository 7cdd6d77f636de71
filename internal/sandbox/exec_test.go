package sandbox

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestRunner_Execute_Success(t *testing.T) {
	r := NewRunner()
	out, err := r.Execute(context.Background(), CommandSpec{
		Program: "/bin/sh",
		Argv:    []string{"-c", "echo hello"},
	}, TierUnrestricted, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out.Stdout), "hello") {
		t.Errorf("expected stdout to contain 'hello', got %q", out.Stdout)
	}
	if out.ExitCode != 0 {
		t.Errorf("expected exit code 0, got %d", out.ExitCode)
	}
}

func TestRunner_Execute_NonZeroExit(t *testing.T) {
	r := NewRunner()
	out, err := r.Execute(context.Background(), CommandSpec{
		Program: "/bin/sh",
		Argv:    []string{"-c", "exit 7"},
	}, TierUnrestricted, nil)
	if err != nil {
		t.Fatalf("a plain non-zero exit must not be an ExecError: %v", err)
	}
	if out.ExitCode != 7 {
		t.Errorf("expected exit code 7, got %d", out.ExitCode)
	}
}

func TestRunner_Execute_Timeout(t *testing.T) {
	r := NewRunner()
	_, err := r.Execute(context.Background(), CommandSpec{
		Program: "/bin/sh",
		Argv:    []string{"-c", "sleep 5"},
		Timeout: 50 * time.Millisecond,
	}, TierUnrestricted, nil)
	execErr, ok := err.(*ExecError)
	if !ok {
		t.Fatalf("expected *ExecError, got %v (%T)", err, err)
	}
	if execErr.Kind != TimedOut {
		t.Errorf("expected TimedOut, got %v", execErr.Kind)
	}
}

func TestRunner_Execute_ContextCancelled(t *testing.T) {
	r := NewRunner()
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	out, err := r.Execute(ctx, CommandSpec{
		Program: "/bin/sh",
		Argv:    []string{"-c", "sleep 5"},
	}, TierUnrestricted, nil)
	execErr, ok := err.(*ExecError)
	if !ok {
		t.Fatalf("expected *ExecError, got %v (%T)", err, err)
	}
	if execErr.Kind != Cancelled {
		t.Errorf("expected Cancelled, got %v", execErr.Kind)
	}
	if !out.Cancelled {
		t.Errorf("expected CommandOutput.Cancelled = true")
	}
}

func TestRunner_Execute_SpawnFailed(t *testing.T) {
	r := NewRunner()
	_, err := r.Execute(context.Background(), CommandSpec{
		Program: "/no/such/binary-ever",
		Argv:    []string{},
	}, TierUnrestricted, nil)
	execErr, ok := err.(*ExecError)
	if !ok {
		t.Fatalf("expected *ExecError, got %v (%T)", err, err)
	}
	if execErr.Kind != SpawnFailed {
		t.Errorf("expected SpawnFailed, got %v", execErr.Kind)
	}
}

func TestRunner_Execute_EmptyProgram(t *testing.T) {
	r := NewRunner()
	_, err := r.Execute(context.Background(), CommandSpec{}, TierUnrestricted, nil)
	execErr, ok := err.(*ExecError)
	if !ok {
		t.Fatalf("expected *ExecError, got %v (%T)", err, err)
	}
	if execErr.Kind != SpawnFailed {
		t.Errorf("expected SpawnFailed, got %v", execErr.Kind)
	}
}

func TestRunner_Execute_SandboxDeniedOnlyUnderRestrictedTier(t *testing.T) {
	// deniedExitCode (126) only triggers SandboxDenied classification when
	// tier == TierRestricted; under Unrestricted it is just a normal
	// non-zero exit code.
	r := NewRunner()
	out, err := r.Execute(context.Background(), CommandSpec{
		Program: "/bin/sh",
		Argv:    []string{"-c", "exit 126"},
	}, TierUnrestricted, nil)
	if err != nil {
		t.Fatalf("exit 126 under Unrestricted must not be an ExecError: %v", err)
	}
	if out.ExitCode != 126 {
		t.Errorf("expected exit code 126, got %d", out.ExitCode)
	}
}

func TestRunner_Execute_SandboxDeniedUnderRestrictedTier(t *testing.T) {
	r := NewRunner()
	_, err := r.Execute(context.Background(), CommandSpec{
		Program: "/bin/sh",
		Argv:    []string{"-c", "exit 126"},
	}, TierRestricted, nil)
	execErr, ok := err.(*ExecError)
	if !ok {
		t.Fatalf("expected *ExecError, got %v (%T)", err, err)
	}
	if execErr.Kind != SandboxDenied {
		t.Errorf("expected SandboxDenied, got %v", execErr.Kind)
	}
}

func TestRunner_Execute_EnvDoesNotInheritParent(t *testing.T) {
	// buildEnv renders only spec.Env; the parent process's environment
	// (e.g. PATH) is never inherited implicitly.
	r := NewRunner()
	out, err := r.Execute(context.Background(), CommandSpec{
		Program: "/usr/bin/env",
		Argv:    []string{},
	}, TierUnrestricted, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.TrimSpace(string(out.Stdout)) != "" {
		t.Errorf("expected empty environment, got: %q", out.Stdout)
	}
}

func TestRunner_Execute_EnvOverridesApplied(t *testing.T) {
	r := NewRunner()
	out, err := r.Execute(context.Background(), CommandSpec{
		Program: "/bin/sh",
		Argv:    []string{"-c", "echo $FOO"},
		Env:     map[string]string{"FOO": "bar123"},
	}, TierUnrestricted, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(string(out.Stdout), "bar123") {
		t.Errorf("expected env override to be visible, got %q", out.Stdout)
	}
}

func TestRunner_Execute_StdoutStreamTee(t *testing.T) {
	r := NewRunner()
	var streamed strings.Builder
	out, err := r.Execute(context.Background(), CommandSpec{
		Program: "/bin/sh",
		Argv:    []string{"-c", "echo streamed-output"},
	}, TierUnrestricted, &streamed)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(streamed.String(), "streamed-output") {
		t.Errorf("expected stdoutStream to receive output, got %q", streamed.String())
	}
	if !strings.Contains(string(out.Stdout), "streamed-output") {
		t.Errorf("expected CommandOutput.Stdout to still be populated, got %q", out.Stdout)
	}
}
