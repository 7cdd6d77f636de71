package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/samsaffron/agentkernel/internal/approval"
	"github.com/samsaffron/agentkernel/internal/config"
	"github.com/samsaffron/agentkernel/internal/events"
	"github.com/samsaffron/agentkernel/internal/llm"
	"github.com/samsaffron/agentkernel/internal/patchapply"
	"github.com/samsaffron/agentkernel/internal/rollout"
	"github.com/samsaffron/agentkernel/internal/sandbox"
	"github.com/samsaffron/agentkernel/internal/session"
	"github.com/samsaffron/agentkernel/internal/skills"
	"github.com/samsaffron/agentkernel/internal/tools"
	"github.com/samsaffron/agentkernel/internal/turn"
	"github.com/spf13/cobra"
)

var (
	providerFlag string
	modelFlag    string
	debugFlag    bool
	skillFlag    string
)

var rootCmd = &cobra.Command{
	Use:   "agentkernel [prompt]",
	Short: "Run one agent turn over the local tool set",
	Long: `agentkernel drives a single conversation turn against a configured
model provider, dispatching any tool calls the model makes through the
local tool registry and printing the resulting thread events.

Examples:
  agentkernel "list the go files under internal/ and summarize them"
  agentkernel --provider openai --model gpt-5.2 "fix the failing test"`,
	Args: cobra.ArbitraryArgs,
	RunE: run,
}

func init() {
	rootCmd.Flags().StringVar(&providerFlag, "provider", "", "Override the configured default provider")
	rootCmd.Flags().StringVar(&modelFlag, "model", "", "Override the configured model")
	rootCmd.Flags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug-level logging (one line per tool dispatch)")
	rootCmd.Flags().StringVar(&skillFlag, "skill", "", "Path to a skill file whose instructions are injected ahead of the prompt")
}

func main() {
	// Self-invocation path: re-exec'd by PatchApplyHandler to apply a patch
	// out of the main process, under the sandbox runner. Recognized ahead of
	// cobra parsing since the flag is not meant to appear in --help.
	for i, arg := range os.Args {
		if arg == patchapply.ApplyPatchFlag {
			runApplyPatch(os.Args[i+1:])
			return
		}
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// runApplyPatch applies the patch text (argv[0] after the sentinel flag) to
// the current working directory and exits with the process's own status
// code, mirroring a real sandbox helper's contract: stdout carries a
// human-readable summary, a non-zero exit means at least one file could not
// be patched.
func runApplyPatch(rest []string) {
	if len(rest) == 0 {
		fmt.Fprintln(os.Stderr, "missing patch text")
		os.Exit(1)
	}
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	results, err := patchapply.Apply(cwd, rest[0])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	failed := false
	for _, r := range results {
		if len(r.Warnings) > 0 {
			failed = true
			for _, w := range r.Warnings {
				fmt.Fprintf(os.Stderr, "%s: %s\n", r.Path, w)
			}
			continue
		}
		if r.Applied {
			fmt.Printf("Applied changes to %s\n", r.Path)
		} else {
			fmt.Printf("No changes for %s\n", r.Path)
		}
	}
	if failed {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("please provide a prompt, e.g.: agentkernel \"list go files\"")
	}
	prompt := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg.ApplyOverrides(providerFlag, modelFlag)

	logLevel := slog.LevelWarn
	if debugFlag {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	provider, err := llm.NewProvider(cfg)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}

	localCfg := toolConfigFromApp(cfg)
	perms, err := localCfg.BuildPermissions()
	if err != nil {
		return fmt.Errorf("invalid tool config: %w", err)
	}
	approvalMgr := tools.NewApprovalManager(perms)
	if !cfg.Approval.Enabled {
		approvalMgr.SetYoloMode(false)
	}

	// One session-scoped sandbox approval cache, shared between ShellTool and
	// PatchApplyHandler, so an ApprovedForSession decision made for one
	// sandboxed tool is never downgraded back to a prompt for the other.
	sandboxCache := approval.NewCache()
	sandboxPolicy := sandbox.Policy(cfg.Sandbox.Policy)

	localRegistry, err := tools.NewLocalToolRegistry(&localCfg, cfg, approvalMgr, sandboxCache, sandboxPolicy, sandbox.PreferenceAuto)
	if err != nil {
		return fmt.Errorf("failed to build tool registry: %w", err)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	builder := turn.BuilderFromTools(localRegistry)
	patchHandler := turn.NewPatchApplyHandler(
		defaultHostBinary(),
		os.Getenv("CODEX_NODE_CLI_ENTRYPOINT"),
		cwd,
		sandboxPolicy,
		sandbox.PreferenceAuto,
		approvalMgr,
		sandboxCache,
	)
	turn.AddPatchApplyTool(builder, patchHandler)
	registry := builder.Build()

	gate := turn.NewGate()
	var rolloutWriter *rollout.Writer
	threadID := session.NewID()

	if cfg.Sessions.Enabled {
		dir, err := session.GetDataDir()
		if err == nil {
			meta := rollout.SessionMeta{
				ThreadID:  threadID,
				CWD:       cwd,
				Provider:  provider.Name(),
				Model:     cfg.GetActiveProviderConfig().Model,
				CreatedAt: time.Now().UTC(),
			}
			w, err := rollout.Create(filepath.Join(dir, "rollouts"), threadID, meta, time.Now())
			if err == nil {
				rolloutWriter = w
				defer rolloutWriter.Close()
			} else {
				slog.Warn("failed to create rollout writer", "error", err)
			}
		}
	}

	recorder := func(rec turn.ObservabilityRecord) {
		slog.Debug("tool dispatch",
			"tool", rec.ToolName, "call_id", rec.CallID, "duration_ms", rec.DurationMs,
			"success", rec.Success, "error", rec.ErrorMessage)
	}
	dispatcher := turn.NewDispatcher(registry, gate, recorder)

	onEvent := func(ev events.ThreadEvent) {
		printEvent(ev)
		if rolloutWriter != nil {
			_ = rolloutWriter.Append(rollout.TypeEventMsg, ev, time.Now())
		}
	}
	collector := events.NewCollector(threadID, onEvent)

	thread := &turn.Thread{
		ID:         threadID,
		CWD:        cwd,
		Dispatcher: dispatcher,
		Collector:  collector,
		Provider:   provider,
	}
	if rolloutWriter != nil {
		thread.OnRecord = func(recordType string, payload any) {
			_ = rolloutWriter.Append(rollout.RecordType(recordType), payload, time.Now())
		}
	}

	ctx, token := turn.NewCancelToken(context.Background())
	defer token.Cancel()

	messages := []llm.Message{llm.UserText(prompt)}
	if skillFlag != "" {
		inputs := []skills.UserInput{{Kind: skills.InputSkill, Name: filepath.Base(skillFlag), Path: skillFlag}}
		set := &skills.Set{Skills: []skills.Skill{{Name: filepath.Base(skillFlag), Path: skillFlag}}}
		injected := skills.BuildInjections(inputs, set)
		for _, w := range injected.Warnings {
			slog.Warn("skill injection", "warning", w)
		}
		messages = append(injected.Messages, messages...)
	}

	req := llm.Request{
		Model:             cfg.GetActiveProviderConfig().Model,
		SessionID:         threadID,
		Messages:          messages,
		Tools:             llmSpecs(registry.Specs()),
		ParallelToolCalls: true,
	}

	outcome, err := turn.DriveTurn(ctx, thread, token, req)
	if err != nil {
		return fmt.Errorf("turn failed: %w", err)
	}
	if outcome.Cancelled {
		return fmt.Errorf("turn cancelled")
	}
	return nil
}

func toolConfigFromApp(cfg *config.Config) tools.ToolConfig {
	base := tools.DefaultToolConfig()
	t := cfg.Tools
	if len(t.Enabled) > 0 {
		base.Enabled = t.Enabled
	}
	if len(t.ReadDirs) > 0 {
		base.ReadDirs = t.ReadDirs
	}
	if len(t.WriteDirs) > 0 {
		base.WriteDirs = t.WriteDirs
	}
	if len(cfg.Sandbox.ShellAllow) > 0 {
		base.ShellAllow = cfg.Sandbox.ShellAllow
	}
	if cfg.Sandbox.ShellAutoRunEnv != "" {
		base.ShellAutoRunEnv = cfg.Sandbox.ShellAutoRunEnv
	}
	return base
}

// llmSpecs projects the dispatcher's registry-time tool specs down to the
// wire-level specs a provider request advertises to the model.
func llmSpecs(specs []turn.ToolSpec) []llm.ToolSpec {
	out := make([]llm.ToolSpec, 0, len(specs))
	for _, s := range specs {
		out = append(out, s.Spec)
	}
	return out
}

func printEvent(ev events.ThreadEvent) {
	switch ev.Kind {
	case events.KindItemCompleted:
		if ev.Item == nil {
			return
		}
		switch ev.Item.Details.Type {
		case events.DetailsAgentMessage:
			fmt.Println(ev.Item.Details.Text)
		case events.DetailsToolCall:
			fmt.Printf("[tool] %s -> %s\n", ev.Item.Details.ToolName, ev.Item.Details.Status)
		}
	case events.KindTurnFailed:
		fmt.Fprintf(os.Stderr, "turn failed: %s\n", ev.Message)
	}
}

func defaultHostBinary() string {
	if exe, err := os.Executable(); err == nil {
		return exe
	}
	return os.Args[0]
}
