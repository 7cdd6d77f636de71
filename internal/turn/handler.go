package turn

import (
	"context"

	"github.com/samsaffron/agentkernel/internal/llm"
)

// ToolHandler is the polymorphic handler contract from spec.md §3: a
// capability set over kind(), matches_kind(payload), is_mutating(invocation)
// and handle(invocation).
type ToolHandler interface {
	Kind() PayloadKind
	MatchesKind(p Payload) bool
	IsMutating(inv *ToolInvocation) bool
	Handle(ctx context.Context, inv *ToolInvocation) (llm.ToolOutput, error)
}

// FunctionHandler adapts an internal/tools local tool (which already
// implements llm.Tool: Spec/Execute/Preview) into the dispatcher's
// ToolHandler contract. This is the Function variant of spec.md §4.5 —
// patch-apply, shell-exec, file-read, and the rest of the local tool set
// are all Function handlers from the dispatcher's point of view; their
// sandbox/approval specifics live inside the wrapped llm.Tool itself
// (internal/tools.ApprovalManager), which the dispatcher's own gate and
// approval cache compose around rather than duplicate.
type FunctionHandler struct {
	tool      llm.Tool
	mutating  bool
}

// NewFunctionHandler wraps tool as a Function-kind ToolHandler. mutating
// should be derived from tools.GetToolKind(name) being in tools.MutatorKinds.
func NewFunctionHandler(tool llm.Tool, mutating bool) *FunctionHandler {
	return &FunctionHandler{tool: tool, mutating: mutating}
}

func (h *FunctionHandler) Kind() PayloadKind { return KindFunction }

func (h *FunctionHandler) MatchesKind(p Payload) bool { return p.Kind == KindFunction }

func (h *FunctionHandler) IsMutating(inv *ToolInvocation) bool { return h.mutating }

func (h *FunctionHandler) Handle(ctx context.Context, inv *ToolInvocation) (llm.ToolOutput, error) {
	return h.tool.Execute(ctx, inv.Payload.Arguments)
}

// McpCaller is the narrow interface the Mcp handler forwards calls to, kept
// so this package doesn't import internal/mcp directly (avoids an import
// cycle risk and keeps the handler testable with a fake). internal/mcp.Manager
// does not implement it as is: its CallTool takes one full tool name and
// returns a string.
type McpCaller interface {
	CallTool(ctx context.Context, server, tool string, args []byte) (llm.ToolOutput, error)
}

// McpHandler is the Mcp variant of spec.md §4.5/SPEC_FULL §4.9: never
// mutating by declaration, matching the teacher's treatment of MCP tools as
// read-style integrations.
type McpHandler struct {
	caller McpCaller
}

// NewMcpHandler wraps an MCP manager/client as an Mcp-kind ToolHandler.
func NewMcpHandler(caller McpCaller) *McpHandler {
	return &McpHandler{caller: caller}
}

func (h *McpHandler) Kind() PayloadKind { return KindMcp }

func (h *McpHandler) MatchesKind(p Payload) bool { return p.Kind == KindMcp }

func (h *McpHandler) IsMutating(inv *ToolInvocation) bool { return false }

func (h *McpHandler) Handle(ctx context.Context, inv *ToolInvocation) (llm.ToolOutput, error) {
	return h.caller.CallTool(ctx, inv.Payload.Server, inv.Payload.Tool, inv.Payload.McpArgs)
}

// CustomFunc is the raw-input handling function for a Custom tool.
type CustomFunc func(ctx context.Context, inv *ToolInvocation) (llm.ToolOutput, error)

// CustomHandler is the Custom variant: a raw-input handler not backed by a
// JSON-schema-typed llm.Tool (e.g. ask_user, which prompts the host
// directly rather than executing a structured function call).
type CustomHandler struct {
	fn       CustomFunc
	mutating bool
}

// NewCustomHandler wraps fn as a Custom-kind ToolHandler.
func NewCustomHandler(fn CustomFunc, mutating bool) *CustomHandler {
	return &CustomHandler{fn: fn, mutating: mutating}
}

func (h *CustomHandler) Kind() PayloadKind { return KindCustom }

func (h *CustomHandler) MatchesKind(p Payload) bool { return p.Kind == KindCustom }

func (h *CustomHandler) IsMutating(inv *ToolInvocation) bool { return h.mutating }

func (h *CustomHandler) Handle(ctx context.Context, inv *ToolInvocation) (llm.ToolOutput, error) {
	return h.fn(ctx, inv)
}
