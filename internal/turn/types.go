// Package turn implements the tool registry, dispatcher, and turn driver:
// spec.md §4.4-§4.6. It is the component that ties the provider transport
// (internal/llm), the local tool implementations (internal/tools), the MCP
// client (internal/mcp), the sandbox runner (internal/sandbox), and the
// approval cache (internal/approval) into one conversation turn.
package turn

import (
	"encoding/json"

	"github.com/samsaffron/agentkernel/internal/llm"
)

// PayloadKind discriminates a ToolInvocation's payload, matching spec.md
// §3's ToolHandler variants {Function, Mcp, Custom}.
type PayloadKind string

const (
	KindFunction PayloadKind = "function"
	KindMcp      PayloadKind = "mcp"
	KindCustom   PayloadKind = "custom"
)

// Payload is the tagged-union argument data for one tool call. Only the
// fields matching Kind are populated.
type Payload struct {
	Kind PayloadKind

	// Function
	Arguments json.RawMessage

	// Mcp
	Server string
	Tool   string
	McpArgs json.RawMessage

	// Custom
	RawInput string
}

// ToolInvocation is one model-issued tool call routed through the
// dispatcher. CallID is unique within a turn.
type ToolInvocation struct {
	ThreadID string
	TurnID   string
	ToolName string
	CallID   string
	Payload  Payload
}

// ToolSpec is the dispatcher's registry-time view of a tool: the wire-level
// llm.ToolSpec the model sees, plus the dispatch metadata spec.md §3 adds
// (kind, parallel eligibility).
type ToolSpec struct {
	Spec                      llm.ToolSpec
	Kind                      PayloadKind
	SupportsParallelToolCalls bool
}

// ResponseInputItem is what the dispatcher hands back to the turn driver:
// the handler's ToolOutput threaded through the original call_id and
// payload kind, ready to append to the outbound model context.
type ResponseInputItem struct {
	CallID   string
	ToolName string
	Kind     PayloadKind
	Output   llm.ToolOutput
	IsError  bool
}
