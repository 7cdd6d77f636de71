package turn

import (
	"context"
	"testing"

	"github.com/samsaffron/agentkernel/internal/llm"
)

// TestDispatch_UnsupportedTool is spec.md §8 seed scenario 6: a Custom
// payload with no handler registered yields RespondToModel("unsupported
// custom tool call: <name>"), an observability record with duration=0,
// success=false, and the turn proceeds (the dispatcher still returns a
// ResponseInputItem carrying the original call_id).
func TestDispatch_UnsupportedTool(t *testing.T) {
	registry := NewBuilder().Build()
	var recorded *ObservabilityRecord
	d := NewDispatcher(registry, NewGate(), func(r ObservabilityRecord) {
		recorded = &r
	})

	inv := &ToolInvocation{
		CallID:   "call-1",
		ToolName: "mystery_tool",
		Payload:  Payload{Kind: KindCustom, RawInput: "whatever"},
	}

	item, err := d.Dispatch(context.Background(), inv)

	ce, ok := err.(*CallError)
	if !ok {
		t.Fatalf("expected *CallError, got %v (%T)", err, err)
	}
	if ce.Kind != RespondToModel {
		t.Errorf("expected RespondToModel, got %v", ce.Kind)
	}
	wantMsg := "unsupported custom tool call: mystery_tool"
	if ce.Message != wantMsg {
		t.Errorf("expected message %q, got %q", wantMsg, ce.Message)
	}

	if item.CallID != "call-1" {
		t.Errorf("expected the original call_id to be preserved, got %q", item.CallID)
	}
	if !item.IsError {
		t.Errorf("expected IsError=true")
	}

	if recorded == nil {
		t.Fatalf("expected an observability record")
	}
	if recorded.DurationMs != 0 {
		t.Errorf("expected duration=0 for an unsupported tool, got %d", recorded.DurationMs)
	}
	if recorded.Success {
		t.Errorf("expected success=false")
	}
}

// stubHandler is a minimal ToolHandler for dispatcher tests.
type stubHandler struct {
	kind      PayloadKind
	mutating  bool
	output    llm.ToolOutput
	err       error
	callCount int
}

func (h *stubHandler) Kind() PayloadKind { return h.kind }
func (h *stubHandler) MatchesKind(p Payload) bool { return p.Kind == h.kind }
func (h *stubHandler) IsMutating(inv *ToolInvocation) bool { return h.mutating }
func (h *stubHandler) Handle(ctx context.Context, inv *ToolInvocation) (llm.ToolOutput, error) {
	h.callCount++
	return h.output, h.err
}

func TestDispatch_SuccessTruncatesOutput(t *testing.T) {
	handler := &stubHandler{
		kind:   KindFunction,
		output: llm.ToolOutput{Content: "small output", SuccessForLogging: true},
	}
	b := NewBuilder()
	b.AddTool("echo", ToolSpec{Kind: KindFunction}, handler)
	registry := b.Build()

	d := NewDispatcher(registry, NewGate(), nil)
	inv := &ToolInvocation{CallID: "c1", ToolName: "echo", Payload: Payload{Kind: KindFunction}}

	item, err := d.Dispatch(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if item.Output.Content != "small output" {
		t.Errorf("expected untouched small output, got %q", item.Output.Content)
	}
	if item.IsError {
		t.Errorf("expected IsError=false for a successful call")
	}
}

func TestDispatch_MutatingHandlerUsesGate(t *testing.T) {
	handler := &stubHandler{
		kind:     KindFunction,
		mutating: true,
		output:   llm.ToolOutput{SuccessForLogging: true},
	}
	b := NewBuilder()
	b.AddTool("write", ToolSpec{Kind: KindFunction}, handler)
	registry := b.Build()

	gate := NewGate()
	d := NewDispatcher(registry, gate, nil)
	inv := &ToolInvocation{CallID: "c2", ToolName: "write", Payload: Payload{Kind: KindFunction}}

	_, err := d.Dispatch(context.Background(), inv)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handler.callCount != 1 {
		t.Errorf("expected handler to be called exactly once, got %d", handler.callCount)
	}
}
