package turn

import (
	"context"
	"fmt"
	"time"

	"github.com/samsaffron/agentkernel/internal/approval"
	"github.com/samsaffron/agentkernel/internal/llm"
)

// ObservabilityRecord is the span recorded for every dispatch, per spec.md
// §4.4's observability contract and §9's "must not directly format log
// strings" note: the dispatcher only produces this value; formatting and
// emission is the recorder's job.
type ObservabilityRecord struct {
	ToolName       string
	CallID         string
	PayloadPreview string
	DurationMs     int64
	Success        bool
	ResultPreview  string
	ErrorMessage   string
}

// Recorder receives one ObservabilityRecord per dispatch.
type Recorder func(ObservabilityRecord)

// Dispatcher routes ToolInvocations to registered handlers, gating mutating
// calls behind the per-turn Gate.
type Dispatcher struct {
	registry *Registry
	gate     *Gate
	recorder Recorder
}

// NewDispatcher creates a dispatcher over registry, gating mutating calls
// through gate and reporting spans to recorder (nil is fine; spans are
// simply dropped).
func NewDispatcher(registry *Registry, gate *Gate, recorder Recorder) *Dispatcher {
	return &Dispatcher{registry: registry, gate: gate, recorder: recorder}
}

// Dispatch implements spec.md §4.4's 5-step algorithm.
func (d *Dispatcher) Dispatch(ctx context.Context, inv *ToolInvocation) (ResponseInputItem, error) {
	start := time.Now()

	// Step 1: lookup.
	spec, handler, ok := d.registry.Lookup(inv.ToolName)
	if !ok {
		msg := fmt.Sprintf("unsupported %s tool call: %s", string(inv.Payload.Kind), inv.ToolName)
		d.record(ObservabilityRecord{
			ToolName: inv.ToolName, CallID: inv.CallID,
			DurationMs: 0, Success: false,
			ErrorMessage: msg,
		})
		return d.failureItem(inv, msg), newCallError(RespondToModel, "%s", msg)
	}

	// Step 2: kind guard.
	if !handler.MatchesKind(inv.Payload) {
		return ResponseInputItem{}, newCallError(Fatal, "tool %q handler kind mismatch for payload kind %s", inv.ToolName, inv.Payload.Kind)
	}

	runHandler := func() (llm.ToolOutput, error) {
		return d.runGated(ctx, handler, inv)
	}

	var output llm.ToolOutput
	var err error

	if interceptor, has := d.registry.Interceptor(inv.ToolName); has {
		// Step 3: exactly one (first-registered) interceptor applies.
		// Per spec.md §9's resolved open question, the interceptor's pass
		// is observability-only: its returned ToolOutput is discarded and
		// the handler is re-run directly afterward to obtain the output
		// actually returned to the model. This duplicates side effects for
		// mutating handlers, matching the grounding source's (the original
		// Rust core's) observed behavior rather than deduplicating via a
		// shared result cell.
		_, icErr := interceptor(runHandler, inv)
		if icErr != nil {
			output, err = llm.ToolOutput{}, icErr
		} else {
			output, err = d.runGated(ctx, handler, inv)
		}
	} else {
		// Step 4: no interceptor, invoke directly.
		output, err = d.runGated(ctx, handler, inv)
	}

	elapsed := time.Since(start).Milliseconds()

	if err != nil {
		d.record(ObservabilityRecord{
			ToolName: inv.ToolName, CallID: inv.CallID,
			PayloadPreview: previewPayload(inv), DurationMs: elapsed,
			Success: false, ErrorMessage: err.Error(),
		})
		if ce, ok := err.(*CallError); ok {
			if ce.Kind == Fatal {
				return ResponseInputItem{}, ce
			}
			// Non-fatal: the turn continues, so the model must still see a
			// tool-result record carrying the original call_id, per spec.md
			// §3's "exactly one tool-result record per call_id" invariant.
			return d.failureItem(inv, ce.Message), ce
		}
		return d.failureItem(inv, err.Error()), newCallError(RespondToModel, "%v", err)
	}

	d.record(ObservabilityRecord{
		ToolName: inv.ToolName, CallID: inv.CallID,
		PayloadPreview: previewPayload(inv), DurationMs: elapsed,
		Success: output.SuccessForLogging, ResultPreview: output.LogPreview,
	})

	// Step 5: convert to a ResponseInputItem carrying the original call_id
	// and payload kind. Output is capped to spec.md §8's global size budget
	// (head=128/tail=500 lines, 10KiB bytes) before it ever reaches the
	// model, regardless of handler.
	return ResponseInputItem{
		CallID:   inv.CallID,
		ToolName: inv.ToolName,
		Kind:     spec.Kind,
		Output:   TruncateToolOutput(output, ""),
		IsError:  !output.SuccessForLogging,
	}, nil
}

// runGated acquires the mutating-tool gate (if the handler declares itself
// mutating) before invoking Handle, and releases it on every exit path.
func (d *Dispatcher) runGated(ctx context.Context, handler ToolHandler, inv *ToolInvocation) (llm.ToolOutput, error) {
	if !handler.IsMutating(inv) {
		return handler.Handle(ctx, inv)
	}
	if err := d.gate.Acquire(ctx); err != nil {
		return llm.ToolOutput{}, newCallError(Cancelled, "cancelled waiting for tool gate: %v", err)
	}
	defer d.gate.Release()
	return handler.Handle(ctx, inv)
}

// failureItem builds the ResponseInputItem a non-fatal dispatch failure
// still owes the model: the original call_id and tool name with the
// failure text as the tool-result content, so the model can react to it
// instead of receiving a silently-dropped record.
func (d *Dispatcher) failureItem(inv *ToolInvocation, message string) ResponseInputItem {
	return ResponseInputItem{
		CallID:   inv.CallID,
		ToolName: inv.ToolName,
		Kind:     inv.Payload.Kind,
		Output:   llm.TextOutput(message),
		IsError:  true,
	}
}

func (d *Dispatcher) record(rec ObservabilityRecord) {
	if d.recorder != nil {
		d.recorder(rec)
	}
}

func previewPayload(inv *ToolInvocation) string {
	switch inv.Payload.Kind {
	case KindFunction:
		const max = 200
		s := string(inv.Payload.Arguments)
		if len(s) > max {
			return s[:max] + "..."
		}
		return s
	case KindMcp:
		return fmt.Sprintf("%s.%s", inv.Payload.Server, inv.Payload.Tool)
	default:
		return inv.Payload.RawInput
	}
}

// WithApprovalGate is a convenience Interceptor constructor for handlers
// that need an approval decision (via cache) before the gated handler runs.
// It matches spec.md §4.5's Approving state: derive the key, consult the
// cache, invoke compute only on a miss, and only proceed to next() when the
// decision is Approved or ApprovedForSession.
func WithApprovalGate(cache *approval.Cache, keyFor func(inv *ToolInvocation) approval.Key, prompt func(inv *ToolInvocation) approval.Decision) Interceptor {
	return func(next func() (llm.ToolOutput, error), inv *ToolInvocation) (llm.ToolOutput, error) {
		key := keyFor(inv)
		decision := cache.WithCachedApproval(key, func() approval.Decision {
			return prompt(inv)
		})
		switch decision {
		case approval.Approved, approval.ApprovedForSession:
			return next()
		case approval.Abort:
			return llm.ToolOutput{}, newCallError(Cancelled, "aborted by user")
		default:
			return llm.ToolOutput{}, newCallError(Rejected, "denied by user")
		}
	}
}
