package turn

import (
	"context"
	"sync"

	"github.com/samsaffron/agentkernel/internal/events"
	"github.com/samsaffron/agentkernel/internal/llm"
)

// CancelToken is the single per-turn cancellation token from spec.md §4.6/
// §5: checked between dispatches and propagated into the command-spec
// runner. It is a thin wrapper over context.CancelFunc so call sites read
// like the spec's vocabulary instead of bare context plumbing.
type CancelToken struct {
	cancel context.CancelFunc
}

// Cancel fires the token; all suspension points observe it on their next
// check.
func (t *CancelToken) Cancel() {
	if t.cancel != nil {
		t.cancel()
	}
}

// NewCancelToken derives a cancellable context for one turn from parent,
// returning both the context to pass to DriveTurn and the token the host
// holds onto to cancel it (e.g. from a signal handler or a UI "stop"
// action) from outside the driving goroutine.
func NewCancelToken(parent context.Context) (context.Context, *CancelToken) {
	ctx, cancel := context.WithCancel(parent)
	return ctx, &CancelToken{cancel: cancel}
}

// Thread owns the long-lived state of a conversation: id, cwd, dispatcher
// (which holds the tool gate), provider, event collector and rollout sink.
// A thread has at most one live turn.
type Thread struct {
	ID         string
	CWD        string
	Dispatcher *Dispatcher
	Collector  *events.Collector
	Provider   llm.Provider
	OnRecord   func(recordType string, payload any) // forwards to the rollout writer; nil is fine
}

// TurnOutcome summarizes how drive_turn ended.
type TurnOutcome struct {
	Completed     bool
	Cancelled     bool
	FailureReason string
	Usage         events.Usage
}

// pendingCall is one tool call collected from the model stream while
// waiting for "need tool results".
type pendingCall struct {
	index int
	call  llm.ToolCall
	spec  ToolSpec
}

// DriveTurn implements spec.md §4.6's 7-step algorithm: open a streaming
// request, consume text/reasoning/tool-call events, dispatch pending tool
// calls (parallel-eligible calls fan out, others serialize as barriers),
// and loop until the model signals completion or a fatal error occurs.
func DriveTurn(ctx context.Context, thread *Thread, token *CancelToken, req llm.Request) (TurnOutcome, error) {
	thread.Collector.ResetForTurn()
	thread.Collector.TurnStarted()

	messages := append([]llm.Message(nil), req.Messages...)
	specsByName := make(map[string]ToolSpec, len(thread.Dispatcher.registry.specs))
	for _, s := range thread.Dispatcher.registry.Specs() {
		specsByName[s.Spec.Name] = s
	}

	var usage events.Usage

	for {
		if ctx.Err() != nil {
			thread.Collector.TurnFailed("cancelled")
			return TurnOutcome{Cancelled: true, FailureReason: "cancelled", Usage: usage}, nil
		}

		streamReq := req
		streamReq.Messages = messages
		stream, err := thread.Provider.Stream(ctx, streamReq)
		if err != nil {
			thread.Collector.TurnFailed(err.Error())
			return TurnOutcome{FailureReason: err.Error(), Usage: usage}, err
		}

		var pending []pendingCall
		var textItemID, reasoningItemID string
		done := false

		for {
			ev, recvErr := stream.Recv()
			if recvErr != nil {
				done = true
				break
			}

			switch ev.Type {
			case llm.EventTextDelta:
				if textItemID == "" {
					textItemID = thread.Collector.ItemStarted(events.ItemDetails{Type: events.DetailsAgentMessage, Text: ev.Text})
				} else {
					thread.Collector.ItemUpdated(textItemID, events.ItemDetails{Type: events.DetailsAgentMessage, Text: ev.Text})
				}
			case llm.EventReasoningDelta:
				if reasoningItemID == "" {
					reasoningItemID = thread.Collector.ItemStarted(events.ItemDetails{Type: events.DetailsReasoning, Text: ev.Text})
				} else {
					thread.Collector.ItemUpdated(reasoningItemID, events.ItemDetails{Type: events.DetailsReasoning, Text: ev.Text})
				}
			case llm.EventToolCall:
				if ev.Tool == nil {
					continue
				}
				spec := specsByName[ev.Tool.Name]
				pending = append(pending, pendingCall{index: len(pending), call: *ev.Tool, spec: spec})
			case llm.EventUsage:
				if ev.Use != nil {
					usage = events.Usage{
						InputTokens:       ev.Use.InputTokens,
						OutputTokens:      ev.Use.OutputTokens,
						CachedInputTokens: ev.Use.CachedInputTokens,
					}
					thread.Collector.RecordUsage(usage)
				}
			case llm.EventError:
				thread.Collector.Error(ev.Text)
			case llm.EventDone:
				done = true
			}

			if done {
				break
			}
		}
		stream.Close()

		if textItemID != "" {
			thread.Collector.ItemCompleted(textItemID, events.ItemDetails{Type: events.DetailsAgentMessage})
		}
		if reasoningItemID != "" {
			thread.Collector.ItemCompleted(reasoningItemID, events.ItemDetails{Type: events.DetailsReasoning})
		}

		if len(pending) == 0 {
			thread.Collector.TurnCompleted()
			return TurnOutcome{Completed: true, Usage: usage}, nil
		}

		results, fatal := dispatchPending(ctx, thread, pending)
		for _, r := range results {
			messages = append(messages, toolResultMessage(r))
		}
		if fatal != nil {
			thread.Collector.TurnFailed(fatal.Error())
			return TurnOutcome{FailureReason: fatal.Error(), Usage: usage}, fatal
		}
		// Loop: re-issue the model request with appended tool results.
	}
}

// dispatchPending schedules calls through the dispatcher: parallel-eligible
// calls fan out concurrently, non-parallel calls serialize and act as
// barriers between groups of parallel calls, matching spec.md §4.6 step 4
// and §5's ordering guarantee that results preserve original call order
// regardless of completion order.
func dispatchPending(ctx context.Context, thread *Thread, pending []pendingCall) ([]ResponseInputItem, error) {
	results := make([]ResponseInputItem, len(pending))
	var fatalErr error
	var fatalMu sync.Mutex

	i := 0
	for i < len(pending) {
		if pending[i].spec.SupportsParallelToolCalls {
			j := i
			var wg sync.WaitGroup
			for j < len(pending) && pending[j].spec.SupportsParallelToolCalls {
				wg.Add(1)
				go func(idx int) {
					defer wg.Done()
					item, err := dispatchOne(ctx, thread, pending[idx])
					results[idx] = item
					if err != nil {
						if ce, ok := err.(*CallError); ok && ce.Kind == Fatal {
							fatalMu.Lock()
							if fatalErr == nil {
								fatalErr = err
							}
							fatalMu.Unlock()
						}
					}
				}(j)
				j++
			}
			wg.Wait()
			i = j
			continue
		}

		item, err := dispatchOne(ctx, thread, pending[i])
		results[i] = item
		if err != nil {
			if ce, ok := err.(*CallError); ok && ce.Kind == Fatal {
				return results, err
			}
		}
		i++
	}

	return results, fatalErr
}

func dispatchOne(ctx context.Context, thread *Thread, pc pendingCall) (ResponseInputItem, error) {
	itemID := thread.Collector.ItemStarted(events.ItemDetails{
		Type: events.DetailsToolCall, CallID: pc.call.ID, ToolName: pc.call.Name, Status: events.ToolCallRunning,
	})

	inv := &ToolInvocation{
		ThreadID: thread.ID,
		ToolName: pc.call.Name,
		CallID:   pc.call.ID,
		Payload:  Payload{Kind: KindFunction, Arguments: pc.call.Arguments},
	}

	item, err := thread.Dispatcher.Dispatch(ctx, inv)

	status := events.ToolCallCompleted
	if err != nil {
		status = events.ToolCallFailed
	}
	thread.Collector.ItemCompleted(itemID, events.ItemDetails{
		Type: events.DetailsToolCall, CallID: pc.call.ID, ToolName: pc.call.Name, Status: status,
	})

	if thread.OnRecord != nil {
		thread.OnRecord("tool_result", item)
	}

	return item, err
}

func toolResultMessage(item ResponseInputItem) llm.Message {
	if item.CallID == "" {
		return llm.Message{}
	}
	return llm.ToolResultMessageFromOutput(item.CallID, item.ToolName, item.Output, nil)
}
