// Package events implements the event collector/emitter from spec.md §4.7:
// it assigns turn-scoped monotonic item ids and translates internal turn
// activity into the host-facing ThreadEvent stream described in spec.md §6.
package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// Kind is the tagged-union discriminator for ThreadEvent.
type Kind string

const (
	KindThreadStarted     Kind = "thread.started"
	KindTurnStarted       Kind = "turn.started"
	KindItemStarted       Kind = "item.started"
	KindItemUpdated       Kind = "item.updated"
	KindItemCompleted     Kind = "item.completed"
	KindTurnCompleted     Kind = "turn.completed"
	KindTurnFailed        Kind = "turn.failed"
	KindExitedReviewMode  Kind = "exited_review_mode"
	KindBackgroundEvent   Kind = "background_event"
	KindError             Kind = "error"
)

// DetailsType discriminates the Item.Details payload.
type DetailsType string

const (
	DetailsAgentMessage DetailsType = "agent_message"
	DetailsReasoning    DetailsType = "reasoning"
	DetailsError        DetailsType = "error"
	DetailsTodoList     DetailsType = "todo_list"
	DetailsToolCall     DetailsType = "tool_call"
)

// ToolCallStatus is the lifecycle status of a ToolCall item.
type ToolCallStatus string

const (
	ToolCallRunning   ToolCallStatus = "running"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallFailed    ToolCallStatus = "failed"
)

// ItemDetails is the variant payload carried by an Item.
type ItemDetails struct {
	Type DetailsType

	// AgentMessage / Reasoning / Error
	Text string

	// TodoList
	Todos []string

	// ToolCall
	CallID   string
	ToolName string
	Status   ToolCallStatus
}

// Item is one entry in the turn's item stream.
type Item struct {
	ID      string
	Details ItemDetails
}

// Usage is a token-usage snapshot.
type Usage struct {
	InputTokens       int
	CachedInputTokens int
	OutputTokens      int
}

// ReviewOutput is the parsed (or fallback) payload of an ExitedReviewMode
// event, per spec.md §4.7's three-tier parse fallback.
type ReviewOutput struct {
	Parsed             map[string]any
	OverallExplanation string
}

// ThreadEvent is the host-facing tagged union described in spec.md §3/§6.
type ThreadEvent struct {
	Kind     Kind
	ThreadID string
	Item     *Item
	Usage    *Usage
	Message  string
	Review   *ReviewOutput
}

// Sink receives emitted ThreadEvents in order.
type Sink func(ThreadEvent)

// Collector maintains the turn-scoped monotonic item-id counter and emits
// ThreadEvents to its sink. Not safe for concurrent use by multiple turns;
// one Collector belongs to one live turn at a time (mirrors spec.md §3:
// "a thread has at most one live turn").
type Collector struct {
	mu       sync.Mutex
	threadID string
	counter  int
	usage    Usage
	sink     Sink
}

// NewCollector creates a collector for threadID, emitting to sink.
func NewCollector(threadID string, sink Sink) *Collector {
	return &Collector{threadID: threadID, sink: sink}
}

func (c *Collector) emit(ev ThreadEvent) {
	ev.ThreadID = c.threadID
	if c.sink != nil {
		c.sink(ev)
	}
}

// nextItemID returns the next turn-scoped monotonic item id, item_<N>.
func (c *Collector) nextItemID() string {
	c.mu.Lock()
	c.counter++
	n := c.counter
	c.mu.Unlock()
	return fmt.Sprintf("item_%d", n)
}

// ResetForTurn resets the item-id counter at the start of a new turn. Item
// ids are only required to be unique and increasing *within* one turn.
func (c *Collector) ResetForTurn() {
	c.mu.Lock()
	c.counter = 0
	c.mu.Unlock()
}

// ThreadStarted emits thread.started. Must precede everything else for this
// thread.
func (c *Collector) ThreadStarted() {
	c.emit(ThreadEvent{Kind: KindThreadStarted})
}

// TurnStarted emits turn.started. Translation rule: internal TaskStarted ->
// TurnStarted.
func (c *Collector) TurnStarted() {
	c.emit(ThreadEvent{Kind: KindTurnStarted})
}

// ItemStarted allocates a new item id, emits item.started, and returns the
// id so the caller can later update/complete the same item.
func (c *Collector) ItemStarted(details ItemDetails) string {
	id := c.nextItemID()
	c.emit(ThreadEvent{Kind: KindItemStarted, Item: &Item{ID: id, Details: details}})
	return id
}

// ItemUpdated emits item.updated for a previously started item.
func (c *Collector) ItemUpdated(id string, details ItemDetails) {
	c.emit(ThreadEvent{Kind: KindItemUpdated, Item: &Item{ID: id, Details: details}})
}

// ItemCompleted emits item.completed for a previously started item.
func (c *Collector) ItemCompleted(id string, details ItemDetails) {
	c.emit(ThreadEvent{Kind: KindItemCompleted, Item: &Item{ID: id, Details: details}})
}

// CompletedItem is a convenience for the common case of a one-shot item that
// starts and completes atomically (e.g. a Warning, which spec.md §4.7 says
// "become[s] a completed item with the appropriate details variant" without
// an intermediate in-progress phase).
func (c *Collector) CompletedItem(details ItemDetails) string {
	id := c.nextItemID()
	c.emit(ThreadEvent{Kind: KindItemCompleted, Item: &Item{ID: id, Details: details}})
	return id
}

// RecordUsage updates the collector's cached usage snapshot. Translation
// rule: internal TokenCount updates the snapshot and emits no item.
func (c *Collector) RecordUsage(u Usage) {
	c.mu.Lock()
	c.usage = u
	c.mu.Unlock()
}

// TurnCompleted emits turn.completed with the current usage snapshot.
func (c *Collector) TurnCompleted() {
	c.mu.Lock()
	u := c.usage
	c.mu.Unlock()
	c.emit(ThreadEvent{Kind: KindTurnCompleted, Usage: &u})
}

// TurnFailed emits turn.failed with message.
func (c *Collector) TurnFailed(message string) {
	c.emit(ThreadEvent{Kind: KindTurnFailed, Message: message})
}

// BackgroundEvent emits background_event for out-of-band notifications.
func (c *Collector) BackgroundEvent(message string) {
	c.emit(ThreadEvent{Kind: KindBackgroundEvent, Message: message})
}

// Error emits a non-item-scoped error event.
func (c *Collector) Error(message string) {
	c.emit(ThreadEvent{Kind: KindError, Message: message})
}

// ExitedReviewMode parses rawText as review-mode final output using the
// three-tier fallback from spec.md §4.7: strict JSON decode of the whole
// text, then the first "{...}" substring, then the raw text verbatim as
// OverallExplanation.
func (c *Collector) ExitedReviewMode(rawText string) {
	c.emit(ThreadEvent{Kind: KindExitedReviewMode, Review: ParseReviewOutput(rawText)})
}

// ParseReviewOutput applies the three-tier parse fallback on its own, so
// callers (and tests) can exercise it without going through a Collector.
func ParseReviewOutput(rawText string) *ReviewOutput {
	var parsed map[string]any
	if err := json.Unmarshal([]byte(rawText), &parsed); err == nil {
		return &ReviewOutput{Parsed: parsed}
	}

	if start := strings.Index(rawText, "{"); start != -1 {
		if end := strings.LastIndex(rawText, "}"); end > start {
			var candidate map[string]any
			if err := json.Unmarshal([]byte(rawText[start:end+1]), &candidate); err == nil {
				return &ReviewOutput{Parsed: candidate}
			}
		}
	}

	return &ReviewOutput{OverallExplanation: rawText}
}
