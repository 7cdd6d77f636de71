package turn

import "fmt"

// ErrorKind is the dispatch/turn-level error taxonomy from spec.md §7.
type ErrorKind string

const (
	// RespondToModel is non-fatal: the tool result is "failure" but the
	// turn continues and the model can react to the message.
	RespondToModel ErrorKind = "respond_to_model"
	// Fatal aborts the turn with TurnFailed.
	Fatal ErrorKind = "fatal"
	// Rejected is a user-driven denial, shaped like RespondToModel but
	// tagged so a UI layer can style it differently.
	Rejected ErrorKind = "rejected"
	// SandboxDenied is internal only: consumed by the escalation rule and
	// never surfaced past the dispatcher as-is.
	SandboxDenied ErrorKind = "sandbox_denied"
	// Cancelled is terminal, reported as TurnFailed{reason=cancelled}.
	Cancelled ErrorKind = "cancelled"
)

// CallError is the error type Dispatch returns for anything other than a
// successful ResponseInputItem.
type CallError struct {
	Kind    ErrorKind
	Message string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func newCallError(kind ErrorKind, format string, args ...any) *CallError {
	return &CallError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}
