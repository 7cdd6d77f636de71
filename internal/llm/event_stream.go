package llm

import (
	"context"
	"io"
)

// eventStream adapts a producer function that writes to a channel into the
// Stream interface. The producer runs on its own goroutine; Recv drains the
// channel until the producer returns, surfacing its error (if any) as the
// final Recv error, otherwise io.EOF.
type eventStream struct {
	ctx    context.Context
	cancel context.CancelFunc
	events chan Event
	done   chan struct{}
	err    error
}

// newEventStream starts produce on its own goroutine and returns a Stream
// that yields whatever events it sends on the channel. produce should return
// nil on a clean finish (the caller is expected to have already sent an
// EventDone) or a non-nil error to surface as the stream's terminal error.
func newEventStream(ctx context.Context, produce func(ctx context.Context, events chan<- Event) error) Stream {
	ctx, cancel := context.WithCancel(ctx)
	s := &eventStream{
		ctx:    ctx,
		cancel: cancel,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}

	go func() {
		defer close(s.done)
		defer close(s.events)
		s.err = produce(ctx, s.events)
	}()

	return s
}

func (s *eventStream) Recv() (Event, error) {
	select {
	case event, ok := <-s.events:
		if !ok {
			<-s.done
			if s.err != nil {
				return Event{}, s.err
			}
			return Event{}, io.EOF
		}
		return event, nil
	case <-s.ctx.Done():
		return Event{}, s.ctx.Err()
	}
}

func (s *eventStream) Close() error {
	s.cancel()
	return nil
}
