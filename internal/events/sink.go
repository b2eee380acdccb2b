package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Sink receives marketplace events in emission order. Append is
// fire-and-forget: implementations log delivery failures and move on, so a
// broken sink can never roll back or block a committed state transition.
type Sink interface {
	Append(ctx context.Context, e Event)
}

// LogSink writes events to the structured log. Used standalone in dev mode
// and as the delivery-failure fallback inside the broker sink.
type LogSink struct {
	log *zap.Logger
}

func NewLogSink(log *zap.Logger) *LogSink {
	if log == nil {
		log = zap.L()
	}
	return &LogSink{log: log}
}

func (s *LogSink) Append(ctx context.Context, e Event) {
	s.log.Info("marketplace event",
		zap.String("kind", e.Kind()),
		zap.Uint64("listing_id", e.Correlation()),
		zap.Any("event", e),
	)
}

// MemorySink records events for test assertions.
type MemorySink struct {
	mu     sync.Mutex
	events []Event
}

func NewMemorySink() *MemorySink { return &MemorySink{} }

func (s *MemorySink) Append(ctx context.Context, e Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

// Events returns a copy of everything appended so far, in order.
func (s *MemorySink) Events() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

// Kinds returns just the event kinds, in order.
func (s *MemorySink) Kinds() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.events))
	for i, e := range s.events {
		out[i] = e.Kind()
	}
	return out
}
