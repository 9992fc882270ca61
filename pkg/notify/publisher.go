package notify

import (
	"context"
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Publisher delivers document events. Publish must not block on slow
// consumers for longer than ctx allows.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// NopPublisher drops every event.
type NopPublisher struct{}

var _ Publisher = NopPublisher{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }

func (NopPublisher) Close() error { return nil }

// LogPublisher writes every event to a logger at Debug level.
type LogPublisher struct {
	logger hclog.Logger
}

var _ Publisher = (*LogPublisher)(nil)

// NewLogPublisher creates a LogPublisher. A nil logger discards output.
func NewLogPublisher(logger hclog.Logger) *LogPublisher {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, ev Event) error {
	args := []any{"type", string(ev.Type), "document_id", ev.DocumentID}
	for k, v := range ev.Payload {
		args = append(args, k, v)
	}
	p.logger.Debug("document event", args...)
	return nil
}

func (p *LogPublisher) Close() error { return nil }

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	closed bool
}

var _ Publisher = (*Recorder)(nil)

// NewRecorder creates an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return nil
}

func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// EventsOfType returns the recorded events with the given type.
func (r *Recorder) EventsOfType(t EventType) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

// Closed reports whether Close was called.
func (r *Recorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
