package events

import (
	"sync"

	"merkledrop/core/types"
)

// Event represents a structured state change emitted by a native module.
type Event interface {
	EventType() string
	Event() *types.Event
}

// Emitter broadcasts events to downstream subscribers (e.g. the claim index,
// metrics, logs).
type Emitter interface {
	Emit(Event)
}

// NoopEmitter is a helper that satisfies the Emitter interface while discarding
// all events. It is useful when a component wants to optionally expose events.
type NoopEmitter struct{}

// Emit implements the Emitter interface.
func (NoopEmitter) Emit(Event) {}

// MultiEmitter fans every event out to each non-nil emitter in order.
type MultiEmitter []Emitter

func (m MultiEmitter) Emit(evt Event) {
	for _, emitter := range m {
		if emitter != nil {
			emitter.Emit(evt)
		}
	}
}

// Recorder keeps every emitted event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []*types.Event
}

func (r *Recorder) Emit(evt Event) {
	if evt == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt.Event().Clone())
}

// Events returns the recorded payloads in emission order.
func (r *Recorder) Events() []*types.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*types.Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters the recorded payloads by event type.
func (r *Recorder) OfType(typ string) []*types.Event {
	var out []*types.Event
	for _, evt := range r.Events() {
		if evt.Type == typ {
			out = append(out, evt)
		}
	}
	return out
}
