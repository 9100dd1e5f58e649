package events

import "sync"

// Bus fans committed events out to every subscribed sink, in subscription
// order. It is safe to subscribe from other goroutines while publishing.
type Bus struct {
	mu    sync.RWMutex
	sinks []Sink
}

func NewBus(sinks ...Sink) *Bus {
	return &Bus{sinks: sinks}
}

func (b *Bus) Subscribe(sink Sink) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.sinks = append(b.sinks, sink)
}

func (b *Bus) Publish(events []Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sink := range b.sinks {
		sink.Publish(events)
	}
}

// Recorder keeps every event it is handed. Intended for tests and for
// inspection from the debug API.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(events []Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, events...)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Kinds returns the kinds recorded so far, in order.
func (r *Recorder) Kinds() []Kind {
	r.mu.Lock()
	defer r.mu.Unlock()

	kinds := make([]Kind, len(r.events))
	for i, ev := range r.events {
		kinds[i] = ev.Kind
	}
	return kinds
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = nil
}
