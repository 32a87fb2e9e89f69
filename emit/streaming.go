package emit

import (
	"sync"

	"github.com/sorryhyun/dipeo-engine/diagram"
)

// StreamingEmitter is the canonical "streaming observer" (§4.7): a bounded
// per-execution queue delivered to live subscribers. Delivery is
// at-most-once and best-effort — when a subscriber's queue is full, the
// oldest buffered event for that subscriber is dropped rather than blocking
// node execution (§5 "Backpressure").
type StreamingEmitter struct {
	mu          sync.Mutex
	subscribers map[diagram.ExecutionID][]*subscription
	capacity    int
}

type subscription struct {
	mu     sync.Mutex
	events []Event
	notify chan struct{}
	closed bool
}

// NewStreamingEmitter builds a StreamingEmitter whose per-subscriber queues
// hold at most capacity events before dropping the oldest.
func NewStreamingEmitter(capacity int) *StreamingEmitter {
	if capacity <= 0 {
		capacity = 256
	}
	return &StreamingEmitter{
		subscribers: make(map[diagram.ExecutionID][]*subscription),
		capacity:    capacity,
	}
}

// Subscribe registers a new listener for execID's events and returns a
// Subscription the caller drains with Drain (waiting on Notify when it wants
// to block until there is something to drain).
func (s *StreamingEmitter) Subscribe(execID diagram.ExecutionID) *Subscription {
	sub := &subscription{notify: make(chan struct{}, 1)}
	s.mu.Lock()
	s.subscribers[execID] = append(s.subscribers[execID], sub)
	s.mu.Unlock()
	return &Subscription{parent: s, execID: execID, sub: sub}
}

// Emit implements Emitter: it fans event out to every live subscriber of its
// execution, dropping the oldest queued event for any subscriber at capacity.
func (s *StreamingEmitter) Emit(event Event) {
	s.mu.Lock()
	subs := append([]*subscription(nil), s.subscribers[event.ExecutionID]...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.mu.Lock()
		if sub.closed {
			sub.mu.Unlock()
			continue
		}
		sub.events = append(sub.events, event)
		if len(sub.events) > s.capacity {
			sub.events = sub.events[len(sub.events)-s.capacity:]
		}
		sub.mu.Unlock()
		select {
		case sub.notify <- struct{}{}:
		default:
		}
	}

	if event.Type == ExecutionComplete || event.Type == ExecutionError {
		s.teardown(event.ExecutionID)
	}
}

func (s *StreamingEmitter) teardown(execID diagram.ExecutionID) {
	s.mu.Lock()
	subs := s.subscribers[execID]
	delete(s.subscribers, execID)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.mu.Lock()
		sub.closed = true
		sub.mu.Unlock()
	}
}

// Subscription is a live subscriber's view onto an execution's event stream.
type Subscription struct {
	parent *StreamingEmitter
	execID diagram.ExecutionID
	sub    *subscription
}

// Drain returns and clears every event currently queued, without blocking.
func (sub *Subscription) Drain() []Event {
	sub.sub.mu.Lock()
	defer sub.sub.mu.Unlock()
	out := sub.sub.events
	sub.sub.events = nil
	return out
}

// Notify returns a channel that receives a signal whenever new events are
// queued, for callers that want to block until there's something to drain.
func (sub *Subscription) Notify() <-chan struct{} { return sub.sub.notify }

// Closed reports whether the execution reached a terminal event and this
// subscription was torn down.
func (sub *Subscription) Closed() bool {
	sub.sub.mu.Lock()
	defer sub.sub.mu.Unlock()
	return sub.sub.closed
}
