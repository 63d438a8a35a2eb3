// Package events provides a small in-process event bus used for run
// notifications (started, progress, paused, completed, failed).
package events

import (
	"sync"
	"time"
)

// EventType identifies the kind of event.
type EventType string

const (
	EventRunStarted   EventType = "run.started"
	EventRunProgress  EventType = "run.progress"
	EventRunPaused    EventType = "run.paused"
	EventRunResumed   EventType = "run.resumed"
	EventRunStopped   EventType = "run.stopped"
	EventRunCompleted EventType = "run.completed"
	EventRunFailed    EventType = "run.failed"

	EventFileFound     EventType = "file.found"
	EventSessionUndone EventType = "session.undone"
)

// Event is a single notification published on the bus.
type Event struct {
	Type      EventType              `json:"type"`
	Source    string                 `json:"source"`
	Message   string                 `json:"message"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// Handler receives published events. Handlers must not block.
type Handler func(Event)

// Bus is a concurrency-safe publish/subscribe hub.
type Bus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	nextID   int
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[int]Handler)}
}

// Subscribe registers a handler and returns an unsubscribe function.
func (b *Bus) Subscribe(h Handler) func() {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.handlers, id)
		b.mu.Unlock()
	}
}

// Publish delivers the event to all subscribers on the caller's goroutine.
func (b *Bus) Publish(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}

// PublishAsync delivers the event on a separate goroutine so publishers are
// never blocked by a slow subscriber.
func (b *Bus) PublishAsync(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	go b.Publish(event)
}
