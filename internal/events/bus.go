package events

import (
	"sync"
	"time"
)

// DetectionEvent records one positive classification verdict
type DetectionEvent struct {
	ID             string    `json:"id"`
	SessionID      string    `json:"session_id"`
	Detected       bool      `json:"detected"`
	Confidence     float64   `json:"confidence"`
	Description    string    `json:"description,omitempty"`
	WindowDuration float64   `json:"window_duration"`
	BufferSize     int       `json:"buffer_size"`
	CreatedAt      time.Time `json:"created_at"`
}

// DetectionEventHandler receives detection events
type DetectionEventHandler interface {
	// OnDetectionEvent is called when a session produces a positive verdict
	OnDetectionEvent(event *DetectionEvent)
}

// Bus provides pub/sub for detection events.
// Sessions publish on positive verdicts; the store writer and any
// monitoring subscribers consume.
type Bus struct {
	subscribers map[*subscription]bool
	mu          sync.RWMutex
}

type subscription struct {
	channel chan *DetectionEvent
	handler DetectionEventHandler
}

// NewBus creates a new event bus
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[*subscription]bool),
	}
}

// Subscribe registers a handler for detection events.
// Returns an unsubscribe function.
func (b *Bus) Subscribe(handler DetectionEventHandler) func() {
	sub := &subscription{handler: handler}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// SubscribeChannel returns a channel that receives detection events
// with the given buffer size, and an unsubscribe function
func (b *Bus) SubscribeChannel(bufferSize int) (<-chan *DetectionEvent, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan *DetectionEvent, bufferSize)
	sub := &subscription{channel: ch}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

// Publish sends a detection event to all subscribers.
// Handlers run synchronously to preserve event ordering; channel
// subscribers that have fallen behind are skipped. Handlers are
// invoked with the subscriber lock held, so a handler must not call
// Subscribe, Close or its own unsubscribe closure inline; defer such
// calls to another goroutine.
func (b *Bus) Publish(event *DetectionEvent) {
	if event == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		if sub.handler != nil {
			sub.handler.OnDetectionEvent(event)
		} else if sub.channel != nil {
			select {
			case sub.channel <- event:
			default:
				// Channel full, skip this event
			}
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes all subscribers and closes channels
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
}
