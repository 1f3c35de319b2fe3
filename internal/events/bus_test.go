package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type recordingHandler struct {
	events []*DetectionEvent
}

func (h *recordingHandler) OnDetectionEvent(event *DetectionEvent) {
	h.events = append(h.events, event)
}

func TestBusDeliversToHandler(t *testing.T) {
	bus := NewBus()
	handler := &recordingHandler{}
	unsubscribe := bus.Subscribe(handler)

	ev := &DetectionEvent{ID: "ev-1", SessionID: "s-1", Detected: true, Confidence: 0.9, CreatedAt: time.Now()}
	bus.Publish(ev)

	assert.Len(t, handler.events, 1)
	assert.Same(t, ev, handler.events[0])

	unsubscribe()
	bus.Publish(ev)
	assert.Len(t, handler.events, 1)
}

func TestBusChannelSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsubscribe := bus.SubscribeChannel(2)
	defer unsubscribe()

	bus.Publish(&DetectionEvent{ID: "ev-1"})
	bus.Publish(&DetectionEvent{ID: "ev-2"})
	bus.Publish(&DetectionEvent{ID: "ev-3"}) // Dropped, channel full

	assert.Equal(t, "ev-1", (<-ch).ID)
	assert.Equal(t, "ev-2", (<-ch).ID)
	select {
	case ev := <-ch:
		t.Fatalf("expected overflow event to be dropped, got %s", ev.ID)
	default:
	}
}

func TestBusIgnoresNil(t *testing.T) {
	bus := NewBus()
	handler := &recordingHandler{}
	defer bus.Subscribe(handler)()

	bus.Publish(nil)
	assert.Empty(t, handler.events)
}

func TestBusClose(t *testing.T) {
	bus := NewBus()
	ch, _ := bus.SubscribeChannel(1)

	bus.Close()
	assert.Equal(t, 0, bus.SubscriberCount())

	_, open := <-ch
	assert.False(t, open)
}
