package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/events"
	"vigil/internal/session"
)

type fixedClassifier struct {
	verdict session.Verdict
}

func (c *fixedClassifier) Classify(ctx context.Context, frames []session.Frame, prompt string) (*session.Verdict, error) {
	v := c.verdict
	return &v, nil
}

func dialTestServer(t *testing.T, h *Handler) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/analyze"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]any
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func sendFrame(t *testing.T, conn *websocket.Conn, ts float64, payload string) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:      MessageTypeFrame,
		Timestamp: &ts,
		Image:     payload,
	}))
}

func TestHandlerStreamsStatusEvents(t *testing.T) {
	bus := events.NewBus()
	h := NewHandler(NewHub(), session.DefaultConfig(), &fixedClassifier{}, bus, nil)
	conn := dialTestServer(t, h)
	payload := pngPayload(t)

	sendFrame(t, conn, 0.0, payload)

	ready := readMessage(t, conn)
	assert.Equal(t, MessageTypeReady, ready["type"])
	assert.NotEmpty(t, ready["session_id"])

	status := readMessage(t, conn)
	assert.Equal(t, MessageTypeStatus, status["type"])
	assert.Equal(t, string(session.StatusAwaitingMoreData), status["status"])

	sendFrame(t, conn, 0.6, payload)
	status = readMessage(t, conn)
	assert.Equal(t, string(session.StatusAwaitingMoreData), status["status"])
	assert.InDelta(t, 0.6, status["window_duration"].(float64), 1e-9)
}

func TestHandlerStartOverridesAndDetection(t *testing.T) {
	bus := events.NewBus()
	detections, unsubscribe := bus.SubscribeChannel(4)
	defer unsubscribe()

	h := NewHandler(NewHub(), session.DefaultConfig(), &fixedClassifier{
		verdict: session.Verdict{Detected: true, Confidence: 0.95, Description: "movement"},
	}, bus, nil)
	conn := dialTestServer(t, h)
	payload := pngPayload(t)

	threshold := 0.5
	require.NoError(t, conn.WriteJSON(ClientMessage{
		Type:   MessageTypeStart,
		Config: &session.Overrides{SubmissionThreshold: &threshold},
	}))

	ready := readMessage(t, conn)
	require.Equal(t, MessageTypeReady, ready["type"])
	assert.Equal(t, 0.5, ready["submission_threshold"])

	sendFrame(t, conn, 0.0, payload)
	require.Equal(t, string(session.StatusAwaitingMoreData), readMessage(t, conn)["status"])

	sendFrame(t, conn, 0.6, payload)
	require.Equal(t, string(session.StatusAnalyzing), readMessage(t, conn)["status"])

	evaluated := readMessage(t, conn)
	require.Equal(t, string(session.StatusEvaluated), evaluated["status"])
	assert.Equal(t, true, evaluated["detected"])

	// The positive verdict lands on the event bus for persistence
	select {
	case ev := <-detections:
		assert.True(t, ev.Detected)
		assert.InDelta(t, 0.95, ev.Confidence, 1e-9)
		assert.Equal(t, "movement", ev.Description)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for detection event")
	}
}

func TestHandlerMalformedFrameDoesNotKillSession(t *testing.T) {
	h := NewHandler(NewHub(), session.DefaultConfig(), &fixedClassifier{}, events.NewBus(), nil)
	conn := dialTestServer(t, h)
	payload := pngPayload(t)

	// Missing timestamp is rejected per-frame
	require.NoError(t, conn.WriteJSON(ClientMessage{Type: MessageTypeFrame, Image: payload}))
	readMessage(t, conn) // ready
	status := readMessage(t, conn)
	assert.Equal(t, string(session.StatusError), status["status"])

	// The session keeps working afterward
	sendFrame(t, conn, 0.0, payload)
	status = readMessage(t, conn)
	assert.Equal(t, string(session.StatusAwaitingMoreData), status["status"])
}

func TestHandlerUnknownMessageType(t *testing.T) {
	h := NewHandler(NewHub(), session.DefaultConfig(), &fixedClassifier{}, events.NewBus(), nil)
	conn := dialTestServer(t, h)

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "bogus"}))
	status := readMessage(t, conn)
	assert.Equal(t, string(session.StatusError), status["status"])
}

func TestHubRegistersSessionsPerConnection(t *testing.T) {
	hub := NewHub()
	h := NewHandler(hub, session.DefaultConfig(), &fixedClassifier{}, events.NewBus(), nil)
	conn := dialTestServer(t, h)

	sendFrame(t, conn, 0.0, pngPayload(t))
	readMessage(t, conn) // ready
	readMessage(t, conn) // status

	require.Equal(t, 1, hub.SessionCount())
	stats := hub.Stats()
	require.Len(t, stats, 1)
	assert.Equal(t, uint64(1), stats[0].FramesReceived)

	conn.Close()
	require.Eventually(t, func() bool { return hub.SessionCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
