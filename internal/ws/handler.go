package ws

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"vigil/internal/auth"
	"vigil/internal/events"
	"vigil/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 4 << 20 // Base64-encoded frames can be large
	outboundBuffer = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  64 * 1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins for development
		// In production, this should be more restrictive
		return true
	},
}

// Handler handles WebSocket connections for live frame analysis.
// Each connection owns exactly one session; no state is shared
// across connections.
type Handler struct {
	hub           *Hub
	defaults      session.Config
	classifier    session.Classifier
	bus           *events.Bus
	authenticator *auth.Authenticator
}

// NewHandler creates a WebSocket handler for the analysis endpoint
func NewHandler(hub *Hub, defaults session.Config, classifier session.Classifier, bus *events.Bus, authenticator *auth.Authenticator) *Handler {
	return &Handler{
		hub:           hub,
		defaults:      defaults,
		classifier:    classifier,
		bus:           bus,
		authenticator: authenticator,
	}
}

// ServeHTTP handles WebSocket upgrade requests on /ws/analyze
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.authenticator != nil {
		if _, err := h.authenticator.ValidateRequest(r); err != nil {
			http.Error(w, `{"error": "invalid token"}`, http.StatusUnauthorized)
			return
		}
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[WS] Upgrade error: %v", err)
		return
	}

	log.Printf("[WS] New connection from %s", r.RemoteAddr)
	go h.serve(conn)
}

// serve runs the read loop for one connection. Frames are handled
// sequentially: one frame is fully buffered, scheduled or rejected
// before the next is read. Outbound events go through the write pump
// so the classification goroutine can emit safely at any time.
func (h *Handler) serve(conn *websocket.Conn) {
	outbound := make(chan []byte, outboundBuffer)
	done := make(chan struct{})
	go h.writePump(conn, outbound, done)

	sessionID := uuid.New().String()
	var sess *session.Session

	defer func() {
		close(done)
		if sess != nil {
			sess.Close()
			h.hub.Unregister(sess)
		}
		conn.Close()
	}()

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	emit := func(ev session.StatusEvent) {
		if ev.Status == session.StatusEvaluated && ev.Detected {
			h.bus.Publish(&events.DetectionEvent{
				ID:             uuid.New().String(),
				SessionID:      sessionID,
				Detected:       true,
				Confidence:     ev.Confidence,
				Description:    ev.Description,
				WindowDuration: ev.WindowDuration,
				BufferSize:     ev.BufferSize,
				CreatedAt:      time.Now(),
			})
		}
		h.send(outbound, NewStatusMessage(sessionID, ev))
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WS] Read error for session %s: %v", sessionID, err)
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			h.send(outbound, NewErrorStatus(sessionID, "malformed message: "+err.Error()))
			continue
		}

		switch msg.Type {
		case MessageTypeStart:
			if sess != nil {
				h.send(outbound, NewErrorStatus(sessionID, "session already started"))
				continue
			}
			cfg := msg.Config.Merge(h.defaults)
			sess = session.New(sessionID, cfg, h.classifier, emit)
			h.hub.Register(sess)
			h.send(outbound, NewReadyMessage(sessionID, cfg))

		case MessageTypeFrame:
			if sess == nil {
				// No explicit start: open a session with server defaults
				sess = session.New(sessionID, h.defaults, h.classifier, emit)
				h.hub.Register(sess)
				h.send(outbound, NewReadyMessage(sessionID, h.defaults))
			}
			frame, err := DecodeFrame(&msg)
			if err != nil {
				// Malformed input is rejected per-frame; the session continues
				h.send(outbound, NewErrorStatus(sessionID, err.Error()))
				continue
			}
			sess.HandleFrame(frame)

		default:
			h.send(outbound, NewErrorStatus(sessionID, "unknown message type: "+msg.Type))
		}
	}
}

// send marshals a message onto the outbound channel without blocking.
// A client too slow to drain its events loses the oldest ones.
func (h *Handler) send(outbound chan []byte, msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[WS] Error marshaling message: %v", err)
		return
	}
	select {
	case outbound <- data:
	default:
		log.Printf("[WS] Dropping event, outbound channel full")
	}
}

// writePump serializes all writes to the connection, including pings
func (h *Handler) writePump(conn *websocket.Conn, outbound chan []byte, done chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case msg := <-outbound:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
