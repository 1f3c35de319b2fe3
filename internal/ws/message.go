package ws

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"time"

	_ "golang.org/x/image/webp"

	"vigil/internal/session"
)

const (
	// MessageTypeStart optionally opens a session with tuning overrides
	MessageTypeStart = "start"
	// MessageTypeFrame carries one timestamped image frame
	MessageTypeFrame = "frame"
	// MessageTypeReady acknowledges session creation
	MessageTypeReady = "ready"
	// MessageTypeStatus carries a session status event
	MessageTypeStatus = "status"
)

var (
	ErrMissingTimestamp = errors.New("frame message missing timestamp")
	ErrMissingImage     = errors.New("frame message missing image payload")
)

// ClientMessage represents an inbound message from the streaming client
type ClientMessage struct {
	Type      string             `json:"type"`
	Timestamp *float64           `json:"timestamp,omitempty"` // Capture time in seconds (frame)
	Image     string             `json:"image,omitempty"`     // Base64-encoded image payload (frame)
	Config    *session.Overrides `json:"config,omitempty"`    // Tuning overrides (start)
}

// ReadyMessage acknowledges a new session to the client
type ReadyMessage struct {
	Type                string  `json:"type"` // "ready"
	SessionID           string  `json:"session_id"`
	SubmissionThreshold float64 `json:"submission_threshold"`
	ContextExpiry       float64 `json:"context_expiry"`
	CooldownSeconds     float64 `json:"cooldown_seconds"`
	MaxBuffer           int     `json:"max_buffer"`
}

// StatusMessage represents an outbound status event
type StatusMessage struct {
	Type           string         `json:"type"` // "status"
	SessionID      string         `json:"session_id"`
	Status         session.Status `json:"status"`
	Timestamp      time.Time      `json:"timestamp"`
	WindowDuration *float64       `json:"window_duration,omitempty"`
	Elapsed        *float64       `json:"elapsed,omitempty"`
	BufferSize     *int           `json:"buffer_size,omitempty"`
	Remaining      *float64       `json:"remaining,omitempty"`
	Detected       *bool          `json:"detected,omitempty"`
	Confidence     *float64       `json:"confidence,omitempty"`
	Description    string         `json:"description,omitempty"`
}

// NewReadyMessage builds the session acknowledgment from its effective config
func NewReadyMessage(sessionID string, cfg session.Config) *ReadyMessage {
	return &ReadyMessage{
		Type:                MessageTypeReady,
		SessionID:           sessionID,
		SubmissionThreshold: cfg.SubmissionThreshold,
		ContextExpiry:       cfg.ContextExpiry,
		CooldownSeconds:     cfg.Cooldown.Seconds(),
		MaxBuffer:           cfg.MaxBuffer,
	}
}

// NewStatusMessage converts a session status event to its wire form
func NewStatusMessage(sessionID string, ev session.StatusEvent) *StatusMessage {
	msg := &StatusMessage{
		Type:      MessageTypeStatus,
		SessionID: sessionID,
		Status:    ev.Status,
		Timestamp: time.Now(),
	}

	switch ev.Status {
	case session.StatusAwaitingMoreData:
		msg.WindowDuration = &ev.WindowDuration
	case session.StatusAnalyzing:
		msg.Elapsed = &ev.Elapsed
		msg.BufferSize = &ev.BufferSize
	case session.StatusCooldown:
		msg.Remaining = &ev.Remaining
	case session.StatusEvaluated:
		msg.Detected = &ev.Detected
		msg.Confidence = &ev.Confidence
		msg.WindowDuration = &ev.WindowDuration
		msg.BufferSize = &ev.BufferSize
		msg.Description = ev.Description
	case session.StatusError:
		msg.Description = ev.Description
	}

	return msg
}

// NewErrorStatus builds an error status for transport-level failures
// (malformed input); the session continues afterward
func NewErrorStatus(sessionID, description string) *StatusMessage {
	return &StatusMessage{
		Type:        MessageTypeStatus,
		SessionID:   sessionID,
		Status:      session.StatusError,
		Timestamp:   time.Now(),
		Description: description,
	}
}

// DecodeFrame validates a frame message and returns the decoded frame.
// The payload must be a base64-encoded JPEG, PNG or WebP image.
func DecodeFrame(msg *ClientMessage) (session.Frame, error) {
	if msg.Timestamp == nil {
		return session.Frame{}, ErrMissingTimestamp
	}
	if msg.Image == "" {
		return session.Frame{}, ErrMissingImage
	}

	data, err := base64.StdEncoding.DecodeString(msg.Image)
	if err != nil {
		return session.Frame{}, fmt.Errorf("invalid image encoding: %w", err)
	}

	if _, _, err := image.DecodeConfig(bytes.NewReader(data)); err != nil {
		return session.Frame{}, fmt.Errorf("unsupported image payload: %w", err)
	}

	return session.Frame{Timestamp: *msg.Timestamp, Image: data}, nil
}
