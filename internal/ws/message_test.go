package ws

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vigil/internal/session"
)

func pngPayload(t *testing.T) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.White)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func floatPtr(v float64) *float64 { return &v }

func TestDecodeFrame(t *testing.T) {
	msg := &ClientMessage{
		Type:      MessageTypeFrame,
		Timestamp: floatPtr(1.5),
		Image:     pngPayload(t),
	}

	frame, err := DecodeFrame(msg)
	require.NoError(t, err)
	assert.Equal(t, 1.5, frame.Timestamp)
	assert.NotEmpty(t, frame.Image)
}

func TestDecodeFrameMissingFields(t *testing.T) {
	_, err := DecodeFrame(&ClientMessage{Type: MessageTypeFrame, Image: pngPayload(t)})
	assert.ErrorIs(t, err, ErrMissingTimestamp)

	_, err = DecodeFrame(&ClientMessage{Type: MessageTypeFrame, Timestamp: floatPtr(0)})
	assert.ErrorIs(t, err, ErrMissingImage)
}

func TestDecodeFrameInvalidBase64(t *testing.T) {
	_, err := DecodeFrame(&ClientMessage{Type: MessageTypeFrame, Timestamp: floatPtr(0), Image: "not-base64!!"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid image encoding")
}

func TestDecodeFrameRejectsNonImagePayload(t *testing.T) {
	payload := base64.StdEncoding.EncodeToString([]byte("definitely not an image"))
	_, err := DecodeFrame(&ClientMessage{Type: MessageTypeFrame, Timestamp: floatPtr(0), Image: payload})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image payload")
}

func TestNewStatusMessageFieldSelection(t *testing.T) {
	waiting := NewStatusMessage("s-1", session.StatusEvent{Status: session.StatusAwaitingMoreData, WindowDuration: 0.9})
	require.NotNil(t, waiting.WindowDuration)
	assert.Equal(t, 0.9, *waiting.WindowDuration)
	assert.Nil(t, waiting.Detected)
	assert.Nil(t, waiting.Remaining)

	analyzing := NewStatusMessage("s-1", session.StatusEvent{Status: session.StatusAnalyzing, Elapsed: 0.5, BufferSize: 5})
	require.NotNil(t, analyzing.Elapsed)
	require.NotNil(t, analyzing.BufferSize)
	assert.Equal(t, 5, *analyzing.BufferSize)

	cooldown := NewStatusMessage("s-1", session.StatusEvent{Status: session.StatusCooldown, Remaining: 1.9})
	require.NotNil(t, cooldown.Remaining)
	assert.Equal(t, 1.9, *cooldown.Remaining)

	evaluated := NewStatusMessage("s-1", session.StatusEvent{
		Status: session.StatusEvaluated, Detected: false, Confidence: 0.3, WindowDuration: 1.3, BufferSize: 5,
	})
	// Negative verdicts still serialize an explicit detected field
	require.NotNil(t, evaluated.Detected)
	assert.False(t, *evaluated.Detected)
	require.NotNil(t, evaluated.Confidence)

	failed := NewStatusMessage("s-1", session.StatusEvent{Status: session.StatusError, Description: "boom"})
	assert.Equal(t, "boom", failed.Description)
}
