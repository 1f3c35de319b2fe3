package session

import (
	"time"
)

// Frame represents one timestamped image unit received from the transport
type Frame struct {
	Timestamp float64 // Client-supplied capture time in seconds
	Image     []byte  // Encoded image payload (JPEG/PNG/WebP)
}

// State identifies the current phase of an analysis session
type State string

const (
	// StateIdle - no frames buffered, no classification in flight, no cooldown
	StateIdle State = "idle"
	// StateBuffering - frames accumulating, window below submission threshold
	StateBuffering State = "buffering"
	// StateClassifying - a single classification request is outstanding
	StateClassifying State = "classifying"
	// StateCooldown - suppressing new submissions after a positive detection
	StateCooldown State = "cooldown"
)

// Status identifies the kind of status event emitted for a frame or submission
type Status string

const (
	// StatusAwaitingMoreData - frame buffered, window below threshold
	StatusAwaitingMoreData Status = "awaiting_more_data"
	// StatusAnalyzing - a classification is running, frame acknowledged only
	StatusAnalyzing Status = "analyzing"
	// StatusCooldown - detections suppressed, frame acknowledged only
	StatusCooldown Status = "cooldown"
	// StatusEvaluated - a classification completed with a verdict
	StatusEvaluated Status = "evaluated"
	// StatusError - a classification or input failure, session continues
	StatusError Status = "error"
)

// StatusEvent is emitted once per incoming frame, plus one asynchronous
// evaluated/error event per submission
type StatusEvent struct {
	Status         Status
	WindowDuration float64 // Seconds of buffered context (awaiting_more_data, evaluated)
	Elapsed        float64 // Seconds since the in-flight request started (analyzing)
	BufferSize     int     // Frames in the window frozen at dispatch time (analyzing, evaluated)
	Remaining      float64 // Seconds of cooldown left (cooldown)
	Detected       bool    // Verdict (evaluated)
	Confidence     float64 // Verdict confidence (evaluated)
	Description    string  // Failure description (error)
}

// Config holds the tuning values for one analysis session.
// It is immutable once the session is constructed; sessions with
// different tuning can coexist.
type Config struct {
	MaxBuffer           int           // Maximum frames retained before oldest-first eviction
	SubmissionThreshold float64       // Seconds of frame-timestamp window required to submit
	ContextExpiry       float64       // Seconds after which frames are too stale to include
	Cooldown            time.Duration // Suppression interval after a positive detection
	ClassifyTimeout     time.Duration // Upper bound on a single classification call
	Prompt              string        // Prompt sent alongside every frame window
}

// DefaultConfig returns the server-wide default session tuning
func DefaultConfig() Config {
	return Config{
		MaxBuffer:           100,
		SubmissionThreshold: 1.25,
		ContextExpiry:       5.0,
		Cooldown:            10 * time.Second,
		ClassifyTimeout:     30 * time.Second,
		Prompt:              "Decide whether the event of interest occurs in this frame sequence.",
	}
}

// Overrides contains per-session tuning overrides supplied by the client.
// Nil values mean "inherit from the server defaults".
type Overrides struct {
	MaxBuffer           *int     `json:"max_buffer,omitempty"`
	SubmissionThreshold *float64 `json:"submission_threshold,omitempty"`
	ContextExpiry       *float64 `json:"context_expiry,omitempty"`
	CooldownSeconds     *float64 `json:"cooldown_seconds,omitempty"`
	Prompt              *string  `json:"prompt,omitempty"`
}

// Merge applies the overrides on top of the given base configuration
func (o *Overrides) Merge(base Config) Config {
	effective := base

	if o == nil {
		return effective
	}

	if o.MaxBuffer != nil && *o.MaxBuffer > 0 {
		effective.MaxBuffer = *o.MaxBuffer
	}
	if o.SubmissionThreshold != nil && *o.SubmissionThreshold > 0 {
		effective.SubmissionThreshold = *o.SubmissionThreshold
	}
	if o.ContextExpiry != nil && *o.ContextExpiry > 0 {
		effective.ContextExpiry = *o.ContextExpiry
	}
	if o.CooldownSeconds != nil && *o.CooldownSeconds >= 0 {
		effective.Cooldown = time.Duration(*o.CooldownSeconds * float64(time.Second))
	}
	if o.Prompt != nil && *o.Prompt != "" {
		effective.Prompt = *o.Prompt
	}

	return effective
}
