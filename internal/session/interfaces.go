package session

import (
	"context"
)

// Verdict is the outcome of one classification call
type Verdict struct {
	Detected    bool    `json:"detected"`
	Confidence  float64 `json:"confidence"`
	Description string  `json:"description,omitempty"`
}

// Classifier is the external classification capability.
// Implementations wrap a specific AI backend; each invocation is
// independent and stateless from the session's perspective. Retries,
// if any, are the implementation's concern.
type Classifier interface {
	// Classify evaluates an ordered frame window against a prompt.
	// It must honor ctx cancellation and deadlines.
	Classify(ctx context.Context, frames []Frame, prompt string) (*Verdict, error)
}

// Emitter receives status events from a session.
// Events are delivered in frame order, except that the evaluated/error
// event for a submission arrives asynchronously.
type Emitter func(StatusEvent)
