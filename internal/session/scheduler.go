package session

// Decision is the outcome of one scheduling check
type Decision string

const (
	// DecisionWait - not enough elapsed context, keep buffering
	DecisionWait Decision = "wait"
	// DecisionSubmit - the window is ready and no classification is in flight
	DecisionSubmit Decision = "submit"
	// DecisionBusy - a classification is already outstanding
	DecisionBusy Decision = "busy"
)

// SubmissionScheduler decides, on each incoming frame, whether the
// buffered window should be submitted for classification. It is a pure
// decision function with no side effects. The threshold is measured
// against the frame-timestamp window, not wall-clock receive time, so
// submission timing is robust to network jitter in frame arrival.
type SubmissionScheduler struct {
	threshold float64 // Seconds of frame-timestamp window required to submit
}

// NewSubmissionScheduler creates a scheduler with the given window threshold
func NewSubmissionScheduler(threshold float64) *SubmissionScheduler {
	return &SubmissionScheduler{threshold: threshold}
}

// Decide evaluates the buffer state after expiry eviction. At most one
// classification may be in flight per session at any time; this is a
// single-flight discipline, not a queue.
func (s *SubmissionScheduler) Decide(buffer *FrameBuffer, inFlight bool) Decision {
	if inFlight {
		return DecisionBusy
	}
	if buffer.Len() == 0 {
		return DecisionWait
	}
	if buffer.WindowDuration() >= s.threshold {
		return DecisionSubmit
	}
	return DecisionWait
}
