package session

import (
	"context"
	"log"
	"sync"
	"time"
)

// Session is the per-connection coordinator. It owns one FrameBuffer
// and one CooldownGate, sequences the scheduler and the classifier,
// and emits exactly one status event per incoming frame plus one
// asynchronous evaluated/error event per submission.
//
// Frames are handled sequentially by the transport's read loop; only
// the classification call itself runs out-of-band so frame intake is
// never blocked on the external service.
type Session struct {
	id         string
	cfg        Config
	classifier Classifier
	scheduler  *SubmissionScheduler
	emit       Emitter
	clock      func() time.Time

	mu             sync.Mutex
	state          State
	buffer         *FrameBuffer
	cooldown       *CooldownGate
	framesReceived uint64
	detections     uint64
	closed         bool

	// Submission metadata frozen at dispatch time
	inflightStart  time.Time
	inflightSize   int
	inflightWindow float64
}

// Stats is a point-in-time snapshot of a session, used by the status endpoint
type Stats struct {
	ID             string  `json:"id"`
	State          State   `json:"state"`
	FramesReceived uint64  `json:"frames_received"`
	BufferLen      int     `json:"buffer_len"`
	WindowDuration float64 `json:"window_duration"`
	Detections     uint64  `json:"detections"`
}

// New creates a session in the idle state. The configuration is copied
// and immutable for the session's lifetime; emit must be safe to call
// from the classification goroutine after Close.
func New(id string, cfg Config, classifier Classifier, emit Emitter) *Session {
	return &Session{
		id:         id,
		cfg:        cfg,
		classifier: classifier,
		scheduler:  NewSubmissionScheduler(cfg.SubmissionThreshold),
		emit:       emit,
		clock:      time.Now,
		state:      StateIdle,
		buffer:     NewFrameBuffer(cfg.MaxBuffer, cfg.ContextExpiry),
		cooldown:   NewCooldownGate(),
	}
}

// ID returns the session identifier
func (s *Session) ID() string {
	return s.id
}

// Config returns the session's effective configuration
func (s *Session) Config() Config {
	return s.cfg
}

// HandleFrame runs the per-frame protocol for one incoming frame.
// It never blocks on the classifier: a submission is dispatched on a
// separate goroutine and the frame is acknowledged immediately.
func (s *Session) HandleFrame(frame Frame) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.framesReceived++
	now := s.clock()

	// Suppression window: consume the frame so the transport does not
	// stall, report remaining time, never buffer.
	if s.cooldown.IsActive(now) {
		s.state = StateCooldown
		ev := StatusEvent{Status: StatusCooldown, Remaining: s.cooldown.Remaining(now)}
		s.mu.Unlock()
		s.emit(ev)
		return
	}
	if s.state == StateCooldown {
		// Gate expired: resume normal buffering with an empty window
		s.cooldown.Clear()
		s.state = StateIdle
	}

	// Single-flight: frames arriving while a classification is
	// outstanding are acknowledged but not buffered, keeping exactly
	// one coherent window per classification.
	if s.state == StateClassifying {
		ev := StatusEvent{
			Status:     StatusAnalyzing,
			Elapsed:    now.Sub(s.inflightStart).Seconds(),
			BufferSize: s.inflightSize,
		}
		s.mu.Unlock()
		s.emit(ev)
		return
	}

	s.buffer.Append(frame)
	s.buffer.EvictExpired()

	switch s.scheduler.Decide(s.buffer, false) {
	case DecisionSubmit:
		window := s.buffer.WindowDuration()
		frames := s.buffer.Drain()
		s.state = StateClassifying
		s.inflightStart = now
		s.inflightSize = len(frames)
		s.inflightWindow = window
		s.mu.Unlock()

		// Acknowledge this frame before the classification finishes
		s.emit(StatusEvent{Status: StatusAnalyzing, Elapsed: 0, BufferSize: len(frames)})
		go s.classify(frames)

	default:
		s.state = StateBuffering
		ev := StatusEvent{Status: StatusAwaitingMoreData, WindowDuration: s.buffer.WindowDuration()}
		s.mu.Unlock()
		s.emit(ev)
	}
}

// classify runs one submission out-of-band and applies the result
func (s *Session) classify(frames []Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ClassifyTimeout)
	defer cancel()

	verdict, err := s.classifier.Classify(ctx, frames, s.cfg.Prompt)

	s.mu.Lock()
	if s.closed {
		// Connection closed while the call was in flight; discard the
		// result, the session must not be mutated after closure.
		s.mu.Unlock()
		return
	}
	size := s.inflightSize
	window := s.inflightWindow
	s.inflightSize = 0
	s.inflightWindow = 0

	if err != nil {
		// A failed classification never poisons the session: return to
		// idle and resume normal buffering on the next frame.
		s.state = StateIdle
		s.mu.Unlock()
		log.Printf("[Session] Classification failed for session %s: %v", s.id, err)
		s.emit(StatusEvent{Status: StatusError, Description: err.Error()})
		return
	}

	if verdict.Detected {
		s.cooldown.Trigger(s.clock(), s.cfg.Cooldown)
		s.state = StateCooldown
		s.detections++
	} else {
		s.state = StateIdle
	}
	s.mu.Unlock()

	s.emit(StatusEvent{
		Status:         StatusEvaluated,
		Detected:       verdict.Detected,
		Confidence:     verdict.Confidence,
		Description:    verdict.Description,
		WindowDuration: window,
		BufferSize:     size,
	})
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stats returns a snapshot of the session counters
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{
		ID:             s.id,
		State:          s.state,
		FramesReceived: s.framesReceived,
		BufferLen:      s.buffer.Len(),
		WindowDuration: s.buffer.WindowDuration(),
		Detections:     s.detections,
	}
}

// Close discards all owned state without further transitions. A
// classification result arriving after Close is dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.buffer.Drain()
	s.cooldown.Clear()
}
