package session

// FrameBuffer is an ordered, time-bounded, size-bounded collection of
// pending frames awaiting submission. It is owned exclusively by one
// session and is not safe for concurrent use on its own.
type FrameBuffer struct {
	frames        []Frame
	maxBuffer     int
	contextExpiry float64
}

// NewFrameBuffer creates an empty buffer with the given bounds
func NewFrameBuffer(maxBuffer int, contextExpiry float64) *FrameBuffer {
	if maxBuffer <= 0 {
		maxBuffer = 100
	}
	return &FrameBuffer{
		frames:        make([]Frame, 0, maxBuffer),
		maxBuffer:     maxBuffer,
		contextExpiry: contextExpiry,
	}
}

// Append adds a frame to the tail. If the buffer would exceed its
// capacity, the oldest frames are evicted first; the newest frame is
// never dropped and appending never blocks.
func (b *FrameBuffer) Append(frame Frame) {
	b.frames = append(b.frames, frame)
	if over := len(b.frames) - b.maxBuffer; over > 0 {
		b.frames = b.frames[over:]
	}
}

// EvictExpired removes every frame whose timestamp is more than the
// context expiry older than the newest retained timestamp. Called
// before each scheduling decision so a submission never includes stale
// context. The reference is the max over retained frames, not the last
// appended one, so an out-of-order frame cannot keep stale context
// alive or widen the window.
func (b *FrameBuffer) EvictExpired() {
	if len(b.frames) == 0 {
		return
	}
	newest := b.frames[0].Timestamp
	for _, f := range b.frames[1:] {
		if f.Timestamp > newest {
			newest = f.Timestamp
		}
	}
	cutoff := newest - b.contextExpiry
	retained := b.frames[:0]
	for _, f := range b.frames {
		if f.Timestamp >= cutoff {
			retained = append(retained, f)
		}
	}
	// Release payload references past the retained tail
	for i := len(retained); i < len(b.frames); i++ {
		b.frames[i] = Frame{}
	}
	b.frames = retained
}

// WindowDuration returns the newest minus oldest retained timestamp.
// Timestamps are not assumed monotonic, so this is max minus min over
// the retained frames. Returns 0 for buffers with fewer than two frames.
func (b *FrameBuffer) WindowDuration() float64 {
	if len(b.frames) < 2 {
		return 0
	}
	min, max := b.frames[0].Timestamp, b.frames[0].Timestamp
	for _, f := range b.frames[1:] {
		if f.Timestamp < min {
			min = f.Timestamp
		}
		if f.Timestamp > max {
			max = f.Timestamp
		}
	}
	return max - min
}

// WindowStart returns the timestamp of the oldest retained frame and
// whether the buffer is non-empty
func (b *FrameBuffer) WindowStart() (float64, bool) {
	if len(b.frames) == 0 {
		return 0, false
	}
	min := b.frames[0].Timestamp
	for _, f := range b.frames[1:] {
		if f.Timestamp < min {
			min = f.Timestamp
		}
	}
	return min, true
}

// Drain returns and removes all retained frames. The buffer is empty
// afterward whether or not the submission succeeds; no frame is ever
// reused across two submissions.
func (b *FrameBuffer) Drain() []Frame {
	drained := b.frames
	b.frames = make([]Frame, 0, b.maxBuffer)
	return drained
}

// Len returns the number of retained frames
func (b *FrameBuffer) Len() int {
	return len(b.frames)
}
