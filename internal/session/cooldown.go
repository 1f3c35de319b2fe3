package session

import (
	"time"
)

// CooldownGate suppresses new submissions for a fixed interval after a
// positive detection so the same physical event is not re-detected.
// It is owned exclusively by one session; the session's lock guards it.
type CooldownGate struct {
	activeUntil time.Time
}

// NewCooldownGate returns a cleared gate
func NewCooldownGate() *CooldownGate {
	return &CooldownGate{}
}

// Trigger starts a suppression window of the given duration
func (g *CooldownGate) Trigger(now time.Time, duration time.Duration) {
	g.activeUntil = now.Add(duration)
}

// IsActive reports whether suppression is in effect
func (g *CooldownGate) IsActive(now time.Time) bool {
	return now.Before(g.activeUntil)
}

// Remaining returns the seconds of suppression left, for client-visible
// progress reporting. Returns 0 once the gate has expired.
func (g *CooldownGate) Remaining(now time.Time) float64 {
	if !g.IsActive(now) {
		return 0
	}
	return g.activeUntil.Sub(now).Seconds()
}

// Clear resets the gate so normal buffering resumes
func (g *CooldownGate) Clear() {
	g.activeUntil = time.Time{}
}
