package solenoid

import "time"

// PhaseTimer tracks elapsed time within a drive phase using monotonic time
// checkpoints. It never blocks: the driver polls Expired on every scheduler
// tick. No side effects beyond bookkeeping.
type PhaseTimer struct {
	start   time.Time
	running bool
}

// Start records the phase start time.
func (t *PhaseTimer) Start(now time.Time) {
	t.start = now
	t.running = true
}

// Stop clears the timer.
func (t *PhaseTimer) Stop() {
	t.running = false
}

// Running reports whether a phase is being timed.
func (t *PhaseTimer) Running() bool {
	return t.running
}

// Elapsed returns the time since Start, or zero if not running.
func (t *PhaseTimer) Elapsed(now time.Time) time.Duration {
	if !t.running {
		return 0
	}
	return now.Sub(t.start)
}

// Expired reports whether at least threshold has passed since Start.
// A stopped timer never expires.
func (t *PhaseTimer) Expired(now time.Time, threshold time.Duration) bool {
	return t.running && now.Sub(t.start) >= threshold
}
