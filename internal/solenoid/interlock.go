package solenoid

import "time"

// Decision is the coordinator's answer to an activation request.
type Decision int

const (
	// Granted means the switch may energise now. The coordinator has
	// recorded it as active.
	Granted Decision = iota
	// Deferred means a peer is active or the settle window is still
	// open; the switch must re-request on a later tick.
	Deferred
)

// String returns the decision name.
func (d Decision) String() string {
	if d == Granted {
		return "GRANTED"
	}
	return "DEFERRED"
}

// Coordinator serializes activation across groups of mutually exclusive
// switches so that high-draw solenoids never energise simultaneously.
// Groups are registries keyed by group id; switches hold only the id, which
// avoids back-pointer cycles between peers.
//
// All mutation happens on the scheduler tick goroutine, so no locking is
// needed. Deferred requesters are served in whatever order their ticks land;
// ordering among simultaneous requesters is best-effort only.
type Coordinator struct {
	groups map[string]*interlockGroup
}

type interlockGroup struct {
	// active holds members that have been granted activation and not yet
	// deactivated (logical state ON or TURNING_ON and actually driving).
	active map[string]bool

	// offAt records when each member was last deactivated, for the
	// post-peer-off settle wait.
	offAt map[string]time.Time
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{groups: make(map[string]*interlockGroup)}
}

func (c *Coordinator) group(id string) *interlockGroup {
	g := c.groups[id]
	if g == nil {
		g = &interlockGroup{
			active: make(map[string]bool),
			offAt:  make(map[string]time.Time),
		}
		c.groups[id] = g
	}
	return g
}

// RequestActivation asks for clearance to energise the named switch. It is
// granted only when no peer in the group is active and at least wait has
// passed since the last peer deactivation, to let physical transients die
// down. On Granted the switch is immediately recorded active.
//
// An empty group id means the switch is uninterlocked and always granted.
func (c *Coordinator) RequestActivation(groupID, switchID string, now time.Time, wait time.Duration) Decision {
	if groupID == "" {
		return Granted
	}
	g := c.group(groupID)

	for id := range g.active {
		if id != switchID {
			return Deferred
		}
	}

	if wait > 0 {
		for id, off := range g.offAt {
			if id == switchID {
				continue
			}
			if now.Sub(off) < wait {
				return Deferred
			}
		}
	}

	g.active[switchID] = true
	return Granted
}

// NotifyDeactivated reports that a switch stopped energising. Deactivation
// is unconditional and immediate: removing load is always safe, only adding
// it is gated. Calling this for a switch that was never granted is a no-op.
func (c *Coordinator) NotifyDeactivated(groupID, switchID string, now time.Time) {
	if groupID == "" {
		return
	}
	g := c.groups[groupID]
	if g == nil || !g.active[switchID] {
		return
	}
	delete(g.active, switchID)
	g.offAt[switchID] = now
}

// Active reports whether the named switch currently holds an activation.
func (c *Coordinator) Active(groupID, switchID string) bool {
	if groupID == "" {
		return false
	}
	g := c.groups[groupID]
	return g != nil && g.active[switchID]
}
