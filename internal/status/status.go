// Package status provides a thread-safe status tracker for the solenoid
// daemon. The tick loop writes it; HTTP handlers read it.
package status

import (
	"sync"
	"time"

	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/solenoid"
)

// SwitchStatus is one switch's row in the status snapshot.
type SwitchStatus struct {
	Name       string
	Type       string
	State      solenoid.State
	Phase      solenoid.Phase
	Interlock  string
	LastChange time.Time
}

// Config contains daemon configuration for display.
type Config struct {
	TickMs   int64
	Broker   string
	Prefix   string
	HTTPAddr string
	GPIOChip string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type — safe to use after the lock is released.
type Snapshot struct {
	Switches      []SwitchStatus
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// Update replaces the switch rows. Called from the tick loop.
func (t *Tracker) Update(switches []SwitchStatus) {
	rows := make([]SwitchStatus, len(switches))
	copy(rows, switches)
	t.mu.Lock()
	t.snap.Switches = rows
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Switches = make([]SwitchStatus, len(t.snap.Switches))
	copy(s.Switches, t.snap.Switches)
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
