// Package solenoid contains the runtime driver state machine for irrigation
// solenoid valves. Each driver presents a plain on/off switch and internally
// sequences bridge directions and PWM duty levels over time according to the
// solenoid technology it is configured for (DC latching, AC, DC).
//
// This package has NO hardware or OS dependencies beyond the bridge adapter
// it is handed. Time is always injectable: nothing blocks, and all pin
// activity happens inside Tick, driven by an external scheduler loop.
package solenoid

import (
	"errors"
	"fmt"
	"time"
)

// Type identifies the solenoid technology. The set is closed; driver
// behavior is dispatched with a switch over this enum.
type Type int

const (
	// TypeDCLatching solenoids move and hold position on a brief
	// directional pulse. Polarity selects the position, so a full
	// h-bridge is mandatory.
	TypeDCLatching Type = iota
	// TypeAC solenoids are conventionally 24VAC but are happy with short
	// bursts of PWM-modulated DC.
	TypeAC
	// TypeDC solenoids stay energised for as long as power is applied.
	TypeDC
)

// String returns the configuration name of the type.
func (t Type) String() string {
	switch t {
	case TypeDCLatching:
		return "DC_LATCHING"
	case TypeAC:
		return "AC"
	case TypeDC:
		return "DC"
	}
	return "UNKNOWN"
}

// ParseType converts a configuration string into a Type.
func ParseType(s string) (Type, error) {
	switch s {
	case "DC_LATCHING":
		return TypeDCLatching, nil
	case "AC":
		return TypeAC, nil
	case "DC":
		return TypeDC, nil
	}
	return 0, fmt.Errorf("unknown solenoid_type %q (want DC_LATCHING, AC or DC)", s)
}

// State is the logical switch state visible to callers.
type State string

const (
	StateOff        State = "OFF"
	StateTurningOn  State = "TURNING_ON"
	StateOn         State = "ON"
	StateTurningOff State = "TURNING_OFF"
)

// Phase is the driver's position within a timed drive sequence.
type Phase string

const (
	PhaseIdle     Phase = "IDLE"
	PhaseEnergise Phase = "ENERGISE"
	PhaseHold     Phase = "HOLD"
	PhasePulse    Phase = "PULSE"
	PhaseSettle   Phase = "SETTLE"
)

// Event records a state transition, to be published by the caller.
type Event struct {
	Timestamp time.Time
	Switch    string
	State     State
}

// Config holds the immutable per-switch drive parameters.
type Config struct {
	// Name identifies the switch, also toward the interlock coordinator.
	Name string

	Type Type

	// EnergiseDuration is the pull-in interval for AC/DC types and the
	// pulse width for DC latching.
	EnergiseDuration time.Duration

	// EnergisePower and HoldPower are duty percentages in [0,100].
	EnergisePower float64
	HoldPower     float64

	// LatchRedoCount is how many pulses a DC latching transition issues;
	// actuation is unconfirmed, so all of them are sent unconditionally.
	LatchRedoCount int

	// LatchRedoInterval separates consecutive latching pulses.
	LatchRedoInterval time.Duration

	// InterlockGroup names the mutual-exclusion group, empty for none.
	InterlockGroup string

	// InterlockWait is the settle time after all group peers turn off
	// before this switch may energise.
	InterlockWait time.Duration
}

// Configuration limits, matching the declarative schema.
const (
	MinEnergiseDuration  = 10 * time.Millisecond
	MaxEnergiseDuration  = 3 * time.Second
	MinLatchRedoCount    = 1
	MaxLatchRedoCount    = 5
	MinLatchRedoInterval = 500 * time.Millisecond
	MaxLatchRedoInterval = 3 * time.Second
)

// Defaults for optional configuration fields.
const (
	DefaultEnergisePower     = 95.0
	DefaultHoldPower         = 55.0
	DefaultLatchRedoCount    = 3
	DefaultLatchRedoInterval = 500 * time.Millisecond
)

// ErrLatchingHalfBridge rejects DC latching solenoids on half bridges: a
// full h-bridge is required to reverse pulse polarity.
var ErrLatchingHalfBridge = errors.New("solenoid: DC latching requires a full h-bridge (pin B) to reverse pulse polarity")

// Validate checks field ranges. NewDriver calls this, so a driver can only
// be built from a valid configuration.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errors.New("solenoid: name is required")
	}
	switch c.Type {
	case TypeDCLatching, TypeAC, TypeDC:
	default:
		return fmt.Errorf("solenoid %s: invalid solenoid type %d", c.Name, c.Type)
	}
	if c.EnergiseDuration < MinEnergiseDuration || c.EnergiseDuration > MaxEnergiseDuration {
		return fmt.Errorf("solenoid %s: energise duration %v out of range [%v, %v]",
			c.Name, c.EnergiseDuration, MinEnergiseDuration, MaxEnergiseDuration)
	}
	if c.EnergisePower < 0 || c.EnergisePower > 100 {
		return fmt.Errorf("solenoid %s: energise power %.1f%% out of range [0, 100]", c.Name, c.EnergisePower)
	}
	if c.HoldPower < 0 || c.HoldPower > 100 {
		return fmt.Errorf("solenoid %s: hold power %.1f%% out of range [0, 100]", c.Name, c.HoldPower)
	}
	if c.Type == TypeDCLatching {
		if c.LatchRedoCount < MinLatchRedoCount || c.LatchRedoCount > MaxLatchRedoCount {
			return fmt.Errorf("solenoid %s: latch redo count %d out of range [%d, %d]",
				c.Name, c.LatchRedoCount, MinLatchRedoCount, MaxLatchRedoCount)
		}
		if c.LatchRedoInterval < MinLatchRedoInterval || c.LatchRedoInterval > MaxLatchRedoInterval {
			return fmt.Errorf("solenoid %s: latch redo interval %v out of range [%v, %v]",
				c.Name, c.LatchRedoInterval, MinLatchRedoInterval, MaxLatchRedoInterval)
		}
	}
	if c.InterlockWait < 0 {
		return fmt.Errorf("solenoid %s: interlock wait %v must not be negative", c.Name, c.InterlockWait)
	}
	return nil
}
