// Package bridge adapts a logical "drive direction + duty" request onto the
// one or two modulated pins (plus optional enable) of an h-bridge driving a
// solenoid. It owns the topology rules: 2-pin vs 3-pin bridges, half bridges,
// brake polarity and the duty inversion that brake polarity forces on the
// modulated pin.
package bridge

import (
	"errors"

	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/output"
)

// Direction selects the electrical state applied to the load.
type Direction int

const (
	// Forward drives current through the load in the "on" polarity.
	Forward Direction = iota
	// Reverse drives current in the opposite polarity. Requires a full
	// bridge (pin B present).
	Reverse
	// Brake shorts both load terminals together, slowing magnetic field
	// collapse.
	Brake
	// Coast isolates the load (or, without an enable pin, parks both pins
	// at the non-brake level).
	Coast
)

// String returns the direction name for logging.
func (d Direction) String() string {
	switch d {
	case Forward:
		return "FORWARD"
	case Reverse:
		return "REVERSE"
	case Brake:
		return "BRAKE"
	case Coast:
		return "COAST"
	}
	return "UNKNOWN"
}

// Configuration errors returned by New. These are fatal: a miswired bridge
// must never be driven.
var (
	ErrNoAPin          = errors.New("bridge: pin A is required")
	ErrHalfBridgePinB  = errors.New("bridge: cannot use a half-bridge and have pin B defined, choose one or the other")
	ErrNoPinBNoHalf    = errors.New("bridge: must either use a half-bridge or have pin B defined")
	ErrReverseNoBridge = errors.New("bridge: reverse polarity requires a full h-bridge (pin B)")
)

// Config describes the bridge wiring. A is the modulated side and is always
// required. Exactly one of {B present, HalfBridge} must hold.
type Config struct {
	A      output.Float
	B      output.Binary
	Enable output.Binary

	// HalfBridge marks a single-terminal driver with the load's other
	// terminal tied to a fixed reference. No reverse capability.
	HalfBridge bool

	// BrakeIsHigh is true when shorting the load means driving both pins
	// high. It decides the level pin B holds during PWM and inverts the
	// effective duty on pin A (high,high carries no current).
	BrakeIsHigh bool

	// Inverted flips the final pin A signal once more, for active-low
	// drive circuits. Independent of brake polarity.
	Inverted bool
}

// Adapter applies direction+duty requests to a configured bridge.
type Adapter struct {
	cfg Config
}

// New validates the pin combination and returns the adapter.
func New(cfg Config) (*Adapter, error) {
	if cfg.A == nil {
		return nil, ErrNoAPin
	}
	if cfg.HalfBridge && cfg.B != nil {
		return nil, ErrHalfBridgePinB
	}
	if !cfg.HalfBridge && cfg.B == nil {
		return nil, ErrNoPinBNoHalf
	}
	return &Adapter{cfg: cfg}, nil
}

// CanReverse reports whether the bridge can reverse polarity.
func (a *Adapter) CanReverse() bool {
	return a.cfg.B != nil
}

// HasEnable reports whether the bridge has a dedicated enable pin.
func (a *Adapter) HasEnable() bool {
	return a.cfg.Enable != nil
}

// Drive applies the requested direction at the given duty percentage.
// Within a PWM cycle the off portion is spent in brake (pin B held at the
// brake level) to sustain the field and avoid buzz; Coast is the only
// non-driven state.
func (a *Adapter) Drive(dir Direction, duty float64) {
	duty = output.Clamp(duty)

	// De-energising drops the enable first so the A/B ordering below
	// cannot glitch the load; energising raises it last for the same
	// reason.
	if dir == Coast {
		a.setEnable(false)
	}

	switch dir {
	case Forward:
		a.setB(a.cfg.BrakeIsHigh)
		a.setA(a.runLevel(duty))
	case Reverse:
		// Unreachable without pin B: construction validation forbids
		// reverse-pulsed (DC latching) loads on half bridges.
		a.setB(!a.cfg.BrakeIsHigh)
		a.setA(100 - a.runLevel(duty))
	case Brake:
		a.setB(a.cfg.BrakeIsHigh)
		a.setA(a.level(a.cfg.BrakeIsHigh))
	case Coast:
		a.setB(!a.cfg.BrakeIsHigh)
		a.setA(a.level(!a.cfg.BrakeIsHigh))
	}

	if dir != Coast {
		a.setEnable(true)
	}
}

// Release puts the bridge into its resting state: enable low (when present)
// and both pins at the non-brake level.
func (a *Adapter) Release() {
	a.Drive(Coast, 0)
}

// runLevel converts a duty request into the high-time fraction on pin A for
// forward drive. With brake high, both-high means "off", so the signal is
// inverted.
func (a *Adapter) runLevel(duty float64) float64 {
	if a.cfg.BrakeIsHigh {
		return 100 - duty
	}
	return duty
}

// level expresses a steady logic level as a duty percentage.
func (a *Adapter) level(high bool) float64 {
	if high {
		return 100
	}
	return 0
}

func (a *Adapter) setA(percentHigh float64) {
	if a.cfg.Inverted {
		percentHigh = 100 - percentHigh
	}
	a.cfg.A.SetDuty(percentHigh)
}

func (a *Adapter) setB(high bool) {
	if a.cfg.B != nil {
		a.cfg.B.Set(high)
	}
}

func (a *Adapter) setEnable(on bool) {
	if a.cfg.Enable != nil {
		a.cfg.Enable.Set(on)
	}
}
