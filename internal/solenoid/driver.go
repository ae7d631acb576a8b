package solenoid

import (
	"errors"
	"time"

	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/bridge"
)

// seatingCycles is how many full energise/hold alternation cycles an AC/DC
// turn-on runs after the initial pull-in before settling into steady hold.
// The alternation guarantees full plunger seating against friction and
// back-pressure; with a typical energise duration of a second or so, four
// cycles gives several seconds of seating. Tune against real hardware.
const seatingCycles = 4

// latchParkDelay is how long a 3-pin bridge holds brake after the final
// latching pulse before dropping enable and parking at coast. Releasing a
// 2-pin bridge asymmetrically can kick the plunger off its magnet, so only
// the enable topology gets the park step.
const latchParkDelay = time.Second

// Driver is the solenoid switch state machine. It owns its bridge pins
// exclusively and is advanced by periodic non-blocking ticks from a single
// scheduler goroutine; TurnOn/TurnOff only latch the requested target, all
// pin activity happens inside Tick.
type Driver struct {
	cfg    Config
	bridge *bridge.Adapter
	locks  *Coordinator

	want  bool
	state State
	phase Phase
	timer PhaseTimer

	pulsesDone int
	seatCycles int
	lastChange time.Time

	events []Event
}

// NewDriver validates the configuration against the bridge topology and
// returns a driver in the OFF/IDLE state. All failure happens here: a
// successfully built driver cannot fail afterwards.
func NewDriver(cfg Config, br *bridge.Adapter, locks *Coordinator) (*Driver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if br == nil {
		return nil, errors.New("solenoid: bridge adapter is required")
	}
	if cfg.Type == TypeDCLatching && !br.CanReverse() {
		return nil, ErrLatchingHalfBridge
	}
	return &Driver{
		cfg:    cfg,
		bridge: br,
		locks:  locks,
		state:  StateOff,
		phase:  PhaseIdle,
	}, nil
}

// Name returns the switch name.
func (d *Driver) Name() string { return d.cfg.Name }

// Config returns a copy of the drive parameters.
func (d *Driver) Config() Config { return d.cfg }

// State returns the current logical switch state.
func (d *Driver) State() State { return d.state }

// Phase returns the current drive phase.
func (d *Driver) Phase() Phase { return d.phase }

// LastChange returns when the logical state last changed.
func (d *Driver) LastChange() time.Time { return d.lastChange }

// TurnOn requests the ON state. Re-requesting the current target is a no-op.
func (d *Driver) TurnOn() { d.want = true }

// TurnOff requests the OFF state. Turning off is also the cancellation
// mechanism for an in-progress turn-on; there is no separate primitive.
func (d *Driver) TurnOff() { d.want = false }

// Tick advances the state machine to the given time and returns any state
// transitions that occurred. It never blocks; suspension is expressed as
// "phase not yet expired, come back next tick".
func (d *Driver) Tick(now time.Time) []Event {
	d.events = nil
	d.applyRequest(now)
	d.advance(now)
	return d.events
}

// applyRequest commits a pending target change, honoring the abort rules:
// AC/DC sequences abort immediately, a DC latching driver finishes its
// current polarity pulse first (never interrupt an active pulse; the bridge
// must not be left mid-polarity).
func (d *Driver) applyRequest(now time.Time) {
	switch {
	case d.want && (d.state == StateOff || d.state == StateTurningOff):
		if d.cfg.Type == TypeDCLatching && d.phase == PhasePulse {
			return
		}
		d.setState(StateTurningOn, now)
		d.phase = PhaseIdle
		d.timer.Stop()
		d.pulsesDone = 0
		d.seatCycles = 0

	case !d.want && (d.state == StateOn || d.state == StateTurningOn):
		if d.cfg.Type == TypeDCLatching && d.phase == PhasePulse {
			return
		}
		// Leaving the energised set is never gated.
		if d.locks != nil {
			d.locks.NotifyDeactivated(d.cfg.InterlockGroup, d.cfg.Name, now)
		}
		d.setState(StateTurningOff, now)
		d.phase = PhaseIdle
		d.timer.Stop()
		d.pulsesDone = 0
	}
}

func (d *Driver) advance(now time.Time) {
	switch d.state {
	case StateTurningOn:
		if d.cfg.Type == TypeDCLatching {
			d.advancePulseTrain(now, bridge.Forward, StateOn)
		} else {
			d.advanceEnergise(now)
		}
	case StateTurningOff:
		if d.cfg.Type == TypeDCLatching {
			d.advancePulseTrain(now, bridge.Reverse, StateOff)
		} else {
			// Non-latching turn-off is never phased: remove all
			// power and let the spring return the plunger.
			d.bridge.Release()
			d.phase = PhaseIdle
			d.timer.Stop()
			d.setState(StateOff, now)
		}
	case StateOn, StateOff:
		d.advanceSteady(now)
	}
}

// advanceEnergise runs the AC/DC turn-on sequence: pull-in at energise
// power, an energise/hold alternation window, then steady hold forever.
func (d *Driver) advanceEnergise(now time.Time) {
	switch d.phase {
	case PhaseIdle:
		if !d.clearInterlock(now) {
			return
		}
		d.phase = PhaseEnergise
		d.timer.Start(now)
		d.bridge.Drive(bridge.Forward, d.cfg.EnergisePower)

	case PhaseEnergise:
		if !d.timer.Expired(now, d.cfg.EnergiseDuration) {
			return
		}
		d.phase = PhaseHold
		d.timer.Start(now)
		d.bridge.Drive(bridge.Forward, d.cfg.HoldPower)

	case PhaseHold:
		if !d.timer.Expired(now, d.cfg.EnergiseDuration) {
			return
		}
		d.seatCycles++
		if d.seatCycles >= seatingCycles {
			// Plunger seated; stay in hold indefinitely.
			d.timer.Stop()
			d.setState(StateOn, now)
			return
		}
		d.phase = PhaseEnergise
		d.timer.Start(now)
		d.bridge.Drive(bridge.Forward, d.cfg.EnergisePower)
	}
}

// advancePulseTrain runs a DC latching transition in the given polarity:
// full-power pulses of the energise duration separated by coast intervals.
// Actuation is unconfirmed (no feedback sensing), so every configured
// attempt is sent before committing the terminal state.
func (d *Driver) advancePulseTrain(now time.Time, dir bridge.Direction, terminal State) {
	switch d.phase {
	case PhaseIdle:
		if terminal == StateOn && !d.clearInterlock(now) {
			return
		}
		d.startPulse(now, dir)

	case PhasePulse:
		if !d.timer.Expired(now, d.cfg.EnergiseDuration) {
			return
		}
		d.pulsesDone++
		if d.pulsesDone >= d.cfg.LatchRedoCount {
			d.finishPulseTrain(now, terminal)
			return
		}
		d.bridge.Release()
		d.phase = PhaseSettle
		d.timer.Start(now)

	case PhaseSettle:
		if d.timer.Expired(now, d.cfg.LatchRedoInterval) {
			d.startPulse(now, dir)
		}
	}
}

func (d *Driver) startPulse(now time.Time, dir bridge.Direction) {
	d.phase = PhasePulse
	d.timer.Start(now)
	d.bridge.Drive(dir, 100)
}

// finishPulseTrain commits the terminal state after the last pulse. A 3-pin
// bridge lingers in brake so the field collapses slowly before enable drops
// and the pins park at coast; see latchParkDelay.
func (d *Driver) finishPulseTrain(now time.Time, terminal State) {
	d.setState(terminal, now)
	if d.bridge.HasEnable() {
		d.bridge.Drive(bridge.Brake, 0)
		d.phase = PhaseSettle
		d.timer.Start(now)
		return
	}
	d.bridge.Release()
	d.phase = PhaseIdle
	d.timer.Stop()
}

// advanceSteady completes the trailing 3-pin park after a latching
// transition has already reached its terminal state.
func (d *Driver) advanceSteady(now time.Time) {
	if d.cfg.Type != TypeDCLatching {
		return
	}
	if d.phase == PhaseSettle && d.timer.Expired(now, latchParkDelay) {
		d.bridge.Release()
		d.phase = PhaseIdle
		d.timer.Stop()
	}
}

func (d *Driver) clearInterlock(now time.Time) bool {
	if d.locks == nil || d.cfg.InterlockGroup == "" {
		return true
	}
	return d.locks.RequestActivation(d.cfg.InterlockGroup, d.cfg.Name, now, d.cfg.InterlockWait) == Granted
}

func (d *Driver) setState(s State, now time.Time) {
	if s == d.state {
		return
	}
	d.state = s
	d.lastChange = now
	d.events = append(d.events, Event{Timestamp: now, Switch: d.cfg.Name, State: s})
}
