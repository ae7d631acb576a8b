package solenoid

import (
	"testing"
	"time"

	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/bridge"
	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/output"
)

func acConfig(name string) Config {
	return Config{
		Name:             name,
		Type:             TypeAC,
		EnergiseDuration: time.Second,
		EnergisePower:    95,
		HoldPower:        55,
	}
}

func latchConfig(name string) Config {
	return Config{
		Name:              name,
		Type:              TypeDCLatching,
		EnergiseDuration:  20 * time.Millisecond,
		EnergisePower:     100,
		HoldPower:         55,
		LatchRedoCount:    3,
		LatchRedoInterval: 500 * time.Millisecond,
	}
}

// testRig wires a driver to fake pins on a 2-pin full bridge.
type testRig struct {
	d *Driver
	a *output.FakeFloat
	b *output.FakeBinary
}

func newRig(t *testing.T, cfg Config, brakeIsHigh bool, locks *Coordinator) *testRig {
	t.Helper()
	a := output.NewFakeFloat()
	b := output.NewFakeBinary()
	br, err := bridge.New(bridge.Config{A: a, B: b, BrakeIsHigh: brakeIsHigh})
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	d, err := NewDriver(cfg, br, locks)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}
	return &testRig{d: d, a: a, b: b}
}

func TestNewDriverValidation(t *testing.T) {
	a := output.NewFakeFloat()
	b := output.NewFakeBinary()
	full, _ := bridge.New(bridge.Config{A: a, B: b})
	half, _ := bridge.New(bridge.Config{A: a, HalfBridge: true})

	cases := []struct {
		name string
		cfg  Config
		br   *bridge.Adapter
	}{
		{"missing name", Config{Type: TypeAC, EnergiseDuration: time.Second}, full},
		{"energise too short", withDuration(acConfig("v"), 5*time.Millisecond), full},
		{"energise too long", withDuration(acConfig("v"), 5*time.Second), full},
		{"energise power out of range", withEnergisePower(acConfig("v"), 150), full},
		{"hold power negative", withHoldPower(acConfig("v"), -1), full},
		{"latch redo count too high", withRedoCount(latchConfig("v"), 9), full},
		{"latch redo interval too short", withRedoInterval(latchConfig("v"), 100*time.Millisecond), full},
		{"negative interlock wait", withInterlockWait(acConfig("v"), -time.Second), full},
		{"latching on half bridge", latchConfig("v"), half},
		{"nil bridge", acConfig("v"), nil},
	}
	for _, tc := range cases {
		if _, err := NewDriver(tc.cfg, tc.br, nil); err == nil {
			t.Errorf("%s: NewDriver succeeded, want error", tc.name)
		}
	}

	if _, err := NewDriver(latchConfig("v"), half, nil); err != ErrLatchingHalfBridge {
		t.Errorf("latching on half bridge: got %v, want ErrLatchingHalfBridge", err)
	}
}

func withDuration(c Config, d time.Duration) Config      { c.EnergiseDuration = d; return c }
func withEnergisePower(c Config, p float64) Config       { c.EnergisePower = p; return c }
func withHoldPower(c Config, p float64) Config           { c.HoldPower = p; return c }
func withRedoCount(c Config, n int) Config               { c.LatchRedoCount = n; return c }
func withRedoInterval(c Config, d time.Duration) Config  { c.LatchRedoInterval = d; return c }
func withInterlockWait(c Config, d time.Duration) Config { c.InterlockWait = d; return c }

func TestACTurnOnSequence(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rig := newRig(t, acConfig("valve"), false, nil)

	rig.d.TurnOn()
	events := rig.d.Tick(t0)
	if len(events) != 1 || events[0].State != StateTurningOn {
		t.Fatalf("first tick events = %v, want single TURNING_ON", events)
	}
	if rig.a.Duty != 95 {
		t.Fatalf("pull-in duty = %v, want 95", rig.a.Duty)
	}
	if rig.d.Phase() != PhaseEnergise {
		t.Fatalf("phase = %v, want ENERGISE", rig.d.Phase())
	}

	// Mid-phase tick changes nothing.
	rig.d.Tick(t0.Add(500 * time.Millisecond))
	if len(rig.a.Writes) != 1 {
		t.Fatalf("mid-phase tick rewrote pin A: %v", rig.a.Writes)
	}

	// Advance in one-second steps through the pull-in and the
	// energise/hold seating alternation.
	var onAt time.Time
	for i := 1; i <= 10 && onAt.IsZero(); i++ {
		now := t0.Add(time.Duration(i) * time.Second)
		for _, e := range rig.d.Tick(now) {
			if e.State == StateOn {
				onAt = now
			}
		}
	}
	if onAt.IsZero() {
		t.Fatal("driver never reached ON")
	}
	if got := onAt.Sub(t0); got != 8*time.Second {
		t.Errorf("reached ON after %v, want 8s (pull-in + 4 seating cycles)", got)
	}
	if rig.d.Phase() != PhaseHold || rig.a.Duty != 55 {
		t.Errorf("terminal state phase=%v duty=%v, want HOLD at 55", rig.d.Phase(), rig.a.Duty)
	}

	want := []float64{95, 55, 95, 55, 95, 55, 95, 55}
	if len(rig.a.Writes) != len(want) {
		t.Fatalf("pin A writes = %v, want %v", rig.a.Writes, want)
	}
	for i, w := range want {
		if rig.a.Writes[i] != w {
			t.Fatalf("pin A writes = %v, want %v", rig.a.Writes, want)
		}
	}

	// Steady hold: further ticks write nothing.
	rig.d.Tick(onAt.Add(time.Hour))
	if len(rig.a.Writes) != len(want) {
		t.Error("steady hold kept writing to pin A")
	}
}

func TestACTurnOffImmediateFromOn(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rig := newRig(t, acConfig("valve"), false, nil)

	rig.d.TurnOn()
	now := t0
	for rig.d.State() != StateOn {
		now = now.Add(time.Second)
		rig.d.Tick(now)
	}

	rig.d.TurnOff()
	events := rig.d.Tick(now.Add(10 * time.Millisecond))
	if rig.d.State() != StateOff {
		t.Fatalf("state = %v, want OFF within one tick", rig.d.State())
	}
	if len(events) != 2 || events[0].State != StateTurningOff || events[1].State != StateOff {
		t.Errorf("events = %v, want TURNING_OFF then OFF", events)
	}
	// Coast with brake low parks both pins high.
	if rig.a.Duty != 100 || !rig.b.On {
		t.Errorf("pins after turn-off: A=%v B=%v, want coast levels", rig.a.Duty, rig.b.On)
	}
}

func TestACAbortDuringTurnOn(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rig := newRig(t, acConfig("valve"), false, nil)

	rig.d.TurnOn()
	rig.d.Tick(t0)

	// Abort mid-energise: no pending phase may continue.
	rig.d.TurnOff()
	rig.d.Tick(t0.Add(100 * time.Millisecond))
	if rig.d.State() != StateOff {
		t.Fatalf("state = %v, want OFF within one tick of the abort", rig.d.State())
	}

	writes := len(rig.a.Writes)
	rig.d.Tick(t0.Add(5 * time.Second))
	if len(rig.a.Writes) != writes || rig.d.State() != StateOff {
		t.Error("aborted sequence kept running")
	}
}

func TestLatchingPulseTrain(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	// Brake high: pin B rides high while pulsing forward, low during coast.
	rig := newRig(t, latchConfig("valve"), true, nil)

	rig.d.TurnOn()
	rig.d.Tick(t0)
	if rig.d.Phase() != PhasePulse || !rig.b.On {
		t.Fatalf("first pulse not driving: phase=%v B=%v", rig.d.Phase(), rig.b.On)
	}

	// Pulse 1 ends, coast; pulse 2; coast; pulse 3; done.
	steps := []struct {
		at    time.Duration
		state State
	}{
		{20 * time.Millisecond, StateTurningOn},   // pulse 1 -> coast
		{520 * time.Millisecond, StateTurningOn},  // pulse 2
		{540 * time.Millisecond, StateTurningOn},  // coast
		{1040 * time.Millisecond, StateTurningOn}, // pulse 3
		{1060 * time.Millisecond, StateOn},        // final pulse done -> ON immediately
	}
	for _, s := range steps {
		rig.d.Tick(t0.Add(s.at))
		if rig.d.State() != s.state {
			t.Fatalf("at +%v: state = %v, want %v", s.at, rig.d.State(), s.state)
		}
	}

	// Exactly 3 forward pulses, each bracketed by a coast release.
	wantB := []bool{true, false, true, false, true, false}
	if len(rig.b.Writes) != len(wantB) {
		t.Fatalf("pin B writes = %v, want %v", rig.b.Writes, wantB)
	}
	for i, w := range wantB {
		if rig.b.Writes[i] != w {
			t.Fatalf("pin B writes = %v, want %v", rig.b.Writes, wantB)
		}
	}
	if rig.d.Phase() != PhaseIdle {
		t.Errorf("phase after train = %v, want IDLE (2-pin bridge has no park settle)", rig.d.Phase())
	}
}

func TestLatchingTurnOffReversesPolarity(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rig := newRig(t, latchConfig("valve"), true, nil)

	rig.d.TurnOn()
	now := t0
	for rig.d.State() != StateOn {
		now = now.Add(20 * time.Millisecond)
		rig.d.Tick(now)
	}

	rig.d.TurnOff()
	rig.d.Tick(now.Add(20 * time.Millisecond))
	if rig.d.State() != StateTurningOff || rig.d.Phase() != PhasePulse {
		t.Fatalf("state=%v phase=%v, want TURNING_OFF/PULSE", rig.d.State(), rig.d.Phase())
	}
	// Reverse with brake high: A runs at full duty, B at the non-brake level.
	if rig.a.Duty != 100 || rig.b.On {
		t.Errorf("reverse pulse pins A=%v B=%v, want A=100 B=low", rig.a.Duty, rig.b.On)
	}

	now = now.Add(20 * time.Millisecond)
	for i := 0; i < 200 && rig.d.State() != StateOff; i++ {
		now = now.Add(20 * time.Millisecond)
		rig.d.Tick(now)
	}
	if rig.d.State() != StateOff {
		t.Fatal("driver never reached OFF")
	}
}

func TestLatchingEnableParkAfterTrain(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := output.NewFakeFloat()
	b := output.NewFakeBinary()
	en := output.NewFakeBinary()
	br, err := bridge.New(bridge.Config{A: a, B: b, Enable: en, BrakeIsHigh: true})
	if err != nil {
		t.Fatalf("bridge.New: %v", err)
	}
	d, err := NewDriver(latchConfig("valve"), br, nil)
	if err != nil {
		t.Fatalf("NewDriver: %v", err)
	}

	d.TurnOn()
	now := t0
	for d.State() != StateOn {
		now = now.Add(20 * time.Millisecond)
		d.Tick(now)
	}

	// After the final pulse a 3-pin bridge lingers in brake with enable
	// high, letting the field collapse slowly.
	if d.Phase() != PhaseSettle {
		t.Fatalf("phase = %v, want SETTLE", d.Phase())
	}
	if !en.On || !b.On {
		t.Errorf("during park settle: enable=%v B=%v, want brake with enable high", en.On, b.On)
	}

	// One second later enable drops and the pins park at coast.
	d.Tick(now.Add(time.Second))
	if d.Phase() != PhaseIdle {
		t.Errorf("phase after park = %v, want IDLE", d.Phase())
	}
	if en.On {
		t.Error("enable still high after park")
	}
	if b.On {
		t.Error("pin B not at coast level after park")
	}
	if d.State() != StateOn {
		t.Errorf("state = %v, want ON throughout the park", d.State())
	}
}

func TestLatchingCompletesPulseBeforeReversal(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rig := newRig(t, latchConfig("valve"), true, nil)

	rig.d.TurnOn()
	rig.d.Tick(t0)

	// Reverse request lands mid-pulse: the active polarity pulse must
	// complete before it is honored.
	rig.d.TurnOff()
	rig.d.Tick(t0.Add(10 * time.Millisecond))
	if rig.d.State() != StateTurningOn || rig.d.Phase() != PhasePulse {
		t.Fatalf("mid-pulse: state=%v phase=%v, want TURNING_ON/PULSE", rig.d.State(), rig.d.Phase())
	}

	// Pulse completes on schedule.
	rig.d.Tick(t0.Add(20 * time.Millisecond))
	if rig.d.Phase() == PhasePulse {
		t.Fatal("pulse did not end at its full duration")
	}

	// Next tick honors the reversal with a fresh pulse budget.
	rig.d.Tick(t0.Add(21 * time.Millisecond))
	if rig.d.State() != StateTurningOff || rig.d.Phase() != PhasePulse {
		t.Fatalf("after pulse: state=%v phase=%v, want TURNING_OFF/PULSE", rig.d.State(), rig.d.Phase())
	}
	if rig.a.Duty != 100 || rig.b.On {
		t.Errorf("reverse pulse pins A=%v B=%v, want reversed polarity", rig.a.Duty, rig.b.On)
	}
}

func TestTurnOnIdempotent(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	rig := newRig(t, acConfig("valve"), false, nil)

	rig.d.TurnOn()
	rig.d.Tick(t0)
	writes := len(rig.a.Writes)

	// Repeat requests while TURNING_ON and while ON: no extra pin
	// transitions beyond the original sequence.
	rig.d.TurnOn()
	rig.d.Tick(t0.Add(time.Millisecond))
	if len(rig.a.Writes) != writes {
		t.Error("repeated turn_on while TURNING_ON rewrote pins")
	}

	now := t0
	for rig.d.State() != StateOn {
		now = now.Add(time.Second)
		rig.d.Tick(now)
	}
	writes = len(rig.a.Writes)
	rig.d.TurnOn()
	rig.d.Tick(now.Add(time.Second))
	if len(rig.a.Writes) != writes {
		t.Error("repeated turn_on while ON rewrote pins")
	}
}

func TestStateEdgesConfined(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	legal := map[State][]State{
		StateOff:        {StateTurningOn},
		StateTurningOn:  {StateOn, StateTurningOff},
		StateOn:         {StateTurningOff},
		StateTurningOff: {StateOff, StateTurningOn},
	}

	for _, cfg := range []Config{acConfig("valve"), latchConfig("valve")} {
		rig := newRig(t, cfg, true, nil)
		prev := rig.d.State()

		check := func(events []Event) {
			for _, e := range events {
				ok := false
				for _, next := range legal[prev] {
					if e.State == next {
						ok = true
					}
				}
				if !ok {
					t.Fatalf("%v: illegal edge %v -> %v", cfg.Type, prev, e.State)
				}
				prev = e.State
			}
		}

		now := t0
		rig.d.TurnOn()
		for i := 0; i < 1000 && rig.d.State() != StateOn; i++ {
			now = now.Add(10 * time.Millisecond)
			check(rig.d.Tick(now))
		}
		rig.d.TurnOff()
		for i := 0; i < 1000 && rig.d.State() != StateOff; i++ {
			now = now.Add(10 * time.Millisecond)
			check(rig.d.Tick(now))
		}
		if rig.d.State() != StateOff {
			t.Fatalf("%v: never returned to OFF", cfg.Type)
		}
	}
}

func TestInterlockedDriversSerialize(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	locks := NewCoordinator()

	cfgA := acConfig("zone1")
	cfgA.InterlockGroup = "front"
	cfgA.InterlockWait = time.Second
	cfgB := acConfig("zone2")
	cfgB.InterlockGroup = "front"
	cfgB.InterlockWait = time.Second

	ra := newRig(t, cfgA, false, locks)
	rb := newRig(t, cfgB, false, locks)

	tick := func(now time.Time) {
		ra.d.Tick(now)
		rb.d.Tick(now)
	}

	// A turns on and reaches ON.
	ra.d.TurnOn()
	now := t0
	for ra.d.State() != StateOn {
		now = now.Add(time.Second)
		tick(now)
	}

	// B requests ON: it stays pending without touching its bridge.
	rb.d.TurnOn()
	for i := 0; i < 5; i++ {
		now = now.Add(time.Second)
		tick(now)
	}
	if rb.d.State() != StateTurningOn {
		t.Fatalf("B state = %v, want TURNING_ON pending", rb.d.State())
	}
	if len(rb.a.Writes) != 0 {
		t.Fatalf("B actuated its bridge while deferred: %v", rb.a.Writes)
	}

	// A turns off; B stays deferred through the settle window.
	ra.d.TurnOff()
	offAt := now.Add(10 * time.Millisecond)
	tick(offAt)
	if ra.d.State() != StateOff {
		t.Fatalf("A state = %v, want OFF", ra.d.State())
	}

	tick(offAt.Add(500 * time.Millisecond))
	if len(rb.a.Writes) != 0 {
		t.Fatal("B energised inside the settle window")
	}

	tick(offAt.Add(1001 * time.Millisecond))
	if len(rb.a.Writes) == 0 {
		t.Fatal("B did not energise after the settle window")
	}
	if rb.a.Duty != 95 {
		t.Errorf("B pull-in duty = %v, want 95", rb.a.Duty)
	}
}
