package output

// FakeFloat is a test double that records every duty write.
type FakeFloat struct {
	// Duty is the most recent value written.
	Duty float64

	// Writes contains every value passed to SetDuty, in order.
	Writes []float64
}

// NewFakeFloat creates a FakeFloat at 0% duty.
func NewFakeFloat() *FakeFloat {
	return &FakeFloat{}
}

// SetDuty records the write.
func (f *FakeFloat) SetDuty(percent float64) {
	f.Duty = Clamp(percent)
	f.Writes = append(f.Writes, f.Duty)
}

// Reset clears recorded writes.
func (f *FakeFloat) Reset() {
	f.Duty = 0
	f.Writes = nil
}

// FakeBinary is a test double that records every level write.
type FakeBinary struct {
	// On is the most recent level written.
	On bool

	// Writes contains every level passed to Set, in order.
	Writes []bool
}

// NewFakeBinary creates a FakeBinary at the low level.
func NewFakeBinary() *FakeBinary {
	return &FakeBinary{}
}

// Set records the write.
func (f *FakeBinary) Set(on bool) {
	f.On = on
	f.Writes = append(f.Writes, on)
}

// Reset clears recorded writes.
func (f *FakeBinary) Reset() {
	f.On = false
	f.Writes = nil
}
