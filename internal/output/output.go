// Package output provides the pin-level capabilities a solenoid bridge is
// wired to: a modulated ("float") output carrying a PWM duty cycle and a
// plain binary output. The real implementations use the Linux GPIO character
// device; fakes allow testing without hardware.
package output

// Float is a modulated output. SetDuty applies a duty cycle as a percentage
// in [0,100]; values outside the range are clamped. Writes are assumed to
// reach the hardware with negligible latency and cannot fail.
type Float interface {
	SetDuty(percent float64)
}

// Binary is a simple on/off output.
type Binary interface {
	Set(on bool)
}

// Clamp bounds a duty percentage to [0,100].
func Clamp(percent float64) float64 {
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
