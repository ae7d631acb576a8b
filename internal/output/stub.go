//go:build !linux

package output

import (
	"errors"
	"time"
)

// Chip is not available on non-Linux platforms.
type Chip struct{}

// OpenChip returns an error on non-Linux platforms.
func OpenChip(name string) (*Chip, error) {
	return nil, errors.New("output: gpio not supported on this platform (requires Linux)")
}

// Close is not implemented on non-Linux platforms.
func (c *Chip) Close() error { return nil }

// RealBinary is not available on non-Linux platforms.
type RealBinary struct{}

// Binary is not implemented on non-Linux platforms.
func (c *Chip) Binary(pin int) (*RealBinary, error) {
	return nil, errors.New("output: gpio not supported")
}

// Set is not implemented on non-Linux platforms.
func (b *RealBinary) Set(on bool) {}

// Close is not implemented on non-Linux platforms.
func (b *RealBinary) Close() error { return nil }

// SoftPWM is not available on non-Linux platforms.
type SoftPWM struct{}

// Float is not implemented on non-Linux platforms.
func (c *Chip) Float(pin int, period time.Duration) (*SoftPWM, error) {
	return nil, errors.New("output: gpio not supported")
}

// SetDuty is not implemented on non-Linux platforms.
func (p *SoftPWM) SetDuty(percent float64) {}

// Close is not implemented on non-Linux platforms.
func (p *SoftPWM) Close() error { return nil }
