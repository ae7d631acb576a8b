//go:build linux

package output

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// Chip wraps a GPIO character device and hands out output lines.
type Chip struct {
	chip *gpiocdev.Chip
}

// OpenChip opens the named GPIO chip (e.g. "gpiochip0").
func OpenChip(name string) (*Chip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &Chip{chip: chip}, nil
}

// Close releases the chip. Lines requested from it must be closed first.
func (c *Chip) Close() error {
	return c.chip.Close()
}

// RealBinary drives a single GPIO line as a binary output.
type RealBinary struct {
	line *gpiocdev.Line
	pin  int
}

// Binary requests the given line as an output, initially low.
func (c *Chip) Binary(pin int) (*RealBinary, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &RealBinary{line: line, pin: pin}, nil
}

// Set drives the line high or low. Chardev errors are logged and dropped;
// the driver layer treats pin writes as infallible.
func (b *RealBinary) Set(on bool) {
	v := 0
	if on {
		v = 1
	}
	if err := b.line.SetValue(v); err != nil {
		log.Printf("gpio: write pin %d: %v", b.pin, err)
	}
}

// Close reverts the line to low and releases it.
func (b *RealBinary) Close() error {
	if err := b.line.SetValue(0); err != nil {
		log.Printf("gpio: park pin %d low: %v", b.pin, err)
	}
	if err := b.line.Close(); err != nil {
		return fmt.Errorf("close pin %d: %w", b.pin, err)
	}
	return nil
}

// SoftPWM drives a GPIO line as a software-PWM float output. Solenoid drive
// tolerates low PWM frequencies, so a timer goroutine toggling the line at a
// period of a few milliseconds is sufficient; no hardware PWM peripheral is
// required.
type SoftPWM struct {
	line   *gpiocdev.Line
	pin    int
	period time.Duration

	mu   sync.Mutex
	duty float64

	done chan struct{}
	wg   sync.WaitGroup
}

// Float requests the given line as a software-PWM output with the given
// cycle period, initially at 0% duty.
func (c *Chip) Float(pin int, period time.Duration) (*SoftPWM, error) {
	line, err := c.chip.RequestLine(pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request pwm pin %d: %w", pin, err)
	}
	p := &SoftPWM{
		line:   line,
		pin:    pin,
		period: period,
		done:   make(chan struct{}),
	}
	p.wg.Add(1)
	go p.run()
	return p, nil
}

// SetDuty sets the duty cycle percentage. Takes effect within one PWM cycle.
func (p *SoftPWM) SetDuty(percent float64) {
	p.mu.Lock()
	p.duty = Clamp(percent)
	p.mu.Unlock()
}

func (p *SoftPWM) run() {
	defer p.wg.Done()
	timer := newStoppedTimer(p.period)
	defer timer.Stop()

	for {
		p.mu.Lock()
		duty := p.duty
		p.mu.Unlock()

		onTime := time.Duration(float64(p.period) * duty / 100)

		// Saturated duties need no mid-cycle edge.
		if onTime <= 0 {
			p.write(0)
			if !p.sleep(timer, p.period) {
				return
			}
			continue
		}
		if onTime >= p.period {
			p.write(1)
			if !p.sleep(timer, p.period) {
				return
			}
			continue
		}

		p.write(1)
		if !p.sleep(timer, onTime) {
			return
		}
		p.write(0)
		if !p.sleep(timer, p.period-onTime) {
			return
		}
	}
}

// newStoppedTimer returns a timer that is not running. time.NewTimer arrives
// armed, and resetting an armed timer leaves any already-delivered tick in
// its channel; sleep re-arms per interval and must start from a clean timer.
func newStoppedTimer(d time.Duration) *time.Timer {
	timer := time.NewTimer(d)
	if !timer.Stop() {
		<-timer.C
	}
	return timer
}

func (p *SoftPWM) sleep(timer *time.Timer, d time.Duration) bool {
	timer.Reset(d)
	select {
	case <-timer.C:
		return true
	case <-p.done:
		return false
	}
}

func (p *SoftPWM) write(v int) {
	if err := p.line.SetValue(v); err != nil {
		log.Printf("gpio: pwm write pin %d: %v", p.pin, err)
	}
}

// Close stops the PWM goroutine, parks the line low and releases it.
func (p *SoftPWM) Close() error {
	close(p.done)
	p.wg.Wait()
	p.write(0)
	if err := p.line.Close(); err != nil {
		return fmt.Errorf("close pwm pin %d: %w", p.pin, err)
	}
	return nil
}
