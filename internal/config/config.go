// Package config loads and validates the declarative YAML configuration that
// wires solenoid switches to bridge pins. All validation happens here or in
// the packages it defers to, before any hardware is driven: a malformed
// configuration prevents the daemon from starting at all.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/solenoid"
)

// Defaults for optional daemon-level fields.
const (
	DefaultTickMs      = 20
	DefaultPWMPeriodMs = 5
	DefaultGPIOChip    = "gpiochip0"
	DefaultMQTTPrefix  = "solenoid"
)

// Config is the top-level daemon configuration.
type Config struct {
	// TickMs is the scheduler cadence advancing every driver.
	TickMs int `yaml:"tick_ms"`

	// GPIOChip names the Linux GPIO character device.
	GPIOChip string `yaml:"gpio_chip"`

	// PWMPeriodMs is the software PWM cycle period for modulated pins.
	PWMPeriodMs int `yaml:"pwm_period_ms"`

	// HTTPAddr is the status server address, empty to disable.
	HTTPAddr string `yaml:"http_addr"`

	MQTT MQTT `yaml:"mqtt"`

	Switches []Switch `yaml:"switches"`
}

// MQTT configures the command/state broker connection.
type MQTT struct {
	// Broker address, e.g. "tcp://192.168.1.200:1883". Empty disables MQTT.
	Broker string `yaml:"broker"`

	// Prefix is the topic prefix for command, state and system topics.
	Prefix string `yaml:"prefix"`
}

// Switch describes one solenoid switch, mirroring the declarative schema of
// the solenoid platform: pin references, bridge topology, drive parameters.
type Switch struct {
	Name         string `yaml:"name"`
	SolenoidType string `yaml:"solenoid_type"`

	// PinA is the modulated bridge input, always required.
	PinA *int `yaml:"pin_a"`
	// PinB is the second bridge input; exactly one of PinB and
	// UsingHalfBridge must be configured.
	PinB *int `yaml:"pin_b"`
	// EnablePin is the optional h-bridge enable input.
	EnablePin *int `yaml:"h_bridge_enable_pin"`

	UsingHalfBridge bool `yaml:"using_half_bridge"`
	BrakeIsHigh     bool `yaml:"brake_is_high"`
	Inverted        bool `yaml:"inverted"`

	EnergiseDurationMs    int      `yaml:"energise_duration_ms"`
	EnergisePowerPercent  *float64 `yaml:"energise_power_percent"`
	HoldPowerPercent      *float64 `yaml:"hold_power_percent"`
	DCLatchRedoCount      *int     `yaml:"dc_latch_redo_count"`
	DCLatchRedoIntervalMs *int     `yaml:"dc_latch_redo_interval_ms"`

	InterlockGroup      string `yaml:"interlock_group"`
	InterlockWaitTimeMs int    `yaml:"interlock_wait_time_ms"`
}

// Load reads and parses the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes the YAML document, applies defaults and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.TickMs == 0 {
		c.TickMs = DefaultTickMs
	}
	if c.PWMPeriodMs == 0 {
		c.PWMPeriodMs = DefaultPWMPeriodMs
	}
	if c.GPIOChip == "" {
		c.GPIOChip = DefaultGPIOChip
	}
	if c.MQTT.Prefix == "" {
		c.MQTT.Prefix = DefaultMQTTPrefix
	}
	for i := range c.Switches {
		c.Switches[i].applyDefaults()
	}
}

func (s *Switch) applyDefaults() {
	if s.EnergisePowerPercent == nil {
		v := solenoid.DefaultEnergisePower
		s.EnergisePowerPercent = &v
	}
	if s.HoldPowerPercent == nil {
		v := solenoid.DefaultHoldPower
		s.HoldPowerPercent = &v
	}
	if s.DCLatchRedoCount == nil {
		v := solenoid.DefaultLatchRedoCount
		s.DCLatchRedoCount = &v
	}
	if s.DCLatchRedoIntervalMs == nil {
		v := int(solenoid.DefaultLatchRedoInterval / time.Millisecond)
		s.DCLatchRedoIntervalMs = &v
	}
}

// Tick returns the scheduler cadence as a duration.
func (c *Config) Tick() time.Duration {
	return time.Duration(c.TickMs) * time.Millisecond
}

// PWMPeriod returns the software PWM period as a duration.
func (c *Config) PWMPeriod() time.Duration {
	return time.Duration(c.PWMPeriodMs) * time.Millisecond
}

// Validate checks the whole document: per-switch schema rules, name and pin
// uniqueness, and the drive parameter ranges enforced by the solenoid
// package.
func (c *Config) Validate() error {
	if c.TickMs <= 0 {
		return fmt.Errorf("tick_ms %d must be positive", c.TickMs)
	}
	if c.PWMPeriodMs <= 0 {
		return fmt.Errorf("pwm_period_ms %d must be positive", c.PWMPeriodMs)
	}
	if len(c.Switches) == 0 {
		return fmt.Errorf("no switches configured")
	}

	names := make(map[string]bool)
	pins := make(map[int]string)
	for i := range c.Switches {
		s := &c.Switches[i]
		if err := s.validate(); err != nil {
			return err
		}
		if names[s.Name] {
			return fmt.Errorf("switch %q: duplicate name", s.Name)
		}
		names[s.Name] = true

		for _, p := range s.pins() {
			if owner, used := pins[p]; used {
				return fmt.Errorf("switch %q: pin %d already used by switch %q", s.Name, p, owner)
			}
			pins[p] = s.Name
		}
	}
	return nil
}

func (s *Switch) pins() []int {
	var out []int
	for _, p := range []*int{s.PinA, s.PinB, s.EnablePin} {
		if p != nil {
			out = append(out, *p)
		}
	}
	return out
}

func (s *Switch) validate() error {
	if s.Name == "" {
		return fmt.Errorf("switch: name is required")
	}
	typ, err := solenoid.ParseType(s.SolenoidType)
	if err != nil {
		return fmt.Errorf("switch %q: %w", s.Name, err)
	}
	if s.PinA == nil {
		return fmt.Errorf("switch %q: pin_a is required", s.Name)
	}

	// One of pin_b / using_half_bridge must be configured explicitly, to
	// avoid accidental misconfiguration of the bridge topology.
	if s.UsingHalfBridge && s.PinB != nil {
		return fmt.Errorf("switch %q: cannot be using a half-bridge AND have pin_b defined, choose one or the other", s.Name)
	}
	if !s.UsingHalfBridge && s.PinB == nil {
		return fmt.Errorf("switch %q: must be either using a half-bridge OR have pin_b defined", s.Name)
	}

	if typ == solenoid.TypeDCLatching {
		if s.UsingHalfBridge {
			return fmt.Errorf("switch %q: DC latching solenoid can't use a half-bridge as it requires a full h-bridge to reverse pulse polarity", s.Name)
		}
		if s.PinB == nil {
			return fmt.Errorf("switch %q: DC latching solenoid requires pin_b to be defined", s.Name)
		}
	}

	drv, err := s.DriverConfig()
	if err != nil {
		return err
	}
	return drv.Validate()
}

// DriverConfig converts the declarative switch entry into the driver's
// immutable configuration.
func (s *Switch) DriverConfig() (solenoid.Config, error) {
	typ, err := solenoid.ParseType(s.SolenoidType)
	if err != nil {
		return solenoid.Config{}, fmt.Errorf("switch %q: %w", s.Name, err)
	}
	return solenoid.Config{
		Name:              s.Name,
		Type:              typ,
		EnergiseDuration:  time.Duration(s.EnergiseDurationMs) * time.Millisecond,
		EnergisePower:     *s.EnergisePowerPercent,
		HoldPower:         *s.HoldPowerPercent,
		LatchRedoCount:    *s.DCLatchRedoCount,
		LatchRedoInterval: time.Duration(*s.DCLatchRedoIntervalMs) * time.Millisecond,
		InterlockGroup:    s.InterlockGroup,
		InterlockWait:     time.Duration(s.InterlockWaitTimeMs) * time.Millisecond,
	}, nil
}
