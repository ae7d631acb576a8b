// Command solenoidd drives irrigation solenoid valves through GPIO h-bridges,
// taking switch commands from MQTT and serving a status page over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/bridge"
	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/config"
	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/mqtt"
	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/output"
	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/solenoid"
	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/status"
	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/web"
)

func main() {
	configPath := flag.String("config", "/etc/solenoidd.yaml", "Path to YAML configuration")
	broker := flag.String("broker", "", "Override MQTT broker address")
	httpAddr := flag.String("http", "", "Override HTTP status address")
	checkConfig := flag.Bool("check", false, "Validate configuration and exit")

	flag.Parse()

	if err := run(*configPath, *broker, *httpAddr, *checkConfig); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}

func run(configPath, brokerOverride, httpOverride string, checkConfig bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if brokerOverride != "" {
		cfg.MQTT.Broker = brokerOverride
	}
	if httpOverride != "" {
		cfg.HTTPAddr = httpOverride
	}

	if checkConfig {
		fmt.Printf("%s: ok (%d switches)\n", configPath, len(cfg.Switches))
		for _, sw := range cfg.Switches {
			fmt.Printf("  %s: %s\n", sw.Name, sw.SolenoidType)
		}
		return nil
	}

	// Initialize GPIO
	chip, err := output.OpenChip(cfg.GPIOChip)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer chip.Close()

	coord := solenoid.NewCoordinator()
	var drivers []*solenoid.Driver
	var bridges []*bridge.Adapter
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
	}()

	for _, sw := range cfg.Switches {
		br, lineClosers, err := buildBridge(chip, sw, cfg.PWMPeriod())
		if err != nil {
			return fmt.Errorf("switch %q: %w", sw.Name, err)
		}
		closers = append(closers, lineClosers...)

		dcfg, err := sw.DriverConfig()
		if err != nil {
			return err
		}
		d, err := solenoid.NewDriver(dcfg, br, coord)
		if err != nil {
			return fmt.Errorf("switch %q: %w", sw.Name, err)
		}
		drivers = append(drivers, d)
		bridges = append(bridges, br)
	}

	// Initialize MQTT (empty broker runs GPIO/HTTP only)
	var conn mqtt.Conn
	var connStatus mqtt.ConnectionStatus
	if cfg.MQTT.Broker != "" {
		real, err := mqtt.NewRealConn(cfg.MQTT.Broker, clientID(), cfg.MQTT.Prefix)
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer real.Close()
		conn = real
		connStatus = real
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		TickMs:   int64(cfg.TickMs),
		Broker:   cfg.MQTT.Broker,
		Prefix:   cfg.MQTT.Prefix,
		HTTPAddr: cfg.HTTPAddr,
		GPIOChip: cfg.GPIOChip,
	})
	tracker.Update(switchRows(drivers))

	if conn != nil {
		startup := mqtt.SystemEvent{
			Timestamp: time.Now(),
			Event:     "STARTUP",
			Retained:  true,
		}
		if err := conn.PublishSystem(startup); err != nil {
			log.Printf("failed to publish startup event: %v", err)
		} else {
			log.Printf("published startup event")
		}
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Printf("http server error: %v", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		log.Printf("http status server listening on %s", cfg.HTTPAddr)
	}

	log.Printf("started: switches=%d tick=%v broker=%s chip=%s",
		len(drivers), cfg.Tick(), cfg.MQTT.Broker, cfg.GPIOChip)

	ticker := time.NewTicker(cfg.Tick())
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	release := func() {
		for _, br := range bridges {
			br.Release()
		}
	}
	return runLoop(drivers, conn, connStatus, tracker, release, time.Now, ticker.C, sigCh)
}

// runLoop is the daemon's single-threaded core: all driver ticks, command
// dispatch and state publication happen here, so the drivers never need
// locking.
func runLoop(drivers []*solenoid.Driver, conn mqtt.Conn, connStatus mqtt.ConnectionStatus, tracker *status.Tracker, release func(), now func() time.Time, tick <-chan time.Time, sig <-chan os.Signal) error {
	byName := make(map[string]*solenoid.Driver, len(drivers))
	for _, d := range drivers {
		byName[d.Name()] = d
	}

	var cmdCh <-chan mqtt.Command // nil without MQTT; blocks forever in select
	if conn != nil {
		cmdCh = conn.Commands()
	}

	for {
		select {
		case s := <-sig:
			log.Printf("received %v, shutting down", s)
			if release != nil {
				release()
			}
			if conn != nil {
				signalName := "UNKNOWN"
				if s == syscall.SIGINT {
					signalName = "SIGINT"
				} else if s == syscall.SIGTERM {
					signalName = "SIGTERM"
				}
				event := mqtt.SystemEvent{
					Timestamp: now(),
					Event:     "SHUTDOWN",
					Reason:    signalName,
					Retained:  true,
				}
				if err := conn.PublishSystem(event); err != nil {
					log.Printf("failed to publish shutdown event: %v", err)
				} else {
					log.Printf("published shutdown event")
				}
			}
			return nil

		case cmd := <-cmdCh:
			d, ok := byName[cmd.Switch]
			if !ok {
				log.Printf("command for unknown switch %q", cmd.Switch)
				continue
			}
			log.Printf("command: %s %s", cmd.Switch, onOff(cmd.On))
			if cmd.On {
				d.TurnOn()
			} else {
				d.TurnOff()
			}

		case <-tick:
			t := now()
			for _, d := range drivers {
				for _, event := range d.Tick(t) {
					log.Printf("event: %s %s", event.Switch, event.State)
					if conn != nil {
						if err := conn.PublishState(event); err != nil {
							log.Printf("publish error: %v", err)
							// Don't crash on publish failure
						}
					}
				}
			}

			if tracker != nil {
				tracker.Update(switchRows(drivers))
				if connStatus != nil {
					tracker.SetMQTTConnected(connStatus.IsConnected())
				}
			}
		}
	}
}

func buildBridge(chip *output.Chip, sw config.Switch, pwmPeriod time.Duration) (*bridge.Adapter, []io.Closer, error) {
	var closers []io.Closer
	fail := func(err error) (*bridge.Adapter, []io.Closer, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i].Close()
		}
		return nil, nil, err
	}

	pwm, err := chip.Float(*sw.PinA, pwmPeriod)
	if err != nil {
		return fail(err)
	}
	closers = append(closers, pwm)

	bcfg := bridge.Config{
		A:           pwm,
		HalfBridge:  sw.UsingHalfBridge,
		BrakeIsHigh: sw.BrakeIsHigh,
		Inverted:    sw.Inverted,
	}
	if sw.PinB != nil {
		b, err := chip.Binary(*sw.PinB)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, b)
		bcfg.B = b
	}
	if sw.EnablePin != nil {
		en, err := chip.Binary(*sw.EnablePin)
		if err != nil {
			return fail(err)
		}
		closers = append(closers, en)
		bcfg.Enable = en
	}

	br, err := bridge.New(bcfg)
	if err != nil {
		return fail(err)
	}
	return br, closers, nil
}

func switchRows(drivers []*solenoid.Driver) []status.SwitchStatus {
	rows := make([]status.SwitchStatus, 0, len(drivers))
	for _, d := range drivers {
		cfg := d.Config()
		rows = append(rows, status.SwitchStatus{
			Name:       cfg.Name,
			Type:       cfg.Type.String(),
			State:      d.State(),
			Phase:      d.Phase(),
			Interlock:  cfg.InterlockGroup,
			LastChange: d.LastChange(),
		})
	}
	return rows
}

func clientID() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "solenoidd"
	}
	return "solenoidd-" + host
}

func onOff(on bool) string {
	if on {
		return "ON"
	}
	return "OFF"
}
