package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Switches      []SwitchJSON `json:"switches"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Config        ConfigJSON   `json:"config"`
}

// SwitchJSON is the JSON representation of one switch.
type SwitchJSON struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	State      string `json:"state"`
	Phase      string `json:"phase"`
	Interlock  string `json:"interlock,omitempty"`
	LastChange string `json:"last_change,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
	Prefix    string `json:"prefix"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	TickMs   int64  `json:"tick_ms"`
	GPIOChip string `json:"gpio_chip"`
	HTTPAddr string `json:"http_addr"`
}

// FormatJSON renders a snapshot as indented JSON.
func FormatJSON(snap Snapshot) []byte {
	inner := StatusInner{
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT: MQTTStatus{
			Connected: snap.MQTTConnected,
			Broker:    snap.Config.Broker,
			Prefix:    snap.Config.Prefix,
		},
		Config: ConfigJSON{
			TickMs:   snap.Config.TickMs,
			GPIOChip: snap.Config.GPIOChip,
			HTTPAddr: snap.Config.HTTPAddr,
		},
	}

	for _, sw := range snap.Switches {
		row := SwitchJSON{
			Name:      sw.Name,
			Type:      sw.Type,
			State:     string(sw.State),
			Phase:     string(sw.Phase),
			Interlock: sw.Interlock,
		}
		if !sw.LastChange.IsZero() {
			row.LastChange = sw.LastChange.UTC().Format(time.RFC3339)
		}
		inner.Switches = append(inner.Switches, row)
	}

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}
