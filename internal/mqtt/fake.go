package mqtt

import (
	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/solenoid"
)

// FakeConn records published messages and lets tests inject commands.
type FakeConn struct {
	// StateEvents contains all state updates that were published.
	StateEvents []solenoid.Event

	// StatePayloads contains the raw state payloads.
	StatePayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// PublishError, if set, is returned by both publish methods.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool

	commands chan Command
}

// NewFakeConn creates a FakeConn for testing.
func NewFakeConn() *FakeConn {
	return &FakeConn{commands: make(chan Command, 16)}
}

// PublishState records the state update.
func (f *FakeConn) PublishState(event solenoid.Event) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.StateEvents = append(f.StateEvents, event)
	f.StatePayloads = append(f.StatePayloads, FormatState(event))
	return nil
}

// PublishSystem records the system event.
func (f *FakeConn) PublishSystem(event SystemEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.SystemEvents = append(f.SystemEvents, event)
	return nil
}

// Commands delivers commands injected with Inject.
func (f *FakeConn) Commands() <-chan Command {
	return f.commands
}

// Inject queues an inbound command as if it arrived from the broker.
func (f *FakeConn) Inject(cmd Command) {
	f.commands <- cmd
}

// IsConnected reports the scripted connection state.
func (f *FakeConn) IsConnected() bool {
	return f.Connected
}

// Close marks the connection as closed.
func (f *FakeConn) Close() error {
	f.Closed = true
	return nil
}

// Reset clears recorded messages.
func (f *FakeConn) Reset() {
	f.StateEvents = nil
	f.StatePayloads = nil
	f.SystemEvents = nil
	f.PublishError = nil
	f.Closed = false
	f.Connected = false
}
