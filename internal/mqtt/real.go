package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/TheOriginalMrWolf/ESPHome-solenoid/internal/solenoid"
)

// RealConn talks to an actual MQTT broker.
type RealConn struct {
	client paho.Client
	prefix string

	commands chan Command

	// mu guards the outage backlog. Publications made while the broker
	// is away are replayed on reconnect so the retained topics converge.
	mu      sync.Mutex
	pending *backlog
}

// NewRealConn connects to the broker and subscribes to the command topics
// under the prefix.
func NewRealConn(broker, clientID, prefix string) (*RealConn, error) {
	c := &RealConn{
		prefix:   prefix,
		commands: make(chan Command, 16),
		pending:  newBacklog(backlogCap),
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})

	c.client = paho.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func (c *RealConn) onConnect(client paho.Client) {
	filter := CommandFilter(c.prefix)
	token := client.Subscribe(filter, 1, c.onCommand)
	if token.WaitTimeout(5*time.Second) && token.Error() != nil {
		log.Printf("mqtt: subscribe %s: %v", filter, token.Error())
		return
	}
	log.Printf("mqtt: subscribed to %s", filter)

	c.mu.Lock()
	queued := c.pending.drain()
	c.mu.Unlock()
	for _, msg := range queued {
		client.Publish(msg.topic, msg.qos, msg.retained, msg.payload)
	}
	if len(queued) > 0 {
		log.Printf("mqtt: replayed %d publications from the outage backlog", len(queued))
	}
}

func (c *RealConn) onCommand(_ paho.Client, msg paho.Message) {
	cmd, err := ParseCommand(c.prefix, msg.Topic(), msg.Payload())
	if err != nil {
		log.Printf("mqtt: %v", err)
		return
	}
	select {
	case c.commands <- cmd:
	default:
		log.Printf("mqtt: command queue full, dropping %s for %q", msg.Payload(), cmd.Switch)
	}
}

// Commands delivers inbound switch commands.
func (c *RealConn) Commands() <-chan Command {
	return c.commands
}

// PublishState sends a retained state update, backlogging it for replay
// when the broker is away.
func (c *RealConn) PublishState(event solenoid.Event) error {
	return c.publish(StateTopic(c.prefix, event.Switch), 1, true, FormatState(event))
}

// PublishSystem sends a daemon lifecycle event.
func (c *RealConn) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return c.publish(SystemTopic(c.prefix), 1, event.Retained, payload)
}

func (c *RealConn) publish(topic string, qos byte, retained bool, payload []byte) error {
	if !c.client.IsConnected() {
		c.mu.Lock()
		c.pending.add(queuedPub{topic: topic, payload: payload, qos: qos, retained: retained})
		c.mu.Unlock()
		return nil
	}

	token := c.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (c *RealConn) IsConnected() bool {
	return c.client.IsConnected()
}

// Close disconnects from the broker.
func (c *RealConn) Close() error {
	c.client.Disconnect(1000) // 1 second timeout
	return nil
}
