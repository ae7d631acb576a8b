package mqtt

import "log"

// queuedPub is an outbound publication held while the broker is away.
type queuedPub struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// backlogCap bounds the publications held across a broker outage. Retained
// switch states coalesce per topic, so the backlog only grows with lifecycle
// events; a long outage drops the oldest of those first.
const backlogCap = 64

// backlog collects publications during a broker outage for replay on
// reconnect. Retained topics are last-value-wins on the broker, so a newer
// retained publication replaces the one already queued for its topic;
// everything else queues FIFO. Not safe for concurrent use — the caller
// synchronizes.
type backlog struct {
	queue   []queuedPub
	max     int
	dropped bool
}

func newBacklog(max int) *backlog {
	return &backlog{max: max}
}

func (b *backlog) add(msg queuedPub) {
	if msg.retained {
		for i := range b.queue {
			if b.queue[i].retained && b.queue[i].topic == msg.topic {
				b.queue[i] = msg
				return
			}
		}
	}
	if len(b.queue) == b.max {
		if !b.dropped {
			log.Printf("mqtt: backlog full (%d publications), dropping oldest", b.max)
			b.dropped = true
		}
		copy(b.queue, b.queue[1:])
		b.queue = b.queue[:len(b.queue)-1]
	}
	b.queue = append(b.queue, msg)
}

// drain hands the queued publications over in order and empties the backlog.
func (b *backlog) drain() []queuedPub {
	if len(b.queue) == 0 {
		return nil
	}
	out := b.queue
	b.queue = nil
	b.dropped = false
	return out
}

func (b *backlog) size() int {
	return len(b.queue)
}
