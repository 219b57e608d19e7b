package transport

import (
	"context"
	"sync"
	"time"

	"github.com/palaver-dev/palaver/internal/event"
)

// Delivery records a single notification accepted by the Memory transport.
type Delivery struct {
	EventType  string
	Payload    map[string]any
	Sender     string
	Recipients []string
	At         time.Time
}

// Memory is an in-process Transport that records every delivery and
// optionally republishes it on the event bus. It backs tests and the
// simulator.
type Memory struct {
	mu         sync.Mutex
	deliveries []Delivery
	bus        *event.Bus
}

// NewMemory creates a Memory transport. The bus may be nil, in which
// case deliveries are recorded without being republished.
func NewMemory(bus *event.Bus) *Memory {
	return &Memory{bus: bus}
}

// Send records the notification and republishes it on the bus.
func (m *Memory) Send(ctx context.Context, eventType string, payload map[string]any, sender string, recipients []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Copy the recipients so later mutation by the caller cannot alter
	// the recorded delivery.
	recips := make([]string, len(recipients))
	copy(recips, recipients)

	m.mu.Lock()
	m.deliveries = append(m.deliveries, Delivery{
		EventType:  eventType,
		Payload:    payload,
		Sender:     sender,
		Recipients: recips,
		At:         time.Now(),
	})
	m.mu.Unlock()

	if m.bus != nil {
		m.bus.Publish(event.NewNotificationSentEvent(eventType, sender, recips))
	}
	return nil
}

// Deliveries returns a copy of all recorded deliveries in send order.
func (m *Memory) Deliveries() []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Delivery, len(m.deliveries))
	copy(out, m.deliveries)
	return out
}

// DeliveriesTo returns all deliveries addressed to the given participant,
// including broadcasts.
func (m *Memory) DeliveriesTo(participantID string) []Delivery {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Delivery
	for _, d := range m.deliveries {
		for _, r := range d.Recipients {
			if r == participantID || r == Broadcast {
				out = append(out, d)
				break
			}
		}
	}
	return out
}

// Reset discards all recorded deliveries.
func (m *Memory) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.deliveries = nil
}
