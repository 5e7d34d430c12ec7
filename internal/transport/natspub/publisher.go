// Package natspub publishes ticket lifecycle events to NATS for kitchen
// displays and other out-of-process consumers.
package natspub

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"bistro.ai/internal/sim/order"
)

const (
	TicketsSubject           = "kitchen.tickets"
	EventTicketCreated       = "kitchen.ticket.created"
	EventTicketStatusChanged = "kitchen.ticket.status_changed"
)

// Conn is the part of *nats.Conn the publisher needs.
type Conn interface {
	Publish(subject string, data []byte) error
}

type TicketEvent struct {
	EventType      string      `json:"event_type"`
	OccurredAt     time.Time   `json:"occurred_at"`
	TicketID       string      `json:"ticket_id"`
	Kitchen        string      `json:"kitchen"`
	Recipe         string      `json:"recipe"`
	Step           int         `json:"step"`
	Status         order.State `json:"status"`
	PreviousStatus order.State `json:"previous_status,omitempty"`
	Holder         string      `json:"holder,omitempty"`
	Orderer        string      `json:"orderer"`
	SeatID         string      `json:"seat_id,omitempty"`
	Tick           uint64      `json:"tick"`
}

// Publisher is an order.Journal that turns ticket records into events.
type Publisher struct {
	conn    Conn
	subject string
	now     func() time.Time
	owned   *nats.Conn

	mu   sync.Mutex
	last map[string]order.State
}

func New(conn Conn, subject string) *Publisher {
	if subject == "" {
		subject = TicketsSubject
	}
	return &Publisher{
		conn:    conn,
		subject: subject,
		now:     time.Now,
		last:    map[string]order.State{},
	}
}

// Connect dials url and returns a publisher that owns the connection.
func Connect(url, subject string) (*Publisher, error) {
	nc, err := nats.Connect(url, nats.Name("bistro"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	p := New(nc, subject)
	p.owned = nc
	return p, nil
}

func (p *Publisher) Record(r order.Record) error {
	p.mu.Lock()
	prev, seen := p.last[r.TicketID]
	if r.State == order.StateComplete {
		delete(p.last, r.TicketID)
	} else {
		p.last[r.TicketID] = r.State
	}
	p.mu.Unlock()

	ev := TicketEvent{
		EventType:  EventTicketStatusChanged,
		OccurredAt: p.now().UTC(),
		TicketID:   r.TicketID,
		Kitchen:    r.Kitchen,
		Recipe:     r.Recipe,
		Step:       r.Step,
		Status:     r.State,
		Holder:     r.Holder,
		Orderer:    r.Orderer,
		SeatID:     r.SeatID,
		Tick:       r.Tick,
	}
	if seen {
		ev.PreviousStatus = prev
	} else if r.State == order.StateQueued {
		ev.EventType = EventTicketCreated
	}
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if err := p.conn.Publish(p.subject, b); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

// Close drains the connection if the publisher dialed it.
func (p *Publisher) Close() error {
	if p.owned == nil {
		return nil
	}
	return p.owned.Drain()
}
