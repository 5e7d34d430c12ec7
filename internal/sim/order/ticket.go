package order

import (
	"errors"

	"github.com/google/uuid"

	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/present"
)

// NotStarted is the step index of a ticket no one has begun.
const NotStarted = -1

var (
	ErrUnknownRecipe     = errors.New("unknown recipe")
	ErrNoStationResolver = errors.New("no station resolver for task")
	ErrNoStation         = errors.New("no station available")
	ErrTicketComplete    = errors.New("ticket already complete")
)

// Customer is whoever places or works an order: a seated NPC or a player.
// Pos is sampled at call time and used for nearest-station selection.
type Customer struct {
	ID      string
	Kitchen string
	Pos     geom.Vec3
	Seat    directory.Handle
}

type Ticket struct {
	ID      uuid.UUID
	Kitchen string
	Recipe  string
	Step    int
	Orderer string
	Seat    directory.Handle
	Station directory.Handle
	Seq     uint64

	holder string
	done   bool
}

type State string

const (
	StateQueued   State = "queued"
	StateActive   State = "active"
	StateComplete State = "complete"
)

// Record is the persisted/published view of a ticket transition.
type Record struct {
	Tick     uint64 `json:"tick"`
	TicketID string `json:"ticket_id"`
	Seq      uint64 `json:"seq"`
	Kitchen  string `json:"kitchen"`
	Recipe   string `json:"recipe"`
	Step     int    `json:"step"`
	State    State  `json:"state"`
	Holder   string `json:"holder,omitempty"`
	Orderer  string `json:"orderer"`
	SeatID   string `json:"seat_id,omitempty"`
}

// Journal stores ticket transitions.
type Journal interface {
	Record(Record) error
}

// Journals fans a record out to every journal. All of them see the record
// even when an earlier one fails.
type Journals []Journal

func (js Journals) Record(r Record) error {
	var errs []error
	for _, j := range js {
		if j == nil {
			continue
		}
		if err := j.Record(r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ServedNotifier is told when a seated order's deliverable exists. ticket
// identifies the order so a dish cannot be handed to a later visit.
type ServedNotifier interface {
	OnOrderServed(customer string, seat directory.Handle, ticket uuid.UUID, deliverable present.ObjectRef)
}

// Kitchen owns a FIFO queue and the per-customer active lists. The front of an
// active list is the ticket in progress.
type Kitchen struct {
	ID     string
	queue  []*Ticket
	active map[string][]*Ticket
}

func newKitchen(id string) *Kitchen {
	return &Kitchen{ID: id, active: map[string][]*Ticket{}}
}
