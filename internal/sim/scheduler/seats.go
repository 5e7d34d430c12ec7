package scheduler

import (
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/tuning"
)

// Seat is a chair paired with its table. Seats are derived from the directory
// and never persisted.
type Seat struct {
	Resource directory.Resource
	Table    directory.Handle

	assigned string
	occupant string
}

func (s *Seat) Handle() directory.Handle  { return s.Resource.Handle }
func (s *Seat) Owner() directory.OwnerID  { return s.Resource.Owner }
func (s *Seat) AssignedAgent() string     { return s.assigned }
func (s *Seat) OccupyingCustomer() string { return s.occupant }

func (s *Seat) free() bool { return s.assigned == "" && s.occupant == "" }

func (s *Seat) clearAgent(agentID string) bool {
	if agentID == "" || s.assigned != agentID {
		return false
	}
	s.assigned = ""
	return true
}

func (s *Seat) view() SeatView {
	return SeatView{
		Seat:              s.Handle().ID,
		Owner:             string(s.Owner()),
		Table:             s.Table.ID,
		Kitchen:           s.Resource.Kitchen,
		AssignedAgent:     s.assigned,
		OccupyingCustomer: s.occupant,
	}
}

// SeatView is a read-only copy of a seat for stats and admin dumps.
type SeatView struct {
	Seat              string `json:"seat"`
	Owner             string `json:"owner"`
	Table             string `json:"table"`
	Kitchen           string `json:"kitchen"`
	AssignedAgent     string `json:"assigned_agent,omitempty"`
	OccupyingCustomer string `json:"occupying_customer,omitempty"`
}

// pairSeat reports whether seat sits close to table and faces it.
func pairSeat(seat, table directory.Resource, cfg tuning.Seating) bool {
	if geom.Dist(seat.Pos, table.Pos) > cfg.MaxSeatTableDistance {
		return false
	}
	facing := geom.YawToward(seat.Pos, table.Pos)
	return geom.AngleDiff(seat.Yaw, facing) <= cfg.MaxSeatFacingDeg
}

// humanTakesSeat decides whether a human sitting down is recorded on the
// seat. A seat already assigned to an NPC stays with the NPC: the human is not
// recorded and the NPC is not evicted, so both may end up on the same chair.
func humanTakesSeat(s *Seat) bool {
	return s.assigned == ""
}
