package world

import (
	"context"

	"bistro.ai/internal/sim/agents"
	"bistro.ai/internal/sim/order"
	"bistro.ai/internal/sim/scheduler"
)

type StateSnapshot struct {
	Tick     uint64               `json:"tick"`
	Players  []PlayerView         `json:"players"`
	Agents   []AgentView          `json:"agents"`
	Seats    []scheduler.SeatView `json:"seats"`
	Kitchens []KitchenView        `json:"kitchens"`
}

type PlayerView struct {
	ID       string     `json:"id"`
	Kitchen  string     `json:"kitchen,omitempty"`
	OwnsPlot bool       `json:"owns_plot"`
	Pos      [3]float64 `json:"pos"`
	Seat     string     `json:"seat,omitempty"`
}

type AgentView struct {
	ID           string     `json:"id"`
	Role         string     `json:"role"`
	State        string     `json:"state"`
	InTransition bool       `json:"in_transition"`
	Pos          [3]float64 `json:"pos"`
	Yaw          float64    `json:"yaw"`
}

type KitchenView struct {
	ID     string                  `json:"id"`
	Queue  []TicketView            `json:"queue"`
	Active map[string][]TicketView `json:"active"`
}

type TicketView struct {
	ID      string `json:"id"`
	Seq     uint64 `json:"seq"`
	Recipe  string `json:"recipe"`
	Step    int    `json:"step"`
	Orderer string `json:"orderer"`
	Seat    string `json:"seat,omitempty"`
	Station string `json:"station,omitempty"`
}

type stateReq struct {
	resp chan StateSnapshot
}

// RequestState asks the world loop for a snapshot taken between ticks.
func (w *World) RequestState(ctx context.Context) (StateSnapshot, error) {
	resp := make(chan StateSnapshot, 1)
	select {
	case w.stateReq <- stateReq{resp: resp}:
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	}
	select {
	case s := <-resp:
		return s, nil
	case <-ctx.Done():
		return StateSnapshot{}, ctx.Err()
	}
}

func (w *World) handleStateRequests(reqs []stateReq) {
	if len(reqs) == 0 {
		return
	}
	s := w.Snapshot()
	for _, r := range reqs {
		r.resp <- s
	}
}

// Snapshot reads world state directly. Only the world goroutine, or a test
// driving StepOnce, may call it.
func (w *World) Snapshot() StateSnapshot {
	s := StateSnapshot{
		Tick:  w.tick.Load(),
		Seats: w.sched.Seats(),
	}
	for _, p := range w.sortedPlayers() {
		v := PlayerView{ID: p.id, Kitchen: p.kitchen, OwnsPlot: p.ownsPlot, Pos: p.pos.Array()}
		if !p.seat.IsZero() {
			v.Seat = p.seat.String()
		}
		s.Players = append(s.Players, v)
	}
	for _, a := range w.agents {
		s.Agents = append(s.Agents, agentView(a))
	}
	for _, o := range w.cfg.Plots.Owners {
		kv := KitchenView{ID: o.Kitchen, Active: map[string][]TicketView{}}
		for _, t := range w.orders.Queue(o.Kitchen) {
			kv.Queue = append(kv.Queue, ticketView(t))
		}
		for _, c := range w.orders.ActiveCustomers(o.Kitchen) {
			list, _ := w.orders.Active(o.Kitchen, c)
			for _, t := range list {
				kv.Active[c] = append(kv.Active[c], ticketView(t))
			}
		}
		s.Kitchens = append(s.Kitchens, kv)
	}
	return s
}

func agentView(a agents.Agent) AgentView {
	b := a.Body()
	return AgentView{
		ID:           a.ID(),
		Role:         a.Role().String(),
		State:        a.StateName(),
		InTransition: a.InTransition(),
		Pos:          b.Pos.Array(),
		Yaw:          b.Yaw,
	}
}

func ticketView(t order.Ticket) TicketView {
	v := TicketView{
		ID:      t.ID.String(),
		Seq:     t.Seq,
		Recipe:  t.Recipe,
		Step:    t.Step,
		Orderer: t.Orderer,
	}
	if !t.Seat.IsZero() {
		v.Seat = t.Seat.String()
	}
	if !t.Station.IsZero() {
		v.Station = t.Station.String()
	}
	return v
}
