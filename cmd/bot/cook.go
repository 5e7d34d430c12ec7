package main

import (
	"fmt"
	"slices"

	"bistro.ai/internal/protocol"
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/present"
)

// cook plays a kitchen owner: it claims tickets when the claim points light
// up and keeps interacting with the station the indicator points at until the
// step's task is hidden.
type cook struct {
	owner    string
	kitchen  string
	stations []directory.Resource
	every    int

	claimable bool
	showing   bool
	target    string
	batches   int
	seq       int
}

func newCook(owner, kitchen string, dir *directory.Memory, every int) *cook {
	if every <= 0 {
		every = 1
	}
	c := &cook{owner: owner, kitchen: kitchen, every: every}
	for _, k := range []directory.Kind{directory.KindOrderStation, directory.KindPrepStation, directory.KindCookStation} {
		c.stations = append(c.stations, dir.InKitchen(kitchen, k)...)
	}
	return c
}

func (c *cook) OnBatch(b protocol.EventBatchMsg) []protocol.InputMsg {
	for _, ev := range b.Events {
		switch ev.Type {
		case present.EventClaimPoints:
			if ev.Kitchen == c.kitchen {
				c.claimable = ev.Visible
			}
		case present.EventShowTask:
			if slices.Contains(ev.Customers, c.owner) {
				c.showing = true
			}
		case present.EventIndicatorPlay:
			// The indicator right after our task marks its station.
			if c.showing && ev.Pos != nil {
				c.showing = false
				if r, ok := directory.Nearest(c.stations, geom.FromArray(*ev.Pos)); ok {
					c.target = r.Handle.String()
				}
			}
		case present.EventHideTask:
			if slices.Contains(ev.Customers, c.owner) {
				c.target = ""
			}
		}
	}

	c.batches++
	var out []protocol.InputMsg
	switch {
	case c.target != "" && c.batches%c.every == 0:
		out = append(out, c.input(protocol.InputInteract, func(in *protocol.InputMsg) { in.Station = c.target }))
	case c.target == "" && c.claimable:
		c.claimable = false
		out = append(out, c.input(protocol.InputClaim, func(in *protocol.InputMsg) { in.Kitchen = c.kitchen }))
	}
	return out
}

func (c *cook) input(kind string, set func(*protocol.InputMsg)) protocol.InputMsg {
	c.seq++
	in := protocol.InputMsg{
		Type:            protocol.TypeInput,
		ProtocolVersion: protocol.Version,
		ID:              fmt.Sprintf("%s_%d", kind, c.seq),
		Input:           kind,
	}
	set(&in)
	return in
}
