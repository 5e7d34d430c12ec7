package main

import (
	"fmt"
	"sort"
	"strings"

	persistlog "bistro.ai/internal/persistence/log"
	"bistro.ai/internal/sim/order"
)

// ticketLife is what the log says about one ticket.
type ticketLife struct {
	id      string
	seq     uint64
	kitchen string
	recipe  string
	orderer string

	state   order.State
	queued  uint64
	claimed uint64
	done    uint64
	holder  string
	steps   int
	partial bool // first seen already active, e.g. restored from the journal
}

// verifier checks that every ticket moves queued -> active -> complete and is
// never queued and active at the same time.
type verifier struct {
	tickets    map[string]*ticketLife
	violations []string
	events     int
}

type totals struct {
	Tickets  int
	Queued   int
	Active   int
	Complete int
	Partial  int
	Events   int
}

func newVerifier() *verifier {
	return &verifier{tickets: map[string]*ticketLife{}}
}

func (v *verifier) Observe(e persistlog.Entry) error {
	switch e.Kind {
	case persistlog.EntryPresent:
		v.events++
	case persistlog.EntryTicket:
		if e.Ticket != nil {
			v.record(*e.Ticket)
		}
	}
	return nil
}

func (v *verifier) record(r order.Record) {
	t := v.tickets[r.TicketID]
	if t == nil {
		t = &ticketLife{id: r.TicketID, seq: r.Seq, kitchen: r.Kitchen, recipe: r.Recipe, orderer: r.Orderer}
		v.tickets[r.TicketID] = t
		switch r.State {
		case order.StateQueued:
			t.queued = r.Tick
		case order.StateActive:
			t.partial = true
			t.claimed = r.Tick
		default:
			v.violate(r, "first seen as %s", r.State)
		}
		t.state, t.holder, t.steps = r.State, r.Holder, r.Step
		return
	}

	switch {
	case t.state == order.StateComplete:
		v.violate(r, "%s after complete", r.State)
	case r.State == order.StateQueued:
		v.violate(r, "queued again while %s", t.state)
	case r.State == order.StateActive && t.state == order.StateQueued:
		t.claimed = r.Tick
	case r.State == order.StateActive:
		if r.Holder != t.holder {
			v.violate(r, "active for %s and %s", t.holder, r.Holder)
		}
	case r.State == order.StateComplete && t.state != order.StateActive:
		v.violate(r, "completed while %s", t.state)
	case r.State == order.StateComplete:
		t.done = r.Tick
	}
	if r.Kitchen != t.kitchen {
		v.violate(r, "moved from kitchen %s", t.kitchen)
	}
	t.state, t.holder, t.steps = r.State, r.Holder, r.Step
}

func (v *verifier) violate(r order.Record, format string, args ...any) {
	v.violations = append(v.violations, fmt.Sprintf("tick=%d ticket=%s: %s", r.Tick, r.TicketID, fmt.Sprintf(format, args...)))
}

func (v *verifier) Violations() []string { return v.violations }

func (v *verifier) sorted() []*ticketLife {
	out := make([]*ticketLife, 0, len(v.tickets))
	for _, t := range v.tickets {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}

// Summaries renders one line per ticket in sequence order.
func (v *verifier) Summaries() []string {
	var out []string
	for _, t := range v.sorted() {
		var b strings.Builder
		fmt.Fprintf(&b, "#%d %s kitchen=%s recipe=%s orderer=%s state=%s", t.seq, t.id, t.kitchen, t.recipe, t.orderer, t.state)
		if !t.partial {
			fmt.Fprintf(&b, " queued@%d", t.queued)
		}
		if t.state != order.StateQueued {
			fmt.Fprintf(&b, " claimed@%d by=%s", t.claimed, t.holder)
		}
		if t.state == order.StateComplete {
			fmt.Fprintf(&b, " done@%d", t.done)
		} else if t.state == order.StateActive {
			fmt.Fprintf(&b, " step=%d", t.steps)
		}
		if t.partial {
			b.WriteString(" (partial)")
		}
		out = append(out, b.String())
	}
	return out
}

func (v *verifier) Totals() totals {
	out := totals{Tickets: len(v.tickets), Events: v.events}
	for _, t := range v.tickets {
		switch t.state {
		case order.StateQueued:
			out.Queued++
		case order.StateActive:
			out.Active++
		case order.StateComplete:
			out.Complete++
		}
		if t.partial {
			out.Partial++
		}
	}
	return out
}
