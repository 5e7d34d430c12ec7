package world

import (
	"encoding/json"
	"slices"

	"bistro.ai/internal/protocol"
	"bistro.ai/internal/sim/present"
)

// eventRouter buffers the tick's presentation events for delivery to players.
type eventRouter struct{ w *World }

func (r eventRouter) Emit(ev present.Event) { r.w.pending = append(r.w.pending, ev) }

// addressedTo reports whether p should see ev: task prompts go to the listed
// customers, kitchen events to players working that kitchen, the rest to all.
func addressedTo(ev present.Event, p *player) bool {
	if len(ev.Customers) > 0 {
		return slices.Contains(ev.Customers, p.id)
	}
	if ev.Kitchen != "" {
		return ev.Kitchen == p.kitchen
	}
	return true
}

func (w *World) flushEvents(tick uint64) {
	if len(w.pending) == 0 {
		return
	}
	for _, p := range w.sortedPlayers() {
		if p.out == nil {
			continue
		}
		var evs []present.Event
		for _, ev := range w.pending {
			if addressedTo(ev, p) {
				evs = append(evs, ev)
			}
		}
		if len(evs) == 0 {
			continue
		}
		p.cursor += uint64(len(evs))
		b, err := json.Marshal(protocol.EventBatchMsg{
			Type:            protocol.TypeEventBatch,
			ProtocolVersion: protocol.Version,
			Tick:            tick,
			Events:          evs,
			NextCursor:      p.cursor,
		})
		if err != nil {
			w.log.Printf("encode event batch for %s: %v", p.id, err)
			continue
		}
		w.sendLatest(p.out, b)
	}
	w.pending = w.pending[:0]
}

// sendLatest never blocks the tick: when the connection is behind, its oldest
// queued message is dropped.
func (w *World) sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	select {
	case <-ch:
		w.dropped++
	default:
	}
	select {
	case ch <- b:
	default:
		w.dropped++
	}
}
