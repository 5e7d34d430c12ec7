package world

import (
	"encoding/json"

	"bistro.ai/internal/protocol"
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/order"
)

// applyInput runs one player input. Inputs from a session that has since been
// replaced are dropped.
func (w *World) applyInput(env InputEnvelope) {
	p := w.players[env.Owner]
	if p == nil || (env.Session != "" && env.Session != p.session) {
		return
	}
	code, msg := w.dispatchInput(p, env.Input)
	if env.Input.ID != "" {
		w.sendAck(p, env.Input.ID, code, msg)
	}
}

func (w *World) dispatchInput(p *player, in protocol.InputMsg) (code, msg string) {
	switch in.Input {
	case protocol.InputInteract:
		h, err := directory.ParseHandle(in.Station)
		if err != nil {
			return protocol.ErrBadRequest, err.Error()
		}
		r, ok := w.dir.Get(h)
		if !ok || r.Kitchen == "" {
			return protocol.ErrInvalidTarget, "not a kitchen station: " + in.Station
		}
		if held := w.dir.GrantedTo(h); held != "" && held != p.id {
			return protocol.ErrBusy, "station in use by " + held
		}
		p.kitchen = r.Kitchen
		w.orders.AdvanceOrderStep(w.customer(p), &h)

	case protocol.InputClaim:
		if in.Kitchen != "" {
			p.kitchen = in.Kitchen
		}
		if p.kitchen == "" {
			return protocol.ErrBadRequest, "no kitchen"
		}
		w.orders.ActivateOrder(w.customer(p))

	case protocol.InputEditMode:
		if !p.ownsPlot {
			return protocol.ErrNoPermission, "no plot to edit"
		}
		w.sched.NotifyEditMode(directory.OwnerID(p.id), in.Entering)

	case protocol.InputSeatEnter:
		h, code, msg := parseSeat(in.Seat)
		if code != "" {
			return code, msg
		}
		if !p.seat.IsZero() && p.seat != h {
			w.sched.OnCustomerExitSeat(p.id, p.seat)
		}
		p.seat = h
		w.sched.OnCustomerEnterSeat(p.id, h)

	case protocol.InputSeatExit:
		h, code, msg := parseSeat(in.Seat)
		if code != "" {
			return code, msg
		}
		w.sched.OnCustomerExitSeat(p.id, h)
		if p.seat == h {
			p.seat = directory.Handle{}
		}

	case protocol.InputMove:
		if in.Pos == nil {
			return protocol.ErrBadRequest, "missing pos"
		}
		p.pos = geom.FromArray(*in.Pos)

	default:
		return protocol.ErrBadRequest, "unknown input: " + in.Input
	}
	return "", ""
}

func (w *World) customer(p *player) order.Customer {
	return order.Customer{ID: p.id, Kitchen: p.kitchen, Pos: p.pos}
}

func parseSeat(s string) (directory.Handle, string, string) {
	h, err := directory.ParseHandle(s)
	if err != nil {
		return h, protocol.ErrBadRequest, err.Error()
	}
	if h.Kind != directory.KindSeat {
		return h, protocol.ErrInvalidTarget, "not a seat: " + s
	}
	return h, "", ""
}

func (w *World) sendAck(p *player, id, code, msg string) {
	if p.out == nil {
		return
	}
	b, err := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          id,
		Accepted:        code == "",
		Code:            code,
		Message:         msg,
		ServerTick:      w.tick.Load(),
	})
	if err != nil {
		return
	}
	w.sendLatest(p.out, b)
}
