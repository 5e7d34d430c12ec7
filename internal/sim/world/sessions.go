package world

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"bistro.ai/internal/protocol"
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
)

var (
	ErrUnknownStall = errors.New("unknown stall")
	ErrNotTended    = errors.New("stall not tended")
	ErrOwnerAbsent  = errors.New("stall owner not present")
	ErrNoMerchant   = errors.New("no idle merchant")
)

func (w *World) handleJoin(req JoinRequest) {
	var resp JoinResponse
	switch {
	case req.Owner == "":
		resp.Code, resp.Message = protocol.ErrBadRequest, "missing owner"
	case w.players[req.Owner] != nil:
		resp.Code, resp.Message = protocol.ErrBusy, "owner already connected"
	default:
		w.nextSession++
		p := &player{
			id:      req.Owner,
			session: fmt.Sprintf("S%06d", w.nextSession),
			pos:     w.entry,
			out:     req.Out,
		}
		if spec, ok := w.cfg.Plots.Owner(req.Owner); ok {
			p.kitchen = spec.Kitchen
			p.ownsPlot = true
			for _, st := range spec.Stalls {
				w.staff[directory.Handle{Kind: directory.KindStall, ID: st.ID}] = true
			}
			w.sched.NotifyOwnerJoined(directory.OwnerID(req.Owner))
		}
		w.players[req.Owner] = p
		resp.Welcome = w.welcome(p)
		w.log.Printf("join owner=%s session=%s plot=%v", p.id, p.session, p.ownsPlot)
	}
	if req.Resp != nil {
		req.Resp <- resp
	}
}

func (w *World) welcome(p *player) protocol.WelcomeMsg {
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       p.session,
		Owner:           p.id,
		Kitchen:         p.kitchen,
		ServerTick:      w.tick.Load(),
		WorldParams: protocol.WorldParams{
			TickRateHz:         w.cfg.Tuning.TickRateHz,
			ScheduleEveryTicks: w.cfg.Tuning.ScheduleEveryTicks,
			Seed:               w.cfg.Tuning.Seed,
		},
		Catalogs: protocol.Catalogs{
			RecipesDigest: w.cfg.Recipes.Digest,
			Recipes:       w.cfg.Recipes.IDs(),
		},
	}
}

// handleLeave drops the player holding session. A late leave from a replaced
// session does nothing.
func (w *World) handleLeave(session string) {
	var p *player
	for _, cand := range w.players {
		if cand.session == session {
			p = cand
			break
		}
	}
	if p == nil {
		return
	}
	delete(w.players, p.id)
	if !p.seat.IsZero() {
		w.sched.OnCustomerExitSeat(p.id, p.seat)
	}
	if p.ownsPlot {
		if spec, ok := w.cfg.Plots.Owner(p.id); ok {
			for _, st := range spec.Stalls {
				delete(w.staff, directory.Handle{Kind: directory.KindStall, ID: st.ID})
			}
		}
		w.sched.NotifyOwnerLeft(directory.OwnerID(p.id))
	}
	w.log.Printf("leave owner=%s session=%s", p.id, p.session)
}

func (w *World) handleMerchant(req MerchantRequest) {
	err := w.merchantRequest(req)
	if req.Resp != nil {
		req.Resp <- err
	}
}

func (w *World) merchantRequest(req MerchantRequest) error {
	h := directory.Handle{Kind: directory.KindStall, ID: req.Stall}
	r, ok := w.dir.Get(h)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownStall, req.Stall)
	}
	if req.Release {
		delete(w.staff, h)
		if !w.sched.ReleaseMerchant(h) {
			return fmt.Errorf("%w: %s", ErrNotTended, req.Stall)
		}
		return nil
	}
	if r.Owner != "" && w.players[string(r.Owner)] == nil {
		return fmt.Errorf("%w: %s", ErrOwnerAbsent, r.Owner)
	}
	delete(w.staff, h)
	if _, ok := w.sched.Tending(h); ok {
		return nil
	}
	if _, ok := w.sched.RequestMerchantNPC(r, w.nearestSpawn(r.Pos)); !ok {
		return fmt.Errorf("%w: %s", ErrNoMerchant, req.Stall)
	}
	return nil
}

// RequestMerchant queues a merchant request for the next tick and waits for
// its outcome. A request that finds no idle merchant fails with
// ErrNoMerchant and is not retried.
func (w *World) RequestMerchant(ctx context.Context, stall string, release bool) error {
	resp := make(chan error, 1)
	select {
	case w.merchant <- MerchantRequest{Stall: stall, Release: release, Resp: resp}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-resp:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) nearestSpawn(pos geom.Vec3) geom.Vec3 {
	r, ok := directory.Nearest(w.dir.Tagged("", directory.KindSpawn), pos)
	if !ok {
		return w.entry
	}
	return r.Pos
}

func sortedHandles(set map[directory.Handle]bool) []directory.Handle {
	out := make([]directory.Handle, 0, len(set))
	for h := range set {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
