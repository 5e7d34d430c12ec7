package world

import (
	"context"
	"time"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.Tuning.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingInputs []InputEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string
	var pendingMerchant []MerchantRequest
	var pendingState []stateReq

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case req := <-w.merchant:
			pendingMerchant = append(pendingMerchant, req)
		case req := <-w.stateReq:
			pendingState = append(pendingState, req)
		case env := <-w.inbox:
			pendingInputs = append(pendingInputs, env)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingInputs, pendingMerchant)
			w.handleStateRequests(pendingState)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingInputs = pendingInputs[:0]
			pendingMerchant = pendingMerchant[:0]
			pendingState = pendingState[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// StepOnce advances the world by a single tick using the same ordering as the
// server loop. It is intended for tests and replays.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, inputs []InputEnvelope) uint64 {
	tick := w.tick.Load()
	w.step(joins, leaves, inputs, nil)
	return tick
}

// step runs one tick: session changes and player inputs first, then the
// deferred spawner, timers, movement, the scheduling pass and every agent
// that is not waiting on a continuation.
func (w *World) step(joins []JoinRequest, leaves []string, inputs []InputEnvelope, merchant []MerchantRequest) {
	start := time.Now()
	tick := w.tick.Load()

	for _, req := range joins {
		w.handleJoin(req)
	}
	for _, session := range leaves {
		w.handleLeave(session)
	}
	for _, env := range inputs {
		w.applyInput(env)
	}
	for _, req := range merchant {
		w.handleMerchant(req)
	}

	w.spawner.Step()
	w.clock.Step(tick)
	w.nav.Step()

	if tick%uint64(w.cfg.Tuning.ScheduleEveryTicks) == 0 {
		w.staffStalls()
		w.sched.Tick()
	}
	for _, a := range w.agents {
		if a.InTransition() {
			continue
		}
		a.UpdateState()
	}

	w.flushEvents(tick)
	w.tick.Store(tick + 1)
	w.publishMetrics(time.Since(start))
}

// staffStalls makes one merchant request per pending stall, in handle order,
// and forgets the stall whatever the outcome.
func (w *World) staffStalls() {
	if len(w.staff) == 0 {
		return
	}
	for _, h := range sortedHandles(w.staff) {
		delete(w.staff, h)
		if _, busy := w.sched.Tending(h); busy {
			continue
		}
		r, ok := w.dir.Get(h)
		if !ok {
			continue
		}
		w.sched.RequestMerchantNPC(r, w.nearestSpawn(r.Pos))
	}
}
