package world

import (
	"time"

	"bistro.ai/internal/sim/order"
	"bistro.ai/internal/sim/scheduler"
)

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Players int `json:"players"`
	Agents  int `json:"agents"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`

	Orders    order.Stats     `json:"orders"`
	Scheduler scheduler.Stats `json:"scheduler"`

	PendingSpawns   int    `json:"pending_spawns"`
	LiveObjects     int    `json:"live_objects"`
	PendingTimers   int    `json:"pending_timers"`
	PendingStalls   int    `json:"pending_stalls"`
	DroppedMessages uint64 `json:"dropped_messages"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}

func (w *World) publishMetrics(step time.Duration) {
	w.metrics.Store(WorldMetrics{
		Tick:    w.tick.Load(),
		Players: len(w.players),
		Agents:  len(w.agents),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS:          float64(step.Microseconds()) / 1000,
		Orders:          w.orders.Stats(),
		Scheduler:       w.sched.Stats(),
		PendingSpawns:   w.spawner.Pending(),
		LiveObjects:     w.spawner.Live(),
		PendingTimers:   w.clock.Pending(),
		PendingStalls:   len(w.staff),
		DroppedMessages: w.dropped,
	})
}
