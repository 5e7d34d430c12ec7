package present

import (
	"testing"

	"bistro.ai/internal/sim/geom"
)

func TestEmitterStampsTickAndFansOut(t *testing.T) {
	var a, b Recorder
	tick := uint64(7)
	e := NewEmitter(func() uint64 { return tick }, &a)
	e.AddSink(&b)

	ids := []string{"alice"}
	e.ShowTask(ids, "Soup", "Dice", true)
	ids[0] = "mutated"
	e.PlayIndicator(geom.Vec3{X: 1, Z: 2})

	for _, r := range []*Recorder{&a, &b} {
		evs := r.Events()
		if len(evs) != 2 {
			t.Fatalf("events: got %d want 2", len(evs))
		}
		if evs[0].Tick != 7 || evs[0].Customers[0] != "alice" || !evs[0].Progress {
			t.Fatalf("show task: %+v", evs[0])
		}
		if evs[1].Pos == nil || evs[1].Pos[2] != 2 {
			t.Fatalf("indicator: %+v", evs[1])
		}
	}
}

func TestDeferredSpawnCompletesOnStep(t *testing.T) {
	var rec Recorder
	d := NewDeferred(&rec)
	var got ObjectRef
	d.SpawnDeliverable("SOUP_BOWL", func(ref ObjectRef) { got = ref })
	if got.ID != 0 || d.Live() != 0 {
		t.Fatalf("spawn completed before step")
	}
	d.Step()
	if got.ID == 0 || got.Kind != "SOUP_BOWL" || d.Live() != 1 {
		t.Fatalf("after step: ref=%+v live=%d", got, d.Live())
	}
	d.Despawn(got)
	d.Despawn(got)
	if d.Live() != 0 {
		t.Fatalf("live after despawn: %d", d.Live())
	}
	if n := len(rec.OfType(EventDespawn)); n != 1 {
		t.Fatalf("despawn events: got %d want 1", n)
	}
}
