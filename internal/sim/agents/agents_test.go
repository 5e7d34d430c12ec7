package agents

import (
	"testing"

	"github.com/google/uuid"

	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/nav"
	"bistro.ai/internal/sim/order"
	"bistro.ai/internal/sim/present"
	"bistro.ai/internal/sim/tuning"
	"bistro.ai/internal/sim/wait"
)

type fakeOrders struct{ placed []order.Customer }

func (f *fakeOrders) GenerateNewOrder(c order.Customer, recipe string) order.Ticket {
	f.placed = append(f.placed, c)
	return order.Ticket{ID: uuid.New(), Kitchen: c.Kitchen, Recipe: recipe, Step: order.NotStarted, Orderer: c.ID, Seat: c.Seat}
}

type release struct {
	h  directory.Handle
	id string
}

type fakeReleaser struct{ calls []release }

func (f *fakeReleaser) Release(h directory.Handle, agentID string) {
	f.calls = append(f.calls, release{h, agentID})
}

type fakePresence struct{ visitors []Visitor }

func (f *fakePresence) Visitors() []Visitor { return f.visitors }

type harness struct {
	env      *Env
	lin      *nav.Linear
	clock    *wait.Clock
	orders   *fakeOrders
	releaser *fakeReleaser
	presence *fakePresence
	rec      *present.Recorder
	tick     uint64
}

func newHarness() *harness {
	tune := tuning.Defaults()
	tune.Client.WalkSpeed = 1
	tune.Client.SitTicks = 2
	tune.Merchant.WalkSpeed = 1
	tune.Merchant.SetUpTicks = 2
	tune.Greeter.WalkSpeed = 1
	tune.Greeter.TurnTicks = 1
	tune.Greeter.GreetTicks = 1
	tune.Greeter.InformTicks = 2
	h := &harness{
		lin:      nav.NewLinear(1, 32, nil),
		clock:    wait.NewClock(),
		orders:   &fakeOrders{},
		releaser: &fakeReleaser{},
		presence: &fakePresence{},
		rec:      &present.Recorder{},
	}
	h.env = &Env{
		Nav:      h.lin,
		Clock:    h.clock,
		Orders:   h.orders,
		Release:  h.releaser,
		Presence: h.presence,
		Present:  present.NewEmitter(nil, h.rec),
		Tuning:   tune,
	}
	return h
}

// step runs one world tick: clock, movement, then every agent.
func (h *harness) step(as ...Agent) {
	h.tick++
	h.clock.Step(h.tick)
	h.lin.Step()
	for _, a := range as {
		if !a.InTransition() {
			a.UpdateState()
		}
	}
}

func (h *harness) run(n int, as ...Agent) {
	for i := 0; i < n; i++ {
		h.step(as...)
	}
}

var testSeat = directory.Resource{
	Handle:  directory.Handle{Kind: directory.KindSeat, ID: "s1"},
	Owner:   "p1",
	Kitchen: "k1",
	Pos:     geom.Vec3{X: 3, Z: 0.5},
	Yaw:     90,
}

func readyClient(h *harness) *Client {
	c := NewClient("npc-1", geom.Vec3{X: 0.5, Z: 0.5}, h.env)
	c.OnReady()
	h.step(c)
	return c
}

func TestClientPoolsAfterInit(t *testing.T) {
	h := newHarness()
	c := readyClient(h)
	if !c.IsIdle() || c.State() != ClientPooledIdle {
		t.Fatalf("state: got %s idle=%v", c.StateName(), c.IsIdle())
	}
}

func TestClientActivateOnlyFromIdle(t *testing.T) {
	h := newHarness()
	c := readyClient(h)
	if !c.Activate(testSeat) {
		t.Fatalf("activate idle client failed")
	}
	other := testSeat
	other.Handle.ID = "s2"
	if c.Activate(other) {
		t.Fatalf("second activate should fail")
	}
	if c.State() != ClientWalkToSeat || c.Seat().Handle.ID != "s1" {
		t.Fatalf("state after rejected activate: %s seat=%s", c.StateName(), c.Seat().Handle)
	}
}

func TestClientFullVisit(t *testing.T) {
	h := newHarness()
	c := readyClient(h)
	c.Activate(testSeat)

	h.step(c)
	if c.State() != ClientWalkToSeat || !c.InTransition() {
		t.Fatalf("walking: got %s busy=%v", c.StateName(), c.InTransition())
	}
	h.run(6, c)
	if len(h.orders.placed) != 1 {
		t.Fatalf("orders: got %d want 1 (state %s)", len(h.orders.placed), c.StateName())
	}
	placed := h.orders.placed[0]
	if placed.Seat != testSeat.Handle || placed.Kitchen != "k1" || placed.ID != "npc-1" {
		t.Fatalf("order customer: %+v", placed)
	}
	if c.Body().Collidable {
		t.Fatalf("seated client should not collide")
	}
	h.run(3, c)
	if c.State() != ClientAwaitService || !c.InTransition() {
		t.Fatalf("waiting: got %s busy=%v", c.StateName(), c.InTransition())
	}

	if c.Deliver(present.ObjectRef{ID: 6, Kind: "BURGER_PLATE"}, uuid.New()) {
		t.Fatalf("dish for another ticket accepted")
	}
	if !c.Deliver(present.ObjectRef{ID: 7, Kind: "BURGER_PLATE"}, c.Ticket().ID) {
		t.Fatalf("deliver refused")
	}
	if c.Deliver(present.ObjectRef{ID: 8}, c.Ticket().ID) {
		t.Fatalf("second delivery accepted")
	}
	h.step(c)
	if !c.IsIdle() {
		t.Fatalf("after service: got %s", c.StateName())
	}
	if len(h.releaser.calls) != 1 || h.releaser.calls[0] != (release{testSeat.Handle, "npc-1"}) {
		t.Fatalf("release: %+v", h.releaser.calls)
	}
	if !c.Body().Collidable {
		t.Fatalf("collidable not restored")
	}
}

func TestClientForceReturnMidWalk(t *testing.T) {
	h := newHarness()
	c := readyClient(h)
	c.Activate(testSeat)
	h.step(c)
	if !c.InTransition() {
		t.Fatalf("expected client to be walking")
	}
	c.ForceReturnHome(true)
	if !c.IsIdle() {
		t.Fatalf("after forced return: got %s busy=%v", c.StateName(), c.InTransition())
	}
	if len(h.releaser.calls) != 1 {
		t.Fatalf("release calls: got %d want 1", len(h.releaser.calls))
	}
	// The abandoned walk must not drag the client back into Sit.
	h.run(10, c)
	if !c.IsIdle() || len(h.orders.placed) != 0 {
		t.Fatalf("stale continuation resumed: state %s orders %d", c.StateName(), len(h.orders.placed))
	}
}

func TestClientForceReturnWhileSitting(t *testing.T) {
	h := newHarness()
	c := readyClient(h)
	c.Activate(testSeat)
	for i := 0; i < 20 && c.State() != ClientSit; i++ {
		h.step(c)
	}
	if c.State() != ClientSit {
		t.Fatalf("never sat: %s", c.StateName())
	}
	h.step(c)
	c.ForceReturnHome(false)
	if c.State() != ClientReturnToPool || c.InTransition() {
		t.Fatalf("deferred return: got %s busy=%v", c.StateName(), c.InTransition())
	}
	h.run(5, c)
	if !c.IsIdle() || len(h.orders.placed) != 0 {
		t.Fatalf("state %s orders %d", c.StateName(), len(h.orders.placed))
	}
}

func TestClientForceReturnDropsLateDelivery(t *testing.T) {
	h := newHarness()
	c := readyClient(h)
	c.Activate(testSeat)
	h.run(12, c)
	if c.State() != ClientAwaitService {
		t.Fatalf("state: %s", c.StateName())
	}
	ticket := c.Ticket().ID
	c.ForceReturnHome(true)
	if c.Deliver(present.ObjectRef{ID: 1}, ticket) {
		t.Fatalf("evicted client accepted a delivery")
	}
}

func TestForceReturnOnIdleIsNoop(t *testing.T) {
	h := newHarness()
	c := readyClient(h)
	c.ForceReturnHome(true)
	if !c.IsIdle() || len(h.releaser.calls) != 0 {
		t.Fatalf("idle client disturbed: %s %+v", c.StateName(), h.releaser.calls)
	}
}

func TestMerchantTendsUntilDismissed(t *testing.T) {
	h := newHarness()
	m := NewMerchant("m1", geom.Vec3{X: -5, Z: 0.5}, h.env)
	m.OnReady()
	h.step(m)
	stall := directory.Resource{Handle: directory.Handle{Kind: directory.KindStall, ID: "st1"}, Pos: geom.Vec3{X: 2.5, Z: 0.5}, Yaw: 180}
	if !m.ActivateAt(stall, geom.Vec3{X: 0.5, Z: 0.5}) {
		t.Fatalf("activate failed")
	}
	if m.ActivateAt(stall, geom.Vec3{}) {
		t.Fatalf("double activation accepted")
	}
	h.run(8, m)
	if m.State() != MerchantTend {
		t.Fatalf("state: got %s want Tend", m.StateName())
	}
	if m.Body().Yaw != 180 {
		t.Fatalf("yaw: got %v want 180", m.Body().Yaw)
	}
	if !m.Dismiss() {
		t.Fatalf("dismiss refused")
	}
	h.step(m)
	if !m.IsIdle() {
		t.Fatalf("after dismiss: %s", m.StateName())
	}
	if len(h.releaser.calls) != 1 || h.releaser.calls[0].h != stall.Handle {
		t.Fatalf("release: %+v", h.releaser.calls)
	}
	if m.Body().Pos != (geom.Vec3{X: -5, Z: 0.5}) {
		t.Fatalf("merchant not home: %+v", m.Body().Pos)
	}
}

func TestGreeterGreetsOnce(t *testing.T) {
	h := newHarness()
	g := NewGreeter("g1", geom.Vec3{X: 0.5, Z: 0.5}, 0, h.env)
	g.OnReady()
	h.step(g)
	if g.State() != GreeterWaitForApproach || g.IsIdle() {
		t.Fatalf("greeter state: %s idle=%v", g.StateName(), g.IsIdle())
	}

	// Too close, then in band.
	h.presence.visitors = []Visitor{{ID: "near", Pos: geom.Vec3{X: 1, Z: 0.5}}, {ID: "p1", Pos: geom.Vec3{X: 6.5, Z: 0.5}}}
	h.step(g)
	if g.Target() != "p1" || g.State() != GreeterTurnToward {
		t.Fatalf("target: got %q state %s", g.Target(), g.StateName())
	}
	for i := 0; i < 40 && g.State() != GreeterWaitForApproach; i++ {
		h.step(g)
	}
	if g.State() != GreeterWaitForApproach {
		t.Fatalf("greeter stuck in %s", g.StateName())
	}
	show := h.rec.OfType(present.EventShowTask)
	if len(show) != 1 || show[0].Customers[0] != "p1" {
		t.Fatalf("show task: %+v", show)
	}
	if len(h.rec.OfType(present.EventHideTask)) != 1 {
		t.Fatalf("greeting not hidden")
	}
	if g.Body().Pos != (geom.Vec3{X: 0.5, Z: 0.5}) {
		t.Fatalf("greeter not home: %+v", g.Body().Pos)
	}

	h.run(5, g)
	if g.State() != GreeterWaitForApproach || !g.Greeted("p1") || g.Greeted("near") {
		t.Fatalf("greeted set: p1=%v near=%v state=%s", g.Greeted("p1"), g.Greeted("near"), g.StateName())
	}
}

func TestGreeterTTLForgets(t *testing.T) {
	h := newHarness()
	h.env.Tuning.Greeter.GreetedTTLTicks = 3
	g := NewGreeter("g1", geom.Vec3{}, 0, h.env)
	g.greeted["old"] = 0
	g.OnReady()
	h.run(4, g)
	if g.Greeted("old") {
		t.Fatalf("expired entry kept")
	}
}

func TestGreeterForgivesDepartedTarget(t *testing.T) {
	h := newHarness()
	g := NewGreeter("g1", geom.Vec3{X: 0.5, Z: 0.5}, 0, h.env)
	g.OnReady()
	h.step(g)
	h.presence.visitors = []Visitor{{ID: "p1", Pos: geom.Vec3{X: 5.5, Z: 0.5}}}
	h.step(g)
	h.presence.visitors = nil
	for i := 0; i < 20 && g.State() != GreeterWaitForApproach; i++ {
		h.step(g)
	}
	if g.State() != GreeterWaitForApproach || g.Target() != "" {
		t.Fatalf("state %s target %q", g.StateName(), g.Target())
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range []Role{RoleClient, RoleMerchant, RoleGreeter} {
		got, ok := ParseRole(r.String())
		if !ok || got != r {
			t.Fatalf("round trip %s: got %v ok=%v", r, got, ok)
		}
	}
	if _, ok := ParseRole("chef"); ok {
		t.Fatalf("unknown role parsed")
	}
}
