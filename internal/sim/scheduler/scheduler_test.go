package scheduler

import (
	"testing"

	"bistro.ai/internal/sim/agents"
	"bistro.ai/internal/sim/catalogs"
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/nav"
	"bistro.ai/internal/sim/order"
	"bistro.ai/internal/sim/present"
	"bistro.ai/internal/sim/tasks"
	"bistro.ai/internal/sim/tuning"
	"bistro.ai/internal/sim/wait"
)

type rig struct {
	dir     *directory.Memory
	sched   *Scheduler
	orders  *order.Service
	env     *agents.Env
	lin     *nav.Linear
	clock   *wait.Clock
	spawner *present.Deferred
	rec     *present.Recorder
	tick    uint64
}

func seatAt(owner, id string, x, z, yaw float64) directory.Resource {
	return directory.Resource{
		Handle:  directory.Handle{Kind: directory.KindSeat, ID: id},
		Owner:   directory.OwnerID(owner),
		Kitchen: "k-" + owner,
		Pos:     geom.Vec3{X: x, Z: z},
		Yaw:     yaw,
	}
}

func tableAt(owner, id string, x, z float64) directory.Resource {
	return directory.Resource{
		Handle: directory.Handle{Kind: directory.KindTable, ID: id},
		Owner:  directory.OwnerID(owner),
		Pos:    geom.Vec3{X: x, Z: z},
	}
}

func newRig(t *testing.T, seed int64) *rig {
	t.Helper()
	tune := tuning.Defaults()
	tune.Client.WalkSpeed = 2
	tune.Client.SitTicks = 1
	tune.Merchant.WalkSpeed = 2
	tune.Merchant.SetUpTicks = 1

	r := &rig{
		dir:   directory.NewMemory(),
		lin:   nav.NewLinear(1, 64, nil),
		clock: wait.NewClock(),
		rec:   &present.Recorder{},
	}
	r.spawner = present.NewDeferred(r.rec)
	r.sched = New(Config{Directory: r.dir, Spawner: r.spawner, Seating: tune.Seating, Seed: seed})

	recipes := &catalogs.RecipeCatalog{ByID: map[string]catalogs.RecipeDef{
		"soup": {RecipeID: "soup", Deliverable: "SOUP_BOWL", Steps: []catalogs.StepDef{{Task: tasks.KindTimed, Header: "Soup"}}},
	}}
	r.orders = order.NewService(order.Config{
		Recipes:   recipes,
		Directory: r.dir,
		Presenter: present.NewEmitter(nil, r.rec),
		Spawner:   r.spawner,
	})
	r.orders.SetServedNotifier(r.sched)

	r.env = &agents.Env{
		Nav:     r.lin,
		Clock:   r.clock,
		Orders:  r.orders,
		Release: r.sched,
		Present: present.NewEmitter(nil, r.rec),
		Spawner: r.spawner,
		Tuning:  tune,
	}
	r.env.Tuning.Client.DefaultRecipe = "soup"
	return r
}

// plot adds owner p1 with two seats facing their tables.
func (r *rig) plot(owner string) {
	r.dir.Add(tableAt(owner, owner+"-t1", 0, 1))
	r.dir.Add(seatAt(owner, owner+"-s1", 0, 0, 0))
	r.dir.Add(tableAt(owner, owner+"-t2", 10, 1))
	r.dir.Add(seatAt(owner, owner+"-s2", 10, 0, 0))
	r.dir.Add(directory.Resource{Handle: directory.Handle{Kind: directory.KindCookStation, ID: owner + "-grill"}, Owner: directory.OwnerID(owner), Kitchen: "k-" + owner, Pos: geom.Vec3{X: 5}})
	r.sched.NotifyOwnerJoined(directory.OwnerID(owner))
}

func (r *rig) client(id string) *agents.Client {
	c := agents.NewClient(id, geom.Vec3{X: 5, Z: -5}, r.env)
	r.sched.Register(c)
	c.OnReady()
	c.UpdateState()
	return c
}

func (r *rig) step() {
	r.tick++
	r.spawner.Step()
	r.clock.Step(r.tick)
	r.lin.Step()
	for _, a := range r.sched.Agents() {
		if !a.InTransition() {
			a.UpdateState()
		}
	}
}

func (r *rig) seat(id string) (SeatView, bool) {
	for _, s := range r.sched.Seats() {
		if s.Seat == id {
			return s, true
		}
	}
	return SeatView{}, false
}

func checkNoDoubleOccupancy(t *testing.T, r *rig) {
	t.Helper()
	for _, s := range r.sched.Seats() {
		if s.AssignedAgent != "" && s.OccupyingCustomer != "" {
			t.Fatalf("seat %s both assigned to %s and occupied by %s", s.Seat, s.AssignedAgent, s.OccupyingCustomer)
		}
	}
}

func TestSeatPairingDiscardsUnpairedSeats(t *testing.T) {
	r := newRig(t, 1)
	r.dir.Add(tableAt("p1", "t1", 0, 1))
	r.dir.Add(seatAt("p1", "good", 0, 0, 0))
	r.dir.Add(seatAt("p1", "backwards", 0, 2, 0))
	r.dir.Add(tableAt("p1", "t-far", 20, 0))
	r.dir.Add(seatAt("p1", "far", 26, 0, 90))
	r.sched.NotifyOwnerJoined("p1")
	r.sched.Tick()

	seats := r.sched.Seats()
	if len(seats) != 1 || seats[0].Seat != "good" || seats[0].Table != "t1" {
		t.Fatalf("seats: got %+v", seats)
	}
}

func TestTickAssignsOneSeat(t *testing.T) {
	r := newRig(t, 7)
	r.plot("p1")
	c := r.client("npc-1")

	r.sched.Tick()

	if c.IsIdle() {
		t.Fatalf("client still idle")
	}
	var assigned, free int
	for _, s := range r.sched.Seats() {
		switch s.AssignedAgent {
		case "npc-1":
			assigned++
			if c.Seat().Handle.ID != s.Seat {
				t.Fatalf("client seat %s, scheduler seat %s", c.Seat().Handle.ID, s.Seat)
			}
		case "":
			free++
		}
	}
	if assigned != 1 || free != 1 {
		t.Fatalf("assigned=%d free=%d", assigned, free)
	}

	// Nobody left to seat; the free seat stays free.
	r.sched.Tick()
	if st := r.sched.Stats(); st.FreeSeats != 1 || st.AssignedSeats != 1 {
		t.Fatalf("stats after second tick: %+v", st)
	}
}

func TestSeatChoiceIsRandomAgentChoiceIsStable(t *testing.T) {
	chosen := map[string]bool{}
	for seed := int64(1); seed <= 40; seed++ {
		r := newRig(t, seed)
		r.plot("p1")
		first := r.client("npc-1")
		second := r.client("npc-2")
		r.sched.Tick()
		if first.IsIdle() || !second.IsIdle() {
			t.Fatalf("seed %d: first idle=%v second idle=%v", seed, first.IsIdle(), second.IsIdle())
		}
		chosen[first.Seat().Handle.ID] = true
	}
	if !chosen["p1-s1"] || !chosen["p1-s2"] {
		t.Fatalf("seat choice never varied: %v", chosen)
	}
}

func TestNoSeatsIsNoop(t *testing.T) {
	r := newRig(t, 1)
	c := r.client("npc-1")
	r.sched.Tick()
	if !c.IsIdle() {
		t.Fatalf("client assigned without seats")
	}
}

func TestOwnerLeaveEvicts(t *testing.T) {
	r := newRig(t, 3)
	r.plot("p1")
	r.plot("p2")
	c := r.client("npc-1")
	r.sched.Tick()
	owner := c.Seat().Owner
	r.step()
	if !c.InTransition() {
		t.Fatalf("client should be walking, state %s", c.StateName())
	}

	r.sched.NotifyOwnerLeft(owner)

	if !c.IsIdle() || c.State() != agents.ClientPooledIdle {
		t.Fatalf("evicted client: state %s busy=%v", c.StateName(), c.InTransition())
	}
	if r.sched.SeatsValid() {
		t.Fatalf("seat cache should be invalid after eviction")
	}
	if st := r.orders.Stats(); st != (order.Stats{}) {
		t.Fatalf("order service touched: %+v", st)
	}
	for _, s := range r.sched.Seats() {
		if s.AssignedAgent != "" {
			t.Fatalf("seat %s still points at %s", s.Seat, s.AssignedAgent)
		}
	}

	r.sched.Tick()
	for _, s := range r.sched.Seats() {
		if s.Owner == string(owner) {
			t.Fatalf("rebuild kept departed owner's seat %s", s.Seat)
		}
	}
	if c.IsIdle() {
		t.Fatalf("client should be reassigned to the remaining owner")
	}
	if c.Seat().Owner == owner {
		t.Fatalf("client reassigned to departed owner")
	}
}

func TestOwnerJoinOnlyInvalidates(t *testing.T) {
	r := newRig(t, 3)
	r.plot("p1")
	c := r.client("npc-1")
	r.sched.Tick()
	r.sched.NotifyOwnerJoined("p1")
	if c.IsIdle() {
		t.Fatalf("join evicted an agent")
	}
	r.sched.Tick()
	held := 0
	for _, s := range r.sched.Seats() {
		if s.AssignedAgent == "npc-1" {
			held++
		}
	}
	if held != 1 {
		t.Fatalf("assignment lost across rebuild: %+v", r.sched.Seats())
	}
}

func TestEditModeEvictsAndBlocks(t *testing.T) {
	r := newRig(t, 5)
	r.plot("p1")
	c := r.client("npc-1")
	r.sched.Tick()

	r.sched.NotifyEditMode("p1", true)
	if !c.IsIdle() {
		t.Fatalf("edit mode did not evict")
	}
	r.sched.Tick()
	if !c.IsIdle() {
		t.Fatalf("seat assigned while owner edits")
	}

	r.sched.NotifyEditMode("p1", false)
	r.sched.Tick()
	if c.IsIdle() {
		t.Fatalf("seat not assigned after edit mode ended")
	}
}

func TestHumanOccupancyBlocksAssignment(t *testing.T) {
	r := newRig(t, 9)
	r.plot("p1")
	r.sched.Tick()
	r.sched.OnCustomerEnterSeat("h1", directory.Handle{Kind: directory.KindSeat, ID: "p1-s1"})
	r.sched.OnCustomerEnterSeat("h2", directory.Handle{Kind: directory.KindSeat, ID: "p1-s2"})
	c := r.client("npc-1")
	r.sched.Tick()
	if !c.IsIdle() {
		t.Fatalf("client seated on occupied seat")
	}

	r.sched.OnCustomerExitSeat("h2", directory.Handle{Kind: directory.KindSeat, ID: "p1-s2"})
	r.sched.Tick()
	if c.Seat().Handle.ID != "p1-s2" {
		t.Fatalf("client seat: got %q want p1-s2", c.Seat().Handle.ID)
	}
	checkNoDoubleOccupancy(t, r)
}

func TestHumanOnNPCSeatDoesNotEvict(t *testing.T) {
	r := newRig(t, 2)
	r.plot("p1")
	c := r.client("npc-1")
	r.sched.Tick()
	held := c.Seat().Handle

	r.sched.OnCustomerEnterSeat("h1", held)

	if c.IsIdle() {
		t.Fatalf("npc evicted by human")
	}
	s, _ := r.seat(held.ID)
	if s.AssignedAgent != "npc-1" || s.OccupyingCustomer != "" {
		t.Fatalf("seat: %+v", s)
	}
	checkNoDoubleOccupancy(t, r)
}

func TestOrderServedForwardsToSeatedClient(t *testing.T) {
	r := newRig(t, 4)
	r.plot("p1")
	c := r.client("npc-1")
	r.sched.Tick()
	for i := 0; i < 30 && c.State() != agents.ClientAwaitService; i++ {
		r.step()
	}
	if c.State() != agents.ClientAwaitService {
		t.Fatalf("client never ordered: %s", c.StateName())
	}

	cook := order.Customer{ID: "cook", Kitchen: c.Seat().Kitchen}
	r.orders.AdvanceOrderStep(cook, nil)
	r.orders.AdvanceOrderStep(cook, nil)
	r.step()
	r.step()

	if !c.IsIdle() {
		t.Fatalf("client not back in pool: %s", c.StateName())
	}
	if r.spawner.Live() != 0 {
		t.Fatalf("dish left behind: %d live", r.spawner.Live())
	}
	if st := r.sched.Stats(); st.Dangling != 0 || st.FreeSeats != 2 {
		t.Fatalf("stats: %+v", st)
	}
}

func TestOrderServedAfterEvictionDespawns(t *testing.T) {
	r := newRig(t, 4)
	r.plot("p1")
	c := r.client("npc-1")
	r.sched.Tick()
	for i := 0; i < 30 && c.State() != agents.ClientAwaitService; i++ {
		r.step()
	}
	kitchen := c.Seat().Kitchen
	r.sched.NotifyEditMode("p1", true)

	cook := order.Customer{ID: "cook", Kitchen: kitchen}
	r.orders.AdvanceOrderStep(cook, nil)
	r.orders.AdvanceOrderStep(cook, nil)
	r.step()

	if n := len(r.rec.OfType(present.EventSpawn)); n != 1 {
		t.Fatalf("spawns: got %d want 1", n)
	}
	if n := len(r.rec.OfType(present.EventDespawn)); n != 1 {
		t.Fatalf("despawns: got %d want 1", n)
	}
	if r.spawner.Live() != 0 {
		t.Fatalf("live: got %d want 0", r.spawner.Live())
	}
	if st := r.sched.Stats(); st.Dangling != 1 {
		t.Fatalf("dangling: got %d want 1", st.Dangling)
	}
}

func TestMerchantRequests(t *testing.T) {
	r := newRig(t, 1)
	m := agents.NewMerchant("m1", geom.Vec3{X: -3}, r.env)
	r.sched.Register(m)
	m.OnReady()
	m.UpdateState()

	stall := directory.Resource{Handle: directory.Handle{Kind: directory.KindStall, ID: "st1"}, Owner: "p1", Pos: geom.Vec3{X: 2}}
	if n := r.sched.IdleCount(agents.RoleMerchant); n != 1 {
		t.Fatalf("idle merchants: got %d want 1", n)
	}
	got, ok := r.sched.RequestMerchantNPC(stall, geom.Vec3{})
	if !ok || got.ID() != "m1" {
		t.Fatalf("request: got %v ok=%v", got, ok)
	}
	if id, ok := r.sched.Tending(stall.Handle); !ok || id != "m1" {
		t.Fatalf("tending: got %q ok=%v", id, ok)
	}
	other := stall
	other.Handle.ID = "st2"
	if _, ok := r.sched.RequestMerchantNPC(other, geom.Vec3{}); ok {
		t.Fatalf("exhausted pool still served a request")
	}
	if st := r.sched.Stats(); st.NoMerchant != 1 || st.TendedStalls != 1 {
		t.Fatalf("stats: %+v", st)
	}

	for i := 0; i < 10 && m.State() != agents.MerchantTend; i++ {
		r.step()
	}
	if !r.sched.ReleaseMerchant(stall.Handle) {
		t.Fatalf("release refused")
	}
	r.step()
	if !m.IsIdle() {
		t.Fatalf("merchant state after release: %s", m.StateName())
	}
	if st := r.sched.Stats(); st.TendedStalls != 0 {
		t.Fatalf("stall still tended: %+v", st)
	}
	if r.sched.ReleaseMerchant(stall.Handle) {
		t.Fatalf("releasing an untended stall succeeded")
	}
}

func TestMerchantEvictedWithOwner(t *testing.T) {
	r := newRig(t, 1)
	m := agents.NewMerchant("m1", geom.Vec3{X: -3}, r.env)
	r.sched.Register(m)
	m.OnReady()
	m.UpdateState()
	stall := directory.Resource{Handle: directory.Handle{Kind: directory.KindStall, ID: "st1"}, Owner: "p1", Pos: geom.Vec3{X: 2}}
	r.sched.NotifyOwnerJoined("p1")
	if _, ok := r.sched.RequestMerchantNPC(stall, geom.Vec3{}); !ok {
		t.Fatalf("request failed")
	}
	r.step()
	r.sched.NotifyOwnerLeft("p1")
	if !m.IsIdle() {
		t.Fatalf("merchant not evicted: %s", m.StateName())
	}
}

func TestStaleDishNotHandedToNewVisit(t *testing.T) {
	r := newRig(t, 4)
	r.dir.Add(tableAt("p1", "p1-t1", 0, 1))
	r.dir.Add(seatAt("p1", "p1-s1", 0, 0, 0))
	r.dir.Add(directory.Resource{Handle: directory.Handle{Kind: directory.KindCookStation, ID: "p1-grill"}, Owner: "p1", Kitchen: "k-p1", Pos: geom.Vec3{X: 5}})
	r.sched.NotifyOwnerJoined("p1")
	c := r.client("npc-1")

	awaitOrder := func() {
		t.Helper()
		r.sched.Tick()
		for i := 0; i < 30 && c.State() != agents.ClientAwaitService; i++ {
			r.step()
		}
		if c.State() != agents.ClientAwaitService {
			t.Fatalf("client never ordered: %s", c.StateName())
		}
	}
	awaitOrder()
	first := c.Ticket().ID

	// Leaving the first visit abandons its ticket in the queue.
	r.sched.NotifyEditMode("p1", true)
	r.sched.NotifyEditMode("p1", false)
	awaitOrder()
	second := c.Ticket().ID
	if first == second {
		t.Fatalf("second visit reused ticket %s", first)
	}
	if c.Seat().Handle.ID != "p1-s1" {
		t.Fatalf("client reseated at %q", c.Seat().Handle.ID)
	}

	cook := order.Customer{ID: "cook", Kitchen: "k-p1"}
	r.orders.AdvanceOrderStep(cook, nil)
	if list, _ := r.orders.Active("k-p1", "cook"); len(list) != 1 || list[0].ID != first {
		t.Fatalf("cook should hold the abandoned ticket first: %+v", list)
	}
	r.orders.AdvanceOrderStep(cook, nil)
	r.step()

	if c.State() != agents.ClientAwaitService {
		t.Fatalf("client took the abandoned dish: %s", c.StateName())
	}
	if st := r.sched.Stats(); st.Dangling != 1 {
		t.Fatalf("dangling: got %d want 1", st.Dangling)
	}
	if r.spawner.Live() != 0 {
		t.Fatalf("abandoned dish still live: %d", r.spawner.Live())
	}

	for i := 0; i < 4 && !c.IsIdle(); i++ {
		r.orders.AdvanceOrderStep(cook, nil)
		r.step()
		r.step()
	}
	if !c.IsIdle() {
		t.Fatalf("client never served its own ticket: %s", c.StateName())
	}
	if st := r.sched.Stats(); st.Dangling != 1 {
		t.Fatalf("own dish counted as dangling: %+v", st)
	}
}
