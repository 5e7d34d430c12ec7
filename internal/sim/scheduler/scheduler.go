// Package scheduler matches pooled agents to seats and stalls and evicts them
// when their owner's plot goes away.
package scheduler

import (
	"io"
	"log"
	"math/rand"
	"sync"

	"github.com/google/uuid"

	"bistro.ai/internal/sim/agents"
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/present"
	"bistro.ai/internal/sim/tuning"
)

type Config struct {
	Directory directory.Directory
	Spawner   present.Spawner
	Seating   tuning.Seating
	Seed      int64
	Logger    *log.Logger
}

// deliverer is an agent that can receive a finished dish.
type deliverer interface {
	Deliver(ref present.ObjectRef, ticket uuid.UUID) bool
}

// stallKeeper is an agent that can run a stall.
type stallKeeper interface {
	ActivateAt(stall directory.Resource, spawn geom.Vec3) bool
	Dismiss() bool
}

type stallAssignment struct {
	agent string
	owner directory.OwnerID
}

// Scheduler owns the agent pools and the seat cache. Agent callbacks that
// re-enter the scheduler (Release) always run with mu unlocked.
type Scheduler struct {
	mu sync.Mutex

	dir     directory.Directory
	spawner present.Spawner
	seating tuning.Seating
	rng     *rand.Rand
	log     *log.Logger

	agents []agents.Agent
	byID   map[string]agents.Agent
	pools  map[agents.Role][]agents.Agent

	owners  []directory.OwnerID
	editing map[directory.OwnerID]bool

	seats      []*Seat
	seatByID   map[directory.Handle]*Seat
	seatsValid bool

	stalls map[directory.Handle]stallAssignment

	assigned   uint64
	evicted    uint64
	dangling   uint64
	noMerchant uint64
}

func New(cfg Config) *Scheduler {
	s := &Scheduler{
		dir:      cfg.Directory,
		spawner:  cfg.Spawner,
		seating:  cfg.Seating,
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		log:      cfg.Logger,
		byID:     map[string]agents.Agent{},
		pools:    map[agents.Role][]agents.Agent{},
		editing:  map[directory.OwnerID]bool{},
		seatByID: map[directory.Handle]*Seat{},
		stalls:   map[directory.Handle]stallAssignment{},
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	return s
}

// Register adds an agent to its role's pool. Agents are kept in registration
// order, which is the order idle agents are picked in.
func (s *Scheduler) Register(a agents.Agent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.byID[a.ID()]; dup {
		return
	}
	s.agents = append(s.agents, a)
	s.byID[a.ID()] = a
	s.pools[a.Role()] = append(s.pools[a.Role()], a)
}

// Agents returns every registered agent in registration order.
func (s *Scheduler) Agents() []agents.Agent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]agents.Agent, len(s.agents))
	copy(out, s.agents)
	return out
}

func (s *Scheduler) Agent(id string) (agents.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byID[id]
	return a, ok
}

func (s *Scheduler) firstIdleLocked(role agents.Role) agents.Agent {
	for _, a := range s.pools[role] {
		if a.IsIdle() {
			return a
		}
	}
	return nil
}

// ensureSeatsLocked rebuilds the seat cache when it was invalidated or came
// out empty last time. Seats that survive a rebuild keep their assignment.
func (s *Scheduler) ensureSeatsLocked() {
	if s.seatsValid && len(s.seats) > 0 {
		return
	}
	prev := s.seatByID
	s.seats = s.seats[:0]
	s.seatByID = map[directory.Handle]*Seat{}
	if s.dir != nil {
		for _, owner := range s.owners {
			for _, r := range s.dir.Tagged(owner, directory.KindSeat) {
				table, ok := s.dir.NearestTable(r)
				if !ok || !pairSeat(r, table, s.seating) {
					continue
				}
				st := prev[r.Handle]
				if st == nil {
					st = &Seat{}
				}
				st.Resource = r
				st.Table = table.Handle
				s.seats = append(s.seats, st)
				s.seatByID[r.Handle] = st
			}
		}
	}
	s.seatsValid = true
}

func (s *Scheduler) invalidateLocked() { s.seatsValid = false }

// Tick runs one scheduling pass: at most one idle client is seated.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureSeatsLocked()
	var free []*Seat
	for _, st := range s.seats {
		if st.free() && !s.editing[st.Owner()] {
			free = append(free, st)
		}
	}
	if len(free) == 0 {
		return
	}
	a := s.firstIdleLocked(agents.RoleClient)
	if a == nil {
		return
	}
	st := free[s.rng.Intn(len(free))]
	if !a.Activate(st.Resource) {
		return
	}
	st.assigned = a.ID()
	s.assigned++
	s.log.Printf("assigned %s to %s (owner %s)", a.ID(), st.Handle(), st.Owner())
}

// evict clears every assignment on owner's resources, invalidates the seat
// cache and sends the affected agents home.
func (s *Scheduler) evict(owner directory.OwnerID, why string) {
	s.mu.Lock()
	var gone []agents.Agent
	for _, st := range s.seats {
		if st.Owner() != owner || st.assigned == "" {
			continue
		}
		if a := s.byID[st.assigned]; a != nil {
			gone = append(gone, a)
		}
		st.assigned = ""
	}
	for h, sa := range s.stalls {
		if sa.owner != owner {
			continue
		}
		if a := s.byID[sa.agent]; a != nil {
			gone = append(gone, a)
		}
		delete(s.stalls, h)
	}
	s.invalidateLocked()
	s.evicted += uint64(len(gone))
	s.mu.Unlock()

	for _, a := range gone {
		s.log.Printf("evicting %s: owner %s %s", a.ID(), owner, why)
		a.ForceReturnHome(true)
	}
}

func (s *Scheduler) NotifyOwnerJoined(owner directory.OwnerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.owners {
		if o == owner {
			s.invalidateLocked()
			return
		}
	}
	s.owners = append(s.owners, owner)
	s.invalidateLocked()
}

func (s *Scheduler) NotifyOwnerLeft(owner directory.OwnerID) {
	s.mu.Lock()
	for i, o := range s.owners {
		if o == owner {
			s.owners = append(s.owners[:i], s.owners[i+1:]...)
			break
		}
	}
	delete(s.editing, owner)
	s.mu.Unlock()
	s.evict(owner, "left")
}

// NotifyEditMode tracks build-mode state. Entering evicts; leaving only
// invalidates, since the layout may have changed.
func (s *Scheduler) NotifyEditMode(owner directory.OwnerID, entering bool) {
	if entering {
		s.mu.Lock()
		s.editing[owner] = true
		s.mu.Unlock()
		s.evict(owner, "entered edit mode")
		return
	}
	s.mu.Lock()
	delete(s.editing, owner)
	s.invalidateLocked()
	s.mu.Unlock()
}

func (s *Scheduler) Editing(owner directory.OwnerID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.editing[owner]
}

// RequestMerchantNPC sends the first idle merchant to stall. It returns false
// when no merchant is free or the stall is already tended; the request is not
// kept for later.
func (s *Scheduler) RequestMerchantNPC(stall directory.Resource, spawn geom.Vec3) (agents.Agent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sa, busy := s.stalls[stall.Handle]; busy {
		s.log.Printf("resource unavailable: %s already tended by %s", stall.Handle, sa.agent)
		return nil, false
	}
	for _, a := range s.pools[agents.RoleMerchant] {
		if !a.IsIdle() {
			continue
		}
		keeper, ok := a.(stallKeeper)
		if !ok || !keeper.ActivateAt(stall, spawn) {
			continue
		}
		s.stalls[stall.Handle] = stallAssignment{agent: a.ID(), owner: stall.Owner}
		s.log.Printf("merchant %s sent to %s", a.ID(), stall.Handle)
		return a, true
	}
	s.noMerchant++
	s.log.Printf("resource unavailable: no idle merchant for %s", stall.Handle)
	return nil, false
}

// Tending reports which merchant holds stall, if any.
func (s *Scheduler) Tending(stall directory.Handle) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sa, ok := s.stalls[stall]
	return sa.agent, ok
}

// IdleCount is the number of idle agents in role's pool.
func (s *Scheduler) IdleCount(role agents.Role) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, a := range s.pools[role] {
		if a.IsIdle() {
			n++
		}
	}
	return n
}

// ReleaseMerchant tells the merchant at stall to pack up. It reports false
// when nobody tends the stall.
func (s *Scheduler) ReleaseMerchant(stall directory.Handle) bool {
	s.mu.Lock()
	sa, ok := s.stalls[stall]
	a := s.byID[sa.agent]
	s.mu.Unlock()
	if !ok || a == nil {
		return false
	}
	// A merchant still on its way or setting up is recalled instead.
	if keeper, ok := a.(stallKeeper); !ok || !keeper.Dismiss() {
		a.ForceReturnHome(false)
	}
	return true
}

// Release is called by an agent leaving a seat or stall. Only the agent
// currently holding the resource can release it.
func (s *Scheduler) Release(h directory.Handle, agentID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch h.Kind {
	case directory.KindSeat:
		if st := s.seatByID[h]; st != nil {
			st.clearAgent(agentID)
		}
	case directory.KindStall:
		if sa, ok := s.stalls[h]; ok && sa.agent == agentID {
			delete(s.stalls, h)
		}
	}
}

// OnOrderServed forwards a finished dish to the agent still sitting at seat
// and waiting on ticket. Anything else is a dangling deliverable and is
// despawned.
func (s *Scheduler) OnOrderServed(customer string, seat directory.Handle, ticket uuid.UUID, ref present.ObjectRef) {
	s.mu.Lock()
	var a agents.Agent
	if st := s.seatByID[seat]; st != nil && st.assigned != "" && st.assigned == customer {
		a = s.byID[st.assigned]
	}
	s.mu.Unlock()

	if d, ok := a.(deliverer); ok && d.Deliver(ref, ticket) {
		return
	}
	s.mu.Lock()
	s.dangling++
	s.mu.Unlock()
	s.log.Printf("dangling deliverable %d for %s at %s (ticket %s): despawning", ref.ID, customer, seat, ticket)
	if s.spawner != nil {
		s.spawner.Despawn(ref)
	}
}

// OnCustomerEnterSeat records a human sitting down, which keeps NPCs off the
// seat until they stand up.
func (s *Scheduler) OnCustomerEnterSeat(customer string, seat directory.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureSeatsLocked()
	st := s.seatByID[seat]
	if st == nil {
		s.log.Printf("resource unavailable: %s sat on unknown seat %s", customer, seat)
		return
	}
	if !humanTakesSeat(st) {
		s.log.Printf("%s sat on %s held by %s", customer, seat, st.assigned)
		return
	}
	st.occupant = customer
}

func (s *Scheduler) OnCustomerExitSeat(customer string, seat directory.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if st := s.seatByID[seat]; st != nil && st.occupant == customer {
		st.occupant = ""
	}
}

// Seats returns the current seat cache without forcing a rebuild.
func (s *Scheduler) Seats() []SeatView {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SeatView, 0, len(s.seats))
	for _, st := range s.seats {
		out = append(out, st.view())
	}
	return out
}

// SeatsValid reports whether the seat cache is current.
func (s *Scheduler) SeatsValid() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seatsValid
}

type PoolStats struct {
	Total int `json:"total"`
	Idle  int `json:"idle"`
}

type Stats struct {
	Pools         map[string]PoolStats `json:"pools"`
	Seats         int                  `json:"seats"`
	FreeSeats     int                  `json:"free_seats"`
	AssignedSeats int                  `json:"assigned_seats"`
	OccupiedSeats int                  `json:"occupied_seats"`
	TendedStalls  int                  `json:"tended_stalls"`
	Owners        int                  `json:"owners"`
	Editing       int                  `json:"editing"`
	Assignments   uint64               `json:"assignments"`
	Evictions     uint64               `json:"evictions"`
	Dangling      uint64               `json:"dangling"`
	NoMerchant    uint64               `json:"no_merchant"`
}

func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Pools:        map[string]PoolStats{},
		Seats:        len(s.seats),
		TendedStalls: len(s.stalls),
		Owners:       len(s.owners),
		Editing:      len(s.editing),
		Assignments:  s.assigned,
		Evictions:    s.evicted,
		Dangling:     s.dangling,
		NoMerchant:   s.noMerchant,
	}
	for role, pool := range s.pools {
		ps := PoolStats{Total: len(pool)}
		for _, a := range pool {
			if a.IsIdle() {
				ps.Idle++
			}
		}
		st.Pools[role.String()] = ps
	}
	for _, seat := range s.seats {
		switch {
		case seat.assigned != "":
			st.AssignedSeats++
		case seat.occupant != "":
			st.OccupiedSeats++
		default:
			st.FreeSeats++
		}
	}
	return st
}
