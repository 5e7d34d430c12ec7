package order

import (
	"errors"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"

	"github.com/google/uuid"

	"bistro.ai/internal/sim/catalogs"
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/present"
)

type Config struct {
	Recipes   *catalogs.RecipeCatalog
	Directory directory.Directory
	Presenter present.Presenter
	Spawner   present.Spawner
	Journal   Journal
	Logger    *log.Logger
	Now       func() uint64
}

// Service tracks every kitchen's queue and active tickets. All state sits
// behind one mutex that is never held while calling out to collaborators.
type Service struct {
	mu       sync.Mutex
	kitchens map[string]*Kitchen
	seq      uint64

	recipes *catalogs.RecipeCatalog
	dir     directory.Directory
	present present.Presenter
	spawner present.Spawner
	journal Journal
	served  ServedNotifier
	log     *log.Logger
	now     func() uint64
}

func NewService(cfg Config) *Service {
	s := &Service{
		kitchens: map[string]*Kitchen{},
		recipes:  cfg.Recipes,
		dir:      cfg.Directory,
		present:  cfg.Presenter,
		spawner:  cfg.Spawner,
		journal:  cfg.Journal,
		log:      cfg.Logger,
		now:      cfg.Now,
	}
	if s.present == nil {
		s.present = nopPresenter{}
	}
	if s.log == nil {
		s.log = log.New(io.Discard, "", 0)
	}
	if s.now == nil {
		s.now = func() uint64 { return 0 }
	}
	return s
}

func (s *Service) SetServedNotifier(n ServedNotifier) {
	s.mu.Lock()
	s.served = n
	s.mu.Unlock()
}

// effects collects collaborator calls made on behalf of a locked section so
// they run after the lock is released.
type effects []func()

func (fx *effects) add(f func()) { *fx = append(*fx, f) }

func (fx effects) run() {
	for _, f := range fx {
		f()
	}
}

// GenerateNewOrder queues a new ticket in the customer's kitchen and shows the
// claim points. It always succeeds; an unknown recipe surfaces only when the
// ticket is advanced.
func (s *Service) GenerateNewOrder(c Customer, recipe string) Ticket {
	var fx effects
	s.mu.Lock()
	k := s.kitchenLocked(c.Kitchen)
	s.seq++
	t := &Ticket{
		ID:      uuid.New(),
		Kitchen: k.ID,
		Recipe:  recipe,
		Step:    NotStarted,
		Orderer: c.ID,
		Seat:    c.Seat,
		Seq:     s.seq,
	}
	k.queue = append(k.queue, t)
	s.recordLocked(t, StateQueued, &fx)
	out := *t
	fx.add(func() { s.present.SetClaimPoints(k.ID, true) })
	s.mu.Unlock()

	fx.run()
	return out
}

// ActivateOrder moves the oldest queued ticket to the customer. When it is
// the customer's only ticket its first step starts right away.
func (s *Service) ActivateOrder(c Customer) {
	var fx effects
	s.mu.Lock()
	k := s.kitchens[c.Kitchen]
	if k == nil || len(k.queue) == 0 {
		s.mu.Unlock()
		return
	}
	s.claimLocked(k, c.ID, &fx)
	if len(k.active[c.ID]) == 1 {
		s.advanceLocked(k, c, nil, &fx)
	}
	s.mu.Unlock()
	fx.run()
}

// AdvanceOrderStep finishes the customer's current step and resolves the next
// one. A customer without an active ticket claims the oldest queued ticket
// first. station, when given, must be the station granted for the current
// step; other triggers are ignored, as is any station granted to another
// customer.
func (s *Service) AdvanceOrderStep(c Customer, station *directory.Handle) {
	var fx effects
	s.mu.Lock()
	k := s.kitchens[c.Kitchen]
	if k == nil {
		s.mu.Unlock()
		s.log.Printf("resource unavailable: kitchen %q has no orders", c.Kitchen)
		return
	}
	if station != nil && s.dir != nil {
		if held := s.dir.GrantedTo(*station); held != "" && held != c.ID {
			s.mu.Unlock()
			s.log.Printf("resource busy: %s triggered %s held by %s", c.ID, station, held)
			return
		}
	}
	if len(k.active[c.ID]) == 0 {
		if len(k.queue) == 0 {
			s.mu.Unlock()
			s.log.Printf("resource unavailable: no ticket for %s in kitchen %s", c.ID, k.ID)
			return
		}
		s.claimLocked(k, c.ID, &fx)
	}
	s.advanceLocked(k, c, station, &fx)
	s.mu.Unlock()
	fx.run()
}

func (s *Service) kitchenLocked(id string) *Kitchen {
	k := s.kitchens[id]
	if k == nil {
		k = newKitchen(id)
		s.kitchens[id] = k
	}
	return k
}

func (s *Service) claimLocked(k *Kitchen, customer string, fx *effects) {
	t := k.queue[0]
	k.queue[0] = nil
	k.queue = k.queue[1:]
	t.holder = customer
	k.active[customer] = append(k.active[customer], t)
	s.recordLocked(t, StateActive, fx)
	if len(k.queue) == 0 {
		fx.add(func() { s.present.SetClaimPoints(k.ID, false) })
	}
}

// advanceLocked walks the customer's active list with an explicit loop: a
// completed ticket hands over to the next one without recursion.
func (s *Service) advanceLocked(k *Kitchen, c Customer, station *directory.Handle, fx *effects) {
	if front := k.active[c.ID]; len(front) > 0 && station != nil {
		cur := front[0].Station
		if !cur.IsZero() && *station != cur {
			s.log.Printf("invalid transition: %s triggered %s but ticket %s waits at %s", c.ID, station, front[0].ID, cur)
			return
		}
	}
	for {
		list := k.active[c.ID]
		if len(list) == 0 {
			return
		}
		t := list[0]
		if err := s.stepLocked(k, c, t, fx); err != nil {
			switch {
			case errors.Is(err, errRecipeDone):
				s.completeLocked(k, c.ID, t, fx)
				if len(k.active[c.ID]) > 0 {
					continue
				}
				delete(k.active, c.ID)
				id := c.ID
				fx.add(func() {
					s.present.HideTask([]string{id})
					s.present.StopIndicator()
				})
			case errors.Is(err, ErrNoStation):
				s.log.Printf("resource unavailable: %v", err)
			case errors.Is(err, ErrTicketComplete):
				s.log.Printf("invalid transition: %v", err)
			default:
				s.log.Printf("config error: %v", err)
			}
		}
		return
	}
}

var errRecipeDone = errors.New("recipe complete")

// stepLocked moves t onto its next step. It mutates nothing unless the step's
// station resolves.
func (s *Service) stepLocked(k *Kitchen, c Customer, t *Ticket, fx *effects) error {
	if t.done {
		return fmt.Errorf("%w: %s", ErrTicketComplete, t.ID)
	}
	steps, ok := s.recipes.Steps(t.Recipe)
	if !ok {
		return fmt.Errorf("%w: ticket %s recipe %q", ErrUnknownRecipe, t.ID, t.Recipe)
	}
	next := t.Step + 1
	if next >= len(steps) {
		return errRecipeDone
	}
	kind, err := StationKind(steps, next)
	if err != nil {
		return fmt.Errorf("recipe %q: %w", t.Recipe, err)
	}
	res, ok := s.nearestStation(k.ID, kind, c)
	if !ok || !s.dir.Grant(res.Handle, c.ID) {
		return fmt.Errorf("%w: %s in kitchen %s for ticket %s", ErrNoStation, kind, k.ID, t.ID)
	}
	if prev := t.Station; !prev.IsZero() && prev != res.Handle {
		s.dir.Release(prev, c.ID)
	}
	t.Step = next
	t.Station = res.Handle
	s.recordLocked(t, StateActive, fx)

	step := steps[next]
	id := c.ID
	fx.add(func() {
		s.present.ShowTask([]string{id}, step.Header, step.Description, step.Task.ShowsProgress())
		s.present.PlayIndicator(res.Pos)
	})
	return nil
}

// nearestStation skips stations granted to someone other than c.
func (s *Service) nearestStation(kitchen string, kind directory.Kind, c Customer) (directory.Resource, bool) {
	if s.dir == nil {
		return directory.Resource{}, false
	}
	all := s.dir.InKitchen(kitchen, kind)
	var free []directory.Resource
	for _, r := range all {
		if held := s.dir.GrantedTo(r.Handle); held == "" || held == c.ID {
			free = append(free, r)
		}
	}
	return directory.Nearest(free, c.Pos)
}

func (s *Service) completeLocked(k *Kitchen, customer string, t *Ticket, fx *effects) {
	list := k.active[customer]
	list[0] = nil
	k.active[customer] = list[1:]
	t.done = true
	if !t.Station.IsZero() && s.dir != nil {
		s.dir.Release(t.Station, customer)
	}
	t.Station = directory.Handle{}
	s.recordLocked(t, StateComplete, fx)

	kind := t.Recipe
	if def, ok := s.recipes.ByID[t.Recipe]; ok {
		kind = def.DeliverableKind()
	}
	done := *t
	notifier := s.served
	fx.add(func() { s.deliver(done, kind, notifier) })
}

func (s *Service) deliver(t Ticket, kind string, notifier ServedNotifier) {
	if s.spawner == nil {
		return
	}
	s.spawner.SpawnDeliverable(kind, func(ref present.ObjectRef) {
		// Player orders leave the deliverable in the world for pickup.
		if t.Seat.IsZero() {
			return
		}
		if notifier == nil {
			s.spawner.Despawn(ref)
			return
		}
		notifier.OnOrderServed(t.Orderer, t.Seat, t.ID, ref)
	})
}

func (s *Service) recordLocked(t *Ticket, st State, fx *effects) {
	if s.journal == nil {
		return
	}
	rec := Record{
		Tick:     s.now(),
		TicketID: t.ID.String(),
		Seq:      t.Seq,
		Kitchen:  t.Kitchen,
		Recipe:   t.Recipe,
		Step:     t.Step,
		State:    st,
		Holder:   t.holder,
		Orderer:  t.Orderer,
		SeatID:   t.Seat.ID,
	}
	fx.add(func() {
		if err := s.journal.Record(rec); err != nil {
			s.log.Printf("journal: %v", err)
		}
	})
}

// Restore rebuilds queues and active lists from journal records of tickets
// that had not completed. It must run before the first order is placed.
func (s *Service) Restore(recs []Record) error {
	sorted := make([]Record, len(recs))
	copy(sorted, recs)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	var fx effects
	s.mu.Lock()
	for _, r := range sorted {
		id, err := uuid.Parse(r.TicketID)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("restore ticket %q: %w", r.TicketID, err)
		}
		k := s.kitchenLocked(r.Kitchen)
		t := &Ticket{
			ID:      id,
			Kitchen: k.ID,
			Recipe:  r.Recipe,
			Step:    r.Step,
			Orderer: r.Orderer,
			Seq:     r.Seq,
			holder:  r.Holder,
		}
		if r.SeatID != "" {
			t.Seat = directory.Handle{Kind: directory.KindSeat, ID: r.SeatID}
		}
		switch r.State {
		case StateQueued:
			t.holder = ""
			k.queue = append(k.queue, t)
		case StateActive:
			if r.Holder == "" {
				s.mu.Unlock()
				return fmt.Errorf("restore ticket %s: active without holder", r.TicketID)
			}
			k.active[r.Holder] = append(k.active[r.Holder], t)
		default:
			continue
		}
		if r.Seq > s.seq {
			s.seq = r.Seq
		}
	}
	for _, k := range s.kitchens {
		if len(k.queue) > 0 {
			id := k.ID
			fx.add(func() { s.present.SetClaimPoints(id, true) })
		}
	}
	s.mu.Unlock()
	fx.run()
	return nil
}

type Stats struct {
	Kitchens  int `json:"kitchens"`
	Queued    int `json:"queued"`
	Active    int `json:"active"`
	Customers int `json:"customers"`
}

func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{Kitchens: len(s.kitchens)}
	for _, k := range s.kitchens {
		st.Queued += len(k.queue)
		st.Customers += len(k.active)
		for _, l := range k.active {
			st.Active += len(l)
		}
	}
	return st
}

// Queue returns a copy of a kitchen's queued tickets, oldest first.
func (s *Service) Queue(kitchen string) []Ticket {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.kitchens[kitchen]
	if k == nil {
		return nil
	}
	out := make([]Ticket, 0, len(k.queue))
	for _, t := range k.queue {
		out = append(out, *t)
	}
	return out
}

// Active returns a copy of a customer's active tickets; ok is false when the
// customer has no entry in the kitchen's active map.
func (s *Service) Active(kitchen, customer string) ([]Ticket, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.kitchens[kitchen]
	if k == nil {
		return nil, false
	}
	l, ok := k.active[customer]
	if !ok {
		return nil, false
	}
	out := make([]Ticket, 0, len(l))
	for _, t := range l {
		out = append(out, *t)
	}
	return out, true
}

// ActiveCustomers lists customers with active tickets in a kitchen, sorted.
func (s *Service) ActiveCustomers(kitchen string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.kitchens[kitchen]
	if k == nil {
		return nil
	}
	out := make([]string, 0, len(k.active))
	for id := range k.active {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

type nopPresenter struct{}

func (nopPresenter) ShowTask([]string, string, string, bool) {}
func (nopPresenter) HideTask([]string)                       {}
func (nopPresenter) PlayIndicator(geom.Vec3)                 {}
func (nopPresenter) StopIndicator()                          {}
func (nopPresenter) SetClaimPoints(string, bool)             {}
