// Package world runs the restaurant simulation: one goroutine owns every
// manager and advances them tick by tick.
package world

import (
	"fmt"
	"io"
	"log"
	"sort"
	"sync/atomic"

	"bistro.ai/internal/sim/agents"
	"bistro.ai/internal/sim/catalogs"
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/layout"
	"bistro.ai/internal/sim/nav"
	"bistro.ai/internal/sim/order"
	"bistro.ai/internal/sim/present"
	"bistro.ai/internal/sim/scheduler"
	"bistro.ai/internal/sim/tuning"
	"bistro.ai/internal/sim/wait"
)

type Config struct {
	Tuning  tuning.Tuning
	Recipes *catalogs.RecipeCatalog
	Plots   *layout.Plots

	// Journal receives every ticket transition (may be nil).
	Journal order.Journal
	// Restore holds open tickets from a previous run.
	Restore []order.Record
	// Sinks receive every presentation event, in addition to connected players.
	Sinks []present.Sink

	Logger *log.Logger
}

type player struct {
	id       string
	session  string
	kitchen  string
	ownsPlot bool
	pos      geom.Vec3
	seat     directory.Handle
	out      chan []byte
	cursor   uint64
}

type World struct {
	cfg Config
	log *log.Logger

	tick atomic.Uint64

	dir     *directory.Memory
	clock   *wait.Clock
	nav     *nav.Linear
	emitter *present.Emitter
	spawner *present.Deferred
	orders  *order.Service
	sched   *scheduler.Scheduler
	agents  []agents.Agent

	players     map[string]*player
	nextSession uint64
	entry       geom.Vec3

	// Stalls to staff on the next scheduling pass. Each is tried once; a
	// stall left without a merchant waits for the next join or request.
	staff map[directory.Handle]bool

	pending []present.Event
	dropped uint64

	inbox    chan InputEnvelope
	join     chan JoinRequest
	leave    chan string
	merchant chan MerchantRequest
	stateReq chan stateReq
	stop     chan struct{}

	metrics atomic.Value
}

func New(cfg Config) (*World, error) {
	if cfg.Plots == nil {
		return nil, fmt.Errorf("world: no plots")
	}
	if cfg.Recipes == nil {
		return nil, fmt.Errorf("world: no recipes")
	}
	if err := cfg.Tuning.Validate(); err != nil {
		return nil, fmt.Errorf("world: %w", err)
	}
	if _, ok := cfg.Recipes.ByID[cfg.Tuning.Client.DefaultRecipe]; !ok {
		return nil, fmt.Errorf("world: default recipe %q not in catalog", cfg.Tuning.Client.DefaultRecipe)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	sub := func(prefix string) *log.Logger { return log.New(logger.Writer(), prefix, logger.Flags()) }

	w := &World{
		cfg:      cfg,
		log:      logger,
		dir:      cfg.Plots.Directory(),
		clock:    wait.NewClock(),
		nav:      nav.NewLinear(cfg.Tuning.Nav.CellSize, cfg.Tuning.Nav.Radius, cfg.Plots.BlockedCells()),
		players:  map[string]*player{},
		staff:    map[directory.Handle]bool{},
		inbox:    make(chan InputEnvelope, 1024),
		join:     make(chan JoinRequest, 64),
		leave:    make(chan string, 64),
		merchant: make(chan MerchantRequest, 16),
		stateReq: make(chan stateReq, 16),
		stop:     make(chan struct{}),
	}
	if len(cfg.Plots.Spawns) > 0 {
		w.entry = geom.FromArray(cfg.Plots.Spawns[0].Pos)
	}

	w.emitter = present.NewEmitter(w.tick.Load, cfg.Sinks...)
	w.emitter.AddSink(eventRouter{w})
	w.spawner = present.NewDeferred(w.emitter)
	w.orders = order.NewService(order.Config{
		Recipes:   cfg.Recipes,
		Directory: w.dir,
		Presenter: w.emitter,
		Spawner:   w.spawner,
		Journal:   cfg.Journal,
		Logger:    sub("[orders] "),
		Now:       w.tick.Load,
	})
	if err := w.orders.Restore(cfg.Restore); err != nil {
		return nil, fmt.Errorf("world: restore tickets: %w", err)
	}
	w.sched = scheduler.New(scheduler.Config{
		Directory: w.dir,
		Spawner:   w.spawner,
		Seating:   cfg.Tuning.Seating,
		Seed:      cfg.Tuning.Seed,
		Logger:    sub("[scheduler] "),
	})
	w.orders.SetServedNotifier(w.sched)

	env := &agents.Env{
		Nav:      w.nav,
		Clock:    w.clock,
		Orders:   w.orders,
		Release:  w.sched,
		Presence: w,
		Present:  w.emitter,
		Spawner:  w.spawner,
		Tuning:   cfg.Tuning,
		Log:      sub("[agents] "),
	}
	w.agents = cfg.Plots.BuildAgents(env)
	// Agents leave Init here so the first scheduling pass finds them pooled.
	for _, a := range w.agents {
		w.sched.Register(a)
		a.OnReady()
		a.UpdateState()
	}

	// Shared stalls are staffed from the start; plot stalls once their owner joins.
	for _, st := range cfg.Plots.Stalls {
		w.staff[directory.Handle{Kind: directory.KindStall, ID: st.ID}] = true
	}
	w.publishMetrics(0)
	return w, nil
}

func (w *World) Inbox() chan<- InputEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest    { return w.join }
func (w *World) Leave() chan<- string        { return w.leave }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

func (w *World) TickRateHz() int { return w.cfg.Tuning.TickRateHz }

func (w *World) Orders() *order.Service          { return w.orders }
func (w *World) Scheduler() *scheduler.Scheduler { return w.sched }
func (w *World) Directory() directory.Directory  { return w.dir }

// Visitors lists connected players, sorted by id. Only the world goroutine
// may call it.
func (w *World) Visitors() []agents.Visitor {
	out := make([]agents.Visitor, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, agents.Visitor{ID: p.id, Pos: p.pos})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// sortedPlayers returns players in id order so event delivery is deterministic.
func (w *World) sortedPlayers() []*player {
	out := make([]*player, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].id < out[j].id })
	return out
}
