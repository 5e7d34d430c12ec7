// Package present is the boundary to the presentation layer: task prompts,
// station indicators, claim-point visibility and deliverable objects.
package present

import (
	"sync"

	"bistro.ai/internal/sim/geom"
)

// Presenter receives UI intents from the simulation.
type Presenter interface {
	ShowTask(customers []string, header, instruction string, progress bool)
	HideTask(customers []string)
	PlayIndicator(pos geom.Vec3)
	StopIndicator()
	SetClaimPoints(kitchen string, visible bool)
}

const (
	EventShowTask      = "SHOW_TASK"
	EventHideTask      = "HIDE_TASK"
	EventIndicatorPlay = "INDICATOR_PLAY"
	EventIndicatorStop = "INDICATOR_STOP"
	EventClaimPoints   = "CLAIM_POINTS"
	EventSpawn         = "SPAWN"
	EventDespawn       = "DESPAWN"
)

// Event is the serialized form of a presentation intent.
type Event struct {
	Tick        uint64      `json:"tick"`
	Type        string      `json:"type"`
	Customers   []string    `json:"customers,omitempty"`
	Kitchen     string      `json:"kitchen,omitempty"`
	Header      string      `json:"header,omitempty"`
	Instruction string      `json:"instruction,omitempty"`
	Progress    bool        `json:"progress,omitempty"`
	Visible     bool        `json:"visible,omitempty"`
	Pos         *[3]float64 `json:"pos,omitempty"`
	Object      uint64      `json:"object,omitempty"`
	ObjectKind  string      `json:"object_kind,omitempty"`
}

// Sink consumes events (event log, websocket hub, test recorder).
type Sink interface {
	Emit(Event)
}

// Emitter turns Presenter calls into Events and fans them out to sinks.
type Emitter struct {
	Now   func() uint64
	sinks []Sink
}

func NewEmitter(now func() uint64, sinks ...Sink) *Emitter {
	return &Emitter{Now: now, sinks: sinks}
}

func (e *Emitter) AddSink(s Sink) {
	if s != nil {
		e.sinks = append(e.sinks, s)
	}
}

func (e *Emitter) Emit(ev Event) {
	if e.Now != nil {
		ev.Tick = e.Now()
	}
	for _, s := range e.sinks {
		s.Emit(ev)
	}
}

func (e *Emitter) ShowTask(customers []string, header, instruction string, progress bool) {
	e.Emit(Event{Type: EventShowTask, Customers: copyIDs(customers), Header: header, Instruction: instruction, Progress: progress})
}

func (e *Emitter) HideTask(customers []string) {
	e.Emit(Event{Type: EventHideTask, Customers: copyIDs(customers)})
}

func (e *Emitter) PlayIndicator(pos geom.Vec3) {
	p := pos.Array()
	e.Emit(Event{Type: EventIndicatorPlay, Pos: &p})
}

func (e *Emitter) StopIndicator() { e.Emit(Event{Type: EventIndicatorStop}) }

func (e *Emitter) SetClaimPoints(kitchen string, visible bool) {
	e.Emit(Event{Type: EventClaimPoints, Kitchen: kitchen, Visible: visible})
}

func copyIDs(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}

// Recorder is a Sink that keeps every event; used by tests and the admin API.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType returns the recorded events with the given type.
func (r *Recorder) OfType(typ string) []Event {
	var out []Event
	for _, ev := range r.Events() {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}
