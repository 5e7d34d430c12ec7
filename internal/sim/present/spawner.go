package present

// ObjectRef identifies a spawned deliverable.
type ObjectRef struct {
	ID   uint64 `json:"id"`
	Kind string `json:"kind"`
}

// Spawner creates deliverables asynchronously; done runs once the object exists.
type Spawner interface {
	SpawnDeliverable(kind string, done func(ObjectRef))
	Despawn(ref ObjectRef)
}

type pendingSpawn struct {
	ref  ObjectRef
	done func(ObjectRef)
}

// Deferred completes spawns on the next Step, mirroring an engine that needs a
// frame to instantiate an object.
type Deferred struct {
	sink    Sink
	nextID  uint64
	pending []pendingSpawn
	live    map[uint64]ObjectRef
}

func NewDeferred(sink Sink) *Deferred {
	return &Deferred{sink: sink, live: map[uint64]ObjectRef{}}
}

func (d *Deferred) SpawnDeliverable(kind string, done func(ObjectRef)) {
	d.nextID++
	d.pending = append(d.pending, pendingSpawn{ref: ObjectRef{ID: d.nextID, Kind: kind}, done: done})
}

func (d *Deferred) Despawn(ref ObjectRef) {
	if _, ok := d.live[ref.ID]; !ok {
		return
	}
	delete(d.live, ref.ID)
	d.emit(Event{Type: EventDespawn, Object: ref.ID, ObjectKind: ref.Kind})
}

// Step materializes pending spawns in request order.
func (d *Deferred) Step() {
	if len(d.pending) == 0 {
		return
	}
	batch := d.pending
	d.pending = nil
	for _, p := range batch {
		d.live[p.ref.ID] = p.ref
		d.emit(Event{Type: EventSpawn, Object: p.ref.ID, ObjectKind: p.ref.Kind})
		if p.done != nil {
			p.done(p.ref)
		}
	}
}

// Live reports the number of spawned objects not yet despawned.
func (d *Deferred) Live() int { return len(d.live) }

func (d *Deferred) Pending() int { return len(d.pending) }

func (d *Deferred) emit(ev Event) {
	if d.sink != nil {
		d.sink.Emit(ev)
	}
}
