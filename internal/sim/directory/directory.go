package directory

import (
	"fmt"
	"strings"
	"sync"

	"bistro.ai/internal/sim/geom"
)

type Kind uint8

const (
	KindSeat Kind = iota + 1
	KindTable
	KindOrderStation
	KindPrepStation
	KindCookStation
	KindStall
	KindSpawn
)

var kindNames = map[Kind]string{
	KindSeat:         "seat",
	KindTable:        "table",
	KindOrderStation: "order_station",
	KindPrepStation:  "prep_station",
	KindCookStation:  "cook_station",
	KindStall:        "stall",
	KindSpawn:        "spawn",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind maps a layout/protocol name to a Kind.
func ParseKind(s string) (Kind, bool) {
	for k, name := range kindNames {
		if name == s {
			return k, true
		}
	}
	return 0, false
}

type OwnerID string

// Handle is a strongly typed reference to a physical resource.
type Handle struct {
	Kind Kind
	ID   string
}

func (h Handle) IsZero() bool { return h.Kind == 0 && h.ID == "" }

func (h Handle) String() string { return h.Kind.String() + ":" + h.ID }

// ParseHandle is the inverse of Handle.String.
func ParseHandle(s string) (Handle, error) {
	name, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Handle{}, fmt.Errorf("bad handle %q", s)
	}
	k, ok := ParseKind(name)
	if !ok {
		return Handle{}, fmt.Errorf("bad handle %q: unknown kind %q", s, name)
	}
	return Handle{Kind: k, ID: id}, nil
}

type Resource struct {
	Handle  Handle
	Owner   OwnerID
	Kitchen string
	Pos     geom.Vec3
	Yaw     float64
}

// Directory is the per-owner lookup of tagged resources. Result slices keep
// registration order, which callers rely on for tie-breaking.
type Directory interface {
	Tagged(owner OwnerID, kind Kind) []Resource
	InKitchen(kitchen string, kind Kind) []Resource
	NearestTable(seat Resource) (Resource, bool)
	Get(h Handle) (Resource, bool)

	// Grant gives customer interaction rights on h. It fails when another
	// customer already holds them.
	Grant(h Handle, customer string) bool
	// Release drops customer's rights on h; it leaves other holders alone.
	Release(h Handle, customer string)
	GrantedTo(h Handle) string
}

// Memory is an in-process Directory.
type Memory struct {
	mu       sync.Mutex
	byHandle map[Handle]Resource
	order    []Handle
	grants   map[Handle]string
}

func NewMemory() *Memory {
	return &Memory{
		byHandle: map[Handle]Resource{},
		grants:   map[Handle]string{},
	}
}

// Add registers r; re-adding a handle replaces it in place.
func (m *Memory) Add(r Resource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byHandle[r.Handle]; !ok {
		m.order = append(m.order, r.Handle)
	}
	m.byHandle[r.Handle] = r
}

// Remove drops a resource, e.g. after a build-mode edit.
func (m *Memory) Remove(h Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byHandle[h]; !ok {
		return
	}
	delete(m.byHandle, h)
	delete(m.grants, h)
	for i, o := range m.order {
		if o == h {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Memory) filter(keep func(Resource) bool) []Resource {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Resource
	for _, h := range m.order {
		if r := m.byHandle[h]; keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func (m *Memory) Tagged(owner OwnerID, kind Kind) []Resource {
	return m.filter(func(r Resource) bool { return r.Owner == owner && r.Handle.Kind == kind })
}

func (m *Memory) InKitchen(kitchen string, kind Kind) []Resource {
	return m.filter(func(r Resource) bool { return r.Kitchen == kitchen && r.Handle.Kind == kind })
}

func (m *Memory) NearestTable(seat Resource) (Resource, bool) {
	return Nearest(m.Tagged(seat.Owner, KindTable), seat.Pos)
}

func (m *Memory) Get(h Handle) (Resource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byHandle[h]
	return r, ok
}

func (m *Memory) Grant(h Handle, customer string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.byHandle[h]; !ok {
		return false
	}
	if held, ok := m.grants[h]; ok && held != customer {
		return false
	}
	m.grants[h] = customer
	return true
}

func (m *Memory) Release(h Handle, customer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.grants[h] == customer {
		delete(m.grants, h)
	}
}

// GrantedTo returns the customer holding interaction rights on h.
func (m *Memory) GrantedTo(h Handle) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.grants[h]
}

// Nearest picks the candidate closest to pos; ties keep the earlier entry.
func Nearest(candidates []Resource, pos geom.Vec3) (Resource, bool) {
	var best Resource
	bestD := -1.0
	for _, c := range candidates {
		d := geom.Dist(c.Pos, pos)
		if bestD < 0 || d < bestD {
			best, bestD = c, d
		}
	}
	return best, bestD >= 0
}
