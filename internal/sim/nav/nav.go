package nav

import (
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/wait"
)

// Body is the physical presence of an agent.
type Body struct {
	ID         string
	Pos        geom.Vec3
	Yaw        float64
	Collidable bool
}

// Oracle answers reachability questions and moves bodies. Move calls return a
// future resolved on arrival; a body has at most one motion at a time and a new
// motion (or Cancel) abandons the previous one without resolving it.
type Oracle interface {
	IsReachable(from, to geom.Vec3) bool
	MoveAlongPath(b *Body, to geom.Vec3, speed float64) *wait.Future
	MoveDirect(b *Body, to geom.Vec3, speed float64) *wait.Future
	Teleport(b *Body, to geom.Vec3)
	Cancel(b *Body)
}

type motion struct {
	body      *Body
	waypoints []geom.Vec3
	speed     float64
	f         *wait.Future
}

// Linear moves bodies at constant speed along grid paths (or straight lines for
// direct moves). Blocked cells come from the world layout.
type Linear struct {
	CellSize float64
	Radius   int
	MaxNodes int

	blocked map[Cell]bool
	motions map[string]*motion
	order   []string
}

func NewLinear(cellSize float64, radius int, blocked []Cell) *Linear {
	if cellSize <= 0 {
		cellSize = 1
	}
	if radius <= 0 {
		radius = 256
	}
	l := &Linear{
		CellSize: cellSize,
		Radius:   radius,
		MaxNodes: 65536,
		blocked:  map[Cell]bool{},
		motions:  map[string]*motion{},
	}
	for _, c := range blocked {
		l.blocked[c] = true
	}
	return l
}

func (l *Linear) inBounds(c Cell) bool {
	return c.X >= -l.Radius && c.X <= l.Radius && c.Z >= -l.Radius && c.Z <= l.Radius
}

func (l *Linear) isBlocked(c Cell) bool { return l.blocked[c] }

func (l *Linear) IsReachable(from, to geom.Vec3) bool {
	_, ok := gridPath(cellOf(from, l.CellSize), cellOf(to, l.CellSize), l.MaxNodes, l.inBounds, l.isBlocked)
	return ok
}

func (l *Linear) MoveAlongPath(b *Body, to geom.Vec3, speed float64) *wait.Future {
	cells, ok := gridPath(cellOf(b.Pos, l.CellSize), cellOf(to, l.CellSize), l.MaxNodes, l.inBounds, l.isBlocked)
	if !ok {
		return l.MoveDirect(b, to, speed)
	}
	wps := make([]geom.Vec3, 0, len(cells)+1)
	// The last cell is replaced by the exact target.
	for i, c := range cells {
		if i == len(cells)-1 {
			break
		}
		p := c.center(l.CellSize)
		p.Y = b.Pos.Y
		wps = append(wps, p)
	}
	wps = append(wps, to)
	return l.start(b, wps, speed)
}

func (l *Linear) MoveDirect(b *Body, to geom.Vec3, speed float64) *wait.Future {
	return l.start(b, []geom.Vec3{to}, speed)
}

func (l *Linear) start(b *Body, wps []geom.Vec3, speed float64) *wait.Future {
	l.Cancel(b)
	f := wait.NewFuture()
	if speed <= 0 {
		b.Pos = wps[len(wps)-1]
		f.Resolve()
		return f
	}
	l.motions[b.ID] = &motion{body: b, waypoints: wps, speed: speed, f: f}
	l.order = append(l.order, b.ID)
	return f
}

func (l *Linear) Teleport(b *Body, to geom.Vec3) {
	l.Cancel(b)
	b.Pos = to
}

func (l *Linear) Cancel(b *Body) {
	if _, ok := l.motions[b.ID]; !ok {
		return
	}
	delete(l.motions, b.ID)
	for i, id := range l.order {
		if id == b.ID {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

// Moving reports whether b has an active motion.
func (l *Linear) Moving(b *Body) bool {
	_, ok := l.motions[b.ID]
	return ok
}

// Step advances every active motion by one tick. Arrivals resolve after all
// bodies have moved, so callbacks may start new motions safely.
func (l *Linear) Step() {
	var arrived []*wait.Future
	keep := l.order[:0]
	for _, id := range l.order {
		m := l.motions[id]
		if m == nil {
			continue
		}
		budget := m.speed
		for budget > 0 && len(m.waypoints) > 0 {
			target := m.waypoints[0]
			d := geom.Dist(m.body.Pos, target)
			if d > 0 {
				m.body.Yaw = geom.YawToward(m.body.Pos, target)
			}
			next, reached := geom.MoveToward(m.body.Pos, target, budget)
			m.body.Pos = next
			if !reached {
				budget = 0
				break
			}
			budget -= d
			m.waypoints = m.waypoints[1:]
		}
		if len(m.waypoints) == 0 {
			delete(l.motions, id)
			arrived = append(arrived, m.f)
			continue
		}
		keep = append(keep, id)
	}
	l.order = keep
	for _, f := range arrived {
		f.Resolve()
	}
}
