package agents

import (
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/nav"
)

type GreeterState uint8

const (
	GreeterInit GreeterState = iota
	GreeterWaitForApproach
	GreeterTurnToward
	GreeterGreet
	GreeterMoveToPlayer
	GreeterInform
	GreeterReturnHome
)

var greeterStateNames = [...]string{"Init", "WaitForApproach", "TurnToward", "Greet", "MoveToPlayer", "Inform", "ReturnHome"}

func (s GreeterState) String() string {
	if int(s) < len(greeterStateNames) {
		return greeterStateNames[s]
	}
	return "?"
}

// Greeter welcomes each arriving customer once. It is never pooled.
type Greeter struct {
	id      string
	env     *Env
	body    *nav.Body
	home    geom.Vec3
	homeYaw float64
	m       machine[GreeterState]

	target string
	// greeted maps customer id to the tick they were greeted.
	greeted map[string]uint64
}

func NewGreeter(id string, home geom.Vec3, yaw float64, env *Env) *Greeter {
	g := &Greeter{
		id:      id,
		env:     env,
		home:    home,
		homeYaw: yaw,
		body:    &nav.Body{ID: id, Pos: home, Yaw: yaw, Collidable: true},
		greeted: map[string]uint64{},
	}
	g.m.handlers = map[GreeterState]func() step[GreeterState]{
		GreeterInit:            g.init,
		GreeterWaitForApproach: g.waitForApproach,
		GreeterTurnToward:      g.turnToward,
		GreeterGreet:           g.greet,
		GreeterMoveToPlayer:    g.moveToPlayer,
		GreeterInform:          g.inform,
		GreeterReturnHome:      g.returnHome,
	}
	return g
}

func (g *Greeter) ID() string          { return g.id }
func (g *Greeter) Role() Role          { return RoleGreeter }
func (g *Greeter) Body() *nav.Body     { return g.body }
func (g *Greeter) State() GreeterState { return g.m.state }
func (g *Greeter) StateName() string   { return g.m.state.String() }
func (g *Greeter) InTransition() bool  { return g.m.busy }
func (g *Greeter) UpdateState()        { g.m.update() }
func (g *Greeter) OnReady()            { g.m.interrupt(GreeterInit) }
func (g *Greeter) IsIdle() bool        { return false }

func (g *Greeter) Activate(directory.Resource) bool { return false }

// Target is the customer currently being greeted, if any.
func (g *Greeter) Target() string { return g.target }

func (g *Greeter) Greeted(customer string) bool {
	_, ok := g.greeted[customer]
	return ok
}

func (g *Greeter) GreetedCount() int { return len(g.greeted) }

func (g *Greeter) ForceReturnHome(immediate bool) {
	if g.m.state == GreeterWaitForApproach || g.m.state == GreeterInit {
		return
	}
	g.env.Nav.Cancel(g.body)
	g.m.interrupt(GreeterReturnHome)
	if immediate {
		g.hideTarget()
		g.env.Nav.Teleport(g.body, g.home)
		g.body.Yaw = g.homeYaw
		g.m.interrupt(GreeterWaitForApproach)
	}
}

func (g *Greeter) init() step[GreeterState] {
	g.env.Nav.Teleport(g.body, g.home)
	g.body.Yaw = g.homeYaw
	return now(GreeterWaitForApproach)
}

func (g *Greeter) prune() {
	ttl := g.env.Tuning.Greeter.GreetedTTLTicks
	if ttl <= 0 {
		return
	}
	tick := g.env.Clock.Now()
	for id, at := range g.greeted {
		if tick-at >= uint64(ttl) {
			delete(g.greeted, id)
		}
	}
}

func (g *Greeter) waitForApproach() step[GreeterState] {
	g.prune()
	tg := g.env.Tuning.Greeter
	if g.env.Presence == nil {
		return now(GreeterWaitForApproach)
	}
	for _, v := range g.env.Presence.Visitors() {
		if _, ok := g.greeted[v.ID]; ok {
			continue
		}
		d := geom.Dist(g.body.Pos, v.Pos)
		if d < tg.MinDistance || d > tg.MaxDistance {
			continue
		}
		g.target = v.ID
		g.greeted[v.ID] = g.env.Clock.Now()
		return now(GreeterTurnToward)
	}
	return now(GreeterWaitForApproach)
}

func (g *Greeter) targetPos() (geom.Vec3, bool) {
	if g.env.Presence == nil {
		return geom.Vec3{}, false
	}
	for _, v := range g.env.Presence.Visitors() {
		if v.ID == g.target {
			return v.Pos, true
		}
	}
	return geom.Vec3{}, false
}

func (g *Greeter) turnToward() step[GreeterState] {
	pos, ok := g.targetPos()
	if !ok {
		return now(GreeterReturnHome)
	}
	g.body.Yaw = geom.YawToward(g.body.Pos, pos)
	return after(g.env.Clock.After(g.env.Tuning.Greeter.TurnTicks), GreeterGreet)
}

func (g *Greeter) greet() step[GreeterState] {
	if _, ok := g.targetPos(); !ok {
		return now(GreeterReturnHome)
	}
	return after(g.env.Clock.After(g.env.Tuning.Greeter.GreetTicks), GreeterMoveToPlayer)
}

func (g *Greeter) moveToPlayer() step[GreeterState] {
	pos, ok := g.targetPos()
	if !ok {
		return now(GreeterReturnHome)
	}
	tg := g.env.Tuning.Greeter
	dest := g.body.Pos
	// Stop short of the customer, on the line back toward the greeter.
	if d := geom.Dist(g.body.Pos, pos); d > tg.StandOff {
		dest = pos.Add(g.body.Pos.Sub(pos).Scale(tg.StandOff / d))
	}
	return after(g.env.walkTo(g.body, dest, tg.WalkSpeed), GreeterInform)
}

func (g *Greeter) inform() step[GreeterState] {
	pos, ok := g.targetPos()
	if !ok {
		return now(GreeterReturnHome)
	}
	g.body.Yaw = geom.YawToward(g.body.Pos, pos)
	tg := g.env.Tuning.Greeter
	if g.env.Present != nil {
		g.env.Present.ShowTask([]string{g.target}, tg.Header, tg.Message, false)
	}
	return after(g.env.Clock.After(tg.InformTicks), GreeterReturnHome)
}

func (g *Greeter) hideTarget() {
	if g.target != "" && g.env.Present != nil {
		g.env.Present.HideTask([]string{g.target})
	}
	g.target = ""
}

func (g *Greeter) returnHome() step[GreeterState] {
	g.hideTarget()
	return after(g.env.walkTo(g.body, g.home, g.env.Tuning.Greeter.WalkSpeed), GreeterWaitForApproach)
}
