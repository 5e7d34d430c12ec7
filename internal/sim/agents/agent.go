// Package agents holds the behavior state machines of non-player actors.
//
// Every machine advances at most one state per UpdateState call. A state
// handler either finishes synchronously or hands back a future; while that
// future is pending the agent is in transition and UpdateState does nothing.
package agents

import (
	"io"
	"log"

	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/nav"
	"bistro.ai/internal/sim/order"
	"bistro.ai/internal/sim/present"
	"bistro.ai/internal/sim/tuning"
	"bistro.ai/internal/sim/wait"
)

type Role uint8

const (
	RoleClient Role = iota + 1
	RoleMerchant
	RoleGreeter
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleMerchant:
		return "merchant"
	case RoleGreeter:
		return "greeter"
	}
	return "unknown"
}

func ParseRole(s string) (Role, bool) {
	for _, r := range []Role{RoleClient, RoleMerchant, RoleGreeter} {
		if r.String() == s {
			return r, true
		}
	}
	return 0, false
}

type Agent interface {
	ID() string
	Role() Role
	Body() *nav.Body

	// OnReady puts the agent in its role's initial state.
	OnReady()
	// IsIdle reports whether the agent can be handed a resource.
	IsIdle() bool
	// Activate assigns r to an idle agent. It reports false and changes
	// nothing when the agent is not idle.
	Activate(r directory.Resource) bool
	UpdateState()
	InTransition() bool
	// ForceReturnHome jumps straight to the role's return state. With
	// immediate set the return runs before the call returns.
	ForceReturnHome(immediate bool)
	StateName() string
}

// Orders is the part of the order service agents use.
type Orders interface {
	GenerateNewOrder(c order.Customer, recipe string) order.Ticket
}

// Releaser takes back a seat or stall an agent was assigned. Releasing a
// resource the agent no longer holds is a no-op.
type Releaser interface {
	Release(h directory.Handle, agentID string)
}

// Visitor is a human customer currently in the world.
type Visitor struct {
	ID  string
	Pos geom.Vec3
}

type Presence interface {
	Visitors() []Visitor
}

// Env carries the collaborators shared by every agent. Fields may be filled
// in after the agents are built, but before the first UpdateState.
type Env struct {
	Nav      nav.Oracle
	Clock    *wait.Clock
	Orders   Orders
	Release  Releaser
	Presence Presence
	Present  present.Presenter
	Spawner  present.Spawner
	Tuning   tuning.Tuning
	Log      *log.Logger
}

func (e *Env) logf(format string, args ...any) {
	if e.Log == nil {
		e.Log = log.New(io.Discard, "", 0)
	}
	e.Log.Printf(format, args...)
}

func (e *Env) release(h directory.Handle, agentID string) {
	if e.Release != nil && !h.IsZero() {
		e.Release.Release(h, agentID)
	}
}

// walkTo faces the body toward dest and moves it there, along the navigation
// path when one exists.
func (e *Env) walkTo(b *nav.Body, dest geom.Vec3, speed float64) *wait.Future {
	if geom.Dist(b.Pos, dest) > 0 {
		b.Yaw = geom.YawToward(b.Pos, dest)
	}
	if e.Nav.IsReachable(b.Pos, dest) {
		return e.Nav.MoveAlongPath(b, dest, speed)
	}
	return e.Nav.MoveDirect(b, dest, speed)
}
