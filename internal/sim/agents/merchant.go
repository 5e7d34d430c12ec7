package agents

import (
	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/nav"
	"bistro.ai/internal/sim/wait"
)

type MerchantState uint8

const (
	MerchantInit MerchantState = iota
	MerchantPooledIdle
	MerchantWalkToStall
	MerchantSetUp
	MerchantTend
	MerchantReturnToPool
)

var merchantStateNames = [...]string{"Init", "PooledIdle", "WalkToStall", "SetUp", "Tend", "ReturnToPool"}

func (s MerchantState) String() string {
	if int(s) < len(merchantStateNames) {
		return merchantStateNames[s]
	}
	return "?"
}

// Merchant runs a market stall until dismissed.
type Merchant struct {
	id    string
	env   *Env
	body  *nav.Body
	home  geom.Vec3
	m     machine[MerchantState]
	stall directory.Resource
	entry geom.Vec3
	done  *wait.Future
}

func NewMerchant(id string, home geom.Vec3, env *Env) *Merchant {
	mc := &Merchant{
		id:   id,
		env:  env,
		home: home,
		body: &nav.Body{ID: id, Pos: home, Collidable: true},
	}
	mc.m.handlers = map[MerchantState]func() step[MerchantState]{
		MerchantInit:         mc.init,
		MerchantPooledIdle:   func() step[MerchantState] { return now(MerchantPooledIdle) },
		MerchantWalkToStall:  mc.walkToStall,
		MerchantSetUp:        mc.setUp,
		MerchantTend:         mc.tend,
		MerchantReturnToPool: mc.returnToPool,
	}
	return mc
}

func (mc *Merchant) ID() string           { return mc.id }
func (mc *Merchant) Role() Role           { return RoleMerchant }
func (mc *Merchant) Body() *nav.Body      { return mc.body }
func (mc *Merchant) State() MerchantState { return mc.m.state }
func (mc *Merchant) StateName() string    { return mc.m.state.String() }
func (mc *Merchant) InTransition() bool   { return mc.m.busy }
func (mc *Merchant) UpdateState()         { mc.m.update() }

func (mc *Merchant) Stall() directory.Resource { return mc.stall }

func (mc *Merchant) OnReady() { mc.m.interrupt(MerchantInit) }

func (mc *Merchant) IsIdle() bool { return mc.m.state == MerchantPooledIdle && !mc.m.busy }

func (mc *Merchant) Activate(stall directory.Resource) bool {
	return mc.ActivateAt(stall, mc.home)
}

// ActivateAt sends an idle merchant to stall, entering the world at spawn.
func (mc *Merchant) ActivateAt(stall directory.Resource, spawn geom.Vec3) bool {
	if !mc.IsIdle() {
		return false
	}
	mc.stall = stall
	mc.entry = spawn
	mc.m.state = MerchantWalkToStall
	return true
}

// Dismiss ends tending; the merchant leaves on its next update.
func (mc *Merchant) Dismiss() bool {
	if mc.done == nil || mc.done.Done() {
		return false
	}
	mc.done.Resolve()
	return true
}

func (mc *Merchant) ForceReturnHome(immediate bool) {
	if mc.m.state == MerchantPooledIdle || mc.m.state == MerchantInit {
		return
	}
	mc.env.Nav.Cancel(mc.body)
	mc.done = nil
	mc.m.interrupt(MerchantReturnToPool)
	if immediate {
		mc.m.update()
	}
}

func (mc *Merchant) init() step[MerchantState] {
	mc.env.Nav.Teleport(mc.body, mc.home)
	mc.body.Collidable = true
	return now(MerchantPooledIdle)
}

func (mc *Merchant) walkToStall() step[MerchantState] {
	mc.env.Nav.Teleport(mc.body, mc.entry)
	return after(mc.env.walkTo(mc.body, mc.stall.Pos, mc.env.Tuning.Merchant.WalkSpeed), MerchantSetUp)
}

func (mc *Merchant) setUp() step[MerchantState] {
	mc.body.Collidable = false
	mc.body.Yaw = mc.stall.Yaw
	mc.done = wait.NewFuture()
	return after(mc.env.Clock.After(mc.env.Tuning.Merchant.SetUpTicks), MerchantTend)
}

func (mc *Merchant) tend() step[MerchantState] {
	return after(mc.done, MerchantReturnToPool)
}

func (mc *Merchant) returnToPool() step[MerchantState] {
	mc.env.Nav.Cancel(mc.body)
	mc.env.release(mc.stall.Handle, mc.id)
	mc.stall = directory.Resource{}
	mc.done = nil
	mc.body.Collidable = true
	mc.env.Nav.Teleport(mc.body, mc.home)
	return now(MerchantPooledIdle)
}
