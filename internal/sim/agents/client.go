package agents

import (
	"github.com/google/uuid"

	"bistro.ai/internal/sim/directory"
	"bistro.ai/internal/sim/geom"
	"bistro.ai/internal/sim/nav"
	"bistro.ai/internal/sim/order"
	"bistro.ai/internal/sim/present"
	"bistro.ai/internal/sim/wait"
)

type ClientState uint8

const (
	ClientInit ClientState = iota
	ClientPooledIdle
	ClientWalkToSeat
	ClientSit
	ClientOrderFood
	ClientAwaitService
	ClientReturnToPool
)

var clientStateNames = [...]string{"Init", "PooledIdle", "WalkToSeat", "Sit", "OrderFood", "AwaitService", "ReturnToPool"}

func (s ClientState) String() string {
	if int(s) < len(clientStateNames) {
		return clientStateNames[s]
	}
	return "?"
}

// Client is a seated diner: it walks to an assigned seat, orders, waits for
// the dish and goes back to the pool.
type Client struct {
	id     string
	env    *Env
	body   *nav.Body
	spawn  geom.Vec3
	recipe string
	m      machine[ClientState]

	seat   directory.Resource
	served *wait.Future
	dish   *present.ObjectRef
	ticket order.Ticket
}

func NewClient(id string, spawn geom.Vec3, env *Env) *Client {
	c := &Client{
		id:     id,
		env:    env,
		spawn:  spawn,
		recipe: env.Tuning.Client.DefaultRecipe,
		body:   &nav.Body{ID: id, Pos: spawn, Collidable: true},
	}
	c.m.handlers = map[ClientState]func() step[ClientState]{
		ClientInit:         c.init,
		ClientPooledIdle:   func() step[ClientState] { return now(ClientPooledIdle) },
		ClientWalkToSeat:   c.walkToSeat,
		ClientSit:          c.sit,
		ClientOrderFood:    c.orderFood,
		ClientAwaitService: c.awaitService,
		ClientReturnToPool: c.returnToPool,
	}
	return c
}

func (c *Client) ID() string         { return c.id }
func (c *Client) Role() Role         { return RoleClient }
func (c *Client) Body() *nav.Body    { return c.body }
func (c *Client) State() ClientState { return c.m.state }
func (c *Client) StateName() string  { return c.m.state.String() }
func (c *Client) InTransition() bool { return c.m.busy }
func (c *Client) UpdateState()       { c.m.update() }

// SetRecipe changes what the client orders from its next visit on.
func (c *Client) SetRecipe(recipe string) { c.recipe = recipe }

func (c *Client) Seat() directory.Resource { return c.seat }

// Ticket is the last order the client placed.
func (c *Client) Ticket() order.Ticket { return c.ticket }

func (c *Client) OnReady() { c.m.interrupt(ClientInit) }

func (c *Client) IsIdle() bool { return c.m.state == ClientPooledIdle && !c.m.busy }

func (c *Client) Activate(seat directory.Resource) bool {
	if !c.IsIdle() {
		return false
	}
	c.seat = seat
	c.m.state = ClientWalkToSeat
	return true
}

// Deliver hands the client its dish. It reports false when the client is not
// waiting for one or the dish belongs to another ticket, such as one left
// behind by an earlier visit.
func (c *Client) Deliver(ref present.ObjectRef, ticket uuid.UUID) bool {
	if c.served == nil || c.served.Done() || ticket != c.ticket.ID {
		return false
	}
	c.dish = &ref
	c.served.Resolve()
	return true
}

func (c *Client) ForceReturnHome(immediate bool) {
	if c.m.state == ClientPooledIdle || c.m.state == ClientInit {
		return
	}
	c.env.Nav.Cancel(c.body)
	c.served = nil
	c.m.interrupt(ClientReturnToPool)
	if immediate {
		c.m.update()
	}
}

func (c *Client) init() step[ClientState] {
	c.env.Nav.Teleport(c.body, c.spawn)
	c.body.Collidable = true
	return now(ClientPooledIdle)
}

func (c *Client) walkToSeat() step[ClientState] {
	c.env.Nav.Teleport(c.body, c.spawn)
	return after(c.env.walkTo(c.body, c.seat.Pos, c.env.Tuning.Client.WalkSpeed), ClientSit)
}

func (c *Client) sit() step[ClientState] {
	c.body.Collidable = false
	c.body.Pos = c.seat.Pos
	c.body.Yaw = c.seat.Yaw
	return after(c.env.Clock.After(c.env.Tuning.Client.SitTicks), ClientOrderFood)
}

func (c *Client) orderFood() step[ClientState] {
	c.served = wait.NewFuture()
	c.ticket = c.env.Orders.GenerateNewOrder(order.Customer{
		ID:      c.id,
		Kitchen: c.seat.Kitchen,
		Pos:     c.body.Pos,
		Seat:    c.seat.Handle,
	}, c.recipe)
	c.env.logf("client %s ordered %s at %s (ticket %s)", c.id, c.recipe, c.seat.Handle, c.ticket.ID)
	return now(ClientAwaitService)
}

func (c *Client) awaitService() step[ClientState] {
	return after(c.served, ClientReturnToPool)
}

func (c *Client) returnToPool() step[ClientState] {
	c.env.Nav.Cancel(c.body)
	if c.dish != nil {
		if c.env.Spawner != nil {
			c.env.Spawner.Despawn(*c.dish)
		}
		c.dish = nil
	}
	c.env.release(c.seat.Handle, c.id)
	c.seat = directory.Resource{}
	c.served = nil
	c.body.Collidable = true
	c.env.Nav.Teleport(c.body, c.spawn)
	return now(ClientPooledIdle)
}
