package wait

type timer struct {
	due uint64
	f   *Future
}

// Clock resolves futures after a number of world ticks.
type Clock struct {
	now    uint64
	timers []timer
}

func NewClock() *Clock { return &Clock{} }

func (c *Clock) Now() uint64 { return c.now }

// After returns a future resolved by the first Step at or past now+ticks.
// Non-positive durations resolve on the next Step.
func (c *Clock) After(ticks int) *Future {
	if ticks <= 0 {
		ticks = 1
	}
	f := NewFuture()
	c.timers = append(c.timers, timer{due: c.now + uint64(ticks), f: f})
	return f
}

// Pending reports the number of unresolved timers.
func (c *Clock) Pending() int { return len(c.timers) }

// Step advances the clock and resolves due timers in creation order.
func (c *Clock) Step(tick uint64) {
	c.now = tick
	if len(c.timers) == 0 {
		return
	}
	var due []*Future
	keep := c.timers[:0]
	for _, t := range c.timers {
		if t.due <= tick {
			due = append(due, t.f)
			continue
		}
		keep = append(keep, t)
	}
	c.timers = keep
	for _, f := range due {
		f.Resolve()
	}
}
