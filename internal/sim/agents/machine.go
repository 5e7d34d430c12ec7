package agents

import "bistro.ai/internal/sim/wait"

// step is a handler's result: the state to enter next and, for suspending
// states, the future that must resolve first.
type step[S comparable] struct {
	next S
	wait *wait.Future
}

func now[S comparable](next S) step[S] { return step[S]{next: next} }

func after[S comparable](f *wait.Future, next S) step[S] { return step[S]{next: next, wait: f} }

// machine is a state enum plus handler table. gen is bumped on interrupt so a
// continuation registered before the interrupt finds itself stale and does
// nothing.
type machine[S comparable] struct {
	state    S
	handlers map[S]func() step[S]
	busy     bool
	gen      uint64
}

func (m *machine[S]) update() {
	if m.busy {
		return
	}
	h := m.handlers[m.state]
	if h == nil {
		return
	}
	st := h()
	if st.wait == nil || st.wait.Done() {
		m.state = st.next
		return
	}
	m.busy = true
	gen := m.gen
	st.wait.OnDone(func() {
		if m.gen != gen {
			return
		}
		m.busy = false
		m.state = st.next
	})
}

func (m *machine[S]) interrupt(to S) {
	m.gen++
	m.busy = false
	m.state = to
}
