// Package wait holds the continuation primitives used by suspending
// sub-operations (movement, timed interactions, signals). Everything here is
// driven from the world loop goroutine; none of it is safe for concurrent use.
package wait

// Future is a one-shot completion handle. Callbacks registered with OnDone run
// once, in registration order, when Resolve is first called.
type Future struct {
	done bool
	cbs  []func()
}

func NewFuture() *Future { return &Future{} }

// Resolved returns a future that is already complete.
func Resolved() *Future { return &Future{done: true} }

func (f *Future) Done() bool { return f != nil && f.done }

// Resolve completes the future. Later calls are no-ops.
func (f *Future) Resolve() {
	if f == nil || f.done {
		return
	}
	f.done = true
	cbs := f.cbs
	f.cbs = nil
	for _, cb := range cbs {
		cb()
	}
}

// OnDone registers fn. If the future is already complete fn runs immediately.
func (f *Future) OnDone(fn func()) {
	if fn == nil {
		return
	}
	if f.done {
		fn()
		return
	}
	f.cbs = append(f.cbs, fn)
}
