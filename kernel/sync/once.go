package sync

import "sync/atomic"

// Once gates an initialization step that must run exactly once for the
// kernel's lifetime no matter how many processors race to perform it. Unlike
// a scattered boolean flag, the check-and-set is atomic and shared by every
// caller, so two cores can never both observe "not done yet".
type Once struct {
	lock Spinlock
	done uint32
}

// Do invokes fn if and only if no previous call to Do on this Once has
// invoked it. Do does not return before fn has completed: a core that loses
// the race busy-waits until the winner is finished, so work ordered after Do
// can rely on the results of fn.
func (o *Once) Do(fn func()) {
	if atomic.LoadUint32(&o.done) == 1 {
		return
	}

	o.lock.Acquire()
	if o.done == 0 {
		fn()
		atomic.StoreUint32(&o.done, 1)
	}
	o.lock.Release()
}

// Done returns true if Do has already invoked its callback.
func (o *Once) Done() bool {
	return atomic.LoadUint32(&o.done) == 1
}
