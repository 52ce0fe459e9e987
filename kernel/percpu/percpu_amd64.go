// Package percpu defines the per-processor descriptor and the core-local
// storage accessors built on top of the GS segment base. Each processor
// publishes its own descriptor before any other machine-dependent
// initialization step and the descriptor stays resident for the lifetime of
// the kernel; descriptors are never freed.
package percpu

import (
	"unsafe"

	"hyra/kernel/cpu"
	"hyra/kernel/gdt"
	"hyra/kernel/sync"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	setGSBaseFn = cpu.SetGSBase
	gsBaseFn    = cpu.GSBase
)

// Info describes a single logical processor. One Info value is allocated per
// core during processor bring-up and published via SetCurrent so that
// machine-dependent code can always reach the descriptor of the core it is
// executing on.
type Info struct {
	// ID is the local APIC ID of the processor, recorded when its local
	// controller is initialized.
	ID uint32

	// LAPICBase holds the physical base address of the processor's local
	// APIC register window, recorded during platform discovery.
	LAPICBase uintptr

	// TaskState is the processor's resident task state segment. The GDT
	// of the owning core points at it, so it must not move.
	TaskState gdt.TaskState

	lock sync.Spinlock
}

// Lock acquires the descriptor lock. It serializes mutations of the
// processor's descriptor tables during bring-up.
func (ci *Info) Lock() { ci.lock.Acquire() }

// Unlock releases the descriptor lock.
func (ci *Info) Unlock() { ci.lock.Release() }

// SetCurrent publishes ci as the calling processor's descriptor. It must be
// invoked once per core before any code that relies on Current.
func SetCurrent(ci *Info) {
	setGSBaseFn(uintptr(unsafe.Pointer(ci)))
}

// Current returns the descriptor of the processor executing the caller. It
// must not be invoked before SetCurrent has run on the calling core.
func Current() *Info {
	return (*Info)(unsafe.Pointer(gsBaseFn()))
}
