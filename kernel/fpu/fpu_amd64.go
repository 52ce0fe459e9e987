// Package fpu enables the SSE execution environment on each processor and
// manages the per-process FPU register save areas used during context
// switches.
package fpu

import (
	"hyra/kernel"
	"hyra/kernel/cpu"
	"hyra/kernel/kfmt"
	"hyra/kernel/mm"
)

const (
	// Default x87 control word: all exceptions masked, 64-bit precision.
	defaultFCW = 0x33f

	// Default MXCSR: all SSE exceptions masked.
	defaultMXCSR = 0x1f80

	// CPUID leaf 1 EDX feature bits.
	featureSSE  = 1 << 25
	featureSSE2 = 1 << 26
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	cpuidFn           = cpu.ID
	readCR0Fn         = cpu.ReadCR0
	writeCR0Fn        = cpu.WriteCR0
	readCR4Fn         = cpu.ReadCR4
	writeCR4Fn        = cpu.WriteCR4
	setFloatControlFn = cpu.SetFloatControl
	fxSaveFn          = cpu.FXSave
	fxRestoreFn       = cpu.FXRestore
	allocFrameFn      = mm.AllocFrame
	freeFrameFn       = mm.FreeFrame
	physToVirtFn      = mm.PhysToVirt
	panicFn           = func(err *kernel.Error) { kfmt.Panic(err) }

	errMissingSSE = &kernel.Error{Module: "fpu", Message: "processor does not implement SSE and SSE2"}
	errNoState    = &kernel.Error{Module: "fpu", Message: "attempt to release an unallocated FPU state"}
)

// EnableFeatures turns on the SSE execution environment for the calling
// processor. Both SSE and SSE2 must be implemented; the kernel compiles with
// SSE2 code generation enabled so running without them is not survivable and
// triggers a panic. Monitoring of FPU instructions via CR0.MP is enabled so
// that lazily switched contexts fault correctly.
func EnableFeatures() {
	_, _, _, edx := cpuidFn(1)
	if edx&featureSSE == 0 || edx&featureSSE2 == 0 {
		panicFn(errMissingSSE)
		return
	}

	// Clear CR0.EM (bit 2), set CR0.MP (bit 1).
	cr0 := readCR0Fn()
	cr0 &^= 1 << 2
	cr0 |= 1 << 1
	writeCR0Fn(cr0)

	// Set CR4.OSFXSR and CR4.OSXMMEXCPT (bits 9 and 10).
	writeCR4Fn(readCR4Fn() | 3<<9)
}

// State holds the FPU register file of a single process. The save area
// occupies one physical frame so it always satisfies the 16-byte alignment
// required by the fxsave and fxrstor instructions.
type State struct {
	frame mm.Frame

	// area is the virtual address of the save area inside the kernel
	// direct map; zero when no frame is allocated.
	area uintptr
}

// NewState allocates the backing frame for a process FPU state, programs the
// default control state (FCW, MXCSR) into the processor and captures it into
// the save area. It returns an error without allocating anything if no
// physical frame is available.
func NewState() (*State, *kernel.Error) {
	frame, err := allocFrameFn()
	if err != nil {
		return nil, err
	}

	s := &State{
		frame: frame,
		area:  physToVirtFn(frame.Address()),
	}

	setFloatControlFn(defaultFCW, defaultMXCSR)
	fxSaveFn(s.area)

	return s, nil
}

// Release returns the save area frame to the physical allocator. Releasing a
// state that was never allocated is a misuse of the API and is reported as an
// error.
func (s *State) Release() *kernel.Error {
	if s == nil || s.area == 0 {
		return errNoState
	}

	err := freeFrameFn(s.frame)
	s.frame = mm.InvalidFrame
	s.area = 0
	return err
}

// SwitchContext captures the current FPU register file into outgoing and
// loads the register file of incoming. A nil outgoing skips the save step;
// this is used when a core switches away from a context that never owned the
// FPU. The caller must invoke SwitchContext with interrupts disabled.
func SwitchContext(outgoing, incoming *State) {
	if outgoing != nil {
		fxSaveFn(outgoing.area)
	}
	fxRestoreFn(incoming.area)
}
