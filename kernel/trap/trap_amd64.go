// Package trap provides the low-level exception entry points together with a
// registration surface that lets other subsystems claim individual vectors.
// Unclaimed traps print a register dump and halt the system.
package trap

import (
	"io"
	"unsafe"

	"hyra/kernel"
	"hyra/kernel/cpu"
	"hyra/kernel/kfmt"
)

// Vector describes an x86 exception/interrupt slot.
type Vector uint8

const (
	// DivideError occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideError = Vector(0)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems.
	NMI = Vector(2)

	// Breakpoint occurs when the CPU executes an INT3 instruction.
	Breakpoint = Vector(3)

	// Overflow occurs when the CPU executes an INTO instruction while the
	// overflow flag is set.
	Overflow = Vector(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked
	// with an index out of range.
	BoundRangeExceeded = Vector(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = Vector(6)

	// DoubleFault occurs when an unhandled exception occurs or when an
	// exception occurs within a running exception handler.
	DoubleFault = Vector(8)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = Vector(10)

	// SegmentNotPresent occurs when the CPU attempts to invoke a present
	// gate with an invalid stack segment selector.
	SegmentNotPresent = Vector(11)

	// StackSegmentFault occurs when attempting to push/pop from a
	// non-canonical stack address or when a stack base/limit check fails.
	StackSegmentFault = Vector(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = Vector(13)

	// PageFaultException occurs when a page table entry is not present or
	// when a privilege and/or RW protection check fails.
	PageFaultException = Vector(14)

	// SyscallVector is the software interrupt vector reserved for system
	// call entry from ring 3.
	SyscallVector = Vector(0x80)
)

// Name returns a human readable description for the trap vector.
func (v Vector) Name() string {
	switch v {
	case DivideError:
		return "arithmetic error"
	case NMI:
		return "non-maskable interrupt"
	case Breakpoint:
		return "breakpoint"
	case Overflow:
		return "overflow"
	case BoundRangeExceeded:
		return "bound range exceeded"
	case InvalidOpcode:
		return "invalid opcode"
	case DoubleFault:
		return "double fault"
	case InvalidTSS:
		return "invalid TSS"
	case SegmentNotPresent:
		return "segment not present"
	case StackSegmentFault:
		return "stack-segment fault"
	case GPFException:
		return "general protection"
	case PageFaultException:
		return "page fault"
	case SyscallVector:
		return "syscall"
	}
	return "unknown trap"
}

// Registers contains a snapshot of all register values captured by the trap
// entry code. Its layout must exactly match the push sequence in
// entry_amd64.s.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// Vector holds the trap vector pushed by the entry stub.
	Vector uint64

	// Code holds the exception error code, or 0 for exceptions that do
	// not push one.
	Code uint64

	// The return frame used by IRETQ.
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", r.RFlags)
}

// Handler processes one trap. If the handler returns, any modifications to
// the supplied Registers will be propagated back to the location where the
// trap occurred.
type Handler func(*Registers)

var (
	handlers [256]Handler

	readCR2Fn = cpu.ReadCR2
	panicFn   = func(err *kernel.Error) { kfmt.Panic(err) }

	errUnhandledTrap = &kernel.Error{Module: "trap", Message: "unhandled trap"}
	errCaughtNMI     = &kernel.Error{Module: "trap", Message: "caught NMI; bailing out"}
)

// Handle registers a handler for the given trap vector, replacing any
// previous registration.
func Handle(v Vector, handler Handler) {
	handlers[v] = handler
}

// EntryPoint returns the address of a trap entry stub so it can be installed
// into an interrupt gate. The double indirection resolves the code pointer
// inside the funcval (the funcPC idiom from the Go runtime).
func EntryPoint(stub func()) uintptr {
	return **(**uintptr)(unsafe.Pointer(&stub))
}

// dispatchTrap is invoked by the entry stubs with a pointer to the captured
// register state. Traps without a registered handler are fatal.
func dispatchTrap(regs *Registers) {
	if h := handlers[regs.Vector&0xFF]; h != nil {
		h(regs)
		return
	}

	v := Vector(regs.Vector)
	kfmt.Printf("\n** Fatal %s **\n", v.Name())

	switch v {
	case PageFaultException:
		ec := regs.Code
		kfmt.Printf("fault address: 0x%16x bits (pwui): %s%s%s%s\n",
			readCR2Fn(),
			faultBit(ec, 0, "p"), faultBit(ec, 1, "w"),
			faultBit(ec, 2, "u"), faultBit(ec, 4, "i"),
		)
	case StackSegmentFault:
		kfmt.Printf("ss: 0x%x\n", regs.Code)
	case NMI:
		kfmt.Printf("possible hardware failure?\n")
		panicFn(errCaughtNMI)
		return
	}

	regs.DumpTo(kfmt.GetOutputSink())
	panicFn(errUnhandledTrap)
}

func faultBit(errCode uint64, bit uint, set string) string {
	if errCode&(1<<bit) != 0 {
		return set
	}
	return "-"
}
