// Package vmm performs the virtual memory portion of the machine-dependent
// bring-up: it records the offset of the kernel direct map and claims the
// paging-related trap vectors. Faults are not recoverable; the kernel runs
// entirely out of the boot-time mappings.
package vmm

import (
	"hyra/kernel"
	"hyra/kernel/cpu"
	"hyra/kernel/kfmt"
	"hyra/kernel/mm"
	"hyra/kernel/trap"
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	readCR2Fn = cpu.ReadCR2
	panicFn   = func(err *kernel.Error) { kfmt.Panic(err) }

	errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "page/gpf fault"}
)

// Init records the direct map offset used for physical-to-virtual address
// translations and installs handlers for paging-related faults. The bring-up
// sequencer invokes it exactly once, after the physical allocator is online.
func Init(directMapOffset uintptr) *kernel.Error {
	mm.SetDirectMapOffset(directMapOffset)

	trap.Handle(trap.PageFaultException, pageFaultHandler)
	trap.Handle(trap.GPFException, generalProtectionFaultHandler)

	return nil
}

func pageFaultHandler(regs *trap.Registers) {
	kfmt.Printf("\nPage fault while accessing address: 0x%16x\nReason: ", readCR2Fn())
	switch regs.Code {
	case 0:
		kfmt.Printf("read from non-present page")
	case 1:
		kfmt.Printf("page protection violation (read)")
	case 2:
		kfmt.Printf("write to non-present page")
	case 3:
		kfmt.Printf("page protection violation (write)")
	case 4:
		kfmt.Printf("page-fault in user-mode")
	case 8:
		kfmt.Printf("page table has reserved bit set")
	case 16:
		kfmt.Printf("instruction fetch")
	default:
		kfmt.Printf("unknown")
	}

	kfmt.Printf("\n\nRegisters:\n")
	regs.DumpTo(kfmt.GetOutputSink())

	panicFn(errUnrecoverableFault)
}

func generalProtectionFaultHandler(regs *trap.Registers) {
	kfmt.Printf("\nGeneral protection fault while accessing address: 0x%x\n", readCR2Fn())
	kfmt.Printf("Registers:\n")
	regs.DumpTo(kfmt.GetOutputSink())

	panicFn(errUnrecoverableFault)
}
