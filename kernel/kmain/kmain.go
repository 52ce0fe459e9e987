package kmain

import (
	"hyra/device/acpi"
	"hyra/kernel"
	"hyra/kernel/kfmt"
	"hyra/kernel/machdep"
	"hyra/kernel/mm/pmm"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. It is invoked on the bootstrap processor after the
// boot loader has established the direct physical memory mapping and located
// the ACPI MADT; the physical addresses describing that environment are
// passed in by the rt0 assembly.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the
// CPU.
//
//go:noinline
func Kmain(directMapOffset, physMemStart, physMemEnd, madtPhysAddr uintptr) {
	machdep.SetDirectMapOffset(directMapOffset)
	pmm.SetSegments([]pmm.Segment{{Start: physMemStart, End: physMemEnd}})
	acpi.SetMADT(madtPhysAddr)

	machdep.PreInit()
	machdep.ProcessorInit()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating it as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// KmainAP is the entry point for application processors. It must not run
// before the bootstrap processor has completed the one-time setup inside
// Kmain.
//
//go:noinline
func KmainAP() {
	machdep.PreInit()
	machdep.ProcessorInit()

	kfmt.Panic(errKmainReturned)
}
