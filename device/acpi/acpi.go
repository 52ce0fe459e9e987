// Package acpi exposes the platform interrupt topology described by the ACPI
// MADT: the local APIC register base, the location of the I/O APIC and the
// IRQ to global-system-interrupt overrides. Table discovery (RSDP scanning
// and mapping) happens in the firmware bring-up path which registers the
// mapped MADT via SetMADT before the first processor is initialized.
package acpi

import (
	"unsafe"

	"hyra/device/acpi/table"
	"hyra/device/apic/ioapic"
	"hyra/kernel"
	"hyra/kernel/kfmt"
	"hyra/kernel/mm"
)

var (
	// madt points to the mapped MADT; non-nil once ParseMADT has run.
	madt *table.MADT

	madtPhysAddr uintptr

	// the following function is mocked by tests and is automatically
	// inlined by the compiler.
	ioapicSetBaseFn = ioapic.SetBase

	errMissingMADT = &kernel.Error{Module: "acpi", Message: "no MADT registered"}
)

// SetMADT records the physical address of the MADT located by the firmware
// bring-up path. It must be invoked before the first call to ParseMADT.
func SetMADT(physAddr uintptr) {
	madtPhysAddr = physAddr
}

// ParseMADT walks the MADT records, publishes the I/O APIC register base and
// caches the table for LAPICBase and IRQToGSI lookups. The walk happens
// exactly once in the kernel lifetime; subsequent calls are no-ops.
func ParseMADT() *kernel.Error {
	if madt != nil {
		return nil
	}

	if madtPhysAddr == 0 {
		return errMissingMADT
	}
	madt = (*table.MADT)(unsafe.Pointer(mm.PhysToVirt(madtPhysAddr)))

	var ioapicFound bool
	forEachEntry(func(hdr *table.MADTEntry) bool {
		if hdr.Type != table.MADTEntryTypeIOAPIC || ioapicFound {
			return true
		}

		// TODO: support machines with multiple I/O APICs; for now only
		// the first one is programmed.
		entry := (*table.MADTEntryIOAPIC)(unsafe.Pointer(hdr))
		kfmt.Printf("acpi: detected I/O APIC (id=%d, gsi_base=%d)\n", entry.APICID, entry.SysInterruptBase)

		ioapicSetBaseFn(uintptr(entry.Address))
		ioapicFound = true
		return true
	})

	return nil
}

// LAPICBase returns the physical base address of the local APIC register
// window, or 0 if the MADT has not been parsed yet.
func LAPICBase() uintptr {
	if madt == nil {
		return 0
	}
	return uintptr(madt.LocalControllerAddress)
}

// IRQToGSI converts a legacy IRQ number to its corresponding global system
// interrupt number, honoring any interrupt source override records. IRQs
// without an override map to themselves.
func IRQToGSI(irq uint8) uint32 {
	gsi := uint32(irq)

	forEachEntry(func(hdr *table.MADTEntry) bool {
		if hdr.Type != table.MADTEntryTypeIntSrcOverride {
			return true
		}

		entry := (*table.MADTEntryInterruptSrcOverride)(unsafe.Pointer(hdr))
		if entry.IRQSrc != irq {
			return true
		}

		gsi = entry.GlobalInterrupt
		return false
	})

	return gsi
}

// forEachEntry invokes visitFn for each MADT record until the visitor
// returns false or the table is exhausted.
func forEachEntry(visitFn func(*table.MADTEntry) bool) {
	if madt == nil {
		return
	}

	var (
		cur = uintptr(unsafe.Pointer(madt)) + unsafe.Sizeof(*madt)
		end = uintptr(unsafe.Pointer(madt)) + uintptr(madt.Length)
	)

	for cur < end {
		hdr := (*table.MADTEntry)(unsafe.Pointer(cur))
		if !visitFn(hdr) {
			return
		}
		cur += uintptr(hdr.Length)
	}
}
