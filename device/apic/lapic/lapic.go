// Package lapic drives the per-processor local APIC in xAPIC mode. Every
// processor runs Init against its own controller during bring-up, after the
// platform tables have recorded the register base in the per-CPU descriptor.
package lapic

import (
	"hyra/kernel"
	"hyra/kernel/cpu"
	"hyra/kernel/kfmt"
	"hyra/kernel/mm"
	"hyra/kernel/mmio"
	"hyra/kernel/percpu"
)

const (
	// Register window offsets.
	regID  = 0x020
	regEOI = 0x0b0
	regLDR = 0x0d0
	regSVR = 0x0f0

	// IA32_APIC_BASE model-specific register; bit 11 hardware-enables the
	// controller.
	apicBaseMSR      = 0x1b
	apicGlobalEnable = uint64(1) << 11

	// Bit 8 of the spurious vector register software-enables the
	// controller.
	svrAPICEnable = uint32(1) << 8

	// Logical destination programmed at startup.
	startupLogicalID = uint32(1) << 24

	// CPUID leaf 1 EDX bit 9 indicates an on-chip local APIC.
	featureLAPIC = 1 << 9
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	cpuidFn       = cpu.ID
	readMSRFn     = cpu.ReadMSR
	writeMSRFn    = cpu.WriteMSR
	mmioRead32Fn  = mmio.Read32
	mmioWrite32Fn = mmio.Write32
	currentCPUFn  = percpu.Current
	panicFn       = func(err *kernel.Error) { kfmt.Panic(err) }

	errNoLAPIC        = &kernel.Error{Module: "lapic", Message: "processor has no local APIC"}
	errBaseNotEntered = &kernel.Error{Module: "lapic", Message: "LAPIC base not recorded in the CPU descriptor"}
)

// Init enables the local APIC of the calling processor: a hardware enable
// through the IA32_APIC_BASE MSR followed by a software enable through the
// spurious vector register. Interrupt delivery on this machine depends on the
// local APIC, so a processor without one is not survivable.
func Init() {
	_, _, _, edx := cpuidFn(1)
	if edx&featureLAPIC == 0 {
		panicFn(errNoLAPIC)
		return
	}

	ci := currentCPUFn()
	if ci.LAPICBase == 0 {
		panicFn(errBaseNotEntered)
		return
	}

	writeMSRFn(apicBaseMSR, readMSRFn(apicBaseMSR)|apicGlobalEnable)
	setRegisterBits(ci, regSVR, svrAPICEnable)
	writeRegister(ci, regLDR, startupLogicalID)

	ci.ID = ID(ci)
	kfmt.Printf("lapic: enabled local APIC (id=%d)\n", ci.ID)
}

// ID returns the local APIC ID of the processor described by ci.
func ID(ci *percpu.Info) uint32 {
	return readRegister(ci, regID) >> 24 & 0xf
}

// EOI signals completion of the in-service interrupt to the local APIC of
// the calling processor.
func EOI() {
	writeRegister(currentCPUFn(), regEOI, 0)
}

func readRegister(ci *percpu.Info, reg uintptr) uint32 {
	return mmioRead32Fn(mm.PhysToVirt(ci.LAPICBase) + reg)
}

func writeRegister(ci *percpu.Info, reg uintptr, val uint32) {
	mmioWrite32Fn(mm.PhysToVirt(ci.LAPICBase)+reg, val)
}

func setRegisterBits(ci *percpu.Info, reg uintptr, bits uint32) {
	writeRegister(ci, reg, readRegister(ci, reg)|bits)
}
