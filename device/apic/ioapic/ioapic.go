// Package ioapic drives the I/O APIC interrupt redirection table. Bring-up
// masks every pin; device drivers selectively unmask the pins they own once
// their handlers are registered.
package ioapic

import (
	"hyra/kernel"
	"hyra/kernel/kfmt"
	"hyra/kernel/mm"
	"hyra/kernel/mmio"
)

const (
	// MMIO offsets of the two-register access window.
	regSelect = 0x00
	regWindow = 0x10

	// Indirect register indexes.
	regVersion   = 0x01
	regRedirBase = 0x10

	// Bit 16 of the low redirection entry half masks the pin.
	redirEntryMasked = uint64(1) << 16
)

var (
	// base holds the virtual address of the register window; zero until
	// the ACPI MADT walk discovers the controller.
	base uintptr

	// irqResolverFn maps legacy IRQ numbers to global system interrupts.
	// The identity mapping applies until the platform tables provide the
	// interrupt source overrides.
	irqResolverFn = func(irq uint8) uint32 { return uint32(irq) }

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	mmioRead32Fn  = mmio.Read32
	mmioWrite32Fn = mmio.Write32

	errBaseNotSet = &kernel.Error{Module: "ioapic", Message: "MMIO base not set"}
)

// SetBase records the physical address of the controller's register window.
// Only the first registration wins; additional I/O APICs are ignored.
func SetBase(physAddr uintptr) {
	if base == 0 {
		base = mm.PhysToVirt(physAddr)
	}
}

// SetIRQResolver installs the IRQ to global-system-interrupt translation
// used by MaskIRQ and UnmaskIRQ.
func SetIRQResolver(resolveFn func(irq uint8) uint32) {
	irqResolverFn = resolveFn
}

// Init masks every pin of the controller so that no interrupt reaches a
// processor before a driver claims it. It must run once, after SetBase.
func Init() *kernel.Error {
	if base == 0 {
		return errBaseNotSet
	}

	pinCount := uint8((readRegister(regVersion)>>16)&0xff) + 1
	kfmt.Printf("ioapic: masking %d GSIs\n", pinCount)

	for pin := uint8(0); pin < pinCount; pin++ {
		MaskGSI(pin)
	}

	return nil
}

// MaskGSI masks the pin for the given global system interrupt.
func MaskGSI(gsi uint8) {
	writeRedirEntry(gsi, readRedirEntry(gsi)|redirEntryMasked)
}

// UnmaskGSI unmasks the pin for the given global system interrupt.
func UnmaskGSI(gsi uint8) {
	writeRedirEntry(gsi, readRedirEntry(gsi)&^redirEntryMasked)
}

// MaskIRQ masks the pin that the given legacy IRQ routes to.
func MaskIRQ(irq uint8) {
	MaskGSI(uint8(irqResolverFn(irq)))
}

// UnmaskIRQ unmasks the pin that the given legacy IRQ routes to.
func UnmaskIRQ(irq uint8) {
	UnmaskGSI(uint8(irqResolverFn(irq)))
}

// readRegister returns the contents of one indirect controller register.
func readRegister(reg uint32) uint32 {
	mmioWrite32Fn(base+regSelect, reg)
	return mmioRead32Fn(base + regWindow)
}

// writeRegister replaces the contents of one indirect controller register.
func writeRegister(reg, val uint32) {
	mmioWrite32Fn(base+regSelect, reg)
	mmioWrite32Fn(base+regWindow, val)
}

// readRedirEntry assembles a 64-bit redirection entry from its two register
// halves.
func readRedirEntry(index uint8) uint64 {
	lo := readRegister(regRedirBase + uint32(index)*2)
	hi := readRegister(regRedirBase + uint32(index)*2 + 1)
	return uint64(hi)<<32 | uint64(lo)
}

// writeRedirEntry splits a 64-bit redirection entry across its two register
// halves.
func writeRedirEntry(index uint8, val uint64) {
	writeRegister(regRedirBase+uint32(index)*2, uint32(val))
	writeRegister(regRedirBase+uint32(index)*2+1, uint32(val>>32))
}
