// Package idt manages the 256-entry interrupt descriptor table shared by all
// processors. The table contents are global; each core loads the same table
// via Load during its bring-up.
package idt

import "unsafe"

// GateKind selects the type and privilege encoding for an installed gate.
type GateKind uint8

const (
	// TrapGate is a DPL0 trap gate; interrupts stay enabled on entry.
	TrapGate = GateKind(0x8F)

	// IntGate is a DPL0 interrupt gate; interrupts are masked on entry.
	IntGate = GateKind(0x8E)

	// IntGateUser is an interrupt gate that may be invoked from ring 3
	// (used for the syscall vector).
	IntGateUser = GateKind(0xEE)
)

const (
	gateCount = 256

	// kernelCSSelector is the kernel code segment selector installed by
	// the gdt package.
	kernelCSSelector = 0x08
)

// gate is one 16-byte long-mode IDT entry.
type gate struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	flags      uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

var (
	gates [gateCount]gate

	// descriptor is the 10-byte LIDT operand: a 16-bit limit followed by
	// the 64-bit table base. It is laid out by hand since Go structs
	// cannot express the packed format.
	descriptor [10]byte
)

// SetGate installs the dispatch entry for one interrupt vector. Installing
// the same (vector, kind, entry) tuple again is idempotent: the encoded gate
// is a pure function of its inputs.
func SetGate(vector uint8, kind GateKind, entry uintptr) {
	gates[vector] = gate{
		offsetLow:  uint16(entry),
		selector:   kernelCSSelector,
		flags:      uint8(kind),
		offsetMid:  uint16(entry >> 16),
		offsetHigh: uint32(entry >> 32),
	}
}

// Load makes the table active on the calling core. The table is identical
// across cores so repeated loads are harmless.
func Load() {
	limit := uint16(unsafe.Sizeof(gates) - 1)
	base := uintptr(unsafe.Pointer(&gates[0]))

	descriptor[0] = byte(limit)
	descriptor[1] = byte(limit >> 8)
	for i := uintptr(0); i < 8; i++ {
		descriptor[2+i] = byte(base >> (8 * i))
	}

	loadIDT(&descriptor[0])
}

// loadIDT executes LIDT with the supplied descriptor.
func loadIDT(descPtr *byte)
