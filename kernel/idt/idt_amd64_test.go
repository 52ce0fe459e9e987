package idt

import "testing"

func TestSetGateEncoding(t *testing.T) {
	defer func() { gates = [gateCount]gate{} }()

	entry := uintptr(0xffffffff81234567)
	SetGate(14, IntGate, entry)

	g := gates[14]
	if g.offsetLow != 0x4567 || g.offsetMid != 0x8123 || g.offsetHigh != 0xffffffff {
		t.Fatalf("unexpected entry point encoding: low %x mid %x high %x", g.offsetLow, g.offsetMid, g.offsetHigh)
	}

	if g.selector != kernelCSSelector {
		t.Fatalf("expected kernel CS selector %x; got %x", kernelCSSelector, g.selector)
	}

	if g.flags != uint8(IntGate) {
		t.Fatalf("expected gate flags %x; got %x", uint8(IntGate), g.flags)
	}

	if g.ist != 0 || g.reserved != 0 {
		t.Fatal("expected IST index and reserved bits to be zero")
	}
}

func TestSetGateIsIdempotent(t *testing.T) {
	defer func() { gates = [gateCount]gate{} }()

	install := func() {
		SetGate(0, TrapGate, 0x1000)
		SetGate(13, TrapGate, 0x2000)
		SetGate(0x80, IntGateUser, 0x3000)
	}

	install()
	snapshot := gates

	install()
	if gates != snapshot {
		t.Fatal("expected repeated installation with identical inputs to leave the table unchanged")
	}
}

func TestUnsetGatesAreNotPresent(t *testing.T) {
	defer func() { gates = [gateCount]gate{} }()

	SetGate(3, TrapGate, 0x1000)

	for vec := 0; vec < gateCount; vec++ {
		if vec == 3 {
			continue
		}
		// Bit 7 of the flags byte is the present bit.
		if gates[vec].flags&0x80 != 0 {
			t.Fatalf("vector %d marked present without an installed gate", vec)
		}
	}
}
