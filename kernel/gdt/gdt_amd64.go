// Package gdt owns the global descriptor table and the per-processor task
// state segment descriptors. Segmentation is largely disabled in long mode
// but a GDT and a task register selector must still be loaded on every core.
package gdt

import (
	"unsafe"

	"hyra/kernel"
)

var errBadISTIndex = &kernel.Error{Module: "gdt", Message: "interrupt stack table index out of range"}

// Segment selectors. The interrupt gates and the assembly entry code hardcode
// these values, so the table layout must never change.
const (
	SelectorKernelCS = 0x08
	SelectorKernelDS = 0x10
	SelectorUserCS   = 0x18
	SelectorUserDS   = 0x20
	SelectorTSS      = 0x28
)

const (
	// segment entry indices; the TSS descriptor spans two slots.
	segNull = iota
	segKernelCS
	segKernelDS
	segUserCS
	segUserDS
	segTSSLow
	segTSSHigh
	segCount
)

// TaskState is the 104-byte hardware task state segment. The 64-bit stack
// pointers straddle 4-byte boundaries so they are kept as lo/hi pairs; Go
// cannot express the packed layout otherwise.
type TaskState struct {
	_      uint32
	rsp0Lo uint32
	rsp0Hi uint32
	rsp1Lo uint32
	rsp1Hi uint32
	rsp2Lo uint32
	rsp2Hi uint32
	_      [2]uint32

	// ist holds the seven interrupt stack table entries as lo/hi pairs.
	ist [14]uint32

	_      [2]uint32
	_      uint16
	ioBase uint16
}

// SetRSP0 records the stack pointer the processor switches to when entering
// ring 0 from user mode.
func (ts *TaskState) SetRSP0(stackTop uintptr) {
	ts.rsp0Lo = uint32(stackTop)
	ts.rsp0Hi = uint32(stackTop >> 32)
}

// RSP0 returns the ring 0 entry stack pointer currently recorded in ts.
func (ts *TaskState) RSP0() uintptr {
	return uintptr(ts.rsp0Hi)<<32 | uintptr(ts.rsp0Lo)
}

// SetIST records the stack pointer for interrupt stack table entry istIndex.
// Valid indices are 1 to 7.
func (ts *TaskState) SetIST(istIndex int, stackTop uintptr) *kernel.Error {
	if istIndex < 1 || istIndex > 7 {
		return errBadISTIndex
	}

	ts.ist[(istIndex-1)*2] = uint32(stackTop)
	ts.ist[(istIndex-1)*2+1] = uint32(stackTop >> 32)
	return nil
}

var (
	segments = [segCount]uint64{
		segKernelCS: segmentDescriptor(0x9A, 0xA0),
		segKernelDS: segmentDescriptor(0x92, 0xC0),
		segUserCS:   segmentDescriptor(0xFA, 0xA0),
		segUserDS:   segmentDescriptor(0xF2, 0xC0),
	}

	// descriptor is the 10-byte LGDT operand, laid out by hand.
	descriptor [10]byte
)

// segmentDescriptor encodes a flat 64-bit segment with the supplied access
// and granularity bytes.
func segmentDescriptor(access, gran uint8) uint64 {
	return 0xFFFF | // limit bits 0-15; base is zero for flat segments
		uint64(access)<<40 |
		uint64(gran|0x0F)<<48
}

// SetTaskState encodes the descriptor for ts into the TSS slots and marks the
// IO permission bitmap as absent so ring 3 port access always faults. It must
// run under the owning processor's descriptor lock so another core never
// observes a half-written descriptor pair.
func SetTaskState(ts *TaskState) {
	base := uintptr(unsafe.Pointer(ts))
	limit := uint64(unsafe.Sizeof(*ts) - 1)

	ts.ioBase = 0xFF

	segments[segTSSLow] = limit&0xFFFF |
		(uint64(base)&0xFFFF)<<16 |
		(uint64(base)>>16&0xFF)<<32 |
		0x89<<40 | // present, DPL0, available 64-bit TSS
		(uint64(base)>>24&0xFF)<<56
	segments[segTSSHigh] = uint64(base) >> 32
}

// Load builds the GDT descriptor and loads the table into the calling core.
func Load() {
	limit := uint16(unsafe.Sizeof(segments) - 1)
	base := uintptr(unsafe.Pointer(&segments[0]))

	descriptor[0] = byte(limit)
	descriptor[1] = byte(limit >> 8)
	for i := uintptr(0); i < 8; i++ {
		descriptor[2+i] = byte(base >> (8 * i))
	}

	loadGDT(&descriptor[0])
}

// LoadTaskRegister points the calling core's task register at the TSS
// descriptor installed by SetTaskState.
func LoadTaskRegister() {
	loadTR(SelectorTSS)
}

// loadGDT executes LGDT with the supplied descriptor.
func loadGDT(descPtr *byte)

// loadTR executes LTR with the supplied selector.
func loadTR(selector uint16)
