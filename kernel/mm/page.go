package mm

import (
	"hyra/kernel"
	"math"
)

// Frame describes a physical memory page index.
type Frame uintptr

const (
	// InvalidFrame is returned by page allocators when
	// they fail to reserve the requested frame.
	InvalidFrame = Frame(math.MaxUint64)
)

// Valid returns true if this is a valid frame.
func (f Frame) Valid() bool {
	return f != InvalidFrame
}

// Address returns a pointer to the physical memory address pointed to by this Frame.
func (f Frame) Address() uintptr {
	return uintptr(f << PageShift)
}

// FrameFromAddress returns a Frame that corresponds to
// the given physical address. This function can handle
// both page-aligned and not aligned addresses. in the
// latter case, the input address will be rounded down
// to the frame that contains it.
func FrameFromAddress(physAddr uintptr) Frame {
	return Frame((physAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}

var (
	// frameAllocator points to a frame allocator function registered using
	// SetFrameAllocator.
	frameAllocator FrameAllocatorFn

	// frameFreer points to a frame release function registered using
	// SetFrameFreer.
	frameFreer FrameFreerFn

	// directMapOffset is the offset applied to a physical address to
	// obtain the virtual address inside the kernel's direct mapping of
	// physical memory.
	directMapOffset uintptr
)

// FrameAllocatorFn is a function that can allocate physical frames.
type FrameAllocatorFn func() (Frame, *kernel.Error)

// FrameFreerFn is a function that can release physical frames obtained via a
// FrameAllocatorFn.
type FrameFreerFn func(Frame) *kernel.Error

// SetFrameAllocator registers a frame allocator function that will be used by
// the kernel when new physical frames need to be allocated.
func SetFrameAllocator(allocFn FrameAllocatorFn) { frameAllocator = allocFn }

// SetFrameFreer registers a frame release function that will be used by the
// kernel when previously allocated physical frames need to be returned.
func SetFrameFreer(freeFn FrameFreerFn) { frameFreer = freeFn }

// AllocFrame allocates a new physical frame using the currently active
// physical frame allocator.
func AllocFrame() (Frame, *kernel.Error) { return frameAllocator() }

// FreeFrame returns a physical frame to the currently active physical frame
// allocator.
func FreeFrame(f Frame) *kernel.Error { return frameFreer(f) }

// SetDirectMapOffset records the offset of the kernel's direct physical
// memory mapping. It is registered once by the virtual memory subsystem
// during early bring-up.
func SetDirectMapOffset(offset uintptr) { directMapOffset = offset }

// PhysToVirt translates a physical address to a virtual address inside the
// kernel's direct physical memory mapping.
func PhysToVirt(physAddr uintptr) uintptr { return physAddr + directMapOffset }

// VirtToPhys translates a virtual address inside the kernel's direct physical
// memory mapping back to a physical address.
func VirtToPhys(virtAddr uintptr) uintptr { return virtAddr - directMapOffset }

// Page describes a virtual memory page index.
type Page uintptr

// Address returns a pointer to the virtual memory address pointed to by this Page.
func (f Page) Address() uintptr {
	return uintptr(f << PageShift)
}

// PageFromAddress returns a Page that corresponds to the given virtual
// address. This function can handle both page-aligned and not aligned virtual
// addresses. in the latter case, the input address will be rounded down to the
// page that contains it.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(uintptr(PageSize - 1))) >> PageShift)
}
