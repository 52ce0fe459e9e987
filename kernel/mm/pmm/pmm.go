// Package pmm implements the tracker for the physical memory segments handed
// over by the early boot code. It provides the frame allocator and frame
// freer that back all page-granular allocations in the kernel.
package pmm

import (
	"hyra/kernel"
	"hyra/kernel/kfmt"
	"hyra/kernel/mm"
	"hyra/kernel/sync"
	"unsafe"
)

var (
	errOutOfMemory    = &kernel.Error{Module: "pmm", Message: "out of memory"}
	errNoSegments     = &kernel.Error{Module: "pmm", Message: "no usable physical memory segments"}
	errDoubleInit     = &kernel.Error{Module: "pmm", Message: "segment tracker already initialized"}
	errFrameUntracked = &kernel.Error{Module: "pmm", Message: "frame does not belong to any tracked segment"}

	tracker segTracker
)

// Segment describes one contiguous region of usable physical memory. Start
// and End are physical addresses; End is exclusive. Regions occupied by the
// kernel image must not be reported as segments.
type Segment struct {
	Start uintptr
	End   uintptr
}

// startFrame returns the first whole frame contained in the segment.
func (s Segment) startFrame() mm.Frame {
	return mm.Frame((s.Start + uintptr(mm.PageSize-1)) >> mm.PageShift)
}

// endFrame returns the first frame past the end of the segment.
func (s Segment) endFrame() mm.Frame {
	return mm.Frame(s.End >> mm.PageShift)
}

// segTracker hands out frames from the registered segments using a bump
// pointer and recycles released frames via an intrusive free list threaded
// through the first word of each free frame.
type segTracker struct {
	// lock serializes allocations and releases; frames are handed out to
	// every processor from the same pool.
	lock sync.Spinlock

	segments []Segment

	// curSegment indexes the segment that nextFrame points into.
	curSegment int
	nextFrame  mm.Frame

	// freeListHead holds the physical address of the most recently
	// released frame or 0 if no released frame is available.
	freeListHead uintptr

	allocCount uint64
	active     bool
}

// SetSegments registers the usable physical memory segments. It must be
// called by the early boot code before Init.
func SetSegments(segments []Segment) {
	tracker.segments = segments
}

// Init sets up the physical memory segment tracker and registers its frame
// allocator and freer with the mm package. It must be invoked exactly once,
// on the bootstrap processor; a second call is a programming error.
func Init() *kernel.Error {
	if tracker.active {
		return errDoubleInit
	}

	var totalFrames uint64
	for _, seg := range tracker.segments {
		kfmt.Printf("[pmm] segment [0x%12x - 0x%12x]\n", seg.Start, seg.End)
		if end, start := seg.endFrame(), seg.startFrame(); end > start {
			totalFrames += uint64(end - start)
		}
	}

	if totalFrames == 0 {
		return errNoSegments
	}

	tracker.curSegment = 0
	tracker.nextFrame = tracker.segments[0].startFrame()
	tracker.active = true

	mm.SetFrameAllocator(allocFrame)
	mm.SetFrameFreer(freeFrame)

	kfmt.Printf("[pmm] tracking %d frames (%dKb)\n", totalFrames, totalFrames*uint64(mm.PageSize)/1024)
	return nil
}

func allocFrame() (mm.Frame, *kernel.Error) {
	tracker.lock.Acquire()
	defer tracker.lock.Release()

	// Prefer a recycled frame; the free list is threaded through the
	// frames themselves so popping it costs a single read.
	if tracker.freeListHead != 0 {
		frame := mm.FrameFromAddress(tracker.freeListHead)
		tracker.freeListHead = *(*uintptr)(unsafe.Pointer(mm.PhysToVirt(tracker.freeListHead)))
		tracker.allocCount++
		return frame, nil
	}

	for tracker.curSegment < len(tracker.segments) {
		seg := tracker.segments[tracker.curSegment]
		if tracker.nextFrame < seg.startFrame() {
			tracker.nextFrame = seg.startFrame()
		}

		if tracker.nextFrame < seg.endFrame() {
			frame := tracker.nextFrame
			tracker.nextFrame++
			tracker.allocCount++
			return frame, nil
		}

		tracker.curSegment++
		if tracker.curSegment < len(tracker.segments) {
			tracker.nextFrame = tracker.segments[tracker.curSegment].startFrame()
		}
	}

	return mm.InvalidFrame, errOutOfMemory
}

func freeFrame(frame mm.Frame) *kernel.Error {
	tracker.lock.Acquire()
	defer tracker.lock.Release()

	var tracked bool
	for _, seg := range tracker.segments {
		if frame >= seg.startFrame() && frame < seg.endFrame() {
			tracked = true
			break
		}
	}

	if !tracked {
		return errFrameUntracked
	}

	*(*uintptr)(unsafe.Pointer(mm.PhysToVirt(frame.Address()))) = tracker.freeListHead
	tracker.freeListHead = frame.Address()
	return nil
}
