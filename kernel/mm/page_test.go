package mm

import (
	"hyra/kernel"
	"testing"
)

func TestFrameMethods(t *testing.T) {
	for frameIndex := uint64(0); frameIndex < 128; frameIndex++ {
		frame := Frame(frameIndex)

		if !frame.Valid() {
			t.Errorf("expected frame %d to be valid", frameIndex)
		}

		if exp, got := uintptr(frameIndex<<PageShift), frame.Address(); got != exp {
			t.Errorf("expected frame (%d, index: %d) call to Address() to return %x; got %x", frame, frameIndex, exp, got)
		}
	}

	invalidFrame := InvalidFrame
	if invalidFrame.Valid() {
		t.Error("expected InvalidFrame.Valid() to return false")
	}
}

func TestFrameFromAddress(t *testing.T) {
	specs := []struct {
		input    uintptr
		expFrame Frame
	}{
		{0, Frame(0)},
		{4095, Frame(0)},
		{4096, Frame(1)},
		{4123, Frame(1)},
	}

	for specIndex, spec := range specs {
		if got := FrameFromAddress(spec.input); got != spec.expFrame {
			t.Errorf("[spec %d] expected returned frame to be %v; got %v", specIndex, spec.expFrame, got)
		}
	}
}

func TestFrameAllocator(t *testing.T) {
	var allocCalled bool
	customAlloc := func() (Frame, *kernel.Error) {
		allocCalled = true
		return FrameFromAddress(0xbadf00), nil
	}

	defer SetFrameAllocator(nil)
	SetFrameAllocator(customAlloc)

	if _, err := AllocFrame(); err != nil {
		t.Fatalf(err.Error())
	}

	if !allocCalled {
		t.Fatal("expected custom allocator to be invoked after all to AllocFrame")
	}
}

func TestPageMethods(t *testing.T) {
	for pageIndex := uint64(0); pageIndex < 128; pageIndex++ {
		page := Page(pageIndex)

		if exp, got := uintptr(pageIndex<<PageShift), page.Address(); got != exp {
			t.Errorf("expected page (%d, index: %d) call to Address() to return %x; got %x", page, pageIndex, exp, got)
		}
	}
}

func TestPageFromAddress(t *testing.T) {
	specs := []struct {
		input   uintptr
		expPage Page
	}{
		{0, Page(0)},
		{4095, Page(0)},
		{4096, Page(1)},
		{4123, Page(1)},
	}

	for specIndex, spec := range specs {
		if got := PageFromAddress(spec.input); got != spec.expPage {
			t.Errorf("[spec %d] expected returned page to be %v; got %v", specIndex, spec.expPage, got)
		}
	}
}

func TestFrameFreer(t *testing.T) {
	var freedFrame Frame
	customFree := func(f Frame) *kernel.Error {
		freedFrame = f
		return nil
	}

	defer SetFrameFreer(nil)
	SetFrameFreer(customFree)

	if err := FreeFrame(Frame(42)); err != nil {
		t.Fatalf(err.Error())
	}

	if freedFrame != Frame(42) {
		t.Fatalf("expected custom freer to receive frame 42; got %v", freedFrame)
	}
}

func TestDirectMapTranslations(t *testing.T) {
	defer SetDirectMapOffset(0)
	SetDirectMapOffset(0xffff800000000000)

	physAddr := uintptr(0x1000)
	virtAddr := PhysToVirt(physAddr)

	if exp := uintptr(0xffff800000001000); virtAddr != exp {
		t.Fatalf("expected PhysToVirt to return 0x%x; got 0x%x", exp, virtAddr)
	}

	if got := VirtToPhys(virtAddr); got != physAddr {
		t.Fatalf("expected VirtToPhys to return 0x%x; got 0x%x", physAddr, got)
	}
}
