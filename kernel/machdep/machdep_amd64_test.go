package machdep

import (
	"sync"
	"sync/atomic"
	"testing"
	"unsafe"

	"hyra/device/acpi"
	"hyra/device/apic/ioapic"
	"hyra/device/apic/lapic"
	"hyra/device/uart"
	"hyra/kernel"
	"hyra/kernel/cpu"
	"hyra/kernel/fpu"
	"hyra/kernel/gdt"
	"hyra/kernel/idt"
	"hyra/kernel/mm"
	"hyra/kernel/mm/pmm"
	"hyra/kernel/mm/vmm"
	"hyra/kernel/percpu"
	hyrasync "hyra/kernel/sync"
)

// newFakeFrameAllocator hands out frames backed by a page-aligned heap
// region so that descriptor allocations touch real memory. The direct map
// offset must be zero while the allocator is in use.
func newFakeFrameAllocator(t *testing.T, frameCount int) func() (mm.Frame, *kernel.Error) {
	t.Helper()

	buf := make([]byte, (frameCount+1)*int(mm.PageSize))
	base := (uintptr(unsafe.Pointer(&buf[0])) + mm.PageSize - 1) &^ (mm.PageSize - 1)

	var next int32
	return func() (mm.Frame, *kernel.Error) {
		index := atomic.AddInt32(&next, 1) - 1
		if int(index) >= frameCount {
			return mm.InvalidFrame, &kernel.Error{Module: "test", Message: "out of frames"}
		}
		return mm.FrameFromAddress(base + uintptr(index)*mm.PageSize), nil
	}
}

func restoreHooks() {
	firstBoot = hyrasync.Once{}
	platformDiscovery = hyrasync.Once{}
	directMapOffset = 0
	TrySpectreMitigate = nil

	uartProbeFn = uart.Probe
	pmmInitFn = pmm.Init
	vmmInitFn = vmm.Init
	acpiParseMADTFn = acpi.ParseMADT
	ioapicInitFn = ioapic.Init
	lapicInitFn = lapic.Init
	lapicBaseFn = acpi.LAPICBase
	enableFPUFn = fpu.EnableFeatures
	setCurrentCPUFn = percpu.SetCurrent
	allocFrameFn = mm.AllocFrame
	idtLoadFn = idt.Load
	gdtLoadFn = gdt.Load
	setTaskStateFn = gdt.SetTaskState
	loadTaskRegFn = gdt.LoadTaskRegister
	enableIntsFn = cpu.EnableInterrupts
	disableIntsFn = cpu.DisableInterrupts
	haltFn = cpu.Halt
	panicFn = func(*kernel.Error) {}
}

// mockProcessorInit replaces every hook that ProcessorInit reaches for with
// benign fakes and returns counters shared by all cores.
type initCounters struct {
	acpiParses   int32
	ioapicInits  int32
	lapicInits   int32
	intsEnabled  int32
	fpusEnabled  int32
	tssInstalled int32
}

func mockProcessorInit(t *testing.T, frameCount int) *initCounters {
	t.Helper()
	var counters initCounters

	mm.SetDirectMapOffset(0)
	allocFrameFn = newFakeFrameAllocator(t, frameCount)
	setCurrentCPUFn = func(*percpu.Info) {}
	enableFPUFn = func() { atomic.AddInt32(&counters.fpusEnabled, 1) }
	setTaskStateFn = func(*gdt.TaskState) { atomic.AddInt32(&counters.tssInstalled, 1) }
	loadTaskRegFn = func() {}
	acpiParseMADTFn = func() *kernel.Error {
		atomic.AddInt32(&counters.acpiParses, 1)
		return nil
	}
	ioapicInitFn = func() *kernel.Error {
		atomic.AddInt32(&counters.ioapicInits, 1)
		return nil
	}
	lapicBaseFn = func() uintptr { return 0xfee00000 }
	lapicInitFn = func() { atomic.AddInt32(&counters.lapicInits, 1) }
	enableIntsFn = func() { atomic.AddInt32(&counters.intsEnabled, 1) }
	panicFn = func(err *kernel.Error) { t.Errorf("unexpected panic: %v", err) }

	return &counters
}

func TestPreInit(t *testing.T) {
	defer restoreHooks()

	var (
		uartProbes int
		pmmInits   int
		vmmInits   int
		idtLoads   int
		gdtLoads   int
	)

	uartProbeFn = func(*uart.Device) *kernel.Error {
		uartProbes++
		return nil
	}
	pmmInitFn = func() *kernel.Error {
		pmmInits++
		return nil
	}
	vmmInitFn = func(offset uintptr) *kernel.Error {
		vmmInits++
		if offset != 0xffff888000000000 {
			t.Errorf("expected the recorded direct map offset to be forwarded; got 0x%x", offset)
		}
		return nil
	}
	idtLoadFn = func() { idtLoads++ }
	gdtLoadFn = func() { gdtLoads++ }
	panicFn = func(err *kernel.Error) { t.Errorf("unexpected panic: %v", err) }

	SetDirectMapOffset(0xffff888000000000)

	PreInit()
	PreInit()

	if uartProbes != 1 || pmmInits != 1 || vmmInits != 1 {
		t.Fatalf("expected the first-boot steps to run exactly once; uart=%d pmm=%d vmm=%d",
			uartProbes, pmmInits, vmmInits)
	}
	if idtLoads != 2 || gdtLoads != 2 {
		t.Fatalf("expected the descriptor tables to be loaded on every call; idt=%d gdt=%d", idtLoads, gdtLoads)
	}
}

func TestPreInitWithFailingAllocatorSetup(t *testing.T) {
	defer restoreHooks()

	errNoMem := &kernel.Error{Module: "test", Message: "no usable memory"}

	var panickedWith *kernel.Error
	uartProbeFn = func(*uart.Device) *kernel.Error { return nil }
	pmmInitFn = func() *kernel.Error { return errNoMem }
	vmmInitFn = func(uintptr) *kernel.Error {
		t.Error("expected the VM setup to be skipped after a pmm failure")
		return nil
	}
	idtLoadFn = func() {}
	gdtLoadFn = func() {}
	panicFn = func(err *kernel.Error) { panickedWith = err }

	PreInit()

	if panickedWith != errNoMem {
		t.Fatalf("expected a panic with the allocator error; got %v", panickedWith)
	}
}

func TestProcessorInitSingleCore(t *testing.T) {
	defer restoreHooks()

	counters := mockProcessorInit(t, 4)

	var published *percpu.Info
	setCurrentCPUFn = func(ci *percpu.Info) { published = ci }

	ProcessorInit()

	if published == nil {
		t.Fatal("expected the CPU descriptor to be published")
	}
	if published.LAPICBase != 0xfee00000 {
		t.Fatalf("expected the LAPIC base to be recorded in the descriptor; got 0x%x", published.LAPICBase)
	}
	if published.TaskState.RSP0() == 0 {
		t.Fatal("expected an interrupt stack to be installed in the TSS")
	}
	if counters.acpiParses != 1 || counters.ioapicInits != 1 {
		t.Fatalf("expected one platform discovery pass; acpi=%d ioapic=%d", counters.acpiParses, counters.ioapicInits)
	}
	if counters.lapicInits != 1 || counters.intsEnabled != 1 {
		t.Fatalf("expected the core to reach the interrupts-enabled state; lapic=%d sti=%d",
			counters.lapicInits, counters.intsEnabled)
	}
}

func TestProcessorInitConcurrent(t *testing.T) {
	defer restoreHooks()

	const numCores = 16
	counters := mockProcessorInit(t, 2*numCores+1)

	var wg sync.WaitGroup
	wg.Add(numCores)
	for i := 0; i < numCores; i++ {
		go func() {
			defer wg.Done()
			ProcessorInit()
		}()
	}
	wg.Wait()

	if counters.acpiParses != 1 || counters.ioapicInits != 1 {
		t.Fatalf("expected platform discovery to run exactly once; acpi=%d ioapic=%d",
			counters.acpiParses, counters.ioapicInits)
	}
	if counters.lapicInits != numCores || counters.intsEnabled != numCores {
		t.Fatalf("expected every core to reach the interrupts-enabled state; lapic=%d sti=%d",
			counters.lapicInits, counters.intsEnabled)
	}
}

func TestProcessorInitWithMissingSSE(t *testing.T) {
	defer restoreHooks()

	counters := mockProcessorInit(t, 4)

	errMissingSSE := &kernel.Error{Module: "test", Message: "no SSE"}
	enableFPUFn = func() { panicFn(errMissingSSE) }
	panicFn = func(err *kernel.Error) { panic(err) }

	defer func() {
		if got := recover(); got != errMissingSSE {
			t.Fatalf("expected the missing feature panic to propagate; got %v", got)
		}
		if counters.tssInstalled != 0 {
			t.Fatal("expected the panic to hit before the TSS install")
		}
	}()

	ProcessorInit()
}

func TestProcessorInitSpectreHook(t *testing.T) {
	defer restoreHooks()

	mockProcessorInit(t, 4)

	var mitigations int
	TrySpectreMitigate = func() { mitigations++ }

	ProcessorInit()

	if mitigations != 1 {
		t.Fatalf("expected the mitigation hook to run once; ran %d times", mitigations)
	}
}

func TestPCBLifecycle(t *testing.T) {
	defer restoreHooks()

	mm.SetDirectMapOffset(0)
	mm.SetFrameAllocator(newFakeFrameAllocator(t, 4))
	var freed int
	mm.SetFrameFreer(func(mm.Frame) *kernel.Error {
		freed++
		return nil
	})

	var pcb PCB
	if err := InitPCB(&pcb); err != nil {
		t.Fatal(err)
	}
	if pcb.FPUState == nil {
		t.Fatal("expected an FPU state to be allocated")
	}

	if err := FreePCB(&pcb); err != nil {
		t.Fatal(err)
	}
	if freed != 1 {
		t.Fatalf("expected the FPU save area to be returned to the allocator; freed %d frames", freed)
	}
	if pcb.FPUState != nil {
		t.Fatal("expected the FPU state to be detached from the PCB")
	}

	if err := FreePCB(&pcb); err == nil {
		t.Fatal("expected freeing an empty PCB to be reported as a misuse error")
	}
}
