// Package machdep contains the core machine-dependent bring-up code for
// x86-64: the early one-time initialization shared by all processors, the
// per-processor initialization sequence and the machine-dependent process
// hooks consumed by the machine-independent side of the kernel.
package machdep

import (
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
	"hyra/kernel/kfmt"
	"hyra/kernel/mm"
	"hyra/kernel/mm/pmm"
	"hyra/kernel/mm/vmm"
	"hyra/kernel/percpu"
	"hyra/kernel/sync"
	"hyra/kernel/trap"
)

// TrySpectreMitigate applies a speculative execution mitigation on the
// calling processor. It stays nil unless a mitigation is compiled in.
var TrySpectreMitigate func()

var (
	// firstBoot gates the initialization that must happen exactly once in
	// the kernel lifetime, on whichever processor boots first.
	firstBoot sync.Once

	// platformDiscovery gates the one-time platform table walk and I/O
	// APIC setup performed by the first processor to reach that point of
	// its initialization.
	platformDiscovery sync.Once

	// directMapOffset is recorded by the early boot path before Kmain
	// runs and forwarded to the VM subsystem during PreInit.
	directMapOffset uintptr

	debugPort = uart.NewCOM1()

	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	uartProbeFn      = uart.Probe
	pmmInitFn        = pmm.Init
	vmmInitFn        = vmm.Init
	acpiParseMADTFn  = acpi.ParseMADT
	ioapicInitFn     = ioapic.Init
	lapicInitFn      = lapic.Init
	lapicBaseFn      = acpi.LAPICBase
	enableFPUFn      = fpu.EnableFeatures
	setCurrentCPUFn  = percpu.SetCurrent
	allocFrameFn     = mm.AllocFrame
	idtLoadFn        = idt.Load
	gdtLoadFn        = gdt.Load
	setTaskStateFn   = gdt.SetTaskState
	loadTaskRegFn    = gdt.LoadTaskRegister
	enableIntsFn     = cpu.EnableInterrupts
	disableIntsFn    = cpu.DisableInterrupts
	haltFn           = cpu.Halt
	cpuidFn          = cpu.ID
	readMSRFn        = cpu.ReadMSR
	writeMSRFn       = cpu.WriteMSR
	panicFn          = func(err *kernel.Error) { kfmt.Panic(err) }
)

// SetDirectMapOffset records the offset of the kernel direct physical memory
// mapping established by the boot loader. The boot path must invoke it
// before the first call to PreInit.
func SetDirectMapOffset(offset uintptr) {
	directMapOffset = offset
}

// PreInit performs the critical setup that must happen on each processor
// before ProcessorInit can run. The serial debug path, the physical
// allocator and the virtual memory subsystem are brought up exactly once, by
// whichever processor gets here first; every processor then installs the
// trap vectors and loads its descriptor tables.
func PreInit() {
	firstBoot.Do(func() {
		if err := uartProbeFn(debugPort); err == nil && serialDebug {
			kfmt.SetOutputSink(&kfmt.PrefixWriter{
				Sink:   debugPort,
				Prefix: []byte("[hyra] "),
			})
		}

		if err := pmmInitFn(); err != nil {
			panicFn(err)
			return
		}
		if err := vmmInitFn(directMapOffset); err != nil {
			panicFn(err)
			return
		}
	})

	installTrapVectors()
	idtLoadFn()
	gdtLoadFn()
}

// installTrapVectors points the exception vectors at their entry stubs. The
// encoding is idempotent, so re-running it on secondary processors leaves
// the shared table untouched.
func installTrapVectors() {
	idt.SetGate(uint8(trap.DivideError), idt.TrapGate, trap.EntryPoint(trap.DivideErrorEntry))
	idt.SetGate(uint8(trap.NMI), idt.TrapGate, trap.EntryPoint(trap.NMIEntry))
	idt.SetGate(uint8(trap.Breakpoint), idt.TrapGate, trap.EntryPoint(trap.BreakpointEntry))
	idt.SetGate(uint8(trap.Overflow), idt.TrapGate, trap.EntryPoint(trap.OverflowEntry))
	idt.SetGate(uint8(trap.BoundRangeExceeded), idt.TrapGate, trap.EntryPoint(trap.BoundRangeEntry))
	idt.SetGate(uint8(trap.InvalidOpcode), idt.TrapGate, trap.EntryPoint(trap.InvalidOpcodeEntry))
	idt.SetGate(uint8(trap.DoubleFault), idt.TrapGate, trap.EntryPoint(trap.DoubleFaultEntry))
	idt.SetGate(uint8(trap.InvalidTSS), idt.TrapGate, trap.EntryPoint(trap.InvalidTSSEntry))
	idt.SetGate(uint8(trap.SegmentNotPresent), idt.TrapGate, trap.EntryPoint(trap.SegmentNotPresentEntry))
	idt.SetGate(uint8(trap.StackSegmentFault), idt.TrapGate, trap.EntryPoint(trap.StackFaultEntry))
	idt.SetGate(uint8(trap.GPFException), idt.TrapGate, trap.EntryPoint(trap.GPFEntry))
	idt.SetGate(uint8(trap.PageFaultException), idt.TrapGate, trap.EntryPoint(trap.PageFaultEntry))
	idt.SetGate(uint8(trap.SyscallVector), idt.IntGateUser, trap.EntryPoint(trap.SyscallEntry))
}

// ProcessorInit brings the calling processor to a fully operational state:
// descriptor published, SSE enabled, TSS installed, interrupt controllers
// programmed and interrupts enabled. It never runs twice on the same core
// and does not return early; any step that cannot complete panics.
func ProcessorInit() {
	ci := allocCPUInfo()
	if ci == nil {
		return
	}
	setCurrentCPUFn(ci)

	enableFPUFn()

	ci.Lock()
	setTaskStateFn(&ci.TaskState)
	if frame, err := allocFrameFn(); err != nil {
		panicFn(err)
	} else {
		ci.TaskState.SetRSP0(mm.PhysToVirt(frame.Address()) + mm.PageSize)
	}
	loadTaskRegFn()

	platformDiscovery.Do(func() {
		if err := acpiParseMADTFn(); err != nil {
			panicFn(err)
			return
		}
		ioapic.SetIRQResolver(acpi.IRQToGSI)
		if err := ioapicInitFn(); err != nil {
			panicFn(err)
		}
	})

	ci.LAPICBase = lapicBaseFn()
	ci.Unlock()

	lapicInitFn()

	if TrySpectreMitigate != nil {
		TrySpectreMitigate()
	}

	enableIntsFn()
}

// allocCPUInfo reserves a zeroed frame for the per-processor descriptor. The
// descriptor stays resident for the lifetime of the kernel.
func allocCPUInfo() *percpu.Info {
	frame, err := allocFrameFn()
	if err != nil {
		panicFn(err)
		return nil
	}

	addr := mm.PhysToVirt(frame.Address())
	kernel.Memset(addr, 0, mm.PageSize)
	return (*percpu.Info)(unsafe.Pointer(addr))
}

// PCB holds the machine-dependent state of a process.
type PCB struct {
	// FPUState points to the FPU register save area of the process.
	FPUState *fpu.State
}

// InitPCB allocates the machine-dependent state for a new process.
func InitPCB(pcb *PCB) *kernel.Error {
	state, err := fpu.NewState()
	if err != nil {
		return err
	}

	pcb.FPUState = state
	return nil
}

// FreePCB releases the machine-dependent state of an exiting process.
func FreePCB(pcb *PCB) *kernel.Error {
	err := pcb.FPUState.Release()
	pcb.FPUState = nil
	return err
}

// SwitchTo performs the machine-dependent part of a context switch from the
// outgoing process to the incoming one. A nil outgoing process indicates
// that the core was not running a process before. The caller must invoke
// SwitchTo with interrupts disabled.
func SwitchTo(outgoing, incoming *PCB) {
	var outState *fpu.State
	if outgoing != nil {
		outState = outgoing.FPUState
	}
	fpu.SwitchContext(outState, incoming.FPUState)
}

// DebugWriteChar sends a single character down the serial debug path.
func DebugWriteChar(c byte) {
	debugPort.WriteByte(c)
}

// Halt disables interrupts and stops instruction execution on the calling
// processor.
func Halt() {
	haltFn()
}

// MaskInterrupts disables interrupt delivery on the calling processor.
func MaskInterrupts() {
	disableIntsFn()
}

// UnmaskInterrupts enables interrupt delivery on the calling processor.
func UnmaskInterrupts() {
	enableIntsFn()
}
