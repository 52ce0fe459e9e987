package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt disables interrupts and stops instruction execution.
func Halt()

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}

// ReadCR0 returns the value stored in the CR0 register.
func ReadCR0() uint64

// WriteCR0 replaces the contents of the CR0 register.
func WriteCR0(val uint64)

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// ReadCR4 returns the value stored in the CR4 register.
func ReadCR4() uint64

// WriteCR4 replaces the contents of the CR4 register.
func WriteCR4(val uint64)

// ReadMSR returns the contents of the model-specific register reg.
func ReadMSR(reg uint32) uint64

// WriteMSR replaces the contents of the model-specific register reg.
func WriteMSR(reg uint32, val uint64)

// FXSave captures the full x87/SSE register state into the 512-byte
// save area at addr. The address must be 16-byte aligned.
func FXSave(addr uintptr)

// FXRestore loads the full x87/SSE register state from the 512-byte
// save area at addr. The address must be 16-byte aligned.
func FXRestore(addr uintptr)

// SetFloatControl programs the x87 control word and the SSE MXCSR
// register with the supplied values.
func SetFloatControl(fcw uint16, mxcsr uint32)

// SetGSBase replaces the GS segment base via the IA32_GS_BASE MSR.
func SetGSBase(addr uintptr)

// GSBase returns the GS segment base via the IA32_GS_BASE MSR.
func GSBase() uintptr

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortWriteWord writes a uint16 value to the requested port.
func PortWriteWord(port uint16, val uint16)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8

// PortReadWord reads a uint16 value from the requested port.
func PortReadWord(port uint16) uint16
