package trap

// The entry stubs below are implemented in entry_amd64.s. Each stub pushes
// its vector number (and a zero placeholder when the CPU does not supply an
// error code), captures the register file and forwards to dispatchTrap. Their
// addresses are obtained via EntryPoint and installed into interrupt gates by
// the machine-dependent bring-up code.

// DivideErrorEntry is the entry stub for vector 0.
func DivideErrorEntry()

// NMIEntry is the entry stub for vector 2.
func NMIEntry()

// BreakpointEntry is the entry stub for vector 3.
func BreakpointEntry()

// OverflowEntry is the entry stub for vector 4.
func OverflowEntry()

// BoundRangeEntry is the entry stub for vector 5.
func BoundRangeEntry()

// InvalidOpcodeEntry is the entry stub for vector 6.
func InvalidOpcodeEntry()

// DoubleFaultEntry is the entry stub for vector 8.
func DoubleFaultEntry()

// InvalidTSSEntry is the entry stub for vector 10.
func InvalidTSSEntry()

// SegmentNotPresentEntry is the entry stub for vector 11.
func SegmentNotPresentEntry()

// StackFaultEntry is the entry stub for vector 12.
func StackFaultEntry()

// GPFEntry is the entry stub for vector 13.
func GPFEntry()

// PageFaultEntry is the entry stub for vector 14.
func PageFaultEntry()

// SyscallEntry is the entry stub for vector 0x80.
func SyscallEntry()
