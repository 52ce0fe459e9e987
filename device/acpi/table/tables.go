// Package table defines the layout of the ACPI tables consumed during
// machine-dependent bring-up. The structs mirror the on-wire table layout so
// that a mapped table can be overlaid directly; all multi-byte fields sit at
// their natural alignment.
package table

// SDTHeader defines the common header for all ACPI-related tables.
type SDTHeader struct {
	// The signature defines the table type.
	Signature [4]byte

	// The length of the table
	Length uint32

	Revision uint8

	// A value that when added to the sum of all other bytes in the table
	// should result in the value 0.
	Checksum uint8

	// OEM specific information
	OEMID       [6]byte
	OEMTableID  [8]byte
	OEMRevision uint32

	// Information about the ASL compiler that generated this table
	CreatorID       uint32
	CreatorRevision uint32
}

// MADT (Multiple APIC Description Table) is an ACPI table containing
// information about the interrupt controllers and the number of installed
// CPUs. Following the table header are a series of variable sized records
// (see MADTEntry) which contain additional information.
type MADT struct {
	SDTHeader

	LocalControllerAddress uint32
	Flags                  uint32
}

// MADTEntryType describes the type of a MADT record.
type MADTEntryType uint8

// The list of MADT entry types consumed by the bring-up code.
const (
	MADTEntryTypeLocalAPIC MADTEntryType = iota
	MADTEntryTypeIOAPIC
	MADTEntryTypeIntSrcOverride
	MADTEntryTypeNMI
)

// MADTEntry describes the common header shared by every variable sized MADT
// record. The consumer must check Type before overlaying one of the concrete
// entry structs below onto the record.
type MADTEntry struct {
	Type   MADTEntryType
	Length uint8
}

// MADTEntryLocalAPIC describes a single physical processor and its local
// interrupt controller.
type MADTEntryLocalAPIC struct {
	MADTEntry

	ProcessorID uint8
	APICID      uint8
	Flags       uint32
}

// MADTEntryIOAPIC describes an I/O Advanced Programmable Interrupt
// Controller.
type MADTEntryIOAPIC struct {
	MADTEntry

	APICID   uint8
	reserved uint8

	// Address contains the physical address of the controller's register
	// window.
	Address uint32

	// SysInterruptBase defines the first global system interrupt number
	// that this controller handles.
	SysInterruptBase uint32
}

// MADTEntryInterruptSrcOverride contains the data for an Interrupt Source
// Override. This mechanism is used to map IRQ sources to global system
// interrupts.
type MADTEntryInterruptSrcOverride struct {
	MADTEntry

	BusSrc          uint8
	IRQSrc          uint8
	GlobalInterrupt uint32
	Flags           uint16
}
