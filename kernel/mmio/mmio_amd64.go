// Package mmio provides 32-bit memory-mapped register access for devices
// whose register windows live inside the kernel direct map.
package mmio

import "unsafe"

// Read32 returns the contents of the 32-bit register at virtAddr.
func Read32(virtAddr uintptr) uint32 {
	return *(*uint32)(unsafe.Pointer(virtAddr))
}

// Write32 replaces the contents of the 32-bit register at virtAddr.
func Write32(virtAddr uintptr, val uint32) {
	*(*uint32)(unsafe.Pointer(virtAddr)) = val
}
