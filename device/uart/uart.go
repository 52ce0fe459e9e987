// Package uart drives the 8250-compatible serial port used as the kernel
// debug console. The device is probed with a loopback self-test before it is
// trusted; on machines without a (working) COM1 the probe fails and the debug
// path stays disconnected.
package uart

import (
	"hyra/kernel"
	"hyra/kernel/cpu"
)

const (
	com1 = uint16(0x3f8)

	// Register offsets from the port base.
	regData         = 0 // RBR/THR, DLL with DLAB set
	regIntEnable    = 1 // IER, DLH with DLAB set
	regFIFOControl  = 2
	regLineControl  = 3
	regModemControl = 4
	regLineStatus   = 5

	lsrTransmitEmpty = 1 << 5

	// Test byte written while the chip is in loopback mode.
	loopbackProbe = 0xae
)

var (
	// the following functions are mocked by tests and are automatically
	// inlined by the compiler.
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte

	errProbeFailed = &kernel.Error{Module: "uart", Message: "8250 loopback self-test failed"}
)

// Device drives a single 8250-compatible port.
type Device struct {
	base uint16
}

// NewCOM1 returns an unprobed device for the COM1 port.
func NewCOM1() *Device {
	return &Device{base: com1}
}

// Probe programs the port for 38400 baud, 8N1 with FIFOs enabled and then
// verifies the chip by transmitting a test byte in loopback mode. It returns
// an error when the byte does not echo back, leaving the device unusable.
func Probe(dev *Device) *kernel.Error {
	// Disable interrupts and latch the divisor registers (DLAB).
	portWriteByteFn(dev.base+regIntEnable, 0x00)
	portWriteByteFn(dev.base+regLineControl, 0x80)

	// Divisor 3: 38400 baud.
	portWriteByteFn(dev.base+regData, 0x03)
	portWriteByteFn(dev.base+regIntEnable, 0x00)

	// 8 data bits, no parity, one stop bit; clears DLAB so the divisor
	// latches become read-only.
	portWriteByteFn(dev.base+regLineControl, 0x03)

	// Enable FIFOs, flush both queues, 14-byte interrupt watermark.
	portWriteByteFn(dev.base+regFIFOControl, 0xc7)

	// AUX2 (interrupt line) + data terminal ready.
	portWriteByteFn(dev.base+regModemControl, 0x0b)
	portWriteByteFn(dev.base+regIntEnable, 0x01)

	// Switch the chip into loopback mode and check that a test byte echoes
	// back through the receive buffer.
	portWriteByteFn(dev.base+regModemControl, 0x1e)
	portWriteByteFn(dev.base+regData, loopbackProbe)
	if portReadByteFn(dev.base+regData) != loopbackProbe {
		return errProbeFailed
	}

	// Back to normal operation.
	portWriteByteFn(dev.base+regModemControl, 0x0b)
	return nil
}

// WriteByte transmits a single byte, spinning until the transmit holding
// register drains.
func (dev *Device) WriteByte(b byte) {
	for portReadByteFn(dev.base+regLineStatus)&lsrTransmitEmpty == 0 {
	}
	portWriteByteFn(dev.base+regData, b)
}

// Write transmits the contents of p, satisfying io.Writer so the device can
// be used as an output sink for the kernel formatter.
func (dev *Device) Write(p []byte) (int, error) {
	for _, b := range p {
		dev.WriteByte(b)
	}
	return len(p), nil
}
