// +build serial_debug

package machdep

// serialDebug controls whether kernel log output is routed to the serial
// port after a successful probe. Enabled via the serial_debug build tag.
const serialDebug = true
