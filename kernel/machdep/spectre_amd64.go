// +build spectre

package machdep

import "hyra/kernel/kfmt"

// IA32_SPEC_CTRL; bit 0 enables Indirect Branch Restricted Speculation.
const specCtrlMSR = 0x48

func init() {
	TrySpectreMitigate = spectreMitigate
}

// spectreMitigate enables IBRS on the calling processor when the CPU
// advertises it (CPUID leaf 7 EDX bit 26).
func spectreMitigate() {
	_, _, _, edx := cpuidFn(7)
	if edx&(1<<26) == 0 {
		kfmt.Printf("spectre: IBRS not supported; mitigation NOT enabled\n")
		return
	}

	writeMSRFn(specCtrlMSR, readMSRFn(specCtrlMSR)|1)
	kfmt.Printf("spectre: IBRS supported; mitigation enabled\n")
}
