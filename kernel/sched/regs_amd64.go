package sched

import "hydroxos/kernel/irq"

// kernelCodeSelector and kernelDataSelector are the GDT selectors installed
// during arch phase 1, reused here to build the initial frame for a brand
// new kernel thread.
const (
	kernelCodeSelector = 0x08
	kernelDataSelector = 0x10
	rflagsIF           = 1 << 9
)

// SavedBasicRegisters is the general-purpose register and interrupt-frame
// state a context switch saves from, and restores into, the CPU: the
// arch adapter's InterruptFrame and Regs bundled together as the unit a
// Thread keeps around while it is not Running.
type SavedBasicRegisters struct {
	Frame irq.Frame
	Regs  irq.Regs
}

// newKernelThreadBasicRegisters builds the register state a brand new
// kernel thread starts with: execution begins at entry with the System V
// amd64 calling convention's first integer argument register (RDI) holding
// arg, running on a stack that grows down from stackTop.
func newKernelThreadBasicRegisters(entry uintptr, arg uintptr, stackTop uintptr) SavedBasicRegisters {
	return SavedBasicRegisters{
		Frame: irq.Frame{
			RIP:    uint64(entry),
			CS:     kernelCodeSelector,
			RFlags: rflagsIF,
			RSP:    uint64(stackTop),
			SS:     kernelDataSelector,
		},
		Regs: irq.Regs{RDI: uint64(arg)},
	}
}

// SavedExtendedRegisters holds the FPU/SSE/AVX register file saved across a
// context switch. Its internal layout is entirely defined by the CPU's
// XSAVE area format; this core treats it as an opaque blob it only ever
// saves and restores, never inspects.
type SavedExtendedRegisters struct {
	data [512]byte
}

// saveExtendedRegisters and restoreExtendedRegisters wrap the XSAVE/FXSAVE
// and XRSTOR/FXRSTOR instructions. They are arch-provided and have no Go
// body; saveExtendedRegsFn/restoreExtendedRegsFn exist so tests can swap in
// no-op fakes, since there is no FPU state on the host running the test
// binary that it would make sense to round-trip.
func saveExtendedRegisters(r *SavedExtendedRegisters)
func restoreExtendedRegisters(r *SavedExtendedRegisters)

var (
	saveExtendedRegsFn    = saveExtendedRegisters
	restoreExtendedRegsFn = restoreExtendedRegisters
)
