// Package irq describes the exception/interrupt frame layout and handler
// registration the kernel core treats as an external collaborator: the idea
// that an interrupt handler receives a snapshot of the interrupted code's
// registers and can register itself for a given exception or IRQ number, but
// not the IDT programming and entry-stub assembly that wires this up on real
// hardware.
package irq

import "hydroxos/kernel/kfmt"

// Regs contains a snapshot of the register values when an interrupt occurred.
type Regs struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
}

// Print outputs a dump of the register values to the active console.
func (r *Regs) Print() {
	kfmt.Printf("RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Printf("RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Printf("RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Printf("RBP = %16x\n", r.RBP)
	kfmt.Printf("R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Printf("R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Printf("R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Printf("R14 = %16x R15 = %16x\n", r.R14, r.R15)
}

// Frame describes the exception frame the CPU automatically pushes to the
// stack when an exception occurs.
type Frame struct {
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// Print outputs a dump of the exception frame to the active console.
func (f *Frame) Print() {
	kfmt.Printf("RIP = %16x CS  = %16x\n", f.RIP, f.CS)
	kfmt.Printf("RSP = %16x SS  = %16x\n", f.RSP, f.SS)
	kfmt.Printf("RFL = %16x\n", f.RFlags)
}

// idleRFlags has only the interrupt-enable bit set: the flags register an
// idle CPU resumes with.
const idleRFlags = 1 << 9

// SetIdle rewrites f in place so that, were it popped by the interrupt
// return sequence, execution would land in the scheduler's halt loop with
// interrupts enabled rather than resuming any particular thread. The
// dispatcher calls this when a context switch finds no ready thread to run.
func (f *Frame) SetIdle() {
	f.RIP = idleEntryFn()
	f.CS = kernelCodeSelector
	f.RFlags = idleRFlags
	f.RSP = idleStackTopFn()
	f.SS = kernelDataSelector
}

const (
	kernelCodeSelector = 0x08
	kernelDataSelector = 0x10
)

// idleEntryFn and idleStackTopFn report the entry point and stack pointer
// of the idle loop (a tight hlt/jmp sequence with its own small stack set
// up once at boot). They are arch-provided; tests substitute fixed values
// since there is no real idle loop to jump into.
var (
	idleEntryFn    = idleEntry
	idleStackTopFn = idleStackTop
)

func idleEntry() uint64
func idleStackTop() uint64
