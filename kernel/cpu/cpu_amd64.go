// Package cpu declares the amd64 register- and instruction-level primitives
// the rest of the kernel is built on. Every function here is implemented in
// assembly (not included in this tree) and has no Go body of its own.
package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling on the local core.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling on the local core.
func DisableInterrupts()

// InterruptsEnabled reports whether interrupts are currently enabled on the
// local core.
func InterruptsEnabled() bool

// Halt stops instruction execution until the next interrupt.
func Halt()

// Pause issues a PAUSE instruction, hinting to the core that it is in a
// spin-wait loop so a sibling hyperthread can make progress.
func Pause()

// FlushTLBEntry flushes a TLB entry for a particular virtual address.
func FlushTLBEntry(virtAddr uintptr)

// SwitchPDT sets the root page table directory to point to the specified
// physical address and flushes the TLB.
func SwitchPDT(pdtPhysAddr uintptr)

// ActivePDT returns the physical address of the currently active page table.
func ActivePDT() uintptr

// MapPage installs a page-table mapping from virtAddr to physAddr in the
// currently active address space with the given protection flags, walking
// (and allocating, where needed) the intermediate page-table levels. It
// reports whether the mapping was installed.
func MapPage(virtAddr, physAddr uintptr, flags uint32) bool

// UnmapPage removes whatever page-table mapping currently covers virtAddr.
func UnmapPage(virtAddr uintptr)

// ReadCR2 returns the value stored in the CR2 register (the faulting address
// of the most recent page fault).
func ReadCR2() uint64

// ID returns information about the CPU and its features. It is implemented
// as a CPUID instruction with EAX=leaf and returns the values in EAX, EBX,
// ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// IsIntel returns true if the code is running on an Intel processor.
func IsIntel() bool {
	_, ebx, ecx, edx := cpuidFn(0)
	return ebx == 0x756e6547 && // "Genu"
		edx == 0x49656e69 && // "ineI"
		ecx == 0x6c65746e // "ntel"
}
