// Command kernel is the rt0 trampoline: the only Go symbol the assembly
// startup code calls into after it has set up a GDT and a minimal g0 stack.
package main

import "hydroxos/kernel/kmain"

// multibootInfoPtr is passed to Kmain as an argument, rather than read
// directly by it, so the compiler can't prove Kmain's argument is always
// zero and inline the call away. The assembly trampoline overwrites this
// variable with the real Multiboot2 info pointer before calling main.
var multibootInfoPtr uintptr

// main is not expected to return. If it does, the assembly trampoline
// halts the CPU.
func main() {
	kmain.Kmain(multibootInfoPtr)
}
