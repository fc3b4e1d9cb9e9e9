// Package kmain sequences the kernel's boot control flow, from the moment
// the arch layer hands control to Go code to the idle loop.
package kmain

import (
	"hydroxos/kernel"
	"hydroxos/kernel/boot"
	"hydroxos/kernel/cpu"
	"hydroxos/kernel/goruntime"
	"hydroxos/kernel/hal"
	"hydroxos/kernel/kfmt/early"
	"hydroxos/kernel/mem/pmm"
	"hydroxos/kernel/mem/vmm"
	"hydroxos/kernel/sched"

	"hydroxos/device/video/console"
	"hydroxos/multiboot"
)

// Kmain is the only Go symbol visible from the rt0 initialization code. It
// is invoked once, after the arch layer has set up a GDT and a minimal g0
// goroutine structure so Go code can run on the small stack the assembly
// trampoline allocated.
//
// multibootInfoPtr is the address of the bootloader's Multiboot2 info
// structure. Kmain never returns: it ends in the kernel's idle loop.
//
//go:noinline
func Kmain(multibootInfoPtr uintptr) {
	info := multiboot.Read(multibootInfoPtr)
	opts := boot.ParseOptions(info.CommandLine)

	if !opts.GetBool("quiet", false) {
		early.Printf("Starting hydroxos\n")
	}

	pmm.Init(info)

	if err := goruntime.Init(); err != nil {
		kernel.Panic(err)
	}

	console.SetFramebufferInfo(info.Framebuffer)
	hal.DetectHardware()

	kernelSpace := vmm.NewKernelAddressSpace()
	sched.InitKernelProcess(kernelSpace)

	for {
		cpu.Halt()
	}
}
