// Package console implements ConsoleDevice drivers for the video hardware a
// bootloader may have already set up.
package console

import (
	"reflect"
	"unsafe"

	"hydroxos/device"
	"hydroxos/kernel"
	"hydroxos/kernel/boot"
	"hydroxos/kernel/mem"
)

// VGATextConsole implements an EGA-compatible 80x25 text console using VGA
// mode 0x3. Each cell is encoded as two bytes: the character's ASCII code
// and a byte packing the foreground color (low nibble) and background color
// (high nibble).
//
// The default colors are light gray text (7) on a black background (0).
type VGATextConsole struct {
	width, height uint16
	fbPhysAddr    uint64
	fb            []uint16

	defaultFg, defaultBg uint8
}

// NewVGATextConsole creates a console of the given dimensions backed by the
// framebuffer at fbPhysAddr. The framebuffer isn't mapped until DriverInit
// runs.
func NewVGATextConsole(width, height uint16, fbPhysAddr uint64) *VGATextConsole {
	return &VGATextConsole{
		width:      width,
		height:     height,
		fbPhysAddr: fbPhysAddr,
		defaultFg:  7,
		defaultBg:  0,
	}
}

// Dimensions implements device.ConsoleDevice.
func (c *VGATextConsole) Dimensions() (width, height uint16) {
	return c.width, c.height
}

// SetCell implements device.ConsoleDevice. Out-of-bounds coordinates are
// silently ignored.
func (c *VGATextConsole) SetCell(x, y uint16, ch byte, fg, bg uint8) {
	if x >= c.width || y >= c.height {
		return
	}
	c.fb[int(y)*int(c.width)+int(x)] = packCell(ch, fg, bg)
}

// Clear implements device.ConsoleDevice.
func (c *VGATextConsole) Clear() {
	blank := packCell(' ', c.defaultFg, c.defaultBg)
	for i := range c.fb {
		c.fb[i] = blank
	}
}

// Scroll implements device.ConsoleDevice: it moves the contents up by rows
// rows and blanks the rows that scroll in at the bottom.
func (c *VGATextConsole) Scroll(rows uint16) {
	if rows == 0 {
		return
	}
	if rows >= c.height {
		c.Clear()
		return
	}

	shift := int(rows) * int(c.width)
	copy(c.fb, c.fb[shift:])

	blank := packCell(' ', c.defaultFg, c.defaultBg)
	for i := len(c.fb) - shift; i < len(c.fb); i++ {
		c.fb[i] = blank
	}
}

func packCell(ch byte, fg, bg uint8) uint16 {
	return (((uint16(bg) << 4) | uint16(fg)) << 8) | uint16(ch)
}

// DriverName implements device.Driver.
func (c *VGATextConsole) DriverName() string {
	return "vga_text_console"
}

// DriverVersion implements device.Driver.
func (c *VGATextConsole) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit implements device.Driver. It maps the VGA framebuffer and
// clears the console.
func (c *VGATextConsole) DriverInit() *kernel.Error {
	fbLen := int(c.width) * int(c.height)
	ptr := physAddrPtrFn(c.fbPhysAddr)

	c.fb = *(*[]uint16)(unsafe.Pointer(&reflect.SliceHeader{
		Data: uintptr(ptr),
		Len:  fbLen,
		Cap:  fbLen,
	}))
	c.Clear()
	return nil
}

// physAddrPtrFn turns a physical address into a pointer this core can read
// and write through. It relies on physical memory being permanently
// identity-mapped; tests override it to point into an ordinary Go byte
// slice instead.
var physAddrPtrFn = func(phys uint64) unsafe.Pointer {
	return unsafe.Pointer(uintptr(phys))
}

var framebufferInfo *boot.FramebufferInfo

// SetFramebufferInfo records the framebuffer the bootloader reported, so a
// later probe can decide whether a VGA text console is present. kmain calls
// this once, after decoding the boot info and right before hal.DetectHardware
// runs; there is no equivalent of multiboot's own global info pointer here,
// since multiboot.Read is a stateless, one-shot decode.
func SetFramebufferInfo(fb *boot.FramebufferInfo) {
	framebufferInfo = fb
}

func probeForVGATextConsole() device.Driver {
	fb := framebufferInfo
	if fb == nil || fb.Type != boot.FramebufferEGAText {
		return nil
	}
	return NewVGATextConsole(uint16(fb.Width), uint16(fb.Height), fb.PhysAddress)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForVGATextConsole,
	})
}
