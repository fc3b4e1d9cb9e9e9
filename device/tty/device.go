// Package tty implements a minimal virtual terminal device that translates
// a byte stream into cell writes on an attached console.
package tty

import (
	"hydroxos/device"
	"hydroxos/kernel"
)

// DefaultTabWidth is the number of columns a tab character expands to.
const DefaultTabWidth = 4

// VT is a virtual terminal: it tracks a cursor position and translates
// writes into device.ConsoleDevice.SetCell calls, scrolling the console
// when the cursor reaches the bottom row. It recognizes \r, \n, \b and \t;
// anything else is written as a plain character. There is no escape-code
// interpretation.
type VT struct {
	cons device.ConsoleDevice

	width, height uint16
	cursorX       uint16
	cursorY       uint16

	tabWidth         uint8
	defaultFg, curFg uint8
	defaultBg, curBg uint8
}

// NewVT creates a virtual terminal not yet attached to any console.
func NewVT(tabWidth uint8) *VT {
	return &VT{tabWidth: tabWidth}
}

// AttachTo implements device.TTYDevice.
func (t *VT) AttachTo(cons device.ConsoleDevice) {
	if cons == nil {
		return
	}
	t.cons = cons
	t.width, t.height = cons.Dimensions()
	t.cursorX, t.cursorY = 0, 0
	cons.Clear()
}

// Write implements device.TTYDevice.
func (t *VT) Write(p []byte) (int, error) {
	for _, b := range p {
		t.WriteByte(b)
	}
	return len(p), nil
}

// WriteByte implements device.TTYDevice. Writes before a console is
// attached are silently dropped.
func (t *VT) WriteByte(b byte) {
	if t.cons == nil {
		return
	}

	switch b {
	case '\r':
		t.cursorX = 0
	case '\n':
		t.newline()
	case '\b':
		if t.cursorX > 0 {
			t.cursorX--
			t.cons.SetCell(t.cursorX, t.cursorY, ' ', t.curFg, t.curBg)
		}
	case '\t':
		for i := uint8(0); i < t.tabWidth; i++ {
			t.putChar(' ')
		}
	default:
		t.putChar(b)
	}
}

// putChar writes b at the cursor and advances it, wrapping to the next line
// (and scrolling if needed) when it runs off the right edge.
func (t *VT) putChar(b byte) {
	t.cons.SetCell(t.cursorX, t.cursorY, b, t.curFg, t.curBg)
	t.cursorX++
	if t.cursorX >= t.width {
		t.newline()
	}
}

// newline moves the cursor to the start of the next line, scrolling the
// console up by one row once the cursor runs off the bottom.
func (t *VT) newline() {
	t.cursorX = 0
	if t.cursorY+1 < t.height {
		t.cursorY++
		return
	}
	t.cons.Scroll(1)
}

// DriverName implements device.Driver.
func (t *VT) DriverName() string {
	return "vt"
}

// DriverVersion implements device.Driver.
func (t *VT) DriverVersion() (uint16, uint16, uint16) {
	return 0, 0, 1
}

// DriverInit implements device.Driver.
func (t *VT) DriverInit() *kernel.Error {
	return nil
}

func probeForVT() device.Driver {
	return NewVT(DefaultTabWidth)
}

func init() {
	device.RegisterDriver(&device.DriverInfo{
		Order: device.DetectOrderLast,
		Probe: probeForVT,
	})
}
