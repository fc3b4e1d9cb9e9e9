// Package device defines the driver registry that kernel/hal probes during
// boot, and the narrow capability interfaces (console, TTY) that drivers
// implement. It is an external collaborator of the kernel core: the core
// depends only on these interfaces, never on a concrete driver.
package device

import "hydroxos/kernel"

// Driver is implemented by every registered device driver.
type Driver interface {
	// DriverName returns the name of the driver.
	DriverName() string

	// DriverVersion returns the driver's version.
	DriverVersion() (major, minor, patch uint16)

	// DriverInit initializes the device driver. It may be called even if
	// the underlying hardware is absent; in that case it must return a
	// non-nil error rather than panicking.
	DriverInit() *kernel.Error
}

// ConsoleDevice is implemented by drivers that can render a character grid,
// e.g. a VGA text-mode console.
type ConsoleDevice interface {
	Driver

	// Dimensions returns the console's width and height in character cells.
	Dimensions() (width, height uint16)

	// SetCell writes a single character cell at (x, y). Both coordinates
	// are 0-based.
	SetCell(x, y uint16, ch byte, fg, bg uint8)

	// Clear blanks the entire console.
	Clear()

	// Scroll moves the console contents up by the given number of rows,
	// blanking the rows that scroll in from the bottom.
	Scroll(rows uint16)
}

// TTYDevice is implemented by drivers that translate a byte stream into
// updates on an attached ConsoleDevice.
type TTYDevice interface {
	Driver

	WriteByte(b byte)
	Write(p []byte) (int, error)

	// AttachTo connects this TTY to a console instance that it will
	// render to.
	AttachTo(ConsoleDevice)
}

// ProbeFn attempts to detect the hardware a driver targets. It returns nil
// if the hardware is not present.
type ProbeFn func() Driver

// DetectOrder controls the relative order in which drivers are probed.
// Lower values are probed first.
type DetectOrder int

const (
	DetectOrderEarly     DetectOrder = 0
	DetectOrderBeforeACPI DetectOrder = 10
	DetectOrderACPI      DetectOrder = 20
	DetectOrderLast      DetectOrder = 100
)

// DriverInfo pairs a probe function with the order it should run in.
type DriverInfo struct {
	Order DetectOrder
	Probe ProbeFn
}

// DriverInfoList is a sortable list of DriverInfo, ordered ascending by Order.
type DriverInfoList []*DriverInfo

func (l DriverInfoList) Len() int           { return len(l) }
func (l DriverInfoList) Less(i, j int) bool { return l[i].Order < l[j].Order }
func (l DriverInfoList) Swap(i, j int)      { l[i], l[j] = l[j], l[i] }

var registeredDrivers DriverInfoList

// RegisterDriver adds a driver to the registry. Drivers call this from an
// init() function.
func RegisterDriver(info *DriverInfo) {
	registeredDrivers = append(registeredDrivers, info)
}

// DriverList returns the currently registered drivers.
func DriverList() DriverInfoList {
	return registeredDrivers
}
