// Package hal wires together the hardware-facing pieces that the kernel core
// treats as external collaborators: the active console/TTY pair, and the
// probing of whatever device drivers are registered with the device
// package. None of the algorithms here are part of the four core subsystems
// (frame allocation, virtual regions, scheduling, interrupt-safe locking);
// this package only sequences them into the boot control flow described in
// spec.md §2.
package hal

import (
	"sort"

	"hydroxos/device"
	"hydroxos/kernel/kfmt"
)

// Terminal is the minimal surface kfmt/early needs to emit output before
// anything else in the kernel has been initialized.
type Terminal interface {
	WriteByte(b byte)
	Write(p []byte) (int, error)
}

// discardTerminal silently drops everything written to it. It is the
// default value of ActiveTerminal until a real console driver attaches.
type discardTerminal struct{}

func (discardTerminal) WriteByte(byte)            {}
func (discardTerminal) Write(p []byte) (int, error) { return len(p), nil }

// ActiveTerminal is the terminal that kernel/kfmt/early.Printf writes to. It
// is always safe to write to, even before any hardware has been detected.
var ActiveTerminal Terminal = discardTerminal{}

var devices struct {
	activeConsole device.ConsoleDevice
	activeTTY     device.TTYDevice
	drivers       []device.Driver
}

// ActiveTTY returns the currently attached TTY device, or nil if none has
// been detected yet.
func ActiveTTY() device.TTYDevice {
	return devices.activeTTY
}

// DetectHardware probes every registered driver (sorted by detection
// priority) and attaches the first console and TTY devices it finds to each
// other, then redirects kernel/kfmt's output sink to the TTY.
func DetectHardware() {
	infos := device.DriverList()
	sort.Sort(infos)

	for _, info := range infos {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		w := kfmt.PrefixWriter{Sink: kfmt.GetOutputSink(), Prefix: []byte("[" + drv.DriverName() + "] ")}
		if err := drv.DriverInit(); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}
		kfmt.Fprintf(&w, "initialized\n")

		onDriverInit(drv)
		devices.drivers = append(devices.drivers, drv)
	}
}

func onDriverInit(drv device.Driver) {
	if cons, ok := drv.(device.ConsoleDevice); ok && devices.activeConsole == nil {
		devices.activeConsole = cons
	}
	if tty, ok := drv.(device.TTYDevice); ok && devices.activeTTY == nil {
		devices.activeTTY = tty
		if devices.activeConsole != nil {
			linkTTYToConsole()
		}
		return
	}
	if devices.activeConsole != nil && devices.activeTTY != nil {
		linkTTYToConsole()
	}
}

func linkTTYToConsole() {
	devices.activeTTY.AttachTo(devices.activeConsole)
	ActiveTerminal = devices.activeTTY
	kfmt.SetOutputSink(devices.activeTTY)
}
