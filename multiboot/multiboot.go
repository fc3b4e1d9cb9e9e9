// Package multiboot decodes a Multiboot2 information structure handed to
// the kernel by its bootloader and turns it into a boot.Info the kernel
// core can consume, without the core needing to know anything about the
// Multiboot2 wire format.
package multiboot

import (
	"unsafe"

	"hydroxos/kernel/boot"
)

type tagType uint32

const (
	tagSectionEnd tagType = iota
	tagBootCmdLine
	tagBootLoaderName
	tagModules
	tagBasicMemoryInfo
	tagBiosBootDevice
	tagMemoryMap
	tagVbeInfo
	tagFramebufferInfo
)

type tagHeader struct {
	tagType tagType
	size    uint32
}

type mmapHeader struct {
	entrySize    uint32
	entryVersion uint32
}

// wireMemoryMapEntry mirrors the Multiboot2 memory map entry layout.
type wireMemoryMapEntry struct {
	physAddress uint64
	length      uint64
	entryType   uint32
	reserved    uint32
}

const (
	wireMemAvailable      = 1
	wireMemAcpiReclaimable = 3
)

// wireFramebufferInfo mirrors the Multiboot2 framebuffer tag layout.
type wireFramebufferInfo struct {
	physAddr uint64
	pitch    uint32
	width    uint32
	height   uint32
	bpp      uint8
	fbType   uint8
	reserved uint16
}

const wireFramebufferTypeEGA = 2

// Read decodes the Multiboot2 info structure at infoPtr and returns the
// boot.Info it describes. infoPtr must point at a structure laid out by a
// Multiboot2-compliant bootloader; nothing about its contents can be
// validated beyond the tag boundaries it declares itself.
func Read(infoPtr uintptr) *boot.Info {
	info := &boot.Info{}

	if base, size := findTag(infoPtr, tagMemoryMap); size != 0 {
		info.MemoryMap = readMemoryMap(base, size)
	}
	if base, size := findTag(infoPtr, tagFramebufferInfo); size != 0 {
		info.Framebuffer = readFramebuffer(base)
	}
	if base, size := findTag(infoPtr, tagBootCmdLine); size != 0 {
		info.CommandLine = readCString(base, size)
	}

	return info
}

// readCString reads a NUL-terminated string out of a tag's content, up to
// size bytes.
func readCString(base uintptr, size uint32) string {
	buf := make([]byte, 0, size)
	for i := uint32(0); i < size; i++ {
		b := *(*byte)(unsafe.Pointer(base + uintptr(i)))
		if b == 0 {
			break
		}
		buf = append(buf, b)
	}
	return string(buf)
}

func readMemoryMap(base uintptr, size uint32) []boot.MemoryMapEntry {
	header := (*mmapHeader)(unsafe.Pointer(base))
	entryPtr := base + 8
	end := base + uintptr(size)

	var out []boot.MemoryMapEntry
	for entryPtr < end {
		wire := (*wireMemoryMapEntry)(unsafe.Pointer(entryPtr))
		out = append(out, boot.MemoryMapEntry{
			PhysAddress: wire.physAddress,
			Length:      wire.length,
			Type:        memoryRegionType(wire.entryType),
		})
		entryPtr += uintptr(header.entrySize)
	}
	return out
}

func memoryRegionType(wireType uint32) boot.MemoryRegionType {
	switch wireType {
	case wireMemAvailable:
		return boot.Usable
	case wireMemAcpiReclaimable:
		return boot.AcpiReclaimable
	default:
		return boot.Reserved
	}
}

func readFramebuffer(base uintptr) *boot.FramebufferInfo {
	wire := (*wireFramebufferInfo)(unsafe.Pointer(base))
	fbType := boot.FramebufferRGB
	if wire.fbType == wireFramebufferTypeEGA {
		fbType = boot.FramebufferEGAText
	}
	return &boot.FramebufferInfo{
		PhysAddress: wire.physAddr,
		Pitch:       wire.pitch,
		Width:       wire.width,
		Height:      wire.height,
		Bpp:         wire.bpp,
		Type:        fbType,
	}
}

// findTag scans the tag list starting right after the 8-byte Multiboot2
// info header, looking for the first tag of type want. It returns a
// pointer to the tag's contents (past its own 8-byte header) and the
// content length, or (0, 0) if no such tag is present. Tags are aligned to
// 8-byte boundaries.
func findTag(infoPtr uintptr, want tagType) (uintptr, uint32) {
	cur := infoPtr + 8
	for {
		h := (*tagHeader)(unsafe.Pointer(cur))
		if h.tagType == tagSectionEnd {
			return 0, 0
		}
		if h.tagType == want {
			return cur + 8, h.size - 8
		}
		cur += uintptr((h.size + 7) &^ 7)
	}
}
