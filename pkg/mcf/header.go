// Package mcf implements the Model Container File format: a single-file,
// memory-mappable container for split model weights. It describes structure
// and data only and never implies runtime behaviour.
package mcf

import (
	"encoding/binary"
	"unsafe"
)

// MCF global constants must never change.
const (
	// MagicMCF is the file magic for all MCF containers, encoded as "MCF\0".
	MagicMCF = "MCF\x00"

	// CurrentMajor is the breaking-change version. Any change indicates a
	// format change incompatible with older readers.
	CurrentMajor uint16 = 1

	// CurrentMinor may grow when new optional sections or fields are added.
	CurrentMinor uint16 = 1

	// FlagTensorDataAligned64 is required for all files using packed/quantised
	// tensor dtypes; it guarantees the tensor data payload is 64-byte aligned.
	FlagTensorDataAligned64 uint64 = 1 << 0

	// FlagSplitFile marks a container as one split of a multi-split model.
	// When set, the container's ModelInfo section carries the
	// SplitIndexKey/SplitCountKey extras described in SPEC_FULL.md §6.
	FlagSplitFile uint64 = 1 << 1
)

// SplitIndexKey and SplitCountKey are the documented ModelInfo extras keys
// that carry a split's own 0-based index and the total split count. They
// satisfy the container-format contract's "integer-valued key under a
// documented name" requirement for split files.
const (
	SplitIndexKey = "split.index"
	SplitCountKey = "split.count"
)

const (
	mcfHeaderSize  = 40
	mcfSectionSize = 24
)

type SectionType uint32

const (
	SectionModelInfo   SectionType = 0x0001
	SectionQuantInfo   SectionType = 0x0002
	SectionTensorIndex SectionType = 0x0003
	SectionTensorData  SectionType = 0x0004
)

type MCFHeader struct {
	Magic            [4]byte
	Major            uint16
	Minor            uint16
	HeaderSize       uint32
	SectionCount     uint32
	SectionDirOffset uint64
	FileSize         uint64
	Flags            uint64
}

func (h *MCFHeader) Valid() bool {
	if string(h.Magic[:]) != MagicMCF {
		return false
	}
	if h.HeaderSize < uint32(unsafe.Sizeof(MCFHeader{})) {
		return false
	}
	if h.SectionCount == 0 {
		return false
	}
	return true
}

func (h *MCFHeader) Compatible() bool {
	return h.Major == CurrentMajor
}

type MCFSection struct {
	Type    uint32
	Version uint32
	Offset  uint64
	Size    uint64
}

type Section struct {
	MCFSection
}

func (s *Section) End() uint64 {
	return s.Offset + s.Size
}

func decodeHeader(b []byte) (MCFHeader, bool) {
	if len(b) < mcfHeaderSize {
		return MCFHeader{}, false
	}
	var h MCFHeader
	copy(h.Magic[:], b[0:4])
	h.Major = binary.LittleEndian.Uint16(b[4:6])
	h.Minor = binary.LittleEndian.Uint16(b[6:8])
	h.HeaderSize = binary.LittleEndian.Uint32(b[8:12])
	h.SectionCount = binary.LittleEndian.Uint32(b[12:16])
	h.SectionDirOffset = binary.LittleEndian.Uint64(b[16:24])
	h.FileSize = binary.LittleEndian.Uint64(b[24:32])
	h.Flags = binary.LittleEndian.Uint64(b[32:40])
	return h, true
}

func encodeHeader(buf []byte, h MCFHeader) bool {
	if len(buf) < mcfHeaderSize {
		return false
	}
	copy(buf[0:4], h.Magic[:])
	binary.LittleEndian.PutUint16(buf[4:6], h.Major)
	binary.LittleEndian.PutUint16(buf[6:8], h.Minor)
	binary.LittleEndian.PutUint32(buf[8:12], h.HeaderSize)
	binary.LittleEndian.PutUint32(buf[12:16], h.SectionCount)
	binary.LittleEndian.PutUint64(buf[16:24], h.SectionDirOffset)
	binary.LittleEndian.PutUint64(buf[24:32], h.FileSize)
	binary.LittleEndian.PutUint64(buf[32:40], h.Flags)
	return true
}

func decodeSection(b []byte) (MCFSection, bool) {
	if len(b) < mcfSectionSize {
		return MCFSection{}, false
	}
	return MCFSection{
		Type:    binary.LittleEndian.Uint32(b[0:4]),
		Version: binary.LittleEndian.Uint32(b[4:8]),
		Offset:  binary.LittleEndian.Uint64(b[8:16]),
		Size:    binary.LittleEndian.Uint64(b[16:24]),
	}, true
}

func encodeSection(buf []byte, s MCFSection) bool {
	if len(buf) < mcfSectionSize {
		return false
	}
	binary.LittleEndian.PutUint32(buf[0:4], s.Type)
	binary.LittleEndian.PutUint32(buf[4:8], s.Version)
	binary.LittleEndian.PutUint64(buf[8:16], s.Offset)
	binary.LittleEndian.PutUint64(buf[16:24], s.Size)
	return true
}
