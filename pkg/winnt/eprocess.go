package winnt

// Package winnt decodes the fixed-layout kernel structures that describe
// processes on 32-bit Windows, and reconstructs the active process list
// from a memory image.
//
// Structure offsets match the 32-bit XP-era kernel. Each structure is
// decoded by a pure function over a byte slice; nothing here touches the
// image directly except the walker.

import (
	"encoding/binary"
	"fmt"
	"time"
)

const (
	// EProcessSize is the full size of the _EPROCESS structure.
	EProcessSize = 0x2d8

	// ActiveProcessLinksOffset is where the process list node is
	// embedded inside _EPROCESS. The list links point at the node, not
	// at the structure base, so the walker subtracts this to recover
	// the record.
	ActiveProcessLinksOffset = 0xb8

	// ListEntrySize is the size of a _LIST_ENTRY node.
	ListEntrySize = 8

	kprocessSize           = 0x98
	profileListEntryOffset = 0x10
	directoryTableBaseOff  = 0x18

	createTimeOffset = 0xa0
	exitTimeOffset   = 0xa8
	pidOffset        = 0xb4
	imageNameOffset  = 0x16c
	imageNameSize    = 15
)

// MalformedRecordError is returned when a decoded field violates its
// contract.
type MalformedRecordError struct {
	Struct string
	Field  string
	Reason string
}

func (err MalformedRecordError) Error() string {
	return fmt.Sprintf("malformed %s: %s: %s", err.Struct, err.Field, err.Reason)
}

// ListEntry is a _LIST_ENTRY node of an intrusive doubly-linked list.
// Both links are virtual addresses of the neighboring nodes' list
// fields, not of the records containing them.
type ListEntry struct {
	Flink uint32
	Blink uint32
}

// DecodeListEntry decodes a list node from raw, which must hold at least
// ListEntrySize bytes.
func DecodeListEntry(raw []byte) ListEntry {
	return ListEntry{
		Flink: binary.LittleEndian.Uint32(raw),
		Blink: binary.LittleEndian.Uint32(raw[4:]),
	}
}

// KProcess is the _KPROCESS control block embedded at the start of
// _EPROCESS. Only the fields the tooling consumes are decoded; the
// dispatcher header occupying the first 0x10 bytes is skipped.
type KProcess struct {
	ProfileListHead    ListEntry
	DirectoryTableBase uint32
}

// DecodeKProcess decodes the control block from raw, which must hold at
// least 0x98 bytes.
func DecodeKProcess(raw []byte) KProcess {
	return KProcess{
		ProfileListHead:    DecodeListEntry(raw[profileListEntryOffset:]),
		DirectoryTableBase: binary.LittleEndian.Uint32(raw[directoryTableBaseOff:]),
	}
}

// EProcess is a decoded _EPROCESS record. Base is the physical address
// of the backing structure; it identifies the record within one
// traversal but is recomputed every walk.
type EProcess struct {
	Base uint64

	Pcb                KProcess
	ActiveProcessLinks ListEntry

	Pid        uint32
	ImageName  string
	CreateTime time.Time
	ExitTime   time.Time
}

func (p *EProcess) String() string {
	return fmt.Sprintf("process %q @ %#x", p.ImageName, p.Base)
}

// DecodeEProcess decodes a full _EPROCESS record from raw.
func DecodeEProcess(raw []byte, base uint64) (EProcess, error) {
	if len(raw) < EProcessSize {
		return EProcess{}, MalformedRecordError{"EPROCESS", "buffer", fmt.Sprintf("need %#x bytes, have %#x", EProcessSize, len(raw))}
	}
	name, err := decodeImageName(raw[imageNameOffset : imageNameOffset+imageNameSize])
	if err != nil {
		return EProcess{}, err
	}
	return EProcess{
		Base:               base,
		Pcb:                DecodeKProcess(raw[:kprocessSize]),
		ActiveProcessLinks: DecodeListEntry(raw[ActiveProcessLinksOffset:]),
		Pid:                binary.LittleEndian.Uint32(raw[pidOffset:]),
		ImageName:          name,
		CreateTime:         Filetime(binary.LittleEndian.Uint64(raw[createTimeOffset:])),
		ExitTime:           Filetime(binary.LittleEndian.Uint64(raw[exitTimeOffset:])),
	}, nil
}

// decodeImageName trims trailing NUL padding and enforces the strict
// ASCII contract of the ImageFileName field.
func decodeImageName(raw []byte) (string, error) {
	end := len(raw)
	for end > 0 && raw[end-1] == 0 {
		end--
	}
	name := raw[:end]
	for _, c := range name {
		if c > 0x7f {
			return "", MalformedRecordError{"EPROCESS", "image name", fmt.Sprintf("non-ASCII byte %#x", c)}
		}
	}
	return string(name), nil
}
