package paging

// Package paging translates x86 32-bit virtual addresses to physical
// addresses by walking the paging structures found in a memory image.
//
// The walk is deliberately simplified: entries are not checked for the
// present bit, large pages (PS bit) are not interpreted, and in PAE mode
// only the low dword of each 8-byte entry is used, so all physical
// addresses are assumed to fit in 32 bits.

import (
	"encoding/binary"
	"fmt"

	"github.com/crashview/crashview/pkg/dump"
)

// Translator converts a virtual address of the address space rooted at
// dirbase into a physical address.
type Translator interface {
	Translate(vaddr uint32, dirbase uint64) (uint64, error)
}

// entryMask keeps the page-aligned base of a table entry, dropping the
// flag bits.
const entryMask = 0xfffff000

// TranslationError is returned when a paging structure cannot be read
// from the image. It distinguishes a bad virtual address from a bad
// physical read.
type TranslationError struct {
	VirtAddr uint32
	Level    string
	Err      error
}

func (err *TranslationError) Error() string {
	return fmt.Sprintf("cannot translate %#x: reading %s: %v", err.VirtAddr, err.Level, err.Err)
}

func (err *TranslationError) Unwrap() error { return err.Err }

// X86 translates through the classic two-level scheme: a page directory
// and a page table, both holding 4-byte entries, mapping 4KiB pages.
type X86 struct {
	mem   dump.MemoryReader
	logfn func(fmt string, args ...interface{})
}

// NewX86 returns a two-level translator reading paging structures from
// mem. logfn, if non-nil, receives the decomposed indices and every
// intermediate entry of each translation.
func NewX86(mem dump.MemoryReader, logfn func(fmt string, args ...interface{})) *X86 {
	return &X86{mem: mem, logfn: logfn}
}

// SplitX86 decomposes a virtual address into its page directory index,
// page table index and page offset.
func SplitX86(vaddr uint32) (pdi, pti, off uint32) {
	pdi = vaddr >> 22
	pti = (vaddr >> 12) & 0x3ff
	off = vaddr & 0xfff
	return pdi, pti, off
}

// Translate implements Translator.
func (t *X86) Translate(vaddr uint32, dirbase uint64) (uint64, error) {
	pdi, pti, off := SplitX86(vaddr)
	pde, err := readEntry(t.mem, dirbase+uint64(pdi)*4)
	if err != nil {
		return 0, &TranslationError{vaddr, "page directory entry", err}
	}
	pde &= entryMask
	pte, err := readEntry(t.mem, uint64(pde)+uint64(pti)*4)
	if err != nil {
		return 0, &TranslationError{vaddr, "page table entry", err}
	}
	pte &= entryMask
	paddr := uint64(pte) + uint64(off)
	if t.logfn != nil {
		t.logfn("vaddr:%#x pdi:%#x pti:%#x offset:%#x", vaddr, pdi, pti, off)
		t.logfn("pde:%#x pte:%#x paddr:%#x", pde, pte, paddr)
	}
	return paddr, nil
}

// X86PAE translates through the three-level PAE scheme: a page directory
// pointer table, a page directory and a page table, all holding 8-byte
// entries, mapping 4KiB pages.
type X86PAE struct {
	mem   dump.MemoryReader
	logfn func(fmt string, args ...interface{})
}

// NewX86PAE returns a three-level PAE translator reading paging
// structures from mem.
func NewX86PAE(mem dump.MemoryReader, logfn func(fmt string, args ...interface{})) *X86PAE {
	return &X86PAE{mem: mem, logfn: logfn}
}

// SplitX86PAE decomposes a virtual address into its directory pointer
// index, page directory index, page table index and page offset.
func SplitX86PAE(vaddr uint32) (pdpi, pdi, pti, off uint32) {
	pdpi = vaddr >> 30
	pdi = (vaddr >> 21) & 0x1ff
	pti = (vaddr >> 12) & 0x1ff
	off = vaddr & 0xfff
	return pdpi, pdi, pti, off
}

// Translate implements Translator.
func (t *X86PAE) Translate(vaddr uint32, dirbase uint64) (uint64, error) {
	pdpi, pdi, pti, off := SplitX86PAE(vaddr)
	pdpe, err := readEntry(t.mem, dirbase+uint64(pdpi)*8)
	if err != nil {
		return 0, &TranslationError{vaddr, "page directory pointer entry", err}
	}
	pdpe &= entryMask
	pde, err := readEntry(t.mem, uint64(pdpe)+uint64(pdi)*8)
	if err != nil {
		return 0, &TranslationError{vaddr, "page directory entry", err}
	}
	pde &= entryMask
	pte, err := readEntry(t.mem, uint64(pde)+uint64(pti)*8)
	if err != nil {
		return 0, &TranslationError{vaddr, "page table entry", err}
	}
	pte &= entryMask
	paddr := uint64(pte) + uint64(off)
	if t.logfn != nil {
		t.logfn("vaddr:%#x pdpi:%#x pdi:%#x pti:%#x offset:%#x", vaddr, pdpi, pdi, pti, off)
		t.logfn("pdpe:%#x pde:%#x pte:%#x paddr:%#x", pdpe, pde, pte, paddr)
	}
	return paddr, nil
}

// readEntry reads the low dword of a table entry. In PAE mode the high
// dword holds physical address bits above 32 and the NX flag, neither of
// which this model uses.
func readEntry(mem dump.MemoryReader, addr uint64) (uint32, error) {
	var b [4]byte
	if _, err := mem.ReadMemory(b[:], addr); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}
