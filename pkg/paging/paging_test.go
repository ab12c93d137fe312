package paging

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/crashview/crashview/pkg/dump"
)

func TestSplitX86(t *testing.T) {
	vaddrs := []uint32{0, 0xfff, 0x1000, 0x400000, 0x12345678, 0xc0000000, 0xffffffff}
	for _, vaddr := range vaddrs {
		pdi, pti, off := SplitX86(vaddr)
		if pdi != vaddr>>22 || pti != (vaddr>>12)&0x3ff || off != vaddr&0xfff {
			t.Errorf("SplitX86(%#x) = %#x %#x %#x", vaddr, pdi, pti, off)
		}
		if got := pdi<<22 | pti<<12 | off; got != vaddr {
			t.Errorf("SplitX86(%#x) does not reassemble: got %#x", vaddr, got)
		}
	}
}

func TestSplitX86PAE(t *testing.T) {
	vaddrs := []uint32{0, 0xfff, 0x1000, 0x200000, 0x40000000, 0x12345678, 0xffffffff}
	for _, vaddr := range vaddrs {
		pdpi, pdi, pti, off := SplitX86PAE(vaddr)
		if pdpi > 0x3 || pdi > 0x1ff || pti > 0x1ff || off > 0xfff {
			t.Errorf("SplitX86PAE(%#x) = %#x %#x %#x %#x: index out of width", vaddr, pdpi, pdi, pti, off)
		}
		if got := pdpi<<30 | pdi<<21 | pti<<12 | off; got != vaddr {
			t.Errorf("SplitX86PAE(%#x) does not reassemble: got %#x", vaddr, got)
		}
	}
}

// testMemory builds a flat physical memory image with 32-bit or 64-bit
// little-endian entries poked at the given addresses.
func testMemory(size int, entries map[uint64]uint64, wide bool) dump.MemoryReader {
	mem := make([]byte, size)
	for addr, val := range entries {
		if wide {
			binary.LittleEndian.PutUint64(mem[addr:], val)
		} else {
			binary.LittleEndian.PutUint32(mem[addr:], uint32(val))
		}
	}
	return dump.NewFlatSource(bytes.NewReader(mem), 0, 0)
}

func TestX86Translate(t *testing.T) {
	// vaddr 0x00403025: pdi=1 pti=3 offset=0x25. Flag bits set in both
	// entries must be ignored.
	const dirbase = 0x1000
	mem := testMemory(0x6000, map[uint64]uint64{
		dirbase + 1*4: 0x2000 | 0x63,
		0x2000 + 3*4:  0x5000 | 0x01,
	}, false)

	trans := NewX86(mem, nil)
	paddr, err := trans.Translate(0x00403025, dirbase)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if paddr != 0x5025 {
		t.Errorf("Translate = %#x, want 0x5025", paddr)
	}
}

func TestX86PAETranslate(t *testing.T) {
	// vaddr 0x40403025: pdpi=1 pdi=2 pti=3 offset=0x25.
	const dirbase = 0x0
	mem := testMemory(0x6000, map[uint64]uint64{
		dirbase + 1*8: 0x1000 | 0x01,
		0x1000 + 2*8:  0x2000 | 0x63,
		0x2000 + 3*8:  0x5000 | 0x01,
	}, true)

	trans := NewX86PAE(mem, nil)
	paddr, err := trans.Translate(0x40403025, dirbase)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if paddr != 0x5025 {
		t.Errorf("Translate = %#x, want 0x5025", paddr)
	}
}

func TestX86PAEHighDwordIgnored(t *testing.T) {
	// Physical address bits above 32 in a PAE entry are out of the
	// model; only the low dword participates.
	const dirbase = 0x0
	mem := testMemory(0x6000, map[uint64]uint64{
		dirbase: 0xdeadbeef00001000 | 0x01,
		0x1000:  0x2000 | 0x01,
		0x2000:  0x5000 | 0x01,
	}, true)

	trans := NewX86PAE(mem, nil)
	paddr, err := trans.Translate(0x25, dirbase)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if paddr != 0x5025 {
		t.Errorf("Translate = %#x, want 0x5025", paddr)
	}
}

func TestTranslateError(t *testing.T) {
	// The page directory entry for pdi=0x3ff is outside the tiny image,
	// so translation fails with a TranslationError wrapping the read
	// error.
	mem := dump.NewFlatSource(bytes.NewReader(make([]byte, 8)), 0, 0)
	trans := NewX86(mem, nil)

	_, err := trans.Translate(0xffc00000, 0)
	var terr *TranslationError
	if !errors.As(err, &terr) {
		t.Fatalf("error = %v, want TranslationError", err)
	}
	if terr.VirtAddr != 0xffc00000 {
		t.Errorf("TranslationError.VirtAddr = %#x, want 0xffc00000", terr.VirtAddr)
	}
	var oor dump.OutOfRangeError
	if !errors.As(err, &oor) {
		t.Errorf("TranslationError does not wrap the underlying OutOfRangeError: %v", err)
	}
}

func TestTranslateDebugLog(t *testing.T) {
	const dirbase = 0x1000
	mem := testMemory(0x6000, map[uint64]uint64{
		dirbase + 1*4: 0x2000,
		0x2000 + 3*4:  0x5000,
	}, false)

	var lines int
	logfn := func(fmt string, args ...interface{}) { lines++ }
	trans := NewX86(mem, logfn)
	paddr, err := trans.Translate(0x00403025, dirbase)
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if paddr != 0x5025 {
		t.Errorf("debug logging changed the result: %#x", paddr)
	}
	if lines == 0 {
		t.Error("logfn was never called")
	}
}
