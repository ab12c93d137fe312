package dump

// Package dump provides read-only access to physical memory images.
// Two on-disk formats are supported: raw images, where the byte at file
// offset N is the byte at physical address N, and Windows 32-bit kernel
// crash dumps, where physical memory is stored as a packed sequence of
// runs described by the dump header.

import (
	"fmt"
	"io"
	"os"
)

// MemoryReader reads bytes from a physical address space.
type MemoryReader interface {
	// ReadMemory is just like io.ReaderAt.ReadAt.
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// Source is a memory image opened for analysis. The translation root and
// the process list head are captured once, when the source is opened.
type Source interface {
	MemoryReader
	io.Closer

	// DirBase returns the physical address of the top-level paging
	// structure of the kernel address space.
	DirBase() uint64

	// ProcessListHead returns the virtual address of the head of the
	// active process list.
	ProcessListHead() uint32
}

// OutOfRangeError is returned when a physical address is not covered by
// the image.
type OutOfRangeError struct {
	Addr uint64
}

func (err OutOfRangeError) Error() string {
	return fmt.Sprintf("physical address %#x is not covered by the image", err.Addr)
}

// FlatSource is a raw memory image. It has no header; the translation
// root and the process list head must be supplied by the caller.
type FlatSource struct {
	r        io.ReaderAt
	closer   io.Closer
	dirbase  uint64
	listHead uint32
}

// NewFlatSource returns a FlatSource reading from r.
func NewFlatSource(r io.ReaderAt, dirbase uint64, listHead uint32) *FlatSource {
	return &FlatSource{r: r, dirbase: dirbase, listHead: listHead}
}

// OpenFlat opens the raw memory image at path.
func OpenFlat(path string, dirbase uint64, listHead uint32) (*FlatSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s := NewFlatSource(f, dirbase, listHead)
	s.closer = f
	return s, nil
}

// ReadMemory reads len(buf) bytes starting at physical address addr.
func (s *FlatSource) ReadMemory(buf []byte, addr uint64) (int, error) {
	n, err := s.r.ReadAt(buf, int64(addr))
	if err == io.EOF {
		return n, OutOfRangeError{Addr: addr + uint64(n)}
	}
	return n, err
}

// DirBase returns the translation root supplied when the source was opened.
func (s *FlatSource) DirBase() uint64 { return s.dirbase }

// ProcessListHead returns the list head supplied when the source was opened.
func (s *FlatSource) ProcessListHead() uint32 { return s.listHead }

// Close closes the underlying file, if the source owns one.
func (s *FlatSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
