//go:build linux || darwin
// +build linux darwin

package dump

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// mmapSource is a FlatSource variant that maps the whole image into
// memory instead of issuing positioned reads. Reads become plain copies,
// which helps when the walker revisits the same page tables many times.
type mmapSource struct {
	data     []byte
	dirbase  uint64
	listHead uint32
}

// OpenFlatMmap memory-maps the raw image at path.
func OpenFlatMmap(path string, dirbase uint64, listHead uint32) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if fi.Size() == 0 {
		return nil, fmt.Errorf("%s: cannot map an empty image", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(fi.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("mmap %s: %v", path, err)
	}
	return &mmapSource{data: data, dirbase: dirbase, listHead: listHead}, nil
}

func (s *mmapSource) ReadMemory(buf []byte, addr uint64) (int, error) {
	if addr >= uint64(len(s.data)) {
		return 0, OutOfRangeError{Addr: addr}
	}
	n := copy(buf, s.data[addr:])
	if n < len(buf) {
		return n, OutOfRangeError{Addr: addr + uint64(n)}
	}
	return n, nil
}

func (s *mmapSource) DirBase() uint64 { return s.dirbase }

func (s *mmapSource) ProcessListHead() uint32 { return s.listHead }

func (s *mmapSource) Close() error {
	data := s.data
	s.data = nil
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
