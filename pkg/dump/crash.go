package dump

// Windows 32-bit kernel crash dumps start with a one-page header whose
// physical memory descriptor lists the runs of physical memory saved to
// the file. The runs are stored back to back immediately after the
// header, in the order they are declared, even though the physical
// ranges they describe usually have gaps between them.
//
// The layout of the header is described (for the 64-bit variant) in the
// _DMP_HEADER structure; the fields consumed here are the 32-bit ones:
// the DirectoryTableBase at 0x10, PsActiveProcessHead at 0x1c and the
// _PHYSICAL_MEMORY_DESCRIPTOR at 0x64.

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	pageSize   = 4096
	headerSize = 4096

	crashSignature = 0x45474150 // 'PAGE'
	crashValidDump = 0x504d5544 // 'DUMP'

	dirBaseOff     = 0x10
	listHeadOff    = 0x1c
	runTableOff    = 0x64
	runTableEndOff = 0x320
)

// ErrNotACrashDump is the error returned when the file being opened does
// not carry the crash dump header signature.
type ErrNotACrashDump struct {
	what string
	got  uint32
}

func (err ErrNotACrashDump) Error() string {
	return fmt.Sprintf("not a crash dump, invalid %s %#x", err.what, err.got)
}

// headerBuf is a cursor over the raw dump header. Decoding functions
// record the first error encountered and every subsequent read returns
// zero, so a sequence of reads only needs one error check at the end.
type headerBuf struct {
	buf []byte
	off int
	err error
	ctx string
}

func (b *headerBuf) u32() uint32 {
	const stride = 4
	if b.err != nil {
		return 0
	}
	if b.off+stride > len(b.buf) {
		b.err = fmt.Errorf("crash dump header truncated at offset %#x while %s", b.off, b.ctx)
		return 0
	}
	r := binary.LittleEndian.Uint32(b.buf[b.off : b.off+stride])
	b.off += stride
	return r
}

// Extent maps a physically contiguous, page-aligned range of the target
// address space to the byte range of the dump file that stores it.
type Extent struct {
	FileOffset int64
	PhysStart  uint64
	Length     uint64
}

// CrashSource is a memory image stored in the Windows 32-bit kernel
// crash dump format.
type CrashSource struct {
	r        io.ReaderAt
	closer   io.Closer
	dirbase  uint64
	listHead uint32
	extents  []Extent
}

// OpenCrash opens the crash dump at path. logfn, if non-nil, receives
// diagnostics while the header is parsed.
func OpenCrash(path string, logfn func(fmt string, args ...interface{})) (*CrashSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	s, err := NewCrashSource(f, logfn)
	if err != nil {
		f.Close()
		return nil, err
	}
	s.closer = f
	return s, nil
}

// NewCrashSource parses the crash dump header read from r and returns a
// source resolving physical addresses through its run table.
func NewCrashSource(r io.ReaderAt, logfn func(fmt string, args ...interface{})) (*CrashSource, error) {
	hdr := make([]byte, headerSize)
	if _, err := r.ReadAt(hdr, 0); err != nil {
		return nil, fmt.Errorf("reading crash dump header: %v", err)
	}

	buf := &headerBuf{buf: hdr, ctx: "reading signature"}
	if sig := buf.u32(); sig != crashSignature {
		return nil, ErrNotACrashDump{"signature", sig}
	}
	if tag := buf.u32(); tag != crashValidDump {
		return nil, ErrNotACrashDump{"valid dump tag", tag}
	}

	s := &CrashSource{r: r}

	buf.off, buf.ctx = dirBaseOff, "reading directory table base"
	s.dirbase = uint64(buf.u32())
	buf.off, buf.ctx = listHeadOff, "reading process list head"
	s.listHead = buf.u32()

	buf.off, buf.ctx = runTableOff, "reading physical memory descriptor"
	runCount := buf.u32()
	lastPage := buf.u32()
	if buf.err != nil {
		return nil, buf.err
	}

	if logfn != nil {
		logfn("Crash dump header")
		logfn("DirBase: %#x", s.dirbase)
		logfn("PsActiveProcessHead: %#x", s.listHead)
		logfn("Runs: %d (last page %#x)", runCount, lastPage)
	}

	fileOff := int64(headerSize)
	for i := uint32(0); i < runCount; i++ {
		buf.ctx = fmt.Sprintf("reading run %d", i)
		if buf.off+8 > runTableEndOff {
			return nil, fmt.Errorf("crash dump header declares %d runs, more than the descriptor can hold", runCount)
		}
		page := buf.u32()
		count := buf.u32()
		if buf.err != nil {
			return nil, buf.err
		}
		ext := Extent{
			FileOffset: fileOff,
			PhysStart:  uint64(page) * pageSize,
			Length:     uint64(count) * pageSize,
		}
		if n := len(s.extents); n > 0 {
			prev := s.extents[n-1]
			if ext.PhysStart < prev.PhysStart+prev.Length {
				return nil, fmt.Errorf("crash dump run %d at %#x overlaps or precedes the previous run", i, ext.PhysStart)
			}
		}
		if logfn != nil {
			logfn("Run %d: phys:%#x len:%#x file offset:%#x", i, ext.PhysStart, ext.Length, ext.FileOffset)
		}
		s.extents = append(s.extents, ext)
		fileOff += int64(ext.Length)
	}

	return s, nil
}

// ReadMemory reads len(buf) bytes starting at physical address addr.
// The read must be contained in a single run; a read whose tail would
// cross into the gap after a run fails with OutOfRangeError instead of
// returning the next run's bytes.
func (s *CrashSource) ReadMemory(buf []byte, addr uint64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	for i := range s.extents {
		ext := &s.extents[i]
		if ext.PhysStart > addr {
			// Extents are sorted by physical start, no extent
			// further down the table can contain addr.
			break
		}
		end := ext.PhysStart + ext.Length
		if addr >= end {
			continue
		}
		if addr+uint64(len(buf)) > end {
			return 0, OutOfRangeError{Addr: end}
		}
		return s.r.ReadAt(buf, ext.FileOffset+int64(addr-ext.PhysStart))
	}
	return 0, OutOfRangeError{Addr: addr}
}

// DirBase returns the translation root recorded in the dump header.
func (s *CrashSource) DirBase() uint64 { return s.dirbase }

// ProcessListHead returns the head of the active process list recorded
// in the dump header.
func (s *CrashSource) ProcessListHead() uint32 { return s.listHead }

// Extents returns the run table built from the dump header, sorted by
// physical start address.
func (s *CrashSource) Extents() []Extent { return s.extents }

// Close closes the underlying file, if the source owns one.
func (s *CrashSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// WriteRaw converts src to the flat raw format by replaying every run in
// order, zero-filling the physical gaps between them. The byte at offset
// N of the output is the byte at physical address N.
func WriteRaw(src *CrashSource, w io.Writer) error {
	zero := make([]byte, pageSize)
	page := make([]byte, pageSize)
	var pos uint64
	for _, ext := range src.extents {
		for pos < ext.PhysStart {
			if _, err := w.Write(zero); err != nil {
				return err
			}
			pos += pageSize
		}
		for off := uint64(0); off < ext.Length; off += pageSize {
			if _, err := src.ReadMemory(page, ext.PhysStart+off); err != nil {
				return err
			}
			if _, err := w.Write(page); err != nil {
				return err
			}
			pos += pageSize
		}
	}
	return nil
}
