package winnt

import (
	"fmt"

	"github.com/crashview/crashview/pkg/dump"
	"github.com/crashview/crashview/pkg/paging"
)

// DefaultMaxProcesses bounds a single traversal of the process list. A
// corrupted image can splice the list into a loop that never revisits
// the head; the bound turns that into an error instead of a hang.
const DefaultMaxProcesses = 4096

// CorruptListError is returned when the active process list does not
// link back to its head.
type CorruptListError struct {
	Node   uint32
	Count  int
	Reason string
}

func (err CorruptListError) Error() string {
	return fmt.Sprintf("corrupt process list at node %#x after %d records: %s", err.Node, err.Count, err.Reason)
}

// Walker reconstructs the active process list by following the
// ActiveProcessLinks chain through virtual memory.
type Walker struct {
	mem   dump.MemoryReader
	trans paging.Translator

	// MaxProcesses bounds the traversal; zero or negative means
	// DefaultMaxProcesses.
	MaxProcesses int

	logfn func(fmt string, args ...interface{})
}

// NewWalker returns a walker reading records from mem through trans.
// logfn, if non-nil, receives one line per visited record.
func NewWalker(mem dump.MemoryReader, trans paging.Translator, logfn func(fmt string, args ...interface{})) *Walker {
	return &Walker{mem: mem, trans: trans, MaxProcesses: DefaultMaxProcesses, logfn: logfn}
}

// PsList reconstructs the active process list of src, using the list
// head and translation root captured when the source was opened. The
// head itself is a bare list node, not a process, and is not returned.
func PsList(src dump.Source, trans paging.Translator) ([]EProcess, error) {
	return NewWalker(src, trans, nil).WalkProcessList(src.ProcessListHead(), src.DirBase())
}

// WalkProcessList follows the circular process list starting at the list
// node at virtual address head and returns the decoded records in link
// order. Any translation, read or decode failure aborts the walk; no
// partial list is returned.
func (w *Walker) WalkProcessList(head uint32, dirbase uint64) ([]EProcess, error) {
	node, err := w.readListEntry(head, dirbase)
	if err != nil {
		return nil, err
	}

	max := w.MaxProcesses
	if max <= 0 {
		max = DefaultMaxProcesses
	}

	seen := make(map[uint32]bool)
	var procs []EProcess
	raw := make([]byte, EProcessSize)
	for node.Flink != head {
		if seen[node.Flink] {
			return nil, CorruptListError{Node: node.Flink, Count: len(procs), Reason: "node visited twice without reaching the list head"}
		}
		if len(procs) >= max {
			return nil, CorruptListError{Node: node.Flink, Count: len(procs), Reason: fmt.Sprintf("more than %d records", max)}
		}
		seen[node.Flink] = true

		// The link points at the embedded list node; the record
		// starts ActiveProcessLinksOffset bytes before it.
		base := node.Flink - ActiveProcessLinksOffset
		paddr, err := w.trans.Translate(base, dirbase)
		if err != nil {
			return nil, err
		}
		if _, err := w.mem.ReadMemory(raw, paddr); err != nil {
			return nil, err
		}
		proc, err := DecodeEProcess(raw, paddr)
		if err != nil {
			return nil, err
		}
		if w.logfn != nil {
			w.logfn("record %d: pid:%d name:%q base:%#x flink:%#x", len(procs), proc.Pid, proc.ImageName, proc.Base, proc.ActiveProcessLinks.Flink)
		}
		procs = append(procs, proc)
		node = proc.ActiveProcessLinks
	}
	return procs, nil
}

func (w *Walker) readListEntry(vaddr uint32, dirbase uint64) (ListEntry, error) {
	paddr, err := w.trans.Translate(vaddr, dirbase)
	if err != nil {
		return ListEntry{}, err
	}
	var raw [ListEntrySize]byte
	if _, err := w.mem.ReadMemory(raw[:], paddr); err != nil {
		return ListEntry{}, err
	}
	return DecodeListEntry(raw[:]), nil
}
