package report

// Package report renders process lists as fixed-width tables.

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/crashview/crashview/pkg/winnt"
)

// DefaultColumns is the column set used when no selection is configured.
var DefaultColumns = []string{"pid", "name", "create", "exit"}

type column struct {
	header string
	value  func(p *winnt.EProcess) string
}

var columns = map[string]column{
	"pid": {"PID", func(p *winnt.EProcess) string {
		return strconv.FormatUint(uint64(p.Pid), 10)
	}},
	"name": {"Name", func(p *winnt.EProcess) string {
		return p.ImageName
	}},
	"create": {"Create Time", func(p *winnt.EProcess) string {
		return formatTime(p.CreateTime)
	}},
	"exit": {"Exit Time", func(p *winnt.EProcess) string {
		return formatTime(p.ExitTime)
	}},
	"base": {"Base", func(p *winnt.EProcess) string {
		return fmt.Sprintf("%#x", p.Base)
	}},
	"dirbase": {"DirBase", func(p *winnt.EProcess) string {
		return fmt.Sprintf("%#x", p.Pcb.DirectoryTableBase)
	}},
}

// PsList writes procs to w as a table, one row per process. cols selects
// and orders the columns; nil or empty means DefaultColumns.
func PsList(w io.Writer, procs []winnt.EProcess, cols []string) error {
	if len(cols) == 0 {
		cols = DefaultColumns
	}
	selected := make([]column, len(cols))
	for i, name := range cols {
		col, ok := columns[name]
		if !ok {
			return fmt.Errorf("unknown pslist column %q", name)
		}
		selected[i] = col
	}

	tw := tabwriter.NewWriter(w, 2, 8, 2, ' ', 0)
	headers := make([]string, len(selected))
	rules := make([]string, len(selected))
	for i, col := range selected {
		headers[i] = col.header
		rules[i] = strings.Repeat("-", len(col.header))
	}
	fmt.Fprintln(tw, strings.Join(headers, "\t"))
	fmt.Fprintln(tw, strings.Join(rules, "\t"))

	row := make([]string, len(selected))
	for i := range procs {
		for j, col := range selected {
			row[j] = col.value(&procs[i])
		}
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	return tw.Flush()
}

// formatTime renders a decoded FILETIME; the zero time means the event
// never happened and renders empty.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05.000000")
}
