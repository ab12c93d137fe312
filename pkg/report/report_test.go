package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/crashview/crashview/pkg/winnt"
)

func testProcs() []winnt.EProcess {
	return []winnt.EProcess{
		{
			Base:       0x02a3f020,
			Pid:        4,
			ImageName:  "System",
			CreateTime: time.Date(2004, time.February, 29, 10, 30, 0, 0, time.UTC),
		},
		{
			Base:       0x02b11020,
			Pid:        368,
			ImageName:  "smss.exe",
			CreateTime: time.Date(2004, time.February, 29, 10, 30, 5, 0, time.UTC),
			ExitTime:   time.Date(2004, time.March, 1, 8, 0, 0, 0, time.UTC),
		},
	}
}

func TestPsListTable(t *testing.T) {
	var buf bytes.Buffer
	if err := PsList(&buf, testProcs(), nil); err != nil {
		t.Fatalf("PsList: %v", err)
	}
	out := buf.String()

	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) != 4 {
		t.Fatalf("got %d lines, want 4 (header, rule, two rows):\n%s", len(lines), out)
	}
	for _, want := range []string{"PID", "Name", "Create Time", "Exit Time"} {
		if !strings.Contains(lines[0], want) {
			t.Errorf("header %q is missing column %q", lines[0], want)
		}
	}
	if !strings.Contains(lines[2], "System") || !strings.Contains(lines[2], "2004-02-29 10:30:00.000000") {
		t.Errorf("row for System malformed: %q", lines[2])
	}
	if !strings.Contains(lines[3], "smss.exe") || !strings.Contains(lines[3], "2004-03-01 08:00:00.000000") {
		t.Errorf("row for smss.exe malformed: %q", lines[3])
	}
	// A process that never exited renders an empty exit time, not a
	// zero date.
	if strings.Contains(lines[2], "1601") || strings.Contains(lines[2], "0001") {
		t.Errorf("running process shows an exit time: %q", lines[2])
	}
}

func TestPsListColumnSelection(t *testing.T) {
	var buf bytes.Buffer
	if err := PsList(&buf, testProcs(), []string{"base", "pid"}); err != nil {
		t.Fatalf("PsList: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "0x2a3f020") {
		t.Errorf("base column missing:\n%s", out)
	}
	if strings.Contains(out, "System") {
		t.Errorf("unselected column rendered:\n%s", out)
	}
}

func TestPsListUnknownColumn(t *testing.T) {
	var buf bytes.Buffer
	if err := PsList(&buf, testProcs(), []string{"pid", "threads"}); err == nil {
		t.Fatal("expected an error for an unknown column")
	}
}
