package dump

import (
	"bytes"
	"errors"
	"testing"
)

func TestFlatSourceRead(t *testing.T) {
	data := make([]byte, 256)
	for i := range data {
		data[i] = byte(i)
	}
	src := NewFlatSource(bytes.NewReader(data), 0x39000, 0x8046e458)

	buf := make([]byte, 4)
	if _, err := src.ReadMemory(buf, 16); err != nil {
		t.Fatalf("ReadMemory: %v", err)
	}
	if want := []byte{16, 17, 18, 19}; !bytes.Equal(buf, want) {
		t.Errorf("ReadMemory(16) = %v, want %v", buf, want)
	}

	if src.DirBase() != 0x39000 || src.ProcessListHead() != 0x8046e458 {
		t.Errorf("header fields not preserved: %#x %#x", src.DirBase(), src.ProcessListHead())
	}
}

func TestFlatSourceOutOfRange(t *testing.T) {
	src := NewFlatSource(bytes.NewReader(make([]byte, 64)), 0, 0)

	buf := make([]byte, 16)
	_, err := src.ReadMemory(buf, 100)
	var oor OutOfRangeError
	if !errors.As(err, &oor) {
		t.Fatalf("error = %v, want OutOfRangeError", err)
	}

	// A read straddling the end of the image is short and also fails.
	_, err = src.ReadMemory(buf, 56)
	if !errors.As(err, &oor) {
		t.Fatalf("straddling read error = %v, want OutOfRangeError", err)
	}
}
