//go:build linux

package memfd

import (
	"os"
	"testing"
)

func tempFD(t *testing.T, contents []byte) int {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "memfd-test")
	if err != nil {
		t.Fatalf("CreateTemp: %v", err)
	}
	if _, err := f.Write(contents); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	return int(f.Fd())
}

func TestRegisterAndReadBlock(t *testing.T) {
	p := New()
	data := make([]byte, 65536)
	for i := range data {
		data[i] = byte(i)
	}
	fd := tempFD(t, data)

	if err := p.Register(42, dup(t, fd)); err != nil {
		t.Fatalf("Register: %v", err)
	}

	block, err := p.ReadBlock(42, 0, 1152)
	if err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}
	for i, b := range block {
		if b != byte(i) {
			t.Fatalf("byte %d mismatch: got %d want %d", i, b, byte(i))
		}
	}
}

func TestReadBlockRejectsOutOfBounds(t *testing.T) {
	p := New()
	fd := tempFD(t, make([]byte, 100))
	if err := p.Register(1, dup(t, fd)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := p.ReadBlock(1, 90, 20); err == nil {
		t.Fatalf("expected out-of-bounds error")
	}
}

func TestReadBlockRejectsZeroLength(t *testing.T) {
	p := New()
	fd := tempFD(t, make([]byte, 100))
	if err := p.Register(1, dup(t, fd)); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := p.ReadBlock(1, 0, 0); err == nil {
		t.Fatalf("expected zero-length rejection")
	}
}

func TestRegisterRejectsEmptyFile(t *testing.T) {
	p := New()
	fd := tempFD(t, nil)
	if err := p.Register(1, dup(t, fd)); err == nil {
		t.Fatalf("expected empty-file rejection")
	}
}

func TestReadBlockUnregisteredShmID(t *testing.T) {
	p := New()
	if _, err := p.ReadBlock(99, 0, 10); err == nil {
		t.Fatalf("expected unregistered shm-id error")
	}
}

func TestRegisterReplacesAndClosesPriorEntry(t *testing.T) {
	p := New()
	fd1 := tempFD(t, make([]byte, 10))
	fd2 := tempFD(t, make([]byte, 20))
	if err := p.Register(1, dup(t, fd1)); err != nil {
		t.Fatalf("Register fd1: %v", err)
	}
	if err := p.Register(1, dup(t, fd2)); err != nil {
		t.Fatalf("Register fd2: %v", err)
	}
	if _, err := p.ReadBlock(1, 0, 20); err != nil {
		t.Fatalf("expected second registration active: %v", err)
	}
	p.Close()
}

// dup duplicates fd so the pool takes ownership of its own copy while the
// test's *os.File cleanup closes the original independently.
func dup(t *testing.T, fd int) int {
	t.Helper()
	nfd, err := dupFD(fd)
	if err != nil {
		t.Fatalf("dup: %v", err)
	}
	return nfd
}
