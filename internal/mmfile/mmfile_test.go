package mmfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.bin")
	want := []byte{0xde, 0xad, 0xbe, 0xef, 0x42}
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m, err := Open(path, ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() {
		if err := m.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
	}()
	if m.Len() != len(want) {
		t.Fatalf("len mismatch: got %d want %d", m.Len(), len(want))
	}
	for i, b := range want {
		if m.Bytes()[i] != b {
			t.Fatalf("byte %d mismatch: got 0x%x want 0x%x", i, m.Bytes()[i], b)
		}
	}
}

func TestOpenZeroLength(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m, err := Open(path, ModeRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if m.Len() != 0 {
		t.Fatalf("expected zero-length mapping, got %d", m.Len())
	}
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestOpenReadWriteWritesBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rw.bin")
	if err := os.WriteFile(path, []byte("abcd"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	m, err := Open(path, ModeReadWrite)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	m.Bytes()[0] = 'X'
	if err := m.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "Xbcd" {
		t.Fatalf("got %q want %q", got, "Xbcd")
	}
}

func TestOpenMissing(t *testing.T) {
	if _, err := Open(filepath.Join(t.TempDir(), "missing"), ModeRead); !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}
