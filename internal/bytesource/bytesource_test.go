package bytesource

import (
	"io"
	"os"
	"path/filepath"
	"testing"
)

func TestDiskSourceReadSeek(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "data.bin")
	want := []byte("hello, split loader")
	if err := os.WriteFile(path, want, 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	d, err := OpenDisk(path)
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}
	defer d.Close()

	if d.Size() != int64(len(want)) {
		t.Fatalf("Size() = %d, want %d", d.Size(), len(want))
	}
	if d.Path() != path {
		t.Fatalf("Path() = %q, want %q", d.Path(), path)
	}

	got := make([]byte, len(want))
	if _, err := d.Read(got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("Read = %q, want %q", got, want)
	}

	if _, err := d.Seek(7, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	rest := make([]byte, len(want)-7)
	if _, err := d.Read(rest); err != nil {
		t.Fatalf("Read after seek: %v", err)
	}
	if string(rest) != string(want[7:]) {
		t.Fatalf("Read after seek = %q, want %q", rest, want[7:])
	}
}

func TestDiskSourceReadPastEndIsShort(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "small.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	d, err := OpenDisk(path)
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}
	defer d.Close()

	buf := make([]byte, 10)
	if _, err := d.Read(buf); err != ErrIoShort {
		t.Fatalf("Read past end = %v, want ErrIoShort", err)
	}
}

func TestDiskSourceSeekPastEndIsRange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "small.bin")
	if err := os.WriteFile(path, []byte("abc"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	d, err := OpenDisk(path)
	if err != nil {
		t.Fatalf("OpenDisk: %v", err)
	}
	defer d.Close()

	if _, err := d.Seek(10, io.SeekStart); err != ErrIoRange {
		t.Fatalf("Seek past end = %v, want ErrIoRange", err)
	}
	if _, err := d.Seek(-1, io.SeekStart); err != ErrIoRange {
		t.Fatalf("Seek negative = %v, want ErrIoRange", err)
	}
}

func TestBufferSourceReadSeek(t *testing.T) {
	t.Parallel()

	b := NewBufferSource([]byte{0, 1, 2, 3, 4, 5, 6, 7})
	if b.FileID() != -1 {
		t.Fatalf("FileID() = %d, want -1 for a buffer source", b.FileID())
	}

	if _, err := b.Seek(4, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	got := make([]byte, 4)
	if _, err := b.Read(got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := []byte{4, 5, 6, 7}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Read = %v, want %v", got, want)
		}
	}

	if _, err := b.Seek(0, io.SeekStart); err != nil {
		t.Fatalf("Seek back to start: %v", err)
	}
	u32, err := b.ReadU32()
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	wantU32 := uint32(0) | uint32(1)<<8 | uint32(2)<<16 | uint32(3)<<24
	if u32 != wantU32 {
		t.Fatalf("ReadU32() = %d, want %d", u32, wantU32)
	}
}

func TestBufferSourceOutOfRange(t *testing.T) {
	t.Parallel()

	b := NewBufferSource([]byte{1, 2, 3})
	if _, err := b.Seek(-1, io.SeekStart); err != ErrIoRange {
		t.Fatalf("Seek negative = %v, want ErrIoRange", err)
	}
	if _, err := b.Read(make([]byte, 4)); err != ErrIoShort {
		t.Fatalf("Read beyond buffer = %v, want ErrIoShort", err)
	}
}
