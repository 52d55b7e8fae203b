// Package bytesource unifies positional reads over disk files, owned memory
// buffers, and buffers that arrive later through a promise registry. It is
// the bottom layer consumed by the split loader: everything above this
// package reads tensor bytes through the ByteSource contract and never cares
// which provenance backs a given split.
package bytesource

import (
	"errors"
	"io"
	"os"
)

// ErrIoShort is returned when a read delivers fewer bytes than requested and
// the source has no more to give (EOF mid-read).
var ErrIoShort = errors.New("bytesource: short read")

// ErrIoRange is returned when a seek would move the cursor outside
// [0, size], or names an unknown whence. Reads past the end report
// ErrIoShort instead.
var ErrIoRange = errors.New("bytesource: out of range")

// maxChunkRead bounds any single disk read syscall so very large tensors
// don't require the OS to service one unbounded read(2).
const maxChunkRead = 64 << 20

// ByteSource is a read-only positional byte stream. Every origin (disk,
// owned buffer, future-delivered buffer) implements this same contract, so
// the split loader never branches on provenance above this package.
type ByteSource interface {
	// Tell returns the current read offset.
	Tell() int64
	// Size returns the total number of bytes available.
	Size() int64
	// Seek moves the read offset. whence follows io.Seeker semantics.
	Seek(offset int64, whence int) (int64, error)
	// Read fills dst completely or returns ErrIoShort.
	Read(dst []byte) (int, error)
	// ReadU32 reads a little-endian uint32 and advances the offset by 4.
	ReadU32() (uint32, error)
	// FileID returns the OS file descriptor backing this source, or -1 if
	// the source has none (buffer-backed). Callers use this to decide
	// whether memory-mapping is possible; mapping a -1 descriptor is a
	// caller error, not something this package guards against.
	FileID() int
}

// DiskSource reads from an open file on disk.
type DiskSource struct {
	f    *os.File
	path string
	size int64
	off  int64
}

// OpenDisk opens path read-only and returns a DiskSource positioned at 0.
func OpenDisk(path string) (*DiskSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &DiskSource{f: f, path: path, size: info.Size()}, nil
}

// Path returns the filesystem path this source was opened from, or "" if it
// was wrapped from an already-open *os.File via NewDiskSource.
func (d *DiskSource) Path() string { return d.path }

// NewDiskSource wraps an already-open file. The caller retains ownership of
// f's lifecycle beyond Close.
func NewDiskSource(f *os.File) (*DiskSource, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return &DiskSource{f: f, size: info.Size()}, nil
}

func (d *DiskSource) Tell() int64 { return d.off }
func (d *DiskSource) Size() int64 { return d.size }

func (d *DiskSource) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = d.off + offset
	case io.SeekEnd:
		target = d.size + offset
	default:
		return 0, ErrIoRange
	}
	if target < 0 || target > d.size {
		return 0, ErrIoRange
	}
	if _, err := d.f.Seek(target, io.SeekStart); err != nil {
		return 0, err
	}
	d.off = target
	return target, nil
}

func (d *DiskSource) Read(dst []byte) (int, error) {
	if d.off+int64(len(dst)) > d.size {
		return 0, ErrIoShort
	}
	total := 0
	for total < len(dst) {
		chunk := len(dst) - total
		if chunk > maxChunkRead {
			chunk = maxChunkRead
		}
		n, err := d.f.Read(dst[total : total+chunk])
		total += n
		d.off += int64(n)
		if err != nil {
			if err == io.EOF && total == len(dst) {
				break
			}
			return total, ErrIoShort
		}
		if n == 0 {
			return total, ErrIoShort
		}
	}
	if total != len(dst) {
		return total, ErrIoShort
	}
	return total, nil
}

func (d *DiskSource) ReadU32() (uint32, error) {
	var buf [4]byte
	if _, err := d.Read(buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

func (d *DiskSource) FileID() int { return int(d.f.Fd()) }

// Close releases the underlying file handle. Idempotent.
func (d *DiskSource) Close() error {
	if d.f == nil {
		return nil
	}
	err := d.f.Close()
	d.f = nil
	return err
}

// BufferSource reads from an owned in-memory byte slice. It never has an OS
// file descriptor, so memory-mapping a BufferSource is always refused by the
// caller (FileID returns -1).
type BufferSource struct {
	buf []byte
	off int64
}

// NewBufferSource takes ownership of buf.
func NewBufferSource(buf []byte) *BufferSource {
	return &BufferSource{buf: buf}
}

func (b *BufferSource) Tell() int64 { return b.off }
func (b *BufferSource) Size() int64 { return int64(len(b.buf)) }

func (b *BufferSource) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = b.off + offset
	case io.SeekEnd:
		target = int64(len(b.buf)) + offset
	default:
		return 0, ErrIoRange
	}
	if target < 0 || target > int64(len(b.buf)) {
		return 0, ErrIoRange
	}
	b.off = target
	return target, nil
}

func (b *BufferSource) Read(dst []byte) (int, error) {
	if b.off+int64(len(dst)) > int64(len(b.buf)) {
		return 0, ErrIoShort
	}
	n := copy(dst, b.buf[b.off:b.off+int64(len(dst))])
	b.off += int64(n)
	return n, nil
}

func (b *BufferSource) ReadU32() (uint32, error) {
	var buf [4]byte
	if _, err := b.Read(buf[:]); err != nil {
		return 0, err
	}
	return uint32(buf[0]) | uint32(buf[1])<<8 | uint32(buf[2])<<16 | uint32(buf[3])<<24, nil
}

func (b *BufferSource) FileID() int { return -1 }
