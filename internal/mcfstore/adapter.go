package mcfstore

import (
	"errors"

	"github.com/thornfield-ai/splitloader/internal/bytesource"
	"github.com/thornfield-ai/splitloader/internal/splitload"
	"github.com/thornfield-ai/splitloader/pkg/mcf"
)

var (
	errNoBackingPath      = errors.New("mcfstore: disk source has no backing path")
	errMissingTensorIndex = errors.New("mcfstore: missing tensor index section")
	errMissingTensorData  = errors.New("mcfstore: missing tensor data section")
)

// containerAdapter satisfies splitload.Container over an MCF file already
// opened from a positional ByteSource.
type containerAdapter struct {
	f     *File
	names []string
}

// Parse implements splitload.ParseFunc for the MCF container format. The
// split loader only ever needs positional reads to get to the header and
// section directory; for disk-backed sources this opens the file a second
// time under the hood via mcf.Open's own mmap-first path; for buffer/future
// sources it parses the bytes already resident in memory.
func Parse(bs bytesource.ByteSource) (splitload.Container, error) {
	f, err := openFromByteSource(bs)
	if err != nil {
		return nil, err
	}
	return &containerAdapter{f: f, names: f.TensorNames()}, nil
}

func (c *containerAdapter) TensorNames() []string { return c.names }

func (c *containerAdapter) TensorMeta(name string) (splitload.TensorMeta, bool) {
	info, err := c.f.Tensor(name)
	if err != nil {
		return splitload.TensorMeta{}, false
	}
	shape := make([]uint64, len(info.Shape))
	for i, d := range info.Shape {
		shape[i] = uint64(d)
	}
	return splitload.TensorMeta{
		Name:     name,
		Shape:    shape,
		DataSize: info.DataSize,
		DType:    uint32(info.DType),
	}, true
}

func (c *containerAdapter) SplitIndex() (index, count int, ok bool) {
	return c.f.SplitIndex()
}

// TensorBytes implements splitload.ByteMaterializer: bf16/f16 payloads are
// expanded to float32 and re-encoded little-endian; f32 payloads are handed
// back as their raw on-disk bytes untouched.
func (c *containerAdapter) TensorBytes(name string) ([]byte, []uint64, uint32, error) {
	info, err := c.f.Tensor(name)
	if err != nil {
		return nil, nil, 0, err
	}
	shape := make([]uint64, len(info.Shape))
	for i, d := range info.Shape {
		shape[i] = uint64(d)
	}
	if info.DType == mcf.DTypeF32 {
		raw, _, err := c.f.ReadTensorRaw(name)
		if err != nil {
			return nil, nil, 0, err
		}
		return raw, shape, uint32(info.DType), nil
	}
	vals, _, err := c.f.ReadTensorF32(name)
	if err != nil {
		return nil, nil, 0, err
	}
	return float32sToBytes(vals), shape, uint32(info.DType), nil
}

// openFromByteSource adapts a generic positional ByteSource to mcf.Open's
// path-based API. Disk-backed sources are reopened by path so mcf's own
// mmap fast path still applies; buffer and future sources are read fully
// and parsed in place, matching the container contract's "no-alloc mode"
// requirement only for the disk case (buffers are already materialized, so
// there is nothing left to avoid allocating).
func openFromByteSource(bs bytesource.ByteSource) (*File, error) {
	if d, ok := bs.(*bytesource.DiskSource); ok {
		return openDiskSource(d)
	}
	size := bs.Size()
	if _, err := bs.Seek(0, 0); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if size > 0 {
		if _, err := bs.Read(buf); err != nil {
			return nil, err
		}
	}
	return openFromBuffer(buf)
}

func openDiskSource(d *bytesource.DiskSource) (*File, error) {
	if d.Path() == "" {
		return nil, errNoBackingPath
	}
	return Open(d.Path())
}

func openFromBuffer(buf []byte) (*File, error) {
	mf, err := mcf.ParseBuffer(buf)
	if err != nil {
		return nil, err
	}
	indexSec := mf.Section(mcf.SectionTensorIndex)
	if indexSec == nil {
		return nil, errMissingTensorIndex
	}
	indexData := mf.SectionData(indexSec)
	index, err := mcf.ParseTensorIndexSection(indexData)
	if err != nil {
		return nil, err
	}
	dataSec := mf.Section(mcf.SectionTensorData)
	if dataSec == nil {
		return nil, errMissingTensorData
	}
	return &File{file: mf, index: index, dataSect: dataSec}, nil
}
