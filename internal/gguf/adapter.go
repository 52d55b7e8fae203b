package gguf

import (
	"errors"
	"fmt"

	"github.com/thornfield-ai/splitloader/internal/bytesource"
	"github.com/thornfield-ai/splitloader/internal/splitload"
)

var errNoBackingPath = errors.New("gguf: disk source has no backing path")

// containerAdapter satisfies splitload.Container over a GGUF file, giving
// the split loader a second concrete container format to drive through the
// exact same contract mcfstore.Parse implements for MCF.
type containerAdapter struct {
	f *File
}

// Parse implements splitload.ParseFunc for the GGUF container format.
func Parse(bs bytesource.ByteSource) (splitload.Container, error) {
	f, err := openFromByteSource(bs)
	if err != nil {
		return nil, err
	}
	return &containerAdapter{f: f}, nil
}

func (c *containerAdapter) TensorNames() []string {
	names := make([]string, len(c.f.Tensors))
	for i, t := range c.f.Tensors {
		names[i] = t.Name
	}
	return names
}

func (c *containerAdapter) TensorMeta(name string) (splitload.TensorMeta, bool) {
	info, ok := c.f.TensorByName(name)
	if !ok {
		return splitload.TensorMeta{}, false
	}
	n, err := tensorElements(info.Dims)
	if err != nil {
		return splitload.TensorMeta{}, false
	}
	size, err := tensorByteSize(info.Type, n)
	if err != nil {
		return splitload.TensorMeta{}, false
	}
	return splitload.TensorMeta{
		Name:     name,
		Shape:    info.Dims,
		DataSize: uint64(size),
		DType:    uint32(info.Type),
	}, true
}

func (c *containerAdapter) SplitIndex() (index, count int, ok bool) {
	return c.f.SplitIndex()
}

// TensorBytes implements splitload.ByteMaterializer: Q4_K and Q6_K tensors
// are dequantized to float32 and re-encoded little-endian; every other type
// goes through ReadTensorRaw, which hands back F32/F16 bytes as stored and
// fails for any other type.
func (c *containerAdapter) TensorBytes(name string) ([]byte, []uint64, uint32, error) {
	info, ok := c.f.TensorByName(name)
	if !ok {
		return nil, nil, 0, fmt.Errorf("gguf: tensor not found: %s", name)
	}
	switch info.Type {
	case GGMLTypeQ4_K, GGMLTypeQ6_K:
		floats, dims, err := ReadTensorF32(c.f, name)
		if err != nil {
			return nil, nil, 0, err
		}
		return float32sToBytes(floats), dims, uint32(info.Type), nil
	default:
		raw, dims, typ, err := ReadTensorRaw(c.f, name)
		if err != nil {
			return nil, nil, 0, err
		}
		return raw, dims, uint32(typ), nil
	}
}

func openFromByteSource(bs bytesource.ByteSource) (*File, error) {
	if d, ok := bs.(*bytesource.DiskSource); ok {
		if d.Path() == "" {
			return nil, errNoBackingPath
		}
		return Open(d.Path())
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
	return ParseBuffer(buf)
}
