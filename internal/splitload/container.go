// Package splitload orchestrates loading of an unknown number of split
// segments in dependency order, keyed by tensor name. It is grounded almost
// directly on llama.cpp's SplitLoad / IncrementalSplitsTensorLoad
// (original_source/src/llama-model-load.cpp): SplitDescriptor here plays the
// role of SplitLoad, Controller plays IncrementalSplitsTensorLoad.
package splitload

import "github.com/thornfield-ai/splitloader/internal/bytesource"

// TensorMeta is the per-tensor metadata a container format hands back for a
// tensor name: shape, on-disk size, and an opaque element-type tag the
// model-construction layer interprets.
type TensorMeta struct {
	Name     string
	Shape    []uint64
	DataSize uint64
	DType    uint32
}

// Container is the black-box contract this package consumes from whichever
// container format is in play (MCF, GGUF, ...): parse once in no-alloc mode,
// then answer per-tensor lookups and report this split's own index.
type Container interface {
	// TensorNames lists every tensor this split's metadata declares.
	TensorNames() []string

	// TensorMeta looks up one tensor's metadata by name.
	TensorMeta(name string) (TensorMeta, bool)

	// SplitIndex reports the split's own declared index and the total
	// split count, if the container records them. ok is false for
	// single-split containers that carry no split KV pair.
	SplitIndex() (index, count int, ok bool)
}

// ParseFunc parses a container's metadata from a positional ByteSource in
// no-alloc mode. Supplied by the caller (internal/mcfstore, internal/gguf,
// ...) so this package stays format-agnostic.
type ParseFunc func(bs bytesource.ByteSource) (Container, error)

// ByteMaterializer is an optional Container capability: formats able to hand
// back a tensor's fully-decoded bytes (dequantizing on the way if the
// on-disk encoding is block-quantized) implement it. Core split tracking
// never depends on it; callers type-assert for it only when they actually
// need tensor data, not just metadata.
type ByteMaterializer interface {
	TensorBytes(name string) ([]byte, []uint64, uint32, error)
}
