package bytesource

import (
	"context"
	"sync"

	"github.com/thornfield-ai/splitloader/internal/registry"
)

// FutureByteSource wraps a registry handle and lazily materializes the
// ByteSource it will delegate to. Extraction is idempotent: the first
// positional operation blocks on the registry until fulfillment, takes
// ownership of the buffer, and caches the resulting ByteSource; every call
// after that reuses the cache without touching the registry again.
type FutureByteSource struct {
	ctx    context.Context
	handle *registry.Handle

	once     sync.Once
	resolved ByteSource
	err      error
}

// NewFuture wraps handle. ctx governs how long the first extraction may
// block; it is not reused once the future has resolved.
func NewFuture(ctx context.Context, handle *registry.Handle) *FutureByteSource {
	return &FutureByteSource{ctx: ctx, handle: handle}
}

func (f *FutureByteSource) extract() (ByteSource, error) {
	f.once.Do(func() {
		buf, err := f.handle.Take(f.ctx)
		if err != nil {
			f.err = err
			return
		}
		f.resolved = NewBufferSource(buf)
	})
	return f.resolved, f.err
}

// Extracted reports whether the future has already resolved, without
// blocking or triggering resolution.
func (f *FutureByteSource) Extracted() bool {
	return f.resolved != nil || f.err != nil
}

// Release abandons an unresolved future, returning its registry slot. It is
// a no-op once extraction has happened.
func (f *FutureByteSource) Release() {
	if f.Extracted() {
		return
	}
	f.handle.Cancel()
}

func (f *FutureByteSource) Tell() int64 {
	bs, err := f.extract()
	if err != nil {
		return 0
	}
	return bs.Tell()
}

func (f *FutureByteSource) Size() int64 {
	bs, err := f.extract()
	if err != nil {
		return 0
	}
	return bs.Size()
}

func (f *FutureByteSource) Seek(offset int64, whence int) (int64, error) {
	bs, err := f.extract()
	if err != nil {
		return 0, err
	}
	return bs.Seek(offset, whence)
}

func (f *FutureByteSource) Read(dst []byte) (int, error) {
	bs, err := f.extract()
	if err != nil {
		return 0, err
	}
	return bs.Read(dst)
}

func (f *FutureByteSource) ReadU32() (uint32, error) {
	bs, err := f.extract()
	if err != nil {
		return 0, err
	}
	return bs.ReadU32()
}

func (f *FutureByteSource) FileID() int {
	bs, err := f.extract()
	if err != nil {
		return -1
	}
	return bs.FileID()
}
