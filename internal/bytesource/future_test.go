package bytesource

import (
	"context"
	"testing"
	"time"

	"github.com/thornfield-ai/splitloader/internal/registry"
)

func TestFutureByteSourceResolvesOnce(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	key := registry.Key{PromiseKey: "model", Context: "load-1"}
	handle := reg.Enroll(key)
	future := NewFuture(context.Background(), handle)

	if future.Extracted() {
		t.Fatalf("Extracted() = true before any read")
	}

	want := []byte{1, 2, 3, 4}
	go reg.Fulfill(key, want)

	u32, err := future.ReadU32()
	if err != nil {
		t.Fatalf("ReadU32: %v", err)
	}
	wantU32 := uint32(1) | uint32(2)<<8 | uint32(3)<<16 | uint32(4)<<24
	if u32 != wantU32 {
		t.Fatalf("ReadU32() = %d, want %d", u32, wantU32)
	}

	if !future.Extracted() {
		t.Fatalf("Extracted() = false after a successful read")
	}
	if future.Size() != int64(len(want)) {
		t.Fatalf("Size() = %d, want %d", future.Size(), len(want))
	}

	// A second call must reuse the cached ByteSource rather than take from
	// the registry again (the slot was already removed on the first Take).
	if _, err := future.Seek(0, 0); err != nil {
		t.Fatalf("second extraction failed: %v", err)
	}
}

func TestFutureByteSourceCancelReleasesSlot(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	key := registry.Key{PromiseKey: "abandoned", Context: "load-2"}
	handle := reg.Enroll(key)
	future := NewFuture(context.Background(), handle)

	future.Release()

	// After Cancel, a fresh Enroll for the same key must get a brand new
	// pending slot rather than reusing the cancelled one.
	second := reg.Enroll(key)
	go reg.Fulfill(key, []byte{9})
	buf, err := second.Take(context.Background())
	if err != nil {
		t.Fatalf("Take after cancel+reenroll: %v", err)
	}
	if len(buf) != 1 || buf[0] != 9 {
		t.Fatalf("Take() = %v, want [9]", buf)
	}
}

func TestFutureByteSourceContextTimeout(t *testing.T) {
	t.Parallel()

	reg := registry.New()
	key := registry.Key{PromiseKey: "never", Context: "load-3"}
	handle := reg.Enroll(key)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	future := NewFuture(ctx, handle)

	if _, err := future.Seek(0, 0); err == nil {
		t.Fatalf("Seek on an unfulfilled, timed-out future should fail")
	}
}
