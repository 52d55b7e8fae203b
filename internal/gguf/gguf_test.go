package gguf

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/thornfield-ai/splitloader/internal/bytesource"
)

// buildGGUFBuffer assembles a minimal valid GGUF byte stream by hand: magic,
// header, a u64 KV pair for each entry in kv, one F32 tensor named
// tensorName with the given dims, and a data section padded to the default
// 32-byte alignment.
func buildGGUFBuffer(t *testing.T, tensorName string, dims []uint64, kv map[string]uint64, data []byte) []byte {
	t.Helper()

	var buf bytes.Buffer
	buf.WriteString("GGUF")
	writeU32(&buf, 3)
	writeU64(&buf, 1)
	writeU64(&buf, uint64(len(kv)))

	for k, v := range kv {
		writeString(&buf, k)
		writeU32(&buf, uint32(TypeUint64))
		writeU64(&buf, v)
	}

	writeString(&buf, tensorName)
	writeU32(&buf, uint32(len(dims)))
	for _, d := range dims {
		writeU64(&buf, d)
	}
	writeU32(&buf, uint32(GGMLTypeF32))
	writeU64(&buf, 0)

	headerLen := buf.Len()
	padded := align(uint64(headerLen), 32)
	for i := uint64(headerLen); i < padded; i++ {
		buf.WriteByte(0)
	}
	buf.Write(data)
	return buf.Bytes()
}

func writeU32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	writeU64(buf, uint64(len(s)))
	buf.WriteString(s)
}

func TestParseBufferReadsTensorAndKV(t *testing.T) {
	t.Parallel()

	data := make([]byte, 4*4)
	raw := buildGGUFBuffer(t, "token_embd.weight", []uint64{2, 2}, map[string]uint64{
		"split.no":    0,
		"split.count": 2,
	}, data)

	f, err := ParseBuffer(raw)
	if err != nil {
		t.Fatalf("ParseBuffer: %v", err)
	}

	info, ok := f.TensorByName("token_embd.weight")
	if !ok {
		t.Fatalf("TensorByName: not found")
	}
	if info.Type != GGMLTypeF32 || len(info.Dims) != 2 {
		t.Fatalf("TensorByName() = %+v", info)
	}

	idx, count, ok := f.SplitIndex()
	if !ok || idx != 0 || count != 2 {
		t.Fatalf("SplitIndex() = %d,%d,%v want 0,2,true", idx, count, ok)
	}
}

func TestParseBufferNoSplitKV(t *testing.T) {
	t.Parallel()

	data := make([]byte, 4)
	raw := buildGGUFBuffer(t, "a", []uint64{1}, nil, data)

	f, err := ParseBuffer(raw)
	if err != nil {
		t.Fatalf("ParseBuffer: %v", err)
	}
	if _, _, ok := f.SplitIndex(); ok {
		t.Fatalf("a file with no split.no/split.count must not report a split index")
	}
}

func TestParseBufferBadMagic(t *testing.T) {
	t.Parallel()

	if _, err := ParseBuffer([]byte("nope")); err == nil {
		t.Fatalf("ParseBuffer with a bad magic must fail")
	}
}

func TestContainerAdapterFromBuffer(t *testing.T) {
	t.Parallel()

	data := make([]byte, 2*2*4)
	raw := buildGGUFBuffer(t, "blk.0.attn_q.weight", []uint64{2, 2}, nil, data)

	container, err := Parse(bytesource.NewBufferSource(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	names := container.TensorNames()
	if len(names) != 1 || names[0] != "blk.0.attn_q.weight" {
		t.Fatalf("TensorNames() = %v", names)
	}

	tm, ok := container.TensorMeta("blk.0.attn_q.weight")
	if !ok || tm.DataSize != 16 {
		t.Fatalf("TensorMeta() = %+v, ok=%v", tm, ok)
	}
	if _, ok := container.TensorMeta("missing"); ok {
		t.Fatalf("TensorMeta(missing) should not be found")
	}
}

func TestContainerAdapterTensorBytesMaterializesData(t *testing.T) {
	t.Parallel()

	data := make([]byte, 2*2*4)
	for i := range data {
		data[i] = byte(i)
	}
	raw := buildGGUFBuffer(t, "blk.0.attn_q.weight", []uint64{2, 2}, nil, data)

	container, err := Parse(bytesource.NewBufferSource(raw))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	materializer, ok := container.(interface {
		TensorBytes(name string) ([]byte, []uint64, uint32, error)
	})
	if !ok {
		t.Fatalf("containerAdapter does not implement TensorBytes")
	}

	bytesOut, dims, dtype, err := materializer.TensorBytes("blk.0.attn_q.weight")
	if err != nil {
		t.Fatalf("TensorBytes: %v", err)
	}
	if len(bytesOut) != len(data) {
		t.Fatalf("TensorBytes returned %d bytes, want %d", len(bytesOut), len(data))
	}
	if len(dims) != 2 || dims[0] != 2 || dims[1] != 2 {
		t.Fatalf("TensorBytes dims = %v", dims)
	}
	if dtype != uint32(GGMLTypeF32) {
		t.Fatalf("TensorBytes dtype = %d, want %d", dtype, GGMLTypeF32)
	}

	if _, _, _, err := materializer.TensorBytes("missing"); err == nil {
		t.Fatalf("TensorBytes(missing) should fail")
	}
}
