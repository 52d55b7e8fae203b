package mcf

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFixtureRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "split.mcf")
	tensors := []FixtureTensor{
		{Name: "token_embd.weight", DType: DTypeF32, Shape: []uint64{4, 2}, Data: make([]byte, 4*2*4)},
		{Name: "blk.0.attn_q.weight", DType: DTypeF32, Shape: []uint64{2, 2}, Data: make([]byte, 2*2*4)},
	}
	if err := WriteFixture(path, 1, 3, tensors); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	indexSec := f.Section(SectionTensorIndex)
	if indexSec == nil {
		t.Fatalf("tensor index section missing")
	}
	index, err := ParseTensorIndexSection(f.SectionData(indexSec))
	if err != nil {
		t.Fatalf("ParseTensorIndexSection: %v", err)
	}
	if index.Count() != len(tensors) {
		t.Fatalf("index.Count() = %d, want %d", index.Count(), len(tensors))
	}
	idx, ok := index.Find("blk.0.attn_q.weight")
	if !ok {
		t.Fatalf("Find(blk.0.attn_q.weight) not found")
	}
	entry, err := index.Entry(idx)
	if err != nil {
		t.Fatalf("Entry: %v", err)
	}
	if entry.DataSize != uint64(len(tensors[1].Data)) {
		t.Fatalf("DataSize = %d, want %d", entry.DataSize, len(tensors[1].Data))
	}

	miSec := f.Section(SectionModelInfo)
	if miSec == nil {
		t.Fatalf("model info section missing")
	}
	mi, err := ParseModelInfo(f.SectionData(miSec))
	if err != nil {
		t.Fatalf("ParseModelInfo: %v", err)
	}
	idxVal, ok := mi.Extras[SplitIndexKey]
	if !ok || idxVal != uint32(1) {
		t.Fatalf("split index extra = %v, ok=%v, want 1", idxVal, ok)
	}
	cntVal, ok := mi.Extras[SplitCountKey]
	if !ok || cntVal != uint32(3) {
		t.Fatalf("split count extra = %v, ok=%v, want 3", cntVal, ok)
	}
	if f.Header.Flags&FlagSplitFile == 0 {
		t.Fatalf("FlagSplitFile not set on a multi-split fixture")
	}
}

func TestWriteFixtureSingleSplitHasNoSplitFlag(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "single.mcf")
	if err := WriteFixture(path, 0, 1, []FixtureTensor{
		{Name: "a", DType: DTypeF32, Shape: []uint64{1}, Data: make([]byte, 4)},
	}); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = f.Close() }()

	if f.Header.Flags&FlagSplitFile != 0 {
		t.Fatalf("a single-split fixture must not set FlagSplitFile")
	}
}

func TestWriteFixtureRejectsEmptyTensorList(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "empty.mcf")
	if err := WriteFixture(path, 0, 1, nil); err == nil {
		t.Fatalf("WriteFixture with no tensors must fail")
	}
}

func TestWriteManifest(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.tensors.txt")
	names := []string{"token_embd.weight", "blk.0.attn_q.weight", "blk.0.attn_k.weight"}
	if err := WriteManifest(path, names); err != nil {
		t.Fatalf("WriteManifest: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	want := "token_embd.weight\nblk.0.attn_q.weight\nblk.0.attn_k.weight\n"
	if string(data) != want {
		t.Fatalf("WriteManifest contents = %q, want %q", string(data), want)
	}
}
