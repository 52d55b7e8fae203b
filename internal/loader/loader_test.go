package loader

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/thornfield-ai/splitloader/internal/loadinput"
	"github.com/thornfield-ai/splitloader/internal/logger"
	"github.com/thornfield-ai/splitloader/internal/mcfstore"
	"github.com/thornfield-ai/splitloader/internal/registry"
	"github.com/thornfield-ai/splitloader/pkg/mcf"
)

func writeSplitFixtures(t *testing.T, dir, stem string, withManifest bool) string {
	t.Helper()

	basePath := filepath.Join(dir, stem+".mcf")
	layout := [][]mcf.FixtureTensor{
		{{Name: "token_embd.weight", DType: mcf.DTypeF32, Shape: []uint64{4, 2}, Data: make([]byte, 4*2*4)}},
		{
			{Name: "blk.0.attn_q.weight", DType: mcf.DTypeF32, Shape: []uint64{2, 2}, Data: make([]byte, 2*2*4)},
			{Name: "blk.0.attn_k.weight", DType: mcf.DTypeF32, Shape: []uint64{2, 2}, Data: make([]byte, 2*2*4)},
		},
	}
	total := len(layout)
	firstSplitPath := basePath

	var allNames []string
	for idx, tensors := range layout {
		path := SplitFileName(basePath, idx+1, total)
		if idx == 0 {
			firstSplitPath = path
		}
		if err := mcf.WriteFixture(path, idx, total, tensors); err != nil {
			t.Fatalf("WriteFixture split %d: %v", idx, err)
		}
		for _, ten := range tensors {
			allNames = append(allNames, ten.Name)
		}
	}

	if withManifest {
		if err := mcf.WriteManifest(filepath.Join(dir, stem+".tensors.txt"), allNames); err != nil {
			t.Fatalf("WriteManifest: %v", err)
		}
	}
	return firstSplitPath
}

func TestOpenSingleFileDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "single.mcf")
	if err := mcf.WriteFixture(path, 0, 1, []mcf.FixtureTensor{
		{Name: "token_embd.weight", DType: mcf.DTypeF32, Shape: []uint64{4, 2}, Data: make([]byte, 32)},
	}); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}

	ld, err := Open(context.Background(), &loadinput.PathInput{Path: path}, mcfstore.Parse, registry.New(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ld.Incremental {
		t.Fatalf("a single-split model must never report Incremental")
	}

	tm, idx, err := ld.NextTensorMeta("token_embd.weight")
	if err != nil {
		t.Fatalf("NextTensorMeta: %v", err)
	}
	if idx != 0 || tm.DataSize != 32 {
		t.Fatalf("NextTensorMeta = %+v idx=%d", tm, idx)
	}
}

func TestOpenMultiSplitWithManifest(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	basePath := writeSplitFixtures(t, dir, "two-split", true)

	ld, err := Open(context.Background(), &loadinput.PathInput{Path: basePath}, mcfstore.Parse, registry.New(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !ld.Incremental {
		t.Fatalf("a manifest-backed multi-split model must report Incremental")
	}

	if _, idx, err := ld.NextTensorMeta("token_embd.weight"); err != nil || idx != 0 {
		t.Fatalf("NextTensorMeta(token_embd.weight) idx=%d err=%v", idx, err)
	}
	if _, idx, err := ld.NextTensorMeta("blk.0.attn_k.weight"); err != nil || idx != 1 {
		t.Fatalf("NextTensorMeta(blk.0.attn_k.weight) idx=%d err=%v", idx, err)
	}

	status := ld.Status()
	if len(status) != 2 {
		t.Fatalf("Status() returned %d splits, want 2", len(status))
	}
}

func TestOpenMultiSplitWithoutManifestDegradesToEager(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	basePath := writeSplitFixtures(t, dir, "no-manifest", false)

	ld, err := Open(context.Background(), &loadinput.PathInput{Path: basePath}, mcfstore.Parse, registry.New(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ld.Incremental {
		t.Fatalf("no manifest was written, Open must degrade to an eager load")
	}

	if _, _, err := ld.NextTensorMeta("blk.0.attn_q.weight"); err != nil {
		t.Fatalf("NextTensorMeta: %v, eager load should have already pulled in split 1", err)
	}
}

func TestOpenUnknownTensor(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	basePath := writeSplitFixtures(t, dir, "unknown", true)

	ld, err := Open(context.Background(), &loadinput.PathInput{Path: basePath}, mcfstore.Parse, registry.New(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, _, err := ld.NextTensorMeta("does.not.exist"); err == nil {
		t.Fatalf("NextTensorMeta on an unknown tensor must fail")
	}
}

func TestOpenFutureInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	basePath := writeSplitFixtures(t, dir, "future", true)

	baseBuf := mustReadFile(t, basePath)
	splitBuf := mustReadFile(t, SplitFileName(stripSplitSuffix(basePath), 2, 2))
	manifestBuf := mustReadFile(t, filepath.Join(dir, "future.tensors.txt"))

	reg := registry.New()
	loadCtx := "test-load"
	input := &loadinput.FutureInput{
		PromiseKey:  "model",
		Context:     loadCtx,
		Splits:      []string{"", "model-split-1"},
		ManifestKey: "model.manifest",
	}

	go func() {
		reg.Fulfill(registry.Key{PromiseKey: "model.manifest", Context: loadCtx}, manifestBuf)
		reg.Fulfill(registry.Key{PromiseKey: "model", Context: loadCtx}, baseBuf)
		reg.Fulfill(registry.Key{PromiseKey: "model-split-1", Context: loadCtx}, splitBuf)
	}()

	ld, err := Open(context.Background(), input, mcfstore.Parse, reg, nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !ld.Incremental {
		t.Fatalf("future input with a manifest must be incremental")
	}
	if _, idx, err := ld.NextTensorMeta("blk.0.attn_k.weight"); err != nil || idx != 1 {
		t.Fatalf("NextTensorMeta(blk.0.attn_k.weight) idx=%d err=%v", idx, err)
	}
}

func TestSplitFileName(t *testing.T) {
	t.Parallel()

	got := SplitFileName("/models/base.mcf", 2, 3)
	want := "/models/base-00002-of-00003.mcf"
	if got != want {
		t.Fatalf("SplitFileName() = %q, want %q", got, want)
	}
}

func TestOpenBufferInputHasNoSplits(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "single.mcf")
	if err := mcf.WriteFixture(path, 0, 1, []mcf.FixtureTensor{
		{Name: "a", DType: mcf.DTypeF32, Shape: []uint64{1}, Data: make([]byte, 4)},
	}); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}
	buf := mustReadFile(t, path)

	ld, err := Open(context.Background(), &loadinput.BufferInput{Buffer: buf}, mcfstore.Parse, registry.New(), nil)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if ld.ctrl != nil {
		t.Fatalf("a buffer input describing a single split must never spin up a controller")
	}
	if _, _, err := ld.NextTensorMeta("a"); err != nil {
		t.Fatalf("NextTensorMeta: %v", err)
	}
}

func TestFulfillFutureDuplicateIsLogged(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "single.mcf")
	if err := mcf.WriteFixture(path, 0, 1, []mcf.FixtureTensor{
		{Name: "a", DType: mcf.DTypeF32, Shape: []uint64{1}, Data: make([]byte, 4)},
	}); err != nil {
		t.Fatalf("WriteFixture: %v", err)
	}

	var buf bytes.Buffer
	ld, err := Open(context.Background(), &loadinput.PathInput{Path: path}, mcfstore.Parse, registry.New(), logger.JSON(&buf, slog.LevelDebug))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if !ld.FulfillFuture("k", "ctx", []byte{1}) {
		t.Fatalf("first FulfillFuture() = false, want true")
	}
	if ld.FulfillFuture("k", "ctx", []byte{2}) {
		t.Fatalf("second FulfillFuture() = true, want false (single-shot promise)")
	}
	if !strings.Contains(buf.String(), "duplicate fulfillment") {
		t.Fatalf("log output = %q, want it to mention duplicate fulfillment", buf.String())
	}
}

func mustReadFile(t *testing.T, path string) []byte {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return data
}
