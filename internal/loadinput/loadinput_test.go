package loadinput

import "testing"

func TestPathInput(t *testing.T) {
	t.Parallel()

	p := &PathInput{Path: "/models/base.mcf", Splits: []string{"/models/base-00001-of-00002.mcf"}}
	if p.Identifier() != "/models/base.mcf" {
		t.Fatalf("Identifier() = %q", p.Identifier())
	}
	key, splits, ok := p.SplitName()
	if !ok || key != p.Path || len(splits) != 1 {
		t.Fatalf("SplitName() = %q, %v, %v", key, splits, ok)
	}
	if !p.SupportsSplitLoad() {
		t.Fatalf("PathInput must support split loading")
	}
	if p.SupportsSplitFromMemory() {
		t.Fatalf("PathInput must not claim in-memory splitting")
	}
}

func TestBufferInput(t *testing.T) {
	t.Parallel()

	b := &BufferInput{Buffer: []byte{1, 2, 3}}
	if b.Identifier() != "buffer" {
		t.Fatalf("Identifier() = %q, want \"buffer\"", b.Identifier())
	}
	if _, _, ok := b.SplitName(); ok {
		t.Fatalf("BufferInput has no split family, SplitName ok should be false")
	}
	if b.SupportsSplitLoad() || b.SupportsSplitFromMemory() {
		t.Fatalf("BufferInput must not support any split addressing")
	}
}

func TestFutureInput(t *testing.T) {
	t.Parallel()

	f := &FutureInput{PromiseKey: "model", Context: "load-7", Splits: []string{"model-split-1"}, ManifestKey: "model.manifest"}
	if f.Identifier() != "model" {
		t.Fatalf("Identifier() = %q", f.Identifier())
	}
	key, splits, ok := f.SplitName()
	if !ok || key != "model" || len(splits) != 1 || splits[0] != "model-split-1" {
		t.Fatalf("SplitName() = %q, %v, %v", key, splits, ok)
	}
	if !f.SupportsSplitLoad() || !f.SupportsSplitFromMemory() {
		t.Fatalf("FutureInput must support both split loading and in-memory splitting")
	}
}

func TestLoadInputInterfaceSatisfaction(t *testing.T) {
	t.Parallel()

	var inputs = []LoadInput{
		&PathInput{Path: "x"},
		&BufferInput{Buffer: nil},
		&FutureInput{PromiseKey: "x"},
	}
	for _, in := range inputs {
		if in.Identifier() == "" && in.SupportsSplitLoad() {
			t.Fatalf("split-capable input %T must have a non-empty identifier", in)
		}
	}
}
