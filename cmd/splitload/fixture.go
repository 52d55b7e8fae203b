package main

import (
	"fmt"
	"path/filepath"

	"github.com/thornfield-ai/splitloader/internal/loader"
	"github.com/thornfield-ai/splitloader/pkg/mcf"
)

// demoTensor describes one tensor placed in a fixture split, named so the
// same layout can be reused disk-backed and future-backed.
type demoTensor struct {
	name  string
	shape []uint64
}

// demoLayout is the two-split tensor layout every scenario in this package
// builds its fixtures from: a small embedding table in split 0, two
// attention weights in split 1.
var demoLayout = [][]demoTensor{
	{
		{name: "token_embd.weight", shape: []uint64{32, 8}},
	},
	{
		{name: "blk.0.attn_q.weight", shape: []uint64{8, 8}},
		{name: "blk.0.attn_k.weight", shape: []uint64{8, 8}},
	},
}

// writeSingleMCFFile writes demoLayout's first split only as a standalone,
// non-split MCF file (total=1, no SplitIndex/SplitCount keys), for the
// true single-file scenario where Open must never look for sibling splits
// or a manifest.
func writeSingleMCFFile(dir, stem string) (string, error) {
	path := filepath.Join(dir, stem+".mcf")
	tensors := demoLayout[0]
	fixtures := make([]mcf.FixtureTensor, 0, len(tensors))
	for _, t := range tensors {
		n := elementCount(t.shape)
		fixtures = append(fixtures, mcf.FixtureTensor{
			Name:  t.name,
			DType: mcf.DTypeF32,
			Shape: t.shape,
			Data:  make([]byte, n*4),
		})
	}
	if err := mcf.WriteFixture(path, 0, 1, fixtures); err != nil {
		return "", fmt.Errorf("write single file: %w", err)
	}
	return path, nil
}

// writeMCFSplits writes demoLayout as a family of MCF split files named
// `<stem>-NNNNN-of-MMMMM.mcf` under dir, plus (when withManifest is true) the
// sibling `<stem>.tensors.txt` manifest. It returns split 0's own file path,
// which is what a PathInput must be opened with: the suffixed name when
// total > 1, the bare `<stem>.mcf` otherwise.
func writeMCFSplits(dir, stem string, withManifest bool) (string, error) {
	total := len(demoLayout)
	basePath := filepath.Join(dir, stem+".mcf")
	firstSplitPath := basePath

	var allNames []string
	for idx, tensors := range demoLayout {
		path := basePath
		if total > 1 {
			path = filepath.Join(dir, loader.SplitFileName(stem+".mcf", idx+1, total))
		}
		if idx == 0 {
			firstSplitPath = path
		}
		fixtures := make([]mcf.FixtureTensor, 0, len(tensors))
		for _, t := range tensors {
			n := elementCount(t.shape)
			fixtures = append(fixtures, mcf.FixtureTensor{
				Name:  t.name,
				DType: mcf.DTypeF32,
				Shape: t.shape,
				Data:  make([]byte, n*4),
			})
			allNames = append(allNames, t.name)
		}
		if err := mcf.WriteFixture(path, idx, total, fixtures); err != nil {
			return "", fmt.Errorf("write split %d: %w", idx, err)
		}
	}

	if withManifest && total > 1 {
		manifestPath := filepath.Join(dir, stem+".tensors.txt")
		if err := mcf.WriteManifest(manifestPath, allNames); err != nil {
			return "", fmt.Errorf("write manifest: %w", err)
		}
	}

	return firstSplitPath, nil
}

// writeMisorderedSplits writes the same two-split layout as writeMCFSplits
// but gives the file at split-file position 1 an internal split index of 0,
// so loading it in sequence trips splitload.ErrSplitIndexMismatch.
func writeMisorderedSplits(dir string) (string, error) {
	stem := "misordered"
	total := len(demoLayout)
	basePath := filepath.Join(dir, stem+".mcf")
	firstSplitPath := basePath

	var allNames []string
	wrongIndexes := []int{0, 0}
	for pos, tensors := range demoLayout {
		path := basePath
		if total > 1 {
			path = filepath.Join(dir, loader.SplitFileName(stem+".mcf", pos+1, total))
		}
		if pos == 0 {
			firstSplitPath = path
		}
		fixtures := make([]mcf.FixtureTensor, 0, len(tensors))
		for _, t := range tensors {
			n := elementCount(t.shape)
			fixtures = append(fixtures, mcf.FixtureTensor{
				Name:  t.name,
				DType: mcf.DTypeF32,
				Shape: t.shape,
				Data:  make([]byte, n*4),
			})
			allNames = append(allNames, t.name)
		}
		if err := mcf.WriteFixture(path, wrongIndexes[pos], total, fixtures); err != nil {
			return "", fmt.Errorf("write split %d: %w", pos, err)
		}
	}

	manifestPath := filepath.Join(dir, stem+".tensors.txt")
	if err := mcf.WriteManifest(manifestPath, allNames); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}

	return firstSplitPath, nil
}

func elementCount(shape []uint64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
