package mcf

import (
	"errors"
	"os"
)

// FixtureTensor is one tensor's metadata and raw little-endian payload, used
// to assemble a minimal MCF container for testing and for the split-loader
// demo tooling. It intentionally carries no quantisation or HF-resource
// concerns; those live upstream of the loader core.
type FixtureTensor struct {
	Name  string
	DType TensorDType
	Shape []uint64
	Data  []byte
}

// WriteFixture writes a single-split MCF container to path containing the
// given tensors. If total > 1, the ModelInfo section records SplitIndexKey =
// index and SplitCountKey = total so the file can be read back as one split
// of a multi-split model (see SPEC_FULL.md §6).
func WriteFixture(path string, index, total int, tensors []FixtureTensor) error {
	if len(tensors) == 0 {
		return errors.New("mcf: fixture requires at least one tensor")
	}
	if total > 1 && (index < 0 || index >= total) {
		return errors.New("mcf: fixture split index out of range")
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	w, err := NewWriter(f)
	if err != nil {
		return err
	}

	mi := &ModelInfo{}
	var flags uint64
	if total > 1 {
		mi.Extras = map[string]any{
			SplitIndexKey: uint32(index),
			SplitCountKey: uint32(total),
		}
		flags |= FlagSplitFile
	}
	miBytes, err := EncodeModelInfo(mi)
	if err != nil {
		return err
	}
	if err := w.WriteSection(SectionModelInfo, 1, miBytes); err != nil {
		return err
	}

	sw, err := w.BeginSection(SectionTensorData, 1)
	if err != nil {
		return err
	}
	records := make([]TensorIndexRecord, 0, len(tensors))
	for _, t := range tensors {
		if err := sw.Align(8); err != nil {
			return err
		}
		off, err := sw.CurrentAbsOffset()
		if err != nil {
			return err
		}
		if len(t.Data) > 0 {
			if _, err := sw.Write(t.Data); err != nil {
				return err
			}
		}
		records = append(records, TensorIndexRecord{
			Name:     t.Name,
			DType:    t.DType,
			Shape:    t.Shape,
			DataOff:  off,
			DataSize: uint64(len(t.Data)),
		})
	}
	if err := sw.End(); err != nil {
		return err
	}

	indexPayload, err := EncodeTensorIndexSection(records)
	if err != nil {
		return err
	}
	if err := w.WriteSection(SectionTensorIndex, TensorIndexVersion, indexPayload); err != nil {
		return err
	}

	if err := w.AddFlags(flags); err != nil {
		return err
	}
	return w.Finalise()
}

// WriteManifest writes the newline-delimited tensor-name manifest file
// described in SPEC_FULL.md §6 (the `<base>.tensors.txt` convention).
func WriteManifest(path string, tensorNames []string) error {
	var buf []byte
	for _, name := range tensorNames {
		buf = append(buf, []byte(name)...)
		buf = append(buf, '\n')
	}
	return os.WriteFile(path, buf, 0o644)
}
