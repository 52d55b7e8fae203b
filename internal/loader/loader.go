// Package loader is the entry point the model-construction layer uses: Open
// a LoadInput, stream tensor metadata by name, and fulfill futures as a
// producer goroutine supplies them. It generalizes the single-file,
// construction-coupled loader the teacher's inference package used to own,
// and drives internal/splitload instead of building ggml contexts directly.
package loader

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/thornfield-ai/splitloader/internal/bytesource"
	"github.com/thornfield-ai/splitloader/internal/loadinput"
	"github.com/thornfield-ai/splitloader/internal/logger"
	"github.com/thornfield-ai/splitloader/internal/manifest"
	"github.com/thornfield-ai/splitloader/internal/registry"
	"github.com/thornfield-ai/splitloader/internal/splitload"
)

// ErrUnsupportedSplitLoad is returned when a Buffer input is asked to
// participate in split loading, which it can never support.
var ErrUnsupportedSplitLoad = errors.New("loader: input does not support split loading")

var splitFileRe = regexp.MustCompile(`^(.*)-(\d{5})-of-(\d{5})(\.[^.]+)$`)

// Loader is the facade returned by Open. NextTensorMeta is the only hot-path
// method the model layer calls once loading is under way.
type Loader struct {
	ctrl   *splitload.Controller // nil for single-split loads
	parse  splitload.ParseFunc
	reg    *registry.Registry
	log    logger.Logger
	base   splitload.Container
	input  loadinput.LoadInput

	// Incremental is true only when a manifest was actually read, per the
	// explicit eager-vs-incremental decision recorded in SPEC_FULL.md §9.
	Incremental bool
}

// Open parses the base split named by input and, if the container declares
// more than one split, wires up the incremental controller and its delayed
// descriptors. parse turns a ByteSource into container metadata and is
// supplied by whichever container format the caller is using (MCF, GGUF).
func Open(ctx context.Context, input loadinput.LoadInput, parse splitload.ParseFunc, reg *registry.Registry, log logger.Logger) (*Loader, error) {
	if log == nil {
		log = logger.Default()
	}

	baseSource, err := openBase(ctx, input, reg)
	if err != nil {
		return nil, fmt.Errorf("loader: open base: %w", err)
	}
	base, err := parse(baseSource)
	if err != nil {
		return nil, fmt.Errorf("loader: parse base: %w", err)
	}

	l := &Loader{parse: parse, reg: reg, log: log, base: base, input: input}

	_, splitCount, hasSplitKV := base.SplitIndex()
	if !hasSplitKV || splitCount <= 1 {
		return l, nil
	}

	expected, incremental, err := l.loadManifest(ctx, input)
	if err != nil {
		return nil, err
	}
	l.Incremental = incremental

	ctrl, err := splitload.NewController(expected, base, baseSource)
	if err != nil {
		return nil, fmt.Errorf("loader: seed controller: %w", err)
	}
	l.ctrl = ctrl

	_, splits, ok := input.SplitName()
	if !ok {
		return nil, fmt.Errorf("loader: %w", ErrUnsupportedSplitLoad)
	}
	for i := 1; i < splitCount; i++ {
		idx := i
		desc := splitload.NewSplitDescriptor(idx, l.openSplitFunc(ctx, input, splits, idx, splitCount), parse)
		ctrl.AddSplit(desc)
	}

	if !incremental {
		if err := ctrl.LoadDelayedAll(); err != nil {
			return nil, fmt.Errorf("loader: eager split load: %w", err)
		}
	}

	return l, nil
}

// NextTensorMeta looks up a tensor's metadata by name, loading further
// splits on demand when a controller is present. For single-split loads it
// is looked up directly against the base container.
func (l *Loader) NextTensorMeta(name string) (splitload.TensorMeta, int, error) {
	if l.ctrl == nil {
		tm, ok := l.base.TensorMeta(name)
		if !ok {
			return splitload.TensorMeta{}, 0, fmt.Errorf("loader: tensor %s not found", name)
		}
		return tm, 0, nil
	}
	return l.ctrl.LoadTensorMetadata(name)
}

// ReleaseSplit releases a fully-consumed split's storage. Safe for the
// single-split case (ctrl == nil), where it is a no-op.
func (l *Loader) ReleaseSplit(splitIdx int) error {
	if l.ctrl == nil {
		return nil
	}
	return l.ctrl.ReleaseSplit(splitIdx)
}

// AllTensorsLoaded reports whether a split has had every tensor consumed.
// Always true for the single-split case.
func (l *Loader) AllTensorsLoaded(splitIdx int) (bool, error) {
	if l.ctrl == nil {
		return true, nil
	}
	return l.ctrl.AllTensorsLoaded(splitIdx)
}

// TensorIgnored reports whether a tensor name falls outside the loader's
// scope: always true when there's no controller (a single-split load has no
// expected set), otherwise delegated to the controller's expected set.
func (l *Loader) TensorIgnored(name string) bool {
	if l.ctrl == nil {
		return true
	}
	return l.ctrl.TensorIgnored(name)
}

// Status returns a read-only snapshot of split progress. For single-split
// loads it reports one synthetic, fully-loaded split.
func (l *Loader) Status() []splitload.SplitStatus {
	if l.ctrl == nil {
		return []splitload.SplitStatus{{Index: 0, Loaded: true}}
	}
	return l.ctrl.Snapshot()
}

// FulfillFuture forwards a producer-supplied buffer to the registry. It is
// only meaningful when the loader was opened with a Future input; for Path
// and Buffer inputs nothing ever takes the buffer, but the registry still
// creates a slot for the unrecognized key and the call returns true. A
// second fulfillment of the same key is a caller error, not a loader
// failure, so it is logged here rather than surfaced as a returned error.
func (l *Loader) FulfillFuture(promiseKey, context string, buffer []byte) bool {
	if l.reg == nil {
		return false
	}
	ok := l.reg.Fulfill(registry.Key{PromiseKey: promiseKey, Context: context}, buffer)
	if !ok {
		l.log.Error("duplicate fulfillment of promise key", "promise_key", promiseKey, "context", context, "err", registry.ErrDuplicateFulfillment)
	}
	return ok
}

func openBase(ctx context.Context, input loadinput.LoadInput, reg *registry.Registry) (bytesource.ByteSource, error) {
	switch v := input.(type) {
	case *loadinput.PathInput:
		return bytesource.OpenDisk(v.Path)
	case *loadinput.BufferInput:
		return bytesource.NewBufferSource(v.Buffer), nil
	case *loadinput.FutureInput:
		h := reg.Enroll(registry.Key{PromiseKey: v.PromiseKey, Context: v.Context})
		return bytesource.NewFuture(ctx, h), nil
	default:
		return nil, fmt.Errorf("loader: unrecognized load input type %T", input)
	}
}

func (l *Loader) openSplitFunc(ctx context.Context, input loadinput.LoadInput, splits []string, idx, splitCount int) splitload.OpenFunc {
	return func() (bytesource.ByteSource, error) {
		switch v := input.(type) {
		case *loadinput.PathInput:
			path := splitPathAt(splits, idx, v.Path, splitCount)
			return bytesource.OpenDisk(path)
		case *loadinput.FutureInput:
			key := splitKeyAt(splits, idx, v.PromiseKey, splitCount)
			h := l.reg.Enroll(registry.Key{PromiseKey: key, Context: v.Context})
			return bytesource.NewFuture(ctx, h), nil
		default:
			return nil, fmt.Errorf("loader: %w", ErrUnsupportedSplitLoad)
		}
	}
}

// splitPathAt returns splits[idx] when the caller populated the sibling
// list explicitly, otherwise derives it from the documented
// `<base>-NNNNN-of-MMMMM` naming convention. basePath is split 0's own path,
// which by convention already carries a `-00001-of-MMMMM` suffix, so that
// suffix is stripped before a new one is applied.
func splitPathAt(splits []string, idx int, basePath string, splitCount int) string {
	if idx < len(splits) && splits[idx] != "" {
		return splits[idx]
	}
	return SplitFileName(stripSplitSuffix(basePath), idx+1, splitCount)
}

func splitKeyAt(splits []string, idx int, basePromiseKey string, splitCount int) string {
	if idx < len(splits) && splits[idx] != "" {
		return splits[idx]
	}
	return SplitFileName(stripSplitSuffix(basePromiseKey), idx+1, splitCount)
}

// stripSplitSuffix removes an existing `-NNNNN-of-MMMMM` split suffix from
// path's base name, if present, so the naming convention can be reapplied
// for a different split index without doubling up.
func stripSplitSuffix(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	m := splitFileRe.FindStringSubmatch(base)
	if m == nil {
		return path
	}
	stripped := m[1] + m[4]
	if dir == "." {
		return stripped
	}
	return filepath.Join(dir, stripped)
}

// loadManifest fetches the expected-tensor set for input. It returns
// incremental=true only when a manifest was actually obtained.
func (l *Loader) loadManifest(ctx context.Context, input loadinput.LoadInput) (manifest.Set, bool, error) {
	switch v := input.(type) {
	case *loadinput.FutureInput:
		h := l.reg.Enroll(registry.Key{PromiseKey: v.ManifestKey, Context: v.Context})
		fut := bytesource.NewFuture(ctx, h)
		set, err := manifest.Load(fut)
		if err != nil {
			return nil, false, fmt.Errorf("%w: %v", manifest.ErrManifestUnavailable, err)
		}
		return set, true, nil
	case *loadinput.PathInput:
		manifestPath := manifestPathFor(v.Path)
		bs, err := bytesource.OpenDisk(manifestPath)
		if err != nil {
			l.log.Warn("no manifest found for multi-split path input, degrading to eager load", "path", v.Path)
			return nil, false, nil
		}
		defer bs.Close()
		set, err := manifest.Load(bs)
		if err != nil {
			return nil, false, err
		}
		return set, true, nil
	default:
		return nil, false, fmt.Errorf("loader: %w", ErrUnsupportedSplitLoad)
	}
}

// manifestPathFor derives the `<base>.tensors.txt` manifest path from a
// split or base filename, stripping a `-NNNNN-of-MMMMM` suffix if present.
func manifestPathFor(path string) string {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if m := splitFileRe.FindStringSubmatch(base); m != nil {
		base = m[1] + m[4]
	}
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	return filepath.Join(dir, stem+".tensors.txt")
}

// SplitFileName formats the NNNNN-of-MMMMM split naming convention for
// split index idx (1-based) out of total.
func SplitFileName(base string, idx, total int) string {
	ext := filepath.Ext(base)
	stem := base[:len(base)-len(ext)]
	return fmt.Sprintf("%s-%s-of-%s%s", stem, pad5(idx), pad5(total), ext)
}

func pad5(n int) string {
	s := strconv.Itoa(n)
	for len(s) < 5 {
		s = "0" + s
	}
	return s
}
