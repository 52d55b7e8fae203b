package splitload

import (
	"fmt"

	"github.com/thornfield-ai/splitloader/internal/bytesource"
	"github.com/thornfield-ai/splitloader/internal/manifest"
)

type tensorRecord struct {
	splitIdx int
	loaded   bool
}

type splitRecord struct {
	totalTensorCount  int
	loadedTensorCount int
	dataSize          uint64
	released          bool
}

func (s *splitRecord) allTensorsLoaded() bool {
	return s.loadedTensorCount >= s.totalTensorCount
}

// Buft identifies a backend buffer type: the allocator category a split's
// tensors eventually land in (CPU, a particular accelerator, ...). This
// package treats it as an opaque grouping key; giving it meaning is the
// model-construction layer's job, not this one's.
type Buft string

// ModelContext is an opaque handle to a model-construction context. This
// package never interprets it; it only tracks identity and lifecycle so the
// tensors of one split can be grouped under one backend allocation.
type ModelContext any

// ModelContextAllocator builds a new model-construction context sized for
// tensorCount tensors of split splitIdx, keyed by buft. modelImpl is passed
// through unexamined; it is whatever handle the model-construction layer
// needs to actually perform the allocation. Supplied by that layer through
// SetModelContextAllocator; when none is installed, GetModelCtxForSplitBuft
// falls back to an inert token that still satisfies the grouping contract.
type ModelContextAllocator func(buft Buft, splitIdx, tensorCount int, modelImpl any) (ModelContext, error)

// ctxKey identifies one (backend-buffer-type, split-index) pair, the unit
// ctx_split_map groups tensors under.
type ctxKey struct {
	buft     Buft
	splitIdx int
}

// inertModelContext is what GetModelCtxForSplitBuft hands back absent a real
// allocator: just enough identity to prove two lookups for the same key
// return the same context, with no backend behind it.
type inertModelContext struct {
	Buft        Buft
	SplitIdx    int
	TensorCount int
}

// Controller is the central orchestrator across all of a model's splits: it
// tracks which split each tensor lives in, how many of a split's tensors
// have been consumed, and releases a split's storage when ReleaseSplit is
// called for it; it never releases a split on its own, even once
// AllTensorsLoaded reports it fully consumed. It runs entirely on the thread that opened the
// load; nothing here is synchronized, by design (SPEC_FULL.md §5).
type Controller struct {
	expected manifest.Set
	// strict is false when no manifest could be read up front (the eager
	// Path degrade path): expected grows dynamically from whatever tensors
	// each split's container actually declares, instead of gating them
	// against a closed set known in advance.
	strict bool

	tensorInfo map[string]*tensorRecord
	tensorMeta map[string]TensorMeta
	splitInfo  map[int]*splitRecord

	delayedFiles  []*SplitDescriptor
	delayedLoaded int

	appendedCount int
	sources       map[int]bytesource.ByteSource

	ctxAllocator ModelContextAllocator
	ctxSplitMap  map[ctxKey]ModelContext
}

// DefaultBuft is the buffer type SplitDescriptor.Load groups a split's
// tensors under when the caller never distinguishes backend buffer types.
// The original this package is grounded on keys its context vector by split
// index alone (one context per split); DefaultBuft preserves that behavior
// while still exercising the general, buft-keyed API for callers that do
// distinguish backends.
const DefaultBuft Buft = "default"

// NewController seeds the controller from the already-parsed base split
// (index 0) and the expected-tensor set drawn from the manifest. It
// immediately processes the base split, matching the original's
// constructor-time eager registration of split 0.
func NewController(expected manifest.Set, base Container, baseSource bytesource.ByteSource) (*Controller, error) {
	strict := expected != nil
	if !strict {
		expected = manifest.Set{}
	}
	c := &Controller{
		expected:      expected,
		strict:        strict,
		tensorInfo:    make(map[string]*tensorRecord),
		tensorMeta:    make(map[string]TensorMeta),
		splitInfo:     map[int]*splitRecord{0: {}},
		appendedCount: 0,
		sources:       make(map[int]bytesource.ByteSource),
		ctxSplitMap:   make(map[ctxKey]ModelContext),
	}
	if err := c.processSplit(0, base); err != nil {
		return nil, err
	}
	c.recordSource(0, baseSource)
	return c, nil
}

// AddSplit registers a delayed split descriptor for the next split index
// (len(delayedFiles)+1, since split 0 is never delayed).
func (c *Controller) AddSplit(desc *SplitDescriptor) {
	splitIdx := len(c.delayedFiles) + 1
	c.splitInfo[splitIdx] = &splitRecord{}
	c.delayedFiles = append(c.delayedFiles, desc)
}

func (c *Controller) checkAppendOrder(idx int) error {
	if idx != c.appendedCount {
		return fmt.Errorf("%w: got idx %d, expected %d", ErrSplitOrderViolation, idx, c.appendedCount)
	}
	return nil
}

func (c *Controller) recordSource(idx int, bs bytesource.ByteSource) {
	c.sources[idx] = bs
}

// SetModelContextAllocator installs the model-construction layer's context
// allocator. Call before the first Load()/GetModelCtxForSplitBuft if real
// contexts are needed; otherwise lookups return the inert default token.
func (c *Controller) SetModelContextAllocator(alloc ModelContextAllocator) {
	c.ctxAllocator = alloc
}

// GetModelCtxForSplitBuft lazily allocates a model-construction context
// sized for the split's total tensor count, keyed by (buft, splitIdx). This
// groups every tensor of one split under one backend allocator; once the
// upstream layer has bound all of a split's tensors to the returned context
// it can commit that context to the backend buffer type in one shot.
// Subsequent calls for the same key return the cached context.
func (c *Controller) GetModelCtxForSplitBuft(buft Buft, splitIdx int, modelImpl any) (ModelContext, error) {
	si, ok := c.splitInfo[splitIdx]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSplit, splitIdx)
	}
	if si.released {
		return nil, fmt.Errorf("%w: split %d", ErrUseAfterRelease, splitIdx)
	}
	key := ctxKey{buft: buft, splitIdx: splitIdx}
	if mc, ok := c.ctxSplitMap[key]; ok {
		return mc, nil
	}

	var (
		mc  ModelContext
		err error
	)
	if c.ctxAllocator != nil {
		mc, err = c.ctxAllocator(buft, splitIdx, si.totalTensorCount, modelImpl)
	} else {
		mc = inertModelContext{Buft: buft, SplitIdx: splitIdx, TensorCount: si.totalTensorCount}
	}
	if err != nil {
		return nil, err
	}
	c.ctxSplitMap[key] = mc
	return mc, nil
}

// processSplit registers every tensor a split's container declares. Any
// tensor outside the expected set is an invariant violation (expected_tensors
// is a closed set); any tensor with no metadata entry fails MissingWeight.
func (c *Controller) processSplit(idx int, container Container) error {
	si, ok := c.splitInfo[idx]
	if !ok {
		si = &splitRecord{}
		c.splitInfo[idx] = si
	}

	for _, name := range container.TensorNames() {
		if c.strict {
			if !c.expected.Contains(name) {
				return fmt.Errorf("%w: %s in split %d", ErrUnknownTensor, name, idx)
			}
		} else {
			c.expected[name] = struct{}{}
		}

		si.totalTensorCount++
		c.tensorInfo[name] = &tensorRecord{splitIdx: idx, loaded: false}

		tm, ok := container.TensorMeta(name)
		if !ok {
			return fmt.Errorf("%w: %s", ErrMissingWeight, name)
		}
		si.dataSize += tm.DataSize
		c.tensorMeta[name] = tm
	}

	if idx == c.appendedCount {
		c.appendedCount++
	}
	return nil
}

// loadDelayed loads the delayedFiles[pos] descriptor (pos is 0-based into
// delayedFiles, i.e. split index pos+1, since split 0 is not delayed).
func (c *Controller) loadDelayed(pos int) error {
	_, err := c.delayedFiles[pos].Load(c)
	return err
}

// LoadTensorMetadata is the bounded loop that drives incremental loading:
// keep opening delayed splits, in order, until the requested tensor turns
// up or every delayed split has been exhausted. Each iteration advances
// delayedLoaded monotonically, so this always terminates.
func (c *Controller) LoadTensorMetadata(name string) (TensorMeta, int, error) {
	if c.strict && !c.expected.Contains(name) {
		return TensorMeta{}, 0, fmt.Errorf("%w: %s", ErrUnknownTensor, name)
	}

	tm, ok := c.tensorMeta[name]
	for !ok && c.delayedLoaded < len(c.delayedFiles) {
		if err := c.loadDelayed(c.delayedLoaded); err != nil {
			return TensorMeta{}, 0, err
		}
		c.delayedLoaded++
		tm, ok = c.tensorMeta[name]

		if c.delayedLoaded == len(c.delayedFiles) {
			if got := c.totalTensorsSeen(); got != len(c.expected) {
				return TensorMeta{}, 0, fmt.Errorf("%w: expected %d, got %d", ErrTensorCountMismatch, len(c.expected), got)
			}
		}
	}
	if !ok {
		return TensorMeta{}, 0, fmt.Errorf("%w: %s", ErrUnknownTensor, name)
	}

	rec, ok := c.tensorInfo[name]
	if !ok {
		return TensorMeta{}, 0, fmt.Errorf("%w: %s", ErrUnknownTensor, name)
	}
	if si := c.splitInfo[rec.splitIdx]; si != nil && si.released {
		return TensorMeta{}, 0, fmt.Errorf("%w: tensor %s in split %d", ErrUseAfterRelease, name, rec.splitIdx)
	}
	if !rec.loaded {
		rec.loaded = true
		c.splitInfo[rec.splitIdx].loadedTensorCount++
	}
	return tm, rec.splitIdx, nil
}

// LoadDelayedAll loads every remaining delayed split immediately, in order.
// Used for the eager-degrade path when a Path input has multiple splits but
// no manifest was found to drive incremental loading.
func (c *Controller) LoadDelayedAll() error {
	for c.delayedLoaded < len(c.delayedFiles) {
		if err := c.loadDelayed(c.delayedLoaded); err != nil {
			return err
		}
		c.delayedLoaded++
	}
	return nil
}

func (c *Controller) totalTensorsSeen() int {
	return len(c.tensorInfo)
}

// AllTensorsLoaded reports whether every tensor registered for splitIdx has
// been marked loaded.
func (c *Controller) AllTensorsLoaded(splitIdx int) (bool, error) {
	si, ok := c.splitInfo[splitIdx]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownSplit, splitIdx)
	}
	if si.released {
		return false, fmt.Errorf("%w: split %d", ErrUseAfterRelease, splitIdx)
	}
	return si.allTensorsLoaded(), nil
}

// SplitDataSize returns the total tensor-byte size registered for splitIdx.
func (c *Controller) SplitDataSize(splitIdx int) (uint64, error) {
	si, ok := c.splitInfo[splitIdx]
	if !ok {
		return 0, fmt.Errorf("%w: %d", ErrUnknownSplit, splitIdx)
	}
	if si.released {
		return 0, fmt.Errorf("%w: split %d", ErrUseAfterRelease, splitIdx)
	}
	return si.dataSize, nil
}

// SplitIdxForTensor returns the split a tensor was registered in.
func (c *Controller) SplitIdxForTensor(name string) (int, error) {
	rec, ok := c.tensorInfo[name]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownTensor, name)
	}
	if si := c.splitInfo[rec.splitIdx]; si != nil && si.released {
		return 0, fmt.Errorf("%w: tensor %s in split %d", ErrUseAfterRelease, name, rec.splitIdx)
	}
	return rec.splitIdx, nil
}

// ReleaseSplit drops the ByteSource for splitIdx. Idempotent; any later
// access to that split's tensors (there should be none, by invariant 4) is
// reported as ErrUseAfterRelease rather than silently succeeding.
func (c *Controller) ReleaseSplit(splitIdx int) error {
	si, ok := c.splitInfo[splitIdx]
	if !ok {
		return fmt.Errorf("%w: %d", ErrUnknownSplit, splitIdx)
	}
	if si.released {
		return nil
	}
	if closer, ok := c.sources[splitIdx].(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	delete(c.sources, splitIdx)
	si.released = true
	if splitIdx > 0 {
		c.delayedFiles[splitIdx-1].release()
	}
	return nil
}

// ExpectedCount returns the size of the expected-tensor set.
func (c *Controller) ExpectedCount() int { return len(c.expected) }

// SplitStatus is a read-only snapshot of one split's progress, used by
// status/inspection tooling.
type SplitStatus struct {
	Index             int
	TotalTensorCount  int
	LoadedTensorCount int
	DataSize          uint64
	Released          bool
	Loaded            bool
}

// Snapshot returns a stable, ordered view of every split's current state.
func (c *Controller) Snapshot() []SplitStatus {
	out := make([]SplitStatus, 0, len(c.splitInfo))
	for idx := 0; idx <= len(c.delayedFiles); idx++ {
		si, ok := c.splitInfo[idx]
		if !ok {
			continue
		}
		loaded := idx == 0
		if idx > 0 {
			loaded = c.delayedFiles[idx-1].Loaded()
		}
		out = append(out, SplitStatus{
			Index:             idx,
			TotalTensorCount:  si.totalTensorCount,
			LoadedTensorCount: si.loadedTensorCount,
			DataSize:          si.dataSize,
			Released:          si.released,
			Loaded:            loaded,
		})
	}
	return out
}

// TensorIgnored reports whether name should be skipped by the upstream
// layer: true when there is no controller at all (handled by the facade for
// single-split loads) or when the controller's expected set excludes name.
func (c *Controller) TensorIgnored(name string) bool {
	if c == nil {
		return true
	}
	return !c.expected.Contains(name)
}
