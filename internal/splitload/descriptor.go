package splitload

import (
	"fmt"

	"github.com/thornfield-ai/splitloader/internal/bytesource"
)

// OpenFunc builds the ByteSource for one split on first touch. The caller
// (the loader facade) closes over whichever LoadInput variant is in play —
// a disk open at the split's path, or a FutureByteSource keyed on the
// split's promise key — so this package never branches on provenance.
type OpenFunc func() (bytesource.ByteSource, error)

// SplitDescriptor is one split's lazy loader: it remembers its identity and
// opens its container only on first touch (the "Declared -> Parsed" state
// transition in the design). idx 0 is the base split, pre-parsed by the
// caller before the controller exists; SplitDescriptor is used for indices
// 1..N-1, the "delayed" splits.
type SplitDescriptor struct {
	idx   int
	open  OpenFunc
	parse ParseFunc

	loaded    bool
	container Container
	source    bytesource.ByteSource
	ctx       ModelContext
}

// NewSplitDescriptor constructs a descriptor for split idx (idx must be >=
// 1; split 0 is handled directly by NewController). open builds the split's
// ByteSource and parse turns it into container metadata.
func NewSplitDescriptor(idx int, open OpenFunc, parse ParseFunc) *SplitDescriptor {
	return &SplitDescriptor{idx: idx, open: open, parse: parse}
}

// Loaded reports whether this descriptor has already been parsed.
func (d *SplitDescriptor) Loaded() bool { return d.loaded }

// Index returns the split's assigned index.
func (d *SplitDescriptor) Index() int { return d.idx }

// Load opens and parses the split exactly once, hands the result to ctrl's
// per-split processor, and returns the model context allocated for this
// split (grouping every tensor it declares under one backend buffer type).
// Subsequent calls return the cached context without re-opening anything.
func (d *SplitDescriptor) Load(ctrl *Controller) (ModelContext, error) {
	if d.loaded {
		return d.ctx, nil
	}

	bs, err := d.open()
	if err != nil {
		return nil, fmt.Errorf("splitload: open split %d: %w", d.idx, err)
	}

	c, err := d.parse(bs)
	if err != nil {
		return nil, fmt.Errorf("splitload: parse split %d: %w", d.idx, err)
	}

	if d.idx > 0 {
		gotIdx, _, ok := c.SplitIndex()
		if !ok || gotIdx != d.idx {
			return nil, fmt.Errorf("%w: split %d reports index %d (ok=%v)", ErrSplitIndexMismatch, d.idx, gotIdx, ok)
		}
	}

	if err := ctrl.checkAppendOrder(d.idx); err != nil {
		return nil, err
	}

	if err := ctrl.processSplit(d.idx, c); err != nil {
		return nil, err
	}

	d.loaded = true
	d.container = c
	d.source = bs
	ctrl.recordSource(d.idx, bs)

	ctx, err := ctrl.GetModelCtxForSplitBuft(DefaultBuft, d.idx, nil)
	if err != nil {
		return nil, err
	}
	d.ctx = ctx
	return ctx, nil
}

// release drops this descriptor's ByteSource reference. The controller is
// responsible for actually closing/dropping the underlying source; the
// once-flag is left set, so a later Load returns the cached context without
// re-opening the split.
func (d *SplitDescriptor) release() {
	d.source = nil
}
