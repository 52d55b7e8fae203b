package splitload

import "errors"

var (
	// ErrUnknownTensor is returned when a requested tensor name is not a
	// member of the expected-tensor set.
	ErrUnknownTensor = errors.New("splitload: unknown tensor")

	// ErrMissingWeight is returned when a split's container declares a
	// tensor that has no corresponding metadata entry.
	ErrMissingWeight = errors.New("splitload: tensor metadata missing")

	// ErrSplitIndexMismatch is returned when a split's own recorded index
	// does not match the index it was loaded at.
	ErrSplitIndexMismatch = errors.New("splitload: split index mismatch")

	// ErrSplitOrderViolation is returned when a split is loaded out of
	// strictly increasing index order.
	ErrSplitOrderViolation = errors.New("splitload: split order violation")

	// ErrTensorCountMismatch is returned when, after exhausting every
	// delayed split, the total number of distinct tensors seen does not
	// equal the expected-tensor set's size.
	ErrTensorCountMismatch = errors.New("splitload: tensor count mismatch")

	// ErrUseAfterRelease is returned when a split is accessed after its
	// ByteSource has been released.
	ErrUseAfterRelease = errors.New("splitload: use after release")

	// ErrUnknownSplit is returned when a split index has no recorded
	// split-info entry.
	ErrUnknownSplit = errors.New("splitload: unknown split index")
)
