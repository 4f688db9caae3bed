// Package lodtensor combines a dense tensor with a level-of-detail index to
// represent a batch of nested variable-length sequences.
//
// The leading dimension of the dense tensor is the concatenation of every
// innermost sequence; the index tells where each sequence starts and ends.
package lodtensor

import (
	"errors"
	"fmt"

	"github.com/born-ml/seqtensor/internal/device"
	"github.com/born-ml/seqtensor/internal/lod"
	"github.com/born-ml/seqtensor/internal/tensor"
)

// ErrNoLoD is returned by operations that need an index when none is attached.
var ErrNoLoD = errors.New("lodtensor: no index attached")

// ConsistencyError reports a disagreement between the index and the dense shape.
type ConsistencyError struct {
	FlatElements int // Last offset of the innermost level.
	FirstDim     int // Leading dimension of the dense tensor.
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("lodtensor: index covers %d rows but tensor has %d", e.FlatElements, e.FirstDim)
}

// Is makes errors.Is(err, lod.ErrInconsistent) succeed.
func (e *ConsistencyError) Is(target error) bool {
	return target == lod.ErrInconsistent
}

// Tensor is a sequence tensor: dense storage plus a LoD index.
//
// The invariant innermost-last-offset == Shape()[0] is the caller's
// responsibility; it is only checked by CheckConsistency.
type Tensor struct {
	raw *tensor.RawTensor
	lod *lod.LoD
}

// New creates an empty tensor of dtype with shape [0] and an empty index.
func New(ctx device.Context, dtype tensor.DataType) (*Tensor, error) {
	raw, err := tensor.NewRaw(ctx, tensor.Shape{0}, dtype)
	if err != nil {
		return nil, err
	}
	return &Tensor{raw: raw, lod: lod.New(ctx)}, nil
}

// FromRaw wraps existing dense storage and index. Ownership of both moves to
// the returned tensor.
func FromRaw(raw *tensor.RawTensor, index *lod.LoD) *Tensor {
	if index == nil {
		index = lod.New(raw.Context())
	}
	return &Tensor{raw: raw, lod: index}
}

// FromSequences builds a one-level tensor of shape [sum(len(seqs[i]))] whose
// index has one range per sequence.
func FromSequences[T tensor.DType](ctx device.Context, seqs [][]T) (*Tensor, error) {
	offsets := make([]uint64, 1, len(seqs)+1)
	var total int
	for _, s := range seqs {
		total += len(s)
		offsets = append(offsets, uint64(total))
	}

	flat := make([]T, 0, total)
	for _, s := range seqs {
		flat = append(flat, s...)
	}

	raw, err := tensor.FromSlice(ctx, flat, tensor.Shape{total})
	if err != nil {
		return nil, err
	}
	index, err := lod.FromOffsets(ctx, [][]uint64{offsets})
	if err != nil {
		raw.Release()
		return nil, err
	}
	return &Tensor{raw: raw, lod: index}, nil
}

// Resize reshapes the dense storage. The index is left untouched and may no
// longer match until a consistent one is attached.
func (t *Tensor) Resize(shape tensor.Shape) error {
	return t.raw.Resize(shape)
}

// SetLoD replaces the index wholesale. The previous index is released.
func (t *Tensor) SetLoD(index *lod.LoD) {
	if t.lod != nil && t.lod != index {
		t.lod.Release()
	}
	if index == nil {
		index = lod.New(t.raw.Context())
	}
	t.lod = index
}

// LoD returns the attached index.
func (t *Tensor) LoD() *lod.LoD {
	return t.lod
}

// Raw returns the dense storage.
func (t *Tensor) Raw() *tensor.RawTensor {
	return t.raw
}

// Shape returns the dense shape.
func (t *Tensor) Shape() tensor.Shape {
	return t.raw.Shape()
}

// DType returns the element type of the dense storage.
func (t *Tensor) DType() tensor.DataType {
	return t.raw.DType()
}

// NumLevels returns the number of index levels.
func (t *Tensor) NumLevels() int {
	return t.lod.NumLevels()
}

// NumElements returns the number of ranges at level.
func (t *Tensor) NumElements(level int) (int, error) {
	return t.lod.NumElements(level)
}

// ElementRange returns the half-open range of element index at level.
func (t *Tensor) ElementRange(level, index int) (start, end int, err error) {
	return t.lod.ElementRange(level, index)
}

// CheckConsistency verifies the index levels against each other and the
// innermost level against the leading dimension of the dense storage.
func (t *Tensor) CheckConsistency() error {
	if t.lod.NumLevels() == 0 {
		return nil
	}
	if err := t.lod.Validate(); err != nil {
		return err
	}
	flat, err := t.lod.NumFlatElements()
	if err != nil {
		return err
	}
	if first := t.raw.FirstDim(); flat != first {
		return &ConsistencyError{FlatElements: flat, FirstDim: first}
	}
	return nil
}

// MutableDataOn returns writable dense storage for place, allocating it if needed.
func MutableDataOn[T tensor.DType](t *Tensor, place tensor.Place) (tensor.Placed[T], error) {
	return tensor.MutableDataOn[T](t.raw, place)
}

// HostData returns the dense storage as []T for reading on the host.
func HostData[T tensor.DType](t *Tensor) ([]T, error) {
	return tensor.HostData[T](t.raw)
}

// SliceInLevel copies elements [begin, end) of level, with all finer levels and
// the data rows they cover, into a new tensor on the same context.
func (t *Tensor) SliceInLevel(level, begin, end int) (*Tensor, error) {
	if t.lod.NumLevels() == 0 {
		return nil, ErrNoLoD
	}
	index, start, stop, err := t.lod.SliceInLevel(level, begin, end)
	if err != nil {
		return nil, err
	}
	if stop > t.raw.FirstDim() {
		index.Release()
		return nil, &ConsistencyError{FlatElements: stop, FirstDim: t.raw.FirstDim()}
	}

	shape := t.raw.Shape().Clone()
	shape[0] = stop - start
	raw, err := tensor.NewRaw(t.raw.Context(), shape, t.raw.DType())
	if err != nil {
		index.Release()
		return nil, err
	}

	src, err := t.raw.Bytes()
	if err != nil {
		index.Release()
		return nil, err
	}
	dst, err := raw.MutableBytes()
	if err != nil {
		index.Release()
		return nil, err
	}
	rowBytes := t.raw.Shape().RowSize() * t.raw.DType().Size()
	copy(dst, src[start*rowBytes:stop*rowBytes])

	return &Tensor{raw: raw, lod: index}, nil
}

// SyncFromDevice copies device-side dense data and every index level back to
// the host. Call it after kernels wrote device memory directly.
func (t *Tensor) SyncFromDevice() error {
	if err := device.Check(t.raw.Context()); err != nil {
		return err
	}
	if t.raw.HasDevice() {
		if err := t.raw.SyncFromDevice(); err != nil {
			return fmt.Errorf("lodtensor: data: %w", err)
		}
	}
	for k := 0; k < t.lod.NumLevels(); k++ {
		lvl, _ := t.lod.Level(k)
		if !lvl.HasDevice() {
			continue
		}
		if err := lvl.SyncFromDevice(); err != nil {
			return fmt.Errorf("lodtensor: level %d: %w", k, err)
		}
	}
	return nil
}

// String summarizes the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("LoDTensor(%s, shape=%v, lod=%s)", t.raw.DType(), t.raw.Shape(), t.lod)
}

// Release frees dense storage and the index.
func (t *Tensor) Release() {
	t.raw.Release()
	t.lod.Release()
}
