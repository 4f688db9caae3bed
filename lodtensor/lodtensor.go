// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package lodtensor provides sequence tensors: dense storage plus a
// level-of-detail (LoD) index describing nested variable-length sequences.
//
// # Index Layout
//
// Level k holds offsets into the ranges of level k+1; the innermost level
// holds offsets into the rows of the dense tensor:
//
//	level 0: [0 1 3]        2 documents of 1 and 2 sentences
//	level 1: [0 2 3 6]      3 sentences of 2, 1 and 3 rows
//	data:    shape [6, 16]
//
// Levels are checked on their own when pushed; agreement between levels and
// with the dense shape is checked on request by Validate and CheckConsistency.
//
// # Host and Device
//
// Every buffer is a DualBuffer kept coherent between host and accelerator:
// reading one side synchronizes it, writing one side marks the other stale.
// Kernels that write device memory directly must be followed by SyncFromDevice.
//
// # Persistence
//
// Save and Load use the SafeTensors layout with an id, a checksum and
// optional snappy compression.
package lodtensor

import (
	"io"

	"github.com/born-ml/seqtensor/internal/device"
	"github.com/born-ml/seqtensor/internal/lod"
	"github.com/born-ml/seqtensor/internal/lodtensor"
	"github.com/born-ml/seqtensor/internal/memory"
	"github.com/born-ml/seqtensor/internal/serialization"
	"github.com/born-ml/seqtensor/internal/tensor"
)

// Tensor is a sequence tensor.
type Tensor = lodtensor.Tensor

// LoD is a hierarchical index of offset levels.
type LoD = lod.LoD

// Level is one offset level of a LoD.
type Level = lod.Level

// DualBuffer is a vector mirrored between host and accelerator memory.
type DualBuffer[T memory.Elem] = memory.DualBuffer[T]

// State is the coherence state of a DualBuffer.
type State = memory.State

// Coherence states.
const (
	HostAuthoritative   State = memory.HostAuthoritative
	DeviceAuthoritative State = memory.DeviceAuthoritative
	Synced              State = memory.Synced
)

// ConsistencyError reports a disagreement between the index and the dense shape.
type ConsistencyError = lodtensor.ConsistencyError

// BoundsError reports an out-of-range index.
type BoundsError = memory.BoundsError

// Options configures Save.
type Options = serialization.Options

// ReaderOptions configures Load.
type ReaderOptions = serialization.ReaderOptions

// Info describes a stored sequence tensor.
type Info = serialization.Info

// ValidationLevel controls how strictly Load checks its input.
type ValidationLevel = serialization.ValidationLevel

// Validation levels.
const (
	ValidationStrict ValidationLevel = serialization.ValidationStrict
	ValidationNormal ValidationLevel = serialization.ValidationNormal
	ValidationNone   ValidationLevel = serialization.ValidationNone
)

// Errors.
var (
	ErrNoLoD            = lodtensor.ErrNoLoD
	ErrInvalidLevel     = lod.ErrInvalidLevel
	ErrInconsistent     = lod.ErrInconsistent
	ErrOutOfBounds      = memory.ErrOutOfBounds
	ErrChecksumMismatch = serialization.ErrChecksumMismatch
)

// New creates an empty tensor of dtype with shape [0] and an empty index.
func New(ctx device.Context, dtype tensor.DataType) (*Tensor, error) {
	return lodtensor.New(ctx, dtype)
}

// FromRaw wraps dense storage and an index; ownership moves to the tensor.
func FromRaw(raw *tensor.RawTensor, index *LoD) *Tensor {
	return lodtensor.FromRaw(raw, index)
}

// FromSequences builds a one-level tensor with one range per sequence.
func FromSequences[T tensor.DType](ctx device.Context, seqs [][]T) (*Tensor, error) {
	return lodtensor.FromSequences(ctx, seqs)
}

// NewLoD creates an empty index on ctx.
func NewLoD(ctx device.Context) *LoD {
	return lod.New(ctx)
}

// LoDFromOffsets builds an index from per-level offsets, outermost first.
func LoDFromOffsets(ctx device.Context, levels [][]uint64) (*LoD, error) {
	return lod.FromOffsets(ctx, levels)
}

// NewDualBuffer creates a host-authoritative buffer holding a copy of initial.
func NewDualBuffer[T memory.Elem](ctx device.Context, initial []T) *DualBuffer[T] {
	return memory.New(ctx, initial)
}

// MutableDataOn returns writable dense storage for place.
func MutableDataOn[T tensor.DType](t *Tensor, place tensor.Place) (tensor.Placed[T], error) {
	return lodtensor.MutableDataOn[T](t, place)
}

// HostData returns the dense storage as []T for reading on the host.
func HostData[T tensor.DType](t *Tensor) ([]T, error) {
	return lodtensor.HostData[T](t)
}

// DefaultOptions returns uncompressed output with a generated id.
func DefaultOptions() Options {
	return serialization.DefaultOptions()
}

// DefaultReaderOptions returns strict validation with checksum verification.
func DefaultReaderOptions() ReaderOptions {
	return serialization.DefaultReaderOptions()
}

// Save writes t to w.
func Save(w io.Writer, t *Tensor, opts Options) (*Info, error) {
	return serialization.Save(w, t, opts)
}

// Load reads a tensor from r onto ctx.
func Load(r io.Reader, ctx device.Context, opts ReaderOptions) (*Tensor, *Info, error) {
	return serialization.Load(r, ctx, opts)
}

// SaveFile writes t to path.
func SaveFile(path string, t *Tensor, opts Options) (*Info, error) {
	return serialization.SaveFile(path, t, opts)
}

// LoadFile reads a tensor from path onto ctx.
func LoadFile(path string, ctx device.Context, opts ReaderOptions) (*Tensor, *Info, error) {
	return serialization.LoadFile(path, ctx, opts)
}
