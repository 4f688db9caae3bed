// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package tensor

import (
	"github.com/born-ml/seqtensor/internal/device"
	"github.com/born-ml/seqtensor/internal/tensor"
)

// DType is a constraint for tensor data types.
// Supported types: float32, float64, int32, int64, uint8.
type DType = tensor.DType

// DataType represents the underlying data type of a tensor.
type DataType = tensor.DataType

// Data type constants.
const (
	Float32 DataType = tensor.Float32
	Float64 DataType = tensor.Float64
	Int32   DataType = tensor.Int32
	Int64   DataType = tensor.Int64
	Uint8   DataType = tensor.Uint8
)

// Place names the memory a tensor payload is accessed in.
type Place = tensor.Place

// Place constants.
const (
	CPUPlace Place = tensor.CPUPlace
	GPUPlace Place = tensor.GPUPlace
)

// Shape represents the dimensions of a tensor.
// Example: Shape{14, 16} is 14 rows of width 16.
type Shape = tensor.Shape

// RawTensor is a shape, a data type and a host/device payload.
type RawTensor = tensor.RawTensor

// Placed is a typed handle on tensor storage in one place.
type Placed[T DType] = tensor.Placed[T]

// ErrDTypeMismatch is returned when typed access does not match the tensor dtype.
var ErrDTypeMismatch = tensor.ErrDTypeMismatch

// NewRaw creates a zeroed tensor of the given shape and type. ctx may be nil
// for host-only tensors.
func NewRaw(ctx device.Context, shape Shape, dtype DataType) (*RawTensor, error) {
	return tensor.NewRaw(ctx, shape, dtype)
}

// FromSlice creates a tensor holding a copy of data.
func FromSlice[T DType](ctx device.Context, data []T, shape Shape) (*RawTensor, error) {
	return tensor.FromSlice(ctx, data, shape)
}

// HostData returns the host payload as []T for reading.
func HostData[T DType](r *RawTensor) ([]T, error) {
	return tensor.HostData[T](r)
}

// MutableHostData returns the host payload as []T for writing.
func MutableHostData[T DType](r *RawTensor) ([]T, error) {
	return tensor.MutableHostData[T](r)
}

// MutableDataOn returns writable storage for place; the other place becomes stale.
func MutableDataOn[T DType](r *RawTensor, place Place) (Placed[T], error) {
	return tensor.MutableDataOn[T](r, place)
}
