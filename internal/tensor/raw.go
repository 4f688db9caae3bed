package tensor

import (
	"errors"
	"fmt"

	"github.com/born-ml/seqtensor/internal/device"
	"github.com/born-ml/seqtensor/internal/memory"
)

// Place names the memory a tensor payload is accessed in.
type Place int

// Supported places.
const (
	CPUPlace Place = iota
	GPUPlace
)

// String returns a human-readable place name.
func (p Place) String() string {
	switch p {
	case CPUPlace:
		return "CPUPlace"
	case GPUPlace:
		return "GPUPlace"
	default:
		return "UnknownPlace"
	}
}

// ErrDTypeMismatch is returned when typed access does not match the tensor dtype.
var ErrDTypeMismatch = errors.New("tensor: dtype mismatch")

// RawTensor is the dense storage of a sequence tensor: a shape, a dtype and a
// payload kept in a DualBuffer so it can be read and written on either the host
// or the accelerator.
type RawTensor struct {
	buf    *memory.DualBuffer[byte]
	shape  Shape
	stride []int
	dtype  DataType
}

// NewRaw creates a RawTensor with the given shape and type on ctx.
// Memory is zeroed. ctx may be nil for host-only tensors.
func NewRaw(ctx device.Context, shape Shape, dtype DataType) (*RawTensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}
	if !dtype.Valid() {
		return nil, fmt.Errorf("tensor: unknown dtype %d", dtype)
	}

	return &RawTensor{
		buf:    memory.New[byte](ctx, make([]byte, shape.NumElements()*dtype.Size())),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  dtype,
	}, nil
}

// FromSlice creates a host-authoritative tensor holding a copy of data.
func FromSlice[T DType](ctx device.Context, data []T, shape Shape) (*RawTensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("invalid shape: %w", err)
	}

	return &RawTensor{
		buf:    memory.New[byte](ctx, memory.AsBytes(data)),
		shape:  shape.Clone(),
		stride: shape.ComputeStrides(),
		dtype:  DataTypeOf[T](),
	}, nil
}

// Resize reshapes the tensor. The payload is reallocated when it has to grow;
// contents are not meaningful after a resize that changes the byte size.
func (r *RawTensor) Resize(shape Shape) error {
	if err := shape.Validate(); err != nil {
		return fmt.Errorf("invalid shape: %w", err)
	}
	if err := r.buf.Resize(shape.NumElements() * r.dtype.Size()); err != nil {
		return fmt.Errorf("tensor: resize: %w", err)
	}
	r.shape = shape.Clone()
	r.stride = shape.ComputeStrides()
	return nil
}

// Shape returns the tensor's shape.
func (r *RawTensor) Shape() Shape {
	return r.shape
}

// FirstDim returns the leading dimension, or 0 for a scalar.
func (r *RawTensor) FirstDim() int {
	if len(r.shape) == 0 {
		return 0
	}
	return r.shape[0]
}

// Strides returns the tensor's memory strides.
func (r *RawTensor) Strides() []int {
	return r.stride
}

// DType returns the tensor's data type.
func (r *RawTensor) DType() DataType {
	return r.dtype
}

// Context returns the accelerator context of the payload.
func (r *RawTensor) Context() device.Context {
	return r.buf.Context()
}

// NumElements returns the total number of elements.
func (r *RawTensor) NumElements() int {
	return r.shape.NumElements()
}

// ByteSize returns the total memory size in bytes.
func (r *RawTensor) ByteSize() int {
	return r.NumElements() * r.dtype.Size()
}

// State returns the coherence state of the payload.
func (r *RawTensor) State() memory.State {
	return r.buf.State()
}

// HasDevice reports whether device storage has been allocated for the payload.
func (r *RawTensor) HasDevice() bool {
	return r.buf.HasDevice()
}

// Bytes returns the host payload for reading.
func (r *RawTensor) Bytes() ([]byte, error) {
	return r.buf.HostData()
}

// MutableBytes returns the host payload for writing.
func (r *RawTensor) MutableBytes() ([]byte, error) {
	return r.buf.MutableHostData()
}

// DeviceBuffer returns the device payload for reading.
func (r *RawTensor) DeviceBuffer() (device.Buffer, error) {
	return r.buf.DeviceData()
}

// MutableDeviceBuffer returns the device payload for writing; the host copy becomes stale.
func (r *RawTensor) MutableDeviceBuffer() (device.Buffer, error) {
	return r.buf.MutableDeviceData()
}

// SyncFromDevice copies the device payload to the host after out-of-band device writes.
func (r *RawTensor) SyncFromDevice() error {
	return r.buf.SyncFromDevice()
}

// Release frees host and device storage.
func (r *RawTensor) Release() {
	r.buf.Release()
}

// HostData returns the host payload as []T for reading.
func HostData[T DType](r *RawTensor) ([]T, error) {
	if err := checkDType[T](r); err != nil {
		return nil, err
	}
	raw, err := r.buf.HostData()
	if err != nil {
		return nil, err
	}
	return memory.AsSlice[T](raw), nil
}

// MutableHostData returns the host payload as []T for writing.
func MutableHostData[T DType](r *RawTensor) ([]T, error) {
	if err := checkDType[T](r); err != nil {
		return nil, err
	}
	raw, err := r.buf.MutableHostData()
	if err != nil {
		return nil, err
	}
	return memory.AsSlice[T](raw), nil
}

// Placed is a typed handle on tensor storage in one place.
// Host is set for CPUPlace, Device for GPUPlace.
type Placed[T DType] struct {
	Place  Place
	Host   []T
	Device device.Buffer
}

// MutableDataOn returns writable storage for place, allocating it if needed.
// The other place becomes stale.
func MutableDataOn[T DType](r *RawTensor, place Place) (Placed[T], error) {
	switch place {
	case CPUPlace:
		data, err := MutableHostData[T](r)
		if err != nil {
			return Placed[T]{}, err
		}
		return Placed[T]{Place: place, Host: data}, nil
	case GPUPlace:
		if err := checkDType[T](r); err != nil {
			return Placed[T]{}, err
		}
		buf, err := r.MutableDeviceBuffer()
		if err != nil {
			return Placed[T]{}, err
		}
		return Placed[T]{Place: place, Device: buf}, nil
	default:
		return Placed[T]{}, fmt.Errorf("tensor: unknown place %d", place)
	}
}

func checkDType[T DType](r *RawTensor) error {
	if want := DataTypeOf[T](); want != r.dtype {
		return fmt.Errorf("%w: tensor is %s, requested %s", ErrDTypeMismatch, r.dtype, want)
	}
	return nil
}
