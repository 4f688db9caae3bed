package memory

import (
	"errors"
	"fmt"
	"unsafe"
)

// Elem is the constraint for DualBuffer element types. Elements must have a fixed
// size so they can be moved to and from device memory as raw bytes.
type Elem interface {
	~uint8 | ~int32 | ~int64 | ~uint32 | ~uint64 | ~float32 | ~float64
}

// ErrOutOfBounds is matched by every *BoundsError.
var ErrOutOfBounds = errors.New("index out of bounds")

// BoundsError reports an index or level access outside the valid range.
type BoundsError struct {
	What  string // "element", "level", "range", ...
	Index int
	Len   int
}

// Error implements the error interface.
func (e *BoundsError) Error() string {
	return fmt.Sprintf("%s index %d out of bounds [0, %d)", e.What, e.Index, e.Len)
}

// Is makes errors.Is(err, ErrOutOfBounds) succeed.
func (e *BoundsError) Is(target error) bool {
	return target == ErrOutOfBounds
}

func elemSize[T Elem]() int {
	var zero T
	return int(unsafe.Sizeof(zero))
}

// AsBytes reinterprets data as its underlying bytes without copying.
func AsBytes[T Elem](data []T) []byte {
	if len(data) == 0 {
		return []byte{}
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, length derived from len(data)
	return unsafe.Slice((*byte)(unsafe.Pointer(&data[0])), len(data)*elemSize[T]())
}

// AsSlice reinterprets raw bytes as a []T without copying. Trailing bytes that do
// not form a whole element are ignored.
func AsSlice[T Elem](raw []byte) []T {
	n := len(raw) / elemSize[T]()
	if n == 0 {
		return []T{}
	}
	//nolint:gosec // unsafe.Slice for zero-copy performance, bounded by len(raw)
	return unsafe.Slice((*T)(unsafe.Pointer(&raw[0])), n)
}
