package serialization

import (
	"fmt"
	"strings"

	"github.com/born-ml/seqtensor/internal/tensor"
)

// Format constants.
const (
	FormatName    = "seqtensor"
	FormatVersion = "1"
	DataTensor    = "data"  // Name of the dense payload entry.
	LevelPrefix   = "lod."  // Prefix of index level entries.
	metadataKey   = "__metadata__"
	snappyMagic   = "\xff\x06\x00\x00sNaPpY" // Snappy framing stream identifier chunk.
	headerLenSize = 8
)

// Reserved metadata keys.
const (
	MetaFormat   = "format"
	MetaVersion  = "version"
	MetaID       = "id"
	MetaLevels   = "levels"
	MetaChecksum = "checksum"
)

// SafeTensors dtype strings.
const (
	DTypeF32 = "F32"
	DTypeF64 = "F64"
	DTypeI32 = "I32"
	DTypeI64 = "I64"
	DTypeU8  = "U8"
	DTypeU64 = "U64"
)

// SafeTensorHeader represents a tensor in the SafeTensors header.
type SafeTensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// TensorMeta describes a tensor region in the data section.
type TensorMeta struct {
	Name   string // Tensor name (e.g., "data", "lod.0")
	DType  string // SafeTensors dtype (e.g., "F32", "U64")
	Shape  []int  // Tensor shape
	Offset int64  // Offset in the data section
	Size   int64  // Size in bytes
}

// levelName returns the entry name of index level k.
func levelName(k int) string {
	return fmt.Sprintf("%s%d", LevelPrefix, k)
}

func isReserved(key string) bool {
	switch key {
	case MetaFormat, MetaVersion, MetaID, MetaLevels, MetaChecksum:
		return true
	}
	return strings.HasPrefix(key, "__")
}

// dtypeToSafeTensors converts tensor.DataType to SafeTensors dtype string.
func dtypeToSafeTensors(dt tensor.DataType) (string, error) {
	switch dt {
	case tensor.Float32:
		return DTypeF32, nil
	case tensor.Float64:
		return DTypeF64, nil
	case tensor.Int32:
		return DTypeI32, nil
	case tensor.Int64:
		return DTypeI64, nil
	case tensor.Uint8:
		return DTypeU8, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedDType, dt)
	}
}

// safeTensorsToDtype converts a SafeTensors dtype string to tensor.DataType.
func safeTensorsToDtype(s string) (tensor.DataType, error) {
	switch s {
	case DTypeF32:
		return tensor.Float32, nil
	case DTypeF64:
		return tensor.Float64, nil
	case DTypeI32:
		return tensor.Int32, nil
	case DTypeI64:
		return tensor.Int64, nil
	case DTypeU8:
		return tensor.Uint8, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedDType, s)
	}
}
