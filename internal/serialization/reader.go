package serialization

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/born-ml/seqtensor/internal/device"
	"github.com/born-ml/seqtensor/internal/lod"
	"github.com/born-ml/seqtensor/internal/lodtensor"
	"github.com/born-ml/seqtensor/internal/tensor"
	"github.com/golang/snappy"
)

// ReaderOptions configures Load.
type ReaderOptions struct {
	SkipChecksumValidation bool            // Skip checksum validation (faster but less safe)
	ValidationLevel        ValidationLevel // Validation strictness level
}

// DefaultReaderOptions returns strict validation with checksum verification.
func DefaultReaderOptions() ReaderOptions {
	return ReaderOptions{ValidationLevel: ValidationStrict}
}

// Info describes a stored sequence tensor.
type Info struct {
	ID         string
	Format     string
	Version    string
	DType      tensor.DataType
	Shape      tensor.Shape
	Levels     int
	Checksum   string            // Hex SHA-256 of the data section.
	Compressed bool              // Stream was snappy-framed.
	Metadata   map[string]string // User metadata, reserved keys excluded.
}

func newInfo(t *lodtensor.Tensor, metadata map[string]string, compressed bool) *Info {
	info := &Info{
		ID:         metadata[MetaID],
		Format:     metadata[MetaFormat],
		Version:    metadata[MetaVersion],
		DType:      t.DType(),
		Shape:      t.Shape().Clone(),
		Levels:     t.NumLevels(),
		Checksum:   metadata[MetaChecksum],
		Compressed: compressed,
		Metadata:   make(map[string]string),
	}
	for k, v := range metadata {
		if !isReserved(k) {
			info.Metadata[k] = v
		}
	}
	return info
}

// Load reads a sequence tensor from r and places it on ctx. ctx may be nil for
// a host-only tensor.
func Load(r io.Reader, ctx device.Context, opts ReaderOptions) (*lodtensor.Tensor, *Info, error) {
	br := bufio.NewReader(r)
	var src io.Reader = br
	compressed := false
	if magic, err := br.Peek(len(snappyMagic)); err == nil && string(magic) == snappyMagic {
		compressed = true
		src = snappy.NewReader(br)
	}

	metadata, metas, err := readHeader(src)
	if err != nil {
		return nil, nil, err
	}

	var payload bytes.Buffer
	sum, err := ComputeChecksumReader(io.TeeReader(src, &payload))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	if err := ValidateTensors(metas, int64(payload.Len()), opts.ValidationLevel); err != nil {
		return nil, nil, fmt.Errorf("validation failed: %w", err)
	}

	if !opts.SkipChecksumValidation {
		stored, err := parseChecksum(metadata[MetaChecksum])
		if err != nil {
			return nil, nil, err
		}
		if err := ValidateChecksum(sum, stored); err != nil {
			return nil, nil, err
		}
	}

	t, err := buildTensor(ctx, metadata, metas, payload.Bytes(), opts.ValidationLevel)
	if err != nil {
		return nil, nil, err
	}
	return t, newInfo(t, metadata, compressed), nil
}

// LoadFile reads a sequence tensor from the file at path.
func LoadFile(path string, ctx device.Context, opts ReaderOptions) (*lodtensor.Tensor, *Info, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for loading
	file, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	return Load(file, ctx, opts)
}

func readHeader(r io.Reader) (map[string]string, []TensorMeta, error) {
	var headerSize uint64
	if err := binary.Read(r, binary.LittleEndian, &headerSize); err != nil {
		return nil, nil, fmt.Errorf("failed to read header size: %w", err)
	}
	if headerSize > MaxHeaderSize {
		return nil, nil, ErrHeaderTooLarge
	}

	headerBytes := make([]byte, headerSize)
	if _, err := io.ReadFull(r, headerBytes); err != nil {
		return nil, nil, fmt.Errorf("failed to read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}

	var metadata map[string]string
	metaJSON, ok := raw[metadataKey]
	if !ok {
		return nil, nil, fmt.Errorf("%w: no %s block", ErrInvalidHeader, metadataKey)
	}
	if err := json.Unmarshal(metaJSON, &metadata); err != nil {
		return nil, nil, fmt.Errorf("%w: metadata: %v", ErrInvalidHeader, err)
	}
	if metadata[MetaFormat] != FormatName {
		return nil, nil, fmt.Errorf("%w: format %q, expected %q", ErrInvalidHeader, metadata[MetaFormat], FormatName)
	}
	if metadata[MetaVersion] != FormatVersion {
		return nil, nil, fmt.Errorf("%w: unsupported version %q", ErrInvalidHeader, metadata[MetaVersion])
	}

	metas := make([]TensorMeta, 0, len(raw)-1)
	for name, msg := range raw {
		if name == metadataKey {
			continue
		}
		var h SafeTensorHeader
		if err := json.Unmarshal(msg, &h); err != nil {
			return nil, nil, fmt.Errorf("%w: tensor %q: %v", ErrInvalidHeader, name, err)
		}
		shape := make([]int, len(h.Shape))
		for i, dim := range h.Shape {
			shape[i] = int(dim)
		}
		metas = append(metas, TensorMeta{
			Name:   name,
			DType:  h.DType,
			Shape:  shape,
			Offset: h.DataOffsets[0],
			Size:   h.DataOffsets[1] - h.DataOffsets[0],
		})
	}
	return metadata, metas, nil
}

func buildTensor(ctx device.Context, metadata map[string]string, metas []TensorMeta, payload []byte, level ValidationLevel) (*lodtensor.Tensor, error) {
	levels, err := strconv.Atoi(metadata[MetaLevels])
	if err != nil || levels < 0 {
		return nil, fmt.Errorf("%w: levels %q", ErrInvalidHeader, metadata[MetaLevels])
	}

	byName := make(map[string]TensorMeta, len(metas))
	for _, m := range metas {
		byName[m.Name] = m
	}
	dataMeta, ok := byName[DataTensor]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMissingTensor, DataTensor)
	}
	if levels > len(byName)-1 {
		return nil, fmt.Errorf("%w: %d index levels but only %d tensors", ErrInvalidHeader, levels, len(byName))
	}
	if level == ValidationStrict && len(byName) != levels+1 {
		return nil, fmt.Errorf("%w: %d tensors for %d index levels", ErrInvalidHeader, len(byName), levels)
	}
	dtype, err := safeTensorsToDtype(dataMeta.DType)
	if err != nil {
		return nil, err
	}
	shape := tensor.Shape(dataMeta.Shape)
	if err := shape.Validate(); err != nil {
		return nil, fmt.Errorf("%w: tensor %q: %v", ErrInvalidHeader, DataTensor, err)
	}
	n, ok := elementsWithin(shape, len(payload)/dtype.Size())
	if !ok {
		return nil, fmt.Errorf("%w: tensor %q: shape %v exceeds the data section", ErrInvalidHeader, DataTensor, shape)
	}
	if want := int64(n * dtype.Size()); want != dataMeta.Size {
		return nil, fmt.Errorf("%w: tensor %q holds %d bytes, shape %v needs %d",
			ErrInvalidHeader, DataTensor, dataMeta.Size, shape, want)
	}
	data, err := region(payload, dataMeta)
	if err != nil {
		return nil, err
	}

	offsets := make([][]uint64, levels)
	for k := range offsets {
		name := levelName(k)
		m, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrMissingTensor, name)
		}
		if m.DType != DTypeU64 || len(m.Shape) != 1 || m.Shape[0] < 0 || m.Size%8 != 0 || int64(m.Shape[0]) != m.Size/8 {
			return nil, fmt.Errorf("%w: tensor %q must be a 1-D %s vector", ErrInvalidHeader, name, DTypeU64)
		}
		buf, err := region(payload, m)
		if err != nil {
			return nil, err
		}
		offsets[k] = make([]uint64, m.Shape[0])
		for i := range offsets[k] {
			offsets[k][i] = binary.LittleEndian.Uint64(buf[i*8:])
		}
	}

	raw, err := tensor.NewRaw(ctx, shape, dtype)
	if err != nil {
		return nil, err
	}
	dst, err := raw.MutableBytes()
	if err != nil {
		raw.Release()
		return nil, err
	}
	copy(dst, data)

	index, err := lod.FromOffsets(ctx, offsets)
	if err != nil {
		raw.Release()
		return nil, fmt.Errorf("index: %w", err)
	}

	t := lodtensor.FromRaw(raw, index)
	if level == ValidationStrict {
		if err := t.CheckConsistency(); err != nil {
			t.Release()
			return nil, err
		}
	}
	return t, nil
}

// region returns the bytes of m, bounds-checked even when validation is off.
func region(payload []byte, m TensorMeta) ([]byte, error) {
	if m.Offset < 0 || m.Size < 0 || m.Offset > int64(len(payload)) || m.Size > int64(len(payload))-m.Offset {
		return nil, &ValidationError{
			Type:    "out_of_bounds",
			Tensor:  m.Name,
			Details: fmt.Sprintf("offset %d + size %d > data_size %d", m.Offset, m.Size, len(payload)),
		}
	}
	return payload[m.Offset : m.Offset+m.Size], nil
}

// elementsWithin returns the element count of shape if it does not exceed limit.
func elementsWithin(shape tensor.Shape, limit int) (int, bool) {
	n := 1
	for _, dim := range shape {
		if dim == 0 {
			return 0, true
		}
	}
	for _, dim := range shape {
		if n > limit/dim {
			return 0, false
		}
		n *= dim
	}
	return n, true
}
