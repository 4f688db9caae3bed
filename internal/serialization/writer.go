package serialization

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"

	"github.com/born-ml/seqtensor/internal/lodtensor"
	"github.com/born-ml/seqtensor/internal/memory"
	"github.com/golang/snappy"
	"github.com/google/uuid"
)

// Options configures Save.
type Options struct {
	Compress bool              // Wrap the stream in the snappy framing format.
	ID       string            // File id; a random UUID when empty.
	Metadata map[string]string // Extra metadata; reserved keys are rejected.
}

// DefaultOptions returns uncompressed output with a generated id.
func DefaultOptions() Options {
	return Options{}
}

type entry struct {
	name   string
	header SafeTensorHeader
	data   []byte
}

// Save writes t to w. Device-side data is synchronized to the host first.
//
// Entries are written in alphabetical order by name.
func Save(w io.Writer, t *lodtensor.Tensor, opts Options) (*Info, error) {
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	} else if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("invalid file id %q: %w", id, err)
	}
	for k := range opts.Metadata {
		if isReserved(k) {
			return nil, fmt.Errorf("%w: metadata key %q is reserved", ErrInvalidHeader, k)
		}
	}

	entries, err := collectEntries(t)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].name < entries[j].name })

	var offset int64
	sections := make([]io.Reader, len(entries))
	for i := range entries {
		size := int64(len(entries[i].data))
		entries[i].header.DataOffsets = [2]int64{offset, offset + size}
		offset += size
		sections[i] = bytes.NewReader(entries[i].data)
	}
	sum, err := ComputeChecksumReader(io.MultiReader(sections...))
	if err != nil {
		return nil, err
	}

	metadata := make(map[string]string, len(opts.Metadata)+5)
	for k, v := range opts.Metadata {
		metadata[k] = v
	}
	metadata[MetaFormat] = FormatName
	metadata[MetaVersion] = FormatVersion
	metadata[MetaID] = id
	metadata[MetaLevels] = strconv.Itoa(t.NumLevels())
	metadata[MetaChecksum] = formatChecksum(sum)

	header := make(map[string]any, len(entries)+1)
	header[metadataKey] = metadata
	for _, e := range entries {
		header[e.name] = e.header
	}

	headerJSON, err := json.Marshal(header)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal header: %w", err)
	}

	out := w
	var sw *snappy.Writer
	if opts.Compress {
		sw = snappy.NewBufferedWriter(w)
		out = sw
	}

	if err := binary.Write(out, binary.LittleEndian, uint64(len(headerJSON))); err != nil {
		return nil, fmt.Errorf("failed to write header size: %w", err)
	}
	if _, err := out.Write(headerJSON); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	for _, e := range entries {
		if _, err := out.Write(e.data); err != nil {
			return nil, fmt.Errorf("failed to write tensor %s: %w", e.name, err)
		}
	}
	if sw != nil {
		if err := sw.Close(); err != nil {
			return nil, fmt.Errorf("failed to flush compressed stream: %w", err)
		}
	}

	return newInfo(t, metadata, opts.Compress), nil
}

// SaveFile writes t to the file at path, creating or truncating it.
func SaveFile(path string, t *lodtensor.Tensor, opts Options) (*Info, error) {
	//nolint:gosec // G304: File path comes from user input, which is expected for saving
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}

	info, err := Save(file, t, opts)
	if err != nil {
		_ = file.Close()
		return nil, err
	}
	if err := file.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return info, nil
}

func collectEntries(t *lodtensor.Tensor) ([]entry, error) {
	raw := t.Raw()
	dtype, err := dtypeToSafeTensors(raw.DType())
	if err != nil {
		return nil, err
	}
	data, err := raw.Bytes()
	if err != nil {
		return nil, fmt.Errorf("failed to read tensor data: %w", err)
	}

	shape := make([]int64, len(raw.Shape()))
	for i, dim := range raw.Shape() {
		shape[i] = int64(dim)
	}
	entries := []entry{{
		name:   DataTensor,
		header: SafeTensorHeader{DType: dtype, Shape: shape},
		data:   data,
	}}

	offsets, err := t.LoD().Offsets()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	for k, level := range offsets {
		entries = append(entries, entry{
			name:   levelName(k),
			header: SafeTensorHeader{DType: DTypeU64, Shape: []int64{int64(len(level))}},
			data:   memory.AsBytes(level),
		})
	}
	return entries, nil
}
