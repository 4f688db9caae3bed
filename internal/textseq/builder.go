// Package textseq turns raw documents into two-level sequence tensors of
// token ids: level 0 groups sentences into documents, level 1 groups tokens
// into sentences.
package textseq

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/born-ml/seqtensor/internal/device"
	"github.com/born-ml/seqtensor/internal/lod"
	"github.com/born-ml/seqtensor/internal/lodtensor"
	"github.com/born-ml/seqtensor/internal/parallel"
	"github.com/born-ml/seqtensor/internal/tensor"
)

// Encoder converts text to token ids.
type Encoder interface {
	Encode(text string) ([]int32, error)
	Name() string
}

// Decoder converts token ids back to text.
type Decoder interface {
	Decode(tokens []int32) (string, error)
}

// Config controls how documents are split and encoded.
type Config struct {
	SentenceDelimiters string          // Runes that end a sentence; kept with it.
	Parallel           parallel.Config // Fan-out over documents.
}

// DefaultConfig splits on ".", "!", "?" and newlines and encodes documents in parallel.
func DefaultConfig() Config {
	cfg := Config{
		SentenceDelimiters: ".!?\n",
		Parallel:           parallel.DefaultConfig(),
	}
	cfg.Parallel.MinChunkSize = 1
	return cfg
}

// Builder encodes batches of documents.
type Builder struct {
	enc Encoder
	cfg Config
}

// NewBuilder returns a Builder using enc. The encoder must be safe for
// concurrent use when cfg.Parallel is enabled.
func NewBuilder(enc Encoder, cfg Config) *Builder {
	return &Builder{enc: enc, cfg: cfg}
}

// Build encodes docs into an int32 tensor of shape [total tokens] on ctx.
// Documents without sentences produce empty ranges.
func (b *Builder) Build(ctx device.Context, docs []string) (*lodtensor.Tensor, error) {
	encoded := make([][][]int32, len(docs))
	err := parallel.ForErr(len(docs), func(i int) error {
		var sentences [][]int32
		for _, s := range SplitSentences(docs[i], b.cfg.SentenceDelimiters) {
			tokens, err := b.enc.Encode(s)
			if err != nil {
				return fmt.Errorf("document %d: %s: %w", i, b.enc.Name(), err)
			}
			sentences = append(sentences, tokens)
		}
		encoded[i] = sentences
		return nil
	}, b.cfg.Parallel)
	if err != nil {
		return nil, err
	}

	docOffsets := []uint64{0}
	sentOffsets := []uint64{0}
	var flat []int32
	for _, sentences := range encoded {
		for _, tokens := range sentences {
			flat = append(flat, tokens...)
			sentOffsets = append(sentOffsets, uint64(len(flat)))
		}
		docOffsets = append(docOffsets, uint64(len(sentOffsets)-1))
	}

	raw, err := tensor.FromSlice(ctx, flat, tensor.Shape{len(flat)})
	if err != nil {
		return nil, err
	}
	index, err := lod.FromOffsets(ctx, [][]uint64{docOffsets, sentOffsets})
	if err != nil {
		raw.Release()
		return nil, err
	}
	return lodtensor.FromRaw(raw, index), nil
}

// Document returns the token ids of every sentence of document doc in a
// tensor produced by Build.
func Document(t *lodtensor.Tensor, doc int) ([][]int32, error) {
	if t.NumLevels() != 2 {
		return nil, fmt.Errorf("textseq: expected 2 index levels, got %d", t.NumLevels())
	}
	first, last, err := t.ElementRange(0, doc)
	if err != nil {
		return nil, err
	}
	data, err := lodtensor.HostData[int32](t)
	if err != nil {
		return nil, err
	}

	sentences := make([][]int32, 0, last-first)
	for s := first; s < last; s++ {
		start, end, err := t.ElementRange(1, s)
		if err != nil {
			return nil, err
		}
		if end > len(data) {
			return nil, &lodtensor.ConsistencyError{FlatElements: end, FirstDim: len(data)}
		}
		sentences = append(sentences, data[start:end])
	}
	return sentences, nil
}

// DecodeDocument returns the text of every sentence of document doc.
func DecodeDocument(t *lodtensor.Tensor, doc int, dec Decoder) ([]string, error) {
	sentences, err := Document(t, doc)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(sentences))
	for i, tokens := range sentences {
		if out[i], err = dec.Decode(tokens); err != nil {
			return nil, fmt.Errorf("document %d sentence %d: %w", doc, i, err)
		}
	}
	return out, nil
}

// SplitSentences cuts text after every delimiter rune. Sentences are trimmed
// and empty ones dropped.
func SplitSentences(text, delimiters string) []string {
	var out []string
	for text != "" {
		i := strings.IndexAny(text, delimiters)
		var s string
		if i < 0 {
			s, text = text, ""
		} else {
			_, size := utf8.DecodeRuneInString(text[i:])
			s, text = text[:i+size], text[i+size:]
		}
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
