// Package textseq builds sequence tensors of token ids from raw documents.
//
// The result has two index levels: documents to sentences, then sentences
// to tokens. Documents are encoded concurrently.
//
// Example usage:
//
//	import "github.com/born-ml/seqtensor/textseq"
//
//	enc, err := textseq.NewTikToken("cl100k_base")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	b := textseq.NewBuilder(enc, textseq.DefaultConfig())
//	t, err := b.Build(nil, []string{"First doc. Two sentences.", "Second doc."})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sentences, _ := textseq.Document(t, 0)
package textseq

import (
	"github.com/born-ml/seqtensor/internal/lodtensor"
	"github.com/born-ml/seqtensor/internal/textseq"
)

// Tiktoken encoding names.
const (
	EncodingCL100kBase = textseq.EncodingCL100kBase
	EncodingP50kBase   = textseq.EncodingP50kBase
	EncodingR50kBase   = textseq.EncodingR50kBase
)

// Encoder converts text to token ids.
type Encoder = textseq.Encoder

// Decoder converts token ids back to text.
type Decoder = textseq.Decoder

// Config controls how documents are split and encoded.
type Config = textseq.Config

// Builder encodes batches of documents.
type Builder = textseq.Builder

// TikToken encodes text with an OpenAI BPE vocabulary.
type TikToken = textseq.TikToken

// DefaultConfig returns the default splitting and fan-out configuration.
func DefaultConfig() Config {
	return textseq.DefaultConfig()
}

// NewBuilder returns a Builder using enc.
func NewBuilder(enc Encoder, cfg Config) *Builder {
	return textseq.NewBuilder(enc, cfg)
}

// NewTikToken loads a tiktoken encoding such as "cl100k_base".
func NewTikToken(encodingName string) (*TikToken, error) {
	return textseq.NewTikToken(encodingName)
}

// NewTikTokenForModel loads the encoding used by a model such as "gpt-4".
func NewTikTokenForModel(modelName string) (*TikToken, error) {
	return textseq.NewTikTokenForModel(modelName)
}

// Document returns the token ids of every sentence of a document.
func Document(t *lodtensor.Tensor, doc int) ([][]int32, error) {
	return textseq.Document(t, doc)
}

// DecodeDocument returns the text of every sentence of a document.
func DecodeDocument(t *lodtensor.Tensor, doc int, dec Decoder) ([]string, error) {
	return textseq.DecodeDocument(t, doc, dec)
}

// SplitSentences cuts text after every delimiter rune.
func SplitSentences(text, delimiters string) []string {
	return textseq.SplitSentences(text, delimiters)
}
