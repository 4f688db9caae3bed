// Package main provides the seqtensor CLI.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/born-ml/seqtensor/device"
	"github.com/born-ml/seqtensor/lodtensor"
	"github.com/born-ml/seqtensor/textseq"
)

const version = "v0.1.0-dev"

// encodingKey is the metadata entry naming the tokenizer of a tokenized file.
const encodingKey = "encoding"

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "version":
		fmt.Printf("seqtensor %s\n", version)
	case "inspect":
		err = inspect(os.Args[2:])
	case "tokenize":
		err = tokenize(os.Args[2:])
	case "decode":
		err = decode(os.Args[2:])
	default:
		usage()
		err = fmt.Errorf("unknown command %q", os.Args[1])
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "seqtensor: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("seqtensor - nested variable-length sequence tensors")
	fmt.Printf("Version: %s\n\n", version)
	fmt.Println("Commands:")
	fmt.Println("  version                                Show version")
	fmt.Println("  inspect <file>                         Describe a saved sequence tensor")
	fmt.Println("  tokenize [flags] <out> <doc files...>  Encode documents into a sequence tensor")
	fmt.Println("  decode [flags] <file> <doc>            Print the sentences of a tokenized document")
}

func inspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	noVerify := fs.Bool("no-verify", false, "skip checksum and consistency checks")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("inspect: expected exactly one file")
	}

	opts := lodtensor.DefaultReaderOptions()
	if *noVerify {
		opts = lodtensor.ReaderOptions{SkipChecksumValidation: true, ValidationLevel: lodtensor.ValidationNormal}
	}
	t, info, err := lodtensor.LoadFile(fs.Arg(0), nil, opts)
	if err != nil {
		return err
	}

	fmt.Printf("id:         %s\n", info.ID)
	fmt.Printf("format:     %s v%s\n", info.Format, info.Version)
	fmt.Printf("compressed: %t\n", info.Compressed)
	fmt.Printf("dtype:      %s\n", info.DType)
	fmt.Printf("shape:      %v\n", info.Shape)
	fmt.Printf("checksum:   %s\n", info.Checksum)
	fmt.Printf("lod:        %s\n", t.LoD())
	for k := 0; k < t.NumLevels(); k++ {
		n, _ := t.NumElements(k)
		fmt.Printf("  level %d:  %d ranges\n", k, n)
	}
	if err := t.CheckConsistency(); err != nil {
		fmt.Printf("consistent: no (%v)\n", err)
	} else {
		fmt.Println("consistent: yes")
	}

	keys := make([]string, 0, len(info.Metadata))
	for k := range info.Metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Printf("meta %s = %s\n", k, info.Metadata[k])
	}
	return nil
}

func tokenize(args []string) error {
	fs := flag.NewFlagSet("tokenize", flag.ContinueOnError)
	encoding := fs.String("encoding", textseq.EncodingCL100kBase, "tiktoken encoding name")
	compress := fs.Bool("compress", false, "snappy-compress the output")
	ctxName := fs.String("device", "", "accelerator context: emulated, webgpu or none")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 2 {
		return errors.New("tokenize: expected an output file and at least one document")
	}

	docs := make([]string, 0, fs.NArg()-1)
	for _, path := range fs.Args()[1:] {
		//nolint:gosec // G304: document paths come from the command line
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		docs = append(docs, string(data))
	}

	enc, err := textseq.NewTikToken(*encoding)
	if err != nil {
		return err
	}
	ctx, err := device.Open(*ctxName)
	if err != nil {
		return err
	}
	defer device.Close(ctx)

	t, err := textseq.NewBuilder(enc, textseq.DefaultConfig()).Build(ctx, docs)
	if err != nil {
		return err
	}
	defer t.Release()

	info, err := lodtensor.SaveFile(fs.Arg(0), t, lodtensor.Options{
		Compress: *compress,
		Metadata: map[string]string{encodingKey: enc.Name()},
	})
	if err != nil {
		return err
	}

	n, _ := t.NumElements(1)
	fmt.Printf("wrote %s: %d documents, %d sentences, %d tokens (id %s)\n",
		fs.Arg(0), len(docs), n, t.Shape()[0], info.ID)
	return nil
}

func decode(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	encoding := fs.String("encoding", "", "tiktoken encoding name (default: the one recorded in the file)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 2 {
		return errors.New("decode: expected a file and a document index")
	}
	doc, err := strconv.Atoi(fs.Arg(1))
	if err != nil {
		return fmt.Errorf("decode: document index: %w", err)
	}

	t, info, err := lodtensor.LoadFile(fs.Arg(0), nil, lodtensor.DefaultReaderOptions())
	if err != nil {
		return err
	}
	name := *encoding
	if name == "" {
		name = info.Metadata[encodingKey]
	}
	if name == "" {
		return errors.New("decode: file records no encoding; pass -encoding")
	}
	enc, err := textseq.NewTikToken(name)
	if err != nil {
		return err
	}

	sentences, err := textseq.DecodeDocument(t, doc, enc)
	if err != nil {
		return err
	}
	for i, text := range sentences {
		fmt.Printf("%d\t%s\n", i, text)
	}
	return nil
}
