// Package serialization saves and loads sequence tensors in the SafeTensors layout.
//
// A file holds one sequence tensor:
//
//	Format Structure:
//	  [8 bytes: Header Size (uint64 LE)]
//	  [Header: JSON, tensor entries plus "__metadata__"]
//	  [Tensor data: raw little-endian bytes]
//
// Tensor entries:
//   - "data": the dense payload, with its dtype and shape
//   - "lod.<k>": offsets of index level k, dtype U64, shape [len]
//
// Metadata keys "format", "version", "id", "levels" and "checksum" are
// reserved. The checksum is the SHA-256 of the data section.
//
// With Options.Compress the whole stream is wrapped in the snappy framing
// format; Load detects this from the stream magic.
//
// Example usage:
//
//	if err := serialization.SaveFile("batch.seqt", t, serialization.DefaultOptions()); err != nil {
//	    log.Fatal(err)
//	}
//
//	t, info, err := serialization.LoadFile("batch.seqt", ctx, serialization.DefaultReaderOptions())
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(info.ID, t.Shape())
package serialization
