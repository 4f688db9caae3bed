// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package tensor provides the dense storage underneath sequence tensors.
//
// # Overview
//
// A RawTensor is a shape, a data type and a payload that can live on the
// host, on an accelerator, or on both:
//   - Typed host views via HostData / MutableHostData
//   - Writable storage in a given place via MutableDataOn
//   - Explicit resynchronization via SyncFromDevice after kernels wrote
//     device memory directly
//
// # Basic Usage
//
//	import (
//	    "github.com/born-ml/seqtensor/device"
//	    "github.com/born-ml/seqtensor/tensor"
//	)
//
//	func main() {
//	    ctx := device.NewEmulated(device.DefaultEmulatedConfig())
//	    defer ctx.Release()
//
//	    raw, _ := tensor.FromSlice(ctx, []float32{1, 2, 3, 4}, tensor.Shape{2, 2})
//	    gpu, _ := tensor.MutableDataOn[float32](raw, tensor.GPUPlace)
//	    // launch kernels on gpu.Device ...
//	    _ = raw.SyncFromDevice()
//	    host, _ := tensor.HostData[float32](raw)
//	}
//
// # Supported Data Types
//
// The tensor package supports the following data types via the DType constraint:
//   - float32, float64 (floating-point)
//   - int32, int64 (signed integers)
//   - uint8 (unsigned integers)
package tensor
