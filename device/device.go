// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

// Package device provides the accelerator contexts sequence tensors are placed on.
//
// A Context is created explicitly by the caller and passed to every
// constructor that may place data on the accelerator. Passing a nil Context
// keeps data on the host; device accessors then fail with ErrDeviceUnavailable.
//
// Available contexts:
//   - Emulated: host memory behind an in-order command queue (all platforms)
//   - WebGPU: zero-CGO GPU access via go-webgpu (Windows)
//
// Example:
//
//	ctx, err := device.Open("webgpu")
//	if err != nil {
//	    ctx, _ = device.Open("emulated")
//	}
//	defer device.Close(ctx)
package device

import (
	"fmt"
	"strings"

	"github.com/born-ml/seqtensor/internal/device"
	"github.com/born-ml/seqtensor/internal/device/webgpu"
)

// Context is an accelerator context.
type Context = device.Context

// Buffer is device memory owned by a Context.
type Buffer = device.Buffer

// Stats reports transfer and allocation counters of a Context.
type Stats = device.Stats

// Emulated is a host-memory context with accelerator semantics.
type Emulated = device.Emulated

// EmulatedConfig configures an Emulated context.
type EmulatedConfig = device.EmulatedConfig

// Kernel is a computation launched on an Emulated context.
type Kernel = device.Kernel

// WebGPU is a GPU context backed by go-webgpu.
type WebGPU = webgpu.Context

// Errors.
var (
	ErrDeviceUnavailable = device.ErrDeviceUnavailable
	ErrForeignBuffer     = device.ErrForeignBuffer
)

// Context names accepted by Open.
const (
	NameEmulated = "emulated"
	NameWebGPU   = "webgpu"
)

// DefaultEmulatedConfig returns the default Emulated configuration.
func DefaultEmulatedConfig() EmulatedConfig {
	return device.DefaultEmulatedConfig()
}

// NewEmulated creates an Emulated context.
func NewEmulated(cfg EmulatedConfig) *Emulated {
	return device.NewEmulated(cfg)
}

// NewWebGPU creates a WebGPU context. It fails with ErrDeviceUnavailable when
// no adapter is present or the platform is unsupported.
func NewWebGPU() (*WebGPU, error) {
	return webgpu.New()
}

// Open creates a context by name. The empty name and "none" return a nil
// Context for host-only use.
func Open(name string) (Context, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return nil, nil
	case NameEmulated:
		return device.NewEmulated(device.DefaultEmulatedConfig()), nil
	case NameWebGPU:
		ctx, err := webgpu.New()
		if err != nil {
			return nil, err
		}
		return ctx, nil
	default:
		return nil, fmt.Errorf("device: unknown context %q", name)
	}
}

// Close releases a context returned by Open. A nil Context is ignored.
func Close(ctx Context) {
	if r, ok := ctx.(interface{ Release() }); ok {
		r.Release()
	}
}
