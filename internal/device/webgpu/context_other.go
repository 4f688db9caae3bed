//go:build !windows

// Package webgpu implements a device.Context on WebGPU.
// The native runtime is only wired on windows; elsewhere New reports the device as unavailable.
package webgpu

import (
	"fmt"

	"github.com/born-ml/seqtensor/internal/device"
)

// Context is unavailable on this platform.
type Context struct {
	device.Context
}

// New always fails on this platform.
func New() (*Context, error) {
	return nil, fmt.Errorf("webgpu: not supported on this platform: %w", device.ErrDeviceUnavailable)
}

// IsAvailable reports false on this platform.
func IsAvailable() bool {
	return false
}

// Release is a no-op.
func (c *Context) Release() {}
