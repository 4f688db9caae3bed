// Copyright 2025 Born ML Framework. All rights reserved.
// Use of this source code is governed by an Apache 2.0
// license that can be found in the LICENSE file.

package lodtensor_test

import (
	"bytes"
	"testing"

	"github.com/born-ml/seqtensor/device"
	"github.com/born-ml/seqtensor/lodtensor"
	"github.com/born-ml/seqtensor/tensor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicWorkflow(t *testing.T) {
	ctx := device.NewEmulated(device.DefaultEmulatedConfig())
	defer ctx.Release()

	lt, err := lodtensor.New(ctx, tensor.Float32)
	require.NoError(t, err)
	defer lt.Release()
	require.NoError(t, lt.Resize(tensor.Shape{14, 16}))

	index, err := lodtensor.LoDFromOffsets(ctx, [][]uint64{{0, 2, 4, 6, 8, 10, 12, 14}})
	require.NoError(t, err)
	lt.SetLoD(index)
	require.NoError(t, lt.CheckConsistency())

	start, end, err := lt.ElementRange(0, 4)
	require.NoError(t, err)
	assert.Equal(t, 8, start)
	assert.Equal(t, 10, end)

	gpu, err := lodtensor.MutableDataOn[float32](lt, tensor.GPUPlace)
	require.NoError(t, err)
	require.NoError(t, ctx.Launch("fill", func(bufs [][]byte) {
		for i := range bufs[0] {
			bufs[0][i] = 0
		}
		bufs[0][3] = 0x3f // 0.5 in the first element
	}, gpu.Device))
	require.NoError(t, lt.SyncFromDevice())

	var buf bytes.Buffer
	_, err = lodtensor.Save(&buf, lt, lodtensor.Options{Compress: true})
	require.NoError(t, err)

	got, info, err := lodtensor.Load(&buf, nil, lodtensor.DefaultReaderOptions())
	require.NoError(t, err)
	assert.True(t, info.Compressed)
	assert.Equal(t, tensor.Shape{14, 16}, got.Shape())

	data, err := lodtensor.HostData[float32](got)
	require.NoError(t, err)
	assert.Equal(t, float32(0.5), data[0])
}

func TestDualBufferDoubling(t *testing.T) {
	ctx := device.NewEmulated(device.DefaultEmulatedConfig())
	defer ctx.Release()

	buf := lodtensor.NewDualBuffer(ctx, []uint64{0, 1, 6, 8, 10, 11})
	defer buf.Release()

	dev, err := buf.DeviceData()
	require.NoError(t, err)
	assert.Equal(t, lodtensor.Synced, buf.State())

	require.NoError(t, ctx.Launch("double", func(bufs [][]byte) {
		for i := 0; i < 6; i++ {
			bufs[0][i*8] *= 2
		}
	}, dev))
	require.NoError(t, buf.SyncFromDevice())

	got, err := buf.ToSlice()
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 2, 12, 16, 20, 22}, got)
}
