package memory

import (
	"testing"

	"github.com/born-ml/seqtensor/internal/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCtx(t *testing.T) *device.Emulated {
	t.Helper()
	ctx := device.NewEmulated(device.DefaultEmulatedConfig())
	t.Cleanup(ctx.Release)
	return ctx
}

// doubleUint64 is a device kernel doubling every uint64 in its first buffer.
func doubleUint64(n int) device.Kernel {
	return func(bufs [][]byte) {
		vals := AsSlice[uint64](bufs[0])[:n]
		for i := range vals {
			vals[i] *= 2
		}
	}
}

func TestNewCopiesInitial(t *testing.T) {
	initial := []int32{10, 20, 30}
	buf := New[int32](nil, initial)
	initial[0] = 99

	assert.Equal(t, 3, buf.Len())
	assert.Equal(t, HostAuthoritative, buf.State())
	assert.False(t, buf.HasDevice())

	data, err := buf.HostData()
	require.NoError(t, err)
	assert.Equal(t, []int32{10, 20, 30}, data)
}

func TestDeviceRoundTripWithExplicitSync(t *testing.T) {
	ctx := newCtx(t)
	buf := New[uint64](ctx, []uint64{0, 1, 6, 8, 10, 11})

	dev, err := buf.DeviceData()
	require.NoError(t, err)
	assert.Equal(t, Synced, buf.State())

	require.NoError(t, ctx.Launch("double", doubleUint64(buf.Len()), dev))

	// The kernel write is invisible to the buffer: the host view is still the old one.
	data, err := buf.HostData()
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 6, 8, 10, 11}, data)

	require.NoError(t, buf.SyncFromDevice())
	data, err = buf.HostData()
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 2, 12, 16, 20, 22}, data)
	assert.Equal(t, Synced, buf.State())
}

func TestMutableDeviceDataMakesHostStale(t *testing.T) {
	ctx := newCtx(t)
	buf := New[float32](ctx, []float32{1, 2, 3})

	dev, err := buf.MutableDeviceData()
	require.NoError(t, err)
	assert.Equal(t, DeviceAuthoritative, buf.State())

	require.NoError(t, ctx.CopyToDevice(dev, AsBytes([]float32{4, 5, 6})))

	// Host read syncs automatically because the buffer knows the device side is newer.
	data, err := buf.HostData()
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5, 6}, data)
	assert.Equal(t, Synced, buf.State())
}

func TestHostReadIsIdempotent(t *testing.T) {
	ctx := newCtx(t)
	buf := New[int64](ctx, []int64{1, 2, 3})

	_, err := buf.MutableDeviceData()
	require.NoError(t, err)
	before := ctx.Stats().DeviceToHostCopies

	_, err = buf.HostData()
	require.NoError(t, err)
	_, err = buf.HostData()
	require.NoError(t, err)

	assert.Equal(t, before+1, ctx.Stats().DeviceToHostCopies)
}

func TestDeviceReadIsIdempotent(t *testing.T) {
	ctx := newCtx(t)
	buf := New[int64](ctx, []int64{1, 2, 3})

	_, err := buf.DeviceData()
	require.NoError(t, err)
	_, err = buf.DeviceData()
	require.NoError(t, err)

	stats := ctx.Stats()
	assert.Equal(t, uint64(1), stats.HostToDeviceCopies)
	assert.Equal(t, int64(1), stats.ActiveBuffers)
}

func TestStateTransitions(t *testing.T) {
	ctx := newCtx(t)
	buf := New[uint32](ctx, []uint32{1, 2})
	assert.Equal(t, HostAuthoritative, buf.State())

	_, err := buf.DeviceData()
	require.NoError(t, err)
	assert.Equal(t, Synced, buf.State())

	_, err = buf.MutableHostData()
	require.NoError(t, err)
	assert.Equal(t, HostAuthoritative, buf.State())

	_, err = buf.MutableDeviceData()
	require.NoError(t, err)
	assert.Equal(t, DeviceAuthoritative, buf.State())

	_, err = buf.HostData()
	require.NoError(t, err)
	assert.Equal(t, Synced, buf.State())
}

func TestHostWriteReuploads(t *testing.T) {
	ctx := newCtx(t)
	buf := New[int32](ctx, []int32{1, 2, 3})

	_, err := buf.DeviceData()
	require.NoError(t, err)
	require.NoError(t, buf.Set(1, 42))

	dev, err := buf.DeviceData()
	require.NoError(t, err)

	out := make([]int32, 3)
	require.NoError(t, ctx.CopyToHost(AsBytes(out), dev))
	assert.Equal(t, []int32{1, 42, 3}, out)
	assert.Equal(t, uint64(2), ctx.Stats().HostToDeviceCopies)
}

func TestAppendGrowsDeviceStorage(t *testing.T) {
	ctx := newCtx(t)
	buf := New[uint64](ctx, []uint64{0, 1})

	_, err := buf.DeviceData()
	require.NoError(t, err)
	require.NoError(t, buf.Append(2, 3, 4))
	assert.Equal(t, 5, buf.Len())

	dev, err := buf.DeviceData()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, dev.Size(), uint64(5*8))

	out := make([]uint64, 5)
	require.NoError(t, ctx.CopyToHost(AsBytes(out), dev))
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, out)
}

func TestClearThenRebuild(t *testing.T) {
	buf := New[int32](nil, []int32{1, 2, 3})
	buf.Clear()
	assert.Equal(t, 0, buf.Len())
	assert.Equal(t, HostAuthoritative, buf.State())

	buf = New[int32](nil, []int32{1, 2, 3})
	data, err := buf.HostData()
	require.NoError(t, err)
	assert.Equal(t, []int32{1, 2, 3}, data)
}

func TestClearKeepsCapacity(t *testing.T) {
	buf := New[int32](nil, []int32{1, 2, 3})
	buf.Clear()
	require.NoError(t, buf.Append(7))

	data, err := buf.HostData()
	require.NoError(t, err)
	assert.Equal(t, []int32{7}, data)
	assert.GreaterOrEqual(t, cap(data), 3)
}

func TestResize(t *testing.T) {
	buf := New[float64](nil, []float64{1, 2, 3})

	require.NoError(t, buf.Resize(2))
	data, _ := buf.HostData()
	assert.Equal(t, []float64{1, 2}, data)

	require.NoError(t, buf.Resize(3))
	data, _ = buf.HostData()
	assert.Equal(t, []float64{1, 2, 0}, data, "regrown elements are zeroed")

	require.NoError(t, buf.Resize(5))
	data, _ = buf.HostData()
	assert.Equal(t, []float64{1, 2, 0, 0, 0}, data)

	assert.Error(t, buf.Resize(-1))
}

func TestAtSetBounds(t *testing.T) {
	buf := New[int32](nil, []int32{5, 6})

	v, err := buf.At(1)
	require.NoError(t, err)
	assert.Equal(t, int32(6), v)

	tests := []int{-1, 2, 100}
	for _, i := range tests {
		_, err := buf.At(i)
		assert.ErrorIs(t, err, ErrOutOfBounds, "At(%d)", i)

		err = buf.Set(i, 1)
		var be *BoundsError
		require.ErrorAs(t, err, &be, "Set(%d)", i)
		assert.Equal(t, i, be.Index)
		assert.Equal(t, 2, be.Len)
	}
}

func TestDeviceUnavailable(t *testing.T) {
	buf := New[int32](nil, []int32{1})

	_, err := buf.DeviceData()
	assert.ErrorIs(t, err, device.ErrDeviceUnavailable)
	_, err = buf.MutableDeviceData()
	assert.ErrorIs(t, err, device.ErrDeviceUnavailable)
	assert.ErrorIs(t, buf.SyncFromDevice(), device.ErrDeviceUnavailable)

	// Host side keeps working.
	require.NoError(t, buf.Set(0, 2))
	v, err := buf.At(0)
	require.NoError(t, err)
	assert.Equal(t, int32(2), v)
}

func TestSyncFromDeviceWithoutStorage(t *testing.T) {
	buf := New[int32](newCtx(t), []int32{1})
	assert.Error(t, buf.SyncFromDevice())
}

func TestEqualAndClone(t *testing.T) {
	ctx := newCtx(t)
	a := New[uint64](ctx, []uint64{0, 2, 4})
	b, err := a.Clone()
	require.NoError(t, err)

	eq, err := a.Equal(b)
	require.NoError(t, err)
	assert.True(t, eq)

	require.NoError(t, b.Set(2, 5))
	eq, err = a.Equal(b)
	require.NoError(t, err)
	assert.False(t, eq)

	c := New[uint64](ctx, []uint64{0, 2})
	eq, err = a.Equal(c)
	require.NoError(t, err)
	assert.False(t, eq)
}

func TestReleaseFreesDevice(t *testing.T) {
	ctx := newCtx(t)
	buf := New[int32](ctx, []int32{1, 2, 3})
	_, err := buf.DeviceData()
	require.NoError(t, err)
	assert.Equal(t, int64(1), ctx.Stats().ActiveBuffers)

	buf.Release()
	assert.Equal(t, int64(0), ctx.Stats().ActiveBuffers)
	assert.Equal(t, 0, buf.Len())
	assert.False(t, buf.HasDevice())
}

func TestEmptyBufferOnDevice(t *testing.T) {
	ctx := newCtx(t)
	buf := New[uint64](ctx, nil)

	_, err := buf.DeviceData()
	require.NoError(t, err)
	require.NoError(t, buf.SyncFromDevice())
	data, err := buf.HostData()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestAsBytesAsSlice(t *testing.T) {
	vals := []uint32{1, 0x01020304}
	raw := AsBytes(vals)
	assert.Len(t, raw, 8)
	assert.Equal(t, vals, AsSlice[uint32](raw))

	assert.Empty(t, AsBytes([]int64{}))
	assert.Empty(t, AsSlice[int64]([]byte{1, 2, 3}))
}
