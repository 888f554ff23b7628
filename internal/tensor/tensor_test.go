package tensor_test

import (
	"runtime"
	"testing"

	"github.com/born-ml/gradtape/internal/memory"
	"github.com/born-ml/gradtape/internal/tensor"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newContext(t *testing.T) *tensor.Context {
	t.Helper()
	return tensor.NewSimContext(0, memory.DefaultConfig())
}

func TestToDeviceToHost_RoundTrip(t *testing.T) {
	ctx := newContext(t)

	t.Run("float32", func(t *testing.T) {
		data := []float32{1.5, -2, 3.25, 0, 7, 8}
		x, err := tensor.ToDevice(ctx, data, tensor.Shape{2, 3})
		require.NoError(t, err)
		assert.Equal(t, tensor.Float32, x.DType())
		assert.Equal(t, tensor.Shape{2, 3}, x.Shape())

		host, err := tensor.ToHost[float32](x)
		require.NoError(t, err)
		assert.Equal(t, data, host)
	})

	t.Run("float64", func(t *testing.T) {
		data := []float64{1e-300, 2, 3}
		x, err := tensor.ToDevice(ctx, data, tensor.Shape{3})
		require.NoError(t, err)
		host, err := tensor.ToHost[float64](x)
		require.NoError(t, err)
		assert.Equal(t, data, host)
	})

	t.Run("int32", func(t *testing.T) {
		data := []int32{-1, 0, 1, 1 << 30}
		x, err := tensor.ToDevice(ctx, data, tensor.Shape{2, 2})
		require.NoError(t, err)
		host, err := tensor.ToHost[int32](x)
		require.NoError(t, err)
		assert.Equal(t, data, host)
	})

	t.Run("int64", func(t *testing.T) {
		data := []int64{-1 << 40, 5}
		x, err := tensor.ToDevice(ctx, data, tensor.Shape{2})
		require.NoError(t, err)
		host, err := tensor.ToHost[int64](x)
		require.NoError(t, err)
		assert.Equal(t, data, host)
	})
}

func TestToDevice_Errors(t *testing.T) {
	ctx := newContext(t)

	_, err := tensor.ToDevice(ctx, []float32{1, 2, 3}, tensor.Shape{2, 2})
	assert.True(t, errors.Is(err, tensor.ErrShapeMismatch))

	x, err := tensor.ToDevice(ctx, []float32{1, 2}, tensor.Shape{2})
	require.NoError(t, err)
	_, err = tensor.ToHost[float64](x)
	assert.True(t, errors.Is(err, tensor.ErrDTypeMismatch))
}

func TestRelease_ReusesPointer(t *testing.T) {
	ctx := newContext(t)

	a, err := tensor.Zeros(ctx, tensor.Shape{4, 4}, tensor.Float32)
	require.NoError(t, err)
	ptr := a.Ptr()
	a.Release()
	assert.True(t, ctx.Allocator().Pooled(0, ptr))

	b, err := tensor.Zeros(ctx, tensor.Shape{16}, tensor.Float32)
	require.NoError(t, err)
	assert.Equal(t, ptr, b.Ptr(), "same byte size must get the pooled pointer")

	vals, err := b.Float64s()
	require.NoError(t, err)
	assert.Equal(t, make([]float64, 16), vals)
}

func TestRelease_UseAfterRelease(t *testing.T) {
	ctx := newContext(t)

	a, err := tensor.Full(ctx, tensor.Shape{2}, tensor.Float64, 1)
	require.NoError(t, err)
	a.Release()
	a.Release()

	_, err = a.Float64s()
	assert.True(t, errors.Is(err, tensor.ErrReleased))
}

func TestRetain_AfterReleaseFails(t *testing.T) {
	ctx := newContext(t)

	a, err := tensor.Full(ctx, tensor.Shape{4}, tensor.Float64, 1)
	require.NoError(t, err)
	ptr := a.Ptr()
	a.Release()

	b, err := a.Retain()
	assert.True(t, errors.Is(err, tensor.ErrReleased))
	assert.Nil(t, b)

	// The pooled pointer goes to the next tensor without aliasing anything.
	c, err := tensor.Full(ctx, tensor.Shape{4}, tensor.Float64, 9)
	require.NoError(t, err)
	assert.Equal(t, ptr, c.Ptr())
}

func TestDroppedTensorIsCollected(t *testing.T) {
	ctx := newContext(t)

	ptr := func() memory.Ptr {
		x, err := tensor.Zeros(ctx, tensor.Shape{32}, tensor.Float64)
		require.NoError(t, err)
		return x.Ptr()
	}()

	require.Eventually(t, func() bool {
		runtime.GC()
		ctx.Allocator().Collect()
		return ctx.Allocator().Pooled(0, ptr)
	}, testTimeout, testTick)
}

func TestDeviceSelection(t *testing.T) {
	ctx := newContext(t)
	require.NoError(t, ctx.Allocator().AddDevice(1, memory.NewSimDevice("sim1", 0)))

	a, err := tensor.Full(ctx, tensor.Shape{3}, tensor.Float32, 2)
	require.NoError(t, err)
	assert.Equal(t, memory.DeviceID(0), a.Device())

	require.NoError(t, ctx.SetActiveDevice(1))
	assert.Equal(t, memory.DeviceID(1), ctx.ActiveDevice())

	b, err := tensor.Full(ctx, tensor.Shape{3}, tensor.Float32, 3)
	require.NoError(t, err)
	assert.Equal(t, memory.DeviceID(1), b.Device())

	_, err = tensor.Binary(tensor.OpAdd, a, b)
	assert.True(t, errors.Is(err, tensor.ErrDeviceMismatch))

	_, err = a.Float64s()
	assert.True(t, errors.Is(err, tensor.ErrDeviceMismatch))

	// Memory on device 0 survives the switch.
	require.NoError(t, ctx.SetActiveDevice(0))
	vals, err := a.Float64s()
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 2, 2}, vals)

	err = ctx.SetActiveDevice(7)
	assert.True(t, errors.Is(err, memory.ErrUnknownDevice))
}

func TestForceReclaim(t *testing.T) {
	dev := memory.NewSimDevice("sim0", 0)
	alloc := memory.NewAllocator(memory.DefaultConfig())
	require.NoError(t, alloc.AddDevice(0, dev))
	ctx, err := tensor.NewContext(alloc, 0)
	require.NoError(t, err)

	a, err := tensor.Zeros(ctx, tensor.Shape{10}, tensor.Float32)
	require.NoError(t, err)
	a.Release()
	assert.Equal(t, 40, dev.Used())

	require.NoError(t, ctx.ForceReclaim(0))
	assert.Equal(t, 0, dev.Used())
}
