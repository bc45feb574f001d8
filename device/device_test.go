package device

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uyouii/causal-kde/common"
	"github.com/uyouii/causal-kde/utils"
	"go.uber.org/zap/zaptest"
)

func testContext(t *testing.T) context.Context {
	return utils.WithLogger(context.Background(), zaptest.NewLogger(t))
}

func TestNewDefaults(t *testing.T) {
	d := New(Options{Workers: -3, MemoryLimit: -1})
	assert.Equal(t, "cpu", d.Name())
	assert.Greater(t, d.Workers(), 0)
	assert.Zero(t, d.MemoryLimit())

	def := New(DefaultOptions())
	assert.Equal(t, DefaultOptions().Workers, def.Workers())
}

func TestScopeAccounting(t *testing.T) {
	ctx := testContext(t)
	d := New(Options{Name: "acct", Workers: 2, MemoryLimit: 100 * float64Size})

	scope, err := d.Acquire(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, scope.ID())

	buf, err := scope.Alloc(40)
	require.NoError(t, err)
	assert.Len(t, buf, 40)

	in, err := scope.CopyIn([]float64{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, in)

	assert.Equal(t, int64(43*float64Size), scope.Reserved())
	assert.Equal(t, int64(43*float64Size), d.MemoryInUse())

	_, err = scope.Alloc(58)
	assert.ErrorIs(t, err, common.ErrorDeviceUnavailable)
	assert.Equal(t, int64(43*float64Size), d.MemoryInUse(), "failed alloc charges nothing")

	_, err = scope.Alloc(57)
	require.NoError(t, err)

	scope.Release()
	assert.Zero(t, d.MemoryInUse())
	scope.Release()
	assert.Zero(t, d.MemoryInUse())

	_, err = scope.Alloc(1)
	assert.ErrorIs(t, err, common.ErrorDeviceUnavailable)

	_, err = scope.Alloc(-1)
	assert.ErrorIs(t, err, common.ErrorDeviceUnavailable)
}

func TestScopesShareTheLimit(t *testing.T) {
	ctx := testContext(t)
	d := New(Options{Workers: 1, MemoryLimit: 10 * float64Size})

	a, err := d.Acquire(ctx)
	require.NoError(t, err)
	b, err := d.Acquire(ctx)
	require.NoError(t, err)

	_, err = a.Alloc(6)
	require.NoError(t, err)
	_, err = b.Alloc(6)
	assert.ErrorIs(t, err, common.ErrorDeviceUnavailable)

	a.Release()
	_, err = b.Alloc(6)
	assert.NoError(t, err)
	b.Release()
	assert.Zero(t, d.MemoryInUse())
}

func TestClosedDevice(t *testing.T) {
	ctx := testContext(t)
	d := New(Options{Workers: 2})
	scope, err := d.Acquire(ctx)
	require.NoError(t, err)
	_, err = scope.Alloc(10)
	require.NoError(t, err)

	d.Close()
	assert.ErrorIs(t, d.Available(), common.ErrorDeviceUnavailable)

	_, err = d.Acquire(ctx)
	assert.ErrorIs(t, err, common.ErrorDeviceUnavailable)
	_, err = scope.Alloc(1)
	assert.ErrorIs(t, err, common.ErrorDeviceUnavailable)
	err = scope.Launch(ctx, LaunchConfig{Blocks: 1}, func(int, []float64) error { return nil })
	assert.ErrorIs(t, err, common.ErrorDeviceUnavailable)

	scope.Release()
	assert.Zero(t, d.MemoryInUse())

	var missing *Device
	_, err = missing.Acquire(ctx)
	assert.ErrorIs(t, err, common.ErrorDeviceUnavailable)

	var zero Device
	assert.ErrorIs(t, zero.Available(), common.ErrorDeviceUnavailable)
	_, err = zero.Acquire(ctx)
	assert.ErrorIs(t, err, common.ErrorDeviceUnavailable)
}

func TestLaunchRunsEveryBlockOnce(t *testing.T) {
	ctx := testContext(t)
	d := New(Options{Workers: 4})
	scope, err := d.Acquire(ctx)
	require.NoError(t, err)
	defer scope.Release()

	const blocks = 1000
	counts := make([]int32, blocks)
	err = scope.Launch(ctx, LaunchConfig{Blocks: blocks, SharedMemory: 16}, func(block int, shared []float64) error {
		if len(shared) != 16 {
			return errors.New("bad shared memory")
		}
		atomic.AddInt32(&counts[block], 1)
		return nil
	})
	require.NoError(t, err)
	for i, c := range counts {
		require.Equal(t, int32(1), c, "block %d", i)
	}
	assert.Equal(t, int64(4*16*float64Size), scope.Reserved())

	require.NoError(t, scope.Launch(ctx, LaunchConfig{}, nil))
}

func TestLaunchSharedMemoryIsPerWorker(t *testing.T) {
	ctx := testContext(t)
	d := New(Options{Workers: 3})
	scope, err := d.Acquire(ctx)
	require.NoError(t, err)
	defer scope.Release()

	var mu sync.Mutex
	slabs := map[*float64]bool{}
	err = scope.Launch(ctx, LaunchConfig{Blocks: 300, SharedMemory: 2}, func(block int, shared []float64) error {
		mu.Lock()
		defer mu.Unlock()
		slabs[&shared[0]] = true
		return nil
	})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(slabs), 3)
}

func TestLaunchStopsOnError(t *testing.T) {
	ctx := testContext(t)
	d := New(Options{Workers: 2})
	scope, err := d.Acquire(ctx)
	require.NoError(t, err)
	defer scope.Release()

	boom := errors.New("boom")
	var ran atomic.Int64
	err = scope.Launch(ctx, LaunchConfig{Blocks: 10000}, func(block int, _ []float64) error {
		ran.Add(1)
		if block == 3 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
	assert.Less(t, ran.Load(), int64(10000))
}

func TestLaunchPanicIsDeviceFault(t *testing.T) {
	ctx := testContext(t)
	d := New(Options{Workers: 2})
	scope, err := d.Acquire(ctx)
	require.NoError(t, err)
	defer scope.Release()

	err = scope.Launch(ctx, LaunchConfig{Blocks: 8}, func(block int, _ []float64) error {
		if block == 5 {
			var out []float64
			out[block] = 1
		}
		return nil
	})
	assert.ErrorIs(t, err, common.ErrorDeviceUnavailable)
}

func TestLaunchSharedMemoryOverLimit(t *testing.T) {
	ctx := testContext(t)
	d := New(Options{Workers: 4, MemoryLimit: 10 * float64Size})
	scope, err := d.Acquire(ctx)
	require.NoError(t, err)

	err = scope.Launch(ctx, LaunchConfig{Blocks: 8, SharedMemory: 4}, func(int, []float64) error { return nil })
	assert.ErrorIs(t, err, common.ErrorDeviceUnavailable)

	scope.Release()
	assert.Zero(t, d.MemoryInUse())
}
