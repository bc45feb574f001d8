package kde

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/uyouii/causal-kde/device"
	"github.com/uyouii/causal-kde/model"
)

const relTol = 1e-6

// randomPoints draws n standard normal points of dimension dim.
func randomPoints(t *testing.T, seed int64, n, dim int) *model.Points {
	t.Helper()
	r := rand.New(rand.NewSource(seed))
	coords := make([]float64, n*dim)
	for i := range coords {
		coords[i] = r.NormFloat64()
	}
	p, err := model.NewPoints(dim, coords)
	require.NoError(t, err)
	return p
}

func requireRelClose(t *testing.T, want, got []float64, tol float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		diff := math.Abs(want[i] - got[i])
		scale := math.Max(math.Abs(want[i]), math.Abs(got[i]))
		require.LessOrEqualf(t, diff, tol*scale+1e-300, "index %d: want %v got %v", i, want[i], got[i])
	}
}

func testDevice(workers int) *device.Device {
	return device.New(device.Options{Name: "test", Workers: workers})
}

func allEstimators(dev *device.Device) map[string]Estimator {
	kernel := NewGaussianKernel()
	return map[string]Estimator{
		"sequential": NewSequentialEstimator(kernel),
		"per_query":  NewParallelEstimator(kernel, dev, ParallelOptions{Strategy: StrategyPerQuery, BlockSize: 8}),
		"tiled":      NewParallelEstimator(kernel, dev, ParallelOptions{Strategy: StrategyTiled, BlockSize: 8, TileSize: 16}),
		"auto":       NewParallelEstimator(kernel, dev, ParallelOptions{}),
	}
}
