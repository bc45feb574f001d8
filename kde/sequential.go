package kde

import (
	"context"

	"github.com/uyouii/causal-kde/model"
	"github.com/uyouii/causal-kde/utils"
	"go.uber.org/zap"
)

// SequentialEstimator is the single threaded reference implementation,
// O(n*m*d) time and no memory beyond the result.
type SequentialEstimator struct {
	kernel Kernel
}

func NewSequentialEstimator(kernel Kernel) *SequentialEstimator {
	if kernel == nil {
		kernel = NewGaussianKernel()
	}
	return &SequentialEstimator{kernel: kernel}
}

func (e *SequentialEstimator) Backend() Backend {
	return BackendSequential
}

func (e *SequentialEstimator) Estimate(ctx context.Context, samples, queries *model.Points,
	bw model.Bandwidth) ([]float64, error) {
	logger := utils.GetLogger(ctx)

	p, err := newPlan(e.kernel, samples, queries, bw)
	if err != nil {
		logger.Error("sequential estimate rejected", zap.Error(err))
		return nil, err
	}

	res := make([]float64, p.m)
	coords := samples.Coords[:p.n*p.dim]
	for i := 0; i < p.m; i++ {
		res[i] = p.accumulate(e.kernel, queries.At(i), coords) * p.scale
	}

	logger.Debug("sequential estimate done", zap.Int("samples", p.n), zap.Int("queries", p.m),
		zap.Int("dim", p.dim))
	return res, nil
}

// densityFunc returns the density of samples as a function of a single
// 1-D coordinate. Not safe for concurrent use.
func (e *SequentialEstimator) densityFunc(samples *model.Points, bw model.Bandwidth) (func(float64) float64, error) {
	q := model.Scalars([]float64{0})
	p, err := newPlan(e.kernel, samples, q, bw)
	if err != nil {
		return nil, err
	}
	coords := samples.Coords[:p.n*p.dim]
	return func(x float64) float64 {
		q.Coords[0] = x
		return p.accumulate(e.kernel, q.Coords, coords) * p.scale
	}, nil
}
