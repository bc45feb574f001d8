package kde

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/uyouii/causal-kde/common"
	"github.com/uyouii/causal-kde/model"
	"github.com/uyouii/causal-kde/utils"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate/quad"
)

type UnivariateOptions struct {
	// If GridSize is 0, max(len(endog), 100) is used.
	GridSize int

	// Defines the length of the grid past the lowest and highest values
	// of endog so that the kernel goes to zero. The end points are
	// ``min(endog) - cut * bw`` and ``max(endog) + cut * bw``.
	// 0 means DefaultCut.
	Cut float64

	// Clip drops samples outside [Lower, Upper] before fitting.
	Clip *model.Clip
}

// KDEUnivariate is a one dimensional density curve on a regular grid with
// its cdf and quantiles. Fitting is lazy and cached, so a KDEUnivariate
// must not be shared between goroutines.
type KDEUnivariate struct {
	engine   *Engine
	gridSize int
	cut      float64

	// endogenous variable, sorted
	Endog []float64

	density []model.Density
	cdf     []model.Cdf
	grid    []float64
	bw      float64
	fited   bool
}

func NewKDEUnivariate(endog []float64, engine *Engine, opts UnivariateOptions) (*KDEUnivariate, error) {
	if engine == nil {
		return nil, fmt.Errorf("%w: nil engine", common.ErrorInvalidConfig)
	}

	values := make([]float64, 0, len(endog))
	for _, x := range endog {
		if opts.Clip.Contains(x) {
			values = append(values, x)
		}
	}
	sort.Float64s(values)

	if len(values) == 0 {
		return nil, fmt.Errorf("%w: no samples left after clipping", common.ErrorInsufficientData)
	}
	if opts.Cut < 0 {
		return nil, fmt.Errorf("%w: cut %v", common.ErrorInvalidGrid, opts.Cut)
	}

	cut := opts.Cut
	if cut == 0 {
		cut = DefaultCut
	}
	gridSize := opts.GridSize
	if gridSize <= 0 {
		gridSize = utils.IntMax(len(values), DefaultMinGridSize)
	}

	return &KDEUnivariate{
		engine:   engine,
		gridSize: gridSize,
		cut:      cut,
		Endog:    values,
	}, nil
}

// Kdensity returns the density on the grid and the bandwidth used.
func (kde *KDEUnivariate) Kdensity(ctx context.Context) ([]model.Density, float64, error) {
	if kde.fited {
		return kde.density, kde.bw, nil
	}

	samples := model.Scalars(kde.Endog)
	bw, err := kde.engine.Bandwidth(samples)
	if err != nil {
		return nil, 0, err
	}
	h := bw[0]

	a := floats.Min(kde.Endog) - kde.cut*h
	b := floats.Max(kde.Endog) + kde.cut*h
	grid := linspace(a, b, kde.gridSize)

	dens, err := kde.engine.EstimateWithBandwidth(ctx, samples, model.Scalars(grid), bw)
	if err != nil {
		return nil, 0, err
	}

	res := make([]model.Density, len(grid))
	for i := range grid {
		res[i] = model.Density{
			X:     grid[i],
			Value: dens[i],
		}
	}

	kde.density = res
	kde.bw = h
	kde.grid = grid
	kde.fited = true

	utils.GetLogger(ctx).Debug("univariate kde fitted", zap.Int("samples", len(kde.Endog)),
		zap.Float64("bw", h), zap.Int("gridSize", len(grid)))
	return res, h, nil
}

// Cdf integrates the density between consecutive grid points. The mass
// below the first grid point is treated as zero.
func (kde *KDEUnivariate) Cdf(ctx context.Context) ([]model.Cdf, error) {
	if _, _, err := kde.Kdensity(ctx); err != nil {
		return nil, err
	}
	if len(kde.cdf) > 0 {
		return kde.cdf, nil
	}

	f, err := kde.engine.sequential.densityFunc(model.Scalars(kde.Endog), model.Bandwidth{kde.bw})
	if err != nil {
		return nil, err
	}

	res := make([]model.Cdf, 0, len(kde.grid))
	res = append(res, model.Cdf{X: kde.grid[0], Value: 0})

	var cumSum float64
	for i := 1; i < len(kde.grid); i++ {
		cumSum += quad.Fixed(f, kde.grid[i-1], kde.grid[i], CdfQuadratureNodes, nil, 0)
		res = append(res, model.Cdf{
			X:     kde.grid[i],
			Value: cumSum,
		})
	}

	kde.cdf = res
	return res, nil
}

// Quantile inverts the cdf by linear interpolation. p must lie in [0, 1];
// p outside the range of the cdf is clamped to the grid ends.
func (kde *KDEUnivariate) Quantile(ctx context.Context, p float64) (*model.QuantileValue, error) {
	if math.IsNaN(p) || p < 0 || p > 1 {
		return nil, fmt.Errorf("%w: quantile %v", common.ErrorInvalidValue, p)
	}

	cdf, err := kde.Cdf(ctx)
	if err != nil {
		return nil, err
	}

	res := &model.QuantileValue{Quantile: p}
	last := len(cdf) - 1
	switch {
	case p <= cdf[0].Value:
		res.Value = cdf[0].X
	case p >= cdf[last].Value:
		res.Value = cdf[last].X
	default:
		// first node whose cumulative mass exceeds p, always in [1, last]
		i := sort.Search(len(cdf), func(i int) bool { return cdf[i].Value > p })
		lo, hi := cdf[i-1], cdf[i]
		res.Value = lo.X + (hi.X-lo.X)*(p-lo.Value)/(hi.Value-lo.Value)
	}
	return res, nil
}
