package kde

import (
	"context"
	"fmt"

	"github.com/uyouii/causal-kde/common"
	"github.com/uyouii/causal-kde/model"
	"github.com/uyouii/causal-kde/utils"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// GridPoints lays out every point of grid in row-major order: the last
// dimension varies fastest.
func GridPoints(grid model.GridDescriptor) (*model.Points, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	dim := grid.Dim()
	axes := make([][]float64, dim)
	for j := 0; j < dim; j++ {
		axes[j] = linspace(grid.Lower[j], grid.Upper[j], grid.Cells[j])
	}

	size := grid.Size()
	coords := make([]float64, size*dim)
	idx := make([]int, dim)
	for i := 0; i < size; i++ {
		for j := 0; j < dim; j++ {
			coords[i*dim+j] = axes[j][idx[j]]
		}
		// odometer increment, last dimension first
		for j := dim - 1; j >= 0; j-- {
			idx[j]++
			if idx[j] < grid.Cells[j] {
				break
			}
			idx[j] = 0
		}
	}
	return &model.Points{Dim: dim, Coords: coords}, nil
}

// EvaluateOnGrid builds the query set of grid and evaluates the density of
// samples on it with est (which carries the kernel).
func EvaluateOnGrid(ctx context.Context, samples *model.Points, grid model.GridDescriptor,
	bw model.Bandwidth, est Estimator) (*model.Points, []float64, error) {
	logger := utils.GetLogger(ctx)

	if err := grid.Validate(); err != nil {
		logger.Error("invalid grid", zap.Error(err))
		return nil, nil, err
	}
	if samples != nil && samples.Dim != grid.Dim() {
		return nil, nil, fmt.Errorf("%w: grid has %d dimensions, samples %d",
			common.ErrorDimensionMismatch, grid.Dim(), samples.Dim)
	}

	queries, err := GridPoints(grid)
	if err != nil {
		return nil, nil, err
	}
	density, err := est.Estimate(ctx, samples, queries, bw)
	if err != nil {
		return nil, nil, err
	}
	return queries, density, nil
}

// GridAroundSamples spans [min - cut*h, max + cut*h] in every dimension
// with cells points each.
func GridAroundSamples(samples *model.Points, bw model.Bandwidth, cut float64, cells int) (model.GridDescriptor, error) {
	if samples.IsEmpty() {
		return model.GridDescriptor{}, fmt.Errorf("%w: empty sample set", common.ErrorInsufficientData)
	}
	if err := ValidateBandwidth(bw, samples.Dim); err != nil {
		return model.GridDescriptor{}, err
	}
	if cut < 0 || !utils.IsFinite(cut) {
		return model.GridDescriptor{}, fmt.Errorf("%w: cut %v", common.ErrorInvalidGrid, cut)
	}
	if cut == 0 {
		cut = DefaultCut
	}

	grid := model.UniformGrid(samples.Dim, 0, 0, cells)
	for j := 0; j < samples.Dim; j++ {
		col := samples.Column(j)
		grid.Lower[j] = floats.Min(col) - cut*bw[j]
		grid.Upper[j] = floats.Max(col) + cut*bw[j]
	}
	return grid, grid.Validate()
}
