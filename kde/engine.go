package kde

import (
	"context"
	"errors"
	"fmt"

	"github.com/uyouii/causal-kde/common"
	"github.com/uyouii/causal-kde/device"
	"github.com/uyouii/causal-kde/model"
	"github.com/uyouii/causal-kde/utils"
	"go.uber.org/zap"
)

// Engine is the entry point used by analysis code: it resolves the
// configured bandwidth and runs the configured backend. An Engine keeps
// no state between calls and is safe for concurrent use.
type Engine struct {
	cfg        Config
	kernel     Kernel
	sequential *SequentialEstimator
	estimator  Estimator

	device      *device.Device
	ownedDevice bool
}

// NewEngine validates cfg and builds its backend. A parallel backend gets
// its own device sized by cfg, release it with Close.
func NewEngine(cfg Config) (*Engine, error) {
	var dev *device.Device
	if cfg.Backend == BackendParallel {
		opts := device.DefaultOptions()
		if cfg.Workers > 0 {
			opts.Workers = cfg.Workers
		}
		opts.MemoryLimit = cfg.DeviceMemoryLimit
		dev = device.New(opts)
	}
	e, err := NewEngineWithDevice(cfg, dev)
	if err != nil {
		return nil, err
	}
	e.ownedDevice = dev != nil
	return e, nil
}

// NewEngineWithDevice is NewEngine running the parallel backend on dev,
// which stays owned by the caller. dev may be nil for the sequential
// backend; a parallel engine without a device fails every estimation with
// common.ErrorDeviceUnavailable.
func NewEngineWithDevice(cfg Config, dev *device.Device) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	kernel, _ := KernelByName(cfg.Kernel)
	if cfg.Backend == "" {
		cfg.Backend = BackendSequential
	}

	e := &Engine{
		cfg:        cfg,
		kernel:     kernel,
		sequential: NewSequentialEstimator(kernel),
		device:     dev,
	}
	switch cfg.Backend {
	case BackendParallel:
		e.estimator = NewParallelEstimator(kernel, dev, ParallelOptions{
			Strategy:  cfg.Strategy,
			BlockSize: cfg.BlockSize,
			TileSize:  cfg.TileSize,
		})
	default:
		e.estimator = e.sequential
	}
	return e, nil
}

// Close shuts down a device created by NewEngine.
func (e *Engine) Close() {
	if e.ownedDevice && e.device != nil {
		e.device.Close()
	}
}

func (e *Engine) Config() Config {
	return e.cfg
}

func (e *Engine) Kernel() Kernel {
	return e.kernel
}

func (e *Engine) Estimator() Estimator {
	return e.estimator
}

// Bandwidth resolves the configured bandwidth for samples, including the
// adjust factor.
func (e *Engine) Bandwidth(samples *model.Points) (model.Bandwidth, error) {
	bw, err := ResolveBandwidth(samples, e.cfg.Bandwidth, e.kernel)
	if err != nil {
		return nil, err
	}
	return AdjustBandwidth(bw, e.cfg.BandwidthAdjust)
}

// Estimate evaluates the density of samples at queries. Empty samples fail
// with common.ErrorInsufficientData, an empty query set returns an empty
// result.
func (e *Engine) Estimate(ctx context.Context, samples, queries *model.Points) ([]float64, error) {
	logger := utils.GetLogger(ctx)

	if err := checkInputs(samples, queries); err != nil {
		logger.Error("estimate rejected", zap.Error(err))
		return nil, err
	}
	bw, err := e.Bandwidth(samples)
	if err != nil {
		logger.Error("resolve bandwidth failed", zap.Error(err))
		return nil, err
	}
	return e.EstimateWithBandwidth(ctx, samples, queries, bw)
}

// EstimateWithBandwidth skips bandwidth resolution and uses bw as is.
func (e *Engine) EstimateWithBandwidth(ctx context.Context, samples, queries *model.Points,
	bw model.Bandwidth) ([]float64, error) {
	res, err := e.estimator.Estimate(ctx, samples, queries, bw)
	if err == nil || !e.shouldFallback(err) {
		return res, err
	}

	utils.GetLogger(ctx).Warn("parallel backend unavailable, falling back to sequential", zap.Error(err))
	return e.sequential.Estimate(ctx, samples, queries, bw)
}

func (e *Engine) shouldFallback(err error) bool {
	return e.cfg.AllowFallback &&
		e.estimator.Backend() == BackendParallel &&
		errors.Is(err, common.ErrorDeviceUnavailable)
}

// Estimate1D is Estimate for scalar samples and queries.
func (e *Engine) Estimate1D(ctx context.Context, samples, queries []float64) ([]float64, error) {
	return e.Estimate(ctx, model.Scalars(samples), model.Scalars(queries))
}

// EstimateND is Estimate for dim-dimensional samples and queries given as
// rows. Every row must have dim coordinates.
func (e *Engine) EstimateND(ctx context.Context, dim int, samples, queries [][]float64) ([]float64, error) {
	s, err := model.PointsFromRows(dim, samples)
	if err != nil {
		return nil, fmt.Errorf("samples: %w", err)
	}
	q, err := model.PointsFromRows(dim, queries)
	if err != nil {
		return nil, fmt.Errorf("queries: %w", err)
	}
	return e.Estimate(ctx, s, q)
}

// DensityAtSamples evaluates the density at the samples themselves, the
// input of plug-in entropy estimates.
func (e *Engine) DensityAtSamples(ctx context.Context, samples *model.Points) ([]float64, error) {
	return e.Estimate(ctx, samples, samples)
}

// EvaluateOnGrid evaluates the density of samples at every point of grid.
func (e *Engine) EvaluateOnGrid(ctx context.Context, samples *model.Points, grid model.GridDescriptor) (*model.Grid, error) {
	if err := checkInputs(samples, nil); err != nil {
		return nil, err
	}
	bw, err := e.Bandwidth(samples)
	if err != nil {
		return nil, err
	}
	return e.evaluateOnGrid(ctx, samples, grid, bw)
}

// Grid evaluates the density on a grid spanning cut bandwidths past the
// samples with cells points per dimension.
func (e *Engine) Grid(ctx context.Context, samples *model.Points, cut float64, cells int) (*model.Grid, error) {
	if err := checkInputs(samples, nil); err != nil {
		return nil, err
	}
	bw, err := e.Bandwidth(samples)
	if err != nil {
		return nil, err
	}
	grid, err := GridAroundSamples(samples, bw, cut, cells)
	if err != nil {
		return nil, err
	}
	return e.evaluateOnGrid(ctx, samples, grid, bw)
}

func (e *Engine) evaluateOnGrid(ctx context.Context, samples *model.Points, grid model.GridDescriptor,
	bw model.Bandwidth) (*model.Grid, error) {
	queries, density, err := EvaluateOnGrid(ctx, samples, grid, bw, estimatorFunc(e.EstimateWithBandwidth))
	if err != nil {
		return nil, err
	}
	return &model.Grid{
		Descriptor: grid,
		Points:     queries,
		Density:    density,
	}, nil
}

// estimatorFunc lets the engine's fallback-aware path act as an Estimator.
type estimatorFunc func(ctx context.Context, samples, queries *model.Points, bw model.Bandwidth) ([]float64, error)

func (f estimatorFunc) Backend() Backend {
	return ""
}

func (f estimatorFunc) Estimate(ctx context.Context, samples, queries *model.Points, bw model.Bandwidth) ([]float64, error) {
	return f(ctx, samples, queries, bw)
}

func checkInputs(samples, queries *model.Points) error {
	if samples == nil || samples.Dim < 1 {
		return fmt.Errorf("%w: samples have no dimension", common.ErrorDimensionMismatch)
	}
	if samples.IsEmpty() {
		return fmt.Errorf("%w: empty sample set", common.ErrorInsufficientData)
	}
	if queries != nil && queries.Dim != samples.Dim {
		return fmt.Errorf("%w: queries have dimension %d, samples %d",
			common.ErrorDimensionMismatch, queries.Dim, samples.Dim)
	}
	return nil
}

// Estimate1D runs a one-off estimation with cfg.
func Estimate1D(ctx context.Context, samples, queries []float64, cfg Config) ([]float64, error) {
	e, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	return e.Estimate1D(ctx, samples, queries)
}

// EstimateND runs a one-off estimation of dim-dimensional rows with cfg.
func EstimateND(ctx context.Context, dim int, samples, queries [][]float64, cfg Config) ([]float64, error) {
	e, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	defer e.Close()
	return e.EstimateND(ctx, dim, samples, queries)
}
