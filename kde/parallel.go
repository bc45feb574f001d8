package kde

import (
	"context"
	"fmt"

	"github.com/uyouii/causal-kde/common"
	"github.com/uyouii/causal-kde/device"
	"github.com/uyouii/causal-kde/model"
	"github.com/uyouii/causal-kde/utils"
	"go.uber.org/zap"
)

// Strategy selects how the parallel estimator decomposes the
// (query x sample) product space.
type Strategy string

const (
	// StrategyAuto picks tiled when the queries alone cannot keep the
	// device busy and there is more than one tile of samples.
	StrategyAuto Strategy = "auto"

	// StrategyPerQuery gives each query to one logical thread that loops
	// over all samples and writes its slot once.
	StrategyPerQuery Strategy = "per_query"

	// StrategyTiled splits the samples into tiles staged through worker
	// shared memory. Every (query block, tile) pair writes a partial sum
	// to its own slot and a second launch reduces the partials per query
	// in tile order.
	StrategyTiled Strategy = "tiled"
)

func (s Strategy) valid() bool {
	switch s {
	case "", StrategyAuto, StrategyPerQuery, StrategyTiled:
		return true
	}
	return false
}

type ParallelOptions struct {
	Strategy  Strategy
	BlockSize int
	TileSize  int
}

type ParallelEstimator struct {
	kernel    Kernel
	device    *device.Device
	strategy  Strategy
	blockSize int
	tileSize  int
}

func NewParallelEstimator(kernel Kernel, dev *device.Device, opts ParallelOptions) *ParallelEstimator {
	if kernel == nil {
		kernel = NewGaussianKernel()
	}
	e := &ParallelEstimator{
		kernel:    kernel,
		device:    dev,
		strategy:  opts.Strategy,
		blockSize: opts.BlockSize,
		tileSize:  opts.TileSize,
	}
	if e.strategy == "" {
		e.strategy = StrategyAuto
	}
	if e.blockSize <= 0 {
		e.blockSize = DefaultBlockSize
	}
	if e.tileSize <= 0 {
		e.tileSize = DefaultTileSize
	}
	return e
}

func (e *ParallelEstimator) Backend() Backend {
	return BackendParallel
}

func (e *ParallelEstimator) Device() *device.Device {
	return e.device
}

func (e *ParallelEstimator) chooseStrategy(p *plan) Strategy {
	if e.strategy != StrategyAuto {
		return e.strategy
	}
	if p.n > e.tileSize && p.m < e.device.Workers()*e.blockSize {
		return StrategyTiled
	}
	return StrategyPerQuery
}

func (e *ParallelEstimator) Estimate(ctx context.Context, samples, queries *model.Points,
	bw model.Bandwidth) ([]float64, error) {
	logger := utils.GetLogger(ctx)

	p, err := newPlan(e.kernel, samples, queries, bw)
	if err != nil {
		logger.Error("parallel estimate rejected", zap.Error(err))
		return nil, err
	}
	if p.m == 0 {
		return []float64{}, nil
	}

	scope, err := e.device.Acquire(ctx)
	if err != nil {
		logger.Error("acquire device failed", zap.Error(err))
		return nil, err
	}
	defer scope.Release()

	dSamples, err := scope.CopyIn(samples.Coords[:p.n*p.dim])
	if err != nil {
		return nil, err
	}
	dQueries, err := scope.CopyIn(queries.Coords[:p.m*p.dim])
	if err != nil {
		return nil, err
	}
	dOut, err := scope.Alloc(p.m)
	if err != nil {
		return nil, err
	}

	strategy := e.chooseStrategy(p)
	switch strategy {
	case StrategyPerQuery:
		err = e.perQuery(ctx, scope, p, dSamples, dQueries, dOut)
	case StrategyTiled:
		err = e.tiled(ctx, scope, p, dSamples, dQueries, dOut)
	default:
		err = fmt.Errorf("%w: unknown strategy %q", common.ErrorInvalidConfig, strategy)
	}
	if err != nil {
		logger.Error("parallel estimate failed", zap.String("strategy", string(strategy)), zap.Error(err))
		return nil, err
	}

	res := make([]float64, p.m)
	copy(res, dOut)

	logger.Debug("parallel estimate done", zap.String("strategy", string(strategy)),
		zap.Int("samples", p.n), zap.Int("queries", p.m), zap.Int("dim", p.dim))
	return res, nil
}

func (e *ParallelEstimator) perQuery(ctx context.Context, scope *device.Scope, p *plan,
	dSamples, dQueries, dOut []float64) error {
	bs := e.blockSize
	cfg := device.LaunchConfig{Blocks: utils.CeilDiv(p.m, bs)}
	return scope.Launch(ctx, cfg, func(block int, _ []float64) error {
		start, end := block*bs, utils.IntMin((block+1)*bs, p.m)
		for i := start; i < end; i++ {
			q := dQueries[i*p.dim : (i+1)*p.dim]
			dOut[i] = p.accumulate(e.kernel, q, dSamples) * p.scale
		}
		return nil
	})
}

func (e *ParallelEstimator) tiled(ctx context.Context, scope *device.Scope, p *plan,
	dSamples, dQueries, dOut []float64) error {
	bs, tile := e.blockSize, e.tileSize
	tiles := utils.CeilDiv(p.n, tile)
	queryBlocks := utils.CeilDiv(p.m, bs)

	// partial[t*m + i] is the sum of tile t for query i
	partial, err := scope.Alloc(tiles * p.m)
	if err != nil {
		return err
	}

	stage := device.LaunchConfig{Blocks: queryBlocks * tiles, SharedMemory: tile * p.dim}
	err = scope.Launch(ctx, stage, func(block int, shared []float64) error {
		qb, t := block/tiles, block%tiles
		sStart, sEnd := t*tile, utils.IntMin((t+1)*tile, p.n)
		staged := shared[:(sEnd-sStart)*p.dim]
		copy(staged, dSamples[sStart*p.dim:sEnd*p.dim])

		qStart, qEnd := qb*bs, utils.IntMin((qb+1)*bs, p.m)
		row := partial[t*p.m : (t+1)*p.m]
		for i := qStart; i < qEnd; i++ {
			row[i] = p.accumulate(e.kernel, dQueries[i*p.dim:(i+1)*p.dim], staged)
		}
		return nil
	})
	if err != nil {
		return err
	}

	reduce := device.LaunchConfig{Blocks: queryBlocks}
	return scope.Launch(ctx, reduce, func(block int, _ []float64) error {
		qStart, qEnd := block*bs, utils.IntMin((block+1)*bs, p.m)
		for i := qStart; i < qEnd; i++ {
			sum := 0.0
			for t := 0; t < tiles; t++ {
				sum += partial[t*p.m+i]
			}
			dOut[i] = sum * p.scale
		}
		return nil
	})
}
