package device

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/uyouii/causal-kde/common"
	"github.com/uyouii/causal-kde/utils"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// LaunchConfig describes one kernel launch.
type LaunchConfig struct {
	// Blocks is the number of independent work items. Block ids are
	// handed out in increasing order to whichever worker is free.
	Blocks int

	// SharedMemory is the number of float64 values of scratch memory
	// each worker receives. It is allocated from the scope.
	SharedMemory int
}

// KernelFunc executes block with the worker's shared memory. Blocks must
// not write to memory owned by another block.
type KernelFunc func(block int, shared []float64) error

// Launch runs fn for every block and waits for all of them. The first
// error stops the remaining blocks from being started and is returned.
// ctx is not checked for cancellation, a launch runs to completion or failure.
// A panicking block is reported as common.ErrorDeviceUnavailable.
func (s *Scope) Launch(ctx context.Context, cfg LaunchConfig, fn KernelFunc) error {
	if cfg.Blocks <= 0 {
		return nil
	}
	if err := s.device.Available(); err != nil {
		return err
	}

	workers := utils.IntMin(s.device.workers, cfg.Blocks)
	slabs := make([][]float64, workers)
	if cfg.SharedMemory > 0 {
		for w := range slabs {
			slab, err := s.Alloc(cfg.SharedMemory)
			if err != nil {
				return err
			}
			slabs[w] = slab
		}
	}

	s.logger.Debug("kernel launch", zap.Int("blocks", cfg.Blocks), zap.Int("workers", workers),
		zap.Int("sharedMemory", cfg.SharedMemory))

	var next atomic.Int64
	var failed atomic.Bool
	var g errgroup.Group
	for w := 0; w < workers; w++ {
		shared := slabs[w]
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					failed.Store(true)
					s.logger.Error("kernel worker panic", zap.Any("err", r),
						zap.String("panic info", utils.GetPanicInfo()))
					err = fmt.Errorf("%w: worker fault: %v", common.ErrorDeviceUnavailable, r)
				}
			}()
			for !failed.Load() {
				block := int(next.Add(1) - 1)
				if block >= cfg.Blocks {
					return nil
				}
				if err := fn(block, shared); err != nil {
					failed.Store(true)
					return err
				}
			}
			return nil
		})
	}
	return g.Wait()
}
