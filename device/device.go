// Package device emulates a data-parallel accelerator on the CPU.
//
// A Device has a fixed width of workers and a budget of device memory.
// All memory a computation needs is taken from a Scope, which is acquired
// on entry and released on every exit path:
//
//	scope, err := dev.Acquire(ctx)
//	if err != nil {
//		return err
//	}
//	defer scope.Release()
//
// Kernels are launched on a Scope as a set of independent blocks. Each
// worker owns a private slab of shared memory that it reuses for every
// block it executes, the way a GPU block stages data in on-chip memory.
package device

import (
	"fmt"
	"runtime"
	"sync/atomic"

	"github.com/uyouii/causal-kde/common"
)

const float64Size = 8

type Options struct {
	// Name shows up in logs only.
	Name string

	// Workers is the number of blocks executed concurrently.
	// Zero or negative uses runtime.NumCPU().
	Workers int

	// MemoryLimit caps the bytes of device memory all live scopes may
	// hold together. Zero means unlimited.
	MemoryLimit int64
}

func DefaultOptions() Options {
	return Options{
		Name:        "cpu",
		Workers:     runtime.NumCPU(),
		MemoryLimit: 0,
	}
}

type Device struct {
	name        string
	workers     int
	memoryLimit int64

	used   atomic.Int64
	closed atomic.Bool
}

func New(opts Options) *Device {
	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	name := opts.Name
	if name == "" {
		name = "cpu"
	}
	memoryLimit := opts.MemoryLimit
	if memoryLimit < 0 {
		memoryLimit = 0
	}
	return &Device{
		name:        name,
		workers:     workers,
		memoryLimit: memoryLimit,
	}
}

func (d *Device) Name() string {
	return d.name
}

func (d *Device) Workers() int {
	return d.workers
}

func (d *Device) MemoryLimit() int64 {
	return d.memoryLimit
}

// MemoryInUse is the number of bytes held by live scopes.
func (d *Device) MemoryInUse() int64 {
	return d.used.Load()
}

// Close makes the device refuse new scopes and allocations. Scopes that
// are already acquired can still be released.
func (d *Device) Close() {
	d.closed.Store(true)
}

// Available reports why the device cannot run work, or nil.
func (d *Device) Available() error {
	if d == nil {
		return fmt.Errorf("%w: no device", common.ErrorDeviceUnavailable)
	}
	if d.closed.Load() {
		return fmt.Errorf("%w: device %s is closed", common.ErrorDeviceUnavailable, d.name)
	}
	if d.workers < 1 {
		return fmt.Errorf("%w: device %q has no workers, build it with New", common.ErrorDeviceUnavailable, d.name)
	}
	return nil
}

func (d *Device) reserve(bytes int64) error {
	if err := d.Available(); err != nil {
		return err
	}
	for {
		used := d.used.Load()
		if d.memoryLimit > 0 && used+bytes > d.memoryLimit {
			return fmt.Errorf("%w: allocating %d bytes on %s exceeds memory limit (%d of %d in use)",
				common.ErrorDeviceUnavailable, bytes, d.name, used, d.memoryLimit)
		}
		if d.used.CompareAndSwap(used, used+bytes) {
			return nil
		}
	}
}

func (d *Device) free(bytes int64) {
	d.used.Add(-bytes)
}
