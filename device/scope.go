package device

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/uyouii/causal-kde/common"
	"github.com/uyouii/causal-kde/utils"
	"go.uber.org/zap"
)

// Scope owns every device buffer of one computation. Release returns
// all of them to the device at once.
type Scope struct {
	id     string
	device *Device
	logger *zap.Logger

	mu       sync.Mutex
	reserved int64
	buffers  int
	released bool
}

// Acquire opens a scope on d. It fails with common.ErrorDeviceUnavailable
// when d is nil or closed.
func (d *Device) Acquire(ctx context.Context) (*Scope, error) {
	if err := d.Available(); err != nil {
		return nil, err
	}
	s := &Scope{
		id:     uuid.NewString(),
		device: d,
	}
	s.logger = utils.GetLogger(ctx).With(zap.String("device", d.name), zap.String("scope", s.id))
	s.logger.Debug("device scope acquired")
	return s, nil
}

func (s *Scope) ID() string {
	return s.id
}

// Alloc returns a zeroed buffer of n float64 values charged to the device
// memory budget.
func (s *Scope) Alloc(n int) ([]float64, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative allocation %d", common.ErrorDeviceUnavailable, n)
	}
	bytes := int64(n) * float64Size

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return nil, fmt.Errorf("%w: scope %s already released", common.ErrorDeviceUnavailable, s.id)
	}
	if err := s.device.reserve(bytes); err != nil {
		s.logger.Error("device alloc failed", zap.Int("floats", n), zap.Error(err))
		return nil, err
	}
	s.reserved += bytes
	s.buffers++
	return make([]float64, n), nil
}

// CopyIn allocates a device buffer and copies src into it.
func (s *Scope) CopyIn(src []float64) ([]float64, error) {
	buf, err := s.Alloc(len(src))
	if err != nil {
		return nil, err
	}
	copy(buf, src)
	return buf, nil
}

// Reserved is the number of bytes the scope currently holds.
func (s *Scope) Reserved() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reserved
}

// Release frees everything allocated through the scope. It is safe to
// call more than once.
func (s *Scope) Release() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.released {
		return
	}
	s.device.free(s.reserved)
	s.logger.Debug("device scope released", zap.Int("buffers", s.buffers), zap.Int64("bytes", s.reserved))
	s.reserved = 0
	s.released = true
}
