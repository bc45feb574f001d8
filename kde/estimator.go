package kde

import (
	"context"
	"fmt"

	"github.com/uyouii/causal-kde/common"
	"github.com/uyouii/causal-kde/model"
)

type Backend string

const (
	BackendSequential Backend = "sequential"
	BackendParallel   Backend = "parallel"
)

func (b Backend) valid() bool {
	return b == BackendSequential || b == BackendParallel
}

// Estimator computes the kernel density of samples at every query point:
//
//	f(q) = norm(bw) / n * sum_s K(sum_j ((q_j - s_j) / h_j)^2)
//
// The result is aligned with queries. An empty query set yields an empty
// result. On error no density is returned.
type Estimator interface {
	Backend() Backend
	Estimate(ctx context.Context, samples, queries *model.Points, bw model.Bandwidth) ([]float64, error)
}

// plan holds what one estimation precomputes: inverse bandwidths and the
// scale norm/n shared by every query.
type plan struct {
	dim   int
	n     int
	m     int
	invBw []float64
	scale float64
}

func newPlan(kernel Kernel, samples, queries *model.Points, bw model.Bandwidth) (*plan, error) {
	if samples == nil || samples.Dim < 1 {
		return nil, fmt.Errorf("%w: samples have no dimension", common.ErrorDimensionMismatch)
	}
	if len(samples.Coords)%samples.Dim != 0 {
		return nil, fmt.Errorf("%w: sample coordinates are not a multiple of dimension %d",
			common.ErrorDimensionMismatch, samples.Dim)
	}
	n := samples.Len()
	if n == 0 {
		return nil, fmt.Errorf("%w: empty sample set", common.ErrorInsufficientData)
	}

	m := 0
	if queries != nil {
		if queries.Dim != samples.Dim {
			return nil, fmt.Errorf("%w: queries have dimension %d, samples %d",
				common.ErrorDimensionMismatch, queries.Dim, samples.Dim)
		}
		if len(queries.Coords)%queries.Dim != 0 {
			return nil, fmt.Errorf("%w: query coordinates are not a multiple of dimension %d",
				common.ErrorDimensionMismatch, queries.Dim)
		}
		m = queries.Len()
	}

	if err := ValidateBandwidth(bw, samples.Dim); err != nil {
		return nil, err
	}

	invBw := make([]float64, len(bw))
	for j, h := range bw {
		invBw[j] = 1 / h
	}
	return &plan{
		dim:   samples.Dim,
		n:     n,
		m:     m,
		invBw: invBw,
		scale: kernel.Normalization(bw) / float64(n),
	}, nil
}

// sqDist is the squared bandwidth-scaled distance between q and s.
func (p *plan) sqDist(q, s []float64) float64 {
	sum := 0.0
	for j := 0; j < p.dim; j++ {
		u := (q[j] - s[j]) * p.invBw[j]
		sum += u * u
	}
	return sum
}

// accumulate sums the kernel weights of the samples in coords (row-major,
// p.dim per point) for the query q.
func (p *plan) accumulate(kernel Kernel, q, coords []float64) float64 {
	sum := 0.0
	for off := 0; off+p.dim <= len(coords); off += p.dim {
		sum += kernel.Evaluate(p.sqDist(q, coords[off:off+p.dim]))
	}
	return sum
}
