package model

import (
	"fmt"

	"github.com/uyouii/causal-kde/common"
)

// Points is an ordered set of Dim-dimensional points stored row-major:
// point i is Coords[i*Dim : (i+1)*Dim]. It serves as both the sample set
// and the query set of an estimation.
type Points struct {
	Dim    int
	Coords []float64
}

func NewPoints(dim int, coords []float64) (*Points, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: dimension %d", common.ErrorDimensionMismatch, dim)
	}
	if len(coords)%dim != 0 {
		return nil, fmt.Errorf("%w: %d coordinates is not a multiple of dimension %d",
			common.ErrorDimensionMismatch, len(coords), dim)
	}
	return &Points{Dim: dim, Coords: coords}, nil
}

// PointsFromRows copies rows into a flat Points, every row must have dim entries.
func PointsFromRows(dim int, rows [][]float64) (*Points, error) {
	if dim < 1 {
		return nil, fmt.Errorf("%w: dimension %d", common.ErrorDimensionMismatch, dim)
	}
	coords := make([]float64, 0, len(rows)*dim)
	for i, row := range rows {
		if len(row) != dim {
			return nil, fmt.Errorf("%w: row %d has %d coordinates, want %d",
				common.ErrorDimensionMismatch, i, len(row), dim)
		}
		coords = append(coords, row...)
	}
	return &Points{Dim: dim, Coords: coords}, nil
}

// Scalars wraps one-dimensional values without copying.
func Scalars(xs []float64) *Points {
	return &Points{Dim: 1, Coords: xs}
}

func (p *Points) Len() int {
	if p == nil || p.Dim < 1 {
		return 0
	}
	return len(p.Coords) / p.Dim
}

func (p *Points) IsEmpty() bool {
	return p.Len() == 0
}

// At returns a view of point i, callers must not modify it.
func (p *Points) At(i int) []float64 {
	return p.Coords[i*p.Dim : (i+1)*p.Dim]
}

// Column copies coordinate j of every point.
func (p *Points) Column(j int) []float64 {
	n := p.Len()
	res := make([]float64, n)
	for i := 0; i < n; i++ {
		res[i] = p.Coords[i*p.Dim+j]
	}
	return res
}

func (p *Points) Rows() [][]float64 {
	n := p.Len()
	res := make([][]float64, n)
	for i := 0; i < n; i++ {
		row := make([]float64, p.Dim)
		copy(row, p.At(i))
		res[i] = row
	}
	return res
}

func (p *Points) DebugString() string {
	if p == nil {
		return "points: nil"
	}
	return fmt.Sprintf("dim: %d, count: %d", p.Dim, p.Len())
}

// Bandwidth holds one strictly positive kernel width per dimension.
type Bandwidth []float64

// IsotropicBandwidth applies h to every one of dim dimensions.
func IsotropicBandwidth(h float64, dim int) Bandwidth {
	bw := make(Bandwidth, dim)
	for i := range bw {
		bw[i] = h
	}
	return bw
}

func (b Bandwidth) Dim() int {
	return len(b)
}
