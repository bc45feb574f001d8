package model

import (
	"fmt"
	"math"

	"github.com/uyouii/causal-kde/common"
	"gonum.org/v1/gonum/floats"
)

// GridDescriptor describes a regular lattice: Cells[j] evenly spaced
// coordinates from Lower[j] to Upper[j] inclusive in every dimension j.
type GridDescriptor struct {
	Lower []float64 `json:"lower"`
	Upper []float64 `json:"upper"`
	Cells []int     `json:"cells"`
}

// UniformGrid uses the same bounds and cell count in every dimension.
func UniformGrid(dim int, lower, upper float64, cells int) GridDescriptor {
	g := GridDescriptor{
		Lower: make([]float64, dim),
		Upper: make([]float64, dim),
		Cells: make([]int, dim),
	}
	for j := 0; j < dim; j++ {
		g.Lower[j], g.Upper[j], g.Cells[j] = lower, upper, cells
	}
	return g
}

func (g GridDescriptor) Dim() int {
	return len(g.Cells)
}

func (g GridDescriptor) Validate() error {
	if len(g.Cells) == 0 {
		return fmt.Errorf("%w: no dimensions", common.ErrorInvalidGrid)
	}
	if len(g.Lower) != len(g.Cells) || len(g.Upper) != len(g.Cells) {
		return fmt.Errorf("%w: lower(%d), upper(%d) and cells(%d) lengths differ",
			common.ErrorInvalidGrid, len(g.Lower), len(g.Upper), len(g.Cells))
	}
	for j := range g.Cells {
		if g.Cells[j] < 1 {
			return fmt.Errorf("%w: dimension %d has %d cells", common.ErrorInvalidGrid, j, g.Cells[j])
		}
		lower, upper := g.Lower[j], g.Upper[j]
		if math.IsNaN(lower) || math.IsNaN(upper) || math.IsInf(lower, 0) || math.IsInf(upper, 0) {
			return fmt.Errorf("%w: dimension %d has non-finite bounds", common.ErrorInvalidGrid, j)
		}
		if lower >= upper {
			return fmt.Errorf("%w: dimension %d bounds [%v, %v] are inverted",
				common.ErrorInvalidGrid, j, lower, upper)
		}
	}
	return nil
}

// Size is the number of lattice points.
func (g GridDescriptor) Size() int {
	size := 1
	for _, c := range g.Cells {
		size *= c
	}
	return size
}

// Step is the spacing of dimension j, 0 for a single-cell dimension.
func (g GridDescriptor) Step(j int) float64 {
	if g.Cells[j] < 2 {
		return 0
	}
	return (g.Upper[j] - g.Lower[j]) / float64(g.Cells[j]-1)
}

// CellVolume is the product of the per-dimension steps. Single-cell
// dimensions contribute their full extent.
func (g GridDescriptor) CellVolume() float64 {
	volume := 1.0
	for j := range g.Cells {
		step := g.Step(j)
		if step == 0 {
			step = g.Upper[j] - g.Lower[j]
		}
		volume *= step
	}
	return volume
}

// Grid is a density evaluated on every point of a descriptor.
type Grid struct {
	Descriptor GridDescriptor
	Points     *Points
	Density    []float64
}

// Integral approximates the integral of the density over the grid box
// with a Riemann sum.
func (g *Grid) Integral() float64 {
	return floats.Sum(g.Density) * g.Descriptor.CellVolume()
}
