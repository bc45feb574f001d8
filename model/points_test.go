package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uyouii/causal-kde/common"
)

func TestNewPoints(t *testing.T) {
	p, err := NewPoints(2, []float64{1, 2, 3, 4, 5, 6})
	require.NoError(t, err)
	assert.Equal(t, 3, p.Len())
	assert.Equal(t, []float64{3, 4}, p.At(1))
	assert.Equal(t, []float64{2, 4, 6}, p.Column(1))
	assert.Equal(t, [][]float64{{1, 2}, {3, 4}, {5, 6}}, p.Rows())
	assert.Equal(t, "dim: 2, count: 3", p.DebugString())

	_, err = NewPoints(2, []float64{1, 2, 3})
	assert.ErrorIs(t, err, common.ErrorDimensionMismatch)

	_, err = NewPoints(0, nil)
	assert.ErrorIs(t, err, common.ErrorDimensionMismatch)
}

func TestPointsFromRows(t *testing.T) {
	rows := [][]float64{{1, 2}, {3, 4}}
	p, err := PointsFromRows(2, rows)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3, 4}, p.Coords)

	// rows are copied
	rows[0][0] = 100
	assert.Equal(t, 1.0, p.Coords[0])

	_, err = PointsFromRows(2, [][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, common.ErrorDimensionMismatch)

	empty, err := PointsFromRows(3, nil)
	require.NoError(t, err)
	assert.True(t, empty.IsEmpty())
	assert.Equal(t, 3, empty.Dim)
}

func TestPointsEmpty(t *testing.T) {
	var nilPoints *Points
	assert.Zero(t, nilPoints.Len())
	assert.True(t, nilPoints.IsEmpty())
	assert.Equal(t, "points: nil", nilPoints.DebugString())

	assert.True(t, (&Points{Dim: 2}).IsEmpty())
	assert.Equal(t, 4, Scalars([]float64{1, 2, 3, 4}).Len())
}

func TestIsotropicBandwidth(t *testing.T) {
	bw := IsotropicBandwidth(0.5, 3)
	assert.Equal(t, Bandwidth{0.5, 0.5, 0.5}, bw)
	assert.Equal(t, 3, bw.Dim())
}

func TestClipContains(t *testing.T) {
	var unbounded *Clip
	assert.True(t, unbounded.Contains(-1e300))

	clip := &Clip{Lower: 0, Upper: 1}
	assert.True(t, clip.Contains(0))
	assert.True(t, clip.Contains(1))
	assert.False(t, clip.Contains(1.5))
	assert.False(t, clip.Contains(-0.1))
}
