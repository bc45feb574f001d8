package utils

import "math"

// CeilDiv returns ceil(a / b) for a >= 0, b > 0.
func CeilDiv(a, b int) int {
	return (a + b - 1) / b
}

func IsFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func IntMax(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func IntMin(a, b int) int {
	if a < b {
		return a
	}
	return b
}
