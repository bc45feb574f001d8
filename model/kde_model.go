package model

// Clip bounds the samples kept by a univariate KDE.
type Clip struct {
	Lower float64
	Upper float64
}

func (c *Clip) Contains(x float64) bool {
	if c == nil {
		return true
	}
	return x >= c.Lower && x <= c.Upper
}

type Density struct {
	X     float64
	Value float64
}

type Cdf struct {
	X     float64
	Value float64
}

type QuantileValue struct {
	Value    float64 `json:"v,omitempty"`
	Quantile float64 `json:"q,omitempty"`
}
