package kde

import (
	"math"

	"github.com/uyouii/causal-kde/model"
)

// Kernel is a radially symmetric smoothing kernel. Estimators combine the
// per-dimension scaled distances u_j = (q_j - s_j) / h_j into
// sqDist = sum(u_j^2) and weight each sample by Evaluate(sqDist).
type Kernel interface {
	Name() string

	// Evaluate returns the unnormalized kernel weight, maximal at 0 and
	// decaying as sqDist grows.
	Evaluate(sqDist float64) float64

	// Normalization is the constant that makes Evaluate integrate to 1
	// over R^d for the bandwidth bw. Computed once per estimation.
	Normalization(bw model.Bandwidth) float64

	// NormalReferenceConstant scales the normal reference bandwidth rule.
	NormalReferenceConstant(dim int) float64
}

type GaussianKernel struct {
	l2Norm    float64
	kernelVar float64
	order     int
}

func NewGaussianKernel() *GaussianKernel {
	return &GaussianKernel{
		l2Norm:    1.0 / (2.0 * math.Sqrt(math.Pi)),
		kernelVar: 1.0,
		order:     2,
	}
}

func (k *GaussianKernel) Name() string {
	return DefaultKernel
}

func (k *GaussianKernel) Evaluate(sqDist float64) float64 {
	return math.Exp(-0.5 * sqDist)
}

func (k *GaussianKernel) Normalization(bw model.Bandwidth) float64 {
	d := float64(len(bw))
	volume := 1.0
	for _, h := range bw {
		volume *= h
	}
	return 1.0 / (math.Pow(2*math.Pi, d/2) * volume)
}

// NormalReferenceConstant for dim 1 is the AMISE optimal constant of a
// second order kernel (1.059 for the gaussian). For higher dimensions the
// multivariate normal reference factor (4/(d+2))^(1/(d+4)) is used, which
// agrees with the one dimensional value at d = 1.
func (k *GaussianKernel) NormalReferenceConstant(dim int) float64 {
	if dim <= 1 {
		nu := k.order
		numerator := math.Pow(math.Pi, 0.5) * math.Pow(factorial(nu), 3) * k.l2Norm
		denom := 2.0 * float64(nu) * factorial(2*nu) * math.Pow(k.Moments(nu), 2)
		return 2 * math.Pow(numerator/denom, 1.0/float64(2*nu+1))
	}
	d := float64(dim)
	return math.Pow(4/(d+2), 1/(d+4))
}

func (k *GaussianKernel) Moments(n int) float64 {
	if n == 1 {
		return 0
	}
	if n == 2 {
		return k.kernelVar
	}
	return 1.0
}

// KernelByName resolves a configured kernel name.
func KernelByName(name string) (Kernel, bool) {
	switch name {
	case "", DefaultKernel:
		return NewGaussianKernel(), true
	}
	return nil, false
}
