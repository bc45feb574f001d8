package kde

import (
	"fmt"
	"math"
	"sort"

	"github.com/uyouii/causal-kde/common"
	"github.com/uyouii/causal-kde/model"
	"github.com/uyouii/causal-kde/utils"
	"gonum.org/v1/gonum/stat"
)

type BandwidthRule string

const (
	RuleExplicit        BandwidthRule = "explicit"
	RuleAuto            BandwidthRule = "auto"
	RuleSilverman       BandwidthRule = "silverman"
	RuleScott           BandwidthRule = "scott"
	RuleNormalReference BandwidthRule = "normal_reference"
)

func (r BandwidthRule) valid() bool {
	switch r {
	case "", RuleExplicit, RuleAuto, RuleSilverman, RuleScott, RuleNormalReference:
		return true
	}
	return false
}

// BandwidthSpec is a bandwidth as configured: either explicit values
// (one isotropic value, or one per dimension) or a rule that derives the
// bandwidth from the samples. The zero value means RuleAuto.
type BandwidthSpec struct {
	Rule   BandwidthRule
	Values []float64
}

func ExplicitBandwidth(values ...float64) BandwidthSpec {
	return BandwidthSpec{Rule: RuleExplicit, Values: values}
}

func AutoBandwidth() BandwidthSpec {
	return BandwidthSpec{Rule: RuleAuto}
}

func (s BandwidthSpec) IsExplicit() bool {
	return s.Rule == RuleExplicit || (s.Rule == "" && len(s.Values) > 0)
}

func (s BandwidthSpec) Validate() error {
	if !s.Rule.valid() {
		return fmt.Errorf("%w: unknown bandwidth rule %q", common.ErrorInvalidConfig, s.Rule)
	}
	if !s.IsExplicit() {
		return nil
	}
	if len(s.Values) == 0 {
		return fmt.Errorf("%w: explicit bandwidth without values", common.ErrorInvalidBandwidth)
	}
	for i, h := range s.Values {
		if !utils.IsFinite(h) || h <= 0 {
			return fmt.Errorf("%w: value %d is %v", common.ErrorInvalidBandwidth, i, h)
		}
	}
	return nil
}

// BandWidth derives a bandwidth from a sample set.
type BandWidth interface {
	BandWidth(samples *model.Points) (model.Bandwidth, error)
}

// SilvermanBandWidth: h_j = (4/(d+2))^(1/(d+4)) * n^(-1/(d+4)) * stddev_j.
type SilvermanBandWidth struct{}

func (SilvermanBandWidth) BandWidth(samples *model.Points) (model.Bandwidth, error) {
	d := float64(samples.Dim)
	factor := math.Pow(4/(d+2), 1/(d+4))
	return scaledSigma(samples, factor, stdDev)
}

// ScottBandWidth: h_j = n^(-1/(d+4)) * stddev_j.
type ScottBandWidth struct{}

func (ScottBandWidth) BandWidth(samples *model.Points) (model.Bandwidth, error) {
	return scaledSigma(samples, 1, stdDev)
}

// NormalReferenceBandWidth uses the kernel's normal reference constant
// with sigma = min(std, IQR/1.349).
type NormalReferenceBandWidth struct {
	kernel Kernel
}

func NewNormalReferenceBandWidth(kernel Kernel) *NormalReferenceBandWidth {
	if kernel == nil {
		kernel = NewGaussianKernel()
	}
	return &NormalReferenceBandWidth{
		kernel: kernel,
	}
}

func (bw *NormalReferenceBandWidth) BandWidth(samples *model.Points) (model.Bandwidth, error) {
	C := bw.kernel.NormalReferenceConstant(samples.Dim)
	return scaledSigma(samples, C, selectSigma)
}

func scaledSigma(samples *model.Points, factor float64, sigma func([]float64) float64) (model.Bandwidth, error) {
	n := samples.Len()
	if n < 2 {
		return nil, fmt.Errorf("%w: automatic bandwidth needs at least 2 samples, got %d: %w",
			common.ErrorInvalidBandwidth, n, common.ErrorInsufficientData)
	}
	scale := factor * math.Pow(float64(n), -1/(float64(samples.Dim)+4))

	res := make(model.Bandwidth, samples.Dim)
	for j := 0; j < samples.Dim; j++ {
		res[j] = scale * sigma(samples.Column(j))
		if !utils.IsFinite(res[j]) || res[j] <= 0 {
			return nil, fmt.Errorf("%w: dimension %d has no spread (bandwidth %v)",
				common.ErrorInvalidBandwidth, j, res[j])
		}
	}
	return res, nil
}

func stdDev(x []float64) float64 {
	return stat.StdDev(x, nil)
}

func selectSigma(x []float64) float64 {
	sorted := make([]float64, len(x))
	copy(sorted, x)
	sort.Float64s(sorted)

	q75 := stat.Quantile(0.75, stat.Empirical, sorted, nil)
	q25 := stat.Quantile(0.25, stat.Empirical, sorted, nil)
	iqr := (q75 - q25) / iqrNormalize

	stdDev := stat.StdDev(sorted, nil)

	if iqr > 0 {
		if stdDev < iqr {
			return stdDev
		}
		return iqr
	}
	return stdDev
}

// ResolveBandwidth turns spec into a per-dimension bandwidth for samples.
// Explicit values are validated and expanded; rules are evaluated on the
// samples. kernel may be nil, the gaussian kernel is used then.
func ResolveBandwidth(samples *model.Points, spec BandwidthSpec, kernel Kernel) (model.Bandwidth, error) {
	if samples == nil || samples.Dim < 1 {
		return nil, fmt.Errorf("%w: samples have no dimension", common.ErrorDimensionMismatch)
	}
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	if spec.IsExplicit() {
		switch len(spec.Values) {
		case 1:
			return model.IsotropicBandwidth(spec.Values[0], samples.Dim), nil
		case samples.Dim:
			res := make(model.Bandwidth, samples.Dim)
			copy(res, spec.Values)
			return res, nil
		default:
			return nil, fmt.Errorf("%w: %d bandwidth values for %d dimensions",
				common.ErrorDimensionMismatch, len(spec.Values), samples.Dim)
		}
	}

	var estimator BandWidth
	switch spec.Rule {
	case RuleScott:
		estimator = ScottBandWidth{}
	case RuleNormalReference:
		estimator = NewNormalReferenceBandWidth(kernel)
	default:
		estimator = SilvermanBandWidth{}
	}
	return estimator.BandWidth(samples)
}

// ValidateBandwidth checks bw against a dimension: one strictly positive
// finite value per dimension.
func ValidateBandwidth(bw model.Bandwidth, dim int) error {
	if len(bw) != dim {
		return fmt.Errorf("%w: bandwidth has %d values for %d dimensions",
			common.ErrorDimensionMismatch, len(bw), dim)
	}
	for j, h := range bw {
		if !utils.IsFinite(h) || h <= 0 {
			return fmt.Errorf("%w: dimension %d is %v", common.ErrorInvalidBandwidth, j, h)
		}
	}
	return nil
}

// AdjustBandwidth multiplies every entry by adjust, like a bw_adjust
// factor. adjust of 0 leaves bw unchanged.
func AdjustBandwidth(bw model.Bandwidth, adjust float64) (model.Bandwidth, error) {
	if adjust == 0 || adjust == 1 {
		return bw, nil
	}
	if !utils.IsFinite(adjust) || adjust < 0 {
		return nil, fmt.Errorf("%w: adjust factor %v", common.ErrorInvalidBandwidth, adjust)
	}
	res := make(model.Bandwidth, len(bw))
	for j, h := range bw {
		res[j] = h * adjust
	}
	return res, nil
}
