package ml

import (
	"fmt"
	"math"
	"math/rand"

	"term-deposit/internal/features"
)

// Distribution is the sampling law of a hyperparameter range.
type Distribution string

const (
	// Uniform draws a real value from [Lower, Upper).
	Uniform Distribution = "uniform"
	// IntUniform draws an integer from [Lower, Upper).
	IntUniform Distribution = "int_uniform"
)

// ParamRange declares how one hyperparameter is sampled.
type ParamRange struct {
	Name  string       `json:"name"`
	Lower float64      `json:"lower"`
	Upper float64      `json:"upper"`
	Kind  Distribution `json:"kind"`
}

// Validate checks that the range can be sampled.
func (r ParamRange) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("parameter range has no name")
	}
	if math.IsNaN(r.Lower) || math.IsNaN(r.Upper) || math.IsInf(r.Lower, 0) || math.IsInf(r.Upper, 0) {
		return fmt.Errorf("%s: bounds must be finite", r.Name)
	}
	if r.Upper <= r.Lower {
		return fmt.Errorf("%s: upper bound %v must exceed lower bound %v", r.Name, r.Upper, r.Lower)
	}
	switch r.Kind {
	case Uniform:
	case IntUniform:
		if r.Lower != math.Trunc(r.Lower) || r.Upper != math.Trunc(r.Upper) {
			return fmt.Errorf("%s: integer range needs integral bounds, got [%v, %v)", r.Name, r.Lower, r.Upper)
		}
	default:
		return fmt.Errorf("%s: unknown distribution %q", r.Name, r.Kind)
	}
	return nil
}

// Sample draws one value.
func (r ParamRange) Sample(rng *rand.Rand) float64 {
	if r.Kind == IntUniform {
		return r.Lower + float64(rng.Intn(int(r.Upper-r.Lower)))
	}
	return r.Lower + rng.Float64()*(r.Upper-r.Lower)
}

// within reports whether the whole range lies inside [lo, hi].
func (r ParamRange) within(lo, hi float64) error {
	if r.Lower < lo || r.Upper > hi {
		return fmt.Errorf("%s: range [%v, %v) must lie within [%v, %v]", r.Name, r.Lower, r.Upper, lo, hi)
	}
	return nil
}

// SearchSpace holds the sampled hyperparameters of the randomized search.
type SearchSpace struct {
	NEstimators     ParamRange `json:"n_estimators"`
	LearningRate    ParamRange `json:"learning_rate"`
	MaxDepth        ParamRange `json:"max_depth"`
	Subsample       ParamRange `json:"subsample"`
	ColsampleByTree ParamRange `json:"colsample_bytree"`
	Gamma           ParamRange `json:"gamma"`
	ScalePosWeight  ParamRange `json:"scale_pos_weight"`
}

// DefaultSearchSpace returns the standard ranges with the positive-class
// weight band centered on the observed class imbalance.
func DefaultSearchSpace(imbalance float64) SearchSpace {
	lower, upper := features.WeightBand(imbalance)
	return SearchSpace{
		NEstimators:     ParamRange{Name: "n_estimators", Lower: 100, Upper: 1000, Kind: IntUniform},
		LearningRate:    ParamRange{Name: "learning_rate", Lower: 0.01, Upper: 0.30, Kind: Uniform},
		MaxDepth:        ParamRange{Name: "max_depth", Lower: 3, Upper: 10, Kind: IntUniform},
		Subsample:       ParamRange{Name: "subsample", Lower: 0.6, Upper: 1.0, Kind: Uniform},
		ColsampleByTree: ParamRange{Name: "colsample_bytree", Lower: 0.6, Upper: 1.0, Kind: Uniform},
		Gamma:           ParamRange{Name: "gamma", Lower: 0, Upper: 0.5, Kind: Uniform},
		ScalePosWeight:  ParamRange{Name: "scale_pos_weight", Lower: lower, Upper: upper, Kind: Uniform},
	}
}

// Validate checks every range and that sampled values are legal parameters.
func (s SearchSpace) Validate() error {
	ranges := s.ranges()
	for _, r := range ranges {
		if err := r.Validate(); err != nil {
			return err
		}
	}

	checks := []struct {
		r      ParamRange
		kind   Distribution
		lo, hi float64
	}{
		{s.NEstimators, IntUniform, 1, 100000},
		{s.LearningRate, Uniform, 0, 1},
		{s.MaxDepth, IntUniform, 1, 64},
		{s.Subsample, Uniform, 0, 1},
		{s.ColsampleByTree, Uniform, 0, 1},
		{s.Gamma, Uniform, 0, math.MaxFloat64},
		{s.ScalePosWeight, Uniform, 0, math.MaxFloat64},
	}
	for _, c := range checks {
		if c.r.Kind != c.kind {
			return fmt.Errorf("%s: expected %s distribution, got %s", c.r.Name, c.kind, c.r.Kind)
		}
		if err := c.r.within(c.lo, c.hi); err != nil {
			return err
		}
	}
	for _, r := range []ParamRange{s.LearningRate, s.Subsample, s.ColsampleByTree, s.ScalePosWeight} {
		if r.Lower <= 0 {
			return fmt.Errorf("%s: lower bound must be positive", r.Name)
		}
	}
	return nil
}

func (s SearchSpace) ranges() []ParamRange {
	return []ParamRange{
		s.NEstimators, s.LearningRate, s.MaxDepth, s.Subsample,
		s.ColsampleByTree, s.Gamma, s.ScalePosWeight,
	}
}

// Sample draws one configuration on top of base. Draw order is fixed so a
// seeded rng always yields the same sequence of configurations.
func (s SearchSpace) Sample(rng *rand.Rand, base Params) Params {
	p := base
	p.NEstimators = int(s.NEstimators.Sample(rng))
	p.LearningRate = s.LearningRate.Sample(rng)
	p.MaxDepth = int(s.MaxDepth.Sample(rng))
	p.Subsample = s.Subsample.Sample(rng)
	p.ColsampleByTree = s.ColsampleByTree.Sample(rng)
	p.Gamma = s.Gamma.Sample(rng)
	p.ScalePosWeight = s.ScalePosWeight.Sample(rng)
	return p
}
