package optimize

import (
	"math/rand/v2"
	"slices"

	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// OptimizerConfig tunes the sequential model-based search.
type OptimizerConfig struct {
	NInitialPoints int
	RandomState    int64
	Kappa          float64
	AcqSamples     int
}

// Optimizer proposes points minimizing an objective. It starts with random points,
// then minimizes the lower confidence bound of a Gaussian process fitted to every told point.
type Optimizer struct {
	space *Space
	cfg   OptimizerConfig
	rng   *rand.Rand

	points  [][]any
	encoded [][]float64
	values  []float64
	random  int
}

// NewOptimizer creates an Optimizer over space.
func NewOptimizer(space *Space, cfg OptimizerConfig) *Optimizer {
	if cfg.Kappa <= 0 {
		cfg.Kappa = 1.96
	}
	if cfg.AcqSamples <= 0 {
		cfg.AcqSamples = 2000
	}
	if cfg.NInitialPoints < 0 {
		cfg.NInitialPoints = 0
	}
	seed := uint64(cfg.RandomState)
	return &Optimizer{
		space: space,
		cfg:   cfg,
		rng:   rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Tell records the objective value observed at point.
func (o *Optimizer) Tell(point []any, value float64) {
	o.points = append(o.points, point)
	o.encoded = append(o.encoded, o.space.Encode(point))
	o.values = append(o.values, value)
}

// Told returns the number of recorded observations.
func (o *Optimizer) Told() int {
	return len(o.values)
}

// Ask returns the next point to evaluate.
func (o *Optimizer) Ask() []any {
	if o.random < o.cfg.NInitialPoints || len(o.values) == 0 {
		o.random++
		return o.space.Sample(o.rng)
	}

	gp, err := fitGP(o.encoded, o.values)
	if err != nil {
		logger.Warnf("Optimizer: surrogate fit failed (%v), proposing a random point.", err)
		return o.space.Sample(o.rng)
	}

	var best []any
	bestLCB := 0.0
	var fallback []any
	fallbackLCB := 0.0
	for i := 0; i < o.cfg.AcqSamples; i++ {
		candidate := o.space.Sample(o.rng)
		mu, sigma := gp.predict(o.space.Encode(candidate))
		lcb := mu - o.cfg.Kappa*sigma
		if fallback == nil || lcb < fallbackLCB {
			fallback, fallbackLCB = candidate, lcb
		}
		if o.evaluated(candidate) {
			continue
		}
		if best == nil || lcb < bestLCB {
			best, bestLCB = candidate, lcb
		}
	}
	if best == nil {
		logger.Debugf("Optimizer: every candidate was already evaluated, repeating the best one.")
		return fallback
	}
	logger.Debugf("Optimizer: proposal lcb=%.4f (length scale %.2f).", bestLCB, gp.lengthScale)
	return best
}

func (o *Optimizer) evaluated(point []any) bool {
	enc := o.space.Encode(point)
	for _, e := range o.encoded {
		if slices.Equal(e, enc) {
			return true
		}
	}
	return false
}
