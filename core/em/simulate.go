package em

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/distuv"
)

type SimulationConfig struct {
	Count  int
	Tosses int
	Truth  Theta
	// ProbA is the chance each experiment uses coin A.
	ProbA float64
	Seed  uint64
}

// Simulation holds generated experiments together with the coin that was
// actually tossed, which the estimator never sees.
type Simulation struct {
	Experiments []Experiment
	Coins       []Coin
}

// Simulate draws Count experiments from the two true biases.
func Simulate(cfg SimulationConfig) (*Simulation, error) {
	if cfg.Count <= 0 {
		return nil, ErrNoExperiments
	}
	if cfg.Tosses <= 0 {
		return nil, ErrInvalidTosses
	}
	if err := cfg.Truth.Validate(); err != nil {
		return nil, errors.WithMessage(err, "true biases")
	}
	if math.IsNaN(cfg.ProbA) || cfg.ProbA < 0 || cfg.ProbA > 1 {
		return nil, errors.Errorf("coin A probability %v outside [0,1]", cfg.ProbA)
	}

	src := newSource(cfg.Seed)
	pick := distuv.Bernoulli{P: 1 - cfg.ProbA, Src: src}
	draw := [2]distuv.Binomial{
		{N: float64(cfg.Tosses), P: cfg.Truth.A, Src: src},
		{N: float64(cfg.Tosses), P: cfg.Truth.B, Src: src},
	}

	sim := &Simulation{
		Experiments: make([]Experiment, cfg.Count),
		Coins:       make([]Coin, cfg.Count),
	}
	for i := 0; i < cfg.Count; i++ {
		coin := Coin(pick.Rand())
		heads := int(draw[coin].Rand())
		sim.Coins[i] = coin
		sim.Experiments[i] = Experiment{Heads: heads, Tails: cfg.Tosses - heads}
	}
	return sim, nil
}
