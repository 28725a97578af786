package em

import (
	"math"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Responsibility is the posterior probability that each coin produced one
// experiment. A + B == 1.
type Responsibility struct {
	A float64 `yaml:"a" json:"a"`
	B float64 `yaml:"b" json:"b"`
}

func (r Responsibility) Get(c Coin) float64 {
	if c == CoinB {
		return r.B
	}
	return r.A
}

// EqualSplit is the responsibility assigned when neither coin can explain an
// experiment (both likelihoods exactly 0).
var EqualSplit = Responsibility{A: 0.5, B: 0.5}

// ComputeResponsibility computes the E-step for one experiment. degenerate is
// true when the equal-split fallback was applied.
func ComputeResponsibility(theta Theta, e Experiment, tosses int) (r Responsibility, degenerate bool, err error) {
	la, err := Likelihood(e.Heads, tosses, theta.A)
	if err != nil {
		return r, false, err
	}
	lb, err := Likelihood(e.Heads, tosses, theta.B)
	if err != nil {
		return r, false, err
	}

	if sum := la + lb; sum > 0 {
		wa := la / sum
		return Responsibility{A: wa, B: 1 - wa}, false, nil
	}

	// Both vanished in linear space. They may only have underflowed, so
	// normalise from the log-likelihoods before giving up.
	lla, _ := LogLikelihood(e.Heads, tosses, theta.A)
	llb, _ := LogLikelihood(e.Heads, tosses, theta.B)
	if math.IsInf(lla, -1) && math.IsInf(llb, -1) {
		return EqualSplit, true, nil
	}

	wa := 1 / (1 + math.Exp(llb-lla))
	return Responsibility{A: wa, B: 1 - wa}, false, nil
}

// EStep computes the responsibility matrix for all experiments and the number
// of degenerate rows. With workers > 1 the rows are split into contiguous
// chunks evaluated concurrently; each chunk writes only its own rows.
func EStep(theta Theta, experiments []Experiment, tosses, workers int) ([]Responsibility, int, error) {
	weights := make([]Responsibility, len(experiments))

	if workers <= 1 || len(experiments) < 2 {
		degenerate, err := estepRange(theta, experiments, tosses, weights, 0, len(experiments))
		return weights, degenerate, err
	}

	if workers > len(experiments) {
		workers = len(experiments)
	}
	chunk := (len(experiments) + workers - 1) / workers
	counts := make([]int, workers)

	var g errgroup.Group
	for w := 0; w < workers; w++ {
		lo, hi := w*chunk, (w+1)*chunk
		if hi > len(experiments) {
			hi = len(experiments)
		}
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			n, err := estepRange(theta, experiments, tosses, weights, lo, hi)
			counts[w] = n
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	degenerate := 0
	for _, n := range counts {
		degenerate += n
	}
	return weights, degenerate, nil
}

func estepRange(theta Theta, experiments []Experiment, tosses int, dst []Responsibility, lo, hi int) (int, error) {
	degenerate := 0
	for i := lo; i < hi; i++ {
		r, d, err := ComputeResponsibility(theta, experiments[i], tosses)
		if err != nil {
			return 0, errors.WithMessagef(err, "experiment %d", i)
		}
		if d {
			degenerate++
		}
		dst[i] = r
	}
	return degenerate, nil
}
