package em

import (
	"github.com/pkg/errors"
)

// SufficientStats holds the responsibility-weighted head and toss counts of
// one iteration, indexed by Coin. A fresh value is built every iteration.
type SufficientStats struct {
	Heads  [2]float64
	Tosses [2]float64
}

// Accumulate folds a responsibility matrix and its experiments into
// per-coin weighted counts.
func Accumulate(weights []Responsibility, experiments []Experiment, tosses int) SufficientStats {
	var s SufficientStats
	n := float64(tosses)
	for i, e := range experiments {
		w := weights[i]
		h := float64(e.Heads)
		s.Heads[CoinA] += w.A * h
		s.Heads[CoinB] += w.B * h
		s.Tosses[CoinA] += w.A * n
		s.Tosses[CoinB] += w.B * n
	}
	return s
}

// Prior adjusts the M-step ratio of one coin. It receives the weighted head
// and toss counts and returns the numerator and denominator to use instead.
// A nil Prior gives the maximum likelihood update.
type Prior interface {
	Adjust(coin Coin, heads, tosses float64) (num, den float64)
}

// MStep turns sufficient statistics into the next pair of bias estimates.
func MStep(stats SufficientStats, prior Prior) (Theta, error) {
	var next [2]float64
	for _, c := range []Coin{CoinA, CoinB} {
		num, den := stats.Heads[c], stats.Tosses[c]
		if prior != nil {
			num, den = prior.Adjust(c, num, den)
		}
		if den <= 0 {
			return Theta{}, errors.Wrapf(ErrZeroResponsibilityMass, "coin %s", c)
		}
		next[c] = num / den
	}

	theta := Theta{A: next[CoinA], B: next[CoinB]}
	if err := theta.Validate(); err != nil {
		return Theta{}, errors.WithMessage(err, "m-step produced an estimate outside [0,1]")
	}
	return theta, nil
}
