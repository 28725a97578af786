package em

import (
	"math"

	"github.com/pkg/errors"
)

// BetaPrior is a Beta(Alpha, Beta) prior on a coin's bias. The MAP update
// adds Alpha-1 pseudo-heads and Beta-1 pseudo-tails, so Beta(1,1) is the
// maximum likelihood update.
type BetaPrior struct {
	Alpha float64 `yaml:"alpha" json:"alpha"`
	Beta  float64 `yaml:"beta" json:"beta"`
}

func NewBetaPrior(alpha, beta float64) (*BetaPrior, error) {
	p := &BetaPrior{Alpha: alpha, Beta: beta}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate requires both parameters >= 1 so the posterior mode stays in [0,1].
func (p BetaPrior) Validate() error {
	if math.IsNaN(p.Alpha) || math.IsNaN(p.Beta) || p.Alpha < 1 || p.Beta < 1 {
		return errors.Wrapf(ErrInvalidPrior, "beta prior needs alpha, beta >= 1 (got %v, %v)", p.Alpha, p.Beta)
	}
	return nil
}

func (p BetaPrior) Adjust(_ Coin, heads, tosses float64) (float64, float64) {
	return heads + p.Alpha - 1, tosses + p.Alpha + p.Beta - 2
}

// NewGaussianPrior approximates a Gaussian belief about a bias, given by its
// mean and variance, with the Beta prior of the same first two moments.
func NewGaussianPrior(mean, variance float64) (*BetaPrior, error) {
	if !(mean > 0 && mean < 1) {
		return nil, errors.Wrapf(ErrInvalidPrior, "gaussian prior mean %v outside (0,1)", mean)
	}
	if !(variance > 0 && variance < mean*(1-mean)) {
		return nil, errors.Wrapf(ErrInvalidPrior, "gaussian prior variance %v outside (0,%v)", variance, mean*(1-mean))
	}

	k := mean*(1-mean)/variance - 1
	p, err := NewBetaPrior(mean*k, (1-mean)*k)
	if err != nil {
		return nil, errors.WithMessage(err, "variance too wide for a MAP estimate")
	}
	return p, nil
}

// CoinPriors applies a separate prior to each coin; a nil entry leaves that
// coin's update untouched.
type CoinPriors struct {
	A Prior
	B Prior
}

func (p CoinPriors) Adjust(coin Coin, heads, tosses float64) (float64, float64) {
	prior := p.A
	if coin == CoinB {
		prior = p.B
	}
	if prior == nil {
		return heads, tosses
	}
	return prior.Adjust(coin, heads, tosses)
}

type validator interface {
	Validate() error
}

func validatePrior(p Prior) error {
	switch v := p.(type) {
	case nil:
		return nil
	case CoinPriors:
		if err := validatePrior(v.A); err != nil {
			return err
		}
		return validatePrior(v.B)
	case validator:
		return v.Validate()
	}
	return nil
}
