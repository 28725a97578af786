package em

import (
	"fmt"
	"math"

	"github.com/pkg/errors"
)

// Coin names one of the two hypotheses.
type Coin int

const (
	CoinA Coin = iota
	CoinB
)

func (c Coin) String() string {
	switch c {
	case CoinA:
		return "A"
	case CoinB:
		return "B"
	default:
		return fmt.Sprintf("Coin(%d)", int(c))
	}
}

// Theta is a pair of bias estimates.
type Theta struct {
	A float64 `yaml:"theta_a" json:"theta_a"`
	B float64 `yaml:"theta_b" json:"theta_b"`
}

func (t Theta) Get(c Coin) float64 {
	if c == CoinB {
		return t.B
	}
	return t.A
}

func (t Theta) Validate() error {
	for _, c := range []Coin{CoinA, CoinB} {
		p := t.Get(c)
		if math.IsNaN(p) || p < 0 || p > 1 {
			return errors.Wrapf(ErrInvalidTheta, "theta_%s=%v", c, p)
		}
	}
	return nil
}

// Improvement is the largest absolute change of either estimate.
func (t Theta) Improvement(prev Theta) float64 {
	return math.Max(math.Abs(t.A-prev.A), math.Abs(t.B-prev.B))
}

func (t Theta) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", t.A, t.B)
}
