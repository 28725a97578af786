package em

import (
	"math"
	"math/big"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/stat/combin"
)

// maxExactTosses is the largest n for which combin.Binomial fits in an int
// without overflowing its intermediate products.
const maxExactTosses = 60

func checkArgs(h, n int, p float64) error {
	if n <= 0 {
		return ErrInvalidTosses
	}
	if h < 0 || h > n {
		return errors.Wrapf(ErrInvalidObservation, "heads=%d outside [0,%d]", h, n)
	}
	if math.IsNaN(p) || p < 0 || p > 1 {
		return errors.Wrapf(ErrInvalidTheta, "p=%v", p)
	}
	return nil
}

func binomialCoefficient(n, k int) float64 {
	if n <= maxExactTosses {
		return float64(combin.Binomial(n, k))
	}
	c := new(big.Int).Binomial(int64(n), int64(k))
	f, _ := new(big.Float).SetInt(c).Float64()
	return f
}

func logBinomialCoefficient(n, k int) float64 {
	if c := binomialCoefficient(n, k); !math.IsInf(c, 0) {
		return math.Log(c)
	}
	return combin.LogGeneralizedBinomial(float64(n), float64(k))
}

// Likelihood returns the binomial probability C(n,h) p^h (1-p)^(n-h) of
// observing h heads in n tosses of a coin with bias p.
func Likelihood(h, n int, p float64) (float64, error) {
	if err := checkArgs(h, n, p); err != nil {
		return 0, err
	}

	switch p {
	case 0:
		if h == 0 {
			return 1, nil
		}
		return 0, nil
	case 1:
		if h == n {
			return 1, nil
		}
		return 0, nil
	}

	if n > maxExactTosses {
		ll, _ := LogLikelihood(h, n, p)
		return math.Exp(ll), nil
	}
	return binomialCoefficient(n, h) * math.Pow(p, float64(h)) * math.Pow(1-p, float64(n-h)), nil
}

// LogLikelihood is the natural log of Likelihood. It stays finite where
// Likelihood underflows and is -Inf exactly where Likelihood is 0.
func LogLikelihood(h, n int, p float64) (float64, error) {
	if err := checkArgs(h, n, p); err != nil {
		return 0, err
	}

	switch p {
	case 0:
		if h == 0 {
			return 0, nil
		}
		return math.Inf(-1), nil
	case 1:
		if h == n {
			return 0, nil
		}
		return math.Inf(-1), nil
	}

	return logBinomialCoefficient(n, h) + float64(h)*math.Log(p) + float64(n-h)*math.Log1p(-p), nil
}
