package em

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulateDeterministic(t *testing.T) {
	cfg := SimulationConfig{Count: 50, Tosses: 10, Truth: Theta{A: 0.8, B: 0.3}, ProbA: 0.5, Seed: 11}

	a, err := Simulate(cfg)
	require.NoError(t, err)
	b, err := Simulate(cfg)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	require.Len(t, a.Experiments, 50)
	require.Len(t, a.Coins, 50)
	for _, e := range a.Experiments {
		assert.NoError(t, e.Validate(10))
	}
}

func TestSimulateExtremeBiases(t *testing.T) {
	sim, err := Simulate(SimulationConfig{Count: 20, Tosses: 10, Truth: Theta{A: 1, B: 0}, ProbA: 0.5, Seed: 2})
	require.NoError(t, err)
	for i, e := range sim.Experiments {
		if sim.Coins[i] == CoinA {
			assert.Equal(t, 10, e.Heads)
		} else {
			assert.Equal(t, 0, e.Heads)
		}
	}
}

func TestSimulateSingleCoin(t *testing.T) {
	for _, tc := range []struct {
		probA float64
		want  Coin
	}{
		{0, CoinB},
		{1, CoinA},
	} {
		sim, err := Simulate(SimulationConfig{Count: 200, Tosses: 10, Truth: Theta{A: 0.9, B: 0.1}, ProbA: tc.probA, Seed: 5})
		require.NoError(t, err)
		for i, c := range sim.Coins {
			require.Equal(t, tc.want, c, "probA=%v experiment %d", tc.probA, i)
		}
	}
}

func TestSimulateInvalid(t *testing.T) {
	_, err := Simulate(SimulationConfig{Count: 0, Tosses: 10, Truth: Theta{A: 0.5, B: 0.5}, ProbA: 0.5})
	assert.True(t, errors.Is(err, ErrNoExperiments))

	_, err = Simulate(SimulationConfig{Count: 3, Tosses: 0, Truth: Theta{A: 0.5, B: 0.5}, ProbA: 0.5})
	assert.True(t, errors.Is(err, ErrInvalidTosses))

	_, err = Simulate(SimulationConfig{Count: 3, Tosses: 10, Truth: Theta{A: 2, B: 0.5}, ProbA: 0.5})
	assert.True(t, errors.Is(err, ErrInvalidTheta))

	_, err = Simulate(SimulationConfig{Count: 3, Tosses: 10, Truth: Theta{A: 0.5, B: 0.5}, ProbA: 1.5})
	assert.Error(t, err)

	_, err = Simulate(SimulationConfig{Count: 3, Tosses: 10, Truth: Theta{A: 0.5, B: 0.5}, ProbA: -0.1})
	assert.Error(t, err)
}

func TestRunRecoversSimulatedBiases(t *testing.T) {
	truth := Theta{A: 0.8, B: 0.3}
	sim, err := Simulate(SimulationConfig{Count: 500, Tosses: 20, Truth: truth, ProbA: 0.5, Seed: 2024})
	require.NoError(t, err)

	est, _ := newTestEstimator(t, func(c *Config) { c.Epsilon = 1e-6 })
	res, err := est.Run(context.Background(), sim.Experiments, Theta{A: 0.6, B: 0.5})
	require.NoError(t, err)
	require.Equal(t, StatusConverged, res.Status)

	assert.InDelta(t, truth.A, res.Theta.A, 0.05)
	assert.InDelta(t, truth.B, res.Theta.B, 0.05)
	for _, rec := range res.Trace {
		assert.NoError(t, rec.Theta.Validate())
	}
}
