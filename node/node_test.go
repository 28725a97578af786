package node

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"coinem/common"
	"coinem/core/config"
	"coinem/core/em"
)

func testConfig() *config.LocalConfig {
	return &config.LocalConfig{
		Log: config.LogSection{Level: "ERROR"},
		EM: config.EMSection{
			Epsilon:       em.DefaultEpsilon,
			MaxIterations: em.DefaultMaxIterations,
			Workers:       1,
			Init:          config.InitSection{Mode: config.INIT_FIXED, ThetaA: 0.6, ThetaB: 0.5},
			Prior:         config.PriorSection{Kind: config.PRIOR_NONE},
		},
		Telemetry:   config.TelemetrySection{Traces: common.EXPORTER_NONE, Metrics: common.EXPORTER_NONE},
		Experiments: [][]int{{5, 5}, {9, 1}, {8, 2}, {4, 6}, {7, 3}},
	}
}

func startRunner(t *testing.T, c *config.LocalConfig) *Runner {
	t.Helper()
	r := &Runner{}
	require.NoError(t, r.Init(c))
	t.Cleanup(func() { _ = r.Stop(context.Background()) })
	return r
}

func TestRunnerStart(t *testing.T) {
	r := startRunner(t, testConfig())

	rep, err := r.Start(context.Background())
	require.NoError(t, err)

	_, err = uuid.Parse(rep.RunID)
	assert.NoError(t, err)
	assert.Equal(t, "CONVERGED", rep.Status)
	assert.Equal(t, 8, rep.Iterations)
	assert.InDelta(t, 0.7965, rep.Theta.A, 1e-3)
	assert.InDelta(t, 0.5200, rep.Theta.B, 1e-3)
	assert.Equal(t, 5, rep.Experiments)
	assert.Equal(t, 10, rep.Tosses)
	assert.Len(t, rep.Trace, 9)
	assert.Empty(t, rep.Starts)
	assert.Nil(t, rep.Truth)
}

func TestRunnerMaxIterationsIsNotAnError(t *testing.T) {
	c := testConfig()
	c.EM.MaxIterations = 2
	r := startRunner(t, c)

	rep, err := r.Start(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "MAX_ITER_EXCEEDED", rep.Status)
	assert.Equal(t, 2, rep.Iterations)
}

func TestRunnerMultiStart(t *testing.T) {
	c := testConfig()
	c.EM.Restarts = 3
	c.EM.Init.Seed = 4
	r := startRunner(t, c)

	rep, err := r.Start(context.Background())
	require.NoError(t, err)
	require.Len(t, rep.Starts, 4)
	assert.Equal(t, em.Theta{A: 0.6, B: 0.5}, rep.Starts[0].Start)
	assert.Equal(t, "CONVERGED", rep.Status)
	best := -1
	for i, s := range rep.Starts {
		if s.Status != "CONVERGED" {
			continue
		}
		if best < 0 || s.LogLikelihood > rep.Starts[best].LogLikelihood {
			best = i
		}
	}
	require.GreaterOrEqual(t, best, 0)
	assert.Equal(t, *rep.Starts[best].Theta, rep.Theta)
}

func TestRunnerSimulate(t *testing.T) {
	c := testConfig()
	c.EM.Epsilon = 1e-6
	r := startRunner(t, c)

	truth := em.Theta{A: 0.8, B: 0.3}
	rep, err := r.Simulate(context.Background(), em.SimulationConfig{Count: 300, Tosses: 20, Truth: truth, ProbA: 0.5, Seed: 3})
	require.NoError(t, err)
	require.NotNil(t, rep.Truth)
	assert.Equal(t, truth, *rep.Truth)
	assert.Equal(t, 300, rep.Experiments)
	assert.InDelta(t, 0.8, rep.Theta.A, 0.05)
	assert.InDelta(t, 0.3, rep.Theta.B, 0.05)

	_, err = r.Simulate(context.Background(), em.SimulationConfig{Count: 0, Tosses: 20, Truth: truth, ProbA: 0.5})
	assert.True(t, errors.Is(err, em.ErrNoExperiments))
}

func TestRunnerErrors(t *testing.T) {
	_, err := (&Runner{}).Start(context.Background())
	assert.Error(t, err)

	c := testConfig()
	c.Experiments = nil
	rep, err := startRunner(t, c).Start(context.Background())
	assert.Nil(t, rep)
	assert.True(t, errors.Is(err, em.ErrNoExperiments))

	c = testConfig()
	c.Experiments = [][]int{{5, 5}, {3, 3}}
	_, err = startRunner(t, c).Start(context.Background())
	assert.True(t, errors.Is(err, em.ErrInvalidObservation))

	c = testConfig()
	c.Log.Level = "chatty"
	assert.Error(t, (&Runner{}).Init(c))

	c = testConfig()
	c.Telemetry.Traces = "jaeger"
	assert.True(t, errors.Is((&Runner{}).Init(c), common.ErrUnknownExporter))

	c = testConfig()
	c.EM.Epsilon = 0
	assert.True(t, errors.Is((&Runner{}).Init(c), em.ErrInvalidEpsilon))
}

func TestReportWrite(t *testing.T) {
	rep, err := startRunner(t, testConfig()).Start(context.Background())
	require.NoError(t, err)

	var text bytes.Buffer
	require.NoError(t, rep.Write(&text, OUTPUT_TEXT))
	assert.Contains(t, text.String(), "CONVERGED")
	assert.Contains(t, text.String(), rep.RunID)
	assert.Contains(t, text.String(), "theta_a")

	var out bytes.Buffer
	require.NoError(t, rep.Write(&out, OUTPUT_YAML))
	var decoded Report
	require.NoError(t, yaml.Unmarshal(out.Bytes(), &decoded))
	assert.Equal(t, rep.RunID, decoded.RunID)
	assert.Equal(t, rep.Status, decoded.Status)
	assert.Equal(t, rep.Iterations, decoded.Iterations)
	assert.Len(t, decoded.Trace, len(rep.Trace))

	assert.Error(t, rep.Write(&out, "xml"))
}
