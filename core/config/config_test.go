package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinem/common"
	"coinem/core/em"
)

const testConfig = `
log:
  path: ""
  level: debug
  module_levels:
    em: warn
    runner: error
em:
  epsilon: 0.000001
  max_iterations: 50
  workers: 4
  restarts: 2
  init:
    mode: fixed
    theta_a: 0.7
    theta_b: 0.4
    seed: 9
  prior:
    kind: beta
    alpha: 2
    beta: 3
telemetry:
  traces: stdout
experiments:
  - [5, 5]
  - [9, 1]
  - [8, 2]
`

func newCmd(t *testing.T, cfgFile string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	cmd.Flags().String("config", cfgFile, "")
	cmd.Flags().Float64("epsilon", 0, "")
	cmd.Flags().String("prior", "", "")
	return cmd
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "coinem_config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaultsWithoutConfigFile(t *testing.T) {
	t.Setenv(ENV_CFG_PATH, t.TempDir())

	lc, err := InitLocalConfig(newCmd(t, ""))
	require.NoError(t, err)
	assert.Empty(t, lc.Path)

	cfg, err := lc.EstimatorConfig()
	require.NoError(t, err)
	assert.Equal(t, em.DefaultEpsilon, cfg.Epsilon)
	assert.Equal(t, em.DefaultMaxIterations, cfg.MaxIterations)
	assert.Equal(t, 0, cfg.Tosses)
	assert.Equal(t, 1, cfg.Workers)
	assert.Nil(t, cfg.Prior)

	starts, err := lc.Starts()
	require.NoError(t, err)
	assert.Equal(t, []em.Theta{{A: 0.6, B: 0.5}}, starts)

	logCfg, err := lc.LogConfig()
	require.NoError(t, err)
	assert.Equal(t, common.LEVEL_INFO, logCfg.LogLevel)
	assert.Equal(t, "./coinem.log", logCfg.LogPath)

	tc := lc.TelemetryConfig()
	assert.Equal(t, common.EXPORTER_NONE, tc.TraceExporter)
	assert.Equal(t, common.EXPORTER_NONE, tc.MetricExporter)

	exps, err := lc.ExperimentList()
	require.NoError(t, err)
	assert.Empty(t, exps)
}

func TestConfigFileFromFlag(t *testing.T) {
	lc, err := InitLocalConfig(newCmd(t, writeConfig(t, testConfig)))
	require.NoError(t, err)
	assert.NotEmpty(t, lc.Path)

	logCfg, err := lc.LogConfig()
	require.NoError(t, err)
	assert.Equal(t, common.LEVEL_DEBUG, logCfg.LogLevel)
	assert.Empty(t, logCfg.LogPath)
	assert.Equal(t, map[string]common.LOG_LEVEL{
		common.MODULE_EM:     common.LEVEL_WARN,
		common.MODULE_RUNNER: common.LEVEL_ERROR,
	}, logCfg.ModuleSpecialLevel)

	cfg, err := lc.EstimatorConfig()
	require.NoError(t, err)
	assert.Equal(t, 1e-6, cfg.Epsilon)
	assert.Equal(t, 50, cfg.MaxIterations)
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, &em.BetaPrior{Alpha: 2, Beta: 3}, cfg.Prior)

	starts, err := lc.Starts()
	require.NoError(t, err)
	require.Len(t, starts, 3)
	assert.Equal(t, em.Theta{A: 0.7, B: 0.4}, starts[0])
	assert.Equal(t, em.RandomStarts(10, 2), starts[1:])

	assert.Equal(t, common.EXPORTER_STDOUT, lc.TelemetryConfig().TraceExporter)

	exps, err := lc.ExperimentList()
	require.NoError(t, err)
	assert.Equal(t, []em.Experiment{{Heads: 5, Tails: 5}, {Heads: 9, Tails: 1}, {Heads: 8, Tails: 2}}, exps)
}

func TestConfigFileFromEnvPath(t *testing.T) {
	path := writeConfig(t, testConfig)
	t.Setenv(ENV_CFG_PATH, filepath.Dir(path))

	lc, err := InitLocalConfig(newCmd(t, ""))
	require.NoError(t, err)
	assert.Equal(t, 50, lc.EM.MaxIterations)
}

func TestOverrides(t *testing.T) {
	t.Setenv("COINEM_EM_MAX_ITERATIONS", "7")
	t.Setenv("COINEM_EM_INIT_MODE", "random")

	cmd := newCmd(t, writeConfig(t, testConfig))
	require.NoError(t, cmd.Flags().Set("epsilon", "0.01"))
	require.NoError(t, cmd.Flags().Set("prior", "none"))

	lc, err := InitLocalConfig(cmd)
	require.NoError(t, err)

	cfg, err := lc.EstimatorConfig()
	require.NoError(t, err)
	assert.Equal(t, 0.01, cfg.Epsilon)
	assert.Equal(t, 7, cfg.MaxIterations)
	assert.Nil(t, cfg.Prior)

	init, err := lc.Initializer()
	require.NoError(t, err)
	assert.Equal(t, em.RandomInit{Seed: 9}, init)
}

func TestUnsetFlagKeepsFileValue(t *testing.T) {
	lc, err := InitLocalConfig(newCmd(t, writeConfig(t, testConfig)))
	require.NoError(t, err)
	assert.Equal(t, 1e-6, lc.EM.Epsilon)
	assert.Equal(t, PRIOR_BETA, lc.EM.Prior.Kind)
}

func TestConfigErrors(t *testing.T) {
	_, err := InitLocalConfig(newCmd(t, filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)

	_, err = InitLocalConfig(&cobra.Command{Use: "noflag"})
	assert.Error(t, err)

	_, err = InitLocalConfig(newCmd(t, writeConfig(t, "em: [not, a, map")))
	assert.Error(t, err)
}

func TestInvalidSections(t *testing.T) {
	lc := &LocalConfig{}

	lc.Log.Level = "loud"
	_, err := lc.LogConfig()
	assert.Error(t, err)

	lc.Log.Level = "INFO"
	lc.Log.BriefMode = "staging"
	_, err = lc.LogConfig()
	assert.Error(t, err)

	lc.Log.BriefMode = "prod"
	lc.Log.ModuleLevels = map[string]string{"net": "DEBUG"}
	_, err = lc.LogConfig()
	assert.Error(t, err)

	lc.EM.Prior.Kind = "laplace"
	_, err = lc.Prior()
	assert.True(t, errors.Is(err, em.ErrInvalidPrior))

	lc.EM.Prior = PriorSection{Kind: PRIOR_BETA, Alpha: 0.5, Beta: 2}
	_, err = lc.EstimatorConfig()
	assert.True(t, errors.Is(err, em.ErrInvalidPrior))

	lc.EM.Prior = PriorSection{Kind: PRIOR_GAUSSIAN, Mean: 0.5, Variance: 0.01}
	prior, err := lc.Prior()
	require.NoError(t, err)
	require.IsType(t, &em.BetaPrior{}, prior)
	assert.InDelta(t, 12, prior.(*em.BetaPrior).Alpha, 1e-9)
	assert.InDelta(t, 12, prior.(*em.BetaPrior).Beta, 1e-9)

	lc.EM.Init.Mode = "grid"
	_, err = lc.Initializer()
	assert.Error(t, err)

	lc.EM.Init = InitSection{Mode: INIT_FIXED, ThetaA: 1.5, ThetaB: 0.5}
	_, err = lc.Starts()
	assert.True(t, errors.Is(err, em.ErrInvalidTheta))

	lc.EM.Restarts = -1
	_, err = lc.Starts()
	assert.Error(t, err)

	lc.Experiments = [][]int{{5, 5}, {9}}
	_, err = lc.ExperimentList()
	assert.True(t, errors.Is(err, em.ErrInvalidObservation))
	assert.Contains(t, err.Error(), "experiment 1")
}

func TestParseExperiments(t *testing.T) {
	exps, err := ParseExperiments("5:5, 9:1,8:2,")
	require.NoError(t, err)
	assert.Equal(t, []em.Experiment{{Heads: 5, Tails: 5}, {Heads: 9, Tails: 1}, {Heads: 8, Tails: 2}}, exps)

	lc := &LocalConfig{}
	lc.SetExperiments(exps)
	back, err := lc.ExperimentList()
	require.NoError(t, err)
	assert.Equal(t, exps, back)

	_, err = ParseExperiments("")
	assert.True(t, errors.Is(err, em.ErrNoExperiments))

	for _, bad := range []string{"5", "5:5:5", "a:1", "1:b"} {
		_, err = ParseExperiments(bad)
		assert.True(t, errors.Is(err, em.ErrInvalidObservation), bad)
	}
}
