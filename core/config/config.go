package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"coinem/common"
	"coinem/core/em"
)

const (
	ENV_PREFIX   = "coinem"
	ENV_CFG_PATH = "COINEM_CFG_PATH"
	CONFIG_NAME  = "coinem_config"

	INIT_FIXED  = "fixed"
	INIT_RANDOM = "random"

	PRIOR_NONE     = "none"
	PRIOR_BETA     = "beta"
	PRIOR_GAUSSIAN = "gaussian"
)

type LogSection struct {
	BriefMode      string            `mapstructure:"brief_mode"`
	Path           string            `mapstructure:"path"`
	Level          string            `mapstructure:"level"`
	ModuleLevels   map[string]string `mapstructure:"module_levels"`
	RotationMaxAge int               `mapstructure:"rotation_max_age"`
	RotationTime   int               `mapstructure:"rotation_time"`
	RotationSize   int               `mapstructure:"rotation_size"`
	ShowLine       bool              `mapstructure:"show_line"`
	Console        bool              `mapstructure:"console"`
}

type InitSection struct {
	Mode   string  `mapstructure:"mode"`
	ThetaA float64 `mapstructure:"theta_a"`
	ThetaB float64 `mapstructure:"theta_b"`
	Seed   uint64  `mapstructure:"seed"`
}

type PriorSection struct {
	Kind     string  `mapstructure:"kind"`
	Alpha    float64 `mapstructure:"alpha"`
	Beta     float64 `mapstructure:"beta"`
	Mean     float64 `mapstructure:"mean"`
	Variance float64 `mapstructure:"variance"`
}

type EMSection struct {
	Epsilon       float64      `mapstructure:"epsilon"`
	MaxIterations int          `mapstructure:"max_iterations"`
	Tosses        int          `mapstructure:"tosses"`
	Workers       int          `mapstructure:"workers"`
	Restarts      int          `mapstructure:"restarts"`
	Init          InitSection  `mapstructure:"init"`
	Prior         PriorSection `mapstructure:"prior"`
}

type TelemetrySection struct {
	Traces  string `mapstructure:"traces"`
	Metrics string `mapstructure:"metrics"`
}

type LocalConfig struct {
	// Path is the config file that was read, empty when defaults only.
	Path string

	Log         LogSection
	EM          EMSection
	Telemetry   TelemetrySection
	Experiments [][]int
}

// flagKeys maps command line flags onto the config keys they override.
var flagKeys = map[string]string{
	"epsilon":        "em.epsilon",
	"max-iterations": "em.max_iterations",
	"tosses":         "em.tosses",
	"workers":        "em.workers",
	"restarts":       "em.restarts",
	"init":           "em.init.mode",
	"theta-a":        "em.init.theta_a",
	"theta-b":        "em.init.theta_b",
	"seed":           "em.init.seed",
	"prior":          "em.prior.kind",
	"log-level":      "log.level",
	"traces":         "telemetry.traces",
	"metrics":        "telemetry.metrics",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.brief_mode", "")
	v.SetDefault("log.path", "./coinem.log")
	v.SetDefault("log.level", "INFO")
	v.SetDefault("log.module_levels", map[string]string{})
	v.SetDefault("log.rotation_max_age", 7)
	v.SetDefault("log.rotation_time", 24)
	v.SetDefault("log.rotation_size", 30)
	v.SetDefault("log.show_line", true)
	v.SetDefault("log.console", false)

	v.SetDefault("em.epsilon", em.DefaultEpsilon)
	v.SetDefault("em.max_iterations", em.DefaultMaxIterations)
	v.SetDefault("em.tosses", 0)
	v.SetDefault("em.workers", 1)
	v.SetDefault("em.restarts", 0)
	v.SetDefault("em.init.mode", INIT_FIXED)
	v.SetDefault("em.init.theta_a", 0.6)
	v.SetDefault("em.init.theta_b", 0.5)
	v.SetDefault("em.init.seed", 0)
	v.SetDefault("em.prior.kind", PRIOR_NONE)
	v.SetDefault("em.prior.alpha", 1.0)
	v.SetDefault("em.prior.beta", 1.0)
	v.SetDefault("em.prior.mean", 0.5)
	v.SetDefault("em.prior.variance", 0.05)

	v.SetDefault("telemetry.traces", common.EXPORTER_NONE)
	v.SetDefault("telemetry.metrics", common.EXPORTER_NONE)
}

// InitLocalConfig loads the configuration for cmd. A file given by the
// "config" flag must exist; otherwise coinem_config is looked up in
// $COINEM_CFG_PATH (default ".") and defaults apply when it is missing.
// Environment variables (COINEM_EM_EPSILON, ...) override the file, and
// flags set on cmd override both.
func InitLocalConfig(cmd *cobra.Command) (*LocalConfig, error) {
	v := viper.New()
	v.SetEnvPrefix(ENV_PREFIX)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	altPath := os.Getenv(ENV_CFG_PATH)
	if altPath == "" {
		altPath = "."
	}
	flag := cmd.Flags().Lookup("config")
	if flag == nil {
		return nil, errors.Errorf("command %s has no config flag", cmd.Name())
	}
	cmdSetConfigFile := flag.Value.String()
	v.AddConfigPath(altPath)
	v.SetConfigName(CONFIG_NAME)
	if cmdSetConfigFile != "" {
		v.SetConfigFile(cmdSetConfigFile)
	}
	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound || cmdSetConfigFile != "" {
			return nil, errors.Wrap(err, "read config")
		}
	}

	for name, key := range flagKeys {
		if f := cmd.Flags().Lookup(name); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, errors.Wrapf(err, "bind flag %s", name)
			}
		}
	}

	var settings struct {
		Log         LogSection       `mapstructure:"log"`
		EM          EMSection        `mapstructure:"em"`
		Telemetry   TelemetrySection `mapstructure:"telemetry"`
		Experiments [][]int          `mapstructure:"experiments"`
	}
	if err := v.Unmarshal(&settings); err != nil {
		return nil, errors.Wrap(err, "decode config")
	}

	lc := &LocalConfig{
		Path:        v.ConfigFileUsed(),
		Log:         settings.Log,
		EM:          settings.EM,
		Telemetry:   settings.Telemetry,
		Experiments: settings.Experiments,
	}
	return lc, nil
}

var moduleNames = []string{
	common.MODULE_EM,
	common.MODULE_CONFIG,
	common.MODULE_RUNNER,
	common.MODULE_CLI,
	common.MODULE_TELEMETRY,
}

// moduleName resolves a config key such as "em" to the logger name "[EM]".
// Keys arrive lower-cased from viper.
func moduleName(key string) (string, bool) {
	key = strings.Trim(key, "[]")
	for _, name := range moduleNames {
		if strings.EqualFold(strings.Trim(name, "[]"), key) {
			return name, true
		}
	}
	return "", false
}

func (c *LocalConfig) LogConfig() (*common.LogConfig, error) {
	brief := strings.ToUpper(c.Log.BriefMode)
	if brief != "" && brief != common.LOG_MODE_DEV && brief != common.LOG_MODE_PROD {
		return nil, errors.Errorf("unknown log brief mode %q", c.Log.BriefMode)
	}
	level, err := common.ParseLogLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}

	lc := &common.LogConfig{
		BriefMode:      brief,
		LogPath:        c.Log.Path,
		LogLevel:       level,
		RotationMaxAge: c.Log.RotationMaxAge,
		RotationTime:   c.Log.RotationTime,
		RotationSize:   c.Log.RotationSize,
		ShowLine:       c.Log.ShowLine,
		LogInConsole:   c.Log.Console,
	}
	if len(c.Log.ModuleLevels) > 0 {
		lc.ModuleSpecialLevel = make(map[string]common.LOG_LEVEL, len(c.Log.ModuleLevels))
	}
	for key, value := range c.Log.ModuleLevels {
		name, ok := moduleName(key)
		if !ok {
			return nil, errors.Errorf("unknown log module %q", key)
		}
		lvl, err := common.ParseLogLevel(value)
		if err != nil {
			return nil, errors.WithMessagef(err, "module %s", key)
		}
		lc.ModuleSpecialLevel[name] = lvl
	}
	return lc, nil
}

func (c *LocalConfig) TelemetryConfig() common.TelemetryConfig {
	tc := common.DefaultTelemetryConfig()
	tc.TraceExporter = strings.ToLower(c.Telemetry.Traces)
	tc.MetricExporter = strings.ToLower(c.Telemetry.Metrics)
	return tc
}

// Prior builds the MAP prior shared by both coins, nil for maximum
// likelihood.
func (c *LocalConfig) Prior() (em.Prior, error) {
	p := c.EM.Prior
	switch strings.ToLower(p.Kind) {
	case "", PRIOR_NONE:
		return nil, nil
	case PRIOR_BETA:
		prior, err := em.NewBetaPrior(p.Alpha, p.Beta)
		if err != nil {
			return nil, err
		}
		return prior, nil
	case PRIOR_GAUSSIAN:
		prior, err := em.NewGaussianPrior(p.Mean, p.Variance)
		if err != nil {
			return nil, err
		}
		return prior, nil
	default:
		return nil, errors.Wrapf(em.ErrInvalidPrior, "unknown kind %q", p.Kind)
	}
}

// EstimatorConfig translates the em section. The logger is left to the
// estimator's default.
func (c *LocalConfig) EstimatorConfig() (em.Config, error) {
	prior, err := c.Prior()
	if err != nil {
		return em.Config{}, err
	}
	cfg := em.DefaultConfig()
	cfg.Tosses = c.EM.Tosses
	cfg.Epsilon = c.EM.Epsilon
	cfg.MaxIterations = c.EM.MaxIterations
	cfg.Workers = c.EM.Workers
	cfg.Prior = prior
	return cfg, nil
}

func (c *LocalConfig) Initializer() (em.Initializer, error) {
	in := c.EM.Init
	switch strings.ToLower(in.Mode) {
	case "", INIT_FIXED:
		return em.FixedInit{A: in.ThetaA, B: in.ThetaB}, nil
	case INIT_RANDOM:
		return em.RandomInit{Seed: in.Seed}, nil
	default:
		return nil, errors.Errorf("unknown init mode %q", in.Mode)
	}
}

// Starts returns the configured start followed by em.restarts seeded random
// starts. A single start means no multi-start.
func (c *LocalConfig) Starts() ([]em.Theta, error) {
	if c.EM.Restarts < 0 {
		return nil, errors.Errorf("negative restarts %d", c.EM.Restarts)
	}
	init, err := c.Initializer()
	if err != nil {
		return nil, err
	}
	first, err := init.Initial()
	if err != nil {
		return nil, errors.WithMessage(err, "initial estimate")
	}
	starts := []em.Theta{first}
	if c.EM.Restarts > 0 {
		starts = append(starts, em.RandomStarts(c.EM.Init.Seed+1, c.EM.Restarts)...)
	}
	return starts, nil
}

// ExperimentList converts the [heads, tails] pairs of the experiments key.
func (c *LocalConfig) ExperimentList() ([]em.Experiment, error) {
	exps := make([]em.Experiment, 0, len(c.Experiments))
	for i, pair := range c.Experiments {
		if len(pair) != 2 {
			return nil, errors.Wrapf(em.ErrInvalidObservation, "experiment %d: want [heads, tails], got %v", i, pair)
		}
		exps = append(exps, em.Experiment{Heads: pair[0], Tails: pair[1]})
	}
	return exps, nil
}

// SetExperiments replaces the configured experiments, as the --experiments
// flag does.
func (c *LocalConfig) SetExperiments(exps []em.Experiment) {
	c.Experiments = make([][]int, len(exps))
	for i, e := range exps {
		c.Experiments[i] = []int{e.Heads, e.Tails}
	}
}

// ParseExperiments reads "heads:tails" pairs separated by commas, e.g.
// "5:5,9:1,8:2".
func ParseExperiments(s string) ([]em.Experiment, error) {
	var exps []em.Experiment
	for i, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		parts := strings.Split(field, ":")
		if len(parts) != 2 {
			return nil, errors.Wrapf(em.ErrInvalidObservation, "experiment %d: %q is not heads:tails", i, field)
		}
		heads, err := strconv.Atoi(strings.TrimSpace(parts[0]))
		if err != nil {
			return nil, errors.Wrapf(em.ErrInvalidObservation, "experiment %d: heads %q", i, parts[0])
		}
		tails, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, errors.Wrapf(em.ErrInvalidObservation, "experiment %d: tails %q", i, parts[1])
		}
		exps = append(exps, em.Experiment{Heads: heads, Tails: tails})
	}
	if len(exps) == 0 {
		return nil, em.ErrNoExperiments
	}
	return exps, nil
}
