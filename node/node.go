package node

import (
	"context"
	"io"

	"github.com/pkg/errors"

	"coinem/common"
	"coinem/core/config"
	"coinem/core/em"
)

// Runner wires configuration, logging, telemetry and the estimator for one
// invocation of the binary.
type Runner struct {
	// TelemetryOut receives stdout exporter output; set it before Init.
	TelemetryOut io.Writer

	conf     *config.LocalConfig
	est      *em.Estimator
	starts   []em.Theta
	shutdown func(context.Context) error
	log      common.Logger
}

func (r *Runner) Init(c *config.LocalConfig) error {
	r.conf = c

	logConfig, err := c.LogConfig()
	if err != nil {
		return errors.WithMessage(err, "get log config")
	}
	common.SetLogConfig(logConfig)
	r.log = common.GetLogger(common.MODULE_RUNNER)

	telemetryConfig := c.TelemetryConfig()
	telemetryConfig.Writer = r.TelemetryOut
	r.shutdown, err = common.InitTelemetry(context.Background(), telemetryConfig)
	if err != nil {
		return errors.WithMessage(err, "init telemetry")
	}

	estConfig, err := c.EstimatorConfig()
	if err != nil {
		return errors.WithMessage(err, "get estimator config")
	}
	r.est, err = em.NewEstimator(estConfig)
	if err != nil {
		return errors.WithMessage(err, "new estimator")
	}

	r.starts, err = c.Starts()
	if err != nil {
		return errors.WithMessage(err, "get starting estimates")
	}

	if c.Path != "" {
		r.log.Infof("config loaded from %s", c.Path)
	}
	return nil
}

// Start estimates the biases of the configured experiments.
func (r *Runner) Start(ctx context.Context) (*Report, error) {
	if r.est == nil {
		return nil, errors.New("runner not initialised")
	}
	exps, err := r.conf.ExperimentList()
	if err != nil {
		return nil, err
	}
	return r.estimate(ctx, exps)
}

// Simulate draws experiments from the true biases in sc and estimates them
// back. The report carries the truth for comparison.
func (r *Runner) Simulate(ctx context.Context, sc em.SimulationConfig) (*Report, error) {
	if r.est == nil {
		return nil, errors.New("runner not initialised")
	}
	sim, err := em.Simulate(sc)
	if err != nil {
		return nil, errors.WithMessage(err, "simulate")
	}
	r.log.Infof("simulated %d experiments of %d tosses from %s", sc.Count, sc.Tosses, sc.Truth)

	rep, err := r.estimate(ctx, sim.Experiments)
	if err != nil {
		return nil, err
	}
	truth := sc.Truth
	rep.Truth = &truth
	return rep, nil
}

func (r *Runner) estimate(ctx context.Context, exps []em.Experiment) (*Report, error) {
	if len(r.starts) == 1 {
		res, err := r.est.Run(ctx, exps, r.starts[0])
		if err != nil {
			return nil, err
		}
		r.logOutcome(res)
		return newReport(res, len(exps)), nil
	}

	best, outcomes, err := r.est.MultiStart(ctx, exps, r.starts)
	if err != nil {
		return nil, err
	}
	r.logOutcome(best)
	rep := newReport(best, len(exps))
	rep.Starts = make([]StartReport, len(outcomes))
	for i, o := range outcomes {
		rep.Starts[i] = newStartReport(o)
	}
	return rep, nil
}

func (r *Runner) logOutcome(res *em.Result) {
	if err := res.Err(); err != nil {
		r.log.Warnf("run %s: %s", res.RunID, err)
		return
	}
	r.log.Infof("run %s: %s after %d iterations", res.RunID, res.Status, res.Iterations)
}

// Stop flushes telemetry and loggers.
func (r *Runner) Stop(ctx context.Context) error {
	defer common.SyncLoggers()
	if r.shutdown == nil {
		return nil
	}
	return r.shutdown(ctx)
}
