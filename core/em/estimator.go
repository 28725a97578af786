package em

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"coinem/common"
)

const (
	DefaultEpsilon       = 0.001
	DefaultMaxIterations = 1000
)

// Status is the state of the convergence controller.
type Status int

const (
	StatusInitialized Status = iota
	StatusIterating
	StatusConverged
	StatusMaxIterExceeded
)

var statusName = map[Status]string{
	StatusInitialized:     "INITIALIZED",
	StatusIterating:       "ITERATING",
	StatusConverged:       "CONVERGED",
	StatusMaxIterExceeded: "MAX_ITER_EXCEEDED",
}

func (s Status) String() string {
	if name, ok := statusName[s]; ok {
		return name
	}
	return "UNKNOWN"
}

// Terminal reports whether no further iteration will happen.
func (s Status) Terminal() bool {
	return s == StatusConverged || s == StatusMaxIterExceeded
}

// IterationRecord is one entry of the convergence trace. Iteration 0 holds
// the starting estimates.
type IterationRecord struct {
	RunID       string  `yaml:"-" json:"run_id"`
	Iteration   int     `yaml:"iteration" json:"iteration"`
	Theta       Theta   `yaml:"theta" json:"theta"`
	Improvement float64 `yaml:"improvement" json:"improvement"`
	Degenerate  int     `yaml:"degenerate" json:"degenerate"`
}

type Config struct {
	// Tosses per experiment; 0 infers it from the first experiment.
	Tosses        int
	Epsilon       float64
	MaxIterations int
	// Workers > 1 evaluates the E-step concurrently.
	Workers int
	Prior   Prior
	// Observer, if set, is called after every iteration on the goroutine
	// running it. MultiStart serializes the calls of its concurrent runs;
	// RunID tells the runs apart.
	Observer func(IterationRecord)
	Logger   common.Logger
}

func DefaultConfig() Config {
	return Config{
		Epsilon:       DefaultEpsilon,
		MaxIterations: DefaultMaxIterations,
		Workers:       1,
	}
}

type Result struct {
	RunID       string
	Theta       Theta
	Iterations  int
	Status      Status
	Improvement float64
	// Degenerate is the total number of equal-split fallbacks over the run.
	Degenerate int
	Tosses     int
	Trace      []IterationRecord
}

// Err returns ErrNonConvergence for a run that hit the iteration cap, nil
// otherwise.
func (r *Result) Err() error {
	if r.Status == StatusMaxIterExceeded {
		return errors.Wrapf(ErrNonConvergence, "%d iterations, last improvement %g", r.Iterations, r.Improvement)
	}
	return nil
}

// Estimator runs the two-coin EM loop. It holds only configuration, so one
// Estimator may serve concurrent runs.
type Estimator struct {
	cfg Config
	log common.Logger
}

func NewEstimator(cfg Config) (*Estimator, error) {
	if !(cfg.Epsilon > 0) {
		return nil, errors.Wrapf(ErrInvalidEpsilon, "epsilon=%v", cfg.Epsilon)
	}
	if cfg.MaxIterations < 1 {
		return nil, ErrZeroIterations
	}
	if cfg.Tosses < 0 {
		return nil, ErrInvalidTosses
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if err := validatePrior(cfg.Prior); err != nil {
		return nil, err
	}

	log := cfg.Logger
	if log == nil {
		log = common.GetLogger(common.MODULE_EM)
	}
	return &Estimator{cfg: cfg, log: log}, nil
}

func (e *Estimator) Config() Config {
	return e.cfg
}

// Step performs a single E-step followed by an M-step from theta and returns
// the new estimates and the number of degenerate experiments.
func (e *Estimator) Step(theta Theta, experiments []Experiment) (Theta, int, error) {
	tosses, err := ResolveTosses(experiments, e.cfg.Tosses)
	if err != nil {
		return Theta{}, 0, err
	}
	if err := theta.Validate(); err != nil {
		return Theta{}, 0, err
	}
	return e.step(theta, experiments, tosses)
}

func (e *Estimator) step(theta Theta, experiments []Experiment, tosses int) (Theta, int, error) {
	weights, degenerate, err := EStep(theta, experiments, tosses, e.cfg.Workers)
	if err != nil {
		return Theta{}, 0, errors.WithMessage(err, "e-step")
	}
	next, err := MStep(Accumulate(weights, experiments, tosses), e.cfg.Prior)
	if err != nil {
		return Theta{}, degenerate, errors.WithMessage(err, "m-step")
	}
	return next, degenerate, nil
}

// RunWith resolves the starting point from init and calls Run.
func (e *Estimator) RunWith(ctx context.Context, experiments []Experiment, init Initializer) (*Result, error) {
	start, err := init.Initial()
	if err != nil {
		return nil, err
	}
	return e.Run(ctx, experiments, start)
}

// Run iterates E/M cycles from init until the largest change of either
// estimate is <= Epsilon, or MaxIterations cycles have run. Hitting the cap is
// reported through Result.Status, not as an error. Invalid input and zero
// responsibility mass abort the run. ctx is checked between iterations.
func (e *Estimator) Run(ctx context.Context, experiments []Experiment, init Theta) (*Result, error) {
	tosses, err := ResolveTosses(experiments, e.cfg.Tosses)
	if err != nil {
		return nil, err
	}
	if err := init.Validate(); err != nil {
		return nil, errors.WithMessage(err, "initial estimate")
	}

	res := &Result{
		RunID:  uuid.New().String(),
		Theta:  init,
		Status: StatusInitialized,
		Tosses: tosses,
	}
	res.Trace = []IterationRecord{{RunID: res.RunID, Iteration: 0, Theta: init}}

	ctx, span := startRunSpan(ctx, len(experiments), tosses, init)
	defer span.End()
	begin := time.Now()

	e.log.Infof("run %s: %d experiments of %d tosses, start %s, epsilon %g, max %d iterations",
		res.RunID, len(experiments), tosses, init, e.cfg.Epsilon, e.cfg.MaxIterations)

	res.Status = StatusIterating
	theta := init
	for i := 1; i <= e.cfg.MaxIterations; i++ {
		if err := ctx.Err(); err != nil {
			span.RecordError(err)
			return nil, errors.Wrapf(err, "run %s aborted after %d iterations", res.RunID, res.Iterations)
		}

		next, degenerate, err := e.step(theta, experiments, tosses)
		if err != nil {
			e.log.Errorf("run %s iteration %d: %s", res.RunID, i, err)
			span.RecordError(err)
			return nil, errors.WithMessagef(err, "iteration %d", i)
		}
		if degenerate > 0 {
			e.log.Warnf("run %s iteration %d: %d experiments had zero likelihood under both coins, split equally",
				res.RunID, i, degenerate)
		}

		improvement := next.Improvement(theta)
		rec := IterationRecord{
			RunID:       res.RunID,
			Iteration:   i,
			Theta:       next,
			Improvement: improvement,
			Degenerate:  degenerate,
		}
		res.Trace = append(res.Trace, rec)
		res.Iterations = i
		res.Improvement = improvement
		res.Degenerate += degenerate
		res.Theta = next
		theta = next

		e.log.Debugf("run %s iteration %d: theta %s, improvement %g", res.RunID, i, next, improvement)
		if e.cfg.Observer != nil {
			e.cfg.Observer(rec)
		}

		if improvement <= e.cfg.Epsilon {
			res.Status = StatusConverged
			break
		}
	}

	if res.Status != StatusConverged {
		res.Status = StatusMaxIterExceeded
		e.log.Warnf("run %s: no convergence after %d iterations, last improvement %g",
			res.RunID, res.Iterations, res.Improvement)
	} else {
		e.log.Infof("run %s converged after %d iterations: theta %s", res.RunID, res.Iterations, res.Theta)
	}

	setRunSpanResult(span, res)
	recordRunMetrics(ctx, time.Since(begin), res.Status, res.Iterations, res.Degenerate)

	return res, nil
}

// RunEM is the one-call form of the estimator: maximum likelihood updates,
// tosses inferred from the first experiment, default logger.
func RunEM(experiments []Experiment, thetaA, thetaB, epsilon float64, maxIterations int) (Theta, int, Status, error) {
	cfg := DefaultConfig()
	cfg.Epsilon = epsilon
	cfg.MaxIterations = maxIterations

	est, err := NewEstimator(cfg)
	if err != nil {
		return Theta{}, 0, StatusInitialized, err
	}
	res, err := est.Run(context.Background(), experiments, Theta{A: thetaA, B: thetaB})
	if err != nil {
		return Theta{}, 0, StatusInitialized, err
	}
	return res.Theta, res.Iterations, res.Status, nil
}
