package em

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
)

// DataLogLikelihood is the log-likelihood of all experiments under an
// equal-weight mixture of the two coins.
func DataLogLikelihood(experiments []Experiment, tosses int, theta Theta) (float64, error) {
	var total float64
	terms := make([]float64, 2)
	for i, e := range experiments {
		la, err := LogLikelihood(e.Heads, tosses, theta.A)
		if err != nil {
			return 0, errors.WithMessagef(err, "experiment %d", i)
		}
		lb, err := LogLikelihood(e.Heads, tosses, theta.B)
		if err != nil {
			return 0, errors.WithMessagef(err, "experiment %d", i)
		}
		terms[0], terms[1] = la, lb
		total += floats.LogSumExp(terms) - math.Ln2
	}
	return total, nil
}

// StartOutcome is the outcome of one start of a MultiStart.
type StartOutcome struct {
	Start         Theta
	Result        *Result
	LogLikelihood float64
	Err           error
}

// MultiStart runs one estimation per starting point concurrently, since EM
// only reaches a local maximum. The best outcome is the converged run with
// the highest data log-likelihood, or the best non-converged run if none
// converged. Runs that fail are kept in the outcomes with their error; an
// error is returned only if every start failed or ctx was cancelled.
func (e *Estimator) MultiStart(ctx context.Context, experiments []Experiment, starts []Theta) (*Result, []StartOutcome, error) {
	if len(starts) == 0 {
		return nil, nil, errors.New("multi-start needs at least one starting point")
	}
	tosses, err := ResolveTosses(experiments, e.cfg.Tosses)
	if err != nil {
		return nil, nil, err
	}

	run := e.serializeObserver()
	outcomes := make([]StartOutcome, len(starts))
	g, gctx := errgroup.WithContext(ctx)
	for i, start := range starts {
		g.Go(func() error {
			outcomes[i].Start = start
			res, err := run.Run(gctx, experiments, start)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				outcomes[i].Err = err
				return nil
			}
			outcomes[i].Result = res
			outcomes[i].LogLikelihood, outcomes[i].Err = DataLogLikelihood(experiments, tosses, res.Theta)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, outcomes, errors.Wrap(err, "multi-start aborted")
	}

	best := -1
	for i, o := range outcomes {
		if o.Err != nil || o.Result == nil {
			continue
		}
		if best < 0 || better(o, outcomes[best]) {
			best = i
		}
	}
	if best < 0 {
		return nil, outcomes, errors.WithMessage(outcomes[0].Err, "every start failed")
	}

	e.log.Infof("multi-start: %d starts, best %s from start %s (log-likelihood %.4f)",
		len(starts), outcomes[best].Result.Theta, outcomes[best].Start, outcomes[best].LogLikelihood)
	return outcomes[best].Result, outcomes, nil
}

// serializeObserver returns an Estimator whose observer calls are mutually
// exclusive, so concurrent runs can share it.
func (e *Estimator) serializeObserver() *Estimator {
	if e.cfg.Observer == nil {
		return e
	}
	var mu sync.Mutex
	observe := e.cfg.Observer
	cfg := e.cfg
	cfg.Observer = func(rec IterationRecord) {
		mu.Lock()
		defer mu.Unlock()
		observe(rec)
	}
	return &Estimator{cfg: cfg, log: e.log}
}

func better(a, b StartOutcome) bool {
	ac := a.Result.Status == StatusConverged
	bc := b.Result.Status == StatusConverged
	if ac != bc {
		return ac
	}
	return a.LogLikelihood > b.LogLikelihood
}
