package em

import "github.com/pkg/errors"

var (
	ErrNoExperiments          = errors.New("no experiments supplied")
	ErrInvalidObservation     = errors.New("invalid observation")
	ErrInvalidTosses          = errors.New("tosses per experiment must be positive")
	ErrInvalidTheta           = errors.New("bias estimate must lie in [0,1]")
	ErrInvalidEpsilon         = errors.New("epsilon must be positive")
	ErrZeroIterations         = errors.New("max iterations cannot be less than 1")
	ErrZeroResponsibilityMass = errors.New("zero responsibility mass")
	ErrNonConvergence         = errors.New("iteration cap reached without convergence")
	ErrInvalidPrior           = errors.New("invalid prior")
)
