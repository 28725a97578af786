package em

import "github.com/pkg/errors"

// Experiment is the outcome of one trial: a fixed number of tosses of a
// single, unobserved coin.
type Experiment struct {
	Heads int `yaml:"heads" json:"heads"`
	Tails int `yaml:"tails" json:"tails"`
}

func (e Experiment) Tosses() int {
	return e.Heads + e.Tails
}

// Validate checks the record against the fixed number of tosses.
func (e Experiment) Validate(tosses int) error {
	if e.Heads < 0 || e.Tails < 0 {
		return errors.Wrapf(ErrInvalidObservation, "negative count (heads=%d, tails=%d)", e.Heads, e.Tails)
	}
	if e.Heads > tosses {
		return errors.Wrapf(ErrInvalidObservation, "heads=%d exceeds %d tosses", e.Heads, tosses)
	}
	if e.Heads+e.Tails != tosses {
		return errors.Wrapf(ErrInvalidObservation, "heads+tails=%d, want %d", e.Heads+e.Tails, tosses)
	}
	return nil
}

// ResolveTosses returns the number of tosses every experiment must have. A
// positive tosses is taken as given; zero means "infer from the first
// experiment". Every experiment is validated against the result.
func ResolveTosses(experiments []Experiment, tosses int) (int, error) {
	if len(experiments) == 0 {
		return 0, ErrNoExperiments
	}
	if tosses < 0 {
		return 0, ErrInvalidTosses
	}
	if tosses == 0 {
		tosses = experiments[0].Tosses()
		if tosses <= 0 {
			return 0, errors.Wrap(ErrInvalidTosses, "first experiment has no tosses")
		}
	}

	for i, e := range experiments {
		if err := e.Validate(tosses); err != nil {
			return 0, errors.WithMessagef(err, "experiment %d", i)
		}
	}
	return tosses, nil
}
