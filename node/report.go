package node

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	"coinem/core/em"
)

const (
	OUTPUT_TEXT = "text"
	OUTPUT_YAML = "yaml"
)

type StartReport struct {
	Start         em.Theta  `yaml:"start"`
	Theta         *em.Theta `yaml:"theta,omitempty"`
	Status        string    `yaml:"status,omitempty"`
	LogLikelihood float64   `yaml:"log_likelihood,omitempty"`
	Error         string    `yaml:"error,omitempty"`
}

func newStartReport(o em.StartOutcome) StartReport {
	sr := StartReport{Start: o.Start, LogLikelihood: o.LogLikelihood}
	if o.Result != nil {
		theta := o.Result.Theta
		sr.Theta = &theta
		sr.Status = o.Result.Status.String()
	}
	if o.Err != nil {
		sr.Error = o.Err.Error()
	}
	return sr
}

// Report is what the binary prints for a run.
type Report struct {
	RunID       string               `yaml:"run_id"`
	Status      string               `yaml:"status"`
	Theta       em.Theta             `yaml:"theta"`
	Truth       *em.Theta            `yaml:"truth,omitempty"`
	Iterations  int                  `yaml:"iterations"`
	Improvement float64              `yaml:"improvement"`
	Degenerate  int                  `yaml:"degenerate"`
	Experiments int                  `yaml:"experiments"`
	Tosses      int                  `yaml:"tosses"`
	Starts      []StartReport        `yaml:"starts,omitempty"`
	Trace       []em.IterationRecord `yaml:"trace"`
}

func newReport(res *em.Result, experiments int) *Report {
	return &Report{
		RunID:       res.RunID,
		Status:      res.Status.String(),
		Theta:       res.Theta,
		Iterations:  res.Iterations,
		Improvement: res.Improvement,
		Degenerate:  res.Degenerate,
		Experiments: experiments,
		Tosses:      res.Tosses,
		Trace:       res.Trace,
	}
}

// Write encodes the report as "text" or "yaml".
func (r *Report) Write(w io.Writer, format string) error {
	switch format {
	case "", OUTPUT_TEXT:
		return r.writeText(w)
	case OUTPUT_YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return errors.Wrap(err, "encode report")
		}
		return enc.Close()
	default:
		return errors.Errorf("unknown output format %q", format)
	}
}

func (r *Report) writeText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "run\t%s\n", r.RunID)
	fmt.Fprintf(tw, "status\t%s\n", r.Status)
	fmt.Fprintf(tw, "theta_a\t%.6f\n", r.Theta.A)
	fmt.Fprintf(tw, "theta_b\t%.6f\n", r.Theta.B)
	if r.Truth != nil {
		fmt.Fprintf(tw, "truth\t%s\n", r.Truth)
	}
	fmt.Fprintf(tw, "iterations\t%d\n", r.Iterations)
	fmt.Fprintf(tw, "improvement\t%g\n", r.Improvement)
	fmt.Fprintf(tw, "experiments\t%d x %d tosses\n", r.Experiments, r.Tosses)
	if r.Degenerate > 0 {
		fmt.Fprintf(tw, "degenerate\t%d\n", r.Degenerate)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if len(r.Starts) > 0 {
		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "start\tresult\tstatus\tlog-likelihood")
		for _, s := range r.Starts {
			if s.Error != "" {
				fmt.Fprintf(tw, "%s\t-\tFAILED\t%s\n", s.Start, s.Error)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\n", s.Start, s.Theta, s.Status, s.LogLikelihood)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "iter\ttheta_a\ttheta_b\timprovement")
	for _, rec := range r.Trace {
		fmt.Fprintf(tw, "%d\t%.6f\t%.6f\t%g\n", rec.Iteration, rec.Theta.A, rec.Theta.B, rec.Improvement)
	}
	return tw.Flush()
}
