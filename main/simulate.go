package main

import (
	"github.com/spf13/cobra"

	"coinem/common"
	"coinem/core/em"
)

// simulatedTosses is used when neither config nor --tosses fix the count.
const simulatedTosses = 10

func simulate(cmd *cobra.Command) error {
	runner, lc, err := initRunner(cmd)
	if err != nil {
		return err
	}
	defer stopRunner(runner)

	sc := em.SimulationConfig{
		Count:  countFlag,
		Tosses: lc.EM.Tosses,
		Truth:  em.Theta{A: trueAFlag, B: trueBFlag},
		ProbA:  probAFlag,
		Seed:   lc.EM.Init.Seed,
	}
	if sc.Tosses == 0 {
		sc.Tosses = simulatedTosses
	}
	common.GetLogger(common.MODULE_CLI).Infof("simulate: %d experiments, truth %s", sc.Count, sc.Truth)

	rep, err := runner.Simulate(cmd.Context(), sc)
	if err != nil {
		return err
	}
	return rep.Write(cmd.OutOrStdout(), outputFlag)
}

func simulateCMD() *cobra.Command {
	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "simulate experiments and estimate them back",
		Long: "simulate draws experiments from two coins with known biases, then " +
			"runs the estimator on them and reports the truth next to the estimate",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return simulate(cmd)
		},
	}
	attachFlags(simulateCmd, append([]string{"count", "true-a", "true-b", "prob-a"}, estimatorFlags...))
	return simulateCmd
}
