package main

import (
	"context"

	"github.com/spf13/cobra"

	"coinem/common"
	"coinem/core/config"
	"coinem/core/em"
	"coinem/node"
)

// initRunner loads the config for cmd and brings up a runner. The caller
// stops it.
func initRunner(cmd *cobra.Command) (*node.Runner, *config.LocalConfig, error) {
	lc, err := config.InitLocalConfig(cmd)
	if err != nil {
		return nil, nil, err
	}

	runner := &node.Runner{TelemetryOut: cmd.ErrOrStderr()}
	if err := runner.Init(lc); err != nil {
		return nil, nil, err
	}
	return runner, lc, nil
}

func stopRunner(runner *node.Runner) {
	if err := runner.Stop(context.Background()); err != nil {
		common.GetLogger(common.MODULE_CLI).Warnf("shutdown: %s", err)
	}
}

func run(cmd *cobra.Command) error {
	var exps []em.Experiment
	if experimentsFlag != "" {
		var err error
		if exps, err = config.ParseExperiments(experimentsFlag); err != nil {
			return err
		}
	}

	runner, lc, err := initRunner(cmd)
	if err != nil {
		return err
	}
	defer stopRunner(runner)

	if exps != nil {
		lc.SetExperiments(exps)
	}
	common.GetLogger(common.MODULE_CLI).Infof("run: %d experiments", len(lc.Experiments))

	rep, err := runner.Start(cmd.Context())
	if err != nil {
		return err
	}
	return rep.Write(cmd.OutOrStdout(), outputFlag)
}

func runCMD() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "estimate coin biases",
		Long: "run estimates both coin biases from the experiments in the config " +
			"file or given with --experiments",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd)
		},
	}
	attachFlags(runCmd, append([]string{"experiments"}, estimatorFlags...))
	return runCmd
}
