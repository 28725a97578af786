package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"coinem/core/em"
	"coinem/node"
)

var flags *pflag.FlagSet

var (
	cfgPathFlag     string
	experimentsFlag string
	outputFlag      string

	epsilonFlag       float64
	maxIterationsFlag int
	tossesFlag        int
	workersFlag       int
	restartsFlag      int
	initFlag          string
	thetaAFlag        float64
	thetaBFlag        float64
	seedFlag          uint64
	priorFlag         string

	logLevelFlag string
	tracesFlag   string
	metricsFlag  string

	countFlag int
	trueAFlag float64
	trueBFlag float64
	probAFlag float64
)

func init() {
	resetFlags()
}

// Explicitly define a method to facilitate tests
func resetFlags() {
	flags = &pflag.FlagSet{}

	flags.StringVarP(&cfgPathFlag, "config", "c", "",
		"config file (default: coinem_config.* in $COINEM_CFG_PATH or .)")
	flags.StringVarP(&experimentsFlag, "experiments", "e", "",
		`experiments as heads:tails pairs, e.g. "5:5,9:1,8:2"`)
	flags.StringVarP(&outputFlag, "output", "o", node.OUTPUT_TEXT,
		"report format: text or yaml")

	flags.Float64Var(&epsilonFlag, "epsilon", em.DefaultEpsilon,
		"stop when neither estimate moves more than this")
	flags.IntVar(&maxIterationsFlag, "max-iterations", em.DefaultMaxIterations,
		"maximum number of E/M cycles")
	flags.IntVar(&tossesFlag, "tosses", 0,
		"tosses per experiment, 0 infers it from the first experiment")
	flags.IntVar(&workersFlag, "workers", 1,
		"goroutines evaluating the E-step")
	flags.IntVar(&restartsFlag, "restarts", 0,
		"additional random starts; the best converged run is reported")
	flags.StringVar(&initFlag, "init", "fixed",
		"initialisation: fixed or random")
	flags.Float64Var(&thetaAFlag, "theta-a", 0.6,
		"initial bias estimate of coin A")
	flags.Float64Var(&thetaBFlag, "theta-b", 0.5,
		"initial bias estimate of coin B")
	flags.Uint64Var(&seedFlag, "seed", 0,
		"seed for random starts and simulation")
	flags.StringVar(&priorFlag, "prior", "none",
		"prior on both biases: none, beta or gaussian")

	flags.StringVar(&logLevelFlag, "log-level", "INFO",
		"log level: DEBUG, INFO, WARN or ERROR")
	flags.StringVar(&tracesFlag, "traces", "none",
		"trace exporter: none or stdout")
	flags.StringVar(&metricsFlag, "metrics", "none",
		"metric exporter: none or stdout")

	flags.IntVar(&countFlag, "count", 100,
		"number of simulated experiments")
	flags.Float64Var(&trueAFlag, "true-a", 0.8,
		"true bias of coin A")
	flags.Float64Var(&trueBFlag, "true-b", 0.3,
		"true bias of coin B")
	flags.Float64Var(&probAFlag, "prob-a", 0.5,
		"chance that an experiment uses coin A")
}

func attachFlags(cmd *cobra.Command, names []string) {
	cmdFlags := cmd.Flags()
	for _, name := range names {
		if flag := flags.Lookup(name); flag != nil {
			cmdFlags.AddFlag(flag)
		} else {
			panic(fmt.Errorf("Could not find flag '%s' to attach to command '%s'", name, cmd.Name()))
		}
	}
}

var estimatorFlags = []string{
	"config", "output",
	"epsilon", "max-iterations", "tosses", "workers", "restarts",
	"init", "theta-a", "theta-b", "seed", "prior",
	"log-level", "traces", "metrics",
}

var mainCmd = &cobra.Command{
	Use:   "coinem",
	Short: "estimate the biases of two coins with EM",
	Long: "coinem estimates the head probabilities of two coins from experiments " +
		"whose coin identity is hidden, using expectation-maximization.",
}

func main() {
	mainCmd.AddCommand(runCMD())
	mainCmd.AddCommand(simulateCMD())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if mainCmd.ExecuteContext(ctx) != nil {
		os.Exit(1)
	}
}
