// Command ecnf is the reference CLI adapter of spec.md §6: it reads a
// DIMACS CNF problem, wires it onto an engine.Context through the dimacs/
// builder packages, and reports the result the way SAT competition solvers
// conventionally do (a `SAT`/`UNSAT` banner, then the model), using the
// same exit-code convention as the original's `bin/ecnf` (10 SAT, 20 UNSAT,
// 1 on error, 0 only for -help).
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/cespare/ecnf/dimacs"
	"github.com/cespare/ecnf/internal/config"
	"github.com/cespare/ecnf/internal/sat"
	"github.com/cespare/ecnf/internal/trail"
)

const (
	exitSat   = 10
	exitUnsat = 20
	exitError = 1
	exitHelp  = 0
)

var log = logrus.New()

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	v := viper.New()
	root := newRootCmd(v)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if err == errSolverDone {
			return solverExitCode
		}
		fmt.Fprintln(os.Stderr, err)
		return exitError
	}
	return solverExitCode
}

// errSolverDone and solverExitCode let solveCmd hand its real SAT/UNSAT
// exit code back through cobra's Execute without cobra printing a spurious
// error for what is actually a normal "UNSAT" outcome.
var errSolverDone = fmt.Errorf("ecnf: solve completed")
var solverExitCode int

func newRootCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ecnf [input.cnf]",
		Short: "ecnf: a CDCL SAT/ASP-modulo-theories solver",
		Long: `ecnf reads one or more ground problems in the DIMACS CNF format (other
declaration forms are reachable through the builder package directly, not
yet this CLI) and reports SAT with a model, or UNSAT, using the engine's
CDCL search plus its aggregate/definition/finite-domain theory extensions.

If no input file is given, ecnf reads a single problem from standard input.
Given more than one file, each is solved against its own independent
engine.Context concurrently: the searches share no mutable state, so there
is nothing to serialize.`,
		Args: cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, v, args)
		},
	}
	bindFlags(cmd.Flags(), v)
	return cmd
}

func bindFlags(flags *pflag.FlagSet, v *viper.Viper) {
	flags.IntP("num-models", "n", 1, "number of models requested (0 = all); only the first model found is reported")
	flags.String("polarity-mode", "stored", "initial decision polarity: stored, true, false, random")
	flags.Float64("decay", 0.95, "variable activity decay factor")
	flags.Float64("rnd-freq", 0, "probability of a random decision, in [0,1]")
	flags.Int("verbosity", 0, "log verbosity (0 = silent)")
	flags.String("defn-strategy", "adaptive", "unfounded-set search strategy: always, adaptive, lazy")
	flags.String("idsem", "wellfounded", "inductive-definition semantics: wellf (or wellfounded), stable")
	flags.String("ufsalgo", "depthfirst", "unfounded-set traversal order: depth (or depthfirst), breadth (or breadthfirst)")
	flags.String("format", "dimacs", "input format (only dimacs is implemented)")
	flags.String("outputformat", "text", "output format (only text is implemented)")
	flags.Bool("tocnf", false, "compile aggregates down to plain clauses instead of watching them")
	flags.Int("aggsaving", 1, "aggregate watch-state kept across backtracking: 0, 1, or 2")
	flags.Int64("randomseed", 1, "seed for the random-decision generator")
	flags.Int("maxlearnt", -1, "learnt clause database cap (-1 = unbounded)")
	flags.Duration("timeout", 0, "abort the search after this long (0 = no timeout)")
	v.BindPFlags(flags)
}

func runSolve(cmd *cobra.Command, v *viper.Viper, args []string) error {
	cfg, err := buildConfig(v)
	if err != nil {
		return err
	}
	log.SetLevel(verbosityLevel(cfg.Verbosity))

	if v.GetString("format") != "dimacs" {
		return fmt.Errorf("ecnf: unsupported --format %q (only dimacs is implemented)", v.GetString("format"))
	}

	if len(args) <= 1 {
		path := "" // stdin
		if len(args) == 1 {
			path = args[0]
		}
		status, err := solveOne(path, cfg, cmd.OutOrStdout())
		if err != nil {
			return err
		}
		solverExitCode = exitCodeFor(status)
		return errSolverDone
	}

	// Multiple files: each gets its own engine.Context and its own trail,
	// so the searches share nothing and can run concurrently.
	results := make([]sat.Status, len(args))
	outputs := make([]bytes.Buffer, len(args))
	var g errgroup.Group
	for i, path := range args {
		i, path := i, path
		g.Go(func() error {
			status, err := solveOne(path, cfg, &outputs[i])
			if err != nil {
				return fmt.Errorf("%s: %w", path, err)
			}
			results[i] = status
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	worst := sat.StatusSat
	for i, path := range args {
		fmt.Fprintf(cmd.OutOrStdout(), "c %s\n", path)
		cmd.OutOrStdout().Write(outputs[i].Bytes())
		if results[i] != sat.StatusSat {
			worst = results[i]
		}
	}
	solverExitCode = exitCodeFor(worst)
	return errSolverDone
}

// solveOne builds and solves a single DIMACS problem, writing its banner
// and model (if any) to w, and returns the result status.
func solveOne(path string, cfg config.Config, w io.Writer) (sat.Status, error) {
	var r io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return 0, err
		}
		defer f.Close()
		r = f
	}

	ctx, err := dimacs.Build(r, cfg)
	if err != nil {
		return 0, fmt.Errorf("ecnf: %w", err)
	}
	log.WithField("file", path).Debug("problem built, starting search")

	if deadline := ctxDeadline(cfg); deadline != nil {
		ctx.Driver.Bus.StopSignal = deadline
	}

	res := ctx.Solve(nil)
	switch res.Status {
	case sat.StatusSat:
		printModel(w, res.Model)
	case sat.StatusUnsat:
		fmt.Fprintln(w, "UNSAT")
	default:
		fmt.Fprintln(w, "UNKNOWN")
	}
	return res.Status, nil
}

func exitCodeFor(status sat.Status) int {
	switch status {
	case sat.StatusSat:
		return exitSat
	case sat.StatusUnsat:
		return exitUnsat
	default:
		return exitError
	}
}

func printModel(w io.Writer, model []trail.Value) {
	fmt.Fprintln(w, "SAT")
	for a := 1; a < len(model); a++ {
		if a > 1 {
			fmt.Fprint(w, " ")
		}
		if model[a] == trail.False {
			fmt.Fprint(w, -a)
		} else {
			fmt.Fprint(w, a)
		}
	}
	fmt.Fprintln(w)
}

func ctxDeadline(cfg config.Config) func() bool {
	if cfg.Timeout <= 0 {
		return nil
	}
	deadline := time.Now().Add(cfg.Timeout)
	return func() bool { return time.Now().After(deadline) }
}

func verbosityLevel(v int) logrus.Level {
	switch {
	case v <= 0:
		return logrus.WarnLevel
	case v == 1:
		return logrus.InfoLevel
	default:
		return logrus.DebugLevel
	}
}

func buildConfig(v *viper.Viper) (config.Config, error) {
	cfg := config.Default()
	cfg.NumModels = v.GetInt("num-models")
	cfg.VarDecay = v.GetFloat64("decay")
	cfg.RandomFreq = v.GetFloat64("rnd-freq")
	cfg.Verbosity = v.GetInt("verbosity")
	cfg.ToCNF = v.GetBool("tocnf")
	cfg.RandomSeed = v.GetInt64("randomseed")
	cfg.MaxLearnt = v.GetInt("maxlearnt")
	cfg.Timeout = v.GetDuration("timeout")

	var err error
	if cfg.Polarity, err = parsePolarity(v.GetString("polarity-mode")); err != nil {
		return cfg, err
	}
	if cfg.DefnStrategy, err = parseDefnStrategy(v.GetString("defn-strategy")); err != nil {
		return cfg, err
	}
	if cfg.DefnSemantics, err = parseDefnSemantics(v.GetString("idsem")); err != nil {
		return cfg, err
	}
	if cfg.UFSAlgo, err = parseUFSAlgo(v.GetString("ufsalgo")); err != nil {
		return cfg, err
	}
	switch v.GetInt("aggsaving") {
	case 0:
		cfg.AggSaving = config.AggSaveNone
	case 1:
		cfg.AggSaving = config.AggSaveBounds
	case 2:
		cfg.AggSaving = config.AggSaveWatches
	default:
		return cfg, fmt.Errorf("ecnf: --aggsaving must be 0, 1, or 2")
	}
	return cfg, nil
}

func parsePolarity(s string) (config.PolarityMode, error) {
	switch s {
	case "stored":
		return config.PolarityStored, nil
	case "true":
		return config.PolarityTrue, nil
	case "false":
		return config.PolarityFalse, nil
	case "random":
		return config.PolarityRandom, nil
	}
	return 0, fmt.Errorf("ecnf: unknown --polarity-mode %q", s)
}

func parseDefnStrategy(s string) (config.DefinitionStrategy, error) {
	switch s {
	case "always":
		return config.DefnAlways, nil
	case "adaptive":
		return config.DefnAdaptive, nil
	case "lazy":
		return config.DefnLazy, nil
	}
	return 0, fmt.Errorf("ecnf: unknown --defn-strategy %q", s)
}

func parseDefnSemantics(s string) (config.DefinitionSemantics, error) {
	switch s {
	case "wellfounded", "wellf":
		return config.SemanticsWellFounded, nil
	case "stable":
		return config.SemanticsStable, nil
	}
	return 0, fmt.Errorf("ecnf: unknown --idsem %q", s)
}

func parseUFSAlgo(s string) (config.UnfoundedSetAlgo, error) {
	switch s {
	case "depthfirst", "depth":
		return config.UFSDepthFirst, nil
	case "breadthfirst", "breadth":
		return config.UFSBreadthFirst, nil
	}
	return 0, fmt.Errorf("ecnf: unknown --ufsalgo %q", s)
}
