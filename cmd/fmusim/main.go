package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	dataDir    string
	logLevel   string
	configFile string
	preset     string
	dt         float64
	stopTime   float64
	integrator string
	instances  []string
	setValues  map[string]string
	adaptive   bool
	tolerance  float64
	maxEvents  int
	parallel   int
	noSave     bool
	pace       int
	instance   string
	variable   string
	outFile    string
	svgFile    string
	sweepVars  []string
	metricName string

	log = zap.NewNop()
)

// main registers the fmusim commands and exits with status 1 on failure.
func main() {
	rootCmd := &cobra.Command{
		Use:           "fmusim",
		Short:         "simulate FMI 2.0 model-exchange units",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			l, err := newLogger(logLevel)
			if err != nil {
				return err
			}
			log = l
			installLogger(l)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			_ = log.Sync()
		},
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "data directory (default from config, .fmusim)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")

	runCmd := &cobra.Command{
		Use:   "run [model]",
		Short: "run a simulation of a built-in model or an .fmu file",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSimulation,
	}
	addRunFlags(runCmd)
	runCmd.Flags().IntVar(&parallel, "parallel", 0, "max instances advanced at once (0 = all)")
	runCmd.Flags().BoolVar(&noSave, "no-save", false, "do not record the run")

	demoCmd := &cobra.Command{
		Use:   "demo",
		Short: "run the built-in BouncingBall model (no native library needed)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSimulation(cmd, []string{defaultModel})
		},
	}
	addRunFlags(demoCmd)
	demoCmd.Flags().IntVar(&parallel, "parallel", 0, "max instances advanced at once (0 = all)")
	demoCmd.Flags().BoolVar(&noSave, "no-save", false, "do not record the run")

	liveCmd := &cobra.Command{
		Use:   "live [model]",
		Short: "run one instance with a live terminal view",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runLive,
	}
	addRunFlags(liveCmd)
	liveCmd.Flags().IntVar(&pace, "pace", 5, "milliseconds to hold each accepted step")

	inspectCmd := &cobra.Command{
		Use:   "inspect [model]",
		Short: "show the variables of a model and how they are bound",
		Args:  cobra.ExactArgs(1),
		RunE:  inspectModel,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "list recorded runs",
		RunE:  listRuns,
	}

	plotCmd := &cobra.Command{
		Use:   "plot [run_id] [var]",
		Short: "plot recorded trajectories",
		Args:  cobra.RangeArgs(1, 2),
		RunE:  plotRun,
	}
	plotCmd.Flags().StringVar(&instance, "instance", "", "instance to plot (default: first)")
	plotCmd.Flags().StringVar(&variable, "var", "", "variable to plot (default: all states)")
	plotCmd.Flags().StringVar(&svgFile, "svg", "", "write an SVG chart to this file instead")

	exportCmd := &cobra.Command{
		Use:     "export-json [run_id]",
		Aliases: []string{"export"},
		Short:   "export a run as JSON",
		Args:    cobra.ExactArgs(1),
		RunE:    exportRun,
	}
	exportCmd.Flags().StringVarP(&outFile, "output", "o", "", "output file (default: stdout)")

	sweepCmd := &cobra.Command{
		Use:   "sweep [model]",
		Short: "grid search start values for the smallest metric",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runSweep,
	}
	addRunFlags(sweepCmd)
	sweepCmd.Flags().StringArrayVar(&sweepVars, "grid", nil, "name=v1,v2,... (repeatable)")
	sweepCmd.Flags().StringVar(&metricName, "metric", "", "metric to minimize, e.g. max(ball.h)")

	presetsCmd := &cobra.Command{
		Use:   "presets",
		Short: "list run presets",
		RunE:  listPresets,
	}

	rootCmd.AddCommand(runCmd, demoCmd, liveCmd, sweepCmd, inspectCmd, listCmd, plotCmd, exportCmd, presetsCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&configFile, "config", "", "config file path (yaml)")
	cmd.Flags().StringVar(&preset, "preset", "", "use preset configuration")
	cmd.Flags().Float64Var(&dt, "dt", 0.01, "communication step")
	cmd.Flags().Float64Var(&stopTime, "stop", 3, "stop time")
	cmd.Flags().StringVar(&integrator, "integrator", "rk4", "integrator: euler, rk4, rk45")
	cmd.Flags().StringSliceVar(&instances, "instances", []string{"ball"}, "instance tags")
	cmd.Flags().StringToStringVar(&setValues, "set", nil, "start value overrides, name=value")
	cmd.Flags().BoolVar(&adaptive, "adaptive", false, "adaptive step size (rk45)")
	cmd.Flags().Float64Var(&tolerance, "tol", 1e-6, "adaptive step tolerance")
	cmd.Flags().IntVar(&maxEvents, "max-event-iterations", 100, "bound on discrete state iterations per event")
}
