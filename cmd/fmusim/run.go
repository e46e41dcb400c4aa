package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/multierr"

	"github.com/san-kum/fmusim/internal/config"
	"github.com/san-kum/fmusim/internal/experiment"
	"github.com/san-kum/fmusim/internal/integrators"
	"github.com/san-kum/fmusim/internal/sim"
	"github.com/san-kum/fmusim/internal/storage"
	"github.com/san-kum/fmusim/internal/tui"
)

const defaultModel = "bouncing_ball"

// resolveConfig layers the defaults, a preset, a config file and the
// flags the user set, in that order.
func resolveConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if preset != "" {
		cfg = config.GetPreset(preset)
		if cfg == nil {
			return nil, fmt.Errorf("unknown preset: %s (available: %v)", preset, config.ListPresets())
		}
	}
	if configFile != "" {
		loaded, err := config.Load(configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	flags := cmd.Flags()
	if flags.Changed("dt") {
		cfg.Dt = dt
	}
	if flags.Changed("stop") {
		cfg.StopTime = stopTime
	}
	if flags.Changed("integrator") {
		cfg.Integrator = integrator
	}
	if flags.Changed("instances") {
		cfg.Instances = instances
	}
	if flags.Changed("adaptive") {
		cfg.Adaptive = adaptive
		if adaptive && !flags.Changed("integrator") {
			cfg.Integrator = "rk45"
		}
	}
	if flags.Changed("tol") {
		cfg.Tolerance = tolerance
	}
	if flags.Changed("max-event-iterations") {
		cfg.MaxEventIterations = maxEvents
	}
	if flags.Lookup("parallel") != nil && flags.Changed("parallel") {
		cfg.Parallel = parallel
	}
	if len(setValues) > 0 {
		if cfg.StartValues == nil {
			cfg.StartValues = make(map[string]float64, len(setValues))
		}
		for name, raw := range setValues {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("--set %s: %w", name, err)
			}
			cfg.StartValues[name] = v
		}
	}
	if flags.Changed("data") {
		cfg.DataDir = dataDir
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}

	if _, err := integrators.New(cfg.Integrator); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func resolveSource(cfg *config.Config, args []string) (experiment.Source, error) {
	name := defaultModel
	switch {
	case len(args) > 0:
		name = args[0]
	case cfg.FMU != "":
		name = cfg.FMU
	}
	if len(name) > 4 && name[len(name)-4:] == ".fmu" {
		cfg.FMU = name
	}
	return experiment.NewRegistry().Source(name)
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt)
}

func runSimulation(cmd *cobra.Command, args []string) (err error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	src, err := resolveSource(cfg, args)
	if err != nil {
		return err
	}

	exp := experiment.New(cfg, src, log)
	if err := exp.Setup(); err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, exp.Close()) }()

	ctx, cancel := signalContext()
	defer cancel()

	out, runErr := exp.Run(ctx)
	if out == nil {
		return runErr
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "INSTANCE\tSTEPS\tEVENTS\tT_END\tSTATE")
	for _, res := range out.Results {
		if res == nil || len(res.States) == 0 {
			continue
		}
		last := len(res.States) - 1
		fmt.Fprintf(w, "%s\t%d\t%d\t%.4f\t%v\n", res.System, res.StepsTaken, len(res.Events), res.Times[last], formatState(res.States[last]))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("\nelapsed: %v\n", out.Elapsed.Round(time.Microsecond))

	if !noSave {
		id, err := exp.Save(storage.New(cfg.DataDir), out, runErr)
		if err != nil {
			return multierr.Append(runErr, err)
		}
		fmt.Printf("saved: %s\n", id)
	}
	return runErr
}

func formatState(x []float64) string {
	s := ""
	for i, v := range x {
		if i > 0 {
			s += " "
		}
		s += strconv.FormatFloat(v, 'g', 6, 64)
	}
	return "[" + s + "]"
}

func runLive(cmd *cobra.Command, args []string) (err error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	if len(cfg.Instances) != 1 {
		cfg.Instances = cfg.Instances[:1]
	}
	src, err := resolveSource(cfg, args)
	if err != nil {
		return err
	}

	exp := experiment.New(cfg, src, log)
	if err := exp.Setup(); err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, exp.Close()) }()

	s := exp.Subsystems()[0]
	integ, err := integrators.New(cfg.Integrator)
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	title := fmt.Sprintf("%s / %s", src.Model(), s.Name())
	res, runErr := tui.Run(ctx, sim.New(s, integ), s.InitialState(), cfg.Sim(), title, time.Duration(pace)*time.Millisecond)
	if res != nil {
		fmt.Printf("%s: %d steps, %d events\n", s.Name(), res.StepsTaken, len(res.Events))
	}
	if errors.Is(runErr, context.Canceled) {
		return nil
	}
	return runErr
}

func listPresets(cmd *cobra.Command, args []string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "PRESET\tINSTANCES\tINTEG\tDT\tSTOP\tSTART VALUES")
	for _, name := range config.ListPresets() {
		p := config.GetPreset(name)
		keys := make([]string, 0, len(p.StartValues))
		for k := range p.StartValues {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sv := ""
		for _, k := range keys {
			sv += fmt.Sprintf("%s=%g ", k, p.StartValues[k])
		}
		fmt.Fprintf(w, "%s\t%v\t%s\t%g\t%g\t%s\n", name, p.Instances, p.Integrator, p.Dt, p.StopTime, sv)
	}
	return w.Flush()
}
