package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/san-kum/fmusim/internal/experiment"
	"github.com/san-kum/fmusim/internal/optim"
)

// parseGrid reads name=v1,v2,... entries into sorted names and ranges.
func parseGrid(entries []string) ([]string, [][]float64, error) {
	grid := make(map[string][]float64, len(entries))
	for _, entry := range entries {
		name, raw, ok := strings.Cut(entry, "=")
		if !ok || name == "" {
			return nil, nil, fmt.Errorf("--grid %q: want name=v1,v2,...", entry)
		}
		for _, f := range strings.Split(raw, ",") {
			v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
			if err != nil {
				return nil, nil, fmt.Errorf("--grid %s: %w", name, err)
			}
			grid[name] = append(grid[name], v)
		}
	}
	names := make([]string, 0, len(grid))
	for name := range grid {
		names = append(names, name)
	}
	sort.Strings(names)
	ranges := make([][]float64, len(names))
	for i, name := range names {
		ranges[i] = grid[name]
	}
	return names, ranges, nil
}

func runSweep(cmd *cobra.Command, args []string) error {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return err
	}
	names, ranges, err := parseGrid(sweepVars)
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("at least one --grid is required")
	}
	g, err := optim.NewGridSearch(names, ranges)
	if err != nil {
		return err
	}

	inst := cfg.Instances[0]
	cfg.Instances = cfg.Instances[:1]
	metric := metricName
	if metric == "" {
		metric = fmt.Sprintf("max(%s.h)", inst)
	}

	build := func(params map[string]float64) (*experiment.Experiment, error) {
		c := cfg.Clone()
		if c.StartValues == nil {
			c.StartValues = make(map[string]float64, len(params))
		}
		for k, v := range params {
			c.StartValues[k] = v
		}
		src, err := resolveSource(c, args)
		if err != nil {
			return nil, err
		}
		return experiment.New(c, src, log), nil
	}

	ctx, cancel := signalContext()
	defer cancel()

	best, points, err := g.Search(ctx, build, inst, metric)

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, strings.ToUpper(strings.Join(names, "\t"))+"\t"+metric)
	for _, p := range points {
		row := make([]string, 0, len(names)+1)
		for _, n := range names {
			row = append(row, strconv.FormatFloat(p.Params[n], 'g', -1, 64))
		}
		if p.Err != nil {
			row = append(row, "error: "+p.Err.Error())
		} else {
			row = append(row, strconv.FormatFloat(p.Value, 'g', 8, 64))
		}
		fmt.Fprintln(w, strings.Join(row, "\t"))
	}
	if ferr := w.Flush(); ferr != nil {
		return ferr
	}
	if err != nil {
		return err
	}
	fmt.Printf("\nbest: %v -> %g\n", best.Params, best.Value)
	return nil
}
