package main

import (
	"fmt"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/guptarohit/asciigraph"
	"github.com/spf13/cobra"

	"github.com/san-kum/fmusim/internal/config"
	"github.com/san-kum/fmusim/internal/experiment"
	"github.com/san-kum/fmusim/internal/export"
	"github.com/san-kum/fmusim/internal/fmu"
	"github.com/san-kum/fmusim/internal/storage"
)

var (
	titleStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("86")).Bold(true)
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	roleStyles = map[fmu.Role]lipgloss.Style{
		fmu.RoleState:     lipgloss.NewStyle().Foreground(lipgloss.Color("49")),
		fmu.RoleParameter: lipgloss.NewStyle().Foreground(lipgloss.Color("220")),
		fmu.RoleConstant:  lipgloss.NewStyle().Foreground(lipgloss.Color("213")),
	}
)

func store() *storage.Store {
	if dataDir != "" {
		return storage.New(dataDir)
	}
	return storage.New(config.DefaultDataDir)
}

func listRuns(cmd *cobra.Command, args []string) error {
	runs, err := store().List()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no runs found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tMODEL\tTIME\tINSTANCES\tSTOP\tDT\tINTEG\tEVENTS\tSTATUS")
	for _, run := range runs {
		events := 0
		for _, n := range run.Events {
			events += n
		}
		status := "ok"
		if run.Error != "" {
			status = "failed"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%.2fs\t%.4fs\t%s\t%d\t%s\n",
			run.ID,
			run.Model,
			run.Timestamp.Format("2006-01-02 15:04:05"),
			len(run.Instances),
			run.StopTime,
			run.Dt,
			run.Integrator,
			events,
			status,
		)
	}
	return w.Flush()
}

func plotRun(cmd *cobra.Command, args []string) error {
	runID := args[0]
	if len(args) > 1 {
		variable = args[1]
	}
	st := store()
	meta, err := st.Load(runID)
	if err != nil {
		return err
	}
	if len(meta.Instances) == 0 {
		return fmt.Errorf("run %s has no instances", runID)
	}
	inst := instance
	if inst == "" {
		inst = meta.Instances[0]
	}

	names, states, times, err := st.LoadStates(runID, inst)
	if err != nil {
		return err
	}
	if len(states) == 0 {
		return fmt.Errorf("no data to plot")
	}

	fmt.Printf("run: %s\n", meta.ID)
	fmt.Printf("model: %s\n", meta.Model)
	fmt.Printf("instance: %s\n", inst)
	fmt.Printf("samples: %d (t=%.3f..%.3f)\n", len(states), times[0], times[len(times)-1])
	if n := meta.Events[inst]; n > 0 {
		fmt.Printf("events: %d\n", n)
	}
	fmt.Println()

	if svgFile != "" {
		return writeSVG(st, runID, inst, names, states, times)
	}

	plotted := 0
	for col, name := range names {
		if variable != "" && name != variable && name != inst+"."+variable {
			continue
		}
		data := make([]float64, len(states))
		for i := range states {
			if col < len(states[i]) {
				data[i] = states[i][col]
			}
		}
		graph := asciigraph.Plot(data,
			asciigraph.Height(10),
			asciigraph.Width(80),
			asciigraph.Caption(name+" vs time"),
		)
		fmt.Println(graph)
		fmt.Println()
		plotted++
	}
	if plotted == 0 {
		return fmt.Errorf("no variable %q in %s (have %v)", variable, inst, names)
	}
	return nil
}

func writeSVG(st *storage.Store, runID, inst string, names []string, states [][]float64, times []float64) error {
	var series []export.Series
	for col, name := range names {
		if variable != "" && name != variable && name != inst+"."+variable {
			continue
		}
		vals := make([]float64, len(states))
		for i := range states {
			vals[i] = states[i][col]
		}
		series = append(series, export.Series{Name: name, Times: times, Values: vals})
	}

	var events []float64
	if archive, err := st.LoadArchive(runID); err == nil {
		for _, tr := range archive.Trajectories {
			if tr.Instance != inst {
				continue
			}
			for _, ev := range tr.Events {
				events = append(events, ev.Time)
			}
		}
	}

	f, err := os.Create(svgFile)
	if err != nil {
		return err
	}
	if err := export.TrajectorySVG(f, series, events, 960, 480); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", svgFile)
	return nil
}

func exportRun(cmd *cobra.Command, args []string) error {
	w := os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}
	return store().ExportJSON(w, args[0])
}

func inspectModel(cmd *cobra.Command, args []string) error {
	src, err := experiment.NewRegistry().Source(args[0])
	if err != nil {
		return err
	}
	md := src.Description()

	fmt.Println(titleStyle.Render(md.ModelName) + dimStyle.Render("  "+md.GUID))
	if md.Description != "" {
		fmt.Println(md.Description)
	}
	fmt.Printf("fmi %s, %s, %d event indicators\n", md.FMIVersion, md.GenerationTool, md.NumberOfEventIndicators)
	if md.DefaultExperiment != nil {
		fmt.Printf("default experiment: %g..%g\n", md.StartTime(), md.StopTime())
	}
	fmt.Println()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VR\tNAME\tTYPE\tCAUSALITY\tVARIABILITY\tINITIAL\tSTART\tROLE")
	counts := make(map[fmu.Role]int)
	for i := range md.Variables {
		v := &md.Variables[i]
		role := "-"
		if v.IsReal() {
			r := fmu.Classify(v)
			counts[r]++
			role = r.String()
			if st, ok := roleStyles[r]; ok {
				role = st.Render(role)
			}
		}
		start := ""
		if s, ok := v.Start(); ok {
			start = fmt.Sprintf("%g", s)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			v.ValueReference, v.Name, v.Kind(), v.EffectiveCausality(), v.EffectiveVariability(), v.EffectiveInitial(), start, role)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	roles := make([]fmu.Role, 0, len(counts))
	for r := range counts {
		roles = append(roles, r)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i] < roles[j] })
	fmt.Println()
	for _, r := range roles {
		fmt.Printf("%s: %d  ", r, counts[r])
	}
	fmt.Println()
	return nil
}
