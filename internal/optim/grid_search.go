// Package optim sweeps start values over a grid of experiments.
package optim

import (
	"context"
	"fmt"
	"math"
	"sort"

	"go.uber.org/multierr"

	"github.com/san-kum/fmusim/internal/experiment"
)

// Point is one evaluated grid point.
type Point struct {
	Params map[string]float64
	Value  float64
	Err    error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) != len(ranges) {
		return nil, fmt.Errorf("optim: %d parameters but %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("optim: empty range for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Size is the number of grid points.
func (g *GridSearch) Size() int {
	n := 1
	for _, r := range g.ranges {
		n *= len(r)
	}
	return n
}

// Builder returns an experiment that is not yet set up for the given start
// values.
type Builder func(params map[string]float64) (*experiment.Experiment, error)

// Search runs every grid point in order and returns the one minimizing the
// named metric of instance, along with all points. Points whose run fails
// are kept with their error and never chosen. Cancellation stops the
// search.
func (g *GridSearch) Search(ctx context.Context, build Builder, instance, metricName string) (best Point, points []Point, err error) {
	best.Value = math.Inf(1)
	points = make([]Point, 0, g.Size())
	for _, params := range g.combinations() {
		if err := ctx.Err(); err != nil {
			return best, points, err
		}
		p := Point{Params: params}
		p.Value, p.Err = g.evaluate(ctx, build, params, instance, metricName)
		points = append(points, p)
		if p.Err == nil && p.Value < best.Value {
			best = p
		}
	}
	if best.Params == nil {
		return best, points, fmt.Errorf("optim: no grid point succeeded")
	}
	return best, points, nil
}

func (g *GridSearch) evaluate(ctx context.Context, build Builder, params map[string]float64, instance, metricName string) (v float64, err error) {
	exp, err := build(params)
	if err != nil {
		return math.NaN(), err
	}
	if err := exp.Setup(); err != nil {
		return math.NaN(), err
	}
	defer func() { err = multierr.Append(err, exp.Close()) }()

	out, err := exp.Run(ctx)
	if err != nil {
		return math.NaN(), err
	}
	val, ok := out.Metrics[instance][metricName]
	if !ok {
		names := make([]string, 0, len(out.Metrics[instance]))
		for k := range out.Metrics[instance] {
			names = append(names, k)
		}
		sort.Strings(names)
		return math.NaN(), fmt.Errorf("optim: no metric %q for %s (have %v)", metricName, instance, names)
	}
	return val, nil
}

// combinations enumerates the grid with the last parameter varying
// fastest.
func (g *GridSearch) combinations() []map[string]float64 {
	out := []map[string]float64{{}}
	for i, name := range g.paramNames {
		next := make([]map[string]float64, 0, len(out)*len(g.ranges[i]))
		for _, base := range out {
			for _, v := range g.ranges[i] {
				m := make(map[string]float64, len(base)+1)
				for k, bv := range base {
					m[k] = bv
				}
				m[name] = v
				next = append(next, m)
			}
		}
		out = next
	}
	return out
}
