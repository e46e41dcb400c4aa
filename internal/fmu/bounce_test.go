package fmu

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/san-kum/fmusim/internal/dynamo"
	"github.com/san-kum/fmusim/internal/fmu/fmutest"
	"github.com/san-kum/fmusim/internal/integrators"
	"github.com/san-kum/fmusim/internal/sim"
)

func ballConfig(duration float64) dynamo.Config {
	cfg := dynamo.DefaultConfig()
	cfg.Dt = 0.01
	cfg.Duration = duration
	return cfg
}

// bounceTimes returns the analytic impact times of a ball dropped from h0
// with restitution e, up to horizon.
func bounceTimes(h0, g, e, horizon float64) []float64 {
	var out []float64
	t := math.Sqrt(2 * h0 / g)
	v := g * t
	for t <= horizon {
		out = append(out, t)
		v *= e
		t += 2 * v / g
	}
	return out
}

func TestBouncingBall_EndToEnd(t *testing.T) {
	model := fmutest.New(fmutest.Options{})
	s := newBall(t, model)

	res, err := sim.New(s, integrators.NewRK4()).Run(context.Background(), s.InitialState(), ballConfig(2.0))
	require.NoError(t, err)

	want := bounceTimes(1, 9.81, 0.7, 2.0)
	require.Len(t, want, 4)
	require.Len(t, res.Events, len(want), "one action per bounce")

	for i, ev := range res.Events {
		assert.Equal(t, "ball.event", ev.Name)
		assert.InDelta(t, want[i], ev.Time, 1e-6, "bounce %d", i)
		assert.Less(t, ev.Before[1], 0.0)
		assert.InDelta(t, 0.7*math.Abs(ev.Before[1]), math.Abs(ev.After[1]), 1e-9, "bounce %d", i)
		assert.Equal(t, 0.0, ev.After[0])
	}

	assert.Equal(t, []string{"ball.h", "ball.v"}, res.Names)
	for _, x := range res.States {
		assert.GreaterOrEqual(t, x[0], -1e-6)
	}
	assert.True(t, ValidPath(s.History()))
	assert.Empty(t, model.Violations())
	assert.Equal(t, ContinuousTime, s.Mode())
}

func TestBouncingBall_TerminateStopsRun(t *testing.T) {
	s := newBall(t, fmutest.New(fmutest.Options{TerminateAfter: 2}))

	res, err := sim.New(s, integrators.NewRK4()).Run(context.Background(), s.InitialState(), ballConfig(2.0))
	require.ErrorIs(t, err, ErrTerminateRequested)

	var se *dynamo.SimulationError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "ball", se.System)
	assert.InDelta(t, bounceTimes(1, 9.81, 0.7, 2)[1], se.Time, 1e-6)
	assert.Len(t, res.Events, 1, "the terminating action is not recorded")
}

func TestBouncingBall_IndependentInstances(t *testing.T) {
	model := fmutest.New(fmutest.Options{})
	var members []sim.Member
	var subs []*Subsystem
	for _, tag := range []string{"left", "right"} {
		bin, err := model.Binding()
		require.NoError(t, err)
		s, err := New(tag, fmutest.Description(), bin)
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		subs = append(subs, s)
		members = append(members, sim.Member{System: s, Integrator: integrators.NewRK4(), X0: s.InitialState()})
	}

	results, err := sim.NewEnsemble(members...).Run(context.Background(), ballConfig(2.0))
	require.NoError(t, err)
	require.Len(t, results, 2)

	left, right := results[0], results[1]
	assert.Equal(t, []string{"left.h", "left.v"}, left.Names)
	assert.Equal(t, []string{"right.h", "right.v"}, right.Names)
	require.Equal(t, left.Times, right.Times)
	assert.Equal(t, left.States, right.States)
	require.Len(t, right.Events, 4)

	for _, s := range subs {
		assert.True(t, ValidPath(s.History()))
	}
	assert.Empty(t, model.Violations())
}

func TestBouncingBall_ContinuousTimeWritesStatesOnly(t *testing.T) {
	model := fmutest.New(fmutest.Options{})
	s := newBall(t, model)

	_, err := sim.New(s, integrators.NewRK4()).Run(context.Background(), s.InitialState(), ballConfig(0.1))
	require.NoError(t, err)

	assert.Positive(t, model.ContinuousTimeWrites(fmutest.VRHeight))
	assert.Positive(t, model.ContinuousTimeWrites(fmutest.VRVelocity))
	assert.Zero(t, model.ContinuousTimeWrites(fmutest.VRGravity), "fixed g is written only before initialization ends")
	assert.Zero(t, model.ContinuousTimeWrites(fmutest.VRRestitution))
	assert.Empty(t, model.Violations())
}

func TestBouncingBall_StepEventWithoutIndicators(t *testing.T) {
	model := fmutest.New(fmutest.Options{StepEventAt: 0.05})
	bin, err := model.Binding()
	require.NoError(t, err)
	md := fmutest.Description()
	md.NumberOfEventIndicators = 0
	s, err := New("ball", md, bin)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.Len(t, s.Events(), 1)
	res, err := sim.New(s, integrators.NewRK4()).Run(context.Background(), s.InitialState(), ballConfig(0.2))
	require.NoError(t, err)

	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.Equal(t, "ball.event", ev.Name)
	assert.InDelta(t, 0.05, ev.Time, 0.01)
	assert.Equal(t, ev.Before, ev.After, "no bounce above ground")
	assert.Equal(t, 1, countCalls(model, "ball:fmi2EnterEventMode"))
	assert.Zero(t, countCalls(model, "ball:fmi2GetEventIndicators"))
	assert.Empty(t, model.Violations())
	assert.Equal(t, ContinuousTime, s.Mode())
}

func TestBouncingBall_TimeEvent(t *testing.T) {
	model := fmutest.New(fmutest.Options{NextEventAt: 0.3})
	s := newBall(t, model)

	at, ok := s.Instance().NextTimeEvent()
	require.True(t, ok, "announced by the initial event iteration")
	assert.Equal(t, 0.3, at)

	res, err := sim.New(s, integrators.NewRK4()).Run(context.Background(), s.InitialState(), ballConfig(0.4))
	require.NoError(t, err)

	require.Len(t, res.Events, 1)
	ev := res.Events[0]
	assert.InDelta(t, 0.3, ev.Time, 1e-9)
	assert.GreaterOrEqual(t, ev.Time, 0.3)
	assert.Equal(t, ev.Before, ev.After)
	assert.Equal(t, 1, countCalls(model, "ball:fmi2EnterEventMode"))

	_, ok = s.Instance().NextTimeEvent()
	assert.False(t, ok)
	assert.Empty(t, model.Violations())
}
