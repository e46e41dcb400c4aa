package tui

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/san-kum/fmusim/internal/dynamo"
	"github.com/san-kum/fmusim/internal/sim"
)

type outcome struct {
	res *dynamo.Result
	err error
}

// Run drives s in the background and shows it live until the user quits.
// pace slows every accepted step so the run can be followed. The
// simulation is cancelled when the view closes.
func Run(ctx context.Context, s *sim.Simulator, x0 dynamo.State, cfg dynamo.Config, title string, pace time.Duration) (*dynamo.Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var names []string
	if sn, ok := s.System().(dynamo.StateNames); ok {
		names = sn.StateNames()
	}
	p := tea.NewProgram(NewLive(title, names, cfg.Duration, cancel))

	s.AddObserver(sim.ObserverFunc(func(x dynamo.State, t float64) {
		snap := make(dynamo.State, len(x))
		copy(snap, x)
		p.Send(SampleMsg{T: t, X: snap})
		if pace > 0 {
			time.Sleep(pace)
		}
	}))

	done := make(chan outcome, 1)
	go func() {
		res, err := s.Run(ctx, x0, cfg)
		p.Send(DoneMsg{Result: res, Err: err})
		done <- outcome{res, err}
	}()

	if _, err := p.Run(); err != nil {
		cancel()
		<-done
		return nil, err
	}
	cancel()
	out := <-done
	return out.res, out.err
}
