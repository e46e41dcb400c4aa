package sim

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/san-kum/fmusim/internal/dynamo"
)

// Member is one independent system of an ensemble with its own integrator
// and initial state. Observers run on the member's goroutine.
type Member struct {
	System     dynamo.System
	Integrator dynamo.Integrator
	X0         dynamo.State
	Observers  []Observer
}

// Ensemble advances independent systems concurrently, one goroutine per
// member. Members must not share mutable state; an FMU instance belongs to
// exactly one member.
type Ensemble struct {
	members []Member
	limit   int
}

func NewEnsemble(members ...Member) *Ensemble {
	return &Ensemble{members: members}
}

// SetLimit bounds the number of members running at once. Zero or less
// means no limit.
func (e *Ensemble) SetLimit(n int) { e.limit = n }

func (e *Ensemble) Len() int { return len(e.members) }

// Run simulates every member over the same configuration. Results are in
// member order. The first failing member cancels the others; the partial
// results gathered so far are returned with its error.
func (e *Ensemble) Run(ctx context.Context, cfg dynamo.Config) ([]*dynamo.Result, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	for i, m := range e.members {
		if m.System == nil || m.Integrator == nil {
			return nil, fmt.Errorf("ensemble member %d: system and integrator are required", i)
		}
	}
	results := make([]*dynamo.Result, len(e.members))
	g, ctx := errgroup.WithContext(ctx)
	if e.limit > 0 {
		g.SetLimit(e.limit)
	}
	for i, m := range e.members {
		g.Go(func() error {
			s := New(m.System, m.Integrator)
			for _, o := range m.Observers {
				s.AddObserver(o)
			}
			res, err := s.Run(ctx, m.X0, cfg)
			results[i] = res
			return err
		})
	}
	err := g.Wait()
	Logger().Debug("ensemble finished", zap.Int("members", len(e.members)), zap.Error(err))
	return results, err
}
