package experiment

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/san-kum/fmusim/internal/config"
	"github.com/san-kum/fmusim/internal/dynamo"
	"github.com/san-kum/fmusim/internal/fmu"
	"github.com/san-kum/fmusim/internal/integrators"
	"github.com/san-kum/fmusim/internal/metrics"
	"github.com/san-kum/fmusim/internal/sim"
	"github.com/san-kum/fmusim/internal/storage"
)

// Experiment is one configured run: a set of independent instances of a
// model advanced over the same horizon.
type Experiment struct {
	cfg        *config.Config
	src        Source
	log        *zap.Logger
	subsystems []*fmu.Subsystem
	metrics    [][]metrics.Metric
}

// Outcome holds the per-instance results of a run, in instance order.
type Outcome struct {
	Results []*dynamo.Result
	Metrics map[string]storage.Metrics
	Elapsed time.Duration
}

func New(cfg *config.Config, src Source, log *zap.Logger) *Experiment {
	if log == nil {
		log = zap.NewNop()
	}
	return &Experiment{cfg: cfg, src: src, log: log}
}

// Setup opens and initializes every instance. Instances opened before a
// failure are closed again.
func (e *Experiment) Setup() (err error) {
	if err := e.cfg.Validate(); err != nil {
		return err
	}
	if len(e.subsystems) > 0 {
		return fmt.Errorf("experiment already set up")
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, e.Close())
		}
	}()

	opts := []fmu.Option{
		fmu.WithStartValues(e.cfg.StartValues),
		fmu.WithMaxEventIterations(e.cfg.MaxEventIterations),
		fmu.WithLogger(e.log),
	}
	tol := 0.0
	if e.cfg.Adaptive {
		tol = e.cfg.Tolerance
	}
	opts = append(opts, fmu.WithExperiment(e.cfg.StartTime, e.cfg.StopTime, tol))

	for _, tag := range e.cfg.Instances {
		s, err := e.src.Open(tag, opts...)
		if err != nil {
			return fmt.Errorf("instance %s: %w", tag, err)
		}
		e.subsystems = append(e.subsystems, s)
		e.metrics = append(e.metrics, e.metricsFor(s))
	}
	return nil
}

func (e *Experiment) metricsFor(s *fmu.Subsystem) []metrics.Metric {
	names := s.StateNames()
	ms := metrics.Default(names)
	for i, n := range names {
		if bound, ok := e.cfg.Bounds[n[len(s.Name())+1:]]; ok {
			ms = append(ms, metrics.NewFloor(fmt.Sprintf("below(%s)", n), i, bound))
		}
	}
	return ms
}

func (e *Experiment) Subsystems() []*fmu.Subsystem { return e.subsystems }

// Run advances every instance concurrently. On failure the partial results
// are returned with the error.
func (e *Experiment) Run(ctx context.Context) (*Outcome, error) {
	if len(e.subsystems) == 0 {
		return nil, fmt.Errorf("experiment not set up")
	}
	members := make([]sim.Member, len(e.subsystems))
	for i, s := range e.subsystems {
		integ, err := integrators.New(e.cfg.Integrator)
		if err != nil {
			return nil, err
		}
		obs := make([]sim.Observer, len(e.metrics[i]))
		for j, m := range e.metrics[i] {
			m.Reset()
			obs[j] = m
		}
		members[i] = sim.Member{System: s, Integrator: integ, X0: s.InitialState(), Observers: obs}
	}

	ens := sim.NewEnsemble(members...)
	ens.SetLimit(e.cfg.Parallel)

	start := time.Now()
	results, err := ens.Run(ctx, e.cfg.Sim())
	out := &Outcome{
		Results: results,
		Metrics: make(map[string]storage.Metrics, len(e.subsystems)),
		Elapsed: time.Since(start),
	}
	for i, s := range e.subsystems {
		out.Metrics[s.Name()] = metrics.Values(e.metrics[i])
	}
	e.log.Info("experiment finished",
		zap.String("model", e.src.Model()),
		zap.Int("instances", len(e.subsystems)),
		zap.Duration("elapsed", out.Elapsed),
		zap.Error(err),
	)
	return out, err
}

// Save records an outcome. runErr, if any, is stored with the run.
func (e *Experiment) Save(st *storage.Store, out *Outcome, runErr error) (string, error) {
	if err := st.Init(); err != nil {
		return "", err
	}
	meta := storage.RunMetadata{
		Model:       e.src.Model(),
		GUID:        e.src.GUID(),
		FMU:         e.cfg.FMU,
		StartTime:   e.cfg.StartTime,
		StopTime:    e.cfg.StopTime,
		Dt:          e.cfg.Dt,
		Integrator:  e.cfg.Integrator,
		StartValues: e.cfg.StartValues,
		Metrics:     out.Metrics,
	}
	if e.cfg.Adaptive {
		meta.Tolerance = e.cfg.Tolerance
	}
	if runErr != nil {
		meta.Error = runErr.Error()
	}
	return st.Save(meta, out.Results)
}

// Close terminates and frees every instance.
func (e *Experiment) Close() error {
	var err error
	for _, s := range e.subsystems {
		err = multierr.Append(err, s.Close())
	}
	e.subsystems = nil
	e.metrics = nil
	return err
}
