package fmu

import (
	"go.uber.org/zap"

	"github.com/san-kum/fmusim/internal/dynamo"
	"github.com/san-kum/fmusim/internal/fmi2"
)

// Loader loads the FMU binary at path. fmi2.Load is the default; tests
// substitute an in-process model.
type Loader func(path, modelIdentifier string, log *zap.Logger) (*fmi2.Binding, error)

type options struct {
	loader        Loader
	startValues   map[string]float64
	maxIterations int
	startTime     float64
	stopTime      float64
	tolerance     float64
	experimentSet bool
	log           *zap.Logger
	direction     dynamo.Direction
	eventName     string
	loggingOn     bool
	resourceURI   string
}

// Option configures Open and New.
type Option func(*options)

func defaultOptions() options {
	return options{
		loader:        fmi2.Load,
		maxIterations: DefaultMaxEventIterations,
		direction:     dynamo.Any,
	}
}

func WithLoader(l Loader) Option {
	return func(o *options) { o.loader = l }
}

// WithStartValues overrides start values by variable name. Only bound
// variables (constants, states and parameters) can be overridden.
func WithStartValues(values map[string]float64) Option {
	return func(o *options) {
		if o.startValues == nil {
			o.startValues = make(map[string]float64, len(values))
		}
		for k, v := range values {
			o.startValues[k] = v
		}
	}
}

// WithMaxEventIterations bounds the fmi2NewDiscreteStates loop of every
// event.
func WithMaxEventIterations(n int) Option {
	return func(o *options) { o.maxIterations = n }
}

// WithExperiment sets the arguments of fmi2SetupExperiment. A zero
// tolerance leaves it undefined; stop <= start leaves the stop time
// undefined.
func WithExperiment(start, stop, tolerance float64) Option {
	return func(o *options) {
		o.startTime, o.stopTime, o.tolerance = start, stop, tolerance
		o.experimentSet = true
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithDirection restricts the crossings that trigger the instance's event.
func WithDirection(d dynamo.Direction) Option {
	return func(o *options) { o.direction = d }
}

// WithEventName names the host event; the default is "<tag>.event".
func WithEventName(name string) Option {
	return func(o *options) { o.eventName = name }
}

// WithLoggingOn enables the FMU's own debug logging at instantiation.
func WithLoggingOn(on bool) Option {
	return func(o *options) { o.loggingOn = on }
}

// WithResourceURI sets the resource location passed to fmi2Instantiate
// when the subsystem is built with New.
func WithResourceURI(uri string) Option {
	return func(o *options) { o.resourceURI = uri }
}
