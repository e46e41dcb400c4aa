package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/san-kum/fmusim/internal/dynamo"
)

const (
	DefaultDt                 = 0.01
	DefaultStopTime           = 3.0
	DefaultTolerance          = 1e-6
	DefaultEventTolerance     = 1e-10
	DefaultMaxEventIterations = 100
	DefaultIntegrator         = "rk4"
	DefaultDataDir            = ".fmusim"
	DefaultLogLevel           = "info"
)

// Config describes one simulation run of an FMU.
type Config struct {
	FMU                string             `yaml:"fmu"`
	Instances          []string           `yaml:"instances"`
	Integrator         string             `yaml:"integrator"`
	StartTime          float64            `yaml:"start_time"`
	StopTime           float64            `yaml:"stop_time"`
	Dt                 float64            `yaml:"dt"`
	Adaptive           bool               `yaml:"adaptive"`
	Tolerance          float64            `yaml:"tolerance"`
	EventTolerance     float64            `yaml:"event_tolerance"`
	MaxEventIterations int                `yaml:"max_event_iterations"`
	StartValues        map[string]float64 `yaml:"start_values,omitempty"`
	Bounds             map[string]float64 `yaml:"bounds,omitempty"`
	Parallel           int                `yaml:"parallel"`
	LogLevel           string             `yaml:"log_level"`
	DataDir            string             `yaml:"data_dir"`
}

func DefaultConfig() *Config {
	return &Config{
		Instances:          []string{"ball"},
		Integrator:         DefaultIntegrator,
		StopTime:           DefaultStopTime,
		Dt:                 DefaultDt,
		Tolerance:          DefaultTolerance,
		EventTolerance:     DefaultEventTolerance,
		MaxEventIterations: DefaultMaxEventIterations,
		LogLevel:           DefaultLogLevel,
		DataDir:            DefaultDataDir,
	}
}

// Load reads a YAML file over the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate rejects configurations no run could use.
func (c *Config) Validate() error {
	switch {
	case c.Dt <= 0:
		return fmt.Errorf("config: dt must be positive, got %g", c.Dt)
	case c.StopTime <= c.StartTime:
		return fmt.Errorf("config: stop time %g must be after start time %g", c.StopTime, c.StartTime)
	case len(c.Instances) == 0:
		return fmt.Errorf("config: at least one instance is required")
	case c.MaxEventIterations < 1:
		return fmt.Errorf("config: max_event_iterations must be at least 1, got %d", c.MaxEventIterations)
	case c.EventTolerance <= 0:
		return fmt.Errorf("config: event_tolerance must be positive, got %g", c.EventTolerance)
	case c.Adaptive && c.Tolerance <= 0:
		return fmt.Errorf("config: tolerance must be positive for adaptive stepping")
	}
	seen := make(map[string]bool, len(c.Instances))
	for _, tag := range c.Instances {
		if tag == "" {
			return fmt.Errorf("config: empty instance tag")
		}
		if seen[tag] {
			return fmt.Errorf("config: duplicate instance %q", tag)
		}
		seen[tag] = true
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log level %q", c.LogLevel)
	}
	return nil
}

func (c *Config) Duration() float64 { return c.StopTime - c.StartTime }

// Sim converts the run settings to the host loop configuration.
func (c *Config) Sim() dynamo.Config {
	cfg := dynamo.DefaultConfig()
	cfg.Dt = c.Dt
	cfg.StartTime = c.StartTime
	cfg.Duration = c.Duration()
	cfg.Adaptive = c.Adaptive
	cfg.Tolerance = c.Tolerance
	cfg.EventTolerance = c.EventTolerance
	if c.Adaptive {
		cfg.MaxDt = c.Dt * 10
	}
	return cfg
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	out.Instances = append([]string(nil), c.Instances...)
	out.StartValues = copyValues(c.StartValues)
	out.Bounds = copyValues(c.Bounds)
	return &out
}

func copyValues(m map[string]float64) map[string]float64 {
	if m == nil {
		return nil
	}
	out := make(map[string]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
