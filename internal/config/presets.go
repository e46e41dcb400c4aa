package config

import "sort"

// Presets are named runs of the built-in BouncingBall model.
var Presets = map[string]*Config{
	"drop": {
		Instances: []string{"ball"}, Integrator: "rk4", Dt: 0.01, StopTime: 3,
		Bounds: map[string]float64{"h": -1e-6},
	},
	"high": {
		Instances: []string{"ball"}, Integrator: "rk4", Dt: 0.01, StopTime: 6,
		StartValues: map[string]float64{"h": 10},
	},
	"dead": {
		Instances: []string{"ball"}, Integrator: "rk4", Dt: 0.01, StopTime: 3,
		StartValues: map[string]float64{"e": 0.3},
	},
	"pair": {
		Instances: []string{"left", "right"}, Integrator: "rk4", Dt: 0.01, StopTime: 3,
	},
	"adaptive": {
		Instances: []string{"ball"}, Integrator: "rk45", Dt: 0.05, StopTime: 3,
		Adaptive: true,
	},
}

// GetPreset returns a copy of the named preset over the defaults, or nil.
func GetPreset(name string) *Config {
	p, ok := Presets[name]
	if !ok {
		return nil
	}
	cfg := DefaultConfig()
	cfg.Instances = append([]string(nil), p.Instances...)
	cfg.Integrator = p.Integrator
	cfg.Dt = p.Dt
	cfg.StopTime = p.StopTime
	cfg.Adaptive = p.Adaptive
	cfg.StartValues = copyValues(p.StartValues)
	cfg.Bounds = copyValues(p.Bounds)
	return cfg
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
