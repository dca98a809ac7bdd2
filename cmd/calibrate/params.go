package main

import (
	"github.com/pthm-cable/pedoni/config"
)

// ParamSpec defines a single calibrated parameter.
type ParamSpec struct {
	Name    string  // Human-readable name
	Path    string  // Config path for logging
	Min     float64 // Lower bound
	Max     float64 // Upper bound
	Default float64 // Default value
}

// ParamVector holds the set of calibrated model parameters.
type ParamVector struct {
	Specs []ParamSpec
}

// NewParamVector creates the standard set of Social Force parameters.
func NewParamVector() *ParamVector {
	return &ParamVector{
		Specs: []ParamSpec{
			{Name: "tau", Path: "model.tau", Min: 0.2, Max: 1.5, Default: 0.5},
			{Name: "a", Path: "model.a", Min: 0.5, Max: 10, Default: 2.1},
			{Name: "b", Path: "model.b", Min: 0.1, Max: 1.0, Default: 0.3},
			{Name: "unseen_factor", Path: "model.unseen_factor", Min: 0, Max: 1, Default: 0.5},
			{Name: "obstacle_strength", Path: "model.obstacle_strength", Min: 1, Max: 30, Default: 10},
			{Name: "obstacle_range", Path: "model.obstacle_range", Min: 0.05, Max: 1.0, Default: 0.2},
		},
	}
}

// Dim returns the number of parameters.
func (pv *ParamVector) Dim() int {
	return len(pv.Specs)
}

// DefaultVector returns the default parameter values as a slice.
func (pv *ParamVector) DefaultVector() []float64 {
	v := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		v[i] = spec.Default
	}
	return v
}

// Normalize converts raw parameter values to [0,1] range.
func (pv *ParamVector) Normalize(raw []float64) []float64 {
	normalized := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		normalized[i] = (raw[i] - spec.Min) / (spec.Max - spec.Min)
	}
	return normalized
}

// Denormalize converts [0,1] values back to raw parameter values.
func (pv *ParamVector) Denormalize(normalized []float64) []float64 {
	raw := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + normalized[i]*(spec.Max-spec.Min)
	}
	return raw
}

// Clamp ensures all values are within bounds.
func (pv *ParamVector) Clamp(v []float64) []float64 {
	clamped := make([]float64, len(pv.Specs))
	for i, spec := range pv.Specs {
		clamped[i] = min(max(v[i], spec.Min), spec.Max)
	}
	return clamped
}

// ApplyToConfig writes clamped values into cfg. Order matches Specs.
func (pv *ParamVector) ApplyToConfig(cfg *config.Config, values []float64) {
	c := pv.Clamp(values)
	cfg.Model.Tau = c[0]
	cfg.Model.A = c[1]
	cfg.Model.B = c[2]
	cfg.Model.UnseenFactor = c[3]
	cfg.Model.ObstacleStrength = c[4]
	cfg.Model.ObstacleRange = c[5]
}

// ExtractFromConfig reads the current parameter values from cfg.
func (pv *ParamVector) ExtractFromConfig(cfg *config.Config) []float64 {
	return []float64{
		cfg.Model.Tau,
		cfg.Model.A,
		cfg.Model.B,
		cfg.Model.UnseenFactor,
		cfg.Model.ObstacleStrength,
		cfg.Model.ObstacleRange,
	}
}
