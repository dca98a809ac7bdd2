// Package config provides configuration loading for the simulation.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"math"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Backend selects where per-pedestrian forces are evaluated.
type Backend string

const (
	BackendCPU Backend = "cpu"
	BackendGPU Backend = "gpu"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config holds all simulation configuration parameters.
type Config struct {
	Sim       SimConfig       `yaml:"sim"`
	Field     FieldConfig     `yaml:"field"`
	Neighbor  NeighborConfig  `yaml:"neighbor"`
	Model     ModelConfig     `yaml:"model"`
	Spawn     SpawnConfig     `yaml:"spawn"`
	Backend   BackendConfig   `yaml:"backend"`
	Parallel  ParallelConfig  `yaml:"parallel"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Stream    StreamConfig    `yaml:"stream"`

	// Derived values computed after loading
	Derived DerivedConfig `yaml:"-"`
}

// SimConfig holds the tick clock and run length.
type SimConfig struct {
	DT       float64 `yaml:"dt"`        // Seconds per tick
	MaxTicks int     `yaml:"max_ticks"` // Headless run length (0 = until empty)
	Seed     uint64  `yaml:"seed"`
}

// FieldConfig holds navigation field parameters.
type FieldConfig struct {
	Unit          float64 `yaml:"unit"`           // Metres per cell
	ObstacleCost  float64 `yaml:"obstacle_cost"`  // Cost multiplier inside obstacles
	ObstacleWidth float64 `yaml:"obstacle_width"` // Default line width for scenario geometry
}

// NeighborConfig holds neighbor grid parameters.
type NeighborConfig struct {
	Enabled bool    `yaml:"enabled"` // false = scan every pedestrian
	Unit    float64 `yaml:"unit"`    // Cell side; keep >= model.cutoff
}

// ModelConfig holds Social Force Model constants.
type ModelConfig struct {
	Tau              float64 `yaml:"tau"`               // Relaxation time
	A                float64 `yaml:"a"`                 // Pairwise strength
	B                float64 `yaml:"b"`                 // Pairwise range
	Lookahead        float64 `yaml:"lookahead"`         // Step used to extrapolate neighbor motion
	ViewAngle        float64 `yaml:"view_angle"`        // Half field of view in degrees
	UnseenFactor     float64 `yaml:"unseen_factor"`     // Weight of forces from behind
	Cutoff           float64 `yaml:"cutoff"`            // Pairwise interaction radius
	ObstacleStrength float64 `yaml:"obstacle_strength"` // Obstacle repulsion strength
	ObstacleRange    float64 `yaml:"obstacle_range"`    // Obstacle repulsion range
	ObstacleCutoff   float64 `yaml:"obstacle_cutoff"`   // Segment query radius without a distance map
	UseDistanceMap   bool    `yaml:"use_distance_map"`
	Overshoot        float64 `yaml:"overshoot"` // Speed cap as a multiple of desired speed
}

// SpawnConfig holds pedestrian creation and removal parameters.
type SpawnConfig struct {
	SpeedMean        float64 `yaml:"speed_mean"`
	SpeedSigma       float64 `yaml:"speed_sigma"`
	MinSpeed         float64 `yaml:"min_speed"`
	ArrivalThreshold float64 `yaml:"arrival_threshold"` // Destination potential that counts as arrived
}

// BackendConfig holds force evaluation backend parameters.
type BackendConfig struct {
	Kind            Backend       `yaml:"kind"`
	WorkGroupSize   int           `yaml:"work_group_size"`
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`
}

// ParallelConfig holds CPU worker pool parameters.
type ParallelConfig struct {
	Workers   int `yaml:"workers"`   // 0 = GOMAXPROCS
	Threshold int `yaml:"threshold"` // Below this pedestrian count run inline
	ChunkSize int `yaml:"chunk_size"`
}

// TelemetryConfig holds telemetry parameters.
type TelemetryConfig struct {
	StatsWindow         float64 `yaml:"stats_window"`          // Seconds per crowd stats window
	PerfCollectorWindow int     `yaml:"perf_collector_window"` // Ticks per perf window
	TrajectoryEvery     int     `yaml:"trajectory_every"`      // Ticks between trajectory rows (0 = off)
}

// StreamConfig holds snapshot streaming parameters.
type StreamConfig struct {
	Addr     string        `yaml:"addr"`
	Interval time.Duration `yaml:"interval"`
}

// DerivedConfig holds values computed from the loaded config.
type DerivedConfig struct {
	CosPhi   float64 // cos(Model.ViewAngle)
	CutoffSq float64 // Model.Cutoff squared
}

// Load loads configuration from a YAML file, merging with embedded defaults.
// If path is empty, only embedded defaults are used.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(defaultsYAML, cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded defaults: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Only overwrites fields present in file
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg.computeDerived()

	return cfg, nil
}

// MustLoad is like Load but panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(fmt.Sprintf("config: failed to load: %v", err))
	}
	return cfg
}

// Validate reports the first out-of-range parameter.
func (c *Config) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"sim.dt", c.Sim.DT},
		{"field.unit", c.Field.Unit},
		{"field.obstacle_cost", c.Field.ObstacleCost},
		{"neighbor.unit", c.Neighbor.Unit},
		{"model.tau", c.Model.Tau},
		{"model.b", c.Model.B},
		{"model.cutoff", c.Model.Cutoff},
		{"model.obstacle_range", c.Model.ObstacleRange},
		{"model.overshoot", c.Model.Overshoot},
	}
	for _, p := range positive {
		if !(p.v > 0) || math.IsInf(p.v, 0) {
			return fmt.Errorf("%w: %s must be positive, got %v", ErrInvalid, p.name, p.v)
		}
	}
	switch c.Backend.Kind {
	case BackendCPU:
	case BackendGPU:
		if c.Backend.WorkGroupSize <= 0 {
			return fmt.Errorf("%w: backend.work_group_size must be positive", ErrInvalid)
		}
		if c.Backend.DispatchTimeout <= 0 {
			return fmt.Errorf("%w: backend.dispatch_timeout must be positive", ErrInvalid)
		}
		if !c.Model.UseDistanceMap {
			return fmt.Errorf("%w: backend gpu requires model.use_distance_map", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q", ErrInvalid, c.Backend.Kind)
	}
	if c.Parallel.ChunkSize <= 0 {
		return fmt.Errorf("%w: parallel.chunk_size must be positive", ErrInvalid)
	}
	return nil
}

// computeDerived calculates values derived from loaded config.
func (c *Config) computeDerived() {
	c.Derived.CosPhi = math.Cos(c.Model.ViewAngle * math.Pi / 180)
	c.Derived.CutoffSq = c.Model.Cutoff * c.Model.Cutoff
}

// NeighborGridSound reports whether a 3x3 cell query covers the full
// interaction radius.
func (c *Config) NeighborGridSound() bool {
	return !c.Neighbor.Enabled || c.Neighbor.Unit >= c.Model.Cutoff
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
