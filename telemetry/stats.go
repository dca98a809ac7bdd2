// Package telemetry provides crowd statistics, timing, bookmarks and snapshots.
package telemetry

import (
	"log/slog"
	"slices"

	"gonum.org/v1/gonum/stat"
)

// CrowdStats holds aggregated statistics for a time window.
type CrowdStats struct {
	WindowStartTick int32   `csv:"-"`
	WindowEndTick   int32   `csv:"window_end"`
	SimTimeSec      float64 `csv:"sim_time"`

	// Population at window end
	Active int `csv:"active"`

	// Events during window
	Spawned int `csv:"spawned"`
	Arrived int `csv:"arrived"`

	// Arrivals per second over the window
	Flow float64 `csv:"flow"`

	// Travel time of pedestrians that arrived during the window
	TravelMean float64 `csv:"travel_mean"`
	TravelP90  float64 `csv:"travel_p90"`

	// Speed distribution (sampled at window end)
	SpeedMean float64 `csv:"speed_mean"`
	SpeedStd  float64 `csv:"speed_std"`
	SpeedP10  float64 `csv:"speed_p10"`
	SpeedP50  float64 `csv:"speed_p50"`
	SpeedP90  float64 `csv:"speed_p90"`

	// Mean of speed / desired speed; 1 is free flow
	Efficiency float64 `csv:"efficiency"`
}

// Distribution summarizes a sample.
type Distribution struct {
	Mean, Std     float64
	P10, P50, P90 float64
}

// Describe computes mean, standard deviation and empirical quantiles.
// An empty sample yields the zero Distribution.
func Describe(values []float64) Distribution {
	if len(values) == 0 {
		return Distribution{}
	}
	sorted := slices.Clone(values)
	slices.Sort(sorted)

	mean, std := stat.MeanStdDev(sorted, nil)
	if len(sorted) == 1 {
		std = 0
	}
	return Distribution{
		Mean: mean,
		Std:  std,
		P10:  stat.Quantile(0.10, stat.Empirical, sorted, nil),
		P50:  stat.Quantile(0.50, stat.Empirical, sorted, nil),
		P90:  stat.Quantile(0.90, stat.Empirical, sorted, nil),
	}
}

// LogValue implements slog.LogValuer for structured logging.
func (s CrowdStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("window_start", int(s.WindowStartTick)),
		slog.Int("window_end", int(s.WindowEndTick)),
		slog.Float64("sim_time", s.SimTimeSec),
		slog.Int("active", s.Active),
		slog.Int("spawned", s.Spawned),
		slog.Int("arrived", s.Arrived),
		slog.Float64("flow", s.Flow),
		slog.Float64("travel_mean", s.TravelMean),
		slog.Float64("travel_p90", s.TravelP90),
		slog.Float64("speed_mean", s.SpeedMean),
		slog.Float64("speed_std", s.SpeedStd),
		slog.Float64("speed_p10", s.SpeedP10),
		slog.Float64("speed_p50", s.SpeedP50),
		slog.Float64("speed_p90", s.SpeedP90),
		slog.Float64("efficiency", s.Efficiency),
	)
}

// LogStats logs the window stats.
func (s CrowdStats) LogStats(logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("stats",
		"window_end", s.WindowEndTick,
		"sim_time", s.SimTimeSec,
		"active", s.Active,
		"spawned", s.Spawned,
		"arrived", s.Arrived,
		"flow", s.Flow,
		"travel_mean", s.TravelMean,
		"speed_mean", s.SpeedMean,
		"speed_p50", s.SpeedP50,
		"efficiency", s.Efficiency,
	)
}
