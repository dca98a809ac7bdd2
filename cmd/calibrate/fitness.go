package main

import (
	"context"
	"io"
	"log/slog"
	"math"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pthm-cable/pedoni/config"
	"github.com/pthm-cable/pedoni/scenario"
	"github.com/pthm-cable/pedoni/sim"
	"github.com/pthm-cable/pedoni/telemetry"
)

// Target is the observed crowd behaviour the model is fitted to.
type Target struct {
	Speed float64 // mean walking speed, m/s (0 = ignore)
	Flow  float64 // arrivals per second (0 = ignore)
}

// Windows skipped while the scenario fills up.
const warmupWindows = 2

// failedFitness is returned when a run produces nothing to compare.
const failedFitness = 10.0

// FitnessEvaluator runs headless simulations and scores them against a target.
type FitnessEvaluator struct {
	params     *ParamVector
	maxTicks   int
	seeds      []uint64
	baseConfig config.Config
	scenario   scenario.Scenario
	target     Target
	logger     *slog.Logger

	mu          sync.Mutex
	lastSpeed   float64
	lastFlow    float64
	bestFitness float64
}

// NewFitnessEvaluator creates a new evaluator.
func NewFitnessEvaluator(params *ParamVector, scn scenario.Scenario, target Target, maxTicks int, seeds []uint64, baseCfg *config.Config) *FitnessEvaluator {
	scn.ApplyDefaults(baseCfg.Field.ObstacleWidth)
	return &FitnessEvaluator{
		params:      params,
		maxTicks:    maxTicks,
		seeds:       seeds,
		baseConfig:  *baseCfg,
		scenario:    scn,
		target:      target,
		logger:      slog.New(slog.NewTextHandler(io.Discard, nil)),
		bestFitness: math.Inf(1),
	}
}

// Last returns the mean speed and flow of the most recent evaluation.
func (fe *FitnessEvaluator) Last() (speed, flow float64) {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.lastSpeed, fe.lastFlow
}

// Best returns the lowest fitness seen so far.
func (fe *FitnessEvaluator) Best() float64 {
	fe.mu.Lock()
	defer fe.mu.Unlock()
	return fe.bestFitness
}

// seedResult holds the window averages from one run.
type seedResult struct {
	speed, flow float64
	windows     int
}

// Evaluate computes fitness for a raw parameter vector (lower = better).
// Seeds run in parallel; a seed that fails scores failedFitness.
func (fe *FitnessEvaluator) Evaluate(x []float64) float64 {
	cfg := fe.baseConfig
	fe.params.ApplyToConfig(&cfg, x)

	results := make([]seedResult, len(fe.seeds))
	var g errgroup.Group
	for i, seed := range fe.seeds {
		g.Go(func() error {
			res, err := fe.runSimulation(cfg, seed)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		fe.logger.Warn("evaluation failed", "error", err)
		return failedFitness
	}

	var fitness, speed, flow float64
	for _, r := range results {
		fitness += fe.computeFitness(r)
		speed += r.speed
		flow += r.flow
	}
	n := float64(len(results))
	fitness /= n

	fe.mu.Lock()
	fe.lastSpeed = speed / n
	fe.lastFlow = flow / n
	fe.bestFitness = min(fe.bestFitness, fitness)
	fe.mu.Unlock()

	return fitness
}

// runSimulation executes one headless run and averages its stats windows.
func (fe *FitnessEvaluator) runSimulation(cfg config.Config, seed uint64) (seedResult, error) {
	cfg.Sim.Seed = seed
	cfg.Backend.Kind = config.BackendCPU
	// Seeds already run in parallel.
	cfg.Parallel.Workers = 1

	scn := fe.scenario
	scn.Waypoints = slices.Clone(scn.Waypoints)
	scn.Obstacles = slices.Clone(scn.Obstacles)
	scn.Sources = slices.Clone(scn.Sources)

	ctx := context.Background()
	s, err := sim.New(ctx, &cfg, &scn, sim.WithLogger(fe.logger))
	if err != nil {
		return seedResult{}, err
	}
	defer s.Close()

	var windows []telemetry.CrowdStats
	for range fe.maxTicks {
		res, err := s.Tick(ctx)
		if err != nil {
			return seedResult{}, err
		}
		if res.Crowd != nil {
			windows = append(windows, *res.Crowd)
		}
	}
	return summarize(windows), nil
}

// summarize averages speed and flow over windows past warmup that had
// pedestrians walking.
func summarize(windows []telemetry.CrowdStats) seedResult {
	var r seedResult
	if len(windows) <= warmupWindows {
		return r
	}
	for _, w := range windows[warmupWindows:] {
		if w.Active == 0 {
			continue
		}
		r.speed += w.SpeedMean
		r.flow += w.Flow
		r.windows++
	}
	if r.windows > 0 {
		r.speed /= float64(r.windows)
		r.flow /= float64(r.windows)
	}
	return r
}

// computeFitness is the summed squared relative error against the target.
func (fe *FitnessEvaluator) computeFitness(r seedResult) float64 {
	if r.windows == 0 {
		return failedFitness
	}
	var f float64
	if fe.target.Speed > 0 {
		e := (r.speed - fe.target.Speed) / fe.target.Speed
		f += e * e
	}
	if fe.target.Flow > 0 {
		e := (r.flow - fe.target.Flow) / fe.target.Flow
		f += e * e
	}
	return f
}
