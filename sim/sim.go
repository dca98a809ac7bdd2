// Package sim owns the pedestrian store and runs the per-tick pipeline:
// spawn, neighbor grid rebuild, force evaluation and commit.
package sim

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/mlange-42/ark/ecs"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/pthm-cable/pedoni/components"
	"github.com/pthm-cable/pedoni/config"
	"github.com/pthm-cable/pedoni/field"
	"github.com/pthm-cable/pedoni/gpu"
	"github.com/pthm-cable/pedoni/scenario"
	"github.com/pthm-cable/pedoni/systems"
	"github.com/pthm-cable/pedoni/telemetry"
)

// ErrNoDevice is returned when the GPU backend is selected without a device.
var ErrNoDevice = errors.New("gpu backend selected but no device given")

// TickResult summarizes one committed tick.
type TickResult struct {
	Tick    int32 // index of the tick that ran
	Spawned int
	Arrived int
	Active  int

	// Crowd is set when a stats window closed on this tick.
	Crowd *telemetry.CrowdStats
}

type options struct {
	logger    *slog.Logger
	device    gpu.Device
	field     *field.Field
	evaluator Evaluator
}

// Option configures New.
type Option func(*options)

// WithLogger sets the logger; slog.Default is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithDevice supplies the device for the GPU backend. The simulation owns it
// and closes it on Close.
func WithDevice(d gpu.Device) Option {
	return func(o *options) { o.device = d }
}

// WithField reuses an already solved field instead of solving the scenario.
func WithField(f *field.Field) Option {
	return func(o *options) { o.field = f }
}

// WithEvaluator overrides backend selection.
func WithEvaluator(e Evaluator) Option {
	return func(o *options) { o.evaluator = e }
}

// Simulation is the crowd state and everything needed to advance it.
type Simulation struct {
	cfg    *config.Config
	scn    *scenario.Scenario
	logger *slog.Logger

	world  *ecs.World
	mapper *ecs.Map5[
		components.Position,
		components.Velocity,
		components.Destination,
		components.Gait,
		components.Pedestrian,
	]
	filter *ecs.Filter5[
		components.Position,
		components.Velocity,
		components.Destination,
		components.Gait,
		components.Pedestrian,
	]
	posMap *ecs.Map1[components.Position]
	velMap *ecs.Map1[components.Velocity]
	pedMap *ecs.Map1[components.Pedestrian]

	field     *field.Field
	spawner   *systems.Spawner
	grid      *systems.NeighborGrid
	obstacles *systems.ObstacleIndex
	eval      Evaluator

	// Per-tick buffers. raw and handles are in query order; frame.Cur and
	// sorted are in neighbor grid order.
	frame    systems.Frame
	raw      systems.State
	handles  []ecs.Entity
	sorted   []ecs.Entity
	spawnBuf []systems.Spawned
	arrivals []ecs.Entity

	perf  *telemetry.PerfCollector
	stats *telemetry.Collector

	tick   int32
	nextID uint32
	active int
}

// New builds a simulation for scn. Zero widths in scn are filled from the
// config, then the scenario is validated and its navigation field solved
// unless WithField supplies one.
func New(ctx context.Context, cfg *config.Config, scn *scenario.Scenario, opts ...Option) (*Simulation, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}

	scn.ApplyDefaults(cfg.Field.ObstacleWidth)
	if err := scn.Validate(); err != nil {
		return nil, err
	}

	fld := o.field
	var solve time.Duration
	if fld == nil {
		start := time.Now()
		var err error
		fld, err = field.FromScenario(ctx, scn, cfg.Field.Unit, cfg.Field.ObstacleCost)
		if err != nil {
			return nil, fmt.Errorf("building field: %w", err)
		}
		solve = time.Since(start)
	}
	if fld.Waypoints() != len(scn.Waypoints) {
		return nil, fmt.Errorf("field has %d waypoints, scenario %d: %w", fld.Waypoints(), len(scn.Waypoints), field.ErrShape)
	}

	world := ecs.NewWorld()
	s := &Simulation{
		cfg:    cfg,
		scn:    scn,
		logger: o.logger,
		world:  world,
		mapper: ecs.NewMap5[
			components.Position,
			components.Velocity,
			components.Destination,
			components.Gait,
			components.Pedestrian,
		](world),
		filter: ecs.NewFilter5[
			components.Position,
			components.Velocity,
			components.Destination,
			components.Gait,
			components.Pedestrian,
		](world),
		posMap:    ecs.NewMap1[components.Position](world),
		velMap:    ecs.NewMap1[components.Velocity](world),
		pedMap:    ecs.NewMap1[components.Pedestrian](world),
		field:     fld,
		spawner:   systems.NewSpawner(cfg, cfg.Sim.Seed),
		obstacles: systems.NewObstacleIndex(scn.Obstacles, cfg.Model.ObstacleCutoff),
		perf:      telemetry.NewPerfCollector(cfg.Telemetry.PerfCollectorWindow),
		stats:     telemetry.NewCollector(cfg.Telemetry.StatsWindow, cfg.Sim.DT),
	}

	if cfg.Neighbor.Enabled {
		s.grid = systems.NewNeighborGrid(fld.Size(), cfg.Neighbor.Unit)
		if !cfg.NeighborGridSound() {
			s.logger.Warn("neighbor grid unit below interaction cutoff; distant pairs will be missed",
				"unit", cfg.Neighbor.Unit,
				"cutoff", cfg.Model.Cutoff,
			)
		}
	}

	s.frame = systems.Frame{
		Grid:      s.grid,
		Field:     fld,
		Obstacles: s.obstacles,
		Params:    systems.ParamsFromConfig(cfg),
	}

	eval, err := s.newEvaluator(o)
	if err != nil {
		return nil, err
	}
	s.eval = eval

	s.logger.Info("simulation ready",
		"scenario", scn.Name,
		"backend", eval.Name(),
		"waypoints", fld.Waypoints(),
		"obstacles", s.obstacles.Len(),
		"neighbor_grid", s.grid != nil,
		"field_solve", solve,
	)
	return s, nil
}

func (s *Simulation) newEvaluator(o options) (Evaluator, error) {
	if o.evaluator != nil {
		return o.evaluator, nil
	}
	switch s.cfg.Backend.Kind {
	case config.BackendCPU:
		return NewCPUEvaluator(s.cfg.Parallel), nil
	case config.BackendGPU:
		if o.device == nil {
			return nil, ErrNoDevice
		}
		static := gpu.NewStatic(s.field, s.grid, s.frame.Params, s.cfg.Backend.WorkGroupSize)
		return gpu.NewEvaluator(o.device, static, s.cfg.Backend.DispatchTimeout)
	default:
		return nil, fmt.Errorf("%w: unknown backend %q", config.ErrInvalid, s.cfg.Backend.Kind)
	}
}

// Tick advances the simulation by one step. The context is checked before
// the tick starts; a running tick is not interrupted except by the GPU
// dispatch deadline. When evaluation fails nothing is committed, but
// pedestrians spawned this tick remain.
func (s *Simulation) Tick(ctx context.Context) (TickResult, error) {
	if err := ctx.Err(); err != nil {
		return TickResult{}, err
	}
	res := TickResult{Tick: s.tick}

	s.perf.StartTick()

	s.perf.StartPhase(telemetry.PhaseSpawn)
	res.Spawned = s.spawn()

	s.perf.StartPhase(telemetry.PhaseNeighborGrid)
	s.gather()

	s.perf.StartPhase(telemetry.PhaseForceEval)
	if s.frame.Cur.Len() > 0 {
		if err := s.eval.Evaluate(ctx, &s.frame); err != nil {
			s.perf.EndTick(s.active)
			return res, fmt.Errorf("tick %d: %s: %w", s.tick, s.eval.Name(), err)
		}
	}

	s.perf.StartPhase(telemetry.PhaseCommit)
	res.Arrived = s.commit()

	s.active -= res.Arrived
	res.Active = s.active
	s.tick++
	s.perf.EndTick(s.active)

	if s.stats.ShouldFlush(s.tick) {
		crowd := s.flushStats()
		res.Crowd = &crowd
	}
	return res, nil
}

// spawn creates this tick's pedestrians.
func (s *Simulation) spawn() int {
	s.spawnBuf = s.spawner.Draw(s.spawnBuf[:0], s.scn, int(s.tick))
	for _, p := range s.spawnBuf {
		pos := components.Position{X: p.Pos.X, Y: p.Pos.Y}
		vel := components.Velocity{}
		dest := components.Destination{Waypoint: int32(p.Dest)}
		gait := components.Gait{DesiredSpeed: p.Speed}
		ped := components.Pedestrian{ID: s.nextID, Source: int32(p.Source), SpawnTick: s.tick}
		s.mapper.NewEntity(&pos, &vel, &dest, &gait, &ped)
		s.nextID++
	}
	n := len(s.spawnBuf)
	s.active += n
	s.stats.RecordSpawn(n)
	return n
}

// gather snapshots the store into frame.Cur, sorted by neighbor cell when
// the grid is enabled.
func (s *Simulation) gather() {
	dst := &s.raw
	if s.grid == nil {
		dst = &s.frame.Cur
	}
	dst.Reset()
	s.handles = s.handles[:0]

	query := s.filter.Query()
	for query.Next() {
		pos, vel, dest, gait, _ := query.Get()
		dst.Append(r2.Vec{X: pos.X, Y: pos.Y}, r2.Vec{X: vel.X, Y: vel.Y}, dest.Waypoint, gait.DesiredSpeed)
		s.handles = append(s.handles, query.Entity())
	}

	if s.grid == nil {
		s.sorted = append(s.sorted[:0], s.handles...)
	} else {
		s.grid.Update(s.raw.Pos)
		order, _ := s.grid.Layout()
		s.raw.PermuteInto(&s.frame.Cur, order)
		s.sorted = s.sorted[:0]
		for _, i := range order {
			s.sorted = append(s.sorted, s.handles[i])
		}
	}
	s.frame.PrepareNext()
}

// commit writes Next back to the store and removes arrivals.
func (s *Simulation) commit() int {
	next := &s.frame.Next
	threshold := s.cfg.Spawn.ArrivalThreshold

	s.arrivals = s.arrivals[:0]
	for k, e := range s.sorted {
		p, v := next.Pos[k], next.Vel[k]
		pos := s.posMap.Get(e)
		vel := s.velMap.Get(e)
		pos.X, pos.Y = p.X, p.Y
		vel.X, vel.Y = v.X, v.Y

		if s.field.Potential(int(next.Dest[k]), p) < threshold {
			s.arrivals = append(s.arrivals, e)
		}
	}

	for _, e := range s.arrivals {
		ped := s.pedMap.Get(e)
		s.stats.RecordArrival(s.tick + 1 - ped.SpawnTick)
		s.mapper.Remove(e)
	}
	return len(s.arrivals)
}

func (s *Simulation) flushStats() telemetry.CrowdStats {
	speeds := make([]float64, 0, s.active)
	desired := make([]float64, 0, s.active)
	query := s.filter.Query()
	for query.Next() {
		_, vel, _, gait, _ := query.Get()
		speeds = append(speeds, r2.Norm(r2.Vec{X: vel.X, Y: vel.Y}))
		desired = append(desired, gait.DesiredSpeed)
	}
	return s.stats.Flush(s.tick, speeds, desired)
}

// Snapshot returns every active pedestrian ordered by id.
func (s *Simulation) Snapshot() telemetry.Snapshot {
	size := s.field.Size()
	snap := telemetry.Snapshot{
		Version:     telemetry.SnapshotVersion,
		Scenario:    s.scn.Name,
		Width:       size.X,
		Height:      size.Y,
		Tick:        s.tick,
		Time:        float64(s.tick) * s.cfg.Sim.DT,
		Pedestrians: make([]telemetry.PedestrianState, 0, s.active),
	}

	query := s.filter.Query()
	for query.Next() {
		pos, vel, dest, _, ped := query.Get()
		snap.Pedestrians = append(snap.Pedestrians, telemetry.PedestrianState{
			ID:          ped.ID,
			X:           pos.X,
			Y:           pos.Y,
			VX:          vel.X,
			VY:          vel.Y,
			Destination: dest.Waypoint,
		})
	}
	slices.SortFunc(snap.Pedestrians, func(a, b telemetry.PedestrianState) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return snap
}

// Active returns the number of pedestrians in the simulation.
func (s *Simulation) Active() int { return s.active }

// TickCount returns the number of committed ticks.
func (s *Simulation) TickCount() int32 { return s.tick }

// Field returns the navigation field.
func (s *Simulation) Field() *field.Field { return s.field }

// Scenario returns the scenario being simulated.
func (s *Simulation) Scenario() *scenario.Scenario { return s.scn }

// NeighborGrid returns the neighbor grid, or nil when disabled.
func (s *Simulation) NeighborGrid() *systems.NeighborGrid { return s.grid }

// Frame returns the last evaluated frame. It is only valid until the next
// Tick.
func (s *Simulation) Frame() *systems.Frame { return &s.frame }

// Perf returns the tick timing collector.
func (s *Simulation) Perf() *telemetry.PerfCollector { return s.perf }

// Backend returns the evaluator name.
func (s *Simulation) Backend() string { return s.eval.Name() }

// Close releases the evaluator.
func (s *Simulation) Close() error {
	return s.eval.Close()
}
