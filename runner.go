package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/pthm-cable/pedoni/config"
	"github.com/pthm-cable/pedoni/scenario"
	"github.com/pthm-cable/pedoni/sim"
	"github.com/pthm-cable/pedoni/stream"
	"github.com/pthm-cable/pedoni/telemetry"
)

// runner advances the simulation and fans each tick out to CSV files, logs,
// bookmarks and the live stream.
type runner struct {
	sim    *sim.Simulation
	cfg    *config.Config
	logger *slog.Logger

	out       *telemetry.OutputManager // nil disables file output
	hub       *stream.Hub              // nil disables streaming
	bookmarks *telemetry.BookmarkDetector

	logStats   bool
	writeSteps bool

	now         func() time.Time
	lastPublish time.Time
}

func newRunner(s *sim.Simulation, cfg *config.Config, logger *slog.Logger) *runner {
	return &runner{
		sim:       s,
		cfg:       cfg,
		logger:    logger,
		bookmarks: telemetry.NewBookmarkDetector(10),
		now:       time.Now,
	}
}

// step runs one tick and records its outputs. Output failures are logged,
// never returned; only simulation errors stop the run.
func (r *runner) step(ctx context.Context) (sim.TickResult, error) {
	res, err := r.sim.Tick(ctx)
	if err != nil {
		return res, err
	}
	committed := r.sim.TickCount()

	if r.writeSteps {
		r.check("step", r.out.WriteStep(r.sim.Perf().Last().ToStepMetrics(res.Tick)))
	}

	if every := r.cfg.Telemetry.TrajectoryEvery; every > 0 && committed%int32(every) == 0 {
		snap := r.sim.Snapshot()
		r.check("trajectories", r.out.WriteTrajectories(&snap))
	}

	if window := r.cfg.Telemetry.PerfCollectorWindow; window > 0 && committed%int32(window) == 0 {
		perf := r.sim.Perf().Stats()
		if r.logStats {
			perf.LogStats(r.logger)
		}
		r.check("perf", r.out.WritePerf(perf, committed))
	}

	if res.Crowd != nil {
		r.flushCrowd(*res.Crowd)
	}

	r.publish()
	return res, nil
}

func (r *runner) flushCrowd(stats telemetry.CrowdStats) {
	if r.logStats {
		stats.LogStats(r.logger)
	}
	r.check("crowd", r.out.WriteCrowd(stats))
	if r.hub != nil {
		r.hub.PublishCrowd(stats)
	}

	for _, bm := range r.bookmarks.Check(stats) {
		if r.logStats {
			bm.LogBookmark(r.logger)
		}
		r.check("bookmark", r.out.WriteBookmark(bm))
		if r.hub != nil {
			r.hub.PublishBookmark(bm)
		}

		if r.out != nil {
			snap := r.sim.Snapshot()
			snap.Bookmark = &bm
			path, err := r.out.WriteSnapshot(&snap)
			if err != nil {
				r.check("snapshot", err)
				continue
			}
			r.logger.Info("snapshot saved", "path", path, "tick", snap.Tick, "bookmark", bm.Type)
		}
	}
}

// publish sends a snapshot to the stream at most once per interval.
func (r *runner) publish() {
	if r.hub == nil {
		return
	}
	now := r.now()
	if now.Sub(r.lastPublish) < r.cfg.Stream.Interval {
		return
	}
	r.lastPublish = now
	r.hub.PublishSnapshot(r.sim.Snapshot())
}

func (r *runner) check(what string, err error) {
	if err != nil {
		r.logger.Error("failed to write output", "output", what, "error", err)
	}
}

// runHeadless ticks until ctx is done, maxTicks is reached (0 = no limit), or
// a scenario without periodic sources has emptied.
func (r *runner) runHeadless(ctx context.Context, maxTicks int) error {
	drains := !hasPeriodic(r.sim)
	for ctx.Err() == nil {
		if _, err := r.step(ctx); err != nil {
			return err
		}
		tick := int(r.sim.TickCount())
		if maxTicks > 0 && tick >= maxTicks {
			r.logger.Info("max ticks reached", "tick", tick)
			return nil
		}
		if drains && r.sim.Active() == 0 {
			r.logger.Info("all pedestrians arrived", "tick", tick)
			return nil
		}
	}
	return nil
}

func hasPeriodic(s *sim.Simulation) bool {
	for _, src := range s.Scenario().Sources {
		if src.Spawn.Kind == scenario.Periodic {
			return true
		}
	}
	return false
}
