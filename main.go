package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/pthm-cable/pedoni/config"
	"github.com/pthm-cable/pedoni/gpu"
	"github.com/pthm-cable/pedoni/gpu/gldevice"
	"github.com/pthm-cable/pedoni/scenario"
	"github.com/pthm-cable/pedoni/sim"
	"github.com/pthm-cable/pedoni/stream"
	"github.com/pthm-cable/pedoni/telemetry"
	"github.com/pthm-cable/pedoni/viewer"
)

type options struct {
	configPath string
	scenario   string
	headless   bool
	logStats   bool
	outputDir  string
	writeSteps bool
	seed       uint64
	maxTicks   int
	backend    string
	device     string
	stream     bool
	streamAddr string
	logFile    string
}

func main() {
	var o options
	flag.StringVar(&o.configPath, "config", "", "Path to config.yaml (empty = use defaults)")
	flag.StringVar(&o.scenario, "scenario", "corridor", "Scenario name ("+strings.Join(scenario.Names(), ", ")+")")
	flag.BoolVar(&o.headless, "headless", false, "Run without graphics")
	flag.BoolVar(&o.logStats, "log-stats", false, "Output stats via slog")
	flag.StringVar(&o.outputDir, "output-dir", "", "Output directory for CSV logs and config snapshot")
	flag.BoolVar(&o.writeSteps, "steps", false, "Write per-tick timings to steps.csv")
	flag.Uint64Var(&o.seed, "seed", 0, "RNG seed (0 = use config)")
	flag.IntVar(&o.maxTicks, "max-ticks", 0, "Stop after N ticks (0 = use config)")
	flag.StringVar(&o.backend, "backend", "", "Force evaluation backend: cpu or gpu (empty = use config)")
	flag.StringVar(&o.device, "device", "gl", "GPU device: gl or software")
	flag.BoolVar(&o.stream, "stream", false, "Serve snapshots over WebSocket")
	flag.StringVar(&o.streamAddr, "stream-addr", "", "Stream listen address (empty = use config)")
	flag.StringVar(&o.logFile, "log-file", "", "Also write logs to this file, rotated")
	flag.Parse()

	logger := newLogger(o.logFile).With("run_id", uuid.New().String())
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, o, logger); err != nil {
		logger.Error("simulation failed", "error", err)
		stop()
		os.Exit(1)
	}
}

// newLogger writes JSON logs to stdout, and to a size-rotated file when path is set.
func newLogger(path string) *slog.Logger {
	var w io.Writer = os.Stdout
	if path != "" {
		w = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   path,
			MaxSize:    50, // megabytes
			MaxBackups: 3,
			MaxAge:     14, // days
			Compress:   true,
		})
	}
	return slog.New(slog.NewJSONHandler(w, nil))
}

func run(ctx context.Context, o options, logger *slog.Logger) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if err := o.apply(cfg); err != nil {
		return err
	}

	scn, err := scenario.ByName(o.scenario)
	if err != nil {
		return err
	}

	simOpts := []sim.Option{sim.WithLogger(logger)}
	var dev gpu.Device
	if cfg.Backend.Kind == config.BackendGPU {
		if dev, err = openDevice(o.device); err != nil {
			return err
		}
		simOpts = append(simOpts, sim.WithDevice(dev))
	}

	s, err := newSimulation(ctx, cfg, &scn, dev, logger, simOpts...)
	if err != nil {
		return err
	}
	// The simulation owns the device from here on.
	defer s.Close()

	out, err := telemetry.NewOutputManager(o.outputDir)
	if err != nil {
		return err
	}
	defer out.Close()
	if err := out.WriteConfig(cfg); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	r := newRunner(s, cfg, logger)
	r.out = out
	r.logStats = o.logStats
	r.writeSteps = o.writeSteps

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	if o.stream {
		srv, err := stream.Listen(cfg.Stream.Addr, logger)
		if err != nil {
			return err
		}
		r.hub = srv.Hub
		logger.Info("streaming snapshots", "addr", srv.Addr())
		g.Go(func() error { return srv.Serve(gctx) })
	}

	logger.Info("starting simulation",
		"scenario", scn.Name,
		"backend", s.Backend(),
		"headless", o.headless,
		"seed", cfg.Sim.Seed,
		"max_ticks", cfg.Sim.MaxTicks,
		"output_dir", out.Dir(),
	)

	// raylib needs the main thread, so the loop stays on this goroutine.
	if o.headless {
		err = r.runHeadless(gctx, cfg.Sim.MaxTicks)
	} else {
		err = viewer.New(s, r.step).Run(gctx, cfg.Sim.MaxTicks)
	}
	cancel()
	if werr := g.Wait(); werr != nil && err == nil {
		err = werr
	}

	logger.Info("simulation stopped", "tick", s.TickCount(), "active", s.Active())
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// apply overrides config values with flags that were set.
func (o options) apply(cfg *config.Config) error {
	if o.seed != 0 {
		cfg.Sim.Seed = o.seed
	}
	if o.maxTicks > 0 {
		cfg.Sim.MaxTicks = o.maxTicks
	}
	if o.streamAddr != "" {
		cfg.Stream.Addr = o.streamAddr
	}
	if o.backend != "" {
		cfg.Backend.Kind = config.Backend(o.backend)
	}
	return cfg.Validate()
}

// newSimulation builds the simulation and releases dev if that fails.
func newSimulation(ctx context.Context, cfg *config.Config, scn *scenario.Scenario, dev gpu.Device, logger *slog.Logger, opts ...sim.Option) (*sim.Simulation, error) {
	s, err := sim.New(ctx, cfg, scn, opts...)
	if err != nil {
		if dev != nil {
			if cerr := dev.Close(); cerr != nil {
				logger.Error("failed to close device", "error", cerr)
			}
		}
		return nil, err
	}
	return s, nil
}

func openDevice(name string) (gpu.Device, error) {
	switch name {
	case "gl":
		dev, err := gldevice.New()
		if err != nil {
			return nil, err
		}
		return dev, nil
	case "software":
		return gpu.NewSoftwareDevice(), nil
	default:
		return nil, fmt.Errorf("unknown device %q", name)
	}
}
