package systems

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/spatial/r2"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/pthm-cable/pedoni/config"
	"github.com/pthm-cable/pedoni/scenario"
)

// Spawned is a pedestrian about to enter the simulation.
type Spawned struct {
	Pos    r2.Vec
	Dest   int
	Speed  float64
	Source int
}

// Spawner draws new pedestrians from scenario sources.
type Spawner struct {
	rng      *rand.Rand
	src      rand.Source
	speed    distuv.Normal
	minSpeed float64
	dt       float64
}

// NewSpawner creates a deterministic spawner for seed.
func NewSpawner(cfg *config.Config, seed uint64) *Spawner {
	src := rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)
	return &Spawner{
		rng:      rand.New(src),
		src:      src,
		speed:    distuv.Normal{Mu: cfg.Spawn.SpeedMean, Sigma: cfg.Spawn.SpeedSigma, Src: src},
		minSpeed: cfg.Spawn.MinSpeed,
		dt:       cfg.Sim.DT,
	}
}

// Draw appends the pedestrians every source emits on tick to dst.
func (s *Spawner) Draw(dst []Spawned, scn *scenario.Scenario, tick int) []Spawned {
	for k, src := range scn.Sources {
		var n int
		switch src.Spawn.Kind {
		case scenario.Periodic:
			n = s.poisson(src.Spawn.Frequency * s.dt)
		case scenario.Once:
			if tick == 0 {
				n = src.Spawn.Count
			}
		}

		line := scn.Waypoints[src.Origin].Line
		for range n {
			dst = append(dst, Spawned{
				Pos:    line.Lerp(s.rng.Float64()),
				Dest:   src.Destination,
				Speed:  s.desiredSpeed(),
				Source: k,
			})
		}
	}
	return dst
}

func (s *Spawner) poisson(lambda float64) int {
	if !(lambda > 0) || math.IsInf(lambda, 0) {
		return 0
	}
	return int(distuv.Poisson{Lambda: lambda, Src: s.src}.Rand())
}

// Draws below minSpeed are rejected. maxSpeedDraws bounds the loop for
// distributions that sit almost entirely under the floor.
const maxSpeedDraws = 64

// desiredSpeed samples the speed distribution truncated below at minSpeed.
func (s *Spawner) desiredSpeed() float64 {
	for range maxSpeedDraws {
		if v := s.speed.Rand(); v >= s.minSpeed {
			return v
		}
	}
	return s.minSpeed
}
