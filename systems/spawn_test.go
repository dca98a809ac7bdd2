package systems

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/stat"

	"github.com/pthm-cable/pedoni/config"
	"github.com/pthm-cable/pedoni/geom"
	"github.com/pthm-cable/pedoni/scenario"
)

func spawnScenario(kind scenario.SpawnKind) *scenario.Scenario {
	s := &scenario.Scenario{
		Waypoints: []scenario.Waypoint{
			{Line: geom.Seg(1, 1, 1, 4), Width: 1},
			{Line: geom.Seg(9, 1, 9, 4), Width: 1},
		},
		Sources: []scenario.Source{{Origin: 0, Destination: 1}},
	}
	s.Sources[0].Spawn.Kind = kind
	s.Sources[0].Spawn.Frequency = 5
	s.Sources[0].Spawn.Count = 12
	return s
}

func TestSpawner_PoissonMean(t *testing.T) {
	cfg := config.MustLoad("")
	sp := NewSpawner(cfg, 1)
	s := spawnScenario(scenario.Periodic)

	const ticks = 20000
	total := 0
	var buf []Spawned
	for tick := 0; tick < ticks; tick++ {
		buf = sp.Draw(buf[:0], s, tick)
		total += len(buf)
	}

	// lambda = frequency * dt = 0.5
	assert.InDelta(t, 0.5, float64(total)/ticks, 0.02)
}

func TestSpawner_Once(t *testing.T) {
	sp := NewSpawner(config.MustLoad(""), 1)
	s := spawnScenario(scenario.Once)

	assert.Len(t, sp.Draw(nil, s, 0), 12)
	assert.Empty(t, sp.Draw(nil, s, 1))
}

func TestSpawner_Placement(t *testing.T) {
	cfg := config.MustLoad("")
	sp := NewSpawner(cfg, 2)
	s := spawnScenario(scenario.Once)
	s.Sources[0].Spawn.Count = 5000

	got := sp.Draw(nil, s, 0)
	speeds := make([]float64, len(got))
	for i, p := range got {
		assert.Equal(t, 1.0, p.Pos.X)
		assert.True(t, p.Pos.Y >= 1 && p.Pos.Y <= 4, "y=%v on the origin segment", p.Pos.Y)
		assert.Equal(t, 1, p.Dest)
		assert.GreaterOrEqual(t, p.Speed, cfg.Spawn.MinSpeed)
		speeds[i] = p.Speed
	}
	assert.InDelta(t, 1.34, stat.Mean(speeds, nil), 0.02)
	assert.InDelta(t, 0.26, stat.StdDev(speeds, nil), 0.02)
}

func TestSpawner_Deterministic(t *testing.T) {
	cfg := config.MustLoad("")
	s := spawnScenario(scenario.Periodic)

	a, b := NewSpawner(cfg, 9), NewSpawner(cfg, 9)
	for tick := 0; tick < 100; tick++ {
		assert.Equal(t, a.Draw(nil, s, tick), b.Draw(nil, s, tick))
	}
}

func TestSpawner_ZeroFrequency(t *testing.T) {
	sp := NewSpawner(config.MustLoad(""), 1)
	s := spawnScenario(scenario.Periodic)
	s.Sources[0].Spawn.Frequency = 0

	for tick := 0; tick < 100; tick++ {
		assert.Empty(t, sp.Draw(nil, s, tick))
	}
}

func TestSpawner_SpeedTruncatedNotClamped(t *testing.T) {
	cfg := config.MustLoad("")
	// Floor at the mean: half of every raw draw falls below it.
	cfg.Spawn.MinSpeed = cfg.Spawn.SpeedMean
	sp := NewSpawner(cfg, 3)
	s := spawnScenario(scenario.Once)
	s.Sources[0].Spawn.Count = 4000

	got := sp.Draw(nil, s, 0)
	speeds := make([]float64, len(got))
	atFloor := 0
	for i, p := range got {
		assert.GreaterOrEqual(t, p.Speed, cfg.Spawn.MinSpeed)
		if p.Speed == cfg.Spawn.MinSpeed {
			atFloor++
		}
		speeds[i] = p.Speed
	}
	assert.Zero(t, atFloor, "no probability mass piles up on the floor")
	// Half-normal mean: mu + sigma*sqrt(2/pi). Clamping would give
	// mu + sigma/sqrt(2*pi) ~ 1.444.
	assert.InDelta(t, 1.5475, stat.Mean(speeds, nil), 0.02)
}

func TestSpawner_SpeedFloorUnreachable(t *testing.T) {
	cfg := config.MustLoad("")
	cfg.Spawn.MinSpeed = 10
	sp := NewSpawner(cfg, 1)
	s := spawnScenario(scenario.Once)

	for _, p := range sp.Draw(nil, s, 0) {
		assert.Equal(t, 10.0, p.Speed)
	}
}
