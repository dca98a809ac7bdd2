package telemetry

// Collector accumulates events within time windows and produces CrowdStats.
type Collector struct {
	windowDurationSec   float64
	windowDurationTicks int32
	dt                  float64

	windowStartTick int32

	spawned     int
	arrived     int
	travelTimes []float64
}

// NewCollector creates a new stats collector.
// windowDurationSec: how long each stats window lasts in simulation seconds
// dt: seconds per tick
func NewCollector(windowDurationSec, dt float64) *Collector {
	ticksPerWindow := int32(windowDurationSec / dt)
	if ticksPerWindow < 1 {
		ticksPerWindow = 1
	}

	return &Collector{
		windowDurationSec:   windowDurationSec,
		windowDurationTicks: ticksPerWindow,
		dt:                  dt,
	}
}

// RecordSpawn records n pedestrians entering the simulation.
func (c *Collector) RecordSpawn(n int) {
	c.spawned += n
}

// RecordArrival records a pedestrian leaving after travelTicks ticks.
func (c *Collector) RecordArrival(travelTicks int32) {
	c.arrived++
	c.travelTimes = append(c.travelTimes, float64(travelTicks)*c.dt)
}

// ShouldFlush returns true if enough ticks have passed to flush the window.
func (c *Collector) ShouldFlush(currentTick int32) bool {
	return currentTick-c.windowStartTick >= c.windowDurationTicks
}

// Flush produces a CrowdStats and resets counters for the next window.
// speeds and desired are the current and desired speeds of every active
// pedestrian, index-aligned.
func (c *Collector) Flush(currentTick int32, speeds, desired []float64) CrowdStats {
	sp := Describe(speeds)
	travel := Describe(c.travelTimes)

	var eff float64
	var n int
	for i, v := range speeds {
		if i < len(desired) && desired[i] > 0 {
			eff += v / desired[i]
			n++
		}
	}
	if n > 0 {
		eff /= float64(n)
	}

	var flow float64
	if span := float64(currentTick-c.windowStartTick) * c.dt; span > 0 {
		flow = float64(c.arrived) / span
	}

	stats := CrowdStats{
		WindowStartTick: c.windowStartTick,
		WindowEndTick:   currentTick,
		SimTimeSec:      float64(currentTick) * c.dt,

		Active:  len(speeds),
		Spawned: c.spawned,
		Arrived: c.arrived,
		Flow:    flow,

		TravelMean: travel.Mean,
		TravelP90:  travel.P90,

		SpeedMean: sp.Mean,
		SpeedStd:  sp.Std,
		SpeedP10:  sp.P10,
		SpeedP50:  sp.P50,
		SpeedP90:  sp.P90,

		Efficiency: eff,
	}

	// Reset for next window
	c.windowStartTick = currentTick
	c.spawned = 0
	c.arrived = 0
	c.travelTimes = c.travelTimes[:0]

	return stats
}

// WindowDurationTicks returns the number of ticks per window.
func (c *Collector) WindowDurationTicks() int32 {
	return c.windowDurationTicks
}
