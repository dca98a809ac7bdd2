package telemetry

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gocarina/gocsv"

	"github.com/pthm-cable/pedoni/config"
)

// csvFile is an output CSV that writes its header on first use.
type csvFile struct {
	name          string
	f             *os.File
	headerWritten bool
}

func write[T any](c *csvFile, records []T) error {
	if len(records) == 0 {
		return nil
	}
	if !c.headerWritten {
		// First write includes headers
		if err := gocsv.Marshal(records, c.f); err != nil {
			return fmt.Errorf("writing %s: %w", c.name, err)
		}
		c.headerWritten = true
		return nil
	}
	if err := gocsv.MarshalWithoutHeaders(records, c.f); err != nil {
		return fmt.Errorf("writing %s: %w", c.name, err)
	}
	return nil
}

// OutputManager handles structured run output with CSV logging.
type OutputManager struct {
	dir          string
	crowd        *csvFile
	perf         *csvFile
	steps        *csvFile
	trajectories *csvFile
	bookmarks    *csvFile
}

// NewOutputManager creates a new output manager and initializes the output directory.
// Returns nil if dir is empty (output disabled); every method is safe on nil.
func NewOutputManager(dir string) (*OutputManager, error) {
	if dir == "" {
		return nil, nil
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	om := &OutputManager{dir: dir}
	for _, slot := range []struct {
		dst  **csvFile
		name string
	}{
		{&om.crowd, "crowd.csv"},
		{&om.perf, "perf.csv"},
		{&om.steps, "steps.csv"},
		{&om.trajectories, "trajectories.csv"},
		{&om.bookmarks, "bookmarks.csv"},
	} {
		f, err := os.Create(filepath.Join(dir, slot.name))
		if err != nil {
			om.Close()
			return nil, fmt.Errorf("creating %s: %w", slot.name, err)
		}
		*slot.dst = &csvFile{name: slot.name, f: f}
	}

	return om, nil
}

// WriteConfig saves the effective configuration as YAML.
func (om *OutputManager) WriteConfig(cfg *config.Config) error {
	if om == nil {
		return nil
	}
	return cfg.WriteYAML(filepath.Join(om.dir, "config.yaml"))
}

// WriteCrowd writes a window stats record to crowd.csv.
func (om *OutputManager) WriteCrowd(stats CrowdStats) error {
	if om == nil {
		return nil
	}
	return write(om.crowd, []CrowdStats{stats})
}

// WritePerf writes a performance stats record to perf.csv.
func (om *OutputManager) WritePerf(stats PerfStats, windowEnd int32) error {
	if om == nil {
		return nil
	}
	return write(om.perf, []PerfStatsCSV{stats.ToCSV(windowEnd)})
}

// WriteStep writes a per-tick timing record to steps.csv.
func (om *OutputManager) WriteStep(m StepMetrics) error {
	if om == nil {
		return nil
	}
	return write(om.steps, []StepMetrics{m})
}

// WriteTrajectories appends every pedestrian in snap to trajectories.csv.
func (om *OutputManager) WriteTrajectories(snap *Snapshot) error {
	if om == nil || snap == nil {
		return nil
	}
	return write(om.trajectories, snap.Rows())
}

// WriteBookmark writes a bookmark record to bookmarks.csv.
func (om *OutputManager) WriteBookmark(b Bookmark) error {
	if om == nil {
		return nil
	}
	return write(om.bookmarks, []Bookmark{b})
}

// WriteSnapshot saves snap as JSON under the snapshots directory.
func (om *OutputManager) WriteSnapshot(snap *Snapshot) (string, error) {
	if om == nil || snap == nil {
		return "", nil
	}
	return SaveSnapshot(snap, filepath.Join(om.dir, "snapshots"))
}

// Dir returns the output directory path.
func (om *OutputManager) Dir() string {
	if om == nil {
		return ""
	}
	return om.dir
}

// Close flushes and closes all output files.
func (om *OutputManager) Close() error {
	if om == nil {
		return nil
	}

	var errs []error
	for _, c := range []*csvFile{om.crowd, om.perf, om.steps, om.trajectories, om.bookmarks} {
		if c == nil || c.f == nil {
			continue
		}
		if err := c.f.Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s: %w", c.name, err))
		}
		c.f = nil
	}
	return errors.Join(errs...)
}
