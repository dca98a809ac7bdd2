package telemetry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SnapshotVersion is incremented when the format changes.
const SnapshotVersion = 1

// Snapshot is the crowd state after a committed tick.
type Snapshot struct {
	Version  int     `json:"version"`
	Scenario string  `json:"scenario,omitempty"`
	Width    float64 `json:"width"`
	Height   float64 `json:"height"`

	Tick int32   `json:"tick"`
	Time float64 `json:"time"`

	Pedestrians []PedestrianState `json:"pedestrians"`

	Bookmark *Bookmark `json:"bookmark,omitempty"`
}

// PedestrianState is one pedestrian in a snapshot.
type PedestrianState struct {
	ID          uint32  `json:"id" csv:"id"`
	X           float64 `json:"x" csv:"x"`
	Y           float64 `json:"y" csv:"y"`
	VX          float64 `json:"vx" csv:"vx"`
	VY          float64 `json:"vy" csv:"vy"`
	Destination int32   `json:"destination" csv:"destination"`
}

// TrajectoryRow is one line of trajectories.csv.
type TrajectoryRow struct {
	Tick int32 `csv:"tick"`
	PedestrianState
}

// Rows flattens the snapshot into trajectory rows.
func (s *Snapshot) Rows() []TrajectoryRow {
	rows := make([]TrajectoryRow, len(s.Pedestrians))
	for i, p := range s.Pedestrians {
		rows[i] = TrajectoryRow{Tick: s.Tick, PedestrianState: p}
	}
	return rows
}

// SaveSnapshot writes a snapshot to disk.
// Returns the filepath where it was saved.
func SaveSnapshot(snapshot *Snapshot, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("create snapshot dir: %w", err)
	}

	name := fmt.Sprintf("snapshot_%d", snapshot.Tick)
	if snapshot.Bookmark != nil {
		sanitized := strings.ReplaceAll(string(snapshot.Bookmark.Type), " ", "_")
		name = fmt.Sprintf("snapshot_%d_%s", snapshot.Tick, sanitized)
	}
	name += ".json"

	path := filepath.Join(dir, name)

	data, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("write snapshot: %w", err)
	}

	return path, nil
}

// LoadSnapshot reads a snapshot from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	if snapshot.Version != SnapshotVersion {
		return nil, fmt.Errorf("snapshot version %d, want %d", snapshot.Version, SnapshotVersion)
	}

	return &snapshot, nil
}
