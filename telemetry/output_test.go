package telemetry

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputManager_Disabled(t *testing.T) {
	om, err := NewOutputManager("")
	require.NoError(t, err)
	assert.Nil(t, om)

	// Every method is a no-op on nil
	assert.NoError(t, om.WriteCrowd(CrowdStats{}))
	assert.NoError(t, om.WritePerf(PerfStats{}, 0))
	assert.NoError(t, om.WriteTrajectories(testSnapshot()))
	assert.Equal(t, "", om.Dir())
	assert.NoError(t, om.Close())
}

func TestOutputManager_HeadersOnce(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "run")
	om, err := NewOutputManager(dir)
	require.NoError(t, err)

	require.NoError(t, om.WriteCrowd(CrowdStats{WindowEndTick: 100, Active: 4}))
	require.NoError(t, om.WriteCrowd(CrowdStats{WindowEndTick: 200, Active: 6}))
	require.NoError(t, om.WriteTrajectories(testSnapshot()))
	require.NoError(t, om.WriteStep(StepMetrics{Tick: 1}))
	require.NoError(t, om.Close())

	crowd := readLines(t, filepath.Join(dir, "crowd.csv"))
	require.Len(t, crowd, 3)
	assert.True(t, strings.HasPrefix(crowd[0], "window_end,"), "header: %s", crowd[0])
	assert.True(t, strings.HasPrefix(crowd[2], "200,"), "row: %s", crowd[2])

	traj := readLines(t, filepath.Join(dir, "trajectories.csv"))
	require.Len(t, traj, 3)
	assert.Equal(t, "tick,id,x,y,vx,vy,destination", traj[0])
	assert.True(t, strings.HasPrefix(traj[1], "1000,1,3.5,2.5,"), "row: %s", traj[1])

	assert.Len(t, readLines(t, filepath.Join(dir, "steps.csv")), 2)
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}
