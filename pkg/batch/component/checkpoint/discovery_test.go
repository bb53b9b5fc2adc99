package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestParseName(t *testing.T) {
	inst, weight, ok := ParseName("_12000000000_0.051245_.zstd")
	require.True(t, ok)
	assert.Equal(t, "12000000000", inst)
	assert.Equal(t, "0.051245", weight)

	inst, weight, ok = ParseName("cpt_300_.5.gz")
	require.True(t, ok)
	assert.Equal(t, "300", inst)
	assert.Equal(t, ".5", weight)

	_, _, ok = ParseName("readme.gz")
	assert.False(t, ok)
}

func TestDiscover_SelectsHeaviestUntilRunWeight(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "gcc_166", "0", "_100_0.5_.zstd"))
	touch(t, filepath.Join(root, "gcc_166", "1", "_200_0.3_.zstd"))
	touch(t, filepath.Join(root, "gcc_166", "2", "_300_0.15_.gz"))
	touch(t, filepath.Join(root, "gcc_166", "3", "_400_0.05_.zstd"))
	touch(t, filepath.Join(root, "gcc_166", "notes.txt"))

	d := NewDiscoverer(config.WorkloadsConfig{WorkloadsPath: root, RunWeight: 0.75})
	wl, err := d.Discover("gcc_166")
	require.NoError(t, err)

	assert.Equal(t, "gcc_166", wl.Name)
	require.Len(t, wl.Checkpoints, 2)
	assert.Equal(t, "0.5", wl.Checkpoints[0].Weight)
	assert.Equal(t, "100", wl.Checkpoints[0].InstCount)
	assert.Equal(t, "0.3", wl.Checkpoints[1].Weight)
}

func TestDiscover_FullWeightTakesAll(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "mcf", "_1_0.6_.gz"))
	touch(t, filepath.Join(root, "mcf", "_2_0.4_.gz"))
	touch(t, filepath.Join(root, "mcf", "_3_0.0_.gz"))

	d := NewDiscoverer(config.WorkloadsConfig{WorkloadsPath: root, RunWeight: 1.0})
	wl, err := d.Discover("mcf")
	require.NoError(t, err)
	assert.Len(t, wl.Checkpoints, 2, "selection stops once the cumulative weight is reached")
}

func TestDiscoverAll_GlobAndMissing(t *testing.T) {
	root := t.TempDir()
	touch(t, filepath.Join(root, "bzip2_a", "_1_0.7_.zstd"))
	touch(t, filepath.Join(root, "bzip2_b", "_2_0.9_.zstd"))

	d := NewDiscoverer(config.WorkloadsConfig{WorkloadsPath: root, RunWeight: 1.0, CheckpointPatterns: []string{"*.zstd"}})
	wls, err := d.DiscoverAll([]string{"bzip2_*", "absent"})
	require.NoError(t, err)
	require.Len(t, wls, 2)

	assert.Equal(t, "bzip2_*", wls[0].Name)
	require.Len(t, wls[0].Checkpoints, 2)
	assert.Equal(t, "0.9", wls[0].Checkpoints[0].Weight)
	assert.Empty(t, wls[1].Checkpoints)
}
