package serialization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
)

func TestMaskedConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Sweep.Database["history"] = config.DatabaseConfig{Type: "postgres", User: "sweep", Password: "hunter2"}
	cfg.Sweep.Database["local"] = config.DatabaseConfig{Type: "sqlite", Database: "h.db"}

	masked := MaskedConfig(cfg)
	assert.Equal(t, Mask, masked.Sweep.Database["history"].Password)
	assert.Equal(t, "", masked.Sweep.Database["local"].Password)
	assert.Equal(t, "hunter2", cfg.Sweep.Database["history"].Password, "the source config must stay intact")
}

func TestMarshalConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Sweep.Database["history"] = config.DatabaseConfig{Type: "mysql", Password: "hunter2"}

	out, err := MarshalConfig(cfg, "yaml")
	require.NoError(t, err)
	assert.Contains(t, string(out), Mask)
	assert.NotContains(t, string(out), "hunter2")

	out, err = MarshalConfig(cfg, "json")
	require.NoError(t, err)
	assert.NotContains(t, string(out), "hunter2")

	_, err = MarshalConfig(cfg, "toml")
	assert.Error(t, err)
}
