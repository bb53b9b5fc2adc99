package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	"github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

const sampleYAML = `
sweep:
  system:
    logging:
      level: DEBUG
  environment:
    data_proc_home: /opt/gem5_data_proc
    restorer: {type: GCPT_RESTORER, path: /opt/restorer/gcpt.bin}
    ref_so: {type: REF_SO, path: ${SIMSWEEP_TEST_REF_SO}}
  workloads:
    workloads_path: /ckpt/spec06
    workload_list: [gcc_*, mcf]
    run_weight: 0.8
  running:
    sim_bin: /opt/gem5/build/RISCV/gem5.opt
    output_base_dir: /nfs/sweep
    max_proc_per_server: 32
  archs:
    - name: kmh_v3
      script_file: configs/example/xiangshan.py
      script_params: ["--xiangshan-system"]
  servers: [node1, node2]
  optimization:
    param_space:
      - {name: "--l2-size", type: pow2, min_exp: 18, max_exp: 21}
  database:
    history:
      type: sqlite
      database: /tmp/history.db
`

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, "INFO", cfg.Sweep.System.Logging.Level)
	assert.Equal(t, "simout", cfg.Sweep.RunState.StdoutFile)
	assert.Equal(t, "simerr", cfg.Sweep.RunState.StderrFile)
	assert.Equal(t, DefaultSuccessMarkers, cfg.Sweep.RunState.SuccessMarkers)
	assert.Equal(t, 2000, cfg.Sweep.Dispatch.Retry.InitialInterval)
	assert.Equal(t, 50, cfg.Sweep.Optimization.NCalls)
	assert.Equal(t, 10, cfg.Sweep.Optimization.NInitialPoints)
	assert.Equal(t, int64(42), cfg.Sweep.Optimization.RandomState)
	assert.Equal(t, "file", cfg.Sweep.Optimization.History.Type)
	assert.Equal(t, 0, cfg.Sweep.RunState.UnknownTimeoutSeconds)
	assert.Equal(t, 30, cfg.Sweep.RunState.MissingOutputGraceSeconds)
}

func TestLoadConfigBytes_MergesYAMLOverDefaults(t *testing.T) {
	t.Setenv("SIMSWEEP_TEST_REF_SO", "/opt/nemu/riscv64-nemu-so")
	t.Cleanup(func() { logger.SetLogLevel("INFO") })

	cfg, err := LoadConfigBytes([]byte(sampleYAML), "")
	require.NoError(t, err)

	s := cfg.Sweep
	assert.Equal(t, "DEBUG", s.System.Logging.Level)
	assert.Equal(t, 32, s.Running.MaxProcPerServer)
	assert.Equal(t, 4, s.Running.DispatchConcurrency, "unset keys keep defaults")
	assert.Equal(t, []string{"node1", "node2"}, s.Servers)
	assert.Equal(t, "/opt/nemu/riscv64-nemu-so", s.Environment.RefSO.Path)
	assert.Equal(t, []EnvExport{
		{Type: "GCPT_RESTORER", Path: "/opt/restorer/gcpt.bin"},
		{Type: "REF_SO", Path: "/opt/nemu/riscv64-nemu-so"},
	}, s.Environment.Exports())
	assert.Equal(t, "gem5.opt", cfg.ProcessName())
	require.Len(t, s.Optimization.ParamSpace, 1)
	assert.Equal(t, "pow2", s.Optimization.ParamSpace[0]["type"])
	assert.Equal(t, "sqlite", s.Database["history"].Type)
	assert.NoError(t, cfg.ValidateForDispatch())
}

func TestLoadConfigBytes_EnvironmentOverrides(t *testing.T) {
	t.Setenv("SWEEP_RUNNING_MAX_PROC_PER_SERVER", "4")
	t.Setenv("SWEEP_SERVERS", "node7, node8")
	t.Setenv("SWEEP_DISPATCH_RETRY_FACTOR", "1.5")
	t.Setenv("SWEEP_DATABASE_HISTORY_PASSWORD", "s3cret")
	t.Cleanup(func() { logger.SetLogLevel("INFO") })

	cfg, err := LoadConfigBytes([]byte(sampleYAML), "")
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Sweep.Running.MaxProcPerServer)
	assert.Equal(t, []string{"node7", "node8"}, cfg.Sweep.Servers)
	assert.Equal(t, 1.5, cfg.Sweep.Dispatch.Retry.Factor)
	assert.Equal(t, "s3cret", cfg.Sweep.Database["history"].Password)
	assert.Equal(t, "/tmp/history.db", cfg.Sweep.Database["history"].Database, "env override keeps yaml fields")
}

func TestLoadConfigBytes_DotEnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("SWEEP_RUNNING_RESUME=true\n"), 0o644))
	t.Cleanup(func() {
		os.Unsetenv("SWEEP_RUNNING_RESUME")
		logger.SetLogLevel("INFO")
	})

	cfg, err := LoadConfigBytes([]byte(sampleYAML), envFile)
	require.NoError(t, err)
	assert.True(t, cfg.Sweep.Running.Resume)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"), "")

	require.Error(t, err)
	assert.True(t, exception.IsFatal(err))
}

func TestValidate_AggregatesProblems(t *testing.T) {
	cfg := NewConfig()
	cfg.Sweep.Running.DispatchConcurrency = 0
	cfg.Sweep.RunState.FailureMarkers = []string{"("}
	cfg.Sweep.Scoring.Pattern = "no group"
	cfg.Sweep.Optimization.History.Type = "pickle"

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, "output_base_dir is required")
	assert.Contains(t, msg, "dispatch_concurrency must be positive")
	assert.Contains(t, msg, "runstate marker")
	assert.Contains(t, msg, "capture group")
	assert.Contains(t, msg, "\"pickle\"")
}

func TestValidateForDispatch_RequiresServers(t *testing.T) {
	cfg := NewConfig()
	cfg.Sweep.Running.OutputBaseDir = "/nfs/sweep"

	err := cfg.ValidateForDispatch()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "servers must list at least one node")
	assert.Contains(t, err.Error(), "running.sim_bin is required")
}

func TestExpandHome(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".ssh/known_hosts"), ExpandHome("~/.ssh/known_hosts"))
	assert.Equal(t, "/etc/ssh/known_hosts", ExpandHome("/etc/ssh/known_hosts"))
}
