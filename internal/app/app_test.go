package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	filerepo "github.com/tigerroll/simsweep/pkg/batch/infrastructure/repository/file"
)

// writeConfig writes a sweep document whose output directory is outDir.
func writeConfig(t *testing.T, outDir, extra string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sweep.yaml")
	doc := "sweep:\n" +
		"  running:\n" +
		"    output_base_dir: " + outDir + "\n" +
		extra
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestConfigPrint_MasksPasswords(t *testing.T) {
	path := writeConfig(t, t.TempDir(), ""+
		"  database:\n"+
		"    history:\n"+
		"      type: postgres\n"+
		"      user: sweep\n"+
		"      password: hunter2\n")

	out, err := execute(t, "-c", path, "config", "print")
	require.NoError(t, err)
	assert.Contains(t, out, "********")
	assert.NotContains(t, out, "hunter2")

	out, err = execute(t, "-c", path, "config", "print", "--format", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"Password": "********"`)
}

func TestConfigPrint_MissingFile(t *testing.T) {
	_, err := execute(t, "-c", filepath.Join(t.TempDir(), "absent.yaml"), "config", "print")
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestHistoryList_RanksByMagnitude(t *testing.T) {
	outDir := t.TempDir()
	record := model.NewOptimizationRecord("l2-sweep", "run-1", []string{"l2_size", "rob_entries"})
	for i, s := range []float64{-10.5, -12.25, -3} {
		record.Append(model.Observation{
			Point:      []any{"1MB", 32 * (i + 1)},
			Score:      s,
			TrialName:  []string{"config_a", "config_b", "config_c"}[i],
			RecordedAt: time.Date(2026, 3, 1, 12, i, 0, 0, time.UTC),
		})
	}
	historyPath := filepath.Join(outDir, "optimize_checkpoint.yaml")
	require.NoError(t, filerepo.NewHistoryRepository(historyPath).Save(context.Background(), record))

	path := writeConfig(t, outDir, ""+
		"  optimization:\n"+
		"    name: l2-sweep\n")

	out, err := execute(t, "-c", path, "history", "list", "-n", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "study l2-sweep: 3 observations")
	assert.Regexp(t, `(?s)1\s+12\.25\s+config_b\s+1MB\s+64.*2\s+10\.5\s+config_a`, out)
	assert.NotContains(t, out, "config_c")

	_, err = execute(t, "-c", path, "history", "list", "--study", "unknown")
	assert.Error(t, err)
}

func TestHistoryExport_YAMLToStdout(t *testing.T) {
	outDir := t.TempDir()
	record := model.NewOptimizationRecord("l2-sweep", "run-1", []string{"l2_size"})
	record.Append(model.Observation{Point: []any{"2MB"}, Score: -7.5, TrialName: "config_2MB"})
	require.NoError(t, filerepo.NewHistoryRepository(filepath.Join(outDir, "optimize_checkpoint.yaml")).Save(context.Background(), record))

	path := writeConfig(t, outDir, "  optimization:\n    name: l2-sweep\n")
	out, err := execute(t, "-c", path, "history", "export")
	require.NoError(t, err)
	assert.Contains(t, out, "trial_name: config_2MB")
	assert.Contains(t, out, "score: 7.5")

	_, err = execute(t, "-c", path, "history", "export", "--format", "parquet")
	assert.ErrorContains(t, err, "needs --output")
}

func TestStatus_SummarizesTrials(t *testing.T) {
	outDir := t.TempDir()
	ok := filepath.Join(outDir, "config_a", "wl_1_0.5")
	bad := filepath.Join(outDir, "config_a", "wl_2_0.3")
	for _, dir := range []string{ok, bad} {
		require.NoError(t, os.MkdirAll(dir, 0o755))
	}
	require.NoError(t, os.WriteFile(filepath.Join(ok, "simout"), []byte("Exiting @ tick 1 because m5_exit instruction encountered\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ok, "simerr"), nil, 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bad, "simout"), []byte("starting\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(bad, "simerr"), []byte("gem5 has encountered a segmentation fault!\n"), 0o644))

	path := writeConfig(t, outDir, "")
	out, err := execute(t, "-c", path, "status", "--errors")
	require.NoError(t, err)
	assert.Regexp(t, `config_a\s+1\s+1\s+0\s+2\s+true`, out)
	assert.Contains(t, out, "config_a: "+bad)
}

func TestNodeKill_RequiresConfirmation(t *testing.T) {
	path := writeConfig(t, t.TempDir(), "  servers: [node1]\n")
	_, err := execute(t, "-c", path, "node", "kill")
	assert.ErrorContains(t, err, "--yes")
}

func TestExecute_ExitCodes(t *testing.T) {
	run := func(args ...string) (int, string) {
		cmd := NewRootCommand()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		cmd.SetArgs(args)
		return Execute(context.Background(), cmd), out.String()
	}

	path := writeConfig(t, t.TempDir(), "  servers: [node1]\n")
	code, _ := run("-c", path, "config", "print")
	assert.Equal(t, ExitOK, code)

	code, out := run("-c", filepath.Join(t.TempDir(), "absent.yaml"), "config", "print")
	assert.Equal(t, ExitFatal, code, "a config failure is fatal")
	assert.Contains(t, out, "Error: ")

	code, _ = run("-c", path, "node", "kill")
	assert.Equal(t, ExitFailure, code)
}

func TestSelectHosts(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, selectHosts([]string{"a", "b"}, nil))
	assert.Equal(t, []string{"c"}, selectHosts([]string{"a", "b"}, []string{"c"}))
}
