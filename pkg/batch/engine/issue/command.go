package issue

import (
	"fmt"
	"strings"

	shellquote "github.com/kballard/go-shellquote"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
)

// CommandBuilder renders the remote shell command that launches one job.
type CommandBuilder struct {
	exports        []config.EnvExport
	simBin         string
	launchArgs     []string
	checkpointFlag string
}

// NewCommandBuilder creates a CommandBuilder from the environment and running settings.
func NewCommandBuilder(cfg *config.Config) *CommandBuilder {
	return &CommandBuilder{
		exports:        cfg.Sweep.Environment.Exports(),
		simBin:         cfg.SimBinPath(),
		launchArgs:     cfg.Sweep.Running.LaunchArgs,
		checkpointFlag: cfg.Sweep.Running.CheckpointFlag,
	}
}

// Build returns the command for job: environment exports, output directory setup and a detached
// simulator invocation, joined by "; ". Every value is shell-quoted.
func (b *CommandBuilder) Build(job model.Job) string {
	parts := make([]string, 0, len(b.exports)+3)
	for _, e := range b.exports {
		parts = append(parts, fmt.Sprintf("export %s=%s", e.Type, shellquote.Join(e.Path)))
	}
	dir := shellquote.Join(job.OutputDir)
	parts = append(parts, "mkdir -p "+dir, "cd "+dir)

	argv := make([]string, 0, len(b.launchArgs)+len(job.Params)+3)
	argv = append(argv, b.simBin)
	argv = append(argv, b.launchArgs...)
	argv = append(argv, job.ScriptPath)
	if b.checkpointFlag != "" {
		argv = append(argv, b.checkpointFlag+"="+job.CheckpointPath)
	} else {
		argv = append(argv, job.CheckpointPath)
	}
	argv = append(argv, job.Params...)
	parts = append(parts, "nohup "+shellquote.Join(argv...)+" > /dev/null 2>&1 &")

	return strings.Join(parts, "; ")
}
