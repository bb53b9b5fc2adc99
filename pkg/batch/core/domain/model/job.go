package model

import (
	"fmt"
	"path/filepath"
)

// JobState is the lifecycle state of a job.
type JobState string

const (
	JobStatePending    JobState = "PENDING"
	JobStateDispatched JobState = "DISPATCHED"
	JobStateComplete   JobState = "COMPLETE"
	JobStateError      JobState = "ERROR"
	JobStateUnknown    JobState = "UNKNOWN"
)

// String returns the string representation of the JobState.
func (s JobState) String() string {
	return string(s)
}

// IsTerminal reports whether no further transition can occur.
func (s JobState) IsTerminal() bool {
	return s == JobStateComplete || s == JobStateError
}

// StateFromClassification maps the (complete, error) pair of a classification to a JobState.
func StateFromClassification(complete, failed bool) JobState {
	switch {
	case complete:
		return JobStateComplete
	case failed:
		return JobStateError
	default:
		return JobStateUnknown
	}
}

// Job is one simulation run: a checkpoint of a workload under a trial's configuration.
type Job struct {
	Workload       string
	CheckpointPath string
	InstCount      string // InstCount is taken verbatim from the checkpoint filename.
	Weight         string // Weight is taken verbatim from the checkpoint filename.
	TrialName      string
	ScriptPath     string
	Params         []string
	OutputDir      string
}

// JobOutputDir returns <base>/<trial>/<workload>_<inst>_<weight>.
func JobOutputDir(baseDir, trialName, workload, instCount, weight string) string {
	return filepath.Join(baseDir, trialName, fmt.Sprintf("%s_%s_%s", workload, instCount, weight))
}

// Fingerprint identifies the job for resume and deduplication.
// Two jobs with the same fingerprint are the same job.
func (j Job) Fingerprint() string {
	return j.OutputDir
}

// Checkpoint is a checkpoint file selected for a workload.
type Checkpoint struct {
	Path      string
	InstCount string
	Weight    string
}

// Workload is a named set of checkpoints to simulate.
type Workload struct {
	Name        string
	Checkpoints []Checkpoint
}

// IssueReport summarizes one Issue call.
type IssueReport struct {
	TrialName  string
	Total      int
	Dispatched int
	Skipped    int
	Placements map[string]string // Placements maps fingerprint to host.
	Failed     []error
}
