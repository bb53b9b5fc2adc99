// Package port defines the interfaces between simsweep components.
// Engines depend on these ports, never on concrete infrastructure, so tests can
// substitute mocks for remote nodes and storage.
package port

import (
	"context"
	"time"

	"github.com/tigerroll/simsweep/pkg/batch/core/config"
	"github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
)

// RemoteExecutor runs shell commands on a compute node.
type RemoteExecutor interface {
	// Run executes cmd on host and returns its combined output.
	// A non-zero exit status is an error; the output is still returned.
	Run(ctx context.Context, host, cmd string) ([]byte, error)
	// Start launches cmd on host without waiting for it to finish.
	// It returns once the remote shell accepted the command.
	Start(ctx context.Context, host, cmd string) error
}

// NodeProber reads the live capacity of one node.
type NodeProber interface {
	// Probe returns the node's snapshot or an *exception.ProbeFailure. It never retries.
	Probe(ctx context.Context, host string) (model.NodeSnapshot, error)
}

// Placer places one job on the first admissible node.
type Placer interface {
	// Place blocks until the job's command was submitted to a node, and returns that node.
	Place(ctx context.Context, job model.Job, command string, nodes []string, maxPerNode int) (string, error)
}

// JobClassifier derives a job's terminal state from its output directory.
type JobClassifier interface {
	Classify(outputDir string) (complete bool, failed bool)
}

// TreeScanner aggregates classification over a trial's output tree.
type TreeScanner interface {
	ScanTree(root string) (model.RunSummary, error)
}

// BatchIssuer expands a trial into jobs and dispatches them.
type BatchIssuer interface {
	Issue(ctx context.Context, trial model.Trial, workloads []model.Workload, nodes []string, maxPerNode int, resume bool) (model.IssueReport, error)
}

// ProgressMonitor waits for trials to finish.
type ProgressMonitor interface {
	// AwaitAll blocks until every named trial under baseDir is finished and returns their names.
	AwaitAll(ctx context.Context, trialNames []string, baseDir string, pollInterval time.Duration) ([]string, error)
}

// TrialScorer runs the external scoring step for a finished trial.
type TrialScorer interface {
	// Score produces the trial's report and returns its path.
	Score(ctx context.Context, trialName, baseDir string, env config.EnvironmentConfig) (string, error)
	// ExtractScore returns the reported score, or 0 when the report has none.
	ExtractScore(reportPath string) float64
}

// HistoryRepository persists the optimization record of a study.
type HistoryRepository interface {
	// Load returns the stored record, or (nil, nil) when the study has no history.
	Load(ctx context.Context, study string) (*model.OptimizationRecord, error)
	// Save replaces the stored record atomically. Failures are *exception.PersistenceFailure.
	Save(ctx context.Context, record *model.OptimizationRecord) error
	Close() error
}
