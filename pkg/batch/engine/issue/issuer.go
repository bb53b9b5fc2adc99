// Package issue expands trials into jobs and dispatches them.
package issue

import (
	"context"
	"fmt"
	"os"
	"sync"

	"golang.org/x/sync/errgroup"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// Issuer implements port.BatchIssuer.
type Issuer struct {
	placer      port.Placer
	classifier  port.JobClassifier
	builder     *CommandBuilder
	baseDir     string
	concurrency int
	recorder    metrics.MetricRecorder

	mkdirAll func(path string, perm os.FileMode) error
}

// NewIssuer creates an Issuer writing job output under baseDir.
func NewIssuer(placer port.Placer, classifier port.JobClassifier, builder *CommandBuilder, baseDir string, concurrency int, recorder metrics.MetricRecorder) *Issuer {
	if concurrency <= 0 {
		concurrency = 1
	}
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Issuer{
		placer:      placer,
		classifier:  classifier,
		builder:     builder,
		baseDir:     baseDir,
		concurrency: concurrency,
		recorder:    recorder,
		mkdirAll:    os.MkdirAll,
	}
}

// Jobs expands trial into one job per selected checkpoint. Duplicate fingerprints are dropped.
func (i *Issuer) Jobs(trial model.Trial, workloads []model.Workload) []model.Job {
	seen := map[string]bool{}
	var jobs []model.Job
	for _, wl := range workloads {
		for _, cpt := range wl.Checkpoints {
			j := model.Job{
				Workload:       wl.Name,
				CheckpointPath: cpt.Path,
				InstCount:      cpt.InstCount,
				Weight:         cpt.Weight,
				TrialName:      trial.Name,
				ScriptPath:     trial.ScriptPath,
				Params:         trial.Params,
				OutputDir:      model.JobOutputDir(i.baseDir, trial.Name, wl.Name, cpt.InstCount, cpt.Weight),
			}
			if seen[j.Fingerprint()] {
				continue
			}
			seen[j.Fingerprint()] = true
			jobs = append(jobs, j)
		}
	}
	return jobs
}

// Issue dispatches every job of trial. With resume set, jobs whose output already classifies
// Complete are skipped. A failing job is recorded in the report and never stops its siblings;
// only ctx cancellation aborts, returning the partial report with ctx's error.
func (i *Issuer) Issue(ctx context.Context, trial model.Trial, workloads []model.Workload, nodes []string, maxPerNode int, resume bool) (model.IssueReport, error) {
	jobs := i.Jobs(trial, workloads)
	report := model.IssueReport{
		TrialName:  trial.Name,
		Total:      len(jobs),
		Placements: make(map[string]string),
	}

	var mu sync.Mutex
	fail := func(j model.Job, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Failed = append(report.Failed, &exception.JobError{Fingerprint: j.Fingerprint(), Err: err})
	}

	var g errgroup.Group
	g.SetLimit(i.concurrency)
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		if resume {
			if complete, _ := i.classifier.Classify(j.OutputDir); complete {
				logger.Debugf("Issuer: skipping %s, already complete.", j.Fingerprint())
				mu.Lock()
				report.Skipped++
				mu.Unlock()
				continue
			}
		}
		if err := i.mkdirAll(j.OutputDir, 0o755); err != nil {
			logger.Errorf("Issuer: cannot create output directory %s: %v", j.OutputDir, err)
			fail(j, fmt.Errorf("create output directory: %w", err))
			continue
		}

		command := i.builder.Build(j)
		g.Go(func() error {
			host, err := i.placer.Place(ctx, j, command, nodes, maxPerNode)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				logger.Errorf("Issuer: job %s was not placed: %v", j.Fingerprint(), err)
				fail(j, err)
				return nil
			}
			mu.Lock()
			report.Placements[j.Fingerprint()] = host
			report.Dispatched++
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	i.recorder.RecordIssue(ctx, report)
	logger.Infof("Issuer: trial '%s': %d jobs, %d dispatched, %d skipped, %d failed.",
		trial.Name, report.Total, report.Dispatched, report.Skipped, len(report.Failed))
	return report, err
}

// TrialFromArch builds the trial of a fixed architecture configuration.
func TrialFromArch(cfg *config.Config, arch config.ArchConfig) model.Trial {
	return model.Trial{
		Name:       arch.Name,
		ScriptPath: cfg.ScriptPath(arch.ScriptFile),
		Params:     append([]string(nil), arch.ScriptParams...),
	}
}

var _ port.BatchIssuer = (*Issuer)(nil)
