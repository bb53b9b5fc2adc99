// Package optimize searches an architecture parameter space for the configuration
// with the highest score, one trial at a time, with a resumable history.
package optimize

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
	runner "github.com/tigerroll/simsweep/pkg/batch/engine/runner"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// TrialRunner runs trials to their score. *runner.Runner implements it.
type TrialRunner interface {
	Run(ctx context.Context, trials []model.Trial, workloads []model.Workload) ([]runner.TrialResult, error)
}

// LoopConfig holds the study settings.
type LoopConfig struct {
	Study          string
	ScriptPath     string
	BaseParams     []string
	ConstantParams []string
	NCalls         int
	Optimizer      OptimizerConfig
}

// LoopConfigFromConfig extracts the study settings from cfg.
func LoopConfigFromConfig(cfg *config.Config) LoopConfig {
	oc := cfg.Sweep.Optimization
	script := oc.ScriptFile
	base := oc.BaseParams
	if script == "" && len(cfg.Sweep.Archs) > 0 {
		// The first arch provides the script and base parameters.
		script = cfg.Sweep.Archs[0].ScriptFile
		if len(base) == 0 {
			base = cfg.Sweep.Archs[0].ScriptParams
		}
	}
	return LoopConfig{
		Study:          oc.Name,
		ScriptPath:     cfg.ScriptPath(script),
		BaseParams:     append([]string(nil), base...),
		ConstantParams: append([]string(nil), oc.ConstantParams...),
		NCalls:         oc.NCalls,
		Optimizer: OptimizerConfig{
			NInitialPoints: oc.NInitialPoints,
			RandomState:    oc.RandomState,
			Kappa:          oc.Kappa,
			AcqSamples:     oc.AcqSamples,
		},
	}
}

// Result is the outcome of a finished study.
type Result struct {
	Record    *model.OptimizationRecord
	Best      model.Observation
	Evaluated int
}

// Loop is the optimization state machine.
type Loop struct {
	cfg      LoopConfig
	space    *Space
	trials   TrialRunner
	history  port.HistoryRepository
	recorder metrics.MetricRecorder
	now      func() time.Time
}

// NewLoop creates a Loop.
func NewLoop(cfg LoopConfig, space *Space, trials TrialRunner, history port.HistoryRepository, recorder metrics.MetricRecorder) *Loop {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &Loop{
		cfg:      cfg,
		space:    space,
		trials:   trials,
		history:  history,
		recorder: recorder,
		now:      time.Now,
	}
}

// Trial materializes the trial evaluated at point.
func (l *Loop) Trial(point []any) model.Trial {
	values := l.space.Format(point)
	params := make([]string, 0, len(l.cfg.BaseParams)+len(l.cfg.ConstantParams)+len(values))
	params = append(params, l.cfg.BaseParams...)
	params = append(params, l.cfg.ConstantParams...)
	for i, d := range l.space.Dimensions {
		params = append(params, d.Name+"="+values[i])
	}
	return model.Trial{
		Name:       "config_" + strings.Join(values, "_"),
		Point:      point,
		ScriptPath: l.cfg.ScriptPath,
		Params:     params,
	}
}

// Run resumes the study from its history and evaluates points until the history holds NCalls observations.
// The record is saved after every observation; a save failure stops the loop.
func (l *Loop) Run(ctx context.Context, workloads []model.Workload) (*Result, error) {
	record, err := l.load(ctx)
	if err != nil {
		return nil, err
	}

	optCfg := l.cfg.Optimizer
	if record.Len() > 0 {
		optCfg.NInitialPoints = 0
	}
	opt := NewOptimizer(l.space, optCfg)
	for _, o := range record.Observations {
		opt.Tell(o.Point, o.Score)
	}

	resumed := opt.Told()
	logger.Infof("Optimizer: study '%s' has %d of %d evaluations (%d initial random points).", l.cfg.Study, resumed, l.cfg.NCalls, optCfg.NInitialPoints)

	for record.Len() < l.cfg.NCalls {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		point := opt.Ask()
		trial := l.Trial(point)
		logger.Infof("Optimizer: evaluation %d/%d, trial '%s' params %v.", record.Len()+1, l.cfg.NCalls, trial.Name, trial.Params[len(trial.Params)-len(point):])

		start := time.Now()
		results, err := l.trials.Run(ctx, []model.Trial{trial}, workloads)
		if err != nil {
			return nil, fmt.Errorf("run trial %s: %w", trial.Name, err)
		}
		score := 0.0
		if len(results) > 0 {
			score = results[0].Score
		}

		obs := model.Observation{
			Point:      point,
			Score:      -score,
			TrialName:  trial.Name,
			RecordedAt: l.now(),
		}
		record.Append(obs)
		record.UpdatedAt = obs.RecordedAt
		if err := l.history.Save(ctx, record); err != nil {
			return nil, persistenceFailure("save", err)
		}
		opt.Tell(point, obs.Score)

		best, _ := record.Best()
		l.recorder.RecordObservation(ctx, l.cfg.Study, obs, best.Score)
		l.recorder.RecordDuration(ctx, "trial", time.Since(start), map[string]string{"study": l.cfg.Study})
		logger.Infof("Optimizer: trial '%s' scored %.4f, best so far %.4f (%s).", trial.Name, score, -best.Score, best.TrialName)
	}

	best, ok := record.Best()
	if ok {
		l.logBest(best)
	}
	return &Result{Record: record, Best: best, Evaluated: record.Len() - resumed}, nil
}

func (l *Loop) load(ctx context.Context) (*model.OptimizationRecord, error) {
	record, err := l.history.Load(ctx, l.cfg.Study)
	if err != nil {
		return nil, persistenceFailure("load", err)
	}
	if record == nil {
		record = model.NewOptimizationRecord(l.cfg.Study, uuid.NewString(), l.space.Names())
		logger.Infof("Optimizer: starting study '%s' (run %s).", l.cfg.Study, record.RunID)
		return record, nil
	}

	if names := l.space.Names(); len(record.Dimensions) > 0 && strings.Join(record.Dimensions, "\x00") != strings.Join(names, "\x00") {
		return nil, exception.NewConfigError(fmt.Sprintf("history of study '%s' has dimensions %v, param_space declares %v", l.cfg.Study, record.Dimensions, names), nil)
	}
	for i := range record.Observations {
		p, err := l.space.Normalize(record.Observations[i].Point)
		if err != nil {
			return nil, exception.NewConfigError(fmt.Sprintf("history of study '%s': observation %d", l.cfg.Study, i), err)
		}
		record.Observations[i].Point = p
	}
	logger.Infof("Optimizer: resuming study '%s' (run %s) from %d observations.", l.cfg.Study, record.RunID, record.Len())
	return record, nil
}

func (l *Loop) logBest(best model.Observation) {
	logger.Infof("Optimizer: best trial '%s' with score %.4f:", best.TrialName, -best.Score)
	for i, d := range l.space.Dimensions {
		if i < len(best.Point) {
			logger.Infof("  %s: %s", d.Name, FormatValue(best.Point[i]))
		}
	}
}

func persistenceFailure(op string, err error) error {
	if exception.IsPersistenceFailure(err) {
		return err
	}
	return &exception.PersistenceFailure{Backend: "unknown", Op: op, Err: err}
}
