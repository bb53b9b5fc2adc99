// Package app wires the simsweep packages with fx and exposes them as cobra commands.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	gormadapter "github.com/tigerroll/simsweep/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/simsweep/pkg/batch/adapter/database/gorm/mysql"
	_ "github.com/tigerroll/simsweep/pkg/batch/adapter/database/gorm/postgres"
	_ "github.com/tigerroll/simsweep/pkg/batch/adapter/database/gorm/sqlite"
	checkpoint "github.com/tigerroll/simsweep/pkg/batch/component/checkpoint"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	dispatch "github.com/tigerroll/simsweep/pkg/batch/engine/dispatch"
	issue "github.com/tigerroll/simsweep/pkg/batch/engine/issue"
	monitor "github.com/tigerroll/simsweep/pkg/batch/engine/monitor"
	optimize "github.com/tigerroll/simsweep/pkg/batch/engine/optimize"
	runner "github.com/tigerroll/simsweep/pkg/batch/engine/runner"
	runstate "github.com/tigerroll/simsweep/pkg/batch/engine/runstate"
	score "github.com/tigerroll/simsweep/pkg/batch/engine/score"
	metricsinfra "github.com/tigerroll/simsweep/pkg/batch/infrastructure/metrics"
	probe "github.com/tigerroll/simsweep/pkg/batch/infrastructure/probe"
	remote "github.com/tigerroll/simsweep/pkg/batch/infrastructure/remote"
	repository "github.com/tigerroll/simsweep/pkg/batch/infrastructure/repository"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// stopTimeout bounds the fx OnStop hooks.
const stopTimeout = 15 * time.Second

// baseModules are needed by every command that builds a graph.
var baseModules = fx.Options(
	logger.Module,
	config.Module,
	metricsinfra.Module,
)

// nodeModules reach the compute nodes.
var nodeModules = fx.Options(
	remote.Module,
	probe.Module,
)

// trialModules issue, monitor and score trials.
var trialModules = fx.Options(
	nodeModules,
	dispatch.Module,
	runstate.Module,
	issue.Module,
	monitor.Module,
	score.Module,
	runner.Module,
	fx.Provide(func(cfg *config.Config) *checkpoint.Discoverer {
		return checkpoint.NewDiscoverer(cfg.Sweep.Workloads)
	}),
)

// historyModules open the optimization history.
var historyModules = fx.Options(
	gormadapter.Module,
	repository.Module,
)

// optimizeModules run the optimization loop.
var optimizeModules = fx.Options(
	trialModules,
	historyModules,
	optimize.Module,
)

// startApp builds and starts an fx graph for cfg, filling targets through fx.Populate.
// The returned stop function runs the OnStop hooks.
func startApp(ctx context.Context, cfg *config.Config, modules fx.Option, targets ...interface{}) (func(), error) {
	app := fx.New(
		fx.Supply(cfg),
		baseModules,
		modules,
		fx.Populate(targets...),
	)
	if err := app.Err(); err != nil {
		return nil, fmt.Errorf("failed to build application: %w", err)
	}
	if err := app.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start application: %w", err)
	}
	return func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		defer cancel()
		if err := app.Stop(stopCtx); err != nil {
			logger.Errorf("Failed to stop application cleanly: %v", err)
		}
	}, nil
}
