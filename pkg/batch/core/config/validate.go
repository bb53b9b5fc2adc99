package config

import (
	"fmt"
	"regexp"
	"text/template"

	"github.com/hashicorp/go-multierror"

	"github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
)

var knownHistoryTypes = map[string]bool{"file": true, "database": true}
var knownExporters = map[string]bool{"": true, "none": true, "otlp-http": true, "otlp-grpc": true}

// Validate checks settings every command relies on. All problems are reported together.
func (c *Config) Validate() error {
	var result *multierror.Error
	s := &c.Sweep

	if s.Running.OutputBaseDir == "" {
		result = multierror.Append(result, fmt.Errorf("running.output_base_dir is required"))
	}
	if s.Running.MaxProcPerServer < 0 {
		result = multierror.Append(result, fmt.Errorf("running.max_proc_per_server must not be negative, got %d", s.Running.MaxProcPerServer))
	}
	if s.Running.DispatchConcurrency <= 0 {
		result = multierror.Append(result, fmt.Errorf("running.dispatch_concurrency must be positive, got %d", s.Running.DispatchConcurrency))
	}
	if s.RunState.StdoutFile == "" || s.RunState.StderrFile == "" {
		result = multierror.Append(result, fmt.Errorf("runstate.stdout_file and runstate.stderr_file are required"))
	}
	for _, m := range append(append([]string(nil), s.RunState.SuccessMarkers...), s.RunState.FailureMarkers...) {
		if _, err := regexp.Compile(m); err != nil {
			result = multierror.Append(result, fmt.Errorf("runstate marker %q: %w", m, err))
		}
	}
	if s.Monitor.PollingIntervalSeconds <= 0 {
		result = multierror.Append(result, fmt.Errorf("monitor.polling_interval_seconds must be positive"))
	}
	if re, err := regexp.Compile(s.Scoring.Pattern); err != nil {
		result = multierror.Append(result, fmt.Errorf("scoring.pattern: %w", err))
	} else if re.NumSubexp() < 1 {
		result = multierror.Append(result, fmt.Errorf("scoring.pattern must contain a capture group"))
	}
	if _, err := template.New("score").Funcs(template.FuncMap{"quote": func(string) string { return "" }}).Parse(s.Scoring.CommandTemplate); err != nil {
		result = multierror.Append(result, fmt.Errorf("scoring.command_template: %w", err))
	}
	if !knownHistoryTypes[s.Optimization.History.Type] {
		result = multierror.Append(result, fmt.Errorf("optimization.history.type must be \"file\" or \"database\", got %q", s.Optimization.History.Type))
	}
	if s.Optimization.History.Type == "database" {
		if _, ok := s.Database[s.Optimization.History.DBRef]; !ok {
			result = multierror.Append(result, fmt.Errorf("optimization.history.db_ref %q has no entry under database", s.Optimization.History.DBRef))
		}
	}
	if !knownExporters[s.Metrics.Tracing.Exporter] {
		result = multierror.Append(result, fmt.Errorf("metrics.tracing.exporter %q is not supported", s.Metrics.Tracing.Exporter))
	}
	if !knownExporters[s.Metrics.OTLP.Exporter] {
		result = multierror.Append(result, fmt.Errorf("metrics.otlp.exporter %q is not supported", s.Metrics.OTLP.Exporter))
	}

	if err := result.ErrorOrNil(); err != nil {
		return exception.NewConfigError("invalid configuration", err)
	}
	return nil
}

// ValidateForDispatch adds the checks needed by commands that launch jobs.
func (c *Config) ValidateForDispatch() error {
	var result *multierror.Error
	if err := c.Validate(); err != nil {
		result = multierror.Append(result, err)
	}
	s := &c.Sweep
	if len(s.Servers) == 0 {
		result = multierror.Append(result, fmt.Errorf("servers must list at least one node"))
	}
	if s.Running.SimBin == "" {
		result = multierror.Append(result, fmt.Errorf("running.sim_bin is required"))
	}
	if s.Workloads.WorkloadsPath == "" {
		result = multierror.Append(result, fmt.Errorf("workloads.workloads_path is required"))
	}
	if len(s.Workloads.WorkloadList) == 0 {
		result = multierror.Append(result, fmt.Errorf("workloads.workload_list must not be empty"))
	}
	if s.Workloads.RunWeight <= 0 {
		result = multierror.Append(result, fmt.Errorf("workloads.run_weight must be positive"))
	}
	if s.Dispatch.ProbeTimeoutSeconds <= 0 {
		result = multierror.Append(result, fmt.Errorf("dispatch.probe_timeout_seconds must be positive"))
	}
	if s.Dispatch.Retry.InitialInterval <= 0 {
		result = multierror.Append(result, fmt.Errorf("dispatch.retry.initial_interval must be positive"))
	}
	for i, a := range s.Archs {
		if a.Name == "" || a.ScriptFile == "" {
			result = multierror.Append(result, fmt.Errorf("archs[%d] needs name and script_file", i))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return exception.NewConfigError("invalid configuration for dispatch", err)
	}
	return nil
}
