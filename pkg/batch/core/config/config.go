// Package config holds the explicit configuration struct passed to every simsweep component.
// There is no package-level config: constructors receive *Config (directly or through fx).
package config

import (
	"path/filepath"
	"time"
)

// LogLevel defines the logging level for the application.
type LogLevel string

const (
	LogLevelDebug  LogLevel = "DEBUG"
	LogLevelInfo   LogLevel = "INFO"
	LogLevelWarn   LogLevel = "WARN"
	LogLevelError  LogLevel = "ERROR"
	LogLevelSilent LogLevel = "SILENT"
)

// Config is the root of the YAML document.
type Config struct {
	Sweep SweepConfig `yaml:"sweep"`
}

// SweepConfig holds every section of a sweep configuration.
type SweepConfig struct {
	System       SystemConfig              `yaml:"system"`
	Environment  EnvironmentConfig         `yaml:"environment"`
	Workloads    WorkloadsConfig           `yaml:"workloads"`
	Running      RunningConfig             `yaml:"running"`
	Archs        []ArchConfig              `yaml:"archs"`
	Servers      []string                  `yaml:"servers"`
	SSH          SSHConfig                 `yaml:"ssh"`
	Dispatch     DispatchConfig            `yaml:"dispatch"`
	RunState     RunStateConfig            `yaml:"runstate"`
	Monitor      MonitorConfig             `yaml:"monitor"`
	Scoring      ScoringConfig             `yaml:"scoring"`
	Optimization OptimizationConfig        `yaml:"optimization"`
	Database     map[string]DatabaseConfig `yaml:"database"`
	Metrics      MetricsConfig             `yaml:"metrics"`
}

// SystemConfig holds process-wide settings.
type SystemConfig struct {
	Logging LoggingConfig `yaml:"logging"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
}

// EnvExport is an environment variable exported on the remote node before the simulator starts.
type EnvExport struct {
	Type string `yaml:"type"` // Type is the variable name (e.g., "GCPT_RESTORER").
	Path string `yaml:"path"` // Path is the value.
}

// EnvironmentConfig holds installation paths on the compute nodes.
type EnvironmentConfig struct {
	SimHome      string    `yaml:"sim_home"`       // SimHome is the simulator source tree; configs are resolved against it.
	BinHome      string    `yaml:"bin_home"`       // BinHome holds the simulator binaries.
	DataProcHome string    `yaml:"data_proc_home"` // DataProcHome is the checkout of the scoring scripts.
	Restorer     EnvExport `yaml:"restorer"`
	RefSO        EnvExport `yaml:"ref_so"`
}

// Exports returns the configured remote environment exports in a stable order, skipping empty ones.
func (e EnvironmentConfig) Exports() []EnvExport {
	var out []EnvExport
	for _, x := range []EnvExport{e.Restorer, e.RefSO} {
		if x.Type != "" {
			out = append(out, x)
		}
	}
	return out
}

// WorkloadsConfig describes where checkpoints live and which ones to run.
type WorkloadsConfig struct {
	WorkloadsPath      string   `yaml:"workloads_path"`      // WorkloadsPath is the root holding one directory per workload.
	WorkloadList       []string `yaml:"workload_list"`       // WorkloadList names workload directories; glob patterns are allowed.
	RunWeight          float64  `yaml:"run_weight"`          // RunWeight is the cumulative checkpoint weight to select per workload.
	WorkloadVersion    string   `yaml:"workload_version"`    // WorkloadVersion selects the scoring script variant ("spec06" or "spec17").
	CheckpointPatterns []string `yaml:"checkpoint_patterns"` // CheckpointPatterns are basename globs for checkpoint files.
}

// RunningConfig controls how jobs are launched.
type RunningConfig struct {
	SimBin              string   `yaml:"sim_bin"`              // SimBin is the simulator executable path on the nodes.
	LaunchArgs          []string `yaml:"launch_args"`          // LaunchArgs precede the script file on the command line.
	CheckpointFlag      string   `yaml:"checkpoint_flag"`      // CheckpointFlag receives the checkpoint path.
	OutputBaseDir       string   `yaml:"output_base_dir"`      // OutputBaseDir is the shared directory holding one tree per trial.
	Resume              bool     `yaml:"resume"`               // Resume skips jobs whose output already classifies Complete.
	MaxProcPerServer    int      `yaml:"max_proc_per_server"`  // MaxProcPerServer is the admission limit per node.
	DispatchConcurrency int      `yaml:"dispatch_concurrency"` // DispatchConcurrency bounds parallel placements within one trial.
}

// ArchConfig is a fixed architecture configuration run by the "run" command.
type ArchConfig struct {
	Name         string   `yaml:"name"`
	ScriptFile   string   `yaml:"script_file"`
	ScriptParams []string `yaml:"script_params"`
}

// SSHConfig controls the SSH transport to compute nodes.
type SSHConfig struct {
	User                  string   `yaml:"user"`                     // User defaults to $USER.
	Port                  int      `yaml:"port"`                     // Port is the sshd port.
	IdentityFiles         []string `yaml:"identity_files"`           // IdentityFiles are tried after the ssh-agent.
	KnownHostsFile        string   `yaml:"known_hosts_file"`         // KnownHostsFile verifies host keys.
	InsecureIgnoreHostKey bool     `yaml:"insecure_ignore_host_key"` // InsecureIgnoreHostKey disables host key checks.
	DialTimeoutSeconds    int      `yaml:"dial_timeout_seconds"`
}

// DialTimeout returns the SSH dial timeout.
func (c SSHConfig) DialTimeout() time.Duration {
	return time.Duration(c.DialTimeoutSeconds) * time.Second
}

// RetryConfig holds the backoff applied between dispatch sweeps.
type RetryConfig struct {
	InitialInterval int     `yaml:"initial_interval"` // InitialInterval is the first wait in milliseconds.
	MaxInterval     int     `yaml:"max_interval"`     // MaxInterval caps the wait in milliseconds.
	Factor          float64 `yaml:"factor"`           // Factor multiplies the wait after each sweep; 1.0 keeps it constant.
	Jitter          float64 `yaml:"jitter"`           // Jitter is the randomization factor in [0,1).
}

// DispatchConfig controls admission and placement.
type DispatchConfig struct {
	ProbeTimeoutSeconds int         `yaml:"probe_timeout_seconds"` // ProbeTimeoutSeconds bounds one node probe.
	LeaseTTLSeconds     int         `yaml:"lease_ttl_seconds"`     // LeaseTTLSeconds is how long a node stays reserved after a placement.
	MaxWaitSeconds      int         `yaml:"max_wait_seconds"`      // MaxWaitSeconds bounds a placement; 0 waits forever.
	ProcessName         string      `yaml:"process_name"`          // ProcessName is matched by pgrep; defaults to the sim_bin basename.
	Retry               RetryConfig `yaml:"retry"`
}

// ProbeTimeout returns the per-probe timeout.
func (c DispatchConfig) ProbeTimeout() time.Duration {
	return time.Duration(c.ProbeTimeoutSeconds) * time.Second
}

// LeaseTTL returns the admission lease lifetime.
func (c DispatchConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// MaxWait returns the placement deadline, zero meaning none.
func (c DispatchConfig) MaxWait() time.Duration {
	return time.Duration(c.MaxWaitSeconds) * time.Second
}

// RunStateConfig controls how job output is classified.
type RunStateConfig struct {
	StdoutFile                string   `yaml:"stdout_file"`
	StderrFile                string   `yaml:"stderr_file"`
	SuccessMarkers            []string `yaml:"success_markers"`              // SuccessMarkers are regular expressions.
	FailureMarkers            []string `yaml:"failure_markers"`              // FailureMarkers are regular expressions.
	UnknownTimeoutSeconds     int      `yaml:"unknown_timeout_seconds"`      // UnknownTimeoutSeconds escalates stale Unknown jobs to Error; 0 disables.
	MissingOutputGraceSeconds int      `yaml:"missing_output_grace_seconds"` // MissingOutputGraceSeconds keeps fresh directories without output Unknown.
}

// MonitorConfig controls progress polling.
type MonitorConfig struct {
	PollingIntervalSeconds int `yaml:"polling_interval_seconds"`
}

// PollInterval returns the sweep interval.
func (c MonitorConfig) PollInterval() time.Duration {
	return time.Duration(c.PollingIntervalSeconds) * time.Second
}

// ScoringConfig controls the external scoring step.
type ScoringConfig struct {
	CommandTemplate string `yaml:"command_template"` // CommandTemplate is a text/template rendered into a shell command.
	Pattern         string `yaml:"pattern"`          // Pattern extracts the score; its first group must be the number.
	ReportSuffix    string `yaml:"report_suffix"`    // ReportSuffix is appended to the trial directory to name the report.
	TimeoutSeconds  int    `yaml:"timeout_seconds"`  // TimeoutSeconds bounds the scoring command; 0 means no limit.
}

// HistoryConfig selects where the optimization record is persisted.
type HistoryConfig struct {
	Type  string `yaml:"type"`   // Type is "file" or "database".
	Path  string `yaml:"path"`   // Path is the record file for the file backend.
	DBRef string `yaml:"db_ref"` // DBRef names an entry under sweep.database.
}

// OptimizationConfig controls the sequential model-based search.
type OptimizationConfig struct {
	Name           string                   `yaml:"name"`             // Name identifies the study in the history store.
	ScriptFile     string                   `yaml:"script_file"`      // ScriptFile is the simulator config script for every trial.
	BaseParams     []string                 `yaml:"base_params"`      // BaseParams precede the constant params.
	NCalls         int                      `yaml:"n_calls"`          // NCalls is the total number of evaluations, resumed ones included.
	NInitialPoints int                      `yaml:"n_initial_points"` // NInitialPoints are random evaluations before the surrogate is used.
	RandomState    int64                    `yaml:"random_state"`
	Kappa          float64                  `yaml:"kappa"`       // Kappa weights the uncertainty term of the lower confidence bound.
	AcqSamples     int                      `yaml:"acq_samples"` // AcqSamples is the number of random candidates scored per proposal.
	ConstantParams []string                 `yaml:"constant_params"`
	ParamSpace     []map[string]interface{} `yaml:"param_space"`
	History        HistoryConfig            `yaml:"history"`
}

// PoolConfig holds database connection pool settings.
type PoolConfig struct {
	MaxOpenConns           int `yaml:"max_open_conns"`
	MaxIdleConns           int `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int `yaml:"conn_max_lifetime_minutes"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	Type     string     `yaml:"type"`     // Database type ("sqlite", "mysql", "postgres").
	Host     string     `yaml:"host"`     // Database host address.
	Port     int        `yaml:"port"`     // Database port number.
	Database string     `yaml:"database"` // Database name, or file path for sqlite.
	User     string     `yaml:"user"`     // Database user.
	Password string     `yaml:"password"` // Database password.
	Sslmode  string     `yaml:"sslmode"`  // SSL mode for postgres.
	Pool     PoolConfig `yaml:"pool"`     // Connection pool settings.
}

// TracingConfig selects the span exporter.
type TracingConfig struct {
	Exporter string `yaml:"exporter"` // Exporter is "none", "otlp-http" or "otlp-grpc".
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

// OTLPMetricsConfig selects an OTLP metric exporter used alongside Prometheus.
type OTLPMetricsConfig struct {
	Exporter        string `yaml:"exporter"` // Exporter is "none", "otlp-http" or "otlp-grpc".
	Endpoint        string `yaml:"endpoint"`
	Insecure        bool   `yaml:"insecure"`
	IntervalSeconds int    `yaml:"interval_seconds"` // IntervalSeconds is the periodic export interval.
}

// MetricsConfig controls the Prometheus endpoint, OTLP metric export and tracing.
type MetricsConfig struct {
	ListenAddr string            `yaml:"listen_addr"` // ListenAddr serves /metrics when non-empty.
	OTLP       OTLPMetricsConfig `yaml:"otlp"`
	Tracing    TracingConfig     `yaml:"tracing"`
}

// DefaultSuccessMarkers are the simulator messages that mean a run ended normally.
var DefaultSuccessMarkers = []string{
	`because a thread reached the max instruction count`,
	`because m5_exit instruction encountered`,
}

// DefaultFailureMarkers are crash signatures found in the simulator's stderr.
var DefaultFailureMarkers = []string{
	`Program aborted at tick`,
	`Failed to execute default signal handler!`,
	`gem5 has encountered a segmentation fault!`,
	`error: ambiguous option:`,
	`AttributeError:`,
}

// DefaultScoreCommandTemplate runs the data-processing score script for one trial.
const DefaultScoreCommandTemplate = `export PYTHONPATH={{quote .DataProcHome}}:$PYTHONPATH && cd {{quote .DataProcHome}} && ` +
	`bash example-scripts/gem5-score-ci{{if .Spec2017}}-17{{end}}.sh {{quote .TrialDir}} {{quote .ClusterFile}} > {{quote .ReportPath}}`

// DefaultScorePattern matches the integer score line of the report.
const DefaultScorePattern = `Estimated Int score per GHz: ([\d.]+)`

// NewConfig returns a Config populated with defaults.
func NewConfig() *Config {
	return &Config{
		Sweep: SweepConfig{
			System: SystemConfig{
				Logging: LoggingConfig{Level: string(LogLevelInfo)},
			},
			Workloads: WorkloadsConfig{
				RunWeight:          1.0,
				WorkloadVersion:    "spec06",
				CheckpointPatterns: []string{"*.zstd", "*.gz"},
			},
			Running: RunningConfig{
				LaunchArgs:          []string{"--redirect-stdout", "--redirect-stderr"},
				CheckpointFlag:      "--generic-rv-cpt",
				MaxProcPerServer:    1,
				DispatchConcurrency: 4,
			},
			SSH: SSHConfig{
				Port:               22,
				IdentityFiles:      []string{"~/.ssh/id_ed25519", "~/.ssh/id_rsa"},
				KnownHostsFile:     "~/.ssh/known_hosts",
				DialTimeoutSeconds: 10,
			},
			Dispatch: DispatchConfig{
				ProbeTimeoutSeconds: 15,
				LeaseTTLSeconds:     10,
				Retry: RetryConfig{
					InitialInterval: 2000,
					MaxInterval:     2000,
					Factor:          1.0,
				},
			},
			RunState: RunStateConfig{
				StdoutFile:     "simout",
				StderrFile:     "simerr",
				SuccessMarkers: append([]string(nil), DefaultSuccessMarkers...),
				FailureMarkers: append([]string(nil), DefaultFailureMarkers...),

				MissingOutputGraceSeconds: 30,
			},
			Monitor: MonitorConfig{PollingIntervalSeconds: 10},
			Scoring: ScoringConfig{
				CommandTemplate: DefaultScoreCommandTemplate,
				Pattern:         DefaultScorePattern,
				ReportSuffix:    ".score.txt",
			},
			Optimization: OptimizationConfig{
				Name:           "default",
				NCalls:         50,
				NInitialPoints: 10,
				RandomState:    42,
				Kappa:          1.96,
				AcqSamples:     2000,
				History: HistoryConfig{
					Type:  "file",
					Path:  "optimize_checkpoint.yaml",
					DBRef: "history",
				},
			},
			Database: map[string]DatabaseConfig{},
			Metrics: MetricsConfig{
				OTLP:    OTLPMetricsConfig{Exporter: "none", IntervalSeconds: 30},
				Tracing: TracingConfig{Exporter: "none"},
			},
		},
	}
}

// ProcessName returns the executable name matched when counting or killing jobs.
func (c *Config) ProcessName() string {
	if c.Sweep.Dispatch.ProcessName != "" {
		return c.Sweep.Dispatch.ProcessName
	}
	bin := c.Sweep.Running.SimBin
	for i := len(bin) - 1; i >= 0; i-- {
		if bin[i] == '/' {
			return bin[i+1:]
		}
	}
	return bin
}

// Spec2017 reports whether the workloads use the SPEC CPU2017 scoring variant.
func (c *Config) Spec2017() bool {
	v := c.Sweep.Workloads.WorkloadVersion
	return v == "spec17" || v == "spec2017" || v == "17"
}

// SimBinPath returns the simulator executable, resolved against bin_home when relative.
func (c *Config) SimBinPath() string {
	bin := ExpandHome(c.Sweep.Running.SimBin)
	if bin == "" || filepath.IsAbs(bin) || c.Sweep.Environment.BinHome == "" {
		return bin
	}
	return filepath.Join(ExpandHome(c.Sweep.Environment.BinHome), bin)
}

// ScriptPath resolves a simulator config script against sim_home when relative.
func (c *Config) ScriptPath(script string) string {
	script = ExpandHome(script)
	if script == "" || filepath.IsAbs(script) || c.Sweep.Environment.SimHome == "" {
		return script
	}
	return filepath.Join(ExpandHome(c.Sweep.Environment.SimHome), script)
}

// OutputBaseDir returns the absolute output base directory.
func (c *Config) OutputBaseDir() string {
	dir := ExpandHome(c.Sweep.Running.OutputBaseDir)
	if abs, err := filepath.Abs(dir); err == nil {
		return abs
	}
	return dir
}
