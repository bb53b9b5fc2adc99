// Package score runs the external scoring step of a trial and extracts its score.
package score

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"text/template"
	"time"

	"github.com/kballard/go-shellquote"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// clusterFile is the checkpoint cluster description read by the scoring scripts.
const clusterFile = "cluster-0-0.json"

// CommandData is the data a score command template is rendered with.
type CommandData struct {
	DataProcHome string
	Spec2017     bool
	TrialDir     string
	ClusterFile  string
	ReportPath   string
}

// Scorer implements port.TrialScorer.
type Scorer struct {
	runner        port.RemoteExecutor
	tmpl          *template.Template
	pattern       *regexp.Regexp
	reportSuffix  string
	timeout       time.Duration
	spec2017      bool
	workloadsPath string
}

// NewScorer compiles the scoring template and pattern. runner executes the rendered command locally.
func NewScorer(cfg *config.Config, runner port.RemoteExecutor) (*Scorer, error) {
	sc := cfg.Sweep.Scoring

	text := sc.CommandTemplate
	if text == "" {
		text = config.DefaultScoreCommandTemplate
	}
	tmpl, err := template.New("score").
		Funcs(template.FuncMap{"quote": quote}).
		Option("missingkey=error").
		Parse(text)
	if err != nil {
		return nil, exception.NewConfigError("invalid scoring.command_template", err)
	}

	expr := sc.Pattern
	if expr == "" {
		expr = config.DefaultScorePattern
	}
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, exception.NewConfigError(fmt.Sprintf("invalid scoring.pattern '%s'", expr), err)
	}
	if pattern.NumSubexp() < 1 {
		return nil, exception.NewConfigError(fmt.Sprintf("scoring.pattern '%s' has no capture group", expr), nil)
	}

	suffix := sc.ReportSuffix
	if suffix == "" {
		suffix = ".score.txt"
	}

	return &Scorer{
		runner:        runner,
		tmpl:          tmpl,
		pattern:       pattern,
		reportSuffix:  suffix,
		timeout:       time.Duration(sc.TimeoutSeconds) * time.Second,
		spec2017:      cfg.Spec2017(),
		workloadsPath: config.ExpandHome(cfg.Sweep.Workloads.WorkloadsPath),
	}, nil
}

func quote(s string) string {
	return shellquote.Join(s)
}

// ReportPath returns <baseDir>/<trial><suffix>.
func (s *Scorer) ReportPath(trialName, baseDir string) string {
	return filepath.Join(baseDir, trialName+s.reportSuffix)
}

// Command renders the score command of one trial.
func (s *Scorer) Command(trialName, baseDir string, env config.EnvironmentConfig) (string, error) {
	data := CommandData{
		DataProcHome: config.ExpandHome(env.DataProcHome),
		Spec2017:     s.spec2017,
		TrialDir:     filepath.Join(baseDir, trialName),
		ClusterFile:  filepath.Join(s.workloadsPath, clusterFile),
		ReportPath:   s.ReportPath(trialName, baseDir),
	}
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render score command for %s: %w", trialName, err)
	}
	return buf.String(), nil
}

// Score runs the scoring command for a finished trial and returns the report path.
func (s *Scorer) Score(ctx context.Context, trialName, baseDir string, env config.EnvironmentConfig) (string, error) {
	reportPath := s.ReportPath(trialName, baseDir)
	cmd, err := s.Command(trialName, baseDir, env)
	if err != nil {
		return reportPath, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	logger.Infof("Scorer: scoring trial '%s' into %s.", trialName, reportPath)
	logger.Debugf("Scorer: %s", cmd)
	start := time.Now()
	out, err := s.runner.Run(ctx, "localhost", cmd)
	if err != nil {
		logger.Warnf("Scorer: score command for '%s' failed: %v, output: %s", trialName, err, string(out))
		return reportPath, fmt.Errorf("score trial %s: %w", trialName, err)
	}
	logger.Debugf("Scorer: trial '%s' scored in %s.", trialName, time.Since(start).Round(time.Millisecond))
	return reportPath, nil
}

// ExtractScore returns the score found in the report, or 0 when the report is unreadable or has none.
func (s *Scorer) ExtractScore(reportPath string) float64 {
	data, err := os.ReadFile(reportPath)
	if err != nil {
		logger.Warnf("Scorer: score missing, cannot read report %s: %v", reportPath, err)
		return 0
	}
	v, err := s.ParseScore(string(data))
	if err != nil {
		logger.Warnf("Scorer: %v in %s, using 0.", err, reportPath)
		return 0
	}
	return v
}

// ParseScore returns the first score matched in text, or exception.ErrScoreMissing.
func (s *Scorer) ParseScore(text string) (float64, error) {
	m := s.pattern.FindStringSubmatch(text)
	if m == nil {
		return 0, exception.ErrScoreMissing
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, fmt.Errorf("%w: '%s' is not a number", exception.ErrScoreMissing, m[1])
	}
	return v, nil
}

var _ port.TrialScorer = (*Scorer)(nil)
