// Package runstate derives job states from the files a simulator leaves in its output directory.
package runstate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"time"

	port "github.com/tigerroll/simsweep/pkg/batch/core/application/port"
	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// Classifier implements port.JobClassifier.
type Classifier struct {
	stdoutFile     string
	stderrFile     string
	success        []*regexp.Regexp
	failure        []*regexp.Regexp
	unknownTimeout time.Duration
	missingGrace   time.Duration
	now            func() time.Time
}

// NewClassifier compiles the configured markers.
func NewClassifier(cfg config.RunStateConfig) (*Classifier, error) {
	success, err := compileMarkers("success", cfg.SuccessMarkers)
	if err != nil {
		return nil, err
	}
	failure, err := compileMarkers("failure", cfg.FailureMarkers)
	if err != nil {
		return nil, err
	}
	c := &Classifier{
		stdoutFile:     cfg.StdoutFile,
		stderrFile:     cfg.StderrFile,
		success:        success,
		failure:        failure,
		unknownTimeout: time.Duration(cfg.UnknownTimeoutSeconds) * time.Second,
		missingGrace:   time.Duration(cfg.MissingOutputGraceSeconds) * time.Second,
		now:            time.Now,
	}
	if c.stdoutFile == "" {
		c.stdoutFile = "simout"
	}
	if c.stderrFile == "" {
		c.stderrFile = "simerr"
	}
	return c, nil
}

// compileMarkers compiles markers in multi-line mode, so ^ and $ anchor at line boundaries.
func compileMarkers(kind string, markers []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(markers))
	for _, m := range markers {
		re, err := regexp.Compile("(?m)" + m)
		if err != nil {
			return nil, exception.NewConfigError(fmt.Sprintf("invalid %s marker %q", kind, m), err)
		}
		out = append(out, re)
	}
	return out, nil
}

// outputFile is one of the two streams of a job.
type outputFile struct {
	data    []byte
	modTime time.Time
	present bool
}

func readOutput(path string) (outputFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return outputFile{}, nil
		}
		return outputFile{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return outputFile{}, nil
		}
		return outputFile{}, err
	}
	return outputFile{data: data, modTime: info.ModTime(), present: true}, nil
}

func matchesAny(markers []*regexp.Regexp, s outputFile) bool {
	if !s.present {
		return false
	}
	for _, re := range markers {
		if re.Match(s.data) {
			return true
		}
	}
	return false
}

// Classify returns (true, false) for Complete, (false, true) for Error and (false, false) for Unknown.
// Success markers are matched in stdout and win. Otherwise a missing or unreadable stream, or a failure
// marker in stderr, is an Error, and a job whose streams stayed untouched for the unknown timeout is
// escalated to Error.
func (c *Classifier) Classify(outputDir string) (complete bool, failed bool) {
	stdout, errOut := readOutput(filepath.Join(outputDir, c.stdoutFile))
	stderr, errErr := readOutput(filepath.Join(outputDir, c.stderrFile))
	if err := errors.Join(errOut, errErr); err != nil {
		logger.Warnf("Classifier: cannot read output in %s: %v", outputDir, err)
		return false, true
	}

	if matchesAny(c.success, stdout) {
		return true, false
	}

	if !stdout.present || !stderr.present {
		if c.missingGrace > 0 && c.youngerThanGrace(outputDir) {
			return false, false
		}
		return false, true
	}

	if matchesAny(c.failure, stderr) {
		return false, true
	}

	if c.unknownTimeout > 0 {
		cutoff := c.now().Add(-c.unknownTimeout)
		if stdout.modTime.Before(cutoff) && stderr.modTime.Before(cutoff) {
			logger.Debugf("Classifier: %s made no progress for %s, escalating to error.", outputDir, c.unknownTimeout)
			return false, true
		}
	}
	return false, false
}

func (c *Classifier) youngerThanGrace(dir string) bool {
	info, err := os.Stat(dir)
	if err != nil {
		return false
	}
	return c.now().Sub(info.ModTime()) < c.missingGrace
}

// State returns the JobState of the job in outputDir.
func (c *Classifier) State(outputDir string) model.JobState {
	return model.StateFromClassification(c.Classify(outputDir))
}

var _ port.JobClassifier = (*Classifier)(nil)
