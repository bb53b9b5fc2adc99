package exception

import (
	"errors"
	"fmt"
	"time"
)

// ErrScoreMissing is returned when a score report does not contain the expected label.
// It is never fatal: the scorer substitutes a sentinel score and logs the anomaly.
var ErrScoreMissing = errors.New("score missing from report")

// ProbeFailure is returned when a node cannot be probed: connection refused,
// timeout, authentication failure, non-zero exit or malformed numeric output.
// The dispatcher treats it as non-admission for that node only.
type ProbeFailure struct {
	Host   string
	Reason string
	Err    error
}

// NewProbeFailure creates a ProbeFailure for host.
func NewProbeFailure(host, reason string, err error) *ProbeFailure {
	return &ProbeFailure{Host: host, Reason: reason, Err: err}
}

func (e *ProbeFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("probe %s: %s: %v", e.Host, e.Reason, e.Err)
	}
	return fmt.Sprintf("probe %s: %s", e.Host, e.Reason)
}

func (e *ProbeFailure) Unwrap() error { return e.Err }

// DispatchExhausted is returned when no node admitted a job before the
// configured maximum wait elapsed. With no maximum the dispatcher keeps trying.
type DispatchExhausted struct {
	Fingerprint string
	Sweeps      int
	Waited      time.Duration
	Err         error
}

func (e *DispatchExhausted) Error() string {
	return fmt.Sprintf("no node admitted job %s after %d sweeps (%s)", e.Fingerprint, e.Sweeps, e.Waited.Round(time.Millisecond))
}

func (e *DispatchExhausted) Unwrap() error { return e.Err }

// JobError marks a job that reached the Error state, or could not be issued.
// It is job-local and never aborts sibling jobs or the owning trial.
type JobError struct {
	Fingerprint string
	Err         error
}

func (e *JobError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("job %s: %v", e.Fingerprint, e.Err)
	}
	return fmt.Sprintf("job %s failed", e.Fingerprint)
}

func (e *JobError) Unwrap() error { return e.Err }

// PersistenceFailure is returned when the optimization record cannot be saved or loaded.
// The optimization loop stops on it; continuing would lose history.
type PersistenceFailure struct {
	Backend string
	Op      string
	Err     error
}

func (e *PersistenceFailure) Error() string {
	return fmt.Sprintf("%s history %s failed: %v", e.Backend, e.Op, e.Err)
}

func (e *PersistenceFailure) Unwrap() error { return e.Err }

// NewConfigError wraps a configuration load or validation failure. Always fatal.
func NewConfigError(message string, err error) *BatchError {
	return NewBatchError("config", message, err, false, false)
}

// IsProbeFailure reports whether err is, or wraps, a ProbeFailure.
func IsProbeFailure(err error) bool {
	var pf *ProbeFailure
	return errors.As(err, &pf)
}

// IsPersistenceFailure reports whether err is, or wraps, a PersistenceFailure.
func IsPersistenceFailure(err error) bool {
	var pf *PersistenceFailure
	return errors.As(err, &pf)
}
