// Package retry turns the dispatch retry settings into backoff schedules.
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	exception "github.com/tigerroll/simsweep/pkg/batch/support/util/exception"
)

// RetryPolicy decides whether a failed attempt is worth repeating and how long to wait before it.
type RetryPolicy interface {
	// ShouldRetry reports whether err leaves the operation worth another attempt.
	ShouldRetry(err error) bool
	// NewBackOff returns a fresh backoff schedule for one retried operation.
	NewBackOff() backoff.BackOff
}

// SweepPolicy is the retry policy between dispatch sweeps.
type SweepPolicy struct {
	initial    time.Duration
	max        time.Duration
	multiplier float64
	jitter     float64
}

// NewSweepPolicy creates a SweepPolicy from cfg. A factor of 1 or less gives a constant interval.
func NewSweepPolicy(cfg config.RetryConfig) *SweepPolicy {
	p := &SweepPolicy{
		initial:    time.Duration(cfg.InitialInterval) * time.Millisecond,
		max:        time.Duration(cfg.MaxInterval) * time.Millisecond,
		multiplier: cfg.Factor,
		jitter:     cfg.Jitter,
	}
	if p.initial <= 0 {
		p.initial = 2 * time.Second
	}
	if p.max < p.initial {
		p.max = p.initial
	}
	if p.multiplier < 1 {
		p.multiplier = 1
	}
	if p.jitter < 0 || p.jitter >= 1 {
		p.jitter = 0
	}
	return p
}

// NewBackOff returns an exponential schedule; with multiplier 1 and no jitter it is constant.
func (p *SweepPolicy) NewBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.max
	b.Multiplier = p.multiplier
	b.RandomizationFactor = p.jitter
	b.Reset()
	return b
}

// ShouldRetry reports whether a node failure leaves the job worth another attempt.
// Fatal errors, such as missing SSH credentials, and cancellation are final; probe failures
// and failed submissions otherwise are not.
func (p *SweepPolicy) ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if exception.IsFatal(err) {
		return false
	}
	if exception.IsProbeFailure(err) {
		return true
	}
	return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
}

var _ RetryPolicy = (*SweepPolicy)(nil)
