package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of the metrics.MetricRecorder interface.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	// Node metrics
	probeDurationSeconds *prometheus.HistogramVec
	probeFailureCounter  *prometheus.CounterVec
	placementCounter     *prometheus.CounterVec
	placementWaitSeconds *prometheus.HistogramVec

	// Trial metrics
	jobsIssuedCounter *prometheus.CounterVec
	trialJobsGauge    *prometheus.GaugeVec
	trialScoreGauge   *prometheus.GaugeVec
	scoreMissingTotal prometheus.Counter

	// Study metrics
	observationCounter *prometheus.CounterVec
	bestScoreGauge     *prometheus.GaugeVec

	operationDurationSeconds *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a new instance of PrometheusRecorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()

	// Register Go standard metrics and process/OS metrics.
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		probeDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sweep_probe_duration_seconds",
			Help:    "Duration of node probes.",
			Buckets: prometheus.DefBuckets,
		}, []string{"host", "outcome"}),
		probeFailureCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_probe_failures_total",
			Help: "Total number of failed node probes.",
		}, []string{"host"}),
		placementCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_placements_total",
			Help: "Total number of jobs placed per node.",
		}, []string{"host"}),
		placementWaitSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sweep_placement_wait_seconds",
			Help:    "Time a job waited for an admitting node.",
			Buckets: []float64{0.1, 1, 5, 15, 60, 300, 900, 3600},
		}, []string{"host"}),
		jobsIssuedCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_jobs_issued_total",
			Help: "Total number of jobs handled by the issuer by outcome.",
		}, []string{"outcome"}), // outcome: dispatched, skipped, failed
		trialJobsGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sweep_trial_jobs",
			Help: "Jobs of a trial by state at the latest scan.",
		}, []string{"trial", "state"}),
		trialScoreGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sweep_trial_score",
			Help: "Score extracted for a trial.",
		}, []string{"trial"}),
		scoreMissingTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sweep_score_missing_total",
			Help: "Total number of reports without a score.",
		}),
		observationCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sweep_observations_total",
			Help: "Total number of optimizer observations.",
		}, []string{"study"}),
		bestScoreGauge: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sweep_best_score",
			Help: "Lowest minimized score of a study so far.",
		}, []string{"study"}),
		operationDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sweep_operation_duration_seconds",
			Help:    "Duration of named sweep operations.",
			Buckets: []float64{1, 10, 60, 300, 900, 3600, 4 * 3600, 12 * 3600},
		}, []string{"name"}),
	}

	registry.MustRegister(
		r.probeDurationSeconds,
		r.probeFailureCounter,
		r.placementCounter,
		r.placementWaitSeconds,
		r.jobsIssuedCounter,
		r.trialJobsGauge,
		r.trialScoreGauge,
		r.scoreMissingTotal,
		r.observationCounter,
		r.bestScoreGauge,
		r.operationDurationSeconds,
	)

	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// RecordProbe records one node probe.
func (r *PrometheusRecorder) RecordProbe(ctx context.Context, host string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		r.probeFailureCounter.WithLabelValues(host).Inc()
	}
	r.probeDurationSeconds.WithLabelValues(host, outcome).Observe(duration.Seconds())
}

// RecordPlacement records a job placed on host.
func (r *PrometheusRecorder) RecordPlacement(ctx context.Context, host string, wait time.Duration, sweeps int) {
	r.placementCounter.WithLabelValues(host).Inc()
	r.placementWaitSeconds.WithLabelValues(host).Observe(wait.Seconds())
	logger.Debugf("Metrics: job placed on '%s' after %d sweeps (%s).", host, sweeps, wait)
}

// RecordIssue records the outcome of issuing one trial.
func (r *PrometheusRecorder) RecordIssue(ctx context.Context, report model.IssueReport) {
	r.jobsIssuedCounter.WithLabelValues("dispatched").Add(float64(report.Dispatched))
	r.jobsIssuedCounter.WithLabelValues("skipped").Add(float64(report.Skipped))
	r.jobsIssuedCounter.WithLabelValues("failed").Add(float64(len(report.Failed)))
}

// RecordProgress records the latest scan of a trial. Gauges are overwritten on every scan.
func (r *PrometheusRecorder) RecordProgress(ctx context.Context, trialName string, summary model.RunSummary) {
	r.trialJobsGauge.WithLabelValues(trialName, "complete").Set(float64(summary.Complete))
	r.trialJobsGauge.WithLabelValues(trialName, "error").Set(float64(summary.Error))
	r.trialJobsGauge.WithLabelValues(trialName, "running").Set(float64(summary.Running()))
}

// RecordScore records the score of a trial.
func (r *PrometheusRecorder) RecordScore(ctx context.Context, trialName string, score float64, missing bool) {
	if missing {
		r.scoreMissingTotal.Inc()
	}
	r.trialScoreGauge.WithLabelValues(trialName).Set(score)
}

// RecordObservation records an optimizer observation.
func (r *PrometheusRecorder) RecordObservation(ctx context.Context, study string, observation model.Observation, best float64) {
	r.observationCounter.WithLabelValues(study).Inc()
	r.bestScoreGauge.WithLabelValues(study).Set(best)
}

// RecordDuration records the execution time of a named operation. Tags are not used as labels.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDurationSeconds.WithLabelValues(name).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
