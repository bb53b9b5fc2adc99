package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	model "github.com/tigerroll/simsweep/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
)

// OTelMetricRecorder records sweep metrics through an OpenTelemetry meter.
type OTelMetricRecorder struct {
	probeDuration     metric.Float64Histogram
	probeFailures     metric.Int64Counter
	placements        metric.Int64Counter
	placementWait     metric.Float64Histogram
	jobsIssued        metric.Int64Counter
	trialJobs         metric.Int64Gauge
	trialScore        metric.Float64Gauge
	observations      metric.Int64Counter
	bestScore         metric.Float64Gauge
	operationDuration metric.Float64Histogram
}

// NewOTelMetricRecorder creates the instruments on meter.
func NewOTelMetricRecorder(meter metric.Meter) (*OTelMetricRecorder, error) {
	r := &OTelMetricRecorder{}
	var err error
	if r.probeDuration, err = meter.Float64Histogram("sweep.probe.duration", metric.WithUnit("s"), metric.WithDescription("Duration of node probes.")); err != nil {
		return nil, err
	}
	if r.probeFailures, err = meter.Int64Counter("sweep.probe.failures", metric.WithDescription("Failed node probes.")); err != nil {
		return nil, err
	}
	if r.placements, err = meter.Int64Counter("sweep.placements", metric.WithDescription("Jobs placed per node.")); err != nil {
		return nil, err
	}
	if r.placementWait, err = meter.Float64Histogram("sweep.placement.wait", metric.WithUnit("s"), metric.WithDescription("Time a job waited for an admitting node.")); err != nil {
		return nil, err
	}
	if r.jobsIssued, err = meter.Int64Counter("sweep.jobs.issued", metric.WithDescription("Jobs handled by the issuer by outcome.")); err != nil {
		return nil, err
	}
	if r.trialJobs, err = meter.Int64Gauge("sweep.trial.jobs", metric.WithDescription("Jobs of a trial by state.")); err != nil {
		return nil, err
	}
	if r.trialScore, err = meter.Float64Gauge("sweep.trial.score", metric.WithDescription("Score extracted for a trial.")); err != nil {
		return nil, err
	}
	if r.observations, err = meter.Int64Counter("sweep.observations", metric.WithDescription("Optimizer observations.")); err != nil {
		return nil, err
	}
	if r.bestScore, err = meter.Float64Gauge("sweep.best_score", metric.WithDescription("Lowest minimized score of a study.")); err != nil {
		return nil, err
	}
	if r.operationDuration, err = meter.Float64Histogram("sweep.operation.duration", metric.WithUnit("s"), metric.WithDescription("Duration of named operations.")); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *OTelMetricRecorder) RecordProbe(ctx context.Context, host string, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		r.probeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("host", host)))
	}
	r.probeDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("host", host), attribute.String("outcome", outcome)))
}

func (r *OTelMetricRecorder) RecordPlacement(ctx context.Context, host string, wait time.Duration, sweeps int) {
	attrs := metric.WithAttributes(attribute.String("host", host))
	r.placements.Add(ctx, 1, attrs)
	r.placementWait.Record(ctx, wait.Seconds(), attrs)
}

func (r *OTelMetricRecorder) RecordIssue(ctx context.Context, report model.IssueReport) {
	r.jobsIssued.Add(ctx, int64(report.Dispatched), metric.WithAttributes(attribute.String("outcome", "dispatched")))
	r.jobsIssued.Add(ctx, int64(report.Skipped), metric.WithAttributes(attribute.String("outcome", "skipped")))
	r.jobsIssued.Add(ctx, int64(len(report.Failed)), metric.WithAttributes(attribute.String("outcome", "failed")))
}

func (r *OTelMetricRecorder) RecordProgress(ctx context.Context, trialName string, summary model.RunSummary) {
	trial := attribute.String("trial", trialName)
	r.trialJobs.Record(ctx, int64(summary.Complete), metric.WithAttributes(trial, attribute.String("state", "complete")))
	r.trialJobs.Record(ctx, int64(summary.Error), metric.WithAttributes(trial, attribute.String("state", "error")))
	r.trialJobs.Record(ctx, int64(summary.Running()), metric.WithAttributes(trial, attribute.String("state", "running")))
}

func (r *OTelMetricRecorder) RecordScore(ctx context.Context, trialName string, score float64, missing bool) {
	r.trialScore.Record(ctx, score, metric.WithAttributes(attribute.String("trial", trialName), attribute.Bool("missing", missing)))
}

func (r *OTelMetricRecorder) RecordObservation(ctx context.Context, study string, observation model.Observation, best float64) {
	attrs := metric.WithAttributes(attribute.String("study", study))
	r.observations.Add(ctx, 1, attrs)
	r.bestScore.Record(ctx, best, attrs)
}

func (r *OTelMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := []attribute.KeyValue{attribute.String("name", name)}
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OTelMetricRecorder)(nil)

// NewOTLPMeterProvider creates a MeterProvider exporting periodically over OTLP.
// It returns nil when the exporter is "none".
func NewOTLPMeterProvider(ctx context.Context, cfg config.OTLPMetricsConfig) (*sdkmetric.MeterProvider, error) {
	var exporter sdkmetric.Exporter
	var err error
	switch cfg.Exporter {
	case "", "none":
		return nil, nil
	case "otlp-http":
		opts := []otlpmetrichttp.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetrichttp.WithInsecure())
		}
		exporter, err = otlpmetrichttp.New(ctx, opts...)
	case "otlp-grpc":
		opts := []otlpmetricgrpc.Option{}
		if cfg.Endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			opts = append(opts, otlpmetricgrpc.WithInsecure())
		}
		exporter, err = otlpmetricgrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported metrics exporter %q", cfg.Exporter)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s metric exporter: %w", cfg.Exporter, err)
	}

	interval := time.Duration(cfg.IntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(interval))),
		sdkmetric.WithResource(newResource()),
	), nil
}
