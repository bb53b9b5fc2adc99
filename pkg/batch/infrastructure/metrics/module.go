package metrics

import (
	"context"

	"go.uber.org/fx"

	config "github.com/tigerroll/simsweep/pkg/batch/core/config"
	metrics "github.com/tigerroll/simsweep/pkg/batch/core/metrics"
	logger "github.com/tigerroll/simsweep/pkg/batch/support/util/logger"
)

// NewMetricRecorderProvider combines the Prometheus recorder with the OTLP recorder when one is configured.
// The Prometheus endpoint and the meter provider follow the fx lifecycle.
func NewMetricRecorderProvider(lc fx.Lifecycle, cfg *config.Config, prom *PrometheusRecorder) (metrics.MetricRecorder, error) {
	mc := cfg.Sweep.Metrics

	if mc.ListenAddr != "" {
		server := NewServer(mc.ListenAddr, prom.GetRegistry())
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error { return server.Start() },
			OnStop:  server.Stop,
		})
	}

	mp, err := NewOTLPMeterProvider(context.Background(), mc.OTLP)
	if err != nil {
		return nil, err
	}
	if mp == nil {
		return prom, nil
	}
	lc.Append(fx.Hook{OnStop: mp.Shutdown})
	otelRecorder, err := NewOTelMetricRecorder(mp.Meter(instrumentationName))
	if err != nil {
		return nil, err
	}
	return NewCompositeMetricRecorder(prom, otelRecorder), nil
}

// NewTracerProviderFx returns the configured tracer, or a no-op one when tracing is off.
func NewTracerProviderFx(lc fx.Lifecycle, cfg *config.Config) (metrics.Tracer, error) {
	tp, err := NewTracerProvider(context.Background(), cfg.Sweep.Metrics.Tracing)
	if err != nil {
		return nil, err
	}
	if tp == nil {
		logger.Debugf("Tracing: disabled.")
		return metrics.NewNoOpTracer(), nil
	}
	lc.Append(fx.Hook{OnStop: tp.Shutdown})
	return NewOpenTelemetryTracer(tp), nil
}

// Module is an Fx module that provides the MetricRecorder and Tracer.
var Module = fx.Options(
	fx.Provide(NewPrometheusRecorder),
	fx.Provide(NewMetricRecorderProvider),
	fx.Provide(NewTracerProviderFx),
)
