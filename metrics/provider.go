package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

const serviceName = "nextedit"

// ProviderConfig selects which signals are recorded. Traces are written
// as JSON lines to TraceWriter.
type ProviderConfig struct {
	EnableMetrics bool
	EnableTraces  bool
	TraceWriter   io.Writer
}

// Provider owns the meter and tracer providers of the daemon. A disabled
// signal falls back to a no-op implementation.
type Provider struct {
	reader         *sdkmetric.ManualReader
	meterProvider  *sdkmetric.MeterProvider
	tracerProvider *sdktrace.TracerProvider
	tracker        *Tracker
	shutdownOnce   sync.Once
}

func Setup(cfg ProviderConfig) (*Provider, error) {
	p := &Provider{}
	if !cfg.EnableMetrics && !cfg.EnableTraces {
		return p, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	if cfg.EnableMetrics {
		p.reader = sdkmetric.NewManualReader()
		p.meterProvider = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(p.reader),
			sdkmetric.WithResource(res),
		)
		if p.tracker, err = NewTracker(p.meterProvider); err != nil {
			return nil, err
		}
	}

	if cfg.EnableTraces {
		if cfg.TraceWriter == nil {
			return nil, errors.New("traces enabled without a writer")
		}
		exp, err := stdouttrace.New(stdouttrace.WithWriter(cfg.TraceWriter))
		if err != nil {
			return nil, fmt.Errorf("init trace exporter: %w", err)
		}
		p.tracerProvider = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp, sdktrace.WithMaxExportBatchSize(64)),
			sdktrace.WithResource(res),
		)
	}
	return p, nil
}

// Tracker is nil when metrics are disabled, which the Tracker methods
// accept.
func (p *Provider) Tracker() *Tracker { return p.tracker }

func (p *Provider) TracerProvider() trace.TracerProvider {
	if p.tracerProvider == nil {
		return noop.NewTracerProvider()
	}
	return p.tracerProvider
}

// Summary renders the metric totals, or "" when metrics are disabled.
func (p *Provider) Summary(ctx context.Context) (string, error) {
	if p.reader == nil {
		return "", nil
	}
	return Summary(ctx, p.reader)
}

// Shutdown flushes pending spans and stops both providers.
func (p *Provider) Shutdown(ctx context.Context) error {
	var err error
	p.shutdownOnce.Do(func() {
		var errs []error
		if p.meterProvider != nil {
			if shutdownErr := p.meterProvider.Shutdown(ctx); shutdownErr != nil {
				errs = append(errs, shutdownErr)
			}
		}
		if p.tracerProvider != nil {
			if shutdownErr := p.tracerProvider.Shutdown(ctx); shutdownErr != nil {
				errs = append(errs, shutdownErr)
			}
		}
		err = errors.Join(errs...)
	})
	return err
}
