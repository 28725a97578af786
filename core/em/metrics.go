package em

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("coinem.em")
	meter  = otel.Meter("coinem.em")
)

var (
	runDuration     metric.Float64Histogram
	runTotal        metric.Int64Counter
	runIterations   metric.Int64Histogram
	degenerateTotal metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		runDuration, err = meter.Float64Histogram(
			"em_run_duration_seconds",
			metric.WithDescription("Duration of EM runs"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runTotal, err = meter.Int64Counter(
			"em_runs_total",
			metric.WithDescription("EM runs by terminal status"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		runIterations, err = meter.Int64Histogram(
			"em_run_iterations",
			metric.WithDescription("E/M cycles performed per run"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		degenerateTotal, err = meter.Int64Counter(
			"em_degenerate_likelihood_total",
			metric.WithDescription("Experiments that fell back to an equal split"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

func startRunSpan(ctx context.Context, experiments, tosses int, init Theta) (context.Context, trace.Span) {
	return tracer.Start(ctx, "Estimator.Run",
		trace.WithAttributes(
			attribute.Int("em.experiments", experiments),
			attribute.Int("em.tosses", tosses),
			attribute.Float64("em.init.theta_a", init.A),
			attribute.Float64("em.init.theta_b", init.B),
		),
	)
}

func setRunSpanResult(span trace.Span, res *Result) {
	span.SetAttributes(
		attribute.String("em.status", res.Status.String()),
		attribute.Int("em.iterations", res.Iterations),
		attribute.Int("em.degenerate", res.Degenerate),
		attribute.Float64("em.theta_a", res.Theta.A),
		attribute.Float64("em.theta_b", res.Theta.B),
	)
}

func recordRunMetrics(ctx context.Context, duration time.Duration, status Status, iterations, degenerate int) {
	if err := initMetrics(); err != nil {
		return
	}

	attrs := metric.WithAttributes(attribute.String("status", status.String()))

	runDuration.Record(ctx, duration.Seconds(), attrs)
	runTotal.Add(ctx, 1, attrs)
	runIterations.Record(ctx, int64(iterations), attrs)
	if degenerate > 0 {
		degenerateTotal.Add(ctx, int64(degenerate))
	}
}
