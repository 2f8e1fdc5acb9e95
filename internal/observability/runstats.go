// Package observability records run statistics for a diff invocation
// over in-process OTel instruments and dumps them to the logger.
package observability

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

const (
	metricFilesParsed     = "jitdiff.files.parsed"
	metricMethodsCompared = "jitdiff.methods.compared"
	metricPhaseDuration   = "jitdiff.phase.duration.seconds"

	attrSide  = "side"
	attrPhase = "phase"
)

// Run phases recorded against the duration histogram.
const (
	PhaseParse     = "parse"
	PhaseCompare   = "compare"
	PhaseSummarize = "summarize"
)

// Listing set sides.
const (
	SideBase = "base"
	SideDiff = "diff"
)

// phaseBucketBoundaries covers 1ms to 60s; parsing large listing trees
// dominates the upper buckets.
var phaseBucketBoundaries = []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60}

// RunStats collects per-run counters and phase timings. The collecting
// reader never exports anywhere; Dump drains it into the logger.
type RunStats struct {
	reader   *sdkmetric.ManualReader
	provider *sdkmetric.MeterProvider

	filesParsed     metric.Int64Counter
	methodsCompared metric.Int64Counter
	phaseDuration   metric.Float64Histogram
}

// NewRunStats creates the run-stat instruments over a manual reader.
func NewRunStats() (*RunStats, error) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))

	b := newMetricBuilder(provider.Meter("jitdiff"))

	rs := &RunStats{
		reader:          reader,
		provider:        provider,
		filesParsed:     b.counter(metricFilesParsed, "Listing files parsed", "{file}"),
		methodsCompared: b.counter(metricMethodsCompared, "Method pairs compared", "{method}"),
		phaseDuration:   b.histogram(metricPhaseDuration, "Run phase duration in seconds", "s", phaseBucketBoundaries...),
	}

	if b.err != nil {
		return nil, b.err
	}

	return rs, nil
}

// AddFilesParsed records parsed listing files for one side.
func (rs *RunStats) AddFilesParsed(ctx context.Context, side string, n int) {
	rs.filesParsed.Add(ctx, int64(n), metric.WithAttributes(attribute.String(attrSide, side)))
}

// AddMethodsCompared records joined method pairs.
func (rs *RunStats) AddMethodsCompared(ctx context.Context, n int) {
	rs.methodsCompared.Add(ctx, int64(n))
}

// TimePhase starts timing a run phase and returns a stop function.
func (rs *RunStats) TimePhase(ctx context.Context, phase string) func() {
	start := time.Now()

	return func() {
		rs.phaseDuration.Record(ctx, time.Since(start).Seconds(),
			metric.WithAttributes(attribute.String(attrPhase, phase)))
	}
}

// Dump drains the collected metrics into the logger and shuts the
// provider down.
func (rs *RunStats) Dump(ctx context.Context, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}

	var rm metricdata.ResourceMetrics
	if err := rs.reader.Collect(ctx, &rm); err != nil {
		logger.Warn("collect run stats", "error", err)

		return
	}

	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			logMetric(logger, m)
		}
	}

	if err := rs.provider.Shutdown(ctx); err != nil {
		logger.Warn("shutdown meter provider", "error", err)
	}
}

func logMetric(logger *slog.Logger, m metricdata.Metrics) {
	switch data := m.Data.(type) {
	case metricdata.Sum[int64]:
		for _, dp := range data.DataPoints {
			logger.Info("run stat", append([]any{"metric", m.Name, "value", dp.Value}, attrArgs(dp.Attributes)...)...)
		}
	case metricdata.Histogram[float64]:
		for _, dp := range data.DataPoints {
			logger.Info("run stat",
				append([]any{"metric", m.Name, "count", dp.Count, "sum", dp.Sum}, attrArgs(dp.Attributes)...)...)
		}
	}
}

func attrArgs(set attribute.Set) []any {
	args := make([]any, 0, 2*set.Len())

	for _, kv := range set.ToSlice() {
		args = append(args, string(kv.Key), kv.Value.Emit())
	}

	return args
}
