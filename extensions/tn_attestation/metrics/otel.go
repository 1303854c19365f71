package metrics

import (
	"context"
	"math/big"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// OTELMetrics implements MetricsRecorder using OpenTelemetry.
type OTELMetrics struct {
	logger *zap.SugaredLogger

	// Counters
	attestedCounter  metric.Int64Counter
	revokedCounter   metric.Int64Counter
	rejectedCounter  metric.Int64Counter
	forwardedCounter metric.Float64Counter

	// Histograms
	batchSize metric.Int64Histogram
}

// NewOTELMetrics creates a new OTEL metrics recorder.
func NewOTELMetrics(meter metric.Meter, logger *zap.SugaredLogger) (*OTELMetrics, error) {
	m := &OTELMetrics{logger: logger}

	var err error

	m.attestedCounter, err = meter.Int64Counter(
		"tn_attestation.attested_total",
		metric.WithDescription("Total number of attestations created"),
		metric.WithUnit("{attestation}"),
	)
	if err != nil {
		return nil, err
	}

	m.revokedCounter, err = meter.Int64Counter(
		"tn_attestation.revoked_total",
		metric.WithDescription("Total number of attestations revoked"),
		metric.WithUnit("{attestation}"),
	)
	if err != nil {
		return nil, err
	}

	m.rejectedCounter, err = meter.Int64Counter(
		"tn_attestation.rejected_total",
		metric.WithDescription("Total number of rejected ledger operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	m.forwardedCounter, err = meter.Float64Counter(
		"tn_attestation.value_forwarded_wei",
		metric.WithDescription("Native value forwarded to resolvers"),
		metric.WithUnit("{wei}"),
	)
	if err != nil {
		return nil, err
	}

	m.batchSize, err = meter.Int64Histogram(
		"tn_attestation.batch_size",
		metric.WithDescription("Number of records touched by one ledger operation"),
		metric.WithUnit("{attestation}"),
	)
	if err != nil {
		return nil, err
	}

	return m, nil
}

func (m *OTELMetrics) RecordAttested(ctx context.Context, operation string, count int) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
	)

	m.attestedCounter.Add(ctx, int64(count), attrs)
	m.batchSize.Record(ctx, int64(count), attrs)
}

func (m *OTELMetrics) RecordRevoked(ctx context.Context, operation string, count int) {
	attrs := metric.WithAttributes(
		attribute.String("operation", operation),
	)

	m.revokedCounter.Add(ctx, int64(count), attrs)
	m.batchSize.Record(ctx, int64(count), attrs)
}

func (m *OTELMetrics) RecordRejected(ctx context.Context, operation string, errType string) {
	m.rejectedCounter.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("operation", operation),
			attribute.String("error_type", errType),
		),
	)
}

func (m *OTELMetrics) RecordValueForwarded(ctx context.Context, operation string, wei *big.Int) {
	if wei == nil || wei.Sign() <= 0 {
		return
	}
	f, _ := new(big.Float).SetInt(wei).Float64()
	m.forwardedCounter.Add(ctx, f,
		metric.WithAttributes(
			attribute.String("operation", operation),
		),
	)
}
