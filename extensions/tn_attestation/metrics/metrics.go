// Package metrics provides observability for the attestation ledger.
// It uses a plugin pattern so that nothing is recorded when OpenTelemetry is not configured.
package metrics

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/trufnetwork/attestation-registry/internal/errs"
)

// MetricsRecorder defines the interface for recording ledger metrics.
type MetricsRecorder interface {
	// Ledger outcomes
	RecordAttested(ctx context.Context, operation string, count int)
	RecordRevoked(ctx context.Context, operation string, count int)
	RecordRejected(ctx context.Context, operation string, errType string)

	// Value routed to resolvers, in wei
	RecordValueForwarded(ctx context.Context, operation string, wei *big.Int)
}

// NewMetricsRecorder creates a metrics recorder instance.
// It returns an OTEL-backed recorder when the global meter provider can
// create instruments, and a no-op recorder otherwise.
func NewMetricsRecorder(logger *zap.SugaredLogger) MetricsRecorder {
	meter := otel.GetMeterProvider().Meter("github.com/trufnetwork/attestation-registry/extensions/tn_attestation")

	if _, err := meter.Int64Counter("tn_attestation.test"); err != nil {
		logger.Debug("OpenTelemetry not available, metrics disabled")
		return NewNoOpMetrics()
	}

	otelMetrics, err := NewOTELMetrics(meter, logger)
	if err != nil {
		logger.Warnw("failed to initialize OTEL metrics, falling back to no-op", "error", err)
		return NewNoOpMetrics()
	}

	logger.Debug("OpenTelemetry metrics initialized")
	return otelMetrics
}

// ClassifyError categorizes errors for metric labels to keep cardinality low.
// Ledger failures map to their kind name; anything else is bucketed by message.
func ClassifyError(err error) string {
	if err == nil {
		return "none"
	}
	if errs.IsUserError(err) {
		return errs.Kind(err)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "insufficient balance"):
		return "insufficient_balance"
	case strings.Contains(errStr, "connection"):
		return "connection_error"
	case strings.Contains(errStr, "database") || strings.Contains(errStr, "sql"):
		return "database_error"
	default:
		return "unknown"
	}
}
