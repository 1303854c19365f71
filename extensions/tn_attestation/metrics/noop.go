package metrics

import (
	"context"
	"math/big"
)

// NoOpMetrics is a no-op implementation of MetricsRecorder.
type NoOpMetrics struct{}

// NewNoOpMetrics creates a new no-op metrics recorder.
func NewNoOpMetrics() MetricsRecorder {
	return &NoOpMetrics{}
}

func (n *NoOpMetrics) RecordAttested(ctx context.Context, operation string, count int)          {}
func (n *NoOpMetrics) RecordRevoked(ctx context.Context, operation string, count int)           {}
func (n *NoOpMetrics) RecordRejected(ctx context.Context, operation string, errType string)     {}
func (n *NoOpMetrics) RecordValueForwarded(ctx context.Context, operation string, wei *big.Int) {}
