package metrics

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/trufnetwork/attestation-registry/internal/errs"
)

func TestNoOpMetrics(t *testing.T) {
	ctx := context.Background()
	m := NewNoOpMetrics()

	// Should not panic
	m.RecordAttested(ctx, "attest", 1)
	m.RecordRevoked(ctx, "multi_revoke", 3)
	m.RecordRejected(ctx, "attest", "InvalidAttestation")
	m.RecordValueForwarded(ctx, "attest", big.NewInt(10))
	m.RecordValueForwarded(ctx, "attest", nil)
}

func TestOTELMetricsWithNoopMeter(t *testing.T) {
	m, err := NewOTELMetrics(noop.NewMeterProvider().Meter("test"), zap.NewNop().Sugar())
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordAttested(ctx, "multi_attest", 2)
	m.RecordRejected(ctx, "revoke", "InvalidRevocation")
	m.RecordValueForwarded(ctx, "attest", big.NewInt(0))
	m.RecordValueForwarded(ctx, "attest", new(big.Int).Lsh(big.NewInt(1), 100))
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{
			name:     "nil error",
			err:      nil,
			expected: "none",
		},
		{
			name:     "ledger kind",
			err:      fmt.Errorf("attest #1: %w", errs.ErrInvalidExpirationTime),
			expected: errs.KindInvalidAttestation,
		},
		{
			name:     "insufficient value wins",
			err:      fmt.Errorf("%w: %w", errs.ErrInvalidRevocation, errs.ErrInsufficientValue),
			expected: errs.KindInsufficientValue,
		},
		{
			name:     "timeout error",
			err:      fmt.Errorf("execute: %w", context.DeadlineExceeded),
			expected: "timeout",
		},
		{
			name:     "cancelled error",
			err:      context.Canceled,
			expected: "cancelled",
		},
		{
			name:     "host balance",
			err:      errors.New("insufficient balance for transfer: 0x01 has 0"),
			expected: "insufficient_balance",
		},
		{
			name:     "database error",
			err:      errors.New("sql: no rows"),
			expected: "database_error",
		},
		{
			name:     "unknown error",
			err:      errors.New("something went wrong"),
			expected: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, ClassifyError(tt.err))
		})
	}
}

func TestNewMetricsRecorder(t *testing.T) {
	m := NewMetricsRecorder(zap.NewNop().Sugar())
	require.NotNil(t, m)

	m.RecordAttested(context.Background(), "attest", 1)
}
