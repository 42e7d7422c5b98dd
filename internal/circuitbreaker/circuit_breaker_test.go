package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vestival/algorand-tracker/internal/errors"
)

func newTestBreaker() (*CircuitBreaker, *time.Time) {
	now := time.Date(2026, 2, 16, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(&Config{Name: "indexer", MaxFailures: 2, Timeout: time.Minute, HalfOpenMaxCalls: 1})
	cb.now = func() time.Time { return now }
	return cb, &now
}

func transient(ctx context.Context) error {
	return apperrors.NewProviderError("indexer", errors.New("503"))
}

func ok(ctx context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	cb, _ := newTestBreaker()
	ctx := context.Background()

	_ = cb.Execute(ctx, transient)
	assert.Equal(t, StateClosed, cb.GetState())
	_ = cb.Execute(ctx, transient)
	assert.Equal(t, StateOpen, cb.GetState())

	called := false
	err := cb.Execute(ctx, func(ctx context.Context) error { called = true; return nil })
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
	assert.True(t, apperrors.IsRetryable(err))
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	cb, now := newTestBreaker()
	ctx := context.Background()
	_ = cb.Execute(ctx, transient)
	_ = cb.Execute(ctx, transient)

	*now = now.Add(2 * time.Minute)
	require.NoError(t, cb.Execute(ctx, ok))
	assert.Equal(t, StateClosed, cb.GetState())
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, now := newTestBreaker()
	ctx := context.Background()
	_ = cb.Execute(ctx, transient)
	_ = cb.Execute(ctx, transient)

	*now = now.Add(2 * time.Minute)
	_ = cb.Execute(ctx, transient)
	assert.Equal(t, StateOpen, cb.GetState())
}

func TestCircuitBreaker_IgnoresClientErrors(t *testing.T) {
	cb, _ := newTestBreaker()
	ctx := context.Background()
	notFound := func(ctx context.Context) error { return apperrors.NewProviderStatusError("indexer", 404) }

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, notFound)
	}
	assert.Equal(t, StateClosed, cb.GetState())

	stats := cb.GetStats()
	assert.Equal(t, 5, stats.TotalCalls)
	assert.Equal(t, 0, stats.TotalFailures)
}
