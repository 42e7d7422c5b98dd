package retry

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/vestival/algorand-tracker/internal/errors"
)

func fastConfig() *Config {
	return &Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     2 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestDo_RetriesProviderErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		if attempt < 3 {
			return apperrors.NewProviderError("indexer", errors.New("timeout"))
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		return apperrors.NewProviderStatusError("indexer", 404)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	var catErr *apperrors.CategorizedError
	assert.True(t, errors.As(err, &catErr))
}

func TestDo_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), fastConfig(), func(ctx context.Context, attempt int) error {
		calls++
		return apperrors.NewProviderError("price", fmt.Errorf("attempt %d", attempt))
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Contains(t, err.Error(), "attempt 3")
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := fastConfig()
	cfg.InitialDelay = time.Second
	cfg.MaxDelay = time.Second

	err := Do(ctx, cfg, func(ctx context.Context, attempt int) error {
		cancel()
		return apperrors.NewProviderError("indexer", errors.New("boom"))
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	cfg := &Config{InitialDelay: 250 * time.Millisecond, MaxDelay: time.Second, Multiplier: 2}
	assert.Equal(t, 250*time.Millisecond, calculateDelay(cfg, 1))
	assert.Equal(t, 500*time.Millisecond, calculateDelay(cfg, 2))
	assert.Equal(t, time.Second, calculateDelay(cfg, 4))
}
