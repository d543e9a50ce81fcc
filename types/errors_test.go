package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelErrors(t *testing.T) {
	t.Run("wrapped errors maintain identity", func(t *testing.T) {
		wrapped := fmt.Errorf("persist attempt 5: %w", ErrAllocationFailed)
		require.ErrorIs(t, wrapped, ErrAllocationFailed)
		require.NotErrorIs(t, wrapped, ErrKeyspaceExhausted)
	})

	t.Run("all errors are distinct", func(t *testing.T) {
		allErrors := []error{
			ErrLockTimeout,
			ErrKeyspaceExhausted,
			ErrAllocationFailed,
			ErrInvalidRange,
			ErrOwnerRequired,
			ErrUniqueViolation,
			ErrNotFound,
			ErrNotOwner,
			ErrNotActive,
			ErrCheckworkMismatch,
			ErrInvalidScalar,
			ErrInvalidConfig,
			ErrStoreRequired,
			ErrLockRequired,
			ErrDeriverRequired,
			ErrConnectivity,
			ErrNoKeysFound,
		}

		for i, err1 := range allErrors {
			for j, err2 := range allErrors {
				if i == j {
					require.ErrorIs(t, err1, err2)
				} else {
					require.False(t, errors.Is(err1, err2), "errors should be distinct: %v vs %v", err1, err2)
				}
			}
		}
	})
}

func TestIsRetryable(t *testing.T) {
	require.True(t, IsRetryable(ErrLockTimeout))
	require.True(t, IsRetryable(fmt.Errorf("allocate: %w", ErrAllocationFailed)))
	require.True(t, IsRetryable(errors.Join(ErrConnectivity, errors.New("i/o timeout"))))
	require.False(t, IsRetryable(ErrKeyspaceExhausted))
	require.False(t, IsRetryable(ErrInvalidRange))
	require.False(t, IsRetryable(nil))
}

func TestIsNoKeysFoundError(t *testing.T) {
	t.Run("returns false for nil error", func(t *testing.T) {
		require.False(t, IsNoKeysFoundError(nil))
	})

	t.Run("returns true for sentinel ErrNoKeysFound", func(t *testing.T) {
		require.True(t, IsNoKeysFoundError(ErrNoKeysFound))
	})

	t.Run("returns true for wrapped NATS error message", func(t *testing.T) {
		natsErr := errors.New("failed to list KV keys: nats: no keys found")
		require.True(t, IsNoKeysFoundError(natsErr))
	})

	t.Run("returns false for unrelated error", func(t *testing.T) {
		require.False(t, IsNoKeysFoundError(errors.New("some other error")))
		require.False(t, IsNoKeysFoundError(ErrNotFound))
	})
}
