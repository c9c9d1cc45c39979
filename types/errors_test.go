package types

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSentinelErrors_Wrapping(t *testing.T) {
	wrapped := fmt.Errorf("assign member 7: %w", ErrPoolExhausted)
	require.ErrorIs(t, wrapped, ErrPoolExhausted)
	require.NotErrorIs(t, wrapped, ErrAlreadyAssigned)
}

func TestIsNoKeysFoundError(t *testing.T) {
	require.False(t, IsNoKeysFoundError(nil))
	require.True(t, IsNoKeysFoundError(ErrNoKeysFound))
	require.True(t, IsNoKeysFoundError(fmt.Errorf("list keys: %w", ErrNoKeysFound)))
	require.True(t, IsNoKeysFoundError(errors.New("nats: no keys found")))
	require.False(t, IsNoKeysFoundError(errors.New("nats: timeout")))
}
