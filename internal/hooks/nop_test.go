package hooks

import (
	"context"
	"testing"

	"github.com/arloliu/slotpool/types"
	"github.com/stretchr/testify/require"
)

func TestNewNop_AllCallbacksSet(t *testing.T) {
	h := NewNop()

	require.NotNil(t, h.OnRoleChanged)
	require.NotNil(t, h.OnCapacityExhausted)
	require.NotNil(t, h.OnError)

	ctx := context.Background()
	require.NoError(t, h.OnRoleChanged(ctx, types.RoleFollower, types.RoleCoordinator))
	require.NoError(t, h.OnCapacityExhausted(ctx, 7))
	require.NoError(t, h.OnError(ctx, types.ErrPoolExhausted))
}
