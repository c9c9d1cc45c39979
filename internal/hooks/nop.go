// Package hooks provides the default no-op session hooks.
package hooks

import (
	"context"

	"github.com/arloliu/slotpool/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are
// provided, eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, types.Role, types.Role) error = (*NopHooks)(nil).OnRoleChanged
	_ func(context.Context, types.MemberID) error         = (*NopHooks)(nil).OnCapacityExhausted
	_ func(context.Context, error) error                  = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnRoleChanged:       h.OnRoleChanged,
		OnCapacityExhausted: h.OnCapacityExhausted,
		OnError:             h.OnError,
	}
}

// OnRoleChanged is a no-op implementation.
func (h *NopHooks) OnRoleChanged(_ context.Context, _, _ types.Role) error {
	return nil
}

// OnCapacityExhausted is a no-op implementation.
func (h *NopHooks) OnCapacityExhausted(_ context.Context, _ types.MemberID) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(_ context.Context, _ error) error {
	return nil
}
