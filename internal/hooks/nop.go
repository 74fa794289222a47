// Package hooks provides default hook implementations.
package hooks

import (
	"context"

	"github.com/arloliu/chorus/types"
)

// NopHooks implements Hooks with no-op callbacks.
//
// This is the default implementation used when no custom hooks are provided,
// eliminating the need for nil checks throughout the codebase.
type NopHooks struct{}

// Compile-time assertions that NopHooks implements hook callbacks.
var (
	_ func(context.Context, string, int) error    = (*NopHooks)(nil).OnGuildResumed
	_ func(context.Context, string, string) error = (*NopHooks)(nil).OnOwnershipLost
	_ func(context.Context, bool) error           = (*NopHooks)(nil).OnPrimaryChanged
	_ func(context.Context, error) error          = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnGuildResumed:   h.OnGuildResumed,
		OnOwnershipLost:  h.OnOwnershipLost,
		OnPrimaryChanged: h.OnPrimaryChanged,
		OnError:          h.OnError,
	}
}

// Fill returns h with every nil callback replaced by its no-op counterpart.
//
// Parameters:
//   - h: User supplied hooks (may be nil)
//
// Returns:
//   - *types.Hooks: Hooks safe to call without nil checks
func Fill(h *types.Hooks) *types.Hooks {
	nop := NewNop()
	if h == nil {
		return &nop
	}

	filled := *h
	if filled.OnGuildResumed == nil {
		filled.OnGuildResumed = nop.OnGuildResumed
	}
	if filled.OnOwnershipLost == nil {
		filled.OnOwnershipLost = nop.OnOwnershipLost
	}
	if filled.OnPrimaryChanged == nil {
		filled.OnPrimaryChanged = nop.OnPrimaryChanged
	}
	if filled.OnError == nil {
		filled.OnError = nop.OnError
	}

	return &filled
}

// OnGuildResumed is a no-op implementation.
func (h *NopHooks) OnGuildResumed(ctx context.Context, guildID string, tracks int) error {
	return nil
}

// OnOwnershipLost is a no-op implementation.
func (h *NopHooks) OnOwnershipLost(ctx context.Context, guildID, newOwner string) error {
	return nil
}

// OnPrimaryChanged is a no-op implementation.
func (h *NopHooks) OnPrimaryChanged(ctx context.Context, isPrimary bool) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(ctx context.Context, err error) error {
	return nil
}
