// Package hooks provides default lifecycle hook implementations.
package hooks

import (
	"context"

	"github.com/arloliu/puzzlepool/types"
)

// NopHooks implements every lifecycle callback as a no-op.
//
// The pool starts from NewNop and fills in whatever the caller supplied, so
// call sites never need nil checks.
type NopHooks struct{}

// Compile-time assertions that NopHooks provides the hook callbacks.
var (
	_ func(context.Context, *types.Assignment) error = (*NopHooks)(nil).OnBlockAssigned
	_ func(context.Context, error) error             = (*NopHooks)(nil).OnError
)

// NewNop creates a new no-op hooks implementation.
//
// Returns:
//   - types.Hooks: Hooks with no-op implementations
func NewNop() types.Hooks {
	h := &NopHooks{}
	return types.Hooks{
		OnBlockAssigned:  h.OnBlockAssigned,
		OnBlockCompleted: h.OnBlockCompleted,
		OnBlockExpired:   h.OnBlockExpired,
		OnError:          h.OnError,
	}
}

// Merge returns defaults with every non-nil callback of custom applied on top.
func Merge(custom *types.Hooks) types.Hooks {
	h := NewNop()
	if custom == nil {
		return h
	}
	if custom.OnBlockAssigned != nil {
		h.OnBlockAssigned = custom.OnBlockAssigned
	}
	if custom.OnBlockCompleted != nil {
		h.OnBlockCompleted = custom.OnBlockCompleted
	}
	if custom.OnBlockExpired != nil {
		h.OnBlockExpired = custom.OnBlockExpired
	}
	if custom.OnError != nil {
		h.OnError = custom.OnError
	}

	return h
}

// OnBlockAssigned is a no-op implementation.
func (h *NopHooks) OnBlockAssigned(context.Context, *types.Assignment) error {
	return nil
}

// OnBlockCompleted is a no-op implementation.
func (h *NopHooks) OnBlockCompleted(context.Context, *types.Assignment) error {
	return nil
}

// OnBlockExpired is a no-op implementation.
func (h *NopHooks) OnBlockExpired(context.Context, *types.Assignment) error {
	return nil
}

// OnError is a no-op implementation.
func (h *NopHooks) OnError(context.Context, error) error {
	return nil
}
