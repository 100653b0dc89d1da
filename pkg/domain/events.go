package domain

import (
	"context"
	"time"
)

// MutationType defines the kind of stack mutation.
type MutationType string

const (
	MutationSetImage   MutationType = "set_image"
	MutationAddVersion MutationType = "add_version"
	MutationUndo       MutationType = "undo"
	MutationRedo       MutationType = "redo"
	MutationReset      MutationType = "reset"
)

// MutationEvent describes a committed stack mutation.
type MutationEvent struct {
	Timestamp time.Time    `json:"timestamp"`
	Type      MutationType `json:"type"`
	SessionID string       `json:"session_id"`
	Pointer   int          `json:"pointer"`
	Version   VersionID    `json:"version_id,omitempty"`
	Evicted   []VersionID  `json:"evicted,omitempty"`
}

// LifecycleHooks defines callbacks for stack observability.
// Hooks run after the mutation is persisted, while the stack lock is held;
// they must not call back into the stack.
type LifecycleHooks struct {
	OnMutation func(context.Context, *MutationEvent)
	OnEvict    func(context.Context, []VersionID)
}

// CombineHooks returns hooks that call each of hooks in order.
func CombineHooks(hooks ...LifecycleHooks) LifecycleHooks {
	var out LifecycleHooks
	for _, h := range hooks {
		if h.OnMutation != nil {
			prev, next := out.OnMutation, h.OnMutation
			out.OnMutation = func(ctx context.Context, ev *MutationEvent) {
				if prev != nil {
					prev(ctx, ev)
				}
				next(ctx, ev)
			}
		}
		if h.OnEvict != nil {
			prev, next := out.OnEvict, h.OnEvict
			out.OnEvict = func(ctx context.Context, ids []VersionID) {
				if prev != nil {
					prev(ctx, ids)
				}
				next(ctx, ids)
			}
		}
	}
	return out
}
