// Package proxy implements the typed façade client code holds instead of a
// raw *runtime.Environment: every application-level call becomes a closure
// packaged into a mailbox.Invocation, plus a fixed set of synchronous
// metadata operations that bypass the mailbox entirely.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fergusinlondon/actorstage/execctx"
	"github.com/fergusinlondon/actorstage/mailbox"
	"github.com/fergusinlondon/actorstage/runtime"
)

// ErrInvokeOnNilTarget completes every invocation made through a proxy
// built around a nil Environment, so the mistake surfaces as an error on
// the returned Future instead of a nil-pointer panic inside Invoke.
var ErrInvokeOnNilTarget = errors.New("actorstage: proxy constructed with a nil environment")

// Future is the handle a caller uses to await an invocation's result.
// It wraps mailbox.Completion so callers outside package mailbox never
// import it directly.
type Future struct {
	completion *mailbox.Completion
}

// Wait blocks until the invocation completes and returns its result.
func (f Future) Wait() (any, error) {
	return f.completion.Wait()
}

// WaitContext blocks until the invocation completes or ctx is done,
// whichever comes first.
func (f Future) WaitContext(ctx context.Context) (any, error) {
	select {
	case <-f.completion.Done():
		return f.completion.Wait()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Done exposes the underlying completion channel for select statements.
func (f Future) Done() <-chan struct{} {
	return f.completion.Done()
}

// Base is embedded by every generated typed proxy. It holds the target
// Environment and implements both the fixed synchronous metadata surface
// and execctx.Collaborator, so an actor can declare a proxy field as a
// collaborator and have outgoing calls automatically tagged with its
// current execution context.
type Base struct {
	target *runtime.Environment
	// declared is the per-call execution context most recently propagated
	// to this proxy by a Context.Propagate() call; nil until first use,
	// meaning "snapshot the target's own ExecutionContext instead".
	declared map[string]any
}

// NewBase constructs a Base bound to target. Generated typed proxies embed
// this and call NewBase from their own constructor.
func NewBase(target *runtime.Environment) Base {
	return Base{target: target}
}

// SetExecutionContext implements execctx.Collaborator: it is called by
// Context.Propagate() to hand this proxy the snapshot of the calling
// actor's current execution context, consulted by the next Invoke call.
func (b *Base) SetExecutionContext(entries map[string]any) {
	b.declared = entries
}

// --- fixed synchronous metadata operations (bypass the mailbox) ---

// Address returns the target actor's address string.
func (b Base) Address() string { return b.target.Address() }

// TypeName returns the target actor's registered type name.
func (b Base) TypeName() string { return b.target.TypeName() }

// LifeCycle returns the target actor's current lifecycle state.
func (b Base) LifeCycle() runtime.State { return b.target.State() }

// IsStopped reports whether the target actor has fully stopped.
func (b Base) IsStopped() bool { return b.target.IsStopped() }

// SupervisorName returns the name under which the target actor's
// supervisor is registered.
func (b Base) SupervisorName() string { return b.target.SupervisorName() }

// Stage returns the owning Stage, as the narrow StageFacade surface.
func (b Base) Stage() runtime.StageFacade { return b.target.Stage() }

// ParentAddress returns the target's parent address, or "" if it is a
// root actor.
func (b Base) ParentAddress() string {
	if p := b.target.Parent(); p != nil {
		return p.Address()
	}
	return ""
}

// ChildAddresses returns the addresses of the target's current children.
func (b Base) ChildAddresses() []string {
	children := b.target.Children()
	out := make([]string, len(children))
	for i, c := range children {
		out[i] = c.Address()
	}
	return out
}

// MailboxStats returns a point-in-time snapshot of the target's mailbox.
func (b Base) MailboxStats() mailbox.Stats { return b.target.Mailbox().Snapshot() }

// ExecutionContext returns the target's own declarative outgoing
// execution context (the one it mutates to tag its own downstream calls).
func (b Base) ExecutionContext() execctx.Context { return b.target.ExecutionContext() }

// --- invocation packaging ---

// Invoke packages closure into an Invocation and sends it to the target's
// mailbox, returning a Future for the result. representation is a short,
// human-readable label used in logs and dead-letter reports (conventionally
// "TypeName.MethodName").
func (b Base) Invoke(representation string, closure func(actor any) (any, error)) Future {
	completion := mailbox.NewCompletion()
	if b.target == nil {
		completion.CompleteError(ErrInvokeOnNilTarget)
		return Future{completion: completion}
	}

	snapshot := b.currentSnapshot()

	b.target.Mailbox().Send(&mailbox.Invocation{
		Representation:           representation,
		Closure:                  closure,
		Completion:               completion,
		ExecutionContextSnapshot: snapshot,
	})

	return Future{completion: completion}
}

// InvokeAndWait is a convenience wrapper around Invoke for callers that
// want a synchronous call with a bounded wait.
func (b Base) InvokeAndWait(ctx context.Context, representation string, closure func(actor any) (any, error)) (any, error) {
	return b.Invoke(representation, closure).WaitContext(ctx)
}

// currentSnapshot builds the execution context this call should carry: if
// a context was propagated to this proxy (via Collaborators/Propagate) it
// takes precedence; otherwise the call carries a copy of the target's own
// ExecutionContext when it holds any keys, and the empty context when not.
func (b Base) currentSnapshot() execctx.Context {
	if b.declared == nil {
		if own := b.target.ExecutionContext(); own.HasContext() {
			return own.Copy()
		}
		return execctx.Empty()
	}
	snapshot := execctx.New()
	for k, v := range b.declared {
		snapshot.Set(k, v)
	}
	return snapshot
}

// Timeout is a small helper for building a bounded WaitContext call
// without every typed proxy method re-deriving a context.
func Timeout(d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), d)
}

// Errorf wraps invocation-site errors with the proxy's representation,
// matching the %w-wrapping convention used across the runtime.
func Errorf(representation string, err error) error {
	return fmt.Errorf("%s: %w", representation, err)
}
