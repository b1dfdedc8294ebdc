// Package runtime implements the per-actor Environment, the Actor base
// with its lifecycle hooks, and the Definition/Protocol contracts used to
// instantiate actors. Stage (in package stage) is the only code that
// constructs an Environment; everything here depends downward only on
// address, execctx, mailbox, supervision, rtlog, and scheduler.
package runtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fergusinlondon/actorstage/address"
	"github.com/fergusinlondon/actorstage/execctx"
	"github.com/fergusinlondon/actorstage/mailbox"
	"github.com/fergusinlondon/actorstage/rtlog"
	"github.com/fergusinlondon/actorstage/scheduler"
	"github.com/fergusinlondon/actorstage/supervision"
)

// Definition is the immutable triple (type_name, address, parameter_vector)
// describing how an actor was created.
type Definition struct {
	TypeName   string
	Address    address.Address
	Parameters []any
}

// Protocol carries the type name used to locate root actors/supervisors in
// the Directory, and the instantiator that builds a fresh Actor from a
// Definition's parameters.
type Protocol interface {
	TypeName() string
	Instantiate(env *Environment, params []any) (Actor, error)
}

// Actor is the minimal contract every actor instance satisfies: a way back
// to its owning Environment. User actors embed Base, which implements this.
type Actor interface {
	Environment() *Environment
}

// Hook interfaces. All are defaultable to no-op; an actor implements only
// the ones it needs.
type (
	BeforeStarter interface {
		BeforeStart(ctx context.Context) error
	}
	Starter interface {
		Start(ctx context.Context) error
	}
	BeforeRestarter interface {
		BeforeRestart(ctx context.Context, cause error)
	}
	AfterRestarter interface {
		AfterRestart(ctx context.Context, cause error)
	}
	BeforeResumer interface {
		BeforeResume(ctx context.Context, cause error)
	}
	BeforeStopper interface {
		BeforeStop(ctx context.Context) error
	}
	AfterStopper interface {
		AfterStop(ctx context.Context)
	}
)

// State is an actor's lifecycle state.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateSuspended
	StateRestarting
	StateStopping
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateSuspended:
		return "suspended"
	case StateRestarting:
		return "restarting"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ErrStopTimeout is returned by StopWithTimeout when the stop sequence does
// not finish within the given deadline.
var ErrStopTimeout = errors.New("actorstage: stop timed out")

// ErrValueNotRegistered is returned by StageFacade.RegisteredValue when no
// value is registered under the given name.
var ErrValueNotRegistered = errors.New("actorstage: value not registered")

// SpawnRequest describes a new actor to create, used both for top-level
// Stage.ActorFor calls and for Environment.ChildActorFor.
type SpawnRequest struct {
	Protocol       Protocol
	Parameters     []any
	SupervisorName string
	MailboxOptions mailbox.Options
	// Parent is the new actor's parent. When nil, Stage creates the actor
	// with no parent (a top-level actor); no default parent is substituted.
	Parent *Environment
	// IsRoot is not read by Stage's spawn path, and nothing in this module
	// sets it.
	IsRoot bool
}

// StageFacade is the back-reference every Environment holds to its owning
// Stage. Declaring it here (rather than importing package stage) keeps the
// dependency arrow pointing from stage down to runtime, never the reverse.
type StageFacade interface {
	NewAddress() address.Address
	ResolveSupervisorByName(name string) (supervision.Supervisor, bool)
	ReportFailure(env *Environment, err error)
	RemoveFromDirectory(addr address.Address)
	DeadLetters() mailbox.DeadLetterSink
	Logger() rtlog.Logger
	Scheduler() scheduler.Scheduler
	CreateChild(parent *Environment, req SpawnRequest) (*Environment, error)
	ActorOf(addr address.Address) (*Environment, bool)
	RegisterValue(name string, v any)
	RegisteredValue(name string) (any, error)
	DeregisterValue(name string) (any, bool)
}

// Environment is the per-actor runtime context: address, definition,
// parent handle, mailbox, logger, supervisor name, children list, and the
// execution-context slots for the currently-delivered invocation.
type Environment struct {
	stage      StageFacade
	address    address.Address
	definition Definition
	protocol   Protocol
	logger     rtlog.Logger
	mbox       *mailbox.Mailbox

	mu       sync.RWMutex
	state    State
	parent   *Environment
	children []*Environment

	supervisorMu    sync.Mutex
	supervisorName  string
	supervisorCache supervision.Supervisor

	actorMu sync.RWMutex
	actor   Actor

	ctxMu      sync.RWMutex
	outgoing   execctx.Context
	current    execctx.Context
}

// New constructs an Environment. Only package stage calls this in
// production; it is exported so stage (and tests of either package) can
// build one without runtime reaching upward to import stage itself.
func New(stage StageFacade, addr address.Address, def Definition, proto Protocol, parent *Environment, supervisorName string, logger rtlog.Logger, mboxOpts mailbox.Options) *Environment {
	env := &Environment{
		stage:          stage,
		address:        addr,
		definition:     def,
		protocol:       proto,
		logger:         logger,
		state:          StateStarting,
		parent:         parent,
		supervisorName: supervisorName,
		outgoing:       execctx.New(),
		current:        execctx.Empty(),
	}
	mboxOpts.Provider = env
	mboxOpts.DeadLetters = stage.DeadLetters()
	mboxOpts.Failures = failureAdapter{stage: stage}
	mboxOpts.Logger = logger
	env.mbox = mailbox.New(mboxOpts)
	return env
}

// failureAdapter bridges mailbox.FailureSink (which only knows about
// mailbox.ActorProvider) back to StageFacade.ReportFailure (which wants the
// concrete *Environment for restart/stop access).
type failureAdapter struct {
	stage StageFacade
}

func (f failureAdapter) ReportFailure(provider mailbox.ActorProvider, err error) {
	if env, ok := provider.(*Environment); ok {
		f.stage.ReportFailure(env, err)
	}
}

// --- mailbox.ActorProvider ---

func (e *Environment) CurrentActor() any {
	e.actorMu.RLock()
	defer e.actorMu.RUnlock()
	return e.actor
}

func (e *Environment) IsStopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state == StateStopped
}

func (e *Environment) PublishExecutionContext(ctx execctx.Context) {
	e.ctxMu.Lock()
	e.current = ctx
	e.ctxMu.Unlock()
}

func (e *Environment) ClearExecutionContext() {
	e.ctxMu.Lock()
	e.current = execctx.Empty()
	e.ctxMu.Unlock()
}

// --- directory.Entry ---

func (e *Environment) Address() string { return e.address.String() }

func (e *Environment) TypeName() string { return e.definition.TypeName }

// --- accessors ---

// RawAddress returns the typed Address rather than its string projection.
func (e *Environment) RawAddress() address.Address { return e.address }

func (e *Environment) Definition() Definition { return e.definition }

func (e *Environment) Mailbox() *mailbox.Mailbox { return e.mbox }

func (e *Environment) Logger() rtlog.Logger { return e.logger }

func (e *Environment) Stage() StageFacade { return e.stage }

func (e *Environment) Parent() *Environment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.parent
}

// Children returns a point-in-time snapshot; the live slice is append-only
// at create time and sparse on stop, guarded by e.mu.
func (e *Environment) Children() []*Environment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*Environment, len(e.children))
	copy(out, e.children)
	return out
}

// AddChild registers child as one of e's children. Called by Stage right
// after a child actor is created and registered, before its Start hook runs.
func (e *Environment) AddChild(child *Environment) {
	e.mu.Lock()
	e.children = append(e.children, child)
	e.mu.Unlock()
}

func (e *Environment) removeChild(addr address.Address) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, c := range e.children {
		if c.address.Equals(addr) {
			e.children = append(e.children[:i], e.children[i+1:]...)
			return
		}
	}
}

func (e *Environment) State() State {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Environment) setState(s State) {
	e.mu.Lock()
	e.state = s
	e.mu.Unlock()
}

// ExecutionContext returns the actor's own declarative context for
// outgoing invocations (the one a Proxy snapshots on every async call).
func (e *Environment) ExecutionContext() execctx.Context {
	e.ctxMu.RLock()
	defer e.ctxMu.RUnlock()
	return e.outgoing
}

// CurrentMessageExecutionContext returns the snapshot of the
// currently-delivered invocation's execution context. Valid only while a
// delivery frame for this actor is on the stack (i.e. called from within a
// Handle/operation body, or from a Supervisor's Supervise during the
// synchronous failure path in Stage.ReportFailure).
func (e *Environment) CurrentMessageExecutionContext() execctx.Context {
	e.ctxMu.RLock()
	defer e.ctxMu.RUnlock()
	return e.current
}

// ResolveSupervisor resolves the actor's supervisor name into a handle,
// caching the result. The cache is cleared on restart (see Restart) so a
// re-registered type name is picked up on the actor's next failure,
// addressing the staleness note in spec §9.
func (e *Environment) ResolveSupervisor() (supervision.Supervisor, bool) {
	e.supervisorMu.Lock()
	defer e.supervisorMu.Unlock()
	if e.supervisorCache != nil {
		return e.supervisorCache, true
	}
	sup, ok := e.stage.ResolveSupervisorByName(e.supervisorName)
	if ok {
		e.supervisorCache = sup
	}
	return sup, ok
}

func (e *Environment) SupervisorName() string {
	e.supervisorMu.Lock()
	defer e.supervisorMu.Unlock()
	return e.supervisorName
}

func (e *Environment) clearSupervisorCache() {
	e.supervisorMu.Lock()
	e.supervisorCache = nil
	e.supervisorMu.Unlock()
}

// Bind is called once, by Stage, right after instantiation, to install the
// first actor instance and flip the state to Running.
func (e *Environment) Bind(actor Actor) {
	e.actorMu.Lock()
	e.actor = actor
	e.actorMu.Unlock()
	e.setState(StateRunning)
}

// ChildActorFor creates a new actor whose parent is this actor. The
// address of any definition implied by params is ignored: Stage always
// mints a fresh address for a child, per spec §4.4.
func (e *Environment) ChildActorFor(protocol Protocol, supervisorName string, mboxOpts mailbox.Options, params ...any) (*Environment, error) {
	if supervisorName == "" {
		supervisorName = e.SupervisorName()
	}
	return e.stage.CreateChild(e, SpawnRequest{
		Protocol:       protocol,
		Parameters:     params,
		SupervisorName: supervisorName,
		MailboxOptions: mboxOpts,
		Parent:         e,
	})
}

// Restart replaces the current actor instance with a freshly-instantiated
// one built from the stored Definition's parameters. Address, Mailbox,
// children, parent, and supervisor name are preserved; the supervisor
// cache is cleared so a restarted actor re-resolves its supervisor name.
func (e *Environment) Restart(cause error) error {
	e.setState(StateRestarting)

	actor := e.CurrentActor()
	if br, ok := actor.(BeforeRestarter); ok {
		safeVoid(e.logger, "before_restart", func() { br.BeforeRestart(context.Background(), cause) })
	}

	fresh, err := e.protocol.Instantiate(e, e.definition.Parameters)
	if err != nil {
		e.logger.Error("restart: instantiate failed", rtlog.Err(err))
		e.setState(StateRunning)
		return fmt.Errorf("restart instantiate: %w", err)
	}

	e.Bind(fresh)
	e.clearSupervisorCache()

	if ar, ok := fresh.(AfterRestarter); ok {
		safeVoid(e.logger, "after_restart", func() { ar.AfterRestart(context.Background(), cause) })
	}
	return nil
}

// Resume calls BeforeResume on the current actor instance (log-and-continue
// on hook failure). Resuming the mailbox itself is the caller's job (Stage,
// applying a Resume directive), since Environment has no opinion on when
// that should happen relative to the hook.
func (e *Environment) Resume(cause error) {
	actor := e.CurrentActor()
	if br, ok := actor.(BeforeResumer); ok {
		safeVoid(e.logger, "before_resume", func() { br.BeforeResume(context.Background(), cause) })
	}
	e.setState(StateRunning)
}

// Stop executes the seven-step stop sequence from spec §4.4. Calling Stop
// on an already-stopped actor is a no-op returning nil.
func (e *Environment) Stop(ctx context.Context) error {
	e.mu.Lock()
	if e.state == StateStopped || e.state == StateStopping {
		e.mu.Unlock()
		return nil
	}
	e.state = StateStopping
	e.mu.Unlock()

	actor := e.CurrentActor()
	if bs, ok := actor.(BeforeStopper); ok {
		if err := safeCall(func() error { return bs.BeforeStop(ctx) }); err != nil {
			e.logger.Error("before_stop hook failed", rtlog.String("address", e.Address()), rtlog.Err(err))
		}
	}

	for _, child := range reversed(e.Children()) {
		if err := child.Stop(ctx); err != nil {
			e.logger.Error("child stop failed", rtlog.String("child", child.Address()), rtlog.Err(err))
		}
	}

	if p := e.Parent(); p != nil {
		p.removeChild(e.address)
	}

	e.mbox.Close()
	e.stage.RemoveFromDirectory(e.address)

	e.setState(StateStopped)

	if as, ok := actor.(AfterStopper); ok {
		safeVoid(e.logger, "after_stop", func() { as.AfterStop(ctx) })
	}
	return nil
}

// StopWithTimeout bounds Stop by timeout. On timeout the mailbox is
// force-closed immediately and a timeout error is returned, while the stop
// sequence continues running in the background to completion.
func (e *Environment) StopWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		return e.Stop(context.Background())
	}

	done := make(chan error, 1)
	go func() { done <- e.Stop(context.Background()) }()

	select {
	case err := <-done:
		return err
	case <-time.After(timeout):
		e.mbox.Close()
		return fmt.Errorf("%w: %s", ErrStopTimeout, e.Address())
	}
}

func reversed(envs []*Environment) []*Environment {
	out := make([]*Environment, len(envs))
	for i, e := range envs {
		out[len(envs)-1-i] = e
	}
	return out
}

func safeCall(fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("recovered panic: %v", r)
		}
	}()
	return fn()
}

func safeVoid(logger rtlog.Logger, hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("hook panicked", rtlog.String("hook", hook), rtlog.Any("recovered", r))
		}
	}()
	fn()
}
