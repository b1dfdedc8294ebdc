// Package stage implements the actor factory, address directory, failure
// router, and value registry that ties every other package together. A
// Stage is the one object an application constructs directly; everything
// else (actors, proxies, supervisors) flows from it.
package stage

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/fergusinlondon/actorstage/address"
	"github.com/fergusinlondon/actorstage/directory"
	"github.com/fergusinlondon/actorstage/mailbox"
	"github.com/fergusinlondon/actorstage/rtconfig"
	"github.com/fergusinlondon/actorstage/rtlog"
	"github.com/fergusinlondon/actorstage/runtime"
	"github.com/fergusinlondon/actorstage/scheduler"
	"github.com/fergusinlondon/actorstage/supervision"
)

// ErrSpawnRequiresProtocol guards against a zero-value SpawnRequest.
var ErrSpawnRequiresProtocol = errors.New("stage: spawn requires a protocol")

// defaultSupervisorName is the reserved name ("default", alongside
// __privateRoot and __publicRoot) every actor gets when it declares no
// supervisor of its own.
const defaultSupervisorName = "default"

// Option configures a Stage at construction time.
type Option func(*options)

type options struct {
	cfg                 *rtconfig.Config
	logger              rtlog.Logger
	addrFactory         address.Factory
	scheduler           scheduler.Scheduler
	deadLetterListeners []mailbox.DeadLetterSink
}

// WithConfig supplies a loaded rtconfig.Config, overriding directory
// sizing, mailbox defaults, and the logger settings used when no
// WithLogger is given. Its Supervisor section is not read by Stage.
func WithConfig(cfg *rtconfig.Config) Option { return func(o *options) { o.cfg = cfg } }

// WithLogger installs a logger built and configured by the caller, instead
// of the one Stage would otherwise build from cfg.Log.
func WithLogger(l rtlog.Logger) Option { return func(o *options) { o.logger = l } }

// WithScheduler replaces the default time.AfterFunc-backed Scheduler.
func WithScheduler(s scheduler.Scheduler) Option { return func(o *options) { o.scheduler = s } }

// WithAddressFactory replaces the default UUIDv7 address factory, most
// commonly with address.NewSequential() in tests that want deterministic
// addresses.
func WithAddressFactory(f address.Factory) Option { return func(o *options) { o.addrFactory = f } }

// WithDeadLetterListener registers a sink notified of every dead letter
// raised by any actor's mailbox. Multiple listeners may be registered.
func WithDeadLetterListener(sink mailbox.DeadLetterSink) Option {
	return func(o *options) { o.deadLetterListeners = append(o.deadLetterListeners, sink) }
}

// Stage owns the Directory, the address factory, the named-supervisor
// registry, the dead-letter fan-out, and the value registry. It implements
// runtime.StageFacade so every Environment can call back into it.
type Stage struct {
	cfg         *rtconfig.Config
	logger      rtlog.Logger
	addrFactory address.Factory
	directory   *directory.Directory
	sched       scheduler.Scheduler

	supervisorMu sync.RWMutex
	supervisors  map[string]supervision.Supervisor

	dlMu                sync.RWMutex
	deadLetterListeners []mailbox.DeadLetterSink

	valuesMu sync.RWMutex
	values   map[string]any

	closeOnce sync.Once
}

// New builds a Stage, seeding its supervisor registry with PrivateRoot and
// PublicRoot under their well-known names.
func New(opts ...Option) (*Stage, error) {
	o := &options{}
	for _, fn := range opts {
		fn(o)
	}
	if o.cfg == nil {
		o.cfg = rtconfig.DefaultConfig()
	}
	if o.addrFactory == nil {
		o.addrFactory = address.NewTimeOrdered()
	}
	if o.scheduler == nil {
		o.scheduler = scheduler.New()
	}
	if o.logger == nil {
		built, err := rtlog.New(rtlog.Config{
			Level:      o.cfg.Log.Level,
			Format:     o.cfg.Log.Format,
			OutputPath: o.cfg.Log.OutputPath,
			AddCaller:  o.cfg.Log.AddCaller,
			MaxSizeMB:  o.cfg.Log.MaxSizeMB,
			MaxBackups: o.cfg.Log.MaxBackups,
			MaxAgeDays: o.cfg.Log.MaxAgeDays,
			Compress:   o.cfg.Log.Compress,
		})
		if err != nil {
			return nil, fmt.Errorf("build logger: %w", err)
		}
		o.logger = built
	}

	s := &Stage{
		cfg:                 o.cfg,
		logger:              o.logger,
		addrFactory:         o.addrFactory,
		directory:           directory.New(o.cfg.Directory.Shards, o.cfg.Directory.ShardHint),
		sched:               o.scheduler,
		supervisors:         make(map[string]supervision.Supervisor),
		deadLetterListeners: o.deadLetterListeners,
		values:              make(map[string]any),
	}
	publicRoot := supervision.NewPublicRoot()
	s.supervisors[supervision.PrivateRootName] = supervision.NewPrivateRoot()
	s.supervisors[supervision.PublicRootName] = publicRoot
	// "default" is the reserved supervisor name spec §6/§4.6 says every
	// actor gets when it names none of its own; alias it to the same
	// PublicRoot instance so intensity tracking isn't split across two
	// names for what is, semantically, one supervisor.
	s.supervisors[defaultSupervisorName] = publicRoot
	return s, nil
}

// RegisterSupervisor names a Supervisor so actors can opt into it by name.
func (s *Stage) RegisterSupervisor(name string, sup supervision.Supervisor) {
	s.supervisorMu.Lock()
	s.supervisors[name] = sup
	s.supervisorMu.Unlock()
}

// --- runtime.StageFacade ---

func (s *Stage) NewAddress() address.Address { return s.addrFactory.New() }

func (s *Stage) ResolveSupervisorByName(name string) (supervision.Supervisor, bool) {
	s.supervisorMu.RLock()
	defer s.supervisorMu.RUnlock()
	sup, ok := s.supervisors[name]
	return sup, ok
}

// ReportFailure applies the supervision decision loop from spec §4.6: ask
// the failed actor's supervisor for a directive, expand to the directive's
// scope, and apply it to every target.
func (s *Stage) ReportFailure(env *runtime.Environment, err error) {
	sup, ok := env.ResolveSupervisor()
	if !ok {
		s.logger.Error("no supervisor resolved for failed actor, stopping",
			rtlog.String("address", env.Address()), rtlog.Err(err))
		_ = env.Stop(context.Background())
		return
	}

	directive := sup.Supervise(supervision.Supervised{
		Address:          env.Address(),
		TypeName:         env.TypeName(),
		Error:            err,
		ExecutionContext: env.CurrentMessageExecutionContext(),
	})

	for _, target := range s.scopeTargets(env, sup.IntensityStrategy().Scope) {
		s.applyDirective(target, directive, err)
	}
}

func (s *Stage) scopeTargets(env *runtime.Environment, scope supervision.Scope) []*runtime.Environment {
	if scope == supervision.One {
		return []*runtime.Environment{env}
	}
	parent := env.Parent()
	if parent == nil {
		return []*runtime.Environment{env}
	}
	return parent.Children()
}

func (s *Stage) applyDirective(env *runtime.Environment, directive supervision.Directive, cause error) {
	switch directive {
	case supervision.Resume:
		env.Resume(cause)
		env.Mailbox().Resume()

	case supervision.Restart:
		if err := env.Restart(cause); err != nil {
			s.logger.Error("restart failed, stopping actor instead",
				rtlog.String("address", env.Address()), rtlog.Err(err))
			_ = env.Stop(context.Background())
			return
		}
		env.Mailbox().Resume()

	case supervision.Stop:
		_ = env.Stop(context.Background())

	case supervision.Escalate:
		parent := env.Parent()
		if parent == nil {
			s.logger.Error("escalation reached a root actor with no parent, stopping",
				rtlog.String("address", env.Address()))
			_ = env.Stop(context.Background())
			return
		}
		s.ReportFailure(parent, fmt.Errorf("escalated from %s: %w", env.Address(), cause))
	}
}

func (s *Stage) RemoveFromDirectory(addr address.Address) {
	s.directory.Remove(addr.String())
}

func (s *Stage) DeadLetters() mailbox.DeadLetterSink { return deadLetterFanout{stage: s} }

func (s *Stage) Logger() rtlog.Logger { return s.logger }

func (s *Stage) Scheduler() scheduler.Scheduler { return s.sched }

func (s *Stage) CreateChild(parent *runtime.Environment, req runtime.SpawnRequest) (*runtime.Environment, error) {
	req.Parent = parent
	return s.spawn(req)
}

func (s *Stage) ActorOf(addr address.Address) (*runtime.Environment, bool) {
	entry, ok := s.directory.Get(addr.String())
	if !ok {
		return nil, false
	}
	env, ok := entry.(*runtime.Environment)
	return env, ok
}

func (s *Stage) RegisterValue(name string, v any) {
	s.valuesMu.Lock()
	s.values[name] = v
	s.valuesMu.Unlock()
}

func (s *Stage) RegisteredValue(name string) (any, error) {
	s.valuesMu.RLock()
	defer s.valuesMu.RUnlock()
	v, ok := s.values[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, runtime.ErrValueNotRegistered)
	}
	return v, nil
}

func (s *Stage) DeregisterValue(name string) (any, bool) {
	s.valuesMu.Lock()
	defer s.valuesMu.Unlock()
	v, ok := s.values[name]
	delete(s.values, name)
	return v, ok
}

// --- dead letters ---

type deadLetterFanout struct{ stage *Stage }

func (d deadLetterFanout) Handle(dl mailbox.DeadLetter) {
	d.stage.dlMu.RLock()
	listeners := append([]mailbox.DeadLetterSink(nil), d.stage.deadLetterListeners...)
	d.stage.dlMu.RUnlock()
	for _, l := range listeners {
		l.Handle(dl)
	}
}

// --- spawning ---

// ActorFor creates a root-level actor (no parent) and returns a typed proxy
// for it, built by ctor. supervisorName may be "" to use PublicRoot.
func ActorFor[P any](s *Stage, protocol runtime.Protocol, ctor func(*runtime.Environment) P, supervisorName string, mboxOpts mailbox.Options, params ...any) (P, error) {
	var zero P
	env, err := s.spawn(runtime.SpawnRequest{
		Protocol:       protocol,
		Parameters:     params,
		SupervisorName: supervisorName,
		MailboxOptions: mboxOpts,
	})
	if err != nil {
		return zero, err
	}
	return ctor(env), nil
}

// ActorProxyFor wraps an already-created Environment (e.g. returned from
// Stage.ActorOf) in a typed proxy, without creating a new actor.
func ActorProxyFor[P any](env *runtime.Environment, ctor func(*runtime.Environment) P) P {
	return ctor(env)
}

func (s *Stage) spawn(req runtime.SpawnRequest) (*runtime.Environment, error) {
	if req.Protocol == nil {
		return nil, ErrSpawnRequiresProtocol
	}

	supervisorName := req.SupervisorName
	if supervisorName == "" {
		supervisorName = defaultSupervisorName
	}

	addr := s.addrFactory.New()
	def := runtime.Definition{
		TypeName:   req.Protocol.TypeName(),
		Address:    addr,
		Parameters: req.Parameters,
	}

	mboxOpts := req.MailboxOptions
	if mboxOpts.Capacity == 0 {
		mboxOpts.Capacity = s.cfg.Mailbox.DefaultCapacity
		mboxOpts.Policy = overflowPolicyFromString(s.cfg.Mailbox.OverflowPolicy)
	}

	env := runtime.New(s, addr, def, req.Protocol, req.Parent, supervisorName, s.logger, mboxOpts)

	actor, err := req.Protocol.Instantiate(env, req.Parameters)
	if err != nil {
		return nil, fmt.Errorf("instantiate %s: %w", def.TypeName, err)
	}

	if bs, ok := actor.(runtime.BeforeStarter); ok {
		if err := bs.BeforeStart(context.Background()); err != nil {
			return nil, fmt.Errorf("before_start %s: %w", def.TypeName, err)
		}
	}

	env.Bind(actor)
	s.directory.Set(env)

	if req.Parent != nil {
		req.Parent.AddChild(env)
	}

	if st, ok := actor.(runtime.Starter); ok {
		if err := st.Start(context.Background()); err != nil {
			s.logger.Error("start hook failed",
				rtlog.String("address", addr.String()), rtlog.Err(err))
		}
	}

	return env, nil
}

func overflowPolicyFromString(policy string) mailbox.OverflowPolicy {
	switch policy {
	case "drop_oldest":
		return mailbox.DropOldest
	case "drop_newest":
		return mailbox.DropNewest
	case "reject":
		return mailbox.Reject
	default:
		return mailbox.Unbounded
	}
}

// --- shutdown ---

// Close stops every root actor (and transitively their children) and
// flushes the logger. It is idempotent: calling Close more than once has
// no further effect after the first call completes.
func (s *Stage) Close(ctx context.Context) error {
	var closeErr error
	s.closeOnce.Do(func() {
		g, gctx := errgroup.WithContext(ctx)
		for _, root := range s.rootEnvironments() {
			root := root
			g.Go(func() error {
				return root.Stop(gctx)
			})
		}
		closeErr = g.Wait()
		_ = s.logger.Sync()
	})
	return closeErr
}

func (s *Stage) rootEnvironments() []*runtime.Environment {
	var roots []*runtime.Environment
	for _, entry := range s.directory.Entries() {
		if env, ok := entry.(*runtime.Environment); ok && env.Parent() == nil {
			roots = append(roots, env)
		}
	}
	return roots
}
