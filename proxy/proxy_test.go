package proxy

import (
	"context"
	"testing"
	"time"

	"github.com/fergusinlondon/actorstage/address"
	"github.com/fergusinlondon/actorstage/execctx"
	"github.com/fergusinlondon/actorstage/mailbox"
	"github.com/fergusinlondon/actorstage/rtlog"
	"github.com/fergusinlondon/actorstage/runtime"
	"github.com/fergusinlondon/actorstage/scheduler"
	"github.com/fergusinlondon/actorstage/supervision"
)

type fakeStage struct{ seq int64 }

func (f *fakeStage) NewAddress() address.Address {
	f.seq++
	return stringAddr("p" + string(rune('0'+f.seq)))
}
func (f *fakeStage) ResolveSupervisorByName(string) (supervision.Supervisor, bool) {
	return supervision.Always(supervision.Resume, supervision.Unlimited, 0, supervision.One), true
}
func (f *fakeStage) ReportFailure(*runtime.Environment, error)   {}
func (f *fakeStage) RemoveFromDirectory(address.Address)        {}
func (f *fakeStage) DeadLetters() mailbox.DeadLetterSink         { return nopSink{} }
func (f *fakeStage) Logger() rtlog.Logger                        { return rtlog.Nop() }
func (f *fakeStage) Scheduler() scheduler.Scheduler              { return scheduler.New() }
func (f *fakeStage) CreateChild(*runtime.Environment, runtime.SpawnRequest) (*runtime.Environment, error) {
	return nil, nil
}
func (f *fakeStage) ActorOf(address.Address) (*runtime.Environment, bool) { return nil, false }
func (f *fakeStage) RegisterValue(string, any)                           {}
func (f *fakeStage) RegisteredValue(string) (any, error)                 { return nil, runtime.ErrValueNotRegistered }
func (f *fakeStage) DeregisterValue(string) (any, bool)                  { return nil, false }

type nopSink struct{}

func (nopSink) Handle(mailbox.DeadLetter) {}

type stringAddr string

func (s stringAddr) String() string               { return string(s) }
func (s stringAddr) Equals(o address.Address) bool { other, ok := o.(stringAddr); return ok && other == s }
func (s stringAddr) Hash() uint64                  { return 0 }

type echoProtocol struct{}

func (echoProtocol) TypeName() string { return "echo" }
func (echoProtocol) Instantiate(env *runtime.Environment, params []any) (runtime.Actor, error) {
	a := &echoActor{}
	runtime.BindEnvironment(a, env)
	return a, nil
}

type echoActor struct {
	runtime.Base
	lastSeen map[string]any
}

func buildTarget(t *testing.T) *runtime.Environment {
	t.Helper()
	stage := &fakeStage{}
	addr := stage.NewAddress()
	def := runtime.Definition{TypeName: "echo", Address: addr}
	env := runtime.New(stage, addr, def, echoProtocol{}, nil, "__publicRoot", stage.Logger(), mailbox.Options{})
	actor, _ := echoProtocol{}.Instantiate(env, nil)
	env.Bind(actor)
	return env
}

// EchoProxy is a hand-written typed proxy, the generation convention
// described for this runtime's clients.
type EchoProxy struct {
	Base
}

func NewEchoProxy(env *runtime.Environment) EchoProxy {
	return EchoProxy{Base: NewBase(env)}
}

func (p EchoProxy) Echo(value string) Future {
	return p.Invoke("echo.Echo", func(actor any) (any, error) {
		e := actor.(*echoActor)
		e.lastSeen = e.Environment().CurrentMessageExecutionContext().Entries()
		return value, nil
	})
}

func TestInvokeRoundTripsResult(t *testing.T) {
	env := buildTarget(t)
	p := NewEchoProxy(env)

	fut := p.Echo("hello")
	val, err := fut.Wait()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "hello" {
		t.Fatalf("expected hello, got %v", val)
	}
}

func TestMetadataOperationsBypassMailbox(t *testing.T) {
	env := buildTarget(t)
	p := NewEchoProxy(env)

	if p.Address() == "" {
		t.Fatalf("expected non-empty address")
	}
	if p.TypeName() != "echo" {
		t.Fatalf("expected type name echo, got %s", p.TypeName())
	}
	if p.LifeCycle() != runtime.StateRunning {
		t.Fatalf("expected running state, got %v", p.LifeCycle())
	}
	if p.IsStopped() {
		t.Fatalf("expected not stopped")
	}
	if p.SupervisorName() != "__publicRoot" {
		t.Fatalf("expected supervisor name __publicRoot, got %s", p.SupervisorName())
	}
	if p.ParentAddress() != "" {
		t.Fatalf("expected empty parent address for root-like actor")
	}
	if len(p.ChildAddresses()) != 0 {
		t.Fatalf("expected no children")
	}
	stats := p.MailboxStats()
	if stats.State != mailbox.Open {
		t.Fatalf("expected open mailbox, got %v", stats.State)
	}
}

func TestExecutionContextPropagationReachesInvocation(t *testing.T) {
	env := buildTarget(t)
	p := NewEchoProxy(env)

	caller := execctx.New()
	caller.Set("trace_id", "abc-123")
	caller.Collaborators(&p.Base)
	caller.Propagate()

	if _, err := p.Echo("x").Wait(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if p.declared == nil {
		t.Fatalf("expected propagated context to be visible before invoke")
	}
	if p.declared["trace_id"] != "abc-123" {
		t.Fatalf("expected trace_id to propagate, got %v", p.declared)
	}
	delivered := env.CurrentActor().(*echoActor).lastSeen
	if delivered["trace_id"] != "abc-123" {
		t.Fatalf("expected trace_id in the delivered invocation's context, got %v", delivered)
	}
}

func TestWaitContextTimesOutOnSuspendedMailbox(t *testing.T) {
	env := buildTarget(t)
	env.Mailbox().Suspend()
	p := NewEchoProxy(env)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := p.Echo("x").WaitContext(ctx)
	if err != context.DeadlineExceeded {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
