// Package supervision implements the decision layer of the supervision
// hierarchy: directives, scope, intensity/period strategy, and the fixed
// root supervisors. It holds no reference to the runtime package; Stage is
// responsible for applying the Directive a Supervisor returns.
package supervision

import (
	"sync"
	"time"

	"github.com/fergusinlondon/actorstage/execctx"
)

// Directive is a supervisor's decision for a failed actor.
type Directive int

const (
	// Resume calls BeforeResume on the actor and resumes its mailbox,
	// preserving state.
	Resume Directive = iota
	// Restart replaces the actor instance, preserving address, mailbox,
	// children, and parent.
	Restart
	// Stop terminates the actor (and, transitively, its children).
	Stop
	// Escalate reports the failure as a failure of the failed actor's
	// parent, which the parent's own supervisor then handles.
	Escalate
)

func (d Directive) String() string {
	switch d {
	case Resume:
		return "resume"
	case Restart:
		return "restart"
	case Stop:
		return "stop"
	case Escalate:
		return "escalate"
	default:
		return "unknown"
	}
}

// Scope determines whether a Directive applies to the failed actor alone
// (One) or to it and its siblings — the co-children of the same parent,
// including the failed actor itself (All).
type Scope int

const (
	One Scope = iota
	All
)

// Unlimited marks a Strategy's Intensity as having no restart ceiling.
const Unlimited = -1

// Forever is used for Period alongside Unlimited to express "never count
// restarts against a window" — PublicRoot uses both.
const Forever = time.Duration(1<<63 - 1)

// Strategy is a supervisor's restart-intensity policy: at most Intensity
// restarts within Period before a Restart directive is coerced to
// Escalate. Intensity < 0 means unlimited.
type Strategy struct {
	Intensity int
	Period    time.Duration
	Scope     Scope
}

// Supervised is the transient record passed to a Supervisor when an
// invocation or lifecycle hook raises. It is not retained by the runtime
// beyond the call to Supervisor.Supervise.
type Supervised struct {
	Address          string
	TypeName         string
	Error            error
	ExecutionContext execctx.Context
}

// Supervisor receives a failure and returns one of the four directives,
// which Stage then applies.
type Supervisor interface {
	// Supervise inspects the failure and returns the directive to apply.
	Supervise(s Supervised) Directive
	// IntensityStrategy exposes the supervisor's restart-throttling policy.
	IntensityStrategy() Strategy
}

// restartTracker maintains, per supervised address, the rolling window of
// restart timestamps used to enforce a Strategy's Intensity/Period.
type restartTracker struct {
	mu      sync.Mutex
	history map[string][]time.Time
	now     func() time.Time
}

func newRestartTracker() *restartTracker {
	return &restartTracker{history: make(map[string][]time.Time), now: time.Now}
}

// allow records a restart attempt for address and reports whether it falls
// within the strategy's intensity for the current rolling window. Intensity
// < 0 always allows. A zero Period degrades to "no window": no earlier
// restart ever falls inside it, so with Intensity > 0 every restart is
// allowed and with Intensity == 0 none is.
func (t *restartTracker) allow(address string, strategy Strategy) bool {
	if strategy.Intensity < 0 {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	cutoff := now.Add(-strategy.Period)

	hist := t.history[address]
	pruned := hist[:0]
	for _, ts := range hist {
		if ts.After(cutoff) {
			pruned = append(pruned, ts)
		}
	}

	allowed := len(pruned) < strategy.Intensity
	pruned = append(pruned, now)
	t.history[address] = pruned

	return allowed
}

// funcSupervisor is a ready-to-register Supervisor built from a pure
// classification function, covering the common case of "classify this
// error into a directive" without hand-implementing the full capability.
type funcSupervisor struct {
	strategy Strategy
	classify func(error) Directive
	tracker  *restartTracker
}

// NewStrategy builds a Supervisor from a classification function and a
// restart-intensity policy. When classify returns Restart and the
// supervised actor has exceeded intensity within period, the directive is
// coerced to Escalate, per spec §4.6/§7.
func NewStrategy(intensity int, period time.Duration, scope Scope, classify func(error) Directive) Supervisor {
	return &funcSupervisor{
		strategy: Strategy{Intensity: intensity, Period: period, Scope: scope},
		classify: classify,
		tracker:  newRestartTracker(),
	}
}

func (f *funcSupervisor) IntensityStrategy() Strategy {
	return f.strategy
}

func (f *funcSupervisor) Supervise(s Supervised) Directive {
	d := f.classify(s.Error)
	if d == Restart && !f.tracker.allow(s.Address, f.strategy) {
		return Escalate
	}
	return d
}

// Always returns a Supervisor that applies the same directive to every
// failure regardless of error, still subject to intensity throttling when
// that directive is Restart. Used to build the root hierarchy.
func Always(d Directive, intensity int, period time.Duration, scope Scope) Supervisor {
	return NewStrategy(intensity, period, scope, func(error) Directive { return d })
}
