// Package mailbox implements the per-actor FIFO queue that drives
// single-threaded message dispatch, with suspend/resume/close semantics and
// optional bounded overflow policies.
package mailbox

import (
	"errors"
	"fmt"
	"sync"

	"github.com/fergusinlondon/actorstage/execctx"
	"github.com/fergusinlondon/actorstage/rtlog"
)

// State is one of Open, Suspended, Closed. A mailbox is always in exactly
// one of these states.
type State int

const (
	Open State = iota
	Suspended
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Suspended:
		return "suspended"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Well-known completion sentinels (spec §3 invariant 5, §4.2). They reach
// the caller through the completion's error slot, but they do not mark a
// failed delivery: the mailbox is not suspended and nothing is reported to
// supervision.
var (
	// ErrActorStopped completes an invocation sent to a Closed mailbox.
	// It is not an application error: callers that care distinguish it
	// with errors.Is.
	ErrActorStopped = errors.New("actorstage: actor stopped")
	// ErrMailboxFull completes an invocation rejected by a bounded
	// mailbox under the Reject overflow policy.
	ErrMailboxFull = errors.New("actorstage: mailbox full")
	// ErrDroppedOverflow completes an invocation (or the one it bumped)
	// dropped under the DropOldest/DropNewest overflow policies.
	ErrDroppedOverflow = errors.New("actorstage: dropped due to overflow")
)

// OverflowPolicy governs what happens when a bounded mailbox is sent an
// invocation while already at capacity.
type OverflowPolicy int

const (
	// Unbounded means the mailbox has no capacity limit (default).
	Unbounded OverflowPolicy = iota
	// DropOldest evicts the head of the queue to make room for the new
	// invocation.
	DropOldest
	// DropNewest discards the incoming invocation, keeping the existing
	// queue untouched.
	DropNewest
	// Reject dead-letters the incoming invocation.
	Reject
)

// ActorProvider is the minimal view a Mailbox needs of the actor it is
// delivering to: its current instance (which may be swapped across a
// restart) and whether it has terminated.
type ActorProvider interface {
	CurrentActor() any
	IsStopped() bool
	Address() string
	// PublishExecutionContext makes ctx visible to the actor (and its
	// declared collaborators, via ctx.Propagate) for the duration of one
	// delivery frame.
	PublishExecutionContext(ctx execctx.Context)
	// ClearExecutionContext resets the published execution context to the
	// empty context; called on every delivery exit path.
	ClearExecutionContext()
}

// DeadLetter describes an invocation that could not be delivered.
type DeadLetter struct {
	TargetAddress  string
	Representation string
	Reason         string
}

// DeadLetterSink receives DeadLetter reports. Multiple listeners may be
// registered with a Stage; the sink itself is a single fan-out point.
type DeadLetterSink interface {
	Handle(DeadLetter)
}

// FailureSink is notified when a delivered invocation's closure returns an
// error, so the owning Stage can route the failure to supervision.
type FailureSink interface {
	ReportFailure(provider ActorProvider, err error)
}

// Closure is the opaque callable packaged into an Invocation: given the
// actor instance, it produces a result or an error.
type Closure func(actor any) (any, error)

// Completion is a one-shot, single-producer/single-consumer result slot.
// It is completed exactly once, with either a value or an error.
type Completion struct {
	done  chan struct{}
	once  sync.Once
	value any
	err   error
}

// NewCompletion returns a fresh, uncompleted Completion.
func NewCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// Complete settles the completion with a value. Subsequent calls (from
// either Complete or CompleteError) are no-ops.
func (c *Completion) Complete(value any) {
	c.once.Do(func() {
		c.value = value
		close(c.done)
	})
}

// CompleteError settles the completion with an error.
func (c *Completion) CompleteError(err error) {
	c.once.Do(func() {
		c.err = err
		close(c.done)
	})
}

// Done returns a channel closed once the completion has settled.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the completion settles and returns its value or error.
func (c *Completion) Wait() (any, error) {
	<-c.done
	return c.value, c.err
}

// Invocation is a single queued unit: a closure over the target actor plus
// a result-completion handle, self-describing for dead-letter reporting.
type Invocation struct {
	Representation         string
	Closure                Closure
	Completion             *Completion
	ExecutionContextSnapshot execctx.Context
}

// Mailbox is the per-actor queue. It is safe for concurrent use: Send may
// be called from any goroutine, while exactly one delivery runs at a time.
type Mailbox struct {
	mu       sync.Mutex
	state    State
	queue    []*Invocation
	capacity int
	policy   OverflowPolicy

	provider    ActorProvider
	deadLetters DeadLetterSink
	failures    FailureSink
	logger      rtlog.Logger

	dispatching bool
	dropCount   int
	deliveredN  int
}

// Options configures a new Mailbox.
type Options struct {
	Capacity int // 0 means Unbounded
	Policy   OverflowPolicy
	Provider ActorProvider
	DeadLetters DeadLetterSink
	Failures    FailureSink
	Logger      rtlog.Logger
}

// New constructs an Open mailbox ready to accept invocations.
func New(opts Options) *Mailbox {
	logger := opts.Logger
	if logger == nil {
		logger = rtlog.Nop()
	}
	m := &Mailbox{
		state:       Open,
		capacity:    opts.Capacity,
		policy:      opts.Policy,
		provider:    opts.Provider,
		deadLetters: opts.DeadLetters,
		failures:    opts.Failures,
		logger:      logger,
	}
	return m
}

// Stats is a point-in-time, non-blocking snapshot of mailbox health.
type Stats struct {
	Depth     int
	State     State
	Delivered int
	Dropped   int
}

// Snapshot returns the current Stats without interfering with dispatch.
func (m *Mailbox) Snapshot() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Stats{
		Depth:     len(m.queue),
		State:     m.state,
		Delivered: m.deliveredN,
		Dropped:   m.dropCount,
	}
}

// Send enqueues inv for delivery. If the mailbox is Closed, inv is
// dead-lettered and its completion settles with ErrActorStopped as its
// error: per spec §3 invariant 5, this is a sentinel, not a failure, so it
// is not routed to supervision.
func (m *Mailbox) Send(inv *Invocation) {
	m.mu.Lock()

	if m.state == Closed {
		m.mu.Unlock()
		m.deadLetter(inv, "actor stopped")
		inv.Completion.CompleteError(ErrActorStopped)
		return
	}

	if m.capacity > 0 && len(m.queue) >= m.capacity {
		switch m.policy {
		case DropOldest:
			oldest := m.queue[0]
			m.queue = append(m.queue[:0:0], m.queue[1:]...)
			m.dropCount++
			m.mu.Unlock()
			oldest.Completion.CompleteError(ErrDroppedOverflow)
			m.mu.Lock()
			m.queue = append(m.queue, inv)
		case DropNewest:
			m.dropCount++
			m.mu.Unlock()
			inv.Completion.CompleteError(ErrDroppedOverflow)
			return
		case Reject:
			m.dropCount++
			m.mu.Unlock()
			m.deadLetter(inv, "mailbox full")
			inv.Completion.CompleteError(ErrMailboxFull)
			return
		default:
			// Unbounded policy selected alongside a nonzero capacity is a
			// caller configuration error; treat it as unbounded.
			m.queue = append(m.queue, inv)
		}
	} else {
		m.queue = append(m.queue, inv)
	}

	receivable := m.isReceivableLocked()
	m.mu.Unlock()

	if receivable {
		m.dispatchLoop()
	}
}

// Suspend flips the mailbox to Suspended. Queued invocations remain queued
// but no further dispatch occurs until Resume.
func (m *Mailbox) Suspend() {
	m.mu.Lock()
	if m.state == Open {
		m.state = Suspended
	}
	m.mu.Unlock()
}

// Resume flips the mailbox back to Open and triggers dispatch if the
// mailbox is now receivable.
func (m *Mailbox) Resume() {
	m.mu.Lock()
	if m.state == Suspended {
		m.state = Open
	}
	receivable := m.isReceivableLocked()
	m.mu.Unlock()

	if receivable {
		m.dispatchLoop()
	}
}

// Close marks the mailbox Closed. Further Send calls dead-letter.
// Idempotent: closing an already-closed mailbox is a no-op.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.state = Closed
	m.mu.Unlock()
}

// State returns the current mailbox state.
func (m *Mailbox) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Mailbox) isReceivableLocked() bool {
	return m.state == Open && len(m.queue) > 0
}

// dispatchLoop drains the queue one invocation at a time. Only one
// goroutine is ever running a dispatch loop for a given mailbox: the
// `dispatching` flag, checked and set under the mutex, ensures a Send or
// Resume that arrives mid-delivery does not start a second concurrent
// drain — it simply returns, trusting the active loop to notice the new
// item once it re-checks isReceivableLocked.
func (m *Mailbox) dispatchLoop() {
	m.mu.Lock()
	if m.dispatching {
		m.mu.Unlock()
		return
	}
	m.dispatching = true
	m.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			m.mu.Lock()
			m.dispatching = false
			m.mu.Unlock()
			panic(r)
		}
	}()

	for {
		m.mu.Lock()
		if !m.isReceivableLocked() {
			m.dispatching = false
			m.mu.Unlock()
			return
		}
		inv := m.queue[0]
		m.queue = m.queue[1:]
		m.mu.Unlock()

		m.deliver(inv)
	}
}

// deliver runs the six-step algorithm from spec §4.2 against a single
// dequeued invocation.
func (m *Mailbox) deliver(inv *Invocation) {
	if m.provider != nil && m.provider.IsStopped() {
		m.deadLetter(inv, "actor stopped")
		inv.Completion.CompleteError(ErrActorStopped)
		return
	}

	snapshot := inv.ExecutionContextSnapshot
	if snapshot == nil {
		snapshot = execctx.Empty()
	}

	var actor any
	if m.provider != nil {
		m.provider.PublishExecutionContext(snapshot)
		defer m.provider.ClearExecutionContext()
		actor = m.provider.CurrentActor()
	}
	snapshot.Propagate()

	result, err := func() (result any, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = panicToError(r)
			}
		}()
		return inv.Closure(actor)
	}()

	m.mu.Lock()
	m.deliveredN++
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("invocation failed",
			rtlog.String("representation", inv.Representation),
			rtlog.Strings("context_keys", execctx.SortedKeys(snapshot)),
			rtlog.Err(err))
		inv.Completion.CompleteError(err)
		m.Suspend()
		if m.failures != nil && m.provider != nil {
			m.failures.ReportFailure(m.provider, err)
		}
		return
	}

	inv.Completion.Complete(result)
}

func (m *Mailbox) deadLetter(inv *Invocation, reason string) {
	addr := ""
	if m.provider != nil {
		addr = m.provider.Address()
	}
	dl := DeadLetter{
		TargetAddress:  addr,
		Representation: inv.Representation,
		Reason:         reason,
	}
	m.logger.Info("dead letter",
		rtlog.String("representation", dl.Representation),
		rtlog.String("reason", dl.Reason))
	if m.deadLetters != nil {
		m.deadLetters.Handle(dl)
	}
}

func panicToError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("recovered panic: %v", r)
}
