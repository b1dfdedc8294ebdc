package runtime

// Base is embedded by every user-defined actor to satisfy the Actor
// interface. Protocol.Instantiate is expected to set the embedded
// Environment (via the env field, package-private) right after
// construction, mirroring the teacher's Initialiser/Terminator embedding
// convention generalized to this runtime's Actor contract.
type Base struct {
	env *Environment
}

// Environment returns the actor's owning Environment.
func (b *Base) Environment() *Environment { return b.env }

// bindTo is called by protocol instantiators that embed Base directly; it
// is the idiomatic-Go stand-in for the spec's thread-current-environment
// slot — the Environment is passed as an explicit constructor argument
// instead of being read off a thread-local, since Go has no implicit
// per-goroutine scope to pun on.
func (b *Base) bindTo(env *Environment) { b.env = env }

// BindEnvironment lets a Protocol's Instantiate wire the Environment into
// an embedded Base without reaching into the unexported field directly.
func BindEnvironment(a Actor, env *Environment) {
	if b, ok := a.(interface{ bindTo(*Environment) }); ok {
		b.bindTo(env)
	}
}

// SelfAs builds a typed self-proxy for an actor that needs to send
// messages to itself (e.g. to schedule a follow-up operation through its
// own mailbox rather than calling a method directly). ctor is ordinarily a
// protocol's exported NewXxxProxy(*runtime.Environment) constructor.
func SelfAs[P any](env *Environment, ctor func(*Environment) P) P {
	return ctor(env)
}
