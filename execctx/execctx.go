// Package execctx implements the execution context carried alongside every
// invocation: a key/value map that lets a supervisor read request-scoped
// data at failure time, plus propagation to declared collaborator proxies.
package execctx

import "sort"

// Collaborator is the minimal surface an execution context needs from a
// proxy in order to propagate context to it. proxy.Base satisfies this.
type Collaborator interface {
	SetExecutionContext(entries map[string]any)
}

// Context maps string keys to opaque values, plus a list of declared
// collaborator proxies that should receive this context's entries whenever
// Propagate is called. Insertion order of keys is not kept; SortedKeys
// gives a deterministic order.
type Context interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Reset()
	HasContext() bool
	Count() int
	Entries() map[string]any
	Copy() Context
	Collaborators(cs ...Collaborator)
	Propagate()
}

type mapContext struct {
	entries       map[string]any
	collaborators []Collaborator
}

// New returns a fresh, empty execution context.
func New() Context {
	return &mapContext{entries: make(map[string]any)}
}

func (c *mapContext) Get(key string) (any, bool) {
	v, ok := c.entries[key]
	return v, ok
}

func (c *mapContext) Set(key string, value any) {
	c.entries[key] = value
}

func (c *mapContext) Reset() {
	c.entries = make(map[string]any)
}

func (c *mapContext) HasContext() bool {
	return len(c.entries) > 0
}

func (c *mapContext) Count() int {
	return len(c.entries)
}

// Entries returns a snapshot copy of the underlying map; callers may not
// mutate the live context through it.
func (c *mapContext) Entries() map[string]any {
	out := make(map[string]any, len(c.entries))
	for k, v := range c.entries {
		out[k] = v
	}
	return out
}

// Copy yields a structurally-independent clone: the map and the
// collaborator list are both copied, so mutating the clone never affects
// the original and vice versa.
func (c *mapContext) Copy() Context {
	clone := &mapContext{
		entries:       c.Entries(),
		collaborators: append([]Collaborator(nil), c.collaborators...),
	}
	return clone
}

// Collaborators appends to the declared collaborator list; it never
// replaces previously-declared collaborators.
func (c *mapContext) Collaborators(cs ...Collaborator) {
	c.collaborators = append(c.collaborators, cs...)
}

// Propagate replaces each declared collaborator's current execution-context
// map with a shallow copy of this context's map.
func (c *mapContext) Propagate() {
	snapshot := c.Entries()
	for _, collaborator := range c.collaborators {
		collaborator.SetExecutionContext(snapshot)
	}
}

// sortedKeys returns m's keys in ascending order; SortedKeys wraps it so
// every consumer gets the same deterministic ordering.
func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SortedKeys exposes deterministic key ordering for a context's entries,
// useful for logging and tests.
func SortedKeys(c Context) []string {
	return sortedKeys(c.Entries())
}

// emptyContext is the distinguished EmptyExecutionContext: it silently
// drops mutations and never owns keys, but Copy and Propagate remain valid
// operations on it (Copy returns another empty context; Propagate is a
// no-op since it owns no entries).
type emptyContext struct{}

// Empty returns the distinguished empty execution context, used for
// invocations made outside any request scope.
func Empty() Context {
	return emptyContext{}
}

func (emptyContext) Get(string) (any, bool)       { return nil, false }
func (emptyContext) Set(string, any)              {}
func (emptyContext) Reset()                       {}
func (emptyContext) HasContext() bool             { return false }
func (emptyContext) Count() int                   { return 0 }
func (emptyContext) Entries() map[string]any      { return map[string]any{} }
func (emptyContext) Copy() Context                { return emptyContext{} }
func (emptyContext) Collaborators(...Collaborator) {}
func (emptyContext) Propagate()                   {}
