package execctx

import "testing"

type recordingCollaborator struct {
	received map[string]any
}

func (r *recordingCollaborator) SetExecutionContext(entries map[string]any) {
	r.received = entries
}

func TestCopyRoundTrip(t *testing.T) {
	ctx := New()
	ctx.Set("request-id", "abc")
	ctx.Set("tenant", "acme")

	clone := ctx.Copy()
	if clone.Count() != ctx.Count() {
		t.Fatalf("copy must preserve entry count")
	}
	for k, v := range ctx.Entries() {
		cv, ok := clone.Get(k)
		if !ok || cv != v {
			t.Fatalf("copy missing or mismatched entry %q", k)
		}
	}

	// Mutating the original after copy must not affect the clone.
	ctx.Set("request-id", "mutated")
	if cv, _ := clone.Get("request-id"); cv != "abc" {
		t.Fatalf("clone observed mutation of original: got %v", cv)
	}
}

func TestPropagateReplacesCollaboratorMaps(t *testing.T) {
	ctx := New()
	ctx.Set("k", "v")

	c1 := &recordingCollaborator{}
	c2 := &recordingCollaborator{}
	ctx.Collaborators(c1, c2)

	ctx.Propagate()

	if c1.received["k"] != "v" || c2.received["k"] != "v" {
		t.Fatalf("propagate must push entries to every collaborator")
	}
}

func TestEmptyContextSilentlyDropsMutations(t *testing.T) {
	ctx := Empty()
	ctx.Set("k", "v")

	if ctx.HasContext() {
		t.Fatalf("empty context must never own keys")
	}
	if _, ok := ctx.Get("k"); ok {
		t.Fatalf("empty context must not retain set values")
	}

	// Copy and Propagate remain valid no-ops.
	clone := ctx.Copy()
	if clone.HasContext() {
		t.Fatalf("copy of empty context must still be empty")
	}
	ctx.Propagate()
}

func TestCollaboratorsAppendExtends(t *testing.T) {
	ctx := New()
	c1 := &recordingCollaborator{}
	c2 := &recordingCollaborator{}

	ctx.Collaborators(c1)
	ctx.Collaborators(c2)
	ctx.Set("x", 1)
	ctx.Propagate()

	if c1.received == nil || c2.received == nil {
		t.Fatalf("all declared collaborators must receive propagation")
	}
}
