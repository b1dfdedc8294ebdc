// Package directory implements the sharded Address -> ActorHandle map plus
// the secondary TypeName -> ActorHandle index used to locate root actors
// and named supervisors.
package directory

import "sync"

// Entry is the minimal view the Directory needs of a registered actor.
type Entry interface {
	Address() string
	TypeName() string
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// Directory is a sharded map bounding the contention of any single lock.
// Bucket selection is by fnv-ish hash of the address string modulo shard
// count, computed in Set/Get/Remove.
type Directory struct {
	shards []*shard

	typeMu    sync.RWMutex
	typeIndex map[string]Entry
}

// New constructs a Directory with the given shard count and a capacity
// hint per shard's backing map. shards <= 0 defaults to 16; hint <= 0
// defaults to 8.
func New(shards, hint int) *Directory {
	if shards <= 0 {
		shards = 16
	}
	if hint <= 0 {
		hint = 8
	}
	d := &Directory{
		shards:    make([]*shard, shards),
		typeIndex: make(map[string]Entry),
	}
	for i := range d.shards {
		d.shards[i] = &shard{entries: make(map[string]Entry, hint)}
	}
	return d
}

func (d *Directory) shardFor(addr string) *shard {
	return d.shards[bucketHash(addr)%uint64(len(d.shards))]
}

func bucketHash(s string) uint64 {
	const (
		offset64 = 14695981039346656037
		prime64  = 1099511628211
	)
	h := uint64(offset64)
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime64
	}
	return h
}

// Set registers an entry under its address, and under its type name in the
// secondary index (last-writer-wins on type-name collision).
func (d *Directory) Set(e Entry) {
	sh := d.shardFor(e.Address())
	sh.mu.Lock()
	sh.entries[e.Address()] = e
	sh.mu.Unlock()

	if e.TypeName() != "" {
		d.typeMu.Lock()
		d.typeIndex[e.TypeName()] = e
		d.typeMu.Unlock()
	}
}

// Get looks up an entry by address.
func (d *Directory) Get(addr string) (Entry, bool) {
	sh := d.shardFor(addr)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	e, ok := sh.entries[addr]
	return e, ok
}

// Remove deletes an entry by address and, if it is the current type-index
// occupant for its type name, clears the type index entry too.
func (d *Directory) Remove(addr string) {
	sh := d.shardFor(addr)
	sh.mu.Lock()
	e, ok := sh.entries[addr]
	delete(sh.entries, addr)
	sh.mu.Unlock()

	if !ok {
		return
	}

	d.typeMu.Lock()
	if cur, exists := d.typeIndex[e.TypeName()]; exists && cur.Address() == addr {
		delete(d.typeIndex, e.TypeName())
	}
	d.typeMu.Unlock()
}

// FindByType looks up the unique live actor registered under a type name,
// used for supervisor and root-actor resolution.
func (d *Directory) FindByType(typeName string) (Entry, bool) {
	d.typeMu.RLock()
	defer d.typeMu.RUnlock()
	e, ok := d.typeIndex[typeName]
	return e, ok
}

// Size is O(buckets): the sum of each shard's entry count.
func (d *Directory) Size() int {
	total := 0
	for _, sh := range d.shards {
		sh.mu.RLock()
		total += len(sh.entries)
		sh.mu.RUnlock()
	}
	return total
}

// Entries returns a snapshot slice of every registered entry, used by
// Stage.Close to find the parentless actors it stops.
func (d *Directory) Entries() []Entry {
	out := make([]Entry, 0, d.Size())
	for _, sh := range d.shards {
		sh.mu.RLock()
		for _, e := range sh.entries {
			out = append(out, e)
		}
		sh.mu.RUnlock()
	}
	return out
}
