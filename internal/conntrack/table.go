// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package conntrack implements the stateful connection table: a fixed
// 2^16-bucket chained hash map from directional 5-tuples to flow records,
// with per-bucket locking and a timeout-driven reaper.
package conntrack

import (
	"sync"
	"sync/atomic"
)

// tableBits fixes the bucket count at 2^16. No rehash happens at runtime.
const tableBits = 16

const numBuckets = 1 << tableBits

type bucket struct {
	mu    sync.Mutex
	flows []*Flow
}

// Table is the connection table. At most one flow record exists per key.
type Table struct {
	buckets []bucket
	size    atomic.Int64
}

// NewTable creates an empty Table.
func NewTable() *Table {
	return &Table{buckets: make([]bucket, numBuckets)}
}

// bucketIndex hashes source IP, destination IP, and protocol — deliberately
// not the ports — so forward and reverse packets of the same L3 pair land in
// the same bucket cluster. Lookup still compares the full 5-tuple.
func bucketIndex(k Key) uint32 {
	h := uint32(2166136261)
	mix := func(b byte) {
		h ^= uint32(b)
		h *= 16777619
	}
	for _, b := range k.SrcIP {
		mix(b)
	}
	for _, b := range k.DstIP {
		mix(b)
	}
	mix(k.Protocol)
	return (h ^ h>>tableBits) & (numBuckets - 1)
}

// Lookup returns the flow record for key, or nil.
func (t *Table) Lookup(key Key) *Flow {
	b := &t.buckets[bucketIndex(key)]
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, f := range b.flows {
		if f.Key == key {
			return f
		}
	}
	return nil
}

// Insert adds a flow record. Idempotent on conflict: if a record for the
// key already exists the existing record is returned and created is false.
func (t *Table) Insert(f *Flow) (flow *Flow, created bool) {
	b := &t.buckets[bucketIndex(f.Key)]
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.flows {
		if existing.Key == f.Key {
			return existing, false
		}
	}
	b.flows = append(b.flows, f)
	t.size.Add(1)
	return f, true
}

// Evict removes and destroys the record for key. Returns false if absent.
func (t *Table) Evict(key Key) bool {
	b := &t.buckets[bucketIndex(key)]
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, f := range b.flows {
		if f.Key == key {
			b.flows = append(b.flows[:i], b.flows[i+1:]...)
			t.size.Add(-1)
			return true
		}
	}
	return false
}

// Scan visits every record under its bucket lock. The visitor returns true
// to remove the current entry.
func (t *Table) Scan(visit func(f *Flow) (evict bool)) {
	for i := range t.buckets {
		b := &t.buckets[i]
		b.mu.Lock()
		kept := b.flows[:0]
		for _, f := range b.flows {
			if visit(f) {
				t.size.Add(-1)
			} else {
				kept = append(kept, f)
			}
		}
		// Clear trailing slots so evicted records are collectable.
		for j := len(kept); j < len(b.flows); j++ {
			b.flows[j] = nil
		}
		b.flows = kept
		b.mu.Unlock()
	}
}

// Len returns the number of live flow records.
func (t *Table) Len() int {
	return int(t.size.Load())
}
