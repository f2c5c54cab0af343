// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package conntrack

import (
	"net/netip"
	"sync/atomic"
	"time"

	"grimm.is/stonewall/internal/packet"
)

// Key identifies a flow: the directional 5-tuple. Reverse-direction
// packets of a conversation produce a distinct key.
type Key struct {
	SrcIP    [4]byte
	DstIP    [4]byte
	SrcPort  uint16
	DstPort  uint16
	Protocol uint8
}

// KeyOf builds the flow key for a packet view.
func KeyOf(v *packet.View) Key {
	return Key{
		SrcIP:    v.SrcIP.As4(),
		DstIP:    v.DstIP.As4(),
		SrcPort:  v.SrcPort,
		DstPort:  v.DstPort,
		Protocol: v.Protocol,
	}
}

// SrcAddr returns the key's source address.
func (k Key) SrcAddr() netip.Addr { return netip.AddrFrom4(k.SrcIP) }

// DstAddr returns the key's destination address.
func (k Key) DstAddr() netip.Addr { return netip.AddrFrom4(k.DstIP) }

// Flow is one connection-table record. State and last-seen are mutated
// concurrently by datapath invocations and read by the reaper and export;
// both are atomics so a bucket lock is only needed for table membership.
type Flow struct {
	Key Key

	state    atomic.Int32
	lastSeen atomic.Int64 // UnixNano; monotonically non-decreasing
}

// NewFlow creates a record for key first seen at t.
func NewFlow(key Key, t time.Time) *Flow {
	f := &Flow{Key: key}
	f.lastSeen.Store(t.UnixNano())
	return f
}

// State returns the current derived state code.
func (f *Flow) State() int {
	return int(f.state.Load())
}

// SetState stores a derived state code. Concurrent writers race
// last-writer-wins, matching packet completion order per flow.
func (f *Flow) SetState(s int) {
	f.state.Store(int32(s))
}

// LastSeen returns the time the flow last saw a packet.
func (f *Flow) LastSeen() time.Time {
	return time.Unix(0, f.lastSeen.Load())
}

// Touch advances last-seen to t. Concurrent touches merge to the maximum,
// keeping last-seen monotonic.
func (f *Flow) Touch(t time.Time) {
	ns := t.UnixNano()
	for {
		old := f.lastSeen.Load()
		if ns <= old {
			return
		}
		if f.lastSeen.CompareAndSwap(old, ns) {
			return
		}
	}
}
