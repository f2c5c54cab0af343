// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"grimm.is/stonewall/internal/clock"
	"grimm.is/stonewall/internal/conntrack"
	"grimm.is/stonewall/internal/packet"
)

// Derived per-flow state codes. These are observation labels keyed by
// protocol, not a protocol state machine.
const (
	StateNone int = 0

	TCPSynSent     int = 1
	TCPSynRecv     int = 2
	TCPFinWait     int = 3
	TCPEstablished int = 4

	UDPActive int = 1

	ICMPEchoRequest int = 1
	ICMPEchoReply   int = 2
	ICMPOther       int = 3
)

// StateName renders a state code for the connection export.
func StateName(proto uint8, state int) string {
	switch proto {
	case packet.ProtoTCP:
		switch state {
		case TCPSynSent:
			return "SYN_SENT"
		case TCPSynRecv:
			return "SYN_RECV"
		case TCPFinWait:
			return "FIN_WAIT"
		case TCPEstablished:
			return "ESTABLISHED"
		}
	case packet.ProtoUDP:
		if state == UDPActive {
			return "ACTIVE"
		}
	case packet.ProtoICMP:
		switch state {
		case ICMPEchoRequest:
			return "ECHO_REQUEST"
		case ICMPEchoReply:
			return "ECHO_REPLY"
		case ICMPOther:
			return "OTHER"
		}
	}
	return "NONE"
}

// deriveState maps an observed packet to its flow state code.
func deriveState(v *packet.View) int {
	switch v.Protocol {
	case packet.ProtoTCP:
		switch {
		case v.TCP.SYN && !v.TCP.ACK:
			return TCPSynSent
		case v.TCP.SYN && v.TCP.ACK:
			return TCPSynRecv
		case v.TCP.FIN:
			return TCPFinWait
		default:
			return TCPEstablished
		}
	case packet.ProtoUDP:
		return UDPActive
	case packet.ProtoICMP:
		switch v.ICMPType {
		case packet.ICMPEchoRequest:
			return ICMPEchoRequest
		case packet.ICMPEchoReply:
			return ICMPEchoReply
		default:
			return ICMPOther
		}
	}
	return StateNone
}

// StateTracker locates or creates the flow record for each accepted packet
// and applies the derived state update. It always accepts.
type StateTracker struct {
	table *conntrack.Table
	clock clock.Clock
}

// NewStateTracker creates a StateTracker over table.
func NewStateTracker(table *conntrack.Table, clk clock.Clock) *StateTracker {
	return &StateTracker{table: table, clock: clk}
}

// Observe records the packet against its flow. When two first packets of
// the same new key race, the loser adopts the winner's record, so at most
// one record exists per key.
func (s *StateTracker) Observe(v *packet.View) Verdict {
	key := conntrack.KeyOf(v)
	now := s.clock.Now()

	flow := s.table.Lookup(key)
	if flow == nil {
		flow, _ = s.table.Insert(conntrack.NewFlow(key, now))
	}
	flow.Touch(now)
	flow.SetState(deriveState(v))
	return VerdictAccept
}
