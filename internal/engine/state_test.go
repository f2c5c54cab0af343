// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/stonewall/internal/clock"
	"grimm.is/stonewall/internal/conntrack"
	"grimm.is/stonewall/internal/packet"
)

func newTracker() (*StateTracker, *conntrack.Table, *clock.MockClock) {
	clk := clock.NewMock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	tbl := conntrack.NewTable()
	return NewStateTracker(tbl, clk), tbl, clk
}

func TestDeriveTCPStates(t *testing.T) {
	tests := []struct {
		name  string
		flags packet.TCPFlags
		want  int
	}{
		{"syn only", packet.TCPFlags{SYN: true}, TCPSynSent},
		{"syn-ack", packet.TCPFlags{SYN: true, ACK: true}, TCPSynRecv},
		{"fin", packet.TCPFlags{FIN: true}, TCPFinWait},
		{"fin-ack", packet.TCPFlags{FIN: true, ACK: true}, TCPFinWait},
		{"plain ack", packet.TCPFlags{ACK: true}, TCPEstablished},
		{"no flags", packet.TCPFlags{}, TCPEstablished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := &packet.View{Protocol: packet.ProtoTCP, TCP: tt.flags}
			assert.Equal(t, tt.want, deriveState(v))
		})
	}
}

func TestDeriveUDPAndICMPStates(t *testing.T) {
	assert.Equal(t, UDPActive, deriveState(&packet.View{Protocol: packet.ProtoUDP}))

	assert.Equal(t, ICMPEchoRequest,
		deriveState(&packet.View{Protocol: packet.ProtoICMP, ICMPType: packet.ICMPEchoRequest}))
	assert.Equal(t, ICMPEchoReply,
		deriveState(&packet.View{Protocol: packet.ProtoICMP, ICMPType: packet.ICMPEchoReply}))
	assert.Equal(t, ICMPOther,
		deriveState(&packet.View{Protocol: packet.ProtoICMP, ICMPType: 3}))

	assert.Equal(t, StateNone, deriveState(&packet.View{Protocol: 47}))
}

func TestObserveCreatesAndUpdates(t *testing.T) {
	s, tbl, clk := newTracker()

	v := &packet.View{
		Dir:      packet.DirInbound,
		Protocol: packet.ProtoTCP,
		SrcIP:    netip.MustParseAddr("10.0.0.1"),
		DstIP:    netip.MustParseAddr("10.0.0.2"),
		SrcPort:  1234, DstPort: 80,
		TCP: packet.TCPFlags{SYN: true},
	}
	assert.Equal(t, VerdictAccept, s.Observe(v))
	require.Equal(t, 1, tbl.Len())

	f := tbl.Lookup(conntrack.KeyOf(v))
	require.NotNil(t, f)
	assert.Equal(t, TCPSynSent, f.State())
	first := f.LastSeen()

	clk.Advance(time.Second)
	v.TCP = packet.TCPFlags{ACK: true}
	s.Observe(v)

	assert.Equal(t, 1, tbl.Len(), "same flow updates in place")
	assert.Equal(t, TCPEstablished, f.State())
	assert.True(t, f.LastSeen().After(first))
}

func TestObserveConcurrentFirstPacketRace(t *testing.T) {
	s, tbl, _ := newTracker()

	v := func() *packet.View {
		return &packet.View{
			Dir:      packet.DirInbound,
			Protocol: packet.ProtoTCP,
			SrcIP:    netip.MustParseAddr("10.0.0.1"),
			DstIP:    netip.MustParseAddr("10.0.0.2"),
			SrcPort:  1234, DstPort: 80,
			TCP: packet.TCPFlags{SYN: true},
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, VerdictAccept, s.Observe(v()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, tbl.Len(), "exactly one record after the race")
	f := tbl.Lookup(conntrack.KeyOf(v()))
	require.NotNil(t, f)
	assert.Equal(t, TCPSynSent, f.State())
}

func TestStateName(t *testing.T) {
	assert.Equal(t, "SYN_SENT", StateName(packet.ProtoTCP, TCPSynSent))
	assert.Equal(t, "ESTABLISHED", StateName(packet.ProtoTCP, TCPEstablished))
	assert.Equal(t, "ACTIVE", StateName(packet.ProtoUDP, UDPActive))
	assert.Equal(t, "ECHO_REQUEST", StateName(packet.ProtoICMP, ICMPEchoRequest))
	assert.Equal(t, "NONE", StateName(47, StateNone))
}
