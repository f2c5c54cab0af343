// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package engine

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"grimm.is/stonewall/internal/packet"
	"grimm.is/stonewall/internal/rules"
	"grimm.is/stonewall/internal/testutil"
)

func TestSNATRewrite(t *testing.T) {
	raw := testutil.BuildPacket(t, testutil.PacketSpec{
		SrcIP: "10.0.0.1", DstIP: "8.8.8.8",
		SrcPort: 1234, DstPort: 80,
		Proto: "tcp", SYN: true,
	})
	v, err := packet.Dissect(raw, packet.DirOutbound)
	require.NoError(t, err)

	store := rules.NewNATStore()
	store.Replace([]rules.NATRule{{
		OrigIP:   netip.MustParseAddr("10.0.0.1"),
		OrigPort: 1234,
		NewIP:    netip.MustParseAddr("192.168.1.1"),
		NewPort:  4321,
		Proto:    packet.ProtoTCP,
		Dir:      rules.SNAT,
	}})
	n := NewNAT(store, quietLogger())

	require.True(t, n.Rewrite(v))
	assert.Equal(t, "192.168.1.1", v.SrcIP.String())
	assert.Equal(t, uint16(4321), v.SrcPort)
	assert.Equal(t, "8.8.8.8", v.DstIP.String(), "destination untouched by snat")
	testutil.VerifyChecksums(t, v.Bytes())
}

func TestDNATRewrite(t *testing.T) {
	raw := testutil.BuildPacket(t, testutil.PacketSpec{
		SrcIP: "10.0.0.5", DstIP: "203.0.113.9",
		SrcPort: 5000, DstPort: 8080,
		Proto: "udp", Payload: []byte("payload"),
	})
	v, err := packet.Dissect(raw, packet.DirOutbound)
	require.NoError(t, err)

	store := rules.NewNATStore()
	store.Replace([]rules.NATRule{{
		OrigIP:   netip.MustParseAddr("203.0.113.9"),
		OrigPort: 8080,
		NewIP:    netip.MustParseAddr("10.1.1.1"),
		NewPort:  80,
		Proto:    packet.ProtoUDP,
		Dir:      rules.DNAT,
	}})
	n := NewNAT(store, quietLogger())

	require.True(t, n.Rewrite(v))
	assert.Equal(t, "10.1.1.1", v.DstIP.String())
	assert.Equal(t, uint16(80), v.DstPort)
	testutil.VerifyChecksums(t, v.Bytes())
}

func TestNATIgnoresIngress(t *testing.T) {
	raw := testutil.BuildPacket(t, testutil.PacketSpec{
		SrcIP: "10.0.0.1", DstIP: "8.8.8.8",
		SrcPort: 1234, DstPort: 80,
		Proto: "tcp",
	})
	v, err := packet.Dissect(raw, packet.DirInbound)
	require.NoError(t, err)

	store := rules.NewNATStore()
	store.Replace([]rules.NATRule{{
		OrigIP: netip.MustParseAddr("10.0.0.1"),
		NewIP:  netip.MustParseAddr("192.168.1.1"),
		Proto:  packet.ProtoTCP,
		Dir:    rules.SNAT,
	}})
	n := NewNAT(store, quietLogger())

	assert.False(t, n.Rewrite(v))
	assert.Equal(t, "10.0.0.1", v.SrcIP.String())
}

func TestNATFirstMatchWins(t *testing.T) {
	raw := testutil.BuildPacket(t, testutil.PacketSpec{
		SrcIP: "10.0.0.1", DstIP: "8.8.8.8",
		SrcPort: 1234, DstPort: 80,
		Proto: "tcp",
	})
	v, err := packet.Dissect(raw, packet.DirOutbound)
	require.NoError(t, err)

	store := rules.NewNATStore()
	store.Replace([]rules.NATRule{
		{
			OrigIP: netip.MustParseAddr("10.0.0.1"), OrigPort: 1234,
			NewIP: netip.MustParseAddr("192.168.1.1"), NewPort: 1111,
			Proto: packet.ProtoTCP, Dir: rules.SNAT,
		},
		{
			OrigIP: netip.MustParseAddr("10.0.0.1"),
			NewIP:  netip.MustParseAddr("192.168.1.2"), NewPort: 2222,
			Proto: packet.ProtoTCP, Dir: rules.SNAT,
		},
	})
	n := NewNAT(store, quietLogger())

	require.True(t, n.Rewrite(v))
	assert.Equal(t, "192.168.1.1", v.SrcIP.String())
	assert.Equal(t, uint16(1111), v.SrcPort)
}

func TestNATNoMatchLeavesPacket(t *testing.T) {
	raw := testutil.BuildPacket(t, testutil.PacketSpec{
		SrcIP: "10.0.0.2", DstIP: "8.8.8.8",
		SrcPort: 1234, DstPort: 80,
		Proto: "tcp",
	})
	v, err := packet.Dissect(raw, packet.DirOutbound)
	require.NoError(t, err)

	store := rules.NewNATStore()
	store.Replace([]rules.NATRule{{
		OrigIP: netip.MustParseAddr("10.0.0.1"),
		NewIP:  netip.MustParseAddr("192.168.1.1"),
		Proto:  packet.ProtoTCP,
		Dir:    rules.SNAT,
	}})
	n := NewNAT(store, quietLogger())

	before := make([]byte, len(v.Bytes()))
	copy(before, v.Bytes())
	assert.False(t, n.Rewrite(v))
	assert.Equal(t, before, v.Bytes())
}
