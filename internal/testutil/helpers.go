// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package testutil

import (
	"net"
	"os"
	"testing"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"
)

// RequireVM skips the test unless the STONEWALL_VM_TEST environment
// variable is set. Tests needing real kernel capabilities (nftables,
// nfqueue) only run in the VM harness.
func RequireVM(t *testing.T) {
	t.Helper()
	if os.Getenv("STONEWALL_VM_TEST") == "" {
		t.Skip("Skipping test: requires STONEWALL_VM_TEST environment")
	}
}

// PacketSpec describes a synthetic IPv4 packet for datapath tests.
type PacketSpec struct {
	SrcIP   string
	DstIP   string
	SrcPort uint16
	DstPort uint16
	Proto   string // "tcp", "udp", "icmp"

	SYN, ACK, FIN, RST bool
	ICMPType           uint8
	Payload            []byte
}

// BuildPacket serializes spec into a raw IPv4 packet (starting at the IP
// header) with correct lengths and checksums.
func BuildPacket(t *testing.T, spec PacketSpec) []byte {
	t.Helper()

	ip := &layers.IPv4{
		Version: 4,
		IHL:     5,
		TTL:     64,
		SrcIP:   net.ParseIP(spec.SrcIP).To4(),
		DstIP:   net.ParseIP(spec.DstIP).To4(),
	}

	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	buf := gopacket.NewSerializeBuffer()
	payload := gopacket.Payload(spec.Payload)

	var err error
	switch spec.Proto {
	case "tcp":
		ip.Protocol = layers.IPProtocolTCP
		tcp := &layers.TCP{
			SrcPort: layers.TCPPort(spec.SrcPort),
			DstPort: layers.TCPPort(spec.DstPort),
			SYN:     spec.SYN, ACK: spec.ACK, FIN: spec.FIN, RST: spec.RST,
		}
		if err = tcp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatalf("SetNetworkLayerForChecksum: %v", err)
		}
		err = gopacket.SerializeLayers(buf, opts, ip, tcp, payload)
	case "udp":
		ip.Protocol = layers.IPProtocolUDP
		udp := &layers.UDP{
			SrcPort: layers.UDPPort(spec.SrcPort),
			DstPort: layers.UDPPort(spec.DstPort),
		}
		if err = udp.SetNetworkLayerForChecksum(ip); err != nil {
			t.Fatalf("SetNetworkLayerForChecksum: %v", err)
		}
		err = gopacket.SerializeLayers(buf, opts, ip, udp, payload)
	case "icmp":
		ip.Protocol = layers.IPProtocolICMPv4
		icmp := &layers.ICMPv4{
			TypeCode: layers.CreateICMPv4TypeCode(spec.ICMPType, 0),
		}
		err = gopacket.SerializeLayers(buf, opts, ip, icmp, payload)
	default:
		t.Fatalf("unknown proto %q", spec.Proto)
	}
	if err != nil {
		t.Fatalf("SerializeLayers: %v", err)
	}

	out := make([]byte, len(buf.Bytes()))
	copy(out, buf.Bytes())
	return out
}

// VerifyChecksums re-dissects a raw packet with gopacket and fails the test
// if the IPv4 or transport checksum no longer verifies.
func VerifyChecksums(t *testing.T, raw []byte) {
	t.Helper()

	pkt := gopacket.NewPacket(raw, layers.LayerTypeIPv4, gopacket.Default)
	ipLayer := pkt.Layer(layers.LayerTypeIPv4)
	if ipLayer == nil {
		t.Fatal("packet does not parse as IPv4")
	}
	ip := ipLayer.(*layers.IPv4)

	// Recompute the IP header checksum over a copy of the header with its
	// checksum field zeroed.
	hdr := make([]byte, ip.IHL*4)
	copy(hdr, raw[:ip.IHL*4])
	hdr[10], hdr[11] = 0, 0
	want := onesComplement(hdr)
	got := uint16(raw[10])<<8 | uint16(raw[11])
	if got != want {
		t.Errorf("IP checksum = %#04x, want %#04x", got, want)
	}

	switch ip.Protocol {
	case layers.IPProtocolTCP, layers.IPProtocolUDP:
		verifyTransportChecksum(t, ip, raw)
	}
}

func verifyTransportChecksum(t *testing.T, ip *layers.IPv4, raw []byte) {
	t.Helper()

	ihl := int(ip.IHL) * 4
	seg := raw[ihl:]

	var ckOff int
	if ip.Protocol == layers.IPProtocolTCP {
		ckOff = 16
	} else {
		ckOff = 6
	}
	stored := uint16(seg[ckOff])<<8 | uint16(seg[ckOff+1])
	if ip.Protocol == layers.IPProtocolUDP && stored == 0 {
		return // checksum disabled
	}

	// Pseudo-header + segment with the checksum field zeroed.
	pseudo := make([]byte, 0, 12+len(seg))
	pseudo = append(pseudo, ip.SrcIP.To4()...)
	pseudo = append(pseudo, ip.DstIP.To4()...)
	pseudo = append(pseudo, 0, byte(ip.Protocol))
	pseudo = append(pseudo, byte(len(seg)>>8), byte(len(seg)))
	segCopy := make([]byte, len(seg))
	copy(segCopy, seg)
	segCopy[ckOff], segCopy[ckOff+1] = 0, 0
	pseudo = append(pseudo, segCopy...)

	want := onesComplement(pseudo)
	if stored != want {
		t.Errorf("transport checksum = %#04x, want %#04x", stored, want)
	}
}

func onesComplement(b []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(b); i += 2 {
		sum += uint32(b[i])<<8 | uint32(b[i+1])
	}
	if len(b)%2 == 1 {
		sum += uint32(b[len(b)-1]) << 8
	}
	for sum > 0xffff {
		sum = (sum >> 16) + (sum & 0xffff)
	}
	return ^uint16(sum)
}
