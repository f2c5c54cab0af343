// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Package packet dissects raw IPv4 frames into the transient view the
// datapath operates on, and provides the in-place header mutators used by
// the NAT engine.
package packet

import (
	"net/netip"

	"golang.org/x/sys/unix"
)

// Direction marks which hook a packet arrived on.
type Direction int

const (
	DirInbound Direction = iota
	DirOutbound
)

func (d Direction) String() string {
	if d == DirOutbound {
		return "outbound"
	}
	return "inbound"
}

// TCPFlags holds the subset of TCP flag bits the state engine inspects.
type TCPFlags struct {
	SYN bool
	ACK bool
	FIN bool
	RST bool
}

// View is a transient, non-owning view of one frame. It is valid only for
// the duration of a single datapath traversal; the underlying buffer is
// exclusively owned by that traversal.
type View struct {
	Dir      Direction
	Protocol uint8
	SrcIP    netip.Addr
	DstIP    netip.Addr
	// SrcPort and DstPort are zero for protocols without ports.
	SrcPort uint16
	DstPort uint16
	// TCP holds flag bits when Protocol is TCP.
	TCP TCPFlags
	// ICMPType is set when Protocol is ICMP.
	ICMPType uint8

	buf []byte // full IPv4 packet, starting at the IP header
	ihl int    // IP header length in bytes
}

// IP protocol numbers the engine knows about.
const (
	ProtoICMP = uint8(unix.IPPROTO_ICMP)
	ProtoTCP  = uint8(unix.IPPROTO_TCP)
	ProtoUDP  = uint8(unix.IPPROTO_UDP)
)

// ICMP types the state engine labels.
const (
	ICMPEchoReply   = 0
	ICMPEchoRequest = 8
)

// ProtoName returns the export name for an IP protocol number.
func ProtoName(proto uint8) string {
	switch proto {
	case ProtoTCP:
		return "TCP"
	case ProtoUDP:
		return "UDP"
	case ProtoICMP:
		return "ICMP"
	case 0:
		return "IP"
	default:
		return "UNKNOWN"
	}
}

// Bytes returns the (possibly rewritten) packet buffer.
func (v *View) Bytes() []byte {
	return v.buf
}

// offsets within the IPv4 header
const (
	offChecksum = 10
	offSrcIP    = 12
	offDstIP    = 16
)

func (v *View) transportChecksumOff() int {
	switch v.Protocol {
	case ProtoTCP:
		return v.ihl + 16
	case ProtoUDP:
		return v.ihl + 6
	default:
		return 0
	}
}

// SetSrcIP rewrites the source address in place, maintaining the IPv4 header
// checksum and the transport pseudo-header checksum.
func (v *View) SetSrcIP(ip netip.Addr) {
	v.setAddr(offSrcIP, ip)
	v.SrcIP = ip
}

// SetDstIP rewrites the destination address in place.
func (v *View) SetDstIP(ip netip.Addr) {
	v.setAddr(offDstIP, ip)
	v.DstIP = ip
}

// SetSrcPort rewrites the source port in place, maintaining the transport
// checksum. No-op for protocols without ports.
func (v *View) SetSrcPort(port uint16) {
	if v.Protocol != ProtoTCP && v.Protocol != ProtoUDP {
		return
	}
	setPort(v.buf, v.ihl, port, v.transportChecksumOff(), v.Protocol == ProtoUDP)
	v.SrcPort = port
}

// SetDstPort rewrites the destination port in place.
func (v *View) SetDstPort(port uint16) {
	if v.Protocol != ProtoTCP && v.Protocol != ProtoUDP {
		return
	}
	setPort(v.buf, v.ihl+2, port, v.transportChecksumOff(), v.Protocol == ProtoUDP)
	v.DstPort = port
}

func (v *View) setAddr(off int, ip netip.Addr) {
	new4 := ip.As4()
	setIPv4Addr(v.buf, off, new4, v.transportChecksumOff(), v.Protocol == ProtoUDP)
}
