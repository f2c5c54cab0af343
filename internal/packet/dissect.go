// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package packet

import (
	"net/netip"
	"sync"

	"github.com/gopacket/gopacket"
	"github.com/gopacket/gopacket/layers"

	"grimm.is/stonewall/internal/errors"
)

// parseCtx holds per-call decoder state. Pooled so concurrent datapath
// invocations do not allocate a parser per packet.
type parseCtx struct {
	ip4     layers.IPv4
	tcp     layers.TCP
	udp     layers.UDP
	icmp    layers.ICMPv4
	payload gopacket.Payload
	parser  *gopacket.DecodingLayerParser
	decoded []gopacket.LayerType
}

var parsePool = sync.Pool{
	New: func() any {
		pc := &parseCtx{
			decoded: make([]gopacket.LayerType, 0, 4),
		}
		pc.parser = gopacket.NewDecodingLayerParser(
			layers.LayerTypeIPv4,
			&pc.ip4, &pc.tcp, &pc.udp, &pc.icmp, &pc.payload,
		)
		pc.parser.IgnoreUnsupported = true
		return pc
	},
}

// Dissect parses buf (an IPv4 packet starting at the IP header) into a View.
// The View aliases buf; buf must stay exclusively owned by the caller until
// the View is discarded.
func Dissect(buf []byte, dir Direction) (*View, error) {
	pc := parsePool.Get().(*parseCtx)
	defer parsePool.Put(pc)

	pc.decoded = pc.decoded[:0]
	if err := pc.parser.DecodeLayers(buf, &pc.decoded); err != nil {
		return nil, errors.Wrap(err, errors.KindParse, "malformed packet")
	}
	if len(pc.decoded) == 0 || pc.decoded[0] != layers.LayerTypeIPv4 {
		return nil, errors.New(errors.KindParse, "not an IPv4 packet")
	}
	if pc.ip4.Version != 4 {
		return nil, errors.Errorf(errors.KindParse, "bad IP version %d", pc.ip4.Version)
	}
	if int(pc.ip4.IHL)*4 < 20 || int(pc.ip4.IHL)*4 > len(buf) {
		return nil, errors.Errorf(errors.KindParse, "bad IP header length %d", pc.ip4.IHL)
	}

	src, ok := netip.AddrFromSlice(pc.ip4.SrcIP.To4())
	if !ok {
		return nil, errors.New(errors.KindParse, "bad source address")
	}
	dst, ok := netip.AddrFromSlice(pc.ip4.DstIP.To4())
	if !ok {
		return nil, errors.New(errors.KindParse, "bad destination address")
	}

	v := &View{
		Dir:      dir,
		Protocol: uint8(pc.ip4.Protocol),
		SrcIP:    src,
		DstIP:    dst,
		buf:      buf,
		ihl:      int(pc.ip4.IHL) * 4,
	}

	for _, lt := range pc.decoded[1:] {
		switch lt {
		case layers.LayerTypeTCP:
			v.SrcPort = uint16(pc.tcp.SrcPort)
			v.DstPort = uint16(pc.tcp.DstPort)
			v.TCP = TCPFlags{
				SYN: pc.tcp.SYN,
				ACK: pc.tcp.ACK,
				FIN: pc.tcp.FIN,
				RST: pc.tcp.RST,
			}
		case layers.LayerTypeUDP:
			v.SrcPort = uint16(pc.udp.SrcPort)
			v.DstPort = uint16(pc.udp.DstPort)
		case layers.LayerTypeICMPv4:
			v.ICMPType = pc.icmp.TypeCode.Type()
		}
	}
	return v, nil
}
