package engine

import (
	"net"
	"net/netip"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/wlynxg/fcnet/core/protocol"
)

// Payload is one packet waiting for its link-layer header.
type Payload struct {
	Protocol layers.EthernetType
	// Dst is nil when the destination has to be resolved from NextHop.
	Dst     net.HardwareAddr
	Src     net.HardwareAddr
	SrcIP   netip.Addr
	NextHop netip.Addr
	Data    []byte
}

// DecodeIP wraps a raw IPv4 or IPv6 packet. The destination is left for
// the neighbor table.
func DecodeIP(data []byte) (*Payload, error) {
	ip, err := protocol.ParseIP(data)
	if err != nil {
		return nil, err
	}
	return &Payload{
		Protocol: ip.EtherType(),
		SrcIP:    ip.Src(),
		NextHop:  ip.Dst(),
		Data:     data,
	}, nil
}

// DecodeEthernet strips an Ethernet header and keeps its destination. IP
// payloads lose any trailer padding after the datagram.
func DecodeEthernet(data []byte, preserveSource bool) (*Payload, error) {
	var eth layers.Ethernet
	if err := eth.DecodeFromBytes(data, gopacket.NilDecodeFeedback); err != nil {
		return nil, errors.Wrap(err, "decode ethernet")
	}

	p := &Payload{
		Protocol: eth.EthernetType,
		Dst:      eth.DstMAC,
		Data:     eth.Payload,
	}
	if preserveSource {
		p.Src = eth.SrcMAC
	}
	if ip, err := protocol.ParseIP(eth.Payload); err == nil {
		p.SrcIP, p.NextHop = ip.Src(), ip.Dst()
		if n := ip.TotalLength(); n >= ip.HeaderLength() && n < len(p.Data) {
			p.Data = p.Data[:n]
		}
	}
	return p, nil
}

type decodeFunc func([]byte) (*Payload, error)

func decoderFor(lt layers.LinkType, preserveSource bool) (decodeFunc, error) {
	switch lt {
	case layers.LinkTypeEthernet:
		return func(data []byte) (*Payload, error) {
			return DecodeEthernet(data, preserveSource)
		}, nil
	case layers.LinkTypeRaw:
		return DecodeIP, nil
	default:
		return nil, errors.Wrapf(ErrLinkType, "%s", lt)
	}
}
