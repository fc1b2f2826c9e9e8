package protocol

import (
	"net/netip"

	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

const (
	ipv4MinHeaderLen = 20
	ipv6HeaderLen    = 40
)

var ErrInvalidIP = errors.New("invalid IP packet")

type IP interface {
	Version() int
	HeaderLength() int
	Src() netip.Addr
	Dst() netip.Addr
	// TotalLength is the datagram size claimed by the header.
	TotalLength() int
	// EtherType is the link-layer protocol number of the packet.
	EtherType() layers.EthernetType
}

func ParseIP(buff []byte) (IP, error) {
	if len(buff) == 0 {
		return nil, errors.Wrap(ErrInvalidIP, "empty packet")
	}
	switch buff[0] >> 4 {
	case 4:
		return ParseIPv4(buff)
	case 6:
		return ParseIPv6(buff)
	default:
		return nil, errors.Wrapf(ErrInvalidIP, "version %d", buff[0]>>4)
	}
}

func ParseIPv4(buff []byte) (*IPv4, error) {
	if len(buff) < ipv4MinHeaderLen {
		return nil, errors.Wrapf(ErrInvalidIP, "ipv4 packet too short: %d bytes", len(buff))
	}
	headerLength := int(buff[0]&0x0F) * 4
	if headerLength < ipv4MinHeaderLen || headerLength > len(buff) {
		return nil, errors.Wrapf(ErrInvalidIP, "bad ipv4 header length %d", headerLength)
	}

	src, ok := netip.AddrFromSlice(buff[12:16])
	if !ok || !src.IsValid() {
		return nil, ErrInvalidIP
	}

	dst, ok := netip.AddrFromSlice(buff[16:20])
	if !ok || !dst.IsValid() {
		return nil, ErrInvalidIP
	}

	return &IPv4{
		headerLength: headerLength,
		length:       int(buff[2])<<8 | int(buff[3]),
		src:          src,
		dst:          dst,
	}, nil
}

type IPv4 struct {
	headerLength int
	length       int
	src          netip.Addr
	dst          netip.Addr
}

func (i *IPv4) Version() int {
	return 4
}

func (i *IPv4) HeaderLength() int {
	return i.headerLength
}

// Length is the total length field of the header.
func (i *IPv4) Length() int {
	return i.length
}

func (i *IPv4) TotalLength() int {
	return i.length
}

func (i *IPv4) Src() netip.Addr {
	return i.src
}

func (i *IPv4) Dst() netip.Addr {
	return i.dst
}

func (i *IPv4) EtherType() layers.EthernetType {
	return layers.EthernetTypeIPv4
}

func ParseIPv6(buff []byte) (*IPv6, error) {
	if len(buff) < ipv6HeaderLen {
		return nil, errors.Wrapf(ErrInvalidIP, "ipv6 packet too short: %d bytes", len(buff))
	}

	src, ok := netip.AddrFromSlice(buff[8:24])
	if !ok {
		return nil, ErrInvalidIP
	}
	dst, ok := netip.AddrFromSlice(buff[24:40])
	if !ok {
		return nil, ErrInvalidIP
	}

	return &IPv6{
		length: int(buff[4])<<8 | int(buff[5]),
		src:    src,
		dst:    dst,
	}, nil
}

type IPv6 struct {
	length int
	src    netip.Addr
	dst    netip.Addr
}

func (i *IPv6) Version() int {
	return 6
}

func (i *IPv6) HeaderLength() int {
	return ipv6HeaderLen
}

// PayloadLength is the payload length field of the header.
func (i *IPv6) PayloadLength() int {
	return i.length
}

func (i *IPv6) TotalLength() int {
	return ipv6HeaderLen + i.length
}

func (i *IPv6) Src() netip.Addr {
	return i.src
}

func (i *IPv6) Dst() netip.Addr {
	return i.dst
}

func (i *IPv6) EtherType() layers.EthernetType {
	return layers.EthernetTypeIPv6
}
