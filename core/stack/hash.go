package stack

import (
	"encoding/binary"
	"net/netip"

	"github.com/libp2p/go-cidranger/net"
)

type Hash uint32

func NetHash(network net.IPVersion, src, dst netip.AddrPort) Hash {
	switch network {
	case net.IPv4:
		return net4HashFn(src, dst)
	case net.IPv6:
		return net6HashFn(src, dst)
	}
	return 0
}

// TxQueue maps a flow onto one of queues transmit queues. Packets of the
// same flow always land on the same queue.
func TxQueue(src, dst netip.Addr, queues int) int {
	if queues <= 1 || !src.IsValid() || !dst.IsValid() {
		return 0
	}
	src, dst = src.Unmap(), dst.Unmap()
	if src.Is4() != dst.Is4() {
		return 0
	}

	version := net.IPv6
	if dst.Is4() {
		version = net.IPv4
	}
	h := NetHash(version, netip.AddrPortFrom(src, 0), netip.AddrPortFrom(dst, 0))
	return int(uint32(h) % uint32(queues))
}

func net4HashFn(src, dst netip.AddrPort) Hash {
	srcIP := src.Addr().As4()
	dstIP := dst.Addr().As4()
	return Hash(jHashMix(binary.BigEndian.Uint32(srcIP[:]), binary.BigEndian.Uint32(dstIP[:]),
		uint32(src.Port())<<16|uint32(dst.Port())))
}

func net6HashFn(src, dst netip.AddrPort) Hash {
	srcIP := src.Addr().As16()
	dstIP := dst.Addr().As16()

	srcTotal := jHashMix(binary.BigEndian.Uint32(srcIP[:4])^binary.BigEndian.Uint32(srcIP[4:8]),
		binary.BigEndian.Uint32(srcIP[8:12]), binary.BigEndian.Uint32(srcIP[12:]))
	dstTotal := jHashMix(binary.BigEndian.Uint32(dstIP[:4])^binary.BigEndian.Uint32(dstIP[4:8]),
		binary.BigEndian.Uint32(dstIP[8:12]), binary.BigEndian.Uint32(dstIP[12:]))
	return Hash(jHashMix(srcTotal, dstTotal, uint32(src.Port())<<16|uint32(dst.Port())))
}

// jHashMix is the Jenkins lookup3 final mix.
func jHashMix(a, b, c uint32) uint32 {
	a -= c
	a ^= rol32(c, 4)
	c += b
	b -= a
	b ^= rol32(a, 6)
	a += c
	c -= b
	c ^= rol32(b, 8)
	b += a
	a -= c
	a ^= rol32(c, 16)
	c += b
	b -= a
	b ^= rol32(a, 19)
	a += c
	c -= b
	c ^= rol32(b, 4)
	b += a
	return c
}

func rol32(word uint32, shift uint) uint32 {
	return (word << shift) | (word >> ((-shift) & 31))
}
