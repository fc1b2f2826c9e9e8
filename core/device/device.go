package device

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// Resolution tells whether a built header is ready for the wire.
type Resolution uint8

const (
	// Resolved means every header field, destination included, was written.
	Resolved Resolution = iota
	// PendingResolution means the destination field is still blank and has
	// to be filled in by address resolution before transmission.
	PendingResolution
)

func (r Resolution) String() string {
	switch r {
	case Resolved:
		return "resolved"
	case PendingResolution:
		return "pending"
	default:
		return "unknown"
	}
}

// Result is returned by HeaderOps.Create. Length is the number of bytes
// prepended to the buffer in both states.
type Result struct {
	Length     int
	Resolution Resolution
}

func (r Result) Pending() bool {
	return r.Resolution == PendingResolution
}

// HeaderOps is the link-layer header contract of a device family.
type HeaderOps interface {
	// Create prepends a link-layer header for a payload of the given length
	// to buf. A nil daddr leaves the destination blank, a nil saddr falls
	// back to the device hardware address.
	Create(buf gopacket.SerializeBuffer, dev *Descriptor, proto layers.EthernetType,
		daddr, saddr net.HardwareAddr, length int) (Result, error)
	// Validate checks a hardware address before the device accepts it.
	Validate(dev *Descriptor, addr net.HardwareAddr) error
}

// Params is filled in by a SetupFunc while the device is being allocated.
type Params struct {
	Type       uint16
	HeaderLen  int
	MTU        int
	AddrLen    int
	TxQueueLen int
	Flags      uint32
	Broadcast  net.HardwareAddr
	HeaderOps  HeaderOps
}

// SetupFunc assigns the fixed parameters of a device family.
type SetupFunc func(p *Params)

// Descriptor holds the parameters of an allocated device. It is never
// modified after Alloc returns, so it can be shared between goroutines.
type Descriptor struct {
	name     string
	params   Params
	addr     net.HardwareAddr
	txQueues int
	rxQueues int
}

func (d *Descriptor) Name() string { return d.name }

func (d *Descriptor) Type() uint16 { return d.params.Type }

func (d *Descriptor) HeaderLen() int { return d.params.HeaderLen }

func (d *Descriptor) MTU() int { return d.params.MTU }

func (d *Descriptor) AddrLen() int { return d.params.AddrLen }

func (d *Descriptor) TxQueueLen() int { return d.params.TxQueueLen }

func (d *Descriptor) Flags() uint32 { return d.params.Flags }

func (d *Descriptor) NumTxQueues() int { return d.txQueues }

func (d *Descriptor) NumRxQueues() int { return d.rxQueues }

func (d *Descriptor) HeaderOps() HeaderOps { return d.params.HeaderOps }

// IsBroadcast reports whether the device supports broadcast.
func (d *Descriptor) IsBroadcast() bool {
	return d.params.Flags&FlagBroadcast != 0
}

// HardwareAddr returns the device's own address. Callers must not modify it.
func (d *Descriptor) HardwareAddr() net.HardwareAddr {
	return d.addr
}

// Broadcast returns a copy of the device broadcast address.
func (d *Descriptor) Broadcast() net.HardwareAddr {
	return append(net.HardwareAddr(nil), d.params.Broadcast...)
}

// CreateHeader runs the device's header builder on buf.
func (d *Descriptor) CreateHeader(buf gopacket.SerializeBuffer, proto layers.EthernetType,
	daddr, saddr net.HardwareAddr, length int) (Result, error) {
	if d.params.HeaderOps == nil {
		return Result{}, ErrNoHeaderOps
	}
	return d.params.HeaderOps.Create(buf, d, proto, daddr, saddr, length)
}

// ValidateAddr runs the device's address check. Devices without header ops
// accept any address.
func (d *Descriptor) ValidateAddr(addr net.HardwareAddr) error {
	if d.params.HeaderOps == nil {
		return nil
	}
	return d.params.HeaderOps.Validate(d, addr)
}
