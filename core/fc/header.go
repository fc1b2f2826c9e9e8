package fc

import (
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"

	"github.com/wlynxg/fcnet/core/device"
)

var ErrInvalidAddress = errors.New("invalid hardware address")

// compilation time interface check
var _ device.HeaderOps = headerOps{}

type headerOps struct{}

func (headerOps) Create(buf gopacket.SerializeBuffer, dev *device.Descriptor, proto layers.EthernetType,
	daddr, saddr net.HardwareAddr, length int) (device.Result, error) {
	return Header(buf, dev, proto, daddr, saddr, length)
}

func (headerOps) Validate(dev *device.Descriptor, addr net.HardwareAddr) error {
	return ValidateAddr(dev, addr)
}

// Header prepends a Fibre Channel header to buf.
//
// IPv4 and ARP get an LLC/SNAP sub-header carrying proto; every other
// protocol gets the bare hardware header. saddr defaults to the device
// address. When daddr is nil the destination field is left untouched and the
// result is PendingResolution; the caller resolves it and writes it with
// Frame.SetDestinationAddress. length is not used by this framing.
//
// Address lengths are not checked here, callers validate them up front.
func Header(buf gopacket.SerializeBuffer, dev *device.Descriptor, proto layers.EthernetType,
	daddr, saddr net.HardwareAddr, length int) (device.Result, error) {
	hdrLen := HeaderLength(proto)
	b, err := buf.PrependBytes(hdrLen)
	if err != nil {
		return device.Result{}, errors.Wrap(err, "prepend fc header")
	}

	fch := Frame(b)
	if NeedsSNAP(proto) {
		fch.LLC().Encode(SNAPFields(proto))
	}

	if saddr == nil {
		saddr = dev.HardwareAddr()
	}
	f := Fields{SrcAddr: saddr[:dev.AddrLen()]}
	if daddr != nil {
		f.DstAddr = daddr[:dev.AddrLen()]
	}
	fch.Encode(&f)

	if f.DstAddr == nil {
		return device.Result{Length: hdrLen, Resolution: device.PendingResolution}, nil
	}
	return device.Result{Length: hdrLen, Resolution: device.Resolved}, nil
}

// ValidateAddr accepts addr only if it has the device address length and is
// not all zero.
func ValidateAddr(dev *device.Descriptor, addr net.HardwareAddr) error {
	if len(addr) != dev.AddrLen() {
		return errors.Wrapf(ErrInvalidAddress, "%q has length %d, want %d", addr.String(), len(addr), dev.AddrLen())
	}
	for _, c := range addr {
		if c != 0 {
			return nil
		}
	}
	return errors.Wrapf(ErrInvalidAddress, "%s is the zero address", addr)
}
