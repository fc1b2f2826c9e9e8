package fc

import (
	"encoding/binary"
	"net"

	"github.com/google/gopacket/layers"
)

const (
	// AddrLen is the length of a Fibre Channel hardware address.
	AddrLen = 6
	// HeaderLen is the size of the hardware header: destination then source.
	HeaderLen = 2 * AddrLen
	// LLCLen is the size of the LLC/SNAP sub-header.
	LLCLen = 8

	// ExtendedSAP is the SAP value announcing a SNAP header.
	ExtendedSAP = 0xAA
	// UICmd is the LLC control value for unnumbered information.
	UICmd = 0x03
)

// hardware header offsets
const (
	dstAddr = 0
	srcAddr = AddrLen
)

// LLC/SNAP offsets
const (
	llcDSAP    = 0
	llcSSAP    = 1
	llcControl = 2
	llcOUI     = 3
	llcType    = 6
)

// Fields is the hardware header record.
type Fields struct {
	DstAddr net.HardwareAddr
	SrcAddr net.HardwareAddr
}

// Frame is a view over the start of a Fibre Channel frame.
type Frame []byte

func (b Frame) DestinationAddress() net.HardwareAddr {
	return net.HardwareAddr(b[dstAddr : dstAddr+AddrLen])
}

func (b Frame) SourceAddress() net.HardwareAddr {
	return net.HardwareAddr(b[srcAddr : srcAddr+AddrLen])
}

// SetDestinationAddress fills in the destination of a header built with
// PendingResolution.
func (b Frame) SetDestinationAddress(addr net.HardwareAddr) {
	copy(b[dstAddr:dstAddr+AddrLen], addr)
}

func (b Frame) SetSourceAddress(addr net.HardwareAddr) {
	copy(b[srcAddr:srcAddr+AddrLen], addr)
}

// Encode writes f into the header. A nil address leaves its field as is.
func (b Frame) Encode(f *Fields) {
	if f.SrcAddr != nil {
		b.SetSourceAddress(f.SrcAddr)
	}
	if f.DstAddr != nil {
		b.SetDestinationAddress(f.DstAddr)
	}
}

// LLC returns the sub-header view that follows the hardware header.
func (b Frame) LLC() LLC {
	return LLC(b[HeaderLen : HeaderLen+LLCLen])
}

// LLCFields is the LLC/SNAP sub-header record.
type LLCFields struct {
	DSAP    uint8
	SSAP    uint8
	Control uint8
	OUI     [3]byte
	Type    layers.EthernetType
}

// SNAPFields returns the sub-header used to carry proto.
func SNAPFields(proto layers.EthernetType) *LLCFields {
	return &LLCFields{
		DSAP:    ExtendedSAP,
		SSAP:    ExtendedSAP,
		Control: UICmd,
		Type:    proto,
	}
}

// LLC is a view over an LLC/SNAP sub-header.
type LLC []byte

func (b LLC) DSAP() uint8 { return b[llcDSAP] }

func (b LLC) SSAP() uint8 { return b[llcSSAP] }

func (b LLC) Control() uint8 { return b[llcControl] }

func (b LLC) OUI() [3]byte {
	var oui [3]byte
	copy(oui[:], b[llcOUI:llcType])
	return oui
}

func (b LLC) Type() layers.EthernetType {
	return layers.EthernetType(binary.BigEndian.Uint16(b[llcType:]))
}

func (b LLC) Encode(f *LLCFields) {
	b[llcDSAP] = f.DSAP
	b[llcSSAP] = f.SSAP
	b[llcControl] = f.Control
	copy(b[llcOUI:llcType], f.OUI[:])
	binary.BigEndian.PutUint16(b[llcType:], uint16(f.Type))
}

// NeedsSNAP reports whether proto is carried in an LLC/SNAP sub-header.
// Only IPv4 and ARP are; anything else goes out without a type field.
func NeedsSNAP(proto layers.EthernetType) bool {
	return proto == layers.EthernetTypeIPv4 || proto == layers.EthernetTypeARP
}

// HeaderLength returns the number of bytes Header prepends for proto.
func HeaderLength(proto layers.EthernetType) int {
	if NeedsSNAP(proto) {
		return HeaderLen + LLCLen
	}
	return HeaderLen
}
