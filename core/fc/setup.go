package fc

import (
	"bytes"
	"net"

	"github.com/wlynxg/fcnet/core/device"
)

const (
	// MTU of a Fibre Channel device.
	MTU = 2024
	// TxQueueLen is the default transmit queue length.
	TxQueueLen = 100
	// NameTemplate is used to enumerate device names: fc0, fc1, ...
	NameTemplate = "fc%d"
)

// Setup fills in the fixed Fibre Channel device parameters.
func Setup(p *device.Params) {
	p.HeaderOps = headerOps{}
	p.Type = device.TypeIEEE802
	p.HeaderLen = HeaderLen
	p.MTU = MTU
	p.AddrLen = AddrLen
	p.TxQueueLen = TxQueueLen
	p.Flags = device.FlagBroadcast
	p.Broadcast = net.HardwareAddr(bytes.Repeat([]byte{0xff}, AddrLen))
}

// AllocMQ allocates a Fibre Channel device with queues transmit and
// receive queues.
func AllocMQ(addr net.HardwareAddr, queues int) (*device.Descriptor, error) {
	return device.Alloc(device.Options{
		NameTemplate: NameTemplate,
		HardwareAddr: addr,
		TxQueues:     queues,
		RxQueues:     queues,
		Setup:        Setup,
	})
}

// Alloc allocates a single-queue Fibre Channel device.
func Alloc(addr net.HardwareAddr) (*device.Descriptor, error) {
	return AllocMQ(addr, 1)
}
